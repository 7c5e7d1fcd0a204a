// Package service defines the backend-agnostic interface for progress operations.
package service

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Status is a progress record status.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	return st, st.Valid()
}

// Task is one logical practice task in a weekly plan.
type Task struct {
	Title      string
	DayNumber  int
	WeekNumber int
	Skill      string
}

// Record is a server-side progress record.
type Record struct {
	ID           string          `json:"id"`
	WeeklyPlanID string          `json:"weeklyPlanId"`
	WeekNumber   Number          `json:"weekNumber,omitempty"`
	DayNumber    Number          `json:"dayNumber"`
	TaskTitle    string          `json:"taskTitle"`
	Status       Status          `json:"status"`
	ProgressData json.RawMessage `json:"progressData,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// Update is a partial record mutation. Nil fields are left unchanged.
type Update struct {
	Status       *Status         `json:"status,omitempty"`
	ProgressData json.RawMessage `json:"progressData,omitempty"`
}

// Number is a day or week number. It decodes from a JSON number or a
// numeric string; null decodes as 0 (absent) and anything else as 1.
type Number int

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*n = 0
		return nil
	}
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	*n = Number(ParseNumber(s))
	return nil
}

// ParseNumber parses a day or week number, defaulting to 1 when s is
// malformed or not positive.
func ParseNumber(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 {
		return 1
	}
	return v
}
