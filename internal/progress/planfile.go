package progress

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"prepsync/internal/service"
)

// Plan is a weekly plan and its tasks as read from a plan file.
type Plan struct {
	ID    string
	Week  int
	Tasks []service.Task
}

// lenientNumber accepts any scalar; malformed values become 1.
type lenientNumber int

func (n *lenientNumber) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		*n = 1
		return nil
	}
	*n = lenientNumber(service.ParseNumber(value.Value))
	return nil
}

type planFile struct {
	ID    string         `yaml:"id"`
	Week  *lenientNumber `yaml:"week"`
	Tasks []struct {
		Title string         `yaml:"title"`
		Day   *lenientNumber `yaml:"day"`
		Week  *lenientNumber `yaml:"week"`
		Skill string         `yaml:"skill"`
	} `yaml:"tasks"`
}

// ParsePlan decodes a plan document. Task week numbers default to the plan's
// week; missing or malformed day and week numbers default to 1.
func ParsePlan(data []byte) (Plan, error) {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	if strings.TrimSpace(pf.ID) == "" {
		return Plan{}, errors.New("invalid plan: id required")
	}

	p := Plan{ID: pf.ID, Week: 1}
	if pf.Week != nil {
		p.Week = int(*pf.Week)
	}
	for i, t := range pf.Tasks {
		if t.Title == "" {
			return Plan{}, fmt.Errorf("invalid plan: task %d has no title", i+1)
		}
		task := service.Task{Title: t.Title, DayNumber: 1, WeekNumber: p.Week, Skill: t.Skill}
		if t.Day != nil {
			task.DayNumber = int(*t.Day)
		}
		if t.Week != nil {
			task.WeekNumber = int(*t.Week)
		}
		p.Tasks = append(p.Tasks, task)
	}
	return p, nil
}

// LoadPlan reads and parses a plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}
