// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"prepsync/internal/progress"
	"prepsync/internal/service"
	"prepsync/internal/session"
)

const (
	// PlanSeparator is the separator line around a plan header.
	PlanSeparator = "------------"

	// NoRecord is shown for a task the index has no record for.
	NoRecord = "-"
)

// FormatPlanHeader formats a plan section header.
func FormatPlanHeader(w io.Writer, planID string, week int) {
	fmt.Fprintln(w, PlanSeparator)
	fmt.Fprintf(w, "%s (week %d)\n", planID, week)
	fmt.Fprintln(w, PlanSeparator)
}

// FormatTask formats one numbered task with its progress status.
// Format: "{N:>4}  {STATUS:<11}  d{DAY}  {TITLE}\n"
func FormatTask(w io.Writer, num int, task service.Task, entry progress.Entry, ok bool) {
	status := NoRecord
	if ok {
		status = string(entry.Status)
	}
	fmt.Fprintf(w, "%4d  %-11s  d%d  %s\n", num, status, task.DayNumber, normalizeTitle(task.Title))
}

// FormatSummary formats a one-line count of a plan's statuses.
func FormatSummary(w io.Writer, planID string, total int, rows []progress.Row) {
	var done, active int
	for _, r := range rows {
		switch r.Status {
		case service.StatusCompleted:
			done++
		case service.StatusInProgress:
			active++
		}
	}
	fmt.Fprintf(w, "%s: %d/%d completed, %d in progress", planID, done, total, active)
	if missing := total - len(rows); missing > 0 {
		fmt.Fprintf(w, ", %d without record", missing)
	}
	fmt.Fprintln(w)
}

// FormatTokenStatus formats the credential and backoff state.
func FormatTokenStatus(w io.Writer, signedIn bool, st session.Status, b session.BackoffState, cooldown time.Duration) {
	fmt.Fprintf(w, "signed in:     %s\n", yesNo(signedIn))
	if st.HasToken {
		fmt.Fprintf(w, "token:         issued %dm ago, expires in %dm\n", st.AgeMinutes, st.ExpiresInMinutes)
	} else {
		fmt.Fprintln(w, "token:         none")
	}
	fmt.Fprintf(w, "stale:         %s\n", yesNo(st.IsStale))
	fmt.Fprintf(w, "expiring soon: %s\n", yesNo(st.IsExpiringSoon))
	if b.FailureCount > 0 {
		fmt.Fprintf(w, "backoff:       %d failures, retry in %s\n", b.FailureCount, cooldown.Round(time.Second))
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
