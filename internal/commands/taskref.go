package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"prepsync/internal/progress"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	TaskNum int    // 1-based position in the plan; 0 when Day is set
	Day     int    // day number for a day/title reference
	Title   string // task title for a day/title reference
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses a task reference from args.
//
// Parsing rules:
//  1. A single all-digit arg is a task number as printed by show (3)
//  2. d<digits> followed by a title is a day/title reference (d2 Essay outline)
//  3. d followed by digits and a title is the same (d 2 Essay outline)
//  4. d<digits> or d <digits> without a title: error: task title required
//  5. Otherwise: error: invalid task reference: <ref>
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}
	first := args[0]

	if isAllDigits(first) {
		if len(args) > 1 {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", strings.Join(args, " "))
		}
		num, err := strconv.Atoi(first)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", first)
		}
		return TaskRef{TaskNum: num}, nil
	}

	var dayArg string
	var rest []string
	switch {
	case len(first) > 1 && first[0] == 'd' && isAllDigits(first[1:]):
		dayArg, rest = first[1:], args[1:]
	case first == "d" && len(args) > 1 && isAllDigits(args[1]):
		dayArg, rest = args[1], args[2:]
	default:
		return TaskRef{}, fmt.Errorf("invalid task reference: %s", first)
	}

	day, err := strconv.Atoi(dayArg)
	if err != nil || day < 1 {
		return TaskRef{}, fmt.Errorf("invalid day: %s", dayArg)
	}
	title := strings.Join(rest, " ")
	if strings.TrimSpace(title) == "" {
		return TaskRef{}, errors.New("task title required")
	}
	return TaskRef{Day: day, Title: title}, nil
}

// Resolve maps the reference to a task identity in plan. week overrides the
// plan's week for day/title references when positive.
func (r TaskRef) Resolve(plan progress.Plan, week int) (progress.TaskIdentity, error) {
	if r.Day == 0 {
		if r.TaskNum < 1 || r.TaskNum > len(plan.Tasks) {
			return progress.TaskIdentity{}, fmt.Errorf("task number out of range: %d", r.TaskNum)
		}
		return progress.IdentityOf(plan.Tasks[r.TaskNum-1]), nil
	}
	if week <= 0 {
		week = plan.Week
	}
	return progress.TaskIdentity{Week: week, Day: r.Day, Title: r.Title}, nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
