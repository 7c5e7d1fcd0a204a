package progress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepsync/internal/service"
)

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan([]byte(`
id: plan-42
week: 3
tasks:
  - title: Listening drill
    day: 1
    skill: listening
  - title: Essay outline
    day: "2"
  - title: Review
    day: 5
    week: 4
`))
	require.NoError(t, err)

	assert.Equal(t, "plan-42", p.ID)
	assert.Equal(t, 3, p.Week)
	assert.Equal(t, []service.Task{
		{Title: "Listening drill", DayNumber: 1, WeekNumber: 3, Skill: "listening"},
		{Title: "Essay outline", DayNumber: 2, WeekNumber: 3},
		{Title: "Review", DayNumber: 5, WeekNumber: 4},
	}, p.Tasks)
}

func TestParsePlan_MalformedNumbersDefaultToOne(t *testing.T) {
	p, err := ParsePlan([]byte(`
id: p
week: soon
tasks:
  - title: A
    day: monday
  - title: B
    day: -2
  - title: C
    day: [1, 2]
`))
	require.NoError(t, err)

	assert.Equal(t, 1, p.Week)
	for _, task := range p.Tasks {
		assert.Equal(t, 1, task.DayNumber, task.Title)
		assert.Equal(t, 1, task.WeekNumber, task.Title)
	}
}

func TestParsePlan_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "week: 1\ntasks: []\n"},
		{"blank id", "id: '  '\n"},
		{"untitled task", "id: p\ntasks:\n  - day: 1\n"},
		{"not yaml", "id: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: p1\ntasks:\n  - title: T\n"), 0600))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Len(t, p.Tasks, 1)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
