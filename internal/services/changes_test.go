package services_test

import (
	"testing"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	a := uuid.FromStringOrNil("00000000-0000-0000-0000-00000000000a")
	b := uuid.FromStringOrNil("00000000-0000-0000-0000-00000000000b")
	due := time.Date(2026, 5, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	before := &models.Task{
		Title:     "Draft",
		Status:    models.StatusTodo,
		Priority:  models.PriorityLow,
		DueDate:   &due,
		Assignees: []models.TaskAssignee{{UserID: a}, {UserID: b}},
	}

	tests := []struct {
		name     string
		mutate   func(t *models.Task)
		present  []string
		expected []string
	}{
		{
			name:     "unchanged value is not reported",
			mutate:   func(t *models.Task) {},
			present:  []string{"title", "status"},
			expected: nil,
		},
		{
			name:     "changed but absent field is ignored",
			mutate:   func(t *models.Task) { t.Title = "Final" },
			present:  []string{"status"},
			expected: nil,
		},
		{
			name:     "changed present field",
			mutate:   func(t *models.Task) { t.Title = "Final"; t.Priority = models.PriorityHigh },
			present:  []string{"title", "priority"},
			expected: []string{models.ActivityTitleChanged, models.ActivityPriorityChanged},
		},
		{
			name: "reordered assignees are equal",
			mutate: func(t *models.Task) {
				t.Assignees = []models.TaskAssignee{{UserID: b}, {UserID: a}}
			},
			present:  []string{"assigneeIds"},
			expected: nil,
		},
		{
			name: "same instant in another zone is equal",
			mutate: func(t *models.Task) {
				utc := due.UTC()
				t.DueDate = &utc
			},
			present:  []string{"dueDate"},
			expected: nil,
		},
		{
			name:     "list key triggers list comparison",
			mutate:   func(t *models.Task) { id := a; t.ListID = &id },
			present:  []string{"list"},
			expected: []string{models.ActivityListChanged},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after := *before
			after.Assignees = append([]models.TaskAssignee(nil), before.Assignees...)
			tt.mutate(&after)

			present := map[string]bool{}
			for _, k := range tt.present {
				present[k] = true
			}

			changes := services.Diff(services.TakeSnapshot(before), services.TakeSnapshot(&after), present)
			var got []string
			for _, c := range changes {
				got = append(got, c.Activity)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDiff_ReportsFromAndTo(t *testing.T) {
	before := &models.Task{Status: models.StatusTodo}
	after := &models.Task{Status: models.StatusDone}

	changes := services.Diff(services.TakeSnapshot(before), services.TakeSnapshot(after), map[string]bool{"status": true})
	require.Len(t, changes, 1)
	assert.Equal(t, "status", changes[0].Field)
	assert.Equal(t, "todo", changes[0].From)
	assert.Equal(t, "done", changes[0].To)
}

func TestTaskPatch_Keys(t *testing.T) {
	patch := patchOf(t, `{"title":"x","amountCents":1,"status":"done"}`)
	assert.Equal(t, []string{"amountCents", "status", "title"}, patch.Keys())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, services.KindNotFound, services.KindOf(services.NotFound("gone")))
	assert.Equal(t, services.KindInternal, services.KindOf(assert.AnError))

	wrapped := services.Internal("boom", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "internal", services.KindOf(wrapped).String())

	v := services.Validation("bad", "a", "b")
	assert.Equal(t, []string{"a", "b"}, v.Fields)
	assert.Equal(t, "bad", v.Error())
}
