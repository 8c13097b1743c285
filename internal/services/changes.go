package services

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"taskboard/internal/models"
)

// WatchedField declares one task attribute whose changes are recorded as
// activity. Keys are the request keys that trigger the comparison.
type WatchedField struct {
	Name     string
	Keys     []string
	Activity string
	// Unordered fields compare as sets.
	Unordered bool
	Value     func(t *models.Task) interface{}
}

var WatchedFields = []WatchedField{
	{Name: "title", Keys: []string{"title"}, Activity: models.ActivityTitleChanged,
		Value: func(t *models.Task) interface{} { return t.Title }},
	{Name: "description", Keys: []string{"description"}, Activity: models.ActivityDescriptionChanged,
		Value: func(t *models.Task) interface{} { return t.Description }},
	{Name: "status", Keys: []string{"status"}, Activity: models.ActivityStatusChanged,
		Value: func(t *models.Task) interface{} { return string(t.Status) }},
	{Name: "priority", Keys: []string{"priority"}, Activity: models.ActivityPriorityChanged,
		Value: func(t *models.Task) interface{} { return string(t.Priority) }},
	{Name: "dueDate", Keys: []string{"dueDate"}, Activity: models.ActivityDueDateChanged,
		Value: func(t *models.Task) interface{} {
			if t.DueDate == nil {
				return nil
			}
			return t.DueDate.UTC().Format(time.RFC3339)
		}},
	{Name: "listId", Keys: []string{"listId", "list"}, Activity: models.ActivityListChanged,
		Value: func(t *models.Task) interface{} {
			if t.ListID == nil {
				return nil
			}
			return t.ListID.String()
		}},
	{Name: "storyPoints", Keys: []string{"storyPoints"}, Activity: models.ActivityStoryPointsChanged,
		Value: func(t *models.Task) interface{} {
			if t.StoryPoints == nil {
				return nil
			}
			return *t.StoryPoints
		}},
	{Name: "amountCents", Keys: []string{"amountCents"}, Activity: models.ActivityAmountChanged,
		Value: func(t *models.Task) interface{} {
			if t.AmountCents == nil {
				return nil
			}
			return *t.AmountCents
		}},
	{Name: "tags", Keys: []string{"tags"}, Activity: models.ActivityLegacyTagsChanged,
		Value: func(t *models.Task) interface{} { return t.DecodeLegacyTags() }},
	{Name: "tagIds", Keys: []string{"tagIds"}, Activity: models.ActivityTagsChanged, Unordered: true,
		Value: func(t *models.Task) interface{} { return t.TagIDs() }},
	{Name: "assigneeIds", Keys: []string{"assigneeIds"}, Activity: models.ActivityAssigneesChanged, Unordered: true,
		Value: func(t *models.Task) interface{} { return t.AssigneeIDs() }},
}

type Change struct {
	Field    string      `json:"field"`
	Activity string      `json:"type"`
	From     interface{} `json:"from"`
	To       interface{} `json:"to"`
}

// Snapshot captures the watched values of a task.
type Snapshot map[string]interface{}

func TakeSnapshot(t *models.Task) Snapshot {
	s := make(Snapshot, len(WatchedFields))
	for _, f := range WatchedFields {
		v := f.Value(t)
		if f.Unordered {
			v = sortedCopy(v)
		}
		s[f.Name] = v
	}
	return s
}

// Diff compares two snapshots over the fields named by present request
// keys and returns one Change per field whose value differs.
func Diff(from, to Snapshot, present map[string]bool) []Change {
	var changes []Change
	for _, f := range WatchedFields {
		if !anyPresent(f.Keys, present) {
			continue
		}
		a, b := from[f.Name], to[f.Name]
		if sameJSON(a, b) {
			continue
		}
		changes = append(changes, Change{Field: f.Name, Activity: f.Activity, From: a, To: b})
	}
	return changes
}

func anyPresent(keys []string, present map[string]bool) bool {
	for _, k := range keys {
		if present[k] {
			return true
		}
	}
	return false
}

func sortedCopy(v interface{}) interface{} {
	ids, ok := v.([]string)
	if !ok {
		return v
	}
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

func sameJSON(a, b interface{}) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(x, y)
}
