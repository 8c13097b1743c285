package services

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/permissions"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// TaskPatch is a sparse update: only keys present in the request body are
// applied.
type TaskPatch map[string]json.RawMessage

func (p TaskPatch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p TaskPatch) present() map[string]bool {
	out := make(map[string]bool, len(p))
	for k := range p {
		out[k] = true
	}
	return out
}

type listTarget struct {
	id   *uuid.UUID
	name string
}

type updatePlan struct {
	columns      map[string]interface{}
	list         *listTarget
	assignees    []uuid.UUID
	setAssignees bool
	tags         []uuid.UUID
	setTags      bool
}

func (s *TaskService) Update(ctx context.Context, actor models.User, id uuid.UUID, patch TaskPatch) (*TaskDetail, error) {
	before, err := s.loadTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	pctx := permissions.ForTask(actor, before)
	set := permissions.Resolve(pctx)
	if !set.CanWrite && !set.CanEditStatus {
		return nil, Forbidden("You do not have permission to update this task")
	}

	if permissions.RestrictedToMemberFields(pctx, set) {
		if bad := permissions.DisallowedFields(patch.Keys()); len(bad) > 0 {
			return nil, Validation("Members may only update status, title, description, priority, dueDate and storyPoints", bad...)
		}
	}
	if !set.CanWrite {
		for _, key := range patch.Keys() {
			if key != "status" {
				return nil, Forbidden("You may only change the status of this task")
			}
		}
	}

	plan, err := s.planUpdate(ctx, before, set, patch)
	if err != nil {
		return nil, err
	}

	if err := s.applyUpdate(ctx, before, plan); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)

	after, err := s.loadTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	present := patch.present()
	changes := Diff(TakeSnapshot(before), TakeSnapshot(after), present)
	s.sink.RecordActivities(ctx, activitiesFor(id, actor.ID, changes))

	if present["assigneeIds"] {
		added := addedAssignees(before.AssigneeIDs(), after.AssigneeIDs(), actor.ID)
		s.sink.Notify(ctx, assignmentNotifications(actor, after, added))
	}

	s.logger.Info("task updated", "task_id", id, "actor_id", actor.ID, "fields", patch.Keys(), "changes", len(changes))
	return s.detailFor(ctx, actor, after)
}

// planUpdate validates and authorizes every present field. Nothing is
// written until every field has passed.
func (s *TaskService) planUpdate(ctx context.Context, before *models.Task, set permissions.Set, patch TaskPatch) (*updatePlan, error) {
	plan := &updatePlan{columns: map[string]interface{}{}}

	if raw, ok := patch["status"]; ok {
		var status models.TaskStatus
		if err := json.Unmarshal(raw, &status); err != nil || !status.Valid() {
			return nil, Validation("Invalid status", "status")
		}
		if permissions.IsArchiveTransition(before.Status, status) {
			if !set.CanEditMeta {
				return nil, Forbidden("Only project managers can archive or unarchive tasks")
			}
		} else if !set.CanEditStatus {
			return nil, Forbidden("You do not have permission to change the status of this task")
		}
		plan.columns["status"] = status
	}

	if raw, ok := patch["assigneeIds"]; ok {
		if !set.CanAssign {
			return nil, Forbidden("Only admins, managers and project managers can change assignees")
		}
		ids, err := decodeIDs(raw, "assigneeIds")
		if err != nil {
			return nil, err
		}
		for _, userID := range ids {
			if before.Project.MemberFor(userID) == nil {
				return nil, Validation("Assignees must be members of the project", "assigneeIds")
			}
		}
		plan.assignees, plan.setAssignees = ids, true
	}

	if raw, ok := patch["tagIds"]; ok {
		if !set.CanEditMeta {
			return nil, Forbidden("You do not have permission to change tags")
		}
		ids, err := decodeIDs(raw, "tagIds")
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.Tag{}).
				Where("id IN ? AND project_id = ?", ids, before.ProjectID).
				Count(&count).Error; err != nil {
				return nil, Internal("failed to check tags", err)
			}
			if count != int64(len(ids)) {
				return nil, Validation("All tags must belong to the task's project", "tagIds")
			}
		}
		plan.tags, plan.setTags = ids, true
	}

	if raw, ok := patch["tags"]; ok {
		if !set.CanEditMeta {
			return nil, Forbidden("You do not have permission to change tags")
		}
		if isNull(raw) {
			plan.columns["legacy_tags"] = ""
		} else {
			var labels []string
			if err := json.Unmarshal(raw, &labels); err != nil {
				return nil, Validation("tags must be an array of strings", "tags")
			}
			encoded, _ := json.Marshal(labels)
			plan.columns["legacy_tags"] = string(encoded)
		}
	}

	if raw, ok := patch["amountCents"]; ok {
		if !set.CanEditMeta {
			return nil, Forbidden("You do not have permission to change the amount")
		}
		amount, err := decodeOptionalCount(raw, "amountCents")
		if err != nil {
			return nil, err
		}
		if amount == nil {
			plan.columns["amount_cents"] = nil
		} else {
			plan.columns["amount_cents"] = *amount
		}
	}

	_, hasListID := patch["listId"]
	_, hasList := patch["list"]
	if hasListID || hasList {
		if !set.CanMoveList {
			return nil, Forbidden("You do not have permission to move this task to another list")
		}
		target, err := decodeListTarget(patch)
		if err != nil {
			return nil, err
		}
		plan.list = target
	}

	if raw, ok := patch["priority"]; ok {
		var priority models.TaskPriority
		if err := json.Unmarshal(raw, &priority); err != nil || !priority.Valid() {
			return nil, Validation("Invalid priority", "priority")
		}
		plan.columns["priority"] = priority
	}

	if raw, ok := patch["dueDate"]; ok {
		if isNull(raw) {
			plan.columns["due_date"] = nil
		} else {
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, Validation("dueDate must be an ISO 8601 date or null", "dueDate")
			}
			if value == "" {
				plan.columns["due_date"] = nil
			} else {
				due, err := parseDueDate(value)
				if err != nil {
					return nil, Validation("dueDate must be an ISO 8601 date or null", "dueDate")
				}
				plan.columns["due_date"] = due
			}
		}
	}

	if raw, ok := patch["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return nil, Validation("title must be a string", "title")
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, Validation("Title cannot be empty", "title")
		}
		plan.columns["title"] = title
	}

	if raw, ok := patch["description"]; ok {
		var description string
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &description); err != nil {
				return nil, Validation("description must be a string", "description")
			}
		}
		plan.columns["description"] = description
	}

	if raw, ok := patch["storyPoints"]; ok {
		points, err := decodeOptionalCount(raw, "storyPoints")
		if err != nil {
			return nil, err
		}
		if points == nil {
			plan.columns["story_points"] = nil
		} else {
			plan.columns["story_points"] = int(*points)
		}
	}

	return plan, nil
}

// applyUpdate writes the columns and join rows of plan in one transaction.
func (s *TaskService) applyUpdate(ctx context.Context, before *models.Task, plan *updatePlan) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if plan.list != nil {
			listID, err := plan.list.resolve(ctx, tx, before.ProjectID)
			if err != nil {
				return err
			}
			plan.columns["list_id"] = listID
		}

		if len(plan.columns) > 0 {
			plan.columns["updated_at"] = time.Now()
			if err := tx.Model(&models.Task{}).Where("id = ?", before.ID).Updates(plan.columns).Error; err != nil {
				return err
			}
		}
		if plan.setAssignees {
			if err := syncAssignees(tx, before.ID, plan.assignees); err != nil {
				return err
			}
		}
		if plan.setTags {
			if err := syncTags(tx, before.ID, plan.tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return passThrough(err, "failed to update task")
	}
	return nil
}

func (t *listTarget) resolve(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (uuid.UUID, error) {
	switch {
	case t.id != nil:
		raw := t.id.String()
		return ResolveList(ctx, tx, projectID, &raw)
	case t.name != "":
		return EnsureList(ctx, tx, projectID, t.name)
	default:
		return ResolveList(ctx, tx, projectID, nil)
	}
}

// decodeListTarget reads listId, falling back to a list name under list.
// listId wins when both are sent.
func decodeListTarget(patch TaskPatch) (*listTarget, error) {
	if raw, ok := patch["listId"]; ok {
		if isNull(raw) {
			return &listTarget{}, nil
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, Validation("listId must be a string or null", "listId")
		}
		if value == "" {
			return &listTarget{}, nil
		}
		id, err := uuid.FromString(value)
		if err != nil {
			return nil, Validation("Invalid listId", "listId")
		}
		return &listTarget{id: &id}, nil
	}

	raw := patch["list"]
	if isNull(raw) {
		return &listTarget{}, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, Validation("list must be a list name or null", "list")
	}
	return &listTarget{name: strings.TrimSpace(name)}, nil
}

func decodeIDs(raw json.RawMessage, field string) ([]uuid.UUID, error) {
	var values []string
	if isNull(raw) || json.Unmarshal(raw, &values) != nil {
		return nil, Validation(field+" must be an array of ids", field)
	}
	return parseIDs(values, field)
}

// decodeOptionalCount accepts null or a non-negative integer.
func decodeOptionalCount(raw json.RawMessage, field string) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, Validation(field+" must be a non-negative integer or null", field)
	}
	num, ok := v.(json.Number)
	if !ok {
		return nil, Validation(field+" must be a non-negative integer or null", field)
	}
	n, err := num.Int64()
	if err != nil || n < 0 {
		return nil, Validation(field+" must be a non-negative integer or null", field)
	}
	return &n, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
