package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"taskboard/internal/events"
	"taskboard/internal/models"
	"taskboard/internal/permissions"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ViewFull  = "full"
	ViewLight = "light"
)

// Cache is the subset of a key/value cache the task service needs.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type TaskCounts struct {
	Comments   int64 `json:"comments"`
	Subtasks   int64 `json:"subtasks"`
	Activities int64 `json:"activities"`
}

type TaskDetail struct {
	models.Task
	Counts      TaskCounts      `json:"counts"`
	Permissions permissions.Set `json:"permissions"`
}

type TaskService struct {
	db       *gorm.DB
	sink     events.Sink
	logger   *slog.Logger
	cache    Cache
	cacheTTL time.Duration
}

type TaskOption func(*TaskService)

// WithCache serves task detail reads from c for ttl.
func WithCache(c Cache, ttl time.Duration) TaskOption {
	return func(s *TaskService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func NewTaskService(db *gorm.DB, sink events.Sink, logger *slog.Logger, opts ...TaskOption) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TaskService{db: db, sink: sink, logger: logger, cacheTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TaskCachePrefix starts every cached task snapshot key.
const TaskCachePrefix = "task:"

func taskCacheKey(id uuid.UUID) string {
	return TaskCachePrefix + id.String()
}

func (s *TaskService) loadTask(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := db.WithContext(ctx).
		Preload("Project.Members.User").
		Preload("Assignees.User").
		Preload("Tags.Tag").
		Preload("List").
		First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Task not found")
		}
		return nil, Internal("failed to load task", err)
	}
	return &task, nil
}

func (s *TaskService) countsFor(ctx context.Context, id uuid.UUID) (TaskCounts, error) {
	var counts TaskCounts
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Comment{}).Where("task_id = ?", id).Count(&counts.Comments).Error; err != nil {
		return counts, err
	}
	if err := db.Model(&models.Task{}).Where("parent_id = ?", id).Count(&counts.Subtasks).Error; err != nil {
		return counts, err
	}
	activities, err := s.countActivities(ctx, id)
	if err != nil {
		return counts, err
	}
	counts.Activities = activities
	return counts, nil
}

func (s *TaskService) countActivities(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.TaskActivity{}).Where("task_id = ?", id).Count(&n).Error
	return n, err
}

// snapshotDetail returns the actor independent part of a task detail,
// from cache when one is configured. Activity rows may land after the
// snapshot was written, so their count is always read fresh.
func (s *TaskService) snapshotDetail(ctx context.Context, id uuid.UUID) (*TaskDetail, error) {
	key := taskCacheKey(id)
	if s.cache != nil {
		var cached TaskDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			activities, err := s.countActivities(ctx, id)
			if err != nil {
				return nil, Internal("failed to count task relations", err)
			}
			cached.Counts.Activities = activities
			return &cached, nil
		}
	}

	task, err := s.loadTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.countsFor(ctx, id)
	if err != nil {
		return nil, Internal("failed to count task relations", err)
	}

	detail := &TaskDetail{Task: *task, Counts: counts}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, detail, s.cacheTTL); err != nil {
			s.logger.Debug("task cache write skipped", "task_id", id, "error", err)
		}
	}
	return detail, nil
}

func (s *TaskService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, taskCacheKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("task cache invalidation failed", "error", err, "count", len(keys))
	}
}

func (s *TaskService) Get(ctx context.Context, actor models.User, id uuid.UUID, view string) (*TaskDetail, error) {
	switch view {
	case "", ViewFull, ViewLight:
	default:
		return nil, Validation("view must be light or full", "view")
	}

	detail, err := s.snapshotDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	set := permissions.Resolve(permissions.ForTask(actor, &detail.Task))
	if !set.CanRead {
		return nil, Forbidden("You do not have access to this task")
	}
	detail.Permissions = set

	if view == ViewLight {
		detail.Project.Members = nil
	}
	return detail, nil
}

func (s *TaskService) detailFor(ctx context.Context, actor models.User, task *models.Task) (*TaskDetail, error) {
	counts, err := s.countsFor(ctx, task.ID)
	if err != nil {
		return nil, Internal("failed to count task relations", err)
	}
	return &TaskDetail{
		Task:        *task,
		Counts:      counts,
		Permissions: permissions.Resolve(permissions.ForTask(actor, task)),
	}, nil
}

func (s *TaskService) Delete(ctx context.Context, actor models.User, id uuid.UUID) error {
	task, err := s.loadTask(ctx, s.db, id)
	if err != nil {
		return err
	}

	set := permissions.Resolve(permissions.ForTask(actor, task))
	if !set.CanDelete {
		return Forbidden("You do not have permission to delete this task")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteTasks(tx, []uuid.UUID{id})
	})
	if err != nil {
		return Internal("failed to delete task", err)
	}

	s.invalidate(ctx, id)
	if task.ParentID != nil {
		s.invalidate(ctx, *task.ParentID)
	}
	s.logger.Info("task deleted", "task_id", id, "actor_id", actor.ID)
	return nil
}

// deleteTasks removes tasks with their join rows, comments and activity.
// Subtasks of a removed task are detached rather than removed.
func deleteTasks(tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	for _, model := range []interface{}{&models.TaskAssignee{}, &models.TaskTag{}, &models.Comment{}, &models.TaskActivity{}} {
		if err := tx.Where("task_id IN ?", ids).Delete(model).Error; err != nil {
			return err
		}
	}
	if err := tx.Model(&models.Task{}).Where("parent_id IN ?", ids).Update("parent_id", nil).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.Task{}).Error
}

// Activity returns the task's activity feed, newest first.
func (s *TaskService) Activity(ctx context.Context, actor models.User, id uuid.UUID, limit int) ([]models.TaskActivity, error) {
	if _, err := s.authorizeRead(ctx, actor, id); err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	var activities []models.TaskActivity
	err := s.db.WithContext(ctx).
		Where("task_id = ?", id).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, Internal("failed to load activity", err)
	}
	return activities, nil
}

func (s *TaskService) authorizeRead(ctx context.Context, actor models.User, id uuid.UUID) (*models.Task, error) {
	task, err := s.loadTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !permissions.Resolve(permissions.ForTask(actor, task)).CanRead {
		return nil, Forbidden("You do not have access to this task")
	}
	return task, nil
}

type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ProjectID   string   `json:"projectId"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	DueDate     *string  `json:"dueDate"`
	AssigneeIDs []string `json:"assigneeIds"`
	ListID      *string  `json:"listId"`
	ParentID    *string  `json:"parentId"`
	StoryPoints *int     `json:"storyPoints"`
}

func (s *TaskService) Create(ctx context.Context, actor models.User, input CreateTaskInput) (*TaskDetail, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, Validation("Title is required", "title")
	}

	projectID, err := uuid.FromString(input.ProjectID)
	if err != nil {
		return nil, Validation("A valid projectId is required", "projectId")
	}

	var project models.Project
	if err := s.db.WithContext(ctx).Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Project not found")
		}
		return nil, Internal("failed to load project", err)
	}

	pctx := permissions.Context{GlobalRole: actor.Role}
	if m := project.MemberFor(actor.ID); m != nil {
		pctx.ProjectRole = m.Role
	}
	set := permissions.Resolve(pctx)
	if !actor.IsAdmin() && !set.IsProjectMember {
		return nil, Forbidden("You must be a member of this project to create tasks")
	}
	if project.Status == models.ProjectArchived {
		return nil, Validation("Cannot add tasks to an archived project", "projectId")
	}

	task := models.Task{
		ProjectID:   project.ID,
		CreatorID:   actor.ID,
		Title:       title,
		Description: input.Description,
		Status:      models.StatusTodo,
		Priority:    models.PriorityMedium,
		StoryPoints: input.StoryPoints,
	}

	if input.Status != "" {
		status := models.TaskStatus(input.Status)
		if !status.Valid() {
			return nil, Validation("Invalid status", "status")
		}
		if status == models.StatusArchived {
			return nil, Validation("New tasks cannot be archived", "status")
		}
		task.Status = status
	}
	if input.Priority != "" {
		priority := models.TaskPriority(input.Priority)
		if !priority.Valid() {
			return nil, Validation("Invalid priority", "priority")
		}
		task.Priority = priority
	}
	if input.DueDate != nil && *input.DueDate != "" {
		due, err := parseDueDate(*input.DueDate)
		if err != nil {
			return nil, Validation("dueDate must be an ISO 8601 date", "dueDate")
		}
		task.DueDate = &due
	}
	if input.StoryPoints != nil && *input.StoryPoints < 0 {
		return nil, Validation("storyPoints must not be negative", "storyPoints")
	}
	if input.ParentID != nil && *input.ParentID != "" {
		parentID, err := uuid.FromString(*input.ParentID)
		if err != nil {
			return nil, Validation("Invalid parentId", "parentId")
		}
		var parents int64
		if err := s.db.WithContext(ctx).Model(&models.Task{}).
			Where("id = ? AND project_id = ?", parentID, project.ID).
			Count(&parents).Error; err != nil {
			return nil, Internal("failed to load parent task", err)
		}
		if parents == 0 {
			return nil, Validation("Parent task must belong to the same project", "parentId")
		}
		task.ParentID = &parentID
	}

	assignees, err := parseIDs(input.AssigneeIDs, "assigneeIds")
	if err != nil {
		return nil, err
	}
	for _, id := range assignees {
		if id != actor.ID && !set.CanAssign {
			return nil, Forbidden("Only admins, managers and project managers can assign other users")
		}
		if project.MemberFor(id) == nil {
			return nil, Validation("Assignees must be members of the project", "assigneeIds")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		listID, err := ResolveList(ctx, tx, project.ID, input.ListID)
		if err != nil {
			return err
		}
		task.ListID = &listID

		if err := tx.Omit(clause.Associations).Create(&task).Error; err != nil {
			return err
		}
		return syncAssignees(tx, task.ID, assignees)
	})
	if err != nil {
		return nil, passThrough(err, "failed to create task")
	}

	created, err := s.loadTask(ctx, s.db, task.ID)
	if err != nil {
		return nil, err
	}

	meta, _ := json.Marshal(map[string]interface{}{"title": created.Title, "status": created.Status})
	s.sink.RecordActivities(ctx, []models.TaskActivity{{
		TaskID:   created.ID,
		ActorID:  actor.ID,
		Type:     models.ActivityTaskCreated,
		Metadata: string(meta),
	}})
	s.sink.Notify(ctx, assignmentNotifications(actor, created, addedAssignees(nil, created.AssigneeIDs(), actor.ID)))
	if created.ParentID != nil {
		s.invalidate(ctx, *created.ParentID)
	}

	s.logger.Info("task created", "task_id", created.ID, "project_id", project.ID, "actor_id", actor.ID)
	return s.detailFor(ctx, actor, created)
}

// ResolveList returns the list a task should sit in. A missing or empty
// listID selects the project's default list, created on first use.
func ResolveList(ctx context.Context, db *gorm.DB, projectID uuid.UUID, listID *string) (uuid.UUID, error) {
	if listID == nil || *listID == "" {
		return EnsureList(ctx, db, projectID, models.DefaultListName)
	}

	id, err := uuid.FromString(*listID)
	if err != nil {
		return uuid.Nil, Validation("Invalid listId", "listId")
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.TaskList{}).
		Where("id = ? AND project_id = ?", id, projectID).
		Count(&count).Error; err != nil {
		return uuid.Nil, err
	}
	if count == 0 {
		return uuid.Nil, Validation("List does not belong to this project", "listId")
	}
	return id, nil
}

// EnsureList upserts the list named name in the project and returns its id.
// Concurrent callers converge on the same row through the unique index.
func EnsureList(ctx context.Context, db *gorm.DB, projectID uuid.UUID, name string) (uuid.UUID, error) {
	list := models.TaskList{ProjectID: projectID, Name: name}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&list).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert list %q: %w", name, err)
	}

	var existing models.TaskList
	if err := db.WithContext(ctx).Where("project_id = ? AND name = ?", projectID, name).First(&existing).Error; err != nil {
		return uuid.Nil, fmt.Errorf("load list %q: %w", name, err)
	}
	return existing.ID, nil
}

// syncAssignees makes userIDs the exact assignee set of the task while
// keeping rows that survive the change.
func syncAssignees(tx *gorm.DB, taskID uuid.UUID, userIDs []uuid.UUID) error {
	del := tx.Where("task_id = ?", taskID)
	if len(userIDs) > 0 {
		del = del.Where("user_id NOT IN ?", userIDs)
	}
	if err := del.Delete(&models.TaskAssignee{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	rows := make([]models.TaskAssignee, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.TaskAssignee{TaskID: taskID, UserID: id})
	}
	return tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func syncTags(tx *gorm.DB, taskID uuid.UUID, tagIDs []uuid.UUID) error {
	del := tx.Where("task_id = ?", taskID)
	if len(tagIDs) > 0 {
		del = del.Where("tag_id NOT IN ?", tagIDs)
	}
	if err := del.Delete(&models.TaskTag{}).Error; err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}

	rows := make([]models.TaskTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, models.TaskTag{TaskID: taskID, TagID: id})
	}
	return tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// addedAssignees returns ids present in next but not in previous, minus
// the acting user.
func addedAssignees(previous, next []string, actorID uuid.UUID) []uuid.UUID {
	had := make(map[string]bool, len(previous))
	for _, id := range previous {
		had[id] = true
	}

	var added []uuid.UUID
	for _, raw := range next {
		if had[raw] || raw == actorID.String() {
			continue
		}
		if id, err := uuid.FromString(raw); err == nil {
			added = append(added, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].String() < added[j].String() })
	return added
}

func assignmentNotifications(actor models.User, task *models.Task, userIDs []uuid.UUID) []models.Notification {
	if len(userIDs) == 0 {
		return nil
	}
	actorName := actor.Name
	if actorName == "" {
		actorName = actor.Email
	}

	notifications := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		notifications = append(notifications, models.Notification{
			UserID:  id,
			Type:    models.NotificationTaskAssigned,
			Title:   "New task assignment",
			Message: fmt.Sprintf("%s assigned you to %q in %s", actorName, task.Title, task.Project.Name),
			Link:    "/tasks/" + task.ID.String(),
		})
	}
	return notifications
}

func activitiesFor(taskID, actorID uuid.UUID, changes []Change) []models.TaskActivity {
	activities := make([]models.TaskActivity, 0, len(changes))
	for _, c := range changes {
		meta, err := json.Marshal(map[string]interface{}{"from": c.From, "to": c.To})
		if err != nil {
			continue
		}
		activities = append(activities, models.TaskActivity{
			TaskID:   taskID,
			ActorID:  actorID,
			Type:     c.Activity,
			Metadata: string(meta),
		})
	}
	return activities
}

func parseIDs(values []string, field string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool, len(values))
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.FromString(v)
		if err != nil {
			return nil, Validation(fmt.Sprintf("%s contains an invalid id", field), field)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDueDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// passThrough keeps service errors intact and wraps everything else.
func passThrough(err error, message string) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(message, err)
}
