package services

import (
	"context"
	"strings"
	"time"

	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

const (
	ScopeAll      = "all"
	ScopeAssigned = "assigned"
	ScopeProjects = "projects"

	ViewDefault      = "default"
	ViewProjectLists = "projectLists"
	ViewDashboard    = "dashboard"
)

type TaskQuery struct {
	Scope     string
	Status    string
	Priority  string
	ProjectID string
	DueFrom   string
	DueTo     string
	Q         string
	Tag       string
	View      string
	Page      int
	PageSize  int
}

type ListGroup struct {
	ProjectID uuid.UUID   `json:"projectId"`
	ListID    *uuid.UUID  `json:"listId"`
	Name      string      `json:"name"`
	Position  int         `json:"position"`
	TaskIDs   []uuid.UUID `json:"taskIds"`
}

type TaskPage struct {
	Tasks    []models.Task `json:"tasks"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int64         `json:"total"`

	Lists   []ListGroup                 `json:"lists,omitempty"`
	Summary map[models.TaskStatus]int64 `json:"summary,omitempty"`
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func (s *TaskService) List(ctx context.Context, actor models.User, query TaskQuery) (*TaskPage, error) {
	page, size := normalizePage(query.Page, query.PageSize)

	view := query.View
	if view == "" {
		view = ViewDefault
	}
	switch view {
	case ViewDefault, ViewProjectLists, ViewDashboard:
	default:
		return nil, Validation("view must be default, projectLists or dashboard", "view")
	}

	q, err := s.scopedTasks(ctx, actor, query)
	if err != nil {
		return nil, err
	}
	base := q.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, Internal("failed to count tasks", err)
	}

	find := base.
		Preload("Project").
		Preload("Assignees.User").
		Preload("Tags.Tag").
		Preload("List")
	switch view {
	case ViewProjectLists:
		find = find.Order("tasks.project_id ASC").Order("tasks.list_id ASC").Order("tasks.created_at ASC")
	case ViewDashboard:
		find = find.Order("CASE WHEN tasks.due_date IS NULL THEN 1 ELSE 0 END").Order("tasks.due_date ASC")
	default:
		find = find.Order("tasks.created_at DESC")
	}

	tasks := []models.Task{}
	if err := find.Offset((page - 1) * size).Limit(size).Find(&tasks).Error; err != nil {
		return nil, Internal("failed to list tasks", err)
	}

	result := &TaskPage{Tasks: tasks, Page: page, PageSize: size, Total: total}
	switch view {
	case ViewProjectLists:
		result.Lists = groupByList(tasks)
	case ViewDashboard:
		summary, err := statusSummary(base)
		if err != nil {
			return nil, Internal("failed to summarize tasks", err)
		}
		result.Summary = summary
	}
	return result, nil
}

// scopedTasks builds the filtered task query visible to actor.
func (s *TaskService) scopedTasks(ctx context.Context, actor models.User, query TaskQuery) (*gorm.DB, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&models.Task{})

	assigned := db.Model(&models.TaskAssignee{}).Select("task_id").Where("user_id = ?", actor.ID)
	member := db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.ID)

	switch query.Scope {
	case "", ScopeAll:
		if !actor.IsAdmin() {
			q = q.Where("(tasks.id IN (?) OR tasks.project_id IN (?))", assigned, member)
		}
	case ScopeAssigned:
		q = q.Where("tasks.id IN (?)", assigned)
	case ScopeProjects:
		q = q.Where("tasks.project_id IN (?)", member)
	default:
		return nil, Validation("scope must be all, assigned or projects", "scope")
	}

	if query.Status != "" {
		status := models.TaskStatus(query.Status)
		if !status.Valid() {
			return nil, Validation("Invalid status", "status")
		}
		q = q.Where("tasks.status = ?", status)
	} else {
		q = q.Where("tasks.status <> ?", models.StatusArchived)
	}

	if query.Priority != "" {
		priority := models.TaskPriority(query.Priority)
		if !priority.Valid() {
			return nil, Validation("Invalid priority", "priority")
		}
		q = q.Where("tasks.priority = ?", priority)
	}

	if query.ProjectID != "" {
		projectID, err := uuid.FromString(query.ProjectID)
		if err != nil {
			return nil, Validation("Invalid projectId", "projectId")
		}
		q = q.Where("tasks.project_id = ?", projectID)
	}

	if query.DueFrom != "" {
		from, err := parseDueDate(query.DueFrom)
		if err != nil {
			return nil, Validation("Invalid dueFrom", "dueFrom")
		}
		q = q.Where("tasks.due_date >= ?", from)
	}
	if query.DueTo != "" {
		to, err := parseDueDate(query.DueTo)
		if err != nil {
			return nil, Validation("Invalid dueTo", "dueTo")
		}
		// a bare date includes the whole day
		if len(query.DueTo) == len("2006-01-02") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		q = q.Where("tasks.due_date <= ?", to)
	}

	if term := strings.TrimSpace(query.Q); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where(`(LOWER(tasks.title) LIKE ? ESCAPE '\' OR LOWER(tasks.description) LIKE ? ESCAPE '\')`, like, like)
	}

	if tag := strings.TrimSpace(query.Tag); tag != "" {
		tagged := db.Table("task_tags").
			Select("task_tags.task_id").
			Joins("JOIN tags ON tags.id = task_tags.tag_id").
			Where("LOWER(tags.name) = ?", strings.ToLower(tag))
		q = q.Where(`(tasks.id IN (?) OR tasks.legacy_tags LIKE ? ESCAPE '\')`, tagged, `%"`+escapeLike(tag)+`"%`)
	}

	return q, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes s match literally inside a LIKE pattern using
// ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func groupByList(tasks []models.Task) []ListGroup {
	groups := []ListGroup{}
	index := map[string]int{}
	for _, t := range tasks {
		key := t.ProjectID.String() + "/"
		if t.ListID != nil {
			key += t.ListID.String()
		}
		i, ok := index[key]
		if !ok {
			g := ListGroup{ProjectID: t.ProjectID, ListID: t.ListID}
			if t.List != nil {
				g.Name = t.List.Name
				g.Position = t.List.Position
			}
			groups = append(groups, g)
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].TaskIDs = append(groups[i].TaskIDs, t.ID)
	}
	return groups
}

func statusSummary(base *gorm.DB) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int64
	}
	if err := base.Select("tasks.status AS status, COUNT(*) AS count").Group("tasks.status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	summary := make(map[models.TaskStatus]int64, len(rows))
	for _, r := range rows {
		summary[r.Status] = r.Count
	}
	return summary, nil
}
