package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/permissions"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectService struct {
	db     *gorm.DB
	tasks  *TaskService
	logger *slog.Logger
}

func NewProjectService(db *gorm.DB, tasks *TaskService, logger *slog.Logger) *ProjectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{db: db, tasks: tasks, logger: logger}
}

type ProjectQuery struct {
	Page     int
	PageSize int
	Sort     string
	Order    string
	Q        string
	Status   string
}

type ProjectPage struct {
	Projects []models.Project `json:"projects"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
	Total    int64            `json:"total"`
}

var projectSortColumns = map[string]string{
	"name":      "projects.name",
	"createdAt": "projects.created_at",
	"updatedAt": "projects.updated_at",
}

func (s *ProjectService) List(ctx context.Context, actor models.User, query ProjectQuery) (*ProjectPage, error) {
	page, size := normalizePage(query.Page, query.PageSize)

	sort := query.Sort
	if sort == "" {
		sort = "createdAt"
	}
	column, ok := projectSortColumns[sort]
	if !ok {
		return nil, Validation("sort must be name, createdAt or updatedAt", "sort")
	}
	order := strings.ToLower(query.Order)
	if order == "" {
		order = "desc"
	}
	if order != "asc" && order != "desc" {
		return nil, Validation("order must be asc or desc", "order")
	}

	db := s.db.WithContext(ctx)
	q := db.Model(&models.Project{})
	if !actor.IsAdmin() {
		member := db.Model(&models.ProjectMember{}).Select("project_id").Where("user_id = ?", actor.ID)
		q = q.Where("(projects.creator_id = ? OR projects.id IN (?))", actor.ID, member)
	}
	if query.Status != "" {
		status := models.ProjectStatus(query.Status)
		if status != models.ProjectActive && status != models.ProjectArchived {
			return nil, Validation("status must be active or archived", "status")
		}
		q = q.Where("projects.status = ?", status)
	}
	if term := strings.TrimSpace(query.Q); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where(`(LOWER(projects.name) LIKE ? ESCAPE '\' OR LOWER(projects.description) LIKE ? ESCAPE '\')`, like, like)
	}

	base := q.Session(&gorm.Session{})
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, Internal("failed to count projects", err)
	}

	projects := []models.Project{}
	err := base.
		Preload("Members.User").
		Order(column + " " + order).
		Offset((page - 1) * size).
		Limit(size).
		Find(&projects).Error
	if err != nil {
		return nil, Internal("failed to list projects", err)
	}

	return &ProjectPage{Projects: projects, Page: page, PageSize: size, Total: total}, nil
}

type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *ProjectService) Create(ctx context.Context, actor models.User, input CreateProjectInput) (*models.Project, error) {
	if !permissions.CanCreateProject(actor.Role) {
		return nil, Forbidden("Only admins and managers can create projects")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, Validation("Project name is required", "name")
	}

	project := models.Project{
		Name:        name,
		Description: input.Description,
		Status:      models.ProjectActive,
		CreatorID:   actor.ID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&project).Error; err != nil {
			return err
		}
		owner := models.ProjectMember{ProjectID: project.ID, UserID: actor.ID, Role: models.ProjectRoleOwner}
		if err := tx.Omit(clause.Associations).Create(&owner).Error; err != nil {
			return err
		}
		_, err := EnsureList(ctx, tx, project.ID, models.DefaultListName)
		return err
	})
	if err != nil {
		return nil, Internal("failed to create project", err)
	}

	if err := s.db.WithContext(ctx).Preload("Members.User").First(&project, "id = ?", project.ID).Error; err != nil {
		return nil, Internal("failed to load project", err)
	}

	s.logger.Info("project created", "project_id", project.ID, "actor_id", actor.ID)
	return &project, nil
}

type BulkResult struct {
	Requested       int      `json:"requested"`
	Processed       int      `json:"processed"`
	Unauthorized    int      `json:"unauthorized"`
	UnauthorizedIDs []string `json:"unauthorizedIds"`
	Action          string   `json:"action"`
}

// BulkAction archives or deletes every requested project the actor may
// manage and reports the rest. It fails with Forbidden, alongside the
// result, only when no id was authorized.
func (s *ProjectService) BulkAction(ctx context.Context, actor models.User, rawIDs []string, rawAction string) (*BulkResult, error) {
	action := permissions.ProjectAction(rawAction)
	if action == "" {
		action = permissions.ActionArchive
	}
	if !action.Valid() {
		return nil, Validation("action must be archive or delete", "action")
	}

	if len(rawIDs) == 0 {
		return nil, Validation("ids must contain at least one project id", "ids")
	}
	ids, malformed := splitIDs(rawIDs)

	var projects []models.Project
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Preload("Members").Where("id IN ?", ids).Find(&projects).Error; err != nil {
			return nil, Internal("failed to load projects", err)
		}
	}
	byID := make(map[uuid.UUID]*models.Project, len(projects))
	for i := range projects {
		byID[projects[i].ID] = &projects[i]
	}

	result := &BulkResult{Requested: len(ids) + len(malformed), UnauthorizedIDs: []string{}, Action: string(action)}
	var authorized []uuid.UUID
	for _, id := range ids {
		if s.canManage(actor, byID[id], action) {
			authorized = append(authorized, id)
			continue
		}
		result.UnauthorizedIDs = append(result.UnauthorizedIDs, id.String())
	}
	// ids that cannot name a project are refused like foreign ones
	result.UnauthorizedIDs = append(result.UnauthorizedIDs, malformed...)
	result.Processed = len(authorized)
	result.Unauthorized = len(result.UnauthorizedIDs)

	if len(authorized) == 0 {
		return result, Forbidden(fmt.Sprintf("You are not allowed to %s any of these projects", action))
	}

	var taskIDs []uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("project_id IN ?", authorized).Pluck("id", &taskIDs).Error; err != nil {
			return err
		}
		if action == permissions.ActionArchive {
			return tx.Model(&models.Project{}).Where("id IN ?", authorized).
				Updates(map[string]interface{}{"status": models.ProjectArchived, "updated_at": time.Now()}).Error
		}
		return deleteProjects(tx, authorized, taskIDs)
	})
	if err != nil {
		return nil, Internal(fmt.Sprintf("failed to %s projects", action), err)
	}

	if s.tasks != nil {
		s.tasks.invalidate(ctx, taskIDs...)
	}
	s.logger.Info("bulk project action",
		"action", action, "actor_id", actor.ID,
		"requested", result.Requested, "processed", result.Processed, "unauthorized", result.Unauthorized)
	return result, nil
}

// splitIDs dedupes rawIDs into parsed ids and the raw values that are
// not uuids.
func splitIDs(rawIDs []string) ([]uuid.UUID, []string) {
	seen := make(map[string]bool, len(rawIDs))
	ids := make([]uuid.UUID, 0, len(rawIDs))
	var malformed []string
	for _, raw := range rawIDs {
		id, err := uuid.FromString(raw)
		if err != nil {
			if !seen[raw] {
				seen[raw] = true
				malformed = append(malformed, raw)
			}
			continue
		}
		if seen[id.String()] {
			continue
		}
		seen[id.String()] = true
		ids = append(ids, id)
	}
	return ids, malformed
}

// canManage treats unknown projects as unauthorized for everyone except
// admins, who are never filtered.
func (s *ProjectService) canManage(actor models.User, project *models.Project, action permissions.ProjectAction) bool {
	if actor.IsAdmin() {
		return true
	}
	if project == nil {
		return false
	}
	var role models.ProjectRole
	if m := project.MemberFor(actor.ID); m != nil {
		role = m.Role
	}
	return permissions.CanManageProject(actor.Role, project.CreatorID == actor.ID, role, action)
}

func deleteProjects(tx *gorm.DB, projectIDs, taskIDs []uuid.UUID) error {
	if err := deleteTasks(tx, taskIDs); err != nil {
		return err
	}
	for _, model := range []interface{}{&models.TaskList{}, &models.Tag{}, &models.ProjectMember{}} {
		if err := tx.Where("project_id IN ?", projectIDs).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", projectIDs).Delete(&models.Project{}).Error
}

// Get loads one project the actor can see.
func (s *ProjectService) Get(ctx context.Context, actor models.User, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Preload("Members.User").First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Project not found")
		}
		return nil, Internal("failed to load project", err)
	}
	if !actor.IsAdmin() && project.CreatorID != actor.ID && project.MemberFor(actor.ID) == nil {
		return nil, Forbidden("You do not have access to this project")
	}
	return &project, nil
}
