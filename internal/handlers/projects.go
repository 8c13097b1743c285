package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type ProjectService interface {
	List(ctx context.Context, actor models.User, query services.ProjectQuery) (*services.ProjectPage, error)
	Get(ctx context.Context, actor models.User, id uuid.UUID) (*models.Project, error)
	Create(ctx context.Context, actor models.User, input services.CreateProjectInput) (*models.Project, error)
	BulkAction(ctx context.Context, actor models.User, ids []string, action string) (*services.BulkResult, error)
}

type ProjectHandler struct {
	projectService ProjectService
	logger         *slog.Logger
}

func NewProjectHandler(projectService ProjectService, logger *slog.Logger) *ProjectHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectHandler{projectService: projectService, logger: logger}
}

type bulkRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
}

type bulkResponse struct {
	*services.BulkResult
	Error string `json:"error,omitempty"`
}

func (h *ProjectHandler) GetProjects(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	query := services.ProjectQuery{
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
		Sort:     c.Query("sort"),
		Order:    c.Query("order"),
		Q:        c.Query("q"),
		Status:   c.Query("status"),
	}

	page, err := h.projectService.List(c.Request.Context(), actor, query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Project not found")
	if !ok {
		return
	}

	project, err := h.projectService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var input services.CreateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// BulkUpdate applies an archive or delete action to a batch of projects.
// A batch where nothing was authorized answers 403 but still carries the
// per-id counts.
func (h *ProjectHandler) BulkUpdate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.projectService.BulkAction(c.Request.Context(), actor, req.IDs, req.Action)
	if err != nil {
		if result != nil && services.KindOf(err) == services.KindForbidden {
			c.JSON(http.StatusForbidden, bulkResponse{BulkResult: result, Error: err.Error()})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bulkResponse{BulkResult: result})
}
