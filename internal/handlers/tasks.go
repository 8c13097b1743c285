package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type TaskService interface {
	Get(ctx context.Context, actor models.User, id uuid.UUID, view string) (*services.TaskDetail, error)
	Update(ctx context.Context, actor models.User, id uuid.UUID, patch services.TaskPatch) (*services.TaskDetail, error)
	Delete(ctx context.Context, actor models.User, id uuid.UUID) error
	List(ctx context.Context, actor models.User, query services.TaskQuery) (*services.TaskPage, error)
	Create(ctx context.Context, actor models.User, input services.CreateTaskInput) (*services.TaskDetail, error)
	Activity(ctx context.Context, actor models.User, id uuid.UUID, limit int) ([]models.TaskActivity, error)
}

type TaskHandler struct {
	taskService TaskService
	logger      *slog.Logger
}

func NewTaskHandler(taskService TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{taskService: taskService, logger: logger}
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found")
	if !ok {
		return
	}

	start := time.Now()
	task, err := h.taskService.Get(c.Request.Context(), actor, id, c.Query("view"))
	elapsed := time.Since(start)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if perf := c.Query("perf"); perf != "" && perf != "0" && perf != "false" {
		c.Header("Server-Timing", fmt.Sprintf("task;desc=\"load task\";dur=%.2f", float64(elapsed.Microseconds())/1000))
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found")
	if !ok {
		return
	}

	var patch services.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), actor, id, patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found")
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	query := services.TaskQuery{
		Scope:     c.Query("scope"),
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		ProjectID: c.Query("projectId"),
		DueFrom:   c.Query("dueFrom"),
		DueTo:     c.Query("dueTo"),
		Q:         c.Query("q"),
		Tag:       c.Query("tag"),
		View:      c.Query("view"),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "pageSize"),
	}

	page, err := h.taskService.List(c.Request.Context(), actor, query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var input services.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *TaskHandler) GetActivity(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found")
	if !ok {
		return
	}

	activities, err := h.taskService.Activity(c.Request.Context(), actor, id, queryInt(c, "limit"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}
