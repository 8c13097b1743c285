package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"taskboard/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type CommentService interface {
	List(ctx context.Context, actor models.User, taskID uuid.UUID) ([]models.Comment, error)
	Create(ctx context.Context, actor models.User, taskID uuid.UUID, body string) (*models.Comment, error)
}

type CommentHandler struct {
	commentService CommentService
	logger         *slog.Logger
}

func NewCommentHandler(commentService CommentService, logger *slog.Logger) *CommentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentHandler{commentService: commentService, logger: logger}
}

func (h *CommentHandler) GetComments(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "Task not found")
	if !ok {
		return
	}

	comments, err := h.commentService.List(c.Request.Context(), actor, taskID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *CommentHandler) CreateComment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "Task not found")
	if !ok {
		return
	}

	var input struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	comment, err := h.commentService.Create(c.Request.Context(), actor, taskID, input.Body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}
