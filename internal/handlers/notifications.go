package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationService interface {
	List(ctx context.Context, actor models.User, unreadOnly bool, limit int) (*services.NotificationPage, error)
	MarkRead(ctx context.Context, actor models.User, ids []string) (int64, error)
}

type NotificationHandler struct {
	notificationService NotificationService
	logger              *slog.Logger
}

func NewNotificationHandler(notificationService NotificationService, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{notificationService: notificationService, logger: logger}
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	page, err := h.notificationService.List(c.Request.Context(), actor, unreadOnly, queryInt(c, "limit"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MarkRead flags the listed notifications as read. An empty or missing
// body marks everything.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var input struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	updated, err := h.notificationService.MarkRead(c.Request.Context(), actor, input.IDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
