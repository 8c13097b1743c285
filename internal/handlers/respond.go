package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindUnauthorized: http.StatusUnauthorized,
	services.KindForbidden:    http.StatusForbidden,
	services.KindValidation:   http.StatusBadRequest,
	services.KindNotFound:     http.StatusNotFound,
}

// respondError writes err using the service error taxonomy. Anything that
// is not a caller error is logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		if status, ok := statusByKind[svcErr.Kind]; ok {
			body := gin.H{"error": svcErr.Message}
			if len(svcErr.Fields) > 0 {
				body["fields"] = svcErr.Fields
			}
			c.JSON(status, body)
			return
		}
	}

	c.Error(err)
	logger.ErrorContext(c.Request.Context(), "request failed",
		"method", c.Request.Method,
		"route", c.FullPath(),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func actorFrom(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return models.User{}, false
	}
	return user, true
}

// pathID parses the :id route parameter. Ids that are not UUIDs cannot
// name a stored row, so they are reported as not found.
func pathID(c *gin.Context, notFound string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
