package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"taskboard/internal/handlers"
	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCommentService struct {
	mock.Mock
}

func (m *MockCommentService) List(ctx context.Context, actor models.User, taskID uuid.UUID) ([]models.Comment, error) {
	args := m.Called(ctx, actor, taskID)
	comments, _ := args.Get(0).([]models.Comment)
	return comments, args.Error(1)
}

func (m *MockCommentService) Create(ctx context.Context, actor models.User, taskID uuid.UUID, body string) (*models.Comment, error) {
	args := m.Called(ctx, actor, taskID, body)
	comment, _ := args.Get(0).(*models.Comment)
	return comment, args.Error(1)
}

func TestCommentHandler(t *testing.T) {
	service := &MockCommentService{}
	user := testUser(models.RoleMember)
	handler := handlers.NewCommentHandler(service, quietLogger())
	router, api := newRouter(user)
	api.GET("/tasks/:id/comments", handler.GetComments)
	api.POST("/tasks/:id/comments", handler.CreateComment)

	taskID := uuid.Must(uuid.NewV4())
	path := "/api/tasks/" + taskID.String() + "/comments"

	service.On("Create", mock.Anything, user, taskID, "Looks good").
		Return(&models.Comment{TaskID: taskID, Body: "Looks good"}, nil)
	service.On("Create", mock.Anything, user, taskID, "").
		Return(nil, services.Validation("Comment body is required", "body"))
	service.On("List", mock.Anything, user, taskID).
		Return([]models.Comment{{TaskID: taskID, Body: "Looks good"}}, nil)

	w := doRequest(router, http.MethodPost, path, map[string]string{"body": "Looks good"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, http.MethodPost, path, map[string]string{"body": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["comments"], 1)

	service.AssertExpectations(t)
}
