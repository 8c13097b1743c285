package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

type fixedAuthenticator struct {
	user models.User
}

func (a fixedAuthenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token != testToken {
		return nil, services.Unauthorized("Invalid or expired token")
	}
	user := a.user
	return &user, nil
}

func testUser(role models.GlobalRole) models.User {
	return models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    string(role) + "@example.com",
		Name:     string(role),
		Role:     role,
		IsActive: true,
	}
}

func newRouter(user models.User) (*gin.Engine, *gin.RouterGroup) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api", middleware.Authenticate(fixedAuthenticator{user: user}))
	return router, api
}

func doRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
