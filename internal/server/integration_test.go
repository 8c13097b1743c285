package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/events"
	"taskboard/internal/logging"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/monitoring"
	"taskboard/internal/server"
	"taskboard/internal/services"
	"taskboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type IntegrationTestSuite struct {
	suite.Suite
	db       *gorm.DB
	services *server.Services
	router   http.Handler
	ctx      context.Context
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Auth: config.AuthConfig{
			JWTSecret:      "integration-secret",
			Issuer:         "taskboard-test",
			AccessTokenTTL: time.Hour,
			BCryptCost:     bcrypt.MinCost,
		},
		Cache: config.CacheConfig{Enabled: false},
		CORS:  config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.ctx = context.Background()
	s.db = testutil.NewDB(s.T())

	logger := logging.Discard()
	cfg := testConfig()
	metrics := monitoring.NewMetrics()
	sink := events.NewDirectSink(s.db, logger, metrics)
	s.services = server.NewServices(s.db, sink, nil, cfg, logger)

	health := monitoring.NewHealthChecker(time.Second)
	health.Register("database", func(ctx context.Context) error {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	s.router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Logger:      logger,
		Services:    s.services,
		Metrics:     metrics,
		Health:      health,
		RateLimiter: middleware.NewIPRateLimiter(6000, 100, time.Minute),
	})
}

func (s *IntegrationTestSuite) createUser(email string, role models.GlobalRole) models.User {
	user, err := s.services.Users.Create(s.ctx, services.CreateUserInput{
		Email:    email,
		Name:     email,
		Password: "password123",
		Role:     string(role),
	})
	s.Require().NoError(err)
	return *user
}

func (s *IntegrationTestSuite) login(email string) string {
	w := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "password123"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return s.decode(w)["access_token"].(string)
}

func (s *IntegrationTestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *IntegrationTestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *IntegrationTestSuite) TestTaskLifecycle() {
	s.createUser("lead@example.com", models.RoleManager)
	token := s.login("lead@example.com")

	w := s.do(http.MethodPost, "/api/projects", token, map[string]string{"name": "Launch"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	projectID := s.decode(w)["project"].(map[string]interface{})["id"].(string)

	w = s.do(http.MethodPost, "/api/tasks", token, map[string]interface{}{"title": "Write brief", "projectId": projectID})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	taskID := s.decode(w)["task"].(map[string]interface{})["id"].(string)

	w = s.do(http.MethodGet, "/api/tasks/"+taskID+"?perf=1&view=light", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get("Server-Timing"))
	s.Equal("Write brief", s.decode(w)["title"])

	w = s.do(http.MethodPut, "/api/tasks/"+taskID, token, map[string]string{"status": "in_progress"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("in_progress", s.decode(w)["status"])

	w = s.do(http.MethodGet, "/api/tasks/"+taskID+"/activity", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	activities := s.decode(w)["activities"].([]interface{})
	s.Require().Len(activities, 2)
	types := []interface{}{
		activities[0].(map[string]interface{})["type"],
		activities[1].(map[string]interface{})["type"],
	}
	s.ElementsMatch([]interface{}{models.ActivityTaskCreated, models.ActivityStatusChanged}, types)

	w = s.do(http.MethodGet, "/api/tasks?scope=projects", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(float64(1), s.decode(w)["total"])

	w = s.do(http.MethodDelete, "/api/tasks/"+taskID, token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"success":true}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/tasks/"+taskID, token, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *IntegrationTestSuite) TestBulkProjectsAcrossOwners() {
	lead := s.createUser("lead@example.com", models.RoleManager)
	other := s.createUser("other@example.com", models.RoleManager)
	own := testutil.CreateProject(s.T(), s.db, "Mine", lead)
	testutil.AddMember(s.T(), s.db, own, lead, models.ProjectRoleOwner)
	theirs := testutil.CreateProject(s.T(), s.db, "Theirs", other)
	testutil.AddMember(s.T(), s.db, theirs, other, models.ProjectRoleOwner)

	token := s.login("lead@example.com")

	w := s.do(http.MethodPatch, "/api/projects", token, map[string]interface{}{
		"ids":    []string{own.ID.String(), theirs.ID.String()},
		"action": "delete",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	body := s.decode(w)
	s.Equal(float64(1), body["processed"])
	s.Equal([]interface{}{theirs.ID.String()}, body["unauthorizedIds"])

	w = s.do(http.MethodPatch, "/api/projects", token, map[string]interface{}{
		"ids":    []string{theirs.ID.String()},
		"action": "delete",
	})
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal(float64(0), s.decode(w)["processed"])
}

func (s *IntegrationTestSuite) TestProjectCreationNeedsManager() {
	s.createUser("member@example.com", models.RoleMember)
	s.createUser("lead@example.com", models.RoleManager)

	w := s.do(http.MethodPost, "/api/projects", s.login("member@example.com"), map[string]string{"name": "Side"})
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("insufficient_role", s.decode(w)["error"])

	w = s.do(http.MethodPost, "/api/projects", s.login("lead@example.com"), map[string]string{"name": "Side"})
	s.Equal(http.StatusCreated, w.Code, w.Body.String())
}

func (s *IntegrationTestSuite) TestNotificationsInbox() {
	lead := s.createUser("lead@example.com", models.RoleManager)
	member := s.createUser("member@example.com", models.RoleMember)
	project := testutil.CreateProject(s.T(), s.db, "Launch", lead)
	testutil.AddMember(s.T(), s.db, project, lead, models.ProjectRoleOwner)
	testutil.AddMember(s.T(), s.db, project, member, models.ProjectRoleMember)
	task := testutil.CreateTask(s.T(), s.db, project, "Write brief")

	leadToken := s.login("lead@example.com")
	w := s.do(http.MethodPut, "/api/tasks/"+task.ID.String(), leadToken, map[string]interface{}{
		"assigneeIds": []string{member.ID.String()},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	memberToken := s.login("member@example.com")
	w = s.do(http.MethodGet, "/api/notifications?unread=true", memberToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(float64(1), s.decode(w)["unread"])

	w = s.do(http.MethodPost, "/api/notifications/read", memberToken, nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"updated":1}`, w.Body.String())
}

func (s *IntegrationTestSuite) TestAuthBoundary() {
	w := s.do(http.MethodGet, "/api/tasks", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/tasks", "not-a-jwt", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	s.createUser("lead@example.com", models.RoleManager)
	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "lead@example.com", "password": "wrong-password"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *IntegrationTestSuite) TestOperationalEndpoints() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("healthy", s.decode(w)["status"])

	w = s.do(http.MethodGet, "/health/ready", "", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/health/live", "", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(s.decode(w), "application")

	w = s.do(http.MethodGet, "/nope", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *IntegrationTestSuite) TestCORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
