package server

import (
	"log/slog"

	"taskboard/internal/config"
	"taskboard/internal/events"
	"taskboard/internal/services"

	"gorm.io/gorm"
)

// Services groups the application services behind the HTTP API.
type Services struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Tasks         *services.TaskService
	Comments      *services.CommentService
	Projects      *services.ProjectService
	Notifications *services.NotificationService
}

// NewServices wires the services over db. Task detail reads go through
// cache when it is non-nil.
func NewServices(db *gorm.DB, sink events.Sink, cache services.Cache, cfg *config.Config, logger *slog.Logger) *Services {
	var opts []services.TaskOption
	if cache != nil && cfg.Cache.Enabled {
		opts = append(opts, services.WithCache(cache, cfg.Cache.TaskTTL))
	}

	tasks := services.NewTaskService(db, sink, logger.With("component", "tasks"), opts...)
	return &Services{
		Auth:          services.NewAuthService(db, cfg.Auth, logger.With("component", "auth")),
		Users:         services.NewUserService(db, cfg.Auth.BCryptCost, logger.With("component", "users")),
		Tasks:         tasks,
		Comments:      services.NewCommentService(db, tasks, sink),
		Projects:      services.NewProjectService(db, tasks, logger.With("component", "projects")),
		Notifications: services.NewNotificationService(db),
	}
}
