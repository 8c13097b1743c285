package server

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/monitoring"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Config      *config.Config
	Logger      *slog.Logger
	Services    *Services
	Metrics     *monitoring.Metrics
	Health      *monitoring.HealthChecker
	RateLimiter *middleware.IPRateLimiter
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithLog(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(deps.Metrics.Middleware())
	if len(deps.Config.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(corsConfig(deps.Config.CORS)))
	}

	router.GET("/health", deps.Health.HealthHandler(deps.Metrics))
	router.GET("/health/ready", deps.Health.ReadinessHandler())
	router.GET("/health/live", monitoring.LivenessHandler(deps.Metrics))
	router.GET("/metrics", deps.Metrics.Handler())

	api := router.Group("/api")
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimit(deps.RateLimiter))
	}

	authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Logger)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("", middleware.Authenticate(deps.Services.Auth))

	taskHandler := handlers.NewTaskHandler(deps.Services.Tasks, deps.Logger)
	commentHandler := handlers.NewCommentHandler(deps.Services.Comments, deps.Logger)
	tasks := protected.Group("/tasks")
	{
		tasks.GET("", taskHandler.GetTasks)
		tasks.POST("", taskHandler.CreateTask)
		tasks.GET("/:id", taskHandler.GetTask)
		tasks.PUT("/:id", taskHandler.UpdateTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
		tasks.GET("/:id/activity", taskHandler.GetActivity)
		tasks.GET("/:id/comments", commentHandler.GetComments)
		tasks.POST("/:id/comments", commentHandler.CreateComment)
	}

	projectHandler := handlers.NewProjectHandler(deps.Services.Projects, deps.Logger)
	projects := protected.Group("/projects")
	{
		projects.GET("", projectHandler.GetProjects)
		projects.POST("", middleware.RequireRole(models.RoleManager), projectHandler.CreateProject)
		projects.PATCH("", projectHandler.BulkUpdate)
		projects.GET("/:id", projectHandler.GetProject)
	}

	notificationHandler := handlers.NewNotificationHandler(deps.Services.Notifications, deps.Logger)
	protected.GET("/notifications", notificationHandler.GetNotifications)
	protected.POST("/notifications/read", notificationHandler.MarkRead)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return router
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Server-Timing", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(cfg.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.AllowedOrigins
	c.AllowCredentials = true
	return c
}
