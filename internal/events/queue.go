package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"taskboard/internal/models"
	"taskboard/internal/worker"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, jobType worker.JobType, payload interface{}) error
}

// QueueSink is the outbox: each batch becomes one job on the side effect
// queue. Batches that cannot be enqueued are written directly instead.
type QueueSink struct {
	queue     Enqueuer
	queueName string
	fallback  *DirectSink
	logger    *slog.Logger
}

func NewQueueSink(queue Enqueuer, queueName string, fallback *DirectSink, logger *slog.Logger) *QueueSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueSink{queue: queue, queueName: queueName, fallback: fallback, logger: logger}
}

func (s *QueueSink) RecordActivities(ctx context.Context, activities []models.TaskActivity) {
	if len(activities) == 0 {
		return
	}
	// ids and timestamps are fixed before enqueue so retries insert the same rows
	if err := assignIDs(activities, func(a *models.TaskActivity) *uuid.UUID { return &a.ID }); err != nil {
		s.fallback.RecordActivities(ctx, activities)
		return
	}
	now := time.Now()
	for i := range activities {
		if activities[i].CreatedAt.IsZero() {
			activities[i].CreatedAt = now
		}
	}
	if err := s.queue.Enqueue(ctx, s.queueName, worker.JobRecordActivities, activities); err != nil {
		s.logger.Warn("outbox enqueue failed, writing directly", "kind", KindActivity, "error", err)
		s.fallback.RecordActivities(ctx, activities)
	}
}

func (s *QueueSink) Notify(ctx context.Context, notifications []models.Notification) {
	if len(notifications) == 0 {
		return
	}
	if err := assignIDs(notifications, func(n *models.Notification) *uuid.UUID { return &n.ID }); err != nil {
		s.fallback.Notify(ctx, notifications)
		return
	}
	now := time.Now()
	for i := range notifications {
		if notifications[i].CreatedAt.IsZero() {
			notifications[i].CreatedAt = now
		}
	}
	if err := s.queue.Enqueue(ctx, s.queueName, worker.JobSendNotifications, notifications); err != nil {
		s.logger.Warn("outbox enqueue failed, writing directly", "kind", KindNotification, "error", err)
		s.fallback.Notify(ctx, notifications)
	}
}

// RegisterHandlers installs the worker handlers that drain the outbox.
// A handler error leaves the job to the worker's retry and dead queue.
func RegisterHandlers(w *worker.Worker, db *gorm.DB) {
	w.RegisterHandler(worker.JobRecordActivities, func(ctx context.Context, job *worker.Job) error {
		var activities []models.TaskActivity
		if err := json.Unmarshal(job.Payload, &activities); err != nil {
			return fmt.Errorf("decode activities: %w", err)
		}
		if len(activities) == 0 {
			return nil
		}
		return InsertActivities(ctx, db, activities)
	})

	w.RegisterHandler(worker.JobSendNotifications, func(ctx context.Context, job *worker.Job) error {
		var notifications []models.Notification
		if err := json.Unmarshal(job.Payload, &notifications); err != nil {
			return fmt.Errorf("decode notifications: %w", err)
		}
		if len(notifications) == 0 {
			return nil
		}
		return InsertNotifications(ctx, db, notifications)
	})
}
