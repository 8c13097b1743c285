// Package events delivers task activity records and notifications after the
// primary write has committed. Delivery never fails the caller.
package events

import (
	"context"
	"log/slog"

	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KindActivity     = "activity"
	KindNotification = "notification"
)

type Sink interface {
	RecordActivities(ctx context.Context, activities []models.TaskActivity)
	Notify(ctx context.Context, notifications []models.Notification)
}

// FailureRecorder counts side effects that could not be delivered.
type FailureRecorder interface {
	RecordSideEffectFailure(kind string)
}

type DirectSink struct {
	db       *gorm.DB
	logger   *slog.Logger
	failures FailureRecorder
}

func NewDirectSink(db *gorm.DB, logger *slog.Logger, failures FailureRecorder) *DirectSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectSink{db: db, logger: logger, failures: failures}
}

func (s *DirectSink) RecordActivities(ctx context.Context, activities []models.TaskActivity) {
	if len(activities) == 0 {
		return
	}
	if err := InsertActivities(ctx, s.db, activities); err != nil {
		s.fail(ctx, KindActivity, err, "task_id", activities[0].TaskID, "count", len(activities))
	}
}

func (s *DirectSink) Notify(ctx context.Context, notifications []models.Notification) {
	if len(notifications) == 0 {
		return
	}
	if err := InsertNotifications(ctx, s.db, notifications); err != nil {
		s.fail(ctx, KindNotification, err, "count", len(notifications))
	}
}

func (s *DirectSink) fail(ctx context.Context, kind string, err error, attrs ...any) {
	s.logger.WarnContext(ctx, "side effect write failed",
		append([]any{"kind", kind, "error", err}, attrs...)...)
	if s.failures != nil {
		s.failures.RecordSideEffectFailure(kind)
	}
}

// InsertActivities writes activity rows, skipping ids already stored so a
// redelivered batch is harmless.
func InsertActivities(ctx context.Context, db *gorm.DB, activities []models.TaskActivity) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&activities).Error
}

func InsertNotifications(ctx context.Context, db *gorm.DB, notifications []models.Notification) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&notifications).Error
}

func assignIDs[T any](rows []T, id func(*T) *uuid.UUID) error {
	for i := range rows {
		p := id(&rows[i])
		if *p != uuid.Nil {
			continue
		}
		generated, err := uuid.NewV4()
		if err != nil {
			return err
		}
		*p = generated
	}
	return nil
}
