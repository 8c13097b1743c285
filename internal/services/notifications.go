package services

import (
	"context"

	"taskboard/internal/models"

	"gorm.io/gorm"
)

type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

// List returns the actor's newest notifications with the unread total.
func (s *NotificationService) List(ctx context.Context, actor models.User, unreadOnly bool, limit int) (*NotificationPage, error) {
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	db := s.db.WithContext(ctx)
	q := db.Where("user_id = ?", actor.ID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	page := &NotificationPage{Notifications: []models.Notification{}}
	if err := q.Order("created_at DESC").Limit(limit).Find(&page.Notifications).Error; err != nil {
		return nil, Internal("failed to load notifications", err)
	}
	if err := db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.ID, false).
		Count(&page.Unread).Error; err != nil {
		return nil, Internal("failed to count notifications", err)
	}
	return page, nil
}

// MarkRead flags the given notifications, or all of them when ids is empty,
// as read. Only the actor's own rows are touched.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.User, ids []string) (int64, error) {
	parsed, err := parseIDs(ids, "ids")
	if err != nil {
		return 0, err
	}

	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", actor.ID, false)
	if len(parsed) > 0 {
		q = q.Where("id IN ?", parsed)
	}
	result := q.Update("is_read", true)
	if result.Error != nil {
		return 0, Internal("failed to mark notifications read", result.Error)
	}
	return result.RowsAffected, nil
}
