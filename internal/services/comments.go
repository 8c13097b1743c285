package services

import (
	"context"
	"encoding/json"
	"strings"

	"taskboard/internal/events"
	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxCommentLength = 10000

type CommentService struct {
	db    *gorm.DB
	tasks *TaskService
	sink  events.Sink
}

func NewCommentService(db *gorm.DB, tasks *TaskService, sink events.Sink) *CommentService {
	return &CommentService{db: db, tasks: tasks, sink: sink}
}

func (s *CommentService) List(ctx context.Context, actor models.User, taskID uuid.UUID) ([]models.Comment, error) {
	if _, err := s.tasks.authorizeRead(ctx, actor, taskID); err != nil {
		return nil, err
	}

	comments := []models.Comment{}
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, Internal("failed to load comments", err)
	}
	return comments, nil
}

func (s *CommentService) Create(ctx context.Context, actor models.User, taskID uuid.UUID, body string) (*models.Comment, error) {
	task, err := s.tasks.authorizeRead(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, Validation("Comment body is required", "body")
	}
	if len(body) > maxCommentLength {
		return nil, Validation("Comment body is too long", "body")
	}

	comment := models.Comment{TaskID: task.ID, AuthorID: actor.ID, Body: body}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&comment).Error; err != nil {
		return nil, Internal("failed to create comment", err)
	}
	comment.Author = actor

	meta, _ := json.Marshal(map[string]interface{}{"commentId": comment.ID})
	s.sink.RecordActivities(ctx, []models.TaskActivity{{
		TaskID:   task.ID,
		ActorID:  actor.ID,
		Type:     models.ActivityCommentAdded,
		Metadata: string(meta),
	}})
	s.tasks.invalidate(ctx, task.ID)

	return &comment, nil
}
