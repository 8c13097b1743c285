package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	ActivityTaskCreated        = "task.created"
	ActivityTitleChanged       = "task.title_changed"
	ActivityDescriptionChanged = "task.description_changed"
	ActivityStatusChanged      = "task.status_changed"
	ActivityPriorityChanged    = "task.priority_changed"
	ActivityDueDateChanged     = "task.due_date_changed"
	ActivityListChanged        = "task.list_changed"
	ActivityStoryPointsChanged = "task.story_points_changed"
	ActivityAmountChanged      = "task.amount_changed"
	ActivityLegacyTagsChanged  = "task.legacy_tags_changed"
	ActivityTagsChanged        = "task.tags_changed"
	ActivityAssigneesChanged   = "task.assignees_changed"
	ActivityCommentAdded       = "task.comment_added"
)

const NotificationTaskAssigned = "task_assigned"

type TaskActivity struct {
	ID      uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID  uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	ActorID uuid.UUID `json:"actor_id" gorm:"type:uuid;not null"`
	Type    string    `json:"type" gorm:"not null;index"`
	// Metadata is a JSON object, {"from":...,"to":...} for field changes.
	Metadata  string    `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *TaskActivity) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&a.ID)
}

type Notification struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Type      string    `json:"type" gorm:"not null"`
	Title     string    `json:"title" gorm:"not null"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&n.ID)
}

func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&ProjectMember{},
		&TaskList{},
		&Tag{},
		&Task{},
		&TaskAssignee{},
		&TaskTag{},
		&Comment{},
		&TaskActivity{},
		&Notification{},
	}
}
