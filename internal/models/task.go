package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusArchived   TaskStatus = "archived"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID   uuid.UUID    `json:"project_id" gorm:"type:uuid;not null;index"`
	ListID      *uuid.UUID   `json:"list_id" gorm:"type:uuid;index"`
	ParentID    *uuid.UUID   `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	CreatorID   uuid.UUID    `json:"creator_id" gorm:"type:uuid"`
	Title       string       `json:"title" gorm:"not null"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status" gorm:"not null;default:'todo';index"`
	Priority    TaskPriority `json:"priority" gorm:"not null;default:'medium'"`
	DueDate     *time.Time   `json:"due_date"`
	StoryPoints *int         `json:"story_points"`
	AmountCents *int64       `json:"amount_cents"`
	// LegacyTags holds a JSON array of free-form labels kept for older clients.
	LegacyTags string    `json:"legacy_tags" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Project   Project        `json:"project" gorm:"foreignKey:ProjectID"`
	List      *TaskList      `json:"list,omitempty" gorm:"foreignKey:ListID"`
	Assignees []TaskAssignee `json:"assignees" gorm:"foreignKey:TaskID"`
	Tags      []TaskTag      `json:"tags" gorm:"foreignKey:TaskID"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&t.ID)
}

func (t *Task) HasAssignee(userID uuid.UUID) bool {
	for _, a := range t.Assignees {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// AssigneeIDs returns the assignee ids as sorted strings.
func (t *Task) AssigneeIDs() []string {
	ids := make([]string, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		ids = append(ids, a.UserID.String())
	}
	sort.Strings(ids)
	return ids
}

// TagIDs returns the attached tag ids as sorted strings.
func (t *Task) TagIDs() []string {
	ids := make([]string, 0, len(t.Tags))
	for _, tt := range t.Tags {
		ids = append(ids, tt.TagID.String())
	}
	sort.Strings(ids)
	return ids
}

// DecodeLegacyTags parses LegacyTags, treating empty or malformed values
// as no tags.
func (t *Task) DecodeLegacyTags() []string {
	if t.LegacyTags == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(t.LegacyTags), &tags); err != nil {
		return []string{}
	}
	return tags
}

type TaskAssignee struct {
	TaskID    uuid.UUID `json:"task_id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}

type TaskTag struct {
	TaskID uuid.UUID `json:"task_id" gorm:"type:uuid;primaryKey"`
	TagID  uuid.UUID `json:"tag_id" gorm:"type:uuid;primaryKey;index"`

	Tag Tag `json:"tag" gorm:"foreignKey:TagID"`
}

type Comment struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID    uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	AuthorID  uuid.UUID `json:"author_id" gorm:"type:uuid;not null"`
	Body      string    `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`

	Author User `json:"author" gorm:"foreignKey:AuthorID"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&c.ID)
}
