package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

type ProjectRole string

const (
	ProjectRoleOwner   ProjectRole = "owner"
	ProjectRoleManager ProjectRole = "manager"
	ProjectRoleMember  ProjectRole = "member"
)

func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectRoleOwner, ProjectRoleManager, ProjectRoleMember:
		return true
	}
	return false
}

const DefaultListName = "Untitled list"

type Project struct {
	ID          uuid.UUID     `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string        `json:"name" gorm:"not null"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status" gorm:"not null;default:'active';index"`
	CreatorID   uuid.UUID     `json:"creator_id" gorm:"type:uuid;not null;index"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Members []ProjectMember `json:"members,omitempty" gorm:"foreignKey:ProjectID"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&p.ID)
}

// MemberFor returns the membership row of userID, or nil when the user
// does not belong to the project. Members must be preloaded.
func (p *Project) MemberFor(userID uuid.UUID) *ProjectMember {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}

type ProjectMember struct {
	ProjectID uuid.UUID   `json:"project_id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID   `json:"user_id" gorm:"type:uuid;primaryKey;index"`
	Role      ProjectRole `json:"role" gorm:"not null;default:'member'"`
	CreatedAt time.Time   `json:"created_at"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}

type TaskList struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;not null;uniqueIndex:idx_task_lists_project_name"`
	Name      string    `json:"name" gorm:"not null;uniqueIndex:idx_task_lists_project_name"`
	Position  int       `json:"position" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *TaskList) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&l.ID)
}

type Tag struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&t.ID)
}
