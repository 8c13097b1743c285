package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type GlobalRole string

const (
	RoleAdmin   GlobalRole = "admin"
	RoleManager GlobalRole = "manager"
	RoleMember  GlobalRole = "member"
)

func (r GlobalRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Role         GlobalRole `json:"role" gorm:"not null;default:'member'"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&u.ID)
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func ensureID(id *uuid.UUID) error {
	if *id != uuid.Nil {
		return nil
	}
	generated, err := uuid.NewV4()
	if err != nil {
		return err
	}
	*id = generated
	return nil
}
