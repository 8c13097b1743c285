package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"taskboard/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type CreateUserInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserService struct {
	db         *gorm.DB
	bcryptCost int
	logger     *slog.Logger
}

func NewUserService(db *gorm.DB, bcryptCost int, logger *slog.Logger) *UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{db: db, bcryptCost: bcryptCost, logger: logger}
}

func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, Validation("A valid email is required", "email")
	}
	if len(input.Password) < minPasswordLength {
		return nil, Validation("Password must be at least 8 characters", "password")
	}

	role := models.GlobalRole(input.Role)
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, Validation("role must be admin, manager or member", "role")
	}

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, Validation("email already exists", "email")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Internal("failed to check email", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, Internal("failed to hash password", err)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	user := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashedPassword),
		Role:         role,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, Internal("failed to create user", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "role", user.Role)
	return &user, nil
}

// EnsureAdmin creates the bootstrap administrator unless a user with that
// email already exists. It reports whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, Internal("failed to check admin user", err)
	}
	if count > 0 {
		return false, nil
	}

	if _, err := s.Create(ctx, CreateUserInput{Email: email, Name: "Administrator", Password: password, Role: string(models.RoleAdmin)}); err != nil {
		return false, err
	}
	return true, nil
}
