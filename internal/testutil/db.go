// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"taskboard/internal/database"
	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database with the full schema.
// A single connection keeps every statement on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.Must(uuid.NewV4()).String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, name string, role models.GlobalRole) models.User {
	t.Helper()
	user := models.User{
		Email:        name + "@example.com",
		Name:         name,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func CreateProject(t testing.TB, db *gorm.DB, name string, creator models.User) models.Project {
	t.Helper()
	project := models.Project{Name: name, Status: models.ProjectActive, CreatorID: creator.ID}
	if err := db.Omit("Members").Create(&project).Error; err != nil {
		t.Fatalf("failed to create project %s: %v", name, err)
	}
	return project
}

func AddMember(t testing.TB, db *gorm.DB, project models.Project, user models.User, role models.ProjectRole) {
	t.Helper()
	member := models.ProjectMember{ProjectID: project.ID, UserID: user.ID, Role: role}
	if err := db.Omit("User").Create(&member).Error; err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
}

func CreateTag(t testing.TB, db *gorm.DB, project models.Project, name string) models.Tag {
	t.Helper()
	tag := models.Tag{ProjectID: project.ID, Name: name}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("failed to create tag: %v", err)
	}
	return tag
}

func CreateTask(t testing.TB, db *gorm.DB, project models.Project, title string, assignees ...models.User) models.Task {
	t.Helper()
	task := models.Task{
		ProjectID: project.ID,
		CreatorID: project.CreatorID,
		Title:     title,
		Status:    models.StatusTodo,
		Priority:  models.PriorityMedium,
	}
	if err := db.Omit("Project", "List", "Assignees", "Tags").Create(&task).Error; err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	for _, a := range assignees {
		row := models.TaskAssignee{TaskID: task.ID, UserID: a.ID}
		if err := db.Omit("User").Create(&row).Error; err != nil {
			t.Fatalf("failed to assign task: %v", err)
		}
	}
	return task
}
