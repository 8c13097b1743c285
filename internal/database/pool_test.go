package database

import (
	"testing"
	"time"

	"taskboard/internal/models"

	"gorm.io/gorm/logger"
)

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig()

	if config.MaxOpenConns != 25 {
		t.Errorf("Expected MaxOpenConns to be 25, got %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns != 10 {
		t.Errorf("Expected MaxIdleConns to be 10, got %d", config.MaxIdleConns)
	}

	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime to be 1 hour, got %v", config.ConnMaxLifetime)
	}

	if config.LogLevel != logger.Warn {
		t.Errorf("Expected LogLevel to be Warn, got %v", config.LogLevel)
	}
}

func TestNewDatabasePool_WithNilConfig(t *testing.T) {
	_, err := NewDatabasePool(nil)

	if err == nil {
		t.Error("Expected error due to empty DSN, got nil")
	}
}

func TestPoolConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config *PoolConfig
	}{
		{
			name:   "Empty DSN",
			config: &PoolConfig{Driver: "sqlite", DSN: ""},
		},
		{
			name:   "Negative connections",
			config: &PoolConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: -1},
		},
		{
			name:   "Negative lifetime",
			config: &PoolConfig{Driver: "sqlite", DSN: ":memory:", ConnMaxLifetime: -time.Hour},
		},
		{
			name:   "Unknown driver",
			config: &PoolConfig{Driver: "oracle", DSN: "whatever"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDatabasePool(tt.config); err == nil {
				t.Error("Expected error but pool creation succeeded")
			}
		})
	}
}

func TestNewDatabasePool_SQLiteMigrate(t *testing.T) {
	pool, err := NewDatabasePool(&PoolConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	if err != nil {
		t.Fatalf("Expected sqlite pool, got error: %v", err)
	}
	defer pool.Close()

	if err := pool.Health(); err != nil {
		t.Errorf("Expected healthy pool, got: %v", err)
	}

	if err := pool.Migrate(); err != nil {
		t.Fatalf("Expected migration to succeed, got: %v", err)
	}

	for _, model := range models.AllModels() {
		if !pool.DB.Migrator().HasTable(model) {
			t.Errorf("Expected table for %T", model)
		}
	}

	stats := pool.Stats()
	if stats["max_open_connections"] != 1 {
		t.Errorf("Expected max_open_connections 1, got %v", stats["max_open_connections"])
	}
}

func TestDatabasePool_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if _, hasError := pool.Stats()["error"]; !hasError {
		t.Error("Expected error in stats when DB is nil")
	}

	if err := pool.Health(); err == nil {
		t.Error("Expected error when checking health with nil DB")
	}

	if err := pool.Migrate(); err == nil {
		t.Error("Expected error when migrating with nil DB")
	}

	if err := pool.Close(); err != nil {
		t.Errorf("Expected no error when closing nil DB, got: %v", err)
	}
}

func TestDatabasePool_Transactions(t *testing.T) {
	pool, err := NewDatabasePool(&PoolConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	if err != nil {
		t.Fatalf("Expected sqlite pool, got error: %v", err)
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		t.Fatalf("Expected migration to succeed, got: %v", err)
	}

	tx := pool.DB.Begin()
	if err := tx.Create(&models.User{Email: "rollback@example.com", PasswordHash: "x", Role: models.RoleMember}).Error; err != nil {
		t.Errorf("Failed to insert in transaction: %v", err)
	}
	tx.Rollback()

	var count int64
	pool.DB.Model(&models.User{}).Where("email = ?", "rollback@example.com").Count(&count)
	if count != 0 {
		t.Errorf("Expected 0 users after rollback, got %d", count)
	}

	tx = pool.DB.Begin()
	if err := tx.Create(&models.User{Email: "commit@example.com", PasswordHash: "x", Role: models.RoleMember}).Error; err != nil {
		t.Errorf("Failed to insert in transaction: %v", err)
	}
	tx.Commit()

	pool.DB.Model(&models.User{}).Where("email = ?", "commit@example.com").Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 user after commit, got %d", count)
	}

	duplicate := models.User{Email: "commit@example.com", PasswordHash: "x", Role: models.RoleMember}
	if err := pool.DB.Create(&duplicate).Error; err == nil {
		t.Error("Expected unique email constraint to reject duplicate")
	}
}
