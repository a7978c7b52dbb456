package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"matchly_backend/internal/config"
	"matchly_backend/internal/models"
)

var gormDB *gorm.DB

// ConnectGorm инициализирует GORM с DSN из конфига
func ConnectGorm() (*gorm.DB, error) {
	if gormDB != nil {
		return gormDB, nil
	}

	cfg := config.GetConfig()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to GORM: %w", err)
	}

	gormDB = db
	return db, nil
}

// AutoMigrate выполняет миграцию таблиц, которыми владеет ядро доставки.
// Остальная схема платформы (users, matches, user_subscriptions) -
// внешний коллаборатор, ядро ее только читает.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.PendingDelivery{},
		&models.NotificationRecord{},
	)
}
