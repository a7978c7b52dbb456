package models

import (
	"time"

	"gorm.io/datatypes"
)

// PendingDelivery - уведомление, которое не удалось доставить вживую.
// Хранится до успешной доставки при реконнекте или до истечения retention.
type PendingDelivery struct {
	BaseModel
	UserID         string         `gorm:"not null;index"`
	IdempotencyKey string         `gorm:"not null;uniqueIndex"`
	Kind           string         `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	NotifiedAt     time.Time      `gorm:"not null"` // Время создания исходного уведомления
	EnqueuedAt     time.Time      `gorm:"not null;index"`
	Attempts       int            `gorm:"default:0"`
}

// NotificationRecord - журнал уже отправленных ключей идемпотентности.
// Durable: переживает рестарт процесса, планировщики сверяются с ним
// перед повторной отправкой за тот же цикл.
type NotificationRecord struct {
	BaseModel
	IdempotencyKey string `gorm:"not null;uniqueIndex"`
	UserID         string `gorm:"not null;index"`
	Kind           string `gorm:"not null"`
}
