package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchly_backend/internal/models"
)

var ErrPendingDeliveryNotFound = errors.New("pending delivery not found")

type PendingDeliveryRepository interface {
	Create(record *models.PendingDelivery) error
	FindByUser(userID string) ([]models.PendingDelivery, error)
	Delete(id string) error
	IncrementAttempts(id string) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type PendingDeliveryRepositoryImpl struct {
	db *gorm.DB
}

func NewPendingDeliveryRepository(db *gorm.DB) PendingDeliveryRepository {
	return &PendingDeliveryRepositoryImpl{db: db}
}

// Create сохраняет запись. Конфликт по idempotency_key - no-op:
// повторная постановка того же цикла не плодит дубликаты.
func (r *PendingDeliveryRepositoryImpl) Create(record *models.PendingDelivery) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(record).Error
}

// FindByUser возвращает записи пользователя в порядке постановки (FIFO)
func (r *PendingDeliveryRepositoryImpl) FindByUser(userID string) ([]models.PendingDelivery, error) {
	var records []models.PendingDelivery
	err := r.db.
		Where("user_id = ?", userID).
		Order("enqueued_at ASC").
		Find(&records).Error
	return records, err
}

func (r *PendingDeliveryRepositoryImpl) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&models.PendingDelivery{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPendingDeliveryNotFound
	}
	return nil
}

func (r *PendingDeliveryRepositoryImpl) IncrementAttempts(id string) error {
	return r.db.Model(&models.PendingDelivery{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

// DeleteOlderThan удаляет записи старше cutoff (retention sweep)
func (r *PendingDeliveryRepositoryImpl) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.
		Where("enqueued_at < ?", cutoff).
		Delete(&models.PendingDelivery{})
	return result.RowsAffected, result.Error
}
