package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchly_backend/internal/models"
)

// NotificationRecordRepository - durable журнал отправленных ключей
// идемпотентности. По нему планировщики решают "уже отправляли?"
// после рестарта процесса.
type NotificationRecordRepository interface {
	HasSent(key string) (bool, error)
	RecordSent(userID, kind, key string) error
	CleanOlderThan(days int) (int64, error)
}

type NotificationRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRecordRepository(db *gorm.DB) NotificationRecordRepository {
	return &NotificationRecordRepositoryImpl{db: db}
}

func (r *NotificationRecordRepositoryImpl) HasSent(key string) (bool, error) {
	var count int64
	err := r.db.Model(&models.NotificationRecord{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *NotificationRecordRepositoryImpl) RecordSent(userID, kind, key string) error {
	record := &models.NotificationRecord{
		UserID:         userID,
		Kind:           kind,
		IdempotencyKey: key,
	}
	// Повторная запись того же ключа - no-op
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(record).Error
}

// CleanOlderThan удаляет старые записи журнала, чтобы он не рос вечно.
// Окно должно быть сильно больше любого цикла due-вычислений.
func (r *NotificationRecordRepositoryImpl) CleanOlderThan(days int) (int64, error) {
	result := r.db.Exec(`
		DELETE FROM notification_records
		WHERE created_at < NOW() - make_interval(days => ?)
	`, days)
	return result.RowsAffected, result.Error
}
