package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"matchly_backend/internal/logger"
	"matchly_backend/internal/models"
)

type pendingRepo interface {
	Create(p *models.PendingDelivery) error
	FindByUser(userID string) ([]models.PendingDelivery, error)
	Delete(id string) error
	IncrementAttempts(id string) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type sender interface {
	Send(ctx context.Context, n *Notification) (Outcome, error)
}

type recordCleaner interface {
	CleanOlderThan(days int) (int64, error)
}

// FallbackQueue - durable очередь недоставленных уведомлений.
// Наполняется диспетчером для оффлайн-получателей, дренируется при
// следующем подключении пользователя.
type FallbackQueue struct {
	repo          pendingRepo
	sender        sender
	records       recordCleaner
	retention     time.Duration
	sweepInterval time.Duration
}

func NewFallbackQueue(repo pendingRepo, retention, sweepInterval time.Duration) *FallbackQueue {
	return &FallbackQueue{
		repo:          repo,
		retention:     retention,
		sweepInterval: sweepInterval,
	}
}

// SetSender связывает очередь с диспетчером. Вызывается координатором
// после конструирования обоих (цикл dispatcher <-> queue).
func (q *FallbackQueue) SetSender(s sender) {
	q.sender = s
}

// SetRecordCleaner подключает чистку журнала идемпотентности к тому же
// retention sweep
func (q *FallbackQueue) SetRecordCleaner(rc recordCleaner) {
	q.records = rc
}

// Enqueue сохраняет PendingDelivery. Повторный вызов с тем же
// idempotency key - no-op (конфликт по уникальному индексу).
func (q *FallbackQueue) Enqueue(ctx context.Context, n *Notification) error {
	var payload datatypes.JSON
	if n.Payload != nil {
		b, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal notification payload: %w", err)
		}
		payload = datatypes.JSON(b)
	}

	record := &models.PendingDelivery{
		UserID:         n.UserID,
		IdempotencyKey: n.IdempotencyKey,
		Kind:           string(n.Kind),
		Payload:        payload,
		NotifiedAt:     n.CreatedAt,
		EnqueuedAt:     time.Now().UTC(),
	}

	return q.repo.Create(record)
}

// Drain доставляет накопленное пользователю, перешедшему в online.
// FIFO по времени постановки; запись удаляется только после живой
// доставки. Ошибка одной записи не останавливает остальные.
func (q *FallbackQueue) Drain(ctx context.Context, userID string) error {
	records, err := q.repo.FindByUser(userID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	logger.CtxInfo(ctx, "draining pending deliveries", "user_id", userID, "count", len(records))

	for _, rec := range records {
		n, err := q.toNotification(&rec)
		if err != nil {
			logger.CtxError(ctx, "corrupt pending delivery, skipping", "record_id", rec.ID, "error", err.Error())
			continue
		}

		if err := q.repo.IncrementAttempts(rec.ID); err != nil {
			logger.CtxWarn(ctx, "failed to bump attempt counter", "record_id", rec.ID, "error", err.Error())
		}

		outcome, err := q.sender.Send(ctx, n)
		if err != nil {
			// Запись остается, доедет на следующем online-переходе
			logger.CtxError(ctx, "drain delivery failed", "record_id", rec.ID, "attempts", rec.Attempts+1, "error", err.Error())
			continue
		}

		if outcome == DeliveredLive {
			if err := q.repo.Delete(rec.ID); err != nil {
				logger.CtxError(ctx, "failed to delete delivered record", "record_id", rec.ID, "error", err.Error())
			}
			continue
		}

		// Пользователь успел снова уйти в offline. Send уже сделал
		// идемпотентный Enqueue (no-op на том же ключе) - выходим.
		logger.CtxInfo(ctx, "user went offline mid-drain", "user_id", userID)
		return nil
	}

	return nil
}

// Run - периодическая чистка устаревших записей. Свежесть важнее
// полноты: старые уведомления молча выбрасываются, а не доставляются.
func (q *FallbackQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("fallback retention sweep stopped")
			return
		case <-ticker.C:
			q.Sweep()
		}
	}
}

// Sweep удаляет записи старше retention-окна независимо от статуса
func (q *FallbackQueue) Sweep() {
	cutoff := time.Now().UTC().Add(-q.retention)
	removed, err := q.repo.DeleteOlderThan(cutoff)
	if err != nil {
		logger.Error("fallback retention sweep failed", "error", err.Error())
		return
	}
	if removed > 0 {
		logger.Info("dropped stale pending deliveries", "count", removed, "cutoff", cutoff)
	}

	if q.records != nil {
		// Журнал храним в разы дольше окна доставки: любой due-цикл
		// обязан попадать внутрь этого горизонта
		days := int(q.retention.Hours()/24) * 6
		if _, err := q.records.CleanOlderThan(days); err != nil {
			logger.Error("notification record cleanup failed", "error", err.Error())
		}
	}
}

func (q *FallbackQueue) toNotification(rec *models.PendingDelivery) (*Notification, error) {
	var payload map[string]any
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending payload: %w", err)
		}
	}

	return &Notification{
		Kind:           Kind(rec.Kind),
		UserID:         rec.UserID,
		Payload:        payload,
		IdempotencyKey: rec.IdempotencyKey,
		CreatedAt:      rec.NotifiedAt,
	}, nil
}
