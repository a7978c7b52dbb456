package notify

import (
	"context"
	"sync"
	"time"

	"matchly_backend/internal/logger"
	"matchly_backend/pkg/apperrors"
	"matchly_backend/ws"
)

// Outcome - результат доставки. Оффлайн-получатель - ожидаемый случай,
// не ошибка.
type Outcome string

const (
	DeliveredLive Outcome = "delivered-live"
	QueuedOffline Outcome = "queued-offline"
)

type connRegistry interface {
	ConnectionsFor(userID string) []ws.Session
	Unregister(s ws.Session)
}

type offlineQueue interface {
	Enqueue(ctx context.Context, n *Notification) error
}

// Dispatcher - единственная точка входа доставки. Через нее ходят и
// обработчики маршрутов, и планировщики, поэтому политика
// live/fallback живет в одном месте.
type Dispatcher struct {
	registry connRegistry
	queue    offlineQueue

	// mu связывает проверку closed и учет in-flight: Add не может
	// проскочить после того, как Close вернулся и WaitIdle считает
	// счетчик нулевым.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewDispatcher(registry connRegistry, queue offlineQueue) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		queue:    queue,
	}
}

// Send доставляет уведомление во все живые соединения получателя,
// либо кладет его в durable fallback-очередь.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) (Outcome, error) {
	if !d.begin() {
		return "", apperrors.ShuttingDownError()
	}
	defer d.inflight.Done()

	if n == nil {
		return "", apperrors.InvalidNotificationError("nil notification")
	}
	if err := n.Validate(); err != nil {
		logger.CtxError(ctx, "rejected malformed notification", "kind", string(n.Kind), "user_id", n.UserID, "error", err.Error())
		return "", err
	}

	start := time.Now()

	conns := d.registry.ConnectionsFor(n.UserID)
	if len(conns) == 0 {
		if err := d.queue.Enqueue(ctx, n); err != nil {
			return "", err
		}
		logger.DispatchLog(string(n.Kind), n.UserID, string(QueuedOffline), time.Since(start))
		return QueuedOffline, nil
	}

	data, err := n.Marshal()
	if err != nil {
		return "", apperrors.InvalidNotificationError(err.Error())
	}

	delivered := 0
	for _, s := range conns {
		if err := s.Send(data); err != nil {
			// Ошибка записи = неявный дисконнект. Убираем соединение,
			// остальным продолжаем доставлять.
			d.registry.Unregister(s)
			s.Close()
			logger.Warn("ws write failed, connection dropped",
				"user_id", n.UserID, "conn_id", s.ID(), "error", err.Error())
			continue
		}
		delivered++
	}

	if delivered == 0 {
		// Все соединения умерли между снапшотом и записью
		if err := d.queue.Enqueue(ctx, n); err != nil {
			return "", err
		}
		logger.DispatchLog(string(n.Kind), n.UserID, string(QueuedOffline), time.Since(start))
		return QueuedOffline, nil
	}

	logger.DispatchLog(string(n.Kind), n.UserID, string(DeliveredLive), time.Since(start))
	return DeliveredLive, nil
}

// begin регистрирует отправку. false - диспетчер уже закрыт.
func (d *Dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.inflight.Add(1)
	return true
}

// Close запрещает новые отправки. Уже начатые Send доезжают сами.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// WaitIdle ждет завершения in-flight отправок не дольше grace.
// false = дедлайн истек, кто-то еще висит на записи.
func (d *Dispatcher) WaitIdle(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
