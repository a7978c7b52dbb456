package notify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"matchly_backend/internal/logger"
)

// State - состояние планировщика
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// DueFunc вычисляет, кому что причитается на данном тике.
// Сама отвечает за построение idempotency key: повтор тика после
// рестарта не должен дать дубликат.
type DueFunc func(ctx context.Context, now time.Time) ([]*Notification, error)

type recordStore interface {
	HasSent(key string) (bool, error)
	RecordSent(userID, kind, key string) error
}

// Scheduler - общий примитив фоновых уведомлений. Общие уведомления и
// subscription-джобы - два экземпляра с разными DueFunc и интервалами.
type Scheduler struct {
	name     string
	interval time.Duration
	jitter   time.Duration
	due      DueFunc
	sender   sender
	records  recordStore

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewScheduler(name string, interval, jitter time.Duration, due DueFunc, snd sender, records recordStore) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		jitter:   jitter,
		due:      due,
		sender:   snd,
		records:  records,
	}
}

func (s *Scheduler) Name() string { return s.name }

// State возвращает текущее состояние
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start переводит Stopped -> Running. Повторный Start - no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopped {
		return
	}

	s.state = Running
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(s.stopCh, s.doneCh)
	logger.Info("scheduler started", "scheduler", s.name, "interval", s.interval.String())
}

// Stop переводит Running -> Stopping, дожидается текущего тика,
// затем Stopped. Stop на остановленном - no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	s.state = Stopping
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	// Текущий тик не отменяем, только будущие
	<-done

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()

	logger.Info("scheduler stopped", "scheduler", s.name)
}

// Trigger запускает тик вне расписания (внешний триггер).
// Работает только в состоянии Running.
func (s *Scheduler) Trigger(ctx context.Context) {
	if s.State() != Running {
		return
	}
	s.tick(ctx, time.Now(), nil)
}

func (s *Scheduler) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(context.Background(), time.Now(), stopCh)
		}
	}
}

// tick - одно исполнение: due-вычисление, дедуп в рамках тика,
// сверка с durable-журналом, отправка. Ошибки отдельных элементов
// логируются и не срывают тик.
func (s *Scheduler) tick(ctx context.Context, now time.Time, stopCh chan struct{}) {
	if s.jitter > 0 && stopCh != nil {
		// Размазываем тики нескольких планировщиков в одном процессе
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(s.jitter)))):
		case <-stopCh:
			return
		}
	}

	items, err := s.due(ctx, now)
	if err != nil {
		// Due-вычисление могло отдать частичный результат вместе с
		// ошибкой (упал один из запросов). Уже посчитанное отправляем,
		// потерянный остаток доедет на следующем тике.
		logger.SchedulerLog(s.name, "due_computation", err)
	}
	if len(items) == 0 {
		return
	}

	// Дедуп внутри одного тика, если due-вычисление вернуло повторы
	seen := make(map[string]struct{}, len(items))
	emitted := 0

	for _, n := range items {
		key := n.IdempotencyKey
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		// Durable-проверка: рестарт между тиками не дает дубликата
		sent, err := s.records.HasSent(key)
		if err != nil {
			logger.SchedulerLog(s.name, "has_sent_check", err)
			continue
		}
		if sent {
			continue
		}

		if _, err := s.sender.Send(ctx, n); err != nil {
			logger.SchedulerLog(s.name, "send", err)
			continue
		}

		if err := s.records.RecordSent(n.UserID, string(n.Kind), key); err != nil {
			logger.SchedulerLog(s.name, "record_sent", err)
		}
		emitted++
	}

	if emitted > 0 {
		logger.Info("scheduler tick completed", "scheduler", s.name, "due", len(items), "emitted", emitted)
	}
}
