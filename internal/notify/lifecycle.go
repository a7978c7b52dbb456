package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"matchly_backend/internal/logger"
	"matchly_backend/ws"
)

// Coordinator владеет порядком запуска и остановки ядра доставки.
// Реестр начинает принимать соединения только после старта
// планировщиков; на shutdown порядок обратный.
type Coordinator struct {
	registry   *ws.Registry
	dispatcher *Dispatcher
	queue      *FallbackQueue
	schedulers []*Scheduler
	grace      time.Duration

	accepting    atomic.Bool
	sweepCancel  context.CancelFunc
	shutdownOnce sync.Once
}

func NewCoordinator(registry *ws.Registry, dispatcher *Dispatcher, queue *FallbackQueue, grace time.Duration, schedulers ...*Scheduler) *Coordinator {
	return &Coordinator{
		registry:   registry,
		dispatcher: dispatcher,
		queue:      queue,
		schedulers: schedulers,
		grace:      grace,
	}
}

// Startup связывает компоненты и запускает фоновые циклы.
// Гейт приема соединений открывается последним.
func (c *Coordinator) Startup() {
	// Очередь шлет через диспетчер, дренаж триггерится реестром
	c.queue.SetSender(c.dispatcher)
	c.registry.OnUserOnline(func(userID string) {
		ctx := logger.WithUserID(context.Background(), userID)
		if err := c.queue.Drain(ctx, userID); err != nil {
			logger.CtxWithError(ctx, "fallback drain failed", err)
		}
	})

	sweepCtx, cancel := context.WithCancel(context.Background())
	c.sweepCancel = cancel
	go c.queue.Run(sweepCtx)

	for _, s := range c.schedulers {
		s.Start()
	}

	c.accepting.Store(true)
	logger.Info("notification core started", "schedulers", len(c.schedulers))
}

// Accepting - гейт для транспортного эндпоинта
func (c *Coordinator) Accepting() bool {
	return c.accepting.Load()
}

// Shutdown останавливает ядро: планировщики перестают производить
// работу, in-flight отправки доезжают в пределах grace-периода, затем
// закрываются все соединения. Повторный вызов - no-op.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		logger.Info("notification core shutting down")

		c.accepting.Store(false)

		for _, s := range c.schedulers {
			s.Stop()
		}

		if c.sweepCancel != nil {
			c.sweepCancel()
		}

		c.dispatcher.Close()
		if !c.dispatcher.WaitIdle(c.grace) {
			logger.Warn("in-flight dispatches did not finish within grace period", "grace", c.grace.String())
		}

		c.registry.CloseAll()
		logger.Info("notification core stopped")
	})
}
