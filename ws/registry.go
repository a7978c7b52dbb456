package ws

import (
	"hash/fnv"
	"sync"

	"matchly_backend/internal/logger"
)

// Session - одно живое транспортное соединение.
// Send не блокируется: переполненный буфер означает мертвого клиента.
type Session interface {
	ID() string
	UserID() string
	Send(data []byte) error
	Close()
}

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]Session
}

// Registry - реестр соединений userID -> множество сессий.
// Шардирован по userID, чтобы регистрация одного пользователя
// не блокировала доставку другим.
type Registry struct {
	shards [shardCount]*shard

	mu       sync.RWMutex
	onOnline func(userID string)
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]Session)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// OnUserOnline задает колбэк перехода offline -> online.
// Единственная связь реестра с доставкой: по нему дренируется fallback-очередь.
func (r *Registry) OnUserOnline(fn func(userID string)) {
	r.mu.Lock()
	r.onOnline = fn
	r.mu.Unlock()
}

func (r *Registry) onlineFn() func(string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onOnline
}

// Register добавляет сессию в множество пользователя
func (r *Registry) Register(s Session) {
	userID := s.UserID()
	sh := r.shardFor(userID)

	sh.mu.Lock()
	conns := sh.users[userID]
	wasOffline := len(conns) == 0
	if conns == nil {
		conns = make(map[string]Session)
		sh.users[userID] = conns
	}
	conns[s.ID()] = s
	total := len(conns)
	sh.mu.Unlock()

	logger.Debug("ws client registered", "user_id", userID, "conn_id", s.ID(), "user_total", total)

	if wasOffline {
		if fn := r.onlineFn(); fn != nil {
			go fn(userID)
		}
	}
}

// Unregister убирает сессию. Идемпотентен: повторный вызов при
// конкурентном закрытии - no-op, не ошибка.
func (r *Registry) Unregister(s Session) {
	userID := s.UserID()
	sh := r.shardFor(userID)

	sh.mu.Lock()
	if conns, ok := sh.users[userID]; ok {
		if _, exists := conns[s.ID()]; exists {
			delete(conns, s.ID())
			// Пустые множества не храним
			if len(conns) == 0 {
				delete(sh.users, userID)
			}
			logger.Debug("ws client unregistered", "user_id", userID, "conn_id", s.ID())
		}
	}
	sh.mu.Unlock()
}

// ConnectionsFor возвращает снапшот живых сессий пользователя.
// Снапшот может устареть сразу после возврата - вызывающий обязан
// терпеть ошибки записи.
func (r *Registry) ConnectionsFor(userID string) []Session {
	sh := r.shardFor(userID)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	conns := sh.users[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Session, 0, len(conns))
	for _, s := range conns {
		out = append(out, s)
	}
	return out
}

// IsOnline - есть ли хоть одна живая сессия
func (r *Registry) IsOnline(userID string) bool {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.users[userID]) > 0
}

// CountFor - число сессий пользователя (для лимита на подключения)
func (r *Registry) CountFor(userID string) int {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.users[userID])
}

// CloseAll закрывает все сессии и очищает реестр. Вызывается на shutdown.
func (r *Registry) CloseAll() {
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, conns := range sh.users {
			for _, s := range conns {
				s.Close()
			}
		}
		sh.users = make(map[string]map[string]Session)
		sh.mu.Unlock()
	}
}
