package ws

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubSession struct {
	id     string
	userID string
	closed atomic.Bool
}

func (s *stubSession) ID() string            { return s.id }
func (s *stubSession) UserID() string        { return s.userID }
func (s *stubSession) Send(data []byte) error { return nil }
func (s *stubSession) Close()                { s.closed.Store(true) }

func TestRegistry_RegisterUnregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s1 := &stubSession{id: "c1", userID: "user-1"}
	s2 := &stubSession{id: "c2", userID: "user-1"}

	assert.False(t, r.IsOnline("user-1"))

	r.Register(s1)
	r.Register(s2)

	assert.True(t, r.IsOnline("user-1"))
	assert.Equal(t, 2, r.CountFor("user-1"))
	assert.Len(t, r.ConnectionsFor("user-1"), 2)

	r.Unregister(s1)
	assert.True(t, r.IsOnline("user-1"))
	assert.Equal(t, 1, r.CountFor("user-1"))

	// Последнее соединение: запись пользователя исчезает целиком
	r.Unregister(s2)
	assert.False(t, r.IsOnline("user-1"))
	assert.Nil(t, r.ConnectionsFor("user-1"))
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	s := &stubSession{id: "c1", userID: "user-1"}

	r.Register(s)
	r.Unregister(s)
	// Конкурентное закрытие: повторный unregister - no-op, не паника
	r.Unregister(s)

	assert.False(t, r.IsOnline("user-1"))
}

func TestRegistry_OnUserOnline(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var calls atomic.Int32
	r.OnUserOnline(func(userID string) {
		if userID == "user-1" {
			calls.Add(1)
		}
	})

	// Первое соединение: переход offline -> online, колбэк один раз
	r.Register(&stubSession{id: "c1", userID: "user-1"})
	// Второе соединение: пользователь уже online, колбэка нет
	r.Register(&stubSession{id: "c2", userID: "user-1"})

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sessions := make([]*stubSession, 0, 10)
	for i := 0; i < 10; i++ {
		s := &stubSession{id: fmt.Sprintf("c%d", i), userID: fmt.Sprintf("user-%d", i%3)}
		sessions = append(sessions, s)
		r.Register(s)
	}

	r.CloseAll()

	for _, s := range sessions {
		assert.True(t, s.closed.Load(), "session %s must be closed", s.id)
		assert.False(t, r.IsOnline(s.userID))
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i%7)
			s := &stubSession{id: fmt.Sprintf("c%d", i), userID: userID}
			r.Register(s)
			r.ConnectionsFor(userID)
			r.IsOnline(userID)
			r.Unregister(s)
		}(i)
	}

	wg.Wait()

	for i := 0; i < 7; i++ {
		assert.False(t, r.IsOnline(fmt.Sprintf("user-%d", i)))
	}
}
