package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"matchly_backend/internal/models"
	"matchly_backend/ws"
)

// Фейки в стиле internal/app/mocks.go: рукописные, без кодогенерации.

type fakeSession struct {
	id     string
	userID string

	mu       sync.Mutex
	messages [][]byte
	failSend bool
	closed   bool
}

func newFakeSession(id, userID string) *fakeSession {
	return &fakeSession{id: id, userID: userID}
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.userID }

func (s *fakeSession) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return errors.New("write: broken pipe")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.messages = append(s.messages, cp)
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// stuckSession виснет на записи, пока не закрыт release: имитация
// соединения, застрявшего на write.
type stuckSession struct {
	id     string
	userID string

	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func newStuckSession(id, userID string) *stuckSession {
	return &stuckSession{
		id:      id,
		userID:  userID,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *stuckSession) ID() string     { return s.id }
func (s *stuckSession) UserID() string { return s.userID }

func (s *stuckSession) Send(data []byte) error {
	s.enterOnce.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func (s *stuckSession) Close() {}

// fakePendingRepo - in-memory аналог PendingDeliveryRepository
type fakePendingRepo struct {
	mu      sync.Mutex
	seq     int
	records []models.PendingDelivery
	failAll bool
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{}
}

func (r *fakePendingRepo) Create(record *models.PendingDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("storage unavailable")
	}
	// Конфликт по ключу идемпотентности - no-op, как в Postgres
	for _, existing := range r.records {
		if existing.IdempotencyKey == record.IdempotencyKey {
			return nil
		}
	}
	r.seq++
	record.ID = fmt.Sprintf("pd-%d", r.seq)
	r.records = append(r.records, *record)
	return nil
}

func (r *fakePendingRepo) FindByUser(userID string) ([]models.PendingDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("storage unavailable")
	}
	var out []models.PendingDelivery
	for _, rec := range r.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakePendingRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return errors.New("pending delivery not found")
}

func (r *fakePendingRepo) IncrementAttempts(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id {
			r.records[i].Attempts++
			return nil
		}
	}
	return nil
}

func (r *fakePendingRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []models.PendingDelivery
	var removed int64
	for _, rec := range r.records {
		if rec.EnqueuedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, nil
}

func (r *fakePendingRepo) all() []models.PendingDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PendingDelivery, len(r.records))
	copy(out, r.records)
	return out
}

// fakeRecordStore - in-memory журнал отправленных ключей
type fakeRecordStore struct {
	mu   sync.Mutex
	sent map[string]bool
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{sent: make(map[string]bool)}
}

func (r *fakeRecordStore) HasSent(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[key], nil
}

func (r *fakeRecordStore) RecordSent(userID, kind, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[key] = true
	return nil
}

func newTestDelivery() (*ws.Registry, *fakePendingRepo) {
	return ws.NewRegistry(), newFakePendingRepo()
}

// fakeSender перехватывает вызовы Send
type fakeSender struct {
	mu      sync.Mutex
	sent    []*Notification
	outcome Outcome
	sendErr error
}

func newFakeSender(outcome Outcome) *fakeSender {
	return &fakeSender{outcome: outcome}
}

func (f *fakeSender) Send(ctx context.Context, n *Notification) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, n)
	return f.outcome, nil
}

func (f *fakeSender) sentNotifications() []*Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Notification, len(f.sent))
	copy(out, f.sent)
	return out
}
