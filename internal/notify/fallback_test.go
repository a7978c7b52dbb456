package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackQueue_EnqueueIdempotent(t *testing.T) {
	t.Parallel()

	repo := newFakePendingRepo()
	queue := NewFallbackQueue(repo, 30*24*time.Hour, time.Hour)

	n := testNotification("user-1")
	require.NoError(t, queue.Enqueue(context.Background(), n))
	// Повторная постановка того же цикла - ровно одна запись
	require.NoError(t, queue.Enqueue(context.Background(), n))

	assert.Len(t, repo.all(), 1)
}

func TestFallbackQueue_DrainFIFO(t *testing.T) {
	t.Parallel()

	repo := newFakePendingRepo()
	queue := NewFallbackQueue(repo, 30*24*time.Hour, time.Hour)
	sender := newFakeSender(DeliveredLive)
	queue.SetSender(sender)

	base := time.Now().UTC()
	for i, key := range []string{"k1", "k2", "k3"} {
		n := &Notification{
			Kind:           KindMessage,
			UserID:         "user-1",
			Payload:        map[string]any{"seq": key},
			IdempotencyKey: key,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, queue.Enqueue(context.Background(), n))
	}

	require.NoError(t, queue.Drain(context.Background(), "user-1"))

	sent := sender.sentNotifications()
	require.Len(t, sent, 3)
	// FIFO по времени постановки
	assert.Equal(t, "k1", sent[0].IdempotencyKey)
	assert.Equal(t, "k2", sent[1].IdempotencyKey)
	assert.Equal(t, "k3", sent[2].IdempotencyKey)

	// Доставленные записи удалены
	assert.Empty(t, repo.all())
}

func TestFallbackQueue_DrainStopsWhenUserGoesOffline(t *testing.T) {
	t.Parallel()

	repo := newFakePendingRepo()
	queue := NewFallbackQueue(repo, 30*24*time.Hour, time.Hour)
	// Пользователь снова offline: Send вернет queued-offline
	sender := newFakeSender(QueuedOffline)
	queue.SetSender(sender)

	require.NoError(t, queue.Enqueue(context.Background(), testNotification("user-1")))
	require.NoError(t, queue.Drain(context.Background(), "user-1"))

	// Запись остается до следующего online-перехода
	assert.Len(t, repo.all(), 1)
}

func TestFallbackQueue_DrainErrorLeavesRecord(t *testing.T) {
	t.Parallel()

	repo := newFakePendingRepo()
	queue := NewFallbackQueue(repo, 30*24*time.Hour, time.Hour)
	sender := newFakeSender(DeliveredLive)
	sender.sendErr = assert.AnError
	queue.SetSender(sender)

	require.NoError(t, queue.Enqueue(context.Background(), testNotification("user-1")))
	require.NoError(t, queue.Drain(context.Background(), "user-1"))

	records := repo.all()
	require.Len(t, records, 1)
	// Счетчик попыток растет, запись ждет следующего дренажа
	assert.Equal(t, 1, records[0].Attempts)
}

func TestFallbackQueue_SweepDropsStaleRecords(t *testing.T) {
	t.Parallel()

	repo := newFakePendingRepo()
	queue := NewFallbackQueue(repo, 30*24*time.Hour, time.Hour)

	fresh := testNotification("user-1")
	require.NoError(t, queue.Enqueue(context.Background(), fresh))

	// Старую запись кладем напрямую, минуя Enqueue
	stale := testNotification("user-2")
	stale.IdempotencyKey = "stale-key"
	require.NoError(t, queue.Enqueue(context.Background(), stale))
	all := repo.all()
	for i := range repo.records {
		if repo.records[i].IdempotencyKey == "stale-key" {
			repo.records[i].EnqueuedAt = time.Now().UTC().Add(-31 * 24 * time.Hour)
		}
	}
	require.Len(t, all, 2)

	queue.Sweep()

	remaining := repo.all()
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.IdempotencyKey, remaining[0].IdempotencyKey)
}
