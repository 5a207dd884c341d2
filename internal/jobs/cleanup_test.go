package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/Luckybob666/wa-bot-sub000/internal/model"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
)

type mockEventRepo struct {
	deleted    int64
	lastCutoff atomic.Value
	calls      atomic.Int64
}

func (m *mockEventRepo) Append(ctx context.Context, params model.AppendEventParams) error {
	return nil
}

func (m *mockEventRepo) RecentByBot(ctx context.Context, botID int64, limit int) ([]model.BotEvent, error) {
	return nil, nil
}

func (m *mockEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.lastCutoff.Store(cutoff)
	m.calls.Add(1)
	return m.deleted, nil
}

func (m *mockEventRepo) WithTx(tx *sqlx.Tx) repository.EventRepository { return m }

type mockBotRepo struct {
	repository.BotRepository
	cleared atomic.Int64
}

func (m *mockBotRepo) ClearStaleQRCodes(ctx context.Context) (int64, error) {
	m.cleared.Add(1)
	return 1, nil
}

func TestCleanupJob(t *testing.T) {
	t.Run("runs immediately on start", func(t *testing.T) {
		eventRepo := &mockEventRepo{deleted: 3}
		botRepo := &mockBotRepo{}

		job := NewCleanupJob(eventRepo, botRepo, 90*24*time.Hour, time.Hour)
		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return eventRepo.calls.Load() >= 1 && botRepo.cleared.Load() >= 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("cutoff honors the retention window", func(t *testing.T) {
		eventRepo := &mockEventRepo{}
		botRepo := &mockBotRepo{}

		job := NewCleanupJob(eventRepo, botRepo, 24*time.Hour, time.Hour)
		job.cleanup()

		cutoff, ok := eventRepo.lastCutoff.Load().(time.Time)
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(-24*time.Hour), cutoff, time.Minute)
	})

	t.Run("ticks until stopped", func(t *testing.T) {
		eventRepo := &mockEventRepo{}
		botRepo := &mockBotRepo{}

		job := NewCleanupJob(eventRepo, botRepo, time.Hour, 10*time.Millisecond)
		job.Start()

		assert.Eventually(t, func() bool {
			return eventRepo.calls.Load() >= 3
		}, time.Second, 5*time.Millisecond)

		job.Stop()
		after := eventRepo.calls.Load()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, after, eventRepo.calls.Load())
	})
}
