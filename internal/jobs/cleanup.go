package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
)

// CleanupJob periodically trims the event log to its retention window and
// clears credential artifacts that outlived their scanning phase.
type CleanupJob struct {
	eventRepo repository.EventRepository
	botRepo   repository.BotRepository
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewCleanupJob(
	eventRepo repository.EventRepository,
	botRepo repository.BotRepository,
	retention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		eventRepo: eventRepo,
		botRepo:   botRepo,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "expired events", func(ctx context.Context) (int64, error) {
		return j.eventRepo.DeleteOlderThan(ctx, time.Now().Add(-j.retention))
	})
	j.runCleanup(ctx, "stale credential artifacts", j.botRepo.ClearStaleQRCodes)
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
