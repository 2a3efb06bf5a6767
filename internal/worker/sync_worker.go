package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/service"
)

const syncLockTTL = 30 * time.Second

// Locker hands out per-record locks. *redislock.Client satisfies it.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// SyncWorker polls the external service for records waiting on it
type SyncWorker struct {
	generationService *service.GenerationService
	locker            Locker
	log               *logrus.Entry
}

// NewSyncWorker creates a new status sync worker. locker may be nil.
func NewSyncWorker(generationService *service.GenerationService, locker Locker, log *logrus.Logger) *SyncWorker {
	return &SyncWorker{
		generationService: generationService,
		locker:            locker,
		log:               logger.Component(log, "sync-worker"),
	}
}

// ProcessTask handles status sync task processing
func (w *SyncWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.SyncTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RecordID == "" {
		return fmt.Errorf("task payload has no record id: %w", asynq.SkipRetry)
	}

	entry := w.log.WithFields(logrus.Fields{"recordId": payload.RecordID, "poll": payload.Poll})

	if w.locker != nil {
		lock, err := w.locker.Obtain(ctx, SyncLockKey(payload.RecordID), syncLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			entry.Debug("sync already running for record, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to obtain sync lock: %w", err)
		}
		defer lock.Release(context.Background())
	}

	rec, done, err := w.generationService.Sync(ctx, payload.RecordID, payload.Poll)
	if err != nil {
		entry.WithError(err).Warn("status sync failed")
	}
	if !done {
		w.generationService.ScheduleNextSync(ctx, payload.RecordID, payload.Poll+1)
		return nil
	}
	if rec != nil {
		entry.WithField("status", rec.Status).Info("status sync finished")
	}
	return nil
}

// SyncLockKey is the redis key guarding one record's status sync
func SyncLockKey(recordID string) string {
	return "music:sync:" + recordID
}
