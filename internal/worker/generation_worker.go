package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/service"
)

// GenerationWorker dispatches records submitted asynchronously
type GenerationWorker struct {
	generationService *service.GenerationService
	log               *logrus.Entry
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(generationService *service.GenerationService, log *logrus.Logger) *GenerationWorker {
	return &GenerationWorker{
		generationService: generationService,
		log:               logger.Component(log, "generation-worker"),
	}
}

// ProcessTask handles generation task processing
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.GenerateTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RecordID == "" {
		return fmt.Errorf("task payload has no record id: %w", asynq.SkipRetry)
	}

	entry := w.log.WithField("recordId", payload.RecordID)
	entry.Info("starting generation")

	rec, err := w.generationService.RunGeneration(ctx, payload.RecordID)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		entry.Warn("record deleted before generation ran")
		return nil
	case apperr.Is(err, apperr.KindGenerationFailed):
		// already persisted as Failed
		entry.WithError(err).Warn("generation failed")
		return nil
	case err != nil:
		logger.LogError(w.log, "ProcessTask", "run generation", payload.RecordID, err)
		return err
	}

	entry.WithField("status", rec.Status).Info("generation dispatched")
	return nil
}
