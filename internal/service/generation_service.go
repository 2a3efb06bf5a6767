package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/client"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/repository"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/storage"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/validation"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	MaxPage         = 1_000_000
)

// Notifier pushes record changes to live subscribers
type Notifier interface {
	BroadcastUpdate(rec *model.GenerationRecord)
	BroadcastError(recordID, code, message string)
}

// GenerationService owns the lifecycle of generation records
type GenerationService struct {
	records  *repository.RecordRepository
	users    *repository.UserRepository
	suno     client.MusicGenerator
	files    storage.Storage
	validate *validator.Validate
	retry    RetryPolicy
	sync     SyncPolicy
	queue    TaskQueue
	notifier Notifier
	log      *logrus.Entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGenerationService(
	records *repository.RecordRepository,
	users *repository.UserRepository,
	suno client.MusicGenerator,
	files storage.Storage,
	retry RetryPolicy,
	log *logrus.Logger,
) *GenerationService {
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy
	}
	return &GenerationService{
		records:  records,
		users:    users,
		suno:     suno,
		files:    files,
		validate: validation.New(),
		retry:    retry,
		log:      logger.Component(log, "generation"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// SetQueue enables async submission and, with an enabled policy, status sync
func (s *GenerationService) SetQueue(q TaskQueue, sync SyncPolicy) {
	s.queue = q
	s.sync = sync
}

func (s *GenerationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Submit stores a new record and dispatches it to the external service inline
func (s *GenerationService) Submit(ctx context.Context, req *model.GenerateRequest) (*model.GenerationRecord, error) {
	rec, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, rec)
}

// SubmitAsync stores a new record and leaves the dispatch to the worker pool
func (s *GenerationService) SubmitAsync(ctx context.Context, req *model.GenerateRequest) (*model.GenerationRecord, error) {
	if s.queue == nil {
		return nil, apperr.InvalidArgument("async generation is not enabled")
	}

	rec, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.queue.EnqueueGeneration(ctx, rec.ID); err != nil {
		logger.LogError(s.log, "SubmitAsync", "enqueue generation", rec.ID, err)
		s.fail(ctx, rec.ID, "Failed to schedule music generation: "+err.Error())
		return nil, apperr.Wrap(apperr.KindGenerationFailed, "Failed to schedule music generation", err)
	}

	s.log.WithField("recordId", rec.ID).Info("generation queued")
	return rec, nil
}

// RunGeneration dispatches a stored record. Records that already left the
// waiting state, or already carry a generation id, are returned untouched.
func (s *GenerationService) RunGeneration(ctx context.Context, id string) (*model.GenerationRecord, error) {
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() || rec.GenerationID != nil {
		s.log.WithFields(logrus.Fields{"recordId": id, "status": rec.Status}).Info("generation skipped")
		return rec, nil
	}
	return s.dispatch(ctx, rec)
}

func (s *GenerationService) create(ctx context.Context, req *model.GenerateRequest) (*model.GenerationRecord, error) {
	req.Normalize()
	if err := validation.Struct(s.validate, req); err != nil {
		return nil, err
	}

	ok, err := s.users.Exists(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("owner not found: " + req.OwnerID)
	}

	rec := req.ToRecord(uuid.NewString(), s.now())
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"recordId": rec.ID, "ownerId": rec.OwnerID}).Info("generation record created")
	return rec, nil
}

// dispatch applies the retry policy. A failed attempt is retried after the
// backoff; an empty generation id stops immediately.
func (s *GenerationService) dispatch(ctx context.Context, rec *model.GenerationRecord) (*model.GenerationRecord, error) {
	entry := s.log.WithField("recordId", rec.ID)

	var lastErr error
	attempts := 0
	for attempts < s.retry.MaxAttempts {
		if attempts > 0 {
			if err := s.sleep(ctx, s.retry.Backoff); err != nil {
				lastErr = err
				break
			}
		}
		attempts++

		generationID, err := s.suno.Generate(ctx, rec.Prompt)
		if err != nil {
			lastErr = err
			entry.WithField("attempt", attempts).WithError(err).Warn("generation attempt failed")
			continue
		}

		if strings.TrimSpace(generationID) == "" {
			lastErr = apperr.New(apperr.KindExternalAPI, "API response empty: no generation id returned")
			entry.WithField("attempt", attempts).Warn("generation attempt returned no id")
			break
		}

		return s.attach(ctx, rec.ID, generationID)
	}

	message := fmt.Sprintf("Music generation failed after %d attempt(s): %s", attempts, lastErr.Error())
	s.fail(ctx, rec.ID, message)
	return nil, apperr.Wrap(apperr.KindGenerationFailed, "Music generation failed", lastErr)
}

func (s *GenerationService) attach(ctx context.Context, id, generationID string) (*model.GenerationRecord, error) {
	if other, err := s.records.FindByGenerationID(ctx, generationID); err == nil && other.ID != id {
		message := fmt.Sprintf("Generation id %s is already tracked by record %s", generationID, other.ID)
		s.fail(ctx, id, message)
		return nil, apperr.New(apperr.KindGenerationFailed, message)
	}

	rec, err := s.records.Mutate(ctx, id, func(r *model.GenerationRecord) error {
		return r.AttachGenerationID(generationID, s.now())
	})
	if apperr.Is(err, apperr.KindInvalidState) {
		// the record was cancelled while the call was in flight
		s.log.WithFields(logrus.Fields{"recordId": id, "generationId": generationID}).
			Info("discarding generation id for finished record")
		return s.records.FindByID(context.WithoutCancel(ctx), id)
	}
	if err != nil {
		logger.LogError(s.log, "attach", "persist generation id", id, err)
		s.fail(ctx, id, "Failed to record generation id: "+err.Error())
		return nil, apperr.Wrap(apperr.KindGenerationFailed, "Music generation failed", err)
	}

	s.log.WithFields(logrus.Fields{"recordId": id, "generationId": generationID}).Info("generation started")
	s.broadcast(rec)
	s.scheduleSync(ctx, rec.ID, 1)
	return rec, nil
}

// fail persists even when ctx is already cancelled
func (s *GenerationService) fail(ctx context.Context, id, message string) {
	rec, err := s.records.Mutate(context.WithoutCancel(ctx), id, func(r *model.GenerationRecord) error {
		return r.Fail(message, s.now())
	})
	if err != nil {
		logger.LogError(s.log, "fail", "persist failed status", id, err)
		return
	}
	s.broadcast(rec)
	if s.notifier != nil {
		s.notifier.BroadcastError(id, "GENERATION_FAILED", message)
	}
}

func (s *GenerationService) scheduleSync(ctx context.Context, id string, poll int) {
	if s.queue == nil || !s.sync.Enabled {
		return
	}
	if err := s.queue.EnqueueSync(ctx, id, poll, s.sync.Interval); err != nil {
		logger.LogError(s.log, "scheduleSync", "enqueue status sync", id, err)
	}
}

func (s *GenerationService) broadcast(rec *model.GenerationRecord) {
	if s.notifier != nil && rec != nil {
		s.notifier.BroadcastUpdate(rec)
	}
}

// GetStatus returns the stored record. A record whose status is unknown is
// reported as InvalidState.
func (s *GenerationService) GetStatus(ctx context.Context, id string) (*model.GenerationRecord, error) {
	if err := checkID(id, "record id"); err != nil {
		return nil, err
	}
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.IsValid() {
		return nil, apperr.InvalidState("record has no valid status")
	}
	return rec, nil
}

func (s *GenerationService) Get(ctx context.Context, id string) (*model.GenerationRecord, error) {
	return s.GetStatus(ctx, id)
}

// Cancel stops tracking a pending or processing record
func (s *GenerationService) Cancel(ctx context.Context, id string) (*model.GenerationRecord, error) {
	if err := checkID(id, "record id"); err != nil {
		return nil, err
	}
	rec, err := s.records.Mutate(ctx, id, func(r *model.GenerationRecord) error {
		return r.Cancel(s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("recordId", id).Info("generation cancelled")
	s.broadcast(rec)
	return rec, nil
}

// UpdateStatus completes a record with its audio URL and optional lyrics
func (s *GenerationService) UpdateStatus(ctx context.Context, id, audioURL string, lyrics *string) (*model.GenerationRecord, error) {
	if err := checkID(id, "record id"); err != nil {
		return nil, err
	}
	audioURL = strings.TrimSpace(audioURL)
	if err := s.checkAudioURL(audioURL); err != nil {
		return nil, err
	}

	rec, err := s.records.Mutate(ctx, id, func(r *model.GenerationRecord) error {
		return r.Complete(audioURL, lyrics, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("recordId", id).Info("generation completed")
	s.broadcast(rec)
	return rec, nil
}

// Fail marks a record failed with the reason reported by the external service
func (s *GenerationService) Fail(ctx context.Context, id, message string) (*model.GenerationRecord, error) {
	rec, err := s.records.Mutate(ctx, id, func(r *model.GenerationRecord) error {
		return r.Fail(message, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("recordId", id).Warnf("generation failed: %s", message)
	s.broadcast(rec)
	if s.notifier != nil {
		s.notifier.BroadcastError(id, "GENERATION_FAILED", message)
	}
	return rec, nil
}

// Delete removes a record and the audio file it points to in our storage.
// The row is gone even when the file removal fails.
func (s *GenerationService) Delete(ctx context.Context, id string) error {
	if err := checkID(id, "record id"); err != nil {
		return err
	}
	rec, err := s.records.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("recordId", id).Info("generation record deleted")

	if rec.AudioURL == nil || s.files == nil {
		return nil
	}
	name, ok := s.files.NameFromURL(*rec.AudioURL)
	if !ok {
		return nil
	}

	err = s.files.Delete(ctx, name)
	if err == nil || apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	logger.LogError(s.log, "Delete", "remove audio file", name, err)
	return apperr.Wrap(apperr.KindStorage, "Record deleted but its audio file could not be removed", err)
}

// List returns records newest first
func (s *GenerationService) List(ctx context.Context, page, size int) (model.RecordPage, error) {
	if err := checkPage(page, size); err != nil {
		return model.RecordPage{}, err
	}
	recs, total, err := s.records.ListPage(ctx, page, size)
	if err != nil {
		return model.RecordPage{}, err
	}
	return model.NewRecordPage(recs, page, size, total), nil
}

// ListByOwner returns an owner's records newest first
func (s *GenerationService) ListByOwner(ctx context.Context, ownerID string, page, size int) (model.RecordPage, error) {
	if err := checkID(ownerID, "owner id"); err != nil {
		return model.RecordPage{}, err
	}
	if err := checkPage(page, size); err != nil {
		return model.RecordPage{}, err
	}
	ok, err := s.users.Exists(ctx, ownerID)
	if err != nil {
		return model.RecordPage{}, err
	}
	if !ok {
		return model.RecordPage{}, apperr.NotFound("owner not found: " + ownerID)
	}

	recs, total, err := s.records.FindByOwnerPage(ctx, ownerID, page, size)
	if err != nil {
		return model.RecordPage{}, err
	}
	return model.NewRecordPage(recs, page, size, total), nil
}

func (s *GenerationService) Quota(ctx context.Context) (*model.QuotaResponse, error) {
	q, err := s.suno.GetQuota(ctx)
	if err != nil {
		return nil, err
	}
	return &model.QuotaResponse{
		CreditsLeft:  q.CreditsLeft,
		MonthlyLimit: q.MonthlyLimit,
		MonthlyUsage: q.MonthlyUsage,
		Period:       q.Period,
	}, nil
}

// checkAudioURL accepts absolute http(s) URLs and URLs of our own storage
func (s *GenerationService) checkAudioURL(audioURL string) error {
	if audioURL == "" {
		return apperr.InvalidFields("Audio URL is required", map[string]string{"url": "required"})
	}
	if s.files != nil {
		if _, ok := s.files.NameFromURL(audioURL); ok {
			return nil
		}
	}
	u, err := url.Parse(audioURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return apperr.InvalidFields("Audio URL must be an absolute URL", map[string]string{"url": "url"})
	}
	return nil
}

func checkID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.InvalidArgument("malformed " + what + ": " + id)
	}
	return nil
}

func checkPage(page, size int) error {
	fields := map[string]string{}
	if page < 0 {
		fields["page"] = "min"
	} else if page > MaxPage {
		fields["page"] = "max"
	}
	if size < 1 {
		fields["size"] = "min"
	} else if size > MaxPageSize {
		fields["size"] = "max"
	}
	if len(fields) > 0 {
		return apperr.InvalidFields("Invalid page request", fields)
	}
	return nil
}
