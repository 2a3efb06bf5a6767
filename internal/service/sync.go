package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/client"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
)

// Sync polls the external service once for a record waiting on it and applies
// the outcome. done is false while the record should be polled again.
func (s *GenerationService) Sync(ctx context.Context, id string, poll int) (rec *model.GenerationRecord, done bool, err error) {
	rec, err = s.records.FindByID(ctx, id)
	if err != nil {
		return nil, true, err
	}
	if !rec.Awaiting() {
		return rec, true, nil
	}

	entry := s.log.WithFields(logrus.Fields{"recordId": id, "generationId": *rec.GenerationID, "poll": poll})

	clips, err := s.suno.GetStatus(ctx, *rec.GenerationID)
	if err != nil {
		entry.WithError(err).Warn("status poll failed")
		if poll >= s.sync.MaxPolls {
			rec, err = s.Fail(ctx, id, fmt.Sprintf("Status check failed after %d polls: %v", poll, err))
			return rec, true, err
		}
		return rec, false, err
	}

	clip, ok := pickClip(clips, *rec.GenerationID)
	switch {
	case ok && clip.IsComplete():
		var lyrics *string
		if clip.Lyric != "" {
			lyrics = &clip.Lyric
		}
		rec, err = s.UpdateStatus(ctx, id, clip.AudioURL, lyrics)
		return rec, true, err

	case ok && clip.IsFailed():
		message := clip.ErrorMessage
		if message == "" {
			message = "external service reported an error"
		}
		rec, err = s.Fail(ctx, id, message)
		return rec, true, err
	}

	if poll >= s.sync.MaxPolls {
		rec, err = s.Fail(ctx, id, fmt.Sprintf("Timed out waiting for generation after %d polls", poll))
		return rec, true, err
	}

	entry.Debug("generation still running")
	return rec, false, nil
}

// ScheduleNextSync queues the next poll for a record
func (s *GenerationService) ScheduleNextSync(ctx context.Context, id string, poll int) {
	s.scheduleSync(ctx, id, poll)
}

func pickClip(clips []client.Clip, generationID string) (client.Clip, bool) {
	for _, c := range clips {
		if c.ID == generationID {
			return c, true
		}
	}
	if len(clips) > 0 {
		return clips[0], true
	}
	return client.Clip{}, false
}
