package model

import (
	"strings"
	"time"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
)

// GenerationRecord is one music generation request and its outcome
type GenerationRecord struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	OwnerID      string    `gorm:"type:char(36);not null;index"`
	Title        string    `gorm:"size:200"`
	Prompt       string    `gorm:"type:text;not null"`
	Style        string    `gorm:"size:100;not null"`
	Duration     int       `gorm:"not null"`
	GenerationID *string   `gorm:"size:128;uniqueIndex"`
	AudioURL     *string   `gorm:"size:1024"`
	Lyrics       *string   `gorm:"type:text"`
	ErrorMessage *string   `gorm:"type:text"`
	Status       Status    `gorm:"size:20;not null;index"`
	CreatedAt    time.Time `gorm:"precision:6;not null;index;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"precision:6;not null;autoUpdateTime:false"`
}

func (GenerationRecord) TableName() string {
	return "generation_records"
}

// NewGenerationRecord builds a record in the Processing state
func NewGenerationRecord(id, ownerID, title, prompt, style string, duration int, now time.Time) *GenerationRecord {
	now = now.UTC().Truncate(time.Microsecond)
	return &GenerationRecord{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		Prompt:    prompt,
		Style:     style,
		Duration:  duration,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch advances UpdatedAt. Consecutive calls always produce a later timestamp,
// even when the clock has not moved or moved backwards.
func (r *GenerationRecord) Touch(now time.Time) {
	now = now.UTC().Truncate(time.Microsecond)
	next := r.UpdatedAt.Add(time.Microsecond)
	if now.Before(next) {
		now = next
	}
	r.UpdatedAt = now
}

// AttachGenerationID records the id returned by the external service
func (r *GenerationRecord) AttachGenerationID(generationID string, now time.Time) error {
	if r.Status.IsTerminal() {
		return apperr.InvalidState("record is already " + r.Status.String())
	}
	if r.GenerationID != nil {
		return apperr.InvalidState("generation id already assigned")
	}
	if strings.TrimSpace(generationID) == "" {
		return apperr.InvalidArgument("generation id is empty")
	}
	r.GenerationID = &generationID
	r.Touch(now)
	return nil
}

// Complete marks the record done with the produced audio
func (r *GenerationRecord) Complete(audioURL string, lyrics *string, now time.Time) error {
	if r.Status.IsTerminal() {
		return apperr.InvalidState("record is already " + r.Status.String())
	}
	r.Status = StatusCompleted
	r.AudioURL = &audioURL
	if lyrics != nil {
		r.Lyrics = lyrics
	}
	r.ErrorMessage = nil
	r.Touch(now)
	return nil
}

// Fail marks the record failed with a reason
func (r *GenerationRecord) Fail(message string, now time.Time) error {
	if r.Status.IsTerminal() {
		return apperr.InvalidState("record is already " + r.Status.String())
	}
	if strings.TrimSpace(message) == "" {
		message = "generation failed"
	}
	r.Status = StatusFailed
	r.ErrorMessage = &message
	r.Touch(now)
	return nil
}

// Cancel moves a pending or processing record to Cancelled
func (r *GenerationRecord) Cancel(now time.Time) error {
	if r.Status.IsTerminal() {
		return apperr.InvalidState("record is already " + r.Status.String())
	}
	r.Status = StatusCancelled
	r.Touch(now)
	return nil
}

// Awaiting reports whether the record is waiting on the external service
func (r *GenerationRecord) Awaiting() bool {
	return r.Status == StatusProcessing && r.GenerationID != nil
}
