package model

import (
	"strings"
	"time"
)

// GenerateRequest is the body of a music generation submission
type GenerateRequest struct {
	Prompt   string `json:"prompt" validate:"required,min=1,max=1000"`
	Style    string `json:"style" validate:"required,min=1,max=100"`
	Duration int    `json:"duration" validate:"required,min=10,max=300"`
	OwnerID  string `json:"ownerId" validate:"required,uuid"`
	Title    string `json:"title" validate:"omitempty,max=200"`
}

// Normalize trims surrounding whitespace from text fields
func (r *GenerateRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Style = strings.TrimSpace(r.Style)
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	r.Title = strings.TrimSpace(r.Title)
}

// ToRecord builds a new Processing record from the request
func (r *GenerateRequest) ToRecord(id string, now time.Time) *GenerationRecord {
	return NewGenerationRecord(id, r.OwnerID, r.Title, r.Prompt, r.Style, r.Duration, now)
}

// RecordResponse is the wire form of a generation record
type RecordResponse struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title,omitempty"`
	Prompt       string    `json:"prompt"`
	Style        string    `json:"style"`
	Duration     int       `json:"duration"`
	GenerationID *string   `json:"generationId,omitempty"`
	AudioURL     *string   `json:"audioUrl,omitempty"`
	Lyrics       *string   `json:"lyrics,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewRecordResponse(r *GenerationRecord) RecordResponse {
	return RecordResponse{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		Prompt:       r.Prompt,
		Style:        r.Style,
		Duration:     r.Duration,
		GenerationID: r.GenerationID,
		AudioURL:     r.AudioURL,
		Lyrics:       r.Lyrics,
		ErrorMessage: r.ErrorMessage,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// RecordPage is one page of records, newest first
type RecordPage struct {
	Items      []RecordResponse `json:"items"`
	Page       int              `json:"page"`
	Size       int              `json:"size"`
	TotalItems int64            `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

func NewRecordPage(records []GenerationRecord, page, size int, total int64) RecordPage {
	items := make([]RecordResponse, 0, len(records))
	for i := range records {
		items = append(items, NewRecordResponse(&records[i]))
	}

	totalPages := 0
	if size > 0 {
		totalPages = int((total + int64(size) - 1) / int64(size))
	}

	return RecordPage{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// CreateUserRequest registers a record owner
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// QuotaResponse reports the external service's remaining credits
type QuotaResponse struct {
	CreditsLeft  int    `json:"creditsLeft"`
	MonthlyLimit int    `json:"monthlyLimit"`
	MonthlyUsage int    `json:"monthlyUsage"`
	Period       string `json:"period,omitempty"`
}

// UploadResponse is returned after a file is stored
type UploadResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// FileEntry is one item of the storage listing
type FileEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type FileInfoResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Exists   bool   `json:"exists"`
}
