package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/apperr"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
)

// Clip statuses reported by the Suno API
const (
	ClipStatusSubmitted = "submitted"
	ClipStatusQueued    = "queued"
	ClipStatusStreaming = "streaming"
	ClipStatusComplete  = "complete"
	ClipStatusError     = "error"
)

// MusicGenerator defines the interface for music generation operations
type MusicGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GetStatus(ctx context.Context, generationID string) ([]Clip, error)
	GetQuota(ctx context.Context) (*Quota, error)
}

// SunoClient implements MusicGenerator for the Suno API.
// Each call makes exactly one HTTP attempt; retries belong to the caller.
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	cookie     string
	log        *logrus.Entry
}

// generateRequest is the body of POST /generate
type generateRequest struct {
	Prompt           string `json:"prompt"`
	WaitAudio        bool   `json:"wait_audio"`
	MakeInstrumental bool   `json:"make_instrumental"`
}

// generateResponse represents the response from music generation
type generateResponse struct {
	ID string `json:"id"`
}

// Clip is one generated track as reported by GET /get
type Clip struct {
	ID           string  `json:"id"`
	Title        string  `json:"title,omitempty"`
	Status       string  `json:"status"`
	AudioURL     string  `json:"audio_url,omitempty"`
	Lyric        string  `json:"lyric,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// IsComplete reports whether the clip has finished with audio
func (c Clip) IsComplete() bool {
	return c.Status == ClipStatusComplete && c.AudioURL != ""
}

// IsFailed reports whether the external service gave up on the clip
func (c Clip) IsFailed() bool {
	return c.Status == ClipStatusError
}

// Quota is the account's credit usage
type Quota struct {
	CreditsLeft  int    `json:"credits_left"`
	MonthlyLimit int    `json:"monthly_limit"`
	MonthlyUsage int    `json:"monthly_usage"`
	Period       string `json:"period,omitempty"`
}

// APIError is a non-2xx answer from the Suno API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("suno API error (status %d): %s", e.StatusCode, e.Body)
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig, log *logrus.Logger) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cookie:  cfg.Cookie,
		log:     logger.Component(log, "suno"),
	}
}

// Generate submits a prompt and returns the external generation id.
// The id is empty when the service accepted the call but returned none.
func (c *SunoClient) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperr.InvalidArgument("prompt must not be empty")
	}

	body := generateRequest{Prompt: prompt, WaitAudio: false, MakeInstrumental: false}
	raw, err := c.post(ctx, "/generate", body)
	if err != nil {
		return "", err
	}

	// some deployments answer with the clip list instead of a single object
	if raw[0] == '[' {
		var clips []generateResponse
		if err := json.Unmarshal(raw, &clips); err != nil {
			return "", decodeError(err)
		}
		if len(clips) == 0 {
			return "", nil
		}
		return clips[0].ID, nil
	}

	var result generateResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", decodeError(err)
	}
	return result.ID, nil
}

// GetStatus retrieves the clips for a generation id
func (c *SunoClient) GetStatus(ctx context.Context, generationID string) ([]Clip, error) {
	if strings.TrimSpace(generationID) == "" {
		return nil, apperr.InvalidArgument("generation id must not be empty")
	}

	raw, err := c.get(ctx, "/get?ids="+url.QueryEscape(generationID))
	if err != nil {
		return nil, err
	}

	if raw[0] == '[' {
		var clips []Clip
		if err := json.Unmarshal(raw, &clips); err != nil {
			return nil, decodeError(err)
		}
		return clips, nil
	}

	var clip Clip
	if err := json.Unmarshal(raw, &clip); err != nil {
		return nil, decodeError(err)
	}
	return []Clip{clip}, nil
}

// GetQuota retrieves the remaining credits
func (c *SunoClient) GetQuota(ctx context.Context) (*Quota, error) {
	raw, err := c.get(ctx, "/quota")
	if err != nil {
		return nil, err
	}

	var q Quota
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, decodeError(err)
	}
	return &q, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.baseURL != ""
}

// post sends a POST request with JSON body
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalAPI, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalAPI, "failed to create request", err)
	}

	return c.doRequest(req)
}

// get sends a GET request
func (c *SunoClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalAPI, "failed to create request", err)
	}

	return c.doRequest(req)
}

// doRequest executes an HTTP request and returns the non-empty response body
func (c *SunoClient) doRequest(req *http.Request) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	entry := c.log.WithFields(logrus.Fields{"method": req.Method, "url": req.URL.String()})
	entry.Debug("[Suno API] →")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		entry.WithError(err).Warn("[Suno API] ✗ request failed")
		return nil, apperr.Wrap(apperr.KindExternalAPI, "failed to send request to Suno API", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		entry.WithError(err).Warn("[Suno API] ✗ failed to read response")
		return nil, apperr.Wrap(apperr.KindExternalAPI, "failed to read Suno API response", err)
	}

	entry.WithField("status", resp.StatusCode).Debugf("[Suno API] ← %s", string(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Wrap(apperr.KindExternalAPI, "Suno API returned an error",
			&APIError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	respBody = bytes.TrimSpace(respBody)
	if len(respBody) == 0 {
		entry.Warn("[Suno API] ✗ empty response body")
		return nil, apperr.New(apperr.KindExternalAPI, "Suno API returned an empty response")
	}

	return respBody, nil
}

func decodeError(err error) error {
	return apperr.Wrap(apperr.KindExternalAPI, "failed to decode Suno API response", err)
}
