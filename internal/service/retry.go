package service

import (
	"context"
	"time"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/config"
)

// RetryPolicy controls how often a generation is dispatched to the external service
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is two attempts one second apart
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Backoff: time.Second}

func RetryPolicyFromConfig(cfg config.SunoConfig) RetryPolicy {
	p := RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.Backoff}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// SyncPolicy controls background polling of the external service
type SyncPolicy struct {
	Enabled  bool
	Interval time.Duration
	MaxPolls int
}

func SyncPolicyFromConfig(cfg config.SunoConfig) SyncPolicy {
	p := SyncPolicy{Enabled: cfg.SyncEnabled, Interval: cfg.SyncInterval, MaxPolls: cfg.SyncMaxPolls}
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}
	if p.MaxPolls < 1 {
		p.MaxPolls = 1
	}
	return p
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
