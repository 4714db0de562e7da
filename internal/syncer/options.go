package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/stride/pkg/types"
)

// Defaults for Engine tuning.
const (
	DefaultBatchSize   = 50
	DefaultMaxRetry    = 3
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultCallTimeout = 15 * time.Second
	DefaultInterval    = 30 * time.Second
)

// Identity supplies the signed-in user. An empty ID means nobody is signed
// in and sync is skipped.
type Identity interface {
	UserID(ctx context.Context) (string, error)
}

// StaticIdentity is an Identity with a fixed user ID.
type StaticIdentity string

// UserID implements Identity.
func (s StaticIdentity) UserID(context.Context) (string, error) { return string(s), nil }

// BlobReleaser frees attachment bytes when their note is deleted.
type BlobReleaser interface {
	Release(ctx context.Context, path string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for synced_at stamps.
func WithClock(c types.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBlobReleaser sets where deleted attachments are released.
func WithBlobReleaser(b BlobReleaser) Option {
	return func(e *Engine) { e.blobs = b }
}

// WithBatchSize sets how many records are pushed or pulled per page.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMaxRetry sets the maximum attempts per remote call.
func WithMaxRetry(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetry = n
		}
	}
}

// WithRetryBase sets the base of the exponential backoff.
func WithRetryBase(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryBase = d
		}
	}
}

// WithCallTimeout bounds every remote call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithInterval sets the period of the background trigger started by Start.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}
