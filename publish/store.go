// Package publish archives the trained weights and hands them to an
// artifact store with a time-bounded retention window. The store owns the
// artifact thereafter; the pipeline keeps only the returned reference.
package publish

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Retention bounds. DefaultRetention matches the pipeline's configured
// policy; MaxRetention is the platform ceiling and configuring past it is a
// validation error, not a silent clamp.
const (
	DefaultRetention = 30 * 24 * time.Hour
	MaxRetention     = 90 * 24 * time.Hour
)

// A Ref identifies a stored artifact and is usable for later download.
type Ref struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// A Store durably holds artifacts until their retention window lapses.
type Store interface {
	// Put stores the contents of r under name and returns its reference.
	Put(ctx context.Context, name string, r io.Reader) (Ref, error)

	// Open returns the stored contents for a previously returned reference.
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)

	// Sweep removes artifacts whose retention window has passed, returning
	// how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Close must be called to release any in use resources.
	Close() error
}

// ValidateRetention checks a retention duration against the platform
// bounds.
func ValidateRetention(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("retention must be positive, got %v", d)
	}
	if d > MaxRetention {
		return errors.Errorf("retention %v exceeds the platform maximum %v", d, MaxRetention)
	}
	return nil
}
