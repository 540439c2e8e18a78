package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"go.viam.com/utils/artifact"
)

const metaName = ".meta.json"

// An FSStore stores artifacts on the local filesystem, one directory per
// reference with a metadata sidecar. It stands in for the CI platform's
// artifact store and enforces the same retention policy.
type FSStore struct {
	dir       string
	retention time.Duration
	clock     clock.Clock
	logger    golog.Logger

	mu sync.Mutex
}

// NewFSStore returns a store rooted at dir. The retention duration is
// validated against the platform bounds up front.
func NewFSStore(dir string, retention time.Duration, clk clock.Clock, logger golog.Logger) (*FSStore, error) {
	if err := ValidateRetention(retention); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "error creating store directory %q", dir)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &FSStore{
		dir:       dir,
		retention: retention,
		clock:     clk,
		logger:    logger.Named("store"),
	}, nil
}

// Put implements Store.
func (s *FSStore) Put(ctx context.Context, name string, r io.Reader) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	id := uuid.New().String()
	refDir := filepath.Join(s.dir, id)
	if err := os.MkdirAll(refDir, 0o755); err != nil {
		return Ref{}, err
	}

	dst := filepath.Join(refDir, name)
	f, err := os.Create(dst)
	if err != nil {
		return Ref{}, err
	}
	size, err := io.Copy(f, r)
	if err != nil {
		return Ref{}, multierr.Combine(err, f.Close(), os.RemoveAll(refDir))
	}
	if err := f.Close(); err != nil {
		return Ref{}, err
	}

	now := s.clock.Now().UTC()
	ref := Ref{
		ID:        id,
		Name:      name,
		Size:      size,
		StoredAt:  now,
		ExpiresAt: now.Add(s.retention),
	}
	md, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return Ref{}, err
	}
	if err := artifact.AtomicStore(filepath.Join(refDir, metaName), bytes.NewReader(md), id); err != nil {
		return Ref{}, errors.Wrap(err, "error writing artifact metadata")
	}
	s.logger.Debugw("stored artifact", "id", id, "name", name, "size", size)
	return ref, nil
}

// Open implements Store.
func (s *FSStore) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, ref.ID, ref.Name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("artifact %q not found", ref.ID)
		}
		return nil, err
	}
	return f, nil
}

// Sweep implements Store. Expiry is judged against the store clock so tests
// can advance time.
func (s *FSStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now().UTC()
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ref, err := s.readMeta(entry.Name())
		if err != nil {
			s.logger.Warnw("skipping artifact with unreadable metadata", "id", entry.Name(), "error", err)
			continue
		}
		if now.Before(ref.ExpiresAt) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, err
		}
		s.logger.Infow("expired artifact removed", "id", ref.ID, "name", ref.Name, "expired_at", ref.ExpiresAt)
		removed++
	}
	return removed, nil
}

func (s *FSStore) readMeta(id string) (Ref, error) {
	f, err := os.Open(filepath.Join(s.dir, id, metaName))
	if err != nil {
		return Ref{}, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var ref Ref
	if err := json.NewDecoder(f).Decode(&ref); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// Close implements Store.
func (s *FSStore) Close() error {
	return nil
}
