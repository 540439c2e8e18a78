package publish

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// A Publisher archives a weights file and hands it to a Store.
type Publisher struct {
	store  Store
	logger golog.Logger
}

// NewPublisher returns a Publisher over the given store.
func NewPublisher(store Store, logger golog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger.Named("publish")}
}

// Publish zips the weights file and stores the archive, returning the
// reference for later download. Quota and IO failures propagate unchanged;
// there is no retry.
func (p *Publisher) Publish(ctx context.Context, weightsPath string) (Ref, error) {
	if _, err := os.Stat(weightsPath); err != nil {
		return Ref{}, errors.Wrapf(err, "weights file missing at %q", weightsPath)
	}

	base := strings.TrimSuffix(filepath.Base(weightsPath), filepath.Ext(weightsPath))
	archivePath := filepath.Join(os.TempDir(), base+".zip")
	size, err := Archive(weightsPath, archivePath)
	if err != nil {
		return Ref{}, errors.Wrap(err, "error archiving weights")
	}
	defer utils.UncheckedErrorFunc(func() error { return os.Remove(archivePath) })

	f, err := os.Open(archivePath)
	if err != nil {
		return Ref{}, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	ref, err := p.store.Put(ctx, filepath.Base(archivePath), f)
	if err != nil {
		return Ref{}, errors.Wrap(err, "error storing artifact")
	}
	p.logger.Infow("weights published",
		"ref", ref.ID,
		"name", ref.Name,
		"size", units.HumanSize(float64(size)),
		"expires_at", ref.ExpiresAt)
	return ref, nil
}
