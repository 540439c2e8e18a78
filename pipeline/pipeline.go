// Package pipeline sequences the four stages of the training recipe:
// image intake, zero-shot labeling, detector training, and artifact
// publishing. Stages run strictly in order, each blocking on an external
// system; the first failure is terminal for the run.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/seglab/autoseg/dataset"
	"github.com/seglab/autoseg/imageset"
	"github.com/seglab/autoseg/labeler"
	"github.com/seglab/autoseg/publish"
	"github.com/seglab/autoseg/telemetry"
	"github.com/seglab/autoseg/trainer"
)

// ErrNoImages halts a run whose image directory contains nothing to label.
var ErrNoImages = errors.New("image directory contains no images; nothing to label or train")

// Parts are the stage implementations a Pipeline sequences. Tests inject
// fakes here.
type Parts struct {
	Labeler   labeler.Labeler
	Trainer   trainer.Trainer
	Publisher *publish.Publisher
	Tracker   telemetry.Tracker
}

// A Pipeline runs the four stages against one config.
type Pipeline struct {
	cfg     *Config
	parts   Parts
	logger  golog.Logger
	closers []io.Closer
}

// A RunResult is everything one completed run produced.
type RunResult struct {
	RunID  string
	Images int
	Report *labeler.Report
	Train  *trainer.Result
	Ref    publish.Ref
}

// New returns a Pipeline over explicitly supplied parts.
func New(cfg *Config, parts Parts, logger golog.Logger) *Pipeline {
	if parts.Tracker == nil {
		parts.Tracker = telemetry.NewNoop()
	}
	return &Pipeline{cfg: cfg, parts: parts, logger: logger.Named("pipeline")}
}

// FromConfig builds a Pipeline with the real stage implementations: the
// external labeler and trainer subprocesses, a filesystem artifact store,
// and env-keyed telemetry.
func FromConfig(cfg *Config, logger golog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tracker := telemetry.NewFromEnv(cfg.Telemetry, logger)

	lbl, err := labeler.NewGroundedSAM(cfg.Label, logger)
	if err != nil {
		return nil, err
	}

	trainConfig := trainer.Config{OnEpoch: tracker.Epoch}
	trn := trainer.NewYOLO(trainConfig, logger)

	store, err := publish.NewFSStore(cfg.Publish.Dir, cfg.Publish.Retention(), nil, logger)
	if err != nil {
		return nil, err
	}

	p := New(cfg, Parts{
		Labeler:   lbl,
		Trainer:   trn,
		Publisher: publish.NewPublisher(store, logger),
		Tracker:   tracker,
	}, logger)
	p.closers = append(p.closers, store, tracker)
	return p, nil
}

// Close releases the pipeline's stores and trackers.
func (p *Pipeline) Close() error {
	var err error
	for _, closer := range p.closers {
		err = multierr.Combine(err, closer.Close())
	}
	return err
}

// Run executes intake, labeling, training, and publishing in order. There
// is no retry and no partial-result handling: the dataset tree is rebuilt
// from scratch, and any stage error aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.New().String()
	logger := p.logger.Named(runID[:8])

	// stage 1: intake
	set, err := imageset.Scan(p.cfg.ImagesDir, logger)
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		logger.Errorw("halting before labeling and training", "images_dir", p.cfg.ImagesDir, "images", 0)
		return nil, ErrNoImages
	}
	logger.Infow("image intake complete", "images", len(set.Images))

	imagesDir := set.Dir
	if p.cfg.MaxImageSize > 0 {
		stagingDir := filepath.Join(p.cfg.RunsDir, "staging", runID)
		staged, err := imageset.Normalize(set, p.cfg.MaxImageSize, stagingDir, logger)
		if err != nil {
			return nil, err
		}
		// the staging tree is derived state; it must not outlive the run
		defer utils.UncheckedErrorFunc(func() error { return os.RemoveAll(stagingDir) })
		imagesDir = staged.Dir
	}

	ont, err := p.cfg.ParseOntology()
	if err != nil {
		return nil, err
	}

	// stage 2: labeling, against a clean-slate dataset tree
	tree := dataset.NewTree(p.cfg.DatasetDir)
	if err := tree.Scaffold(); err != nil {
		return nil, err
	}
	manifest, err := tree.WriteManifest(ont)
	if err != nil {
		return nil, err
	}

	p.parts.Tracker.RunStarted(telemetry.RunMeta{
		RunID:   runID,
		Project: p.cfg.Telemetry.Project,
		Classes: manifest.Names,
		Images:  len(set.Images),
		Epochs:  p.cfg.Train.Epochs,
	})

	report, err := p.parts.Labeler.Label(ctx, imagesDir, ont, tree)
	if err != nil {
		return nil, err
	}
	if report.Labeled == 0 && p.cfg.StrictLabels {
		return nil, errors.New("labeler produced zero labels and strict labeling is enabled")
	}

	// stage 3: training
	trainRes, err := p.parts.Trainer.Train(ctx, tree.ManifestPath(), p.cfg.Train)
	if err != nil {
		return nil, err
	}

	// stage 4: publishing
	ref, err := p.parts.Publisher.Publish(ctx, trainRes.WeightsPath)
	if err != nil {
		return nil, err
	}

	p.parts.Tracker.RunFinished(trainRes.Summary, &ref)
	logger.Infow("run complete",
		"run_id", runID,
		"labeled", report.Labeled,
		"epochs_run", trainRes.Summary.Epochs,
		"artifact", ref.ID)

	return &RunResult{
		RunID:  runID,
		Images: len(set.Images),
		Report: report,
		Train:  trainRes,
		Ref:    ref,
	}, nil
}
