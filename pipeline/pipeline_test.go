package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/seglab/autoseg/dataset"
	"github.com/seglab/autoseg/labeler"
	"github.com/seglab/autoseg/ontology"
	"github.com/seglab/autoseg/publish"
	"github.com/seglab/autoseg/telemetry"
	"github.com/seglab/autoseg/trainer"
)

type fakeTrainer struct {
	calls      int
	weightsDir string
	err        error
	lastOpts   trainer.Options
}

func (f *fakeTrainer) Train(ctx context.Context, manifestPath string, opts trainer.Options) (*trainer.Result, error) {
	f.calls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	weights := filepath.Join(f.weightsDir, "best.pt")
	if err := os.WriteFile(weights, []byte("weights"), 0o644); err != nil {
		return nil, err
	}
	return &trainer.Result{
		RunID:       "fake-run",
		WeightsPath: weights,
		Summary:     trainer.Summary{Epochs: opts.Epochs, BestMAP50: 0.5},
	}, nil
}

type recordingTracker struct {
	started  []telemetry.RunMeta
	finished int
}

func (r *recordingTracker) RunStarted(meta telemetry.RunMeta) {
	r.started = append(r.started, meta)
}
func (r *recordingTracker) Epoch(trainer.EpochMetrics)                {}
func (r *recordingTracker) RunFinished(trainer.Summary, *publish.Ref) { r.finished++ }
func (r *recordingTracker) Close() error                              { return nil }

func writeImages(t *testing.T, dir string, n int) {
	t.Helper()
	test.That(t, os.MkdirAll(dir, 0o755), test.ShouldBeNil)
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.Set(i%4, i%4, color.RGBA{R: 200, A: 255})
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("img%03d.png", i)))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, png.Encode(f, img), test.ShouldBeNil)
		test.That(t, f.Close(), test.ShouldBeNil)
	}
}

func testConfig(t *testing.T, root string) *Config {
	t.Helper()
	cfg := &Config{
		ImagesDir:  filepath.Join(root, "images"),
		DatasetDir: filepath.Join(root, "dataset"),
		RunsDir:    filepath.Join(root, "runs"),
		Ontology: []ontology.Pair{
			{Prompt: "drone flying", Class: "drone"},
			{Prompt: "bird in the sky", Class: "bird"},
		},
		Publish: PublishConfig{Dir: filepath.Join(root, "artifacts")},
	}
	cfg.fillDefaults()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	return cfg
}

func testParts(t *testing.T, cfg *Config, logger golog.Logger) (Parts, *fakeTrainer, *labeler.Fake, *recordingTracker) {
	t.Helper()
	store, err := publish.NewFSStore(cfg.Publish.Dir, cfg.Publish.Retention(), clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)
	fakeLbl := labeler.NewFake(logger)
	fakeTrn := &fakeTrainer{weightsDir: t.TempDir()}
	tracker := &recordingTracker{}
	return Parts{
		Labeler:   fakeLbl,
		Trainer:   fakeTrn,
		Publisher: publish.NewPublisher(store, logger),
		Tracker:   tracker,
	}, fakeTrn, fakeLbl, tracker
}

func TestRunHaltsOnEmptyImages(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	test.That(t, os.MkdirAll(cfg.ImagesDir, 0o755), test.ShouldBeNil)

	parts, fakeTrn, fakeLbl, _ := testParts(t, cfg, logger)
	p := New(cfg, parts, logger)

	_, err := p.Run(context.Background())
	test.That(t, errors.Is(err, ErrNoImages), test.ShouldBeTrue)
	// neither labeling nor training was invoked
	test.That(t, fakeLbl.LabelCalls, test.ShouldEqual, 0)
	test.That(t, fakeTrn.calls, test.ShouldEqual, 0)
}

func TestRunEndToEnd(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.Train.Epochs = 3
	writeImages(t, cfg.ImagesDir, 5)

	parts, fakeTrn, _, tracker := testParts(t, cfg, logger)
	p := New(cfg, parts, logger)

	res, err := p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Images, test.ShouldEqual, 5)
	test.That(t, res.Report.Labeled, test.ShouldEqual, 5)
	test.That(t, res.Train.RunID, test.ShouldEqual, "fake-run")
	test.That(t, fakeTrn.lastOpts.Epochs, test.ShouldEqual, 3)

	// manifest reflects the ontology's distinct class count
	m, err := dataset.ReadManifest(filepath.Join(cfg.DatasetDir, dataset.ManifestName))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NC, test.ShouldEqual, 2)
	test.That(t, m.Names, test.ShouldResemble, []string{"drone", "bird"})

	// the published artifact is retrievable from the store
	store, err := publish.NewFSStore(cfg.Publish.Dir, cfg.Publish.Retention(), clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)
	rc, err := store.Open(context.Background(), res.Ref)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rc.Close(), test.ShouldBeNil)

	test.That(t, tracker.started, test.ShouldHaveLength, 1)
	test.That(t, tracker.started[0].Images, test.ShouldEqual, 5)
	test.That(t, tracker.started[0].Epochs, test.ShouldEqual, 3)
	test.That(t, tracker.finished, test.ShouldEqual, 1)
}

func TestRunZeroLabelsSoft(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	writeImages(t, cfg.ImagesDir, 3)

	parts, fakeTrn, fakeLbl, _ := testParts(t, cfg, logger)
	fakeLbl.MatchNone = true
	p := New(cfg, parts, logger)

	// soft failure: the run continues into training
	res, err := p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Report.Labeled, test.ShouldEqual, 0)
	test.That(t, fakeTrn.calls, test.ShouldEqual, 1)
}

func TestRunZeroLabelsStrict(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.StrictLabels = true
	writeImages(t, cfg.ImagesDir, 3)

	parts, fakeTrn, fakeLbl, _ := testParts(t, cfg, logger)
	fakeLbl.MatchNone = true
	p := New(cfg, parts, logger)

	_, err := p.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "zero labels")
	test.That(t, fakeTrn.calls, test.ShouldEqual, 0)
}

func TestRunTrainerFailureIsTerminal(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	writeImages(t, cfg.ImagesDir, 2)

	parts, fakeTrn, _, tracker := testParts(t, cfg, logger)
	fakeTrn.err = errors.New("CUDA out of memory")
	p := New(cfg, parts, logger)

	_, err := p.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "out of memory")
	test.That(t, tracker.finished, test.ShouldEqual, 0)
}

func TestRunRebuildsDatasetFromScratch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	writeImages(t, cfg.ImagesDir, 2)

	// stale label from an earlier run
	tree := dataset.NewTree(cfg.DatasetDir)
	test.That(t, tree.Scaffold(), test.ShouldBeNil)
	stale := filepath.Join(tree.LabelsPath(dataset.TrainDir), "stale.txt")
	test.That(t, os.WriteFile(stale, []byte("0 0 0"), 0o644), test.ShouldBeNil)

	parts, _, _, _ := testParts(t, cfg, logger)
	p := New(cfg, parts, logger)
	_, err := p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)

	_, err = os.Stat(stale)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestRunRemovesStagingTree(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.MaxImageSize = 2
	writeImages(t, cfg.ImagesDir, 3)

	parts, _, _, _ := testParts(t, cfg, logger)
	p := New(cfg, parts, logger)

	res, err := p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Report.Labeled, test.ShouldEqual, 3)

	// resized copies are derived state and must not accumulate across runs
	entries, err := os.ReadDir(filepath.Join(cfg.RunsDir, "staging"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 0)
}
