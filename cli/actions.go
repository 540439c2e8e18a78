package cli

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	"github.com/edaniels/golog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/seglab/autoseg/dataset"
	"github.com/seglab/autoseg/imageset"
	"github.com/seglab/autoseg/labeler"
	"github.com/seglab/autoseg/pipeline"
	"github.com/seglab/autoseg/publish"
	"github.com/seglab/autoseg/trainer"
)

func newLogger(c *cli.Context) golog.Logger {
	if c.Bool(flagDebug) {
		return golog.NewDebugLogger("autoseg")
	}
	return zap.NewNop().Sugar()
}

func loadConfig(c *cli.Context) (*pipeline.Config, error) {
	return pipeline.ReadConfig(c.String(flagConfig))
}

// RunAction is the corresponding action for 'run'.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Int(flagEpochs) != 0 {
		cfg.Train.Epochs = c.Int(flagEpochs)
	}
	if c.Bool(flagStrictLabels) {
		cfg.StrictLabels = true
	}

	p, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	res, err := p.Run(c.Context)
	if err != nil {
		return multierr.Combine(err, p.Close())
	}
	printSummary(c, res)
	return p.Close()
}

// LabelAction is the corresponding action for 'label': intake plus labeling
// with no training or publishing.
func LabelAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	set, err := imageset.Scan(cfg.ImagesDir, logger)
	if err != nil {
		return err
	}
	if set.Empty() {
		return pipeline.ErrNoImages
	}

	ont, err := cfg.ParseOntology()
	if err != nil {
		return err
	}
	tree := dataset.NewTree(cfg.DatasetDir)
	if err := tree.Scaffold(); err != nil {
		return err
	}
	if _, err := tree.WriteManifest(ont); err != nil {
		return err
	}

	lbl, err := labeler.NewGroundedSAM(cfg.Label, logger)
	if err != nil {
		return err
	}
	report, err := lbl.Label(c.Context, cfg.ImagesDir, ont, tree)
	if err != nil {
		return err
	}
	printf(c, "Labeled %d of %d images (%d train, %d valid)",
		report.Labeled, report.ImagesSeen, report.TrainImages, report.ValidImages)
	return nil
}

// TrainAction is the corresponding action for 'train'.
func TrainAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Int(flagEpochs) != 0 {
		cfg.Train.Epochs = c.Int(flagEpochs)
	}
	manifestPath := c.String(flagManifest)
	if manifestPath == "" {
		manifestPath = dataset.NewTree(cfg.DatasetDir).ManifestPath()
	}
	if _, err := dataset.ReadManifest(manifestPath); err != nil {
		return err
	}

	trn := trainer.NewYOLO(trainer.Config{}, logger)
	res, err := trn.Train(c.Context, manifestPath, cfg.Train)
	if err != nil {
		return err
	}
	printf(c, "Training run %s complete: best mAP50 %.3f, weights at %s",
		res.RunID, res.Summary.BestMAP50, res.WeightsPath)
	return nil
}

// PublishAction is the corresponding action for 'publish'.
func PublishAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := publish.NewFSStore(cfg.Publish.Dir, cfg.Publish.Retention(), clock.New(), logger)
	if err != nil {
		return err
	}
	ref, err := publish.NewPublisher(store, logger).Publish(c.Context, c.String(flagWeights))
	if err != nil {
		return multierr.Combine(err, store.Close())
	}
	printf(c, "Published %s (%s), expires %s",
		ref.ID, units.HumanSize(float64(ref.Size)), ref.ExpiresAt.Format("2006-01-02"))
	return store.Close()
}

// StoreSweepAction is the corresponding action for 'store sweep'.
func StoreSweepAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := publish.NewFSStore(cfg.Publish.Dir, cfg.Publish.Retention(), clock.New(), logger)
	if err != nil {
		return err
	}
	removed, err := store.Sweep(c.Context)
	if err != nil {
		return multierr.Combine(err, store.Close())
	}
	printf(c, "Removed %d expired artifact(s)", removed)
	return store.Close()
}

func printSummary(c *cli.Context, res *pipeline.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"Run", "Images", "Labeled", "Epochs", "Best mAP50", "Artifact", "Expires"})
	t.AppendRow(table.Row{
		res.RunID[:8],
		res.Images,
		res.Report.Labeled,
		res.Train.Summary.Epochs,
		fmt.Sprintf("%.3f", res.Train.Summary.BestMAP50),
		res.Ref.ID,
		res.Ref.ExpiresAt.Format("2006-01-02"),
	})
	t.Render()
}

func printf(c *cli.Context, format string, args ...interface{}) {
	fmt.Fprintf(c.App.Writer, format+"\n", args...)
}
