package labeler

import (
	"context"
	"fmt"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/seglab/autoseg/dataset"
	"github.com/seglab/autoseg/ontology"
	"github.com/seglab/autoseg/rexec"
)

// Defaults for the external labeler invocation.
const (
	DefaultExec          = "groundedsam-label"
	DefaultSplitRatio    = 0.8
	DefaultOverlapPolicy = "highest-confidence"
)

// Config configures the external zero-shot labeler tool.
type Config struct {
	// Exec is the labeler executable.
	Exec string `yaml:"exec"`
	// SplitRatio is the train fraction of the train/valid partition.
	SplitRatio float64 `yaml:"split_ratio"`
	// OverlapPolicy is passed through to the tool verbatim; it decides which
	// mask wins when two prompts match the same pixels.
	OverlapPolicy string `yaml:"overlap_policy"`
	// LogPath, when set, captures the tool's output to a rotated file.
	LogPath string `yaml:"log_path"`
}

func (c *Config) fillDefaults() {
	if c.Exec == "" {
		c.Exec = DefaultExec
	}
	if c.SplitRatio == 0 {
		c.SplitRatio = DefaultSplitRatio
	}
	if c.OverlapPolicy == "" {
		c.OverlapPolicy = DefaultOverlapPolicy
	}
}

// Validate checks the config for values the tool would reject.
func (c *Config) Validate() error {
	if c.SplitRatio != 0 && (c.SplitRatio <= 0 || c.SplitRatio >= 1) {
		return errors.Errorf("split_ratio must be within (0, 1), got %v", c.SplitRatio)
	}
	return nil
}

type groundedSAM struct {
	config Config
	logger golog.Logger
}

// NewGroundedSAM returns a Labeler backed by the external GroundedSAM
// command-line tool run as a one-shot subprocess.
func NewGroundedSAM(config Config, logger golog.Logger) (Labeler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.fillDefaults()
	return &groundedSAM{config: config, logger: logger.Named("labeler")}, nil
}

func (g *groundedSAM) Label(
	ctx context.Context,
	imagesDir string,
	ont ontology.Ontology,
	tree *dataset.Tree,
) (*Report, error) {
	args := []string{
		g.config.Exec,
		"--input", imagesDir,
		"--output", tree.Root,
		"--split", fmt.Sprintf("%g", g.config.SplitRatio),
		"--overlap", g.config.OverlapPolicy,
	}
	for _, pair := range ont.Pairs() {
		args = append(args, "--prompt", fmt.Sprintf("%s=%s", pair.Prompt, pair.Class))
	}

	g.logger.Infow("invoking zero-shot labeler",
		"exec", g.config.Exec,
		"images", imagesDir,
		"prompts", ont.Len(),
		"classes", len(ont.Classes()))

	if err := rexec.Run(ctx, rexec.ProcessConfig{
		Name:    "groundedsam",
		Args:    args,
		Log:     true,
		LogPath: g.config.LogPath,
	}, g.logger); err != nil {
		return nil, errors.Wrap(err, "labeler invocation failed")
	}

	images, err := countImages(imagesDir)
	if err != nil {
		return nil, err
	}
	report, err := BuildReport(tree, images)
	if err != nil {
		return nil, err
	}
	if report.Labeled == 0 {
		// soft failure: no prompt matched anything; surfaced via logs only
		g.logger.Warnw("labeler produced zero labels; downstream training will see an empty dataset",
			"images_seen", report.ImagesSeen)
	}
	return report, nil
}
