// Package trainer invokes an external detection trainer against a generated
// dataset manifest and resolves the weights file it produces. The training
// loop, loss computation, and failure modes (OOM aborts included) belong to
// the external tool; this layer performs no retry or recovery.
package trainer

import (
	"context"
)

// Defaults for a training invocation.
const (
	DefaultEpochs    = 50
	DefaultImageSize = 640
	DefaultBatch     = 16
	DefaultPatience  = 10
	DefaultModel     = "yolov8n-seg.pt"
	DefaultRunsDir   = "runs"
)

// Options parameterize one training invocation.
type Options struct {
	Epochs    int    `yaml:"epochs"`
	ImageSize int    `yaml:"image_size"`
	Batch     int    `yaml:"batch"`
	Patience  int    `yaml:"patience"`
	Model     string `yaml:"model"`
	RunsDir   string `yaml:"runs_dir"`
	// Extra holds free-form hyperparameter overrides; see Hyperparameters
	// for the supported keys.
	Extra map[string]interface{} `yaml:"extra"`
}

// FillDefaults populates unset options with the defaults above.
func (o *Options) FillDefaults() {
	if o.Epochs == 0 {
		o.Epochs = DefaultEpochs
	}
	if o.ImageSize == 0 {
		o.ImageSize = DefaultImageSize
	}
	if o.Batch == 0 {
		o.Batch = DefaultBatch
	}
	if o.Patience == 0 {
		o.Patience = DefaultPatience
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.RunsDir == "" {
		o.RunsDir = DefaultRunsDir
	}
}

// EpochMetrics is one completed epoch's row from the trainer's progressive
// results output.
type EpochMetrics struct {
	Epoch   int
	BoxLoss float64
	SegLoss float64
	MAP50   float64
	MAP5095 float64
}

// A Summary condenses per-epoch metrics for reporting and telemetry.
type Summary struct {
	Epochs    int
	BestMAP50 float64
	MeanMAP50 float64
}

// A Result is the durable outcome of one training invocation.
type Result struct {
	RunID       string
	WeightsPath string
	Metrics     []EpochMetrics
	Summary     Summary
}

// A Trainer produces a weights file from a dataset manifest.
type Trainer interface {
	Train(ctx context.Context, manifestPath string, opts Options) (*Result, error)
}
