package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/seglab/autoseg/rexec"
)

// DefaultExec is the external trainer executable.
const DefaultExec = "yolo"

// Hyperparameters are the supported free-form overrides passed through to
// the external trainer. Zero values are omitted from the invocation.
type Hyperparameters struct {
	LR0          float64 `mapstructure:"lr0"`
	LRF          float64 `mapstructure:"lrf"`
	Optimizer    string  `mapstructure:"optimizer"`
	Seed         int     `mapstructure:"seed"`
	WarmupEpochs float64 `mapstructure:"warmup_epochs"`
}

// Config configures the external YOLO trainer tool.
type Config struct {
	// Exec is the trainer executable.
	Exec string `yaml:"exec"`
	// OnEpoch, when set, is called for each completed epoch observed in the
	// trainer's progressive results output.
	OnEpoch func(EpochMetrics) `yaml:"-"`
}

type yolo struct {
	config Config
	logger golog.Logger
}

// NewYOLO returns a Trainer backed by the external YOLO command-line tool
// run as a one-shot subprocess.
func NewYOLO(config Config, logger golog.Logger) Trainer {
	if config.Exec == "" {
		config.Exec = DefaultExec
	}
	return &yolo{config: config, logger: logger.Named("trainer")}
}

func (y *yolo) Train(ctx context.Context, manifestPath string, opts Options) (*Result, error) {
	opts.FillDefaults()
	if opts.Epochs < 1 {
		return nil, errors.Errorf("epochs must be at least 1, got %d", opts.Epochs)
	}

	runID := uuid.New().String()
	runDir := filepath.Join(opts.RunsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "error creating run directory %q", runDir)
	}
	resultsPath := filepath.Join(runDir, "results.csv")

	args := []string{
		y.config.Exec,
		"segment", "train",
		"data=" + manifestPath,
		fmt.Sprintf("epochs=%d", opts.Epochs),
		fmt.Sprintf("imgsz=%d", opts.ImageSize),
		fmt.Sprintf("batch=%d", opts.Batch),
		fmt.Sprintf("patience=%d", opts.Patience),
		"model=" + opts.Model,
		"project=" + opts.RunsDir,
		"name=" + runID,
		"exist_ok=True",
	}
	hyper, err := hyperArgs(opts.Extra)
	if err != nil {
		return nil, err
	}
	args = append(args, hyper...)

	y.logger.Infow("invoking trainer",
		"exec", y.config.Exec,
		"run_id", runID,
		"epochs", opts.Epochs,
		"image_size", opts.ImageSize,
		"batch", opts.Batch,
		"patience", opts.Patience)

	stopWatch := y.watchProgress(ctx, resultsPath)
	runErr := y.run(ctx, args, filepath.Join(runDir, "train.log"))
	stopWatch()
	if runErr != nil {
		return nil, errors.Wrap(runErr, "trainer invocation failed")
	}

	weightsPath := filepath.Join(runDir, "weights", "best.pt")
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, errors.Wrapf(err, "trainer exited cleanly but weights are missing at %q", weightsPath)
	}

	metrics, err := ParseResults(resultsPath)
	if err != nil {
		return nil, err
	}
	summary := Summarize(metrics)
	y.logger.Infow("training complete",
		"run_id", runID,
		"epochs_run", summary.Epochs,
		"best_map50", summary.BestMAP50)

	return &Result{
		RunID:       runID,
		WeightsPath: weightsPath,
		Metrics:     metrics,
		Summary:     summary,
	}, nil
}

func (y *yolo) run(ctx context.Context, args []string, logPath string) error {
	return rexec.Run(ctx, rexec.ProcessConfig{
		Name:    "yolo",
		Args:    args,
		Log:     true,
		LogPath: logPath,
	}, y.logger)
}

// watchProgress tails the progressive results file and reports each newly
// completed epoch. Returns a function that stops the watch and drains any
// rows written since the last event.
func (y *yolo) watchProgress(ctx context.Context, resultsPath string) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		y.logger.Debugw("progress watch unavailable", "error", err)
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(resultsPath)); err != nil {
		y.logger.Debugw("progress watch unavailable", "error", err)
		utils.UncheckedError(watcher.Close())
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	lastEpoch := -1
	report := func() {
		metrics, err := ParseResults(resultsPath)
		if err != nil {
			y.logger.Debugw("cannot parse progressive results", "error", err)
			return
		}
		for _, m := range metrics {
			if m.Epoch <= lastEpoch {
				continue
			}
			lastEpoch = m.Epoch
			y.logger.Infow("epoch complete",
				"epoch", m.Epoch,
				"box_loss", m.BoxLoss,
				"seg_loss", m.SegLoss,
				"map50", m.MAP50)
			if y.config.OnEpoch != nil {
				y.config.OnEpoch(m)
			}
		}
	}

	go func() {
		defer close(finished)
		defer utils.UncheckedErrorFunc(watcher.Close)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				report()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) == filepath.Base(resultsPath) &&
					event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					report()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				y.logger.Debugw("progress watch error", "error", err)
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func hyperArgs(extra map[string]interface{}) ([]string, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	var hp Hyperparameters
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &hp,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(extra); err != nil {
		return nil, errors.Wrap(err, "invalid trainer hyperparameter overrides")
	}
	var args []string
	if hp.LR0 != 0 {
		args = append(args, fmt.Sprintf("lr0=%g", hp.LR0))
	}
	if hp.LRF != 0 {
		args = append(args, fmt.Sprintf("lrf=%g", hp.LRF))
	}
	if hp.Optimizer != "" {
		args = append(args, "optimizer="+hp.Optimizer)
	}
	if hp.Seed != 0 {
		args = append(args, fmt.Sprintf("seed=%d", hp.Seed))
	}
	if hp.WarmupEpochs != 0 {
		args = append(args, fmt.Sprintf("warmup_epochs=%g", hp.WarmupEpochs))
	}
	return args, nil
}
