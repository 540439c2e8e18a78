// Package telemetry forwards run and epoch events to an external experiment
// tracker. Tracking is strictly best-effort: a missing credential or an
// unreachable endpoint degrades to a no-op and never fails the pipeline.
package telemetry

import (
	"github.com/edaniels/golog"

	"github.com/seglab/autoseg/publish"
	"github.com/seglab/autoseg/trainer"
)

// APIKeyEnvVar is the environment variable the tracker credential is read
// from.
const APIKeyEnvVar = "WANDB_API_KEY"

// RunMeta describes a run at the moment tracking starts.
type RunMeta struct {
	RunID   string   `json:"run_id"`
	Project string   `json:"project"`
	Classes []string `json:"classes"`
	Images  int      `json:"images"`
	Epochs  int      `json:"epochs"`
}

// A Tracker receives pipeline lifecycle events. Implementations must never
// return errors to callers; delivery problems are logged and dropped.
type Tracker interface {
	RunStarted(meta RunMeta)
	Epoch(m trainer.EpochMetrics)
	RunFinished(summary trainer.Summary, ref *publish.Ref)
	Close() error
}

type noop struct{}

// NewNoop returns a Tracker that discards everything.
func NewNoop() Tracker {
	return noop{}
}

func (noop) RunStarted(RunMeta)                        {}
func (noop) Epoch(trainer.EpochMetrics)                {}
func (noop) RunFinished(trainer.Summary, *publish.Ref) {}
func (noop) Close() error                              { return nil }

var _ Tracker = noop{}

// NewFromEnv returns a wandb-style tracker when the API key environment
// variable is set, and a no-op tracker otherwise.
func NewFromEnv(config Config, logger golog.Logger) Tracker {
	key := lookupKey()
	if key == "" {
		logger.Debugw("no tracker credential present; telemetry disabled", "env", APIKeyEnvVar)
		return NewNoop()
	}
	return newWandB(config, key, logger)
}
