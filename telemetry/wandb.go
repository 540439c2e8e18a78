package telemetry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/seglab/autoseg/publish"
	"github.com/seglab/autoseg/trainer"
)

// DefaultEndpoint is where events are posted when the config names nothing
// else.
const DefaultEndpoint = "https://api.wandb.ai/events"

// Config configures the experiment tracker integration.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	Project  string `yaml:"project"`
}

func lookupKey() string {
	return os.Getenv(APIKeyEnvVar)
}

type wandb struct {
	endpoint string
	project  string
	key      string
	client   *http.Client
	logger   golog.Logger
}

func newWandB(config Config, key string, logger golog.Logger) Tracker {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	return &wandb{
		endpoint: config.Endpoint,
		project:  config.Project,
		key:      key,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.Named("telemetry"),
	}
}

type event struct {
	Kind    string      `json:"kind"`
	Project string      `json:"project,omitempty"`
	Payload interface{} `json:"payload"`
}

// post delivers one event. Failures are logged at debug and dropped;
// telemetry never propagates errors to the pipeline.
func (w *wandb) post(kind string, payload interface{}) {
	body, err := json.Marshal(event{Kind: kind, Project: w.project, Payload: payload})
	if err != nil {
		w.logger.Debugw("cannot encode telemetry event", "kind", kind, "error", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		w.logger.Debugw("cannot build telemetry request", "kind", kind, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.key)

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debugw("telemetry delivery failed", "kind", kind, "error", err)
		return
	}
	defer utils.UncheckedErrorFunc(resp.Body.Close)
	if resp.StatusCode >= 300 {
		w.logger.Debugw("telemetry endpoint rejected event", "kind", kind, "status", resp.StatusCode)
	}
}

func (w *wandb) RunStarted(meta RunMeta) {
	w.post("run_started", meta)
}

func (w *wandb) Epoch(m trainer.EpochMetrics) {
	w.post("epoch", m)
}

func (w *wandb) RunFinished(summary trainer.Summary, ref *publish.Ref) {
	w.post("run_finished", map[string]interface{}{
		"summary":  summary,
		"artifact": ref,
	})
}

func (w *wandb) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
