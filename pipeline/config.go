package pipeline

import (
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/seglab/autoseg/labeler"
	"github.com/seglab/autoseg/ontology"
	"github.com/seglab/autoseg/publish"
	"github.com/seglab/autoseg/telemetry"
	"github.com/seglab/autoseg/trainer"
)

// Default directory layout, relative to the working directory the CI job
// checks out into.
const (
	DefaultImagesDir  = "images"
	DefaultDatasetDir = "dataset"
	DefaultRunsDir    = "runs"
	DefaultStoreDir   = "artifacts"
)

// PublishConfig configures the artifact publishing stage.
type PublishConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Retention returns the configured retention window.
func (pc PublishConfig) Retention() time.Duration {
	return time.Duration(pc.RetentionDays) * 24 * time.Hour
}

// Config is the full pipeline configuration, normally read from
// autoseg.yaml.
type Config struct {
	ImagesDir  string `yaml:"images_dir"`
	DatasetDir string `yaml:"dataset_dir"`
	RunsDir    string `yaml:"runs_dir"`
	// MaxImageSize, when positive, bound-resizes oversized images into a
	// staging directory before labeling.
	MaxImageSize int `yaml:"max_image_size"`
	// StrictLabels promotes the zero-label soft failure to a run failure.
	StrictLabels bool `yaml:"strict_labels"`

	Ontology  []ontology.Pair  `yaml:"ontology"`
	Label     labeler.Config   `yaml:"label"`
	Train     trainer.Options  `yaml:"train"`
	Publish   PublishConfig    `yaml:"publish"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultConfig returns a config with every directory and policy default
// filled in. The ontology is intentionally left empty; it must come from
// the user.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if c.ImagesDir == "" {
		c.ImagesDir = DefaultImagesDir
	}
	if c.DatasetDir == "" {
		c.DatasetDir = DefaultDatasetDir
	}
	if c.RunsDir == "" {
		c.RunsDir = DefaultRunsDir
	}
	if c.Publish.Dir == "" {
		c.Publish.Dir = DefaultStoreDir
	}
	if c.Publish.RetentionDays == 0 {
		c.Publish.RetentionDays = int(publish.DefaultRetention / (24 * time.Hour))
	}
	if c.Train.RunsDir == "" {
		c.Train.RunsDir = c.RunsDir
	}
}

// Validate checks everything that can be rejected before any stage runs.
func (c *Config) Validate() error {
	if _, err := ontology.New(c.Ontology); err != nil {
		return err
	}
	if err := c.Label.Validate(); err != nil {
		return err
	}
	if c.Train.Epochs < 0 {
		return errors.Errorf("epochs must be at least 1, got %d", c.Train.Epochs)
	}
	if err := publish.ValidateRetention(c.Publish.Retention()); err != nil {
		return err
	}
	return nil
}

// ParseOntology builds the validated ontology from the config.
func (c *Config) ParseOntology() (ontology.Ontology, error) {
	return ontology.New(c.Ontology)
}

// ReadConfig reads a YAML config file, interpolating ${VAR} environment
// references first so credentials and CI paths never live in the file
// itself.
func ReadConfig(path string) (*Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config %q", path)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %q", path)
	}
	return cfg, nil
}
