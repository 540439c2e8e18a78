package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/seglab/autoseg/ontology"
)

const sampleConfig = `
images_dir: ${AUTOSEG_IMAGES}
ontology:
  - prompt: "all drones flying"
    class: drone
train:
  epochs: 20
  extra:
    lr0: 0.01
publish:
  retention_days: 14
telemetry:
  project: drones
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autoseg.yaml")
	test.That(t, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)
	return path
}

func TestReadConfig(t *testing.T) {
	t.Setenv("AUTOSEG_IMAGES", "/data/drone-images")

	cfg, err := ReadConfig(writeConfig(t, sampleConfig))
	test.That(t, err, test.ShouldBeNil)

	// env interpolation
	test.That(t, cfg.ImagesDir, test.ShouldEqual, "/data/drone-images")
	// explicit values
	test.That(t, cfg.Train.Epochs, test.ShouldEqual, 20)
	test.That(t, cfg.Train.Extra["lr0"], test.ShouldEqual, 0.01)
	test.That(t, cfg.Publish.RetentionDays, test.ShouldEqual, 14)
	test.That(t, cfg.Telemetry.Project, test.ShouldEqual, "drones")
	// defaults fill in everything unset
	test.That(t, cfg.DatasetDir, test.ShouldEqual, DefaultDatasetDir)
	test.That(t, cfg.RunsDir, test.ShouldEqual, DefaultRunsDir)
	test.That(t, cfg.Publish.Dir, test.ShouldEqual, DefaultStoreDir)
	test.That(t, cfg.Train.RunsDir, test.ShouldEqual, DefaultRunsDir)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaultRetentionIsThirtyDays(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Publish.RetentionDays, test.ShouldEqual, 30)
	test.That(t, cfg.Publish.Retention(), test.ShouldEqual, 30*24*time.Hour)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Ontology = []ontology.Pair{{Prompt: "all drones", Class: "drone"}}
		return cfg
	}
	test.That(t, valid().Validate(), test.ShouldBeNil)

	cfg := valid()
	cfg.Ontology = nil
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg = valid()
	cfg.Publish.RetentionDays = 120
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "platform maximum")

	cfg = valid()
	cfg.Train.Epochs = -1
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg = valid()
	cfg.Label.SplitRatio = 2
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}
