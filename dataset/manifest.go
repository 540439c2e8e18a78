package dataset

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"go.viam.com/utils/artifact"
	"gopkg.in/yaml.v3"

	"github.com/seglab/autoseg/ontology"
)

// ManifestName is the filename the external trainer expects.
const ManifestName = "data.yaml"

// A Manifest declares the class count, class names, and split paths of a
// dataset tree. The YAML shape is dictated by the external trainer.
type Manifest struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// WriteManifest writes data.yaml for the tree from the given ontology. The
// class count always equals the ontology's distinct class count. The write
// is atomic so a crashed run never leaves a truncated manifest behind.
func (t *Tree) WriteManifest(ont ontology.Ontology) (*Manifest, error) {
	absRoot, err := filepath.Abs(t.Root)
	if err != nil {
		return nil, err
	}
	classes := ont.Classes()
	m := &Manifest{
		Path:  absRoot,
		Train: filepath.Join(TrainDir, ImagesDir),
		Val:   filepath.Join(ValidDir, ImagesDir),
		NC:    len(classes),
		Names: classes,
	}
	md, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling manifest")
	}
	if err := artifact.AtomicStore(t.ManifestPath(), bytes.NewReader(md), ManifestName); err != nil {
		return nil, errors.Wrapf(err, "error writing manifest %q", t.ManifestPath())
	}
	return m, nil
}

// ReadManifest reads a manifest back from disk.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening manifest %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	var m Manifest
	if err := yaml.NewDecoder(f).Decode(&m); err != nil {
		return nil, errors.Wrapf(err, "cannot parse manifest %q", path)
	}
	if m.NC != len(m.Names) {
		return nil, errors.Errorf("manifest %q declares %d classes but names %d", path, m.NC, len(m.Names))
	}
	return &m, nil
}
