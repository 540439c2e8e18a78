// Package dataset owns the generated train/valid directory tree and the
// manifest the external trainer consumes. The tree is derived state: it is
// rebuilt from scratch on every run so no stale labels can survive.
package dataset

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Subdirectory names of the canonical segmentation dataset layout.
const (
	TrainDir  = "train"
	ValidDir  = "valid"
	ImagesDir = "images"
	LabelsDir = "labels"
)

// A Tree is the dataset directory rooted at Root:
//
//	Root/
//	  train/images  train/labels
//	  valid/images  valid/labels
//	  data.yaml
type Tree struct {
	Root string
}

// NewTree returns a Tree rooted at root. Nothing is created until Scaffold.
func NewTree(root string) *Tree {
	return &Tree{Root: root}
}

// Scaffold deletes any existing tree and recreates the empty layout. The
// clean-slate rebuild is a precondition of labeling, not an optimization:
// label files from a previous run must never leak into this one.
func (t *Tree) Scaffold() error {
	if err := os.RemoveAll(t.Root); err != nil {
		return errors.Wrapf(err, "error clearing dataset root %q", t.Root)
	}
	for _, dir := range []string{
		t.ImagesPath(TrainDir),
		t.LabelsPath(TrainDir),
		t.ImagesPath(ValidDir),
		t.LabelsPath(ValidDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "error creating %q", dir)
		}
	}
	return nil
}

// ImagesPath returns the images directory for the given split.
func (t *Tree) ImagesPath(split string) string {
	return filepath.Join(t.Root, split, ImagesDir)
}

// LabelsPath returns the labels directory for the given split.
func (t *Tree) LabelsPath(split string) string {
	return filepath.Join(t.Root, split, LabelsDir)
}

// ManifestPath returns where the manifest lives within the tree.
func (t *Tree) ManifestPath() string {
	return filepath.Join(t.Root, ManifestName)
}

// CountImages returns how many image files sit in the train and valid splits.
func (t *Tree) CountImages() (train, valid int, err error) {
	train, err = countFiles(t.ImagesPath(TrainDir))
	if err != nil {
		return 0, 0, err
	}
	valid, err = countFiles(t.ImagesPath(ValidDir))
	if err != nil {
		return 0, 0, err
	}
	return train, valid, nil
}

// CountLabels returns how many label files sit in the train and valid
// splits. A total of zero after labeling is the zero-label soft failure.
func (t *Tree) CountLabels() (train, valid int, err error) {
	train, err = countFiles(t.LabelsPath(TrainDir))
	if err != nil {
		return 0, 0, err
	}
	valid, err = countFiles(t.LabelsPath(ValidDir))
	if err != nil {
		return 0, 0, err
	}
	return train, valid, nil
}

func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			n++
		}
	}
	return n, nil
}
