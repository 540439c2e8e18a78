// Package labeler invokes an external zero-shot labeling capability: given
// an image directory and a caption ontology, it produces a partitioned
// dataset tree with per-image mask label files. Label quality is entirely
// delegated; this layer owns only the invocation and the resulting report.
package labeler

import (
	"context"
	"os"

	"github.com/seglab/autoseg/dataset"
	"github.com/seglab/autoseg/imageset"
	"github.com/seglab/autoseg/ontology"
)

// A Labeler populates a scaffolded dataset tree from an image directory
// and an ontology.
type Labeler interface {
	Label(ctx context.Context, imagesDir string, ont ontology.Ontology, tree *dataset.Tree) (*Report, error)
}

// A Report summarizes one labeling invocation. Labeled == 0 is the
// zero-label soft failure: the run proceeds, but the operator should notice.
type Report struct {
	ImagesSeen  int
	Labeled     int
	TrainImages int
	ValidImages int
}

// Skipped returns how many input images ended up with no label file.
func (r *Report) Skipped() int {
	return r.ImagesSeen - r.Labeled
}

// BuildReport derives a Report by walking the populated tree.
func BuildReport(tree *dataset.Tree, imagesSeen int) (*Report, error) {
	trainLabels, validLabels, err := tree.CountLabels()
	if err != nil {
		return nil, err
	}
	trainImages, validImages, err := tree.CountImages()
	if err != nil {
		return nil, err
	}
	return &Report{
		ImagesSeen:  imagesSeen,
		Labeled:     trainLabels + validLabels,
		TrainImages: trainImages,
		ValidImages: validImages,
	}, nil
}

// countImages counts the raster files in dir, matching what intake would
// have accepted; stray non-image files must not inflate ImagesSeen.
func countImages(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && imageset.IsRaster(entry.Name()) {
			n++
		}
	}
	return n, nil
}
