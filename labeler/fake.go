package labeler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/seglab/autoseg/dataset"
	"github.com/seglab/autoseg/imageset"
	"github.com/seglab/autoseg/ontology"
)

// Fake is a deterministic Labeler for tests and dry runs. It copies every
// image into the tree, splitting by index, and writes one synthetic polygon
// label per image using the first ontology class. MatchNone simulates the
// zero-label condition: images are partitioned but no labels are written.
type Fake struct {
	SplitRatio float64
	MatchNone  bool
	// LabelCalls counts invocations, for asserting halt-before-label.
	LabelCalls int

	logger golog.Logger
}

// NewFake returns a Fake with the default split ratio.
func NewFake(logger golog.Logger) *Fake {
	return &Fake{SplitRatio: DefaultSplitRatio, logger: logger.Named("labeler.fake")}
}

// Label implements Labeler.
func (f *Fake) Label(
	ctx context.Context,
	imagesDir string,
	ont ontology.Ontology,
	tree *dataset.Tree,
) (*Report, error) {
	f.LabelCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", imagesDir)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && imageset.IsRaster(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	trainCount := int(float64(len(names)) * f.SplitRatio)
	for i, name := range names {
		split := dataset.TrainDir
		if i >= trainCount {
			split = dataset.ValidDir
		}
		if err := copyFile(filepath.Join(imagesDir, name), filepath.Join(tree.ImagesPath(split), name)); err != nil {
			return nil, err
		}
		if f.MatchNone {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		label := "0 0.1 0.1 0.9 0.1 0.9 0.9 0.1 0.9\n"
		labelPath := filepath.Join(tree.LabelsPath(split), stem+".txt")
		if err := os.WriteFile(labelPath, []byte(label), 0o644); err != nil {
			return nil, err
		}
	}

	report, err := BuildReport(tree, len(names))
	if err != nil {
		return nil, err
	}
	if report.Labeled == 0 {
		f.logger.Warnw("labeler produced zero labels; downstream training will see an empty dataset",
			"images_seen", report.ImagesSeen)
	}
	return report, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(in.Close)
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		utils.UncheckedError(out.Close())
		return err
	}
	return out.Close()
}
