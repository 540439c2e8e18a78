package trainer

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Column names in the trainer's results.csv. Mask metrics are preferred;
// box metrics are the fallback for plain detection runs.
const (
	colEpoch       = "epoch"
	colBoxLoss     = "train/box_loss"
	colSegLoss     = "train/seg_loss"
	colMaskMAP50   = "metrics/mAP50(M)"
	colMaskMAP5095 = "metrics/mAP50-95(M)"
	colBoxMAP50    = "metrics/mAP50(B)"
	colBoxMAP5095  = "metrics/mAP50-95(B)"
)

// ParseResults reads the trainer's progressive results.csv. Header cells are
// space-padded by the tool, so they are trimmed before matching. A missing
// file yields no metrics and no error since the tool only creates the file
// after the first epoch.
func ParseResults(path string) ([]EpochMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error opening results %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse results %q", path)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.TrimSpace(name)] = i
	}
	epochIdx, ok := cols[colEpoch]
	if !ok {
		return nil, errors.Errorf("results %q has no epoch column", path)
	}
	map50Idx, map50OK := cols[colMaskMAP50]
	map5095Idx, map5095OK := cols[colMaskMAP5095]
	if !map50OK {
		map50Idx, map50OK = cols[colBoxMAP50]
		map5095Idx, map5095OK = cols[colBoxMAP5095]
	}

	var out []EpochMetrics
	for _, row := range rows[1:] {
		m := EpochMetrics{}
		epoch, err := strconv.Atoi(strings.TrimSpace(row[epochIdx]))
		if err != nil {
			return nil, errors.Wrapf(err, "bad epoch value in %q", path)
		}
		m.Epoch = epoch
		m.BoxLoss = floatAt(row, cols, colBoxLoss)
		m.SegLoss = floatAt(row, cols, colSegLoss)
		m.MAP50 = floatIdx(row, map50Idx, map50OK)
		m.MAP5095 = floatIdx(row, map5095Idx, map5095OK)
		out = append(out, m)
	}
	return out, nil
}

func floatAt(row []string, cols map[string]int, name string) float64 {
	idx, ok := cols[name]
	return floatIdx(row, idx, ok)
}

func floatIdx(row []string, idx int, ok bool) float64 {
	if !ok || idx >= len(row) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0
	}
	return v
}

// Summarize condenses per-epoch metrics into a Summary.
func Summarize(metrics []EpochMetrics) Summary {
	if len(metrics) == 0 {
		return Summary{}
	}
	values := make([]float64, 0, len(metrics))
	for _, m := range metrics {
		values = append(values, m.MAP50)
	}
	best, err := stats.Max(values)
	if err != nil {
		best = 0
	}
	mean, err := stats.Mean(values)
	if err != nil {
		mean = 0
	}
	return Summary{Epochs: len(metrics), BestMAP50: best, MeanMAP50: mean}
}
