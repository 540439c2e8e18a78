package trainer

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

const sampleResults = `                  epoch,         train/box_loss,         train/seg_loss,       metrics/mAP50(M),    metrics/mAP50-95(M)
                      0,                 1.4321,                 2.1034,                0.21345,                0.10012
                      1,                 1.1207,                 1.8311,                0.35891,                0.19924
                      2,                 0.9914,                 1.5410,                0.31007,                0.17733
`

func writeResults(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	test.That(t, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)
	return path
}

func TestParseResults(t *testing.T) {
	metrics, err := ParseResults(writeResults(t, sampleResults))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, metrics, test.ShouldHaveLength, 3)
	test.That(t, metrics[0].Epoch, test.ShouldEqual, 0)
	test.That(t, metrics[1].BoxLoss, test.ShouldAlmostEqual, 1.1207)
	test.That(t, metrics[1].SegLoss, test.ShouldAlmostEqual, 1.8311)
	test.That(t, metrics[1].MAP50, test.ShouldAlmostEqual, 0.35891)
	test.That(t, metrics[2].MAP5095, test.ShouldAlmostEqual, 0.17733)
}

func TestParseResultsBoxFallback(t *testing.T) {
	boxOnly := `epoch,train/box_loss,metrics/mAP50(B),metrics/mAP50-95(B)
0,1.5,0.4,0.2
`
	metrics, err := ParseResults(writeResults(t, boxOnly))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, metrics, test.ShouldHaveLength, 1)
	test.That(t, metrics[0].MAP50, test.ShouldAlmostEqual, 0.4)
	test.That(t, metrics[0].MAP5095, test.ShouldAlmostEqual, 0.2)
	test.That(t, metrics[0].SegLoss, test.ShouldEqual, 0)
}

func TestParseResultsMetricInFirstColumn(t *testing.T) {
	firstCol := `metrics/mAP50(B),epoch,metrics/mAP50-95(B)
0.4,0,0.2
`
	metrics, err := ParseResults(writeResults(t, firstCol))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, metrics, test.ShouldHaveLength, 1)
	test.That(t, metrics[0].MAP50, test.ShouldAlmostEqual, 0.4)
	test.That(t, metrics[0].MAP5095, test.ShouldAlmostEqual, 0.2)
}

func TestParseResultsMissingFile(t *testing.T) {
	metrics, err := ParseResults(filepath.Join(t.TempDir(), "results.csv"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, metrics, test.ShouldBeNil)
}

func TestParseResultsNoEpochColumn(t *testing.T) {
	_, err := ParseResults(writeResults(t, "a,b\n1,2\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no epoch column")
}

func TestSummarize(t *testing.T) {
	test.That(t, Summarize(nil), test.ShouldResemble, Summary{})

	summary := Summarize([]EpochMetrics{
		{Epoch: 0, MAP50: 0.2},
		{Epoch: 1, MAP50: 0.6},
		{Epoch: 2, MAP50: 0.4},
	})
	test.That(t, summary.Epochs, test.ShouldEqual, 3)
	test.That(t, summary.BestMAP50, test.ShouldAlmostEqual, 0.6)
	test.That(t, summary.MeanMAP50, test.ShouldAlmostEqual, 0.4)
}
