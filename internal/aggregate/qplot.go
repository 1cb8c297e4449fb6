package aggregate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/scoring"
)

// FalsifierPrefix marks categories ranked by false-verdict score only.
const FalsifierPrefix = "Falsification"

// QPlotRow is one line of a quantile-plot CSV: accumulated score on the
// x axis, measurement value on the y axis.
type QPlotRow struct {
	X float64
	Y float64
}

// QPlotCSV orders one participant's quantile points for plotting. The
// curve starts at the sum of all negative scores and walks right through
// the positive scores in order of increasing measurement value.
func QPlotCSV(points []scoring.QPlotPoint, node scoring.CategoryNode) []QPlotRow {
	if len(points) == 0 {
		return nil
	}
	tasks := float64(node.ValidTaskCount())

	data := points
	if strings.HasPrefix(node.Name(), FalsifierPrefix) {
		data = nil
		for _, p := range points {
			if results.IsStatusFalse(p.Status) {
				data = append(data, p)
			}
		}
	}

	index := 0.0
	for _, p := range data {
		if p.Score < 0 {
			index += p.Score * tasks
		}
	}

	positive := make([]scoring.QPlotPoint, 0, len(data))
	for _, p := range data {
		if p.Score > 0 {
			positive = append(positive, p)
		}
	}
	sort.Slice(positive, func(i, j int) bool { return positive[i].Value < positive[j].Value })

	rows := make([]QPlotRow, 0, len(positive))
	for _, p := range positive {
		index += p.Score * tasks
		rows = append(rows, QPlotRow{X: index, Y: p.Value})
	}
	return rows
}

// CoverageQPlotCSV orders quantile points of score-column categories:
// tasks sorted by decreasing score, accumulated score on the x axis and
// the task count on the y axis.
func CoverageQPlotCSV(points []scoring.QPlotPoint, node scoring.CategoryNode) []QPlotRow {
	if len(points) == 0 {
		return nil
	}
	tasks := float64(node.ValidTaskCount())

	nonNegative := make([]scoring.QPlotPoint, 0, len(points))
	for _, p := range points {
		if p.Score >= 0 {
			nonNegative = append(nonNegative, p)
		}
	}
	sort.Slice(nonNegative, func(i, j int) bool { return nonNegative[i].Score > nonNegative[j].Score })

	var rows []QPlotRow
	count, accum := 0.0, 0.0
	for _, p := range nonNegative {
		count++
		accum += p.Score * tasks
		rows = append(rows, QPlotRow{X: accum, Y: count})
	}
	return rows
}

// WriteQPlotCSV writes rows as a tab-separated file, creating parent
// directories as needed. Nothing is written for an empty curve.
func WriteQPlotCSV(path string, rows []QPlotRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating quantile-plot directory: %w", err)
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%v\t%v\n", r.X, r.Y)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing quantile-plot data: %w", err)
	}
	return nil
}
