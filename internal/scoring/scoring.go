// Package scoring defines the competition scoring schema and the value
// types that aggregation accumulates per participant and category.
package scoring

import (
	"fmt"
	"math"
)

// Points awarded per task outcome in the verification track.
const (
	ScoreCorrectTrue  = 2
	ScoreCorrectFalse = 1
	ScoreWrongTrue    = -32
	ScoreWrongFalse   = -16
)

// identityEps bounds the float drift allowed when checking score sums that
// are mathematically integers.
const identityEps = 1e-6

// CategoryData is one accumulated measurement (cputime, cpuenergy) split by
// outcome class. Addition is component-wise, associative, and commutative.
type CategoryData struct {
	Total            float64
	Success          float64
	SuccessFalse     float64
	Unconfirmed      float64
	UnconfirmedFalse float64
}

// SuccessTrue is the confirmed-correct share on true-expected tasks.
func (d CategoryData) SuccessTrue() float64 {
	return d.Success - d.SuccessFalse
}

func (d CategoryData) UnconfirmedTrue() float64 {
	return d.Unconfirmed - d.UnconfirmedFalse
}

func (d CategoryData) Add(o CategoryData) CategoryData {
	return CategoryData{
		Total:            d.Total + o.Total,
		Success:          d.Success + o.Success,
		SuccessFalse:     d.SuccessFalse + o.SuccessFalse,
		Unconfirmed:      d.Unconfirmed + o.Unconfirmed,
		UnconfirmedFalse: d.UnconfirmedFalse + o.UnconfirmedFalse,
	}
}

// Accumulate sums a list of CategoryData component-wise.
func Accumulate(data []CategoryData) CategoryData {
	var acc CategoryData
	for _, d := range data {
		acc = acc.Add(d)
	}
	return acc
}

// QPlotPoint is one quantile-plot data point: a task's normalized score,
// the measurement value, and the raw status string.
type QPlotPoint struct {
	Score  float64
	Value  float64
	Status string
}

// CombineQPlots merges the per-category point lists of a meta-category,
// dividing each score by the number of child categories.
func CombineQPlots(qplots [][]QPlotPoint, categoryAmount int) []QPlotPoint {
	var combined []QPlotPoint
	for _, points := range qplots {
		for _, p := range points {
			score := 0.0
			if categoryAmount > 0 {
				score = p.Score / float64(categoryAmount)
			}
			combined = append(combined, QPlotPoint{Score: score, Value: p.Value, Status: p.Status})
		}
	}
	return combined
}

// CategoryResult is one participant's aggregated outcome for one category.
// Addition is field-wise and must only be used across disjoint categories.
type CategoryResult struct {
	Score      float64
	ScoreFalse float64

	CPUTime   CategoryData
	CPUEnergy CategoryData

	CorrectFalse            int
	CorrectTrue             int
	CorrectUnconfirmedFalse int
	CorrectUnconfirmedTrue  int
	IncorrectFalse          int
	IncorrectTrue           int

	QPlotCPUTime   []QPlotPoint
	QPlotCPUEnergy []QPlotPoint

	ResultsFiles []string
}

func (r *CategoryResult) Add(o *CategoryResult) *CategoryResult {
	sum := &CategoryResult{
		Score:                   r.Score + o.Score,
		ScoreFalse:              r.ScoreFalse + o.ScoreFalse,
		CPUTime:                 r.CPUTime.Add(o.CPUTime),
		CPUEnergy:               r.CPUEnergy.Add(o.CPUEnergy),
		CorrectFalse:            r.CorrectFalse + o.CorrectFalse,
		CorrectTrue:             r.CorrectTrue + o.CorrectTrue,
		CorrectUnconfirmedFalse: r.CorrectUnconfirmedFalse + o.CorrectUnconfirmedFalse,
		CorrectUnconfirmedTrue:  r.CorrectUnconfirmedTrue + o.CorrectUnconfirmedTrue,
		IncorrectFalse:          r.IncorrectFalse + o.IncorrectFalse,
		IncorrectTrue:           r.IncorrectTrue + o.IncorrectTrue,
	}
	sum.QPlotCPUTime = append(append([]QPlotPoint{}, r.QPlotCPUTime...), o.QPlotCPUTime...)
	sum.QPlotCPUEnergy = append(append([]QPlotPoint{}, r.QPlotCPUEnergy...), o.QPlotCPUEnergy...)
	sum.ResultsFiles = append(append([]string{}, r.ResultsFiles...), o.ResultsFiles...)
	return sum
}

func (r *CategoryResult) IsEmpty() bool {
	return r.Score == 0 &&
		r.ScoreFalse == 0 &&
		r.CorrectFalse == 0 &&
		r.CorrectTrue == 0 &&
		r.CorrectUnconfirmedFalse == 0 &&
		r.CorrectUnconfirmedTrue == 0 &&
		r.IncorrectFalse == 0 &&
		r.IncorrectTrue == 0 &&
		len(r.QPlotCPUTime) == 0 &&
		len(r.QPlotCPUEnergy) == 0 &&
		len(r.ResultsFiles) == 0
}

// VerifyScoreIdentity asserts the verification-track scoring schema on an
// aggregated result. A violation means the accounting is corrupt, so
// callers must treat the returned error as fatal. The false-score check is
// skipped when skipFalse is set (categories whose false results carry no
// score by definition).
func (r *CategoryResult) VerifyScoreIdentity(skipFalse bool) error {
	want := float64(r.CorrectFalse*ScoreCorrectFalse +
		r.CorrectTrue*ScoreCorrectTrue +
		r.IncorrectFalse*ScoreWrongFalse +
		r.IncorrectTrue*ScoreWrongTrue)
	if math.Abs(r.Score-want) > identityEps {
		return fmt.Errorf("score identity violated: have %v, schema demands %v", r.Score, want)
	}
	if skipFalse {
		return nil
	}
	wantFalse := float64(r.CorrectFalse*ScoreCorrectFalse + r.IncorrectFalse*ScoreWrongFalse)
	if math.Abs(r.ScoreFalse-wantFalse) > identityEps {
		return fmt.Errorf("false-score identity violated: have %v, schema demands %v", r.ScoreFalse, wantFalse)
	}
	return nil
}
