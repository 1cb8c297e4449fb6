// Package aggregate folds adjusted run sets into per-category results:
// base categories directly from the records, meta categories by
// task-count-normalized combination of their children.
package aggregate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/scoring"
)

// The termination runs on Linux device drivers carry no false-score by a
// standing jury decision.
const deviceDriversTermination = "termination.SoftwareSystems-DeviceDriversLinux64-Termination"

// invalidTaskPrefix tags tasks banned after the fact; their missing
// category is expected and not worth a diagnostic.
const invalidTaskPrefix = "invalid task ("

// BaseVerification folds the verifier run sets of one base category into a
// category node. Task counts and the possible score come from the first
// run set with valid tasks; runs carrying an explicit score column are
// trusted as-is (their maximum score is unknowable), everything else is
// scored by the schema and checked against the score identity.
func BaseVerification(name string, perTool map[string]*results.RunSet) (*scoring.VerificationCategory, error) {
	cat := scoring.NewVerificationCategory(name, 0, 0, 0, 0, 0)

	for _, tool := range sortedKeys(perTool) {
		set := perTool[tool]
		if cat.ValidTaskCount() == 0 {
			info := verificationInfo(name, set)
			if info == nil {
				slog.Debug("No valid tasks in run set", "category", name, "tool", tool)
				continue
			}
			info.ByTool = cat.ByTool
			cat = info
		}
		res, err := verifierResult(name, tool, set, cat.ValidTaskCount())
		if err != nil {
			return nil, err
		}
		cat.ByTool[tool] = res
	}
	return cat, nil
}

// verificationInfo derives the task counts and maximum scores of a
// category from one run set. Returns nil when the set has no valid tasks.
func verificationInfo(name string, set *results.RunSet) *scoring.VerificationCategory {
	tasks := set.Len()
	if hasScoreColumn(set) {
		// Explicit scores, e.g. coverage fractions: no true/false split
		// and no schema-derived maximum. All tasks count as valid.
		if tasks == 0 {
			return nil
		}
		return scoring.NewVerificationCategory(name, tasks, tasks, 0, 0, 0)
	}

	countTrue, countFalse := 0, 0
	for _, rec := range set.Tasks() {
		if rec.Category == results.CategoryMissing {
			continue
		}
		if expectedTrue, ok := rec.ExpectedTrue().Get(); ok {
			if expectedTrue {
				countTrue++
			} else {
				countFalse++
			}
		}
	}
	if countTrue+countFalse == 0 {
		return nil
	}

	possible := float64(countTrue*scoring.ScoreCorrectTrue + countFalse*scoring.ScoreCorrectFalse)
	possibleFalse := float64(countFalse * scoring.ScoreCorrectFalse)
	if name == deviceDriversTermination {
		possibleFalse = 0
	}
	return scoring.NewVerificationCategory(name, tasks, countTrue, countFalse, possible, possibleFalse)
}

func hasScoreColumn(set *results.RunSet) bool {
	for _, rec := range set.Tasks() {
		if rec.Columns.Score.Present() {
			return true
		}
	}
	return false
}

// recordScore resolves one record's score: the explicit score column when
// the run set carries one, the scoring schema otherwise. The second return
// is false when no score can be determined.
func recordScore(rec *results.Record, explicit bool) (float64, bool) {
	if explicit {
		return rec.Columns.Score.Get()
	}
	switch rec.Category {
	case results.CategoryCorrect:
		if results.IsStatusFalse(rec.Status) {
			return scoring.ScoreCorrectFalse, true
		}
		return scoring.ScoreCorrectTrue, true
	case results.CategoryWrong:
		if results.IsStatusFalse(rec.Status) {
			return scoring.ScoreWrongFalse, true
		}
		return scoring.ScoreWrongTrue, true
	case results.CategoryCorrectUnconfirmed, results.CategoryError, results.CategoryUnknown:
		return 0, true
	default:
		return 0, false
	}
}

// verifierResult folds one verifier's run set into a category result.
func verifierResult(name, tool string, set *results.RunSet, validTasks int) (*scoring.CategoryResult, error) {
	explicit := hasScoreColumn(set)
	res := &scoring.CategoryResult{}
	if set.SourceFile != "" {
		res.ResultsFiles = []string{set.SourceFile}
	}

	for _, rec := range set.Tasks() {
		score, ok := recordScore(rec, explicit)
		if !ok {
			if !strings.HasPrefix(rec.Status, invalidTaskPrefix) {
				slog.Warn("Score missing for task",
					"task", rec.Task, "category", name, "tool", tool)
			}
			continue
		}

		res.Score += score
		isFalse := results.IsStatusFalse(rec.Status)
		if isFalse && name != deviceDriversTermination {
			res.ScoreFalse += score
		}

		switch rec.Category {
		case results.CategoryCorrect:
			if isFalse {
				res.CorrectFalse++
			} else {
				res.CorrectTrue++
			}
		case results.CategoryCorrectUnconfirmed:
			if isFalse {
				res.CorrectUnconfirmedFalse++
			} else {
				res.CorrectUnconfirmedTrue++
			}
		case results.CategoryWrong:
			if isFalse {
				res.IncorrectFalse++
			} else {
				res.IncorrectTrue++
			}
		}
	}

	res.CPUTime = measurementData(set, func(r *results.Record) float64 { return r.Columns.CPUTime.Or(0) })
	res.CPUEnergy = measurementData(set, func(r *results.Record) float64 { return r.Columns.CPUEnergy.Or(0) })

	var err error
	res.QPlotCPUTime, err = qplotData(name, tool, set, validTasks, explicit,
		func(r *results.Record) float64 { return r.Columns.CPUTime.Or(0) })
	if err != nil {
		return nil, err
	}
	res.QPlotCPUEnergy, err = qplotData(name, tool, set, validTasks, explicit,
		func(r *results.Record) float64 { return r.Columns.CPUEnergy.Or(0) })
	if err != nil {
		return nil, err
	}

	if !explicit {
		if err := res.VerifyScoreIdentity(name == deviceDriversTermination); err != nil {
			return nil, fmt.Errorf("category %s, tool %s: %w", name, tool, err)
		}
	}
	return res, nil
}

// measurementData accumulates one measurement column split by outcome
// class. Absent values count as zero.
func measurementData(set *results.RunSet, value func(*results.Record) float64) scoring.CategoryData {
	var data scoring.CategoryData
	for _, rec := range set.Tasks() {
		v := value(rec)
		isFalse := results.IsStatusFalse(rec.Status)

		data.Total += v
		switch rec.Category {
		case results.CategoryCorrect:
			data.Success += v
			if isFalse {
				data.SuccessFalse += v
			}
		case results.CategoryCorrectUnconfirmed:
			data.Unconfirmed += v
			if isFalse {
				data.UnconfirmedFalse += v
			}
		}
	}
	return data
}

// qplotData collects the quantile-plot points of one run set: the
// task-normalized score paired with a measurement value, for every decided
// task. An undecidable category label is a corrupted input and fatal.
func qplotData(name, tool string, set *results.RunSet, validTasks int, explicit bool,
	value func(*results.Record) float64) ([]scoring.QPlotPoint, error) {

	var points []scoring.QPlotPoint
	for _, rec := range set.Tasks() {
		switch rec.Category {
		case results.CategoryCorrect, results.CategoryCorrectUnconfirmed, results.CategoryWrong:
			score, ok := recordScore(rec, explicit)
			if !ok || validTasks == 0 {
				continue
			}
			points = append(points, scoring.QPlotPoint{
				Score:  score / float64(validTasks),
				Value:  value(rec),
				Status: rec.Status,
			})
		case results.CategoryMissing:
			if !strings.HasPrefix(rec.Status, invalidTaskPrefix) {
				slog.Warn("Result category missing, cannot produce quantile data",
					"status", rec.Status, "task", rec.Task, "category", name, "tool", tool)
			}
		case results.CategoryError, results.CategoryUnknown:
			// no data point
		default:
			return nil, fmt.Errorf("unexpected category %q for task %s in %s/%s",
				rec.Category, rec.Task, tool, name)
		}
	}
	return points, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
