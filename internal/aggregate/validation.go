package aggregate

import (
	"fmt"
	"log/slog"

	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/scoring"
	"github.com/fmbench/scoretab/internal/witness"
)

// weightedPoint is a pre-normalization quantile-plot point of the
// validation track. The witness category decides which pool the score is
// weighted against.
type weightedPoint struct {
	Score           float64
	Value           float64
	Status          string
	WitnessCategory string
}

// validationCounts carries one validator's view of a category's witness
// population. Every validator must observe the same population.
type validationCounts struct {
	tasks             int
	witnessesCorrect  int
	witnessesWrong    int
	possibleList      []weightedPoint
	possibleFalseList []weightedPoint
}

func (c *validationCounts) add(o validationCounts) {
	c.tasks += o.tasks
	c.witnessesCorrect += o.witnessesCorrect
	c.witnessesWrong += o.witnessesWrong
	c.possibleList = append(c.possibleList, o.possibleList...)
	c.possibleFalseList = append(c.possibleFalseList, o.possibleFalseList...)
}

func (c *validationCounts) valid() int {
	return c.witnessesCorrect + c.witnessesWrong
}

// maxScore returns the points a validator can earn on one witness:
// rejecting a wrong witness or confirming a correct violation witness is
// one point, confirming a correct correctness witness (or correctly
// handling a wrong violation witness) two, everything else zero.
func maxScore(rec *results.Record) int {
	witnessType := rec.Columns.WitnessType
	if witnessType == "" {
		return 0
	}
	violation := witnessType == "violation_witness" || witnessType == "VIOLATION"
	correctness := witnessType == "correctness_witness" || witnessType == "CORRECTNESS"

	switch witness.Classification(rec.WitnessCategory) {
	case witness.ClassCorrect:
		if violation {
			return scoring.ScoreCorrectFalse
		}
		if correctness {
			return scoring.ScoreCorrectTrue
		}
	case witness.ClassWrong:
		if correctness {
			return scoring.ScoreCorrectFalse
		}
		if violation {
			return scoring.ScoreCorrectTrue
		}
	}
	return 0
}

// validationInfo counts one run set's witness population and possible
// scores.
func validationInfo(set *results.RunSet) validationCounts {
	var counts validationCounts
	counts.tasks = set.Len()
	for _, rec := range set.Tasks() {
		witnessCategory := rec.WitnessCategory
		switch witness.Classification(witnessCategory) {
		case witness.ClassCorrect:
			counts.witnessesCorrect++
		case witness.ClassWrong:
			counts.witnessesWrong++
		}
		expectedTrue, hasExpected := rec.ExpectedTrue().Get()
		if !hasExpected {
			continue
		}
		point := weightedPoint{
			Score:           float64(maxScore(rec)),
			WitnessCategory: witnessCategory,
		}
		counts.possibleList = append(counts.possibleList, point)
		if !expectedTrue {
			counts.possibleFalseList = append(counts.possibleFalseList, point)
		}
	}
	return counts
}

// normalizeWeighted divides each point's score by the size of its witness
// pool and by the number of non-empty pools. Points from undecided
// witnesses score zero.
func normalizeWeighted(points []weightedPoint, counts validationCounts) []scoring.QPlotPoint {
	poolCount := 0
	if counts.witnessesCorrect > 0 {
		poolCount++
	}
	if counts.witnessesWrong > 0 {
		poolCount++
	}
	if poolCount == 0 {
		return nil
	}

	normalized := make([]scoring.QPlotPoint, 0, len(points))
	for _, p := range points {
		score := 0.0
		switch witness.Classification(p.WitnessCategory) {
		case witness.ClassCorrect:
			score = p.Score / float64(counts.witnessesCorrect)
		case witness.ClassWrong:
			score = p.Score / float64(counts.witnessesWrong)
		}
		normalized = append(normalized, scoring.QPlotPoint{
			Score:  score / float64(poolCount),
			Value:  p.Value,
			Status: p.Status,
		})
	}
	return normalized
}

func sumScores(points []scoring.QPlotPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Score
	}
	return sum
}

// validatorRawResult folds one (validator, producer) run set. The returned
// quantile points are unnormalized and still carry the witness category.
func validatorRawResult(name, tool string, set *results.RunSet) (*scoring.CategoryResult, []weightedPoint, []weightedPoint) {
	res := &scoring.CategoryResult{}
	if set.SourceFile != "" {
		res.ResultsFiles = []string{set.SourceFile}
	}
	explicit := hasScoreColumn(set)

	for _, rec := range set.Tasks() {
		score, ok := recordScore(rec, explicit)
		if !ok {
			continue
		}
		res.Score += score
		isFalse := results.IsStatusFalse(rec.Status)
		if isFalse {
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

	qpTime := validationQPlot(name, tool, set, explicit,
		func(r *results.Record) float64 { return r.Columns.CPUTime.Or(0) })
	qpEnergy := validationQPlot(name, tool, set, explicit,
		func(r *results.Record) float64 { return r.Columns.CPUEnergy.Or(0) })
	return res, qpTime, qpEnergy
}

func validationQPlot(name, tool string, set *results.RunSet, explicit bool,
	value func(*results.Record) float64) []weightedPoint {

	var points []weightedPoint
	for _, rec := range set.Tasks() {
		switch rec.Category {
		case results.CategoryCorrect, results.CategoryCorrectUnconfirmed, results.CategoryWrong:
			score, ok := recordScore(rec, explicit)
			if !ok {
				continue
			}
			points = append(points, weightedPoint{
				Score:           score,
				Value:           value(rec),
				Status:          rec.Status,
				WitnessCategory: rec.WitnessCategory,
			})
		case results.CategoryMissing:
			slog.Debug("Result category missing, no quantile value",
				"task", rec.Task, "category", name, "tool", tool)
		}
	}
	return points
}

// BaseValidation folds the run sets of one validation-track base category.
// Each validator contributes one run set per witness producer; scores are
// normalized by the witness population, which must look the same to every
// validator.
func BaseValidation(name string, perValidator map[string][]*results.RunSet) (*scoring.ValidationCategory, error) {
	cat := scoring.NewValidationCategory(name)
	population := validationCounts{}

	for _, validator := range sortedKeys(perValidator) {
		var validatorCounts validationCounts
		var res *scoring.CategoryResult
		var qpTime, qpEnergy []weightedPoint

		for _, set := range perValidator[validator] {
			validatorCounts.add(validationInfo(set))

			producerRes, producerTime, producerEnergy := validatorRawResult(name, validator, set)
			if res == nil {
				res = producerRes
			} else {
				res = res.Add(producerRes)
			}
			qpTime = append(qpTime, producerTime...)
			qpEnergy = append(qpEnergy, producerEnergy...)
		}
		if res == nil {
			continue
		}

		if validatorCounts.tasks > 0 {
			if population.valid() > 0 && population.valid() != validatorCounts.valid() {
				return nil, fmt.Errorf(
					"category %s: validator %s sees %d decided witnesses, earlier validators saw %d",
					name, validator, validatorCounts.valid(), population.valid())
			}
			population = validatorCounts

			res.QPlotCPUTime = normalizeWeighted(qpTime, validatorCounts)
			res.QPlotCPUEnergy = normalizeWeighted(qpEnergy, validatorCounts)
			res.Score = sumScores(res.QPlotCPUTime) * float64(validatorCounts.valid())
		}
		cat.ByTool[validator] = res
	}

	cat.Tasks = population.tasks
	cat.WitnessesCorrect = population.witnessesCorrect
	cat.WitnessesWrong = population.witnessesWrong

	normalizedPossible := normalizeWeighted(population.possibleList, population)
	cat.MaxScoreList = scoresOf(normalizedPossible)
	cat.MaxScore = sumScores(normalizedPossible) * float64(population.valid())

	normalizedPossibleFalse := normalizeWeighted(population.possibleFalseList, population)
	cat.MaxScoreFalseList = scoresOf(normalizedPossibleFalse)
	cat.MaxScoreFalse = sumScores(normalizedPossibleFalse) * float64(population.valid())

	return cat, nil
}

func scoresOf(points []scoring.QPlotPoint) []float64 {
	scores := make([]float64, 0, len(points))
	for _, p := range points {
		scores = append(scores, p.Score)
	}
	return scores
}
