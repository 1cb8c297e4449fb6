package aggregate

import (
	"fmt"
	"log/slog"

	"github.com/fmbench/scoretab/internal/scoring"
)

// Corrections are the jury-decided task-count adjustments applied when
// normalizing meta categories.
type Corrections struct {
	// FalsificationName is the meta category whose task counts are reduced
	// because its children overlap.
	FalsificationName        string
	FalsificationTrueOffset  int
	FalsificationFalseOffset int

	// SoftwareSystemsName is the child category whose termination tasks
	// are excluded from false-score normalization.
	SoftwareSystemsName        string
	SoftwareSystemsFalseOffset int
}

func DefaultCorrections() Corrections {
	return Corrections{
		FalsificationName:          "FalsificationOverall",
		FalsificationTrueOffset:    91,
		FalsificationFalseOffset:   176,
		SoftwareSystemsName:        "SoftwareSystems",
		SoftwareSystemsFalseOffset: 267,
	}
}

// falseTasks returns the task count a child's false-score is normalized
// against.
func (c Corrections) falseTasks(child scoring.CategoryNode) int {
	tasks := child.ValidTaskCount()
	if child.Name() == c.SoftwareSystemsName {
		tasks -= c.SoftwareSystemsFalseOffset
	}
	return tasks
}

// NormalizeVerification combines child categories into a meta category.
// Each child contributes the average score per valid task, so small
// categories weigh as much as large ones; the sum of the averages is then
// scaled back to the meta category's own task count. Children without a
// single valid task are dropped from the combination. A participant is
// ranked only when it competed in every remaining child.
func NormalizeVerification(meta string, children []scoring.CategoryNode, corr Corrections) (*scoring.VerificationCategory, error) {
	var valid []scoring.CategoryNode
	for _, child := range children {
		if child.ValidTaskCount() != 0 {
			valid = append(valid, child)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("meta category %s has no children with valid tasks", meta)
	}

	amount := len(valid)
	tasksTotal, tasksTrue, tasksFalse := 0, 0, 0
	for _, child := range valid {
		tasksTotal += child.TaskCount()
		if vc, ok := child.(*scoring.VerificationCategory); ok {
			tasksTrue += vc.TasksTrue
			tasksFalse += vc.TasksFalse
		}
	}
	if meta == corr.FalsificationName {
		tasksTrue -= corr.FalsificationTrueOffset
		tasksFalse -= corr.FalsificationFalseOffset
	}

	normalize := func(s float64) float64 {
		return s / float64(amount) * float64(tasksTrue+tasksFalse)
	}
	// The false-score normalization excludes tasks that carry no false
	// score, which removes one whole child in the software-systems case.
	normalizeFalse := func(s float64) float64 {
		if meta == corr.SoftwareSystemsName {
			return s / float64(amount-1) *
				float64(tasksTrue+tasksFalse-corr.SoftwareSystemsFalseOffset)
		}
		return normalize(s)
	}

	var possibleSum, possibleFalseSum float64
	for _, child := range valid {
		possibleSum += child.PossibleScore() / float64(child.ValidTaskCount())
		if denom := corr.falseTasks(child); denom != 0 {
			possibleFalseSum += child.PossibleScoreFalse() / float64(denom)
		}
	}

	cat := scoring.NewVerificationCategory(meta, tasksTotal, tasksTrue, tasksFalse,
		normalize(possibleSum), normalizeFalse(possibleFalseSum))

	for _, tool := range participants(valid) {
		if !inEveryChild(tool, valid) {
			slog.Info("Participant misses sub-categories of meta category",
				"tool", tool, "category", meta)
			continue
		}

		var scoreSum, scoreFalseSum float64
		res := &scoring.CategoryResult{}
		var cpuTimes, cpuEnergies []scoring.CategoryData
		var qpTime, qpEnergy [][]scoring.QPlotPoint

		for _, child := range valid {
			childRes := child.Results()[tool]
			scoreSum += childRes.Score / float64(child.ValidTaskCount())
			if denom := corr.falseTasks(child); denom != 0 {
				scoreFalseSum += childRes.ScoreFalse / float64(denom)
			}

			cpuTimes = append(cpuTimes, childRes.CPUTime)
			cpuEnergies = append(cpuEnergies, childRes.CPUEnergy)
			res.CorrectFalse += childRes.CorrectFalse
			res.CorrectTrue += childRes.CorrectTrue
			res.CorrectUnconfirmedFalse += childRes.CorrectUnconfirmedFalse
			res.CorrectUnconfirmedTrue += childRes.CorrectUnconfirmedTrue
			res.IncorrectFalse += childRes.IncorrectFalse
			res.IncorrectTrue += childRes.IncorrectTrue
			qpTime = append(qpTime, childRes.QPlotCPUTime)
			qpEnergy = append(qpEnergy, childRes.QPlotCPUEnergy)
		}

		res.Score = normalize(scoreSum)
		res.ScoreFalse = normalizeFalse(scoreFalseSum)
		res.CPUTime = scoring.Accumulate(cpuTimes)
		res.CPUEnergy = scoring.Accumulate(cpuEnergies)
		res.QPlotCPUTime = scoring.CombineQPlots(qpTime, amount)
		res.QPlotCPUEnergy = scoring.CombineQPlots(qpEnergy, amount)
		cat.ByTool[tool] = res
	}
	return cat, nil
}

// NormalizeValidation combines validation-track children into a meta
// category. Weights come from the witness population instead of task
// counts, and a participant keeps its partial results even when it misses
// a child.
func NormalizeValidation(meta string, children []scoring.CategoryNode) (*scoring.ValidationCategory, error) {
	var valid []scoring.CategoryNode
	for _, child := range children {
		if child.ValidTaskCount() > 0 {
			valid = append(valid, child)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("meta category %s has no children with decided witnesses", meta)
	}

	amount := len(valid)
	cat := scoring.NewValidationCategory(meta)
	for _, child := range valid {
		cat.Tasks += child.TaskCount()
		if vc, ok := child.(*scoring.ValidationCategory); ok {
			cat.WitnessesCorrect += vc.WitnessesCorrect
			cat.WitnessesWrong += vc.WitnessesWrong
		}
	}

	normalize := func(s float64) float64 {
		return s / float64(amount) * float64(cat.ValidTaskCount())
	}

	var possibleSum, possibleFalseSum float64
	for _, child := range valid {
		possibleSum += child.PossibleScore() / float64(child.ValidTaskCount())
		possibleFalseSum += child.PossibleScoreFalse() / float64(child.ValidTaskCount())
	}
	cat.MaxScore = normalize(possibleSum)
	cat.MaxScoreFalse = normalize(possibleFalseSum)

	for _, tool := range participants(valid) {
		var scoreSum, scoreFalseSum float64
		res := &scoring.CategoryResult{}
		var cpuTimes, cpuEnergies []scoring.CategoryData
		var qpTime, qpEnergy [][]scoring.QPlotPoint

		for _, child := range valid {
			childRes, ok := child.Results()[tool]
			if !ok {
				continue
			}
			scoreSum += childRes.Score / float64(child.ValidTaskCount())
			scoreFalseSum += childRes.ScoreFalse / float64(child.ValidTaskCount())
			cpuTimes = append(cpuTimes, childRes.CPUTime)
			cpuEnergies = append(cpuEnergies, childRes.CPUEnergy)
			res.CorrectFalse += childRes.CorrectFalse
			res.CorrectTrue += childRes.CorrectTrue
			res.CorrectUnconfirmedFalse += childRes.CorrectUnconfirmedFalse
			res.CorrectUnconfirmedTrue += childRes.CorrectUnconfirmedTrue
			res.IncorrectFalse += childRes.IncorrectFalse
			res.IncorrectTrue += childRes.IncorrectTrue
			qpTime = append(qpTime, childRes.QPlotCPUTime)
			qpEnergy = append(qpEnergy, childRes.QPlotCPUEnergy)
		}

		res.Score = normalize(scoreSum)
		res.ScoreFalse = normalize(scoreFalseSum)
		res.CPUTime = scoring.Accumulate(cpuTimes)
		res.CPUEnergy = scoring.Accumulate(cpuEnergies)
		res.QPlotCPUTime = scoring.CombineQPlots(qpTime, amount)
		res.QPlotCPUEnergy = scoring.CombineQPlots(qpEnergy, amount)
		cat.ByTool[tool] = res
	}
	return cat, nil
}

// participants returns the union of tool names across children, sorted.
func participants(children []scoring.CategoryNode) []string {
	union := map[string]bool{}
	for _, child := range children {
		for tool := range child.Results() {
			union[tool] = true
		}
	}
	return sortedKeys(union)
}

func inEveryChild(tool string, children []scoring.CategoryNode) bool {
	for _, child := range children {
		if _, ok := child.Results()[tool]; !ok {
			return false
		}
	}
	return true
}
