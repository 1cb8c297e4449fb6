package scoring

import "fmt"

// CategoryNode is a resolved category of the competition hierarchy, either
// a verification-track or a validation-track node. The results map is
// populated once, after which the node is read-only.
type CategoryNode interface {
	Name() string
	TaskCount() int
	// ValidTaskCount is the number of tasks scores are normalized against:
	// true+false tasks for verification, correct+wrong witnesses for
	// validation.
	ValidTaskCount() int
	PossibleScore() float64
	PossibleScoreFalse() float64
	Results() map[string]*CategoryResult
}

// VerificationCategory is a category node of the verification track.
type VerificationCategory struct {
	Label         string
	Tasks         int
	TasksTrue     int
	TasksFalse    int
	MaxScore      float64
	MaxScoreFalse float64
	ByTool        map[string]*CategoryResult
}

func NewVerificationCategory(name string, tasks, tasksTrue, tasksFalse int, maxScore, maxScoreFalse float64) *VerificationCategory {
	return &VerificationCategory{
		Label:         name,
		Tasks:         tasks,
		TasksTrue:     tasksTrue,
		TasksFalse:    tasksFalse,
		MaxScore:      maxScore,
		MaxScoreFalse: maxScoreFalse,
		ByTool:        map[string]*CategoryResult{},
	}
}

func (c *VerificationCategory) Name() string                        { return c.Label }
func (c *VerificationCategory) TaskCount() int                      { return c.Tasks }
func (c *VerificationCategory) ValidTaskCount() int                 { return c.TasksTrue + c.TasksFalse }
func (c *VerificationCategory) PossibleScore() float64              { return c.MaxScore }
func (c *VerificationCategory) PossibleScoreFalse() float64         { return c.MaxScoreFalse }
func (c *VerificationCategory) Results() map[string]*CategoryResult { return c.ByTool }

// ValidationCategory is a category node of the witness-validation track.
// Scores are weighted by confirmed/rejected witness counts instead of
// true/false task counts; the per-pool maximum-score lists are kept until
// base-category normalization.
type ValidationCategory struct {
	Label             string
	Tasks             int
	MaxScoreList      []float64
	MaxScoreFalseList []float64
	MaxScore          float64
	MaxScoreFalse     float64
	WitnessesCorrect  int
	WitnessesWrong    int
	ByTool            map[string]*CategoryResult
}

func NewValidationCategory(name string) *ValidationCategory {
	return &ValidationCategory{
		Label:  name,
		ByTool: map[string]*CategoryResult{},
	}
}

func (c *ValidationCategory) Name() string                        { return c.Label }
func (c *ValidationCategory) TaskCount() int                      { return c.Tasks }
func (c *ValidationCategory) ValidTaskCount() int                 { return c.WitnessesCorrect + c.WitnessesWrong }
func (c *ValidationCategory) PossibleScore() float64              { return c.MaxScore }
func (c *ValidationCategory) PossibleScoreFalse() float64         { return c.MaxScoreFalse }
func (c *ValidationCategory) Results() map[string]*CategoryResult { return c.ByTool }

// Merge combines two validation nodes of the same name, e.g. the per-pool
// partial nodes of one category. At most one side may carry participant
// results already.
func (c *ValidationCategory) Merge(o *ValidationCategory) (*ValidationCategory, error) {
	if c.Label != o.Label {
		return nil, fmt.Errorf("cannot merge validation categories %q and %q", c.Label, o.Label)
	}
	if len(c.ByTool) > 0 && len(o.ByTool) > 0 {
		return nil, fmt.Errorf("merging validation category %q: both sides carry results", c.Label)
	}
	merged := &ValidationCategory{
		Label:             c.Label,
		Tasks:             c.Tasks + o.Tasks,
		MaxScoreList:      append(append([]float64{}, c.MaxScoreList...), o.MaxScoreList...),
		MaxScoreFalseList: append(append([]float64{}, c.MaxScoreFalseList...), o.MaxScoreFalseList...),
		MaxScore:          c.MaxScore + o.MaxScore,
		MaxScoreFalse:     c.MaxScoreFalse + o.MaxScoreFalse,
		WitnessesCorrect:  c.WitnessesCorrect + o.WitnessesCorrect,
		WitnessesWrong:    c.WitnessesWrong + o.WitnessesWrong,
		ByTool:            map[string]*CategoryResult{},
	}
	for tool, r := range c.ByTool {
		merged.ByTool[tool] = r
	}
	for tool, r := range o.ByTool {
		merged.ByTool[tool] = r
	}
	return merged, nil
}
