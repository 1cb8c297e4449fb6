// Package results holds the run-record model: per-task outcomes of one
// participant (verifier, validator, or linter) on one competition category.
package results

import (
	"fmt"
	"strings"
)

// Category classifies a single task outcome.
type Category string

const (
	CategoryCorrect            Category = "correct"
	CategoryCorrectUnconfirmed Category = "correct-unconfirmed"
	CategoryWrong              Category = "wrong"
	CategoryError              Category = "error"
	CategoryUnknown            Category = "unknown"
	CategoryMissing            Category = "missing"
)

// LinterTool is the tool name that marks a result set as a structural
// witness linter rather than a semantic validator.
const LinterTool = "witnesslint"

func (c Category) Valid() bool {
	switch c {
	case CategoryCorrect, CategoryCorrectUnconfirmed, CategoryWrong,
		CategoryError, CategoryUnknown, CategoryMissing:
		return true
	}
	return false
}

// IsAnyCorrect reports whether c is correct or correct-unconfirmed.
func (c Category) IsAnyCorrect() bool {
	return c == CategoryCorrect || c == CategoryCorrectUnconfirmed
}

// Record is one task's outcome from one participant. Records are read-only
// once loaded; engines that adjust outcomes construct new records.
type Record struct {
	Task     string
	Property string
	// Expected is the expected verdict string, e.g. "true" or
	// "false(valid-deref)"; empty when the task carries none.
	Expected string
	Status   string
	Category Category
	// WitnessCategory is set when validator results are adjusted against
	// the witness-classification table; empty elsewhere.
	WitnessCategory string
	Columns         Columns
}

// ExpectedTrue resolves the expected verdict to a boolean when one is
// recorded.
func (r *Record) ExpectedTrue() Optional[bool] {
	switch {
	case r.Expected == "":
		return None[bool]()
	case IsStatusFalse(r.Expected):
		return Some(false)
	default:
		return Some(true)
	}
}

// Columns holds the optional measurement and witness columns of a record.
// Absent columns and unparseable values are distinguished: an absent column
// yields an empty Optional, a value that failed to parse is kept in Raw and
// reported through ParseErrs.
type Columns struct {
	CPUTime         Optional[float64]
	CPUEnergy       Optional[float64]
	Memory          Optional[float64]
	Score           Optional[float64]
	BranchesCovered Optional[string]
	WitnessType     string
	WitnessFile     string
	Raw             map[string]string
	ParseErrs       []string
}

// Clone returns a copy of r. The Columns.Raw map is shared; it is never
// mutated after load.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// RunSet is the ordered result set of one tool on one benchmark run.
// Task names are unique within a run set.
type RunSet struct {
	Tool       string
	Name       string // benchmark run name, e.g. "SV-COMP26_ReachSafety-Arrays"
	SourceFile string

	records []*Record
	index   map[string]*Record
}

func NewRunSet(tool, name string) *RunSet {
	return &RunSet{
		Tool:  tool,
		Name:  name,
		index: map[string]*Record{},
	}
}

// Append adds a record to the set. A duplicate task name is an error.
func (s *RunSet) Append(r *Record) error {
	if _, exists := s.index[r.Task]; exists {
		return fmt.Errorf("duplicate task %q in run set %s/%s", r.Task, s.Tool, s.Name)
	}
	s.records = append(s.records, r)
	s.index[r.Task] = r
	return nil
}

// Tasks returns all records in insertion order. Callers must not modify
// the returned slice.
func (s *RunSet) Tasks() []*Record {
	return s.records
}

// Find returns the record for the given task name, if present.
func (s *RunSet) Find(task string) (*Record, bool) {
	r, ok := s.index[task]
	return r, ok
}

func (s *RunSet) Len() int {
	return len(s.records)
}

// IsLinter reports whether this result set came from the witness linter.
func (s *RunSet) IsLinter() bool {
	return s.Tool == LinterTool
}

// IsStatusFalse reports whether a status string is a false verdict,
// with or without a property qualifier.
func IsStatusFalse(status string) bool {
	return strings.HasPrefix(status, "false")
}

// IsStatusTrue reports whether a status string is the true verdict.
func IsStatusTrue(status string) bool {
	return status == "true"
}

// MainStatus strips a parenthetical qualifier: "false(unreach-call)"
// becomes "false". Text before the first parenthesis is kept verbatim.
func MainStatus(status string) string {
	if i := strings.Index(status, "("); i >= 0 {
		return status[:i]
	}
	return status
}
