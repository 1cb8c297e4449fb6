package witness

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/fmbench/scoretab/internal/results"
)

// validationToolRe matches validator run-set tool names of the form
// <validator>-validate-<type>-witnesses-<version>-<producer>.
var validationToolRe = regexp.MustCompile(
	`^(?P<validator>.+?)-validate-(?P<type>correctness|violation)-witnesses-(?P<version>[0-9.]+)-(?P<producer>.+)$`)

// ValidationMeta identifies which validator ran on whose witnesses of
// which pool, as encoded in a validation run-set's tool name.
type ValidationMeta struct {
	Validator string
	Kind      Kind
	Producer  string
}

// ParseValidationTool extracts the validation metadata from a run-set
// tool name. The structural linter follows the same naming scheme.
func ParseValidationTool(tool string) (ValidationMeta, error) {
	m := validationToolRe.FindStringSubmatch(tool)
	if m == nil {
		return ValidationMeta{}, fmt.Errorf("tool %q is not a validation run", tool)
	}
	kind, err := ParseKind(m[validationToolRe.SubexpIndex("type")] + "-" + m[validationToolRe.SubexpIndex("version")])
	if err != nil {
		return ValidationMeta{}, fmt.Errorf("tool %q: %w", tool, err)
	}
	return ValidationMeta{
		Validator: m[validationToolRe.SubexpIndex("validator")],
		Kind:      kind,
		Producer:  m[validationToolRe.SubexpIndex("producer")],
	}, nil
}

// Key identifies one witness across all validator run sets.
type Key struct {
	Category        string
	Task            string
	Producer        string
	Specification   string
	Expected        string
	WitnessExpected string
}

// Entry is one classified witness, the unit persisted in the store.
type Entry struct {
	Key   Key
	Kind  Kind
	Class Classification
	Votes string
}

// Builder accumulates validator and linter run sets into rows keyed by
// witness identity, then classifies every row for every witness pool.
type Builder struct {
	benchCategory string
	rows          map[Key]*Row
	order         []Key
}

// NewBuilder creates a builder for one benchmark category.
func NewBuilder(benchCategory string) *Builder {
	return &Builder{
		benchCategory: benchCategory,
		rows:          map[Key]*Row{},
	}
}

// AddRunSet folds one validation or linter run set into the database.
// Linter runs with status "done" contribute the observed witness type of
// their pool's version; all runs contribute their status as a verdict.
func (b *Builder) AddRunSet(set *results.RunSet, meta ValidationMeta) {
	for _, rec := range set.Tasks() {
		key := Key{
			Category:        b.benchCategory,
			Task:            rec.Task,
			Producer:        meta.Producer,
			Specification:   rec.Property,
			Expected:        rec.Expected,
			WitnessExpected: witnessExpected(rec),
		}
		row := b.rows[key]
		if row == nil {
			row = &Row{
				Category:        key.Category,
				Task:            key.Task,
				Producer:        key.Producer,
				Specification:   key.Specification,
				Expected:        key.Expected,
				WitnessExpected: key.WitnessExpected,
			}
			b.rows[key] = row
			b.order = append(b.order, key)
		}
		row.Verdicts = append(row.Verdicts, Verdict{
			Validator: meta.Validator,
			Kind:      meta.Kind,
			Status:    rec.Status,
		})
		if set.IsLinter() || meta.Validator == results.LinterTool {
			if rec.Status == "done" && rec.Columns.WitnessType != "" {
				if meta.Kind.Version == Version1 {
					row.WitnessTypeV1 = rec.Columns.WitnessType
				} else {
					row.WitnessTypeV2 = rec.Columns.WitnessType
				}
			}
		}
	}
}

func (r *Row) hasVerdict(kind Kind) bool {
	for _, v := range r.Verdicts {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Rows returns the accumulated rows in first-seen order.
func (b *Builder) Rows() []*Row {
	rows := make([]*Row, 0, len(b.order))
	for _, key := range b.order {
		rows = append(rows, b.rows[key])
	}
	return rows
}

// Classify votes every row for every witness pool that saw at least one
// verdict; pools no validator ran on yield no entry. A malformed row (an
// expected witness verdict on a non-witnessmap producer) is fatal: it
// would silently corrupt downstream scores.
func (b *Builder) Classify() ([]Entry, error) {
	entries := make([]Entry, 0, len(b.order)*len(Kinds))
	for _, key := range b.order {
		row := b.rows[key]
		for _, kind := range Kinds {
			if !row.hasVerdict(kind) {
				continue
			}
			class, votes, err := Classify(row, kind)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Key: key, Kind: kind, Class: class, Votes: votes})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Key.Task != entries[j].Key.Task {
			return entries[i].Key.Task < entries[j].Key.Task
		}
		return entries[i].Kind.String() < entries[j].Kind.String()
	})
	return entries, nil
}

// witnessExpected is the self-reported witness verdict of witnessmap
// tasks, carried in a dedicated column; empty for everything else.
func witnessExpected(rec *results.Record) string {
	return rec.Columns.Raw["witness-expected"]
}
