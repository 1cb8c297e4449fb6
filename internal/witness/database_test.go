package witness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmbench/scoretab/internal/results"
)

func validationRunSet(t *testing.T, tool string, statuses map[string]string) *results.RunSet {
	t.Helper()
	set := results.NewRunSet(tool, "SV-COMP26_ReachSafety-Arrays")
	for task, status := range statuses {
		require.NoError(t, set.Append(&results.Record{
			Task:     task,
			Property: "unreach-call.prp",
			Expected: "false(unreach-call)",
			Status:   status,
			Category: results.CategoryCorrect,
		}))
	}
	return set
}

func TestBuilder_GroupsVerdictsByWitness(t *testing.T) {
	b := NewBuilder("ReachSafety-Arrays")

	lint := results.NewRunSet(results.LinterTool+"-validate-violation-witnesses-1.0-cpachecker", "SV-COMP26_ReachSafety-Arrays")
	require.NoError(t, lint.Append(&results.Record{
		Task:     "a.yml",
		Property: "unreach-call.prp",
		Expected: "false(unreach-call)",
		Status:   "done",
		Category: results.CategoryCorrect,
		Columns:  results.Columns{WitnessType: "violation_witness"},
	}))
	lintMeta, err := ParseValidationTool(lint.Tool)
	require.NoError(t, err)
	b.AddRunSet(lint, lintMeta)

	for _, validator := range []string{"metaval", "nitwit"} {
		set := validationRunSet(t, validator+"-validate-violation-witnesses-1.0-cpachecker",
			map[string]string{"a.yml": "false(unreach-call)"})
		meta, err := ParseValidationTool(set.Tool)
		require.NoError(t, err)
		b.AddRunSet(set, meta)
	}

	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "cpachecker", rows[0].Producer)
	assert.Equal(t, "violation_witness", rows[0].WitnessTypeV1)
	assert.Len(t, rows[0].Verdicts, 3)
}

func TestBuilder_ClassifyOnlyPoolsWithVerdicts(t *testing.T) {
	b := NewBuilder("ReachSafety-Arrays")
	for _, validator := range []string{"metaval", "nitwit", "witnesslint"} {
		set := validationRunSet(t, validator+"-validate-violation-witnesses-1.0-cpachecker",
			map[string]string{"a.yml": "false(unreach-call)"})
		if validator == "witnesslint" {
			rec, _ := set.Find("a.yml")
			rec.Status = "done"
			rec.Columns.WitnessType = "violation_witness"
		}
		meta, err := ParseValidationTool(set.Tool)
		require.NoError(t, err)
		b.AddRunSet(set, meta)
	}
	lint2 := validationRunSet(t, "witnesslint-validate-violation-witnesses-2.0-cpachecker",
		map[string]string{"a.yml": "ERROR (witness does not exist)"})
	lint2Meta, err := ParseValidationTool(lint2.Tool)
	require.NoError(t, err)
	b.AddRunSet(lint2, lint2Meta)

	entries, err := b.Classify()
	require.NoError(t, err)
	// All verdicts sit in the two violation pools; the correctness pools
	// saw no run and get no entry.
	require.Len(t, entries, 2)

	byKind := map[string]Entry{}
	for _, e := range entries {
		byKind[e.Kind.String()] = e
	}
	// Two semantic validators confirmed; the linter's "done" neither
	// confirms nor rejects.
	assert.Equal(t, ClassCorrect, byKind["violation-1.0"].Class)
	assert.Equal(t, "2:0", byKind["violation-1.0"].Votes)
	// No linter observation for the 2.0 pool.
	assert.Equal(t, ClassUnknown, byKind["violation-2.0"].Class)
}

func TestStore_ImportAndLookup(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "witnesses.db"))
	require.NoError(t, err)
	defer store.Close()

	key := Key{
		Category:      "ReachSafety-Arrays",
		Task:          "a.yml",
		Producer:      "cpachecker",
		Specification: "unreach-call.prp",
		Expected:      "false(unreach-call)",
	}
	entries := []Entry{
		{Key: key, Kind: Kind{TypeViolation, Version1}, Class: ClassCorrect, Votes: "3:1"},
		{Key: key, Kind: Kind{TypeViolation, Version2}, Class: ClassUnknown, Votes: "1:1"},
	}
	require.NoError(t, store.Import(entries))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	class, votes, err := store.Lookup("ReachSafety-Arrays", "a.yml", "cpachecker", "unreach-call.prp", Kind{TypeViolation, Version1})
	require.NoError(t, err)
	assert.Equal(t, ClassCorrect, class)
	assert.Equal(t, "3:1", votes)

	_, _, err = store.Lookup("ReachSafety-Arrays", "b.yml", "cpachecker", "unreach-call.prp", Kind{TypeViolation, Version1})
	require.ErrorIs(t, err, ErrNotClassified)
}

func TestStore_LookupRejectsInconsistentValue(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "witnesses.db"))
	require.NoError(t, err)
	defer store.Close()

	key := Key{Category: "c", Task: "t.yml", Producer: "p", Specification: "s.prp"}
	require.NoError(t, store.Import([]Entry{
		{Key: key, Kind: Kind{TypeViolation, Version1}, Class: ClassMissing, Votes: "-:-"},
	}))

	_, _, err = store.Lookup("c", "t.yml", "p", "s.prp", Kind{TypeViolation, Version1})
	require.ErrorIs(t, err, ErrInconsistentClassification)
}
