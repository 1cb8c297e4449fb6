package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmbench/scoretab/internal/results"
)

func buildRunSet(t *testing.T, tool, name string, records ...*results.Record) *results.RunSet {
	t.Helper()
	set := results.NewRunSet(tool, name)
	for _, r := range records {
		require.NoError(t, set.Append(r))
	}
	return set
}

func record(task, status string, category results.Category) *results.Record {
	return &results.Record{
		Task:     task,
		Property: "unreach-call",
		Expected: "false(unreach-call)",
		Status:   status,
		Category: category,
	}
}

func TestPairResult(t *testing.T) {
	verifier := record("a.yml", "false(unreach-call)", results.CategoryCorrect)

	tests := []struct {
		name         string
		candidate    *results.Record
		wantStatus   string
		wantCategory results.Category
	}{
		{
			name:         "missing run",
			candidate:    nil,
			wantStatus:   "validation run missing",
			wantCategory: results.CategoryError,
		},
		{
			name:         "matching status confirms",
			candidate:    record("a.yml", "false(unreach-call)", results.CategoryCorrect),
			wantStatus:   "false(unreach-call)",
			wantCategory: results.CategoryCorrect,
		},
		{
			name:         "matching main status confirms",
			candidate:    record("a.yml", "false(reach)", results.CategoryCorrect),
			wantStatus:   "false(unreach-call)",
			wantCategory: results.CategoryCorrect,
		},
		{
			name:         "syntax error rejects the witness",
			candidate:    record("a.yml", "ERROR (invalid witness syntax)", results.CategoryError),
			wantStatus:   "witness invalid (false(unreach-call))",
			wantCategory: results.CategoryError,
		},
		{
			name:         "absent witness rejects the witness",
			candidate:    record("a.yml", "ERROR (witness does not exist)", results.CategoryError),
			wantStatus:   "witness missing (false(unreach-call))",
			wantCategory: results.CategoryError,
		},
		{
			name:         "type mismatch rejects the witness",
			candidate:    record("a.yml", "ERROR (unexpected witness type)", results.CategoryError),
			wantStatus:   "witness-type mismatch (false(unreach-call))",
			wantCategory: results.CategoryError,
		},
		{
			name:         "version mismatch rejects the witness",
			candidate:    record("a.yml", "ERROR (unexpected witness version)", results.CategoryError),
			wantStatus:   "witness-version mismatch (false(unreach-call))",
			wantCategory: results.CategoryError,
		},
		{
			name:         "disagreement leaves correct result unconfirmed",
			candidate:    record("a.yml", "unknown", results.CategoryUnknown),
			wantStatus:   "false(unreach-call)",
			wantCategory: results.CategoryCorrectUnconfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, category := pairResult(tt.candidate, verifier)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCategory, category)
		})
	}
}

func TestPairResultDisagreementOnWrongResult(t *testing.T) {
	verifier := record("a.yml", "false(unreach-call)", results.CategoryWrong)
	status, category := pairResult(record("a.yml", "true", results.CategoryCorrect), verifier)
	assert.Equal(t, "result invalid (false(unreach-call))", status)
	assert.Equal(t, results.CategoryError, category)
}

func TestPairResultMemSafetyNeedsExactMatch(t *testing.T) {
	verifier := record("a.yml", "false(valid-deref)", results.CategoryCorrect)
	verifier.Property = "valid-memsafety"
	candidate := record("a.yml", "false(valid-free)", results.CategoryCorrect)
	candidate.Property = "valid-memsafety"

	status, category := pairResult(candidate, verifier)
	assert.Equal(t, "false(valid-deref)", status)
	assert.Equal(t, results.CategoryCorrectUnconfirmed, category)
}

func withWitnessFile(r *results.Record, file string) *results.Record {
	r.Columns.WitnessFile = file
	return r
}

func TestFixRunSetConfirmation(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))
	validator := buildRunSet(t, "checkmate", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))

	fixed, stats, err := New().FixRunSet(verifier, []*results.RunSet{validator}, nil, nil)
	require.NoError(t, err)

	rec, ok := fixed.Find("a.yml")
	require.True(t, ok)
	assert.Equal(t, results.CategoryCorrect, rec.Category)
	assert.Zero(t, stats.Adjusted)
}

func TestFixRunSetUnconfirmed(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))
	validator := buildRunSet(t, "checkmate", "ReachSafety-Loops",
		record("a.yml", "unknown", results.CategoryUnknown))

	fixed, stats, err := New().FixRunSet(verifier, []*results.RunSet{validator}, nil, nil)
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, "false(unreach-call)", rec.Status)
	assert.Equal(t, results.CategoryCorrectUnconfirmed, rec.Category)
	assert.Equal(t, 1, stats.Adjusted)
}

func TestFixRunSetRejectedWitness(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))
	linter := buildRunSet(t, results.LinterTool, "ReachSafety-Loops",
		withWitnessFile(record("a.yml", "ERROR (invalid witness syntax)", results.CategoryError), "w.graphml"))

	fixed, _, err := New().FixRunSet(verifier, nil, []*results.RunSet{linter}, nil)
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, "witness invalid (false(unreach-call))", rec.Status)
	assert.Equal(t, results.CategoryError, rec.Category)
}

// A confirmation of the structured witness beats a rejection of the
// legacy one.
func TestFixRunSetStructuredPoolWins(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))
	graphmlLinter := buildRunSet(t, results.LinterTool, "ReachSafety-Loops",
		withWitnessFile(record("a.yml", "ERROR (invalid witness syntax)", results.CategoryError), "w.graphml"))
	ymlLinter := buildRunSet(t, results.LinterTool, "ReachSafety-Loops",
		withWitnessFile(record("a.yml", "done", results.CategoryCorrect), "w.yml"))
	validator := buildRunSet(t, "checkmate", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))

	fixed, _, err := New().FixRunSet(verifier,
		[]*results.RunSet{validator}, []*results.RunSet{graphmlLinter, ymlLinter}, nil)
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, results.CategoryCorrect, rec.Category)
	assert.Equal(t, "false(unreach-call)", rec.Status)
}

func TestFixRunSetBothPoolsRejectPicksMostSpecificError(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))
	graphmlLinter := buildRunSet(t, results.LinterTool, "ReachSafety-Loops",
		withWitnessFile(record("a.yml", "ERROR (invalid witness syntax)", results.CategoryError), "w.graphml"))
	ymlLinter := buildRunSet(t, results.LinterTool, "ReachSafety-Loops",
		withWitnessFile(record("a.yml", "ERROR (witness does not exist)", results.CategoryError), "w.yml"))

	fixed, _, err := New().FixRunSet(verifier, nil,
		[]*results.RunSet{graphmlLinter, ymlLinter}, nil)
	require.NoError(t, err)

	// "witness invalid" outranks "witness missing" even though it came
	// from the legacy pool.
	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, "witness invalid (false(unreach-call))", rec.Status)
	assert.Equal(t, results.CategoryError, rec.Category)
}

func TestFixRunSetMissingLinterRunFailsClosed(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))
	linter := buildRunSet(t, results.LinterTool, "ReachSafety-Loops")

	fixed, _, err := New().FixRunSet(verifier, nil, []*results.RunSet{linter}, nil)
	require.NoError(t, err)

	// The missing linter run blocks confirmation but names no witness
	// defect, so the result stays unconfirmed.
	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, results.CategoryCorrectUnconfirmed, rec.Category)
	assert.Equal(t, "false(unreach-call)", rec.Status)
}

func TestFixRunSetInvalidTask(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryCorrect))

	fixed, stats, err := New().FixRunSet(verifier, nil, nil, InvalidTasks{"a.yml": true})
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, "invalid task (false(unreach-call))", rec.Status)
	assert.Equal(t, results.CategoryMissing, rec.Category)
	assert.Equal(t, 1, stats.Invalidated)
}

func TestFixRunSetProtectedCategory(t *testing.T) {
	trueTask := record("a.yml", "true", results.CategoryCorrect)
	trueTask.Expected = "true"
	verifier := buildRunSet(t, "verifone", "SV-COMP26_ReachSafety-Arrays", trueTask)

	// No validators at all, yet the true-expected task keeps its verdict.
	fixed, stats, err := New().FixRunSet(verifier, nil, nil, nil)
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, results.CategoryCorrect, rec.Category)
	assert.Equal(t, 1, stats.Skipped)
}

func TestFixRunSetNeverTouchesIncorrectResults(t *testing.T) {
	verifier := buildRunSet(t, "verifone", "ReachSafety-Loops",
		record("a.yml", "false(unreach-call)", results.CategoryWrong),
		record("b.yml", "unknown", results.CategoryUnknown))
	validator := buildRunSet(t, "checkmate", "ReachSafety-Loops",
		record("a.yml", "true", results.CategoryCorrect),
		record("b.yml", "false(unreach-call)", results.CategoryCorrect))

	fixed, stats, err := New().FixRunSet(verifier, []*results.RunSet{validator}, nil, nil)
	require.NoError(t, err)

	a, _ := fixed.Find("a.yml")
	assert.Equal(t, results.CategoryWrong, a.Category)
	b, _ := fixed.Find("b.yml")
	assert.Equal(t, results.CategoryUnknown, b.Category)
	assert.Zero(t, stats.Adjusted)
}

func TestFixRunSetCoverageBranches(t *testing.T) {
	task := record("a.yml", "done", results.CategoryCorrect)
	task.Property = "coverage-branches"
	task.Expected = ""
	verifier := buildRunSet(t, "testgen", "Cover-Branches", task)

	covered := record("a.yml", "done", results.CategoryCorrect)
	covered.Property = "coverage-branches"
	covered.Columns.BranchesCovered = results.Some("75%")
	validator := buildRunSet(t, "testcov", "Cover-Branches", covered)

	fixed, _, err := New().FixRunSet(verifier, []*results.RunSet{validator}, nil, nil)
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, results.CategoryCorrect, rec.Category)
	score, ok := rec.Columns.Score.Get()
	require.True(t, ok)
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestFixRunSetCoverageErrorCall(t *testing.T) {
	task := record("a.yml", "done", results.CategoryCorrect)
	task.Property = "coverage-error-call"
	verifier := buildRunSet(t, "testgen", "Cover-Error", task)

	reached := record("a.yml", "true", results.CategoryCorrect)
	reached.Property = "coverage-error-call"
	validator := buildRunSet(t, "testcov", "Cover-Error", reached)

	fixed, _, err := New().FixRunSet(verifier, []*results.RunSet{validator}, nil, nil)
	require.NoError(t, err)

	rec, _ := fixed.Find("a.yml")
	assert.Equal(t, results.CategoryCorrect, rec.Category)
	score, ok := rec.Columns.Score.Get()
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestParseCoverage(t *testing.T) {
	f, err := parseCoverage(results.Some("87.5%"))
	require.NoError(t, err)
	assert.InDelta(t, 0.875, f, 1e-9)

	f, err = parseCoverage(results.None[string]())
	require.NoError(t, err)
	assert.Zero(t, f)

	_, err = parseCoverage(results.Some("n/a"))
	assert.Error(t, err)
}
