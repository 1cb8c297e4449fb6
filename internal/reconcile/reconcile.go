// Package reconcile resolves conflicting witness-validation evidence into
// one authoritative outcome per task. Verifier results are adjusted
// against validator and linter runs; validator results are adjusted in a
// second pass against the voted witness-classification table.
package reconcile

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/fmbench/scoretab/internal/results"
)

// Tagged status prefixes for rejected witnesses, ordered from most to
// least specific. When both witness pools report an error, the final
// message is chosen by this order.
const (
	msgWitnessInvalid         = "witness invalid"
	msgWitnessVersionMismatch = "witness-version mismatch"
	msgWitnessTypeMismatch    = "witness-type mismatch"
	msgWitnessMissing         = "witness missing"
	msgResultInvalid          = "result invalid"
)

var witnessErrorOrder = []string{
	msgWitnessInvalid,
	msgWitnessVersionMismatch,
	msgWitnessTypeMismatch,
	msgWitnessMissing,
	msgResultInvalid,
}

// Validator statuses that describe a defect of the witness itself. They
// turn the verifier's result into an error regardless of other evidence.
var linterErrorStatuses = map[string]string{
	"ERROR (invalid witness syntax)":     msgWitnessInvalid,
	"ERROR (witness does not exist)":     msgWitnessMissing,
	"ERROR (unexpected witness type)":    msgWitnessTypeMismatch,
	"ERROR (unexpected witness version)": msgWitnessVersionMismatch,
}

// Coverage properties of the test-generation track: the validator-reported
// coverage fraction becomes the task score instead of a confirmation.
const (
	propCoverageErrorCall = "coverage-error-call"
	propCoverageBranches  = "coverage-branches"
)

const propMemSafety = "valid-memsafety"

// defaultProtected lists category-name patterns whose true-expected tasks
// are never adjusted.
var defaultProtected = "-Arrays|-Floats|-Heap|MemSafety|MemCleanup|NoDataRace|ConcurrencySafety-|Termination|-Java"

// InvalidTasks is the set of tasks banned from the competition.
type InvalidTasks map[string]bool

// Stats summarizes one adjustment pass.
type Stats struct {
	Adjusted    int
	Invalidated int
	Skipped     int
	Dropped     int
}

// Engine adjusts run sets. It is stateless across calls and safe for
// concurrent use.
type Engine struct {
	competition *regexp.Regexp
	protected   *regexp.Regexp
}

// Option configures an Engine.
type Option func(*Engine)

// WithProtectedCategories overrides the pattern of category names whose
// true-expected tasks are left untouched.
func WithProtectedCategories(pattern string) Option {
	return func(e *Engine) {
		e.protected = regexp.MustCompile(pattern)
	}
}

// WithCompetitionPattern overrides the run-set name pattern that gates
// the protected-category rule.
func WithCompetitionPattern(pattern string) Option {
	return func(e *Engine) {
		e.competition = regexp.MustCompile(pattern)
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		competition: regexp.MustCompile("SV-COMP"),
		protected:   regexp.MustCompile(defaultProtected),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// pairResult reconciles one validator or linter record against the
// verifier's record for the same task.
func pairResult(candidate *results.Record, verifier *results.Record) (string, results.Category) {
	if candidate == nil {
		return "validation run missing", results.CategoryError
	}

	verifierStatus := verifier.Status
	verifierCategory := verifier.Category

	// Matching results confirm the verifier's own outcome.
	if candidate.Status == verifierStatus {
		return verifierStatus, verifierCategory
	}
	// A match of the main result string (discarding the parenthetical
	// qualifier) also confirms, except for memory safety where the
	// violated sub-property is part of the verdict.
	if results.MainStatus(candidate.Status) == results.MainStatus(verifierStatus) &&
		candidate.Property != propMemSafety {
		return verifierStatus, verifierCategory
	}

	if tag, ok := linterErrorStatuses[candidate.Status]; ok {
		return fmt.Sprintf("%s (%s)", tag, verifierStatus), results.CategoryError
	}

	// Any other disagreement leaves a correct result unconfirmed.
	if verifierCategory == results.CategoryCorrect {
		return verifierStatus, results.CategoryCorrectUnconfirmed
	}
	return fmt.Sprintf("%s (%s)", msgResultInvalid, verifierStatus), results.CategoryError
}

// validationOutcome carries the evidence gathered from one witness pool.
type validationOutcome struct {
	ok       bool
	status   string
	category results.Category

	// The verifier's own category, possibly upgraded by the coverage
	// rules of the test-generation track.
	verifierCategory results.Category

	coverage results.Optional[float64]
}

// evaluatePool runs the linter and validator loops of one witness pool.
func (e *Engine) evaluatePool(verifier *results.Record, validators, linters []*results.RunSet) validationOutcome {
	out := validationOutcome{verifierCategory: verifier.Category}

	// A linter that found the witness well-formed settles the structural
	// question; a linter error on the witness overrides all later
	// evidence. A missing linter run counts as that linter's error.
	for _, linter := range linters {
		rec, _ := linter.Find(verifier.Task)
		status, category := pairResult(rec, verifier)
		if out.ok && out.category != results.CategoryError {
			continue
		}
		out.ok = true
		out.status, out.category = status, category
	}
	if out.ok && out.category == results.CategoryError {
		return out
	}

	coverage := 0.0
	coverageSeen := false
	for _, validator := range validators {
		rec, found := validator.Find(verifier.Task)
		if !found {
			continue
		}
		switch verifier.Property {
		case propCoverageErrorCall:
			if rec.Status == "true" {
				out.ok = true
				out.status, out.category = verifier.Status, results.CategoryCorrect
				out.verifierCategory = results.CategoryCorrect
				coverageSeen = true
				if coverage < 1 {
					coverage = 1
				}
			}
		case propCoverageBranches:
			out.ok = true
			out.status, out.category = verifier.Status, results.CategoryCorrect
			out.verifierCategory = results.CategoryCorrect
			coverageSeen = true
			fraction, err := parseCoverage(rec.Columns.BranchesCovered)
			if err != nil {
				slog.Debug("Skipping malformed coverage value",
					"task", verifier.Task, "validator", validator.Tool, "err", err)
				continue
			}
			if fraction > coverage {
				coverage = fraction
			}
		default:
			status, category := pairResult(rec, verifier)
			if !out.ok || !out.category.IsAnyCorrect() || category == results.CategoryCorrect {
				out.ok = true
				out.status, out.category = status, category
			}
		}
	}
	if coverageSeen || verifier.Property == propCoverageErrorCall || verifier.Property == propCoverageBranches {
		out.coverage = results.Some(coverage)
	}
	return out
}

// parseCoverage turns a reported percentage such as "87.5%" into a
// fraction. An absent column counts as zero coverage.
func parseCoverage(value results.Optional[string]) (float64, error) {
	raw, ok := value.Get()
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("coverage value %q: %w", raw, err)
	}
	return f / 100, nil
}

// splitLinterPools separates the linters into the legacy GraphML pool and
// the structured-format pool, keyed by the witness file the linter saw
// for this task. Linters without a run or without a witness-file column
// land in both pools.
func splitLinterPools(task string, linters []*results.RunSet) (graphml, structured []*results.RunSet) {
	for _, linter := range linters {
		rec, found := linter.Find(task)
		if !found || rec.Columns.WitnessFile == "" {
			graphml = append(graphml, linter)
			structured = append(structured, linter)
			continue
		}
		switch {
		case strings.HasSuffix(rec.Columns.WitnessFile, ".graphml"):
			graphml = append(graphml, linter)
		case strings.HasSuffix(rec.Columns.WitnessFile, ".yml"):
			structured = append(structured, linter)
		default:
			graphml = append(graphml, linter)
			structured = append(structured, linter)
		}
	}
	return graphml, structured
}

// resolve combines the two witness pools for one task. A confirmation
// from the structured pool wins outright, then one from the legacy pool;
// if both pools report an error, the most specific witness-error message
// is surfaced, structured pool consulted first per kind. Otherwise the
// result stays unconfirmed.
func (e *Engine) resolve(verifier *results.Record, validators, linters []*results.RunSet) validationOutcome {
	graphmlPool, structuredPool := splitLinterPools(verifier.Task, linters)

	structured := e.evaluatePool(verifier, validators, structuredPool)
	if structured.ok && structured.category == results.CategoryCorrect {
		return structured
	}
	legacy := e.evaluatePool(verifier, validators, graphmlPool)
	if legacy.ok && legacy.category == results.CategoryCorrect {
		return legacy
	}

	structuredRejects := structured.ok && structured.category == results.CategoryError
	legacyRejects := legacy.ok && legacy.category == results.CategoryError
	switch {
	case structuredRejects && legacyRejects:
		for _, kind := range witnessErrorOrder {
			if strings.HasPrefix(structured.status, kind) {
				return structured
			}
			if strings.HasPrefix(legacy.status, kind) {
				return legacy
			}
		}
	case structuredRejects && !legacy.ok:
		return structured
	case legacyRejects && !structured.ok:
		return legacy
	}

	// No confirmation and no witness rejection: unconfirmed.
	unconfirmed := structured
	unconfirmed.ok = true
	unconfirmed.status = verifier.Status
	unconfirmed.category = results.CategoryCorrectUnconfirmed
	if cov, ok := legacy.coverage.Get(); ok {
		already := unconfirmed.coverage.Or(0)
		if cov > already {
			unconfirmed.coverage = results.Some(cov)
		}
		if legacy.verifierCategory == results.CategoryCorrect {
			unconfirmed.verifierCategory = results.CategoryCorrect
		}
	}
	return unconfirmed
}

// FixRunSet adjusts one verifier run set against the given validator and
// linter run sets and returns a new run set; the input is not modified.
// Only results the verifier claimed correct are ever rewritten.
func (e *Engine) FixRunSet(verifier *results.RunSet, validators, linters []*results.RunSet, invalid InvalidTasks) (*results.RunSet, Stats, error) {
	fixed := results.NewRunSet(verifier.Tool, verifier.Name)
	fixed.SourceFile = verifier.SourceFile
	var stats Stats

	protectTrue := e.competition.MatchString(verifier.Name) && e.protected.MatchString(verifier.Name)

	for _, rec := range verifier.Tasks() {
		out := rec.Clone()

		if invalid[rec.Task] {
			out.Status = fmt.Sprintf("invalid task (%s)", rec.Status)
			out.Category = results.CategoryMissing
			stats.Invalidated++
			if err := fixed.Append(out); err != nil {
				return nil, stats, err
			}
			continue
		}

		if protectTrue && rec.Expected == "true" {
			stats.Skipped++
			if err := fixed.Append(out); err != nil {
				return nil, stats, err
			}
			continue
		}

		outcome := e.resolve(rec, validators, linters)
		if cov, ok := outcome.coverage.Get(); ok {
			out.Columns.Score = results.Some(cov)
		}
		if outcome.verifierCategory == results.CategoryCorrect && outcome.ok {
			if out.Status != outcome.status || out.Category != outcome.category {
				stats.Adjusted++
			}
			out.Status = outcome.status
			out.Category = outcome.category
		}
		if err := fixed.Append(out); err != nil {
			return nil, stats, err
		}
	}

	slog.Info("Adjusted verifier results",
		"tool", verifier.Tool, "runSet", verifier.Name,
		"adjusted", stats.Adjusted, "invalidated", stats.Invalidated, "skipped", stats.Skipped)
	return fixed, stats, nil
}
