package reconcile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/witness"
)

// Expected linter-reported witness type per format version.
var expectedWitnessType = map[witness.Kind]string{
	{Type: witness.TypeViolation, Version: witness.Version1}:   "violation_witness",
	{Type: witness.TypeCorrectness, Version: witness.Version1}: "correctness_witness",
	{Type: witness.TypeViolation, Version: witness.Version2}:   "VIOLATION",
	{Type: witness.TypeCorrectness, Version: witness.Version2}: "CORRECTNESS",
}

// BannedWitnesses holds witness file names excluded from scoring.
type BannedWitnesses map[string]bool

// LoadBannedWitnesses reads a ban list, one witness file name per line.
// Blank lines and lines starting with "#" are skipped.
func LoadBannedWitnesses(path string) (BannedWitnesses, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening witness ban list: %w", err)
	}
	defer f.Close()

	banned := BannedWitnesses{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		banned[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading witness ban list: %w", err)
	}
	return banned, nil
}

// excludedInValidationTrack reports whether a witness pool is out of scope
// for the given benchmark category, specification, and expected verdict.
// Correctness witnesses are validated for overflow properties and for
// reachability outside the array, float, and heap categories; violation
// witnesses in format 2.0 cover reachability, overflows, and the memory
// sub-properties valid-free and valid-deref.
func excludedInValidationTrack(kind witness.Kind, category, specification, expected string) bool {
	if kind.Type == witness.TypeCorrectness {
		switch {
		case strings.Contains(category, "ConcurrencySafety"):
			return true
		case strings.Contains(specification, "no-overflow"):
			return false
		case strings.Contains(specification, "unreach-call"):
			return strings.HasSuffix(category, "Arrays") ||
				strings.HasSuffix(category, "Floats") ||
				strings.HasSuffix(category, "Heap")
		default:
			return true
		}
	}
	if kind.Version == witness.Version1 {
		return false
	}
	switch {
	case strings.Contains(category, "ConcurrencySafety"):
		return true
	case strings.Contains(specification, "unreach-call"),
		strings.Contains(specification, "no-overflow"):
		return false
	case strings.Contains(expected, "valid-free"),
		strings.Contains(expected, "valid-deref"):
		return false
	default:
		return true
	}
}

// mergeLinterRecords folds the violation and correctness linter runs of
// one producer into a single task index. A task lands in both pools only
// when the producer emitted two witnesses for it, which the scoring model
// does not support.
func mergeLinterRecords(linters []*results.RunSet) map[string]*results.Record {
	merged := map[string]*results.Record{}
	for _, linter := range linters {
		for _, rec := range linter.Tasks() {
			if _, exists := merged[rec.Task]; exists {
				slog.Error("Task has witnesses in both linter pools, keeping the first",
					"task", rec.Task, "runSet", linter.Name)
				continue
			}
			merged[rec.Task] = rec
		}
	}
	return merged
}

// rewriteCategory maps a validator's result category through the voted
// witness classification. Only correct and wrong results are rewritten;
// the validator is judged right when its own status matches what the
// witness classification implies for the program.
func rewriteCategory(current results.Category, witnessType string, class witness.Classification,
	status string) results.Category {

	if current != results.CategoryCorrect && current != results.CategoryWrong {
		return current
	}
	if witnessType == "" {
		return results.CategoryUnknown
	}
	if class != witness.ClassCorrect && class != witness.ClassWrong {
		return results.CategoryUnknown
	}

	// A correct violation witness implies the program violates its
	// specification, a correct correctness witness that it satisfies it.
	// A wrong witness implies the opposite.
	var witnessSaysTrue bool
	switch witnessType {
	case "correctness_witness", "CORRECTNESS":
		witnessSaysTrue = true
	case "violation_witness", "VIOLATION":
		witnessSaysTrue = false
	default:
		return results.CategoryUnknown
	}
	if class == witness.ClassWrong {
		witnessSaysTrue = !witnessSaysTrue
	}

	var statusSaysTrue bool
	switch {
	case strings.HasPrefix(status, "true"):
		statusSaysTrue = true
	case strings.HasPrefix(status, "false"):
		statusSaysTrue = false
	default:
		return results.CategoryUnknown
	}

	if statusSaysTrue == witnessSaysTrue {
		return results.CategoryCorrect
	}
	return results.CategoryWrong
}

// FixValidationRunSet adjusts one validator run set of the validation
// track against the linter evidence and the voted witness-classification
// store. Runs whose witness is missing or of the wrong type are dropped;
// the input is not modified.
func (e *Engine) FixValidationRunSet(validation *results.RunSet, linters []*results.RunSet,
	store *witness.Store, benchCategory string, invalid InvalidTasks, banned BannedWitnesses) (*results.RunSet, Stats, error) {

	meta, err := witness.ParseValidationTool(validation.Tool)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("adjusting validation run set %q: %w", validation.Name, err)
	}
	isLinterSet := meta.Validator == results.LinterTool
	wantType := expectedWitnessType[meta.Kind]
	linterByTask := mergeLinterRecords(linters)

	fixed := results.NewRunSet(validation.Tool, validation.Name)
	fixed.SourceFile = validation.SourceFile
	var stats Stats

	for _, rec := range validation.Tasks() {
		out := rec.Clone()

		appendFixed := func() error { return fixed.Append(out) }

		if invalid[rec.Task] {
			out.Status = fmt.Sprintf("invalid task (%s)", rec.Status)
			out.Category = results.CategoryMissing
			out.WitnessCategory = string(witness.ClassMissing)
			stats.Invalidated++
			if err := appendFixed(); err != nil {
				return nil, stats, err
			}
			continue
		}

		linterRec, hasLinterRec := linterByTask[rec.Task]
		if !hasLinterRec || banned[linterRec.Columns.WitnessFile] {
			out.Status = fmt.Sprintf("invalid witness (%s)", rec.Status)
			out.Category = results.CategoryMissing
			out.WitnessCategory = string(witness.ClassMissing)
			stats.Invalidated++
			if err := appendFixed(); err != nil {
				return nil, stats, err
			}
			continue
		}

		if excludedInValidationTrack(meta.Kind, benchCategory, rec.Property, rec.Expected) {
			out.Status = fmt.Sprintf("unsupported witness (%s)", rec.Status)
			out.Category = results.CategoryError
			out.WitnessCategory = string(witness.ClassError)
			stats.Invalidated++
			if err := appendFixed(); err != nil {
				return nil, stats, err
			}
			continue
		}

		// The Java track has no witness validation; results pass through.
		if rec.Property == "assert_java" {
			if err := appendFixed(); err != nil {
				return nil, stats, err
			}
			continue
		}

		var witnessCategory witness.Classification
		switch {
		case strings.Contains(linterRec.Status, "witness does not exist"):
			witnessCategory = witness.ClassMissing
			if !isLinterSet {
				stats.Dropped++
				continue
			}

		// A run on a witness of the wrong type is dropped; a run whose
		// witness type the linter never reported is kept and its category
		// rewritten to unknown further down.
		case linterRec.Columns.WitnessType != "" && linterRec.Columns.WitnessType != wantType:
			stats.Dropped++
			continue

		case strings.Contains(linterRec.Status, "invalid witness syntax"),
			strings.Contains(linterRec.Status, "program does not exist"),
			strings.Contains(linterRec.Status, "EXCEPTION"):
			witnessCategory = witness.ClassError

		case linterRec.Category == results.CategoryError:
			slog.Warn("Linter failed on witness, treating it as erroneous",
				"task", rec.Task, "linterStatus", linterRec.Status)
			witnessCategory = witness.ClassError

		case linterRec.Category == results.CategoryUnknown:
			return nil, stats, fmt.Errorf(
				"linter did not decide witness of task %q in %s", rec.Task, validation.Name)

		default:
			class, _, err := store.Lookup(benchCategory, rec.Task, meta.Producer, rec.Property, meta.Kind)
			if err != nil {
				return nil, stats, fmt.Errorf("adjusting validation run set %q: %w", validation.Name, err)
			}
			witnessCategory = class
		}

		newCategory := rewriteCategory(rec.Category, linterRec.Columns.WitnessType,
			witnessCategory, rec.Status)
		if newCategory != rec.Category {
			stats.Adjusted++
		}
		out.Category = newCategory
		out.WitnessCategory = string(witnessCategory)
		if !isLinterSet {
			out.Columns.WitnessType = linterRec.Columns.WitnessType
			out.Columns.WitnessFile = linterRec.Columns.WitnessFile
		}
		if err := appendFixed(); err != nil {
			return nil, stats, err
		}
	}

	slog.Info("Adjusted validator results",
		"tool", validation.Tool, "runSet", validation.Name,
		"adjusted", stats.Adjusted, "invalidated", stats.Invalidated, "dropped", stats.Dropped)
	return fixed, stats, nil
}
