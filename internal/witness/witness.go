// Package witness labels witnesses as correct, wrong, or unknown by
// majority vote across independent validators. The resulting table is
// consumed by later reconciliation passes over validator results.
package witness

import (
	"fmt"
	"log/slog"
	"strings"
)

// Classification is the voted validity of one witness.
type Classification string

const (
	ClassCorrect Classification = "witness-correct"
	ClassWrong   Classification = "witness-wrong"
	ClassUnknown Classification = "witness-unknown"
	ClassMissing Classification = "witness-missing"
	ClassError   Classification = "witness-error"
)

// Voted reports whether c is a value the voting pass may produce.
// Missing and error are assigned only during validator-result adjustment.
func (c Classification) Voted() bool {
	return c == ClassCorrect || c == ClassWrong || c == ClassUnknown
}

// Witness kinds: type × format version.
const (
	TypeCorrectness = "correctness"
	TypeViolation   = "violation"

	Version1 = "1.0"
	Version2 = "2.0"
)

// Kind identifies one witness pool: correctness or violation witnesses in
// format version 1.0 or 2.0.
type Kind struct {
	Type    string
	Version string
}

func (k Kind) String() string {
	return k.Type + "-" + k.Version
}

// Kinds are the four witness pools of the competition.
var Kinds = []Kind{
	{TypeCorrectness, Version1},
	{TypeCorrectness, Version2},
	{TypeViolation, Version1},
	{TypeViolation, Version2},
}

// ParseKind parses strings such as "violation-2.0".
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("invalid witness kind %q", s)
}

// Witness-type values reported by the structural linter.
var (
	correctnessTypes = map[string]bool{"CORRECTNESS": true, "correctness_witness": true}
	violationTypes   = map[string]bool{"VIOLATION": true, "violation_witness": true}
)

// WitnessMapProducer is the special producer whose witnesses carry their
// own expected verdict; it is judged directly instead of by voting.
const WitnessMapProducer = "witnessmap"

// Verdict is one validator's status for a witness, attributed to the
// witness pool the validator ran on.
type Verdict struct {
	Validator string
	Kind      Kind
	Status    string
}

// Row groups all evidence about one witness: the producing tool's task,
// the linter-observed witness types per format version, and the validator
// verdicts.
type Row struct {
	Category        string
	Task            string
	Producer        string
	Specification   string
	Expected        string
	WitnessExpected string
	WitnessTypeV1   string
	WitnessTypeV2   string
	Verdicts        []Verdict
}

func (r *Row) witnessType(version string) string {
	if version == Version1 {
		return r.WitnessTypeV1
	}
	return r.WitnessTypeV2
}

// noVote marks classifications decided without counting validators.
const noVote = "-:-"

// Classify labels the row's witness for one pool and returns the
// classification with its "confirmed:rejected" voting record.
//
// Witnesses from the witnessmap producer are compared against the expected
// verdict directly. For everything else the linter-observed witness type
// must agree with the pool under test and be able to confirm the expected
// verdict; the remaining cases are put to a vote: at least two validators
// must have a usable verdict, and a three-to-one supermajority decides.
func Classify(row *Row, kind Kind) (Classification, string, error) {
	expected := strings.ToLower(row.Expected)

	if row.Producer == WitnessMapProducer {
		switch {
		case row.WitnessExpected == "" || row.WitnessExpected == "-":
			slog.Warn("Witnessmap task without expected witness verdict", "task", row.Task)
			return ClassUnknown, noVote, nil
		case strings.ToLower(row.WitnessExpected) != expected:
			return ClassWrong, noVote, nil
		default:
			return ClassCorrect, noVote, nil
		}
	}
	if row.WitnessExpected != "" && row.WitnessExpected != "-" {
		return "", "", fmt.Errorf(
			"unexpected witness verdict %q for non-witnessmap producer %q on task %q",
			row.WitnessExpected, row.Producer, row.Task)
	}

	switch witnessType := row.witnessType(kind.Version); {
	case correctnessTypes[witnessType]:
		if kind.Type == TypeViolation {
			return ClassUnknown, noVote, nil
		}
		if strings.HasPrefix(expected, "false") {
			return ClassWrong, noVote, nil
		}
	case violationTypes[witnessType]:
		if kind.Type == TypeCorrectness {
			return ClassUnknown, noVote, nil
		}
		if strings.HasPrefix(expected, "true") {
			return ClassWrong, noVote, nil
		}
	default:
		return ClassUnknown, noVote, nil
	}

	opposite := "true"
	if expected == "true" {
		opposite = "false"
	}
	confirmed, rejected := 0, 0
	for _, v := range row.Verdicts {
		if v.Kind != kind {
			continue
		}
		if strings.HasPrefix(v.Status, expected) {
			confirmed++
		} else if strings.HasPrefix(v.Status, opposite) {
			rejected++
		}
	}
	votes := fmt.Sprintf("%d:%d", confirmed, rejected)
	if confirmed+rejected >= 2 {
		if confirmed >= 3*rejected {
			return ClassCorrect, votes, nil
		}
		if rejected >= 3*confirmed {
			return ClassWrong, votes, nil
		}
	}
	// Fewer than two usable verdicts, or no supermajority.
	return ClassUnknown, votes, nil
}
