// Package ranking selects the medal winners of a category: the three
// best eligible participants by score, with runtime on solved tasks as
// the tiebreaker.
package ranking

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/fmbench/scoretab/internal/category"
	"github.com/fmbench/scoretab/internal/scoring"
)

// Podium holds up to three tool names, best first. Slots without an
// eligible winner stay empty.
type Podium [3]string

type contender struct {
	name  string
	score float64
	speed float64
}

// byRank orders contenders by descending score; ties go to the faster
// tool. Tools without a runtime on solved tasks lose all ties.
func byRank(contenders []contender) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := contenders[i], contenders[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.speed != b.speed {
			return a.speed > b.speed
		}
		return a.name < b.name
	}
}

func inverseOrZero(v float64) float64 {
	if v > 0 {
		return 1 / v
	}
	return 0
}

// Best ranks the verifiers of a category. Hors-concours tools and tools
// that opted out of the category are not eligible. For falsification
// rankings only the false-verdict score and runtime count.
func Best(node scoring.CategoryNode, catalog *category.Catalog, falsification bool) Podium {
	var podium Podium
	if node.ValidTaskCount() == 0 {
		return podium
	}

	var contenders []contender
	for tool, res := range node.Results() {
		if catalog.IsHorsConcours(tool) || catalog.OptedOut(tool, node.Name()) {
			continue
		}
		c := contender{name: tool, score: res.Score, speed: inverseOrZero(res.CPUTime.Success)}
		if falsification {
			c.score = res.ScoreFalse
			c.speed = inverseOrZero(res.CPUTime.SuccessFalse)
		}
		contenders = append(contenders, c)
	}
	sort.Slice(contenders, byRank(contenders))

	if n := len(contenders); n > 0 && n < len(podium) && !catalog.IsDemo(node.Name()) {
		slog.Warn("Fewer than three ranked participants", "category", node.Name(), "ranked", n)
	}
	for i := 0; i < len(podium) && i < len(contenders); i++ {
		podium[i] = contenders[i].name
	}
	return podium
}

// BestValidators ranks the validators of a category. Only validators
// with a positive score place; eligibility is decided by the underlying
// tool name, without the witness-kind suffix.
func BestValidators(node scoring.CategoryNode, catalog *category.Catalog) Podium {
	var podium Podium
	if node.ValidTaskCount() == 0 {
		return podium
	}

	var contenders []contender
	unplaced := 0
	for validator, res := range node.Results() {
		tool := ValidatorTool(validator)
		if catalog.IsHorsConcours(tool) || catalog.OptedOut(tool, node.Name()) {
			continue
		}
		if res.Score <= 0 {
			unplaced++
			continue
		}
		contenders = append(contenders, contender{
			name:  validator,
			score: res.Score,
			speed: inverseOrZero(res.CPUTime.Success),
		})
	}
	sort.Slice(contenders, byRank(contenders))

	if n := len(contenders) + unplaced; n > 0 && n < len(podium) && !catalog.IsDemo(node.Name()) {
		slog.Warn("Fewer than three ranked validators", "category", node.Name(), "ranked", n)
	}
	for i := 0; i < len(podium) && i < len(contenders); i++ {
		podium[i] = contenders[i].name
	}
	return podium
}

// ValidatorTool strips the witness-kind suffix from a validator name,
// e.g. "checkmate-validate-violation-witnesses-2.0" becomes "checkmate".
func ValidatorTool(validator string) string {
	return strings.Split(validator, "-validate-")[0]
}
