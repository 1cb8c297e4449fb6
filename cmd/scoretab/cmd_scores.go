package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmbench/scoretab/internal/aggregate"
	"github.com/fmbench/scoretab/internal/category"
	"github.com/fmbench/scoretab/internal/orchestration"
	"github.com/fmbench/scoretab/internal/ranking"
	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/scoring"
)

type scoresFlags struct {
	structure  string
	resultsDir string
	outDir     string
	track      string
	workers    int
}

func newScoresCommand() *cobra.Command {
	var flags scoresFlags
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Compute the ranked score tables of one track",
		Long: `Scores aggregates the adjusted result files into per-category score
tables, normalizes the meta categories, and ranks the participants.

The command writes one JSON score table per track plus the quantile-plot
data of every participant. Any scoring failure aborts the run without
producing output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScores(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.structure, "structure", "", "Competition structure definition (YAML)")
	cmd.Flags().StringVar(&flags.resultsDir, "results-dir", "", "Directory holding the adjusted result files")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "Directory for score tables and quantile plots")
	cmd.Flags().StringVar(&flags.track, "track", "verification", "Track to score: verification or validation")
	cmd.Flags().IntVar(&flags.workers, "workers", 4, "How many base categories to score in parallel")
	_ = cmd.MarkFlagRequired("structure")
	_ = cmd.MarkFlagRequired("results-dir")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runScores(ctx context.Context, flags scoresFlags) error {
	catalog, err := loadCatalog(flags.structure)
	if err != nil {
		return err
	}
	loader := results.FileLoader{}

	var runner *orchestration.Runner
	switch flags.track {
	case "verification":
		runner = orchestration.NewRunner(catalog,
			verificationBase(catalog, loader, flags.resultsDir), verificationMeta(),
			orchestration.WithWorkerCount(flags.workers))
	case "validation":
		runner = orchestration.NewRunner(catalog,
			validationBase(catalog, loader, flags.resultsDir), validationMeta(),
			orchestration.WithWorkerCount(flags.workers),
			orchestration.ForValidationTrack())
	default:
		return &InputError{Err: fmt.Errorf("unknown track %q: must be verification or validation", flags.track)}
	}

	runner.OnProgress(func(event orchestration.ProgressEvent) {
		if event.EventType == orchestration.EventCategoryComplete {
			slog.Debug("Scored category",
				"category", event.Category, "index", event.Index,
				"total", event.Total, "ms", event.DurationMs)
		}
	})

	nodes, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	return writeScoreOutput(catalog, nodes, flags)
}

func verificationBase(catalog *category.Catalog, loader results.Loader, dir string) orchestration.BaseFunc {
	return func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		fileCat := fileCategory(name)
		perTool := map[string]*results.RunSet{}
		for _, verifier := range catalog.Verifiers() {
			set, err := findAndLoad(loader, dir, verifier, fileCat)
			if err != nil {
				return nil, err
			}
			if set != nil {
				perTool[verifier] = set
			}
		}
		node, err := aggregate.BaseVerification(name, perTool)
		if err != nil {
			return nil, err
		}
		return node, nil
	}
}

func verificationMeta() orchestration.MetaFunc {
	corr := aggregate.DefaultCorrections()
	return func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		node, err := aggregate.NormalizeVerification(name, children, corr)
		if err != nil {
			return nil, err
		}
		return node, nil
	}
}

func validationBase(catalog *category.Catalog, loader results.Loader, dir string) orchestration.BaseFunc {
	return func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		fileCat := fileCategory(name)
		perValidator := map[string][]*results.RunSet{}
		for _, v := range catalog.ValidatorsWithoutLinters() {
			for _, producer := range catalog.Verifiers() {
				set, err := findAndLoad(loader, dir, v+"-"+producer, fileCat)
				if err != nil {
					return nil, err
				}
				if set != nil {
					perValidator[v] = append(perValidator[v], set)
				}
			}
		}
		node, err := aggregate.BaseValidation(name, perValidator)
		if err != nil {
			return nil, err
		}
		return node, nil
	}
}

func validationMeta() orchestration.MetaFunc {
	return func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		node, err := aggregate.NormalizeValidation(name, children)
		if err != nil {
			return nil, err
		}
		return node, nil
	}
}

// toolScore is one participant's row of a score table.
type toolScore struct {
	Score                   float64 `json:"score"`
	ScoreFalse              float64 `json:"score_false"`
	CPUTime                 float64 `json:"cputime"`
	CPUEnergy               float64 `json:"cpuenergy"`
	CorrectTrue             int     `json:"correct_true"`
	CorrectFalse            int     `json:"correct_false"`
	CorrectUnconfirmedTrue  int     `json:"correct_unconfirmed_true"`
	CorrectUnconfirmedFalse int     `json:"correct_unconfirmed_false"`
	IncorrectTrue           int     `json:"incorrect_true"`
	IncorrectFalse          int     `json:"incorrect_false"`
}

// categoryTable is one category's score table.
type categoryTable struct {
	Category         string               `json:"category"`
	Tasks            int                  `json:"tasks"`
	ValidTasks       int                  `json:"valid_tasks"`
	MaxScore         float64              `json:"max_score"`
	MaxScoreFalse    float64              `json:"max_score_false"`
	WitnessesCorrect int                  `json:"witnesses_correct,omitempty"`
	WitnessesWrong   int                  `json:"witnesses_wrong,omitempty"`
	Best             []string             `json:"best,omitempty"`
	Tools            map[string]toolScore `json:"tools"`
}

func writeScoreOutput(catalog *category.Catalog, nodes map[string]scoring.CategoryNode, flags scoresFlags) error {
	order := catalog.TableOrder()
	if flags.track == "validation" {
		order = catalog.ValidationTableOrder()
	}

	var tables []categoryTable
	for _, name := range order {
		node, ok := nodes[name]
		if !ok {
			slog.Warn("Category in table order was not scored", "category", name)
			continue
		}
		tables = append(tables, categoryScoreTable(catalog, node, flags.track))

		for tool, res := range node.Results() {
			rows := qplotRows(node, res)
			path := filepath.Join(flags.outDir, "quantile-plots", name, tool+".quantile.csv")
			if err := aggregate.WriteQPlotCSV(path, rows); err != nil {
				return err
			}
		}
	}

	path := filepath.Join(flags.outDir, fmt.Sprintf("scores-%s.json", flags.track))
	if err := writeJSON(path, tables); err != nil {
		return err
	}
	slog.Info("Wrote score tables", "path", path, "categories", len(tables))
	return nil
}

func categoryScoreTable(catalog *category.Catalog, node scoring.CategoryNode, track string) categoryTable {
	table := categoryTable{
		Category:      node.Name(),
		Tasks:         node.TaskCount(),
		ValidTasks:    node.ValidTaskCount(),
		MaxScore:      node.PossibleScore(),
		MaxScoreFalse: node.PossibleScoreFalse(),
		Tools:         map[string]toolScore{},
	}
	if vc, ok := node.(*scoring.ValidationCategory); ok {
		table.WitnessesCorrect = vc.WitnessesCorrect
		table.WitnessesWrong = vc.WitnessesWrong
	}

	var podium ranking.Podium
	if track == "validation" {
		podium = ranking.BestValidators(node, catalog)
	} else {
		falsifier := strings.HasPrefix(node.Name(), aggregate.FalsifierPrefix)
		podium = ranking.Best(node, catalog, falsifier)
	}
	for _, winner := range podium {
		if winner != "" {
			table.Best = append(table.Best, winner)
		}
	}

	for tool, res := range node.Results() {
		table.Tools[tool] = toolScore{
			Score:                   res.Score,
			ScoreFalse:              res.ScoreFalse,
			CPUTime:                 res.CPUTime.Total,
			CPUEnergy:               res.CPUEnergy.Total,
			CorrectTrue:             res.CorrectTrue,
			CorrectFalse:            res.CorrectFalse,
			CorrectUnconfirmedTrue:  res.CorrectUnconfirmedTrue,
			CorrectUnconfirmedFalse: res.CorrectUnconfirmedFalse,
			IncorrectTrue:           res.IncorrectTrue,
			IncorrectFalse:          res.IncorrectFalse,
		}
	}
	return table
}

// qplotRows picks the curve shape for a category: score-column categories
// plot accumulated score against solved-task count, everything else plots
// accumulated score against the measurement value.
func qplotRows(node scoring.CategoryNode, res *scoring.CategoryResult) []aggregate.QPlotRow {
	if _, ok := node.(*scoring.VerificationCategory); ok &&
		node.PossibleScore() == 0 && node.ValidTaskCount() > 0 {
		return aggregate.CoverageQPlotCSV(res.QPlotCPUTime, node)
	}
	return aggregate.QPlotCSV(res.QPlotCPUTime, node)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
