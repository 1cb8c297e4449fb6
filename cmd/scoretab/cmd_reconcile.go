package main

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmbench/scoretab/internal/category"
	"github.com/fmbench/scoretab/internal/reconcile"
	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/witness"
)

type reconcileFlags struct {
	structure       string
	resultsDir      string
	outDir          string
	track           string
	classifications string
	bannedWitnesses string
}

func newReconcileCommand() *cobra.Command {
	var flags reconcileFlags
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Adjust raw results against witness-validation evidence",
		Long: `Reconcile adjusts the raw result files of one track.

For the verification track, each verifier verdict is confirmed, left
unconfirmed, or invalidated by the validator and linter runs on its
witness. For the validation track, each validator run is rewritten
against the voted witness classifications.

Adjusted files are written next to the raw ones with a .fixed.json
suffix; later runs pick them up in preference to the raw files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(flags)
		},
	}

	cmd.Flags().StringVar(&flags.structure, "structure", "", "Competition structure definition (YAML)")
	cmd.Flags().StringVar(&flags.resultsDir, "results-dir", "", "Directory holding the raw result files")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "Output directory (defaults to the results directory)")
	cmd.Flags().StringVar(&flags.track, "track", "verification", "Track to adjust: verification or validation")
	cmd.Flags().StringVar(&flags.classifications, "classifications", "", "Witness-classification store (validation track only)")
	cmd.Flags().StringVar(&flags.bannedWitnesses, "banned-witnesses", "", "File listing banned witness files, one per line")
	_ = cmd.MarkFlagRequired("structure")
	_ = cmd.MarkFlagRequired("results-dir")

	return cmd
}

func runReconcile(flags reconcileFlags) error {
	catalog, err := loadCatalog(flags.structure)
	if err != nil {
		return err
	}
	if flags.outDir == "" {
		flags.outDir = flags.resultsDir
	}
	engine := reconcile.New(
		reconcile.WithCompetitionPattern(regexp.QuoteMeta(catalog.Competition())))

	switch flags.track {
	case "verification":
		return reconcileVerification(catalog, engine, flags)
	case "validation":
		return reconcileValidation(catalog, engine, flags)
	default:
		return &InputError{Err: fmt.Errorf("unknown track %q: must be verification or validation", flags.track)}
	}
}

func reconcileVerification(catalog *category.Catalog, engine *reconcile.Engine, flags reconcileFlags) error {
	invalid := reconcile.InvalidTasks(catalog.InvalidTasks("verification"))
	loader := results.FileLoader{}
	var total reconcile.Stats

	for _, name := range catalog.BaseCategories() {
		fileCat := fileCategory(name)
		for _, verifier := range catalog.Verifiers() {
			set, err := findAndLoad(loader, flags.resultsDir, verifier, fileCat)
			if err != nil {
				return err
			}
			if set == nil {
				continue
			}
			validators, linters, err := loadWitnessRuns(loader, catalog, flags.resultsDir, verifier, fileCat)
			if err != nil {
				return err
			}

			fixed, stats, err := engine.FixRunSet(set, validators, linters, invalid)
			if err != nil {
				return fmt.Errorf("adjusting %s for %s: %w", name, verifier, err)
			}
			if err := saveFixed(flags.outDir, set.SourceFile, fixed); err != nil {
				return err
			}

			total.Adjusted += stats.Adjusted
			total.Invalidated += stats.Invalidated
			total.Skipped += stats.Skipped
			slog.Debug("Adjusted run set",
				"category", name, "tool", verifier,
				"adjusted", stats.Adjusted, "invalidated", stats.Invalidated, "skipped", stats.Skipped)
		}
	}

	slog.Info("Adjusted verification results",
		"adjusted", total.Adjusted, "invalidated", total.Invalidated, "skipped", total.Skipped)
	return nil
}

func reconcileValidation(catalog *category.Catalog, engine *reconcile.Engine, flags reconcileFlags) error {
	if flags.classifications == "" {
		return &InputError{Err: errors.New("--classifications is required for the validation track")}
	}
	store, err := witness.OpenStore(flags.classifications)
	if err != nil {
		return &InputError{Err: err}
	}
	defer store.Close()

	banned := reconcile.BannedWitnesses{}
	if flags.bannedWitnesses != "" {
		banned, err = reconcile.LoadBannedWitnesses(flags.bannedWitnesses)
		if err != nil {
			return &InputError{Err: err}
		}
	}

	invalid := reconcile.InvalidTasks(catalog.InvalidTasks("validation"))
	loader := results.FileLoader{}
	var total reconcile.Stats

	for _, name := range catalog.ValidationBaseCategories() {
		fileCat := fileCategory(name)
		for _, producer := range catalog.Verifiers() {
			validators, linters, err := loadWitnessRuns(loader, catalog, flags.resultsDir, producer, fileCat)
			if err != nil {
				return err
			}
			for _, set := range append(validators, linters...) {
				fixed, stats, err := engine.FixValidationRunSet(set, linters, store, fileCat, invalid, banned)
				if err != nil {
					return fmt.Errorf("adjusting %s for %s: %w", name, set.Tool, err)
				}
				if err := saveFixed(flags.outDir, set.SourceFile, fixed); err != nil {
					return err
				}
				total.Adjusted += stats.Adjusted
				total.Invalidated += stats.Invalidated
				total.Dropped += stats.Dropped
			}
		}
	}

	slog.Info("Adjusted validation results",
		"adjusted", total.Adjusted, "invalidated", total.Invalidated, "dropped", total.Dropped)
	return nil
}

// loadWitnessRuns loads every validator run on one producer's witnesses
// in one category, split into semantic validators and structural linters.
func loadWitnessRuns(loader results.Loader, catalog *category.Catalog, dir, producer, fileCat string) (validators, linters []*results.RunSet, err error) {
	for _, v := range catalog.Validators() {
		set, err := findAndLoad(loader, dir, v+"-"+producer, fileCat)
		if err != nil {
			return nil, nil, err
		}
		if set == nil {
			continue
		}
		if strings.HasPrefix(set.Tool, results.LinterTool) {
			linters = append(linters, set)
		} else {
			validators = append(validators, set)
		}
	}
	return validators, linters, nil
}

func saveFixed(outDir, sourceFile string, fixed *results.RunSet) error {
	path, err := fixedPath(outDir, sourceFile)
	if err != nil {
		return err
	}
	if err := results.Save(path, fixed); err != nil {
		return fmt.Errorf("saving adjusted results: %w", err)
	}
	return nil
}
