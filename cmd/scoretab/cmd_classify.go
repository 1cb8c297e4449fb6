package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fmbench/scoretab/internal/results"
	"github.com/fmbench/scoretab/internal/witness"
)

type classifyFlags struct {
	structure  string
	resultsDir string
	out        string
}

func newClassifyCommand() *cobra.Command {
	var flags classifyFlags
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Vote witness classifications across all validator runs",
		Long: `Classify collects every validator and linter verdict on every witness
and votes each witness correct, wrong, or unknown per witness pool.

The voted classifications are stored in a SQLite database that the
validation-track reconcile step reads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(flags)
		},
	}

	cmd.Flags().StringVar(&flags.structure, "structure", "", "Competition structure definition (YAML)")
	cmd.Flags().StringVar(&flags.resultsDir, "results-dir", "", "Directory holding the raw result files")
	cmd.Flags().StringVar(&flags.out, "out", "", "Path of the classification database to write")
	_ = cmd.MarkFlagRequired("structure")
	_ = cmd.MarkFlagRequired("results-dir")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runClassify(flags classifyFlags) error {
	catalog, err := loadCatalog(flags.structure)
	if err != nil {
		return err
	}
	store, err := witness.OpenStore(flags.out)
	if err != nil {
		return err
	}
	defer store.Close()

	loader := results.FileLoader{}
	for _, name := range catalog.ValidationBaseCategories() {
		fileCat := fileCategory(name)
		builder := witness.NewBuilder(fileCat)
		found := 0

		for _, v := range catalog.Validators() {
			for _, producer := range catalog.Verifiers() {
				set, err := findAndLoad(loader, flags.resultsDir, v+"-"+producer, fileCat)
				if err != nil {
					return err
				}
				if set == nil {
					continue
				}
				meta, err := witness.ParseValidationTool(set.Tool)
				if err != nil {
					return fmt.Errorf("category %s: %w", name, err)
				}
				builder.AddRunSet(set, meta)
				found++
			}
		}
		if found == 0 {
			slog.Debug("No validator runs for category", "category", name)
			continue
		}

		entries, err := builder.Classify()
		if err != nil {
			return fmt.Errorf("classifying witnesses of %s: %w", name, err)
		}
		if err := store.Import(entries); err != nil {
			return fmt.Errorf("storing classifications of %s: %w", name, err)
		}
		slog.Debug("Classified witnesses", "category", name, "entries", len(entries))
	}

	count, err := store.Count()
	if err != nil {
		return err
	}
	slog.Info("Wrote witness classifications", "path", flags.out, "classifications", count)
	return nil
}
