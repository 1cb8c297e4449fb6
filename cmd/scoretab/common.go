package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fmbench/scoretab/internal/category"
	"github.com/fmbench/scoretab/internal/results"
)

func loadCatalog(path string) (*category.Catalog, error) {
	catalog, err := category.Load(path)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	return catalog, nil
}

// fileCategory strips the specification prefix from a category name:
// "unreach-call.ReachSafety-Loops" becomes "ReachSafety-Loops", the form
// used in result-file names.
func fileCategory(name string) string {
	if _, cat, ok := strings.Cut(name, "."); ok {
		return cat
	}
	return name
}

// findAndLoad loads a tool's newest result file for a category. Returns
// nil without error when the tool has no results there, which means it
// did not participate.
func findAndLoad(loader results.Loader, dir, tool, fileCat string) (*results.RunSet, error) {
	path, err := results.FindLatest(dir, tool, fileCat)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	if path == "" {
		return nil, nil
	}
	set, err := loader.Load(path)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	return set, nil
}

// fixedPath derives the output path of an adjusted result file from its
// source file name.
func fixedPath(outDir, sourceFile string) (string, error) {
	base := filepath.Base(sourceFile)
	base = strings.TrimSuffix(base, ".zst")
	name, ok := strings.CutSuffix(base, ".json")
	if !ok {
		return "", fmt.Errorf("result file %s has no .json suffix", sourceFile)
	}
	name = strings.TrimSuffix(name, ".fixed")
	return filepath.Join(outDir, name+".fixed.json"), nil
}
