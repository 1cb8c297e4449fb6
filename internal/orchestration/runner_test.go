package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmbench/scoretab/internal/category"
	"github.com/fmbench/scoretab/internal/scoring"
)

const pipelineStructure = `
competition: SV-COMP
year: 2026
participants:
  verifone:
    labels: []
verifiers: [verifone]
validators:
  - checkmate-validate-violation-witnesses-2.0
categories:
  ReachSafety:
    categories:
      - unreach-call.ReachSafety-Arrays
      - unreach-call.ReachSafety-Loops
    verifiers: [verifone]
    validators: [checkmate-validate-violation-witnesses-2.0]
  Overall:
    categories: [ReachSafety]
    verifiers: [verifone]
    validators: [checkmate-validate-violation-witnesses-2.0]
categories_process_order:
  - unreach-call.ReachSafety-Arrays
  - unreach-call.ReachSafety-Loops
  - ReachSafety
  - Overall
categories_table_order:
  - Overall
  - ReachSafety
validation_only: []
`

func pipelineCatalog(t *testing.T) *category.Catalog {
	t.Helper()
	catalog, err := category.Parse([]byte(pipelineStructure), "sample")
	require.NoError(t, err)
	return catalog
}

func stubNode(name string) scoring.CategoryNode {
	return scoring.NewVerificationCategory(name, 1, 1, 0, 2, 0)
}

func TestRunnerScoresBaseBeforeMeta(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var basesDone atomic.Int32

	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		basesDone.Add(1)
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		require.EqualValues(t, 2, basesDone.Load(), "meta category scored before all base categories")
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return stubNode(name), nil
	}

	runner := NewRunner(pipelineCatalog(t), base, meta, WithWorkerCount(2))
	nodes, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, nodes, 4)
	require.Len(t, order, 4)
	assert.Equal(t, "ReachSafety", order[2])
	assert.Equal(t, "Overall", order[3])
}

func TestRunnerPassesChildrenInCatalogOrder(t *testing.T) {
	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		if name == "ReachSafety" {
			require.Len(t, children, 2)
			assert.Equal(t, "unreach-call.ReachSafety-Arrays", children[0].Name())
			assert.Equal(t, "unreach-call.ReachSafety-Loops", children[1].Name())
		}
		return stubNode(name), nil
	}

	_, err := NewRunner(pipelineCatalog(t), base, meta).Run(context.Background())
	require.NoError(t, err)
}

func TestRunnerNestedMetaSeesMetaChild(t *testing.T) {
	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		if name == "Overall" {
			require.Len(t, children, 1)
			assert.Equal(t, "ReachSafety", children[0].Name())
		}
		return stubNode(name), nil
	}

	_, err := NewRunner(pipelineCatalog(t), base, meta).Run(context.Background())
	require.NoError(t, err)
}

func TestRunnerBaseFailureAbortsRun(t *testing.T) {
	sentinel := errors.New("broken results file")
	var metaCalls atomic.Int32

	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		if name == "unreach-call.ReachSafety-Loops" {
			return nil, sentinel
		}
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		metaCalls.Add(1)
		return stubNode(name), nil
	}

	nodes, err := NewRunner(pipelineCatalog(t), base, meta).Run(context.Background())
	require.ErrorIs(t, err, sentinel)
	assert.Nil(t, nodes)
	assert.Zero(t, metaCalls.Load())
}

func TestRunnerMetaFailureAbortsRun(t *testing.T) {
	sentinel := errors.New("empty children")

	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		return nil, sentinel
	}

	_, err := NewRunner(pipelineCatalog(t), base, meta).Run(context.Background())
	require.ErrorIs(t, err, sentinel)
	assert.ErrorContains(t, err, "ReachSafety")
}

const validationPipelineStructure = `
competition: SV-COMP
year: 2026
participants:
  verifone:
    labels: []
verifiers: [verifone]
validators:
  - checkmate-validate-violation-witnesses-2.0
categories:
  ReachSafety:
    categories: [unreach-call.ReachSafety-Loops]
    verifiers: [verifone]
    validators: [checkmate-validate-violation-witnesses-2.0]
  ValidationCrafted:
    categories: [unreach-call.ValidationCrafted-Main]
    verifiers: []
    validators: [checkmate-validate-violation-witnesses-2.0]
categories_process_order:
  - unreach-call.ReachSafety-Loops
  - unreach-call.ValidationCrafted-Main
  - ReachSafety
  - ValidationCrafted
categories_table_order:
  - ReachSafety
  - ValidationCrafted
validation_only: [ValidationCrafted]
`

func TestRunnerValidationTrackIncludesValidationOnlyCategories(t *testing.T) {
	catalog, err := category.Parse([]byte(validationPipelineStructure), "sample")
	require.NoError(t, err)

	var mu sync.Mutex
	scored := map[string]bool{}
	record := func(name string) {
		mu.Lock()
		scored[name] = true
		mu.Unlock()
	}
	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		record(name)
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		record(name)
		return stubNode(name), nil
	}

	nodes, err := NewRunner(catalog, base, meta).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.NotContains(t, scored, "ValidationCrafted")

	nodes, err = NewRunner(catalog, base, meta, ForValidationTrack()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 4)
	assert.True(t, scored["ValidationCrafted"])
	assert.True(t, scored["unreach-call.ValidationCrafted-Main"])
}

func TestRunnerReportsProgress(t *testing.T) {
	base := func(ctx context.Context, name string) (scoring.CategoryNode, error) {
		return stubNode(name), nil
	}
	meta := func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error) {
		return stubNode(name), nil
	}

	runner := NewRunner(pipelineCatalog(t), base, meta, WithWorkerCount(1))
	var mu sync.Mutex
	counts := map[EventType]int{}
	runner.OnProgress(func(event ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		counts[event.EventType]++
		assert.Equal(t, 4, event.Total)
	})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[EventCategoryStart])
	assert.Equal(t, 4, counts[EventCategoryComplete])
}
