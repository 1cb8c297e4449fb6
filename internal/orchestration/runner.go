// Package orchestration drives the scoring pipeline over all categories
// of a competition: base categories in parallel, then the meta categories
// built from them in dependency order.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fmbench/scoretab/internal/category"
	"github.com/fmbench/scoretab/internal/scoring"
)

// BaseFunc computes the result node of one base category.
type BaseFunc func(ctx context.Context, name string) (scoring.CategoryNode, error)

// MetaFunc combines already-computed children into a meta category node.
// Children arrive in catalog order.
type MetaFunc func(ctx context.Context, name string, children []scoring.CategoryNode) (scoring.CategoryNode, error)

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

const (
	EventCategoryStart    EventType = "category_start"
	EventCategoryComplete EventType = "category_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType  EventType
	Category   string
	Index      int
	Total      int
	DurationMs int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkerCount bounds how many base categories are scored in parallel.
func WithWorkerCount(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// ForValidationTrack scores the validation track, which includes the
// validation-only categories the verification track skips.
func ForValidationTrack() Option {
	return func(r *Runner) {
		r.validation = true
	}
}

const defaultWorkers = 4

// Runner scores every category of a competition. Base categories are
// independent and run concurrently; meta categories run afterwards, one
// at a time, in the catalog's process order so that nested meta
// categories see their children.
type Runner struct {
	catalog    *category.Catalog
	base       BaseFunc
	meta       MetaFunc
	workers    int
	validation bool

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// NewRunner creates a runner over the catalog's categories.
func NewRunner(catalog *category.Catalog, base BaseFunc, meta MetaFunc, opts ...Option) *Runner {
	r := &Runner{
		catalog: catalog,
		base:    base,
		meta:    meta,
		workers: defaultWorkers,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnProgress registers a progress listener
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Run scores all categories and returns them by name. The first failing
// category aborts the run; no partial score tables are produced.
func (r *Runner) Run(ctx context.Context) (map[string]scoring.CategoryNode, error) {
	baseNames := r.baseNames()
	total := len(r.processOrder())

	nodes := make(map[string]scoring.CategoryNode, total)
	var nodesMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, name := range baseNames {
		g.Go(func() error {
			r.notifyProgress(ProgressEvent{
				EventType: EventCategoryStart,
				Category:  name,
				Index:     i + 1,
				Total:     total,
			})
			start := time.Now()

			node, err := r.base(gctx, name)
			if err != nil {
				return fmt.Errorf("scoring category %s: %w", name, err)
			}

			nodesMu.Lock()
			nodes[name] = node
			nodesMu.Unlock()
			r.notifyProgress(ProgressEvent{
				EventType:  EventCategoryComplete,
				Category:   name,
				Index:      i + 1,
				Total:      total,
				DurationMs: time.Since(start).Milliseconds(),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := len(baseNames)
	for _, name := range r.processOrder() {
		if !r.catalog.IsMeta(name) {
			continue
		}
		index++
		r.notifyProgress(ProgressEvent{
			EventType: EventCategoryStart,
			Category:  name,
			Index:     index,
			Total:     total,
		})
		start := time.Now()

		children, err := r.childNodes(name, nodes)
		if err != nil {
			return nil, err
		}
		node, err := r.meta(ctx, name, children)
		if err != nil {
			return nil, fmt.Errorf("combining meta category %s: %w", name, err)
		}
		nodes[name] = node

		r.notifyProgress(ProgressEvent{
			EventType:  EventCategoryComplete,
			Category:   name,
			Index:      index,
			Total:      total,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}

	slog.Info("Scored all categories", "categories", len(nodes))
	return nodes, nil
}

func (r *Runner) baseNames() []string {
	if r.validation {
		return r.catalog.ValidationBaseCategories()
	}
	return r.catalog.BaseCategories()
}

func (r *Runner) processOrder() []string {
	if r.validation {
		return r.catalog.ValidationProcessOrder()
	}
	return r.catalog.ProcessOrder()
}

// childNodes resolves a meta category's children. A child must have been
// scored already, which the catalog's process order guarantees for
// well-formed structure definitions.
func (r *Runner) childNodes(meta string, nodes map[string]scoring.CategoryNode) ([]scoring.CategoryNode, error) {
	names := r.catalog.MetaChildren(meta)
	if r.validation {
		names = r.catalog.ValidationMetaChildren(meta)
	}
	children := make([]scoring.CategoryNode, 0, len(names))
	for _, child := range names {
		node, ok := nodes[child]
		if !ok {
			return nil, fmt.Errorf("meta category %s needs %s, which was not scored", meta, child)
		}
		children = append(children, node)
	}
	return children, nil
}
