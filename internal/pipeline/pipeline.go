// Package pipeline fans a render request out over every registered template.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stencilbot/stencilbot/internal/log"
	"github.com/stencilbot/stencilbot/internal/render"
	"github.com/stencilbot/stencilbot/internal/template"
)

// ArtifactCache resolves one (template, request) pair to an artifact id.
type ArtifactCache interface {
	GetOrRender(ctx context.Context, templateName, templatePath string, req render.Request) (string, bool)
}

// Pipeline renders a request against the full template registry snapshot
// using a bounded worker pool, collecting results in registry order.
type Pipeline struct {
	registry *template.Registry
	cache    ArtifactCache
	workers  int
	logger   *slog.Logger
}

// New creates a Pipeline with the given render concurrency.
func New(registry *template.Registry, cache ArtifactCache, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		registry: registry,
		cache:    cache,
		workers:  workers,
		logger:   log.WithComponent("pipeline"),
	}
}

// RenderAll splits text on "/" and renders it through every template in the
// current snapshot. It returns artifact identifiers for the templates that
// rendered (or were cached), in registry order. Failed templates are omitted
// silently; partial results are the best-effort gallery the caller expects.
func (p *Pipeline) RenderAll(ctx context.Context, text string) []string {
	snap := p.registry.Snapshot()
	names := snap.Names()
	req := render.NewRequest(text)

	ids := make([]string, len(names))
	oks := make([]bool, len(names))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			path, ok := snap.Path(name)
			if !ok {
				return nil
			}
			ids[i], oks[i] = p.cache.GetOrRender(ctx, name, path, req)
			return nil
		})
	}
	// Workers never return errors; failures surface as omitted results.
	_ = g.Wait()

	out := make([]string, 0, len(names))
	for i := range names {
		if oks[i] {
			out = append(out, ids[i])
		}
	}
	p.logger.Debug("request rendered", "templates", len(names), "artifacts", len(out))
	return out
}
