// Package pipeline composes fetching, validation and persistence into the
// two entry points the service exposes: a read-only preview and a full sync.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orels1/api.v3.cogs.red/internal/registry/github"
	"github.com/orels1/api.v3.cogs.red/internal/registry/syncer"
	"github.com/orels1/api.v3.cogs.red/internal/registry/validate"
)

type dFetcher interface {
	Tree(ctx context.Context, owner, repo, branch string) (github.Snapshot, error)
}

type dValidator interface {
	Validate(snap github.Snapshot, owner, repo string) validate.Result
}

type dEngine interface {
	Sync(ctx context.Context, owner, repo, branch string, result validate.Result) (syncer.Result, error)
}

// Pipeline drives one repository branch through fetch, validate and sync.
//
// Callers must not run two passes for the same composite key concurrently;
// the store offers atomic per-record operations but no cross-pass locking.
type Pipeline struct {
	fetcher   dFetcher
	validator dValidator
	engine    dEngine
}

// New creates a Pipeline from its three stages.
func New(fetcher dFetcher, validator dValidator, engine dEngine) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		validator: validator,
		engine:    engine,
	}
}

// Preview fetches and validates owner/repo at branch without touching the
// store. Used before registration to show diagnostics to the caller.
func (p *Pipeline) Preview(ctx context.Context, owner, repo, branch string) (validate.Result, error) {
	snap, err := p.fetcher.Tree(ctx, owner, repo, branch)
	if err != nil {
		return validate.Result{}, fmt.Errorf("fetch failed: %w", err)
	}
	return p.validator.Validate(snap, owner, repo), nil
}

// Sync fetches, validates and persists owner/repo at branch. A fetch
// failure aborts the pass before validation. Validation diagnostics are
// logged; persistence errors surface through the returned result and error.
func (p *Pipeline) Sync(ctx context.Context, owner, repo, branch string) (syncer.Result, error) {
	snap, err := p.fetcher.Tree(ctx, owner, repo, branch)
	if err != nil {
		return syncer.Result{}, fmt.Errorf("fetch failed: %w", err)
	}

	result := p.validator.Validate(snap, owner, repo)
	for _, diag := range result.Diagnostics {
		slog.Info("Validation diagnostic",
			"repo", owner+"/"+repo, "branch", branch,
			"level", diag.Level, "message", diag.Message, "path", diag.Path)
	}

	return p.engine.Sync(ctx, owner, repo, branch, result)
}
