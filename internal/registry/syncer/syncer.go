// Package syncer merges classified validation results into the record store.
//
// One pass upserts the repository record first, then every valid cog
// concurrently. The repository upsert is a hard dependency: cogs denormalize
// the repository's resolved approval state, so a repository failure aborts
// the pass before any cog is written.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
	"github.com/orels1/api.v3.cogs.red/internal/registry/store"
	"github.com/orels1/api.v3.cogs.red/internal/registry/validate"
)

type dStore interface {
	GetRepository(ctx context.Context, path string) (*models.Repository, error)
	PutRepository(ctx context.Context, repo *models.Repository) error
	GetCog(ctx context.Context, path string) (*models.Cog, error)
	PutCog(ctx context.Context, cog *models.Cog) error
}

// CogOutcome reports the fate of one cog upsert. Err is nil on success.
type CogOutcome struct {
	Name string
	Cog  *models.Cog
	Err  error
}

// Result is the outcome of one sync pass.
type Result struct {
	Repository *models.Repository
	Cogs       []CogOutcome
}

// Failed returns the names of cogs whose upsert failed.
func (r Result) Failed() []string {
	var failed []string
	for _, outcome := range r.Cogs {
		if outcome.Err != nil {
			failed = append(failed, outcome.Name)
		}
	}
	return failed
}

// Engine performs idempotent create-or-update of repository and cog records.
type Engine struct {
	store dStore
	now   func() time.Time

	cogUpserts *prometheus.CounterVec
}

type options struct {
	now func() time.Time
}

// Option overrides Engine default values.
type Option func(*options)

// New creates a sync engine over the given store, registering its metrics
// with reg.
func New(st dStore, reg prometheus.Registerer, args ...Option) (*Engine, error) {
	opts := options{now: time.Now}
	for _, arg := range args {
		arg(&opts)
	}

	cogUpserts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_cog_upserts_total",
		Help: "Number of cog upserts performed by sync passes, by outcome.",
	}, []string{"outcome"})
	if err := reg.Register(cogUpserts); err != nil {
		return nil, fmt.Errorf("failed to register cog upsert counter: %v", err)
	}

	return &Engine{
		store:      st,
		now:        opts.now,
		cogUpserts: cogUpserts,
	}, nil
}

// Sync persists the classified result for owner/repo at branch.
//
// Running Sync twice with identical input leaves all operator-owned fields
// and creation timestamps untouched; only the update timestamps advance.
// A repository upsert failure is returned as the pass error; individual cog
// failures are captured per cog in the result and never abort the others.
func (e *Engine) Sync(ctx context.Context, owner, repo, branch string, result validate.Result) (Result, error) {
	if result.Repo == nil {
		return Result{}, fmt.Errorf("no repository record for %s: validation did not produce one", models.RepoPath(owner, repo, branch))
	}

	saved, err := e.syncRepository(ctx, owner, repo, branch, result)
	if err != nil {
		return Result{}, err
	}

	outcomes := make([]CogOutcome, len(result.Cogs.Valid))
	var wg sync.WaitGroup
	for i, cog := range result.Cogs.Valid {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = e.syncCog(ctx, owner, repo, branch, cog, saved, result.DefaultBranch)
		}()
	}
	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			e.cogUpserts.WithLabelValues("failure").Inc()
			slog.Error("Cog upsert failed", "cog", outcome.Name, "repo", saved.Path, "err", outcome.Err)
			continue
		}
		e.cogUpserts.WithLabelValues("success").Inc()
	}

	return Result{Repository: saved, Cogs: outcomes}, nil
}

func (e *Engine) syncRepository(ctx context.Context, owner, repo, branch string, result validate.Result) (*models.Repository, error) {
	path := models.RepoPath(owner, repo, branch)

	prev, err := e.store.GetRepository(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up repository %q: %v", path, err)
	}

	next := *result.Repo
	next.Path = path
	next.Branch = branch
	next.DefaultBranch = result.DefaultBranch == branch
	next.Links = models.Links{Self: "/" + path}
	models.MergeRepository(prev, &next, e.now())

	if err := e.store.PutRepository(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to save repository %q: %v", path, err)
	}
	slog.Debug("Repository saved", "path", path, "version", next.SchemaVersion)
	return &next, nil
}

func (e *Engine) syncCog(ctx context.Context, owner, repo, branch string, cog models.Cog, parent *models.Repository, defaultBranch string) CogOutcome {
	path := models.CogPath(owner, repo, cog.Name, branch)

	prev, err := e.store.GetCog(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CogOutcome{Name: cog.Name, Err: fmt.Errorf("failed to look up cog %q: %v", path, err)}
	}

	next := cog
	next.Path = path
	next.RepoName = repo
	next.BranchName = branch
	next.RepoType = parent.Type
	next.Repo = models.RepoRef{
		Name:          repo,
		Type:          parent.Type,
		Branch:        branch,
		DefaultBranch: defaultBranch == branch,
	}
	next.Links = models.Links{Self: "/" + path}
	models.MergeCog(prev, &next, e.now())

	if err := e.store.PutCog(ctx, &next); err != nil {
		return CogOutcome{Name: cog.Name, Err: fmt.Errorf("failed to save cog %q: %v", path, err)}
	}
	return CogOutcome{Name: cog.Name, Cog: &next}
}
