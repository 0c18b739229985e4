package handlers

import (
	"context"

	"github.com/orels1/api.v3.cogs.red/internal/registry/hooks"
	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
	"github.com/orels1/api.v3.cogs.red/internal/registry/syncer"
	"github.com/orels1/api.v3.cogs.red/internal/registry/validate"
)

// Reconciler handles authenticated change events from the source host.
type Reconciler interface {
	HandleEvent(ctx context.Context, params hooks.Params, eventType, signature string, payload []byte) (hooks.Action, error)
}

// Pipeline drives fetch/validate/sync passes for one repository branch.
type Pipeline interface {
	Preview(ctx context.Context, owner, repo, branch string) (validate.Result, error)
	Sync(ctx context.Context, owner, repo, branch string) (syncer.Result, error)
}

// Panel performs operator actions against stored records.
type Panel interface {
	Approve(ctx context.Context, owner, repo, branch, state string) (*models.Repository, []string, error)
	SetHidden(ctx context.Context, owner, repo, branch string, hidden bool) (*models.Repository, []string, error)
	AddReport(ctx context.Context, owner, repo, branch, cog, reportType, ip, comment string) error
}
