// Package panel implements operator actions on registered records: approval,
// visibility and abuse reports.
//
// Approval and visibility changes propagate to the denormalized copies the
// cogs of the repository carry. This propagation is explicit and separate
// from ingestion; sync passes preserve whatever the operators set last.
package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
)

// ReportTypes are the accepted abuse report categories.
var ReportTypes = []string{"api_abuse", "malware", "license"}

var (
	// ErrUnknownReportType is returned for a report type outside ReportTypes.
	ErrUnknownReportType = errors.New("unknown report type")

	// ErrAlreadyReported is returned when the same address already has a
	// live report against the cog.
	ErrAlreadyReported = errors.New("cog already reported from this address")
)

type dStore interface {
	GetRepository(ctx context.Context, path string) (*models.Repository, error)
	PutRepository(ctx context.Context, repo *models.Repository) error
	GetCog(ctx context.Context, path string) (*models.Cog, error)
	PutCog(ctx context.Context, cog *models.Cog) error
	CogsByPrefix(ctx context.Context, owner, prefix string) ([]models.Cog, error)
}

// Service performs operator actions against the record store.
type Service struct {
	store dStore
	now   func() time.Time
}

type options struct {
	now func() time.Time
}

// Option overrides Service default values.
type Option func(*options)

// New creates a panel service over the given store.
func New(st dStore, args ...Option) *Service {
	opts := options{now: time.Now}
	for _, arg := range args {
		arg(&opts)
	}
	return &Service{store: st, now: opts.now}
}

// Approve sets the approval state of a repository branch and propagates it
// to the denormalized copy on each of its cogs. Returns the updated
// repository and the paths of the cogs touched.
func (s *Service) Approve(ctx context.Context, owner, repo, branch, state string) (*models.Repository, []string, error) {
	return s.updateRepo(ctx, owner, repo, branch,
		func(r *models.Repository) { r.Type = state },
		func(c *models.Cog) {
			c.RepoType = state
			c.Repo.Type = state
		})
}

// SetHidden sets the visibility flag of a repository branch and all of its
// cogs.
func (s *Service) SetHidden(ctx context.Context, owner, repo, branch string, hidden bool) (*models.Repository, []string, error) {
	return s.updateRepo(ctx, owner, repo, branch,
		func(r *models.Repository) { r.Hidden = hidden },
		func(c *models.Cog) { c.Hidden = hidden })
}

func (s *Service) updateRepo(ctx context.Context, owner, repo, branch string, applyRepo func(*models.Repository), applyCog func(*models.Cog)) (*models.Repository, []string, error) {
	path := models.RepoPath(owner, repo, branch)
	record, err := s.store.GetRepository(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load repository %q: %w", path, err)
	}

	applyRepo(record)
	if err := s.store.PutRepository(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("failed to update repository %q: %v", path, err)
	}

	cogs, err := s.store.CogsByPrefix(ctx, owner, fmt.Sprintf("%s/%s/", owner, repo))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list cogs of %q: %v", path, err)
	}

	var touched []string
	for i := range cogs {
		if cogs[i].BranchName != branch {
			continue
		}
		applyCog(&cogs[i])
		if err := s.store.PutCog(ctx, &cogs[i]); err != nil {
			return nil, nil, fmt.Errorf("failed to update cog %q: %v", cogs[i].Path, err)
		}
		touched = append(touched, cogs[i].Path)
	}
	return record, touched, nil
}

// AddReport appends an abuse report to a cog. A given address may have only
// one live (non-stale) report per cog.
func (s *Service) AddReport(ctx context.Context, owner, repo, branch, cog, reportType, ip, comment string) error {
	if !validReportType(reportType) {
		return ErrUnknownReportType
	}

	path := models.CogPath(owner, repo, cog, branch)
	record, err := s.store.GetCog(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load cog %q: %w", path, err)
	}

	for _, report := range record.Reports {
		if report.IP == ip && !report.Stale {
			return ErrAlreadyReported
		}
	}

	record.Reports = append(record.Reports, models.Report{
		Type:    reportType,
		IP:      ip,
		Comment: comment,
		Created: s.now(),
	})
	if err := s.store.PutCog(ctx, record); err != nil {
		return fmt.Errorf("failed to save report for %q: %v", path, err)
	}
	return nil
}

func validReportType(reportType string) bool {
	for _, t := range ReportTypes {
		if t == reportType {
			return true
		}
	}
	return false
}
