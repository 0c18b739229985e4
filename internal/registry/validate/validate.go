// Package validate walks a fetched repository snapshot, checks its manifests
// and classifies cog candidates as valid, broken or missing.
//
// Validation is pure: it never touches the store, and for identical
// snapshots it produces identical results, diagnostics in traversal order.
package validate

import (
	"strings"

	"github.com/orels1/api.v3.cogs.red/internal/constants"
	"github.com/orels1/api.v3.cogs.red/internal/registry/github"
	"github.com/orels1/api.v3.cogs.red/internal/registry/manifest"
	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
)

// Diagnostic levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Diagnostic is a single validation finding, returned to manual validation
// callers and logged during event-driven syncs.
type Diagnostic struct {
	Message string `json:"message"`
	Path    string `json:"path"`
	Details string `json:"details"`
	Level   string `json:"level"`
}

// Cogs partitions cog candidates after one validation pass.
type Cogs struct {
	Valid   []models.Cog `json:"valid"`
	Broken  []string     `json:"broken"`
	Missing []string     `json:"missing"`
}

// Result is the classified outcome of validating one snapshot. Repo is nil
// when the root manifest was absent or malformed; descriptive fields only,
// the sync engine resolves bookkeeping fields against the store.
type Result struct {
	Repo          *models.Repository  `json:"repo,omitempty"`
	Cogs          Cogs                `json:"cogs"`
	DefaultBranch string              `json:"defaultBranch"`
	Generation    manifest.Generation `json:"-"`
	Diagnostics   []Diagnostic        `json:"-"`
}

type dNameChecker interface {
	Valid(name string) bool
}

// Validator validates repository snapshots.
type Validator struct {
	names dNameChecker
}

// New creates a Validator using the given name checker.
func New(names dNameChecker) *Validator {
	return &Validator{names: names}
}

// Validate classifies the snapshot of owner/repo.
//
// The schema generation is decided once from the root manifest and applied
// to every cog manifest of the pass. When the root manifest cannot be
// parsed, no repository record is produced but cogs are still validated,
// against generation 2 (the historical fallback).
func (v *Validator) Validate(snap github.Snapshot, owner, repo string) Result {
	result := Result{
		Cogs: Cogs{
			Valid:   []models.Cog{},
			Broken:  []string{},
			Missing: []string{},
		},
		DefaultBranch: snap.DefaultBranch,
		Generation:    manifest.V2,
	}

	if len(snap.Entries) == 0 {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Message: "Repository is empty",
			Level:   LevelError,
		})
	}

	rootManifest, found := findFile(snap.Entries, constants.ManifestName)
	if !found {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Message: "File is missing",
			Path:    "/" + constants.ManifestName,
			Level:   LevelError,
		})
	} else {
		v.validateRepo(&result, []byte(rootManifest), snap, owner, repo)
	}

	v.validateCogs(&result, snap, owner)
	return result
}

func (v *Validator) validateRepo(result *Result, raw []byte, snap github.Snapshot, owner, repo string) {
	gen, err := manifest.Detect(raw)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Message: "Malformed file",
			Path:    "/" + constants.ManifestName,
			Details: err.Error(),
			Level:   LevelError,
		})
		return
	}
	result.Generation = gen

	fields, err := manifest.MapRepo(gen, raw)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Message: "Malformed file",
			Path:    "/" + constants.ManifestName,
			Details: err.Error(),
			Level:   LevelError,
		})
		return
	}

	if gen == manifest.V3 {
		if err := manifest.CheckV3(raw); err != nil {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Message: "Manifest does not match the schema",
				Path:    "/" + constants.ManifestName,
				Details: err.Error(),
				Level:   LevelWarning,
			})
		}
	}

	result.Repo = &models.Repository{
		Name:          repo,
		Author:        models.Author{Name: fields.Author.Name, Username: owner},
		AuthorName:    owner,
		Short:         fields.Short,
		Description:   fields.Description,
		Tags:          fields.Tags,
		Readme:        findReadme(snap.Entries),
		SchemaVersion: gen.String(),
	}
}

func (v *Validator) validateCogs(result *Result, snap github.Snapshot, owner string) {
	candidates := 0
	for _, entry := range snap.Entries {
		if entry.IsDir() {
			candidates++
		}
	}
	if candidates == 0 {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Message: "No cogs were found",
			Path:    "/",
			Details: "Repo can still be added for future use",
			Level:   LevelWarning,
		})
		return
	}

	for _, entry := range snap.Entries {
		if !entry.IsDir() {
			continue
		}
		// Candidates with invalid names are dropped silently: they land in
		// none of the three buckets.
		if !v.names.Valid(entry.Name) {
			continue
		}

		raw, found := findFile(entry.Entries, constants.ManifestName)
		if !found {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Message: "Cog is missing an " + constants.ManifestName,
				Path:    "/" + entry.Name,
				Details: "This cog will not be added to the registry",
				Level:   LevelWarning,
			})
			result.Cogs.Missing = append(result.Cogs.Missing, entry.Name)
			continue
		}

		fields, err := manifest.MapCog(result.Generation, []byte(raw))
		if err != nil {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Message: "Malformed file",
				Path:    "/" + entry.Name + "/" + constants.ManifestName,
				Details: err.Error(),
				Level:   LevelError,
			})
			result.Cogs.Broken = append(result.Cogs.Broken, entry.Name)
			continue
		}

		result.Cogs.Valid = append(result.Cogs.Valid, models.Cog{
			Name:          entry.Name,
			Author:        models.Author{Name: fields.Author.Name, Username: owner},
			AuthorName:    owner,
			Short:         fields.Short,
			Description:   fields.Description,
			Tags:          fields.Tags,
			BotVersion:    fields.BotVersion,
			PythonVersion: fields.PythonVersion,
			RequiredCogs:  fields.RequiredCogs,
		})
	}
}

func findFile(entries []github.Entry, name string) (string, bool) {
	for _, entry := range entries {
		if !entry.IsDir() && entry.Name == name {
			return entry.Text, true
		}
	}
	return "", false
}

func findReadme(entries []github.Entry) *string {
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name, "readme.md") {
			text := entry.Text
			return &text
		}
	}
	return nil
}
