// Package models defines the persisted records of the cog registry and the
// merge policy applied when records are re-synced.
package models

import (
	"fmt"
	"time"

	"github.com/orels1/api.v3.cogs.red/internal/constants"
)

// Author identifies who wrote a repository or cog. Name comes from the
// manifest, Username from the hosting account the repository lives under.
type Author struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Links holds the hypermedia links attached to a record.
type Links struct {
	Self string `json:"self"`
}

// RepoRef is the denormalized slice of the parent repository carried on
// every cog.
type RepoRef struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Branch        string `json:"branch"`
	DefaultBranch bool   `json:"defaultBranch"`
}

// Report is a single abuse report filed against a cog. The list on a cog is
// append-only; staff mark entries stale instead of removing them.
type Report struct {
	Type    string    `json:"type"`
	IP      string    `json:"ip"`
	Comment string    `json:"comment"`
	Stale   bool      `json:"stale"`
	Created time.Time `json:"created"`
}

// Repository is a registered repository branch.
//
// Type (approval state) and Hidden are operator-owned: ingestion sets them
// only on first insert and preserves them afterwards.
type Repository struct {
	Path          string     `json:"path"`
	Name          string     `json:"name"`
	Author        Author     `json:"author"`
	AuthorName    string     `json:"authorName"`
	Short         string     `json:"short"`
	Description   string     `json:"description"`
	Tags          []string   `json:"tags"`
	Readme        *string    `json:"readme"`
	Type          string     `json:"type"`
	SchemaVersion string     `json:"version"`
	Branch        string     `json:"branch"`
	DefaultBranch bool       `json:"defaultBranch"`
	Hidden        bool       `json:"hidden"`
	Created       time.Time  `json:"created"`
	Updated       *time.Time `json:"updated"`
	Links         Links      `json:"links"`
}

// Cog is a sub-package of a registered repository.
//
// Hidden, Reports and QANotified are operator-owned and survive re-syncs.
// Repo and RepoType mirror the parent repository and are rewritten on every
// sync pass and on explicit approval propagation.
type Cog struct {
	Path          string            `json:"path"`
	Name          string            `json:"name"`
	Author        Author            `json:"author"`
	AuthorName    string            `json:"authorName"`
	RepoName      string            `json:"repoName"`
	BranchName    string            `json:"branchName"`
	Short         string            `json:"short"`
	Description   string            `json:"description"`
	Tags          []string          `json:"tags"`
	Hidden        bool              `json:"hidden"`
	Repo          RepoRef           `json:"repo"`
	RepoType      string            `json:"repoType"`
	BotVersion    []int             `json:"botVersion"`
	PythonVersion []int             `json:"pythonVersion"`
	RequiredCogs  map[string]string `json:"requiredCogs"`
	Reports       []Report          `json:"reports"`
	QANotified    bool              `json:"qaNotified"`
	Created       time.Time         `json:"created"`
	Updated       *time.Time        `json:"updated"`
	Links         Links             `json:"links"`
}

// RepoPath builds the composite path key of a repository branch.
func RepoPath(owner, repo, branch string) string {
	return fmt.Sprintf("%s/%s/%s", owner, repo, branch)
}

// CogPath builds the composite path key of a cog. The same ordering is used
// for upserts and for deletions driven by change events.
func CogPath(owner, repo, name, branch string) string {
	return fmt.Sprintf("%s/%s/%s/%s", owner, repo, name, branch)
}

// stamps are the bookkeeping fields shared by repositories and cogs that the
// sync pipeline must not clobber on re-sync.
type stamps struct {
	created time.Time
	updated *time.Time
	hidden  bool
}

// resolveStamps implements the preserve-on-upsert policy: a first insert
// gets created=now and no update timestamp, a re-sync keeps the original
// creation time and visibility and records the update time.
func resolveStamps(prev *stamps, now time.Time) stamps {
	if prev == nil {
		return stamps{created: now}
	}
	updated := now
	return stamps{
		created: prev.created,
		updated: &updated,
		hidden:  prev.hidden,
	}
}

// MergeRepository applies the preserve-on-upsert policy to next, taking the
// operator-owned fields from prev. prev is nil on first insert.
func MergeRepository(prev, next *Repository, now time.Time) {
	var prevStamps *stamps
	next.Type = constants.Unapproved
	if prev != nil {
		prevStamps = &stamps{created: prev.Created, updated: prev.Updated, hidden: prev.Hidden}
		next.Type = prev.Type
	}

	s := resolveStamps(prevStamps, now)
	next.Created = s.created
	next.Updated = s.updated
	next.Hidden = s.hidden
}

// MergeCog applies the preserve-on-upsert policy to next, taking the
// operator-owned fields from prev. prev is nil on first insert.
func MergeCog(prev, next *Cog, now time.Time) {
	var prevStamps *stamps
	next.Reports = []Report{}
	next.QANotified = false
	if prev != nil {
		prevStamps = &stamps{created: prev.Created, updated: prev.Updated, hidden: prev.Hidden}
		next.Reports = prev.Reports
		next.QANotified = prev.QANotified
	}

	s := resolveStamps(prevStamps, now)
	next.Created = s.created
	next.Updated = s.updated
	next.Hidden = s.hidden
}
