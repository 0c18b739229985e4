// Package hooks consumes push notifications from the source host and
// reconciles the store with them.
//
// Events are authenticated with an HMAC-SHA1 signature over the raw payload.
// A qualifying event triggers exactly one reconciliation pass: cogs whose
// manifests were removed are deleted, then the branch head is re-validated
// and re-synced in full.
package hooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/orels1/api.v3.cogs.red/internal/constants"
	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
	"github.com/orels1/api.v3.cogs.red/internal/registry/notify"
	"github.com/orels1/api.v3.cogs.red/internal/registry/syncer"
)

// ErrSignatureMismatch is returned when the event signature does not match
// the payload. The event is rejected before any processing.
var ErrSignatureMismatch = errors.New("event signature mismatch")

// Event type header values sent by the source host.
const (
	EventPing = "ping"
	EventPush = "push"
)

// Action describes what a handled event resulted in.
type Action int

// Possible reconciliation outcomes.
const (
	ActionIgnored Action = iota
	ActionRegistered
	ActionResynced
	ActionRemovedAndResynced
)

// String implements fmt.Stringer, used as a metrics label.
func (a Action) String() string {
	switch a {
	case ActionRegistered:
		return "registered"
	case ActionResynced:
		return "resynced"
	case ActionRemovedAndResynced:
		return "removed_and_resynced"
	default:
		return "ignored"
	}
}

// Params are the path parameters the event was delivered to.
type Params struct {
	Owner  string
	Repo   string
	Branch string
}

// Commit is one commit of a push event.
type Commit struct {
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
	Modified []string `json:"modified"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
}

// PushEvent is the push notification payload sent by the source host.
type PushEvent struct {
	Ref        string `json:"ref"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Commits []Commit `json:"commits"`
	Sender  struct {
		ID int64 `json:"id"`
	} `json:"sender"`
}

// Signature computes the expected signature header value for payload.
func Signature(secret, payload []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(payload)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is a valid signature for payload.
// The comparison is constant time.
func VerifySignature(secret, payload []byte, header string) bool {
	return hmac.Equal([]byte(Signature(secret, payload)), []byte(header))
}

type dSyncer interface {
	Sync(ctx context.Context, owner, repo, branch string) (syncer.Result, error)
}

type dStore interface {
	DeleteCog(ctx context.Context, path string) error
}

type dNotifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Reconciler handles change events for registered repositories.
type Reconciler struct {
	pipeline dSyncer
	store    dStore
	notifier dNotifier
	secret   []byte

	events *prometheus.CounterVec
}

// New creates a Reconciler, registering its metrics with reg.
func New(pipeline dSyncer, st dStore, notifier dNotifier, secret string, reg prometheus.Registerer) (*Reconciler, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_hook_events_total",
		Help: "Number of change events handled, by outcome.",
	}, []string{"outcome"})
	if err := reg.Register(events); err != nil {
		return nil, fmt.Errorf("failed to register hook event counter: %v", err)
	}

	return &Reconciler{
		pipeline: pipeline,
		store:    st,
		notifier: notifier,
		secret:   []byte(secret),
		events:   events,
	}, nil
}

// HandleEvent authenticates and processes one change event.
//
// A signature mismatch returns ErrSignatureMismatch and nothing is
// processed. Stale or misrouted events and events that touch no manifest
// are ignored without error. At most one removal+resync pass runs per
// event.
func (r *Reconciler) HandleEvent(ctx context.Context, params Params, eventType, signature string, payload []byte) (Action, error) {
	if !VerifySignature(r.secret, payload, signature) {
		r.events.WithLabelValues("rejected").Inc()
		return ActionIgnored, ErrSignatureMismatch
	}

	if eventType == EventPing {
		return r.register(ctx, params)
	}

	var event PushEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return ActionIgnored, fmt.Errorf("failed to decode push event: %v", err)
	}

	action, err := r.reconcile(ctx, params, event)
	if err == nil {
		r.events.WithLabelValues(action.String()).Inc()
	}
	return action, err
}

// register performs the first sync after a hook is installed and announces
// the repository. The notification is fire and forget.
func (r *Reconciler) register(ctx context.Context, params Params) (Action, error) {
	if _, err := r.pipeline.Sync(ctx, params.Owner, params.Repo, params.Branch); err != nil {
		return ActionIgnored, fmt.Errorf("initial sync failed: %v", err)
	}

	path := models.RepoPath(params.Owner, params.Repo, params.Branch)
	if err := r.notifier.Notify(ctx, notify.Message{
		Title:   "Repo connected",
		Content: path,
		Level:   notify.LevelSuccess,
	}); err != nil {
		slog.Warn("Failed to send registration notification", "repo", path, "err", err)
	}

	r.events.WithLabelValues(ActionRegistered.String()).Inc()
	return ActionRegistered, nil
}

func (r *Reconciler) reconcile(ctx context.Context, params Params, event PushEvent) (Action, error) {
	derived := Params{
		Owner:  event.Repository.Owner.Login,
		Repo:   event.Repository.Name,
		Branch: branchOfRef(event.Ref),
	}
	if derived != params {
		slog.Info("Ignoring misrouted change event", "delivered_to", params, "derived", derived)
		return ActionIgnored, nil
	}

	changed := flattenChanges(event.Commits)
	if len(manifestPaths(changed.all())) == 0 {
		slog.Debug("Change event touched no manifest", "repo", models.RepoPath(params.Owner, params.Repo, params.Branch))
		return ActionIgnored, nil
	}

	removed := removedCogNames(changed.removed)
	for _, name := range removed {
		// Keyed by the registered repository owner, regardless of who
		// authored the triggering commit.
		path := models.CogPath(params.Owner, params.Repo, name, params.Branch)
		if err := r.store.DeleteCog(ctx, path); err != nil {
			slog.Error("Failed to delete removed cog", "path", path, "err", err)
		}
	}

	if _, err := r.pipeline.Sync(ctx, params.Owner, params.Repo, params.Branch); err != nil {
		return ActionIgnored, fmt.Errorf("resync failed: %v", err)
	}

	if len(removed) > 0 {
		return ActionRemovedAndResynced, nil
	}
	return ActionResynced, nil
}

// changeSet is the union of changed paths across all commits of an event,
// concatenated in per-commit order without deduplication.
type changeSet struct {
	modified []string
	added    []string
	removed  []string
}

func (c changeSet) all() []string {
	all := make([]string, 0, len(c.modified)+len(c.added)+len(c.removed))
	all = append(all, c.modified...)
	all = append(all, c.added...)
	all = append(all, c.removed...)
	return all
}

func flattenChanges(commits []Commit) changeSet {
	var changed changeSet
	for _, commit := range commits {
		changed.modified = append(changed.modified, commit.Modified...)
		changed.added = append(changed.added, commit.Added...)
		changed.removed = append(changed.removed, commit.Removed...)
	}
	return changed
}

// manifestPaths keeps the paths whose file name is literally the manifest
// name, at any directory depth.
func manifestPaths(paths []string) []string {
	var manifests []string
	for _, p := range paths {
		if baseName(p) == constants.ManifestName {
			manifests = append(manifests, p)
		}
	}
	return manifests
}

// removedCogNames derives cog directory names from removed manifest paths.
// A removed root manifest has no directory part and is handled by the full
// resync instead.
func removedCogNames(removed []string) []string {
	var ids []string
	for _, p := range manifestPaths(removed) {
		dir, _, found := strings.Cut(p, "/")
		if !found {
			continue
		}
		ids = append(ids, dir)
	}
	return ids
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// branchOfRef extracts the branch name of a ref like "refs/heads/main".
// Branch names may themselves contain slashes.
func branchOfRef(ref string) string {
	parts := strings.SplitN(ref, "/", 3)
	if len(parts) < 3 {
		return ref
	}
	return parts[2]
}
