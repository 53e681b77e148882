package superproject

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/user/submodsync/internal/gitrepo"
	"github.com/user/submodsync/internal/storage"
	"github.com/user/submodsync/pkg/logger"
)

// Workspace is a superproject working tree for one branch.
type Workspace interface {
	Setup(ctx context.Context) error
	Submodules() ([]gitrepo.Submodule, error)
	CurrentHashes(paths []string) (map[string]string, error)
	CommitGitlinks(ctx context.Context, updates []gitrepo.GitlinkUpdate, message string) error
	Push(ctx context.Context) error
}

// BranchLookup reads the head of an upstream branch.
type BranchLookup interface {
	BranchHead(ctx context.Context, repo, branch string) (string, bool, error)
}

// MirrorMarker flags upstream repositories whose local mirror needs a fetch.
type MirrorMarker interface {
	MarkDirty(ctx context.Context, repo, url string) error
}

// Mode is the way a pass derives its updates.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Branch is a superproject branch and the submodule branch it tracks.
type Branch struct {
	Name            string
	SubmoduleBranch string
	Queue           string
}

// Options configure an Engine.
type Options struct {
	SuperRepo  string // owner/name, used to resolve relative submodule URLs
	Push       bool
	Attempts   int
	RetryDelay time.Duration
}

// Result summarises a successful pass.
type Result struct {
	Mode      Mode
	Commits   int
	Updated   []string
	Conflicts int
}

// Engine reconciles superproject branches with upstream activity. An Engine
// serves a single run; it is not safe for concurrent use.
type Engine struct {
	ledger *storage.EventLedger
	source storage.EventSource
	lookup BranchLookup
	mirror MirrorMarker
	opts   Options

	warnedNoPush bool
}

// NewEngine creates an engine. mirror may be nil.
func NewEngine(ledger *storage.EventLedger, source storage.EventSource, lookup BranchLookup, mirror MirrorMarker, opts Options) *Engine {
	return &Engine{
		ledger: ledger,
		source: source,
		lookup: lookup,
		mirror: mirror,
		opts:   opts,
	}
}

// Sync brings branch up to date in ws. It rescans every submodule when full
// is set or the branch's queue may have missed events, and replays queued
// events otherwise. The queue only advances past pushed work.
func (e *Engine) Sync(ctx context.Context, branch Branch, ws Workspace, full bool) (Result, error) {
	log := logger.WithStr("branch", branch.Name)

	queue, err := e.ledger.OpenQueue(ctx, branch.Queue, storage.EventKindPush)
	if err != nil {
		return Result{}, err
	}

	res := Result{Mode: ModeIncremental}
	if full || !queue.ContinuedFromLastRun() {
		res.Mode = ModeFull
	}
	log.Info().
		Str("mode", string(res.Mode)).
		Int64("position", queue.Position()).
		Int64("end", queue.End()).
		Msg("Syncing submodules")

	err = retry(ctx, e.opts.Attempts, e.opts.RetryDelay, func(attempt int) error {
		if attempt > 1 {
			log.Warn().Int("attempt", attempt).Msg("Retrying after rejected push")
		}
		if err := ws.Setup(ctx); err != nil {
			return err
		}
		submodules, err := e.loadSubmodules(ws)
		if err != nil {
			return err
		}
		if res.Mode == ModeFull {
			return e.fullRescan(ctx, log, branch, ws, queue, submodules, &res)
		}
		return e.incremental(ctx, log, branch, ws, queue, submodules, &res)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("mode", string(res.Mode)).
			Int64("position", queue.Position()).
			Msg("Sync failed")
		return res, err
	}

	if err := queue.MarkAllRead(ctx); err != nil {
		return res, err
	}
	log.Info().
		Int("commits", res.Commits).
		Strs("updated", res.Updated).
		Int64("position", queue.Position()).
		Msg("Sync finished")
	return res, nil
}

func (e *Engine) loadSubmodules(ws Workspace) ([]*Submodule, error) {
	listed, err := ws.Submodules()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(listed))
	for _, m := range listed {
		paths = append(paths, m.Path)
	}
	hashes, err := ws.CurrentHashes(paths)
	if err != nil {
		return nil, err
	}

	submodules := make([]*Submodule, 0, len(listed))
	for _, m := range listed {
		submodules = append(submodules, &Submodule{
			Name:     m.Name,
			Path:     m.Path,
			Upstream: gitrepo.ResolveUpstream(m.URL, e.opts.SuperRepo),
			Current:  hashes[m.Path],
		})
	}
	return submodules, nil
}

// fullRescan derives updates from the upstream branch tips, then replays
// the events that arrived while the tips were being read.
func (e *Engine) fullRescan(ctx context.Context, log zerolog.Logger, branch Branch, ws Workspace,
	queue *storage.Queue, submodules []*Submodule, res *Result) error {
	for _, s := range submodules {
		if s.Upstream == "" {
			log.Debug().Str("submodule", s.Name).Msg("No upstream repository, skipping")
			continue
		}
		tip, found, err := e.lookup.BranchHead(ctx, s.Upstream, branch.SubmoduleBranch)
		if err != nil {
			return fmt.Errorf("branch tip of %s: %w", s.Upstream, err)
		}
		if !found {
			log.Debug().Str("submodule", s.Name).Str("repo", s.Upstream).Msg("No matching upstream branch")
			continue
		}
		if tip != s.Current {
			s.Pending = &Pending{Hash: tip, Origin: OriginBranchTip}
		}
	}

	endBefore := queue.End()
	if err := queue.DownloadMoreEvents(ctx, e.source); err != nil {
		return err
	}
	events, err := queue.EventsBetween(ctx, endBefore, queue.End(), branch.SubmoduleBranch)
	if err != nil {
		return err
	}
	byRepo := indexByUpstream(submodules)
	for _, ev := range events {
		if s := byRepo[ev.Repo]; s != nil {
			s.Apply(ev)
		}
	}
	res.Conflicts += reportConflicts(log, submodules)

	var updated []*Submodule
	for _, s := range submodules {
		if s.Pending != nil {
			updated = append(updated, s)
		}
	}
	if len(updated) == 0 {
		log.Info().Msg("Superproject is up to date")
		return nil
	}

	if err := e.commitAndPush(ctx, log, branch, ws, updated); err != nil {
		return err
	}
	for _, s := range updated {
		res.Updated = append(res.Updated, s.Name)
		s.Commit()
	}
	res.Commits++
	return nil
}

// incremental replays queued push events one at a time, committing and
// pushing each accepted event before moving the queue past it.
func (e *Engine) incremental(ctx context.Context, log zerolog.Logger, branch Branch, ws Workspace,
	queue *storage.Queue, submodules []*Submodule, res *Result) error {
	events, err := queue.Events(ctx, branch.SubmoduleBranch)
	if err != nil {
		return err
	}

	byRepo := indexByUpstream(submodules)
	for _, ev := range events {
		s := byRepo[ev.Repo]
		if s == nil || s.Apply(ev) != Accepted {
			continue
		}
		if err := e.commitAndPush(ctx, log, branch, ws, []*Submodule{s}); err != nil {
			s.Pending = nil
			return fmt.Errorf("apply event %d to %s: %w", ev.SourceID, s.Name, err)
		}
		s.Commit()
		res.Commits++
		res.Updated = append(res.Updated, s.Name)
		if err := queue.MarkReadUpTo(ctx, ev.SourceID); err != nil {
			return err
		}
	}

	res.Conflicts += reportConflicts(log, submodules)
	return nil
}

func (e *Engine) commitAndPush(ctx context.Context, log zerolog.Logger, branch Branch, ws Workspace, submodules []*Submodule) error {
	updates := make([]gitrepo.GitlinkUpdate, 0, len(submodules))
	names := make([]string, 0, len(submodules))
	for _, s := range submodules {
		updates = append(updates, gitrepo.GitlinkUpdate{Path: s.Path, Hash: s.Pending.Hash})
		names = append(names, s.Name)
	}

	message := commitMessage(names, branch.SubmoduleBranch)
	log.Info().Str("message", message).Msg("Committing gitlinks")
	if err := ws.CommitGitlinks(ctx, updates, message); err != nil {
		return err
	}

	if e.opts.Push {
		if err := ws.Push(ctx); err != nil {
			return err
		}
	} else if !e.warnedNoPush {
		e.warnedNoPush = true
		log.Warn().Msg("Processed, not configured to push to repo")
	}

	e.markMirrors(ctx, log, submodules)
	return nil
}

func (e *Engine) markMirrors(ctx context.Context, log zerolog.Logger, submodules []*Submodule) {
	if e.mirror == nil {
		return
	}
	for _, s := range submodules {
		if s.Upstream == "" {
			continue
		}
		url := fmt.Sprintf("https://github.com/%s.git", s.Upstream)
		if err := e.mirror.MarkDirty(ctx, s.Upstream, url); err != nil {
			log.Error().Err(err).Str("submodule", s.Name).Msg("Failed to flag mirror")
		}
	}
}

func indexByUpstream(submodules []*Submodule) map[string]*Submodule {
	byRepo := make(map[string]*Submodule, len(submodules))
	for _, s := range submodules {
		if s.Upstream != "" {
			byRepo[s.Upstream] = s
		}
	}
	return byRepo
}

// reportConflicts logs one warning per submodule with ignored events and
// returns the total.
func reportConflicts(log zerolog.Logger, submodules []*Submodule) int {
	sorted := append([]*Submodule(nil), submodules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	total := 0
	for _, s := range sorted {
		if len(s.Conflicts) == 0 {
			continue
		}
		total += len(s.Conflicts)
		log.Warn().
			Str("submodule", s.Name).
			Int("ignored", len(s.Conflicts)).
			Int64("first_event", s.Conflicts[0]).
			Msg("Ignored events that do not apply to the recorded hash")
	}
	return total
}
