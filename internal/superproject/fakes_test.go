package superproject

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/user/submodsync/internal/github"
	"github.com/user/submodsync/internal/gitrepo"
	"github.com/user/submodsync/internal/storage"
)

type fakeCommit struct {
	updates []gitrepo.GitlinkUpdate
	message string
}

// fakeWorkspace keeps a remote and a local gitlink map. Setup resets local
// to remote; Push publishes local unless an error is queued.
type fakeWorkspace struct {
	submodules []gitrepo.Submodule
	remote     map[string]string
	local      map[string]string

	setupCalls int
	commits    []fakeCommit
	pushes     int
	pushErrs   []error
	hashErr    error
}

func newFakeWorkspace(hashes map[string]string, submodules ...gitrepo.Submodule) *fakeWorkspace {
	return &fakeWorkspace{submodules: submodules, remote: hashes}
}

func (w *fakeWorkspace) Setup(context.Context) error {
	w.setupCalls++
	w.local = make(map[string]string, len(w.remote))
	for k, v := range w.remote {
		w.local[k] = v
	}
	return nil
}

func (w *fakeWorkspace) Submodules() ([]gitrepo.Submodule, error) {
	return w.submodules, nil
}

func (w *fakeWorkspace) CurrentHashes(paths []string) (map[string]string, error) {
	if w.hashErr != nil {
		return nil, w.hashErr
	}
	hashes := make(map[string]string, len(paths))
	for _, p := range paths {
		hashes[p] = w.local[p]
	}
	return hashes, nil
}

func (w *fakeWorkspace) CommitGitlinks(_ context.Context, updates []gitrepo.GitlinkUpdate, message string) error {
	if len(updates) == 0 {
		return gitrepo.ErrNoChanges
	}
	for _, u := range updates {
		w.local[u.Path] = u.Hash
	}
	w.commits = append(w.commits, fakeCommit{updates: updates, message: message})
	return nil
}

func (w *fakeWorkspace) Push(context.Context) error {
	w.pushes++
	if len(w.pushErrs) > 0 {
		err := w.pushErrs[0]
		w.pushErrs = w.pushErrs[1:]
		if err != nil {
			return err
		}
	}
	for k, v := range w.local {
		w.remote[k] = v
	}
	return nil
}

// fakeLookup serves branch tips; onLookup runs before each answer.
type fakeLookup struct {
	tips     map[string]string
	err      error
	calls    []string
	onLookup func()
}

func (l *fakeLookup) BranchHead(_ context.Context, repo, branch string) (string, bool, error) {
	l.calls = append(l.calls, repo+"@"+branch)
	if l.onLookup != nil {
		l.onLookup()
	}
	if l.err != nil {
		return "", false, l.err
	}
	tip, ok := l.tips[repo]
	return tip, ok, nil
}

type fakeSource struct {
	events []github.Event
}

func (s *fakeSource) ListEvents(_ context.Context, _ int) ([]github.Event, int, error) {
	sorted := append([]github.Event(nil), s.events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })
	return sorted, 0, nil
}

func (s *fakeSource) add(events ...github.Event) {
	s.events = append(s.events, events...)
}

type fakeMirror struct {
	dirty []string
}

func (m *fakeMirror) MarkDirty(_ context.Context, repo, _ string) error {
	m.dirty = append(m.dirty, repo)
	return nil
}

func pushEvent(id int64, repo, before, head string) github.Event {
	return github.Event{
		ID:        id,
		Type:      github.TypePush,
		Repo:      repo,
		CreatedAt: time.Unix(1700000000+id, 0).UTC(),
		Payload: github.PushPayload{
			Ref: "refs/heads/develop", Branch: "develop", Before: before, Head: head,
		},
	}
}

var (
	coreModule = gitrepo.Submodule{Name: "core", Path: "libs/core", URL: "../core.git"}
	jsonModule = gitrepo.Submodule{Name: "json", Path: "libs/json", URL: "../json.git"}
	toolModule = gitrepo.Submodule{Name: "build", Path: "tools/build", URL: "https://example.com/build.git"}
)

var develop = Branch{Name: "develop", SubmoduleBranch: "develop", Queue: "superproject:develop"}

type harness struct {
	ledger *storage.EventLedger
	source *fakeSource
	lookup *fakeLookup
	mirror *fakeMirror
	engine *Engine
}

func newHarness(t *testing.T, push bool) *harness {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		ledger: storage.NewEventLedger(db),
		source: &fakeSource{},
		lookup: &fakeLookup{tips: map[string]string{}},
		mirror: &fakeMirror{},
	}
	h.engine = NewEngine(h.ledger, h.source, h.lookup, h.mirror, Options{
		SuperRepo: "boostorg/boost",
		Push:      push,
		Attempts:  2,
	})
	return h
}

// download fetches everything the source currently holds into the ledger.
func (h *harness) download(t *testing.T) {
	t.Helper()
	_, err := h.ledger.DownloadEvents(context.Background(), h.source)
	require.NoError(t, err)
}

// caughtUp leaves the develop queue at the end of a contiguous ledger so
// the next sync runs incrementally.
func (h *harness) caughtUp(t *testing.T, events ...github.Event) {
	t.Helper()
	h.source.add(events...)
	h.download(t)
	q, err := h.ledger.OpenQueue(context.Background(), develop.Queue, storage.EventKindPush)
	require.NoError(t, err)
	require.NoError(t, q.MarkAllRead(context.Background()))
}

func (h *harness) position(t *testing.T) int64 {
	t.Helper()
	q, err := h.ledger.OpenQueue(context.Background(), develop.Queue, storage.EventKindPush)
	require.NoError(t, err)
	return q.Position()
}
