package gitrepo

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newCoreHash = "4444444444444444444444444444444444444444"

var testUser = Signature{Name: "Automated Commit", Email: "automated@localhost.localdomain"}

func newOrigin(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "boost.git")
	newSuperproject(t, dir, true, boostModules)
	return dir
}

func newTestCheckout(t *testing.T, origin string) *Checkout {
	t.Helper()
	path := filepath.Join(t.TempDir(), "super", "develop")
	return NewCheckout(path, "file://"+origin, "develop", 30*time.Second, testUser)
}

func originGitlink(t *testing.T, origin, path string) (string, string) {
	t.Helper()
	repo, err := gogit.PlainOpen(origin)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("develop"), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	tree, err := commit.Tree()
	require.NoError(t, err)
	entry, err := tree.FindEntry(path)
	require.NoError(t, err)
	return entry.Hash.String(), commit.Message
}

func TestCheckoutCommitAndPush(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	origin := newOrigin(t)
	co := newTestCheckout(t, origin)

	require.NoError(t, co.Setup(ctx))

	submodules, err := co.Submodules()
	require.NoError(t, err)
	require.Len(t, submodules, 3)

	hashes, err := co.CurrentHashes([]string{"libs/core"})
	require.NoError(t, err)
	assert.Equal(t, coreHash, hashes["libs/core"])

	err = co.CommitGitlinks(ctx, []GitlinkUpdate{{Path: "libs/core", Hash: newCoreHash}}, "Update core from develop.")
	require.NoError(t, err)

	hashes, err = co.CurrentHashes([]string{"libs/core", "libs/json"})
	require.NoError(t, err)
	assert.Equal(t, newCoreHash, hashes["libs/core"])
	assert.Equal(t, jsonHash, hashes["libs/json"])

	require.NoError(t, co.Push(ctx))

	hash, message := originGitlink(t, origin, "libs/core")
	assert.Equal(t, newCoreHash, hash)
	assert.Equal(t, "Update core from develop.\n", message)
}

func TestCheckoutSetupDiscardsLocalCommits(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	co := newTestCheckout(t, newOrigin(t))

	require.NoError(t, co.Setup(ctx))
	require.NoError(t, co.CommitGitlinks(ctx, []GitlinkUpdate{{Path: "libs/core", Hash: newCoreHash}}, "Local only"))

	require.NoError(t, co.Setup(ctx))
	hashes, err := co.CurrentHashes([]string{"libs/core"})
	require.NoError(t, err)
	assert.Equal(t, coreHash, hashes["libs/core"])
}

func TestCheckoutPushRejected(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	origin := newOrigin(t)
	first := newTestCheckout(t, origin)
	second := newTestCheckout(t, origin)

	require.NoError(t, first.Setup(ctx))
	require.NoError(t, second.Setup(ctx))

	require.NoError(t, first.CommitGitlinks(ctx, []GitlinkUpdate{{Path: "libs/core", Hash: newCoreHash}}, "Update core from develop."))
	require.NoError(t, first.Push(ctx))

	require.NoError(t, second.CommitGitlinks(ctx, []GitlinkUpdate{{Path: "libs/json", Hash: newCoreHash}}, "Update json from develop."))
	err := second.Push(ctx)
	assert.ErrorIs(t, err, ErrPushRejected)

	// A fresh setup picks up the winning push.
	require.NoError(t, second.Setup(ctx))
	hashes, err := second.CurrentHashes([]string{"libs/core", "libs/json"})
	require.NoError(t, err)
	assert.Equal(t, newCoreHash, hashes["libs/core"])
	assert.Equal(t, jsonHash, hashes["libs/json"])
}

func TestCheckoutCloneFailure(t *testing.T) {
	requireGit(t)
	co := newTestCheckout(t, filepath.Join(t.TempDir(), "missing.git"))

	err := co.Setup(context.Background())
	var exitErr *ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.NoDirExists(t, co.Path)
}

func TestCommitGitlinksEmpty(t *testing.T) {
	co := NewCheckout(t.TempDir(), "", "develop", time.Second, testUser)
	err := co.CommitGitlinks(context.Background(), nil, "nothing")
	assert.ErrorIs(t, err, ErrNoChanges)
}

func TestRunnerExitError(t *testing.T) {
	requireGit(t)
	r := Runner{Dir: t.TempDir(), Timeout: 10 * time.Second}

	_, err := r.Run(context.Background(), "", "rev-parse", "--verify", "HEAD")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.Code)
	assert.NotEmpty(t, exitErr.Stderr)
}

func TestRunnerTimeout(t *testing.T) {
	requireGit(t)
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not installed")
	}
	r := Runner{Dir: t.TempDir(), Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := r.Run(context.Background(), "", "-c", "alias.slow=!sleep 5", "slow")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}
