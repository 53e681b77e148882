package gitrepo

import (
	"os/exec"
	"sort"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

const (
	coreHash  = "1111111111111111111111111111111111111111"
	jsonHash  = "2222222222222222222222222222222222222222"
	buildHash = "3333333333333333333333333333333333333333"
)

const boostModules = `[submodule "core"]
	path = libs/core
	url = ../core.git
[submodule "json"]
	path = libs/json
	url = https://github.com/boostorg/json.git
[submodule "build"]
	path = tools/build
	url = https://example.com/build.git
`

// newSuperproject writes a one-commit superproject on branch develop with
// the given .gitmodules. An empty modules string omits the file.
func newSuperproject(t *testing.T, dir string, bare bool, modules string) *gogit.Repository {
	t.Helper()

	repo, err := gogit.PlainInit(dir, bare)
	require.NoError(t, err)

	libs := writeTree(t, repo, []object.TreeEntry{
		{Name: "core", Mode: filemode.Submodule, Hash: plumbing.NewHash(coreHash)},
		{Name: "json", Mode: filemode.Submodule, Hash: plumbing.NewHash(jsonHash)},
	})
	tools := writeTree(t, repo, []object.TreeEntry{
		{Name: "build", Mode: filemode.Submodule, Hash: plumbing.NewHash(buildHash)},
	})
	entries := []object.TreeEntry{
		{Name: "README.md", Mode: filemode.Regular, Hash: writeBlob(t, repo, "Boost\n")},
		{Name: "libs", Mode: filemode.Dir, Hash: libs},
		{Name: "tools", Mode: filemode.Dir, Hash: tools},
	}
	if modules != "" {
		entries = append(entries, object.TreeEntry{
			Name: ".gitmodules", Mode: filemode.Regular, Hash: writeBlob(t, repo, modules),
		})
	}
	root := writeTree(t, repo, entries)

	sig := object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   "Initial superproject\n",
		TreeHash:  root,
	}
	obj := repo.Storer.NewEncodedObject()
	require.NoError(t, commit.Encode(obj))
	head, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	branch := plumbing.NewBranchReferenceName("develop")
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(branch, head)))
	require.NoError(t, repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch)))
	return repo
}

func writeBlob(t *testing.T, repo *gogit.Repository, content string) plumbing.Hash {
	t.Helper()

	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	hash, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return hash
}

func writeTree(t *testing.T, repo *gogit.Repository, entries []object.TreeEntry) plumbing.Hash {
	t.Helper()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	tree := &object.Tree{Entries: entries}
	obj := repo.Storer.NewEncodedObject()
	require.NoError(t, tree.Encode(obj))

	hash, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return hash
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}
