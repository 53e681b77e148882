package gitrepo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Submodule is one entry of the superproject's .gitmodules.
type Submodule struct {
	Name string
	Path string
	URL  string
}

// ReadSubmodules parses .gitmodules from the HEAD commit of the repository
// at path. A repository without .gitmodules has no submodules.
func ReadSubmodules(path string) ([]Submodule, error) {
	tree, err := headTree(path)
	if err != nil {
		return nil, err
	}

	f, err := tree.File(".gitmodules")
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read .gitmodules in %s: %w", path, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read .gitmodules in %s: %w", path, err)
	}

	modules := config.NewModules()
	if err := modules.Unmarshal([]byte(content)); err != nil {
		return nil, fmt.Errorf("%w: parse .gitmodules: %v", ErrBadSubmodule, err)
	}

	submodules := make([]Submodule, 0, len(modules.Submodules))
	for name, m := range modules.Submodules {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: submodule %q: %v", ErrBadSubmodule, name, err)
		}
		submodules = append(submodules, Submodule{Name: name, Path: m.Path, URL: m.URL})
	}
	sort.Slice(submodules, func(i, j int) bool { return submodules[i].Path < submodules[j].Path })
	return submodules, nil
}

// CurrentHashes returns the gitlink hash recorded at HEAD for each path.
// Every path must be a gitlink.
func CurrentHashes(path string, paths []string) (map[string]string, error) {
	tree, err := headTree(path)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string, len(paths))
	for _, p := range paths {
		entry, err := tree.FindEntry(p)
		if err != nil {
			return nil, fmt.Errorf("%w: no gitlink at %s: %v", ErrBadSubmodule, p, err)
		}
		if entry.Mode != filemode.Submodule {
			return nil, fmt.Errorf("%w: %s is %s, not a gitlink", ErrBadSubmodule, p, entry.Mode)
		}
		hashes[p] = entry.Hash.String()
	}
	return hashes, nil
}

func headTree(path string) (*object.Tree, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD of %s: %w", path, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit of %s: %w", path, err)
	}
	return commit.Tree()
}

var githubPrefixes = []string{
	"https://github.com/",
	"http://github.com/",
	"git://github.com/",
	"ssh://git@github.com/",
	"git@github.com:",
}

// ResolveUpstream maps a submodule URL to the owner/name of its GitHub
// repository. Relative URLs such as ../core.git resolve against the owner
// of superRepo. URLs outside GitHub resolve to "".
func ResolveUpstream(url, superRepo string) string {
	if name, ok := strings.CutPrefix(url, "../"); ok {
		owner, _, found := strings.Cut(superRepo, "/")
		name = strings.TrimSuffix(name, ".git")
		if !found || owner == "" || !validRepoPart(name) {
			return ""
		}
		return owner + "/" + name
	}

	for _, prefix := range githubPrefixes {
		rest, ok := strings.CutPrefix(url, prefix)
		if !ok {
			continue
		}
		rest = strings.TrimSuffix(strings.TrimSuffix(rest, "/"), ".git")
		owner, name, found := strings.Cut(rest, "/")
		if !found || !validRepoPart(owner) || !validRepoPart(name) {
			return ""
		}
		return owner + "/" + name
	}
	return ""
}

func validRepoPart(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/:")
}
