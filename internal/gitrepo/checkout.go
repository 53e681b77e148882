package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/submodsync/pkg/logger"
)

// cloneTimeoutFactor stretches the per-command timeout for the initial clone.
const cloneTimeoutFactor = 4

// Signature is the identity used for automated commits.
type Signature struct {
	Name  string
	Email string
}

// GitlinkUpdate sets the gitlink at Path to Hash.
type GitlinkUpdate struct {
	Path string
	Hash string
}

// Checkout is a working tree of one superproject branch.
type Checkout struct {
	Path   string
	URL    string
	Branch string
	User   Signature

	git Runner
}

// NewCheckout describes a checkout of branch of url at path. Nothing is
// touched on disk until Setup.
func NewCheckout(path, url, branch string, timeout time.Duration, user Signature) *Checkout {
	return &Checkout{
		Path:   path,
		URL:    url,
		Branch: branch,
		User:   user,
		git:    Runner{Dir: path, Timeout: timeout},
	}
}

// Setup brings the checkout to a clean copy of the remote branch, cloning
// it when absent. Local commits from earlier attempts are discarded.
func (c *Checkout) Setup(ctx context.Context) error {
	log := logger.WithStr("branch", c.Branch)

	if _, err := os.Stat(filepath.Join(c.Path, ".git")); errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", c.Path).Msg("Cloning superproject")
		if err := c.clone(ctx); err != nil {
			return err
		}
	} else {
		log.Info().Str("path", c.Path).Msg("Updating superproject")
		steps := [][]string{
			{"fetch", "-q", "origin"},
			{"reset", "-q", "--hard", "origin/" + c.Branch},
			{"clean", "-q", "-d", "-f"},
		}
		for _, args := range steps {
			if _, err := c.git.Run(ctx, "", args...); err != nil {
				return fmt.Errorf("update checkout of %s: %w", c.Branch, err)
			}
		}
	}

	if _, err := c.git.Run(ctx, "", "config", "user.email", c.User.Email); err != nil {
		return err
	}
	if _, err := c.git.Run(ctx, "", "config", "user.name", c.User.Name); err != nil {
		return err
	}
	return nil
}

func (c *Checkout) clone(ctx context.Context) error {
	parent := filepath.Dir(c.Path)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create checkout directory: %w", err)
	}

	// The history is never used, so a shallow clone is enough.
	runner := Runner{Dir: parent, Timeout: cloneTimeoutFactor * c.git.Timeout}
	_, err := runner.Run(ctx, "", "clone", "-q", "--depth", "1", "-b", c.Branch, c.URL, c.Path)
	if err != nil {
		os.RemoveAll(c.Path)
		return fmt.Errorf("clone %s: %w", c.Branch, err)
	}
	return nil
}

// Submodules reads the submodules registered at HEAD.
func (c *Checkout) Submodules() ([]Submodule, error) {
	return ReadSubmodules(c.Path)
}

// CurrentHashes reads the gitlink hashes at HEAD for paths.
func (c *Checkout) CurrentHashes(paths []string) (map[string]string, error) {
	return CurrentHashes(c.Path, paths)
}

// CommitGitlinks records updates in the index and commits them with
// message. An empty update set is ErrNoChanges.
func (c *Checkout) CommitGitlinks(ctx context.Context, updates []GitlinkUpdate, message string) error {
	if len(updates) == 0 {
		return ErrNoChanges
	}

	var info strings.Builder
	for _, u := range updates {
		fmt.Fprintf(&info, "160000 %s\t%s\n", u.Hash, u.Path)
	}
	if _, err := c.git.Run(ctx, info.String(), "update-index", "--index-info"); err != nil {
		return fmt.Errorf("update index: %w", err)
	}
	if _, err := c.git.Run(ctx, message, "commit", "-q", "-F", "-"); err != nil {
		return fmt.Errorf("commit gitlinks: %w", err)
	}

	logger.Info().
		Str("branch", c.Branch).
		Int("gitlinks", len(updates)).
		Msg("Committed gitlink update")
	return nil
}

// Push publishes the branch. A rejected push is ErrPushRejected.
func (c *Checkout) Push(ctx context.Context) error {
	_, err := c.git.Run(ctx, "", "push", "-q", "--porcelain", "origin", "HEAD:refs/heads/"+c.Branch)

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == 1 {
		return fmt.Errorf("%w: %s", ErrPushRejected, strings.TrimSpace(exitErr.Stderr))
	}
	if err != nil {
		return fmt.Errorf("push %s: %w", c.Branch, err)
	}
	return nil
}
