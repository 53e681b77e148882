// Package github provides the GitHub API client, the organisation event
// source and branch-tip lookups.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client wraps the GitHub API client.
type Client struct {
	client  *github.Client
	perPage int
}

// NewClient creates a new GitHub API client.
// If token is empty, an unauthenticated client is created (with lower rate limits).
func NewClient(token string) *Client {
	var client *github.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &Client{client: client, perPage: 100}
}

// NewClientWithBaseURL creates a client talking to a different API root,
// such as a GitHub Enterprise instance or a test server.
func NewClientWithBaseURL(token, baseURL string) (*Client, error) {
	c := NewClient(token)
	if baseURL == "" {
		return c, nil
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
	}
	c.client.BaseURL = u
	return c, nil
}

// SetPerPage sets the page size used for paginated listings.
func (c *Client) SetPerPage(n int) {
	if n > 0 && n <= 100 {
		c.perPage = n
	}
}

// BranchHead returns the commit at the tip of branch in repo ("owner/name").
// found is false when the repository has no such branch.
func (c *Client) BranchHead(ctx context.Context, repo, branch string) (sha string, found bool, err error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return "", false, err
	}

	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: c.perPage}}
	for {
		branches, resp, err := c.client.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return "", false, wrapAPIError(fmt.Sprintf("list branches of %s", repo), err)
		}
		for _, b := range branches {
			if b.GetName() == branch {
				sha := b.GetCommit().GetSHA()
				if sha == "" {
					return "", false, fmt.Errorf("%w: branch %s of %s has no commit", ErrBadEvent, branch, repo)
				}
				return sha, true, nil
			}
		}
		if resp.NextPage == 0 {
			return "", false, nil
		}
		opts.Page = resp.NextPage
	}
}

// GetRateLimit returns the current rate limit status.
func (c *Client) GetRateLimit(ctx context.Context) (*github.RateLimits, error) {
	limits, _, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, err
	}
	return limits, nil
}

// SplitRepo splits "owner/name".
func SplitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository name %q", repo)
	}
	return owner, name, nil
}

func wrapAPIError(op string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%s: rate limit exceeded, resets at %s: %w", op, rateErr.Rate.Reset.Time, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
