package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
superproject:
  branches:
    - branch: develop
      submodule_branch: develop
    - branch: master
      submodule_branch: master
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "boostorg", cfg.GitHub.Org)
	assert.Equal(t, 100, cfg.GitHub.PerPage)
	assert.Equal(t, "boostorg/boost", cfg.SuperProject.Repo)
	assert.False(t, cfg.SuperProject.Push)
	assert.Equal(t, 2, cfg.SuperProject.Attempts)
	assert.Equal(t, 2*time.Second, cfg.SuperProject.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.Git.Timeout)
	assert.Len(t, cfg.SuperProject.Branches, 2)
	assert.Equal(t, "git@github.com:boostorg/boost.git", cfg.SuperProjectURL())
	assert.Equal(t, filepath.Join("var", "data", "super", "develop"), filepath.Clean(cfg.CheckoutPath("develop")))
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
github:
  token: secret
  org: example
superproject:
  repo: example/super
  url: https://example.com/super.git
  push: true
  attempts: 3
  branches:
    - branch: main
      submodule_branch: trunk
git:
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.GitHub.Token)
	assert.Equal(t, "example", cfg.GitHub.Org)
	assert.True(t, cfg.SuperProject.Push)
	assert.Equal(t, 3, cfg.SuperProject.Attempts)
	assert.Equal(t, "trunk", cfg.SuperProject.Branches[0].SubmoduleBranch)
	assert.Equal(t, 5*time.Second, cfg.Git.Timeout)
	assert.Equal(t, "https://example.com/super.git", cfg.SuperProjectURL())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no branches", "superproject:\n  repo: boostorg/boost\n"},
		{"repo without owner", "superproject:\n  repo: boost\n  branches:\n    - branch: a\n      submodule_branch: a\n"},
		{"duplicate branch", "superproject:\n  branches:\n    - branch: a\n      submodule_branch: a\n    - branch: a\n      submodule_branch: b\n"},
		{"telegram without chat", "telegram:\n  token: x\nsuperproject:\n  branches:\n    - branch: a\n      submodule_branch: a\n"},
		{"zero attempts", "superproject:\n  attempts: 0\n  branches:\n    - branch: a\n      submodule_branch: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestQueueName(t *testing.T) {
	assert.Equal(t, "superproject:develop", QueueName("develop"))
}
