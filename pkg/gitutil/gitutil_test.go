package gitutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "garden", Email: "garden@example.com"},
	})
	require.NoError(t, err)
	return dir
}

func TestCloneFromLocalPath(t *testing.T) {
	src := initRepoWithCommit(t)
	dst := filepath.Join(t.TempDir(), "clone")

	_, err := Clone(context.Background(), dst, CloneOptions{URL: src})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dst, "README.md"))
}

func TestCloneAppliesExtraRemotes(t *testing.T) {
	src := initRepoWithCommit(t)
	dst := filepath.Join(t.TempDir(), "clone")

	repo, err := Clone(context.Background(), dst, CloneOptions{
		URL:          src,
		ExtraRemotes: map[string]string{"upstream": "https://example.com/upstream.git"},
	})
	require.NoError(t, err)

	remote, err := repo.Remote("upstream")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/upstream.git", remote.Config().URLs[0])
}

func TestOpenExistingRepository(t *testing.T) {
	src := initRepoWithCommit(t)
	repo, err := Open(src)
	require.NoError(t, err)
	assert.NotNil(t, repo)
}

func TestOpenMissingRepositoryIsAnError(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)
}

func TestAddRemoteIsIdempotent(t *testing.T) {
	src := initRepoWithCommit(t)
	repo, err := Open(src)
	require.NoError(t, err)

	require.NoError(t, AddRemote(repo, "upstream", "https://example.com/upstream.git"))
	assert.NoError(t, AddRemote(repo, "upstream", "https://example.com/upstream.git"))
}

func TestApplyGitconfigWritesDottedKeys(t *testing.T) {
	src := initRepoWithCommit(t)
	repo, err := Open(src)
	require.NoError(t, err)

	require.NoError(t, ApplyGitconfig(repo, map[string]string{
		"user.name":        "Garden Bot",
		"remote.origin.fetch": "+refs/heads/*:refs/remotes/origin/*",
	}))

	cfg, err := repo.Config()
	require.NoError(t, err)
	assert.Equal(t, "Garden Bot", cfg.Raw.Section("user").Option("name"))
	assert.Equal(t, "+refs/heads/*:refs/remotes/origin/*", cfg.Raw.Section("remote").Subsection("origin").Option("fetch"))
}

func TestSplitConfigKeyTwoAndThreeParts(t *testing.T) {
	section, sub, name := splitConfigKey("user.name")
	assert.Equal(t, "user", section)
	assert.Equal(t, "", sub)
	assert.Equal(t, "name", name)

	section, sub, name = splitConfigKey("remote.origin.url")
	assert.Equal(t, "remote", section)
	assert.Equal(t, "origin", sub)
	assert.Equal(t, "url", name)
}

func TestBasicAuthFromEnvReturnsNilWhenUnset(t *testing.T) {
	t.Setenv("GARDEN_GIT_USERNAME", "")
	t.Setenv("GARDEN_GIT_PASSWORD", "")
	t.Setenv("GARDEN_GIT_TOKEN", "")
	assert.Nil(t, BasicAuthFromEnv())
}

func TestBasicAuthFromEnvFallsBackToToken(t *testing.T) {
	t.Setenv("GARDEN_GIT_USERNAME", "alice")
	t.Setenv("GARDEN_GIT_PASSWORD", "")
	t.Setenv("GARDEN_GIT_TOKEN", "tok123")
	auth := BasicAuthFromEnv()
	require.NotNil(t, auth)
	assert.Equal(t, "alice", auth.Username)
	assert.Equal(t, "tok123", auth.Password)
}
