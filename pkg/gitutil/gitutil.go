// Package gitutil is Garden's thin go-git/v5 wrapper for the clone,
// fetch, remote, and gitconfig operations the Executor needs, grounded
// on the teacher's own pkg/git.GetRepoConfig/OpenWorktreeAwareRepo
// shape, adapted from single-repo inspection to the clone/init
// operations spec.md §1 delegates to a Git collaborator.
package gitutil

import (
	"context"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/gardenkit/garden/pkg/errs"
)

// CloneOptions mirrors the Tree attributes the Executor's clone
// operation needs: a default remote plus any extra named remotes.
type CloneOptions struct {
	URL          string
	Depth        int
	SingleBranch bool
	ExtraRemotes map[string]string // name -> URL, applied after the initial clone
}

// Clone clones URL into path, applying Depth/SingleBranch and adding
// any ExtraRemotes, mirroring garden-rs's plant operation (renamed
// `clone` here; see internal/cli for the retained `plant` alias).
func Clone(ctx context.Context, path string, opts CloneOptions) (*git.Repository, error) {
	cloneOpts := &git.CloneOptions{
		URL:          opts.URL,
		SingleBranch: opts.SingleBranch,
		Progress:     nil,
	}
	if opts.Depth > 0 {
		cloneOpts.Depth = opts.Depth
	}
	// Auth is assigned only when BasicAuthFromEnv returns non-nil, not
	// unconditionally: a nil *http.BasicAuth boxed into the
	// transport.AuthMethod interface is non-nil, so go-git would treat it
	// as "auth configured" and dereference it.
	if auth := BasicAuthFromEnv(); auth != nil {
		cloneOpts.Auth = auth
	}
	repo, err := git.PlainCloneContext(ctx, path, false, cloneOpts)
	if err != nil {
		return nil, errs.Execution("cloning %s into %s: %v", opts.URL, path, err)
	}
	for name, url := range opts.ExtraRemotes {
		if err := AddRemote(repo, name, url); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// Open opens an existing repository at path, following the teacher's
// DetectDotGit/EnableDotGitCommonDir pattern for worktree tolerance.
func Open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, errs.Execution("opening repository at %s: %v", path, err)
	}
	return repo, nil
}

// Fetch runs a fetch against the named remote (default "origin" if
// empty), tolerating go-git's "already up to date" sentinel.
func Fetch(ctx context.Context, repo *git.Repository, remoteName string) error {
	if remoteName == "" {
		remoteName = "origin"
	}
	fetchOpts := &git.FetchOptions{RemoteName: remoteName}
	if auth := BasicAuthFromEnv(); auth != nil {
		fetchOpts.Auth = auth
	}
	err := repo.FetchContext(ctx, fetchOpts)
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errs.Execution("fetching %s: %v", remoteName, err)
	}
	return nil
}

// AddRemote adds a named remote to repo, tolerating an already-present
// remote of the same name (idempotent across re-clones). The existing
// remote's URL is neither compared nor updated.
func AddRemote(repo *git.Repository, name, url string) error {
	_, err := repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err == git.ErrRemoteExists {
		return nil
	}
	if err != nil {
		return errs.Execution("adding remote %s=%s: %v", name, url, err)
	}
	return nil
}

// ApplyGitconfig writes the given key/value pairs into the repository's
// local config, mirroring the teacher's GetRepoConfig/SetConfig
// round-trip. Keys use "section.name" or "section.subsection.name"
// dotted form.
func ApplyGitconfig(repo *git.Repository, settings map[string]string) error {
	cfg, err := repo.Config()
	if err != nil {
		return errs.Execution("reading repository config: %v", err)
	}
	for key, value := range settings {
		section, subsection, name := splitConfigKey(key)
		s := cfg.Raw.Section(section)
		if subsection != "" {
			s.Subsection(subsection).SetOption(name, value)
		} else {
			s.SetOption(name, value)
		}
	}
	if err := repo.Storer.SetConfig(cfg); err != nil {
		return errs.Execution("writing repository config: %v", err)
	}
	return nil
}

func splitConfigKey(key string) (section, subsection, name string) {
	parts := splitDot(key)
	switch len(parts) {
	case 2:
		return parts[0], "", parts[1]
	case 3:
		return parts[0], parts[1], parts[2]
	default:
		return "garden", "", key
	}
}

func splitDot(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// BasicAuthFromEnv builds an http.BasicAuth from GARDEN_GIT_USERNAME /
// GARDEN_GIT_PASSWORD (or GARDEN_GIT_TOKEN as the password), returning
// nil when neither is set so go-git falls back to its own credential
// helper discovery.
func BasicAuthFromEnv() *http.BasicAuth {
	user := os.Getenv("GARDEN_GIT_USERNAME")
	pass := os.Getenv("GARDEN_GIT_PASSWORD")
	if pass == "" {
		pass = os.Getenv("GARDEN_GIT_TOKEN")
	}
	if user == "" && pass == "" {
		return nil
	}
	return &http.BasicAuth{Username: user, Password: pass}
}
