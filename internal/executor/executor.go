// Package executor implements spec.md §4.7: for each resolved tree it
// composes scope/environment, expands the tree's path/url/remotes/
// symlink/gitconfig/commands, and drives clone/fetch/exec/named-command
// operations through a bounded worker pool. Grounded on
// specialistvlad-burstgridgo's old_executor/executor.go channel-fed
// job-queue shape, generalized from graph nodes to (tree, operation)
// jobs, and on the teacher's pkg/git wrapper for the Git operations
// themselves.
package executor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gardenkit/garden/internal/eval"
	"github.com/gardenkit/garden/internal/scope"
	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/gitutil"
	"github.com/gardenkit/garden/pkg/logx"
	"github.com/gardenkit/garden/pkg/model"
)

// initHookName is the commands: entry run once, right after a
// successful clone, mirroring cmds/plant.rs's post-clone hook.
const initHookName = "__garden_init__"

// Options configures a single Executor invocation.
type Options struct {
	// Jobs is the worker pool size; 0 means runtime.NumCPU().
	Jobs int
	// KeepGoing makes a tree continue its own command list past a
	// failing command instead of stopping that tree's run.
	KeepGoing bool
	// ExitOnError aborts the whole run at the first tree failure,
	// cancelling in-flight and unscheduled work.
	ExitOnError bool
	Verbose     bool
}

// TreeResult is the per-tree outcome of one Executor operation.
type TreeResult struct {
	Tree     string
	Skipped  bool
	Err      error
	ExitCode int
}

// Executor drives operations across the trees a query resolves to.
type Executor struct {
	reg    *model.Registry
	logger *logx.Logger
	opts   Options
	// runID identifies this Executor's invocation in diagnostic output,
	// distinguishing concurrent workers' log lines across parallel runs.
	runID string
}

// New builds an Executor bound to reg, logging through logger.
func New(reg *model.Registry, logger *logx.Logger, opts Options) *Executor {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	return &Executor{reg: reg, logger: logger, opts: opts, runID: uuid.NewString()}
}

// treeContext bundles everything a job needs about one resolved tree:
// its qualified name, the Configuration it was declared in (for
// built-ins and global scope), and the garden scope in effect, if any.
type treeContext struct {
	qname     string
	namespace string
	cfg       *model.Configuration
	tree      model.Tree
	garden    *model.Garden
}

func (e *Executor) jobContexts(names []string, garden *model.Garden) []treeContext {
	out := make([]treeContext, 0, len(names))
	for _, qname := range names {
		qt, ok := e.reg.Trees[qname]
		if !ok {
			continue
		}
		out = append(out, treeContext{
			qname:     qname,
			namespace: qt.Namespace,
			cfg:       e.reg.Namespaces[qt.Namespace],
			tree:      qt.Tree,
			garden:    garden,
		})
	}
	return out
}

// evalContextFor builds an evaluator bound to tc's composed variable
// scope and built-ins. treePath is the already-resolved tree path, or
// "" when resolving the path itself (TREE_PATH is then unavailable).
func evalContextFor(tc treeContext, treePath string) *eval.Context {
	return evalContextForArgs(tc, treePath, nil)
}

// evalContextForArgs is evalContextFor plus the trailing user args a
// named `commands:` invocation binds as "${arguments}"/"${1}"/"${2}"/...
// (spec.md §8 scenario 4).
func evalContextForArgs(tc treeContext, treePath string, args []string) *eval.Context {
	s := scope.Variables(tc.cfg, tc.tree, tc.garden)
	builtins := eval.Builtins{
		ConfigDir: tc.cfg.ConfigDir,
		Root:      tc.cfg.Root.Raw,
		TreeName:  tc.tree.Name,
		TreePath:  treePath,
		Arguments: args,
	}
	return eval.NewContext(s, builtins, tc.cfg.Shell)
}

// resolvedTreePath evaluates garden.root and the tree's own path
// expression (defaulting to the tree's name) and joins them.
func resolvedTreePath(ctx context.Context, tc treeContext) (string, error) {
	evalCtx := evalContextFor(tc, "")
	raw := tc.tree.Path.Raw
	if raw == "" {
		raw = tc.tree.Name
	}
	path, err := evalCtx.Evaluate(ctx, raw)
	if err != nil {
		return "", err
	}
	root, err := evalCtx.Evaluate(ctx, tc.cfg.Root.Raw)
	if err != nil {
		return "", err
	}
	if root == "" {
		root = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path, nil
}

// effectiveCommands merges global, tree, and garden commands by
// override-by-name precedence (garden wins over tree wins over
// global), new names appended in first-seen order — the same
// precedence scope.Gitconfig uses for gitconfig settings.
func effectiveCommands(tc treeContext) []model.Command {
	order := make([]string, 0)
	byName := make(map[string]model.Command)
	merge := func(cmds []model.Command) {
		for _, c := range cmds {
			if _, exists := byName[c.Name]; !exists {
				order = append(order, c.Name)
			}
			byName[c.Name] = c
		}
	}
	merge(tc.cfg.Commands)
	merge(tc.tree.Commands)
	if tc.garden != nil {
		merge(tc.garden.Commands)
	}
	out := make([]model.Command, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func findCommand(tc treeContext, name string) (model.Command, bool) {
	for _, c := range effectiveCommands(tc) {
		if c.Name == name {
			return c, true
		}
	}
	return model.Command{}, false
}

// banner prints the "# treename: path" / "# treename" progress line
// spec.md's supplemented section grounds on original_source/src/exec.rs.
func (e *Executor) banner(tc treeContext, path string) {
	if e.opts.Verbose {
		e.logger.Infof("# %s: %s", tc.qname, path)
		e.logger.Debugf("[%s] dispatching %s", e.runID, tc.qname)
	} else {
		e.logger.Infof("# %s", tc.qname)
	}
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errAs(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// errAs walks err's Unwrap() chain looking for an *exec.ExitError,
// avoiding an errors.As import for this one call site.
func errAs(err error, target **exec.ExitError) bool {
	for err != nil {
		if e, ok := err.(*exec.ExitError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// run dispatches work across the resolved trees through the worker
// pool, skipping symlink trees. It is a thin wrapper over
// runWithSymlinks for the common case.
func (e *Executor) run(ctx context.Context, names []string, garden *model.Garden, work func(ctx context.Context, tc treeContext) error) ([]TreeResult, error) {
	return e.runWithSymlinks(ctx, names, garden, work, nil)
}

// runWithSymlinks is run's general form: symlinkWork, when non-nil, is
// invoked for symlink trees instead of skipping them — only Clone needs
// this, to materialize symlink trees during "init".
//
// The bounded worker pool is an errgroup.Group with SetLimit, generalized
// from specialistvlad-burstgridgo's channel-fed job-queue executor to
// (tree, operation) jobs: each resolved tree becomes one eg.Go closure,
// the group's derived context is what carries cancellation to the rest
// of the pool, and under ExitOnError the first tree failure is returned
// from the closure so the group cancels its context and stops admitting
// new work. Outside ExitOnError, failures are recorded in results but
// swallowed before returning from the closure, so the whole pool drains.
func (e *Executor) runWithSymlinks(ctx context.Context, names []string, garden *model.Garden, work func(ctx context.Context, tc treeContext) error, symlinkWork func(ctx context.Context, tc treeContext) error) ([]TreeResult, error) {
	contexts := e.jobContexts(names, garden)
	results := make([]TreeResult, len(contexts))

	workers := e.opts.Jobs
	if workers <= 0 {
		workers = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for idx, tc := range contexts {
		idx, tc := idx, tc
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				results[idx] = TreeResult{Tree: tc.qname, Skipped: true}
				return nil
			default:
			}

			var err error
			if tc.tree.IsSymlink {
				if symlinkWork == nil {
					results[idx] = TreeResult{Tree: tc.qname, Skipped: true}
					return nil
				}
				err = symlinkWork(egCtx, tc)
			} else {
				err = work(egCtx, tc)
			}

			res := TreeResult{Tree: tc.qname, Err: err}
			if err != nil {
				res.ExitCode = exitCodeOf(err)
			}
			results[idx] = res
			if err != nil && e.opts.ExitOnError {
				return err
			}
			return nil
		})
	}

	fatalErr := eg.Wait()
	return results, fatalErr
}

// RunCommand runs the named declared command against every resolved
// tree, in declaration order within a tree, honoring KeepGoing. args is
// the trailing argv from the CLI invocation (after query and command
// name), exposed to each command line as "${arguments}" and 1-based
// positional built-ins, per spec.md §8 scenario 4.
func (e *Executor) RunCommand(ctx context.Context, names []string, garden *model.Garden, commandName string, args []string) ([]TreeResult, error) {
	return e.run(ctx, names, garden, func(ctx context.Context, tc treeContext) error {
		path, err := resolvedTreePath(ctx, tc)
		if err != nil {
			return err
		}
		e.banner(tc, path)

		cmd, ok := findCommand(tc, commandName)
		if !ok {
			return errs.Resolution("tree %q has no command %q", tc.qname, commandName)
		}

		evalCtx := evalContextForArgs(tc, path, args)
		evalCtx.PropagateExecFailure = true

		out := e.logger.TreeWriter(tc.qname)
		defer out.Close()

		var firstErr error
		for _, line := range cmd.Lines {
			expanded, err := evalCtx.Evaluate(ctx, line.Raw)
			if err != nil {
				return err
			}
			if err := e.runShellLine(ctx, tc, path, expanded, out); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				if !e.opts.KeepGoing {
					return err
				}
			}
		}
		return firstErr
	})
}

// RunExec runs an ad hoc argv against every resolved tree.
func (e *Executor) RunExec(ctx context.Context, names []string, garden *model.Garden, argv []string) ([]TreeResult, error) {
	return e.run(ctx, names, garden, func(ctx context.Context, tc treeContext) error {
		path, err := resolvedTreePath(ctx, tc)
		if err != nil {
			return err
		}
		e.banner(tc, path)

		out := e.logger.TreeWriter(tc.qname)
		defer out.Close()
		return e.runArgv(ctx, tc, path, argv, out)
	})
}

// Fetch runs `git fetch` against every resolved tree's primary remote.
func (e *Executor) Fetch(ctx context.Context, names []string, garden *model.Garden) ([]TreeResult, error) {
	return e.run(ctx, names, garden, func(ctx context.Context, tc treeContext) error {
		path, err := resolvedTreePath(ctx, tc)
		if err != nil {
			return err
		}
		e.banner(tc, path)

		repo, err := gitutil.Open(path)
		if err != nil {
			return err
		}

		evalCtx := evalContextFor(tc, path)
		_, primary, err := resolveRemotes(ctx, evalCtx, tc)
		if err != nil {
			return err
		}
		return gitutil.Fetch(ctx, repo, primary)
	})
}

// Clone clones every resolved non-symlink tree that isn't already a
// Git checkout, adds its other declared remotes, applies gitconfig, and
// runs the tree's __garden_init__ command if declared. Symlink trees
// are instead materialized with os.Symlink during this same pass, per
// spec.md §4.7's "honors them for init and similar filesystem setup".
func (e *Executor) Clone(ctx context.Context, names []string, garden *model.Garden) ([]TreeResult, error) {
	return e.runWithSymlinks(ctx, names, garden,
		func(ctx context.Context, tc treeContext) error {
			path, err := resolvedTreePath(ctx, tc)
			if err != nil {
				return err
			}
			e.banner(tc, path)

			if _, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil {
				return nil
			}

			evalCtx := evalContextFor(tc, path)
			evalCtx.PropagateExecFailure = true

			remotes, primary, err := resolveRemotes(ctx, evalCtx, tc)
			if err != nil {
				return err
			}
			primaryURL := remotes[primary]
			if primaryURL == "" {
				return errs.Configuration("tree %q declares no remote to clone from", tc.qname)
			}
			extra := make(map[string]string, len(remotes))
			for name, url := range remotes {
				if name == primary {
					continue
				}
				extra[name] = url
			}

			repo, err := gitutil.Clone(ctx, path, gitutil.CloneOptions{
				URL:          primaryURL,
				Depth:        tc.tree.Depth,
				SingleBranch: tc.tree.SingleBranch,
				ExtraRemotes: extra,
			})
			if err != nil {
				return err
			}

			if settings := scope.Gitconfig(tc.cfg, tc.tree, tc.garden); len(settings) > 0 {
				resolved := make(map[string]string, len(settings))
				for _, v := range settings {
					val, err := evalCtx.Evaluate(ctx, v.Expr.Raw)
					if err != nil {
						return err
					}
					resolved[v.Name] = val
				}
				if err := gitutil.ApplyGitconfig(repo, resolved); err != nil {
					return err
				}
			}

			for _, c := range tc.tree.Commands {
				if c.Name != initHookName {
					continue
				}
				out := e.logger.TreeWriter(tc.qname)
				defer out.Close()
				for _, line := range c.Lines {
					expanded, err := evalCtx.Evaluate(ctx, line.Raw)
					if err != nil {
						return err
					}
					if err := e.runShellLine(ctx, tc, path, expanded, out); err != nil {
						return err
					}
				}
			}
			return nil
		},
		func(ctx context.Context, tc treeContext) error {
			path, err := resolvedTreePath(ctx, tc)
			if err != nil {
				return err
			}
			e.banner(tc, path)

			if _, statErr := os.Lstat(path); statErr == nil {
				return nil
			}

			evalCtx := evalContextFor(tc, path)
			evalCtx.PropagateExecFailure = true
			target, err := evalCtx.Evaluate(ctx, tc.tree.Symlink.Raw)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, path); err != nil {
				return errs.Filesystem(err, "creating symlink tree "+tc.qname)
			}
			return nil
		},
	)
}

// resolveRemotes evaluates a tree's DefaultRemoteURL ("origin" unless
// shadowed) and declared Remotes into a name->URL map plus the name of
// the primary remote to clone/fetch from.
func resolveRemotes(ctx context.Context, evalCtx *eval.Context, tc treeContext) (map[string]string, string, error) {
	remotes := make(map[string]string)
	order := make([]string, 0, len(tc.tree.Remotes)+1)

	if !tc.tree.DefaultRemoteURL.IsZero() {
		url, err := evalCtx.Evaluate(ctx, tc.tree.DefaultRemoteURL.Raw)
		if err != nil {
			return nil, "", err
		}
		remotes["origin"] = url
		order = append(order, "origin")
	}
	for _, r := range tc.tree.Remotes {
		url, err := evalCtx.Evaluate(ctx, r.URL.Raw)
		if err != nil {
			return nil, "", err
		}
		if _, exists := remotes[r.Name]; !exists {
			order = append(order, r.Name)
		}
		remotes[r.Name] = url
	}

	primary := "origin"
	if _, ok := remotes["origin"]; !ok && len(order) > 0 {
		primary = order[0]
	}
	return remotes, primary, nil
}

func (e *Executor) runShellLine(ctx context.Context, tc treeContext, dir, line string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, tc.cfg.Shell, "-c", line)
	return e.runPrepared(ctx, tc, dir, cmd, out)
}

func (e *Executor) runArgv(ctx context.Context, tc treeContext, dir string, argv []string, out io.Writer) error {
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	return e.runPrepared(ctx, tc, dir, cmd, out)
}

// runPrepared composes the effective process environment and runs cmd
// with its output wired through out, a per-tree line-prefixing writer.
func (e *Executor) runPrepared(ctx context.Context, tc treeContext, dir string, cmd *exec.Cmd, out io.Writer) error {
	cmd.Dir = dir

	evalCtx := evalContextFor(tc, dir)
	env, err := scope.ApplyEnvironment(ctx, evalCtx, osEnviron(), scope.Environment(tc.cfg, tc.tree, tc.garden))
	if err != nil {
		return err
	}
	cmd.Env = envSlice(env)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return errs.Build(errs.ExecutionWrap(err, "command failed")).WithHintf("tree %q, dir %q", tc.qname, dir).Err()
	}
	return nil
}

func osEnviron() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
