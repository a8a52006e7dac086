// Package rt is Garden's CommandOptions/ApplicationContext equivalent:
// a single runtime options struct threaded explicitly through the CLI
// instead of the original Rust implementation's global singleton, plus
// the top-level orchestration wiring Loader->GraftResolver->Expander
// into Query/Scope/Eval/Executor for one invocation.
package rt

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/gardenkit/garden/internal/executor"
	"github.com/gardenkit/garden/internal/expand"
	"github.com/gardenkit/garden/internal/graft"
	"github.com/gardenkit/garden/internal/query"
	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/logx"
	"github.com/gardenkit/garden/pkg/model"
)

// configSearchPath is spec.md §6's discovery order, first existing wins.
var configSearchPath = []string{
	"./garden.yaml",
	"./garden/garden.yaml",
	"./etc/garden/garden.yaml",
	"~/.config/garden/garden.yaml",
	"~/etc/garden/garden.yaml",
	"/etc/garden/garden.yaml",
}

// Options is the per-invocation runtime configuration, equivalent to
// garden-rs's CommandOptions/ApplicationContext but passed by value
// through the call chain rather than held in a global.
type Options struct {
	ConfigPath   string
	Chdir        string
	RootOverride string
	Verbose      bool
	Quiet        bool
	KeepGoing    bool
	ExitOnError  bool
	Jobs         int
	Color        string // "auto", "on", "off"
	DebugTopics  []string
}

// DiscoverConfig resolves the configuration file path: explicit wins
// (the CLI passes viper's resolved "config" value here, already folding in
// --config and GARDEN_CONFIG), otherwise GARDEN_CONFIG is checked again
// directly so callers that invoke DiscoverConfig outside the CLI's viper
// binding still get the env var, otherwise the search path in declaration
// order, first hit wins.
func DiscoverConfig(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("GARDEN_CONFIG"); env != "" {
		return env, nil
	}
	for _, candidate := range configSearchPath {
		path, err := homedir.Expand(candidate)
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	return "", errs.Configuration("no garden configuration found; searched %v", configSearchPath)
}

// App is a fully-loaded invocation: the flattened Registry plus the
// logger and options bound to it.
type App struct {
	Registry *model.Registry
	Logger   *logx.Logger
	Options  Options
}

// Load discovers and loads the configuration, resolves every graft, and
// expands every tree's templates/extend chain, producing a ready-to-query
// App.
func Load(opts Options) (*App, error) {
	if opts.Chdir != "" {
		if err := os.Chdir(opts.Chdir); err != nil {
			return nil, errs.Filesystem(err, "changing directory to "+opts.Chdir)
		}
	}

	path, err := DiscoverConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	resolver := graft.New()
	reg, err := resolver.Resolve(abs)
	if err != nil {
		return nil, err
	}

	for _, cfg := range reg.Namespaces {
		if err := expand.Expand(cfg); err != nil {
			return nil, err
		}
	}

	rootCfg := reg.Namespaces[""]
	if opts.RootOverride != "" {
		rootCfg.Root = model.Expr{Raw: opts.RootOverride}
	}

	logger := logx.New()
	switch {
	case opts.Quiet:
		logger.SetLevel(logx.LevelError)
	case opts.Verbose:
		logger.SetLevel(logx.LevelDebug)
	default:
		logger.SetLevel(logx.LevelInfo)
	}
	for _, topic := range opts.DebugTopics {
		logger.Debugf("debug topic enabled: %s", topic)
	}

	return &App{Registry: reg, Logger: logger, Options: opts}, nil
}

// ResolveQuery resolves q against the root namespace.
func (a *App) ResolveQuery(q string) ([]string, error) {
	return query.Resolve(a.Registry, "", q)
}

// GardenFor returns the Garden a query explicitly names (via the ":"
// sigil, or a bare name that resolves to a garden), or nil — used to
// feed the right garden-scoped variables/environment into the Executor
// per spec.md §4.5.
func (a *App) GardenFor(q string) *model.Garden {
	name := q
	explicit := false
	if len(q) > 0 && q[0] == ':' {
		name = q[1:]
		explicit = true
	} else if len(q) > 0 && (q[0] == '@' || q[0] == '%') {
		return nil
	}
	qname := model.Qualify("", name)
	if !explicit {
		if _, isTree := a.Registry.Trees[qname]; isTree {
			return nil
		}
		if _, isGroup := a.Registry.Groups[qname]; isGroup {
			return nil
		}
	}
	if qg, ok := a.Registry.Gardens[qname]; ok {
		g := qg.Garden
		return &g
	}
	return nil
}

// Executor builds an Executor bound to this App's Registry/Logger/Options.
func (a *App) Executor() *executor.Executor {
	return executor.New(a.Registry, a.Logger, executor.Options{
		Jobs:        a.Options.Jobs,
		KeepGoing:   a.Options.KeepGoing,
		ExitOnError: a.Options.ExitOnError,
		Verbose:     a.Options.Verbose,
	})
}
