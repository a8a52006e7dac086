// Package loader implements spec.md §4.1: it consumes the generic
// node.Node tree and produces a typed model.Configuration, performing
// every shape coercion (string-to-list promotion, graft scalar-or-
// mapping duality, environment key sigil parsing) exactly once so that
// every downstream component sees one canonical shape.
package loader

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/model"
	"github.com/gardenkit/garden/pkg/node"
)

var topLevelKeys = map[string]bool{
	"garden": true, "variables": true, "environment": true, "commands": true,
	"templates": true, "trees": true, "groups": true, "gardens": true, "grafts": true,
}

// knownTreeKeys/knownGardenKeys/knownTemplateKeys back the "unknown keys
// inside typed records are warnings" rule from spec.md §4.1.
var knownTreeKeys = map[string]bool{
	"path": true, "symlink": true, "remotes": true, "url": true, "depth": true,
	"single-branch": true, "variables": true, "environment": true, "gitconfig": true,
	"commands": true, "templates": true, "extend": true,
}

var knownGardenKeys = map[string]bool{
	"groups": true, "trees": true, "variables": true, "environment": true,
	"gitconfig": true, "commands": true,
}

var knownTemplateKeys = map[string]bool{
	"remotes": true, "url": true, "depth": true, "single-branch": true,
	"variables": true, "environment": true, "gitconfig": true, "commands": true,
}

// Loader accumulates non-fatal warnings (unknown keys inside typed
// records) while building a Configuration.
type Loader struct {
	Warnings []string
}

// New returns a Loader with no warnings yet recorded.
func New() *Loader {
	return &Loader{}
}

func (l *Loader) warnf(format string, args ...any) {
	l.Warnings = append(l.Warnings, fmt.Sprintf(format, args...))
}

// Load parses raw YAML bytes for the named file into a Configuration.
func (l *Loader) Load(filename string, data []byte) (*model.Configuration, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		abs = filename
	}

	root, err := node.FromYAML(filename, data)
	if err != nil {
		return nil, errs.ConfigurationWrap(err, "loading "+filename)
	}
	if root.Kind != node.Mapping {
		return nil, errs.Configuration("%s: configuration document must be a mapping at the top level", filename)
	}

	for _, key := range root.Keys() {
		if !topLevelKeys[key] {
			return nil, errs.Configuration("%s: unknown top-level key %q", filename, key)
		}
	}

	cfg := model.NewConfiguration()
	cfg.ConfigPath = abs
	cfg.ConfigDir = filepath.Dir(abs)

	if gardenNode := root.Get("garden"); gardenNode != nil {
		if err := l.loadGardenBlock(filename, gardenNode, cfg); err != nil {
			return nil, err
		}
	} else {
		cfg.Root = model.Expr{Raw: "."}
	}

	if cfg.Root.IsZero() {
		cfg.Root = model.Expr{Raw: "."}
	}

	// An unset garden.shell defaults to zsh, falling back to sh when zsh
	// is not on PATH.
	if root.Get("garden").Get("shell") == nil {
		if _, err := exec.LookPath(cfg.Shell); err != nil {
			cfg.Shell = "sh"
		}
	}

	if vars, err := l.parseVariables(filename, root.Get("variables")); err != nil {
		return nil, err
	} else {
		cfg.Variables = vars
	}

	if envOps, err := l.parseEnvironment(filename, root.Get("environment")); err != nil {
		return nil, err
	} else {
		cfg.Environment = envOps
	}

	if cmds, err := l.parseCommands(filename, root.Get("commands")); err != nil {
		return nil, err
	} else {
		cfg.Commands = cmds
	}

	if err := l.loadTemplates(filename, root.Get("templates"), cfg); err != nil {
		return nil, err
	}
	if err := l.loadTrees(filename, root.Get("trees"), cfg); err != nil {
		return nil, err
	}
	if err := l.loadGroups(filename, root.Get("groups"), cfg); err != nil {
		return nil, err
	}
	if err := l.loadGardens(filename, root.Get("gardens"), cfg); err != nil {
		return nil, err
	}
	if err := l.loadGrafts(filename, root.Get("grafts"), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadGardenBlock(filename string, n *node.Node, cfg *model.Configuration) error {
	if n.Kind != node.Mapping {
		return errs.Configuration("%s:%d: `garden` must be a mapping", filename, n.Line)
	}
	for _, e := range n.Entries {
		switch e.Key {
		case "root":
			s, ok := e.Value.AsString()
			if !ok {
				return errs.Configuration("%s:%d: `garden.root` must be a string", filename, e.Value.Line)
			}
			cfg.Root = model.Expr{Raw: s}
		case "shell":
			s, ok := e.Value.AsString()
			if !ok {
				return errs.Configuration("%s:%d: `garden.shell` must be a string", filename, e.Value.Line)
			}
			cfg.Shell = s
		default:
			l.warnf("%s:%d: unknown key `garden.%s`", filename, e.Line, e.Key)
		}
	}
	return nil
}

// parseVariables reads a `variables:`-shaped mapping: name -> scalar
// expression, in declaration order.
func (l *Loader) parseVariables(filename string, n *node.Node) ([]model.Variable, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != node.Mapping {
		return nil, errs.Configuration("%s:%d: expected a mapping of variables", filename, n.Line)
	}
	out := make([]model.Variable, 0, len(n.Entries))
	for _, e := range n.Entries {
		s, ok := e.Value.AsString()
		if !ok {
			return nil, errs.Configuration("%s:%d: variable %q must be a string expression", filename, e.Value.Line, e.Key)
		}
		out = append(out, model.Variable{Name: e.Key, Expr: model.Expr{Raw: s}})
	}
	return out, nil
}

// parseEnvironment implements the key-sigil parsing rule: a trailing
// "+" on the key means append, "=" means store, otherwise prepend. The
// sigil is stripped from the recorded name.
func (l *Loader) parseEnvironment(filename string, n *node.Node) ([]model.EnvOp, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != node.Mapping {
		return nil, errs.Configuration("%s:%d: expected a mapping of environment operations", filename, n.Line)
	}
	out := make([]model.EnvOp, 0, len(n.Entries))
	for _, e := range n.Entries {
		name, mode := splitEnvSigil(e.Key)
		s, ok := e.Value.AsString()
		if !ok {
			return nil, errs.Configuration("%s:%d: environment value for %q must be a string expression", filename, e.Value.Line, e.Key)
		}
		out = append(out, model.EnvOp{
			Name:  model.Expr{Raw: name},
			Value: model.Expr{Raw: s},
			Mode:  mode,
		})
	}
	return out, nil
}

func splitEnvSigil(key string) (string, model.EnvMode) {
	switch {
	case strings.HasSuffix(key, "+"):
		return strings.TrimSuffix(key, "+"), model.EnvAppend
	case strings.HasSuffix(key, "="):
		return strings.TrimSuffix(key, "="), model.EnvStore
	default:
		return key, model.EnvPrepend
	}
}

// parseCommands reads a `commands:`-shaped mapping, promoting a bare
// string value to a one-element list per spec.md §4.1.
func (l *Loader) parseCommands(filename string, n *node.Node) ([]model.Command, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != node.Mapping {
		return nil, errs.Configuration("%s:%d: expected a mapping of commands", filename, n.Line)
	}
	out := make([]model.Command, 0, len(n.Entries))
	for _, e := range n.Entries {
		lines, err := e.Value.AsStringList()
		if err != nil {
			return nil, errs.ConfigurationWrap(err, fmt.Sprintf("command %q", e.Key))
		}
		exprs := make([]model.Expr, len(lines))
		for i, line := range lines {
			exprs[i] = model.Expr{Raw: line}
		}
		out = append(out, model.Command{Name: e.Key, Lines: exprs})
	}
	return out, nil
}

// parseGitconfig has the same name->scalar shape as parseVariables.
func (l *Loader) parseGitconfig(filename string, n *node.Node) ([]model.Variable, error) {
	return l.parseVariables(filename, n)
}

// parseRemotes reads a `remotes:`-shaped mapping: name -> URL expression.
func (l *Loader) parseRemotes(filename string, n *node.Node) ([]model.Remote, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != node.Mapping {
		return nil, errs.Configuration("%s:%d: expected a mapping of remotes", filename, n.Line)
	}
	out := make([]model.Remote, 0, len(n.Entries))
	for _, e := range n.Entries {
		s, ok := e.Value.AsString()
		if !ok {
			return nil, errs.Configuration("%s:%d: remote %q must be a URL string", filename, e.Value.Line, e.Key)
		}
		out = append(out, model.Remote{Name: e.Key, URL: model.Expr{Raw: s}})
	}
	return out, nil
}

func (l *Loader) loadTemplates(filename string, n *node.Node, cfg *model.Configuration) error {
	if n == nil {
		return nil
	}
	if n.Kind != node.Mapping {
		return errs.Configuration("%s:%d: `templates` must be a mapping", filename, n.Line)
	}
	for _, e := range n.Entries {
		tmpl, err := l.parseTemplate(filename, e.Key, e.Value)
		if err != nil {
			return err
		}
		if _, exists := cfg.Templates[e.Key]; exists {
			return errs.Configuration("%s:%d: duplicate template %q", filename, e.Line, e.Key)
		}
		cfg.Templates[e.Key] = tmpl
	}
	return nil
}

func (l *Loader) parseTemplate(filename, name string, n *node.Node) (model.Template, error) {
	tmpl := model.Template{Name: name}
	if n == nil || n.Kind != node.Mapping {
		return tmpl, errs.Configuration("%s:%d: template %q must be a mapping", filename, n.Line, name)
	}
	for _, e := range n.Entries {
		if !knownTemplateKeys[e.Key] {
			l.warnf("%s:%d: unknown key `templates.%s.%s`", filename, e.Line, name, e.Key)
			continue
		}
		switch e.Key {
		case "remotes":
			remotes, err := l.parseRemotes(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.Remotes = remotes
		case "url":
			s, ok := e.Value.AsString()
			if !ok {
				return tmpl, errs.Configuration("%s:%d: `url` must be a string", filename, e.Value.Line)
			}
			tmpl.Remotes = append([]model.Remote{{Name: "origin", URL: model.Expr{Raw: s}}}, tmpl.Remotes...)
		case "depth":
			d, err := parseIntScalar(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.Depth = d
			tmpl.HasDepth = true
		case "single-branch":
			b, err := parseBoolScalar(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.SingleBranch = b
			tmpl.HasSingle = true
		case "variables":
			vars, err := l.parseVariables(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.Variables = vars
		case "environment":
			ops, err := l.parseEnvironment(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.Environment = ops
		case "gitconfig":
			gc, err := l.parseGitconfig(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.Gitconfig = gc
		case "commands":
			cmds, err := l.parseCommands(filename, e.Value)
			if err != nil {
				return tmpl, err
			}
			tmpl.Commands = cmds
		}
	}
	return tmpl, nil
}

func (l *Loader) loadTrees(filename string, n *node.Node, cfg *model.Configuration) error {
	if n == nil {
		return nil
	}
	if n.Kind != node.Mapping {
		return errs.Configuration("%s:%d: `trees` must be a mapping", filename, n.Line)
	}
	for _, e := range n.Entries {
		tree, err := l.parseTree(filename, e.Key, e.Value)
		if err != nil {
			return err
		}
		if _, exists := cfg.Trees[e.Key]; exists {
			return errs.Configuration("%s:%d: duplicate tree %q", filename, e.Line, e.Key)
		}
		cfg.Trees[e.Key] = tree
		cfg.TreeOrder = append(cfg.TreeOrder, e.Key)
	}
	return nil
}

func (l *Loader) parseTree(filename, name string, n *node.Node) (model.Tree, error) {
	tree := model.Tree{Name: name, Path: model.Expr{Raw: name}}
	if n == nil {
		return tree, nil
	}
	if n.Kind != node.Mapping {
		return tree, errs.Configuration("%s:%d: tree %q must be a mapping", filename, n.Line, name)
	}
	for _, e := range n.Entries {
		if !knownTreeKeys[e.Key] {
			l.warnf("%s:%d: unknown key `trees.%s.%s`", filename, e.Line, name, e.Key)
			continue
		}
		switch e.Key {
		case "path":
			s, ok := e.Value.AsString()
			if !ok {
				return tree, errs.Configuration("%s:%d: `path` must be a string", filename, e.Value.Line)
			}
			tree.Path = model.Expr{Raw: s}
		case "symlink":
			s, ok := e.Value.AsString()
			if !ok {
				return tree, errs.Configuration("%s:%d: `symlink` must be a string", filename, e.Value.Line)
			}
			tree.Symlink = model.Expr{Raw: s}
			tree.IsSymlink = true
		case "remotes":
			remotes, err := l.parseRemotes(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.Remotes = remotes
		case "url":
			s, ok := e.Value.AsString()
			if !ok {
				return tree, errs.Configuration("%s:%d: `url` must be a string", filename, e.Value.Line)
			}
			tree.DefaultRemoteURL = model.Expr{Raw: s}
		case "depth":
			d, err := parseIntScalar(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.Depth = d
			tree.HasDepth = true
		case "single-branch":
			b, err := parseBoolScalar(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.SingleBranch = b
			tree.HasSingle = true
		case "variables":
			vars, err := l.parseVariables(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.Variables = vars
		case "environment":
			ops, err := l.parseEnvironment(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.Environment = ops
		case "gitconfig":
			gc, err := l.parseGitconfig(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.Gitconfig = gc
		case "commands":
			cmds, err := l.parseCommands(filename, e.Value)
			if err != nil {
				return tree, err
			}
			tree.Commands = cmds
		case "templates":
			names, err := e.Value.AsStringList()
			if err != nil {
				return tree, errs.ConfigurationWrap(err, "`templates`")
			}
			tree.Templates = names
		case "extend":
			s, ok := e.Value.AsString()
			if !ok {
				return tree, errs.Configuration("%s:%d: `extend` must be a string", filename, e.Value.Line)
			}
			tree.Extend = s
		}
	}
	return tree, nil
}

func (l *Loader) loadGroups(filename string, n *node.Node, cfg *model.Configuration) error {
	if n == nil {
		return nil
	}
	if n.Kind != node.Mapping {
		return errs.Configuration("%s:%d: `groups` must be a mapping", filename, n.Line)
	}
	for _, e := range n.Entries {
		members, err := e.Value.AsStringList()
		if err != nil {
			return errs.ConfigurationWrap(err, fmt.Sprintf("group %q members", e.Key))
		}
		if _, exists := cfg.Groups[e.Key]; exists {
			return errs.Configuration("%s:%d: duplicate group %q", filename, e.Line, e.Key)
		}
		cfg.Groups[e.Key] = model.Group{Name: e.Key, Members: members}
		cfg.GroupOrder = append(cfg.GroupOrder, e.Key)
	}
	return nil
}

func (l *Loader) loadGardens(filename string, n *node.Node, cfg *model.Configuration) error {
	if n == nil {
		return nil
	}
	if n.Kind != node.Mapping {
		return errs.Configuration("%s:%d: `gardens` must be a mapping", filename, n.Line)
	}
	for _, e := range n.Entries {
		garden, err := l.parseGarden(filename, e.Key, e.Value)
		if err != nil {
			return err
		}
		if _, exists := cfg.Gardens[e.Key]; exists {
			return errs.Configuration("%s:%d: duplicate garden %q", filename, e.Line, e.Key)
		}
		cfg.Gardens[e.Key] = garden
		cfg.GardenOrder = append(cfg.GardenOrder, e.Key)
	}
	return nil
}

func (l *Loader) parseGarden(filename, name string, n *node.Node) (model.Garden, error) {
	garden := model.Garden{Name: name}
	if n == nil {
		return garden, nil
	}
	if n.Kind != node.Mapping {
		return garden, errs.Configuration("%s:%d: garden %q must be a mapping", filename, n.Line, name)
	}
	for _, e := range n.Entries {
		if !knownGardenKeys[e.Key] {
			l.warnf("%s:%d: unknown key `gardens.%s.%s`", filename, e.Line, name, e.Key)
			continue
		}
		switch e.Key {
		case "groups":
			groups, err := e.Value.AsStringList()
			if err != nil {
				return garden, errs.ConfigurationWrap(err, "`groups`")
			}
			garden.Groups = groups
		case "trees":
			trees, err := e.Value.AsStringList()
			if err != nil {
				return garden, errs.ConfigurationWrap(err, "`trees`")
			}
			garden.Trees = trees
		case "variables":
			vars, err := l.parseVariables(filename, e.Value)
			if err != nil {
				return garden, err
			}
			garden.Variables = vars
		case "environment":
			ops, err := l.parseEnvironment(filename, e.Value)
			if err != nil {
				return garden, err
			}
			garden.Environment = ops
		case "gitconfig":
			gc, err := l.parseGitconfig(filename, e.Value)
			if err != nil {
				return garden, err
			}
			garden.Gitconfig = gc
		case "commands":
			cmds, err := l.parseCommands(filename, e.Value)
			if err != nil {
				return garden, err
			}
			garden.Commands = cmds
		}
	}
	return garden, nil
}

// loadGrafts implements the scalar-or-mapping duality from spec.md
// §4.1: a graft value may be a bare string (path to sub-config) or a
// mapping {config, root}.
func (l *Loader) loadGrafts(filename string, n *node.Node, cfg *model.Configuration) error {
	if n == nil {
		return nil
	}
	if n.Kind != node.Mapping {
		return errs.Configuration("%s:%d: `grafts` must be a mapping", filename, n.Line)
	}
	for _, e := range n.Entries {
		graft := model.Graft{Name: e.Key}
		switch e.Value.Kind {
		case node.Scalar:
			graft.Config = model.Expr{Raw: e.Value.Value}
		case node.Mapping:
			for _, sub := range e.Value.Entries {
				switch sub.Key {
				case "config":
					s, ok := sub.Value.AsString()
					if !ok {
						return errs.Configuration("%s:%d: graft %q `config` must be a string", filename, sub.Value.Line, e.Key)
					}
					graft.Config = model.Expr{Raw: s}
				case "root":
					s, ok := sub.Value.AsString()
					if !ok {
						return errs.Configuration("%s:%d: graft %q `root` must be a string", filename, sub.Value.Line, e.Key)
					}
					graft.Root = model.Expr{Raw: s}
					graft.HasRoot = true
				default:
					l.warnf("%s:%d: unknown key `grafts.%s.%s`", filename, sub.Line, e.Key, sub.Key)
				}
			}
		default:
			return errs.Configuration("%s:%d: graft %q must be a string or a mapping", filename, e.Value.Line, e.Key)
		}
		if graft.Config.IsZero() {
			return errs.Configuration("%s:%d: graft %q is missing `config`", filename, e.Line, e.Key)
		}
		if _, exists := cfg.Grafts[e.Key]; exists {
			return errs.Configuration("%s:%d: duplicate graft %q", filename, e.Line, e.Key)
		}
		cfg.Grafts[e.Key] = graft
		cfg.GraftOrder = append(cfg.GraftOrder, e.Key)
	}
	return nil
}

func parseIntScalar(filename string, n *node.Node) (int, error) {
	s, ok := n.AsString()
	if !ok {
		return 0, errs.Configuration("%s:%d: expected an integer", filename, n.Line)
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, errs.Configuration("%s:%d: %q is not an integer", filename, n.Line, s)
	}
	return v, nil
}

func parseBoolScalar(filename string, n *node.Node) (bool, error) {
	s, ok := n.AsString()
	if !ok {
		return false, errs.Configuration("%s:%d: expected a boolean", filename, n.Line)
	}
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, errs.Configuration("%s:%d: %q is not a boolean", filename, n.Line, s)
	}
}
