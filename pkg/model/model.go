// Package model defines the typed configuration model that the Loader
// produces and every other Garden component consumes. It has no
// knowledge of YAML, file paths, or shell execution: a Model is a plain
// value built once per process invocation and treated as immutable by
// everything downstream of the Loader.
package model

// EnvMode is the operation a single EnvOp performs against a named
// environment variable.
type EnvMode int

const (
	// EnvPrepend prepends the evaluated value onto the existing variable,
	// colon-joined. It is the default mode when a key carries no sigil.
	EnvPrepend EnvMode = iota
	// EnvAppend appends the evaluated value onto the existing variable,
	// colon-joined. Selected by a trailing "+" on the declared key.
	EnvAppend
	// EnvStore replaces the existing variable outright. Selected by a
	// trailing "=" on the declared key.
	EnvStore
)

func (m EnvMode) String() string {
	switch m {
	case EnvAppend:
		return "append"
	case EnvStore:
		return "store"
	default:
		return "prepend"
	}
}

// Expr is an unevaluated configuration string. Its shape (literal,
// "${...}" variable expression, or "$ " exec expression) is determined
// at evaluation time, never at load time, so Expr carries only the raw
// text plus enough provenance to produce good diagnostics.
type Expr struct {
	Raw string
}

// IsZero reports whether the expression was never set.
func (e Expr) IsZero() bool { return e.Raw == "" }

// Variable is a named, lazily-evaluated expression. Evaluation results
// are never stored on the Variable itself — Model values are shared and
// immutable — callers memoize through an eval.Context instead.
type Variable struct {
	Name string
	Expr Expr
}

// EnvOp is a single append/prepend/store directive against a named
// environment variable. Name is itself an expression because built-ins
// like TREE_NAME may appear in an environment key.
type EnvOp struct {
	Name  Expr
	Value Expr
	Mode  EnvMode
}

// Command is an ordered list of shell-command line expressions declared
// under one name. A bare string in the source config is promoted to a
// one-element Lines slice by the Loader.
type Command struct {
	Name  string
	Lines []Expr
}

// Remote is a single named Git remote URL.
type Remote struct {
	Name string
	URL  Expr
}

// Tree is a single Git working directory description.
type Tree struct {
	Name string

	// Path defaults (when unset) to the tree name, evaluated relative to
	// garden.root.
	Path Expr

	// Symlink is set only for symlink trees: the tree is materialized as
	// a symlink to this (evaluated) target instead of being cloned, and
	// is skipped by command execution and by `garden exec`.
	Symlink   Expr
	IsSymlink bool

	Remotes []Remote
	// DefaultRemoteURL is the shorthand `url:` attribute; when present it
	// defines the "origin" remote unless "origin" is also given
	// explicitly in Remotes.
	DefaultRemoteURL Expr

	Depth        int
	HasDepth     bool
	SingleBranch bool
	HasSingle    bool

	Variables   []Variable
	Environment []EnvOp
	Gitconfig   []Variable
	Commands    []Command

	Templates []string
	Extend    string
}

// Group is a named, ordered list of tree-reference patterns.
type Group struct {
	Name    string
	Members []string
}

// Garden is a named aggregation of groups, trees, and shared scope.
type Garden struct {
	Name   string
	Groups []string
	Trees  []string

	Variables   []Variable
	Environment []EnvOp
	Gitconfig   []Variable
	Commands    []Command
}

// Template is a reusable fragment of Tree attributes, identical in
// shape to Tree minus the identity fields (Name/Path/Symlink/Remotes'
// default URL is still a template-layerable attribute, unlike path).
type Template struct {
	Name string

	Remotes []Remote

	Depth        int
	HasDepth     bool
	SingleBranch bool
	HasSingle    bool

	Variables   []Variable
	Environment []EnvOp
	Gitconfig   []Variable
	Commands    []Command
}

// Graft is a named reference to an external configuration file,
// contributing its entities to the parent under a namespace prefix.
type Graft struct {
	Name string
	// Config is the path (or remote reference, see go-getter) to the
	// child configuration document.
	Config Expr
	// Root is the graft record's `root:` value. The Graft Resolver copies
	// it to the child Configuration's RootOverride; tree paths are not
	// resolved against it (see Configuration.RootOverride).
	Root Expr
	// HasRoot distinguishes "not set" from "set to empty string".
	HasRoot bool
}

// Configuration is the fully-loaded, fully-expanded root of a Garden
// document. It is built once per invocation by Loader→GraftResolver→
// Expander and is never mutated afterward; every subsystem downstream
// (Query Resolver, Scope Composer, Evaluator, Executor) takes a
// *Configuration by reference and only reads from it.
type Configuration struct {
	// Root is the unevaluated `garden.root` expression (default ".").
	Root Expr
	// Shell is the configured shell interpreter name, e.g. "zsh" or "sh".
	Shell string

	Templates map[string]Template
	Trees     map[string]Tree
	// TreeOrder preserves declaration order for deterministic query
	// results; Go maps do not.
	TreeOrder []string

	Groups     map[string]Group
	GroupOrder []string

	Gardens     map[string]Garden
	GardenOrder []string

	Variables   []Variable
	Environment []EnvOp
	Gitconfig   []Variable
	Commands    []Command

	Grafts     map[string]Graft
	GraftOrder []string

	// ConfigDir is the absolute directory containing the configuration
	// file this Configuration was loaded from; it backs the
	// GARDEN_CONFIG_DIR built-in.
	ConfigDir string
	// ConfigPath is the absolute path to the configuration file itself.
	ConfigPath string

	// ParentNamespace is the namespace that grafted this Configuration
	// in, or "" for the invocation's own root Configuration. It is
	// recorded by the Graft Resolver; no later stage reads it.
	ParentNamespace string
	// RootOverride is the graft record's `root:` attribute, when given
	// explicitly. It is recorded only: the Executor resolves this
	// namespace's tree paths against Root alone, so neither RootOverride
	// nor the parent's root is applied, and ${GARDEN_ROOT} resolves to
	// Root.
	RootOverride    Expr
	HasRootOverride bool
}

// NewConfiguration returns a Configuration with all maps initialized,
// ready for the Loader to populate.
func NewConfiguration() *Configuration {
	return &Configuration{
		Shell:     "zsh",
		Templates: make(map[string]Template),
		Trees:     make(map[string]Tree),
		Groups:    make(map[string]Group),
		Gardens:   make(map[string]Garden),
		Grafts:    make(map[string]Graft),
	}
}

// Registry is the flattened view of a root Configuration plus every
// Configuration pulled in transitively through grafts. The Graft
// Resolver is the sole producer of a Registry; every later stage
// (Template/Extend Expander, Query Resolver, Scope Composer, Evaluator,
// Executor) only reads from it.
//
// Namespacing follows spec.md §4.2: a graft named "g" containing entity
// "x" is exposed to its parent (and transitively to the parent's
// parent) as "g::x". Registry keys are always fully qualified ("" is
// the qualifier for the root namespace, so root entity "x" is keyed as
// just "x").
type Registry struct {
	// Namespaces maps a namespace prefix ("" for the root, "g",
	// "g::inner", ...) to the Configuration that was loaded for it. Each
	// namespace keeps its own Variables/Environment/Commands (global
	// scope) and its own Root/Shell/ConfigDir, since grafts are
	// hermetic: a child namespace never inherits the parent's globals.
	Namespaces map[string]*Configuration
	// NamespaceOrder is breadth-first graft-discovery order, used only
	// for diagnostics; it has no bearing on query result order.
	NamespaceOrder []string

	// Trees/Groups/Gardens are keyed by fully-qualified name.
	Trees   map[string]QualifiedTree
	Groups  map[string]QualifiedGroup
	Gardens map[string]QualifiedGarden

	// Order slices preserve first-declared order within each namespace,
	// concatenated in NamespaceOrder — this is what the Query Resolver
	// walks for glob matching and for result ordering.
	TreeOrder   []string
	GroupOrder  []string
	GardenOrder []string
}

// QualifiedTree pairs a Tree with the namespace it was declared in, so
// that Scope Composer and Evaluator can find the right Configuration
// for built-ins and global scope.
type QualifiedTree struct {
	Namespace string
	Tree      Tree
}

// QualifiedGroup pairs a Group with its declaring namespace.
type QualifiedGroup struct {
	Namespace string
	Group     Group
}

// QualifiedGarden pairs a Garden with its declaring namespace.
type QualifiedGarden struct {
	Namespace string
	Garden    Garden
}

// NewRegistry returns an empty, initialized Registry.
func NewRegistry() *Registry {
	return &Registry{
		Namespaces: make(map[string]*Configuration),
		Trees:      make(map[string]QualifiedTree),
		Groups:     make(map[string]QualifiedGroup),
		Gardens:    make(map[string]QualifiedGarden),
	}
}

// Qualify joins a namespace prefix and a local entity name into a
// fully-qualified registry key, following the "ns::name" convention.
func Qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "::" + name
}

