// Package eval implements spec.md §4.4: the Expression Evaluator
// resolves `${name}` references against a scope stack and dispatches
// `$ ` exec expressions to the configured shell, grounded on the
// teacher's lazy stack-variable resolution (cloudposse-atmos's
// `pkg/utils` interpolation helpers evaluate `!exec`/template functions
// the same lazy, cached way) but adapted to Garden's own precedence and
// cycle rules.
package eval

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/model"
)

// Scope is the ordered variable lookup stack built by the Scope
// Composer: layers are searched innermost (most specific) first.
type Scope struct {
	layers []map[string]string
	// fingerprint is recomputed lazily and memoized since a Scope, once
	// built, is never mutated in place (Push returns a new Scope).
	fingerprint     uint64
	fingerprintDone bool
}

// NewScope returns an empty scope (only builtins/process-env will
// resolve names against it).
func NewScope() *Scope {
	return &Scope{}
}

// Push returns a new Scope with vars layered as the new innermost
// (highest-precedence) level. The receiver is not mutated.
func (s *Scope) Push(vars []model.Variable) *Scope {
	layer := make(map[string]string, len(vars))
	for _, v := range vars {
		layer[v.Name] = v.Expr.Raw
	}
	layers := make([]map[string]string, 0, len(s.layers)+1)
	layers = append(layers, layer)
	layers = append(layers, s.layers...)
	return &Scope{layers: layers}
}

// Lookup searches layers innermost-first and returns the first hit's
// raw (unevaluated) expression text.
func (s *Scope) Lookup(name string) (string, bool) {
	for _, layer := range s.layers {
		if v, ok := layer[name]; ok {
			return v, true
		}
	}
	return "", false
}

// Fingerprint hashes the scope's flattened, precedence-resolved
// name/value pairs in a deterministic order, for use as part of the
// exec-expression cache key (spec.md §4.4: "cached by (expanded command,
// scope fingerprint)").
func (s *Scope) Fingerprint() uint64 {
	if s.fingerprintDone {
		return s.fingerprint
	}
	seen := make(map[string]bool)
	h := xxhash.New()
	for _, layer := range s.layers {
		names := make([]string, 0, len(layer))
		for name := range layer {
			names = append(names, name)
		}
		sortStrings(names)
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			fmt.Fprintf(h, "%s=%s\x00", name, layer[name])
		}
	}
	s.fingerprint = h.Sum64()
	s.fingerprintDone = true
	return s.fingerprint
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// Builtins holds the built-in names the evaluator resolves before
// consulting the scope stack: the four always-defined names plus the
// trailing-argument bindings a named `commands:` invocation exposes
// (spec.md §8 scenario 4).
type Builtins struct {
	ConfigDir string
	Root      string
	TreeName  string
	TreePath  string
	// Arguments holds the user-supplied trailing args to a `garden cmd`/
	// bare-shorthand invocation, exposed as "${arguments}" (space-joined)
	// and as 1-based positional names ("${1}", "${2}", ...). Empty for
	// every other evaluation context.
	Arguments []string
}

func (b Builtins) lookup(name string) (string, bool) {
	switch name {
	case "GARDEN_CONFIG_DIR":
		return b.ConfigDir, true
	case "GARDEN_ROOT":
		return b.Root, true
	case "TREE_NAME":
		return b.TreeName, true
	case "TREE_PATH":
		return b.TreePath, true
	case "arguments":
		return strings.Join(b.Arguments, " "), true
	default:
		if idx, ok := positionalIndex(name); ok && idx >= 1 && idx <= len(b.Arguments) {
			return b.Arguments[idx-1], true
		}
		return "", false
	}
}

// positionalIndex reports whether name is a bare positive decimal integer,
// used to resolve "${1}", "${2}", ... against Builtins.Arguments.
func positionalIndex(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	n := 0
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Diagnostic records a non-fatal evaluation problem (unresolved cycle,
// exec failure outside a runtime command) surfaced to the caller after
// Evaluate returns.
type Diagnostic struct {
	Message string
}

// Context carries everything one top-level Evaluate call needs: the
// scope stack, built-ins, the configured shell, and a fresh exec cache.
// A Context is safe to reuse across many top-level Evaluate calls for
// the same (scope, builtins) pair — each call gets its own exec cache
// and cycle-detection set, per spec.md's "cached... within one top-level
// evaluation".
type Context struct {
	Scope    *Scope
	Builtins Builtins
	Shell    string
	// Strict causes an unresolved ${name} to additionally append a
	// Diagnostic (still expands to empty string either way).
	Strict bool
	// PropagateExecFailure, set by the Executor while evaluating a
	// runtime `commands:` line, turns an exec non-zero exit into a
	// returned error instead of an empty-string diagnostic.
	PropagateExecFailure bool

	mu          sync.Mutex
	execCache   map[string]string
	diagnostics []Diagnostic
}

// NewContext builds an evaluator bound to scope/builtins/shell.
func NewContext(scope *Scope, builtins Builtins, shell string) *Context {
	if shell == "" {
		shell = "sh"
	}
	return &Context{Scope: scope, Builtins: builtins, Shell: shell}
}

// Diagnostics returns every diagnostic recorded by the most recent
// Evaluate call.
func (c *Context) Diagnostics() []Diagnostic {
	return c.diagnostics
}

// Evaluate resolves one top-level expression (raw) to either a literal
// string or the trimmed stdout of a shell invocation, per spec.md
// §4.4's five-step algorithm.
func (c *Context) Evaluate(ctx context.Context, raw string) (string, error) {
	c.mu.Lock()
	c.execCache = make(map[string]string)
	c.diagnostics = nil
	c.mu.Unlock()
	return c.evalExpr(ctx, raw, make(map[string]bool))
}

func (c *Context) evalExpr(ctx context.Context, raw string, visiting map[string]bool) (string, error) {
	isExec := strings.HasPrefix(raw, "$ ")
	body := raw
	if isExec {
		body = raw[2:]
	}
	expanded := c.expandRefs(ctx, body, visiting)
	expanded = expandTilde(expanded)
	if !isExec {
		return expanded, nil
	}
	return c.runExec(ctx, expanded)
}

// expandRefs performs step 1 and 2 of the algorithm: recursive `${name}`
// resolution with cycle detection keyed by name.
func (c *Context) expandRefs(ctx context.Context, s string, visiting map[string]bool) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		out.WriteString(s[i:start])
		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			out.WriteString(s[start:])
			break
		}
		end += start + 2
		name := s[start+2 : end]
		out.WriteString(c.resolveName(ctx, name, visiting))
		i = end + 1
	}
	return out.String()
}

func (c *Context) resolveName(ctx context.Context, name string, visiting map[string]bool) string {
	if visiting[name] {
		c.diagnostics = append(c.diagnostics, Diagnostic{Message: fmt.Sprintf("cyclic variable reference: %s", name)})
		return ""
	}

	raw, ok := c.Builtins.lookup(name)
	if !ok {
		raw, ok = c.Scope.Lookup(name)
	}
	if !ok {
		if v, envOk := os.LookupEnv(name); envOk {
			raw, ok = v, true
		}
	}
	if !ok {
		if c.Strict {
			c.diagnostics = append(c.diagnostics, Diagnostic{Message: fmt.Sprintf("unresolved variable: %s", name)})
		}
		return ""
	}

	visiting[name] = true
	defer delete(visiting, name)
	val, err := c.evalExpr(ctx, raw, visiting)
	if err != nil {
		c.diagnostics = append(c.diagnostics, Diagnostic{Message: err.Error()})
		return ""
	}
	return val
}

// expandTilde implements step 3: "~" and "~user" at the start of a
// fully-expanded string expand to a home directory.
func expandTilde(s string) string {
	if !strings.HasPrefix(s, "~") {
		return s
	}
	rest := s[1:]
	sep := strings.IndexByte(rest, '/')
	userPart := rest
	tail := ""
	if sep >= 0 {
		userPart = rest[:sep]
		tail = rest[sep:]
	}
	if userPart == "" {
		home, err := homedir.Dir()
		if err != nil {
			return s
		}
		return home + tail
	}
	u, err := user.Lookup(userPart)
	if err != nil {
		return s
	}
	return u.HomeDir + tail
}

// runExec implements steps 4 and 5: dispatch to the configured shell,
// caching by (command, scope fingerprint), with failure becoming either
// a diagnostic-and-empty or a propagated error per PropagateExecFailure.
func (c *Context) runExec(ctx context.Context, cmdline string) (string, error) {
	key := fmt.Sprintf("%x\x00%s", c.Scope.Fingerprint(), cmdline)

	c.mu.Lock()
	if cached, ok := c.execCache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	cmd := exec.CommandContext(ctx, c.Shell, "-c", cmdline)
	cmd.Env = os.Environ()
	out, err := cmd.Output()
	if err != nil {
		if c.PropagateExecFailure {
			return "", errs.Build(errs.Execution("exec expression %q failed: %v", cmdline, err)).Err()
		}
		c.diagnostics = append(c.diagnostics, Diagnostic{Message: fmt.Sprintf("exec expression %q failed: %v", cmdline, err)})
		return "", nil
	}
	result := strings.TrimSpace(string(out))

	c.mu.Lock()
	c.execCache[key] = result
	c.mu.Unlock()
	return result, nil
}
