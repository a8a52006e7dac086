// Package query implements spec.md §4.6: the Query Resolver parses a
// user query string and expands it, via glob matching and graft
// traversal, into an ordered, deduplicated list of fully-qualified tree
// names. Glob matching is grounded on the teacher's own wildcard helper
// (pkg/utils/wildcard.go wraps bmatcuk/doublestar the same way).
package query

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/model"
)

// Resolve resolves query against reg, starting classification from
// namespace (the empty string for the invocation's root namespace),
// and returns fully-qualified tree names in declaration order with
// duplicates removed (first occurrence retained).
func Resolve(reg *model.Registry, namespace, query string) ([]string, error) {
	r := &resolver{reg: reg, seen: make(map[string]bool)}
	out, err := r.resolve(namespace, query)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type resolver struct {
	reg  *model.Registry
	seen map[string]bool
}

func (r *resolver) resolve(namespace, query string) ([]string, error) {
	sigil, rest := splitSigil(query)

	ns, name, err := descend(r.reg, namespace, rest)
	if err != nil {
		return nil, err
	}

	switch sigil {
	case '@':
		return r.matchByPath(ns, name)
	case '%':
		return r.matchGroup(ns, name)
	case ':':
		return r.matchGarden(ns, name)
	default:
		return r.matchBare(ns, name)
	}
}

// splitSigil strips a leading classification sigil, if present.
func splitSigil(query string) (byte, string) {
	if query == "" {
		return 0, query
	}
	switch query[0] {
	case '@', '%', ':':
		return query[0], query[1:]
	default:
		return 0, query
	}
}

// descend peels leading "seg::" graft-qualifier segments off query,
// returning the namespace the final bare name should be resolved in.
func descend(reg *model.Registry, namespace, query string) (string, string, error) {
	segments := strings.Split(query, "::")
	ns := namespace
	for _, seg := range segments[:len(segments)-1] {
		candidate := model.Qualify(ns, seg)
		if _, ok := reg.Namespaces[candidate]; !ok {
			return "", "", errs.Resolution("unknown graft %q in query", candidate)
		}
		ns = candidate
	}
	return ns, segments[len(segments)-1], nil
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// matchBare implements step 1's ambiguity priority for a sigil-less
// name: exact tree, then exact group, then exact garden, then (for
// anything containing glob metacharacters) a tree-name glob match.
func (r *resolver) matchBare(namespace, name string) ([]string, error) {
	qname := model.Qualify(namespace, name)
	if _, ok := r.reg.Trees[qname]; ok {
		return r.emit(qname)
	}
	if _, ok := r.reg.Groups[qname]; ok {
		return r.matchGroup(namespace, name)
	}
	if _, ok := r.reg.Gardens[qname]; ok {
		return r.matchGarden(namespace, name)
	}
	if isGlob(name) {
		return r.globTrees(namespace, name)
	}
	return nil, errs.Resolution("no tree, group, or garden named %q", qname)
}

func (r *resolver) globTrees(namespace, pattern string) ([]string, error) {
	var out []string
	for _, qname := range r.reg.TreeOrder {
		qt := r.reg.Trees[qname]
		if qt.Namespace != namespace {
			continue
		}
		matched, err := doublestar.Match(pattern, qt.Tree.Name)
		if err != nil {
			return nil, errs.Resolution("invalid glob %q: %v", pattern, err)
		}
		if matched {
			out = append(out, r.dedupOne(qname)...)
		}
	}
	return out, nil
}

// matchByPath implements the "@tree-path" sigil: glob-match against the
// tree's unevaluated path expression text.
func (r *resolver) matchByPath(namespace, pattern string) ([]string, error) {
	var out []string
	for _, qname := range r.reg.TreeOrder {
		qt := r.reg.Trees[qname]
		if qt.Namespace != namespace {
			continue
		}
		matched, err := doublestar.Match(pattern, qt.Tree.Path.Raw)
		if err != nil {
			return nil, errs.Resolution("invalid glob %q: %v", pattern, err)
		}
		if matched {
			out = append(out, r.dedupOne(qname)...)
		}
	}
	return out, nil
}

// matchGroup expands a group's member list, each member itself being a
// recursively-resolvable query (glob or graft-qualified).
func (r *resolver) matchGroup(namespace, name string) ([]string, error) {
	qname := model.Qualify(namespace, name)
	qg, ok := r.reg.Groups[qname]
	if !ok {
		if isGlob(name) {
			return r.globGroups(namespace, name)
		}
		return nil, errs.Resolution("no group named %q", qname)
	}
	// Members are written relative to the namespace the group itself was
	// declared in (qg.Namespace), not the namespace of whoever is asking
	// for this group by a graft-qualified name — a top-level garden's
	// "libs::core" still resolves "core"'s own members against "libs".
	var out []string
	for _, member := range qg.Group.Members {
		resolved, err := r.resolve(qg.Namespace, member)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

func (r *resolver) globGroups(namespace, pattern string) ([]string, error) {
	var out []string
	for _, qname := range r.reg.GroupOrder {
		qg := r.reg.Groups[qname]
		if qg.Namespace != namespace {
			continue
		}
		matched, err := doublestar.Match(pattern, qg.Group.Name)
		if err != nil {
			return nil, errs.Resolution("invalid glob %q: %v", pattern, err)
		}
		if matched {
			resolved, err := r.matchGroup(namespace, qg.Group.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved...)
		}
	}
	return out, nil
}

// matchGarden implements "the effective tree list of a garden is the
// order-preserving union of the members of named groups and named
// trees, de-duplicated by canonical tree name."
func (r *resolver) matchGarden(namespace, name string) ([]string, error) {
	qname := model.Qualify(namespace, name)
	qg, ok := r.reg.Gardens[qname]
	if !ok {
		if isGlob(name) {
			return r.globGardens(namespace, name)
		}
		return nil, errs.Resolution("no garden named %q", qname)
	}
	// Groups/Trees are written relative to the namespace the garden
	// itself was declared in (qg.Namespace), for the same reason the
	// group's own members above resolve against qg.Namespace rather than
	// the caller's namespace.
	var out []string
	for _, groupName := range qg.Garden.Groups {
		resolved, err := r.resolve(qg.Namespace, "%"+groupName)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	for _, treeName := range qg.Garden.Trees {
		resolved, err := r.resolve(qg.Namespace, treeName)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

func (r *resolver) globGardens(namespace, pattern string) ([]string, error) {
	var out []string
	for _, qname := range r.reg.GardenOrder {
		qg := r.reg.Gardens[qname]
		if qg.Namespace != namespace {
			continue
		}
		matched, err := doublestar.Match(pattern, qg.Garden.Name)
		if err != nil {
			return nil, errs.Resolution("invalid glob %q: %v", pattern, err)
		}
		if matched {
			resolved, err := r.matchGarden(namespace, qg.Garden.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved...)
		}
	}
	return out, nil
}

func (r *resolver) emit(qname string) ([]string, error) {
	return r.dedupOne(qname), nil
}

// dedupOne returns []string{qname} the first time qname is seen across
// this resolver's lifetime, or nil thereafter — the mechanism behind
// "duplicate canonical tree names are emitted once."
func (r *resolver) dedupOne(qname string) []string {
	if r.seen[qname] {
		return nil
	}
	r.seen[qname] = true
	return []string{qname}
}
