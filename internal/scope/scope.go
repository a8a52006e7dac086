// Package scope implements spec.md §4.5: the Scope Composer builds the
// ordered variable lookup stack and the ordered EnvOp application
// sequence for a (garden?, tree) pair.
package scope

import (
	"context"
	"strings"

	"github.com/gardenkit/garden/internal/eval"
	"github.com/gardenkit/garden/pkg/model"
)

// Variables builds the "global ⊂ tree ⊂ garden" lookup stack: garden
// scope is innermost (highest precedence), then tree, then global.
func Variables(cfg *model.Configuration, tree model.Tree, garden *model.Garden) *eval.Scope {
	s := eval.NewScope()
	s = s.Push(cfg.Variables)
	s = s.Push(tree.Variables)
	if garden != nil {
		s = s.Push(garden.Variables)
	}
	return s
}

// Environment builds the ordered EnvOp sequence (global,
// template-contributed, tree, garden). Template-contributed ops are
// already folded into tree.Environment by the Template/Extend Expander,
// in template-then-own order, so this is a straight concatenation.
func Environment(cfg *model.Configuration, tree model.Tree, garden *model.Garden) []model.EnvOp {
	ops := make([]model.EnvOp, 0, len(cfg.Environment)+len(tree.Environment))
	ops = append(ops, cfg.Environment...)
	ops = append(ops, tree.Environment...)
	if garden != nil {
		ops = append(ops, garden.Environment...)
	}
	return ops
}

// Gitconfig merges global, tree, and garden gitconfig settings with the
// same override-by-name precedence as variables: garden wins over tree
// wins over global, new keys appended in first-seen order.
func Gitconfig(cfg *model.Configuration, tree model.Tree, garden *model.Garden) []model.Variable {
	merged := overrideMerge(nil, cfg.Gitconfig)
	merged = overrideMerge(merged, tree.Gitconfig)
	if garden != nil {
		merged = overrideMerge(merged, garden.Gitconfig)
	}
	return merged
}

func overrideMerge(dst, src []model.Variable) []model.Variable {
	order := make([]string, 0, len(dst)+len(src))
	values := make(map[string]model.Expr, len(dst)+len(src))
	for _, v := range dst {
		if _, exists := values[v.Name]; !exists {
			order = append(order, v.Name)
		}
		values[v.Name] = v.Expr
	}
	for _, v := range src {
		if _, exists := values[v.Name]; !exists {
			order = append(order, v.Name)
		}
		values[v.Name] = v.Expr
	}
	out := make([]model.Variable, 0, len(order))
	for _, name := range order {
		out = append(out, model.Variable{Name: name, Expr: values[name]})
	}
	return out
}

// ApplyEnvironment evaluates and applies an ordered EnvOp sequence onto
// base (normally the inherited process environment), implementing
// prepend/append/store with colon-joined concatenation and no stray
// leading/trailing colon when the prior value is empty.
func ApplyEnvironment(ctx context.Context, evalCtx *eval.Context, base map[string]string, ops []model.EnvOp) (map[string]string, error) {
	env := make(map[string]string, len(base))
	for k, v := range base {
		env[k] = v
	}
	for _, op := range ops {
		name, err := evalCtx.Evaluate(ctx, op.Name.Raw)
		if err != nil {
			return nil, err
		}
		value, err := evalCtx.Evaluate(ctx, op.Value.Raw)
		if err != nil {
			return nil, err
		}
		switch op.Mode {
		case model.EnvStore:
			env[name] = value
		case model.EnvAppend:
			env[name] = joinColon(env[name], value)
		default:
			env[name] = joinColon(value, env[name])
		}
	}
	return env, nil
}

func joinColon(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return strings.Join([]string{a, b}, ":")
	}
}
