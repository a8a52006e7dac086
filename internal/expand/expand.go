// Package expand implements spec.md §4.3: the Template and Extend
// Expander layers templates left-to-right, treats `extend` as an
// implicit leading template (first-remote-only inheritance), and
// deep-merges mapping attributes with dario.cat/mergo the way the
// teacher's pkg/merge layers stack imports, while identity scalars
// replace outright.
package expand

import (
	"dario.cat/mergo"

	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/model"
)

// Expand resolves every tree's templates/extend chain in cfg, replacing
// cfg.Trees with fully-materialized definitions. It must run once per
// namespace Configuration after the Graft Resolver and before any query
// or scope composition.
func Expand(cfg *model.Configuration) error {
	e := &expander{cfg: cfg, resolved: make(map[string]model.Tree), visiting: make(map[string]bool)}
	for _, name := range cfg.TreeOrder {
		tree, err := e.resolveTree(name)
		if err != nil {
			return err
		}
		cfg.Trees[name] = tree
	}
	return nil
}

type expander struct {
	cfg      *model.Configuration
	resolved map[string]model.Tree
	visiting map[string]bool
}

func (e *expander) resolveTree(name string) (model.Tree, error) {
	if t, ok := e.resolved[name]; ok {
		return t, nil
	}
	if e.visiting[name] {
		return model.Tree{}, errs.Configuration("tree %q participates in an `extend` cycle", name)
	}
	raw, ok := e.cfg.Trees[name]
	if !ok {
		return model.Tree{}, errs.Configuration("`extend` references unknown tree %q", name)
	}
	e.visiting[name] = true
	defer delete(e.visiting, name)

	var layers []model.Template

	if raw.Extend != "" {
		parent, err := e.resolveTree(raw.Extend)
		if err != nil {
			return model.Tree{}, err
		}
		layers = append(layers, treeToTemplate(parent))
	}

	for _, tname := range raw.Templates {
		tmpl, ok := e.cfg.Templates[tname]
		if !ok {
			return model.Tree{}, errs.Configuration("tree %q references unknown template %q", name, tname)
		}
		layers = append(layers, tmpl)
	}

	result, err := applyLayers(raw, layers)
	if err != nil {
		return model.Tree{}, err
	}
	e.resolved[name] = result
	return result, nil
}

// treeToTemplate converts a fully-resolved parent tree into a
// template-shaped layer for `extend`, keeping only the first remote per
// spec.md §4.3 ("only the first remote is inherited").
func treeToTemplate(t model.Tree) model.Template {
	tmpl := model.Template{
		Depth:        t.Depth,
		HasDepth:     t.HasDepth,
		SingleBranch: t.SingleBranch,
		HasSingle:    t.HasSingle,
		Variables:    t.Variables,
		Environment:  t.Environment,
		Gitconfig:    t.Gitconfig,
		Commands:     t.Commands,
	}
	if len(t.Remotes) > 0 {
		tmpl.Remotes = []model.Remote{t.Remotes[0]}
	}
	return tmpl
}

// applyLayers layers left-to-right over an accumulator, then applies the
// tree's own attributes on top (own attributes override).
func applyLayers(own model.Tree, layers []model.Template) (model.Tree, error) {
	acc := model.Template{}
	for _, layer := range layers {
		merged, err := mergeTemplate(acc, layer)
		if err != nil {
			return model.Tree{}, err
		}
		acc = merged
	}

	result := own
	result.Variables = mergeVariables(acc.Variables, own.Variables)
	result.Environment = mergeEnvOps(acc.Environment, own.Environment)
	result.Gitconfig = mergeVariables(acc.Gitconfig, own.Gitconfig)
	result.Commands = mergeCommands(acc.Commands, own.Commands)

	if len(own.Remotes) == 0 {
		result.Remotes = acc.Remotes
	}
	if !own.HasDepth && acc.HasDepth {
		result.Depth = acc.Depth
		result.HasDepth = true
	}
	if !own.HasSingle && acc.HasSingle {
		result.SingleBranch = acc.SingleBranch
		result.HasSingle = true
	}
	return result, nil
}

// mergeTemplate layers src over dst (dst is less specific, declared
// earlier). It is the deep-merge step between two template layers
// before the tree's own attributes are applied.
func mergeTemplate(dst, src model.Template) (model.Template, error) {
	out := dst
	out.Variables = mergeVariables(dst.Variables, src.Variables)
	out.Environment = mergeEnvOps(dst.Environment, src.Environment)
	out.Gitconfig = mergeVariables(dst.Gitconfig, src.Gitconfig)
	out.Commands = mergeCommands(dst.Commands, src.Commands)
	if len(src.Remotes) > 0 {
		out.Remotes = src.Remotes
	}
	if src.HasDepth {
		out.Depth = src.Depth
		out.HasDepth = true
	}
	if src.HasSingle {
		out.SingleBranch = src.SingleBranch
		out.HasSingle = true
	}
	return out, nil
}

// mergeVariables deep-merges two ordered Variable lists: src entries
// override dst entries sharing a name in place, new names from src are
// appended in src's order. The value merge itself goes through mergo so
// that the override semantics match the teacher's pkg/merge helpers.
func mergeVariables(dst, src []model.Variable) []model.Variable {
	dstMap := make(map[string]string, len(dst))
	order := make([]string, 0, len(dst))
	for _, v := range dst {
		if _, exists := dstMap[v.Name]; !exists {
			order = append(order, v.Name)
		}
		dstMap[v.Name] = v.Expr.Raw
	}
	srcMap := make(map[string]string, len(src))
	for _, v := range src {
		srcMap[v.Name] = v.Expr.Raw
	}

	_ = mergo.Merge(&dstMap, srcMap, mergo.WithOverride)

	for _, v := range src {
		found := false
		for _, existing := range order {
			if existing == v.Name {
				found = true
				break
			}
		}
		if !found {
			order = append(order, v.Name)
		}
	}

	out := make([]model.Variable, 0, len(order))
	for _, name := range order {
		out = append(out, model.Variable{Name: name, Expr: model.Expr{Raw: dstMap[name]}})
	}
	return out
}

// mergeEnvOps concatenates dst's ops followed by src's, in declaration
// order: EnvOps are a sequence of operations against a variable, not a
// name->scalar mapping, so same-named ops across layers both apply in
// order (per spec.md §9's Open Question resolution) rather than the
// later layer overwriting the earlier one outright.
func mergeEnvOps(dst, src []model.EnvOp) []model.EnvOp {
	out := make([]model.EnvOp, 0, len(dst)+len(src))
	out = append(out, dst...)
	out = append(out, src...)
	return out
}

// mergeCommands implements the append strategy for the one slice-valued
// attribute that is ordered data, not a name->scalar mapping: lines from
// an earlier (less specific) layer run before lines of the same command
// name declared by a later layer, per spec.md §4.3's template-then-own
// ordering.
func mergeCommands(dst, src []model.Command) []model.Command {
	byName := make(map[string][]model.Expr, len(dst)+len(src))
	order := make([]string, 0, len(dst)+len(src))
	for _, c := range dst {
		if _, exists := byName[c.Name]; !exists {
			order = append(order, c.Name)
		}
		byName[c.Name] = append(byName[c.Name], c.Lines...)
	}
	for _, c := range src {
		if _, exists := byName[c.Name]; !exists {
			order = append(order, c.Name)
		}
		byName[c.Name] = append(byName[c.Name], c.Lines...)
	}
	out := make([]model.Command, 0, len(order))
	for _, name := range order {
		out = append(out, model.Command{Name: name, Lines: byName[name]})
	}
	return out
}
