package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenkit/garden/pkg/model"
)

func newCfg() *model.Configuration {
	cfg := model.NewConfiguration()
	return cfg
}

func TestExpandTemplateVariablesLayerLeftToRight(t *testing.T) {
	cfg := newCfg()
	cfg.Templates["base"] = model.Template{
		Name:      "base",
		Variables: []model.Variable{{Name: "X", Expr: model.Expr{Raw: "base"}}},
	}
	cfg.Templates["override"] = model.Template{
		Name:      "override",
		Variables: []model.Variable{{Name: "X", Expr: model.Expr{Raw: "override"}}},
	}
	cfg.Trees["core"] = model.Tree{Name: "core", Templates: []string{"base", "override"}}
	cfg.TreeOrder = []string{"core"}

	require.NoError(t, Expand(cfg))
	tree := cfg.Trees["core"]
	require.Len(t, tree.Variables, 1)
	assert.Equal(t, "override", tree.Variables[0].Expr.Raw)
}

func TestExpandOwnAttributesOverrideTemplates(t *testing.T) {
	cfg := newCfg()
	cfg.Templates["base"] = model.Template{
		Name:      "base",
		Variables: []model.Variable{{Name: "X", Expr: model.Expr{Raw: "template"}}},
	}
	cfg.Trees["core"] = model.Tree{
		Name:      "core",
		Templates: []string{"base"},
		Variables: []model.Variable{{Name: "X", Expr: model.Expr{Raw: "own"}}},
	}
	cfg.TreeOrder = []string{"core"}

	require.NoError(t, Expand(cfg))
	tree := cfg.Trees["core"]
	require.Len(t, tree.Variables, 1)
	assert.Equal(t, "own", tree.Variables[0].Expr.Raw)
}

func TestExpandExtendInheritsOnlyFirstRemote(t *testing.T) {
	cfg := newCfg()
	cfg.Trees["parent"] = model.Tree{
		Name: "parent",
		Remotes: []model.Remote{
			{Name: "origin", URL: model.Expr{Raw: "origin-url"}},
			{Name: "upstream", URL: model.Expr{Raw: "upstream-url"}},
		},
	}
	cfg.Trees["child"] = model.Tree{Name: "child", Extend: "parent"}
	cfg.TreeOrder = []string{"parent", "child"}

	require.NoError(t, Expand(cfg))
	child := cfg.Trees["child"]
	require.Len(t, child.Remotes, 1)
	assert.Equal(t, "origin", child.Remotes[0].Name)
}

func TestExpandExtendCycleIsAnError(t *testing.T) {
	cfg := newCfg()
	cfg.Trees["a"] = model.Tree{Name: "a", Extend: "b"}
	cfg.Trees["b"] = model.Tree{Name: "b", Extend: "a"}
	cfg.TreeOrder = []string{"a", "b"}

	err := Expand(cfg)
	assert.Error(t, err)
}

func TestExpandCommandsAppendTemplateLinesBeforeOwn(t *testing.T) {
	cfg := newCfg()
	cfg.Templates["base"] = model.Template{
		Name: "base",
		Commands: []model.Command{
			{Name: "build", Lines: []model.Expr{{Raw: "echo template"}}},
		},
	}
	cfg.Trees["core"] = model.Tree{
		Name:      "core",
		Templates: []string{"base"},
		Commands: []model.Command{
			{Name: "build", Lines: []model.Expr{{Raw: "echo own"}}},
		},
	}
	cfg.TreeOrder = []string{"core"}

	require.NoError(t, Expand(cfg))
	tree := cfg.Trees["core"]
	require.Len(t, tree.Commands, 1)
	require.Len(t, tree.Commands[0].Lines, 2)
	assert.Equal(t, "echo template", tree.Commands[0].Lines[0].Raw)
	assert.Equal(t, "echo own", tree.Commands[0].Lines[1].Raw)
}

func TestExpandEnvOpsConcatenateAcrossLayersForSameName(t *testing.T) {
	cfg := newCfg()
	cfg.Templates["base"] = model.Template{
		Name: "base",
		Environment: []model.EnvOp{
			{Name: model.Expr{Raw: "PATH"}, Value: model.Expr{Raw: "/template/bin"}, Mode: model.EnvPrepend},
		},
	}
	cfg.Trees["core"] = model.Tree{
		Name:      "core",
		Templates: []string{"base"},
		Environment: []model.EnvOp{
			{Name: model.Expr{Raw: "PATH"}, Value: model.Expr{Raw: "/own/bin"}, Mode: model.EnvAppend},
		},
	}
	cfg.TreeOrder = []string{"core"}

	require.NoError(t, Expand(cfg))
	tree := cfg.Trees["core"]
	// Both ops against PATH must survive and apply in declaration order,
	// not have the tree's own op overwrite the template's.
	require.Len(t, tree.Environment, 2)
	assert.Equal(t, model.EnvPrepend, tree.Environment[0].Mode)
	assert.Equal(t, "/template/bin", tree.Environment[0].Value.Raw)
	assert.Equal(t, model.EnvAppend, tree.Environment[1].Mode)
	assert.Equal(t, "/own/bin", tree.Environment[1].Value.Raw)
}

func TestExpandUnknownTemplateIsAnError(t *testing.T) {
	cfg := newCfg()
	cfg.Trees["core"] = model.Tree{Name: "core", Templates: []string{"missing"}}
	cfg.TreeOrder = []string{"core"}

	err := Expand(cfg)
	assert.Error(t, err)
}
