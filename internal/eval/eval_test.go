package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenkit/garden/pkg/model"
)

func scopeWith(vars map[string]string) *Scope {
	s := NewScope()
	varsSlice := make([]model.Variable, 0, len(vars))
	for name, expr := range vars {
		varsSlice = append(varsSlice, model.Variable{Name: name, Expr: model.Expr{Raw: expr}})
	}
	return s.Push(varsSlice)
}

func TestEvaluateLiteral(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestEvaluateVariableReference(t *testing.T) {
	s := scopeWith(map[string]string{"NAME": "garden"})
	ctx := NewContext(s, Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "hello ${NAME}")
	require.NoError(t, err)
	assert.Equal(t, "hello garden", out)
}

func TestEvaluateRecursiveReference(t *testing.T) {
	s := scopeWith(map[string]string{
		"A": "${B}/a",
		"B": "root",
	})
	ctx := NewContext(s, Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "${A}")
	require.NoError(t, err)
	assert.Equal(t, "root/a", out)
}

func TestEvaluateCyclicReferenceDoesNotHang(t *testing.T) {
	s := scopeWith(map[string]string{
		"A": "${B}",
		"B": "${A}",
	})
	ctx := NewContext(s, Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "${A}")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.NotEmpty(t, ctx.Diagnostics())
}

func TestEvaluateBuiltinsTakePrecedenceOverScope(t *testing.T) {
	s := scopeWith(map[string]string{"TREE_NAME": "shadowed"})
	ctx := NewContext(s, Builtins{TreeName: "real"}, "sh")
	out, err := ctx.Evaluate(context.Background(), "${TREE_NAME}")
	require.NoError(t, err)
	assert.Equal(t, "real", out)
}

func TestEvaluateUnresolvedVariableIsEmptyUnlessStrict(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "${MISSING}")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Empty(t, ctx.Diagnostics())

	ctx.Strict = true
	out, err = ctx.Evaluate(context.Background(), "${MISSING}")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.NotEmpty(t, ctx.Diagnostics())
}

func TestEvaluateExecExpression(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "$ echo -n hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestEvaluateExecExpressionIsCachedPerTopLevelCall(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{}, "sh")
	// Calling Evaluate twice resets the cache each time (spec's "cached
	// within one top-level evaluation"); each call should still see a
	// fresh, correct result rather than stale state from the other.
	first, err := ctx.Evaluate(context.Background(), "$ echo -n one")
	require.NoError(t, err)
	second, err := ctx.Evaluate(context.Background(), "$ echo -n two")
	require.NoError(t, err)
	assert.Equal(t, "one", first)
	assert.Equal(t, "two", second)
}

func TestEvaluateExecFailureYieldsDiagnosticByDefault(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{}, "sh")
	out, err := ctx.Evaluate(context.Background(), "$ exit 1")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.NotEmpty(t, ctx.Diagnostics())
}

func TestEvaluateExecFailurePropagatesWhenFlagged(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{}, "sh")
	ctx.PropagateExecFailure = true
	_, err := ctx.Evaluate(context.Background(), "$ exit 1")
	assert.Error(t, err)
}

func TestEvaluateArgumentsBuiltinJoinsWithSpaces(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{Arguments: []string{"1", "2", "3"}}, "sh")
	out, err := ctx.Evaluate(context.Background(), "arguments -- a b c -- ${arguments} -- x y z")
	require.NoError(t, err)
	assert.Equal(t, "arguments -- a b c -- 1 2 3 -- x y z", out)
}

func TestEvaluatePositionalArgumentBuiltins(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{Arguments: []string{"first", "second"}}, "sh")
	out, err := ctx.Evaluate(context.Background(), "${1}/${2}")
	require.NoError(t, err)
	assert.Equal(t, "first/second", out)
}

func TestEvaluateOutOfRangePositionalArgumentIsEmpty(t *testing.T) {
	ctx := NewContext(NewScope(), Builtins{Arguments: []string{"only"}}, "sh")
	out, err := ctx.Evaluate(context.Background(), "${2}")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestScopeFingerprintStableAcrossEquivalentLayers(t *testing.T) {
	a := scopeWith(map[string]string{"X": "1", "Y": "2"})
	b := scopeWith(map[string]string{"Y": "2", "X": "1"})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestScopePushShadowsOuterLayer(t *testing.T) {
	outer := scopeWith(map[string]string{"X": "outer"})
	inner := outer.Push([]model.Variable{{Name: "X", Expr: model.Expr{Raw: "inner"}}})
	v, ok := inner.Lookup("X")
	require.True(t, ok)
	assert.Equal(t, "inner", v)
}
