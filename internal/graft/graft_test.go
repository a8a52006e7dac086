package graft

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestResolveFlattensChildUnderNamespace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "child.yaml", `
trees:
  lib:
    url: "https://example.com/lib.git"
`)
	root := writeFile(t, dir, "garden.yaml", `
grafts:
  libs: ./child.yaml
`)

	reg, err := New().Resolve(root)
	require.NoError(t, err)

	_, ok := reg.Trees["libs::lib"]
	assert.True(t, ok, "child tree should be namespaced under the graft name")
	assert.Contains(t, reg.Namespaces, "libs")
}

func TestResolveSetsParentNamespaceOnChild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "child.yaml", "trees:\n  lib: {}\n")
	root := writeFile(t, dir, "garden.yaml", "grafts:\n  libs: ./child.yaml\n")

	reg, err := New().Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, "", reg.Namespaces["libs"].ParentNamespace)
}

func TestResolveAppliesRootOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "child.yaml", "trees:\n  lib: {}\n")
	root := writeFile(t, dir, "garden.yaml", `
grafts:
  libs:
    config: ./child.yaml
    root: /elsewhere
`)

	reg, err := New().Resolve(root)
	require.NoError(t, err)
	child := reg.Namespaces["libs"]
	assert.True(t, child.HasRootOverride)
	assert.Equal(t, "/elsewhere", child.RootOverride.Raw)
}

func TestResolveDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "grafts:\n  b: ./b.yaml\n")
	writeFile(t, dir, "b.yaml", "grafts:\n  a: ./a.yaml\n")
	root := filepath.Join(dir, "a.yaml")

	_, err := New().Resolve(root)
	assert.Error(t, err)
}

func TestResolveNestedGraftIsDoubleQualified(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "grandchild.yaml", "trees:\n  core: {}\n")
	writeFile(t, dir, "child.yaml", "grafts:\n  inner: ./grandchild.yaml\n")
	root := writeFile(t, dir, "garden.yaml", "grafts:\n  outer: ./child.yaml\n")

	reg, err := New().Resolve(root)
	require.NoError(t, err)
	_, ok := reg.Trees["outer::inner::core"]
	assert.True(t, ok)
}
