package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenkit/garden/pkg/model"
)

func TestLoadMinimalConfiguration(t *testing.T) {
	doc := []byte(`
garden:
  root: "~/src"
  shell: zsh
variables:
  ORG: acme
trees:
  core:
    url: "https://github.com/acme/core.git"
`)
	cfg, err := New().Load("garden.yaml", doc)
	require.NoError(t, err)
	assert.Equal(t, "~/src", cfg.Root.Raw)
	assert.Equal(t, "zsh", cfg.Shell)
	require.Len(t, cfg.Variables, 1)
	assert.Equal(t, "ORG", cfg.Variables[0].Name)

	tree, ok := cfg.Trees["core"]
	require.True(t, ok)
	assert.Equal(t, "core", tree.Path.Raw, "path defaults to the tree's own name")
	assert.Equal(t, "https://github.com/acme/core.git", tree.DefaultRemoteURL.Raw)
}

func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	doc := []byte("bogus: true\n")
	_, err := New().Load("garden.yaml", doc)
	assert.Error(t, err)
}

func TestLoadWarnsOnUnknownTreeKey(t *testing.T) {
	doc := []byte(`
trees:
  core:
    bogus-key: true
`)
	l := New()
	_, err := l.Load("garden.yaml", doc)
	require.NoError(t, err)
	assert.NotEmpty(t, l.Warnings)
}

func TestLoadStringToListPromotionForCommands(t *testing.T) {
	doc := []byte(`
trees:
  core:
    commands:
      build: echo building
`)
	cfg, err := New().Load("garden.yaml", doc)
	require.NoError(t, err)
	tree := cfg.Trees["core"]
	require.Len(t, tree.Commands, 1)
	require.Len(t, tree.Commands[0].Lines, 1)
	assert.Equal(t, "echo building", tree.Commands[0].Lines[0].Raw)
}

func TestEnvironmentKeySigilParsing(t *testing.T) {
	doc := []byte(`
environment:
  PATH+: /opt/bin
  PAGER=: less
  LD_LIBRARY_PATH: /usr/lib
`)
	cfg, err := New().Load("garden.yaml", doc)
	require.NoError(t, err)
	require.Len(t, cfg.Environment, 3)

	byName := map[string]model.EnvOp{}
	for _, op := range cfg.Environment {
		byName[op.Name.Raw] = op
	}
	assert.Equal(t, model.EnvAppend, byName["PATH"].Mode)
	assert.Equal(t, model.EnvStore, byName["PAGER"].Mode)
	assert.Equal(t, model.EnvPrepend, byName["LD_LIBRARY_PATH"].Mode)
}

func TestGraftScalarOrMappingDuality(t *testing.T) {
	doc := []byte(`
grafts:
  bare: ./other.yaml
  withroot:
    config: ./other.yaml
    root: /elsewhere
`)
	cfg, err := New().Load("garden.yaml", doc)
	require.NoError(t, err)

	bare := cfg.Grafts["bare"]
	assert.Equal(t, "./other.yaml", bare.Config.Raw)
	assert.False(t, bare.HasRoot)

	withRoot := cfg.Grafts["withroot"]
	assert.Equal(t, "./other.yaml", withRoot.Config.Raw)
	assert.True(t, withRoot.HasRoot)
	assert.Equal(t, "/elsewhere", withRoot.Root.Raw)
}

func TestGraftMissingConfigIsAnError(t *testing.T) {
	doc := []byte(`
grafts:
  bad:
    root: /elsewhere
`)
	_, err := New().Load("garden.yaml", doc)
	assert.Error(t, err)
}

func TestTreeWithNoBodyDefaultsCleanly(t *testing.T) {
	doc := []byte(`
trees:
  core: {}
`)
	cfg, err := New().Load("garden.yaml", doc)
	require.NoError(t, err)
	assert.Contains(t, cfg.TreeOrder, "core")
	assert.Equal(t, "core", cfg.Trees["core"].Path.Raw)
}
