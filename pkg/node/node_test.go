package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAMLParsesMappingPreservingOrder(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte("b: 1\na: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, Mapping, n.Kind)
	assert.Equal(t, []string{"b", "a"}, n.Keys())
}

func TestGetReturnsNilForMissingKey(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte("a: 1\n"))
	require.NoError(t, err)
	assert.Nil(t, n.Get("missing"))
}

func TestAsStringReturnsFalseForNonScalar(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte("a: [1, 2]\n"))
	require.NoError(t, err)
	seq := n.Get("a")
	_, ok := seq.AsString()
	assert.False(t, ok)
}

func TestAsStringListPromotesBareScalar(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte("echo hi"))
	require.NoError(t, err)
	list, err := n.AsStringList()
	require.NoError(t, err)
	assert.Equal(t, []string{"echo hi"}, list)
}

func TestAsStringListReadsSequenceElementwise(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte("- echo one\n- echo two\n"))
	require.NoError(t, err)
	list, err := n.AsStringList()
	require.NoError(t, err)
	assert.Equal(t, []string{"echo one", "echo two"}, list)
}

func TestAsStringListRejectsNestedMapping(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte("- foo: bar\n"))
	require.NoError(t, err)
	_, err = n.AsStringList()
	assert.Error(t, err)
}

func TestFromYAMLEmptyDocumentIsEmptyMapping(t *testing.T) {
	n, err := FromYAML("doc.yaml", []byte(""))
	require.NoError(t, err)
	assert.Equal(t, Mapping, n.Kind)
	assert.Empty(t, n.Keys())
}
