// Package node implements the Node Model: an untyped, generic
// scalar/sequence/mapping tree that the Loader consumes. It decouples
// the rest of Garden from the YAML tokenizer (out of scope per
// spec.md §1) — only FromYAML below ever imports gopkg.in/yaml.v3.
package node

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind discriminates the three node shapes a configuration document can
// take at any position.
type Kind int

const (
	Scalar Kind = iota
	Sequence
	Mapping
)

// Entry is a single mapping key/value pair. Mapping order is preserved
// because declaration order matters throughout Garden (string-to-list
// promotion, command ordering, EnvOp application order, ...).
type Entry struct {
	Key   string
	Value *Node
	// Line is the 1-based source line, used for diagnostics.
	Line int
}

// Node is one position in the generic configuration tree.
type Node struct {
	Kind     Kind
	Value    string  // valid when Kind == Scalar
	Items    []*Node // valid when Kind == Sequence
	Entries  []Entry // valid when Kind == Mapping
	Line     int
	Filename string
}

// FromYAML parses raw YAML bytes into a generic Node tree.
func FromYAML(filename string, data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	if len(doc.Content) == 0 {
		return &Node{Kind: Mapping, Filename: filename}, nil
	}
	return fromYAMLNode(filename, doc.Content[0])
}

func fromYAMLNode(filename string, n *yaml.Node) (*Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Node{Kind: Mapping, Filename: filename}, nil
		}
		return fromYAMLNode(filename, n.Content[0])
	case yaml.ScalarNode:
		return &Node{Kind: Scalar, Value: n.Value, Line: n.Line, Filename: filename}, nil
	case yaml.SequenceNode:
		items := make([]*Node, 0, len(n.Content))
		for _, c := range n.Content {
			child, err := fromYAMLNode(filename, c)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return &Node{Kind: Sequence, Items: items, Line: n.Line, Filename: filename}, nil
	case yaml.MappingNode:
		entries := make([]Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			valNode := n.Content[i+1]
			child, err := fromYAMLNode(filename, valNode)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Key: keyNode.Value, Value: child, Line: keyNode.Line})
		}
		return &Node{Kind: Mapping, Entries: entries, Line: n.Line, Filename: filename}, nil
	case yaml.AliasNode:
		return fromYAMLNode(filename, n.Alias)
	default:
		return &Node{Kind: Scalar, Filename: filename}, nil
	}
}

// Get returns the value for a mapping key, or nil if absent or not a
// mapping.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != Mapping {
		return nil
	}
	for _, e := range n.Entries {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// Keys returns the mapping's keys in declaration order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != Mapping {
		return nil
	}
	keys := make([]string, len(n.Entries))
	for i, e := range n.Entries {
		keys[i] = e.Key
	}
	return keys
}

// AsString returns the scalar value, or "" plus false for non-scalars.
func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != Scalar {
		return "", false
	}
	return n.Value, true
}

// AsStringList implements spec.md §4.1's string-to-list promotion: a
// bare scalar becomes a one-element list, a sequence is read element by
// element (each must itself be a scalar), anything else is an error.
func (n *Node) AsStringList() ([]string, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case Scalar:
		return []string{n.Value}, nil
	case Sequence:
		out := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			s, ok := item.AsString()
			if !ok {
				return nil, fmt.Errorf("%s:%d: expected a string list entry, got a %s", n.Filename, item.Line, item.Kind.String())
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s:%d: expected a string or a list of strings, got a %s", n.Filename, n.Line, n.Kind.String())
	}
}

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	default:
		return "unknown"
	}
}
