package tree

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	ErrConversion               = errors.New("conversion error")
	ErrMemberNotFound           = errors.New("member not found")
	ErrDuplicateOperationMisuse = errors.New("operation not supported by node category")
)

// --------------------------------------------------------------------------
// Categories and scalar kinds
// --------------------------------------------------------------------------

// Category is the structural discriminator of a Node.
type Category uint8

const (
	Null Category = iota
	Scalar
	Array
	Object
)

func (c Category) String() string {
	switch c {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Kind identifies the Go representation of a Scalar value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "none"
	}
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is a single value of a serialization tree.
type Node struct {
	category Category
	name     string
	typeName string
	children []*Node

	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	raw  []byte
}

// New returns a Null node.
func New() *Node { return &Node{category: Null} }

// NewArray returns an empty Array node.
func NewArray() *Node { return &Node{category: Array} }

// NewObject returns an empty Object node.
func NewObject() *Node { return &Node{category: Object} }

func NewBool(v bool) *Node     { return &Node{category: Scalar, kind: KindBool, b: v} }
func NewInt(v int64) *Node     { return &Node{category: Scalar, kind: KindInt, i: v} }
func NewUint(v uint64) *Node   { return &Node{category: Scalar, kind: KindUint, u: v} }
func NewFloat(v float64) *Node { return &Node{category: Scalar, kind: KindFloat, f: v} }
func NewString(v string) *Node { return &Node{category: Scalar, kind: KindString, s: v} }
func NewBytes(v []byte) *Node  { return &Node{category: Scalar, kind: KindBytes, raw: v} }

func (n *Node) Category() Category { return n.category }
func (n *Node) Kind() Kind         { return n.kind }
func (n *Node) Name() string       { return n.name }
func (n *Node) TypeName() string   { return n.typeName }
func (n *Node) Len() int           { return len(n.children) }

// NewScalar creates a Scalar node from a Go value. Supported are bool, all
// integer and float widths, string and []byte.
func NewScalar(v any) (*Node, error) {
	n := &Node{category: Scalar}
	if err := n.SetValue(v); err != nil {
		return nil, err
	}
	return n, nil
}

// SetTypeName sets the type hint used for polymorphic reconstruction.
func (n *Node) SetTypeName(name string) *Node {
	n.typeName = name
	return n
}

// SetName names a root node, e.g. a parameter or reply taken from an object
// member. Children are named by AddMember.
func (n *Node) SetName(name string) *Node {
	n.name = name
	return n
}

// Child returns the i-th child in insertion order.
func (n *Node) Child(i int) *Node {
	return n.children[i]
}

// All iterates the children in insertion order.
func (n *Node) All() iter.Seq2[int, *Node] {
	return func(yield func(int, *Node) bool) {
		for i, c := range n.children {
			if !yield(i, c) {
				return
			}
		}
	}
}

// AddMember appends child to an Object under the given name and returns it.
// A nil child is replaced by a Null node.
func (n *Node) AddMember(name string, child *Node) (*Node, error) {
	if n.category != Object {
		return nil, fmt.Errorf("add member %q to %s node: %w", name, n.category, ErrDuplicateOperationMisuse)
	}
	if name == "" {
		return nil, fmt.Errorf("add member with empty name: %w", ErrDuplicateOperationMisuse)
	}
	if child == nil {
		child = New()
	}
	child.name = name
	n.children = append(n.children, child)
	return child, nil
}

// AddElement appends child to an Array and returns it. The child loses its name.
func (n *Node) AddElement(child *Node) (*Node, error) {
	if n.category != Array {
		return nil, fmt.Errorf("add element to %s node: %w", n.category, ErrDuplicateOperationMisuse)
	}
	if child == nil {
		child = New()
	}
	child.name = ""
	n.children = append(n.children, child)
	return child, nil
}

// Member returns the first member with the given name.
func (n *Node) Member(name string) (*Node, error) {
	if m := n.FindMember(name); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrMemberNotFound)
}

// FindMember returns the first member with the given name or nil.
func (n *Node) FindMember(name string) *Node {
	if n.category != Object {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Equal reports whether both trees have the same shape, names, type names and values.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.category != o.category || n.name != o.name || n.typeName != o.typeName {
		return false
	}
	switch n.category {
	case Scalar:
		if n.kind != o.kind {
			return false
		}
		switch n.kind {
		case KindBool:
			return n.b == o.b
		case KindInt:
			return n.i == o.i
		case KindUint:
			return n.u == o.u
		case KindFloat:
			return n.f == o.f || (n.f != n.f && o.f != o.f)
		case KindString:
			return n.s == o.s
		case KindBytes:
			return bytes.Equal(n.raw, o.raw)
		}
		return true
	case Array, Object:
		if len(n.children) != len(o.children) {
			return false
		}
		for i := range n.children {
			if !n.children[i].Equal(o.children[i]) {
				return false
			}
		}
	}
	return true
}

// String renders the tree for logs and the CLI.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb, 0)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder, indent int) {
	sb.WriteString(strings.Repeat("  ", indent))
	if n.name != "" {
		sb.WriteString(n.name)
		sb.WriteString(": ")
	}
	if n.typeName != "" {
		sb.WriteString("<" + n.typeName + "> ")
	}
	switch n.category {
	case Null:
		sb.WriteString("null\n")
	case Scalar:
		s, _ := n.AsString()
		switch n.kind {
		case KindString:
			s = fmt.Sprintf("%q", s)
		case KindBytes:
			s, _ = n.Base64()
			s = "b64:" + s
		}
		sb.WriteString(s)
		sb.WriteString("\n")
	case Array, Object:
		open, closing := "[", "]"
		if n.category == Object {
			open, closing = "{", "}"
		}
		sb.WriteString(open + "\n")
		for _, c := range n.children {
			c.write(sb, indent+1)
		}
		sb.WriteString(strings.Repeat("  ", indent) + closing + "\n")
	}
}
