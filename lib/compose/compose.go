package compose

import (
	"fmt"

	"github.com/ValentinKolb/binrpc/lib/tree"
)

// --------------------------------------------------------------------------
// Interfaces
// --------------------------------------------------------------------------

// IDecomposer turns a bound application value into a tree.
type IDecomposer interface {
	Decompose() (*tree.Node, error)
}

// IComposer fills a bound application value from a tree.
type IComposer interface {
	Fixup(n *tree.Node) error
}

// IComposers is the sink for the parameters of one call. The wire codec calls
// Get once per decoded parameter and checks NeedMore at the end of the frame.
type IComposers interface {
	// NeedMore reports whether further parameters are required.
	NeedMore() bool
	// Get returns the composer for the next parameter, or nil if no further
	// parameters are accepted.
	Get() IComposer
}

// --------------------------------------------------------------------------
// Bindings
// --------------------------------------------------------------------------

// Converter describes how values of type T map to and from trees.
type Converter[T any] struct {
	TypeName  string
	Decompose func(v T) (*tree.Node, error)
	Compose   func(n *tree.Node, v *T) error
}

type decomposer[T any] struct {
	conv Converter[T]
	v    T
}

func (d *decomposer[T]) Decompose() (*tree.Node, error) {
	n, err := d.conv.Decompose(d.v)
	if err != nil {
		return nil, err
	}
	if n == nil {
		n = tree.New()
	}
	if n.TypeName() == "" && d.conv.TypeName != "" {
		n.SetTypeName(d.conv.TypeName)
	}
	return n, nil
}

// Decomposer binds v to conv.
func Decomposer[T any](conv Converter[T], v T) IDecomposer {
	return &decomposer[T]{conv: conv, v: v}
}

type composer[T any] struct {
	conv Converter[T]
	dst  *T
}

func (c *composer[T]) Fixup(n *tree.Node) error {
	if n == nil {
		return fmt.Errorf("compose %s from nil node: %w", c.conv.TypeName, tree.ErrConversion)
	}
	return c.conv.Compose(n, c.dst)
}

// Composer binds dst to conv. dst is written by Fixup.
func Composer[T any](conv Converter[T], dst *T) IComposer {
	return &composer[T]{conv: conv, dst: dst}
}

// NodeComposer stores the raw tree without conversion.
type NodeComposer struct {
	Node *tree.Node
}

func (c *NodeComposer) Fixup(n *tree.Node) error {
	c.Node = n
	return nil
}

// NodeDecomposer hands out a prepared tree.
type NodeDecomposer struct {
	Node *tree.Node
}

func (d NodeDecomposer) Decompose() (*tree.Node, error) {
	if d.Node == nil {
		return tree.New(), nil
	}
	return d.Node, nil
}

// --------------------------------------------------------------------------
// Composer lists
// --------------------------------------------------------------------------

type fixedComposers struct {
	list []IComposer
	next int
}

// NewComposers returns a sink that accepts exactly len(cs) parameters.
func NewComposers(cs ...IComposer) IComposers {
	return &fixedComposers{list: cs}
}

func (f *fixedComposers) NeedMore() bool {
	return f.next < len(f.list)
}

func (f *fixedComposers) Get() IComposer {
	if f.next >= len(f.list) {
		return nil
	}
	c := f.list[f.next]
	f.next++
	return c
}

// VarComposers accepts any number of parameters and keeps the raw trees.
type VarComposers struct {
	Nodes []*tree.Node
}

// NewVarComposers returns an unbounded sink.
func NewVarComposers() *VarComposers {
	return &VarComposers{}
}

func (v *VarComposers) NeedMore() bool { return false }

func (v *VarComposers) Get() IComposer { return v }

func (v *VarComposers) Fixup(n *tree.Node) error {
	v.Nodes = append(v.Nodes, n)
	return nil
}
