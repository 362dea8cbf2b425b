package compose

import (
	"fmt"
	"reflect"

	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Type registry
// --------------------------------------------------------------------------

// Entry is the type-erased form of a registered Converter.
type Entry struct {
	TypeName string
	Type     reflect.Type

	conv      any
	decompose func(v any) (*tree.Node, error)
	compose   func(n *tree.Node) (any, error)
}

// Compose builds a new value of the registered type from n.
func (e *Entry) Compose(n *tree.Node) (any, error) {
	return e.compose(n)
}

var (
	byType = xsync.NewMapOf[reflect.Type, *Entry]()
	byName = xsync.NewMapOf[string, *Entry]()
)

// Register makes conv available to Lookup and, if it has a type name, to the
// polymorphic reconstruction done by Any. A later registration replaces an
// earlier one for the same type.
func Register[T any](conv Converter[T]) {
	t := reflect.TypeFor[T]()
	e := &Entry{
		TypeName: conv.TypeName,
		Type:     t,
		conv:     conv,
		decompose: func(v any) (*tree.Node, error) {
			tv, ok := v.(T)
			if !ok {
				return nil, fmt.Errorf("decompose %T as %s: %w", v, t, tree.ErrConversion)
			}
			return conv.Decompose(tv)
		},
		compose: func(n *tree.Node) (any, error) {
			var v T
			if err := conv.Compose(n, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
	byType.Store(t, e)
	if conv.TypeName != "" {
		byName.Store(conv.TypeName, e)
	}
}

// Lookup returns the converter registered for T.
func Lookup[T any]() (Converter[T], bool) {
	e, ok := lookupType(reflect.TypeFor[T]())
	if !ok {
		return Converter[T]{}, false
	}
	conv, ok := e.conv.(Converter[T])
	return conv, ok
}

// MustLookup is like Lookup but fails with ErrConversion for unknown types.
func MustLookup[T any]() (Converter[T], error) {
	conv, ok := Lookup[T]()
	if !ok {
		return conv, fmt.Errorf("no converter registered for %s: %w", reflect.TypeFor[T](), tree.ErrConversion)
	}
	return conv, nil
}

// LookupName returns the entry registered under a type name.
func LookupName(name string) (*Entry, bool) {
	return byName.Load(name)
}

func lookupType(t reflect.Type) (*Entry, bool) {
	return byType.Load(t)
}

func init() {
	Register(Bool)
	Register(Int)
	Register(Int8)
	Register(Int16)
	Register(Int32)
	Register(Int64)
	Register(Uint)
	Register(Uint8)
	Register(Uint16)
	Register(Uint32)
	Register(Uint64)
	Register(Float32)
	Register(Float64)
	Register(String)
	Register(Bytes)
	Register(Node)
	Register(Any)
	Register(SliceOf(Any))
	Register(MapOf(Any))
	Register(SliceOf(String))
	Register(SliceOf(Int64))
	Register(SliceOf(Float64))
	Register(MapOf(String))
}
