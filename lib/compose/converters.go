package compose

import (
	"fmt"
	"reflect"

	"github.com/ValentinKolb/binrpc/lib/tree"
)

// --------------------------------------------------------------------------
// Scalar converters
// --------------------------------------------------------------------------

func numberConverter[T tree.Number](typeName string) Converter[T] {
	return Converter[T]{
		TypeName: typeName,
		Decompose: func(v T) (*tree.Node, error) {
			n := tree.NewInt(0)
			if err := tree.Set(n, v); err != nil {
				return nil, err
			}
			return n, nil
		},
		Compose: func(n *tree.Node, v *T) error {
			r, err := tree.Get[T](n)
			if err != nil {
				return err
			}
			*v = r
			return nil
		},
	}
}

var (
	Int     = numberConverter[int]("int")
	Int8    = numberConverter[int8]("int8")
	Int16   = numberConverter[int16]("int16")
	Int32   = numberConverter[int32]("int32")
	Int64   = numberConverter[int64]("int64")
	Uint    = numberConverter[uint]("uint")
	Uint8   = numberConverter[uint8]("uint8")
	Uint16  = numberConverter[uint16]("uint16")
	Uint32  = numberConverter[uint32]("uint32")
	Uint64  = numberConverter[uint64]("uint64")
	Float32 = numberConverter[float32]("float32")
	Float64 = numberConverter[float64]("float64")
)

var Bool = Converter[bool]{
	TypeName:  "bool",
	Decompose: func(v bool) (*tree.Node, error) { return tree.NewBool(v), nil },
	Compose: func(n *tree.Node, v *bool) error {
		b, err := n.AsBool()
		if err != nil {
			return err
		}
		*v = b
		return nil
	},
}

var String = Converter[string]{
	TypeName:  "string",
	Decompose: func(v string) (*tree.Node, error) { return tree.NewString(v), nil },
	Compose: func(n *tree.Node, v *string) error {
		if n.Category() != tree.Scalar {
			return fmt.Errorf("string from %s node: %w", n.Category(), tree.ErrConversion)
		}
		s, err := n.AsString()
		if err != nil {
			return err
		}
		*v = s
		return nil
	},
}

var Bytes = Converter[[]byte]{
	TypeName:  "bytes",
	Decompose: func(v []byte) (*tree.Node, error) { return tree.NewBytes(v), nil },
	Compose: func(n *tree.Node, v *[]byte) error {
		if n.Category() == tree.Null {
			*v = nil
			return nil
		}
		b, err := n.AsBytes()
		if err != nil {
			return err
		}
		*v = b
		return nil
	},
}

// Node passes trees through untouched.
var Node = Converter[*tree.Node]{
	Decompose: func(v *tree.Node) (*tree.Node, error) {
		if v == nil {
			return tree.New(), nil
		}
		return v, nil
	},
	Compose: func(n *tree.Node, v **tree.Node) error {
		*v = n
		return nil
	},
}

// --------------------------------------------------------------------------
// Containers
// --------------------------------------------------------------------------

// SliceOf maps []T to an Array. A nil slice is sent as Null.
func SliceOf[T any](elem Converter[T]) Converter[[]T] {
	return Converter[[]T]{
		TypeName: containerName("[]", elem.TypeName),
		Decompose: func(v []T) (*tree.Node, error) {
			if v == nil {
				return tree.New(), nil
			}
			arr := tree.NewArray()
			for i, e := range v {
				c, err := elem.Decompose(e)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				if _, err := arr.AddElement(c); err != nil {
					return nil, err
				}
			}
			return arr, nil
		},
		Compose: func(n *tree.Node, v *[]T) error {
			switch n.Category() {
			case tree.Null:
				*v = nil
				return nil
			case tree.Array:
			default:
				return fmt.Errorf("slice from %s node: %w", n.Category(), tree.ErrConversion)
			}
			out := make([]T, n.Len())
			for i, c := range n.All() {
				if err := elem.Compose(c, &out[i]); err != nil {
					return fmt.Errorf("element %d: %w", i, err)
				}
			}
			*v = out
			return nil
		},
	}
}

// MapOf maps map[string]V to an Object keyed by member name. Member order on
// the wire follows Go map iteration and is not stable.
func MapOf[V any](elem Converter[V]) Converter[map[string]V] {
	return Converter[map[string]V]{
		TypeName: containerName("map[string]", elem.TypeName),
		Decompose: func(v map[string]V) (*tree.Node, error) {
			if v == nil {
				return tree.New(), nil
			}
			obj := tree.NewObject()
			for k, e := range v {
				c, err := elem.Decompose(e)
				if err != nil {
					return nil, fmt.Errorf("member %q: %w", k, err)
				}
				if _, err := obj.AddMember(k, c); err != nil {
					return nil, err
				}
			}
			return obj, nil
		},
		Compose: func(n *tree.Node, v *map[string]V) error {
			switch n.Category() {
			case tree.Null:
				*v = nil
				return nil
			case tree.Object:
			default:
				return fmt.Errorf("map from %s node: %w", n.Category(), tree.ErrConversion)
			}
			out := make(map[string]V, n.Len())
			for _, c := range n.All() {
				var e V
				if err := elem.Compose(c, &e); err != nil {
					return fmt.Errorf("member %q: %w", c.Name(), err)
				}
				if _, dup := out[c.Name()]; !dup {
					out[c.Name()] = e
				}
			}
			*v = out
			return nil
		},
	}
}

func containerName(prefix, elem string) string {
	if elem == "" {
		return ""
	}
	return prefix + elem
}

// --------------------------------------------------------------------------
// Dynamic values
// --------------------------------------------------------------------------

// Any converts between trees and plain Go values. Registered types are
// resolved through their type name, everything else maps to nil, bool, int64,
// uint64, float64, string, []byte, []any or map[string]any.
var Any = Converter[any]{
	Decompose: decomposeAny,
	Compose: func(n *tree.Node, v *any) error {
		r, err := composeAny(n)
		if err != nil {
			return err
		}
		*v = r
		return nil
	},
}

func decomposeAny(v any) (*tree.Node, error) {
	if v == nil {
		return tree.New(), nil
	}
	if e, ok := lookupType(reflect.TypeOf(v)); ok {
		n, err := e.decompose(v)
		if err != nil {
			return nil, err
		}
		if n.TypeName() == "" && e.TypeName != "" {
			n.SetTypeName(e.TypeName)
		}
		return n, nil
	}
	switch x := v.(type) {
	case *tree.Node:
		return x, nil
	case []any:
		arr := tree.NewArray()
		for i, e := range x {
			c, err := decomposeAny(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			_, _ = arr.AddElement(c)
		}
		return arr, nil
	case map[string]any:
		obj := tree.NewObject()
		for k, e := range x {
			c, err := decomposeAny(e)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", k, err)
			}
			if _, err := obj.AddMember(k, c); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	return tree.NewScalar(v)
}

func composeAny(n *tree.Node) (any, error) {
	if name := n.TypeName(); name != "" {
		if e, ok := LookupName(name); ok {
			return e.compose(n)
		}
	}
	switch n.Category() {
	case tree.Null:
		return nil, nil
	case tree.Array:
		out := make([]any, n.Len())
		for i, c := range n.All() {
			v, err := composeAny(c)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case tree.Object:
		out := make(map[string]any, n.Len())
		for _, c := range n.All() {
			if _, dup := out[c.Name()]; dup {
				continue
			}
			v, err := composeAny(c)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", c.Name(), err)
			}
			out[c.Name()] = v
		}
		return out, nil
	}
	switch n.Kind() {
	case tree.KindBool:
		return n.AsBool()
	case tree.KindInt:
		return n.AsInt()
	case tree.KindUint:
		return n.AsUint()
	case tree.KindFloat:
		return n.AsFloat()
	case tree.KindBytes:
		return n.AsBytes()
	default:
		return n.AsString()
	}
}
