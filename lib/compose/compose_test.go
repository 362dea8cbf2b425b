package compose

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/ValentinKolb/binrpc/lib/tree"
)

type point struct {
	X, Y int64
}

var pointConverter = Converter[point]{
	TypeName: "test.point",
	Decompose: func(p point) (*tree.Node, error) {
		obj := tree.NewObject()
		_, _ = obj.AddMember("x", tree.NewInt(p.X))
		_, _ = obj.AddMember("y", tree.NewInt(p.Y))
		return obj, nil
	},
	Compose: func(n *tree.Node, p *point) error {
		x, err := n.Member("x")
		if err != nil {
			return err
		}
		y, err := n.Member("y")
		if err != nil {
			return err
		}
		if p.X, err = x.AsInt(); err != nil {
			return err
		}
		p.Y, err = y.AsInt()
		return err
	},
}

func init() {
	Register(pointConverter)
}

// TestStringDecompose checks the documented example: "hi" becomes a string scalar
func TestStringDecompose(t *testing.T) {
	n, err := Decomposer(String, "hi").Decompose()
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if n.Category() != tree.Scalar || n.TypeName() != "string" {
		t.Errorf("Expected scalar with type name string, got %s <%s>", n.Category(), n.TypeName())
	}
	if s, _ := n.AsString(); s != "hi" {
		t.Errorf("Expected hi, got %q", s)
	}
}

// TestRoundTrip tests decompose followed by compose for the built-in converters
func TestRoundTrip(t *testing.T) {
	t.Run("int32", func(t *testing.T) {
		n, err := Decomposer(Int32, int32(-7)).Decompose()
		if err != nil {
			t.Fatal(err)
		}
		var out int32
		if err := Composer(Int32, &out).Fixup(n); err != nil || out != -7 {
			t.Errorf("got %d, %v", out, err)
		}
	})

	t.Run("slice", func(t *testing.T) {
		in := []string{"a", "b", "c"}
		n, err := Decomposer(SliceOf(String), in).Decompose()
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		if err := Composer(SliceOf(String), &out).Fixup(n); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("Expected %v, got %v", in, out)
		}
	})

	t.Run("map", func(t *testing.T) {
		in := map[string]float64{"pi": 3.14, "e": 2.71}
		n, err := Decomposer(MapOf(Float64), in).Decompose()
		if err != nil {
			t.Fatal(err)
		}
		var out map[string]float64
		if err := Composer(MapOf(Float64), &out).Fixup(n); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("Expected %v, got %v", in, out)
		}
	})

	t.Run("nil slice", func(t *testing.T) {
		n, err := Decomposer(SliceOf(Int), nil).Decompose()
		if err != nil {
			t.Fatal(err)
		}
		if n.Category() != tree.Null {
			t.Errorf("Expected null node, got %s", n.Category())
		}
	})
}

// TestComposeErrors tests conversion failures
func TestComposeErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"int8 overflow", func() error {
			var v int8
			return Composer(Int8, &v).Fixup(tree.NewInt(1000))
		}},
		{"string from array", func() error {
			var v string
			return Composer(String, &v).Fixup(tree.NewArray())
		}},
		{"slice from scalar", func() error {
			var v []int
			return Composer(SliceOf(Int), &v).Fixup(tree.NewInt(1))
		}},
		{"nil node", func() error {
			var v int
			return Composer(Int, &v).Fixup(nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tree.ErrConversion) {
				t.Errorf("Expected ErrConversion, got %v", err)
			}
		})
	}
}

// TestComposers verifies the parameter sinks
func TestComposers(t *testing.T) {
	var a, b int
	cs := NewComposers(Composer(Int, &a), Composer(Int, &b))
	for i := 1; i <= 2; i++ {
		if !cs.NeedMore() {
			t.Fatalf("Expected NeedMore before parameter %d", i)
		}
		if err := cs.Get().Fixup(tree.NewInt(int64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if cs.NeedMore() {
		t.Errorf("NeedMore should be false after all parameters")
	}
	if cs.Get() != nil {
		t.Errorf("Get should return nil once the list is exhausted")
	}
	if a != 1 || b != 2 {
		t.Errorf("Expected 1, 2 got %d, %d", a, b)
	}

	vc := NewVarComposers()
	for i := 0; i < 5; i++ {
		_ = vc.Get().Fixup(tree.NewInt(int64(i)))
	}
	if vc.NeedMore() || len(vc.Nodes) != 5 {
		t.Errorf("Expected 5 collected nodes, got %d", len(vc.Nodes))
	}
}

// TestRegistry tests lookup by type and polymorphic reconstruction by type name
func TestRegistry(t *testing.T) {
	conv, ok := Lookup[point]()
	if !ok || conv.TypeName != "test.point" {
		t.Fatalf("Lookup[point] failed")
	}
	if _, err := MustLookup[chan int](); !errors.Is(err, tree.ErrConversion) {
		t.Errorf("Expected ErrConversion for unregistered type, got %v", err)
	}

	in := []any{point{1, 2}, "s", int64(3), nil, map[string]any{"k": true}}
	n, err := Decomposer(Any, any(in)).Decompose()
	if err != nil {
		t.Fatal(err)
	}
	if n.Child(0).TypeName() != "test.point" {
		t.Errorf("Expected type name test.point, got %q", n.Child(0).TypeName())
	}

	var out any
	if err := Composer(Any, &out).Fixup(n); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("Expected %v, got %v", in, out)
	}

	e, ok := LookupName("test.point")
	if !ok {
		t.Fatalf("LookupName failed")
	}
	v, err := e.Compose(n.Child(0))
	if err != nil || v != (point{1, 2}) {
		t.Errorf("Compose = %v, %v", v, err)
	}
}

func ExampleDecomposer() {
	n, _ := Decomposer(SliceOf(Int), []int{1, 2}).Decompose()
	fmt.Print(n)
	// Output:
	// <[]int> [
	//   1
	//   2
	// ]
}
