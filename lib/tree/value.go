package tree

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Setters (Scalar nodes only, the category never changes)
// --------------------------------------------------------------------------

func (n *Node) checkScalar() error {
	if n.category != Scalar {
		return fmt.Errorf("set value on %s node: %w", n.category, ErrDuplicateOperationMisuse)
	}
	return nil
}

func (n *Node) reset(k Kind) {
	n.kind, n.b, n.i, n.u, n.f, n.s, n.raw = k, false, 0, 0, 0, "", nil
}

func (n *Node) SetBool(v bool) error {
	if err := n.checkScalar(); err != nil {
		return err
	}
	n.reset(KindBool)
	n.b = v
	return nil
}

func (n *Node) SetInt(v int64) error {
	if err := n.checkScalar(); err != nil {
		return err
	}
	n.reset(KindInt)
	n.i = v
	return nil
}

func (n *Node) SetUint(v uint64) error {
	if err := n.checkScalar(); err != nil {
		return err
	}
	n.reset(KindUint)
	n.u = v
	return nil
}

func (n *Node) SetFloat(v float64) error {
	if err := n.checkScalar(); err != nil {
		return err
	}
	n.reset(KindFloat)
	n.f = v
	return nil
}

func (n *Node) SetString(v string) error {
	if err := n.checkScalar(); err != nil {
		return err
	}
	n.reset(KindString)
	n.s = v
	return nil
}

func (n *Node) SetBytes(v []byte) error {
	if err := n.checkScalar(); err != nil {
		return err
	}
	n.reset(KindBytes)
	n.raw = v
	return nil
}

// SetValue stores any supported Go scalar.
func (n *Node) SetValue(v any) error {
	switch x := v.(type) {
	case bool:
		return n.SetBool(x)
	case int:
		return n.SetInt(int64(x))
	case int8:
		return n.SetInt(int64(x))
	case int16:
		return n.SetInt(int64(x))
	case int32:
		return n.SetInt(int64(x))
	case int64:
		return n.SetInt(x)
	case uint:
		return n.SetUint(uint64(x))
	case uint8:
		return n.SetUint(uint64(x))
	case uint16:
		return n.SetUint(uint64(x))
	case uint32:
		return n.SetUint(uint64(x))
	case uint64:
		return n.SetUint(x)
	case float32:
		return n.SetFloat(float64(x))
	case float64:
		return n.SetFloat(x)
	case string:
		return n.SetString(x)
	case []byte:
		return n.SetBytes(x)
	default:
		return fmt.Errorf("unsupported scalar type %T: %w", v, ErrConversion)
	}
}

// --------------------------------------------------------------------------
// Getters with widening and string<->number conversion
// --------------------------------------------------------------------------

func (n *Node) convErr(target string) error {
	s, _ := n.rawString()
	return fmt.Errorf("cannot convert %s %q to %s: %w", n.kind, s, target, ErrConversion)
}

func (n *Node) scalarErr(target string) error {
	return fmt.Errorf("cannot convert %s node to %s: %w", n.category, target, ErrConversion)
}

func (n *Node) AsBool() (bool, error) {
	if n.category != Scalar {
		return false, n.scalarErr("bool")
	}
	switch n.kind {
	case KindBool:
		return n.b, nil
	case KindInt:
		return n.i != 0, nil
	case KindUint:
		return n.u != 0, nil
	case KindFloat:
		return n.f != 0, nil
	case KindString, KindBytes:
		s, _ := n.rawString()
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false, n.convErr("bool")
		}
		return v, nil
	}
	return false, n.convErr("bool")
}

func (n *Node) AsInt() (int64, error) {
	if n.category != Scalar {
		return 0, n.scalarErr("int")
	}
	switch n.kind {
	case KindBool:
		if n.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return n.i, nil
	case KindUint:
		if n.u > math.MaxInt64 {
			return 0, n.convErr("int")
		}
		return int64(n.u), nil
	case KindFloat:
		if n.f != math.Trunc(n.f) || n.f < math.MinInt64 || n.f >= math.MaxInt64 {
			return 0, n.convErr("int")
		}
		return int64(n.f), nil
	case KindString, KindBytes:
		s, _ := n.rawString()
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, n.convErr("int")
		}
		return v, nil
	}
	return 0, n.convErr("int")
}

func (n *Node) AsUint() (uint64, error) {
	if n.category != Scalar {
		return 0, n.scalarErr("uint")
	}
	switch n.kind {
	case KindBool:
		if n.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		if n.i < 0 {
			return 0, n.convErr("uint")
		}
		return uint64(n.i), nil
	case KindUint:
		return n.u, nil
	case KindFloat:
		if n.f != math.Trunc(n.f) || n.f < 0 || n.f >= math.MaxUint64 {
			return 0, n.convErr("uint")
		}
		return uint64(n.f), nil
	case KindString, KindBytes:
		s, _ := n.rawString()
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, n.convErr("uint")
		}
		return v, nil
	}
	return 0, n.convErr("uint")
}

func (n *Node) AsFloat() (float64, error) {
	if n.category != Scalar {
		return 0, n.scalarErr("float")
	}
	switch n.kind {
	case KindBool:
		if n.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return float64(n.i), nil
	case KindUint:
		return float64(n.u), nil
	case KindFloat:
		return n.f, nil
	case KindString, KindBytes:
		s, _ := n.rawString()
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, n.convErr("float")
		}
		return v, nil
	}
	return 0, n.convErr("float")
}

// AsString formats numbers in their shortest form. Bytes are returned as-is.
func (n *Node) AsString() (string, error) {
	if n.category == Null {
		return "", nil
	}
	if n.category != Scalar {
		return "", n.scalarErr("string")
	}
	return n.rawString()
}

func (n *Node) AsBytes() ([]byte, error) {
	if n.category != Scalar {
		return nil, n.scalarErr("bytes")
	}
	if n.kind == KindBytes {
		return n.raw, nil
	}
	s, err := n.rawString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Base64 returns the value as base64 text, used when dumping binary scalars.
func (n *Node) Base64() (string, error) {
	b, err := n.AsBytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (n *Node) rawString() (string, error) {
	switch n.kind {
	case KindBool:
		return strconv.FormatBool(n.b), nil
	case KindInt:
		return strconv.FormatInt(n.i, 10), nil
	case KindUint:
		return strconv.FormatUint(n.u, 10), nil
	case KindFloat:
		return strconv.FormatFloat(n.f, 'g', -1, 64), nil
	case KindString:
		return n.s, nil
	case KindBytes:
		return string(n.raw), nil
	}
	return "", nil
}

// --------------------------------------------------------------------------
// Generic helpers
// --------------------------------------------------------------------------

// Number is every Go integer and float type.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Set stores a number in a Scalar node keeping its signedness.
func Set[T Number](n *Node, v T) error {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Float32, reflect.Float64:
		return n.SetFloat(float64(v))
	}
	if v < 0 {
		return n.SetInt(int64(v))
	}
	var zero T
	if zero-1 < 0 { // signed
		return n.SetInt(int64(v))
	}
	return n.SetUint(uint64(v))
}

// Get reads a number from a Scalar node, failing with ErrConversion when the
// value does not fit into T.
func Get[T Number](n *Node) (T, error) {
	var zero T
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Float32:
		f, err := n.AsFloat()
		if err != nil {
			return zero, err
		}
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return zero, n.convErr("float32")
		}
		return T(f), nil
	case reflect.Float64:
		f, err := n.AsFloat()
		return T(f), err
	}
	if zero-1 < 0 {
		v, err := n.AsInt()
		if err != nil {
			return zero, err
		}
		if int64(T(v)) != v {
			return zero, n.convErr(fmt.Sprintf("%T", zero))
		}
		return T(v), nil
	}
	v, err := n.AsUint()
	if err != nil {
		return zero, err
	}
	if uint64(T(v)) != v {
		return zero, n.convErr(fmt.Sprintf("%T", zero))
	}
	return T(v), nil
}
