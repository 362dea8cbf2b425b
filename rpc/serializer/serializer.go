package serializer

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/ValentinKolb/binrpc/lib/tree"
)

// Serializer encodes frames for one direction of one connection. It owns the
// encoder dictionary, so every frame it produces must reach the peer in the
// order it was produced.
type Serializer struct {
	opts Options
	dict *encoderDict
	buf  []byte
}

// NewSerializer creates a serializer with an empty dictionary.
func NewSerializer(opts Options) *Serializer {
	return &Serializer{
		opts: opts.normalize(),
		dict: newEncoderDict(),
	}
}

// DictionarySize returns the number of codes assigned so far.
func (s *Serializer) DictionarySize() int {
	return s.dict.size()
}

// --------------------------------------------------------------------------
// Append variants
// --------------------------------------------------------------------------

// AppendRequest appends a request frame. If encoding fails dst is returned
// unchanged and the dictionary is left as it was.
func (s *Serializer) AppendRequest(dst []byte, method string, args ...*tree.Node) ([]byte, error) {
	mark, start := s.dict.mark(), len(dst)
	out, err := s.appendRequest(dst, method, args)
	if err != nil {
		s.dict.rollback(mark)
		return dst[:start], err
	}
	return out, nil
}

func (s *Serializer) appendRequest(buf []byte, method string, args []*tree.Node) ([]byte, error) {
	buf = append(buf, FrameRequest)
	buf, err := s.dict.appendRef(buf, method)
	if err != nil {
		return buf, err
	}
	for _, a := range args {
		if buf, err = s.appendNode(buf, a, a != nil && a.Name() != "", 1); err != nil {
			return buf, err
		}
	}
	return append(buf, endMarker), nil
}

// AppendReply appends a reply frame carrying n.
func (s *Serializer) AppendReply(dst []byte, n *tree.Node) ([]byte, error) {
	mark, start := s.dict.mark(), len(dst)
	out, err := s.appendNode(append(dst, FrameReply), n, n != nil && n.Name() != "", 1)
	if err != nil {
		s.dict.rollback(mark)
		return dst[:start], err
	}
	return out, nil
}

// AppendFault appends a fault frame. Messages longer than the string limit
// are truncated.
func (s *Serializer) AppendFault(dst []byte, code int32, msg string) []byte {
	if len(msg) > s.opts.MaxStringLength {
		msg = msg[:s.opts.MaxStringLength]
	}
	dst = append(dst, FrameFault)
	dst = binary.BigEndian.AppendUint32(dst, uint32(code))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(msg)))
	return append(dst, msg...)
}

// AppendReset appends a dictionary reset frame and clears the own dictionary.
func (s *Serializer) AppendReset(dst []byte) []byte {
	s.dict.reset()
	return append(dst, FrameReset)
}

// --------------------------------------------------------------------------
// Write variants
// --------------------------------------------------------------------------

func (s *Serializer) flush(w io.Writer) error {
	_, err := w.Write(s.buf)
	s.buf = s.buf[:0]
	return err
}

// WriteRequest encodes a request frame and writes it with a single Write.
func (s *Serializer) WriteRequest(w io.Writer, method string, args ...*tree.Node) (err error) {
	if s.buf, err = s.AppendRequest(s.buf[:0], method, args...); err != nil {
		return err
	}
	return s.flush(w)
}

func (s *Serializer) WriteReply(w io.Writer, n *tree.Node) (err error) {
	if s.buf, err = s.AppendReply(s.buf[:0], n); err != nil {
		return err
	}
	return s.flush(w)
}

func (s *Serializer) WriteFault(w io.Writer, code int32, msg string) error {
	s.buf = s.AppendFault(s.buf[:0], code, msg)
	return s.flush(w)
}

func (s *Serializer) WriteReset(w io.Writer) error {
	s.buf = s.AppendReset(s.buf[:0])
	return s.flush(w)
}

// --------------------------------------------------------------------------
// Nodes
// --------------------------------------------------------------------------

func (s *Serializer) appendNode(buf []byte, n *tree.Node, named bool, depth int) ([]byte, error) {
	if n == nil {
		n = tree.New()
	}
	if depth > s.opts.MaxDepth {
		return buf, protocolErrorf("tree exceeds max depth %d", s.opts.MaxDepth)
	}

	var tag byte
	switch n.Category() {
	case tree.Null:
		tag = typeNull
	case tree.Array:
		tag = typeArray
	case tree.Object:
		tag = typeObject
	case tree.Scalar:
		tag = scalarType(n.Kind())
	}
	if named {
		tag |= flagName
	}
	if n.TypeName() != "" {
		tag |= flagTypeName
	}
	buf = append(buf, tag)

	var err error
	if named {
		if buf, err = s.dict.appendRef(buf, n.Name()); err != nil {
			return buf, err
		}
	}
	if n.TypeName() != "" {
		if buf, err = s.dict.appendRef(buf, n.TypeName()); err != nil {
			return buf, err
		}
	}

	switch tag & typeMask {
	case typeBool:
		v, _ := n.AsBool()
		if v {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case typeInt:
		v, _ := n.AsInt()
		buf = binary.BigEndian.AppendUint64(buf, uint64(v))
	case typeUint:
		v, _ := n.AsUint()
		buf = binary.BigEndian.AppendUint64(buf, v)
	case typeFloat:
		v, _ := n.AsFloat()
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	case typeString, typeBytes:
		v, _ := n.AsBytes()
		if len(v) > s.opts.MaxStringLength {
			return buf, protocolErrorf("scalar of %d bytes exceeds limit %d", len(v), s.opts.MaxStringLength)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	case typeArray, typeObject:
		if uint64(n.Len()) > math.MaxUint32 {
			return buf, protocolErrorf("container with %d children", n.Len())
		}
		object := n.Category() == tree.Object
		buf = binary.BigEndian.AppendUint32(buf, uint32(n.Len()))
		for _, c := range n.All() {
			if buf, err = s.appendNode(buf, c, object, depth+1); err != nil {
				return buf, err
			}
		}
	}
	return buf, nil
}

func scalarType(k tree.Kind) byte {
	switch k {
	case tree.KindBool:
		return typeBool
	case tree.KindInt:
		return typeInt
	case tree.KindUint:
		return typeUint
	case tree.KindFloat:
		return typeFloat
	case tree.KindString:
		return typeString
	case tree.KindBytes:
		return typeBytes
	default:
		return typeNull
	}
}
