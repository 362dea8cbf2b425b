package serializer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/rpc/common"
)

// testTrees creates a set of trees covering every node type
func testTrees() map[string]*tree.Node {
	nested := tree.NewObject().SetTypeName("demo.Person")
	_, _ = nested.AddMember("name", tree.NewString("Ada"))
	_, _ = nested.AddMember("age", tree.NewUint(36))
	tags := tree.NewArray()
	_, _ = tags.AddElement(tree.NewString("math"))
	_, _ = tags.AddElement(tree.NewString("engines").SetTypeName("string"))
	_, _ = tags.AddElement(tree.New())
	_, _ = nested.AddMember("tags", tags)
	_, _ = nested.AddMember("empty", tree.NewObject())
	_, _ = nested.AddMember("blob", tree.NewBytes([]byte{0, 1, 2, 0xFF}))

	deep := tree.NewArray()
	cur := deep
	for i := 0; i < 10; i++ {
		next := tree.NewArray()
		_, _ = cur.AddElement(next)
		cur = next
	}

	holder := tree.NewObject()
	member, _ := holder.AddMember("member", tree.NewInt(1))
	namedRoot := tree.NewObject().SetName("root")
	_, _ = namedRoot.AddMember("inner", tree.NewString("x"))

	return map[string]*tree.Node{
		"NamedScalar": member,
		"NamedObject": namedRoot,
		"Null":        tree.New(),
		"BoolTrue":    tree.NewBool(true),
		"BoolFalse":   tree.NewBool(false),
		"IntNegative": tree.NewInt(math.MinInt64),
		"UintMax":     tree.NewUint(math.MaxUint64),
		"Float":       tree.NewFloat(-1.25e-7),
		"NaN":         tree.NewFloat(math.NaN()),
		"EmptyString": tree.NewString(""),
		"String":      tree.NewString("hello, wörld"),
		"EmptyBytes":  tree.NewBytes([]byte{}),
		"TypedNull":   tree.New().SetTypeName("demo.Nothing"),
		"Object":      nested,
		"Deep":        deep,
	}
}

// decodeReply parses a single reply frame in one call
func decodeReply(t *testing.T, p *Parser, frame []byte) *tree.Node {
	t.Helper()
	var res compose.NodeComposer
	p.ExpectReply(&res)
	n, status, err := p.AdvanceBytes(frame)
	if err != nil {
		t.Fatalf("AdvanceBytes failed: %v", err)
	}
	if status != Done || n != len(frame) {
		t.Fatalf("Expected Done after %d bytes, got %s after %d", len(frame), status, n)
	}
	if p.CallErr() != nil {
		t.Fatalf("Unexpected call error: %v", p.CallErr())
	}
	return res.Node
}

// varHandler accepts every method and collects the raw parameter trees
type varHandler struct {
	sink *compose.VarComposers
}

func (h *varHandler) BeginCall(string) (compose.IComposers, error) {
	h.sink = compose.NewVarComposers()
	return h.sink, nil
}

// TestReplyRoundTrip tests that every tree survives encode and decode unchanged
func TestReplyRoundTrip(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	p := NewParser(DefaultOptions())

	for name, in := range testTrees() {
		t.Run(name, func(t *testing.T) {
			frame, err := s.AppendReply(nil, in)
			if err != nil {
				t.Fatalf("AppendReply failed: %v", err)
			}
			out := decodeReply(t, p, frame)
			if !in.Equal(out) {
				t.Errorf("Tree doesn't match after round trip:\nOriginal: %s\nResult: %s", in, out)
			}
		})
	}
}

// TestRequestRoundTrip tests method and parameter decoding of request frames
func TestRequestRoundTrip(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	p := NewParser(DefaultOptions())
	h := &varHandler{}

	trees := testTrees()
	args := []*tree.Node{trees["Object"], trees["IntNegative"], trees["Null"], trees["NamedScalar"], trees["String"]}

	for i := 0; i < 3; i++ {
		frame, err := s.AppendRequest(nil, "demo.store", args...)
		if err != nil {
			t.Fatalf("AppendRequest failed: %v", err)
		}
		p.ExpectRequest(h)
		if _, status, err := p.AdvanceBytes(frame); status != Done || err != nil {
			t.Fatalf("Expected Done, got %s (%v)", status, err)
		}
		if p.Method() != "demo.store" {
			t.Errorf("Expected method demo.store, got %q", p.Method())
		}
		if len(h.sink.Nodes) != len(args) {
			t.Fatalf("Expected %d parameters, got %d", len(args), len(h.sink.Nodes))
		}
		for j := range args {
			if !args[j].Equal(h.sink.Nodes[j]) {
				t.Errorf("Parameter %d doesn't match:\n%s\n%s", j, args[j], h.sink.Nodes[j])
			}
		}
	}
}

// TestDictionaryCompression verifies that repeated names are sent as back references
func TestDictionaryCompression(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	arg := testTrees()["Object"]

	first, err := s.AppendRequest(nil, "demo.store", arg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.AppendRequest(nil, "demo.store", arg)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) >= len(first) {
		t.Errorf("Second frame (%d bytes) should be smaller than the first (%d bytes)", len(second), len(first))
	}
	if bytes.Contains(second, []byte("demo.store")) || bytes.Contains(second, []byte("demo.Person")) {
		t.Errorf("Second frame should not repeat dictionary literals")
	}

	// a decoder that missed the first frame cannot resolve the references
	p := NewParser(DefaultOptions())
	p.ExpectRequest(&varHandler{})
	_, status, err := p.AdvanceBytes(second)
	if status != Failed || !errors.Is(err, ErrProtocol) {
		t.Errorf("Expected ErrProtocol for unknown code, got %s (%v)", status, err)
	}

	// a decoder that saw both frames but reset in between fails the same way
	p = NewParser(DefaultOptions())
	p.ExpectRequest(&varHandler{})
	if _, status, _ := p.AdvanceBytes(first); status != Done {
		t.Fatalf("Expected Done for first frame, got %s", status)
	}
	p.ResetDictionary()
	p.ExpectRequest(&varHandler{})
	if _, _, err := p.AdvanceBytes(second); !errors.Is(err, ErrProtocol) {
		t.Errorf("Expected ErrProtocol after ResetDictionary, got %v", err)
	}
}

// TestResetFrame verifies that a reset frame clears both dictionaries
func TestResetFrame(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	p := NewParser(DefaultOptions())
	h := &varHandler{}

	var stream []byte
	stream, _ = s.AppendRequest(stream, "echo", tree.NewString("a"))
	stream = s.AppendReset(stream)
	if s.DictionarySize() != 0 {
		t.Errorf("Serializer dictionary should be empty after reset, has %d codes", s.DictionarySize())
	}
	stream, _ = s.AppendRequest(stream, "echo", tree.NewString("b"))

	for i, want := range []string{"a", "b"} {
		p.ExpectRequest(h)
		n, status, err := p.AdvanceBytes(stream)
		if err != nil || status != Done {
			t.Fatalf("Frame %d: expected Done, got %s (%v)", i, status, err)
		}
		stream = stream[n:]
		if got, _ := h.sink.Nodes[0].AsString(); got != want {
			t.Errorf("Frame %d: expected %q, got %q", i, want, got)
		}
	}
	if len(stream) != 0 {
		t.Errorf("Expected the whole stream to be consumed, %d bytes left", len(stream))
	}
}

// TestIncrementalEquivalence feeds frames byte by byte and in random chunks
func TestIncrementalEquivalence(t *testing.T) {
	trees := testTrees()
	rng := rand.New(rand.NewSource(42))

	for name, in := range trees {
		t.Run(name, func(t *testing.T) {
			frame, err := NewSerializer(DefaultOptions()).AppendReply(nil, in)
			if err != nil {
				t.Fatal(err)
			}

			// byte by byte
			p := NewParser(DefaultOptions())
			var res compose.NodeComposer
			p.ExpectReply(&res)
			for i, b := range frame {
				status := p.Advance(b)
				want := NeedMore
				if i == len(frame)-1 {
					want = Done
				}
				if status != want {
					t.Fatalf("Byte %d: expected %s, got %s (%v)", i, want, status, p.Err())
				}
			}
			if !in.Equal(res.Node) {
				t.Errorf("Byte-wise result differs:\n%s\n%s", in, res.Node)
			}
			if status := p.Advance(0x00); status != DoneByteNotConsumed {
				t.Errorf("Expected DoneByteNotConsumed, got %s", status)
			}

			// random chunks
			p = NewParser(DefaultOptions())
			res = compose.NodeComposer{}
			p.ExpectReply(&res)
			rest := frame
			for len(rest) > 0 {
				k := 1 + rng.Intn(len(rest))
				n, _, err := p.AdvanceBytes(rest[:k])
				if err != nil {
					t.Fatal(err)
				}
				if n != k {
					t.Fatalf("Expected %d bytes consumed, got %d", k, n)
				}
				rest = rest[k:]
			}
			if !in.Equal(res.Node) {
				t.Errorf("Chunked result differs:\n%s\n%s", in, res.Node)
			}
		})
	}
}

// TestMalformedInput checks that invalid frames fail with ErrProtocol and stay failed
func TestMalformedInput(t *testing.T) {
	small := Options{MaxDepth: 3, MaxStringLength: 8}

	testCases := []struct {
		name  string
		reply bool
		input []byte
	}{
		{"unknown frame byte", false, []byte{0x42}},
		{"reply on request parser", false, []byte{FrameReply, typeNull}},
		{"request on reply parser", true, []byte{FrameRequest, 0x00, 0x00, endMarker}},
		{"invalid tag flags", true, []byte{FrameReply, 0x40 | typeInt}},
		{"invalid type", true, []byte{FrameReply, 0x09}},
		{"unknown dictionary code", false, []byte{FrameRequest, 0x80, 0x05}},
		{"literal too long", false, []byte{FrameRequest, 0x00, 0x09}},
		{"string too long", true, []byte{FrameReply, typeString, 0, 0, 0, 9}},
		{"fault message too long", true, []byte{FrameFault, 0, 0, 0, 1, 0, 0, 0, 9}},
		{"object member without name", true, []byte{FrameReply, typeObject, 0, 0, 0, 1, typeNull}},
		{"nesting too deep", true, []byte{
			FrameReply,
			typeArray, 0, 0, 0, 1,
			typeArray, 0, 0, 0, 1,
			typeArray, 0, 0, 0, 1,
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewParser(small)
			if tc.reply {
				p.ExpectReply(nil)
			} else {
				p.ExpectRequest(&varHandler{})
			}
			_, status, err := p.AdvanceBytes(tc.input)
			if status != Failed || !errors.Is(err, ErrProtocol) {
				t.Fatalf("Expected Failed with ErrProtocol, got %s (%v)", status, err)
			}
			n, status, err2 := p.AdvanceBytes([]byte{FrameReset})
			if n != 0 || status != Failed || err2 != err {
				t.Errorf("Failed parser should stay failed, got %d %s %v", n, status, err2)
			}
			p.ExpectRequest(&varHandler{})
			if p.Err() == nil {
				t.Errorf("ExpectRequest should not revive a failed parser")
			}
		})
	}
}

// TestCallErrors tests errors that are reported per call without breaking the stream
func TestCallErrors(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	p := NewParser(DefaultOptions())

	var a, b int
	twoInts := CallHandlerFunc(func(method string) (compose.IComposers, error) {
		if method != "add" {
			return nil, fmt.Errorf("%q: %w", method, common.ErrMethodNotFound)
		}
		return compose.NewComposers(compose.Composer(compose.Int, &a), compose.Composer(compose.Int, &b)), nil
	})

	testCases := []struct {
		name   string
		method string
		args   []*tree.Node
		check  func(err error) bool
	}{
		{"ok", "add", []*tree.Node{tree.NewInt(1), tree.NewInt(2)}, func(err error) bool { return err == nil }},
		{"unknown method", "sub", []*tree.Node{tree.NewInt(1), tree.NewArray()}, func(err error) bool {
			return errors.Is(err, common.ErrMethodNotFound)
		}},
		{"too many", "add", []*tree.Node{tree.NewInt(1), tree.NewInt(2), tree.NewInt(3)}, func(err error) bool {
			var re *common.RemoteError
			return errors.As(err, &re) && re.Code == common.FaultArgumentCount
		}},
		{"too few", "add", []*tree.Node{tree.NewInt(1)}, func(err error) bool {
			var re *common.RemoteError
			return errors.As(err, &re) && re.Code == common.FaultArgumentCount
		}},
		{"conversion", "add", []*tree.Node{tree.NewString("x"), tree.NewInt(2)}, func(err error) bool {
			return errors.Is(err, tree.ErrConversion)
		}},
	}

	// all frames go through one parser to prove the stream stays in sync
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := s.AppendRequest(nil, tc.method, tc.args...)
			if err != nil {
				t.Fatal(err)
			}
			p.ExpectRequest(twoInts)
			n, status, err := p.AdvanceBytes(frame)
			if err != nil || status != Done || n != len(frame) {
				t.Fatalf("Expected Done after %d bytes, got %s after %d (%v)", len(frame), status, n, err)
			}
			if !tc.check(p.CallErr()) {
				t.Errorf("Unexpected call error: %v", p.CallErr())
			}
		})
	}
	if a != 1 || b != 2 {
		t.Errorf("Expected a=1 b=2, got %d %d", a, b)
	}
}

// TestFaultFrame tests fault decoding on the reply side
func TestFaultFrame(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	p := NewParser(DefaultOptions())

	frame := s.AppendFault(nil, int32(common.FaultMethodNotFound), "no such method: nope")
	p.ExpectReply(nil)
	if _, status, err := p.AdvanceBytes(frame); status != Done || err != nil {
		t.Fatalf("Expected Done, got %s (%v)", status, err)
	}
	var re *common.RemoteError
	if !errors.As(p.CallErr(), &re) {
		t.Fatalf("Expected RemoteError, got %v", p.CallErr())
	}
	if re.Code != common.FaultMethodNotFound || re.Message != "no such method: nope" {
		t.Errorf("Unexpected fault %+v", re)
	}
	if !errors.Is(p.CallErr(), common.ErrMethodNotFound) {
		t.Errorf("Fault should match ErrMethodNotFound")
	}
}

// TestDictionaryLimit fills the dictionary and checks that both sides stop assigning codes
func TestDictionaryLimit(t *testing.T) {
	s := NewSerializer(DefaultOptions())
	p := NewParser(DefaultOptions())
	h := &varHandler{}

	var buf []byte
	for i := 0; i < MaxDictionarySize+10; i++ {
		method := fmt.Sprintf("m%d", i)
		var err error
		buf, err = s.AppendRequest(buf[:0], method)
		if err != nil {
			t.Fatal(err)
		}
		p.ExpectRequest(h)
		if _, status, err := p.AdvanceBytes(buf); status != Done || err != nil {
			t.Fatalf("Frame %d: expected Done, got %s (%v)", i, status, err)
		}
		if p.Method() != method {
			t.Fatalf("Frame %d: expected %q, got %q", i, method, p.Method())
		}
	}
	if s.DictionarySize() != MaxDictionarySize {
		t.Errorf("Expected %d codes, got %d", MaxDictionarySize, s.DictionarySize())
	}

	// a name seen after the limit is still sent as a literal
	buf, _ = s.AppendRequest(buf[:0], fmt.Sprintf("m%d", MaxDictionarySize+1))
	if !bytes.Contains(buf, []byte(fmt.Sprintf("m%d", MaxDictionarySize+1))) {
		t.Errorf("Expected literal after dictionary limit")
	}
}

// TestEncodeLimits tests that oversized trees are rejected without touching the dictionary
func TestEncodeLimits(t *testing.T) {
	s := NewSerializer(Options{MaxDepth: 2, MaxStringLength: 4})

	obj := tree.NewObject()
	_, _ = obj.AddMember("fresh-name", tree.NewString("too long"))
	if _, err := s.AppendReply(nil, obj); !errors.Is(err, ErrProtocol) {
		t.Errorf("Expected ErrProtocol for long string, got %v", err)
	}
	if s.DictionarySize() != 0 {
		t.Errorf("Failed frame should not assign codes, dictionary has %d", s.DictionarySize())
	}

	deep := tree.NewArray()
	inner := tree.NewArray()
	_, _ = inner.AddElement(tree.NewArray())
	_, _ = deep.AddElement(inner)
	if _, err := s.AppendReply(nil, deep); !errors.Is(err, ErrProtocol) {
		t.Errorf("Expected ErrProtocol for deep tree, got %v", err)
	}
}

// errWriter fails every write
type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

// TestWriteVariants checks that the io.Writer variants emit the same bytes as the append variants
func TestWriteVariants(t *testing.T) {
	obj := testTrees()["Object"]

	testCases := []struct {
		name   string
		write  func(s *Serializer, w *bytes.Buffer) error
		append func(s *Serializer) ([]byte, error)
	}{
		{
			name:   "Request",
			write:  func(s *Serializer, w *bytes.Buffer) error { return s.WriteRequest(w, "demo.store", obj, tree.NewInt(3)) },
			append: func(s *Serializer) ([]byte, error) { return s.AppendRequest(nil, "demo.store", obj, tree.NewInt(3)) },
		},
		{
			name:   "Reply",
			write:  func(s *Serializer, w *bytes.Buffer) error { return s.WriteReply(w, obj) },
			append: func(s *Serializer) ([]byte, error) { return s.AppendReply(nil, obj) },
		},
		{
			name:   "Fault",
			write:  func(s *Serializer, w *bytes.Buffer) error { return s.WriteFault(w, 42, "custom failure") },
			append: func(s *Serializer) ([]byte, error) { return s.AppendFault(nil, 42, "custom failure"), nil },
		},
		{
			name:   "Reset",
			write:  func(s *Serializer, w *bytes.Buffer) error { return s.WriteReset(w) },
			append: func(s *Serializer) ([]byte, error) { return s.AppendReset(nil), nil },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ws, as := NewSerializer(DefaultOptions()), NewSerializer(DefaultOptions())
			var w bytes.Buffer
			// twice, the second frame uses back references
			for i := 0; i < 2; i++ {
				w.Reset()
				if err := tc.write(ws, &w); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				want, err := tc.append(as)
				if err != nil {
					t.Fatalf("Append failed: %v", err)
				}
				if !bytes.Equal(w.Bytes(), want) {
					t.Errorf("Frame %d differs:\nwrite:  %x\nappend: %x", i, w.Bytes(), want)
				}
			}
		})
	}

	s := NewSerializer(Options{MaxDepth: 4, MaxStringLength: 4})
	var w bytes.Buffer
	if err := s.WriteReply(&w, tree.NewString("too long")); !errors.Is(err, ErrProtocol) {
		t.Errorf("Expected ErrProtocol, got %v", err)
	}
	if w.Len() != 0 {
		t.Errorf("Expected nothing written for a rejected tree, got %d bytes", w.Len())
	}
	if err := s.WriteRequest(errWriter{}, "m"); err == nil {
		t.Errorf("Expected the writer error to be returned")
	}
}
