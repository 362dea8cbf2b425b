package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/lib/tree"
	"github.com/ValentinKolb/binrpc/rpc/common"
)

// Status is the result of feeding bytes to a Parser.
type Status uint8

const (
	// NeedMore means the frame is not complete yet.
	NeedMore Status = iota
	// Done means the frame is complete. The last byte fed was consumed.
	Done
	// DoneByteNotConsumed means the parser already held a complete frame
	// and did not consume the byte it was given.
	DoneByteNotConsumed
	// Failed means the input was malformed. Err returns the reason.
	Failed
)

func (s Status) String() string {
	switch s {
	case NeedMore:
		return "NeedMore"
	case Done:
		return "Done"
	case DoneByteNotConsumed:
		return "DoneByteNotConsumed"
	default:
		return "Failed"
	}
}

// ICallHandler resolves the method of a request frame into the sink for its
// parameters. It is called as soon as the method name has been parsed, before
// any parameter bytes are consumed.
type ICallHandler interface {
	BeginCall(method string) (compose.IComposers, error)
}

// CallHandlerFunc adapts a function to ICallHandler.
type CallHandlerFunc func(method string) (compose.IComposers, error)

func (f CallHandlerFunc) BeginCall(method string) (compose.IComposers, error) {
	return f(method)
}

// --------------------------------------------------------------------------
// Parser state
// --------------------------------------------------------------------------

type parseState uint8

const (
	stFrame     parseState = iota // frame kind byte
	stRef                         // 2 byte dictionary reference
	stRefLit                      // literal bytes of a dictionary reference
	stParamOrEnd                  // tag byte or end marker of a request
	stTag                         // tag byte of a nested or reply node
	stFixed                       // 1 or 8 byte scalar payload
	stLen                         // u32 length of string or bytes
	stData                        // string or bytes payload
	stCount                       // u32 child count
	stFaultCode                   // int32 fault code
	stFaultLen                    // u32 fault message length
	stFaultMsg                    // fault message
	stDone
	stFailed
)

type refTarget uint8

const (
	refMethod refTarget = iota
	refName
	refTypeName
)

type parseMode uint8

const (
	modeRequest parseMode = iota
	modeReply
)

// level is an open container on the parse stack.
type level struct {
	node      *tree.Node
	name      string
	remaining uint32
}

// Parser decodes frames pushed into it byte by byte or in chunks of any size.
// It never blocks and never reads ahead: the caller owns the bytes and learns
// how many were consumed. The decoder dictionary survives between frames and
// is only cleared by a reset frame or ResetDictionary.
type Parser struct {
	opts Options
	mode parseMode
	dict decoderDict

	state  parseState
	need   int
	acc    []byte
	target refTarget
	err    error

	// node under construction
	tag      byte
	name     string
	typeName string
	stack    []level

	// request frames
	handler   ICallHandler
	method    string
	composers compose.IComposers
	params    int

	// reply frames
	result compose.IComposer

	callErr error
	kind    byte
	started bool
}

// NewParser creates a parser with an empty dictionary. Call ExpectRequest or
// ExpectReply before feeding the first frame.
func NewParser(opts Options) *Parser {
	p := &Parser{opts: opts.normalize()}
	p.next(stFrame, 1)
	return p
}

// ExpectRequest prepares the parser for the next request frame.
func (p *Parser) ExpectRequest(h ICallHandler) {
	p.mode = modeRequest
	p.handler = h
	p.result = nil
	p.clearFrame()
}

// ExpectReply prepares the parser for the next reply or fault frame. The
// reply node is fixed up into result, which may be nil to discard it.
func (p *Parser) ExpectReply(result compose.IComposer) {
	p.mode = modeReply
	p.handler = nil
	p.result = result
	p.clearFrame()
}

func (p *Parser) clearFrame() {
	if p.state == stFailed {
		return
	}
	p.method, p.composers, p.params = "", nil, 0
	p.callErr, p.kind, p.started = nil, 0, false
	p.name, p.typeName, p.stack = "", "", p.stack[:0]
	p.next(stFrame, 1)
}

// ResetDictionary clears the decoder dictionary.
func (p *Parser) ResetDictionary() {
	p.dict.reset()
}

// Err returns the protocol error that made the parser fail.
func (p *Parser) Err() error { return p.err }

// Method returns the method name of the last request frame.
func (p *Parser) Method() string { return p.method }

// Composers returns the parameter sink the handler returned for the last request.
func (p *Parser) Composers() compose.IComposers { return p.composers }

// CallErr returns the call level error of the last frame: a fault frame, an
// unknown method, a wrong number of parameters or a failed conversion. Unlike
// Err it does not break the stream.
func (p *Parser) CallErr() error { return p.callErr }

// Kind returns the kind byte of the current frame, or 0 before it is known.
func (p *Parser) Kind() byte { return p.kind }

// InFrame reports whether bytes of an unfinished frame have been consumed.
func (p *Parser) InFrame() bool { return p.started && p.state != stDone }

// --------------------------------------------------------------------------
// Feeding
// --------------------------------------------------------------------------

// Advance feeds a single byte.
func (p *Parser) Advance(b byte) Status {
	_, status, _ := p.AdvanceBytes([]byte{b})
	return status
}

// AdvanceBytes feeds buf and returns how many bytes were consumed. Bytes after
// the end of a frame are left unconsumed. Once failed, the parser consumes
// nothing and keeps returning the same error.
func (p *Parser) AdvanceBytes(buf []byte) (int, Status, error) {
	switch p.state {
	case stFailed:
		return 0, Failed, p.err
	case stDone:
		if len(buf) > 0 {
			return 0, DoneByteNotConsumed, nil
		}
		return 0, Done, nil
	}

	n := 0
	for p.state != stDone && p.state != stFailed {
		if len(p.acc) < p.need {
			if n == len(buf) {
				break
			}
			k := min(p.need-len(p.acc), len(buf)-n)
			p.acc = append(p.acc, buf[n:n+k]...)
			n += k
			if len(p.acc) < p.need {
				break
			}
		}
		p.step()
	}

	switch p.state {
	case stFailed:
		return n, Failed, p.err
	case stDone:
		return n, Done, nil
	default:
		return n, NeedMore, nil
	}
}

func (p *Parser) next(s parseState, need int) {
	p.state, p.need, p.acc = s, need, p.acc[:0]
}

func (p *Parser) fail(err error) {
	p.err = err
	p.state = stFailed
	p.need = 0
	Logger.Debugf("parser failed: %v", err)
}

func (p *Parser) done() {
	p.state = stDone
	p.need = 0
}

// step handles the completed chunk in p.acc.
func (p *Parser) step() {
	data := p.acc
	switch p.state {
	case stFrame:
		p.startFrame(data[0])

	case stRef:
		v := binary.BigEndian.Uint16(data)
		if v&refBit != 0 {
			s, ok := p.dict.lookup(v &^ refBit)
			if !ok {
				p.fail(protocolErrorf("unknown dictionary code %d", v&^refBit))
				return
			}
			p.resolved(s)
			return
		}
		if int(v) > p.opts.MaxStringLength {
			p.fail(protocolErrorf("literal of %d bytes exceeds limit %d", v, p.opts.MaxStringLength))
			return
		}
		p.next(stRefLit, int(v))

	case stRefLit:
		s := string(data)
		p.dict.add(s)
		p.resolved(s)

	case stParamOrEnd:
		if data[0] == endMarker {
			p.endRequest()
			return
		}
		p.startNode(data[0])

	case stTag:
		p.startNode(data[0])

	case stFixed:
		p.fixedScalar(data)

	case stLen:
		l := binary.BigEndian.Uint32(data)
		if uint64(l) > uint64(p.opts.MaxStringLength) {
			p.fail(protocolErrorf("scalar of %d bytes exceeds limit %d", l, p.opts.MaxStringLength))
			return
		}
		p.next(stData, int(l))

	case stData:
		if p.tag&typeMask == typeString {
			p.finishNode(tree.NewString(string(data)))
		} else {
			p.finishNode(tree.NewBytes(bytes.Clone(data)))
		}

	case stCount:
		count := binary.BigEndian.Uint32(data)
		var n *tree.Node
		if p.tag&typeMask == typeArray {
			n = tree.NewArray()
		} else {
			n = tree.NewObject()
		}
		n.SetTypeName(p.typeName)
		if count == 0 {
			p.finishNode(n)
			return
		}
		if len(p.stack)+1 >= p.opts.MaxDepth {
			p.fail(protocolErrorf("nesting exceeds max depth %d", p.opts.MaxDepth))
			return
		}
		p.stack = append(p.stack, level{node: n, name: p.name, remaining: count})
		p.next(stTag, 1)

	case stFaultCode:
		p.callErr = common.NewRemoteError(common.FaultCode(int32(binary.BigEndian.Uint32(data))), "")
		p.next(stFaultLen, 4)

	case stFaultLen:
		l := binary.BigEndian.Uint32(data)
		if uint64(l) > uint64(p.opts.MaxStringLength) {
			p.fail(protocolErrorf("fault message of %d bytes exceeds limit %d", l, p.opts.MaxStringLength))
			return
		}
		p.next(stFaultMsg, int(l))

	case stFaultMsg:
		if re, ok := p.callErr.(*common.RemoteError); ok {
			re.Message = string(data)
		}
		p.done()
	}
}

func (p *Parser) startFrame(b byte) {
	p.started = true
	switch {
	case b == FrameReset:
		p.dict.reset()
		p.started = false
		p.next(stFrame, 1)
	case b == FrameRequest && p.mode == modeRequest:
		p.kind = b
		p.target = refMethod
		p.next(stRef, 2)
	case b == FrameReply && p.mode == modeReply:
		p.kind = b
		p.next(stTag, 1)
	case b == FrameFault && p.mode == modeReply:
		p.kind = b
		p.next(stFaultCode, 4)
	default:
		p.fail(protocolErrorf("unexpected frame byte 0x%02X", b))
	}
}

// resolved continues after a dictionary reference was read.
func (p *Parser) resolved(s string) {
	switch p.target {
	case refMethod:
		p.method = s
		if p.handler == nil {
			p.callErr = fmt.Errorf("%q: %w", s, common.ErrMethodNotFound)
		} else if cs, err := p.handler.BeginCall(s); err != nil {
			p.callErr = err
		} else {
			p.composers = cs
		}
		p.next(stParamOrEnd, 1)
	case refName:
		p.name = s
		if p.tag&flagTypeName != 0 {
			p.target = refTypeName
			p.next(stRef, 2)
			return
		}
		p.payload()
	case refTypeName:
		p.typeName = s
		p.payload()
	}
}

func (p *Parser) startNode(tag byte) {
	if tag&^(typeMask|flagMask) != 0 || tag&typeMask > typeObject {
		p.fail(protocolErrorf("invalid tag byte 0x%02X", tag))
		return
	}
	p.tag, p.name, p.typeName = tag, "", ""
	switch {
	case tag&flagName != 0:
		p.target = refName
		p.next(stRef, 2)
	case tag&flagTypeName != 0:
		p.target = refTypeName
		p.next(stRef, 2)
	default:
		p.payload()
	}
}

// payload starts reading the value once name and type name are known.
func (p *Parser) payload() {
	switch p.tag & typeMask {
	case typeNull:
		n := tree.New()
		n.SetTypeName(p.typeName)
		p.finishNode(n)
	case typeBool:
		p.next(stFixed, 1)
	case typeInt, typeUint, typeFloat:
		p.next(stFixed, 8)
	case typeString, typeBytes:
		p.next(stLen, 4)
	case typeArray, typeObject:
		p.next(stCount, 4)
	}
}

func (p *Parser) fixedScalar(data []byte) {
	var n *tree.Node
	switch p.tag & typeMask {
	case typeBool:
		n = tree.NewBool(data[0] != 0)
	case typeInt:
		n = tree.NewInt(int64(binary.BigEndian.Uint64(data)))
	case typeUint:
		n = tree.NewUint(binary.BigEndian.Uint64(data))
	case typeFloat:
		n = tree.NewFloat(math.Float64frombits(binary.BigEndian.Uint64(data)))
	}
	p.finishNode(n)
}

// finishNode attaches a completed node to its parent, closing every container
// that becomes complete on the way up.
func (p *Parser) finishNode(n *tree.Node) {
	if n.TypeName() == "" && p.typeName != "" {
		n.SetTypeName(p.typeName)
	}
	name := p.name
	p.name, p.typeName = "", ""

	for len(p.stack) > 0 {
		top := &p.stack[len(p.stack)-1]
		if top.node.Category() == tree.Object {
			if name == "" {
				p.fail(protocolErrorf("object member without name"))
				return
			}
			if _, err := top.node.AddMember(name, n); err != nil {
				p.fail(protocolErrorf("%v", err))
				return
			}
		} else {
			_, _ = top.node.AddElement(n)
		}
		top.remaining--
		if top.remaining > 0 {
			p.next(stTag, 1)
			return
		}
		// container complete, attach it to its own parent
		n, name = top.node, top.name
		p.stack = p.stack[:len(p.stack)-1]
	}
	p.topLevel(n, name)
}

// topLevel handles a completed parameter or reply node.
func (p *Parser) topLevel(n *tree.Node, name string) {
	if name != "" {
		n.SetName(name)
	}
	if p.mode == modeReply {
		if p.result != nil {
			if err := p.result.Fixup(n); err != nil {
				p.callErr = fmt.Errorf("reply: %w", err)
			}
		}
		p.done()
		return
	}

	p.params++
	if p.callErr == nil && p.composers != nil {
		c := p.composers.Get()
		if c == nil {
			p.callErr = common.NewRemoteError(common.FaultArgumentCount,
				fmt.Sprintf("%s: too many parameters (got at least %d)", p.method, p.params))
		} else if err := c.Fixup(n); err != nil {
			p.callErr = fmt.Errorf("%s: parameter %d: %w", p.method, p.params, err)
		}
	}
	p.next(stParamOrEnd, 1)
}

func (p *Parser) endRequest() {
	if p.callErr == nil && p.composers != nil && p.composers.NeedMore() {
		p.callErr = common.NewRemoteError(common.FaultArgumentCount,
			fmt.Sprintf("%s: too few parameters (got %d)", p.method, p.params))
	}
	p.done()
}
