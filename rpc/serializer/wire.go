package serializer

import (
	"errors"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the logger of the wire codec
var Logger = logger.GetLogger("serializer")

// ErrProtocol is returned for every malformed input. It is always wrapped with
// a description of what was wrong.
var ErrProtocol = errors.New("protocol error")

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Frame and node tags
// --------------------------------------------------------------------------

// Frame kinds, always the first byte of a frame.
const (
	FrameRequest byte = 0xC0
	FrameReply   byte = 0xC1
	FrameFault   byte = 0xC2
	FrameReset   byte = 0xC3

	// endMarker terminates the parameter list of a request frame
	endMarker byte = 0xFF
)

// Node types, low nibble of the tag byte.
const (
	typeNull   byte = 0
	typeBool   byte = 1
	typeInt    byte = 2
	typeUint   byte = 3
	typeFloat  byte = 4
	typeString byte = 5
	typeBytes  byte = 6
	typeArray  byte = 7
	typeObject byte = 8

	flagName     byte = 0x10
	flagTypeName byte = 0x20

	typeMask byte = 0x0F
	flagMask      = flagName | flagTypeName
)

// Dictionary references are two bytes. With the high bit set the low 15 bits
// are a back reference, otherwise the value is the length of a literal that
// follows and is assigned the next free code.
const (
	refBit = 0x8000

	// MaxDictionarySize is the number of codes a dictionary can hand out.
	// Literals seen after that are sent in full every time.
	MaxDictionarySize = 0x8000

	// MaxLiteralLength is the longest string that can go through a dictionary
	MaxLiteralLength = 0x7FFF
)

// --------------------------------------------------------------------------
// Limits
// --------------------------------------------------------------------------

// Options bound the resources a single frame may consume.
type Options struct {
	// MaxDepth is the deepest nesting of arrays and objects, counting the
	// top-level node as 1.
	MaxDepth int
	// MaxStringLength bounds strings, byte blobs and fault messages.
	MaxStringLength int
}

// DefaultOptions returns MaxDepth 64 and MaxStringLength 16 MiB.
func DefaultOptions() Options {
	return Options{MaxDepth: 64, MaxStringLength: 16 << 20}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxStringLength <= 0 {
		o.MaxStringLength = d.MaxStringLength
	}
	return o
}
