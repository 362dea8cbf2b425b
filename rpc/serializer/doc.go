// Package serializer implements the binary wire codec of binrpc. It turns
// lib/tree nodes into frames and back, and it is the only package that knows
// the byte layout.
//
// The package focuses on:
//   - Compact frames: fixed width big-endian scalars, no varints
//   - A per-direction string dictionary for names, type names and methods
//   - A push parser that can be fed any number of bytes at a time
//
// Frames:
//
//	0xC0 request  method ref, parameter nodes..., 0xFF
//	0xC1 reply    one node
//	0xC2 fault    int32 code, u32 length, message
//	0xC3 reset    clears the dictionary of the receiving side
//
// A node starts with a tag byte. The low nibble is the type (Null 0, Bool 1,
// Int 2, Uint 3, Float 4, String 5, Bytes 6, Array 7, Object 8), bit 0x10
// announces a name reference, bit 0x20 a type name reference. Strings and
// bytes carry a u32 length, arrays and objects a u32 child count.
//
// Dictionary references are two bytes: with the high bit set they refer to a
// code assigned earlier, otherwise they give the length of a literal that
// follows and gets the next code. Both sides stop assigning after
// MaxDictionarySize codes.
//
// Key Components:
//
//   - Serializer: encodes frames and owns the encoder dictionary. Frames must
//     be sent in the order they were encoded.
//
//   - Parser: decodes frames. Advance and AdvanceBytes never block and report
//     how far they got. Nesting is tracked on an explicit stack bounded by
//     Options.MaxDepth. Malformed input fails the parser with ErrProtocol;
//     per-call problems (unknown method, parameter count, conversion) are
//     reported through CallErr and leave the stream intact.
//
// Thread Safety:
//
//	Serializer and Parser are not safe for concurrent use. Each connection
//	owns one of each per direction.
package serializer
