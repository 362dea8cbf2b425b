package serializer

import "encoding/binary"

// --------------------------------------------------------------------------
// Encoder dictionary
// --------------------------------------------------------------------------

// encoderDict maps strings to the codes already announced to the peer.
type encoderDict struct {
	codes map[string]uint16
	order []string
}

func newEncoderDict() *encoderDict {
	return &encoderDict{codes: make(map[string]uint16)}
}

// appendRef writes a reference to s, assigning a code on first use.
func (d *encoderDict) appendRef(buf []byte, s string) ([]byte, error) {
	if code, ok := d.codes[s]; ok {
		return binary.BigEndian.AppendUint16(buf, refBit|code), nil
	}
	if len(s) > MaxLiteralLength {
		return buf, protocolErrorf("dictionary literal of %d bytes exceeds %d", len(s), MaxLiteralLength)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	buf = append(buf, s...)
	if len(d.order) < MaxDictionarySize {
		d.codes[s] = uint16(len(d.order))
		d.order = append(d.order, s)
	}
	return buf, nil
}

func (d *encoderDict) mark() int { return len(d.order) }

// rollback forgets every code assigned after mark. Used when a frame could not
// be encoded completely and is never sent.
func (d *encoderDict) rollback(mark int) {
	for _, s := range d.order[mark:] {
		delete(d.codes, s)
	}
	d.order = d.order[:mark]
}

func (d *encoderDict) reset() {
	clear(d.codes)
	d.order = d.order[:0]
}

func (d *encoderDict) size() int { return len(d.order) }

// --------------------------------------------------------------------------
// Decoder dictionary
// --------------------------------------------------------------------------

// decoderDict mirrors the encoder dictionary of the peer.
type decoderDict struct {
	entries []string
}

func (d *decoderDict) lookup(code uint16) (string, bool) {
	if int(code) >= len(d.entries) {
		return "", false
	}
	return d.entries[code], true
}

func (d *decoderDict) add(s string) {
	if len(d.entries) < MaxDictionarySize {
		d.entries = append(d.entries, s)
	}
}

func (d *decoderDict) reset() {
	d.entries = d.entries[:0]
}
