// Package wire implements the Avro binary encoding of primitive values:
// zigzag varints for int and long, little-endian IEEE floats, and
// length-prefixed byte sequences. It knows nothing about schemas; the
// traversal order of primitives is decided by the parsing grammar.
package wire

import (
	"encoding/binary"
	"io"
	"math"
)

// Encoder writes primitive values to an io.Writer.
type Encoder struct {
	w   io.Writer
	buf [10]byte // scratch for varints and floats
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteNull writes nothing: null occupies zero bytes on the wire.
func (e *Encoder) WriteNull() error {
	return nil
}

// WriteBoolean writes one byte, 0 or 1.
func (e *Encoder) WriteBoolean(b bool) error {
	e.buf[0] = 0
	if b {
		e.buf[0] = 1
	}
	_, err := e.w.Write(e.buf[:1])
	return err
}

// WriteInt writes a zigzag-encoded varint.
func (e *Encoder) WriteInt(n int32) error {
	return e.WriteLong(int64(n))
}

// WriteLong writes a zigzag-encoded varint.
func (e *Encoder) WriteLong(n int64) error {
	u := uint64(n<<1) ^ uint64(n>>63)
	i := 0
	for u >= 0x80 {
		e.buf[i] = byte(u) | 0x80
		u >>= 7
		i++
	}
	e.buf[i] = byte(u)
	_, err := e.w.Write(e.buf[:i+1])
	return err
}

// WriteFloat writes 4 little-endian bytes.
func (e *Encoder) WriteFloat(f float32) error {
	binary.LittleEndian.PutUint32(e.buf[:4], math.Float32bits(f))
	_, err := e.w.Write(e.buf[:4])
	return err
}

// WriteDouble writes 8 little-endian bytes.
func (e *Encoder) WriteDouble(f float64) error {
	binary.LittleEndian.PutUint64(e.buf[:8], math.Float64bits(f))
	_, err := e.w.Write(e.buf[:8])
	return err
}

// WriteBytes writes a long length prefix followed by the raw bytes.
func (e *Encoder) WriteBytes(b []byte) error {
	if err := e.WriteLong(int64(len(b))); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}

// WriteString writes a long length prefix followed by the UTF-8 bytes.
func (e *Encoder) WriteString(s string) error {
	if err := e.WriteLong(int64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, s)
	return err
}

// WriteFixed writes the bytes with no length prefix; the length is part of
// the schema.
func (e *Encoder) WriteFixed(b []byte) error {
	_, err := e.w.Write(b)
	return err
}
