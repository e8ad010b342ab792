package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxAllocation caps single length-prefixed reads so a corrupt length
// cannot exhaust memory.
const maxAllocation = 1 << 30

// Decoder reads primitive values from an io.Reader.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadNull reads nothing: null occupies zero bytes on the wire.
func (d *Decoder) ReadNull() error {
	return nil
}

// ReadBoolean reads one byte that must be 0 or 1.
func (d *Decoder) ReadBoolean() (bool, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean byte: %#x", b)
}

// ReadInt reads a zigzag varint that must fit in 32 bits.
func (d *Decoder) ReadInt() (int32, error) {
	n, err := d.ReadLong()
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("int out of range: %d", n)
	}
	return int32(n), nil
}

// ReadLong reads a zigzag varint.
func (d *Decoder) ReadLong() (int64, error) {
	var u uint64
	var shift uint
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, fmt.Errorf("varint overflows 64 bits")
		}
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// ReadFloat reads 4 little-endian bytes.
func (d *Decoder) ReadFloat() (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
}

// ReadDouble reads 8 little-endian bytes.
func (d *Decoder) ReadDouble() (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

// ReadBytes reads a long length prefix followed by that many bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadLong()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxAllocation {
		return nil, fmt.Errorf("invalid byte length: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a long length prefix followed by that many UTF-8 bytes.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadFixed reads exactly n bytes.
func (d *Decoder) ReadFixed(n int) ([]byte, error) {
	if n < 0 || n > maxAllocation {
		return nil, fmt.Errorf("invalid fixed length: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Skip discards exactly n bytes.
func (d *Decoder) Skip(n int64) error {
	for n > 0 {
		step := n
		if step > maxAllocation {
			step = maxAllocation
		}
		discarded, err := d.r.Discard(int(step))
		n -= int64(discarded)
		if err != nil {
			return err
		}
	}
	return nil
}
