// Package file reads and writes object container files: a header carrying
// the schema and codec, followed by blocks of binary-encoded values, each
// block compressed independently and terminated by the file's sync marker.
package file

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses the data of one block.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var (
	codecMu sync.RWMutex
	codecs  = map[string]Codec{
		"null":      nullCodec{},
		"deflate":   deflateCodec{},
		"snappy":    snappyCodec{},
		"zstandard": &zstdCodec{},
	}
)

// RegisterCodec makes a codec available by its name, replacing any
// previous codec of that name.
func RegisterCodec(c Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecs[c.Name()] = c
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("file: unknown codec %q", name)
	}
	return c, nil
}

type nullCodec struct{}

func (nullCodec) Name() string                           { return "null" }
func (nullCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (nullCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

type deflateCodec struct{}

func (deflateCodec) Name() string { return "deflate" }

func (deflateCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decompress(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return out, nil
}

// crcTable is the IEEE CRC-32 table; the snappy codec carries a big-endian
// checksum of the uncompressed data after the compressed payload.
var crcTable = crc32.MakeTable(crc32.IEEE)

type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	out := snappy.Encode(nil, data)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.Checksum(data, crcTable))
	return append(out, crc[:]...), nil
}

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("snappy: block too short for checksum")
	}
	want := binary.BigEndian.Uint32(data[len(data)-4:])
	out, err := snappy.Decode(nil, data[:len(data)-4])
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	if got := crc32.Checksum(out, crcTable); got != want {
		return nil, fmt.Errorf("snappy: checksum mismatch: got %08x, want %08x", got, want)
	}
	return out, nil
}

type zstdCodec struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

func (c *zstdCodec) Name() string { return "zstandard" }

func (c *zstdCodec) init() error {
	c.once.Do(func() {
		c.enc, c.err = zstd.NewWriter(nil)
		if c.err != nil {
			return
		}
		c.dec, c.err = zstd.NewReader(nil)
	})
	return c.err
}

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("zstandard: %w", err)
	}
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("zstandard: %w", err)
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstandard: %w", err)
	}
	return out, nil
}
