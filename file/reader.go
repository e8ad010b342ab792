package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/datum"
	"github.com/auroma/avro/wire"
)

// Reader iterates over the values of a container file. Values are returned
// under the reader schema when one is set, applying schema resolution
// against the schema stored in the file; otherwise under the file's own
// schema.
type Reader struct {
	writerSchema *avro.Schema
	readerSchema *avro.Schema
	codec        Codec
	in           *wire.Decoder
	meta         map[string][]byte
	sync         [16]byte

	dec       *datum.Decoder
	remaining int64
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderSchema resolves the file's values against sc instead of
// returning them under the schema they were written with.
func WithReaderSchema(sc *avro.Schema) ReaderOption {
	return func(r *Reader) { r.readerSchema = sc }
}

// NewReader reads a container file header from r and prepares to iterate
// its values.
func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	fr := &Reader{in: wire.NewDecoder(r)}
	for _, opt := range opts {
		opt(fr)
	}
	if err := fr.readHeader(); err != nil {
		return nil, err
	}
	return fr, nil
}

func (r *Reader) readHeader() error {
	got, err := r.in.ReadFixed(len(magic))
	if err != nil {
		return fmt.Errorf("file: read magic: %w", err)
	}
	if !bytes.Equal(got, magic[:]) {
		return errors.New("file: not a container file")
	}
	r.meta = map[string][]byte{}
	for {
		n, err := r.in.ReadLong()
		if err != nil {
			return fmt.Errorf("file: read metadata: %w", err)
		}
		if n == 0 {
			break
		}
		if n < 0 {
			// block size precedes the entries
			if _, err := r.in.ReadLong(); err != nil {
				return fmt.Errorf("file: read metadata: %w", err)
			}
			n = -n
		}
		for ; n > 0; n-- {
			k, err := r.in.ReadString()
			if err != nil {
				return fmt.Errorf("file: read metadata: %w", err)
			}
			v, err := r.in.ReadBytes()
			if err != nil {
				return fmt.Errorf("file: read metadata: %w", err)
			}
			r.meta[k] = v
		}
	}
	raw, ok := r.meta["avro.schema"]
	if !ok {
		return errors.New("file: header has no avro.schema")
	}
	r.writerSchema, err = avro.Parse(raw)
	if err != nil {
		return fmt.Errorf("file: schema: %w", err)
	}
	if r.readerSchema == nil {
		r.readerSchema = r.writerSchema
	}
	name := "null"
	if c, ok := r.meta["avro.codec"]; ok {
		name = string(c)
	}
	if r.codec, err = CodecByName(name); err != nil {
		return err
	}
	sync, err := r.in.ReadFixed(len(r.sync))
	if err != nil {
		return fmt.Errorf("file: read sync marker: %w", err)
	}
	copy(r.sync[:], sync)
	return nil
}

// Schema returns the schema the file was written with.
func (r *Reader) Schema() *avro.Schema {
	return r.writerSchema
}

// Meta returns the metadata value stored under key, or nil.
func (r *Reader) Meta(key string) []byte {
	return r.meta[key]
}

// Next returns the next value in the file. It returns io.EOF after the
// last value.
func (r *Reader) Next() (any, error) {
	for r.remaining == 0 {
		if err := r.nextBlock(); err != nil {
			return nil, err
		}
	}
	v, err := r.dec.Read()
	if err != nil {
		return nil, err
	}
	r.remaining--
	return v, nil
}

func (r *Reader) nextBlock() error {
	count, err := r.in.ReadLong()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("file: read block: %w", err)
	}
	if count < 0 {
		return fmt.Errorf("file: negative block count %d", count)
	}
	size, err := r.in.ReadLong()
	if err != nil {
		return fmt.Errorf("file: read block: %w", err)
	}
	if size < 0 {
		return fmt.Errorf("file: negative block size %d", size)
	}
	compressed, err := r.in.ReadFixed(int(size))
	if err != nil {
		return fmt.Errorf("file: read block: %w", err)
	}
	sync, err := r.in.ReadFixed(len(r.sync))
	if err != nil {
		return fmt.Errorf("file: read sync marker: %w", err)
	}
	if !bytes.Equal(sync, r.sync[:]) {
		return errors.New("file: invalid sync marker")
	}
	data, err := r.codec.Decompress(compressed)
	if err != nil {
		return err
	}
	r.dec, err = datum.NewDecoder(r.writerSchema, r.readerSchema, bytes.NewReader(data))
	if err != nil {
		return err
	}
	r.remaining = count
	return nil
}
