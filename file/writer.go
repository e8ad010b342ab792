package file

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sort"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/datum"
	"github.com/auroma/avro/wire"
)

// magic opens every container file.
var magic = [4]byte{'O', 'b', 'j', 1}

// DefaultBlockSize is the encoded-bytes threshold at which a block is
// flushed.
const DefaultBlockSize = 64 * 1024

// Writer appends values to a container file. One Writer must not be used
// from multiple goroutines.
type Writer struct {
	schema    *avro.Schema
	w         io.Writer
	codec     Codec
	blockSize int
	sync      [16]byte
	meta      map[string][]byte

	block bytes.Buffer
	enc   *datum.Encoder
	count int64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCodec selects the codec used to compress blocks. The default is the
// null codec.
func WithCodec(c Codec) WriterOption {
	return func(w *Writer) { w.codec = c }
}

// WithBlockSize sets the encoded-bytes threshold at which Append flushes
// the current block.
func WithBlockSize(n int) WriterOption {
	return func(w *Writer) { w.blockSize = n }
}

// WithSyncMarker fixes the file's sync marker instead of generating a
// random one.
func WithSyncMarker(marker [16]byte) WriterOption {
	return func(w *Writer) { w.sync = marker }
}

// WithMeta adds a metadata entry to the file header. Keys starting with
// "avro." are reserved.
func WithMeta(key string, value []byte) WriterOption {
	return func(w *Writer) { w.meta[key] = value }
}

// NewWriter creates a container file writer for the given schema and
// writes the file header.
func NewWriter(schema *avro.Schema, w io.Writer, opts ...WriterOption) (*Writer, error) {
	fw := &Writer{
		schema:    schema,
		w:         w,
		codec:     nullCodec{},
		blockSize: DefaultBlockSize,
		meta:      map[string][]byte{},
	}
	if _, err := rand.Read(fw.sync[:]); err != nil {
		return nil, fmt.Errorf("file: generate sync marker: %w", err)
	}
	for _, opt := range opts {
		opt(fw)
	}
	if fw.blockSize <= 0 {
		return nil, fmt.Errorf("file: block size must be positive, got %d", fw.blockSize)
	}
	fw.meta["avro.schema"] = []byte(schema.String())
	fw.meta["avro.codec"] = []byte(fw.codec.Name())
	if err := fw.writeHeader(); err != nil {
		return nil, err
	}
	fw.enc = datum.NewEncoder(schema, &fw.block)
	return fw, nil
}

func (w *Writer) writeHeader() error {
	if _, err := w.w.Write(magic[:]); err != nil {
		return fmt.Errorf("file: write magic: %w", err)
	}
	enc := wire.NewEncoder(w.w)
	if err := enc.WriteLong(int64(len(w.meta))); err != nil {
		return fmt.Errorf("file: write metadata: %w", err)
	}
	keys := make([]string, 0, len(w.meta))
	for k := range w.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := enc.WriteString(k); err != nil {
			return fmt.Errorf("file: write metadata: %w", err)
		}
		if err := enc.WriteBytes(w.meta[k]); err != nil {
			return fmt.Errorf("file: write metadata: %w", err)
		}
	}
	if err := enc.WriteLong(0); err != nil {
		return fmt.Errorf("file: write metadata: %w", err)
	}
	if _, err := w.w.Write(w.sync[:]); err != nil {
		return fmt.Errorf("file: write sync marker: %w", err)
	}
	return nil
}

// Append encodes one value into the current block, flushing the block when
// it reaches the configured size.
func (w *Writer) Append(v any) error {
	if err := w.enc.Write(v); err != nil {
		return err
	}
	w.count++
	if w.block.Len() >= w.blockSize {
		return w.Flush()
	}
	return nil
}

// Flush writes the current block, if any, to the underlying writer.
func (w *Writer) Flush() error {
	if w.count == 0 {
		return nil
	}
	compressed, err := w.codec.Compress(w.block.Bytes())
	if err != nil {
		return err
	}
	enc := wire.NewEncoder(w.w)
	if err := enc.WriteLong(w.count); err != nil {
		return fmt.Errorf("file: write block: %w", err)
	}
	if err := enc.WriteLong(int64(len(compressed))); err != nil {
		return fmt.Errorf("file: write block: %w", err)
	}
	if _, err := w.w.Write(compressed); err != nil {
		return fmt.Errorf("file: write block: %w", err)
	}
	if _, err := w.w.Write(w.sync[:]); err != nil {
		return fmt.Errorf("file: write sync marker: %w", err)
	}
	w.block.Reset()
	w.count = 0
	return nil
}

// Close flushes any buffered block. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	return w.Flush()
}
