package file

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/auroma/avro/avro"
)

const recordSchema = `{
	"type": "record", "name": "Event",
	"fields": [
		{"name": "id", "type": "long"},
		{"name": "tags", "type": {"type": "array", "items": "string"}}
	]
}`

func event(id int64, tags ...string) map[string]any {
	ts := []any{}
	for _, t := range tags {
		ts = append(ts, t)
	}
	return map[string]any{"id": id, "tags": ts}
}

func writeFile(t *testing.T, schema string, values []any, opts ...WriterOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(avro.MustParse(schema), &buf, opts...)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	for i, v := range values {
		if err := w.Append(v); err != nil {
			t.Fatalf("Append value %d failed: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, data []byte, opts ...ReaderOption) []any {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data), opts...)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	var out []any
	for {
		v, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed after %d values: %v", len(out), err)
		}
		out = append(out, v)
	}
}

// ============================================================
// Round Trip Tests
// ============================================================

func TestFile_RoundTripCodecs(t *testing.T) {
	values := []any{
		event(1, "a", "b"),
		event(2),
		event(3, strings.Repeat("compressible ", 100)),
	}
	for _, name := range []string{"null", "deflate", "snappy", "zstandard"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			if err != nil {
				t.Fatalf("CodecByName(%q) failed: %v", name, err)
			}
			data := writeFile(t, recordSchema, values, WithCodec(codec))
			got := readAll(t, data)
			if !reflect.DeepEqual(got, values) {
				t.Errorf("round trip:\ngot  %#v\nwant %#v", got, values)
			}
		})
	}
}

func TestFile_MultipleBlocks(t *testing.T) {
	var marker [16]byte
	copy(marker[:], "0123456789abcdef")
	values := []any{event(1, "x"), event(2, "y"), event(3, "z")}
	// a 1-byte block size flushes after every value
	data := writeFile(t, recordSchema, values,
		WithBlockSize(1), WithSyncMarker(marker))
	if n := bytes.Count(data, marker[:]); n != 4 {
		t.Errorf("found %d sync markers, want 4 (header plus one per block)", n)
	}
	got := readAll(t, data)
	if !reflect.DeepEqual(got, values) {
		t.Errorf("got %#v, want %#v", got, values)
	}
}

func TestFile_Empty(t *testing.T) {
	data := writeFile(t, recordSchema, nil)
	if got := readAll(t, data); len(got) != 0 {
		t.Errorf("got %d values from empty file", len(got))
	}
}

// ============================================================
// Header Tests
// ============================================================

func TestFile_SchemaAndMeta(t *testing.T) {
	data := writeFile(t, recordSchema, []any{event(9)},
		WithMeta("user.origin", []byte("unit test")))
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	want := avro.MustParse(recordSchema)
	if got := r.Schema().Canonical(); got != want.Canonical() {
		t.Errorf("schema: got %s, want %s", got, want.Canonical())
	}
	if got := string(r.Meta("avro.codec")); got != "null" {
		t.Errorf("avro.codec: got %q, want %q", got, "null")
	}
	if got := string(r.Meta("user.origin")); got != "unit test" {
		t.Errorf("user.origin: got %q, want %q", got, "unit test")
	}
	if r.Meta("user.absent") != nil {
		t.Error("absent key returned a value")
	}
}

func TestFile_ReaderSchemaResolution(t *testing.T) {
	data := writeFile(t, recordSchema, []any{event(4, "keep")})
	reader := avro.MustParse(`{
		"type": "record", "name": "Event",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "source", "type": "string", "default": "unknown"}
		]
	}`)
	got := readAll(t, data, WithReaderSchema(reader))
	want := []any{map[string]any{"id": int64(4), "source": "unknown"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

// ============================================================
// Corruption Tests
// ============================================================

func TestFile_BadMagic(t *testing.T) {
	if _, err := NewReader(strings.NewReader("not an avro file")); err == nil ||
		!strings.Contains(err.Error(), "not a container file") {
		t.Errorf("got %v, want magic error", err)
	}
}

func TestFile_Truncated(t *testing.T) {
	data := writeFile(t, recordSchema, []any{event(1, "x")})
	if _, err := NewReader(bytes.NewReader(data[:8])); err == nil {
		t.Error("NewReader on truncated header succeeded")
	}
}

func TestFile_CorruptSync(t *testing.T) {
	data := writeFile(t, recordSchema, []any{event(1, "x")})
	data[len(data)-1] ^= 0xff // last byte is part of the block's sync marker
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); err == nil || !strings.Contains(err.Error(), "invalid sync marker") {
		t.Errorf("got %v, want sync marker error", err)
	}
}

func TestFile_SnappyChecksum(t *testing.T) {
	codec, err := CodecByName("snappy")
	if err != nil {
		t.Fatal(err)
	}
	compressed, err := codec.Compress([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q, want %q", got, "payload")
	}
	compressed[len(compressed)-1] ^= 0xff
	if _, err := codec.Decompress(compressed); err == nil {
		t.Error("Decompress with bad checksum succeeded")
	}
}

func TestCodecByName_Unknown(t *testing.T) {
	if _, err := CodecByName("lzma"); err == nil {
		t.Error("CodecByName on unknown codec succeeded")
	}
}
