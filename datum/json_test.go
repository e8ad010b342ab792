package datum

import (
	"bytes"
	"errors"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/auroma/avro/avro"
)

func encodeJSON(t *testing.T, sc *avro.Schema, v any) string {
	t.Helper()
	var buf bytes.Buffer
	e := NewJSONEncoder(sc, &buf)
	if err := e.Write(v); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	return buf.String()
}

// ============================================================
// JSON Encoding Tests
// ============================================================

func TestJSONEncode_Goldens(t *testing.T) {
	cases := []struct {
		name   string
		schema string
		value  any
		want   string
	}{
		{"null", `"null"`, nil, `null`},
		{"boolean", `"boolean"`, true, `true`},
		{"int", `"int"`, int32(-7), `-7`},
		{"long", `"long"`, int64(1) << 40, `1099511627776`},
		{"float", `"float"`, float32(1.5), `1.5`},
		{"double", `"double"`, 0.25, `0.25`},
		{"string", `"string"`, "a\"b", `"a\"b"`},
		{"bytes as code points", `"bytes"`, []byte{65, 255}, `"Aÿ"`},
		{"fixed", `{"type":"fixed","name":"F","size":2}`, []byte{66, 67}, `"BC"`},
		{"enum", `{"type":"enum","name":"E","symbols":["X","Y"]}`, "Y", `"Y"`},
		{"array", `{"type":"array","items":"int"}`, []any{1, 2, 3}, `[1,2,3]`},
		{"map sorted keys", `{"type":"map","values":"long"}`,
			map[string]any{"b": int64(2), "a": int64(1)}, `{"a":1,"b":2}`},
		{"union null branch", `["null","string"]`, nil, `null`},
		{"union wrapped branch", `["null","string"]`, "x", `{"string":"x"}`},
		{"union named branch", `["null",{"type":"fixed","name":"ns.F","size":1}]`,
			[]byte{48}, `{"ns.F":"0"}`},
		{"record", `{"type":"record","name":"R","fields":[
			{"name":"a","type":"int"},
			{"name":"b","type":["null","string"]}
		]}`, map[string]any{"a": int32(1), "b": "x"}, `{"a":1,"b":{"string":"x"}}`},
		{"nested array of records", `{"type":"array","items":
			{"type":"record","name":"P","fields":[{"name":"x","type":"int"}]}}`,
			[]any{map[string]any{"x": int32(1)}, map[string]any{"x": int32(2)}},
			`[{"x":1},{"x":2}]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := encodeJSON(t, avro.MustParse(c.schema), c.value)
			if got != c.want+"\n" {
				t.Errorf("got %q, want %q", got, c.want+"\n")
			}
		})
	}
}

func TestJSONEncode_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		schema string
		value  any
	}{
		{"NaN double", `"double"`, math.NaN()},
		{"unknown enum symbol", `{"type":"enum","name":"E","symbols":["A"]}`, "B"},
		{"wrong fixed size", `{"type":"fixed","name":"F","size":3}`, []byte{1}},
		{"missing record field", `{"type":"record","name":"R","fields":[{"name":"a","type":"int"}]}`,
			map[string]any{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONEncoder(avro.MustParse(c.schema), &buf).Write(c.value); err == nil {
				t.Errorf("Write(%v) succeeded, want error", c.value)
			}
		})
	}
}

// ============================================================
// JSON Decoding Tests
// ============================================================

func TestJSON_RoundTrip(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record", "name": "Everything",
		"fields": [
			{"name": "bool", "type": "boolean"},
			{"name": "int", "type": "int"},
			{"name": "long", "type": "long"},
			{"name": "double", "type": "double"},
			{"name": "bytes", "type": "bytes"},
			{"name": "string", "type": "string"},
			{"name": "enum", "type": {"type": "enum", "name": "E", "symbols": ["X", "Y"]}},
			{"name": "array", "type": {"type": "array", "items": "long"}},
			{"name": "map", "type": {"type": "map", "values": "string"}},
			{"name": "union", "type": ["null", "string"]}
		]
	}`)
	value := map[string]any{
		"bool":   false,
		"int":    int32(7),
		"long":   int64(-9),
		"double": 2.5,
		"bytes":  []byte{0, 1, 254},
		"string": "héllo",
		"enum":   "X",
		"array":  []any{int64(5)},
		"map":    map[string]any{"k": "v"},
		"union":  nil,
	}
	var buf bytes.Buffer
	e := NewJSONEncoder(sc, &buf)
	if err := e.Write(value); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err := NewJSONDecoder(sc, &buf).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reflect.DeepEqual(got, value) {
		t.Errorf("round trip:\ngot  %#v\nwant %#v", got, value)
	}
}

func TestJSONDecode_MultipleValues(t *testing.T) {
	sc := avro.MustParse(`"int"`)
	d := NewJSONDecoder(sc, strings.NewReader("1\n2\n3\n"))
	for want := int32(1); want <= 3; want++ {
		got, err := d.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", want, err)
		}
		if got != want {
			t.Errorf("got %v, want %d", got, want)
		}
	}
	if _, err := d.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("after last value: got %v, want io.EOF", err)
	}
}

func TestJSONDecode_IgnoresUnknownKeys(t *testing.T) {
	sc := avro.MustParse(`{"type":"record","name":"R","fields":[{"name":"a","type":"int"}]}`)
	got, err := NewJSONDecoder(sc, strings.NewReader(`{"a":1,"extra":"ignored"}`)).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"a": int32(1)}) {
		t.Errorf("got %#v", got)
	}
}

func TestJSONDecode_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		schema string
		input  string
	}{
		{"missing record field",
			`{"type":"record","name":"R","fields":[{"name":"a","type":"int"}]}`, `{}`},
		{"unknown union branch", `["null","int"]`, `{"string":"x"}`},
		{"bare value for union branch", `["null","int"]`, `3`},
		{"wrong scalar type", `"long"`, `"nope"`},
		{"int out of range", `"int"`, `4294967296`},
		{"code point above byte range", `"bytes"`, `"Ā"`},
		{"unknown enum symbol", `{"type":"enum","name":"E","symbols":["A"]}`, `"B"`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := NewJSONDecoder(avro.MustParse(c.schema), strings.NewReader(c.input)).Read(); err == nil {
				t.Errorf("Read(%s) succeeded, want error", c.input)
			}
		})
	}
}
