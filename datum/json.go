package datum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/parsing"
)

// JSONEncoder writes values in the JSON encoding: records and maps as
// objects, bytes and fixed as strings of code points below 256, and a
// non-null union value as an object with the branch name as its only key.
// Each value is followed by a newline. Call Flush before inspecting the
// output. One JSONEncoder must not be used from multiple goroutines.
type JSONEncoder struct {
	schema *avro.Schema
	parser *parsing.Parser
	w      *bufio.Writer
}

// NewJSONEncoder creates a JSON encoder for the given schema writing to w.
func NewJSONEncoder(schema *avro.Schema, w io.Writer) *JSONEncoder {
	e := &JSONEncoder{schema: schema, w: bufio.NewWriter(w)}
	root := parsing.JSONGenerator{}.Generate(schema)
	e.parser = parsing.NewParser(root, e)
	return e
}

// Write encodes one value conforming to the encoder's schema.
func (e *JSONEncoder) Write(v any) error {
	if err := e.write(e.schema, v); err != nil {
		return err
	}
	if err := e.parser.ProcessTrailingImplicitActions(); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

// Flush writes buffered output to the underlying writer.
func (e *JSONEncoder) Flush() error {
	return e.w.Flush()
}

// DoAction implements parsing.ActionHandler; the JSON grammar's record and
// union bracketing is emitted from here.
func (e *JSONEncoder) DoAction(input, top *parsing.Symbol) (*parsing.Symbol, error) {
	switch top.Action {
	case parsing.ActionRecordStart:
		return nil, e.w.WriteByte('{')
	case parsing.ActionRecordEnd, parsing.ActionUnionEnd:
		return nil, e.w.WriteByte('}')
	case parsing.ActionFieldAdjust:
		if top.Index > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return nil, err
			}
		}
		if err := e.writeQuoted(top.FieldName); err != nil {
			return nil, err
		}
		return nil, e.w.WriteByte(':')
	case parsing.ActionFieldEnd:
		return nil, nil
	}
	return nil, fmt.Errorf("datum: unexpected %s action during JSON encode", top)
}

func (e *JSONEncoder) write(sc *avro.Schema, v any) error {
	switch sc.Type {
	case avro.Null:
		if v != nil {
			return fmt.Errorf("datum: expected nil for null, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Null); err != nil {
			return err
		}
		_, err := e.w.WriteString("null")
		return err
	case avro.Boolean:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("datum: expected bool, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Boolean); err != nil {
			return err
		}
		_, err := e.w.WriteString(strconv.FormatBool(b))
		return err
	case avro.Int:
		n, ok := toLong(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return fmt.Errorf("datum: expected 32-bit integer, got %v (%T)", v, v)
		}
		if _, err := e.parser.Advance(parsing.Int); err != nil {
			return err
		}
		_, err := e.w.WriteString(strconv.FormatInt(n, 10))
		return err
	case avro.Long:
		n, ok := toLong(v)
		if !ok {
			return fmt.Errorf("datum: expected integer, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Long); err != nil {
			return err
		}
		_, err := e.w.WriteString(strconv.FormatInt(n, 10))
		return err
	case avro.Float:
		f, ok := toDouble(v)
		if !ok {
			return fmt.Errorf("datum: expected float, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Float); err != nil {
			return err
		}
		return e.writeNumber(f, 32)
	case avro.Double:
		f, ok := toDouble(v)
		if !ok {
			return fmt.Errorf("datum: expected double, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Double); err != nil {
			return err
		}
		return e.writeNumber(f, 64)
	case avro.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("datum: expected string, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.String); err != nil {
			return err
		}
		return e.writeQuoted(s)
	case avro.Bytes:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("datum: expected []byte, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Bytes); err != nil {
			return err
		}
		return e.writeQuoted(bytesToCodePoints(b))
	case avro.Fixed:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("datum: expected []byte for fixed, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Fixed); err != nil {
			return err
		}
		check := e.parser.PopSymbol()
		if len(b) != check.Size {
			return fmt.Errorf("datum: fixed %s needs %d bytes, got %d", sc.FullName(), check.Size, len(b))
		}
		return e.writeQuoted(bytesToCodePoints(b))
	case avro.Enum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("datum: expected enum symbol, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Enum); err != nil {
			return err
		}
		labels := e.parser.PopSymbol()
		if labels.FindLabel(s) < 0 {
			return fmt.Errorf("datum: %q is not a symbol of enum %s", s, sc.FullName())
		}
		return e.writeQuoted(s)
	case avro.Union:
		i, err := unionBranch(sc, v)
		if err != nil {
			return err
		}
		if _, err := e.parser.Advance(parsing.Union); err != nil {
			return err
		}
		alt := e.parser.PopSymbol()
		branch := alt.Symbols[i]
		if branch != parsing.Null {
			if err := e.w.WriteByte('{'); err != nil {
				return err
			}
			if err := e.writeQuoted(alt.Labels[i]); err != nil {
				return err
			}
			if err := e.w.WriteByte(':'); err != nil {
				return err
			}
			e.parser.PushSymbol(parsing.UnionEnd)
		}
		e.parser.PushSymbol(branch)
		return e.write(sc.Types[i], v)
	case avro.Array:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("datum: expected []any, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.ArrayStart); err != nil {
			return err
		}
		if err := e.w.WriteByte('['); err != nil {
			return err
		}
		for i, item := range items {
			if i > 0 {
				if err := e.w.WriteByte(','); err != nil {
					return err
				}
			}
			if err := e.write(sc.Items, item); err != nil {
				return err
			}
			if _, err := e.parser.Advance(parsing.ItemEnd); err != nil {
				return err
			}
		}
		if _, err := e.parser.Advance(parsing.ArrayEnd); err != nil {
			return err
		}
		return e.w.WriteByte(']')
	case avro.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("datum: expected map[string]any, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.MapStart); err != nil {
			return err
		}
		if err := e.w.WriteByte('{'); err != nil {
			return err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				if err := e.w.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := e.parser.Advance(parsing.String); err != nil {
				return err
			}
			if err := e.writeQuoted(k); err != nil {
				return err
			}
			if _, err := e.parser.Advance(parsing.MapKeyMarker); err != nil {
				return err
			}
			if err := e.w.WriteByte(':'); err != nil {
				return err
			}
			if err := e.write(sc.Values, m[k]); err != nil {
				return err
			}
			if _, err := e.parser.Advance(parsing.ItemEnd); err != nil {
				return err
			}
		}
		if _, err := e.parser.Advance(parsing.MapEnd); err != nil {
			return err
		}
		return e.w.WriteByte('}')
	case avro.Record:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("datum: expected map[string]any for record %s, got %T", sc.FullName(), v)
		}
		for _, f := range sc.Fields {
			fv, present := m[f.Name]
			if !present {
				return fmt.Errorf("datum: record %s missing field %s", sc.FullName(), f.Name)
			}
			if err := e.write(f.Type, fv); err != nil {
				return err
			}
		}
		return nil
	}
	panic(fmt.Sprintf("datum: unexpected schema type %v", sc.Type))
}

func (e *JSONEncoder) writeQuoted(s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	return err
}

func (e *JSONEncoder) writeNumber(f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("datum: %v has no JSON representation", f)
	}
	_, err := e.w.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
	return err
}

// bytesToCodePoints maps each byte to the code point of the same value,
// the representation the JSON encoding uses for bytes and fixed.
func bytesToCodePoints(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func codePointsToBytes(s string) ([]byte, error) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("datum: code point %q out of byte range", r)
		}
		b = append(b, byte(r))
	}
	return b, nil
}

// JSONDecoder reads JSON-encoded values under a schema. Unknown object
// keys are ignored; a missing record field is an error, since defaults
// belong to schema resolution, not to the encoding.
type JSONDecoder struct {
	schema *avro.Schema
	dec    *json.Decoder
	parser *parsing.Parser
}

// NewJSONDecoder creates a JSON decoder for the given schema reading
// from r.
func NewJSONDecoder(schema *avro.Schema, r io.Reader) *JSONDecoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	d := &JSONDecoder{schema: schema, dec: dec}
	root := parsing.JSONGenerator{}.Generate(schema)
	d.parser = parsing.NewParser(root, d)
	return d
}

// Read decodes the next value. It returns io.EOF once the input is
// exhausted.
func (d *JSONDecoder) Read() (any, error) {
	var raw any
	if err := d.dec.Decode(&raw); err != nil {
		return nil, err
	}
	v, err := d.read(d.schema, raw)
	if err != nil {
		return nil, err
	}
	if err := d.parser.ProcessTrailingImplicitActions(); err != nil {
		return nil, err
	}
	return v, nil
}

// DoAction implements parsing.ActionHandler. The bracketing actions need
// no work on the decode side; the JSON tokenizer already consumed the
// delimiters they stand for.
func (d *JSONDecoder) DoAction(input, top *parsing.Symbol) (*parsing.Symbol, error) {
	switch top.Action {
	case parsing.ActionRecordStart, parsing.ActionRecordEnd,
		parsing.ActionUnionEnd, parsing.ActionFieldEnd, parsing.ActionFieldAdjust:
		return nil, nil
	}
	return nil, fmt.Errorf("datum: unexpected %s action during JSON decode", top)
}

func (d *JSONDecoder) read(sc *avro.Schema, raw any) (any, error) {
	switch sc.Type {
	case avro.Null:
		if raw != nil {
			return nil, fmt.Errorf("datum: expected JSON null, got %T", raw)
		}
		_, err := d.parser.Advance(parsing.Null)
		return nil, err
	case avro.Boolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON boolean, got %T", raw)
		}
		_, err := d.parser.Advance(parsing.Boolean)
		return b, err
	case avro.Int:
		n, err := jsonInt(raw)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("datum: %d out of int range", n)
		}
		if _, err := d.parser.Advance(parsing.Int); err != nil {
			return nil, err
		}
		return int32(n), nil
	case avro.Long:
		n, err := jsonInt(raw)
		if err != nil {
			return nil, err
		}
		_, err = d.parser.Advance(parsing.Long)
		return n, err
	case avro.Float:
		f, err := jsonFloat(raw)
		if err != nil {
			return nil, err
		}
		_, err = d.parser.Advance(parsing.Float)
		return float32(f), err
	case avro.Double:
		f, err := jsonFloat(raw)
		if err != nil {
			return nil, err
		}
		_, err = d.parser.Advance(parsing.Double)
		return f, err
	case avro.String:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON string, got %T", raw)
		}
		_, err := d.parser.Advance(parsing.String)
		return s, err
	case avro.Bytes:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON string for bytes, got %T", raw)
		}
		b, err := codePointsToBytes(s)
		if err != nil {
			return nil, err
		}
		_, err = d.parser.Advance(parsing.Bytes)
		return b, err
	case avro.Fixed:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON string for fixed, got %T", raw)
		}
		b, err := codePointsToBytes(s)
		if err != nil {
			return nil, err
		}
		if _, err := d.parser.Advance(parsing.Fixed); err != nil {
			return nil, err
		}
		check := d.parser.PopSymbol()
		if len(b) != check.Size {
			return nil, fmt.Errorf("datum: fixed %s needs %d bytes, got %d", sc.FullName(), check.Size, len(b))
		}
		return b, nil
	case avro.Enum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON string for enum, got %T", raw)
		}
		if _, err := d.parser.Advance(parsing.Enum); err != nil {
			return nil, err
		}
		labels := d.parser.PopSymbol()
		if labels.FindLabel(s) < 0 {
			return nil, fmt.Errorf("datum: %q is not a symbol of enum %s", s, sc.FullName())
		}
		return s, nil
	case avro.Union:
		if _, err := d.parser.Advance(parsing.Union); err != nil {
			return nil, err
		}
		alt := d.parser.PopSymbol()
		if raw == nil {
			i := alt.FindLabel("null")
			if i < 0 {
				return nil, fmt.Errorf("datum: union has no null branch")
			}
			d.parser.PushSymbol(alt.Symbols[i])
			return d.read(sc.Types[i], nil)
		}
		m, ok := raw.(map[string]any)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("datum: expected single-key object for union, got %T", raw)
		}
		for label, inner := range m {
			i := alt.FindLabel(label)
			if i < 0 {
				return nil, fmt.Errorf("datum: unknown union branch %q", label)
			}
			d.parser.PushSymbol(alt.Symbols[i])
			return d.read(sc.Types[i], inner)
		}
		panic("unreachable")
	case avro.Array:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON array, got %T", raw)
		}
		if _, err := d.parser.Advance(parsing.ArrayStart); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			v, err := d.read(sc.Items, item)
			if err != nil {
				return nil, err
			}
			if _, err := d.parser.Advance(parsing.ItemEnd); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if _, err := d.parser.Advance(parsing.ArrayEnd); err != nil {
			return nil, err
		}
		return out, nil
	case avro.Map:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON object for map, got %T", raw)
		}
		if _, err := d.parser.Advance(parsing.MapStart); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(m))
		for _, k := range keys {
			if _, err := d.parser.Advance(parsing.String); err != nil {
				return nil, err
			}
			if _, err := d.parser.Advance(parsing.MapKeyMarker); err != nil {
				return nil, err
			}
			v, err := d.read(sc.Values, m[k])
			if err != nil {
				return nil, err
			}
			if _, err := d.parser.Advance(parsing.ItemEnd); err != nil {
				return nil, err
			}
			out[k] = v
		}
		if _, err := d.parser.Advance(parsing.MapEnd); err != nil {
			return nil, err
		}
		return out, nil
	case avro.Record:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("datum: expected JSON object for record %s, got %T", sc.FullName(), raw)
		}
		out := make(map[string]any, len(sc.Fields))
		for _, f := range sc.Fields {
			fv, present := m[f.Name]
			if !present {
				return nil, fmt.Errorf("datum: record %s missing field %s", sc.FullName(), f.Name)
			}
			v, err := d.read(f.Type, fv)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	}
	panic(fmt.Sprintf("datum: unexpected schema type %v", sc.Type))
}

func jsonInt(raw any) (int64, error) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("datum: expected JSON number, got %T", raw)
	}
	return n.Int64()
}

func jsonFloat(raw any) (float64, error) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("datum: expected JSON number, got %T", raw)
	}
	return n.Float64()
}
