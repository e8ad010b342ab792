package parsing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/wire"
)

// encodeDefault renders a field default (a decoded JSON value, as stored in
// the schema) into its binary encoding against the field's schema. The
// bytes are carried by a DefaultStartAction and decoded in place of wire
// data when the writer did not supply the field.
func encodeDefault(sc *avro.Schema, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDefault(wire.NewEncoder(&buf), sc, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeDefault(e *wire.Encoder, sc *avro.Schema, v any) error {
	switch sc.Type {
	case avro.Null:
		if v != nil {
			return fmt.Errorf("default for null must be null, got %v", v)
		}
		return e.WriteNull()
	case avro.Boolean:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("default for boolean must be a boolean, got %v", v)
		}
		return e.WriteBoolean(b)
	case avro.Int:
		n, err := defaultNumber(v)
		if err != nil {
			return err
		}
		return e.WriteInt(int32(n))
	case avro.Long:
		n, err := defaultNumber(v)
		if err != nil {
			return err
		}
		return e.WriteLong(int64(n))
	case avro.Float:
		n, err := defaultNumber(v)
		if err != nil {
			return err
		}
		return e.WriteFloat(float32(n))
	case avro.Double:
		n, err := defaultNumber(v)
		if err != nil {
			return err
		}
		return e.WriteDouble(n)
	case avro.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("default for string must be a string, got %v", v)
		}
		return e.WriteString(s)
	case avro.Bytes:
		b, err := defaultBytes(v)
		if err != nil {
			return err
		}
		return e.WriteBytes(b)
	case avro.Fixed:
		b, err := defaultBytes(v)
		if err != nil {
			return err
		}
		if len(b) != sc.Size {
			return fmt.Errorf("default for fixed %s must have %d bytes, got %d", sc.FullName(), sc.Size, len(b))
		}
		return e.WriteFixed(b)
	case avro.Enum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("default for enum %s must be a symbol, got %v", sc.FullName(), v)
		}
		i := sc.SymbolIndex(s)
		if i < 0 {
			return fmt.Errorf("default %q is not a symbol of enum %s", s, sc.FullName())
		}
		return e.WriteInt(int32(i))
	case avro.Union:
		// Union defaults conform to the first branch and are written with
		// branch index zero.
		if err := e.WriteLong(0); err != nil {
			return err
		}
		return writeDefault(e, sc.Types[0], v)
	case avro.Array:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("default for array must be a list, got %v", v)
		}
		if len(items) > 0 {
			if err := e.WriteLong(int64(len(items))); err != nil {
				return err
			}
			for _, item := range items {
				if err := writeDefault(e, sc.Items, item); err != nil {
					return err
				}
			}
		}
		return e.WriteLong(0)
	case avro.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("default for map must be an object, got %v", v)
		}
		if len(m) > 0 {
			if err := e.WriteLong(int64(len(m))); err != nil {
				return err
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := e.WriteString(k); err != nil {
					return err
				}
				if err := writeDefault(e, sc.Values, m[k]); err != nil {
					return err
				}
			}
		}
		return e.WriteLong(0)
	case avro.Record:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("default for record %s must be an object, got %v", sc.FullName(), v)
		}
		for _, f := range sc.Fields {
			fv, ok := m[f.Name]
			if !ok {
				if !f.HasDefault {
					return fmt.Errorf("default for record %s missing field %s", sc.FullName(), f.Name)
				}
				fv = f.Default
			}
			if err := writeDefault(e, f.Type, fv); err != nil {
				return err
			}
		}
		return nil
	}
	panic(fmt.Sprintf("parsing: unexpected schema type %v", sc.Type))
}

func defaultNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid numeric default: %w", err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("default must be a number, got %v", v)
}

// defaultBytes converts the JSON string form of a bytes or fixed default:
// each code point stands for one byte and must be below 256.
func defaultBytes(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("default for bytes must be a string, got %v", v)
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("byte default contains code point %U", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
