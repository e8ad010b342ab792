// Package datum encodes and decodes generic Go values against Avro
// schemas. Every codec here is driven by a parsing grammar: the automaton
// dictates the exact order of primitive operations, validates the shape of
// what is written, and carries the schema-resolution bookkeeping on the
// read path.
//
// Values map to Go as: null → nil, boolean → bool, int → int32,
// long → int64, float → float32, double → float64, bytes and fixed →
// []byte, string and enum → string, array → []any, map and record →
// map[string]any. A union value is the value of its active branch.
package datum

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/parsing"
	"github.com/auroma/avro/wire"
)

// Encoder writes generic values in the binary encoding, validating the
// write order against the schema's grammar. One Encoder must not be used
// from multiple goroutines.
type Encoder struct {
	schema *avro.Schema
	out    *wire.Encoder
	parser *parsing.Parser
}

// NewEncoder creates an encoder for the given schema writing to w.
func NewEncoder(schema *avro.Schema, w io.Writer) *Encoder {
	e := &Encoder{schema: schema, out: wire.NewEncoder(w)}
	root := parsing.ValidatingGenerator{}.Generate(schema)
	e.parser = parsing.NewParser(root, e)
	return e
}

// DoAction implements parsing.ActionHandler. The validating grammar has no
// implicit actions, so reaching one is an internal inconsistency.
func (e *Encoder) DoAction(input, top *parsing.Symbol) (*parsing.Symbol, error) {
	return nil, fmt.Errorf("datum: unexpected %s action during binary encode", top)
}

// Write encodes one value conforming to the encoder's schema.
func (e *Encoder) Write(v any) error {
	return e.write(e.schema, v)
}

func (e *Encoder) write(sc *avro.Schema, v any) error {
	switch sc.Type {
	case avro.Null:
		if v != nil {
			return fmt.Errorf("datum: expected nil for null, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Null); err != nil {
			return err
		}
		return e.out.WriteNull()
	case avro.Boolean:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("datum: expected bool, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Boolean); err != nil {
			return err
		}
		return e.out.WriteBoolean(b)
	case avro.Int:
		n, ok := toLong(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return fmt.Errorf("datum: expected 32-bit integer, got %v (%T)", v, v)
		}
		if _, err := e.parser.Advance(parsing.Int); err != nil {
			return err
		}
		return e.out.WriteInt(int32(n))
	case avro.Long:
		n, ok := toLong(v)
		if !ok {
			return fmt.Errorf("datum: expected integer, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Long); err != nil {
			return err
		}
		return e.out.WriteLong(n)
	case avro.Float:
		f, ok := toDouble(v)
		if !ok {
			return fmt.Errorf("datum: expected float, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Float); err != nil {
			return err
		}
		return e.out.WriteFloat(float32(f))
	case avro.Double:
		f, ok := toDouble(v)
		if !ok {
			return fmt.Errorf("datum: expected double, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Double); err != nil {
			return err
		}
		return e.out.WriteDouble(f)
	case avro.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("datum: expected string, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.String); err != nil {
			return err
		}
		return e.out.WriteString(s)
	case avro.Bytes:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("datum: expected []byte, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Bytes); err != nil {
			return err
		}
		return e.out.WriteBytes(b)
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
		return e.out.WriteFixed(b)
	case avro.Enum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("datum: expected enum symbol, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.Enum); err != nil {
			return err
		}
		check := e.parser.PopSymbol()
		i := sc.SymbolIndex(s)
		if i < 0 || i >= check.Size {
			return fmt.Errorf("datum: %q is not a symbol of enum %s", s, sc.FullName())
		}
		return e.out.WriteInt(int32(i))
	case avro.Union:
		i, err := unionBranch(sc, v)
		if err != nil {
			return err
		}
		if _, err := e.parser.Advance(parsing.Union); err != nil {
			return err
		}
		alt := e.parser.PopSymbol()
		e.parser.PushSymbol(alt.Symbols[i])
		if err := e.out.WriteLong(int64(i)); err != nil {
			return err
		}
		return e.write(sc.Types[i], v)
	case avro.Array:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("datum: expected []any, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.ArrayStart); err != nil {
			return err
		}
		if len(items) > 0 {
			if err := e.out.WriteLong(int64(len(items))); err != nil {
				return err
			}
			for _, item := range items {
				if err := e.write(sc.Items, item); err != nil {
					return err
				}
			}
		}
		if err := e.out.WriteLong(0); err != nil {
			return err
		}
		_, err := e.parser.Advance(parsing.ArrayEnd)
		return err
	case avro.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("datum: expected map[string]any, got %T", v)
		}
		if _, err := e.parser.Advance(parsing.MapStart); err != nil {
			return err
		}
		if len(m) > 0 {
			if err := e.out.WriteLong(int64(len(m))); err != nil {
				return err
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if _, err := e.parser.Advance(parsing.String); err != nil {
					return err
				}
				if err := e.out.WriteString(k); err != nil {
					return err
				}
				if err := e.write(sc.Values, m[k]); err != nil {
					return err
				}
			}
		}
		if err := e.out.WriteLong(0); err != nil {
			return err
		}
		_, err := e.parser.Advance(parsing.MapEnd)
		return err
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

func toLong(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func toDouble(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	case int:
		return float64(f), true
	}
	return 0, false
}

// unionBranch picks the first branch whose type can hold v. Branch order is
// the tie-breaker, matching the wire significance of union ordering.
func unionBranch(sc *avro.Schema, v any) (int, error) {
	for i, b := range sc.Types {
		switch b.Type {
		case avro.Null:
			if v == nil {
				return i, nil
			}
		case avro.Boolean:
			if _, ok := v.(bool); ok {
				return i, nil
			}
		case avro.Int:
			if n, ok := toLong(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
				return i, nil
			}
		case avro.Long:
			if _, ok := toLong(v); ok {
				return i, nil
			}
		case avro.Float:
			if _, ok := v.(float32); ok {
				return i, nil
			}
		case avro.Double:
			if _, ok := v.(float64); ok {
				return i, nil
			}
		case avro.String:
			if _, ok := v.(string); ok {
				return i, nil
			}
		case avro.Enum:
			if s, ok := v.(string); ok && b.SymbolIndex(s) >= 0 {
				return i, nil
			}
		case avro.Bytes:
			if _, ok := v.([]byte); ok {
				return i, nil
			}
		case avro.Fixed:
			if bs, ok := v.([]byte); ok && len(bs) == b.Size {
				return i, nil
			}
		case avro.Array:
			if _, ok := v.([]any); ok {
				return i, nil
			}
		case avro.Map, avro.Record:
			if _, ok := v.(map[string]any); ok {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("datum: no union branch matches %T", v)
}
