package avro

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse reads a schema from its JSON representation. Named types may be
// referenced by name after their definition, including from within their own
// definition; every reference resolves to the same *Schema.
func Parse(data []byte) (*Schema, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("schema JSON: %w", err)
	}
	p := &schemaParser{named: make(map[string]*Schema)}
	return p.parse(v, "")
}

// MustParse is Parse for known-good schema literals; it panics on error.
func MustParse(data string) *Schema {
	s, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return s
}

var primitives = map[string]Type{
	"null":    Null,
	"boolean": Boolean,
	"int":     Int,
	"long":    Long,
	"float":   Float,
	"double":  Double,
	"bytes":   Bytes,
	"string":  String,
}

type schemaParser struct {
	named map[string]*Schema // full name → definition
}

func (p *schemaParser) parse(v any, namespace string) (*Schema, error) {
	switch t := v.(type) {
	case string:
		return p.parseRef(t, namespace)
	case []any:
		return p.parseUnion(t, namespace)
	case map[string]any:
		return p.parseObject(t, namespace)
	}
	return nil, fmt.Errorf("invalid schema: %v", v)
}

func (p *schemaParser) parseRef(name, namespace string) (*Schema, error) {
	if t, ok := primitives[name]; ok {
		return &Schema{Type: t}, nil
	}
	full := name
	if !strings.Contains(name, ".") && namespace != "" {
		full = namespace + "." + name
	}
	if s, ok := p.named[full]; ok {
		return s, nil
	}
	// A bare reference may also point at a type declared without a
	// namespace.
	if s, ok := p.named[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("undefined type: %s", name)
}

func (p *schemaParser) parseUnion(branches []any, namespace string) (*Schema, error) {
	if len(branches) == 0 {
		return nil, fmt.Errorf("union must have at least one branch")
	}
	u := &Schema{Type: Union, Types: make([]*Schema, len(branches))}
	seen := make(map[string]bool, len(branches))
	for i, b := range branches {
		s, err := p.parse(b, namespace)
		if err != nil {
			return nil, err
		}
		if s.Type == Union {
			return nil, fmt.Errorf("union may not immediately contain a union")
		}
		full := s.FullName()
		if seen[full] {
			return nil, fmt.Errorf("duplicate union branch: %s", full)
		}
		seen[full] = true
		u.Types[i] = s
	}
	return u, nil
}

func (p *schemaParser) parseObject(m map[string]any, namespace string) (*Schema, error) {
	tv, ok := m["type"]
	if !ok {
		return nil, fmt.Errorf("schema object missing \"type\"")
	}
	switch t := tv.(type) {
	case string:
		switch t {
		case "record", "error":
			return p.parseRecord(m, namespace)
		case "enum":
			return p.parseEnum(m, namespace)
		case "array":
			items, ok := m["items"]
			if !ok {
				return nil, fmt.Errorf("array missing \"items\"")
			}
			elem, err := p.parse(items, namespace)
			if err != nil {
				return nil, err
			}
			return &Schema{Type: Array, Items: elem}, nil
		case "map":
			values, ok := m["values"]
			if !ok {
				return nil, fmt.Errorf("map missing \"values\"")
			}
			val, err := p.parse(values, namespace)
			if err != nil {
				return nil, err
			}
			return &Schema{Type: Map, Values: val}, nil
		case "fixed":
			return p.parseFixed(m, namespace)
		default:
			// A primitive with extra attributes, e.g. a logical type
			// annotation; the attributes do not affect the shape.
			return p.parseRef(t, namespace)
		}
	case []any, map[string]any:
		return p.parse(tv, namespace)
	default:
		_ = t
		return nil, fmt.Errorf("invalid \"type\": %v", tv)
	}
}

// declareName reads name/namespace attributes, validates them, and registers
// the schema before its body is parsed so self-references resolve.
func (p *schemaParser) declareName(s *Schema, m map[string]any, enclosing string) (string, error) {
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return "", fmt.Errorf("%s missing \"name\"", s.Type)
	}
	namespace := enclosing
	if ns, ok := m["namespace"].(string); ok {
		namespace = ns
	}
	// A dotted name carries its own namespace.
	if i := strings.LastIndex(name, "."); i >= 0 {
		namespace = name[:i]
		name = name[i+1:]
	}
	if !validName(name) {
		return "", fmt.Errorf("invalid name: %q", name)
	}
	if !validNamespace(namespace) {
		return "", fmt.Errorf("invalid namespace: %q", namespace)
	}
	s.Name = name
	s.Namespace = namespace
	full := s.FullName()
	if _, exists := p.named[full]; exists {
		return "", fmt.Errorf("duplicate type name: %s", full)
	}
	p.named[full] = s
	return namespace, nil
}

func (p *schemaParser) parseRecord(m map[string]any, namespace string) (*Schema, error) {
	s := &Schema{Type: Record}
	ns, err := p.declareName(s, m, namespace)
	if err != nil {
		return nil, err
	}
	rawFields, ok := m["fields"].([]any)
	if !ok {
		return nil, fmt.Errorf("record %s missing \"fields\"", s.FullName())
	}
	seen := make(map[string]bool, len(rawFields))
	for i, rf := range rawFields {
		fm, ok := rf.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %s: field %d is not an object", s.FullName(), i)
		}
		name, ok := fm["name"].(string)
		if !ok || !validName(name) {
			return nil, fmt.Errorf("record %s: field %d has an invalid name", s.FullName(), i)
		}
		if seen[name] {
			return nil, fmt.Errorf("record %s: duplicate field %s", s.FullName(), name)
		}
		seen[name] = true
		ftv, ok := fm["type"]
		if !ok {
			return nil, fmt.Errorf("record %s: field %s missing \"type\"", s.FullName(), name)
		}
		ft, err := p.parse(ftv, ns)
		if err != nil {
			return nil, fmt.Errorf("record %s: field %s: %w", s.FullName(), name, err)
		}
		f := &Field{Name: name, Type: ft, Index: i}
		if dv, ok := fm["default"]; ok {
			f.Default = dv
			f.HasDefault = true
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func (p *schemaParser) parseEnum(m map[string]any, namespace string) (*Schema, error) {
	s := &Schema{Type: Enum}
	if _, err := p.declareName(s, m, namespace); err != nil {
		return nil, err
	}
	raw, ok := m["symbols"].([]any)
	if !ok {
		return nil, fmt.Errorf("enum %s missing \"symbols\"", s.FullName())
	}
	seen := make(map[string]bool, len(raw))
	for _, rs := range raw {
		sym, ok := rs.(string)
		if !ok || !validName(sym) {
			return nil, fmt.Errorf("enum %s: invalid symbol %v", s.FullName(), rs)
		}
		if seen[sym] {
			return nil, fmt.Errorf("enum %s: duplicate symbol %s", s.FullName(), sym)
		}
		seen[sym] = true
		s.Symbols = append(s.Symbols, sym)
	}
	return s, nil
}

func (p *schemaParser) parseFixed(m map[string]any, namespace string) (*Schema, error) {
	s := &Schema{Type: Fixed}
	if _, err := p.declareName(s, m, namespace); err != nil {
		return nil, err
	}
	size, ok := m["size"].(float64)
	if !ok || size != float64(int(size)) || size < 0 {
		return nil, fmt.Errorf("fixed %s: invalid size", s.FullName())
	}
	s.Size = int(size)
	return s, nil
}
