package avro

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Type identifies the kind of an Avro schema node.
type Type uint8

const (
	Null Type = iota
	Boolean
	Int
	Long
	Float
	Double
	Bytes
	String
	Record
	Enum
	Array
	Map
	Union
	Fixed
)

// String returns the type name as it appears in schema JSON.
func (t Type) String() string {
	switch t {
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	case Bytes:
		return "bytes"
	case String:
		return "string"
	case Record:
		return "record"
	case Enum:
		return "enum"
	case Array:
		return "array"
	case Map:
		return "map"
	case Union:
		return "union"
	case Fixed:
		return "fixed"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Schema represents one node of an Avro schema tree. Named types that
// reference themselves (directly or through arrays, maps, and unions) share
// one *Schema, so pointer identity is a stable memoization key for grammar
// generation.
type Schema struct {
	Type Type

	// Named types (record, enum, fixed)
	Name      string
	Namespace string

	Fields  []*Field  // record
	Symbols []string  // enum, in declaration order
	Items   *Schema   // array element type
	Values  *Schema   // map value type
	Types   []*Schema // union branches; order is part of the wire encoding
	Size    int       // fixed byte length
}

// Field is one record field.
type Field struct {
	Name       string
	Type       *Schema
	Default    any  // decoded default JSON, valid only if HasDefault
	HasDefault bool
	Index      int // position within the record
}

// FullName returns the namespace-qualified name for named types and the
// plain type name otherwise.
func (s *Schema) FullName() string {
	switch s.Type {
	case Record, Enum, Fixed:
		if s.Namespace != "" {
			return s.Namespace + "." + s.Name
		}
		return s.Name
	}
	return s.Type.String()
}

// Field returns the record field with the given name, or nil.
func (s *Schema) Field(name string) *Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// SymbolIndex returns the ordinal of an enum symbol, or -1 when the enum
// does not contain it.
func (s *Schema) SymbolIndex(symbol string) int {
	for i, sym := range s.Symbols {
		if sym == symbol {
			return i
		}
	}
	return -1
}

// String renders the schema as JSON. Named types are written in full the
// first time they appear and by name afterwards, which keeps recursive
// schemas finite.
func (s *Schema) String() string {
	data, err := json.Marshal(s.jsonValue(map[string]bool{}))
	if err != nil {
		// The tree is built from plain maps, slices and scalars.
		panic(fmt.Sprintf("avro: schema serialization: %v", err))
	}
	return string(data)
}

func (s *Schema) jsonValue(written map[string]bool) any {
	switch s.Type {
	case Record, Enum, Fixed:
		full := s.FullName()
		if written[full] {
			return full
		}
		written[full] = true
		m := map[string]any{
			"type": s.Type.String(),
			"name": s.Name,
		}
		if s.Namespace != "" {
			m["namespace"] = s.Namespace
		}
		switch s.Type {
		case Record:
			fields := make([]any, len(s.Fields))
			for i, f := range s.Fields {
				fm := map[string]any{
					"name": f.Name,
					"type": f.Type.jsonValue(written),
				}
				if f.HasDefault {
					fm["default"] = f.Default
				}
				fields[i] = fm
			}
			m["fields"] = fields
		case Enum:
			m["symbols"] = s.Symbols
		case Fixed:
			m["size"] = s.Size
		}
		return m
	case Array:
		return map[string]any{"type": "array", "items": s.Items.jsonValue(written)}
	case Map:
		return map[string]any{"type": "map", "values": s.Values.jsonValue(written)}
	case Union:
		branches := make([]any, len(s.Types))
		for i, b := range s.Types {
			branches[i] = b.jsonValue(written)
		}
		return branches
	}
	return s.Type.String()
}

// nameRegex matches valid Avro names: letters, digits and underscores, not
// starting with a digit.
var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validName(name string) bool {
	return nameRegex.MatchString(name)
}

func validNamespace(ns string) bool {
	if ns == "" {
		return true
	}
	for _, part := range strings.Split(ns, ".") {
		if !validName(part) {
			return false
		}
	}
	return true
}
