package parsing

import (
	"fmt"

	"github.com/auroma/avro/avro"
)

// grammarGenerator produces the start symbol for one schema node. The base
// dispatch recurses through this interface, so a format-specific generator
// sees its own composite handling for nested types while reusing the base
// for everything else.
type grammarGenerator interface {
	generate(sc *avro.Schema, seen map[*avro.Schema]*Symbol) *Symbol
}

// ValidatingGenerator builds the grammar that describes the exact order in
// which primitive values of a schema are read or written in the binary
// encoding.
type ValidatingGenerator struct{}

// Generate returns the flattened root symbol for the grammar of sc.
func (g ValidatingGenerator) Generate(sc *avro.Schema) *Symbol {
	return Root(g.generate(sc, make(map[*avro.Schema]*Symbol)))
}

func (g ValidatingGenerator) generate(sc *avro.Schema, seen map[*avro.Schema]*Symbol) *Symbol {
	return baseGenerate(g, sc, seen)
}

// baseGenerate maps one schema node to its production. Recursive records
// are handled by registering a placeholder sequence in seen before the
// field grammars are generated; a self-reference encountered during the
// descent returns the placeholder instead of recursing, and the
// placeholder's production is filled in place once the field loop is done.
func baseGenerate(g grammarGenerator, sc *avro.Schema, seen map[*avro.Schema]*Symbol) *Symbol {
	switch sc.Type {
	case avro.Null:
		return Null
	case avro.Boolean:
		return Boolean
	case avro.Int:
		return Int
	case avro.Long:
		return Long
	case avro.Float:
		return Float
	case avro.Double:
		return Double
	case avro.Bytes:
		return Bytes
	case avro.String:
		return String
	case avro.Fixed:
		return Seq(IntCheckAction(sc.Size), Fixed)
	case avro.Enum:
		return Seq(IntCheckAction(len(sc.Symbols)), Enum)
	case avro.Array:
		return Seq(Repeat(ArrayEnd, g.generate(sc.Items, seen)), ArrayStart)
	case avro.Map:
		return Seq(Repeat(MapEnd, g.generate(sc.Values, seen), String), MapStart)
	case avro.Union:
		branches := make([]*Symbol, len(sc.Types))
		labels := make([]string, len(sc.Types))
		for i, b := range sc.Types {
			branches[i] = g.generate(b, seen)
			labels[i] = b.FullName()
		}
		return Seq(Alt(branches, labels), Union)
	case avro.Record:
		result := seen[sc]
		if result == nil {
			production := make([]*Symbol, len(sc.Fields))
			result = Seq(production...)
			seen[sc] = result
			i := len(production)
			for _, f := range sc.Fields {
				i--
				production[i] = g.generate(f.Type, seen)
			}
		}
		return result
	}
	panic(fmt.Sprintf("parsing: unexpected schema type %v", sc.Type))
}
