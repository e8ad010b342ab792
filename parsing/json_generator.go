package parsing

import (
	"github.com/auroma/avro/avro"
)

// JSONGenerator builds the grammar for reading and writing values in the
// JSON encoding. Arrays and maps carry item-end markers, map keys are
// bracketed by a key marker, enums are matched by label, and records are
// bracketed by start/end actions with a field-adjust action per field so
// the caller can emit or match field names. Everything else follows the
// base grammar.
type JSONGenerator struct{}

// Generate returns the flattened root symbol for the JSON grammar of sc.
func (g JSONGenerator) Generate(sc *avro.Schema) *Symbol {
	return Root(g.generate(sc, make(map[*avro.Schema]*Symbol)))
}

func (g JSONGenerator) generate(sc *avro.Schema, seen map[*avro.Schema]*Symbol) *Symbol {
	switch sc.Type {
	case avro.Enum:
		return Seq(EnumLabelsAction(sc.Symbols), Enum)
	case avro.Array:
		return Seq(
			Repeat(ArrayEnd, ItemEnd, g.generate(sc.Items, seen)),
			ArrayStart)
	case avro.Map:
		return Seq(
			Repeat(MapEnd, ItemEnd, g.generate(sc.Values, seen), MapKeyMarker, String),
			MapStart)
	case avro.Record:
		result := seen[sc]
		if result == nil {
			production := make([]*Symbol, len(sc.Fields)*3+2)
			result = Seq(production...)
			seen[sc] = result
			i := len(production)
			i--
			production[i] = RecordStart
			for n, f := range sc.Fields {
				i--
				production[i] = FieldAdjustAction(n, f.Name)
				i--
				production[i] = g.generate(f.Type, seen)
				i--
				production[i] = FieldEnd
			}
			i--
			production[i] = RecordEnd
		}
		return result
	default:
		return baseGenerate(g, sc, seen)
	}
}
