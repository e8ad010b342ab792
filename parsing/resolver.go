package parsing

import (
	"fmt"

	"github.com/auroma/avro/avro"
)

// ResolvingGenerator builds the grammar for reading data written with one
// schema (the writer's) as values of another (the reader's): fields are
// matched by name and may be reordered, writer-only fields are skipped,
// reader-only fields take their defaults, primitives are promoted, and
// union branches are re-mapped. Incompatible pairings produce grammars
// containing error actions, detectable up front with HasErrors.
type ResolvingGenerator struct{}

// schemaPair keys memoization on the identity of both schemas: the same
// writer resolved against two different readers yields two grammars.
type schemaPair struct {
	writer *avro.Schema
	reader *avro.Schema
}

// Generate returns the flattened root symbol for reading writer-shaped data
// as reader-shaped values. It fails only on malformed defaults; shape
// incompatibilities are expressed as error actions inside the grammar.
func (g ResolvingGenerator) Generate(writer, reader *avro.Schema) (*Symbol, error) {
	start, err := g.generate(writer, reader, make(map[schemaPair]*Symbol))
	if err != nil {
		return nil, err
	}
	return Root(start), nil
}

func terminalFor(t avro.Type) *Symbol {
	switch t {
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
	}
	panic(fmt.Sprintf("parsing: no terminal for schema type %v", t))
}

func (g ResolvingGenerator) generate(writer, reader *avro.Schema, seen map[schemaPair]*Symbol) (*Symbol, error) {
	if writer.Type == reader.Type {
		switch writer.Type {
		case avro.Null, avro.Boolean, avro.Int, avro.Long, avro.Float, avro.Double, avro.Bytes, avro.String:
			return terminalFor(writer.Type), nil
		case avro.Fixed:
			if writer.FullName() == reader.FullName() && writer.Size == reader.Size {
				return Seq(IntCheckAction(writer.Size), Fixed), nil
			}
		case avro.Enum:
			if writer.FullName() == reader.FullName() {
				return Seq(mkEnumAdjust(writer.Symbols, reader.Symbols), Enum), nil
			}
		case avro.Array:
			elem, err := g.generate(writer.Items, reader.Items, seen)
			if err != nil {
				return nil, err
			}
			return Seq(Repeat(ArrayEnd, elem), ArrayStart), nil
		case avro.Map:
			val, err := g.generate(writer.Values, reader.Values, seen)
			if err != nil {
				return nil, err
			}
			return Seq(Repeat(MapEnd, val, String), MapStart), nil
		case avro.Record:
			return g.resolveRecords(writer, reader, seen)
		case avro.Union:
			return g.resolveUnion(writer, reader, seen)
		default:
			panic(fmt.Sprintf("parsing: unexpected schema type %v", writer.Type))
		}
		return mismatch(writer, reader), nil
	}

	if writer.Type == avro.Union {
		return g.resolveUnion(writer, reader, seen)
	}

	switch reader.Type {
	case avro.Long:
		if writer.Type == avro.Int {
			return ResolveAction(terminalFor(writer.Type), Long), nil
		}
	case avro.Float:
		switch writer.Type {
		case avro.Int, avro.Long:
			return ResolveAction(terminalFor(writer.Type), Float), nil
		}
	case avro.Double:
		switch writer.Type {
		case avro.Int, avro.Long, avro.Float:
			return ResolveAction(terminalFor(writer.Type), Double), nil
		}
	case avro.Bytes:
		if writer.Type == avro.String {
			return ResolveAction(terminalFor(writer.Type), Bytes), nil
		}
	case avro.String:
		if writer.Type == avro.Bytes {
			return ResolveAction(terminalFor(writer.Type), String), nil
		}
	case avro.Union:
		j, err := g.bestBranch(reader, writer, seen)
		if err != nil {
			return nil, err
		}
		if j >= 0 {
			branch, err := g.generate(writer, reader.Types[j], seen)
			if err != nil {
				return nil, err
			}
			return Seq(UnionAdjustAction(j, branch), Union), nil
		}
	}
	return mismatch(writer, reader), nil
}

func mismatch(writer, reader *avro.Schema) *Symbol {
	return ErrorAction(fmt.Sprintf("found %s, expecting %s", writer.FullName(), reader.FullName()))
}

// resolveUnion handles a writer union: every writer branch is resolved
// against the whole reader schema, and a writer-union action marks where
// the branch index must be read.
func (g ResolvingGenerator) resolveUnion(writer, reader *avro.Schema, seen map[schemaPair]*Symbol) (*Symbol, error) {
	branches := make([]*Symbol, len(writer.Types))
	labels := make([]string, len(writer.Types))
	for i, w := range writer.Types {
		b, err := g.generate(w, reader, seen)
		if err != nil {
			return nil, err
		}
		branches[i] = b
		labels[i] = w.FullName()
	}
	return Seq(Alt(branches, labels), WriterUnionAction()), nil
}

// mkEnumAdjust maps each writer ordinal to the reader's ordinal for the
// same symbol, or to an error for symbols the reader does not have.
func mkEnumAdjust(wsyms, rsyms []string) *Symbol {
	adjustments := make([]EnumAdjustment, len(wsyms))
	for i, sym := range wsyms {
		j := -1
		for k, r := range rsyms {
			if r == sym {
				j = k
				break
			}
		}
		if j < 0 {
			adjustments[i] = EnumAdjustment{Index: -1, Err: "no match for " + sym}
		} else {
			adjustments[i] = EnumAdjustment{Index: j}
		}
	}
	return EnumAdjustAction(len(rsyms), adjustments)
}

// bestBranch picks the reader union branch best matching a non-union
// writer schema: an exact type match first (by full name for named types,
// falling back to the first structurally compatible record), then a match
// via numeric promotion. Returns -1 when nothing matches.
func (g ResolvingGenerator) bestBranch(reader, writer *avro.Schema, seen map[schemaPair]*Symbol) (int, error) {
	structureMatch := -1
	for j, b := range reader.Types {
		if b.Type != writer.Type {
			continue
		}
		switch writer.Type {
		case avro.Record, avro.Enum, avro.Fixed:
			if writer.FullName() == b.FullName() {
				return j, nil
			}
			if writer.Type == avro.Record {
				r, err := g.resolveRecords(writer, b, seen)
				if err != nil {
					return -1, err
				}
				if !HasErrors(r) {
					// Prefer the first structural match, or one whose
					// short name agrees.
					if structureMatch < 0 || writer.Name == b.Name {
						structureMatch = j
					}
				}
			}
		default:
			return j, nil
		}
	}
	if structureMatch >= 0 {
		return structureMatch, nil
	}
	for j, b := range reader.Types {
		switch writer.Type {
		case avro.Int:
			switch b.Type {
			case avro.Long, avro.Float, avro.Double:
				return j, nil
			}
		case avro.Long:
			switch b.Type {
			case avro.Float, avro.Double:
				return j, nil
			}
		case avro.Float:
			if b.Type == avro.Double {
				return j, nil
			}
		case avro.String:
			if b.Type == avro.Bytes {
				return j, nil
			}
		case avro.Bytes:
			if b.Type == avro.String {
				return j, nil
			}
		}
	}
	return -1, nil
}

// resolveRecords matches fields by name. The production starts with a
// field-order action carrying the reader's fields in the order the
// writer's data supplies them; writer-only fields become skip actions, and
// reader-only fields with defaults are decoded from their encoded default
// bytes at the end of the record.
func (g ResolvingGenerator) resolveRecords(writer, reader *avro.Schema, seen map[schemaPair]*Symbol) (*Symbol, error) {
	key := schemaPair{writer, reader}
	if result, ok := seen[key]; ok {
		return result, nil
	}

	reordered := make([]*avro.Field, 0, len(reader.Fields))
	count := 1 + len(writer.Fields)
	for _, wf := range writer.Fields {
		if rf := reader.Field(wf.Name); rf != nil {
			reordered = append(reordered, rf)
		}
	}
	var defaulted []*avro.Field
	for _, rf := range reader.Fields {
		if writer.Field(rf.Name) != nil {
			continue
		}
		if !rf.HasDefault {
			result := ErrorAction(fmt.Sprintf(
				"found %s, expecting %s, missing required field %s",
				writer.FullName(), reader.FullName(), rf.Name))
			seen[key] = result
			return result, nil
		}
		defaulted = append(defaulted, rf)
		reordered = append(reordered, rf)
		count += 3
	}

	production := make([]*Symbol, count)
	production[count-1] = FieldOrderAction(reordered)
	result := Seq(production...)
	seen[key] = result

	i := count - 1
	for _, wf := range writer.Fields {
		i--
		if rf := reader.Field(wf.Name); rf != nil {
			s, err := g.generate(wf.Type, rf.Type, seen)
			if err != nil {
				return nil, err
			}
			production[i] = s
		} else {
			s, err := g.generate(wf.Type, wf.Type, seen)
			if err != nil {
				return nil, err
			}
			production[i] = SkipAction(s)
		}
	}
	for _, rf := range defaulted {
		contents, err := encodeDefault(rf.Type, rf.Default)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", reader.FullName(), rf.Name, err)
		}
		s, err := g.generate(rf.Type, rf.Type, seen)
		if err != nil {
			return nil, err
		}
		i--
		production[i] = DefaultStartAction(contents)
		i--
		production[i] = s
		i--
		production[i] = DefaultEnd
	}
	return result, nil
}
