// Package parsing implements the grammar engine behind the Avro encoders
// and decoders: a schema is compiled into a flat grammar of symbols, and a
// pushdown automaton walks that grammar in lock-step with the bytes or
// tokens the caller consumes or produces.
package parsing

import (
	"fmt"

	"github.com/auroma/avro/avro"
)

// Kind enumerates the symbol categories of the grammar.
type Kind uint8

const (
	// KindTerminal symbols have no production; they stand for one
	// primitive wire operation.
	KindTerminal Kind = iota
	// KindRoot is the start symbol of a grammar.
	KindRoot
	// KindSequence is an ordered composite of other symbols.
	KindSequence
	// KindRepeater represents the repeated contents of an array or map.
	KindRepeater
	// KindAlternative represents a labeled choice among branch grammars.
	KindAlternative
	// KindImplicitAction symbols are consumed by the automaton itself,
	// through the caller's action handler.
	KindImplicitAction
	// KindExplicitAction symbols are consumed by the caller directly.
	KindExplicitAction
)

func (k Kind) String() string {
	switch k {
	case KindTerminal:
		return "terminal"
	case KindRoot:
		return "root"
	case KindSequence:
		return "sequence"
	case KindRepeater:
		return "repeater"
	case KindAlternative:
		return "alternative"
	case KindImplicitAction:
		return "implicit-action"
	case KindExplicitAction:
		return "explicit-action"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ActionKind tags the payload carried by an action symbol.
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionRecordStart
	ActionRecordEnd
	ActionUnionEnd
	ActionFieldEnd
	ActionDefaultEnd
	ActionError
	ActionFieldAdjust
	ActionFieldOrder
	ActionDefaultStart
	ActionUnionAdjust
	ActionWriterUnion
	ActionEnumAdjust
	ActionEnumLabels
	ActionIntCheck
	ActionSkip
	ActionResolve
)

// EnumAdjustment maps one writer enum ordinal to a reader ordinal. When the
// reader has no matching symbol, Err carries the message to raise if that
// ordinal is ever read.
type EnumAdjustment struct {
	Index int
	Err   string
}

// Symbol is one node of a parsing grammar. A symbol is immutable once its
// grammar's root has been constructed; the only mutation ever applied is
// the in-place patching of production slots while a recursive grammar is
// being built, and such partially built symbols never escape the
// construction pass. Symbols are compared by pointer identity; terminals
// are package-level singletons shared by every grammar.
type Symbol struct {
	Kind Kind

	// Production holds the children in reverse order, so copying it onto
	// a stack yields the correct pop order. It is nil for terminals and
	// alternatives. For roots and repeaters, Production[0] is the symbol
	// itself, which keeps the loop (or the streaming root) on the stack
	// across iterations.
	Production []*Symbol

	Name string // terminal display name

	End *Symbol // KindRepeater: terminal whose arrival stops the loop

	Symbols []*Symbol // KindAlternative: branch grammars
	Labels  []string  // KindAlternative branch labels; ActionEnumLabels symbols

	Action   ActionKind
	Trailing bool // implicit action that fires even when no input is expected

	Msg         string           // ActionError
	Index       int              // ActionFieldAdjust, ActionUnionAdjust: reader index
	FieldName   string           // ActionFieldAdjust
	Fields      []*avro.Field    // ActionFieldOrder: reader fields in writer order
	Contents    []byte           // ActionDefaultStart: binary-encoded default value
	Size        int              // ActionIntCheck, ActionEnumAdjust, ActionEnumLabels
	Adjustments []EnumAdjustment // ActionEnumAdjust
	ToParse     *Symbol          // ActionUnionAdjust
	ToSkip      *Symbol          // ActionSkip
	Writer      *Symbol          // ActionResolve
	Reader      *Symbol          // ActionResolve
}

func (s *Symbol) String() string {
	switch {
	case s == nil:
		return "<nil>"
	case s.Kind == KindTerminal:
		return s.Name
	default:
		return s.Kind.String()
	}
}

// FindLabel returns the index of a label among an alternative's branches or
// an enum-labels action's symbols, or -1 when absent. Absence is not an
// error here; the caller decides how to report it.
func (s *Symbol) FindLabel(label string) int {
	for i, l := range s.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

func terminal(name string) *Symbol {
	return &Symbol{Kind: KindTerminal, Name: name}
}

func implicit(action ActionKind, trailing bool) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: action, Trailing: trailing}
}

// Terminal singletons. Equality against these is by pointer identity; the
// automaton's fast path relies on it.
var (
	Null    = terminal("null")
	Boolean = terminal("boolean")
	Int     = terminal("int")
	Long    = terminal("long")
	Float   = terminal("float")
	Double  = terminal("double")
	String  = terminal("string")
	Bytes   = terminal("bytes")
	Fixed   = terminal("fixed")
	Enum    = terminal("enum")
	Union   = terminal("union")

	ArrayStart = terminal("array-start")
	ArrayEnd   = terminal("array-end")
	MapStart   = terminal("map-start")
	MapEnd     = terminal("map-end")
	ItemEnd    = terminal("item-end")

	// FieldAction is a pseudo terminal: callers advance on it to claim
	// the field-order action of a resolving record grammar.
	FieldAction = terminal("field-action")

	MapKeyMarker = terminal("map-key-marker")
)

// Implicit action singletons shared by every grammar.
var (
	RecordStart = implicit(ActionRecordStart, false)
	RecordEnd   = implicit(ActionRecordEnd, true)
	UnionEnd    = implicit(ActionUnionEnd, true)
	FieldEnd    = implicit(ActionFieldEnd, true)
	DefaultEnd  = implicit(ActionDefaultEnd, true)
)

// Seq returns a sequence with the given production. The production must
// already be in reverse order: the symbol consumed first goes last. The
// returned symbol shares the argument slice, so a caller may allocate the
// production first, register the sequence, and fill the slots afterwards;
// that is how recursive record grammars are tied.
func Seq(production ...*Symbol) *Symbol {
	return &Symbol{Kind: KindSequence, Production: production}
}

// Root builds the flattened start symbol for a grammar. Its production's
// first element is the root itself, so a parser that consumes the whole
// grammar lands back on the root and can keep going in streaming use.
func Root(symbols ...*Symbol) *Symbol {
	production := make([]*Symbol, flattenedSizeOf(symbols, 0)+1)
	root := &Symbol{Kind: KindRoot, Production: production}
	production[0] = root
	flattenInto(symbols, 0, production, 1,
		make(map[*Symbol]*Symbol), make(map[*Symbol]*[]fixup))
	return root
}

// Repeat returns a repeater that loops over toRepeat until the caller
// advances on end. The end symbol is never part of the loop body.
func Repeat(end *Symbol, toRepeat ...*Symbol) *Symbol {
	production := make([]*Symbol, len(toRepeat)+1)
	copy(production[1:], toRepeat)
	r := &Symbol{Kind: KindRepeater, Production: production, End: end}
	production[0] = r
	return r
}

// Alt returns an alternative over the given branch grammars and labels.
func Alt(symbols []*Symbol, labels []string) *Symbol {
	return &Symbol{Kind: KindAlternative, Symbols: symbols, Labels: labels}
}

// ErrorAction returns an implicit action that fails with msg if the parse
// ever reaches it. Grammars that cannot succeed for some inputs carry these
// in the offending branches; HasErrors detects them ahead of time.
func ErrorAction(msg string) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionError, Msg: msg}
}

// ResolveAction pairs the writer's symbol with the reader's expected
// terminal for a promoted primitive read.
func ResolveAction(writer, reader *Symbol) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionResolve, Writer: writer, Reader: reader}
}

// IntCheckAction carries a declared size: a fixed's byte length or an
// enum's symbol count.
func IntCheckAction(size int) *Symbol {
	return &Symbol{Kind: KindExplicitAction, Action: ActionIntCheck, Size: size}
}

// EnumAdjustAction carries the writer-ordinal to reader-ordinal mapping for
// a resolved enum. Size is the reader's symbol count.
func EnumAdjustAction(size int, adjustments []EnumAdjustment) *Symbol {
	return &Symbol{Kind: KindExplicitAction, Action: ActionEnumAdjust, Size: size, Adjustments: adjustments}
}

// EnumLabelsAction carries an enum's ordered symbol list; the JSON grammar
// uses it to map between labels and ordinals.
func EnumLabelsAction(symbols []string) *Symbol {
	return &Symbol{Kind: KindExplicitAction, Action: ActionEnumLabels, Size: len(symbols), Labels: symbols}
}

// WriterUnionAction marks the point where the writer's union index must be
// read to choose the branch to parse.
func WriterUnionAction() *Symbol {
	return implicit(ActionWriterUnion, false)
}

// SkipAction wraps the grammar of a writer field absent from the reader;
// the action handler walks it to discard the field's data. It is trailing
// so skipped trailing fields are still drained at end of record.
func SkipAction(toSkip *Symbol) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionSkip, Trailing: true, ToSkip: toSkip}
}

// FieldAdjustAction carries a field's reader index and name.
func FieldAdjustAction(index int, name string) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionFieldAdjust, Index: index, FieldName: name}
}

// FieldOrderAction carries the reader's fields in the order the writer's
// data supplies them.
func FieldOrderAction(fields []*avro.Field) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionFieldOrder, Fields: fields}
}

// DefaultStartAction carries the binary encoding of a field default; the
// action handler reads from these bytes until the matching DefaultEnd.
func DefaultStartAction(contents []byte) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionDefaultStart, Contents: contents}
}

// UnionAdjustAction records that the writer's (non-union) value maps to
// reader union branch index, parsed by toParse.
func UnionAdjustAction(index int, toParse *Symbol) *Symbol {
	return &Symbol{Kind: KindImplicitAction, Action: ActionUnionAdjust, Index: index, ToParse: toParse}
}

// ============================================================
// Flattening
// ============================================================
//
// Nested sequences are inlined into single contiguous arrays so the
// automaton can copy a whole production onto its stack in one operation.
// Self-referential sequences are the hard part: when a sequence is reached
// again while its own flattening is still in progress, the same incomplete
// output is returned and a fixup records where its array must be copied
// once it is finished. Recursive grammars therefore share their ancestor's
// array rather than unrolling it.

// fixup records a patch location: a slice of an output array that must
// receive a copy of a sequence's production once that production is
// complete.
type fixup struct {
	symbols []*Symbol
	pos     int
}

// flatten returns an equivalent fully-inlined symbol. seen maps each
// sequence being (or already) flattened to its output; fixups maps each
// in-progress output to the patches registered against it.
func (s *Symbol) flatten(seen map[*Symbol]*Symbol, fixups map[*Symbol]*[]fixup) *Symbol {
	switch s.Kind {
	case KindSequence:
		result := seen[s]
		if result == nil {
			result = Seq(make([]*Symbol, s.flattenedSize())...)
			seen[s] = result
			pending := &[]fixup{}
			fixups[result] = pending
			flattenInto(s.Production, 0, result.Production, 0, seen, fixups)
			for _, f := range *pending {
				copy(f.symbols[f.pos:f.pos+len(result.Production)], result.Production)
			}
			delete(fixups, result)
		}
		return result
	case KindRepeater:
		production := make([]*Symbol, flattenedSizeOf(s.Production, 1)+1)
		r := &Symbol{Kind: KindRepeater, Production: production, End: s.End}
		production[0] = r
		flattenInto(s.Production, 1, production, 1, seen, fixups)
		return r
	case KindAlternative:
		branches := make([]*Symbol, len(s.Symbols))
		for i, b := range s.Symbols {
			branches[i] = b.flatten(seen, fixups)
		}
		return Alt(branches, s.Labels)
	case KindImplicitAction:
		switch s.Action {
		case ActionResolve:
			return ResolveAction(s.Writer.flatten(seen, fixups), s.Reader.flatten(seen, fixups))
		case ActionUnionAdjust:
			return UnionAdjustAction(s.Index, s.ToParse.flatten(seen, fixups))
		case ActionSkip:
			return SkipAction(s.ToSkip.flatten(seen, fixups))
		}
	}
	return s
}

// flattenInto expands in[start:] into out[skip:]. Sequence children are
// spliced in place; a sequence whose flattening is still in progress leaves
// a null-filled hole and registers a fixup instead.
func flattenInto(in []*Symbol, start int, out []*Symbol, skip int, seen map[*Symbol]*Symbol, fixups map[*Symbol]*[]fixup) {
	j := skip
	for i := start; i < len(in); i++ {
		f := in[i].flatten(seen, fixups)
		if f.Kind == KindSequence {
			p := f.Production
			if pending, inProgress := fixups[f]; inProgress {
				*pending = append(*pending, fixup{out, j})
			} else {
				copy(out[j:j+len(p)], p)
				// p may itself contain holes that some in-progress
				// sequence will patch later; mirror those patches
				// into out as well.
				for _, pending := range fixups {
					copyFixups(pending, out, j, p)
				}
			}
			j += len(p)
		} else {
			out[j] = f
			j++
		}
	}
}

// copyFixups duplicates every pending patch aimed at the copied array so it
// also lands in the new copy. Appending while iterating is safe: only the
// entries present at entry are examined.
func copyFixups(pending *[]fixup, out []*Symbol, outPos int, copied []*Symbol) {
	n := len(*pending)
	for i := 0; i < n; i++ {
		f := (*pending)[i]
		if sameProduction(f.symbols, copied) {
			*pending = append(*pending, fixup{out, f.pos + outPos})
		}
	}
}

// sameProduction reports whether two slices are views of the same array.
func sameProduction(a, b []*Symbol) bool {
	return len(a) == len(b) && len(a) > 0 && &a[0] == &b[0]
}

// flattenedSize returns the length of the symbol's flattened production,
// counting 1 for anything that is not a sequence.
func (s *Symbol) flattenedSize() int {
	if s.Kind == KindSequence {
		return flattenedSizeOf(s.Production, 0)
	}
	return 1
}

func flattenedSizeOf(symbols []*Symbol, start int) int {
	size := 0
	for i := start; i < len(symbols); i++ {
		if symbols[i].Kind == KindSequence {
			size += symbols[i].flattenedSize()
		} else {
			size++
		}
	}
	return size
}

// ============================================================
// Error reachability
// ============================================================

// HasErrors reports whether any symbol reachable from s is an error action,
// meaning the grammar can never successfully parse some inputs. Callers use
// it to reject an incompatible schema pairing at construction time instead
// of per value.
func HasErrors(s *Symbol) bool {
	return hasErrors(s, make(map[*Symbol]bool))
}

func hasErrors(s *Symbol, visited map[*Symbol]bool) bool {
	if visited[s] {
		return false
	}
	visited[s] = true
	switch s.Kind {
	case KindTerminal, KindExplicitAction:
		return false
	case KindAlternative:
		return anyErrors(s.Symbols, visited)
	case KindImplicitAction:
		switch s.Action {
		case ActionError:
			return true
		case ActionSkip:
			return hasErrors(s.ToSkip, visited)
		case ActionUnionAdjust:
			return hasErrors(s.ToParse, visited)
		case ActionResolve:
			return hasErrors(s.Writer, visited) || hasErrors(s.Reader, visited)
		}
		return false
	case KindRepeater:
		return hasErrors(s.End, visited) || anyErrors(s.Production, visited)
	default: // root, sequence
		return anyErrors(s.Production, visited)
	}
}

func anyErrors(symbols []*Symbol, visited map[*Symbol]bool) bool {
	for _, s := range symbols {
		if hasErrors(s, visited) {
			return true
		}
	}
	return false
}
