package parsing

import (
	"testing"

	"github.com/auroma/avro/avro"
)

// reachable collects every symbol reachable from s through productions,
// branches and action payloads.
func reachable(s *Symbol, out map[*Symbol]bool) {
	if s == nil || out[s] {
		return
	}
	out[s] = true
	for _, c := range s.Production {
		reachable(c, out)
	}
	for _, c := range s.Symbols {
		reachable(c, out)
	}
	reachable(s.End, out)
	reachable(s.ToParse, out)
	reachable(s.ToSkip, out)
	reachable(s.Writer, out)
	reachable(s.Reader, out)
}

func checkFlat(t *testing.T, root *Symbol) {
	t.Helper()
	all := map[*Symbol]bool{}
	reachable(root, all)
	for s := range all {
		for i, c := range s.Production {
			if c == nil {
				t.Fatalf("%s has nil production slot %d", s, i)
			}
			if c.Kind == KindSequence {
				t.Errorf("%s production slot %d is an unflattened sequence", s, i)
			}
		}
	}
}

// ============================================================
// Flattening Tests
// ============================================================

func TestRoot_SelfReference(t *testing.T) {
	root := ValidatingGenerator{}.Generate(avro.MustParse(`"int"`))
	if root.Kind != KindRoot {
		t.Fatalf("got %s, want root", root.Kind)
	}
	if root.Production[0] != root {
		t.Error("root production must begin with the root itself")
	}
	checkFlat(t, root)
}

func TestRepeat_SelfReference(t *testing.T) {
	r := Repeat(ArrayEnd, Long)
	if r.Production[0] != r {
		t.Error("repeater production must begin with the repeater itself")
	}
	if r.End != ArrayEnd {
		t.Errorf("End: got %s, want array-end", r.End)
	}
}

func TestFlatten_NestedSequences(t *testing.T) {
	inner := Seq(Int, String)
	outer := Seq(inner, Boolean, inner)
	root := Root(outer)
	// root self + 2×(Int, String) + Boolean
	if got, want := len(root.Production), 6; got != want {
		t.Fatalf("flattened length: got %d, want %d", got, want)
	}
	checkFlat(t, root)
}

func TestFlatten_DirectRecursion(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record",
		"name": "Node",
		"fields": [
			{"name": "value", "type": "long"},
			{"name": "next", "type": ["null", "Node"]}
		]
	}`)
	root := ValidatingGenerator{}.Generate(sc)
	checkFlat(t, root)

	// the recursive branch must share its ancestor's flattened array
	// rather than unrolling it
	var alt *Symbol
	for _, s := range root.Production {
		if s.Kind == KindAlternative {
			alt = s
		}
	}
	if alt == nil {
		t.Fatal("no alternative in flattened production")
	}
	rec := alt.Symbols[1]
	if rec.Kind != KindSequence {
		t.Fatalf("recursive branch: got %s, want sequence", rec.Kind)
	}
	for _, s := range rec.Production {
		if s == nil {
			t.Fatal("recursive branch production has a nil slot: fixup never applied")
		}
	}
}

func TestFlatten_IndirectRecursion(t *testing.T) {
	// the cycle passes through two records, so flattening must patch
	// fixups across intermediate in-progress sequences
	sc := avro.MustParse(`{
		"type": "record",
		"name": "A",
		"fields": [
			{"name": "b", "type": {
				"type": "record",
				"name": "B",
				"fields": [
					{"name": "a", "type": ["null", "A"]},
					{"name": "tag", "type": "string"}
				]
			}}
		]
	}`)
	for name, root := range map[string]*Symbol{
		"validating": ValidatingGenerator{}.Generate(sc),
		"json":       JSONGenerator{}.Generate(sc),
	} {
		t.Run(name, func(t *testing.T) {
			checkFlat(t, root)
		})
	}
}

func TestFlatten_RecursionThroughArray(t *testing.T) {
	// the record's own sequence is reached again inside the repeater while
	// its flattening is still in progress, so the repeater's array holds a
	// fixup until the record's production is complete
	sc := avro.MustParse(`{
		"type": "record",
		"name": "Tree",
		"fields": [
			{"name": "label", "type": "string"},
			{"name": "children", "type": {"type": "array", "items": "Tree"}}
		]
	}`)
	root := ValidatingGenerator{}.Generate(sc)
	checkFlat(t, root)

	var rep *Symbol
	all := map[*Symbol]bool{}
	reachable(root, all)
	for s := range all {
		if s.Kind == KindRepeater && s.End == ArrayEnd {
			rep = s
		}
	}
	if rep == nil {
		t.Fatal("no array repeater in grammar")
	}
	for i, s := range rep.Production {
		if s == nil {
			t.Fatalf("repeater slot %d left unpatched: fixup never applied", i)
		}
	}
	// the repeater body is the record's own flattened production
	if rep.Production[len(rep.Production)-1] != String {
		t.Error("repeater body should start with the record's first terminal")
	}
}

func TestFlatten_RecursionThroughMap(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record",
		"name": "Env",
		"fields": [{"name": "vars", "type": {"type": "map", "values": "Env"}}]
	}`)
	checkFlat(t, ValidatingGenerator{}.Generate(sc))
}

func TestFlatten_SharedSubschema(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record",
		"name": "Pair",
		"fields": [
			{"name": "left", "type": {"type": "record", "name": "Leaf",
				"fields": [{"name": "v", "type": "int"}]}},
			{"name": "right", "type": "Leaf"}
		]
	}`)
	checkFlat(t, ValidatingGenerator{}.Generate(sc))
}

// ============================================================
// Symbol Tests
// ============================================================

func TestFindLabel(t *testing.T) {
	alt := Alt([]*Symbol{Null, Int}, []string{"null", "int"})
	if got := alt.FindLabel("int"); got != 1 {
		t.Errorf("FindLabel(int): got %d, want 1", got)
	}
	if got := alt.FindLabel("string"); got != -1 {
		t.Errorf("FindLabel(string): got %d, want -1", got)
	}
}

func TestTerminalIdentity(t *testing.T) {
	root := ValidatingGenerator{}.Generate(avro.MustParse(`{"type":"array","items":"int"}`))
	all := map[*Symbol]bool{}
	reachable(root, all)
	if !all[Int] {
		t.Error("grammar does not use the Int singleton")
	}
	if !all[ArrayStart] || !all[ArrayEnd] {
		t.Error("grammar does not use the array terminal singletons")
	}
}

// ============================================================
// HasErrors Tests
// ============================================================

func TestHasErrors(t *testing.T) {
	if HasErrors(Root(Seq(Int, String))) {
		t.Error("plain grammar reported errors")
	}
	if !HasErrors(Root(Seq(Int, ErrorAction("boom")))) {
		t.Error("error action not found")
	}
	if !HasErrors(Root(Seq(Alt([]*Symbol{Int, ErrorAction("boom")}, []string{"a", "b"}), Union))) {
		t.Error("error action in alternative branch not found")
	}
	if !HasErrors(Root(SkipAction(ErrorAction("boom")))) {
		t.Error("error action behind skip not found")
	}
}

func TestHasErrors_RecursiveGrammar(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record",
		"name": "Node",
		"fields": [{"name": "next", "type": ["null", "Node"]}]
	}`)
	root, err := ResolvingGenerator{}.Generate(sc, sc)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// must terminate on the cyclic grammar
	if HasErrors(root) {
		t.Error("self-resolution reported errors")
	}
}
