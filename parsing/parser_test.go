package parsing

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/auroma/avro/avro"
)

// failActions is the handler for grammars that contain no actions.
type failActions struct{}

func (failActions) DoAction(input, top *Symbol) (*Symbol, error) {
	return nil, fmt.Errorf("unexpected action %s", top)
}

// ============================================================
// Advance Tests
// ============================================================

func TestAdvance_Terminals(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record",
		"name": "R",
		"fields": [
			{"name": "a", "type": "long"},
			{"name": "b", "type": "string"},
			{"name": "c", "type": "boolean"}
		]
	}`)
	p := NewParser(ValidatingGenerator{}.Generate(sc), failActions{})
	for _, want := range []*Symbol{Long, String, Boolean} {
		got, err := p.Advance(want)
		if err != nil {
			t.Fatalf("Advance(%s) failed: %v", want, err)
		}
		if got != want {
			t.Errorf("Advance(%s): got %s", want, got)
		}
	}
}

func TestAdvance_Mismatch(t *testing.T) {
	p := NewParser(ValidatingGenerator{}.Generate(avro.MustParse(`"long"`)), failActions{})
	_, err := p.Advance(String)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want MismatchError", err)
	}
	if mismatch.Input != String || mismatch.Expected != Long {
		t.Errorf("got input %s expected %s", mismatch.Input, mismatch.Expected)
	}
	want := "attempt to process a string when a long was expected"
	if err.Error() != want {
		t.Errorf("message: got %q, want %q", err.Error(), want)
	}
}

func TestAdvance_RepeaterBoundary(t *testing.T) {
	sc := avro.MustParse(`{"type":"array","items":"int"}`)
	grammar := ValidatingGenerator{}.Generate(sc)

	// empty array
	p := NewParser(grammar, failActions{})
	if _, err := p.Advance(ArrayStart); err != nil {
		t.Fatalf("ArrayStart: %v", err)
	}
	if _, err := p.Advance(ArrayEnd); err != nil {
		t.Fatalf("ArrayEnd on empty array: %v", err)
	}

	// items then end; the repeater must loop any number of times
	p = NewParser(grammar, failActions{})
	if _, err := p.Advance(ArrayStart); err != nil {
		t.Fatalf("ArrayStart: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, err := p.Advance(Int); err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
	}
	if _, err := p.Advance(ArrayEnd); err != nil {
		t.Fatalf("ArrayEnd: %v", err)
	}

	// the end terminal of a different loop must not match
	p = NewParser(grammar, failActions{})
	if _, err := p.Advance(ArrayStart); err != nil {
		t.Fatalf("ArrayStart: %v", err)
	}
	if _, err := p.Advance(MapEnd); err == nil {
		t.Error("MapEnd matched an array repeater")
	}
}

func TestAdvance_UnionBranch(t *testing.T) {
	sc := avro.MustParse(`["null", "string"]`)
	p := NewParser(ValidatingGenerator{}.Generate(sc), failActions{})
	if _, err := p.Advance(Union); err != nil {
		t.Fatalf("Advance(Union): %v", err)
	}
	alt := p.PopSymbol()
	if alt.Kind != KindAlternative {
		t.Fatalf("got %s, want alternative", alt.Kind)
	}
	p.PushSymbol(alt.Symbols[1])
	if _, err := p.Advance(String); err != nil {
		t.Fatalf("Advance(String) on chosen branch: %v", err)
	}
}

func TestAdvance_FixedCheck(t *testing.T) {
	sc := avro.MustParse(`{"type":"fixed","name":"F","size":8}`)
	p := NewParser(ValidatingGenerator{}.Generate(sc), failActions{})
	if _, err := p.Advance(Fixed); err != nil {
		t.Fatalf("Advance(Fixed): %v", err)
	}
	check := p.PopSymbol()
	if check.Action != ActionIntCheck || check.Size != 8 {
		t.Errorf("got %s size %d, want int-check size 8", check, check.Size)
	}
}

// ============================================================
// Stack Tests
// ============================================================

func TestStackGrowth_DeepRecursion(t *testing.T) {
	// the recursive field comes first, so every node leaves its value
	// pending on the stack; a deep chain must grow the stack far past
	// its initial size
	sc := avro.MustParse(`{
		"type": "record",
		"name": "Node",
		"fields": [
			{"name": "next", "type": ["null", "Node"]},
			{"name": "value", "type": "long"}
		]
	}`)
	p := NewParser(ValidatingGenerator{}.Generate(sc), failActions{})
	const depth = 20000
	for i := 0; i < depth; i++ {
		if _, err := p.Advance(Union); err != nil {
			t.Fatalf("node %d: %v", i, err)
		}
		alt := p.PopSymbol()
		p.PushSymbol(alt.Symbols[1])
	}
	// terminate the chain, then drain the pending values
	if _, err := p.Advance(Union); err != nil {
		t.Fatal(err)
	}
	alt := p.PopSymbol()
	p.PushSymbol(alt.Symbols[0])
	if _, err := p.Advance(Null); err != nil {
		t.Fatal(err)
	}
	if p.Depth() <= depth {
		t.Errorf("Depth: got %d, want more than %d pending symbols", p.Depth(), depth)
	}
	for i := 0; i <= depth; i++ {
		if _, err := p.Advance(Long); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
	}
	if p.Depth() != 1 {
		t.Errorf("Depth after drain: got %d, want 1", p.Depth())
	}
}

func TestReset(t *testing.T) {
	grammar := ValidatingGenerator{}.Generate(avro.MustParse(`"int"`))
	p := NewParser(grammar, failActions{})
	if _, err := p.Advance(Int); err != nil {
		t.Fatal(err)
	}
	p.Reset()
	if p.Depth() != 1 {
		t.Errorf("Depth after Reset: got %d, want 1", p.Depth())
	}
	if _, err := p.Advance(Int); err != nil {
		t.Fatalf("Advance after Reset: %v", err)
	}
}

// ============================================================
// Implicit Action Tests
// ============================================================

func TestProcessImplicitActions_RepeaterIsAnError(t *testing.T) {
	sc := avro.MustParse(`{"type":"array","items":"int"}`)
	p := NewParser(ValidatingGenerator{}.Generate(sc), failActions{})
	if _, err := p.Advance(ArrayStart); err != nil {
		t.Fatal(err)
	}
	if err := p.ProcessImplicitActions(); err == nil {
		t.Error("ProcessImplicitActions with a repeater on top succeeded, want error")
	}
}

// countActions records how many implicit actions it sees.
type countActions struct {
	n int
}

func (c *countActions) DoAction(input, top *Symbol) (*Symbol, error) {
	c.n++
	return nil, nil
}

func TestProcessTrailingImplicitActions(t *testing.T) {
	h := &countActions{}
	root := Root(Seq(RecordEnd, FieldEnd, Long))
	p := NewParser(root, h)
	if _, err := p.Advance(Long); err != nil {
		t.Fatal(err)
	}
	if err := p.ProcessTrailingImplicitActions(); err != nil {
		t.Fatal(err)
	}
	if h.n != 2 {
		t.Errorf("trailing actions fired: got %d, want 2", h.n)
	}
	if p.Depth() != 1 {
		t.Errorf("Depth: got %d, want 1", p.Depth())
	}
}

// ============================================================
// Concurrency Tests
// ============================================================

func TestSharedGrammar_ConcurrentParsers(t *testing.T) {
	sc := avro.MustParse(`{
		"type": "record",
		"name": "R",
		"fields": [
			{"name": "xs", "type": {"type": "array", "items": "double"}},
			{"name": "name", "type": "string"}
		]
	}`)
	grammar := ValidatingGenerator{}.Generate(sc)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := NewParser(grammar, failActions{})
			for round := 0; round < 500; round++ {
				for _, step := range []*Symbol{ArrayStart, Double, Double, ArrayEnd, String} {
					if _, err := p.Advance(step); err != nil {
						errs <- err
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent parse failed: %v", err)
	}
}
