package parsing

import (
	"fmt"
)

// ActionHandler resolves format-specific behavior for action symbols. The
// automaton handles terminals and non-terminals itself; implicit and
// explicit actions are delegated here. Returning a non-nil symbol makes
// Advance return that symbol immediately; returning nil lets the automaton
// keep processing the stack. Errors propagate to the automaton's caller
// unchanged.
type ActionHandler interface {
	DoAction(input, top *Symbol) (*Symbol, error)
}

// MismatchError reports input that cannot be reconciled with the terminal
// expected by the grammar. It is fatal to the current parse.
type MismatchError struct {
	Input    *Symbol
	Expected *Symbol
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("attempt to process a %s when a %s was expected", e.Input, e.Expected)
}

// Parser is the pushdown automaton that walks a flattened grammar. All
// parse-time state lives here; the grammar itself is immutable and may be
// shared by any number of parsers, but one Parser must not be used from
// multiple goroutines.
type Parser struct {
	handler ActionHandler
	stack   []*Symbol
	pos     int
}

// NewParser creates a parser positioned at the start of the grammar rooted
// at root. The initial stack is deliberately small so the growth path is
// exercised routinely.
func NewParser(root *Symbol, handler ActionHandler) *Parser {
	stack := make([]*Symbol, 5)
	stack[0] = root
	return &Parser{handler: handler, stack: stack, pos: 1}
}

// Advance replaces the symbol at the top of the stack with its production,
// repeatedly, until the top is a terminal, then checks it against input.
// It returns the matched terminal, or whatever non-nil symbol the action
// handler short-circuited with.
func (p *Parser) Advance(input *Symbol) (*Symbol, error) {
	for {
		p.pos--
		top := p.stack[p.pos]
		if top == input {
			return top, nil // the common case
		}
		switch {
		case top.Kind == KindImplicitAction:
			result, err := p.handler.DoAction(input, top)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
		case top.Kind == KindTerminal:
			return nil, &MismatchError{Input: input, Expected: top}
		case top.Kind == KindRepeater && input == top.End:
			return input, nil
		default:
			p.PushProduction(top)
		}
	}
}

// ProcessImplicitActions drains the implicit actions at the top of the
// stack, expanding any non-terminal encountered on the way, until a
// terminal is exposed. Callers use it between values to flush bookkeeping
// actions that do not gate on input. Finding a repeater is a contract
// violation: repeaters need caller input to decide whether to continue.
func (p *Parser) ProcessImplicitActions() error {
	for p.pos > 1 {
		top := p.stack[p.pos-1]
		switch {
		case top.Kind == KindImplicitAction:
			p.pos--
			if _, err := p.handler.DoAction(nil, top); err != nil {
				return err
			}
		case top.Kind == KindRepeater:
			return fmt.Errorf("parsing: repeater at top of stack while processing implicit actions")
		case top.Kind != KindTerminal:
			p.pos--
			p.PushProduction(top)
		default:
			return nil
		}
	}
	return nil
}

// ProcessTrailingImplicitActions fires the trailing implicit actions at the
// top of the stack. Trailing actions are the subset that must run even when
// no further input is expected, such as end-of-record bookkeeping.
func (p *Parser) ProcessTrailingImplicitActions() error {
	for p.pos >= 1 {
		top := p.stack[p.pos-1]
		if top.Kind != KindImplicitAction || !top.Trailing {
			return nil
		}
		p.pos--
		if _, err := p.handler.DoAction(nil, top); err != nil {
			return err
		}
	}
	return nil
}

// PushProduction copies a symbol's flattened production onto the stack,
// growing storage as needed. The stack never shrinks.
func (p *Parser) PushProduction(sym *Symbol) {
	production := sym.Production
	for p.pos+len(production) > len(p.stack) {
		p.grow()
	}
	copy(p.stack[p.pos:], production)
	p.pos += len(production)
}

func (p *Parser) grow() {
	step := len(p.stack)
	if step < 1024 {
		step = 1024
	}
	next := make([]*Symbol, len(p.stack)+step)
	copy(next, p.stack)
	p.stack = next
}

// PopSymbol pops and returns the top of the stack.
func (p *Parser) PopSymbol() *Symbol {
	p.pos--
	return p.stack[p.pos]
}

// TopSymbol returns the top of the stack without popping.
func (p *Parser) TopSymbol() *Symbol {
	return p.stack[p.pos-1]
}

// PushSymbol pushes one symbol onto the stack. Action handlers use it to
// splice ad-hoc symbols, such as the chosen branch of a union.
func (p *Parser) PushSymbol(sym *Symbol) {
	if p.pos == len(p.stack) {
		p.grow()
	}
	p.stack[p.pos] = sym
	p.pos++
}

// Depth returns the current stack height.
func (p *Parser) Depth() int {
	return p.pos
}

// Reset rewinds the parser to its initial single-root state without
// rebuilding the grammar.
func (p *Parser) Reset() {
	p.pos = 1
}
