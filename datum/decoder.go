package datum

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/auroma/avro/avro"
	"github.com/auroma/avro/parsing"
	"github.com/auroma/avro/wire"
)

// Decoder reads binary-encoded values written under one schema and yields
// them under another, applying schema resolution: primitive promotions,
// field reordering, defaults for missing fields and discarding of fields
// the reader does not know. Pass the same schema twice for plain
// validated decoding. One Decoder must not be used from multiple
// goroutines.
type Decoder struct {
	reader *avro.Schema
	in     *wire.Decoder
	parser *parsing.Parser

	// saved holds the suspended inputs while defaults are being decoded
	// from their own byte buffers.
	saved []*wire.Decoder
}

// NewDecoder creates a decoder reading values written under writer and
// returning them under reader. It fails only when a record default cannot
// be represented; incompatibilities between the schemas surface when the
// offending part of a value is actually read.
func NewDecoder(writer, reader *avro.Schema, r io.Reader) (*Decoder, error) {
	root, err := parsing.ResolvingGenerator{}.Generate(writer, reader)
	if err != nil {
		return nil, err
	}
	d := &Decoder{reader: reader, in: wire.NewDecoder(r)}
	d.parser = parsing.NewParser(root, d)
	return d, nil
}

// Read decodes the next value. It returns io.EOF once the input is
// exhausted.
func (d *Decoder) Read() (any, error) {
	v, err := d.read(d.reader)
	if err != nil {
		return nil, err
	}
	if err := d.parser.ProcessTrailingImplicitActions(); err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Decoder) read(sc *avro.Schema) (any, error) {
	switch sc.Type {
	case avro.Null:
		if _, err := d.parser.Advance(parsing.Null); err != nil {
			return nil, err
		}
		return nil, d.in.ReadNull()
	case avro.Boolean:
		if _, err := d.parser.Advance(parsing.Boolean); err != nil {
			return nil, err
		}
		return d.in.ReadBoolean()
	case avro.Int:
		if _, err := d.parser.Advance(parsing.Int); err != nil {
			return nil, err
		}
		return d.in.ReadInt()
	case avro.Long:
		actual, err := d.parser.Advance(parsing.Long)
		if err != nil {
			return nil, err
		}
		if actual == parsing.Int {
			n, err := d.in.ReadInt()
			return int64(n), err
		}
		return d.in.ReadLong()
	case avro.Float:
		actual, err := d.parser.Advance(parsing.Float)
		if err != nil {
			return nil, err
		}
		switch actual {
		case parsing.Int:
			n, err := d.in.ReadInt()
			return float32(n), err
		case parsing.Long:
			n, err := d.in.ReadLong()
			return float32(n), err
		}
		return d.in.ReadFloat()
	case avro.Double:
		actual, err := d.parser.Advance(parsing.Double)
		if err != nil {
			return nil, err
		}
		switch actual {
		case parsing.Int:
			n, err := d.in.ReadInt()
			return float64(n), err
		case parsing.Long:
			n, err := d.in.ReadLong()
			return float64(n), err
		case parsing.Float:
			f, err := d.in.ReadFloat()
			return float64(f), err
		}
		return d.in.ReadDouble()
	case avro.String:
		actual, err := d.parser.Advance(parsing.String)
		if err != nil {
			return nil, err
		}
		if actual == parsing.Bytes {
			b, err := d.in.ReadBytes()
			return string(b), err
		}
		return d.in.ReadString()
	case avro.Bytes:
		actual, err := d.parser.Advance(parsing.Bytes)
		if err != nil {
			return nil, err
		}
		if actual == parsing.String {
			s, err := d.in.ReadString()
			return []byte(s), err
		}
		return d.in.ReadBytes()
	case avro.Fixed:
		if _, err := d.parser.Advance(parsing.Fixed); err != nil {
			return nil, err
		}
		check := d.parser.PopSymbol()
		return d.in.ReadFixed(check.Size)
	case avro.Enum:
		if _, err := d.parser.Advance(parsing.Enum); err != nil {
			return nil, err
		}
		adjust := d.parser.PopSymbol()
		n, err := d.in.ReadInt()
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) >= len(adjust.Adjustments) {
			return nil, fmt.Errorf("datum: enum ordinal %d out of range [0, %d)", n, len(adjust.Adjustments))
		}
		adj := adjust.Adjustments[n]
		if adj.Err != "" {
			return nil, errors.New("datum: " + adj.Err)
		}
		return sc.Symbols[adj.Index], nil
	case avro.Union:
		if _, err := d.parser.Advance(parsing.Union); err != nil {
			return nil, err
		}
		top := d.parser.PopSymbol()
		var branch int
		if top.Action == parsing.ActionUnionAdjust {
			branch = top.Index
			d.parser.PushSymbol(top.ToParse)
		} else {
			n, err := d.in.ReadLong()
			if err != nil {
				return nil, err
			}
			if n < 0 || n >= int64(len(top.Symbols)) {
				return nil, fmt.Errorf("datum: union index %d out of range [0, %d)", n, len(top.Symbols))
			}
			branch = int(n)
			d.parser.PushSymbol(top.Symbols[branch])
		}
		return d.read(sc.Types[branch])
	case avro.Array:
		if _, err := d.parser.Advance(parsing.ArrayStart); err != nil {
			return nil, err
		}
		items := []any{}
		for {
			n, err := d.in.ReadLong()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			if n < 0 {
				// block byte size; irrelevant when every item is parsed
				if _, err := d.in.ReadLong(); err != nil {
					return nil, err
				}
				n = -n
			}
			for ; n > 0; n-- {
				item, err := d.read(sc.Items)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
		}
		if _, err := d.parser.Advance(parsing.ArrayEnd); err != nil {
			return nil, err
		}
		return items, nil
	case avro.Map:
		if _, err := d.parser.Advance(parsing.MapStart); err != nil {
			return nil, err
		}
		m := map[string]any{}
		for {
			n, err := d.in.ReadLong()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			if n < 0 {
				if _, err := d.in.ReadLong(); err != nil {
					return nil, err
				}
				n = -n
			}
			for ; n > 0; n-- {
				if _, err := d.parser.Advance(parsing.String); err != nil {
					return nil, err
				}
				k, err := d.in.ReadString()
				if err != nil {
					return nil, err
				}
				v, err := d.read(sc.Values)
				if err != nil {
					return nil, err
				}
				m[k] = v
			}
		}
		if _, err := d.parser.Advance(parsing.MapEnd); err != nil {
			return nil, err
		}
		return m, nil
	case avro.Record:
		order, err := d.parser.Advance(parsing.FieldAction)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(order.Fields))
		for _, f := range order.Fields {
			v, err := d.read(f.Type)
			if err != nil {
				return nil, err
			}
			m[f.Name] = v
		}
		return m, nil
	}
	panic(fmt.Sprintf("datum: unexpected schema type %v", sc.Type))
}

// DoAction implements parsing.ActionHandler for the resolving read path.
func (d *Decoder) DoAction(input, top *parsing.Symbol) (*parsing.Symbol, error) {
	switch top.Action {
	case parsing.ActionFieldOrder:
		if input == parsing.FieldAction {
			return top, nil
		}
		return nil, nil
	case parsing.ActionResolve:
		if input != top.Reader {
			return nil, &parsing.MismatchError{Input: input, Expected: top.Reader}
		}
		return top.Writer, nil
	case parsing.ActionWriterUnion:
		return nil, d.pushBranch(d.parser.PopSymbol())
	case parsing.ActionSkip:
		depth := d.parser.Depth()
		d.parser.PushSymbol(top.ToSkip)
		return nil, d.skipTo(depth)
	case parsing.ActionDefaultStart:
		d.saved = append(d.saved, d.in)
		d.in = wire.NewDecoder(bytes.NewReader(top.Contents))
		return nil, nil
	case parsing.ActionDefaultEnd:
		d.in = d.saved[len(d.saved)-1]
		d.saved = d.saved[:len(d.saved)-1]
		return nil, nil
	case parsing.ActionError:
		return nil, errors.New("datum: " + top.Msg)
	}
	return nil, fmt.Errorf("datum: unexpected %s action during binary decode", top)
}

// pushBranch reads the writer's union index and splices the chosen branch
// of alt onto the stack.
func (d *Decoder) pushBranch(alt *parsing.Symbol) error {
	n, err := d.in.ReadLong()
	if err != nil {
		return err
	}
	if n < 0 || n >= int64(len(alt.Symbols)) {
		return fmt.Errorf("datum: union index %d out of range [0, %d)", n, len(alt.Symbols))
	}
	d.parser.PushSymbol(alt.Symbols[n])
	return nil
}

// skipTo discards writer data, driving the stack down to the given depth.
// The symbols above it form the grammar of whatever must be thrown away.
func (d *Decoder) skipTo(depth int) error {
	for d.parser.Depth() > depth {
		top := d.parser.PopSymbol()
		switch top.Kind {
		case parsing.KindTerminal:
			if err := d.skipTerminal(top); err != nil {
				return err
			}
		case parsing.KindImplicitAction, parsing.KindExplicitAction:
			if err := d.skipAction(top); err != nil {
				return err
			}
		default:
			d.parser.PushProduction(top)
		}
	}
	return nil
}

func (d *Decoder) skipTerminal(t *parsing.Symbol) error {
	switch t {
	case parsing.Null, parsing.Union:
		return nil
	case parsing.Boolean:
		_, err := d.in.ReadBoolean()
		return err
	case parsing.Int:
		_, err := d.in.ReadInt()
		return err
	case parsing.Long:
		_, err := d.in.ReadLong()
		return err
	case parsing.Float:
		return d.in.Skip(4)
	case parsing.Double:
		return d.in.Skip(8)
	case parsing.String, parsing.Bytes:
		n, err := d.in.ReadLong()
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("datum: negative length %d", n)
		}
		return d.in.Skip(n)
	case parsing.Fixed:
		check := d.parser.PopSymbol()
		return d.in.Skip(int64(check.Size))
	case parsing.Enum:
		check := d.parser.PopSymbol()
		n, err := d.in.ReadInt()
		if err != nil {
			return err
		}
		if n < 0 || int(n) >= check.Size {
			return fmt.Errorf("datum: enum ordinal %d out of range [0, %d)", n, check.Size)
		}
		return nil
	case parsing.ArrayStart, parsing.MapStart:
		return d.skipBlocks(d.parser.PopSymbol())
	}
	return fmt.Errorf("datum: cannot skip %s", t)
}

// skipBlocks discards an array or map whose start terminal has just been
// consumed. rep is its repeater; blocks carrying their byte size are
// skipped wholesale, others item by item through the repeater's body.
func (d *Decoder) skipBlocks(rep *parsing.Symbol) error {
	for {
		n, err := d.in.ReadLong()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if n < 0 {
			size, err := d.in.ReadLong()
			if err != nil {
				return err
			}
			if size < 0 {
				return fmt.Errorf("datum: negative block size %d", size)
			}
			if err := d.in.Skip(size); err != nil {
				return err
			}
			continue
		}
		for ; n > 0; n-- {
			bottom := d.parser.Depth()
			for _, s := range rep.Production[1:] {
				d.parser.PushSymbol(s)
			}
			if err := d.skipTo(bottom); err != nil {
				return err
			}
		}
	}
}

func (d *Decoder) skipAction(top *parsing.Symbol) error {
	switch top.Action {
	case parsing.ActionResolve:
		d.parser.PushSymbol(top.Writer)
	case parsing.ActionSkip:
		d.parser.PushSymbol(top.ToSkip)
	case parsing.ActionUnionAdjust:
		d.parser.PushSymbol(top.ToParse)
	case parsing.ActionWriterUnion:
		return d.pushBranch(d.parser.PopSymbol())
	case parsing.ActionError:
		return errors.New("datum: " + top.Msg)
	case parsing.ActionFieldOrder, parsing.ActionFieldAdjust:
		// field bookkeeping carries no wire data
	case parsing.ActionDefaultStart:
		d.saved = append(d.saved, d.in)
		d.in = wire.NewDecoder(bytes.NewReader(top.Contents))
	case parsing.ActionDefaultEnd:
		d.in = d.saved[len(d.saved)-1]
		d.saved = d.saved[:len(d.saved)-1]
	default:
		return fmt.Errorf("datum: cannot skip %s action", top)
	}
	return nil
}

// Validate reports whether data holds exactly one well-formed binary
// encoding of a value of sc.
func Validate(sc *avro.Schema, data []byte) error {
	r := bytes.NewReader(data)
	d, err := NewDecoder(sc, sc, r)
	if err != nil {
		return err
	}
	if _, err := d.Read(); err != nil {
		return err
	}
	if _, err := d.in.ReadFixed(1); err == nil {
		return errors.New("datum: trailing bytes after value")
	}
	return nil
}
