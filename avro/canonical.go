package avro

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// ============================================================
// Parsing Canonical Form
// ============================================================
//
// Two schemas with the same canonical form describe the same shape on the
// wire: documentation, aliases, defaults and attribute ordering are
// stripped, names are fully qualified, and the remaining JSON is rendered
// with a fixed key order and no whitespace.

// Canonical returns the parsing canonical form of the schema.
func (s *Schema) Canonical() string {
	var b strings.Builder
	writeCanonical(&b, s, map[string]bool{})
	return b.String()
}

// Fingerprint returns the SHA-256 fingerprint of the canonical form as a
// lowercase hex string.
func (s *Schema) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.Canonical()))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, s *Schema, written map[string]bool) {
	switch s.Type {
	case Record, Enum, Fixed:
		full := s.FullName()
		if written[full] {
			writeJSONString(b, full)
			return
		}
		written[full] = true
		b.WriteString(`{"name":`)
		writeJSONString(b, full)
		b.WriteString(`,"type":`)
		writeJSONString(b, s.Type.String())
		switch s.Type {
		case Record:
			b.WriteString(`,"fields":[`)
			for i, f := range s.Fields {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(`{"name":`)
				writeJSONString(b, f.Name)
				b.WriteString(`,"type":`)
				writeCanonical(b, f.Type, written)
				b.WriteByte('}')
			}
			b.WriteByte(']')
		case Enum:
			b.WriteString(`,"symbols":[`)
			for i, sym := range s.Symbols {
				if i > 0 {
					b.WriteByte(',')
				}
				writeJSONString(b, sym)
			}
			b.WriteByte(']')
		case Fixed:
			b.WriteString(`,"size":`)
			b.WriteString(strconv.Itoa(s.Size))
		}
		b.WriteByte('}')
	case Array:
		b.WriteString(`{"type":"array","items":`)
		writeCanonical(b, s.Items, written)
		b.WriteByte('}')
	case Map:
		b.WriteString(`{"type":"map","values":`)
		writeCanonical(b, s.Values, written)
		b.WriteByte('}')
	case Union:
		b.WriteByte('[')
		for i, t := range s.Types {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, t, written)
		}
		b.WriteByte(']')
	default:
		writeJSONString(b, s.Type.String())
	}
}

func writeJSONString(b *strings.Builder, s string) {
	// Names and symbols never need escaping, but field names from foreign
	// schemas might; delegate to encoding/json for correctness.
	data, _ := json.Marshal(s)
	b.Write(data)
}
