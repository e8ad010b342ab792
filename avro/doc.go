// Package avro implements the Avro schema model: the typed tree that
// describes the shape of serialized data.
//
// A schema is one of:
//
//   - a primitive: null, boolean, int, long, float, double, bytes, string
//   - a record: named, with an ordered list of typed fields
//   - an enum: named, with an ordered list of symbols
//   - an array of one element type
//   - a map from string keys to one value type
//   - a union: an ordered list of branch types
//   - a fixed: named, with a declared byte length
//
// Schemas are parsed from their JSON representation with Parse. Named types
// may reference themselves, so a schema tree can be cyclic; all references
// to one named type share a single *Schema, and pointer identity is the key
// used by grammar generation to terminate recursion.
//
// The grammar machinery that turns a schema into an executable read/write
// plan lives in the parsing package; encoders and decoders for concrete
// values live in the datum package.
package avro
