// Package value implements the cross-cutting Value tagged union (spec
// §3.1). Every typed interface in the runtime — signals, function args,
// parameters, call results — uses Value at its boundary so a declared type
// with an unset payload is distinguishable from a zero payload.
package value

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which variant of Value is populated.
type Kind uint8

const (
	// Unset marks a declared-but-never-written Value: Kind is known but no
	// payload has been set.
	Unset Kind = iota
	Double
	Int64
	Uint64
	Bool
	String
	Bytes
)

func (k Kind) String() string {
	switch k {
	case Double:
		return "double"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	default:
		return "unset"
	}
}

// KindFromString is the inverse of Kind.String, used when decoding ArgSpec
// type tags off the wire or out of config. Unknown strings return Unset,
// false.
func KindFromString(s string) (Kind, bool) {
	switch s {
	case "double":
		return Double, true
	case "int64":
		return Int64, true
	case "uint64":
		return Uint64, true
	case "bool":
		return Bool, true
	case "string":
		return String, true
	case "bytes":
		return Bytes, true
	default:
		return Unset, false
	}
}

// Value is a declared-type-plus-payload union. The zero Value is a declared
// Unset with no payload — distinct from, say, a declared Double carrying
// 0.0.
type Value struct {
	kind Kind
	d    float64
	i    int64
	u    uint64
	b    bool
	s    string
	by   []byte
}

func Double(v float64) Value { return Value{kind: Double, d: v} }
func Int64(v int64) Value    { return Value{kind: Int64, i: v} }
func Uint64(v uint64) Value  { return Value{kind: Uint64, u: v} }
func Bool(v bool) Value      { return Value{kind: Bool, b: v} }
func String(v string) Value  { return Value{kind: String, s: v} }
func Bytes(v []byte) Value   { return Value{kind: Bytes, by: append([]byte(nil), v...)} }

// Declared returns an Unset Value of the given kind — "declared double,
// payload unset" differs from a Value that was never declared at all.
func Declared(k Kind) Value { return Value{kind: k} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsDouble() (float64, bool) {
	if v.kind != Double {
		return 0, false
	}
	return v.d, true
}

func (v Value) AsInt64() (int64, bool) {
	if v.kind != Int64 {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsUint64() (uint64, bool) {
	if v.kind != Uint64 {
		return 0, false
	}
	return v.u, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != Bytes {
		return nil, false
	}
	return append([]byte(nil), v.by...), true
}

// ToDouble coerces the payload to a double for contexts that only consume
// numbers (the BT ReadSignal node: bool->0/1, strings are not
// applicable). ok is false for String, Bytes, and Unset.
func (v Value) ToDouble() (float64, bool) {
	switch v.kind {
	case Double:
		return v.d, true
	case Int64:
		return float64(v.i), true
	case Uint64:
		return float64(v.u), true
	case Bool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Equal implements exact value-variant equality, the comparison the State
// Cache uses to decide whether a signal update changed.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Double:
		return a.d == b.d
	case Int64:
		return a.i == b.i
	case Uint64:
		return a.u == b.u
	case Bool:
		return a.b == b.b
	case String:
		return a.s == b.s
	case Bytes:
		return string(a.by) == string(b.by)
	default:
		return true // both Unset
	}
}

func (v Value) String() string {
	switch v.kind {
	case Double:
		return fmt.Sprintf("%g", v.d)
	case Int64:
		return fmt.Sprintf("%d", v.i)
	case Uint64:
		return fmt.Sprintf("%d", v.u)
	case Bool:
		return fmt.Sprintf("%t", v.b)
	case String:
		return v.s
	case Bytes:
		return fmt.Sprintf("%x", v.by)
	default:
		return "<unset>"
	}
}

// wireValue is the JSON-on-the-wire shape for a Value: a declared type
// tag plus whichever payload field applies.
type wireValue struct {
	Type   string  `json:"type"`
	Double float64 `json:"double,omitempty"`
	Int64  int64   `json:"int64,omitempty"`
	Uint64 uint64  `json:"uint64,omitempty"`
	Bool   bool    `json:"bool,omitempty"`
	String string  `json:"string,omitempty"`
	Bytes  []byte  `json:"bytes,omitempty"`
	Unset  bool    `json:"unset,omitempty"`
}

// MarshalJSON encodes the declared type tag separately from the payload so
// an Unset Double and a zero-valued Double round-trip distinctly.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Type: v.kind.String()}
	switch v.kind {
	case Double:
		w.Double = v.d
	case Int64:
		w.Int64 = v.i
	case Uint64:
		w.Uint64 = v.u
	case Bool:
		w.Bool = v.b
	case String:
		w.String = v.s
	case Bytes:
		w.Bytes = v.by
	default:
		w.Unset = true
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var w wireValue
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	k, ok := KindFromString(w.Type)
	if !ok {
		*v = Value{kind: Unset}
		return nil
	}
	if w.Unset {
		*v = Value{kind: k}
		return nil
	}
	switch k {
	case Double:
		*v = Double(w.Double)
	case Int64:
		*v = Int64(w.Int64)
	case Uint64:
		*v = Uint64(w.Uint64)
	case Bool:
		*v = Bool(w.Bool)
	case String:
		*v = String(w.String)
	case Bytes:
		*v = Bytes(w.Bytes)
	default:
		*v = Value{kind: Unset}
	}
	return nil
}
