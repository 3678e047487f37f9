package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindU64
	KindU128
	KindBool
	KindVector
	KindStruct
	KindReference
	KindAddress
	KindFunction
)

var kindNames = map[Kind]string{
	KindU8:        "u8",
	KindU16:       "u16",
	KindU32:       "u32",
	KindU64:       "u64",
	KindU128:      "u128",
	KindBool:      "bool",
	KindVector:    "vector",
	KindStruct:    "struct",
	KindReference: "reference",
	KindAddress:   "address",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a node of the typed value tree shared by the mutator, the
// scheduler and the execution backends. The set of implementations is closed.
type Value interface {
	Kind() Kind
	String() string

	value()
}

type (
	U8  uint8
	U16 uint16
	U32 uint32
	U64 uint64
)

// U128 is a 128-bit unsigned integer.
type U128 struct {
	Hi, Lo uint64
}

type Bool bool

// AddressLen is the width of an Address in bytes.
const AddressLen = 32

type Address [AddressLen]byte

// Vector is a homogeneous sequence. Elem is a prototype value carrying the
// declared element tag.
type Vector struct {
	Elem  Value
	Elems []Value
}

type Struct struct {
	Fields []Value
}

type Reference struct {
	Mutable bool
	Inner   Value
}

// Function describes a call site. Params is a template that callers clone
// before mutating. A nil Returns means the return types are unknown.
type Function struct {
	Name    string
	Params  []Value
	Returns []Value
}

func (U8) Kind() Kind         { return KindU8 }
func (U16) Kind() Kind        { return KindU16 }
func (U32) Kind() Kind        { return KindU32 }
func (U64) Kind() Kind        { return KindU64 }
func (U128) Kind() Kind       { return KindU128 }
func (Bool) Kind() Kind       { return KindBool }
func (Address) Kind() Kind    { return KindAddress }
func (*Vector) Kind() Kind    { return KindVector }
func (*Struct) Kind() Kind    { return KindStruct }
func (*Reference) Kind() Kind { return KindReference }
func (*Function) Kind() Kind  { return KindFunction }

func (U8) value()         {}
func (U16) value()        {}
func (U32) value()        {}
func (U64) value()        {}
func (U128) value()       {}
func (Bool) value()       {}
func (Address) value()    {}
func (*Vector) value()    {}
func (*Struct) value()    {}
func (*Reference) value() {}
func (*Function) value()  {}

// U128FromBig truncates b to its low 128 bits.
func U128FromBig(b *big.Int) U128 {
	var buf [16]byte
	bs := b.Bytes()
	if len(bs) > 16 {
		bs = bs[len(bs)-16:]
	}
	copy(buf[16-len(bs):], bs)
	return U128FromBytes(buf)
}

// U128FromBytes decodes a big-endian 16 byte array.
func U128FromBytes(b [16]byte) U128 {
	var v U128
	for i := 0; i < 8; i++ {
		v.Hi = v.Hi<<8 | uint64(b[i])
		v.Lo = v.Lo<<8 | uint64(b[i+8])
	}
	return v
}

// Bytes returns the big-endian encoding of v.
func (v U128) Bytes() [16]byte {
	var b [16]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(v.Hi >> (8 * (7 - i)))
		b[i+8] = byte(v.Lo >> (8 * (7 - i)))
	}
	return b
}

func (v U128) Big() *big.Int {
	b := v.Bytes()
	return new(big.Int).SetBytes(b[:])
}

func (v U8) String() string   { return fmt.Sprintf("%du8", uint8(v)) }
func (v U16) String() string  { return fmt.Sprintf("%du16", uint16(v)) }
func (v U32) String() string  { return fmt.Sprintf("%du32", uint32(v)) }
func (v U64) String() string  { return fmt.Sprintf("%du64", uint64(v)) }
func (v U128) String() string { return v.Big().String() + "u128" }
func (v Bool) String() string { return fmt.Sprintf("%t", bool(v)) }

func (v Address) String() string {
	return "@0x" + hex.EncodeToString(v[:])
}

func (v *Vector) String() string {
	if bs, ok := v.ByteSlice(); ok {
		return "x\"" + hex.EncodeToString(bs) + "\""
	}
	return "[" + join(v.Elems) + "]"
}

func (v *Struct) String() string {
	return "{" + join(v.Fields) + "}"
}

func (v *Reference) String() string {
	if v.Mutable {
		return "&mut " + v.Inner.String()
	}
	return "&" + v.Inner.String()
}

func (v *Function) String() string {
	s := v.Name + "(" + join(v.Params) + ")"
	if v.Returns != nil {
		s += ": (" + join(v.Returns) + ")"
	}
	return s
}

// Format renders a sequence of values the way call arguments are printed.
func Format(vs []Value) string {
	return "[" + join(vs) + "]"
}

func join(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// ByteSlice returns the contents of v as bytes if every element is a U8.
func (v *Vector) ByteSlice() ([]byte, bool) {
	out := make([]byte, len(v.Elems))
	for i, e := range v.Elems {
		b, ok := e.(U8)
		if !ok {
			return nil, false
		}
		out[i] = byte(b)
	}
	return out, true
}

// NewByteVector builds a Vector of U8 elements.
func NewByteVector(b []byte) *Vector {
	elems := make([]Value, len(b))
	for i, c := range b {
		elems[i] = U8(c)
	}
	return &Vector{Elem: U8(0), Elems: elems}
}

// AsFunction returns v as a *Function, or false if v is of any other kind.
func AsFunction(v Value) (*Function, bool) {
	f, ok := v.(*Function)
	return f, ok && f != nil
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch v := v.(type) {
	case *Vector:
		return &Vector{Elem: cloneOpt(v.Elem), Elems: CloneAll(v.Elems)}
	case *Struct:
		return &Struct{Fields: CloneAll(v.Fields)}
	case *Reference:
		return &Reference{Mutable: v.Mutable, Inner: cloneOpt(v.Inner)}
	case *Function:
		return &Function{Name: v.Name, Params: CloneAll(v.Params), Returns: CloneAll(v.Returns)}
	default:
		// scalars are plain values
		return v
	}
}

func cloneOpt(v Value) Value {
	if v == nil {
		return nil
	}
	return Clone(v)
}

// CloneAll deep copies vs, preserving nil.
func CloneAll(vs []Value) []Value {
	if vs == nil {
		return nil
	}
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Clone(v)
	}
	return out
}

// Equal reports whether a and b have the same tag and the same nested
// contents.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case *Vector:
		b := b.(*Vector)
		return Equal(a.Elem, b.Elem) && EqualAll(a.Elems, b.Elems)
	case *Struct:
		return EqualAll(a.Fields, b.(*Struct).Fields)
	case *Reference:
		b := b.(*Reference)
		return a.Mutable == b.Mutable && Equal(a.Inner, b.Inner)
	case *Function:
		b := b.(*Function)
		return a.Name == b.Name &&
			EqualAll(a.Params, b.Params) &&
			(a.Returns == nil) == (b.Returns == nil) &&
			EqualAll(a.Returns, b.Returns)
	default:
		return a == b
	}
}

// EqualAll compares two sequences element-wise.
func EqualAll(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
