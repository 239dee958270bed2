// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package schema describes the shape of XDR values.
//
// A Def is one of the XDR type constructors of RFC 4506. Definitions nest
// anonymously, or refer to other definitions by name through Ref; a Ref is
// only looked up in the Registry when a value of that type is decoded, so
// recursive schemas never need to be expanded.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Def is an XDR type definition. The concrete types in this package are the
// only implementations.
type Def interface {
	// String returns the definition in (approximately) XDR language syntax
	String() string

	isDef()
}

// PrimitiveKind enumerates the fixed-size scalar types
type PrimitiveKind int

const (
	Int32 PrimitiveKind = iota + 1
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Bool
)

var primitiveNames = map[PrimitiveKind]string{
	Int32:   "int",
	Uint32:  "unsigned int",
	Int64:   "hyper",
	Uint64:  "unsigned hyper",
	Float32: "float",
	Float64: "double",
	Bool:    "bool",
}

func (k PrimitiveKind) String() string {
	if s, ok := primitiveNames[k]; ok {
		return s
	}
	return fmt.Sprintf("primitive(%d)", int(k))
}

// Size returns the encoded size of the primitive in bytes
func (k PrimitiveKind) Size() int {
	switch k {
	case Int64, Uint64, Float64:
		return 8
	default:
		return 4
	}
}

// Primitive is one of int, unsigned int, hyper, unsigned hyper, float,
// double or bool.
type Primitive struct {
	Kind PrimitiveKind
}

// FixedOpaque is `opaque ident[Len]`.
type FixedOpaque struct {
	Len uint32
}

// VarOpaque is `opaque ident<MaxLen>`. MaxLen only applies when Bounded is
// set; `opaque ident<>` is unbounded.
type VarOpaque struct {
	MaxLen  uint32
	Bounded bool
}

// VarString is `string ident<MaxLen>`. MaxLen only applies when Bounded is
// set.
type VarString struct {
	MaxLen  uint32
	Bounded bool
}

// FixedArray is `Elem ident[Len]`.
type FixedArray struct {
	Elem Def
	Len  uint32
}

// VarArray is `Elem ident<MaxLen>`. MaxLen only applies when Bounded is set.
type VarArray struct {
	Elem    Def
	MaxLen  uint32
	Bounded bool
}

// Optional is `Elem *ident`.
type Optional struct {
	Elem Def
}

// Enum maps each legal discriminant to its symbolic name.
type Enum struct {
	Names map[int32]string
}

// Field is a single member of a Struct.
type Field struct {
	Name string
	Type Def
}

// Struct decodes its fields strictly in declaration order.
type Struct struct {
	Fields []Field
}

// Arm is a union arm: the type decoded when the discriminant equals any of
// Cases. Name is the key the arm projects under; when empty, it is derived
// from the discriminant.
type Arm struct {
	Name  string
	Cases []int64
	Type  Def
}

// Union selects one arm by a decoded discriminant, which must be an int,
// unsigned int, bool or enum (possibly through a Ref).
type Union struct {
	Discriminant Def
	Arms         []Arm

	// Default is used when no arm matches; nil if the union has none
	Default *Arm
}

// Ref names another definition in the Registry.
type Ref struct {
	Name string
}

// Void is the XDR void type: it encodes to nothing.
type Void struct{}

func (Primitive) isDef()   {}
func (FixedOpaque) isDef() {}
func (VarOpaque) isDef()   {}
func (VarString) isDef()   {}
func (FixedArray) isDef()  {}
func (VarArray) isDef()    {}
func (Optional) isDef()    {}
func (Enum) isDef()        {}
func (Struct) isDef()      {}
func (Union) isDef()       {}
func (Ref) isDef()         {}
func (Void) isDef()        {}

func maxLenString(n uint32, bounded bool) string {
	if !bounded {
		return "<>"
	}
	return fmt.Sprintf("<%d>", n)
}

func (d Primitive) String() string   { return d.Kind.String() }
func (d FixedOpaque) String() string { return fmt.Sprintf("opaque[%d]", d.Len) }
func (d VarOpaque) String() string   { return "opaque" + maxLenString(d.MaxLen, d.Bounded) }
func (d VarString) String() string   { return "string" + maxLenString(d.MaxLen, d.Bounded) }
func (d FixedArray) String() string  { return fmt.Sprintf("%s[%d]", d.Elem, d.Len) }
func (d VarArray) String() string    { return d.Elem.String() + maxLenString(d.MaxLen, d.Bounded) }
func (d Optional) String() string    { return d.Elem.String() + "*" }
func (d Ref) String() string         { return d.Name }
func (Void) String() string          { return "void" }

func (d Enum) String() string {
	vals := make([]int32, 0, len(d.Names))
	for v := range d.Names {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })

	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%s = %d", d.Names[v], v)
	}
	return "enum { " + strings.Join(parts, ", ") + " }"
}

func (d Struct) String() string {
	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		parts[i] = fmt.Sprintf("%s %s;", f.Type, f.Name)
	}
	return "struct { " + strings.Join(parts, " ") + " }"
}

func (d Union) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "union switch (%s) {", d.Discriminant)
	for _, a := range d.Arms {
		for _, c := range a.Cases {
			fmt.Fprintf(&b, " case %d:", c)
		}
		fmt.Fprintf(&b, " %s %s;", a.Type, a.Name)
	}
	if d.Default != nil {
		fmt.Fprintf(&b, " default: %s %s;", d.Default.Type, d.Default.Name)
	}
	b.WriteString(" }")
	return b.String()
}

// Lookup returns the arm selected by discriminant v, falling back to the
// default arm. isDefault reports whether the default arm was chosen.
func (d *Union) Lookup(v int64) (arm *Arm, isDefault bool) {
	for i := range d.Arms {
		for _, c := range d.Arms[i].Cases {
			if c == v {
				return &d.Arms[i], false
			}
		}
	}
	if d.Default != nil {
		return d.Default, true
	}
	return nil, false
}
