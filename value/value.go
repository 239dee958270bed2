// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package value holds the tree produced by decoding an XDR buffer.
//
// A tree mirrors the shape of the schema.Def it was decoded with. Every
// Value is owned by its position in the tree: nothing is shared and there
// are no cycles, so a tree is always finite even when its schema is
// recursive.
package value

// Value is a decoded XDR value. The concrete types in this package are the
// only implementations.
type Value interface {
	isValue()
}

// Int is a decoded int or hyper
type Int struct {
	V int64
}

// Uint is a decoded unsigned int or unsigned hyper
type Uint struct {
	V uint64
}

// Float is a decoded float (Bits 32) or double (Bits 64)
type Float struct {
	V    float64
	Bits int
}

type Bool struct {
	V bool
}

// Bytes is decoded fixed or variable length opaque data
type Bytes struct {
	V []byte
}

type String struct {
	V string
}

// Array is a decoded fixed or variable length array, in decode order
type Array struct {
	Elems []Value
}

// Optional is a decoded optional; V is nil when the value was absent
type Optional struct {
	V Value
}

// Enum is a decoded enumeration: its symbolic name and raw discriminant
type Enum struct {
	Name string
	Raw  int32
}

// Field is a member of a Struct
type Field struct {
	Name  string
	Value Value
}

// Struct holds its fields in declaration order
type Struct struct {
	Fields []Field
}

// Union is a decoded discriminated union
type Union struct {
	// Name of the selected arm
	Arm string

	// Decoded discriminant
	Discriminant int64

	// Whether the arm was selected by falling back to the default
	Default bool

	Value Value
}

// Void is the value of the XDR void type
type Void struct{}

func (Int) isValue()      {}
func (Uint) isValue()     {}
func (Float) isValue()    {}
func (Bool) isValue()     {}
func (Bytes) isValue()    {}
func (String) isValue()   {}
func (Array) isValue()    {}
func (Optional) isValue() {}
func (Enum) isValue()     {}
func (Struct) isValue()   {}
func (Union) isValue()    {}
func (Void) isValue()     {}

// Get returns the value of the named field, or nil if there is none
func (s Struct) Get(name string) Value {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}
