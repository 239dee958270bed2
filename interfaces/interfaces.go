// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package xdrinterfaces defines the primary interfaces of the XDR to JSON
// converter
//
// (This package is primarily separated out so that Go types may describe
// themselves to the schema builder without importing it)
package xdrinterfaces

// interface EnumNamer is implemented by Go types which represent XDR
// enumerations, so that their symbolic names can be derived when building a
// schema from Go types.
//
//     type Color int32
//
//     func (Color) XDREnumNames() map[int32]string {
//         return map[int32]string{0: "RED", 1: "GREEN"}
//     }
type EnumNamer interface {
	XDREnumNames() map[int32]string
}

// interface Converter is the top-level interface to a conversion engine
//
// A Converter may be safely used from multiple goroutines
type Converter interface {
	// Convert decodes buf as the named type and returns its canonical JSON
	// projection. No JSON is returned on error.
	Convert(typeName string, buf []byte) ([]byte, error)
}
