// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package errors defines the structured failures reported while resolving
// and decoding XDR values.
package errors

import (
	"fmt"
	"strings"
)

// Kind classifies a conversion failure. Every Kind is itself an error, so
// that callers may test for it with errors.Is.
type Kind int

const (
	// Requested type name is not in the registry
	UnknownType Kind = iota + 1

	// Buffer exhausted before a value was fully readable
	TruncatedInput

	// Length prefix exceeds the bound declared by the schema (or the input
	// exceeds the configured maximum input length)
	LengthExceeded

	// Boolean held a value other than 0 or 1
	InvalidBoolean

	// Optional presence flag held a value other than 0 or 1
	InvalidOptionalTag

	// Enum discriminant has no symbolic name
	UnknownEnumValue

	// Union discriminant selects no arm and the union has no default
	UnknownUnionArm

	// Nested decoding exceeded the configured depth
	RecursionLimitExceeded

	// String bytes were not valid UTF-8
	MalformedText

	// Padding bytes were not zero (only reported in strict mode)
	NonZeroPadding

	// Bytes remained after the top-level value (only reported when trailing
	// bytes are rejected)
	TrailingBytes

	// Registry construction found a dangling reference or an illegal cycle
	InvalidSchema
)

var kindNames = map[Kind]string{
	UnknownType:            "unknown type",
	TruncatedInput:         "truncated input",
	LengthExceeded:         "length exceeded",
	InvalidBoolean:         "invalid boolean",
	InvalidOptionalTag:     "invalid optional tag",
	UnknownEnumValue:       "unknown enum value",
	UnknownUnionArm:        "unknown union arm",
	RecursionLimitExceeded: "recursion limit exceeded",
	MalformedText:          "malformed text",
	NonZeroPadding:         "non-zero padding",
	TrailingBytes:          "trailing bytes",
	InvalidSchema:          "invalid schema",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string {
	return "xdr2json: " + k.String()
}

// Error is a conversion failure with enough context to find the fault in the
// input without a debugger.
type Error struct {
	Kind Kind

	// Name of the type whose conversion was requested
	Type string

	// Field/arm path from Type down to the failing value, e.g.
	// "Envelope.ops[2].body(payment).amount"
	Path string

	// Byte offset at which the failure was detected, or -1 if it does not
	// apply
	Offset int

	// Free-form description of the failure
	Detail string
}

// New returns an Error of kind k detected at offset off.
func New(k Kind, off int, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   k,
		Offset: off,
		Detail: fmt.Sprintf(format, args...),
	}
}

func (err *Error) Unwrap() error {
	return err.Kind
}

func (err *Error) Error() string {
	var b strings.Builder
	b.WriteString(err.Kind.Error())
	if err.Detail != "" {
		b.WriteString(": ")
		b.WriteString(err.Detail)
	}

	var ctx []string
	if err.Type != "" {
		ctx = append(ctx, "type "+err.Type)
	}
	if err.Path != "" {
		ctx = append(ctx, "at "+err.Path)
	}
	if err.Offset >= 0 {
		ctx = append(ctx, fmt.Sprintf("offset %d", err.Offset))
	}
	if len(ctx) != 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	return b.String()
}

// WithField prepends a path segment to err, if err is an *Error. Segments
// beginning with '[' or '(' attach directly to the segment before them;
// anything else is joined with a dot.
func WithField(err error, seg string) error {
	e, ok := err.(*Error)
	if !ok || seg == "" {
		return err
	}

	switch {
	case e.Path == "":
		e.Path = seg
	case e.Path[0] == '[' || e.Path[0] == '(':
		e.Path = seg + e.Path
	default:
		e.Path = seg + "." + e.Path
	}
	return e
}

// WithType records the requested type name on err, if err is an *Error and
// has none yet.
func WithType(err error, name string) error {
	if e, ok := err.(*Error); ok && e.Type == "" {
		e.Type = name
	}
	return err
}
