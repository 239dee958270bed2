// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package projector renders a value tree as canonical JSON.
//
// The projection is a structural mirror of the tree with one exception:
// integers outside the range a double can represent exactly
// ([-(2^53-1), 2^53-1]) are rendered as strings of their decimal
// representation, since many JSON parsers would otherwise silently round
// them. This applies to every integer regardless of its XDR width.
//
// The remaining rules are:
//   * floats are numbers; NaN, +Inf and -Inf are the strings "NaN",
//     "Infinity" and "-Infinity"
//   * opaque data is a lowercase hex string
//   * an absent optional is null; a present one is its value
//   * enums are their symbolic name
//   * structs are objects with fields in declaration order
//   * unions are single-key objects keyed by the selected arm (or "default")
//   * void is null
package projector

import (
	"math"
	"strconv"
	"unicode/utf8"

	"go.e43.eu/xdr2json/value"
)

const (
	// MaxSafeInteger is the largest integer projected as a JSON number
	MaxSafeInteger = 1<<53 - 1

	// MinSafeInteger is the smallest integer projected as a JSON number
	MinSafeInteger = -MaxSafeInteger
)

// Sentinels for non-finite floats
const (
	NaN              = "NaN"
	PositiveInfinity = "Infinity"
	NegativeInfinity = "-Infinity"
)

// Project returns the JSON text of v.
func Project(v value.Value) []byte {
	return AppendJSON(nil, v)
}

// AppendJSON appends the JSON text of v to dst and returns the extended
// buffer. A nil v is rendered as null.
func AppendJSON(dst []byte, v value.Value) []byte {
	switch v := v.(type) {
	case nil:
		return append(dst, "null"...)

	case value.Int:
		if v.V < MinSafeInteger || v.V > MaxSafeInteger {
			dst = append(dst, '"')
			dst = strconv.AppendInt(dst, v.V, 10)
			return append(dst, '"')
		}
		return strconv.AppendInt(dst, v.V, 10)

	case value.Uint:
		if v.V > MaxSafeInteger {
			dst = append(dst, '"')
			dst = strconv.AppendUint(dst, v.V, 10)
			return append(dst, '"')
		}
		return strconv.AppendUint(dst, v.V, 10)

	case value.Float:
		return appendFloat(dst, v.V, v.Bits)

	case value.Bool:
		return strconv.AppendBool(dst, v.V)

	case value.Bytes:
		return appendHex(dst, v.V)

	case value.String:
		return AppendString(dst, v.V)

	case value.Array:
		dst = append(dst, '[')
		for i, e := range v.Elems {
			if i != 0 {
				dst = append(dst, ',')
			}
			dst = AppendJSON(dst, e)
		}
		return append(dst, ']')

	case value.Optional:
		return AppendJSON(dst, v.V)

	case value.Enum:
		return AppendString(dst, v.Name)

	case value.Struct:
		dst = append(dst, '{')
		for i, f := range v.Fields {
			if i != 0 {
				dst = append(dst, ',')
			}
			dst = AppendString(dst, f.Name)
			dst = append(dst, ':')
			dst = AppendJSON(dst, f.Value)
		}
		return append(dst, '}')

	case value.Union:
		arm := v.Arm
		if v.Default {
			arm = "default"
		}
		dst = append(dst, '{')
		dst = AppendString(dst, arm)
		dst = append(dst, ':')
		dst = AppendJSON(dst, v.Value)
		return append(dst, '}')

	case value.Void:
		return append(dst, "null"...)

	default:
		// Only the types of package value can be projected
		panic("projector: unknown value type")
	}
}

func appendFloat(dst []byte, f float64, bits int) []byte {
	switch {
	case math.IsNaN(f):
		return AppendString(dst, NaN)
	case math.IsInf(f, 1):
		return AppendString(dst, PositiveInfinity)
	case math.IsInf(f, -1):
		return AppendString(dst, NegativeInfinity)
	}

	if bits != 32 {
		bits = 64
	}

	// Shortest representation which round trips, switching to exponent
	// form for very large or very small magnitudes
	format := byte('f')
	if abs := math.Abs(f); abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	dst = strconv.AppendFloat(dst, f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(dst)
		if n >= 4 && dst[n-4] == 'e' && dst[n-3] == '-' && dst[n-2] == '0' {
			dst[n-2] = dst[n-1]
			dst = dst[:n-1]
		}
	}
	return dst
}

const hexDigits = "0123456789abcdef"

func appendHex(dst []byte, b []byte) []byte {
	dst = append(dst, '"')
	for _, c := range b {
		dst = append(dst, hexDigits[c>>4], hexDigits[c&0xF])
	}
	return append(dst, '"')
}

// AppendString appends s as a JSON string. Quotes, backslashes and control
// characters are escaped, as are U+2028 and U+2029 (which JavaScript does
// not permit in string literals); everything else is written verbatim.
// Invalid UTF-8 is replaced with U+FFFD.
func AppendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			dst = append(dst, s[start:i]...)
			switch c {
			case '"', '\\':
				dst = append(dst, '\\', c)
			case '\n':
				dst = append(dst, '\\', 'n')
			case '\r':
				dst = append(dst, '\\', 'r')
			case '\t':
				dst = append(dst, '\\', 't')
			case '\b':
				dst = append(dst, '\\', 'b')
			case '\f':
				dst = append(dst, '\\', 'f')
			default:
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			dst = append(dst, s[start:i]...)
			dst = append(dst, `\ufffd`...)
		case r == '\u2028' || r == '\u2029':
			dst = append(dst, s[start:i]...)
			dst = append(dst, '\\', 'u', '2', '0', '2', hexDigits[r&0xF])
		default:
			i += size
			continue
		}
		i += size
		start = i
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
