// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package decoder walks a schema definition and an XDR buffer in lock-step,
// producing a value tree.
//
// All decode state (the cursor over the buffer, and the current depth) lives
// in a decoder which exists for the duration of one Decode call, so any
// number of decodes may run concurrently against a shared Resolver.
package decoder

import (
	"go.uber.org/zap"

	"go.e43.eu/xdr2json/internal/errors"
	"go.e43.eu/xdr2json/internal/logger"
	"go.e43.eu/xdr2json/schema"
	"go.e43.eu/xdr2json/value"
)

const (
	// DefaultMaxDepth bounds the nesting of decoded definitions
	DefaultMaxDepth = 500

	// DefaultMaxInputLen bounds the size of an input buffer (32MiB)
	DefaultMaxInputLen = 32 * 1024 * 1024
)

// Options configure a decode. The zero value selects the defaults.
type Options struct {
	// MaxDepth is the maximum nesting depth of definitions (0 selects
	// DefaultMaxDepth). Exceeding it is RecursionLimitExceeded.
	MaxDepth int

	// MaxInputLen is the largest buffer accepted (0 selects
	// DefaultMaxInputLen, negative disables the check). A larger buffer is
	// LengthExceeded.
	MaxInputLen int

	// StrictPadding makes non-zero padding bytes a NonZeroPadding error
	// instead of a logged warning. Padding must always be present.
	StrictPadding bool

	// RejectTrailing makes bytes left over after the top-level value a
	// TrailingBytes error. By default they are tolerated, since callers may
	// pass a buffer sized for a larger envelope; RFC 4506 does not require
	// either behaviour.
	RejectTrailing bool
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

func (o Options) maxInputLen() int {
	if o.MaxInputLen == 0 {
		return DefaultMaxInputLen
	}
	return o.MaxInputLen
}

// Arrays of elements which encode to nothing (void, opaque[0], empty
// structs) are not bounded by the input. Each decode may produce at most
// emptyElemsFloor + emptyElemsPerByte*len(buf) of them in total.
const (
	emptyElemsFloor   = 1024
	emptyElemsPerByte = 8
)

type decoder struct {
	buf  []byte
	off  int
	reg  schema.Resolver
	opts Options

	depth    int
	maxDepth int

	// Elements of zero encoded size which may still be produced
	empty int

	// Name of the top-level type, for log messages
	typeName string
}

// DecodeNamed resolves typeName in reg and decodes buf as that type. It
// returns the value tree and the number of bytes consumed. Errors are
// *errors.Error, carrying typeName and the path of the failing field.
func DecodeNamed(reg schema.Resolver, typeName string, buf []byte, opts Options) (value.Value, int, error) {
	def, ok := reg.Resolve(typeName)
	if !ok {
		err := errors.New(errors.UnknownType, -1, "%q is not a registered type", typeName)
		err.Type = typeName
		return nil, 0, err
	}

	v, n, err := decode(reg, typeName, def, buf, opts)
	if err != nil {
		err = errors.WithField(err, typeName)
		return nil, 0, errors.WithType(err, typeName)
	}
	return v, n, nil
}

// Decode decodes buf as def, resolving any references in reg.
func Decode(reg schema.Resolver, def schema.Def, buf []byte, opts Options) (value.Value, int, error) {
	return decode(reg, "", def, buf, opts)
}

func decode(reg schema.Resolver, typeName string, def schema.Def, buf []byte, opts Options) (value.Value, int, error) {
	if max := opts.maxInputLen(); max > 0 && len(buf) > max {
		return nil, 0, errors.New(errors.LengthExceeded, -1, "input of %d bytes exceeds maximum of %d", len(buf), max)
	}

	d := decoder{
		buf:      buf,
		reg:      reg,
		opts:     opts,
		maxDepth: opts.maxDepth(),
		empty:    emptyElemsFloor + emptyElemsPerByte*len(buf),
		typeName: typeName,
	}

	v, err := d.decode(def)
	if err != nil {
		return nil, 0, err
	}

	if rest := len(d.buf) - d.off; rest != 0 {
		if opts.RejectTrailing {
			return nil, 0, errors.New(errors.TrailingBytes, d.off, "%d bytes remain after value", rest)
		}
		logger.Logger().Debug("ignoring trailing bytes after XDR value",
			zap.String("type", typeName),
			zap.Int("offset", d.off),
			zap.Int("trailing", rest))
	}
	return v, d.off, nil
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

// take consumes exactly n bytes
func (d *decoder) take(n int) ([]byte, error) {
	if n > d.remaining() {
		return nil, errors.New(errors.TruncatedInput, d.off, "need %d bytes, %d remain", n, d.remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) decode(def schema.Def) (v value.Value, err error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > d.maxDepth {
		return nil, errors.New(errors.RecursionLimitExceeded, d.off, "nesting deeper than %d", d.maxDepth)
	}

	switch def := def.(type) {
	case schema.Primitive:
		return d.decodePrimitive(def.Kind)
	case schema.FixedOpaque:
		return d.decodeFixedOpaque(def)
	case schema.VarOpaque:
		return d.decodeVarOpaque(def)
	case schema.VarString:
		return d.decodeString(def)
	case schema.FixedArray:
		return d.decodeFixedArray(def)
	case schema.VarArray:
		return d.decodeVarArray(def)
	case schema.Optional:
		return d.decodeOptional(def)
	case schema.Enum:
		return d.decodeEnum(def)
	case schema.Struct:
		return d.decodeStruct(def)
	case schema.Union:
		return d.decodeUnion(&def)
	case schema.Ref:
		target, err := d.resolve(def)
		if err != nil {
			return nil, err
		}
		return d.decode(target)
	case schema.Void:
		return value.Void{}, nil
	default:
		return nil, errors.New(errors.InvalidSchema, d.off, "unsupported definition %T", def)
	}
}

func (d *decoder) resolve(r schema.Ref) (schema.Def, error) {
	target, ok := d.reg.Resolve(r.Name)
	if !ok {
		return nil, errors.New(errors.UnknownType, d.off, "reference to unregistered type %q", r.Name)
	}
	return target, nil
}
