// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package xdr2json converts binary XDR (External Data Representation, RFC
// 4506) values into canonical JSON text.
//
// XDR is not self-describing, so every conversion needs the name of the type
// the buffer holds, resolved against a schema.Registry:
//
//     var b schema.Builder
//     reg, err := b.Add("Point", schema.Struct{Fields: []schema.Field{
//             {Name: "x", Type: schema.Primitive{Kind: schema.Int32}},
//             {Name: "y", Type: schema.Primitive{Kind: schema.Int32}},
//         }}).
//         Build()
//
//     js, err := xdr2json.Convert(reg, "Point", buf) // {"x":3,"y":-5}
//
// The projection of XDR onto JSON is:
//
//                     XDR | JSON
//     --------------------+-----------------------------------------------
//     int, unsigned int,  | number, or decimal string outside +-(2^53-1)
//     hyper, u. hyper     |
//           float, double | number; "NaN", "Infinity", "-Infinity"
//                    bool | true / false
//         opaque[N], <N>  | lowercase hex string
//               string<N> | string
//           T[N], T<N>    | array
//                      T* | null when absent, otherwise T
//                    enum | symbolic name
//                  struct | object, fields in declaration order
//                   union | {"arm": value}, or {"default": value}
//                    void | null
//
// Failures are reported as *Error, which records the kind of failure (test
// with errors.Is against the Kind constants re-exported here), the requested
// type, the field path to the failing value and its byte offset. No partial
// JSON is ever returned alongside an error.
package xdr2json

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	xdrinterfaces "go.e43.eu/xdr2json/interfaces"
	"go.e43.eu/xdr2json/internal/decoder"
	"go.e43.eu/xdr2json/internal/errors"
	"go.e43.eu/xdr2json/internal/logger"
	"go.e43.eu/xdr2json/internal/projector"
	"go.e43.eu/xdr2json/schema"
	"go.e43.eu/xdr2json/value"
)

// Error is a conversion failure
type Error = errors.Error

// Kind classifies an Error
type Kind = errors.Kind

const (
	UnknownType            = errors.UnknownType
	TruncatedInput         = errors.TruncatedInput
	LengthExceeded         = errors.LengthExceeded
	InvalidBoolean         = errors.InvalidBoolean
	InvalidOptionalTag     = errors.InvalidOptionalTag
	UnknownEnumValue       = errors.UnknownEnumValue
	UnknownUnionArm        = errors.UnknownUnionArm
	RecursionLimitExceeded = errors.RecursionLimitExceeded
	MalformedText          = errors.MalformedText
	NonZeroPadding         = errors.NonZeroPadding
	TrailingBytes          = errors.TrailingBytes
	InvalidSchema          = errors.InvalidSchema
)

const (
	DefaultMaxDepth    = decoder.DefaultMaxDepth
	DefaultMaxInputLen = decoder.DefaultMaxInputLen
)

// Options configure a Converter. The zero value selects the defaults.
type Options struct {
	// Maximum nesting depth of definitions (0 selects DefaultMaxDepth)
	MaxDepth int

	// Largest input accepted (0 selects DefaultMaxInputLen, negative
	// disables the check)
	MaxInputLen int

	// Report non-zero padding as NonZeroPadding rather than logging it
	StrictPadding bool

	// Report bytes after the top-level value as TrailingBytes rather than
	// ignoring them
	RejectTrailing bool

	// Maximum number of conversions ConvertAll runs at once (0 or less
	// means unbounded)
	Parallelism int
}

func (o Options) decoderOptions() decoder.Options {
	return decoder.Options{
		MaxDepth:       o.MaxDepth,
		MaxInputLen:    o.MaxInputLen,
		StrictPadding:  o.StrictPadding,
		RejectTrailing: o.RejectTrailing,
	}
}

// Converter converts XDR buffers to JSON against a fixed registry. It holds
// no per-conversion state and may be used from multiple goroutines.
type Converter struct {
	reg  schema.Resolver
	opts Options
}

var _ xdrinterfaces.Converter = (*Converter)(nil)

// New returns a Converter resolving type names in reg
func New(reg schema.Resolver, opts Options) *Converter {
	return &Converter{reg: reg, opts: opts}
}

// Registry returns the resolver the converter was created with
func (c *Converter) Registry() schema.Resolver {
	return c.reg
}

// Decode decodes buf as the named type, returning the value tree
func (c *Converter) Decode(typeName string, buf []byte) (value.Value, error) {
	v, _, err := decoder.DecodeNamed(c.reg, typeName, buf, c.opts.decoderOptions())
	return v, err
}

// Convert decodes buf as the named type and returns its JSON projection
func (c *Converter) Convert(typeName string, buf []byte) ([]byte, error) {
	v, err := c.Decode(typeName, buf)
	if err != nil {
		logger.Logger().Debug("conversion failed",
			zap.String("type", typeName),
			zap.Int("len", len(buf)),
			zap.Error(err))
		return nil, err
	}
	return projector.Project(v), nil
}

// Request is one conversion of a batch
type Request struct {
	Type string
	Data []byte
}

// Response is the outcome of the Request at the same index
type Response struct {
	JSON json.RawMessage
	Err  error
}

// ConvertAll converts a batch of buffers concurrently, with at most
// Options.Parallelism conversions in flight. Conversion failures are
// reported per request; the returned error is only set if ctx was cancelled
// before every request was started.
func (c *Converter) ConvertAll(ctx context.Context, reqs []Request) ([]Response, error) {
	resps := make([]Response, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.Parallelism > 0 {
		g.SetLimit(c.opts.Parallelism)
	}

	for i := range reqs {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			js, err := c.Convert(reqs[i].Type, reqs[i].Data)
			resps[i] = Response{JSON: js, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return resps, err
	}
	return resps, ctx.Err()
}

// Convert converts buf, an XDR encoding of the named type, to JSON with the
// default options
func Convert(reg schema.Resolver, typeName string, buf []byte) (json.RawMessage, error) {
	return New(reg, Options{}).Convert(typeName, buf)
}

// ConvertMarshaler marshals m and converts the result, using the name of m's
// Go type (with any pointers stripped) as the XDR type name.
func ConvertMarshaler(c xdrinterfaces.Converter, m encoding.BinaryMarshaler) (json.RawMessage, error) {
	name := TypeName(m)
	buf, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize XDR type '%s': %w", name, err)
	}
	return c.Convert(name, buf)
}

// TypeName returns the name ConvertMarshaler uses for v
func TypeName(v interface{}) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
