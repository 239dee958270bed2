// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package decoder

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"go.e43.eu/xdr2json/internal/errors"
	"go.e43.eu/xdr2json/internal/logger"
	"go.e43.eu/xdr2json/schema"
	"go.e43.eu/xdr2json/value"
)

// opaque consumes an l byte payload and its padding, returning a copy of the
// payload
func (d *decoder) opaque(l uint32) ([]byte, error) {
	padded := (uint64(l) + 3) &^ 3
	if padded > uint64(d.remaining()) {
		return nil, errors.New(errors.TruncatedInput, d.off,
			"need %d bytes for %d byte payload, %d remain", padded, l, d.remaining())
	}

	start := d.off
	b, _ := d.take(int(padded))
	if err := d.checkPadding(start+int(l), b[l:]); err != nil {
		return nil, err
	}

	out := make([]byte, l)
	copy(out, b[:l])
	return out, nil
}

// checkPadding verifies that the padding bytes at off are zero. Non-zero
// padding is lossless, so unless strict padding was requested it is only
// logged.
func (d *decoder) checkPadding(off int, pad []byte) error {
	for _, c := range pad {
		if c == 0 {
			continue
		}
		if d.opts.StrictPadding {
			return errors.New(errors.NonZeroPadding, off, "padding bytes %x", pad)
		}
		logger.Logger().Warn("non-zero XDR padding",
			zap.String("type", d.typeName),
			zap.Int("offset", off),
			zap.Binary("padding", pad))
		return nil
	}
	return nil
}

// length decodes a length prefix and, if bounded, checks it against max
func (d *decoder) length(max uint32, bounded bool) (uint32, error) {
	off := d.off
	l, err := d.decodeUnsignedInt()
	if err != nil {
		return 0, err
	}
	if bounded && l > max {
		return 0, errors.New(errors.LengthExceeded, off, "length %d exceeds maximum of %d", l, max)
	}
	return l, nil
}

func (d *decoder) decodeFixedOpaque(def schema.FixedOpaque) (value.Value, error) {
	b, err := d.opaque(def.Len)
	if err != nil {
		return nil, err
	}
	return value.Bytes{V: b}, nil
}

func (d *decoder) decodeVarOpaque(def schema.VarOpaque) (value.Value, error) {
	l, err := d.length(def.MaxLen, def.Bounded)
	if err != nil {
		return nil, err
	}
	b, err := d.opaque(l)
	if err != nil {
		return nil, err
	}
	return value.Bytes{V: b}, nil
}

func (d *decoder) decodeString(def schema.VarString) (value.Value, error) {
	l, err := d.length(def.MaxLen, def.Bounded)
	if err != nil {
		return nil, err
	}

	start := d.off
	b, err := d.opaque(l)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, errors.New(errors.MalformedText, start, "string is not valid UTF-8")
	}
	return value.String{V: string(b)}, nil
}
