// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package decoder

import (
	"math"

	"go.e43.eu/xdr2json/internal/errors"
	"go.e43.eu/xdr2json/schema"
	"go.e43.eu/xdr2json/value"
)

func (d *decoder) decodeUnsignedInt() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (d *decoder) decodeUnsignedHyper() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return (uint64(b[0])<<56 |
		uint64(b[1])<<48 |
		uint64(b[2])<<40 |
		uint64(b[3])<<32 |
		uint64(b[4])<<24 |
		uint64(b[5])<<16 |
		uint64(b[6])<<8 |
		uint64(b[7])), nil
}

func (d *decoder) decodeBool() (bool, error) {
	off := d.off
	i, err := d.decodeUnsignedInt()
	if err != nil {
		return false, err
	}
	switch i {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.New(errors.InvalidBoolean, off, "boolean encoded as %d", i)
	}
}

func (d *decoder) decodePrimitive(k schema.PrimitiveKind) (value.Value, error) {
	switch k {
	case schema.Int32:
		u, err := d.decodeUnsignedInt()
		return value.Int{V: int64(int32(u))}, err
	case schema.Uint32:
		u, err := d.decodeUnsignedInt()
		return value.Uint{V: uint64(u)}, err
	case schema.Int64:
		u, err := d.decodeUnsignedHyper()
		return value.Int{V: int64(u)}, err
	case schema.Uint64:
		u, err := d.decodeUnsignedHyper()
		return value.Uint{V: u}, err
	case schema.Float32:
		u, err := d.decodeUnsignedInt()
		return value.Float{V: float64(math.Float32frombits(u)), Bits: 32}, err
	case schema.Float64:
		u, err := d.decodeUnsignedHyper()
		return value.Float{V: math.Float64frombits(u), Bits: 64}, err
	case schema.Bool:
		b, err := d.decodeBool()
		return value.Bool{V: b}, err
	default:
		return nil, errors.New(errors.InvalidSchema, d.off, "unsupported primitive %s", k)
	}
}
