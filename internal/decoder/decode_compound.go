// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package decoder

import (
	"strconv"

	"go.e43.eu/xdr2json/internal/errors"
	"go.e43.eu/xdr2json/schema"
	"go.e43.eu/xdr2json/value"
)

func indexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func (d *decoder) decodeElems(elem schema.Def, n int) (value.Value, error) {
	// Never trust n for the allocation: every element which consumes input
	// takes at least 4 bytes
	capacity := n
	if limit := d.remaining()/4 + 1; capacity > limit {
		capacity = limit
	}

	elems := make([]value.Value, 0, capacity)
	for i := 0; i < n; i++ {
		v, err := d.decode(elem)
		if err != nil {
			return nil, errors.WithField(err, indexSegment(i))
		}
		elems = append(elems, v)
	}
	return value.Array{Elems: elems}, nil
}

// checkCount rejects an element count which cannot possibly fit into the
// remaining input before any element is decoded
func (d *decoder) checkCount(elem schema.Def, n uint64) error {
	min := d.minSize(elem, 0)
	if min == 0 {
		// Elements may be empty, so the input does not bound the count
		if n > uint64(d.empty) {
			return errors.New(errors.LengthExceeded, d.off,
				"%d empty elements exceeds the remaining allowance of %d for a %d byte input", n, d.empty, len(d.buf))
		}
		d.empty -= int(n)
		return nil
	}
	if n > uint64(d.remaining())/min {
		return errors.New(errors.TruncatedInput, d.off,
			"%d elements of at least %d bytes cannot fit in %d remaining bytes", n, min, d.remaining())
	}
	return nil
}

func (d *decoder) decodeFixedArray(def schema.FixedArray) (value.Value, error) {
	if err := d.checkCount(def.Elem, uint64(def.Len)); err != nil {
		return nil, err
	}
	return d.decodeElems(def.Elem, int(def.Len))
}

func (d *decoder) decodeVarArray(def schema.VarArray) (value.Value, error) {
	l, err := d.length(def.MaxLen, def.Bounded)
	if err != nil {
		return nil, err
	}
	if err := d.checkCount(def.Elem, uint64(l)); err != nil {
		return nil, err
	}
	return d.decodeElems(def.Elem, int(l))
}

func (d *decoder) decodeOptional(def schema.Optional) (value.Value, error) {
	off := d.off
	flag, err := d.decodeUnsignedInt()
	if err != nil {
		return nil, err
	}

	switch flag {
	case 0:
		return value.Optional{}, nil
	case 1:
		v, err := d.decode(def.Elem)
		if err != nil {
			return nil, err
		}
		return value.Optional{V: v}, nil
	default:
		return nil, errors.New(errors.InvalidOptionalTag, off, "presence flag %d", flag)
	}
}

func (d *decoder) decodeEnum(def schema.Enum) (value.Value, error) {
	off := d.off
	u, err := d.decodeUnsignedInt()
	if err != nil {
		return nil, err
	}

	raw := int32(u)
	name, ok := def.Names[raw]
	if !ok {
		return nil, errors.New(errors.UnknownEnumValue, off, "no symbol for value %d", raw)
	}
	return value.Enum{Name: name, Raw: raw}, nil
}

func (d *decoder) decodeStruct(def schema.Struct) (value.Value, error) {
	fields := make([]value.Field, len(def.Fields))
	for i, f := range def.Fields {
		v, err := d.decode(f.Type)
		if err != nil {
			return nil, errors.WithField(err, f.Name)
		}
		fields[i] = value.Field{Name: f.Name, Value: v}
	}
	return value.Struct{Fields: fields}, nil
}

// discriminant decodes a union switch value, returning the value and the
// label an unnamed arm selected by it projects under
func (d *decoder) discriminant(def schema.Def) (int64, string, error) {
	for hops := 0; hops <= d.maxDepth; hops++ {
		switch dd := def.(type) {
		case schema.Ref:
			target, err := d.resolve(dd)
			if err != nil {
				return 0, "", err
			}
			def = target
			continue

		case schema.Enum:
			v, err := d.decodeEnum(dd)
			if err != nil {
				return 0, "", err
			}
			e := v.(value.Enum)
			return int64(e.Raw), e.Name, nil

		case schema.Primitive:
			switch dd.Kind {
			case schema.Bool:
				b, err := d.decodeBool()
				if err != nil {
					return 0, "", err
				}
				if b {
					return 1, "true", nil
				}
				return 0, "false", nil

			case schema.Int32:
				u, err := d.decodeUnsignedInt()
				if err != nil {
					return 0, "", err
				}
				v := int64(int32(u))
				return v, strconv.FormatInt(v, 10), nil

			case schema.Uint32:
				u, err := d.decodeUnsignedInt()
				if err != nil {
					return 0, "", err
				}
				return int64(u), strconv.FormatUint(uint64(u), 10), nil
			}
		}
		return 0, "", errors.New(errors.InvalidSchema, d.off, "%s not legal for union switch", def)
	}
	return 0, "", errors.New(errors.RecursionLimitExceeded, d.off, "union switch type references nest deeper than %d", d.maxDepth)
}

func (d *decoder) decodeUnion(def *schema.Union) (value.Value, error) {
	off := d.off
	disc, label, err := d.discriminant(def.Discriminant)
	if err != nil {
		return nil, errors.WithField(err, "(switch)")
	}

	arm, isDefault := def.Lookup(disc)
	if arm == nil {
		return nil, errors.New(errors.UnknownUnionArm, off, "no arm for discriminant %s and no default", label)
	}

	name := arm.Name
	switch {
	case isDefault:
		name = "default"
	case name == "":
		name = label
	}

	v, err := d.decode(arm.Type)
	if err != nil {
		return nil, errors.WithField(err, "("+name+")")
	}
	return value.Union{Arm: name, Discriminant: disc, Default: isDefault, Value: v}, nil
}

// maxMinSizeDepth bounds how far minSize follows references; beyond it, a
// definition is assumed to possibly be empty
const maxMinSizeDepth = 16

// sizeCap saturates minSize; any input is far smaller
const sizeCap = 1 << 48

// minSize returns a lower bound on the encoded size of def. It is only used
// to reject impossible element counts early, so it errs low.
func (d *decoder) minSize(def schema.Def, depth int) uint64 {
	if depth > maxMinSizeDepth {
		return 0
	}

	switch def := def.(type) {
	case schema.Primitive:
		return uint64(def.Kind.Size())
	case schema.FixedOpaque:
		return (uint64(def.Len) + 3) &^ 3
	case schema.VarOpaque, schema.VarString, schema.VarArray, schema.Optional, schema.Enum, schema.Union:
		return 4
	case schema.FixedArray:
		m := d.minSize(def.Elem, depth+1)
		if m != 0 && uint64(def.Len) > sizeCap/m {
			return sizeCap
		}
		return m * uint64(def.Len)
	case schema.Struct:
		var sum uint64
		for _, f := range def.Fields {
			sum += d.minSize(f.Type, depth+1)
			if sum > sizeCap {
				return sizeCap
			}
		}
		return sum
	case schema.Ref:
		target, ok := d.reg.Resolve(def.Name)
		if !ok {
			return 0
		}
		return d.minSize(target, depth+1)
	default:
		return 0
	}
}
