// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

import (
	"reflect"

	xdrinterfaces "go.e43.eu/xdr2json/interfaces"
	"go.e43.eu/xdr2json/internal/tags"
)

var enumNamerType = reflect.TypeOf((*xdrinterfaces.EnumNamer)(nil)).Elem()

type goTypeKey struct {
	t reflect.Type
}

// AddGoType registers the definition of the Go type of template (and of
// every named struct or enum type reachable from it) under its Go type
// name. The mapping from Go types is:
//
//                        Go | XDR
//     ----------------------+--------------------
//                      bool | bool
//      int8,  int16,  int32 | int
//     uint8, uint16, uint32 | unsigned int
//                     int64 | hyper
//                    uint64 | unsigned hyper
//                   float32 | float
//                   float64 | double
//                    string | string ident<>
//                        *T | T (Go pointers are ignored)
//                       []T | T ident<>
//                      [N]T | T ident[N]
//                  struct{} | void
//              struct{ ...} | struct { ... }
//      int32 + EnumNamer    | enum { ... }
//
// further refined by `xdr:"..."` struct tags, as described in package tags:
//
//                 XDR | Go
//     ----------------+--------------------------------
//     T *ident        |  *T     `xdr:"opt"`
//     T ident<N>      | []T     `xdr:"maxlen:N"`
//     T ident[N]      | []T     `xdr:"len:N"`
//     string ident<N> | string  `xdr:"maxlen:N"`
//     opaque ident<>  | []byte  `xdr:"opaque"`
//     opaque ident[N] | [N]byte `xdr:"opaque"`
//     opaque ident<N> | []byte  `xdr:"maxlen:N/opaque"`
//
// A struct whose first field is tagged `union:switch` is a union; each
// following field is an arm tagged `union:A,B`, `union:true`, `union:false`
// or `union:default`, and projects under its Go field name.
func (b *Builder) AddGoType(template interface{}) *Builder {
	t := reflect.TypeOf(template)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		b.errs = append(b.errs, schemaError("", "AddGoType requires a named type, got %T", template))
		return b
	}

	d, err := b.goDef(t, tags.Tag{})
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}

	// Named structs and enums register themselves; anything else is
	// registered here
	if _, isRef := d.(Ref); !isRef {
		b.Add(t.Name(), d)
	}
	return b
}

// named registers t under its Go name (once), building its definition with
// build. References to t made while it is being built resolve lazily, which
// is what permits recursive Go types.
func (b *Builder) named(t reflect.Type, build func() (Def, error)) (Def, error) {
	if b.goTypes == nil {
		b.goTypes = make(map[goTypeKey]string)
	}

	name := t.Name()
	if existing, ok := b.goTypes[goTypeKey{t}]; ok {
		return Ref{Name: existing}, nil
	}
	if _, taken := b.defs[name]; taken {
		return nil, schemaError(name, "Go type %s conflicts with an existing definition", t)
	}
	b.goTypes[goTypeKey{t}] = name

	d, err := build()
	if err != nil {
		return nil, err
	}
	b.Add(name, d)
	return Ref{Name: name}, nil
}

func (b *Builder) goDef(t reflect.Type, tag tags.Tag) (Def, error) {
	head := tag.Head()

	if head.Kind == tags.Opt {
		elem, err := b.goDef(t.Elem(), tag.Next())
		if err != nil {
			return nil, err
		}
		return Optional{Elem: elem}, nil
	}

	if t.Name() != "" && t.Implements(enumNamerType) && t.Kind() == reflect.Int32 {
		return b.named(t, func() (Def, error) {
			names := reflect.Zero(t).Interface().(xdrinterfaces.EnumNamer).XDREnumNames()
			cp := make(map[int32]string, len(names))
			for k, v := range names {
				cp[k] = v
			}
			return Enum{Names: cp}, nil
		})
	}

	switch t.Kind() {
	case reflect.Ptr:
		return b.goDef(t.Elem(), tag.Next())
	case reflect.Bool:
		return Primitive{Bool}, nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Primitive{Int32}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Primitive{Uint32}, nil
	case reflect.Int64:
		return Primitive{Int64}, nil
	case reflect.Uint64:
		return Primitive{Uint64}, nil
	case reflect.Float32:
		return Primitive{Float32}, nil
	case reflect.Float64:
		return Primitive{Float64}, nil

	case reflect.String:
		switch head.Kind {
		case tags.Len:
			return nil, schemaError(t.Name(), "fixed-length strings are not supported")
		case tags.MaxLen:
			return VarString{MaxLen: head.Value, Bounded: true}, nil
		}
		return VarString{}, nil

	case reflect.Slice:
		if isOpaque(t, tag) {
			switch head.Kind {
			case tags.Len:
				return FixedOpaque{Len: head.Value}, nil
			case tags.MaxLen:
				return VarOpaque{MaxLen: head.Value, Bounded: true}, nil
			}
			return VarOpaque{}, nil
		}

		elem, err := b.goDef(t.Elem(), tag.Next())
		if err != nil {
			return nil, err
		}
		switch head.Kind {
		case tags.Len:
			return FixedArray{Elem: elem, Len: head.Value}, nil
		case tags.MaxLen:
			return VarArray{Elem: elem, MaxLen: head.Value, Bounded: true}, nil
		}
		return VarArray{Elem: elem}, nil

	case reflect.Array:
		if isOpaque(t, tag) {
			return FixedOpaque{Len: uint32(t.Len())}, nil
		}
		elem, err := b.goDef(t.Elem(), tag.Next())
		if err != nil {
			return nil, err
		}
		return FixedArray{Elem: elem, Len: uint32(t.Len())}, nil

	case reflect.Struct:
		if t.NumField() == 0 {
			return Void{}, nil
		}
		if t.Name() == "" {
			return b.goStruct(t)
		}
		return b.named(t, func() (Def, error) { return b.goStruct(t) })

	default:
		return nil, schemaError(t.Name(), "Go type %s unsupported", t)
	}
}

func isOpaque(t reflect.Type, tag tags.Tag) bool {
	return t.Elem().Kind() == reflect.Uint8 && tag.Next().Head().Kind == tags.Opaque
}

func (b *Builder) goStruct(t reflect.Type) (Def, error) {
	var (
		fields []Field
		u      *Union
	)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, err := tags.Parse(f.Type, f.Tag)
		if err != nil {
			return nil, schemaError(t.Name(), "parsing tag of field '%s' of '%s': %v", f.Name, t, err)
		}
		if tag.Skip {
			continue
		}

		switch {
		case u == nil && len(fields) == 0 && tag.Union == tags.UnionSwitch:
			d, err := b.goDef(f.Type, tag)
			if err != nil {
				return nil, err
			}
			u = &Union{Discriminant: d}
			continue

		case u == nil && tag.Union != tags.NotInUnion:
			return nil, schemaError(t.Name(), "field '%s' has tag '%s' but %s is not a union", f.Name, tag, t)

		case u != nil && tag.Union == tags.NotInUnion:
			return nil, schemaError(t.Name(), "every field of union %s needs a `union:` tag; '%s' has none", t, f.Name)

		case u != nil && tag.Union == tags.UnionSwitch:
			return nil, schemaError(t.Name(), "union %s has a second switch '%s'", t, f.Name)
		}

		d, err := b.goDef(f.Type, tag)
		if err != nil {
			return nil, err
		}

		if u == nil {
			fields = append(fields, Field{Name: f.Name, Type: d})
			continue
		}

		arm := Arm{Name: f.Name, Cases: tag.Cases, Type: d}
		if tag.Union == tags.UnionDefault {
			if u.Default != nil {
				return nil, schemaError(t.Name(), "default case of %s duplicated", t)
			}
			u.Default = &arm
		} else {
			u.Arms = append(u.Arms, arm)
		}
	}

	if u != nil {
		return *u, nil
	}
	if len(fields) == 0 {
		return nil, schemaError(t.Name(), "struct %s has no encodable fields", t)
	}
	return Struct{Fields: fields}, nil
}
