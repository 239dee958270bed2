// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package tags parses the `xdr:"..."` struct tags which describe how a Go
// struct field maps onto an XDR type.
//
// Tags are applied heirarchically: entries separated by forward slashes apply
// in turn from the outer to the inner Go type. As an example, consider:
//    Foo *[]byte `xdr:"opt/maxlen:4"`
//
// This contains two layers of type:
//    * The pointer, with option "opt"
//    * The []byte slice, with option "maxlen:4"
//
// Union tags relate to the enclosing structure rather than to the field's
// type, and so always come first:
//    Body *Payment `xdr:"union:1,2/opt"`
package tags

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type Kind byte

const (
	// No-op entry, used to skip a layer of type
	Noop Kind = iota
	// The field (a pointer) is an XDR optional
	Opt
	// The field (a byte slice or array) is dense opaque data
	Opaque
	// The field (a slice or string) has fixed length Value
	Len
	// The field (a slice or string) has maximum length Value
	MaxLen
)

// Entry is the tag for a single layer of type
type Entry struct {
	Kind  Kind
	Value uint32
}

func (e Entry) String() string {
	switch e.Kind {
	case Opt:
		return "opt"
	case Opaque:
		return "opaque"
	case Len:
		return fmt.Sprintf("len:%d", e.Value)
	case MaxLen:
		return fmt.Sprintf("maxlen:%d", e.Value)
	default:
		return ""
	}
}

// UnionRole is the part a field plays in an enclosing union
type UnionRole byte

const (
	NotInUnion UnionRole = iota
	UnionSwitch
	UnionCases
	UnionDefault
)

// Tag is a parsed field tag
type Tag struct {
	// Skip is set for `xdr:"-"`
	Skip bool

	Union UnionRole
	// Discriminant values selecting this field, when Union == UnionCases
	Cases []int64

	// Per layer entries, outermost first. Trailing no-ops are trimmed.
	Layers []Entry
}

// Head returns the entry for the outermost layer
func (t Tag) Head() Entry {
	if len(t.Layers) == 0 {
		return Entry{}
	}
	return t.Layers[0]
}

// Next returns the tag with the outermost layer (and any union role) removed
func (t Tag) Next() Tag {
	if len(t.Layers) == 0 {
		return Tag{}
	}
	return Tag{Layers: t.Layers[1:]}
}

func (t Tag) String() string {
	var parts []string
	switch t.Union {
	case UnionSwitch:
		parts = append(parts, "union:switch")
	case UnionDefault:
		parts = append(parts, "union:default")
	case UnionCases:
		vs := make([]string, len(t.Cases))
		for i, c := range t.Cases {
			vs[i] = strconv.FormatInt(c, 10)
		}
		parts = append(parts, "union:"+strings.Join(vs, ","))
	}
	for _, e := range t.Layers {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "/")
}

// Parse parses the xdr tag of a struct field of type t
func Parse(t reflect.Type, st reflect.StructTag) (Tag, error) {
	return ParseString(t, st.Get("xdr"))
}

func validForUnionSwitch(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int32, reflect.Uint32:
		return true
	default:
		return false
	}
}

func parseCases(s string) ([]int64, error) {
	vals := strings.Split(s, ",")
	cases := make([]int64, 0, len(vals))
	for _, v := range vals {
		c, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// ParseString parses the body of an XDR tag to be applied to type t
func ParseString(t reflect.Type, s string) (tag Tag, err error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return tag, nil
	case "-":
		return Tag{Skip: true}, nil
	}

	parts := strings.Split(s, "/")
	if strings.HasPrefix(parts[0], "union:") {
		p := parts[0]
		parts = parts[1:]

		switch p {
		case "union:switch":
			if !validForUnionSwitch(t) {
				return tag, fmt.Errorf("type %s not legal for union switch", t)
			}
			tag.Union = UnionSwitch
		case "union:default":
			tag.Union = UnionDefault
		case "union:false":
			tag.Union, tag.Cases = UnionCases, []int64{0}
		case "union:true":
			tag.Union, tag.Cases = UnionCases, []int64{1}
		default:
			tag.Cases, err = parseCases(strings.TrimPrefix(p, "union:"))
			if err != nil {
				return tag, fmt.Errorf("parsing `union:` values: %v", err)
			}
			tag.Union = UnionCases
		}
	}

	for i, n := 0, len(parts); i < n; i++ {
		p := strings.TrimSpace(parts[i])
		switch {
		case p == "":
			tag.Layers = append(tag.Layers, Entry{Kind: Noop})

		case p == "opt":
			if t.Kind() != reflect.Ptr {
				return tag, fmt.Errorf("type %s cannot be 'opt'", t)
			}
			tag.Layers = append(tag.Layers, Entry{Kind: Opt})

		case p == "opaque":
			// `opaque` may be applied to the byte slice/array itself rather
			// than to its element, as that is by far the common case
			switch t.Kind() {
			case reflect.Array, reflect.Slice:
				tag.Layers = append(tag.Layers, Entry{Kind: Noop})
				t = t.Elem()
			}
			if t.Kind() != reflect.Uint8 {
				return tag, fmt.Errorf("'opaque' applied to %s, but only applicable to bytes", t)
			}
			tag.Layers = append(tag.Layers, Entry{Kind: Opaque})

		case strings.HasPrefix(p, "len:"), strings.HasPrefix(p, "maxlen:"):
			k, prefix := Len, "len:"
			if strings.HasPrefix(p, "maxlen:") {
				k, prefix = MaxLen, "maxlen:"
			}

			v, err := strconv.ParseUint(p[len(prefix):], 0, 32)
			if err != nil {
				return tag, fmt.Errorf("parsing `%s` tag: %v", prefix, err)
			}

			switch t.Kind() {
			case reflect.String, reflect.Slice:
				tag.Layers = append(tag.Layers, Entry{Kind: k, Value: uint32(v)})
			case reflect.Array:
				return tag, errors.New("cannot apply length tags to an array; its length is part of its type")
			default:
				return tag, fmt.Errorf("cannot apply `%s` tag to %s; must be slice or string", prefix, t)
			}

		default:
			return tag, fmt.Errorf("unknown XDR tag '%s'", p)
		}

		// Descend one level through the types
		if i+1 != n {
			switch t.Kind() {
			case reflect.Array, reflect.Ptr, reflect.Slice:
				t = t.Elem()
			default:
				return tag, fmt.Errorf("trailing tags (%v) after reaching type %s", parts[i+1:], t)
			}
		}
	}

	for len(tag.Layers) != 0 && tag.Layers[len(tag.Layers)-1].Kind == Noop {
		tag.Layers = tag.Layers[:len(tag.Layers)-1]
	}
	return tag, nil
}
