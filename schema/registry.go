// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

import (
	"fmt"
	"math"
	"sort"

	"go.e43.eu/xdr2json/internal/errors"
)

// Resolver is the capability the decoder needs from a catalog of types.
//
// Implementations must not change once they are in use: a Resolver is
// shared, without locking, by every conversion in flight.
type Resolver interface {
	// Resolve returns the definition registered under name. Lookup is an
	// exact match; ok is false if no such type exists.
	Resolve(name string) (def Def, ok bool)
}

// Registry is an immutable Resolver backed by a map. It is constructed by a
// Builder (or NewRegistry), which guarantees that every Ref reachable from a
// registered name resolves and that every cycle passes through an Optional
// or a VarArray.
type Registry struct {
	defs map[string]Def
}

var _ Resolver = &Registry{}

// NewRegistry validates defs and returns a Registry over a copy of them.
func NewRegistry(defs map[string]Def) (*Registry, error) {
	var b Builder
	for name, d := range defs {
		b.Add(name, d)
	}
	return b.Build()
}

// MustNewRegistry is like NewRegistry but panics on error. It is intended
// for registries built from static definitions.
func MustNewRegistry(defs map[string]Def) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Resolve(name string) (Def, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered type names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types
func (r *Registry) Len() int {
	return len(r.defs)
}

// Builder accumulates named definitions. The zero value is ready to use. A
// Builder is not safe for concurrent use.
type Builder struct {
	defs map[string]Def
	errs []error

	// Go types already visited by AddGoType, and the name they were given
	goTypes map[goTypeKey]string

	// Named enums of the YAML catalogs added so far
	yamlEnums map[string]Enum
}

// Add registers d under name. Registering the same name twice is an error,
// reported by Build.
func (b *Builder) Add(name string, d Def) *Builder {
	if b.defs == nil {
		b.defs = make(map[string]Def)
	}

	switch {
	case name == "":
		b.errs = append(b.errs, schemaError("", "empty type name"))
	case d == nil:
		b.errs = append(b.errs, schemaError(name, "nil definition"))
	default:
		if _, dup := b.defs[name]; dup {
			b.errs = append(b.errs, schemaError(name, "registered twice"))
			return b
		}
		b.defs[name] = d
	}
	return b
}

// Build validates the accumulated definitions and returns the Registry. The
// Builder must not be used afterwards.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) != 0 {
		return nil, b.errs[0]
	}

	defs := make(map[string]Def, len(b.defs))
	for n, d := range b.defs {
		defs[n] = d
	}

	if err := validate(defs); err != nil {
		return nil, err
	}
	return &Registry{defs: defs}, nil
}

func schemaError(name, format string, args ...interface{}) error {
	err := errors.New(errors.InvalidSchema, -1, format, args...)
	err.Type = name
	return err
}

// validate checks every registered definition for well-formedness, dangling
// references and cycles which do not pass through a construct with a
// decodable termination condition.
func validate(defs map[string]Def) error {
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)

	// Edges between named types which are not guarded by an Optional or a
	// VarArray. A cycle in this graph could never terminate.
	hard := make(map[string][]string, len(defs))

	for _, n := range names {
		v := validator{defs: defs, name: n}
		if err := v.walk(defs[n], n, false); err != nil {
			return err
		}
		hard[n] = v.hard
	}

	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(defs))

	var visit func(n string, stack []string) error
	visit = func(n string, stack []string) error {
		colour[n] = grey
		stack = append(stack, n)
		for _, m := range hard[n] {
			switch colour[m] {
			case grey:
				return schemaError(m, "unbounded recursion through %v; "+
					"recursive types must pass through an optional or variable-length array", append(stack, m))
			case white:
				if err := visit(m, stack); err != nil {
					return err
				}
			}
		}
		colour[n] = black
		return nil
	}

	for _, n := range names {
		if colour[n] == white {
			if err := visit(n, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

type validator struct {
	defs map[string]Def
	name string
	hard []string
}

func (v *validator) walk(d Def, path string, guarded bool) error {
	switch d := d.(type) {
	case nil:
		return schemaError(v.name, "missing definition at %s", path)

	case Primitive:
		if _, ok := primitiveNames[d.Kind]; !ok {
			return schemaError(v.name, "invalid primitive kind %d at %s", int(d.Kind), path)
		}

	case FixedOpaque, Void:

	case VarOpaque:
		return v.checkBound(d.MaxLen, d.Bounded, path)

	case VarString:
		return v.checkBound(d.MaxLen, d.Bounded, path)

	case FixedArray:
		return v.walk(d.Elem, path+"[]", guarded)

	case VarArray:
		if err := v.checkBound(d.MaxLen, d.Bounded, path); err != nil {
			return err
		}
		return v.walk(d.Elem, path+"<>", true)

	case Optional:
		return v.walk(d.Elem, path+"*", true)

	case Enum:
		if len(d.Names) == 0 {
			return schemaError(v.name, "enum without values at %s", path)
		}

	case Struct:
		seen := make(map[string]bool, len(d.Fields))
		for _, f := range d.Fields {
			if f.Name == "" {
				return schemaError(v.name, "unnamed field at %s", path)
			}
			if seen[f.Name] {
				return schemaError(v.name, "field %q duplicated at %s", f.Name, path)
			}
			seen[f.Name] = true
			if err := v.walk(f.Type, path+"."+f.Name, guarded); err != nil {
				return err
			}
		}

	case Union:
		disc, err := v.checkDiscriminant(d.Discriminant, path)
		if err != nil {
			return err
		}
		if err := v.walk(d.Discriminant, path+"(switch)", guarded); err != nil {
			return err
		}

		seen := make(map[int64]bool)
		for _, a := range d.Arms {
			if len(a.Cases) == 0 {
				return schemaError(v.name, "union arm %q without cases at %s", a.Name, path)
			}
			for _, c := range a.Cases {
				if seen[c] {
					return schemaError(v.name, "union case %d duplicated at %s", c, path)
				}
				if !legalCase(disc, c) {
					return schemaError(v.name, "union case %d not a value of %s at %s", c, disc, path)
				}
				seen[c] = true
			}
			if err := v.walk(a.Type, fmt.Sprintf("%s(%s)", path, a.Name), guarded); err != nil {
				return err
			}
		}
		if d.Default != nil {
			if err := v.walk(d.Default.Type, path+"(default)", guarded); err != nil {
				return err
			}
		}

	case Ref:
		if _, ok := v.defs[d.Name]; !ok {
			return schemaError(v.name, "reference to undefined type %q at %s", d.Name, path)
		}
		if !guarded {
			v.hard = append(v.hard, d.Name)
		}

	default:
		return schemaError(v.name, "unsupported definition %T at %s", d, path)
	}
	return nil
}

// checkDiscriminant verifies that d is legal as a union switch: int,
// unsigned int, bool or enum, possibly through references. It returns the
// definition the references lead to.
// checkBound rejects a maximum length which would be ignored
func (v *validator) checkBound(max uint32, bounded bool, path string) error {
	if max != 0 && !bounded {
		return schemaError(v.name, "maximum length %d at %s is not marked bounded", max, path)
	}
	return nil
}

func (v *validator) checkDiscriminant(d Def, path string) (Def, error) {
	for i := 0; i <= len(v.defs); i++ {
		switch dd := d.(type) {
		case Primitive:
			switch dd.Kind {
			case Int32, Uint32, Bool:
				return d, nil
			}
		case Enum:
			return d, nil
		case Ref:
			next, ok := v.defs[dd.Name]
			if !ok {
				return nil, schemaError(v.name, "reference to undefined type %q at %s(switch)", dd.Name, path)
			}
			d = next
			continue
		}
		return nil, schemaError(v.name, "%s not legal for union switch at %s", d, path)
	}
	return nil, schemaError(v.name, "circular union switch type at %s", path)
}

// legalCase reports whether c can be decoded from the switch type disc
func legalCase(disc Def, c int64) bool {
	switch d := disc.(type) {
	case Enum:
		if c < math.MinInt32 || c > math.MaxInt32 {
			return false
		}
		_, ok := d.Names[int32(c)]
		return ok
	case Primitive:
		switch d.Kind {
		case Bool:
			return c == 0 || c == 1
		case Int32:
			return c >= math.MinInt32 && c <= math.MaxInt32
		case Uint32:
			return c >= 0 && c <= math.MaxUint32
		}
	}
	return false
}
