// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a catalog of named types and returns the validated
// Registry. The catalog is a mapping under the key `types`:
//
//     types:
//       Point:
//         struct:
//           - x: int
//           - y: int
//       Color:
//         enum: { RED: 0, GREEN: 1, BLUE: 2 }
//       Shape:
//         union:
//           switch: Color
//           cases:
//             - case: RED
//               name: circle
//               type: double
//             - case: [GREEN, BLUE]
//               type: Point<4>
//           default:
//             type: void
//       Node:
//         struct:
//           - value: string<64>
//           - next: Node*
//
// Scalar type expressions are a base type followed by any number of
// suffixes, applied left to right. Base types are the XDR primitives (`int`,
// `unsigned int`, `hyper`, `unsigned hyper`, `float`, `double`, `bool`,
// `void`), `string`, `opaque` or the name of another type. Suffixes are
// `[N]` (fixed length), `<N>` or `<>` (variable length) and `*` (optional);
// on `string` and `opaque` the first suffix gives the payload length.
//
// Anonymous definitions may be nested anywhere a type is expected using the
// mapping forms `struct:`, `enum:`, `union:`, `optional:`, `array:` (with
// `elem` and `len`) and `vararray:` (with `elem` and optional `max`).
func LoadYAML(r io.Reader) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, schemaError("", "empty catalog")
		}
		return nil, fmt.Errorf("parsing schema catalog: %w", err)
	}

	b := &Builder{}
	if err := b.AddYAML(&doc); err != nil {
		return nil, err
	}
	return b.Build()
}

// LoadYAMLFiles reads and merges several catalogs into one Registry. A type
// defined in more than one file is an error. Union cases may name the
// symbols of an enum defined in any of the files.
func LoadYAMLFiles(paths ...string) (*Registry, error) {
	types := make([]*yaml.Node, len(paths))
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening schema catalog: %w", err)
		}

		var doc yaml.Node
		err = yaml.NewDecoder(f).Decode(&doc)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing schema catalog %s: %w", p, err)
		}

		if types[i], err = catalogTypes(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	b := &Builder{}
	for i, t := range types {
		if err := b.addYAMLEnums(t); err != nil {
			return nil, fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	for i, t := range types {
		if err := b.addYAMLTypes(t); err != nil {
			return nil, fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return b.Build()
}

// AddYAML registers every type of a parsed catalog document. Union cases may
// name the symbols of enums in this document, in documents added earlier or
// registered with Add.
func (b *Builder) AddYAML(doc *yaml.Node) error {
	types, err := catalogTypes(doc)
	if err != nil {
		return err
	}
	if err := b.addYAMLEnums(types); err != nil {
		return err
	}
	return b.addYAMLTypes(types)
}

// catalogTypes returns the `types` mapping of a catalog document
func catalogTypes(doc *yaml.Node) (*yaml.Node, error) {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, yamlError(root, "", "catalog must be a mapping")
	}

	types := mappingValue(root, "types")
	if types == nil || types.Kind != yaml.MappingNode {
		return nil, yamlError(root, "", "catalog has no `types` mapping")
	}
	return types, nil
}

// addYAMLEnums gathers the named enums of a catalog ahead of the other
// definitions, so that union cases may name their symbols regardless of
// declaration order
func (b *Builder) addYAMLEnums(types *yaml.Node) error {
	if b.yamlEnums == nil {
		b.yamlEnums = make(map[string]Enum)
	}

	l := yamlLoader{b: b}
	for i := 0; i+1 < len(types.Content); i += 2 {
		name, n := types.Content[i].Value, types.Content[i+1]
		if e := mappingValue(n, "enum"); e != nil && n.Kind == yaml.MappingNode {
			d, err := l.enum(e, name)
			if err != nil {
				return err
			}
			b.yamlEnums[name] = d
		}
	}
	return nil
}

func (b *Builder) addYAMLTypes(types *yaml.Node) error {
	l := yamlLoader{b: b}
	for i := 0; i+1 < len(types.Content); i += 2 {
		name, n := types.Content[i].Value, types.Content[i+1]
		d, err := l.def(n, name)
		if err != nil {
			return err
		}
		b.Add(name, d)
	}
	return nil
}

type yamlLoader struct {
	b *Builder
}

// switchEnum looks up a named enum whose symbols union cases may use
func (l *yamlLoader) switchEnum(name string) (Enum, bool) {
	if e, ok := l.b.yamlEnums[name]; ok {
		return e, true
	}
	e, ok := l.b.defs[name].(Enum)
	return e, ok
}

func yamlError(n *yaml.Node, name, format string, args ...interface{}) error {
	return schemaError(name, "line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func (l *yamlLoader) def(n *yaml.Node, name string) (Def, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return parseTypeExpr(n.Value, func(format string, args ...interface{}) error {
			return yamlError(n, name, format, args...)
		})

	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, yamlError(n, name, "anonymous definition must have exactly one key")
		}
		key, body := n.Content[0].Value, n.Content[1]
		switch key {
		case "struct":
			return l.structDef(body, name)
		case "enum":
			return l.enum(body, name)
		case "union":
			return l.union(body, name)
		case "optional":
			elem, err := l.def(body, name)
			if err != nil {
				return nil, err
			}
			return Optional{Elem: elem}, nil
		case "array", "vararray":
			return l.array(key, body, name)
		default:
			return nil, yamlError(n, name, "unknown definition kind %q", key)
		}

	default:
		return nil, yamlError(n, name, "expected a type expression or definition")
	}
}

func (l *yamlLoader) structDef(n *yaml.Node, name string) (Def, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, yamlError(n, name, "struct fields must be a sequence of `name: type` entries")
	}

	s := Struct{Fields: make([]Field, 0, len(n.Content))}
	for _, f := range n.Content {
		if f.Kind != yaml.MappingNode || len(f.Content) != 2 {
			return nil, yamlError(f, name, "struct field must be a single `name: type` entry")
		}
		d, err := l.def(f.Content[1], name)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{Name: f.Content[0].Value, Type: d})
	}
	return s, nil
}

func (l *yamlLoader) enum(n *yaml.Node, name string) (Enum, error) {
	if n.Kind != yaml.MappingNode {
		return Enum{}, yamlError(n, name, "enum must be a mapping of `SYMBOL: value`")
	}

	e := Enum{Names: make(map[int32]string, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		sym, vn := n.Content[i].Value, n.Content[i+1]
		v, err := strconv.ParseInt(vn.Value, 0, 32)
		if err != nil {
			return Enum{}, yamlError(vn, name, "enum value of %s: %v", sym, err)
		}
		if prev, dup := e.Names[int32(v)]; dup {
			return Enum{}, yamlError(vn, name, "enum value %d used by both %s and %s", v, prev, sym)
		}
		e.Names[int32(v)] = sym
	}
	return e, nil
}

func (l *yamlLoader) array(key string, n *yaml.Node, name string) (Def, error) {
	elemNode := mappingValue(n, "elem")
	if elemNode == nil {
		return nil, yamlError(n, name, "%s requires `elem`", key)
	}
	elem, err := l.def(elemNode, name)
	if err != nil {
		return nil, err
	}

	bound := func(k string) (uint32, bool, error) {
		bn := mappingValue(n, k)
		if bn == nil {
			return 0, false, nil
		}
		v, err := strconv.ParseUint(bn.Value, 0, 32)
		if err != nil {
			return 0, false, yamlError(bn, name, "%s `%s`: %v", key, k, err)
		}
		return uint32(v), true, nil
	}

	if key == "array" {
		ln, _, err := bound("len")
		if err != nil {
			return nil, err
		}
		return FixedArray{Elem: elem, Len: ln}, nil
	}

	max, bounded, err := bound("max")
	if err != nil {
		return nil, err
	}
	return VarArray{Elem: elem, MaxLen: max, Bounded: bounded}, nil
}

func (l *yamlLoader) union(n *yaml.Node, name string) (Def, error) {
	swNode := mappingValue(n, "switch")
	if swNode == nil {
		return nil, yamlError(n, name, "union requires `switch`")
	}
	sw, err := l.def(swNode, name)
	if err != nil {
		return nil, err
	}

	// Symbolic case labels are looked up in the switch enum, when there is one
	var symbols map[string]int64
	var enum *Enum
	switch d := sw.(type) {
	case Enum:
		enum = &d
	case Ref:
		if e, ok := l.switchEnum(d.Name); ok {
			enum = &e
		}
	case Primitive:
		if d.Kind == Bool {
			symbols = map[string]int64{"false": 0, "true": 1}
		}
	}
	if enum != nil {
		symbols = make(map[string]int64, len(enum.Names))
		for v, s := range enum.Names {
			symbols[s] = int64(v)
		}
	}

	u := Union{Discriminant: sw}

	if cases := mappingValue(n, "cases"); cases != nil {
		if cases.Kind != yaml.SequenceNode {
			return nil, yamlError(cases, name, "union `cases` must be a sequence")
		}
		for _, c := range cases.Content {
			arm, err := l.arm(c, name, symbols)
			if err != nil {
				return nil, err
			}
			u.Arms = append(u.Arms, arm)
		}
	}

	if dn := mappingValue(n, "default"); dn != nil {
		arm, err := l.armBody(dn, name)
		if err != nil {
			return nil, err
		}
		u.Default = &arm
	}
	return u, nil
}

func (l *yamlLoader) arm(n *yaml.Node, name string, symbols map[string]int64) (Arm, error) {
	cn := mappingValue(n, "case")
	if cn == nil {
		return Arm{}, yamlError(n, name, "union arm requires `case`")
	}

	labels := []*yaml.Node{cn}
	if cn.Kind == yaml.SequenceNode {
		labels = cn.Content
	}

	arm, err := l.armBody(n, name)
	if err != nil {
		return Arm{}, err
	}

	for _, ln := range labels {
		if v, err := strconv.ParseInt(ln.Value, 0, 64); err == nil {
			arm.Cases = append(arm.Cases, v)
			continue
		}
		v, ok := symbols[ln.Value]
		if !ok {
			return Arm{}, yamlError(ln, name, "case label %q is neither a number nor a symbol of the switch type", ln.Value)
		}
		arm.Cases = append(arm.Cases, v)
		if arm.Name == "" && len(labels) == 1 {
			arm.Name = ln.Value
		}
	}
	return arm, nil
}

// armBody reads the `name` and `type` keys shared by case and default arms.
// A missing type is void.
func (l *yamlLoader) armBody(n *yaml.Node, name string) (Arm, error) {
	if n.Kind != yaml.MappingNode {
		return Arm{}, yamlError(n, name, "union arm must be a mapping")
	}

	var arm Arm
	if nn := mappingValue(n, "name"); nn != nil {
		arm.Name = nn.Value
	}

	arm.Type = Void{}
	if tn := mappingValue(n, "type"); tn != nil {
		d, err := l.def(tn, name)
		if err != nil {
			return Arm{}, err
		}
		arm.Type = d
	}
	return arm, nil
}

var (
	typeExprBase   = regexp.MustCompile(`^\s*(unsigned\s+int|unsigned\s+hyper|[A-Za-z_][A-Za-z0-9_]*)`)
	typeExprSuffix = regexp.MustCompile(`^\s*(\[\s*(\w+)\s*\]|<\s*(\w*)\s*>|\*)`)
)

var primitiveExprs = map[string]PrimitiveKind{
	"int":            Int32,
	"int32":          Int32,
	"unsigned int":   Uint32,
	"uint32":         Uint32,
	"hyper":          Int64,
	"int64":          Int64,
	"unsigned hyper": Uint64,
	"uint64":         Uint64,
	"float":          Float32,
	"float32":        Float32,
	"double":         Float64,
	"float64":        Float64,
	"bool":           Bool,
}

// parseTypeExpr parses a scalar type expression such as `opaque[32]<10>`.
func parseTypeExpr(s string, fail func(string, ...interface{}) error) (Def, error) {
	m := typeExprBase.FindStringSubmatch(s)
	if m == nil {
		return nil, fail("invalid type expression %q", s)
	}
	base := strings.Join(strings.Fields(m[1]), " ")
	rest := s[len(m[0]):]

	type suffix struct {
		kind    byte // '[', '<' or '*'
		n       uint32
		bounded bool
	}
	var suffixes []suffix
	for strings.TrimSpace(rest) != "" {
		sm := typeExprSuffix.FindStringSubmatch(rest)
		if sm == nil {
			return nil, fail("invalid type expression %q: unexpected %q", s, strings.TrimSpace(rest))
		}
		rest = rest[len(sm[0]):]

		sf := suffix{kind: strings.TrimSpace(sm[1])[0]}
		num := sm[2] + sm[3]
		if num != "" {
			v, err := strconv.ParseUint(num, 0, 32)
			if err != nil {
				return nil, fail("invalid length in type expression %q: %v", s, err)
			}
			sf.n, sf.bounded = uint32(v), true
		} else if sf.kind == '[' {
			return nil, fail("fixed length required in type expression %q", s)
		}
		suffixes = append(suffixes, sf)
	}

	var d Def
	switch base {
	case "void":
		d = Void{}
	case "string", "opaque":
		if len(suffixes) == 0 {
			if base == "opaque" {
				return nil, fail("opaque requires a length in %q", s)
			}
			d = VarString{}
			break
		}
		sf := suffixes[0]
		suffixes = suffixes[1:]
		switch {
		case sf.kind == '*':
			return nil, fail("%s requires a length before '*' in %q", base, s)
		case base == "string" && sf.kind == '[':
			return nil, fail("fixed-length strings are not supported (%q)", s)
		case base == "string":
			d = VarString{MaxLen: sf.n, Bounded: sf.bounded}
		case sf.kind == '[':
			d = FixedOpaque{Len: sf.n}
		default:
			d = VarOpaque{MaxLen: sf.n, Bounded: sf.bounded}
		}
	default:
		if k, ok := primitiveExprs[base]; ok {
			d = Primitive{Kind: k}
		} else {
			d = Ref{Name: base}
		}
	}

	for _, sf := range suffixes {
		switch sf.kind {
		case '[':
			d = FixedArray{Elem: d, Len: sf.n}
		case '<':
			d = VarArray{Elem: d, MaxLen: sf.n, Bounded: sf.bounded}
		case '*':
			d = Optional{Elem: d}
		}
	}
	return d, nil
}
