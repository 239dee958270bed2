// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const catalog = `
types:
  Point:
    struct:
      - x: int
      - y: int
  Color:
    enum: { RED: 0, GREEN: 1, BLUE: 2 }
  Shape:
    union:
      switch: Color
      cases:
        - case: RED
          name: circle
          type: double
        - case: [GREEN, BLUE]
          name: polygon
          type: Point<4>
      default:
        type: void
  Node:
    struct:
      - value: string<64>
      - next: Node*
  Account:
    struct:
      - id: opaque[32]
      - balance: unsigned hyper
      - tags: string<16><8>
      - thresholds: { array: { elem: unsigned int, len: 4 } }
      - signers: { vararray: { elem: Point, max: 20 } }
      - memo: { optional: opaque<28> }
      - ext:
          union:
            switch: int
            cases:
              - case: 0
`

func TestLoadYAML(t *testing.T) {
	reg, err := LoadYAML(strings.NewReader(catalog))
	require.NoError(t, err)
	assert.Equal(t, []string{"Account", "Color", "Node", "Point", "Shape"}, reg.Names())

	point, _ := reg.Resolve("Point")
	assert.Equal(t, Struct{Fields: []Field{
		{Name: "x", Type: Primitive{Kind: Int32}},
		{Name: "y", Type: Primitive{Kind: Int32}},
	}}, point)

	shape, _ := reg.Resolve("Shape")
	assert.Equal(t, Union{
		Discriminant: Ref{Name: "Color"},
		Arms: []Arm{
			{Name: "circle", Cases: []int64{0}, Type: Primitive{Kind: Float64}},
			{Name: "polygon", Cases: []int64{1, 2}, Type: VarArray{Elem: Ref{Name: "Point"}, MaxLen: 4, Bounded: true}},
		},
		Default: &Arm{Type: Void{}},
	}, shape)

	node, _ := reg.Resolve("Node")
	assert.Equal(t, Struct{Fields: []Field{
		{Name: "value", Type: VarString{MaxLen: 64, Bounded: true}},
		{Name: "next", Type: Optional{Elem: Ref{Name: "Node"}}},
	}}, node)

	account, _ := reg.Resolve("Account")
	assert.Equal(t, Struct{Fields: []Field{
		{Name: "id", Type: FixedOpaque{Len: 32}},
		{Name: "balance", Type: Primitive{Kind: Uint64}},
		{Name: "tags", Type: VarArray{Elem: VarString{MaxLen: 16, Bounded: true}, MaxLen: 8, Bounded: true}},
		{Name: "thresholds", Type: FixedArray{Elem: Primitive{Kind: Uint32}, Len: 4}},
		{Name: "signers", Type: VarArray{Elem: Ref{Name: "Point"}, MaxLen: 20, Bounded: true}},
		{Name: "memo", Type: Optional{Elem: VarOpaque{MaxLen: 28, Bounded: true}}},
		{Name: "ext", Type: Union{
			Discriminant: Primitive{Kind: Int32},
			Arms:         []Arm{{Cases: []int64{0}, Type: Void{}}},
		}},
	}}, account)
}

func TestParseTypeExpr(t *testing.T) {
	testcases := []struct {
		Expr   string
		Expect Def
	}{
		{"int", Primitive{Kind: Int32}},
		{"unsigned  int", Primitive{Kind: Uint32}},
		{"hyper", Primitive{Kind: Int64}},
		{"uint64", Primitive{Kind: Uint64}},
		{"float", Primitive{Kind: Float32}},
		{"bool", Primitive{Kind: Bool}},
		{"void", Void{}},
		{"string", VarString{}},
		{"string<>", VarString{}},
		{"opaque<>", VarOpaque{}},
		{"opaque[0x10]", FixedOpaque{Len: 16}},
		{"int[3]", FixedArray{Elem: Primitive{Kind: Int32}, Len: 3}},
		{"Asset<100>", VarArray{Elem: Ref{Name: "Asset"}, MaxLen: 100, Bounded: true}},
		{"Signer*", Optional{Elem: Ref{Name: "Signer"}}},
		{"opaque<0>", VarOpaque{Bounded: true}},
		{"string<0>", VarString{Bounded: true}},
		{"int<0>", VarArray{Elem: Primitive{Kind: Int32}, Bounded: true}},
		{"string< >", VarString{}},
		{"opaque[4] [2] *", Optional{Elem: FixedArray{Elem: FixedOpaque{Len: 4}, Len: 2}}},
	}

	fail := func(format string, args ...interface{}) error {
		return schemaError("", format, args...)
	}
	for _, tc := range testcases {
		t.Run(tc.Expr, func(t *testing.T) {
			d, err := parseTypeExpr(tc.Expr, fail)
			require.NoError(t, err)
			assert.Equal(t, tc.Expect, d)
		})
	}

	for _, bad := range []string{"", "[4]", "int[]", "int<x>", "opaque", "opaque*", "string[4]", "int!"} {
		t.Run(bad, func(t *testing.T) {
			_, err := parseTypeExpr(bad, fail)
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLErrors(t *testing.T) {
	testcases := map[string]string{
		"empty":          ``,
		"not a mapping":  `- a`,
		"no types":       `other: {}`,
		"dangling":       "types:\n  A: B\n",
		"bad enum value": "types:\n  E:\n    enum: { A: x }\n",
		"duplicate enum": "types:\n  E:\n    enum: { A: 1, B: 1 }\n",
		"unknown kind":   "types:\n  A:\n    record: []\n",
		"bad label":      "types:\n  U:\n    union:\n      switch: int\n      cases:\n        - case: RED\n",
		"no switch":      "types:\n  U:\n    union:\n      cases: []\n",
		"field shape":    "types:\n  S:\n    struct:\n      - a: int\n        b: int\n",
		"invalid yaml":   "types: [",
	}

	for name, doc := range testcases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("types:\n  Point:\n    struct:\n      - x: int\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("types:\n  Path: Point<>\n"), 0644))

	reg, err := LoadYAMLFiles(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"Path", "Point"}, reg.Names())

	_, err = LoadYAMLFiles(a, a)
	assert.Error(t, err, "types defined twice")

	_, err = LoadYAMLFiles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLFilesSharedEnums(t *testing.T) {
	dir := t.TempDir()
	colors := filepath.Join(dir, "colors.yaml")
	shapes := filepath.Join(dir, "shapes.yaml")
	require.NoError(t, os.WriteFile(colors, []byte("types:\n  Color:\n    enum: { RED: 0, GREEN: 1 }\n"), 0644))
	require.NoError(t, os.WriteFile(shapes, []byte(`
types:
  Shape:
    union:
      switch: Color
      cases:
        - case: RED
          name: circle
          type: double
        - case: GREEN
          type: { vararray: { elem: int, max: 0 } }
`), 0644))

	expect := Union{
		Discriminant: Ref{Name: "Color"},
		Arms: []Arm{
			{Name: "circle", Cases: []int64{0}, Type: Primitive{Kind: Float64}},
			{Cases: []int64{1}, Type: VarArray{Elem: Primitive{Kind: Int32}, Bounded: true}},
		},
	}

	for _, order := range [][]string{{colors, shapes}, {shapes, colors}} {
		reg, err := LoadYAMLFiles(order...)
		require.NoError(t, err)
		shape, _ := reg.Resolve("Shape")
		assert.Equal(t, expect, shape)
	}

	var b Builder
	b.Add("Color", Enum{Names: map[int32]string{0: "RED", 1: "GREEN"}})
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("types:\n  Flag:\n    union:\n      switch: Color\n      cases:\n        - case: GREEN\n"), &doc))
	require.NoError(t, b.AddYAML(&doc))
	reg, err := b.Build()
	require.NoError(t, err)
	flag, _ := reg.Resolve("Flag")
	assert.Equal(t, []int64{1}, flag.(Union).Arms[0].Cases)
}
