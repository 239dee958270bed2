// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package xdr2json

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xdrinterfaces "go.e43.eu/xdr2json/interfaces"
	"go.e43.eu/xdr2json/schema"
)

var testRegistry = schema.MustNewRegistry(map[string]schema.Def{
	"Point": schema.Struct{Fields: []schema.Field{
		{Name: "x", Type: schema.Primitive{Kind: schema.Int32}},
		{Name: "y", Type: schema.Primitive{Kind: schema.Int32}},
	}},
	"Maybe": schema.Optional{Elem: schema.VarString{}},
	"Hash4": schema.FixedOpaque{Len: 4},
	"Big":   schema.Primitive{Kind: schema.Uint64},
})

// Point is encoded by hand, as the reference encoder would
type Point struct {
	X, Y int32
}

func (p Point) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf, uint32(p.X))
	binary.BigEndian.PutUint32(buf[4:], uint32(p.Y))
	return buf, nil
}

type broken struct{}

func (*broken) MarshalBinary() ([]byte, error) {
	return nil, stderrors.New("nope")
}

func TestConvert(t *testing.T) {
	testcases := []struct {
		Type   string
		Input  []byte
		Expect string
	}{
		{"Point", []byte{0, 0, 0, 3, 0xff, 0xff, 0xff, 0xfb}, `{"x":3,"y":-5}`},
		{"Maybe", []byte{0, 0, 0, 0}, `null`},
		{"Maybe", []byte{0, 0, 0, 1, 0, 0, 0, 2, 'h', 'i', 0, 0}, `"hi"`},
		{"Hash4", []byte{0xde, 0xad, 0xbe, 0xef}, `"deadbeef"`},
		{"Big", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, `"18446744073709551615"`},
		{"Big", []byte{0, 0, 0, 0, 0, 0, 0, 42}, `42`},
	}

	for _, tc := range testcases {
		t.Run(fmt.Sprintf("%s %x", tc.Type, tc.Input), func(t *testing.T) {
			js, err := Convert(testRegistry, tc.Type, tc.Input)
			require.NoError(t, err)
			assert.JSONEq(t, tc.Expect, string(js))
			assert.Equal(t, tc.Expect, string(js), "output is canonical")
		})
	}
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert(testRegistry, "Hash4", []byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, TruncatedInput))

	var xerr *Error
	require.True(t, stderrors.As(err, &xerr))
	assert.Equal(t, 0, xerr.Offset)
	assert.Equal(t, "Hash4", xerr.Type)

	js, err := Convert(testRegistry, "Nope", nil)
	assert.Nil(t, js)
	assert.True(t, stderrors.Is(err, UnknownType))

	_, err = Convert(testRegistry, "Maybe", []byte{0, 0, 0, 2})
	assert.True(t, stderrors.Is(err, InvalidOptionalTag))
}

func TestZeroLengthBounds(t *testing.T) {
	reg, err := schema.LoadYAML(strings.NewReader("types:\n  Empty: opaque<0>\n  NoText: string<0>\n  Any: opaque<>\n"))
	require.NoError(t, err)

	four := []byte{0, 0, 0, 4, 'a', 'b', 'c', 'd'}
	for _, name := range []string{"Empty", "NoText"} {
		_, err := Convert(reg, name, four)
		assert.True(t, stderrors.Is(err, LengthExceeded), "%s: %v", name, err)

		js, err := Convert(reg, name, []byte{0, 0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, `""`, string(js))
	}

	js, err := Convert(reg, "Any", four)
	require.NoError(t, err)
	assert.Equal(t, `"61626364"`, string(js))
}

func TestConverterOptions(t *testing.T) {
	input := []byte{0, 0, 0, 3, 0, 0, 0, 4, 0xaa}

	js, err := New(testRegistry, Options{}).Convert("Point", input)
	require.NoError(t, err)
	assert.Equal(t, `{"x":3,"y":4}`, string(js))

	_, err = New(testRegistry, Options{RejectTrailing: true}).Convert("Point", input)
	assert.True(t, stderrors.Is(err, TrailingBytes))

	_, err = New(testRegistry, Options{StrictPadding: true}).Convert("Maybe",
		[]byte{0, 0, 0, 1, 0, 0, 0, 1, 'a', 1, 0, 0})
	assert.True(t, stderrors.Is(err, NonZeroPadding))

	_, err = New(testRegistry, Options{MaxInputLen: 4}).Convert("Point", input)
	assert.True(t, stderrors.Is(err, LengthExceeded))

	c := New(testRegistry, Options{})
	assert.Equal(t, testRegistry, c.Registry())
}

func TestConvertAll(t *testing.T) {
	reqs := []Request{
		{Type: "Point", Data: []byte{0, 0, 0, 1, 0, 0, 0, 2}},
		{Type: "Nope"},
		{Type: "Maybe", Data: []byte{0, 0, 0, 0}},
		{Type: "Hash4", Data: []byte{1}},
	}
	for i := 0; i < 60; i++ {
		reqs = append(reqs, Request{Type: "Big", Data: []byte{0, 0, 0, 0, 0, 0, 0, byte(i)}})
	}

	for _, parallelism := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("parallelism %d", parallelism), func(t *testing.T) {
			c := New(testRegistry, Options{Parallelism: parallelism})
			resps, err := c.ConvertAll(context.Background(), reqs)
			require.NoError(t, err)
			require.Len(t, resps, len(reqs))

			assert.Equal(t, `{"x":1,"y":2}`, string(resps[0].JSON))
			assert.True(t, stderrors.Is(resps[1].Err, UnknownType))
			assert.Equal(t, `null`, string(resps[2].JSON))
			assert.True(t, stderrors.Is(resps[3].Err, TruncatedInput))
			for i := 4; i < len(reqs); i++ {
				assert.NoError(t, resps[i].Err)
				assert.Equal(t, fmt.Sprint(i-4), string(resps[i].JSON))
			}
		})
	}
}

func TestConvertAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := []Request{{Type: "Point", Data: make([]byte, 8)}}
	resps, err := New(testRegistry, Options{}).ConvertAll(ctx, reqs)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Len(t, resps, 1)
	assert.Nil(t, resps[0].JSON)
}

func TestConvertMarshaler(t *testing.T) {
	var c xdrinterfaces.Converter = New(testRegistry, Options{})

	js, err := ConvertMarshaler(c, Point{X: 3, Y: -5})
	require.NoError(t, err)
	assert.Equal(t, `{"x":3,"y":-5}`, string(js))

	js, err = ConvertMarshaler(c, &Point{X: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":0}`, string(js))

	_, err = ConvertMarshaler(c, &broken{})
	require.Error(t, err)
	assert.Equal(t, "failed to serialize XDR type 'broken': nope", err.Error())
}

func TestTypeName(t *testing.T) {
	p := &Point{}
	assert.Equal(t, "Point", TypeName(Point{}))
	assert.Equal(t, "Point", TypeName(&p))
	assert.Equal(t, "", TypeName(nil))
}
