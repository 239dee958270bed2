// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package handoff

import (
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter map[string]string

func (f fakeConverter) Convert(typeName string, buf []byte) ([]byte, error) {
	js, ok := f[typeName]
	if !ok {
		return nil, stderrors.New("unknown type " + typeName)
	}
	return []byte(js), nil
}

func TestProduce(t *testing.T) {
	conv := fakeConverter{"Point": `{"x":1}`}

	r := Produce(conv, "Point", nil)
	assert.True(t, r.OK())
	assert.Equal(t, `{"x":1}`, string(r.JSON()))
	assert.Equal(t, "", r.Err())

	r = Produce(conv, "Nope", nil)
	assert.False(t, r.OK())
	assert.Nil(t, r.JSON())
	assert.Equal(t, "xdr_to_json() failed: unknown type Nope", r.Err())
}

type panickingConverter struct{}

func (panickingConverter) Convert(string, []byte) ([]byte, error) {
	panic("boom")
}

func TestProducePanic(t *testing.T) {
	var r *Result
	require.NotPanics(t, func() {
		r = Produce(panickingConverter{}, "Point", nil)
	})
	assert.False(t, r.OK())
	assert.Nil(t, r.JSON())
	assert.Equal(t, "xdr_to_json() failed: panic during conversion: boom", r.Err())
	assert.NoError(t, r.Release())
}

func TestFailed(t *testing.T) {
	r := Failed(stderrors.New("no schema"))
	assert.False(t, r.OK())
	assert.True(t, strings.HasPrefix(r.Err(), ErrorPrefix))
}

func TestRelease(t *testing.T) {
	r := Produce(fakeConverter{"A": `1`}, "A", nil)
	require.False(t, r.Released())

	require.NoError(t, r.Release())
	assert.True(t, r.Released())
	assert.Nil(t, r.JSON())
	assert.Equal(t, "", r.Err())

	assert.Equal(t, ErrReleased, r.Release())
}

func TestReleaseOnce(t *testing.T) {
	r := Failed(stderrors.New("x"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Release() == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
