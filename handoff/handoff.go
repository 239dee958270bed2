// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package handoff packages a conversion for a caller on the far side of a
// foreign function boundary.
//
// A Result carries either JSON text or an error message, never both, and
// must be released exactly once by whoever took ownership of it. Releasing
// again returns ErrReleased rather than touching freed state, and accessors
// on a released Result return nothing.
package handoff

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	xdrinterfaces "go.e43.eu/xdr2json/interfaces"
	"go.e43.eu/xdr2json/internal/logger"
)

// ErrReleased is returned when a Result is released more than once
var ErrReleased = stderrors.New("handoff: result already released")

// ErrorPrefix begins the message of every failed conversion
const ErrorPrefix = "xdr_to_json() failed: "

// Result is the outcome of one conversion
type Result struct {
	released int32
	json     []byte
	err      string
}

// Produce runs one conversion and packages its outcome. A panic during the
// conversion is packaged as a failure, as it must not unwind into a foreign
// caller.
func Produce(conv xdrinterfaces.Converter, typeName string, buf []byte) (r *Result) {
	defer func() {
		if p := recover(); p != nil {
			logger.Logger().Error("conversion panicked",
				zap.String("type", typeName),
				zap.Any("panic", p),
				zap.Stack("stack"))
			r = Failed(fmt.Errorf("panic during conversion: %v", p))
		}
	}()

	js, err := conv.Convert(typeName, buf)
	if err != nil {
		return Failed(err)
	}
	return &Result{json: js}
}

// Failed packages a failure which happened before conversion could start
func Failed(err error) *Result {
	return &Result{err: ErrorPrefix + err.Error()}
}

// JSON returns the JSON text of a successful conversion, or nil if the
// conversion failed or the result was released
func (r *Result) JSON() []byte {
	if r.Released() {
		return nil
	}
	return r.json
}

// Err returns the error message of a failed conversion, or "" if the
// conversion succeeded or the result was released
func (r *Result) Err() string {
	if r.Released() {
		return ""
	}
	return r.err
}

// OK reports whether the conversion succeeded
func (r *Result) OK() bool {
	return r.err == ""
}

// Released reports whether Release has been called
func (r *Result) Released() bool {
	return atomic.LoadInt32(&r.released) != 0
}

// Release gives up the result's buffers. Only the first call succeeds.
func (r *Result) Release() error {
	if !atomic.CompareAndSwapInt32(&r.released, 0, 1) {
		return ErrReleased
	}
	return nil
}
