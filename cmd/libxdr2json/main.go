// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Command libxdr2json builds the converter as a C shared library:
//
//     go build -buildmode=c-shared -o libxdr2json.so ./cmd/libxdr2json
//
// The library exports
//
//     conversion_result_t* xdr_to_json(const char* typename, xdr_t xdr);
//     void free_conversion_result(conversion_result_t*);
//
// Exactly one of the json and error members of a result is non-empty. Every
// result must be passed to free_conversion_result once; freeing NULL, or a
// result which was already freed, does nothing.
//
// The schema catalogs are read on first use from the files listed in the
// XDR2JSON_SCHEMA environment variable (separated like PATH).
package main

/*
#include <stdlib.h>
typedef struct {
    unsigned char* xdr;
    size_t len;
} xdr_t;
typedef struct {
    char* json;
    char* error;
} conversion_result_t;
*/
import "C"

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"go.e43.eu/xdr2json"
	"go.e43.eu/xdr2json/handoff"
	"go.e43.eu/xdr2json/internal/logger"
	"go.e43.eu/xdr2json/schema"
)

// SchemaEnv names the environment variable listing the schema catalogs
const SchemaEnv = "XDR2JSON_SCHEMA"

var (
	loadOnce  sync.Once
	converter *xdr2json.Converter
	loadErr   error
)

func load() (*xdr2json.Converter, error) {
	loadOnce.Do(func() {
		paths := filepath.SplitList(os.Getenv(SchemaEnv))
		if len(paths) == 0 {
			loadErr = fmt.Errorf("%s is not set", SchemaEnv)
			return
		}

		var reg *schema.Registry
		reg, loadErr = schema.LoadYAMLFiles(paths...)
		if loadErr != nil {
			return
		}
		converter = xdr2json.New(reg, xdr2json.Options{})
		logger.Logger().Debug("loaded schema catalogs",
			zap.Strings("files", paths),
			zap.Int("types", reg.Len()))
	})
	return converter, loadErr
}

// Results handed out and not yet freed
var (
	liveMu sync.Mutex
	live   = make(map[*C.conversion_result_t]*handoff.Result)
)

func track(r *handoff.Result) *C.conversion_result_t {
	cr := (*C.conversion_result_t)(C.malloc(C.size_t(unsafe.Sizeof(C.conversion_result_t{}))))
	cr.json = C.CString(string(r.JSON()))
	cr.error = C.CString(r.Err())

	liveMu.Lock()
	live[cr] = r
	liveMu.Unlock()
	return cr
}

//export xdr_to_json
func xdr_to_json(typename *C.char, xdr C.xdr_t) *C.conversion_result_t {
	conv, err := load()
	if err != nil {
		return track(handoff.Failed(err))
	}

	if uint64(xdr.len) > math.MaxInt32 {
		return track(handoff.Failed(fmt.Errorf("input of %d bytes is too large", uint64(xdr.len))))
	}

	var buf []byte
	if xdr.xdr != nil && xdr.len != 0 {
		buf = C.GoBytes(unsafe.Pointer(xdr.xdr), C.int(xdr.len))
	}
	return track(handoff.Produce(conv, C.GoString(typename), buf))
}

//export free_conversion_result
func free_conversion_result(cr *C.conversion_result_t) {
	if cr == nil {
		return
	}

	liveMu.Lock()
	r, ok := live[cr]
	delete(live, cr)
	liveMu.Unlock()

	if !ok || r.Release() != nil {
		logger.Logger().Warn("ignoring free of unknown conversion result")
		return
	}
	C.free(unsafe.Pointer(cr.json))
	C.free(unsafe.Pointer(cr.error))
	C.free(unsafe.Pointer(cr))
}

func main() {}
