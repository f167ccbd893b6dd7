// Copyright 2025 go-tlang Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build cgo

package jit

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	void *buffers[16];
	int64_t n;
} tlang_context;

typedef void (*tlang_kernel)(tlang_context);

static void tlang_call(void *fn, tlang_context ctx) {
	((tlang_kernel)fn)(ctx);
}

static const char *tlang_dlerror(void) {
	const char *e = dlerror();
	return e ? e : "unknown dynamic loader error";
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// The dynamic loader's error state is per thread but dlerror is not
// reentrant on every libc; serialize loader calls.
var dlMu sync.Mutex

// NewBuffer allocates size zeroed bytes of native memory.
func NewBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("jit: invalid buffer size %d", size)
	}
	p := C.calloc(C.size_t(size), 1)
	if p == nil {
		return nil, fmt.Errorf("jit: cannot allocate %d bytes", size)
	}
	return &Buffer{ptr: p, size: size}, nil
}

// Free releases the buffer. Views obtained before are invalid afterwards.
func (b *Buffer) Free() {
	if b.ptr != nil {
		C.free(b.ptr)
		b.ptr = nil
		b.size = 0
	}
}

// Open loads the shared library at path and resolves symbol.
func Open(path, symbol string) (*Kernel, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	csym := C.CString(symbol)
	defer C.free(unsafe.Pointer(csym))

	dlMu.Lock()
	defer dlMu.Unlock()
	h := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if h == nil {
		return nil, fmt.Errorf("jit: dlopen %s: %s", path, C.GoString(C.tlang_dlerror()))
	}
	fn := C.dlsym(h, csym)
	if fn == nil {
		msg := C.GoString(C.tlang_dlerror())
		C.dlclose(h)
		return nil, fmt.Errorf("jit: dlsym %s in %s: %s", symbol, path, msg)
	}
	return &Kernel{Name: symbol, Path: path, handle: h, fn: fn}, nil
}

// Call runs the kernel once on ctx.
func (k *Kernel) Call(ctx *Context) error {
	if k.fn == nil {
		return fmt.Errorf("jit: %s is closed", k.Name)
	}
	var c C.tlang_context
	for i, b := range ctx.Buffers {
		if b != nil {
			c.buffers[i] = b.ptr
		}
	}
	c.n = C.int64_t(ctx.N)
	C.tlang_call(k.fn, c)
	return nil
}

// Close unloads the library. The kernel must not be called afterwards.
func (k *Kernel) Close() error {
	if k.handle == nil {
		return nil
	}
	dlMu.Lock()
	defer dlMu.Unlock()
	if C.dlclose(k.handle) != 0 {
		return fmt.Errorf("jit: dlclose %s: %s", k.Path, C.GoString(C.tlang_dlerror()))
	}
	k.handle, k.fn = nil, nil
	return nil
}
