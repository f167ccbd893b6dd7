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

// Package jit loads kernels built by the code generator into the running
// process and calls them.
//
// Buffers handed to a kernel are allocated outside the Go heap so that the
// native code may keep raw pointers to them for the duration of a call.
package jit

import (
	"errors"
	"fmt"
	"unsafe"
)

// MaxBuffers is the number of buffer slots in a Context.
const MaxBuffers = 16

// ErrNoCgo is returned by every loader operation in builds without cgo.
var ErrNoCgo = errors.New("jit: kernel loading requires cgo")

// Context is the Go side of the runtime header's Context: the buffers a
// kernel addresses and the range it binds to n.
type Context struct {
	Buffers [MaxBuffers]*Buffer
	N       int64
}

// Buffer is a zero-initialized block of native memory.
type Buffer struct {
	ptr  unsafe.Pointer
	size int
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int {
	return b.size
}

// Float32s views the buffer as float32 values. The slice is valid until
// Free.
func (b *Buffer) Float32s() []float32 {
	return unsafe.Slice((*float32)(b.ptr), b.size/4)
}

// Int32s views the buffer as int32 values.
func (b *Buffer) Int32s() []int32 {
	return unsafe.Slice((*int32)(b.ptr), b.size/4)
}

// Float64s views the buffer as float64 values.
func (b *Buffer) Float64s() []float64 {
	return unsafe.Slice((*float64)(b.ptr), b.size/8)
}

// Int64s views the buffer as int64 values.
func (b *Buffer) Int64s() []int64 {
	return unsafe.Slice((*int64)(b.ptr), b.size/8)
}

// Kernel is a loaded kernel entry point.
type Kernel struct {
	// Name is the exported symbol.
	Name string

	// Path is the shared library the kernel was loaded from.
	Path string

	handle unsafe.Pointer
	fn     unsafe.Pointer
}

func (k *Kernel) String() string {
	return fmt.Sprintf("%s (%s)", k.Name, k.Path)
}
