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

//go:build !cgo

package jit

// NewBuffer always fails without cgo.
func NewBuffer(size int) (*Buffer, error) {
	return nil, ErrNoCgo
}

// Free is a no-op without cgo.
func (b *Buffer) Free() {}

// Open always fails without cgo.
func Open(path, symbol string) (*Kernel, error) {
	return nil, ErrNoCgo
}

// Call always fails without cgo.
func (k *Kernel) Call(ctx *Context) error {
	return ErrNoCgo
}

// Close is a no-op without cgo.
func (k *Kernel) Close() error {
	return nil
}
