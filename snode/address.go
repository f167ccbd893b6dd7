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

package snode

import "fmt"

// Unassigned is the BufferID of an address that has not been placed yet.
const Unassigned = -1

// Address is an affine description of where an element lives inside a flat
// backing buffer. For vector width W and batch counter b, lane group i of an
// element sits at
//
//	CoeffIMax*n + stride*(b+i) + CoeffConst
//
// where stride = CoeffI*W, plus (W/CoeffAOSOAGroupSize)*CoeffAOSOAStride when
// the buffer interleaves elements in blocks.
type Address struct {
	BufferID            int
	CoeffI              int
	CoeffAOSOAGroupSize int
	CoeffAOSOAStride    int
	CoeffConst          int
	CoeffIMax           int

	// ElemType is the type the buffer is viewed as. Float32 by default.
	ElemType DataType
}

// NewAddress returns an unassigned address.
func NewAddress() Address {
	return Address{BufferID: Unassigned}
}

// Assigned reports whether the address names a buffer.
func (a Address) Assigned() bool {
	return a.BufferID != Unassigned
}

// Stride returns the per-batch element stride for the given vector width.
func (a Address) Stride(vectorWidth int) int {
	stride := a.CoeffI * vectorWidth
	if a.CoeffAOSOAGroupSize != 0 {
		stride += vectorWidth / a.CoeffAOSOAGroupSize * a.CoeffAOSOAStride
	}
	return stride
}

// Offset evaluates the address for concrete values of n, the batch counter
// and the unroll lane. It is the numeric twin of the generated expression.
func (a Address) Offset(vectorWidth, n, batch, lane, extra int) int {
	return a.CoeffIMax*n + a.Stride(vectorWidth)*(batch+lane) + a.CoeffConst + extra
}

func (a Address) String() string {
	if !a.Assigned() {
		return "addr(unassigned)"
	}
	return fmt.Sprintf("addr(buf=%d, i=%d, aosoa=%d/%d, const=%d, imax=%d, %s)",
		a.BufferID, a.CoeffI, a.CoeffAOSOAGroupSize, a.CoeffAOSOAStride,
		a.CoeffConst, a.CoeffIMax, a.ElemType)
}
