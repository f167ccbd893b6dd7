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

package codegen

import (
	"fmt"

	"github.com/ajroetker/go-tlang/jit"
	"github.com/ajroetker/go-tlang/snode"
)

// VectorizedAddress returns a pointer expression into addr's buffer for the
// batch at b + loopIndex, shifted by extraOffset elements:
//
//	&context.get_buffer<T>(ID)[IMAX * n + STRIDE * (b + loopIndex) + CONST + extraOffset]
//
// No bounds checking is done; the loop nest keeps b within the node's range.
func (s *Session) VectorizedAddress(addr snode.Address, loopIndex string, extraOffset int) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	if !addr.Assigned() {
		return "", s.fail(fmt.Errorf("%w: %v", ErrUnresolvedAddress, addr))
	}
	if addr.BufferID < 0 || addr.BufferID >= jit.MaxBuffers {
		return "", s.fail(fmt.Errorf("%w: buffer %d outside [0, %d)", ErrUnresolvedAddress, addr.BufferID, jit.MaxBuffers))
	}
	return fmt.Sprintf("&context.get_buffer<%s>(%d)[%d * n + %d * (b + %s) + %d + %d]",
		addr.ElemType, addr.BufferID, addr.CoeffIMax, addr.Stride(s.opts.VectorWidth),
		loopIndex, addr.CoeffConst, extraOffset), nil
}
