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

import "fmt"

// Constant returns the symbol bound to the constant expression text. The
// first request for a text allocates the next constNNNN symbol and hoists
// its binding above the loop nest; later requests return the same symbol
// and emit nothing.
func (s *Session) Constant(text string) string {
	if sym, ok := s.constants[text]; ok {
		return sym
	}
	sym := fmt.Sprintf("const%04d", s.constantCounter)
	s.constantCounter++
	s.consts.Decl("const auto", sym, text)
	s.constants[text] = sym
	return sym
}

// NumConstants returns the number of distinct constants hoisted so far.
func (s *Session) NumConstants() int {
	return s.constantCounter
}
