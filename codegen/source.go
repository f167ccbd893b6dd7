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

	"github.com/ajroetker/go-tlang/codegen/cxx"
	"github.com/ajroetker/go-tlang/expr"
)

// GenerateHeader emits the preamble (includes, the exported signature, the
// root cache pointer and n), then opens the loop nest at the nearest
// ancestor of the kernel's entry node that is not a place, and declares the
// kernel's adapters at the top of the loop body.
func (s *Session) GenerateHeader() error {
	if err := s.expect("generate header", stageNew); err != nil {
		return err
	}
	entry := s.kernel.Entry.LoopAncestor()
	if entry == nil {
		return s.fail(fmt.Errorf("%w: %s has no loop-bearing ancestor", ErrMalformedTree, s.kernel.Entry.Name))
	}
	if entry.IsRoot() {
		return s.fail(fmt.Errorf("%w: %s would loop over the root", ErrMalformedTree, s.kernel.Entry.Name))
	}
	s.current = entry

	s.preamble.Directive("#include <common.h>")
	for _, d := range s.lowering.prelude() {
		s.preamble.Directive("%s", d)
	}
	s.preamble.Directive("#define TLANG_KERNEL")
	s.preamble.Directive("#include %q", s.layoutFile)
	s.preamble.Stmt("using namespace taichi; using namespace Tlang;")
	s.preamble.Func(fmt.Sprintf("extern \"C\" void %s(Context context)", s.kernel.Name))
	s.preamble.Decl("auto", cacheName(s.root), fmt.Sprintf("(%s *)context.buffers[0]", s.root.Name))
	s.preamble.Decl("const int", "n", "context.get_range()")
	if !hasBatchLevel(entry) {
		// Addresses are relative to the batch counter even when no level
		// advances one.
		s.preamble.Decl("const int", "b", "0")
	}

	s.openLoops(entry, true)
	s.stage = stageBody
	for _, a := range s.kernel.Adapters {
		if _, err := s.DeclareAdapter(a.ElemType, a.Slot, a.NumInputs, a.InputGroupSize, a.OutputGroupSize); err != nil {
			return err
		}
	}
	s.logf("%s: %s lowering, width %d, group size %d, unroll %d, loops opened at %s",
		s.kernel.Name, s.lowering.mode(), s.opts.VectorWidth, s.opts.GroupSize, s.opts.Unroll, entry.Name)
	return nil
}

// GenerateTail closes the loop nest and the function and returns the
// complete source.
func (s *Session) GenerateTail() (string, error) {
	if err := s.expect("generate tail", stageBody); err != nil {
		return "", err
	}
	s.closeLoops(s.current, true)
	s.body.EndFunc()
	if d := s.body.Depth(); d != -1 {
		return "", s.fail(fmt.Errorf("%w: unbalanced loop nest (depth %d)", ErrMalformedTree, d+1))
	}
	s.stage = stageTail
	s.logf("%s: %d statements, %d constants", s.kernel.Name, s.body.Len(), s.constantCounter)
	return s.Source()
}

// Source returns the preamble followed by the loop body. It is available
// once GenerateTail has run.
func (s *Session) Source() (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	if s.stage < stageTail {
		return "", fmt.Errorf("%w: source requested in stage %s", ErrSessionState, s.stage)
	}
	var all cxx.Block
	all.Append(&s.preamble)
	all.Append(&s.consts)
	all.Append(&s.body)
	return all.Render(), nil
}

// Generate runs a whole session up to the source text: header, every node
// of k in order, tail.
func Generate(k *expr.Kernel, opts ...Option) (*Session, error) {
	s, err := NewSession(k, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.GenerateHeader(); err != nil {
		return s, err
	}
	for _, n := range k.Nodes {
		if err := s.Lower(n); err != nil {
			return s, err
		}
	}
	if _, err := s.GenerateTail(); err != nil {
		return s, err
	}
	return s, nil
}
