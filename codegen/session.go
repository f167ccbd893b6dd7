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

// Package codegen lowers a kernel's expression graph, addressed against a
// layout tree, into a C++ translation unit and builds it into a callable
// kernel.
//
// One Session generates one kernel. The calls are strictly ordered:
//
//	s, err := codegen.NewSession(kernel, codegen.WithVectorWidth(8))
//	err = s.GenerateHeader()       // preamble, loop nest
//	err = s.Lower(node)            // once per graph node, in order
//	src, err := s.GenerateTail()   // close the nest
//	k, err := s.Compile(ctx)       // write, build, load
//
// Generate runs the first three steps and Build all four. A session is not
// safe for concurrent use, but sessions share nothing and may run in
// parallel as long as their kernels have distinct names; BuildAll does that.
//
// Any error aborts the session: later calls fail with ErrSessionState.
package codegen

import (
	"fmt"
	"regexp"

	"github.com/ajroetker/go-tlang/codegen/cxx"
	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/snode"
)

type stage int

const (
	stageNew stage = iota
	stageBody
	stageTail
	stageBuilt
)

func (st stage) String() string {
	switch st {
	case stageNew:
		return "new"
	case stageBody:
		return "body"
	case stageTail:
		return "tail"
	case stageBuilt:
		return "built"
	default:
		return fmt.Sprintf("stage(%d)", int(st))
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Session is one code generation run for one kernel.
type Session struct {
	opts   Options
	kernel *expr.Kernel
	root   *snode.Node

	// current is the loop-bearing node the nest was opened at.
	current *snode.Node

	lowering lowering

	preamble cxx.Block
	consts   cxx.Block
	body     cxx.Block

	constants       map[string]string
	constantCounter int

	adapters map[int]AdapterDesc

	// values holds, per node ID, the expression naming the node's value in
	// each unrolled copy; groups the node's group size.
	values  map[int][]string
	groups  map[int]int
	lowered map[int]bool

	layoutFile string
	ownLayout  bool

	stage stage
	err   error
}

// NewSession validates k and the options and selects the lowering strategy.
func NewSession(k *expr.Kernel, opts ...Option) (*Session, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, fmt.Errorf("%w: nil kernel", ErrInvalidGraph)
	}
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}
	if !identifier.MatchString(k.Name) {
		return nil, fmt.Errorf("%w: kernel name %q is not a C identifier", ErrInvalidGraph, k.Name)
	}
	lw, err := newLowering(o)
	if err != nil {
		return nil, err
	}
	root := k.Entry
	for root.Parent != nil {
		root = root.Parent
	}
	s := &Session{
		opts:       o,
		kernel:     k,
		root:       root,
		lowering:   lw,
		constants:  make(map[string]string),
		adapters:   make(map[int]AdapterDesc),
		values:     make(map[int][]string),
		groups:     make(map[int]int),
		lowered:    make(map[int]bool),
		layoutFile: o.LayoutFile,
	}
	if s.layoutFile == "" {
		s.layoutFile = k.Name + "_layout.h"
		s.ownLayout = true
	}
	return s, nil
}

// Options returns the session's effective options.
func (s *Session) Options() Options {
	return s.opts
}

// Kernel returns the kernel being generated.
func (s *Session) Kernel() *expr.Kernel {
	return s.kernel
}

// Entry returns the loop-bearing node the loop nest was opened at, or nil
// before GenerateHeader.
func (s *Session) Entry() *snode.Node {
	return s.current
}

// Err returns the error that aborted the session, if any.
func (s *Session) Err() error {
	return s.err
}

// Preamble returns the statements emitted above the loop nest, hoisted
// constants included.
func (s *Session) Preamble() *cxx.Block {
	var b cxx.Block
	b.Append(&s.preamble)
	b.Append(&s.consts)
	return &b
}

// Body returns the loop nest statements. The block must not be modified.
func (s *Session) Body() *cxx.Block {
	return &s.body
}

// fail records err as the session's abort cause and returns it.
func (s *Session) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

// alive returns the abort error of a failed session.
func (s *Session) alive() error {
	if s.err != nil {
		return fmt.Errorf("%w: aborted: %w", ErrSessionState, s.err)
	}
	return nil
}

// expect checks that the session has not failed and is at stage want.
func (s *Session) expect(op string, want stage) error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.stage != want {
		return s.fail(fmt.Errorf("%w: %s in stage %s, want %s", ErrSessionState, op, s.stage, want))
	}
	return nil
}

func (s *Session) logf(format string, args ...any) {
	if s.opts.Log != nil {
		fmt.Fprintf(s.opts.Log, format+"\n", args...)
	}
}
