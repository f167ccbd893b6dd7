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
	"github.com/ajroetker/go-tlang/snode"
)

// MaxAdapterSlots bounds adapter slot ids.
const MaxAdapterSlots = 1000

// AdapterDesc describes a SlowAdapter: NumInputs batches whose lanes form
// groups of InputGroupSize are regrouped into batches of OutputGroupSize.
type AdapterDesc struct {
	ElemType        snode.DataType
	NumInputs       int
	InputGroupSize  int
	OutputGroupSize int
}

// AdapterName returns the variable name of adapter slot.
func AdapterName(slot int) (string, error) {
	if slot < 0 || slot >= MaxAdapterSlots {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrAdapterSlotRange, slot, MaxAdapterSlots)
	}
	return fmt.Sprintf("adapter_%03d", slot), nil
}

// adapterType returns the C++ type of an adapter at the session's width.
func (s *Session) adapterType(d AdapterDesc) string {
	return cxx.Template("SlowAdapter", d.ElemType.String(), cxx.Itoa(s.opts.VectorWidth),
		cxx.Itoa(d.NumInputs), cxx.Itoa(d.InputGroupSize), cxx.Itoa(d.OutputGroupSize))
}

// DeclareAdapter instantiates an adapter in the loop body and returns its
// name. Expression nodes move data through it by slot.
func (s *Session) DeclareAdapter(dt snode.DataType, slot, numInputs, inputGroupSize, outputGroupSize int) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	name, err := AdapterName(slot)
	if err != nil {
		return "", s.fail(err)
	}
	if _, ok := s.adapters[slot]; ok {
		return "", s.fail(fmt.Errorf("%w: %s", ErrAdapterRedeclared, name))
	}
	if numInputs <= 0 {
		return "", s.fail(fmt.Errorf("%w: %s has %d inputs", ErrInvalidGraph, name, numInputs))
	}
	w := s.opts.VectorWidth
	for _, gs := range []int{inputGroupSize, outputGroupSize} {
		if gs <= 0 || w%gs != 0 {
			return "", s.fail(fmt.Errorf("%w: %s group size %d does not divide vector width %d", ErrGroupSizeMismatch, name, gs, w))
		}
	}
	d := AdapterDesc{
		ElemType:        dt,
		NumInputs:       numInputs,
		InputGroupSize:  inputGroupSize,
		OutputGroupSize: outputGroupSize,
	}
	s.body.Stmt("%s %s;", s.adapterType(d), name)
	s.adapters[slot] = d
	return name, nil
}

// Adapter returns the descriptor of a declared slot.
func (s *Session) Adapter(slot int) (AdapterDesc, bool) {
	d, ok := s.adapters[slot]
	return d, ok
}
