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
	"strconv"

	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/snode"
)

// Lower appends the statements computing n to the loop body. Nodes must be
// lowered in graph order. Every node is issued Unroll times; copy u reads
// batch b + u and is named vID_u.
func (s *Session) Lower(n *expr.Node) error {
	if err := s.expect("lower", stageBody); err != nil {
		return err
	}
	if n == nil {
		return s.fail(fmt.Errorf("%w: nil node", ErrInvalidGraph))
	}
	if err := s.lower(n); err != nil {
		return s.fail(fmt.Errorf("lower %v: %w", n, err))
	}
	return nil
}

func valueName(n *expr.Node, u int) string {
	return fmt.Sprintf("v%d_%d", n.ID, u)
}

func tmpName(n *expr.Node, u int) string {
	return fmt.Sprintf("tmp%d_%d", n.ID, u)
}

// groupSize returns the group size n declares, or the session default.
func (s *Session) groupSize(n *expr.Node) int {
	if n.GroupSize != 0 {
		return n.GroupSize
	}
	return s.opts.GroupSize
}

// operand returns the per-copy values of o, which must be lowered already.
func (s *Session) operand(o *expr.Node) ([]string, int, error) {
	vals, ok := s.values[o.ID]
	if !ok {
		return nil, 0, fmt.Errorf("%w: operand %v not lowered yet", ErrInvalidGraph, o)
	}
	return vals, s.groups[o.ID], nil
}

func (s *Session) define(n *expr.Node, vals []string, gs int) {
	s.values[n.ID] = vals
	s.groups[n.ID] = gs
}

// emitEach declares vID_u = init(u) for every copy u and defines n.
func (s *Session) emitEach(n *expr.Node, gs int, init func(u int) (string, error)) error {
	t, err := s.lowering.vecType(n.Type)
	if err != nil {
		return err
	}
	vals := make([]string, s.opts.Unroll)
	for u := range s.opts.Unroll {
		v, err := init(u)
		if err != nil {
			return err
		}
		vals[u] = valueName(n, u)
		s.body.Decl(t, vals[u], v)
	}
	s.define(n, vals, gs)
	return nil
}

// broadcast defines every copy of n as the same hoisted constant.
func (s *Session) broadcast(n *expr.Node, text string) {
	sym := s.Constant(text)
	vals := make([]string, s.opts.Unroll)
	for u := range vals {
		vals[u] = sym
	}
	s.define(n, vals, s.groupSize(n))
}

func (s *Session) lower(n *expr.Node) error {
	if n.ID < 0 || n.ID >= len(s.kernel.Nodes) || s.kernel.Nodes[n.ID] != n {
		return fmt.Errorf("%w: node is not part of kernel %s", ErrInvalidGraph, s.kernel.Name)
	}
	if s.lowered[n.ID] {
		return fmt.Errorf("%w: node lowered twice", ErrInvalidGraph)
	}
	s.lowered[n.ID] = true
	switch n.Op {
	case expr.OpLoad:
		return s.lowerLoad(n)
	case expr.OpStore:
		return s.lowerStore(n)
	case expr.OpConst:
		text, err := s.lowering.splat(n.Type, scalarLiteral(n.Type, n.IntVal, n.FloatVal))
		if err != nil {
			return err
		}
		s.broadcast(n, text)
		return nil
	case expr.OpConstList:
		if len(n.List) != s.opts.VectorWidth {
			return fmt.Errorf("%w: %d constants for vector width %d", ErrInvalidGraph, len(n.List), s.opts.VectorWidth)
		}
		lanes := make([]string, len(n.List))
		for i, v := range n.List {
			lanes[i] = scalarLiteral(n.Type, v, float64(v))
		}
		text, err := s.lowering.list(n.Type, lanes)
		if err != nil {
			return err
		}
		s.broadcast(n, text)
		return nil
	case expr.OpIndex:
		return s.lowerIndex(n)
	case expr.OpCast:
		return s.lowerCast(n)
	case expr.OpAdapterStore:
		return s.lowerAdapterStore(n)
	case expr.OpAdapterLoad:
		return s.lowerAdapterLoad(n)
	}
	if n.Op.IsBinary() {
		return s.lowerBinary(n)
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedOp, n.Op)
}

func (s *Session) lowerLoad(n *expr.Node) error {
	return s.emitEach(n, s.groupSize(n), func(u int) (string, error) {
		if s.opts.Prefetch > 0 {
			ahead, err := s.VectorizedAddress(n.Addr, strconv.Itoa(u), s.opts.Prefetch*s.opts.VectorWidth)
			if err != nil {
				return "", err
			}
			s.body.Stmt("__builtin_prefetch(%s);", ahead)
		}
		addr, err := s.VectorizedAddress(n.Addr, strconv.Itoa(u), 0)
		if err != nil {
			return "", err
		}
		return s.lowering.load(n.Addr.ElemType, addr)
	})
}

func (s *Session) lowerStore(n *expr.Node) error {
	vals, gs, err := s.operand(n.Operands[0])
	if err != nil {
		return err
	}
	if t := n.Operands[0].Type; t != n.Addr.ElemType {
		return fmt.Errorf("%w: storing %s to a %s buffer", ErrInvalidGraph, t, n.Addr.ElemType)
	}
	if gs != s.opts.GroupSize {
		return fmt.Errorf("%w: storing group size %d, memory holds %d", ErrGroupSizeMismatch, gs, s.opts.GroupSize)
	}
	for u := range s.opts.Unroll {
		addr, err := s.VectorizedAddress(n.Addr, strconv.Itoa(u), 0)
		if err != nil {
			return err
		}
		st, err := s.lowering.store(n.Addr.ElemType, addr, vals[u])
		if err != nil {
			return err
		}
		s.body.Text(st)
	}
	return nil
}

// laneStep reports whether lanes of a batch differ in dimension dim: the
// entry level iterates it with its least significant counter bits, which
// the batched loop advances lane by lane.
func (s *Session) laneStep(dim int) bool {
	e := s.current.Extractors[dim]
	return !s.current.IsForked() && e.Active() && e.DestOffset == 0 && e.Start == 0
}

func (s *Session) lowerIndex(n *expr.Node) error {
	if n.Dim < 0 || n.Dim >= snode.MaxNumIndices {
		return fmt.Errorf("%w: index dimension %d", ErrInvalidGraph, n.Dim)
	}
	if n.Type != snode.Int32 {
		return fmt.Errorf("%w: index of type %s", ErrInvalidGraph, n.Type)
	}
	base := indexName(s.current, n.Dim)
	if !s.laneStep(n.Dim) {
		return s.emitEach(n, s.groupSize(n), func(int) (string, error) {
			return s.lowering.splat(snode.Int32, base)
		})
	}
	lanes := make([]string, s.opts.VectorWidth)
	for i := range lanes {
		lanes[i] = strconv.Itoa(i)
	}
	text, err := s.lowering.list(snode.Int32, lanes)
	if err != nil {
		return err
	}
	iota := s.Constant(text)
	return s.emitEach(n, s.groupSize(n), func(u int) (string, error) {
		start := base
		if u > 0 {
			start = fmt.Sprintf("%s + %d", base, u*s.opts.VectorWidth)
		}
		splat, err := s.lowering.splat(snode.Int32, start)
		if err != nil {
			return "", err
		}
		return s.lowering.binary(expr.OpAdd, snode.Int32, splat, iota)
	})
}

func (s *Session) lowerBinary(n *expr.Node) error {
	a, b := n.Operands[0], n.Operands[1]
	va, ga, err := s.operand(a)
	if err != nil {
		return err
	}
	vb, gb, err := s.operand(b)
	if err != nil {
		return err
	}
	if a.Type != b.Type || n.Type != a.Type {
		return fmt.Errorf("%w: %v of %s and %s", ErrInvalidGraph, n.Op, a.Type, b.Type)
	}
	if ga != gb {
		return fmt.Errorf("%w: %v of group sizes %d and %d", ErrGroupSizeMismatch, n.Op, ga, gb)
	}
	return s.emitEach(n, ga, func(u int) (string, error) {
		return s.lowering.binary(n.Op, n.Type, va[u], vb[u])
	})
}

func (s *Session) lowerCast(n *expr.Node) error {
	src := n.Operands[0]
	vals, gs, err := s.operand(src)
	if err != nil {
		return err
	}
	if src.Type == n.Type {
		s.define(n, vals, gs)
		return nil
	}
	return s.emitEach(n, gs, func(u int) (string, error) {
		return s.lowering.convert(src.Type, n.Type, vals[u])
	})
}

// adapterFor resolves the adapter a node uses and checks the lane.
func (s *Session) adapterFor(n *expr.Node) (string, AdapterDesc, error) {
	name, err := AdapterName(n.Adapter)
	if err != nil {
		return "", AdapterDesc{}, err
	}
	d, ok := s.adapters[n.Adapter]
	if !ok {
		return "", AdapterDesc{}, fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
	}
	// One adapter instance holds one batch of inputs; unrolled copies
	// would overwrite each other's lanes.
	if s.opts.Unroll != 1 {
		return "", AdapterDesc{}, fmt.Errorf("%w: %s with unroll %d", ErrUnsupportedOp, name, s.opts.Unroll)
	}
	if n.Lane < 0 || n.Lane >= d.NumInputs {
		return "", AdapterDesc{}, fmt.Errorf("%w: %s lane %d outside [0, %d)", ErrInvalidGraph, name, n.Lane, d.NumInputs)
	}
	if n.Type != d.ElemType {
		return "", AdapterDesc{}, fmt.Errorf("%w: %s value of %s through a %s adapter", ErrInvalidGraph, name, n.Type, d.ElemType)
	}
	return name, d, nil
}

func (s *Session) lowerAdapterStore(n *expr.Node) error {
	name, d, err := s.adapterFor(n)
	if err != nil {
		return err
	}
	vals, gs, err := s.operand(n.Operands[0])
	if err != nil {
		return err
	}
	if gs != d.InputGroupSize {
		return fmt.Errorf("%w: %s takes group size %d, got %d", ErrGroupSizeMismatch, name, d.InputGroupSize, gs)
	}
	stmts, err := s.lowering.adapterSet(name, n.Lane, n.Type, vals[0], tmpName(n, 0))
	if err != nil {
		return err
	}
	for _, st := range stmts {
		s.body.Text(st)
	}
	return nil
}

func (s *Session) lowerAdapterLoad(n *expr.Node) error {
	name, d, err := s.adapterFor(n)
	if err != nil {
		return err
	}
	gs := n.GroupSize
	if gs == 0 {
		gs = d.OutputGroupSize
	}
	if gs != d.OutputGroupSize {
		return fmt.Errorf("%w: %s yields group size %d, node wants %d", ErrGroupSizeMismatch, name, d.OutputGroupSize, gs)
	}
	dst := valueName(n, 0)
	stmts, err := s.lowering.adapterGet(name, n.Lane, n.Type, dst, tmpName(n, 0))
	if err != nil {
		return err
	}
	for _, st := range stmts {
		s.body.Text(st)
	}
	s.define(n, []string{dst}, gs)
	return nil
}
