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

	"github.com/ajroetker/go-tlang/snode"
)

func loopVariable(n *snode.Node) string {
	return n.Name + "_loop"
}

func cacheName(n *snode.Node) string {
	return n.Name + "_cache"
}

func indexName(n *snode.Node, i int) string {
	return fmt.Sprintf("index_%s_%d", n.Name, i)
}

// OpenLoops opens one loop per non-root level from the top of the tree down
// to node. The innermost flag travels upward only through forked levels, so
// at most one level, the first non-forked one, gets the batched form that
// advances by VectorWidth*Unroll and carries the batch counter b.
func (s *Session) OpenLoops(node *snode.Node, innermost bool) error {
	if err := s.alive(); err != nil {
		return err
	}
	if err := checkLoopNode(node); err != nil {
		return s.fail(err)
	}
	s.openLoops(node, innermost)
	return nil
}

// CloseLoops closes what OpenLoops(node, innermost) opened, innermost level
// first.
func (s *Session) CloseLoops(node *snode.Node, innermost bool) error {
	if err := s.alive(); err != nil {
		return err
	}
	if err := checkLoopNode(node); err != nil {
		return s.fail(err)
	}
	s.closeLoops(node, innermost)
	return nil
}

func checkLoopNode(node *snode.Node) error {
	if node == nil {
		return fmt.Errorf("%w: nil loop node", ErrMalformedTree)
	}
	if node.Type == snode.Place {
		return fmt.Errorf("%w: place node %s bears no loop", ErrMalformedTree, node.Name)
	}
	if node.IsRoot() {
		return fmt.Errorf("%w: loop over the root %s", ErrMalformedTree, node.Name)
	}
	return nil
}

func (s *Session) openLoops(node *snode.Node, innermost bool) {
	if node.IsRoot() {
		return
	}
	s.openLoops(node.Parent, innermost && node.IsForked())

	l := loopVariable(node)
	cond := fmt.Sprintf("%s < %s::n", l, node.Name)
	if innermost && !node.IsForked() {
		s.body.For(fmt.Sprintf("int %s = 0, b = 0", l), cond, "")
	} else {
		s.body.For(fmt.Sprintf("int %s = 0", l), cond, fmt.Sprintf("%s += 1", l))
	}
	s.body.Decl("auto", cacheName(node), fmt.Sprintf("access_%s(%s, %s)", node.Name, cacheName(node.Parent), l))

	for i := range snode.MaxNumIndices {
		e := node.Extractors[i]
		value := "0"
		if e.Active() {
			value = fmt.Sprintf("(((%s >> %d) & ((1 << %d) - 1)) << %d)", l, e.DestOffset, e.NumBits, e.Start)
		}
		if !node.Parent.IsRoot() {
			value = indexName(node.Parent, i) + " | " + value
		}
		s.body.Decl("int", indexName(node, i), value)
	}
}

func (s *Session) closeLoops(node *snode.Node, innermost bool) {
	if node.IsRoot() {
		return
	}
	if innermost && !node.IsForked() {
		s.body.Stmt("%s += %d; b += %d;", loopVariable(node), s.opts.VectorWidth*s.opts.Unroll, s.opts.Unroll)
	}
	s.body.EndFor()
	s.closeLoops(node.Parent, innermost && node.IsForked())
}

// hasBatchLevel reports whether opening at node produces a batched loop.
func hasBatchLevel(node *snode.Node) bool {
	for n := node; n != nil && !n.IsRoot(); n = n.Parent {
		if !n.IsForked() {
			return true
		}
	}
	return false
}
