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

// Package snode describes the hierarchical storage layout of sparse tensors.
//
// A layout is a tree of nodes. The root is a forked node with no parent.
// Dense nodes are arrays iterated by a loop, forked nodes group their
// children into one structure, and place nodes are leaf data cells. Each node
// carries bit-field extractors that recover its contribution to every logical
// index dimension from its local loop counter.
//
// The tree is built once, then read by the code generator and by the layout
// header emitter. Nothing in this package mutates a tree after Materialize.
package snode

import "fmt"

// MaxNumIndices is the number of logical index dimensions every node tracks.
const MaxNumIndices = 4

// Type tags a layout node.
type Type int

const (
	// Root is the top of the tree. It behaves as a forked node that never
	// bears a loop.
	Root Type = iota

	// Dense is a fixed-size array of its children's structure.
	Dense

	// Forked groups its children side by side. It is structural and is
	// iterated only through a descendant's loop.
	Forked

	// Place is a leaf data cell. It never bears a loop.
	Place
)

// String returns the lower-case name of the node type.
func (t Type) String() string {
	switch t {
	case Root:
		return "root"
	case Dense:
		return "dense"
	case Forked:
		return "forked"
	case Place:
		return "place"
	default:
		return fmt.Sprintf("Type(%d)", t)
	}
}

// IsForked reports whether nodes of this type are structural branches.
// The root counts as forked.
func (t Type) IsForked() bool {
	return t == Root || t == Forked
}

// DataType is the element type stored in a place node or addressed in a
// flat buffer. The zero value is Float32.
type DataType int

const (
	Float32 DataType = iota
	Int32
	Float64
	Int64
)

// String returns the type name used in generated source ("float32", ...).
func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", d)
	}
}

// Size returns the element size in bytes.
func (d DataType) Size() int {
	switch d {
	case Float64, Int64:
		return 8
	default:
		return 4
	}
}

// IsFloat reports whether d is a floating point type.
func (d DataType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// ParseDataType maps a type name back to its DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32", "f32", "":
		return Float32, nil
	case "int32", "i32":
		return Int32, nil
	case "float64", "f64":
		return Float64, nil
	case "int64", "i64":
		return Int64, nil
	}
	return Float32, fmt.Errorf("unknown data type %q", s)
}

// Extractor recovers one index dimension's contribution from a node's local
// loop counter:
//
//	((counter >> DestOffset) & ((1 << NumBits) - 1)) << Start
type Extractor struct {
	NumBits    int
	Start      int
	DestOffset int
}

// Active reports whether the extractor contributes any bits.
func (e Extractor) Active() bool {
	return e.NumBits != 0
}

// Extract applies the extractor to a concrete counter value.
func (e Extractor) Extract(counter int) int {
	if e.NumBits == 0 {
		return 0
	}
	return ((counter >> e.DestOffset) & ((1 << e.NumBits) - 1)) << e.Start
}

// Node is one level of a layout tree.
type Node struct {
	// Name is the unique type name of the node. It is used verbatim as a C++
	// identifier in generated code.
	Name string

	Type Type

	// Parent is a non-owning back edge; nil for the root.
	Parent *Node

	Children []*Node

	// N is the static element count of the node.
	N int

	// DataType is the element type of a place node.
	DataType DataType

	Extractors [MaxNumIndices]Extractor

	axes []Axis
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// IsForked reports whether n is a structural branch (forked or root).
func (n *Node) IsForked() bool {
	return n.Type.IsForked()
}

// Depth returns the number of edges between n and the root.
func (n *Node) Depth() int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Path returns the nodes from the root down to n, inclusive.
func (n *Node) Path() []*Node {
	var path []*Node
	for p := n; p != nil; p = p.Parent {
		path = append(path, p)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// LoopAncestor returns the nearest node at or above n that is not a place
// node, or nil if there is none.
func (n *Node) LoopAncestor() *Node {
	p := n
	for p != nil && p.Type == Place {
		p = p.Parent
	}
	return p
}

// Walk visits n and its descendants in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the descendant of n (or n itself) with the given name.
func (n *Node) Find(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) {
		if found == nil && c.Name == name {
			found = c
		}
	})
	return found
}

// String returns a short description of the node.
func (n *Node) String() string {
	return fmt.Sprintf("%s(%s, n=%d)", n.Type, n.Name, n.N)
}

// Index reconstructs the logical index of dimension dim for the given chain
// of counters, one per node on the path from the root's child down to n.
// It mirrors the index expressions emitted by the loop nest generator.
func (n *Node) Index(dim int, counters map[*Node]int) int {
	idx := 0
	for _, p := range n.Path() {
		if p.IsRoot() {
			continue
		}
		idx |= p.Extractors[dim].Extract(counters[p])
	}
	return idx
}
