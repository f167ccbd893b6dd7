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

// Axis declares that a dense node spans 1<<Bits values of index dimension Dim.
type Axis struct {
	Dim  int
	Bits int
}

// NewRoot creates the root of a layout tree.
func NewRoot(name string) *Node {
	return &Node{Name: name, Type: Root, N: 1}
}

func (n *Node) add(c *Node) *Node {
	c.Parent = n
	n.Children = append(n.Children, c)
	return c
}

// Dense adds a dense child spanning the given axes and returns it. The
// element count is the product of the axis extents.
func (n *Node) Dense(name string, axes ...Axis) *Node {
	size := 1
	for _, a := range axes {
		size <<= a.Bits
	}
	return n.add(&Node{Name: name, Type: Dense, N: size, axes: axes})
}

// Forked adds a forked child and returns it.
func (n *Node) Forked(name string) *Node {
	return n.add(&Node{Name: name, Type: Forked, N: 1})
}

// Place adds a leaf data cell of the given type and returns it.
func (n *Node) Place(name string, dt DataType) *Node {
	return n.add(&Node{Name: name, Type: Place, N: 1, DataType: dt})
}

// Materialize validates the tree rooted at n and fills in every node's
// extractors. Within a node the first declared axis occupies the most
// significant counter bits; across levels an ancestor's bits sit above its
// descendants' bits.
func (n *Node) Materialize() error {
	if !n.IsRoot() {
		return fmt.Errorf("materialize %s: not a root", n.Name)
	}
	names := make(map[string]bool)
	var err error
	n.Walk(func(c *Node) {
		if err != nil {
			return
		}
		if c.Name == "" {
			err = fmt.Errorf("node under %v has no name", c.Parent)
			return
		}
		if names[c.Name] {
			err = fmt.Errorf("duplicate node name %q", c.Name)
			return
		}
		names[c.Name] = true
		if c.Type == Place && len(c.Children) > 0 {
			err = fmt.Errorf("place node %q has children", c.Name)
			return
		}
		err = c.assignDestOffsets()
	})
	if err != nil {
		return err
	}
	n.assignStarts()
	return nil
}

func (n *Node) assignDestOffsets() error {
	n.Extractors = [MaxNumIndices]Extractor{}
	offset := 0
	for i := len(n.axes) - 1; i >= 0; i-- {
		a := n.axes[i]
		if a.Dim < 0 || a.Dim >= MaxNumIndices {
			return fmt.Errorf("node %q: dimension %d out of range [0, %d)", n.Name, a.Dim, MaxNumIndices)
		}
		if n.Extractors[a.Dim].NumBits != 0 {
			return fmt.Errorf("node %q: dimension %d declared twice", n.Name, a.Dim)
		}
		n.Extractors[a.Dim] = Extractor{NumBits: a.Bits, DestOffset: offset}
		offset += a.Bits
	}
	return nil
}

// assignStarts sets each extractor's Start to the number of bits the node's
// descendants contribute to the same dimension, and returns the bits of the
// subtree rooted at n (n included) per dimension.
func (n *Node) assignStarts() [MaxNumIndices]int {
	var below [MaxNumIndices]int
	for _, c := range n.Children {
		sub := c.assignStarts()
		for d := range MaxNumIndices {
			below[d] = max(below[d], sub[d])
		}
	}
	for d := range MaxNumIndices {
		n.Extractors[d].Start = below[d]
		below[d] += n.Extractors[d].NumBits
	}
	return below
}
