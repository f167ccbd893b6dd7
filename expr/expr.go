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

// Package expr provides the expression graph a kernel is made of.
//
// A Kernel owns an ordered list of nodes. Nodes are appended through the
// Kernel's builder methods, so operands always precede their users and the
// list is already in topological order when the code generator walks it.
package expr

import (
	"fmt"

	"github.com/ajroetker/go-tlang/snode"
)

// Op identifies the operation a node performs.
type Op int

const (
	// OpLoad reads one vector batch from Addr.
	OpLoad Op = iota

	// OpStore writes Operands[0] to Addr.
	OpStore

	// OpConst broadcasts a scalar constant (IntVal or FloatVal).
	OpConst

	// OpConstList materializes one constant per lane from List.
	OpConstList

	// OpIndex yields the logical index of dimension Dim for every lane.
	OpIndex

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMin
	OpMax

	// OpCast converts Operands[0] to Type.
	OpCast

	// OpAdapterStore feeds Operands[0] into input Lane of adapter Adapter.
	OpAdapterStore

	// OpAdapterLoad reads output Lane of adapter Adapter.
	OpAdapterLoad
)

var opNames = map[Op]string{
	OpLoad:         "load",
	OpStore:        "store",
	OpConst:        "const",
	OpConstList:    "const_list",
	OpIndex:        "index",
	OpAdd:          "add",
	OpSub:          "sub",
	OpMul:          "mul",
	OpDiv:          "div",
	OpMin:          "min",
	OpMax:          "max",
	OpCast:         "cast",
	OpAdapterStore: "adapter_store",
	OpAdapterLoad:  "adapter_load",
}

// String returns the op's name as used in kernel description files.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp maps a name produced by Op.String back to its Op.
func ParseOp(s string) (Op, error) {
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// IsBinary reports whether o is a two-operand arithmetic op.
func (o Op) IsBinary() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax:
		return true
	}
	return false
}

// HasValue reports whether nodes with this op produce a value.
func (o Op) HasValue() bool {
	return o != OpStore && o != OpAdapterStore
}

// Node is one operation of a kernel's expression graph.
type Node struct {
	ID       int
	Op       Op
	Type     snode.DataType
	Operands []*Node

	// Addr is the memory operand of loads and stores.
	Addr snode.Address

	IntVal   int64
	FloatVal float64
	List     []int64

	// Dim is the index dimension read by OpIndex.
	Dim int

	// Adapter is the adapter slot of adapter loads and stores, Lane the input
	// or output position within it.
	Adapter int
	Lane    int

	// GroupSize is the batch granularity of the value. Zero means the
	// session's group size.
	GroupSize int
}

func (n *Node) String() string {
	return fmt.Sprintf("%%%d = %s.%s", n.ID, n.Op, n.Type)
}

// AdapterDecl declares an adapter slot used by a kernel.
type AdapterDecl struct {
	Slot            int
	ElemType        snode.DataType
	NumInputs       int
	InputGroupSize  int
	OutputGroupSize int
}

// Kernel is a named expression graph bound to the layout node it iterates.
type Kernel struct {
	Name string

	// Entry is the nominal layout node the kernel produces data for. It is
	// usually a place node; code generation starts at its nearest
	// loop-bearing ancestor.
	Entry *snode.Node

	Nodes    []*Node
	Adapters []AdapterDecl
}

// NewKernel creates an empty kernel.
func NewKernel(name string, entry *snode.Node) *Kernel {
	return &Kernel{Name: name, Entry: entry}
}

func (k *Kernel) add(n *Node) *Node {
	n.ID = len(k.Nodes)
	k.Nodes = append(k.Nodes, n)
	return n
}

// Load reads a vector batch from addr.
func (k *Kernel) Load(addr snode.Address) *Node {
	return k.add(&Node{Op: OpLoad, Type: addr.ElemType, Addr: addr})
}

// Store writes v to addr.
func (k *Kernel) Store(addr snode.Address, v *Node) *Node {
	return k.add(&Node{Op: OpStore, Type: addr.ElemType, Addr: addr, Operands: []*Node{v}})
}

// ConstInt broadcasts an integer constant.
func (k *Kernel) ConstInt(dt snode.DataType, v int64) *Node {
	return k.add(&Node{Op: OpConst, Type: dt, IntVal: v, FloatVal: float64(v)})
}

// ConstFloat broadcasts a floating point constant.
func (k *Kernel) ConstFloat(dt snode.DataType, v float64) *Node {
	return k.add(&Node{Op: OpConst, Type: dt, FloatVal: v, IntVal: int64(v)})
}

// ConstList materializes one constant per lane.
func (k *Kernel) ConstList(dt snode.DataType, vals ...int64) *Node {
	return k.add(&Node{Op: OpConstList, Type: dt, List: vals})
}

// Index yields the logical index of dimension dim for every lane.
func (k *Kernel) Index(dim int) *Node {
	return k.add(&Node{Op: OpIndex, Type: snode.Int32, Dim: dim})
}

// Binary applies an arithmetic op to a and b. The result has a's type.
func (k *Kernel) Binary(op Op, a, b *Node) *Node {
	return k.add(&Node{Op: op, Type: a.Type, Operands: []*Node{a, b}, GroupSize: a.GroupSize})
}

func (k *Kernel) Add(a, b *Node) *Node { return k.Binary(OpAdd, a, b) }
func (k *Kernel) Sub(a, b *Node) *Node { return k.Binary(OpSub, a, b) }
func (k *Kernel) Mul(a, b *Node) *Node { return k.Binary(OpMul, a, b) }
func (k *Kernel) Div(a, b *Node) *Node { return k.Binary(OpDiv, a, b) }
func (k *Kernel) Min(a, b *Node) *Node { return k.Binary(OpMin, a, b) }
func (k *Kernel) Max(a, b *Node) *Node { return k.Binary(OpMax, a, b) }

// Cast converts v to dt.
func (k *Kernel) Cast(v *Node, dt snode.DataType) *Node {
	return k.add(&Node{Op: OpCast, Type: dt, Operands: []*Node{v}, GroupSize: v.GroupSize})
}

// DeclareAdapter registers an adapter slot. The code generator declares it
// at the top of the loop body.
func (k *Kernel) DeclareAdapter(d AdapterDecl) {
	k.Adapters = append(k.Adapters, d)
}

// AdapterStore feeds v into input lane of adapter slot.
func (k *Kernel) AdapterStore(slot, lane int, v *Node) *Node {
	return k.add(&Node{Op: OpAdapterStore, Type: v.Type, Operands: []*Node{v}, Adapter: slot, Lane: lane, GroupSize: v.GroupSize})
}

// AdapterLoad reads output lane of adapter slot as a value of the given
// group size.
func (k *Kernel) AdapterLoad(slot, lane int, dt snode.DataType, groupSize int) *Node {
	return k.add(&Node{Op: OpAdapterLoad, Type: dt, Adapter: slot, Lane: lane, GroupSize: groupSize})
}

// WithGroupSize overrides the group size of n and returns it.
func (n *Node) WithGroupSize(gs int) *Node {
	n.GroupSize = gs
	return n
}

// Validate checks that every operand precedes its user and that node IDs
// match their positions.
func (k *Kernel) Validate() error {
	if k.Name == "" {
		return fmt.Errorf("kernel has no name")
	}
	if k.Entry == nil {
		return fmt.Errorf("kernel %s has no entry node", k.Name)
	}
	for i, n := range k.Nodes {
		if n.ID != i {
			return fmt.Errorf("kernel %s: node at %d has id %d", k.Name, i, n.ID)
		}
		want := 0
		switch {
		case n.Op.IsBinary():
			want = 2
		case n.Op == OpStore, n.Op == OpCast, n.Op == OpAdapterStore:
			want = 1
		}
		if len(n.Operands) != want {
			return fmt.Errorf("kernel %s: %v has %d operands, want %d", k.Name, n, len(n.Operands), want)
		}
		for _, o := range n.Operands {
			if o.ID >= n.ID || k.Nodes[o.ID] != o {
				return fmt.Errorf("kernel %s: %v uses %v out of order", k.Name, n, o)
			}
			if !o.Op.HasValue() {
				return fmt.Errorf("kernel %s: %v uses %v which has no value", k.Name, n, o)
			}
		}
	}
	return nil
}
