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

// Package kernelfile decodes YAML kernel descriptions.
//
// A file holds one layout tree and any number of kernels over it:
//
//	layout:
//	  name: root
//	  children:
//	    - name: a
//	      kind: dense
//	      axes: [{dim: 0, bits: 2}]
//	      children:
//	        - {name: x, kind: place, type: float32}
//	kernels:
//	  - name: identity
//	    entry: x
//	    nodes:
//	      - {name: i, op: index, dim: 0}
//	      - {name: f, op: cast, type: float32, args: [i]}
//	      - {op: store, addr: {buffer: 0, i: 1}, args: [f]}
//
// Nodes are listed in evaluation order and refer to earlier nodes by name.
package kernelfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-tlang/codegen"
	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/internal/cpuinfo"
	"github.com/ajroetker/go-tlang/snode"
)

// File is the decoded document.
type File struct {
	Layout  Layout   `yaml:"layout"`
	Kernels []Kernel `yaml:"kernels"`
	Options Options  `yaml:"options,omitempty"`
}

// Layout is one node of the layout tree. The top level node is the root and
// takes no kind.
type Layout struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind,omitempty"`
	Axes     []Axis   `yaml:"axes,omitempty"`
	Type     string   `yaml:"type,omitempty"`
	Children []Layout `yaml:"children,omitempty"`
}

type Axis struct {
	Dim  int `yaml:"dim"`
	Bits int `yaml:"bits"`
}

type Kernel struct {
	Name     string    `yaml:"name"`
	Entry    string    `yaml:"entry"`
	Adapters []Adapter `yaml:"adapters,omitempty"`
	Nodes    []Node    `yaml:"nodes"`
}

type Adapter struct {
	Slot            int    `yaml:"slot"`
	Type            string `yaml:"type"`
	Inputs          int    `yaml:"inputs"`
	InputGroupSize  int    `yaml:"input_group_size"`
	OutputGroupSize int    `yaml:"output_group_size"`
}

// Node is one expression. Name is only needed when a later node uses it.
type Node struct {
	Name string   `yaml:"name,omitempty"`
	Op   string   `yaml:"op"`
	Type string   `yaml:"type,omitempty"`
	Args []string `yaml:"args,omitempty"`

	Addr *Address `yaml:"addr,omitempty"`

	Int   *int64   `yaml:"int,omitempty"`
	Float *float64 `yaml:"float,omitempty"`
	List  []int64  `yaml:"list,omitempty"`

	Dim       int `yaml:"dim,omitempty"`
	Adapter   int `yaml:"adapter,omitempty"`
	Lane      int `yaml:"lane,omitempty"`
	GroupSize int `yaml:"group_size,omitempty"`
}

// Address mirrors snode.Address. A missing buffer leaves the address
// unassigned.
type Address struct {
	Buffer         *int   `yaml:"buffer,omitempty"`
	I              int    `yaml:"i,omitempty"`
	AOSOAGroupSize int    `yaml:"aosoa_group_size,omitempty"`
	AOSOAStride    int    `yaml:"aosoa_stride,omitempty"`
	Const          int    `yaml:"const,omitempty"`
	IMax           int    `yaml:"imax,omitempty"`
	Type           string `yaml:"type,omitempty"`
}

// Options are code generation defaults carried by the file. Zero values
// leave the codegen defaults alone.
type Options struct {
	VectorWidth int    `yaml:"vector_width,omitempty"`
	GroupSize   int    `yaml:"group_size,omitempty"`
	Unroll      int    `yaml:"unroll,omitempty"`
	Prefetch    int    `yaml:"prefetch,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
	Target      string `yaml:"target,omitempty"`
}

// Decode reads one document from r. Unknown fields are errors.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty kernel file")
		}
		return nil, err
	}
	return &f, nil
}

// Parse decodes data.
func Parse(data []byte) (*File, error) {
	return Decode(bytes.NewReader(data))
}

// Load reads and decodes the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Build materializes the layout tree and builds every kernel against it.
func (f *File) Build() (*snode.Node, []*expr.Kernel, error) {
	if f.Layout.Kind != "" && f.Layout.Kind != "root" {
		return nil, nil, fmt.Errorf("layout %s: top level node must be the root, not %s", f.Layout.Name, f.Layout.Kind)
	}
	root := snode.NewRoot(f.Layout.Name)
	for _, c := range f.Layout.Children {
		if err := addLayout(root, c); err != nil {
			return nil, nil, err
		}
	}
	if err := root.Materialize(); err != nil {
		return nil, nil, fmt.Errorf("layout: %w", err)
	}

	kernels := make([]*expr.Kernel, 0, len(f.Kernels))
	for _, ks := range f.Kernels {
		k, err := ks.build(root)
		if err != nil {
			return nil, nil, fmt.Errorf("kernel %s: %w", ks.Name, err)
		}
		kernels = append(kernels, k)
	}
	return root, kernels, nil
}

func addLayout(parent *snode.Node, l Layout) error {
	var n *snode.Node
	switch l.Kind {
	case "dense":
		axes := make([]snode.Axis, len(l.Axes))
		for i, a := range l.Axes {
			axes[i] = snode.Axis{Dim: a.Dim, Bits: a.Bits}
		}
		n = parent.Dense(l.Name, axes...)
	case "forked":
		n = parent.Forked(l.Name)
	case "place":
		dt, err := snode.ParseDataType(l.Type)
		if err != nil {
			return fmt.Errorf("layout %s: %w", l.Name, err)
		}
		n = parent.Place(l.Name, dt)
	default:
		return fmt.Errorf("layout %s: unknown kind %q", l.Name, l.Kind)
	}
	for _, c := range l.Children {
		if err := addLayout(n, c); err != nil {
			return err
		}
	}
	return nil
}

// dataType parses s, defaulting to float32 when empty.
func dataType(s string) (snode.DataType, error) {
	if s == "" {
		return snode.Float32, nil
	}
	return snode.ParseDataType(s)
}

func (a *Address) address() (snode.Address, error) {
	if a == nil {
		return snode.Address{}, fmt.Errorf("missing addr")
	}
	dt, err := dataType(a.Type)
	if err != nil {
		return snode.Address{}, err
	}
	addr := snode.NewAddress()
	if a.Buffer != nil {
		addr.BufferID = *a.Buffer
	}
	addr.CoeffI = a.I
	addr.CoeffAOSOAGroupSize = a.AOSOAGroupSize
	addr.CoeffAOSOAStride = a.AOSOAStride
	addr.CoeffConst = a.Const
	addr.CoeffIMax = a.IMax
	addr.ElemType = dt
	return addr, nil
}

func (ks Kernel) build(root *snode.Node) (*expr.Kernel, error) {
	entry := root.Find(ks.Entry)
	if entry == nil {
		return nil, fmt.Errorf("entry %q is not in the layout", ks.Entry)
	}
	k := expr.NewKernel(ks.Name, entry)
	for _, a := range ks.Adapters {
		dt, err := dataType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("adapter %d: %w", a.Slot, err)
		}
		k.DeclareAdapter(expr.AdapterDecl{
			Slot:            a.Slot,
			ElemType:        dt,
			NumInputs:       a.Inputs,
			InputGroupSize:  a.InputGroupSize,
			OutputGroupSize: a.OutputGroupSize,
		})
	}

	named := make(map[string]*expr.Node)
	for i, ns := range ks.Nodes {
		n, err := ns.build(k, named)
		if err != nil {
			label := ns.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("node %s (%s): %w", label, ns.Op, err)
		}
		if ns.Name == "" {
			continue
		}
		if _, dup := named[ns.Name]; dup {
			return nil, fmt.Errorf("node %s defined twice", ns.Name)
		}
		named[ns.Name] = n
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (ns Node) build(k *expr.Kernel, named map[string]*expr.Node) (*expr.Node, error) {
	op, err := expr.ParseOp(ns.Op)
	if err != nil {
		return nil, err
	}
	want := 0
	switch {
	case op.IsBinary():
		want = 2
	case op == expr.OpStore, op == expr.OpCast, op == expr.OpAdapterStore:
		want = 1
	}
	if len(ns.Args) != want {
		return nil, fmt.Errorf("takes %d args, got %d", want, len(ns.Args))
	}
	args := make([]*expr.Node, len(ns.Args))
	for i, name := range ns.Args {
		a, ok := named[name]
		if !ok {
			return nil, fmt.Errorf("undefined arg %q", name)
		}
		args[i] = a
	}
	dt, err := dataType(ns.Type)
	if err != nil {
		return nil, err
	}

	var n *expr.Node
	switch op {
	case expr.OpLoad, expr.OpStore:
		addr, err := ns.Addr.address()
		if err != nil {
			return nil, err
		}
		if op == expr.OpLoad {
			n = k.Load(addr)
		} else {
			n = k.Store(addr, args[0])
		}
	case expr.OpConst:
		switch {
		case ns.Float != nil:
			n = k.ConstFloat(dt, *ns.Float)
		case ns.Int != nil:
			n = k.ConstInt(dt, *ns.Int)
		default:
			return nil, fmt.Errorf("const needs int or float")
		}
	case expr.OpConstList:
		n = k.ConstList(dt, ns.List...)
	case expr.OpIndex:
		n = k.Index(ns.Dim)
	case expr.OpCast:
		if ns.Type == "" {
			return nil, fmt.Errorf("cast needs a type")
		}
		n = k.Cast(args[0], dt)
	case expr.OpAdapterStore:
		n = k.AdapterStore(ns.Adapter, ns.Lane, args[0])
	case expr.OpAdapterLoad:
		return k.AdapterLoad(ns.Adapter, ns.Lane, dt, ns.GroupSize), nil
	default:
		n = k.Binary(op, args[0], args[1])
	}
	if ns.GroupSize != 0 {
		n.WithGroupSize(ns.GroupSize)
	}
	return n, nil
}

// CodegenOptions converts the file's options to codegen options. They come
// first so that later options override them.
func (o Options) CodegenOptions() ([]codegen.Option, error) {
	var opts []codegen.Option
	if o.Target != "" {
		l, err := cpuinfo.ParseLevel(o.Target)
		if err != nil {
			return nil, err
		}
		opts = append(opts, codegen.WithTarget(l))
	}
	if o.Mode != "" {
		m, err := codegen.ParseMode(o.Mode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, codegen.WithMode(m))
	}
	if o.VectorWidth != 0 {
		opts = append(opts, codegen.WithVectorWidth(o.VectorWidth))
	}
	if o.GroupSize != 0 {
		opts = append(opts, codegen.WithGroupSize(o.GroupSize))
	}
	if o.Unroll != 0 {
		opts = append(opts, codegen.WithUnroll(o.Unroll))
	}
	if o.Prefetch != 0 {
		opts = append(opts, codegen.WithPrefetch(o.Prefetch))
	}
	return opts, nil
}
