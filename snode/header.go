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

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ElemTypeName returns the C++ type a node's cache pointer points at: the
// per-element structure for dense nodes, the node structure otherwise.
func (n *Node) ElemTypeName() string {
	if n.Type == Dense {
		return n.Name + "_ch"
	}
	return n.Name
}

// MemberName returns the field name under which n is stored in its parent's
// element structure.
func (n *Node) MemberName() string {
	return "c_" + n.Name
}

// Header renders the layout descriptor header for the tree rooted at root.
// The generated source includes it to get one struct per node (with a static
// element count n) and an access_<name>(parent, i) function per non-root node.
func Header(root *Node) []byte {
	var buf bytes.Buffer
	buf.WriteString("// Code generated by go-tlang. DO NOT EDIT.\n\n")
	buf.WriteString("#pragma once\n\n")
	buf.WriteString("namespace taichi {\nnamespace Tlang {\n\n")
	emitStructs(&buf, root)
	root.Walk(func(c *Node) {
		if c.IsRoot() {
			return
		}
		emitAccessor(&buf, c)
	})
	buf.WriteString("}  // namespace Tlang\n}  // namespace taichi\n")
	return buf.Bytes()
}

// WriteHeader writes the layout descriptor header to w.
func WriteHeader(w io.Writer, root *Node) error {
	_, err := w.Write(Header(root))
	return err
}

// WriteHeaderFile writes the layout descriptor header to path.
func WriteHeaderFile(path string, root *Node) error {
	if err := os.WriteFile(path, Header(root), 0o644); err != nil {
		return fmt.Errorf("write layout header: %w", err)
	}
	return nil
}

// emitStructs emits children before parents so every member type is complete
// where it is used.
func emitStructs(buf *bytes.Buffer, n *Node) {
	for _, c := range n.Children {
		emitStructs(buf, c)
	}
	switch n.Type {
	case Place:
		fmt.Fprintf(buf, "struct %s {\n", n.Name)
		buf.WriteString("  static constexpr int n = 1;\n")
		fmt.Fprintf(buf, "  using type = %s;\n", n.DataType)
		buf.WriteString("  type val;\n")
		buf.WriteString("};\n\n")
	case Dense:
		fmt.Fprintf(buf, "struct %s {\n", n.ElemTypeName())
		emitMembers(buf, n)
		buf.WriteString("};\n\n")
		fmt.Fprintf(buf, "struct %s {\n", n.Name)
		fmt.Fprintf(buf, "  static constexpr int n = %d;\n", n.N)
		fmt.Fprintf(buf, "  %s children[n];\n", n.ElemTypeName())
		buf.WriteString("};\n\n")
	default:
		fmt.Fprintf(buf, "struct %s {\n", n.Name)
		buf.WriteString("  static constexpr int n = 1;\n")
		emitMembers(buf, n)
		buf.WriteString("};\n\n")
	}
}

func emitMembers(buf *bytes.Buffer, n *Node) {
	for _, c := range n.Children {
		fmt.Fprintf(buf, "  %s %s;\n", c.Name, c.MemberName())
	}
}

func emitAccessor(buf *bytes.Buffer, n *Node) {
	ret := n.ElemTypeName()
	fmt.Fprintf(buf, "inline %s *access_%s(%s *parent, int i) {\n", ret, n.Name, n.Parent.ElemTypeName())
	if n.Type == Dense {
		fmt.Fprintf(buf, "  return &parent->%s.children[i];\n", n.MemberName())
	} else {
		buf.WriteString("  (void)i;\n")
		fmt.Fprintf(buf, "  return &parent->%s;\n", n.MemberName())
	}
	buf.WriteString("}\n\n")
}
