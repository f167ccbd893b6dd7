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

// Package cxx holds generated C++ as a sequence of typed statements.
//
// Generators append statements to a Block while they walk their input and
// only render text at the very end. Keeping the kind of every statement lets
// tests count loops, declarations and braces without matching strings, and
// lets Render derive indentation from structure instead of from the caller.
package cxx

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Kind classifies a statement.
type Kind int

const (
	// KindDirective is a preprocessor line. It is never indented.
	KindDirective Kind = iota

	// KindDecl declares and initializes one variable.
	KindDecl

	// KindStmt is any other single statement.
	KindStmt

	// KindLoopOpen opens a for loop and its brace.
	KindLoopOpen

	// KindLoopClose closes the innermost open loop.
	KindLoopClose

	// KindFuncOpen opens a function body.
	KindFuncOpen

	// KindFuncClose closes a function body.
	KindFuncClose
)

func (k Kind) String() string {
	switch k {
	case KindDirective:
		return "Directive"
	case KindDecl:
		return "Decl"
	case KindStmt:
		return "Stmt"
	case KindLoopOpen:
		return "LoopOpen"
	case KindLoopClose:
		return "LoopClose"
	case KindFuncOpen:
		return "FuncOpen"
	case KindFuncClose:
		return "FuncClose"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Opens reports whether statements of this kind open a brace.
func (k Kind) Opens() bool {
	return k == KindLoopOpen || k == KindFuncOpen
}

// Closes reports whether statements of this kind close a brace.
func (k Kind) Closes() bool {
	return k == KindLoopClose || k == KindFuncClose
}

// Stmt is one generated line.
type Stmt struct {
	Kind Kind
	Text string
}

// Block is an ordered statement sequence. The zero value is empty and ready
// to use.
type Block struct {
	stmts []Stmt
}

// Emit appends a statement whose text is format applied to args.
func (b *Block) Emit(kind Kind, format string, args ...any) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	b.stmts = append(b.stmts, Stmt{Kind: kind, Text: text})
}

// Directive appends a preprocessor line.
func (b *Block) Directive(format string, args ...any) { b.Emit(KindDirective, format, args...) }

// Decl appends "type name = init;".
func (b *Block) Decl(typ, name, init string) {
	b.Emit(KindDecl, "%s %s = %s;", typ, name, init)
}

// Stmt appends a plain statement.
func (b *Block) Stmt(format string, args ...any) { b.Emit(KindStmt, format, args...) }

// Text appends a plain statement taken verbatim.
func (b *Block) Text(s string) {
	b.stmts = append(b.stmts, Stmt{Kind: KindStmt, Text: s})
}

// For opens "for (init; cond; post) {". An empty post leaves the increment
// to the loop body.
func (b *Block) For(init, cond, post string) {
	if post == "" {
		b.Emit(KindLoopOpen, "for (%s; %s;) {", init, cond)
		return
	}
	b.Emit(KindLoopOpen, "for (%s; %s; %s) {", init, cond, post)
}

// EndFor closes the innermost loop.
func (b *Block) EndFor() { b.Emit(KindLoopClose, "}") }

// Func opens a function definition whose signature is sig.
func (b *Block) Func(sig string) { b.Emit(KindFuncOpen, "%s {", sig) }

// EndFunc closes the function definition.
func (b *Block) EndFunc() { b.Emit(KindFuncClose, "}") }

// Append appends all statements of other.
func (b *Block) Append(other *Block) {
	b.stmts = append(b.stmts, other.stmts...)
}

// Reset empties the block.
func (b *Block) Reset() {
	b.stmts = b.stmts[:0]
}

// Len returns the number of statements.
func (b *Block) Len() int {
	return len(b.stmts)
}

// Stmts returns the statements in emission order. The slice must not be
// modified.
func (b *Block) Stmts() []Stmt {
	return b.stmts
}

// Count returns the number of statements of the given kind.
func (b *Block) Count(kind Kind) int {
	return lo.CountBy(b.stmts, func(s Stmt) bool { return s.Kind == kind })
}

// Depth returns the brace depth after the last statement: the number of
// opened loops and functions not yet closed.
func (b *Block) Depth() int {
	d := 0
	for _, s := range b.stmts {
		switch {
		case s.Kind.Opens():
			d++
		case s.Kind.Closes():
			d--
		}
	}
	return d
}

// Render serializes the block, one statement per line, indenting two spaces
// per open brace.
func (b *Block) Render() string {
	var sb strings.Builder
	depth := 0
	for _, s := range b.stmts {
		if s.Kind.Closes() {
			depth = max(depth-1, 0)
		}
		if s.Kind != KindDirective {
			sb.WriteString(strings.Repeat("  ", depth))
		}
		sb.WriteString(s.Text)
		sb.WriteByte('\n')
		if s.Kind.Opens() {
			depth++
		}
	}
	return sb.String()
}

// Call formats fn(args...).
func Call(fn string, args ...string) string {
	return fn + "(" + strings.Join(args, ", ") + ")"
}

// Template formats name<args...>.
func Template(name string, args ...string) string {
	return name + "<" + strings.Join(args, ", ") + ">"
}

// BraceList formats {v0,v1,...}.
func BraceList[T any](vals []T) string {
	return "{" + strings.Join(lo.Map(vals, func(v T, _ int) string { return fmt.Sprint(v) }), ",") + "}"
}

// Itoa is strconv.Itoa, kept here so call sites read as template arguments.
func Itoa(i int) string {
	return strconv.Itoa(i)
}

// FloatLit formats a float32 literal that round-trips, always with a decimal
// point and an f suffix.
func FloatLit(v float64) string {
	if lit, ok := nonFinite(v, "f"); ok {
		return lit
	}
	s := strconv.FormatFloat(v, 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s + "f"
}

// DoubleLit formats a float64 literal that round-trips.
func DoubleLit(v float64) string {
	if lit, ok := nonFinite(v, ""); ok {
		return lit
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func nonFinite(v float64, suffix string) (string, bool) {
	switch {
	case math.IsNaN(v):
		return "__builtin_nan" + suffix + "(\"\")", true
	case math.IsInf(v, 1):
		return "__builtin_inf" + suffix + "()", true
	case math.IsInf(v, -1):
		return "-__builtin_inf" + suffix + "()", true
	}
	return "", false
}
