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
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-tlang/codegen/cxx"
	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/snode"
)

func TestLoopNestDepth(t *testing.T) {
	for depth := 1; depth <= 4; depth++ {
		t.Run(fmt.Sprintf("Depth%d", depth), func(t *testing.T) {
			root := snode.NewRoot("root")
			p := root
			for i := range depth {
				p = p.Dense(fmt.Sprintf("l%d", i), snode.Axis{Dim: 0, Bits: 1})
			}
			x := p.Place("x", snode.Float32)
			require.NoError(t, root.Materialize())

			s, err := Generate(expr.NewKernel("nest", x), testOptions()...)
			require.NoError(t, err)

			body := s.Body()
			assert.Equal(t, depth, body.Count(cxx.KindLoopOpen))
			assert.Equal(t, depth, body.Count(cxx.KindLoopClose))
			assert.Equal(t, 1, body.Count(cxx.KindFuncClose))
			// One cache and MaxNumIndices index declarations per level.
			assert.Equal(t, depth*(1+snode.MaxNumIndices), body.Count(cxx.KindDecl))

			src, err := s.Source()
			require.NoError(t, err)
			assert.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"))
			assert.Equal(t, 1, strings.Count(src, "b = 0"), "only the innermost level is batched")
			assert.Contains(t, src, fmt.Sprintf("l%d_loop += 4; b += 1;", depth-1))
		})
	}
}

var (
	indexDecl     = regexp.MustCompile(`^int (index_\w+) = (.*);$`)
	extractorTerm = regexp.MustCompile(`^\(\(\((\w+) >> (\d+)\) & \(\(1 << (\d+)\) - 1\)\) << (\d+)\)$`)
)

// evalIndices interprets the index declarations of body for concrete loop
// counter values and returns every index variable.
func evalIndices(t *testing.T, body *cxx.Block, counters map[string]int) map[string]int {
	t.Helper()
	env := make(map[string]int, len(counters))
	for k, v := range counters {
		env[k] = v
	}
	atoi := func(s string) int {
		v, err := strconv.Atoi(s)
		require.NoError(t, err)
		return v
	}
	for _, st := range body.Stmts() {
		m := indexDecl.FindStringSubmatch(st.Text)
		if m == nil {
			continue
		}
		value := 0
		for _, term := range strings.Split(m[2], " | ") {
			if term == "0" {
				continue
			}
			if v, ok := env[term]; ok {
				value |= v
				continue
			}
			e := extractorTerm.FindStringSubmatch(term)
			require.NotNil(t, e, "unexpected index term %q", term)
			counter, ok := env[e[1]]
			require.True(t, ok, "unknown loop variable %q", e[1])
			shift, bits, start := atoi(e[2]), atoi(e[3]), atoi(e[4])
			value |= ((counter >> shift) & ((1 << bits) - 1)) << start
		}
		env[m[1]] = value
	}
	return env
}

func TestLoopNestIndexReconstruction(t *testing.T) {
	root := snode.NewRoot("root")
	a := root.Dense("a", snode.Axis{Dim: 0, Bits: 2}, snode.Axis{Dim: 1, Bits: 1})
	c := a.Dense("c", snode.Axis{Dim: 0, Bits: 3})
	x := c.Place("x", snode.Float32)
	require.NoError(t, root.Materialize())

	s, err := Generate(expr.NewKernel("reconstruct", x), testOptions()...)
	require.NoError(t, err)

	for aLoop := range a.N {
		for cLoop := range c.N {
			env := evalIndices(t, s.Body(), map[string]int{"a_loop": aLoop, "c_loop": cLoop})
			counters := map[*snode.Node]int{a: aLoop, c: cLoop}
			for dim := range snode.MaxNumIndices {
				name := fmt.Sprintf("index_c_%d", dim)
				require.Contains(t, env, name)
				assert.Equal(t, x.Index(dim, counters), env[name], "%s at a=%d c=%d", name, aLoop, cLoop)
			}
			assert.Equal(t, ((aLoop>>1)&3)<<3|cLoop, env["index_c_0"])
			assert.Equal(t, aLoop&1, env["index_c_1"])
		}
	}
}

func TestLoopNestForkedEntry(t *testing.T) {
	root := snode.NewRoot("root")
	f := root.Forked("f")
	y := f.Place("y", snode.Int32)
	require.NoError(t, root.Materialize())

	s, err := Generate(expr.NewKernel("forked", y), testOptions()...)
	require.NoError(t, err)
	src, err := s.Source()
	require.NoError(t, err)

	assert.Contains(t, src, "  const int b = 0;\n")
	assert.Contains(t, src, "for (int f_loop = 0; f_loop < f::n; f_loop += 1) {")
	assert.NotContains(t, src, "b += ")
}

// A forked entry below a dense level hands the batch counter to the dense
// level, which advances after the forked loop closes.
func TestLoopNestForkedBelowDense(t *testing.T) {
	root := snode.NewRoot("root")
	a := root.Dense("a", snode.Axis{Dim: 0, Bits: 3})
	f := a.Forked("f")
	y := f.Place("y", snode.Float32)
	require.NoError(t, root.Materialize())

	s, err := Generate(expr.NewKernel("split", y), testOptions()...)
	require.NoError(t, err)

	texts := bodyTexts(s.Body())
	assert.Equal(t, []string{
		"for (int a_loop = 0, b = 0; a_loop < a::n;) {",
		"auto a_cache = access_a(root_cache, a_loop);",
		"int index_a_0 = (((a_loop >> 0) & ((1 << 3) - 1)) << 0);",
		"int index_a_1 = 0;",
		"int index_a_2 = 0;",
		"int index_a_3 = 0;",
		"for (int f_loop = 0; f_loop < f::n; f_loop += 1) {",
		"auto f_cache = access_f(a_cache, f_loop);",
		"int index_f_0 = index_a_0 | 0;",
		"int index_f_1 = index_a_1 | 0;",
		"int index_f_2 = index_a_2 | 0;",
		"int index_f_3 = index_a_3 | 0;",
		"}",
		"a_loop += 4; b += 1;",
		"}",
		"}",
	}, texts)

	src, err := s.Source()
	require.NoError(t, err)
	assert.NotContains(t, src, "const int b = 0;")
}

func TestLoopNestMalformed(t *testing.T) {
	t.Run("EntryUnderRoot", func(t *testing.T) {
		root := snode.NewRoot("root")
		x := root.Place("x", snode.Float32)
		require.NoError(t, root.Materialize())
		s := newTestSession(t, expr.NewKernel("flat", x))
		assert.ErrorIs(t, s.GenerateHeader(), ErrMalformedTree)
	})
	t.Run("OrphanPlace", func(t *testing.T) {
		x := &snode.Node{Name: "x", Type: snode.Place}
		s := newTestSession(t, expr.NewKernel("orphan", x))
		assert.ErrorIs(t, s.GenerateHeader(), ErrMalformedTree)
	})
	t.Run("NilNode", func(t *testing.T) {
		s := newTestSession(t, identityKernel(t))
		assert.ErrorIs(t, s.OpenLoops(nil, true), ErrMalformedTree)
	})
	t.Run("PlaceNode", func(t *testing.T) {
		k := identityKernel(t)
		s := newTestSession(t, k)
		assert.ErrorIs(t, s.CloseLoops(k.Entry, true), ErrMalformedTree)
	})
	t.Run("RootNode", func(t *testing.T) {
		root, _, _ := identityTree(t)
		s := newTestSession(t, identityKernel(t))
		assert.ErrorIs(t, s.OpenLoops(root, true), ErrMalformedTree)
		assert.Zero(t, s.Body().Len())

		s = newTestSession(t, identityKernel(t))
		assert.ErrorIs(t, s.CloseLoops(root, false), ErrMalformedTree)
	})
}

func TestOpenCloseLoops(t *testing.T) {
	_, a, _ := identityTree(t)
	s := newTestSession(t, identityKernel(t), WithUnroll(2))
	require.NoError(t, s.OpenLoops(a, true))
	require.NoError(t, s.CloseLoops(a, true))

	body := s.Body()
	assert.Zero(t, body.Depth())
	assert.Equal(t, "a_loop += 8; b += 2;", body.Stmts()[body.Len()-2].Text)

	// Not innermost: unit steps, no batch counter.
	s = newTestSession(t, identityKernel(t))
	require.NoError(t, s.OpenLoops(a, false))
	require.NoError(t, s.CloseLoops(a, false))
	assert.Equal(t, []string{
		"for (int a_loop = 0; a_loop < a::n; a_loop += 1) {",
		"auto a_cache = access_a(root_cache, a_loop);",
		"int index_a_0 = (((a_loop >> 0) & ((1 << 2) - 1)) << 0);",
		"int index_a_1 = 0;",
		"int index_a_2 = 0;",
		"int index_a_3 = 0;",
		"}",
	}, bodyTexts(s.Body()))
}
