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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/internal/cpuinfo"
	"github.com/ajroetker/go-tlang/snode"
)

func generateSource(t *testing.T, k *expr.Kernel, opts ...Option) string {
	t.Helper()
	s, err := Generate(k, testOptions(opts...)...)
	require.NoError(t, err)
	src, err := s.Source()
	require.NoError(t, err)
	require.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"), "unbalanced braces:\n%s", src)
	return src
}

// axpyKernel computes x = x + float32(i) over 8 elements.
func axpyKernel(t *testing.T) *expr.Kernel {
	t.Helper()
	root := snode.NewRoot("root")
	x := root.Dense("a", snode.Axis{Dim: 0, Bits: 3}).Place("x", snode.Float32)
	require.NoError(t, root.Materialize())

	k := expr.NewKernel("axpy", x)
	addr := snode.Address{BufferID: 0, CoeffI: 1}
	v := k.Load(addr)
	i := k.Cast(k.Index(0), snode.Float32)
	k.Store(addr, k.Add(v, i))
	return k
}

func TestLowerUnrolled(t *testing.T) {
	src := generateSource(t, axpyKernel(t), WithUnroll(2))
	for _, want := range []string{
		"VV<4, float32> v0_0 = VV<4, float32>::load(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 0) + 0 + 0]);",
		"VV<4, float32> v0_1 = VV<4, float32>::load(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 1) + 0 + 0]);",
		"VV<4, int32> v1_0 = VV<4, int32>(index_a_0) + const0000;",
		"VV<4, int32> v1_1 = VV<4, int32>(index_a_0 + 4) + const0000;",
		"VV<4, float32> v2_1 = VV<4, float32>(v1_1);",
		"VV<4, float32> v3_0 = v0_0 + v2_0;",
		"v3_1.store(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 1) + 0 + 0]);",
		"a_loop += 8; b += 2;",
	} {
		assert.Contains(t, src, want)
	}
	assert.Equal(t, 1, strings.Count(src, "const auto const0000 = VV<4, int32>({0,1,2,3});"))
}

func TestLowerPrefetch(t *testing.T) {
	src := generateSource(t, axpyKernel(t), WithPrefetch(2))
	prefetch := "__builtin_prefetch(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 0) + 0 + 8]);"
	load := "VV<4, float32> v0_0 = VV<4, float32>::load("
	require.Contains(t, src, prefetch)
	assert.Less(t, strings.Index(src, prefetch), strings.Index(src, load))

	src = generateSource(t, axpyKernel(t))
	assert.NotContains(t, src, "__builtin_prefetch")
}

func TestLowerConstants(t *testing.T) {
	_, _, x := identityTree(t)
	k := expr.NewKernel("consts", x)
	addr := snode.Address{BufferID: 1, CoeffI: 1}
	lanes := k.ConstList(snode.Float32, 1, 2, 3, 4)
	half := k.ConstFloat(snode.Float32, 0.5)
	k.Store(addr, k.Max(k.Min(lanes, half), k.Div(lanes, half)))

	src := generateSource(t, k)
	for _, want := range []string{
		"const auto const0000 = VV<4, float32>({1.0f,2.0f,3.0f,4.0f});",
		"const auto const0001 = VV<4, float32>(0.5f);",
		"VV<4, float32> v2_0 = min(const0000, const0001);",
		"VV<4, float32> v3_0 = const0000 / const0001;",
		"VV<4, float32> v4_0 = max(v2_0, v3_0);",
	} {
		assert.Contains(t, src, want)
	}
}

func TestLowerIndexWithoutLaneStep(t *testing.T) {
	// The index bits of a sit above those of c, so consecutive lanes of a
	// batch of a share the same index.
	root := snode.NewRoot("root")
	a := root.Dense("a", snode.Axis{Dim: 0, Bits: 2})
	x := a.Dense("c", snode.Axis{Dim: 1, Bits: 2}).Place("x", snode.Float32)
	require.NoError(t, root.Materialize())

	k := expr.NewKernel("rows", x)
	k.Store(snode.Address{BufferID: 0, CoeffI: 1}, k.Cast(k.Index(0), snode.Float32))
	src := generateSource(t, k)
	assert.Contains(t, src, "VV<4, int32> v0_0 = VV<4, int32>(index_c_0);")
	assert.NotContains(t, src, "const auto")
}

func TestLowerRejects(t *testing.T) {
	addr := snode.Address{BufferID: 0, CoeffI: 1}
	tests := []struct {
		name  string
		build func(k *expr.Kernel)
		opts  []Option
		want  error
	}{
		{
			name: "BinaryGroupSizes",
			build: func(k *expr.Kernel) {
				k.Add(k.Load(addr), k.Load(addr).WithGroupSize(2))
			},
			want: ErrGroupSizeMismatch,
		},
		{
			name: "StoreGroupSize",
			build: func(k *expr.Kernel) {
				k.Store(addr, k.Load(addr).WithGroupSize(2))
			},
			want: ErrGroupSizeMismatch,
		},
		{
			name: "BinaryTypes",
			build: func(k *expr.Kernel) {
				k.Add(k.Load(addr), k.Index(0))
			},
			want: ErrInvalidGraph,
		},
		{
			name: "StoreType",
			build: func(k *expr.Kernel) {
				k.Store(addr, k.Index(0))
			},
			want: ErrInvalidGraph,
		},
		{
			name: "ConstListLength",
			build: func(k *expr.Kernel) {
				k.ConstList(snode.Int32, 0, 1, 2)
			},
			want: ErrInvalidGraph,
		},
		{
			name: "IndexDimension",
			build: func(k *expr.Kernel) {
				k.Index(snode.MaxNumIndices)
			},
			want: ErrInvalidGraph,
		},
		{
			name: "UnresolvedLoad",
			build: func(k *expr.Kernel) {
				k.Load(snode.NewAddress())
			},
			want: ErrUnresolvedAddress,
		},
		{
			name: "IntegerDivisionIntrinsics",
			build: func(k *expr.Kernel) {
				i := k.Index(0)
				k.Div(i, i)
			},
			opts: []Option{WithMode(ModeIntrinsics), WithTarget(cpuinfo.SSE)},
			want: ErrUnsupportedOp,
		},
		{
			name: "UnknownOp",
			build: func(k *expr.Kernel) {
				k.Nodes = append(k.Nodes, &expr.Node{ID: len(k.Nodes), Op: expr.Op(99)})
			},
			want: ErrUnsupportedOp,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, x := identityTree(t)
			k := expr.NewKernel("bad", x)
			tt.build(k)
			s, err := Generate(k, testOptions(tt.opts...)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, s.Err(), tt.want)
		})
	}
}

// adapterKernel regroups x from group size 4 to 2, adds a group-size-2
// load, and regroups back before storing.
func adapterKernel(t *testing.T) *expr.Kernel {
	t.Helper()
	_, _, x := identityTree(t)
	k := expr.NewKernel("regroup", x)
	k.DeclareAdapter(expr.AdapterDecl{Slot: 0, ElemType: snode.Float32, NumInputs: 1, InputGroupSize: 4, OutputGroupSize: 2})
	k.DeclareAdapter(expr.AdapterDecl{Slot: 7, ElemType: snode.Float32, NumInputs: 1, InputGroupSize: 2, OutputGroupSize: 4})

	// Node IDs follow declaration order: v0 load, v2 regrouped, v3 second
	// load, v4 sum, v6 regrouped back.
	addr := snode.Address{BufferID: 0, CoeffI: 1}
	v := k.Load(addr)
	k.AdapterStore(0, 0, v)
	r := k.AdapterLoad(0, 0, snode.Float32, 0)
	w := k.Load(snode.Address{BufferID: 1, CoeffI: 1}).WithGroupSize(2)
	sum := k.Add(r, w)
	k.AdapterStore(7, 0, sum)
	back := k.AdapterLoad(7, 0, snode.Float32, 4)
	k.Store(addr, back)
	return k
}

func TestLowerAdapters(t *testing.T) {
	src := generateSource(t, adapterKernel(t))
	for _, want := range []string{
		"    SlowAdapter<float32, 4, 1, 4, 2> adapter_000;\n",
		"    SlowAdapter<float32, 4, 1, 2, 4> adapter_007;\n",
		"adapter_000.set(0, v0_0);",
		"VV<4, float32> v2_0 = adapter_000.get(0);",
		"VV<4, float32> v4_0 = v2_0 + v3_0;",
		"adapter_007.set(0, v4_0);",
		"VV<4, float32> v6_0 = adapter_007.get(0);",
		"v6_0.store(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 0) + 0 + 0]);",
	} {
		assert.Contains(t, src, want)
	}
}

func TestLowerAdaptersIntrinsics(t *testing.T) {
	src := generateSource(t, adapterKernel(t), WithMode(ModeIntrinsics), WithTarget(cpuinfo.SSE))
	for _, want := range []string{
		"alignas(64) float32 tmp1_0[4];",
		"_mm_storeu_ps(tmp1_0, v0_0);",
		"adapter_000.set(0, tmp1_0);",
		"alignas(64) float32 tmp2_0[4];",
		"adapter_000.get(0, tmp2_0);",
		"__m128 v2_0 = _mm_loadu_ps(tmp2_0);",
		"__m128 v4_0 = _mm_add_ps(v2_0, v3_0);",
	} {
		assert.Contains(t, src, want)
	}
}

func TestLowerAdapterRejects(t *testing.T) {
	addr := snode.Address{BufferID: 0, CoeffI: 1}
	decl := expr.AdapterDecl{Slot: 0, ElemType: snode.Float32, NumInputs: 2, InputGroupSize: 2, OutputGroupSize: 4}
	tests := []struct {
		name  string
		build func(k *expr.Kernel)
		opts  []Option
		want  error
	}{
		{
			name: "Undeclared",
			build: func(k *expr.Kernel) {
				k.AdapterLoad(3, 0, snode.Float32, 0)
			},
			want: ErrUnknownAdapter,
		},
		{
			name: "SlotRange",
			build: func(k *expr.Kernel) {
				k.AdapterLoad(MaxAdapterSlots, 0, snode.Float32, 0)
			},
			want: ErrAdapterSlotRange,
		},
		{
			name: "LaneRange",
			build: func(k *expr.Kernel) {
				k.DeclareAdapter(decl)
				k.AdapterLoad(0, 2, snode.Float32, 0)
			},
			want: ErrInvalidGraph,
		},
		{
			name: "InputGroupSize",
			build: func(k *expr.Kernel) {
				k.DeclareAdapter(decl)
				k.AdapterStore(0, 0, k.Load(addr))
			},
			want: ErrGroupSizeMismatch,
		},
		{
			name: "OutputGroupSize",
			build: func(k *expr.Kernel) {
				k.DeclareAdapter(decl)
				k.AdapterLoad(0, 1, snode.Float32, 2)
			},
			want: ErrGroupSizeMismatch,
		},
		{
			name: "ElementType",
			build: func(k *expr.Kernel) {
				k.DeclareAdapter(decl)
				k.AdapterLoad(0, 0, snode.Int32, 0)
			},
			want: ErrInvalidGraph,
		},
		{
			name: "Unrolled",
			build: func(k *expr.Kernel) {
				k.DeclareAdapter(decl)
				k.AdapterLoad(0, 0, snode.Float32, 0)
			},
			opts: []Option{WithUnroll(2)},
			want: ErrUnsupportedOp,
		},
		{
			name: "Redeclared",
			build: func(k *expr.Kernel) {
				k.DeclareAdapter(decl)
				k.DeclareAdapter(decl)
			},
			want: ErrAdapterRedeclared,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, x := identityTree(t)
			k := expr.NewKernel("bad", x)
			tt.build(k)
			_, err := Generate(k, testOptions(tt.opts...)...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLowerIntrinsics(t *testing.T) {
	tests := []struct {
		target cpuinfo.Level
		width  int
		want   []string
	}{
		{
			target: cpuinfo.SSE,
			width:  4,
			want: []string{
				"#include <immintrin.h>\n",
				"const auto const0000 = _mm_setr_epi32(0, 1, 2, 3);",
				"__m128i v0_0 = _mm_add_epi32(_mm_set1_epi32(index_a_0), const0000);",
				"__m128 v1_0 = _mm_cvtepi32_ps(v0_0);",
				"_mm_storeu_ps(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 0) + 0 + 0], v1_0);",
			},
		},
		{
			// AVX2 falls back to its SSE profile for four lanes.
			target: cpuinfo.AVX2,
			width:  4,
			want:   []string{"__m128 v1_0 = _mm_cvtepi32_ps(v0_0);"},
		},
		{
			target: cpuinfo.AVX2,
			width:  8,
			want: []string{
				"const auto const0000 = _mm256_setr_epi32(0, 1, 2, 3, 4, 5, 6, 7);",
				"__m256 v1_0 = _mm256_cvtepi32_ps(v0_0);",
				"a_loop += 8; b += 1;",
			},
		},
		{
			target: cpuinfo.NEON,
			width:  4,
			want: []string{
				"#include <arm_neon.h>\n",
				"const auto const0000 = (int32x4_t){0, 1, 2, 3};",
				"int32x4_t v0_0 = vaddq_s32(vdupq_n_s32(index_a_0), const0000);",
				"float32x4_t v1_0 = vcvtq_f32_s32(v0_0);",
				"vst1q_f32(&context.get_buffer<float32>(0)[0 * n + 4 * (b + 0) + 0 + 0], v1_0);",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			root := snode.NewRoot("root")
			x := root.Dense("a", snode.Axis{Dim: 0, Bits: 4}).Place("x", snode.Float32)
			require.NoError(t, root.Materialize())
			k := expr.NewKernel("identity", x)
			k.Store(snode.Address{BufferID: 0, CoeffI: 1}, k.Cast(k.Index(0), snode.Float32))

			src := generateSource(t, k,
				WithMode(ModeIntrinsics), WithTarget(tt.target),
				WithVectorWidth(tt.width), WithGroupSize(tt.width))
			for _, want := range tt.want {
				assert.Contains(t, src, want)
			}
			assert.NotContains(t, src, "VV<")
		})
	}
}

func TestIntrinsicsNoProfile(t *testing.T) {
	for _, tt := range []struct {
		target cpuinfo.Level
		width  int
	}{
		{cpuinfo.Scalar, 4},
		{cpuinfo.NEON, 8},
		{cpuinfo.SSE, 8},
		{cpuinfo.AVX512, 2},
	} {
		_, err := NewSession(identityKernel(t), testOptions(
			WithMode(ModeIntrinsics), WithTarget(tt.target),
			WithVectorWidth(tt.width), WithGroupSize(tt.width))...)
		assert.ErrorIs(t, err, ErrNoProfile, "%s with %d lanes", tt.target, tt.width)
	}
}
