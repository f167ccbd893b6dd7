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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-tlang/codegen/cxx"
	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/snode"
)

// identityTree is root -> dense a (4 elements of dimension 0) -> place x.
func identityTree(t *testing.T) (root, a, x *snode.Node) {
	t.Helper()
	root = snode.NewRoot("root")
	a = root.Dense("a", snode.Axis{Dim: 0, Bits: 2})
	x = a.Place("x", snode.Float32)
	require.NoError(t, root.Materialize())
	return root, a, x
}

// identityKernel stores x[i] = float32(i).
func identityKernel(t *testing.T) *expr.Kernel {
	t.Helper()
	_, _, x := identityTree(t)
	k := expr.NewKernel("identity", x)
	k.Store(snode.Address{BufferID: 0, CoeffI: 1}, k.Cast(k.Index(0), snode.Float32))
	return k
}

func testOptions(extra ...Option) []Option {
	return append([]Option{
		WithVectorWidth(4),
		WithGroupSize(4),
		WithLayoutFile("layout.h"),
		WithDisassemble(false),
	}, extra...)
}

func newTestSession(t *testing.T, k *expr.Kernel, extra ...Option) *Session {
	t.Helper()
	s, err := NewSession(k, testOptions(extra...)...)
	require.NoError(t, err)
	return s
}

func bodyTexts(b *cxx.Block) []string {
	var out []string
	for _, st := range b.Stmts() {
		out = append(out, st.Text)
	}
	return out
}

func TestNewSessionRejects(t *testing.T) {
	_, _, x := identityTree(t)
	tests := []struct {
		name string
		k    *expr.Kernel
		opts []Option
		want error
	}{
		{"NilKernel", nil, nil, ErrInvalidGraph},
		{"NoEntry", expr.NewKernel("k", nil), nil, ErrInvalidGraph},
		{"NotAnIdentifier", expr.NewKernel("bad-name", x), nil, ErrInvalidGraph},
		{"LeadingDigit", expr.NewKernel("1k", x), nil, ErrInvalidGraph},
		{"GroupSize", expr.NewKernel("k", x), []Option{WithGroupSize(3)}, ErrGroupSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.k, testOptions(tt.opts...)...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConstantDeduplication(t *testing.T) {
	s := newTestSession(t, identityKernel(t))
	first := s.Constant("VV<4, float32>(2.0f)")
	again := s.Constant("VV<4, float32>(2.0f)")
	other := s.Constant("VV<4, float32>(3.0f)")

	assert.Equal(t, "const0000", first)
	assert.Equal(t, first, again)
	assert.Equal(t, "const0001", other)
	assert.Equal(t, 2, s.NumConstants())

	pre := s.Preamble()
	assert.Equal(t, 2, pre.Count(cxx.KindDecl))
	assert.Equal(t, []string{
		"const auto const0000 = VV<4, float32>(2.0f);",
		"const auto const0001 = VV<4, float32>(3.0f);",
	}, bodyTexts(pre))
}

func TestConstantsFromGraph(t *testing.T) {
	_, _, x := identityTree(t)
	k := expr.NewKernel("scale", x)
	addr := snode.Address{BufferID: 0, CoeffI: 1}
	v := k.Load(addr)
	two := k.ConstFloat(snode.Float32, 2)
	twoAgain := k.ConstFloat(snode.Float32, 2)
	k.Store(addr, k.Mul(k.Mul(v, two), twoAgain))

	s, err := Generate(k, testOptions()...)
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumConstants())

	src, err := s.Source()
	require.NoError(t, err)
	assert.Contains(t, src, "const auto const0000 = VV<4, float32>(2.0f);")
	assert.Contains(t, src, "VV<4, float32> v3_0 = v0_0 * const0000;")
	assert.Contains(t, src, "VV<4, float32> v4_0 = v3_0 * const0000;")
}

func TestVectorizedAddress(t *testing.T) {
	s := newTestSession(t, identityKernel(t), WithVectorWidth(8), WithGroupSize(8))
	addr := snode.Address{
		BufferID:            3,
		CoeffI:              2,
		CoeffAOSOAGroupSize: 4,
		CoeffAOSOAStride:    3,
		CoeffConst:          5,
		CoeffIMax:           1,
	}
	got, err := s.VectorizedAddress(addr, "0", 7)
	require.NoError(t, err)
	// Stride is 2*8 + (8/4)*3.
	assert.Equal(t, "&context.get_buffer<float32>(3)[1 * n + 22 * (b + 0) + 5 + 7]", got)

	addr = snode.Address{BufferID: 11, CoeffI: 1, ElemType: snode.Int32}
	got, err = s.VectorizedAddress(addr, "1", 0)
	require.NoError(t, err)
	assert.Equal(t, "&context.get_buffer<int32>(11)[0 * n + 8 * (b + 1) + 0 + 0]", got)
}

func TestVectorizedAddressUnresolved(t *testing.T) {
	for _, addr := range []snode.Address{
		snode.NewAddress(),
		{BufferID: snode.Unassigned, CoeffI: 1},
		{BufferID: snode.Unassigned, CoeffI: 4, CoeffAOSOAGroupSize: 2, CoeffAOSOAStride: 1, CoeffConst: 9, CoeffIMax: 3},
		{BufferID: -2, CoeffI: 1},
		{BufferID: 16, CoeffI: 1},
	} {
		t.Run(addr.String(), func(t *testing.T) {
			s := newTestSession(t, identityKernel(t))
			_, err := s.VectorizedAddress(addr, "0", 0)
			require.ErrorIs(t, err, ErrUnresolvedAddress)

			// The session is poisoned by the first failure.
			assert.ErrorIs(t, s.Err(), ErrUnresolvedAddress)
			err = s.GenerateHeader()
			assert.ErrorIs(t, err, ErrSessionState)
			assert.ErrorIs(t, err, ErrUnresolvedAddress)
		})
	}
}

func TestDeclareAdapter(t *testing.T) {
	s := newTestSession(t, identityKernel(t))
	name, err := s.DeclareAdapter(snode.Float32, 999, 2, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "adapter_999", name)
	assert.Contains(t, bodyTexts(s.Body()), "SlowAdapter<float32, 4, 2, 1, 2> adapter_999;")

	d, ok := s.Adapter(999)
	require.True(t, ok)
	assert.Equal(t, AdapterDesc{ElemType: snode.Float32, NumInputs: 2, InputGroupSize: 1, OutputGroupSize: 2}, d)
	_, ok = s.Adapter(0)
	assert.False(t, ok)

	name, err = s.DeclareAdapter(snode.Int32, 5, 1, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, "adapter_005", name)
}

func TestDeclareAdapterRejects(t *testing.T) {
	tests := []struct {
		name               string
		slot, ni, igs, ogs int
		want               error
	}{
		{"SlotTooLarge", MaxAdapterSlots, 1, 1, 1, ErrAdapterSlotRange},
		{"NegativeSlot", -1, 1, 1, 1, ErrAdapterSlotRange},
		{"NoInputs", 0, 0, 1, 1, ErrInvalidGraph},
		{"InputGroupSize", 0, 1, 3, 1, ErrGroupSizeMismatch},
		{"OutputGroupSize", 0, 1, 1, 8, ErrGroupSizeMismatch},
		{"ZeroGroupSize", 0, 1, 0, 1, ErrGroupSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, identityKernel(t))
			_, err := s.DeclareAdapter(snode.Float32, tt.slot, tt.ni, tt.igs, tt.ogs)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, s.Err(), tt.want)
		})
	}

	t.Run("Redeclared", func(t *testing.T) {
		s := newTestSession(t, identityKernel(t))
		_, err := s.DeclareAdapter(snode.Float32, 3, 1, 1, 1)
		require.NoError(t, err)
		_, err = s.DeclareAdapter(snode.Float32, 3, 1, 1, 1)
		assert.ErrorIs(t, err, ErrAdapterRedeclared)
	})
}

func TestAdapterName(t *testing.T) {
	for slot, want := range map[int]string{0: "adapter_000", 42: "adapter_042", 999: "adapter_999"} {
		got, err := AdapterName(slot)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := AdapterName(1000)
	assert.ErrorIs(t, err, ErrAdapterSlotRange)
}

func TestStageOrder(t *testing.T) {
	t.Run("LowerBeforeHeader", func(t *testing.T) {
		k := identityKernel(t)
		s := newTestSession(t, k)
		assert.ErrorIs(t, s.Lower(k.Nodes[0]), ErrSessionState)
	})
	t.Run("TailBeforeHeader", func(t *testing.T) {
		s := newTestSession(t, identityKernel(t))
		_, err := s.GenerateTail()
		assert.ErrorIs(t, err, ErrSessionState)
	})
	t.Run("HeaderTwice", func(t *testing.T) {
		s := newTestSession(t, identityKernel(t))
		require.NoError(t, s.GenerateHeader())
		assert.ErrorIs(t, s.GenerateHeader(), ErrSessionState)
	})
	t.Run("SourceBeforeTail", func(t *testing.T) {
		s := newTestSession(t, identityKernel(t))
		require.NoError(t, s.GenerateHeader())
		_, err := s.Source()
		assert.ErrorIs(t, err, ErrSessionState)
		// Asking early is not a generation error.
		assert.NoError(t, s.Err())
	})
	t.Run("TailTwice", func(t *testing.T) {
		s, err := Generate(identityKernel(t), testOptions()...)
		require.NoError(t, err)
		_, err = s.GenerateTail()
		assert.ErrorIs(t, err, ErrSessionState)
	})
	t.Run("LowerAfterTail", func(t *testing.T) {
		k := identityKernel(t)
		s, err := Generate(k, testOptions()...)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Lower(k.Nodes[0]), ErrSessionState)
	})
}

func TestLowerRejectsForeignNodes(t *testing.T) {
	k := identityKernel(t)
	other := identityKernel(t)

	s := newTestSession(t, k)
	require.NoError(t, s.GenerateHeader())
	assert.ErrorIs(t, s.Lower(other.Nodes[0]), ErrInvalidGraph)

	s = newTestSession(t, k)
	require.NoError(t, s.GenerateHeader())
	require.NoError(t, s.Lower(k.Nodes[0]))
	assert.ErrorIs(t, s.Lower(k.Nodes[0]), ErrInvalidGraph)

	s = newTestSession(t, k)
	require.NoError(t, s.GenerateHeader())
	// Cast before its operand.
	assert.ErrorIs(t, s.Lower(k.Nodes[1]), ErrInvalidGraph)
}

func TestSessionLog(t *testing.T) {
	var log strings.Builder
	_, err := Generate(identityKernel(t), testOptions(WithLog(&log))...)
	require.NoError(t, err)
	assert.Contains(t, log.String(), "identity: vv lowering, width 4, group size 4, unroll 1, loops opened at a")
	assert.Contains(t, log.String(), "identity: 12 statements, 1 constants")
}

func TestFailKeepsFirstError(t *testing.T) {
	s := newTestSession(t, identityKernel(t))
	first := errors.New("first")
	s.fail(first)
	s.fail(errors.New("second"))
	assert.Same(t, first, s.Err())
}
