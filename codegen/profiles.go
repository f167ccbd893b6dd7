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

	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/internal/cpuinfo"
	"github.com/ajroetker/go-tlang/snode"
)

// IntrinsicProfile is the set of intrinsics intrinsics-mode lowering uses for
// one target and element type. Function fields are format strings: the
// operands are substituted in order. An empty function means the target has
// no single instruction for it.
type IntrinsicProfile struct {
	Target   cpuinfo.Level
	ElemType snode.DataType
	Include  string
	VecType  string
	Lanes    int

	LoadFn  string // (ptr)
	StoreFn string // (ptr, v)
	SetFn   string // (scalar) broadcast
	ListFn  string // (comma separated lanes, first lane first)

	AddFn string
	SubFn string
	MulFn string
	DivFn string
	MinFn string
	MaxFn string

	// ConvertFn maps a destination type to the conversion from ElemType.
	ConvertFn map[snode.DataType]string
}

// profileRegistry is keyed "target:elem", e.g. "avx2:float32".
var profileRegistry = make(map[string]*IntrinsicProfile)

func init() {
	for _, p := range []*IntrinsicProfile{
		sseF32Profile(),
		sseI32Profile(),
		avx2F32Profile(),
		avx2I32Profile(),
		avx512F32Profile(),
		avx512I32Profile(),
		neonF32Profile(),
		neonI32Profile(),
	} {
		profileRegistry[profileKey(p.Target, p.ElemType)] = p
	}
}

func profileKey(target cpuinfo.Level, dt snode.DataType) string {
	return target.String() + ":" + dt.String()
}

// Profile returns the profile registered for target and dt, or nil.
func Profile(target cpuinfo.Level, dt snode.DataType) *IntrinsicProfile {
	return profileRegistry[profileKey(target, dt)]
}

// SelectProfile returns the widest profile usable on target whose lane count
// is width.
func SelectProfile(target cpuinfo.Level, dt snode.DataType, width int) (*IntrinsicProfile, error) {
	for _, l := range target.Includes() {
		if p := Profile(l, dt); p != nil && p.Lanes == width {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s with %d lanes of %s", ErrNoProfile, target, width, dt)
}

func (p *IntrinsicProfile) binaryFn(op expr.Op) string {
	switch op {
	case expr.OpAdd:
		return p.AddFn
	case expr.OpSub:
		return p.SubFn
	case expr.OpMul:
		return p.MulFn
	case expr.OpDiv:
		return p.DivFn
	case expr.OpMin:
		return p.MinFn
	case expr.OpMax:
		return p.MaxFn
	}
	return ""
}

// ---------------------------------------------------------------------------
// SSE4.1
// ---------------------------------------------------------------------------

func sseF32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.SSE,
		ElemType: snode.Float32,
		Include:  "#include <immintrin.h>",
		VecType:  "__m128",
		Lanes:    4,
		LoadFn:   "_mm_loadu_ps(%s)",
		StoreFn:  "_mm_storeu_ps(%s, %s)",
		SetFn:    "_mm_set1_ps(%s)",
		ListFn:   "_mm_setr_ps(%s)",
		AddFn:    "_mm_add_ps(%s, %s)",
		SubFn:    "_mm_sub_ps(%s, %s)",
		MulFn:    "_mm_mul_ps(%s, %s)",
		DivFn:    "_mm_div_ps(%s, %s)",
		MinFn:    "_mm_min_ps(%s, %s)",
		MaxFn:    "_mm_max_ps(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Int32: "_mm_cvttps_epi32(%s)",
		},
	}
}

func sseI32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.SSE,
		ElemType: snode.Int32,
		Include:  "#include <immintrin.h>",
		VecType:  "__m128i",
		Lanes:    4,
		LoadFn:   "_mm_loadu_si128((const __m128i *)%s)",
		StoreFn:  "_mm_storeu_si128((__m128i *)%s, %s)",
		SetFn:    "_mm_set1_epi32(%s)",
		ListFn:   "_mm_setr_epi32(%s)",
		AddFn:    "_mm_add_epi32(%s, %s)",
		SubFn:    "_mm_sub_epi32(%s, %s)",
		MulFn:    "_mm_mullo_epi32(%s, %s)",
		MinFn:    "_mm_min_epi32(%s, %s)",
		MaxFn:    "_mm_max_epi32(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Float32: "_mm_cvtepi32_ps(%s)",
		},
	}
}

// ---------------------------------------------------------------------------
// AVX2
// ---------------------------------------------------------------------------

func avx2F32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.AVX2,
		ElemType: snode.Float32,
		Include:  "#include <immintrin.h>",
		VecType:  "__m256",
		Lanes:    8,
		LoadFn:   "_mm256_loadu_ps(%s)",
		StoreFn:  "_mm256_storeu_ps(%s, %s)",
		SetFn:    "_mm256_set1_ps(%s)",
		ListFn:   "_mm256_setr_ps(%s)",
		AddFn:    "_mm256_add_ps(%s, %s)",
		SubFn:    "_mm256_sub_ps(%s, %s)",
		MulFn:    "_mm256_mul_ps(%s, %s)",
		DivFn:    "_mm256_div_ps(%s, %s)",
		MinFn:    "_mm256_min_ps(%s, %s)",
		MaxFn:    "_mm256_max_ps(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Int32: "_mm256_cvttps_epi32(%s)",
		},
	}
}

func avx2I32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.AVX2,
		ElemType: snode.Int32,
		Include:  "#include <immintrin.h>",
		VecType:  "__m256i",
		Lanes:    8,
		LoadFn:   "_mm256_loadu_si256((const __m256i *)%s)",
		StoreFn:  "_mm256_storeu_si256((__m256i *)%s, %s)",
		SetFn:    "_mm256_set1_epi32(%s)",
		ListFn:   "_mm256_setr_epi32(%s)",
		AddFn:    "_mm256_add_epi32(%s, %s)",
		SubFn:    "_mm256_sub_epi32(%s, %s)",
		MulFn:    "_mm256_mullo_epi32(%s, %s)",
		MinFn:    "_mm256_min_epi32(%s, %s)",
		MaxFn:    "_mm256_max_epi32(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Float32: "_mm256_cvtepi32_ps(%s)",
		},
	}
}

// ---------------------------------------------------------------------------
// AVX-512
// ---------------------------------------------------------------------------

func avx512F32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.AVX512,
		ElemType: snode.Float32,
		Include:  "#include <immintrin.h>",
		VecType:  "__m512",
		Lanes:    16,
		LoadFn:   "_mm512_loadu_ps(%s)",
		StoreFn:  "_mm512_storeu_ps(%s, %s)",
		SetFn:    "_mm512_set1_ps(%s)",
		ListFn:   "_mm512_setr_ps(%s)",
		AddFn:    "_mm512_add_ps(%s, %s)",
		SubFn:    "_mm512_sub_ps(%s, %s)",
		MulFn:    "_mm512_mul_ps(%s, %s)",
		DivFn:    "_mm512_div_ps(%s, %s)",
		MinFn:    "_mm512_min_ps(%s, %s)",
		MaxFn:    "_mm512_max_ps(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Int32: "_mm512_cvttps_epi32(%s)",
		},
	}
}

func avx512I32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.AVX512,
		ElemType: snode.Int32,
		Include:  "#include <immintrin.h>",
		VecType:  "__m512i",
		Lanes:    16,
		LoadFn:   "_mm512_loadu_si512(%s)",
		StoreFn:  "_mm512_storeu_si512(%s, %s)",
		SetFn:    "_mm512_set1_epi32(%s)",
		ListFn:   "_mm512_setr_epi32(%s)",
		AddFn:    "_mm512_add_epi32(%s, %s)",
		SubFn:    "_mm512_sub_epi32(%s, %s)",
		MulFn:    "_mm512_mullo_epi32(%s, %s)",
		MinFn:    "_mm512_min_epi32(%s, %s)",
		MaxFn:    "_mm512_max_epi32(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Float32: "_mm512_cvtepi32_ps(%s)",
		},
	}
}

// ---------------------------------------------------------------------------
// NEON
// ---------------------------------------------------------------------------

func neonF32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.NEON,
		ElemType: snode.Float32,
		Include:  "#include <arm_neon.h>",
		VecType:  "float32x4_t",
		Lanes:    4,
		LoadFn:   "vld1q_f32(%s)",
		StoreFn:  "vst1q_f32(%s, %s)",
		SetFn:    "vdupq_n_f32(%s)",
		ListFn:   "(float32x4_t){%s}",
		AddFn:    "vaddq_f32(%s, %s)",
		SubFn:    "vsubq_f32(%s, %s)",
		MulFn:    "vmulq_f32(%s, %s)",
		DivFn:    "vdivq_f32(%s, %s)",
		MinFn:    "vminq_f32(%s, %s)",
		MaxFn:    "vmaxq_f32(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Int32: "vcvtq_s32_f32(%s)",
		},
	}
}

func neonI32Profile() *IntrinsicProfile {
	return &IntrinsicProfile{
		Target:   cpuinfo.NEON,
		ElemType: snode.Int32,
		Include:  "#include <arm_neon.h>",
		VecType:  "int32x4_t",
		Lanes:    4,
		LoadFn:   "vld1q_s32(%s)",
		StoreFn:  "vst1q_s32(%s, %s)",
		SetFn:    "vdupq_n_s32(%s)",
		ListFn:   "(int32x4_t){%s}",
		AddFn:    "vaddq_s32(%s, %s)",
		SubFn:    "vsubq_s32(%s, %s)",
		MulFn:    "vmulq_s32(%s, %s)",
		MinFn:    "vminq_s32(%s, %s)",
		MaxFn:    "vmaxq_s32(%s, %s)",
		ConvertFn: map[snode.DataType]string{
			snode.Float32: "vcvtq_f32_s32(%s)",
		},
	}
}
