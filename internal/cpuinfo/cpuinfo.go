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

// Package cpuinfo reports the SIMD level of the machine kernels are built
// for. The generated source is compiled with -march=native, so the host is
// the target.
package cpuinfo

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Level is a SIMD instruction set family.
type Level int

const (
	// Scalar means no usable SIMD, or SIMD disabled through TLANG_NO_SIMD.
	Scalar Level = iota

	// SSE is x86-64 SSE4.1 (128-bit).
	SSE

	// AVX2 is x86-64 AVX2 (256-bit).
	AVX2

	// AVX512 is x86-64 AVX-512F (512-bit).
	AVX512

	// NEON is ARM Advanced SIMD (128-bit).
	NEON
)

// Levels lists every level in declaration order.
var Levels = []Level{Scalar, SSE, AVX2, AVX512, NEON}

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case Scalar:
		return "scalar"
	case SSE:
		return "sse"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	case NEON:
		return "neon"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLevel maps a level name, case-insensitively, to its Level. "native"
// returns the detected host level.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "native" || s == "" {
		return Native(), nil
	}
	for _, l := range Levels {
		if l.String() == s {
			return l, nil
		}
	}
	return Scalar, fmt.Errorf("unknown SIMD level %q", s)
}

// Width returns the vector register width in bytes. Scalar reports 16 so
// that lane counts stay meaningful.
func (l Level) Width() int {
	switch l {
	case AVX2:
		return 32
	case AVX512:
		return 64
	default:
		return 16
	}
}

// Lanes returns how many elements of elemSize bytes fit in one register.
func (l Level) Lanes(elemSize int) int {
	if elemSize <= 0 {
		return 0
	}
	return l.Width() / elemSize
}

// Includes returns the levels whose instructions are also available at l,
// widest first, l itself included.
func (l Level) Includes() []Level {
	switch l {
	case AVX512:
		return []Level{AVX512, AVX2, SSE}
	case AVX2:
		return []Level{AVX2, SSE}
	case SSE:
		return []Level{SSE}
	case NEON:
		return []Level{NEON}
	default:
		return nil
	}
}

// Supports reports whether code written for other runs at l.
func (l Level) Supports(other Level) bool {
	for _, x := range l.Includes() {
		if x == other {
			return true
		}
	}
	return other == Scalar
}

var (
	nativeOnce  sync.Once
	nativeLevel Level
)

// Native returns the SIMD level of the host, detected once.
func Native() Level {
	nativeOnce.Do(func() {
		if NoSimdEnv() {
			nativeLevel = Scalar
			return
		}
		nativeLevel = detect()
	})
	return nativeLevel
}

// NoSimdEnv checks if the TLANG_NO_SIMD environment variable is set.
// When set, detection reports Scalar regardless of CPU capabilities.
func NoSimdEnv() bool {
	val := os.Getenv("TLANG_NO_SIMD")
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}
