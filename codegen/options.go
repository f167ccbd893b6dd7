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
	"io"
	"os"
	"path/filepath"

	"github.com/ajroetker/go-tlang/internal/cpuinfo"
)

// Mode selects how expression nodes are lowered.
type Mode int

const (
	// ModeVV materializes fixed-width VV<W, T> values from the runtime
	// header and leaves instruction selection to the native compiler.
	ModeVV Mode = iota

	// ModeIntrinsics lowers directly to the target's vector intrinsics.
	ModeIntrinsics
)

func (m Mode) String() string {
	switch m {
	case ModeVV:
		return "vv"
	case ModeIntrinsics:
		return "intrinsics"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "vv" or "intrinsics" to its Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "vv", "":
		return ModeVV, nil
	case "intrinsics":
		return ModeIntrinsics, nil
	}
	return ModeVV, fmt.Errorf("unknown lowering mode %q", s)
}

// Options configures a Session.
type Options struct {
	// VectorWidth is the number of elements one batch covers: the loop
	// step, the address stride unit and the lane count of every value.
	VectorWidth int

	// GroupSize is the batch granularity of values that do not say
	// otherwise. It must divide VectorWidth.
	GroupSize int

	// Unroll is the number of batches issued per loop iteration.
	Unroll int

	// Prefetch is the prefetch distance in batches. Zero disables prefetch.
	Prefetch int

	Mode Mode

	// Target selects the intrinsic profile in ModeIntrinsics.
	Target cpuinfo.Level

	// LayoutFile is the layout descriptor header the source includes. When
	// empty, Compile writes <kernel>_layout.h next to the source.
	LayoutFile string

	// OutputDir receives the source, library and listing.
	OutputDir string

	// ProjectDir is the project root whose headers directory is on the
	// include path. Empty means discover it.
	ProjectDir string

	// Compiler is the native C++ compiler.
	Compiler string

	// ExtraFlags are appended to the compiler command line.
	ExtraFlags []string

	// Disassemble writes a diagnostic listing after a successful build.
	Disassemble bool

	// Workers bounds the parallel sessions of BuildAll. Zero means
	// GOMAXPROCS.
	Workers int

	// Log receives progress messages. Nil is silent.
	Log io.Writer
}

// Option configures a Session.
type Option func(*Options)

// WithVectorWidth sets the vector width.
func WithVectorWidth(w int) Option {
	return func(o *Options) {
		o.VectorWidth = w
	}
}

// WithGroupSize sets the default group size.
func WithGroupSize(gs int) Option {
	return func(o *Options) {
		o.GroupSize = gs
	}
}

// WithUnroll sets the unroll factor.
func WithUnroll(u int) Option {
	return func(o *Options) {
		o.Unroll = u
	}
}

// WithPrefetch sets the prefetch distance in batches.
func WithPrefetch(d int) Option {
	return func(o *Options) {
		o.Prefetch = d
	}
}

// WithMode sets the lowering mode.
func WithMode(m Mode) Option {
	return func(o *Options) {
		o.Mode = m
	}
}

// WithTarget sets the SIMD level intrinsics are selected for.
func WithTarget(l cpuinfo.Level) Option {
	return func(o *Options) {
		o.Target = l
	}
}

// WithLayoutFile makes the source include an existing layout header.
func WithLayoutFile(path string) Option {
	return func(o *Options) {
		o.LayoutFile = path
	}
}

// WithOutputDir sets the directory build artifacts are written to.
func WithOutputDir(dir string) Option {
	return func(o *Options) {
		o.OutputDir = dir
	}
}

// WithProjectDir sets the project root.
func WithProjectDir(dir string) Option {
	return func(o *Options) {
		o.ProjectDir = dir
	}
}

// WithCompiler sets the native compiler.
func WithCompiler(cxx string) Option {
	return func(o *Options) {
		o.Compiler = cxx
	}
}

// WithExtraFlags appends flags to the compiler command line.
func WithExtraFlags(flags ...string) Option {
	return func(o *Options) {
		o.ExtraFlags = append(o.ExtraFlags, flags...)
	}
}

// WithDisassemble enables or disables the diagnostic listing.
func WithDisassemble(on bool) Option {
	return func(o *Options) {
		o.Disassemble = on
	}
}

// WithWorkers bounds BuildAll's parallelism.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithLog sets the progress log sink.
func WithLog(w io.Writer) Option {
	return func(o *Options) {
		o.Log = w
	}
}

// DefaultCompiler returns $TLANG_CXX, else $CXX, else g++.
func DefaultCompiler() string {
	if cxx := os.Getenv("TLANG_CXX"); cxx != "" {
		return cxx
	}
	if cxx := os.Getenv("CXX"); cxx != "" {
		return cxx
	}
	return "g++"
}

// NewOptions applies opts over the defaults: native target, one register
// of float32 per batch, group size equal to the width, no unroll or
// prefetch, vv lowering, artifacts under the system temp directory.
func NewOptions(opts ...Option) (Options, error) {
	target := cpuinfo.Native()
	o := Options{
		Unroll:      1,
		Mode:        ModeVV,
		Target:      target,
		Compiler:    DefaultCompiler(),
		OutputDir:   filepath.Join(os.TempDir(), "tlang"),
		Disassemble: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.VectorWidth == 0 {
		o.VectorWidth = o.Target.Lanes(4)
	}
	if o.GroupSize == 0 {
		o.GroupSize = o.VectorWidth
	}
	return o, o.validate()
}

func (o Options) validate() error {
	switch {
	case o.VectorWidth <= 0:
		return fmt.Errorf("vector width %d must be positive", o.VectorWidth)
	case o.GroupSize <= 0 || o.VectorWidth%o.GroupSize != 0:
		return fmt.Errorf("%w: group size %d does not divide vector width %d", ErrGroupSizeMismatch, o.GroupSize, o.VectorWidth)
	case o.Unroll <= 0:
		return fmt.Errorf("unroll %d must be positive", o.Unroll)
	case o.Prefetch < 0:
		return fmt.Errorf("prefetch distance %d must not be negative", o.Prefetch)
	case o.Mode != ModeVV && o.Mode != ModeIntrinsics:
		return fmt.Errorf("unknown lowering mode %v", o.Mode)
	}
	return nil
}
