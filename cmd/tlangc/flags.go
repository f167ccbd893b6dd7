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

package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajroetker/go-tlang/codegen"
	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/internal/cpuinfo"
	"github.com/ajroetker/go-tlang/internal/kernelfile"
)

// codegenFlags are the code generation flags shared by gen and build.
type codegenFlags struct {
	kernels []string

	width     int
	groupSize int
	unroll    int
	prefetch  int
	mode      string
	target    string
	layout    string
	out       string

	verbose bool
}

func (f *codegenFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.kernels, "kernel", "k", nil, "kernels to process (default: all in the file)")
	fs.IntVarP(&f.width, "width", "w", 0, "vector width in elements (default: target register width / 4 bytes)")
	fs.IntVar(&f.groupSize, "group-size", 0, "batch group size (default: vector width)")
	fs.IntVarP(&f.unroll, "unroll", "u", 1, "batches issued per loop iteration")
	fs.IntVar(&f.prefetch, "prefetch", 0, "prefetch distance in batches (0: off)")
	fs.StringVarP(&f.mode, "mode", "m", "vv", "lowering mode: vv or intrinsics")
	fs.StringVarP(&f.target, "target", "t", "native", "SIMD level: "+strings.Join(lo.Map(cpuinfo.Levels, func(l cpuinfo.Level, _ int) string { return l.String() }), ", ")+" or native")
	fs.StringVar(&f.layout, "layout", "", "layout header to include instead of generating <kernel>_layout.h")
	fs.StringVarP(&f.out, "out", "o", ".", "output directory")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log progress to stderr")
}

// options returns the file's options followed by the flags the user set.
func (f *codegenFlags) options(cmd *cobra.Command, file *kernelfile.File) ([]codegen.Option, error) {
	opts, err := file.Options.CodegenOptions()
	if err != nil {
		return nil, fmt.Errorf("file options: %w", err)
	}
	fs := cmd.Flags()
	if fs.Changed("target") {
		l, err := cpuinfo.ParseLevel(f.target)
		if err != nil {
			return nil, err
		}
		opts = append(opts, codegen.WithTarget(l))
	}
	if fs.Changed("mode") {
		m, err := codegen.ParseMode(f.mode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, codegen.WithMode(m))
	}
	if fs.Changed("width") {
		opts = append(opts, codegen.WithVectorWidth(f.width))
	}
	if fs.Changed("group-size") {
		opts = append(opts, codegen.WithGroupSize(f.groupSize))
	}
	if fs.Changed("unroll") {
		opts = append(opts, codegen.WithUnroll(f.unroll))
	}
	if fs.Changed("prefetch") {
		opts = append(opts, codegen.WithPrefetch(f.prefetch))
	}
	opts = append(opts, codegen.WithOutputDir(f.out), codegen.WithLayoutFile(f.layout))
	if f.verbose {
		opts = append(opts, codegen.WithLog(cmd.ErrOrStderr()))
	}
	return opts, nil
}

// load reads path and returns the selected kernels in file order.
func (f *codegenFlags) load(path string) (*kernelfile.File, []*expr.Kernel, error) {
	file, err := kernelfile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	_, kernels, err := file.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(f.kernels) == 0 {
		return file, kernels, nil
	}
	names := lo.Map(kernels, func(k *expr.Kernel, _ int) string { return k.Name })
	if missing, _ := lo.Difference(f.kernels, names); len(missing) > 0 {
		return nil, nil, fmt.Errorf("%s: no kernel named %s", path, strings.Join(missing, ", "))
	}
	return file, lo.Filter(kernels, func(k *expr.Kernel, _ int) bool {
		return lo.Contains(f.kernels, k.Name)
	}), nil
}
