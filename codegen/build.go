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
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/internal/disasm"
	"github.com/ajroetker/go-tlang/internal/project"
	"github.com/ajroetker/go-tlang/internal/workerpool"
	"github.com/ajroetker/go-tlang/jit"
	"github.com/ajroetker/go-tlang/snode"
)

// compileFlags are passed to the native compiler before the include path.
var compileFlags = []string{"-std=c++14", "-shared", "-fPIC", "-O3", "-march=native"}

// abiFlags follow the include path.
var abiFlags = []string{"-Wall", "-D_GLIBCXX_USE_CXX11_ABI=0", "-DTLANG_CPU"}

// Artifacts are the files a session writes.
type Artifacts struct {
	Source  string
	Library string
	Listing string

	// Layout is the generated layout header, empty when the session
	// includes a caller supplied one.
	Layout string
}

// Artifacts returns the paths Compile writes to.
func (s *Session) Artifacts() Artifacts {
	dir := s.opts.OutputDir
	a := Artifacts{
		Source:  filepath.Join(dir, s.kernel.Name+".cpp"),
		Library: filepath.Join(dir, s.kernel.Name+".so"),
		Listing: filepath.Join(dir, s.kernel.Name+".s"),
	}
	if s.ownLayout {
		a.Layout = filepath.Join(dir, s.layoutFile)
	}
	return a
}

// CompileArgs returns the compiler arguments building src into lib against
// the project's headers.
func CompileArgs(src, projectDir, lib string, extra ...string) []string {
	return lo.Flatten([][]string{
		{src},
		compileFlags,
		{"-I", project.HeaderDir(projectDir)},
		abiFlags,
		extra,
		{"-o", lib},
	})
}

// WriteSource writes the generated source, and the layout header when the
// session owns it, to the output directory.
func (s *Session) WriteSource() (Artifacts, error) {
	if err := s.alive(); err != nil {
		return Artifacts{}, err
	}
	src, err := s.Source()
	if err != nil {
		return Artifacts{}, err
	}
	art := s.Artifacts()
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return art, s.fail(fmt.Errorf("create output dir: %w", err))
	}
	if art.Layout != "" {
		if err := snode.WriteHeaderFile(art.Layout, s.root); err != nil {
			return art, s.fail(err)
		}
	}
	if err := os.WriteFile(art.Source, []byte(src), 0o644); err != nil {
		return art, s.fail(fmt.Errorf("write source: %w", err))
	}
	s.logf("%s: wrote %s", s.kernel.Name, art.Source)
	return art, nil
}

// Compile writes the source, runs the native compiler, writes the
// diagnostic listing and loads the kernel. A failing compiler is a fatal
// ErrBuild carrying the compiler output. The compiler is not interrupted
// once started; ctx is only checked before.
func (s *Session) Compile(ctx context.Context) (*jit.Kernel, error) {
	if err := s.expect("compile", stageTail); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	art, err := s.WriteSource()
	if err != nil {
		return nil, err
	}

	projectDir := s.opts.ProjectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, s.fail(fmt.Errorf("find project root: %w", err))
		}
		if projectDir, err = project.Root(wd); err != nil {
			return nil, s.fail(fmt.Errorf("find project root: %w", err))
		}
	}
	args := CompileArgs(art.Source, projectDir, art.Library, s.opts.ExtraFlags...)
	s.logf("%s %s", s.opts.Compiler, strings.Join(args, " "))
	cmd := exec.Command(s.opts.Compiler, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %s: %w\n%s", ErrBuild, art.Source, err, output))
	}

	if s.opts.Disassemble {
		if err := disasm.WriteListing(art.Library, s.kernel.Name, art.Listing); err != nil {
			s.logf("%s: no listing: %v", s.kernel.Name, err)
		}
	}
	k, err := jit.Open(art.Library, s.kernel.Name)
	if err != nil {
		return nil, s.fail(err)
	}
	s.stage = stageBuilt
	s.logf("%s: loaded from %s", s.kernel.Name, art.Library)
	return k, nil
}

// Build generates and compiles one kernel.
func Build(ctx context.Context, k *expr.Kernel, opts ...Option) (*jit.Kernel, error) {
	s, err := Generate(k, opts...)
	if err != nil {
		return nil, err
	}
	return s.Compile(ctx)
}

// BuildAll builds independent kernels in parallel, one session each. The
// result has one entry per kernel; entries of failed builds are nil. The
// kernels must have distinct names because each session writes files
// named after its kernel.
func BuildAll(ctx context.Context, kernels []*expr.Kernel, opts ...Option) ([]*jit.Kernel, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	for _, k := range kernels {
		if k == nil {
			return nil, fmt.Errorf("%w: nil kernel", ErrInvalidGraph)
		}
	}
	if dups := lo.FindDuplicatesBy(kernels, func(k *expr.Kernel) string { return k.Name }); len(dups) > 0 {
		names := lo.Map(dups, func(k *expr.Kernel, _ int) string { return k.Name })
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKernel, strings.Join(names, ", "))
	}

	pool := workerpool.New(o.Workers)
	defer pool.Close()

	out := make([]*jit.Kernel, len(kernels))
	err = pool.Each(ctx, len(kernels), func(ctx context.Context, i int) error {
		k, err := Build(ctx, kernels[i], opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", kernels[i].Name, err)
		}
		out[i] = k
		return nil
	})
	return out, err
}
