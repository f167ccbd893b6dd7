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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-tlang/codegen"
)

func newBuildCmd() *cobra.Command {
	var (
		flags      codegenFlags
		cxx        string
		projectDir string
		extra      []string
		workers    int
		noDisasm   bool
	)
	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Generate, compile and load kernels",
		Long: `Build generates every selected kernel, compiles it into a shared library
next to its source and loads it to check that the kernel symbol resolves.
Kernels are built in parallel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, kernels, err := flags.load(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd, file)
			if err != nil {
				return err
			}
			if cxx != "" {
				opts = append(opts, codegen.WithCompiler(cxx))
			}
			opts = append(opts,
				codegen.WithProjectDir(projectDir),
				codegen.WithExtraFlags(extra...),
				codegen.WithWorkers(workers),
				codegen.WithDisassemble(!noDisasm))

			built, err := codegen.BuildAll(cmd.Context(), kernels, opts...)
			var closeErrs []error
			for _, k := range built {
				if k == nil {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k.Name, k.Path)
				closeErrs = append(closeErrs, k.Close())
			}
			return errors.Join(err, errors.Join(closeErrs...))
		},
	}
	flags.register(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVar(&cxx, "cxx", "", "C++ compiler (default: $TLANG_CXX, $CXX or g++)")
	fs.StringVar(&projectDir, "project", "", "project root holding headers/ (default: discovered)")
	fs.StringSliceVar(&extra, "cflag", nil, "extra compiler flag, repeatable")
	fs.IntVarP(&workers, "jobs", "j", 0, "parallel builds (0: GOMAXPROCS)")
	fs.BoolVar(&noDisasm, "no-disasm", false, "skip the disassembly listing")
	return cmd
}
