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
	"io"

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-tlang/codegen"
)

func newGenCmd() *cobra.Command {
	var (
		flags     codegenFlags
		printOnly bool
	)
	cmd := &cobra.Command{
		Use:   "gen FILE",
		Short: "Generate C++ kernel sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, kernels, err := flags.load(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd, file)
			if err != nil {
				return err
			}
			for _, k := range kernels {
				s, err := codegen.Generate(k, opts...)
				if err != nil {
					return fmt.Errorf("%s: %w", k.Name, err)
				}
				if printOnly {
					if err := printSource(cmd.OutOrStdout(), s); err != nil {
						return err
					}
					continue
				}
				art, err := s.WriteSource()
				if err != nil {
					return fmt.Errorf("%s: %w", k.Name, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), art.Source)
				if art.Layout != "" {
					fmt.Fprintln(cmd.OutOrStdout(), art.Layout)
				}
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVarP(&printOnly, "print", "p", false, "write sources to stdout instead of the output directory")
	return cmd
}

func printSource(w io.Writer, s *codegen.Session) error {
	src, err := s.Source()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "// %s\n%s", s.Kernel().Name, src)
	return err
}
