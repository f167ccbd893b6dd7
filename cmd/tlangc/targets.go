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
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ajroetker/go-tlang/codegen"
	"github.com/ajroetker/go-tlang/internal/cpuinfo"
	"github.com/ajroetker/go-tlang/snode"
)

var targetColumns = []string{"level", "register bytes", "float32 lanes", "intrinsics", "native"}

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List SIMD levels and their intrinsic profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeTargets(cmd.OutOrStdout(), cpuinfo.Native())
		},
	}
}

func writeTargets(w io.Writer, native cpuinfo.Level) error {
	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(lo.Map(targetColumns, func(c string, _ int) string {
		return title.String(c)
	}), "\t"))
	for _, l := range cpuinfo.Levels {
		types := lo.FilterMap([]snode.DataType{snode.Float32, snode.Int32}, func(dt snode.DataType, _ int) (string, bool) {
			return dt.String(), codegen.Profile(l, dt) != nil
		})
		profiles := "-"
		if len(types) > 0 {
			profiles = strings.Join(types, ",")
		}
		marker := ""
		if l == native {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", l, l.Width(), l.Lanes(4), profiles, marker)
	}
	return tw.Flush()
}
