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

// Command tlangc generates and builds vectorized CPU kernels from YAML kernel
// descriptions.
//
// Usage:
//
//	tlangc gen kernels.yaml -o out            # C++ sources and layout headers
//	tlangc gen kernels.yaml --print -k saxpy  # one kernel's source to stdout
//	tlangc build kernels.yaml --target avx2 --unroll 2
//	tlangc targets                            # SIMD levels and intrinsic profiles
//
// Options in the file's options section are defaults; flags given on the
// command line override them.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tlangc",
		Short:        "Generate and build vectorized CPU kernels",
		SilenceUsage: true,
	}
	root.AddCommand(newGenCmd(), newBuildCmd(), newTargetsCmd())
	return root
}
