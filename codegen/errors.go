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

import "errors"

// Faults of a generation session. Every one of them aborts the session it
// occurs in; later calls on that session fail with ErrSessionState.
var (
	// ErrUnresolvedAddress is returned for an address whose buffer is
	// unassigned or outside the context's buffer table.
	ErrUnresolvedAddress = errors.New("unresolved address")

	// ErrAdapterSlotRange is returned for adapter slots outside [0, 1000).
	ErrAdapterSlotRange = errors.New("adapter slot out of range")

	// ErrAdapterRedeclared is returned when a slot is declared twice.
	ErrAdapterRedeclared = errors.New("adapter slot already declared")

	// ErrUnknownAdapter is returned when a node uses an undeclared slot.
	ErrUnknownAdapter = errors.New("adapter slot not declared")

	// ErrMalformedTree is returned when the kernel's entry node has no
	// loop-bearing ancestor below the root.
	ErrMalformedTree = errors.New("malformed layout tree")

	// ErrGroupSizeMismatch is returned when values of different group sizes
	// meet without an adapter between them.
	ErrGroupSizeMismatch = errors.New("group size mismatch")

	// ErrUnsupportedOp is returned for ops the session's lowering cannot
	// express.
	ErrUnsupportedOp = errors.New("unsupported operation")

	// ErrNoProfile is returned when intrinsics lowering has no instruction
	// profile for the target, vector width and element type.
	ErrNoProfile = errors.New("no intrinsic profile")

	// ErrInvalidGraph is returned for expression graphs that are not well
	// formed (operand order, types, constant list lengths, ...).
	ErrInvalidGraph = errors.New("invalid expression graph")

	// ErrBuild is returned when the native compiler exits with an error.
	ErrBuild = errors.New("native build failed")

	// ErrSessionState is returned for calls made out of order or on a
	// session that already failed.
	ErrSessionState = errors.New("invalid session state")

	// ErrDuplicateKernel is returned by BuildAll when two kernels share a
	// name, and therefore their output files.
	ErrDuplicateKernel = errors.New("duplicate kernel name")
)
