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

// Package disasm turns the machine code of a built kernel into a Go
// assembler style listing. The listing is diagnostic only: it shows which
// vector instructions the compiler picked for the generated loops.
package disasm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/klauspost/asmfmt"
)

// Objdump is the disassembler invoked by Listing.
var Objdump = "objdump"

var (
	symbolLine = regexp.MustCompile(`^[0-9a-fA-F]+\s+<([^>]+)>:$`)
	dataLine   = regexp.MustCompile(`^\s*[0-9a-fA-F]+:\t([0-9a-fA-F ]+)(?:\t(.*))?$`)
)

// ErrSymbolNotFound is returned when the dump has no code for the symbol.
var ErrSymbolNotFound = errors.New("symbol not found in disassembly")

// Instruction is one decoded instruction.
type Instruction struct {
	// Encoding holds the bytes as printed by objdump: one 8-digit word on
	// fixed-width ISAs, individual bytes on x86.
	Encoding []string
	Text     string
}

// Listing disassembles the shared library lib and returns the formatted
// listing of symbol.
func Listing(lib, symbol string) ([]byte, error) {
	cmd := exec.Command(Objdump, "-d", lib)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	dump, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s -d %s: %w: %s", Objdump, lib, err, strings.TrimSpace(stderr.String()))
	}
	insts, err := Parse(string(dump), symbol)
	if err != nil {
		return nil, err
	}
	return Format(symbol, insts)
}

// WriteListing writes the listing of symbol in lib to out.
func WriteListing(lib, symbol, out string) error {
	listing, err := Listing(lib, symbol)
	if err != nil {
		return err
	}
	return os.WriteFile(out, listing, 0o644)
}

// Parse extracts the instructions of symbol from objdump -d output.
// Continuation lines, which objdump prints for long x86 encodings, are
// merged into the instruction they belong to.
func Parse(dump, symbol string) ([]Instruction, error) {
	var (
		insts  []Instruction
		inside bool
		found  bool
	)
	for _, line := range strings.Split(dump, "\n") {
		if m := symbolLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			inside = m[1] == symbol
			found = found || inside
			continue
		}
		if !inside {
			continue
		}
		m := dataLine.FindStringSubmatch(line)
		if m == nil {
			if strings.TrimSpace(line) == "" {
				inside = false
			}
			continue
		}
		enc := strings.Fields(m[1])
		text := strings.Join(strings.Fields(m[2]), " ")
		if text == "" && len(insts) > 0 {
			last := &insts[len(insts)-1]
			last.Encoding = append(last.Encoding, enc...)
			continue
		}
		insts = append(insts, Instruction{Encoding: enc, Text: text})
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return insts, nil
}

// Format renders instructions as a Go assembler TEXT block with the raw
// encoding as data directives and the mnemonic as a comment, then runs it
// through asmfmt.
func Format(symbol string, insts []Instruction) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// Code generated by go-tlang. DO NOT EDIT.\n\n")
	fmt.Fprintf(&sb, "TEXT ·%s(SB), $0-0\n", symbol)
	for _, in := range insts {
		sb.WriteString("\t")
		sb.WriteString(directives(in.Encoding))
		if in.Text != "" {
			sb.WriteString(" // ")
			sb.WriteString(in.Text)
		}
		sb.WriteString("\n")
	}
	out, err := asmfmt.Format(strings.NewReader(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("format listing of %s: %w", symbol, err)
	}
	return out, nil
}

func directives(enc []string) string {
	if len(enc) == 1 && len(enc[0]) == 8 {
		return "WORD $0x" + strings.ToLower(enc[0])
	}
	parts := make([]string, len(enc))
	for i, b := range enc {
		parts[i] = "BYTE $0x" + strings.ToLower(b)
	}
	return strings.Join(parts, "; ")
}
