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

package disasm

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const x86Dump = `
libscale.so:     file format elf64-x86-64


Disassembly of section .text:

0000000000001100 <other>:
    1100:	c3                   	ret

0000000000001110 <scale>:
    1110:	f3 0f 1e fa          	endbr64
    1114:	48 8b 44 24 08       	mov    0x8(%rsp),%rax
    1119:	66 0f 1f 84 00 00 00 	nopw   0x0(%rax,%rax,1)
    1120:	00 00 
    1122:	c3                   	ret

0000000000001130 <_fini>:
    1130:	c3                   	ret
`

const arm64Dump = `
0000000000000700 <scale>:
 700:	d10043ff 	sub	sp, sp, #0x10
 704:	d65f03c0 	ret
`

func TestParseX86(t *testing.T) {
	insts, err := Parse(x86Dump, "scale")
	require.NoError(t, err)
	require.Len(t, insts, 4)
	assert.Equal(t, Instruction{Encoding: []string{"f3", "0f", "1e", "fa"}, Text: "endbr64"}, insts[0])
	assert.Equal(t, "mov 0x8(%rsp),%rax", insts[1].Text)
	// The continuation line belongs to the nopw.
	assert.Len(t, insts[2].Encoding, 9)
	assert.Equal(t, "ret", insts[3].Text)
}

func TestParseMissingSymbol(t *testing.T) {
	_, err := Parse(x86Dump, "nothere")
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}

func TestFormatARM64(t *testing.T) {
	insts, err := Parse(arm64Dump, "scale")
	require.NoError(t, err)
	require.Len(t, insts, 2)

	out, err := Format("scale", insts)
	require.NoError(t, err)
	listing := string(out)
	assert.Contains(t, listing, "TEXT ·scale(SB)")
	assert.Contains(t, listing, "WORD $0xd10043ff")
	assert.Contains(t, listing, "// sub sp, sp, #0x10")
	assert.Equal(t, 1, strings.Count(listing, "TEXT"))
}

func TestFormatX86(t *testing.T) {
	insts, err := Parse(x86Dump, "scale")
	require.NoError(t, err)
	out, err := Format("scale", insts)
	require.NoError(t, err)
	assert.Contains(t, string(out), "BYTE $0xf3")
	assert.Contains(t, string(out), "// endbr64")
}

// Listing against a real library needs objdump and a compiler; the parse
// and format steps above cover the rest.
func TestListingMissingFile(t *testing.T) {
	if _, err := exec.LookPath(Objdump); err != nil {
		t.Skip("objdump not available")
	}
	_, err := Listing(filepath.Join(t.TempDir(), "missing.so"), "scale")
	assert.Error(t, err)
}
