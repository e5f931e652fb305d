// This file is part of minivm - https://github.com/shadowndacorner/minivm
//
// Copyright 2021 The minivm Authors
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

package vm

// Op is an instruction tag. The instruction set is closed.
type Op uint8

// MiniVM opcodes.
const (
	// constants
	OpLoadc Op = iota

	// externals
	OpEload
	OpEstore

	// stack frame stores
	OpSstore
	OpSstoreu32
	OpSstoreu16
	OpSstoreu8
	OpSstorei32
	OpSstorei16
	OpSstorei8
	OpSstoref32

	// stack frame loads
	OpSload
	OpSloadu32
	OpSloadu16
	OpSloadu8
	OpSloadi32
	OpSloadi16
	OpSloadi8
	OpSloadf32

	// arithmetic
	OpAddi
	OpAddu
	OpAddf
	OpSubi
	OpSubu
	OpSubf
	OpMuli
	OpMulu
	OpMulf
	OpDivi
	OpDivu
	OpDivf

	// register manipulation
	OpMov
	OpUtoi
	OpUtof
	OpItou
	OpItof
	OpFtoi
	OpFtou

	// debug
	OpPrinti
	OpPrintu
	OpPrintf
	OpPrints

	// control flow
	OpCmp
	OpJump
	OpJeq
	OpJne

	// execution
	OpCall
	OpCallext
	OpYield
	OpRet

	opCount
)

// FutureLabel marks a label operand that was used before its definition. The
// remaining bits index the assembler's pending-label list until the reference
// fixup pass rewrites Warg with the real LabelID.
const FutureLabel uint32 = 1 << 31

// Opcode is a fixed-size packed instruction. The four 4-bit register fields
// live in the low 16 bits of Warg; label instructions and callext read Warg
// whole as their label or extern index. Instructions with a register operand
// keep their constant or extern index in Arg1 (loadc, eload, estore). An
// instruction decodes Warg as registers or as an index, never both.
type Opcode struct {
	Warg uint32
	Arg1 uint16
	Op   Op
}

func (o *Opcode) r0() int { return int(o.Warg) & 0xf }
func (o *Opcode) r1() int { return int(o.Warg>>4) & 0xf }
func (o *Opcode) r2() int { return int(o.Warg>>8) & 0xf }

// R0 returns the first register field.
func (o *Opcode) R0() int { return o.r0() }

// R1 returns the second register field.
func (o *Opcode) R1() int { return o.r1() }

// R2 returns the third register field.
func (o *Opcode) R2() int { return o.r2() }

// SetRegs packs up to four register indices into the low 16 bits of Warg.
// Register indices are 4 bits wide, so they are in 0..15 by construction.
func (o *Opcode) SetRegs(regs ...uint8) {
	var w uint32
	for n, r := range regs {
		w |= uint32(r&0xf) << (4 * uint(n))
	}
	o.Warg = w
}
