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

package asm

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/shadowndacorner/minivm/internal/mvi"
	"github.com/shadowndacorner/minivm/vm"
)

// mnemonics is the reverse of the instruction table. Indexing by tag is safe
// because the instruction set is closed.
var mnemonics = func() map[vm.Op]struct {
	name string
	opds operands
} {
	m := make(map[vm.Op]struct {
		name string
		opds operands
	}, len(instructions))
	for name, ins := range instructions {
		m[ins.op] = struct {
			name string
			opds operands
		}{name, ins.opds}
	}
	return m
}()

// Disassemble writes the source form of the instruction at pc. Constant
// operands come out as their bare pool index since the image does not keep
// constant names.
func Disassemble(w io.Writer, p *vm.Program, pc uint32) error {
	opcodes := p.Opcodes()
	if pc >= uint32(len(opcodes)) {
		return errors.Errorf("pc %d out of range", pc)
	}
	code := &opcodes[pc]
	m, ok := mnemonics[code.Op]
	if !ok {
		return errors.Errorf("Unknown opcode %d at pc %d", code.Op, pc)
	}

	var err error
	switch m.opds {
	case opdNone:
		_, err = fmt.Fprint(w, m.name)
	case opdReg:
		_, err = fmt.Fprintf(w, "%s r%d", m.name, code.R0())
	case opdRegReg:
		_, err = fmt.Fprintf(w, "%s r%d r%d", m.name, code.R0(), code.R1())
	case opdRegRegReg:
		_, err = fmt.Fprintf(w, "%s r%d r%d r%d", m.name, code.R0(), code.R1(), code.R2())
	case opdRegConst:
		_, err = fmt.Fprintf(w, "%s r%d %d", m.name, code.R0(), code.Arg1)
	case opdRegExtern:
		_, err = fmt.Fprintf(w, "%s r%d @%s", m.name, code.R0(), p.ExternName(vm.ExternID(code.Arg1)))
	case opdExtern:
		_, err = fmt.Fprintf(w, "%s @%s", m.name, p.ExternName(vm.ExternID(code.Warg)))
	case opdLabel:
		_, err = fmt.Fprintf(w, "%s .%s", m.name, p.LabelName(vm.LabelID(code.Warg)))
	}
	return err
}

// DisassembleAll writes a full listing of the opcode stream, interleaving
// label definitions at their pcs.
func DisassembleAll(w io.Writer, p *vm.Program) error {
	ew := mvi.NewErrWriter(w)

	labelAt := make(map[uint32][]vm.LabelID)
	for i, l := range p.Labels() {
		labelAt[l.PC] = append(labelAt[l.PC], vm.LabelID(i))
	}

	for pc := range p.Opcodes() {
		for _, id := range labelAt[uint32(pc)] {
			l := p.Label(id)
			if l.StackAlloc > 0 {
				fmt.Fprintf(ew, ".%s %d\n", p.LabelName(id), l.StackAlloc)
			} else {
				fmt.Fprintf(ew, ".%s\n", p.LabelName(id))
			}
		}
		fmt.Fprintf(ew, "%6d\t", pc)
		if err := Disassemble(ew, p, uint32(pc)); err != nil {
			return err
		}
		fmt.Fprintln(ew)
	}
	return ew.Err
}
