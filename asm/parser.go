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
	"strconv"

	"github.com/pkg/errors"

	"github.com/shadowndacorner/minivm/vm"
)

// operands describes the operand shape of an instruction.
type operands int

const (
	opdNone operands = iota
	opdReg
	opdRegReg
	opdRegRegReg
	opdRegConst
	opdRegExtern
	opdExtern
	opdLabel
)

type instruction struct {
	op   vm.Op
	opds operands
}

var instructions = map[string]instruction{
	"loadc": {vm.OpLoadc, opdRegConst},

	"eload":  {vm.OpEload, opdRegExtern},
	"estore": {vm.OpEstore, opdRegExtern},

	"sstore":    {vm.OpSstore, opdRegReg},
	"sstoreu32": {vm.OpSstoreu32, opdRegReg},
	"sstoreu16": {vm.OpSstoreu16, opdRegReg},
	"sstoreu8":  {vm.OpSstoreu8, opdRegReg},
	"sstorei32": {vm.OpSstorei32, opdRegReg},
	"sstorei16": {vm.OpSstorei16, opdRegReg},
	"sstorei8":  {vm.OpSstorei8, opdRegReg},
	"sstoref32": {vm.OpSstoref32, opdRegReg},

	"sload":    {vm.OpSload, opdRegReg},
	"sloadu32": {vm.OpSloadu32, opdRegReg},
	"sloadu16": {vm.OpSloadu16, opdRegReg},
	"sloadu8":  {vm.OpSloadu8, opdRegReg},
	"sloadi32": {vm.OpSloadi32, opdRegReg},
	"sloadi16": {vm.OpSloadi16, opdRegReg},
	"sloadi8":  {vm.OpSloadi8, opdRegReg},
	"sloadf32": {vm.OpSloadf32, opdRegReg},

	"addi": {vm.OpAddi, opdRegRegReg},
	"addu": {vm.OpAddu, opdRegRegReg},
	"addf": {vm.OpAddf, opdRegRegReg},
	"subi": {vm.OpSubi, opdRegRegReg},
	"subu": {vm.OpSubu, opdRegRegReg},
	"subf": {vm.OpSubf, opdRegRegReg},
	"muli": {vm.OpMuli, opdRegRegReg},
	"mulu": {vm.OpMulu, opdRegRegReg},
	"mulf": {vm.OpMulf, opdRegRegReg},
	"divi": {vm.OpDivi, opdRegRegReg},
	"divu": {vm.OpDivu, opdRegRegReg},
	"divf": {vm.OpDivf, opdRegRegReg},

	"mov":  {vm.OpMov, opdRegReg},
	"utoi": {vm.OpUtoi, opdRegReg},
	"utof": {vm.OpUtof, opdRegReg},
	"itou": {vm.OpItou, opdRegReg},
	"itof": {vm.OpItof, opdRegReg},
	"ftoi": {vm.OpFtoi, opdRegReg},
	"ftou": {vm.OpFtou, opdRegReg},

	"printi": {vm.OpPrinti, opdReg},
	"printu": {vm.OpPrintu, opdReg},
	"printf": {vm.OpPrintf, opdReg},
	"prints": {vm.OpPrints, opdReg},

	"cmp":  {vm.OpCmp, opdRegReg},
	"jump": {vm.OpJump, opdLabel},
	"jeq":  {vm.OpJeq, opdLabel},
	"jne":  {vm.OpJne, opdLabel},

	"call":    {vm.OpCall, opdLabel},
	"callext": {vm.OpCallext, opdExtern},
	"yield":   {vm.OpYield, opdNone},
	"ret":     {vm.OpRet, opdNone},
}

// parser drives the scanner and populates a program image. Constant names
// are tracked with their "$" sigil; inline literal operands are interned
// under synthetic "%_impl_" names, which cannot collide with source names.
type parser struct {
	s            scanner
	prog         *vm.Program
	constants    map[string]uint16
	strings      map[string]uint32
	futureLabels []string
	labelNames   []string
}

func newParser(src string) *parser {
	return &parser{
		s:         scanner{src: src},
		prog:      vm.NewProgram(),
		constants: make(map[string]uint16),
		strings:   make(map[string]uint32),
	}
}

// internString deduplicates s into the data segment and returns its offset.
func (p *parser) internString(s string) uint32 {
	if off, ok := p.strings[s]; ok {
		return off
	}
	off := p.prog.WriteStaticString(s)
	p.strings[s] = off
	return off
}

// parse consumes the whole source and runs the fixup passes.
func (p *parser) parse() error {
	for {
		tok, ok := p.s.scan()
		if !ok {
			break
		}
		var err error
		switch tok.kind {
		case tokLabel:
			err = p.readLabel(tok.text)
		case tokCname:
			err = p.readConstant(tok.text)
		case tokExtern:
			_, err = p.prog.DefineExtern(tok.text[1:])
		case tokIdent:
			err = p.readInstruction(tok.text)
		}
		if err != nil {
			return err
		}
	}
	return p.finalize()
}

// readLabel defines a label at the current opcode count. A numeric token
// immediately following the name is its stackalloc byte count.
func (p *parser) readLabel(text string) error {
	name := text[1:]
	id, err := p.prog.DefineLabel(name, uint32(len(p.prog.Opcodes())))
	if err != nil {
		return err
	}
	p.labelNames = append(p.labelNames, name)

	p.s.skipWhitespace()
	if isDigit(p.s.peek()) {
		tok, _ := p.s.scan()
		n, err := strconv.ParseUint(tok.text, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "Invalid stack allocation for label %s", name)
		}
		p.prog.Label(id).StackAlloc = uint32(n)
	}
	return nil
}

// readConstantValue parses the constant value at the scan position. The
// returned text is the source form of the value, used to derive implicit
// names for inline literals.
func (p *parser) readConstantValue() (c vm.Constant, text string, err error) {
	p.s.skipWhitespace()
	switch b := p.s.peek(); {
	case b == 0:
		return c, "", errors.New("Reached EOF")
	case b == '"':
		start := p.s.off
		str, err := p.s.readStringLiteral()
		if err != nil {
			return c, "", err
		}
		off := p.internString(str)
		return vm.Constant{Value: vm.UintWord(uint64(off)), IsDataOffset: true}, p.s.src[start:p.s.off], nil
	}

	tok, _ := p.s.scan()
	text = tok.text
	var w vm.Word
	switch text[0] {
	case 'u':
		var n uint64
		n, err = strconv.ParseUint(text[1:], 10, 64)
		w = vm.UintWord(n)
	case 's', 'i':
		var n int64
		n, err = strconv.ParseInt(text[1:], 10, 64)
		w = vm.IntWord(n)
	case 'f':
		var n float64
		n, err = strconv.ParseFloat(text[1:], 64)
		w = vm.FloatWord(n)
	default:
		return c, "", errors.Errorf("Value had unknown type: %s", text)
	}
	if err != nil {
		return c, "", err
	}
	return vm.Constant{Value: w}, text, nil
}

// defineConstant adds a pool entry under name. With ignoreDup set an
// existing entry is silently reused, which is what inline literals want.
func (p *parser) defineConstant(name string, c vm.Constant, ignoreDup bool) (uint16, error) {
	if idx, ok := p.constants[name]; ok {
		if ignoreDup {
			return idx, nil
		}
		return 0, errors.Errorf("Duplicate constant %s detected", name)
	}
	idx := p.prog.PushConstant(c)
	p.constants[name] = idx
	return idx, nil
}

// readConstant handles a $name definition.
func (p *parser) readConstant(name string) error {
	c, _, err := p.readConstantValue()
	if err != nil {
		return errors.Wrapf(err, "Failed to read constant [%s]", name)
	}
	_, err = p.defineConstant(name, c, false)
	return err
}

func (p *parser) regOperand() (uint8, error) {
	tok, ok := p.s.scan()
	if !ok {
		return 0, errors.New("Reached EOF")
	}
	if len(tok.text) < 2 || tok.text[0] != 'r' {
		return 0, errors.Errorf("Invalid register %s", tok.text)
	}
	n, err := strconv.ParseUint(tok.text[1:], 10, 8)
	if err != nil || n > 15 {
		return 0, errors.Errorf("Invalid register %s", tok.text)
	}
	return uint8(n), nil
}

// constOperand resolves a $name reference or defines an inline literal on
// the fly.
func (p *parser) constOperand() (uint16, error) {
	p.s.skipWhitespace()
	if p.s.peek() == '$' {
		tok, _ := p.s.scan()
		idx, ok := p.constants[tok.text]
		if !ok {
			return 0, errors.Errorf("Unknown constant %s", tok.text)
		}
		return idx, nil
	}
	c, text, err := p.readConstantValue()
	if err != nil {
		return 0, err
	}
	return p.defineConstant("%_impl_"+text, c, true)
}

// labelOperand resolves a .name reference. A use before the definition is
// encoded as an index into futureLabels with the FutureLabel bit set; the
// reference fixup pass rewrites it once all labels are known.
func (p *parser) labelOperand() (uint32, error) {
	tok, ok := p.s.scan()
	if !ok {
		return 0, errors.New("Reached EOF")
	}
	if tok.kind != tokLabel {
		return 0, errors.Errorf("Expected label, got %s", tok.text)
	}
	name := tok.text[1:]
	if id, ok := p.prog.LookupLabel(name); ok {
		return uint32(id), nil
	}
	p.futureLabels = append(p.futureLabels, name)
	return uint32(len(p.futureLabels)-1) | vm.FutureLabel, nil
}

// externOperand resolves an @name reference. Externs have no forward
// references: the declaration must precede the use.
func (p *parser) externOperand() (vm.ExternID, error) {
	tok, ok := p.s.scan()
	if !ok {
		return 0, errors.New("Reached EOF")
	}
	if tok.kind != tokExtern {
		return 0, errors.Errorf("Expected extern, got %s", tok.text)
	}
	id, ok := p.prog.LookupExtern(tok.text[1:])
	if !ok {
		return 0, errors.Errorf("Unknown extern %s", tok.text)
	}
	return id, nil
}

// readInstruction decodes one mnemonic and its operands into an opcode.
func (p *parser) readInstruction(mnemonic string) error {
	ins, ok := instructions[mnemonic]
	if !ok {
		return errors.Errorf("Unknown instruction %s", mnemonic)
	}
	code := vm.Opcode{Op: ins.op}
	var err error
	switch ins.opds {
	case opdNone:

	case opdReg:
		var r uint8
		if r, err = p.regOperand(); err == nil {
			code.SetRegs(r)
		}

	case opdRegReg:
		var a, b uint8
		if a, err = p.regOperand(); err == nil {
			if b, err = p.regOperand(); err == nil {
				code.SetRegs(a, b)
			}
		}

	case opdRegRegReg:
		var a, b, c uint8
		if a, err = p.regOperand(); err == nil {
			if b, err = p.regOperand(); err == nil {
				if c, err = p.regOperand(); err == nil {
					code.SetRegs(a, b, c)
				}
			}
		}

	case opdRegConst:
		var r uint8
		var idx uint16
		if r, err = p.regOperand(); err == nil {
			if idx, err = p.constOperand(); err == nil {
				code.SetRegs(r)
				code.Arg1 = idx
			}
		}

	case opdRegExtern:
		var r uint8
		var id vm.ExternID
		if r, err = p.regOperand(); err == nil {
			if id, err = p.externOperand(); err == nil {
				code.SetRegs(r)
				code.Arg1 = uint16(id)
			}
		}

	case opdExtern:
		var id vm.ExternID
		if id, err = p.externOperand(); err == nil {
			code.Warg = uint32(id)
		}

	case opdLabel:
		code.Warg, err = p.labelOperand()
	}
	if err != nil {
		return errors.Wrapf(err, "Failed to decode %s", mnemonic)
	}
	p.prog.PushOpcode(code)
	return nil
}

// finalize runs the post-processing passes: intern label names, resolve
// forward label references, validate every encoded index, and flip string
// constants from data offsets to pointers. The data segment takes its last
// append in the first pass, so the pointer pass sees stable offsets.
func (p *parser) finalize() error {
	for i, name := range p.labelNames {
		p.prog.Label(vm.LabelID(i)).NameOffset = p.internString(name)
	}

	opcodes := p.prog.Opcodes()
	for pc := range opcodes {
		code := &opcodes[pc]
		switch code.Op {
		case vm.OpCall, vm.OpJump, vm.OpJeq, vm.OpJne:
			if code.Warg&vm.FutureLabel != 0 {
				name := p.futureLabels[code.Warg&^vm.FutureLabel]
				id, ok := p.prog.LookupLabel(name)
				if !ok {
					return errors.Errorf("Jump to unknown label %s", name)
				}
				code.Warg = uint32(id)
			}
			if code.Warg >= uint32(len(p.prog.Labels())) {
				return errors.Errorf("Label index %d out of range at pc %d", code.Warg, pc)
			}
		case vm.OpCallext:
			if code.Warg >= uint32(len(p.prog.Externs())) {
				return errors.Errorf("Extern index %d out of range at pc %d", code.Warg, pc)
			}
		case vm.OpEload, vm.OpEstore:
			if int(code.Arg1) >= len(p.prog.Externs()) {
				return errors.Errorf("Extern index %d out of range at pc %d", code.Arg1, pc)
			}
		case vm.OpLoadc:
			if int(code.Arg1) >= len(p.prog.Constants()) {
				return errors.Errorf("Constant index %d out of range at pc %d", code.Arg1, pc)
			}
		}
	}

	for i, c := range p.prog.Constants() {
		if c.IsDataOffset {
			c.IsDataOffset = false
			c.IsPointer = true
			p.prog.SetConstant(uint16(i), c)
		}
	}
	return nil
}
