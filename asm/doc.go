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

// Package asm provides utility functions to assemble and disassemble MiniVM
// code.
//
// The dialect is token-oriented: input is split at whitespace (space, tab or
// newline) and newlines carry no meaning, so more than one instruction may
// appear on a line and a single instruction may span several. Comments run
// from '#' or ';' to the end of the line.
//
// Definitions:
//
//	.name [bytes]	label at the current opcode, with an optional operand
//			stack reservation consumed on call
//	$name <value>	named constant
//	@name		extern declaration; must precede any use
//
// Constant values and inline literals:
//
//	"…"	string, interned NUL-terminated into the data segment;
//		\n is a newline, \xDDD a decimal character code, any other
//		\c is c itself
//	u123	unsigned 64-bit
//	i-5	signed 64-bit ('s' is accepted as a legacy spelling)
//	f1.5	IEEE-754 double
//
// An inline literal in operand position defines an anonymous constant on the
// fly; identical literals share one pool entry.
//
// Supported assembler mnemonics:
//
//	rX rY rZ name registers, $c a constant (named or inline), @e an extern
//	and .L a label. Forward references to labels are fine; externs must be
//	declared first.
//
//	asm	operands	description
//	---	--------	------------------------------------------------------------
//	loadc	rX $c		copy constant pool entry c into rX
//	eload	rX @e		copy extern slot e into rX
//	estore	rX @e		copy rX into extern slot e
//	sstore	rX rY		store rX.u as 8 bytes at stack offset rY.u
//	sstoreu32 rX rY		store the low 4 bytes of rX.u, likewise u16, u8
//	sstorei32 rX rY		store rX.i truncated to 4 bytes, likewise i16, i8
//	sstoref32 rX rY		store rX.f narrowed to float32
//	sload	rX rY		load 8 bytes at stack offset rY.u into rX.u
//	sloadu32 rX rY		load 4 bytes zero-extended, likewise u16, u8
//	sloadi32 rX rY		load 4 bytes sign-extended, likewise i16, i8
//	sloadf32 rX rY		load a float32 widened to double
//	addi	rX rY rZ	rX.i = rY.i + rZ.i; likewise subi, muli, divi
//	addu	rX rY rZ	rX.u = rY.u + rZ.u; likewise subu, mulu, divu
//	addf	rX rY rZ	rX.f = rY.f + rZ.f; likewise subf, mulf, divf
//	mov	rX rY		bitwise copy of rY into rX
//	utoi	rX rY		rX.i = int64(rY.u); utof, itou, itof, ftoi, ftou alike
//	printi	rX		print rX.i and a newline; printu, printf alike
//	prints	rX		print the NUL-terminated string rX.u points at
//	cmp	rA rB		cmp = rB.i - rA.i
//	jump	.L		unconditional branch
//	jeq	.L		branch if cmp == 0
//	jne	.L		branch if cmp != 0
//	call	.L		push a frame, reserve L's stack bytes, branch
//	callext	@e		invoke the native function installed at e
//	yield	 		suspend; vm.(*Context).Resume continues after it
//	ret	 		pop a frame, restoring the caller's registers
package asm
