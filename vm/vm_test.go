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

package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shadowndacorner/minivm/asm"
	"github.com/shadowndacorner/minivm/vm"
)

func setup(t *testing.T, name, code string) (*vm.Context, *bytes.Buffer) {
	t.Helper()
	p, err := asm.Assemble(name, strings.NewReader(code))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	var b bytes.Buffer
	c, err := vm.NewContext(p, vm.Output(&b))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return c, &b
}

func check(t *testing.T, name string, c *vm.Context, b *bytes.Buffer, out string) {
	t.Helper()
	if err := c.RunFrom("main"); err != nil {
		t.Errorf("%s: %+v", name, err)
		return
	}
	if got := b.String(); got != out {
		t.Errorf("%s: expected output %q, got %q", name, out, got)
	}
}

var tests = [...]struct {
	name string
	code string
	out  string
}{
	{"addi", "$a i40 $b i2 .main loadc r0 $a loadc r1 $b addi r2 r0 r1 printi r2 ret", "42\n"},
	{"subi", "$a i2 $b i5 .main loadc r0 $a loadc r1 $b subi r2 r0 r1 printi r2 ret", "-3\n"},
	{"muli", ".main loadc r0 i-6 loadc r1 i7 muli r2 r0 r1 printi r2 ret", "-42\n"},
	{"divi", ".main loadc r0 i7 loadc r1 i2 divi r2 r0 r1 printi r2 ret", "3\n"},
	{"addu-wrap", ".main loadc r0 u18446744073709551615 loadc r1 u1 addu r2 r0 r1 printu r2 ret", "0\n"},
	{"subu", ".main loadc r0 u10 loadc r1 u4 subu r2 r0 r1 printu r2 ret", "6\n"},
	{"mulu", ".main loadc r0 u6 loadc r1 u7 mulu r2 r0 r1 printu r2 ret", "42\n"},
	{"divu", ".main loadc r0 u7 loadc r1 u2 divu r2 r0 r1 printu r2 ret", "3\n"},
	{"addf", ".main loadc r0 f1.25 loadc r1 f2.25 addf r2 r0 r1 printf r2 ret", "3.500000\n"},
	{"subf", ".main loadc r0 f1.5 loadc r1 f2 subf r2 r0 r1 printf r2 ret", "-0.500000\n"},
	{"mulf", ".main loadc r0 f1.5 loadc r1 f4 mulf r2 r0 r1 printf r2 ret", "6.000000\n"},
	{"divf", ".main loadc r0 f7 loadc r1 f2 divf r2 r0 r1 printf r2 ret", "3.500000\n"},

	{"mov", ".main loadc r0 f1.5 mov r1 r0 printf r1 ret", "1.500000\n"},
	{"utoi", ".main loadc r0 u7 utoi r1 r0 printi r1 ret", "7\n"},
	{"utof", ".main loadc r0 u3 utof r1 r0 printf r1 ret", "3.000000\n"},
	{"itou", ".main loadc r0 i-1 itou r1 r0 printu r1 ret", "18446744073709551615\n"},
	{"itof", ".main loadc r0 i7 itof r1 r0 printf r1 ret", "7.000000\n"},
	{"ftoi", ".main loadc r0 f3.7 ftoi r1 r0 printi r1 ret", "3\n"},
	{"ftou", ".main loadc r0 f2.5 ftou r1 r0 printu r1 ret", "2\n"},

	{"prints", `$s "hello, world" .main loadc r0 $s prints r0 ret`, "hello, world\n"},
	{"prints-escapes", `$s "a\nb\x65" .main loadc r0 $s prints r0 ret`, "a\nbA\n"},

	{"jump", ".main jump .over printi r0 .over loadc r0 i1 printi r0 ret", "1\n"},
	{"jeq-taken", `$x i5 $y i5
		.main
		  loadc r0 $x
		  loadc r1 $y
		  cmp r0 r1
		  jeq .eq
		  printi r0
		  ret
		.eq
		  printi r1
		  ret`, "5\n"},
	{"jeq-not-taken", ".main loadc r0 i5 loadc r1 i3 cmp r0 r1 jeq .eq printi r0 ret .eq printi r1 ret", "5\n"},
	{"jne-taken", ".main loadc r0 i5 loadc r1 i3 cmp r0 r1 jne .ne printi r0 ret .ne printi r1 ret", "3\n"},
	{"jne-not-taken", ".main loadc r0 i5 loadc r1 i5 cmp r0 r1 jne .ne printi r0 ret .ne printi r1 ret", "5\n"},

	{"sstore-sload", ".main 8 loadc r0 u123456789 loadc r1 u0 sstore r0 r1 sload r2 r1 printu r2 ret", "123456789\n"},
	{"sstoreu32", ".main 8 loadc r0 u4294967295 loadc r1 u0 sstoreu32 r0 r1 sloadu32 r2 r1 printu r2 ret", "4294967295\n"},
	{"sstoreu16", ".main 8 loadc r0 u65535 loadc r1 u0 sstoreu16 r0 r1 sloadu16 r2 r1 printu r2 ret", "65535\n"},
	{"sloadu8", ".main 8 loadc r0 u200 loadc r1 u3 sstoreu8 r0 r1 sloadu8 r2 r1 printu r2 ret", "200\n"},
	{"sloadi8", ".main 8 loadc r0 u200 loadc r1 u3 sstoreu8 r0 r1 sloadi8 r2 r1 printi r2 ret", "-56\n"},
	{"sstorei16", ".main 8 loadc r0 i-2 loadc r1 u0 sstorei16 r0 r1 sloadi16 r2 r1 printi r2 ret", "-2\n"},
	{"sstorei16-u", ".main 8 loadc r0 i-2 loadc r1 u0 sstorei16 r0 r1 sloadu16 r2 r1 printu r2 ret", "65534\n"},
	{"sstorei32", ".main 8 loadc r0 i-100000 loadc r1 u0 sstorei32 r0 r1 sloadi32 r2 r1 printi r2 ret", "-100000\n"},
	{"sstoref32", ".main 8 loadc r0 f1.5 loadc r1 u0 sstoref32 r0 r1 sloadf32 r2 r1 printf r2 ret", "1.500000\n"},

	{"comments", "# leading\n.main ; same line\n loadc r0 i1 # trailing\n printi r0 ret", "1\n"},
}

func TestCore(t *testing.T) {
	for _, test := range tests {
		c, b := setup(t, test.name, test.code)
		check(t, test.name, c, b, test.out)
		if t.Failed() {
			// disasm, to see what the assembler actually produced
			p, err := asm.Assemble(test.name, strings.NewReader(test.code))
			if err == nil {
				var d bytes.Buffer
				if asm.DisassembleAll(&d, p) == nil {
					t.Log(test.name + ":\n" + d.String())
				}
			}
		}
	}
}

func TestCallRetStackAlloc(t *testing.T) {
	code := `
	.main
	  loadc r0 u57005
	  call .store
	  printu r0
	  ret
	.store 8
	  loadc r1 u12345
	  loadc r2 u0
	  sstore r1 r2
	  sload r3 r2
	  printu r3
	  ret`
	c, b := setup(t, "call-ret", code)
	check(t, "call-ret", c, b, "12345\n57005\n")
	if d := c.Depth(); d != 0 {
		t.Errorf("call stack not drained: depth %d", d)
	}
}

func TestCallPreservesRegisters(t *testing.T) {
	// the callee clobbers every register it can reach; ret must restore the
	// caller's file bit for bit
	code := `
	.main
	  loadc r0 f3.25
	  loadc r1 i-9
	  call .clobber
	  printf r0
	  printi r1
	  ret
	.clobber
	  loadc r0 u1
	  loadc r1 u2
	  loadc r2 u3
	  ret`
	c, b := setup(t, "preserve", code)
	check(t, "preserve", c, b, "3.250000\n-9\n")
}

func TestYieldResume(t *testing.T) {
	code := `
	.main
	  loadc r0 i1
	  printi r0
	  yield
	  loadc r0 i2
	  printi r0
	  ret`
	c, b := setup(t, "yield", code)
	if err := c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	if !c.DidYield() {
		t.Fatal("expected DidYield after run")
	}
	if got := b.String(); got != "1\n" {
		t.Fatalf("before resume: expected %q, got %q", "1\n", got)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("%+v", err)
	}
	if c.DidYield() {
		t.Fatal("expected DidYield false after resume to completion")
	}
	if got := b.String(); got != "1\n2\n" {
		t.Fatalf("after resume: expected %q, got %q", "1\n2\n", got)
	}

	// resuming a terminated context is a no-op
	if err := c.Resume(); err != nil {
		t.Fatalf("%+v", err)
	}
	if got := b.String(); got != "1\n2\n" {
		t.Fatalf("after second resume: expected %q, got %q", "1\n2\n", got)
	}
}

func TestYieldPreservesState(t *testing.T) {
	code := `
	.main 8
	  loadc r0 u777
	  loadc r1 u0
	  sstore r0 r1
	  yield
	  sload r2 r1
	  printu r2
	  ret`
	c, b := setup(t, "yield-state", code)
	if err := c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("%+v", err)
	}
	if got := b.String(); got != "777\n" {
		t.Fatalf("expected %q, got %q", "777\n", got)
	}
}

func TestExternRoundTrip(t *testing.T) {
	code := `
	@v
	.main
	  eload r0 @v
	  loadc r1 f2
	  mulf r0 r0 r1
	  estore r0 @v
	  ret`
	p, err := asm.Assemble("extern", strings.NewReader(code))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err = p.SetFloatExtern("v", 350); err != nil {
		t.Fatalf("%+v", err)
	}
	c, err := vm.NewContext(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err = c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	f, err := p.FloatExtern("v")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if f != 700 {
		t.Errorf("expected 700, got %v", f)
	}
}

func TestExternAccessors(t *testing.T) {
	code := "@v .main ret"
	p, err := asm.Assemble("accessors", strings.NewReader(code))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err = p.SetSignedExtern("v", -3); err != nil {
		t.Fatalf("%+v", err)
	}
	if n, _ := p.SignedExtern("v"); n != -3 {
		t.Errorf("signed view: expected -3, got %d", n)
	}
	if u, _ := p.UnsignedExtern("v"); u != ^uint64(2) {
		t.Errorf("unsigned view: expected %d, got %d", ^uint64(2), u)
	}
	if err = p.SetUnsignedExtern("nope", 1); err == nil {
		t.Error("expected error for unknown extern")
	}
	if _, err = p.ExternWord("nope"); err == nil {
		t.Error("expected error for unknown extern")
	}
}

func TestRunFromUnknownLabel(t *testing.T) {
	c, _ := setup(t, "unknown-label", ".main ret")
	err := c.RunFrom("nope")
	if err == nil || !strings.Contains(err.Error(), "Unknown label nope") {
		t.Errorf("expected unknown label error, got %v", err)
	}
}

func TestEmptyEntry(t *testing.T) {
	c, b := setup(t, "empty", ".main")
	if err := c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	if c.DidYield() {
		t.Error("empty program must not yield")
	}
	if c.InstructionCount() != 0 {
		t.Errorf("expected 0 instructions, got %d", c.InstructionCount())
	}
	if b.Len() != 0 {
		t.Errorf("unexpected output %q", b.String())
	}
}

func TestStackAllocWatermark(t *testing.T) {
	// the probe records sp as seen inside each frame. main carves 8 bytes at
	// watermark 0; the callee's region starts where main's ends.
	var seen []uint32
	code := `
	@probe
	.main 8
	  callext @probe
	  call .sub
	  ret
	.sub 8
	  callext @probe
	  ret`
	p, err := asm.Assemble("watermark", strings.NewReader(code))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	err = p.SetExternFunc("probe", func(regs *vm.Registers) {
		seen = append(seen, regs.SP)
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c, err := vm.NewContext(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err = c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 8 {
		t.Errorf("expected watermarks [0 8], got %v", seen)
	}
	if got := len(c.Stack()); got != 16 {
		t.Errorf("expected 16 stack bytes, got %d", got)
	}
}

func TestStackAllocZero(t *testing.T) {
	var seen []uint32
	code := `
	@probe
	.main
	  call .sub
	  ret
	.sub
	  callext @probe
	  ret`
	p, err := asm.Assemble("alloc-zero", strings.NewReader(code))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	err = p.SetExternFunc("probe", func(regs *vm.Registers) {
		seen = append(seen, regs.SP)
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c, err := vm.NewContext(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err = c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	if len(seen) != 1 || seen[0] != 0 {
		t.Errorf("expected sp 0, got %v", seen)
	}
	if got := len(c.Stack()); got != 0 {
		t.Errorf("expected empty stack, got %d bytes", got)
	}
}

func TestStackReserveOption(t *testing.T) {
	p, err := asm.Assemble("reserve", strings.NewReader(".main ret"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c, err := vm.NewContext(p, vm.StackReserve(1<<16))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(c.Stack()) != 0 {
		t.Errorf("reserve must not change the visible stack size, got %d", len(c.Stack()))
	}
	if _, err = vm.NewContext(p, vm.StackReserve(-1)); err == nil {
		t.Error("expected error for negative reserve")
	}
}

func TestRuntimeErrorRecovery(t *testing.T) {
	// out-of-range stack access panics inside the dispatch loop and must come
	// back as a wrapped error, not a crash
	c, _ := setup(t, "oob", ".main loadc r0 u1 loadc r1 u4096 sstore r0 r1 ret")
	err := c.RunFrom("main")
	if err == nil {
		t.Fatal("expected runtime error")
	}
	if !strings.Contains(err.Error(), "Recovered error") {
		t.Errorf("expected recovered error, got %v", err)
	}
}

func TestInstructionCount(t *testing.T) {
	c, _ := setup(t, "count", ".main loadc r0 i1 loadc r1 i2 addi r2 r0 r1 ret")
	if err := c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	if n := c.InstructionCount(); n != 4 {
		t.Errorf("expected 4 instructions, got %d", n)
	}
}

const fibCode = `
@out
.main
  loadc r0 u30
  loadc r1 u0
  loadc r2 u1
  loadc r5 u1
  loadc r6 u0
.loop
  cmp r0 r6
  jeq .done
  addu r3 r1 r2
  mov r1 r2
  mov r2 r3
  subu r0 r0 r5
  jump .loop
.done
  estore r1 @out
  ret`

func TestFib(t *testing.T) {
	p, err := asm.Assemble("fib", strings.NewReader(fibCode))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	c, err := vm.NewContext(p)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err = c.RunFrom("main"); err != nil {
		t.Fatalf("%+v", err)
	}
	n, err := p.UnsignedExtern("out")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if n != 832040 {
		t.Errorf("expected 832040, got %d", n)
	}
}

func Benchmark_Fib_Loop(b *testing.B) {
	p, err := asm.Assemble("fib", strings.NewReader(fibCode))
	if err != nil {
		b.Fatalf("%+v", err)
	}
	c, err := vm.NewContext(p)
	if err != nil {
		b.Fatalf("%+v", err)
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if err = c.RunFrom("main"); err != nil {
			b.Fatalf("%+v", err)
		}
	}
}
