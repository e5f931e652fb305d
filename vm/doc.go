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

// Package vm implements the MiniVM register machine.
//
// A Program is an immutable-after-load image built by the asm package: a
// packed opcode stream, a constant pool, a data segment holding interned
// strings, and the label and extern tables. A Context executes a Program
// against 16 64-bit registers, a byte-addressed operand stack and a call
// stack. Contexts are cooperative coroutines: the yield instruction suspends
// the run loop and Resume picks up at the following instruction with all
// registers, stack and call stack preserved.
//
// Go programs talk to MiniVM programs through extern slots. An extern
// declared in assembly with @name is a host-visible 64-bit word that both
// sides read and write (see the typed accessors on Program), and the same
// slot can hold a native function installed with Bind or SetExternFunc and
// invoked from assembly with callext.
//
// If you venture into hacking the VM itself, be aware that the run loop
// increments the pc once per dispatched instruction, after the handler ran.
// Branching handlers therefore set pc to target-1 so that the increment lands
// on the target. Handlers must never both assign the pc and skip the
// increment.
package vm
