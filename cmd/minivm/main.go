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

// Command minivm assembles a MiniVM source file and runs it from its "main"
// label. Exit code 0 means the program ran to completion, 1 a usage error,
// 2 an assembly failure and 3 a runtime failure.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/shadowndacorner/minivm/asm"
	"github.com/shadowndacorner/minivm/vm"
)

const (
	exitOK = iota
	exitUsage
	exitLoad
	exitRun
)

var (
	debug bool
	dump  bool
	entry string
)

func atExit(c *vm.Context, code int, err error) {
	if err == nil {
		return
	}
	if !debug {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "%+v\n", err)
	if c != nil {
		regs := c.Registers()
		fmt.Fprintf(os.Stderr, "PC: %v, SP: %v, Cmp: %v, Frames: %v\n",
			regs.PC, regs.SP, regs.Cmp, c.Depth())
		for i, w := range regs.R {
			fmt.Fprintf(os.Stderr, "r%d: %#016x\n", i, w.Uint())
		}
	}
	os.Exit(code)
}

func main() {
	flag.BoolVar(&debug, "debug", false, "enable debug diagnostics")
	flag.BoolVar(&dump, "dump", false, "print a disassembly listing instead of running")
	flag.StringVar(&entry, "entry", "main", "`label` to start execution from")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] file.mvm\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	prog, err := asm.AssembleFile(flag.Arg(0))
	if err != nil {
		atExit(nil, exitLoad, err)
	}

	stdout := bufio.NewWriter(os.Stdout)
	if dump {
		err = asm.DisassembleAll(stdout, prog)
		stdout.Flush()
		atExit(nil, exitLoad, err)
		return
	}

	c, err := vm.NewContext(prog, vm.Output(stdout))
	if err != nil {
		atExit(nil, exitLoad, err)
	}

	err = c.RunFrom(entry)
	for err == nil && c.DidYield() {
		err = c.Resume()
	}
	stdout.Flush()
	atExit(c, exitRun, err)
}
