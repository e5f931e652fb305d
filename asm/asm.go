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
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/shadowndacorner/minivm/vm"
)

// Assemble reads assembly source from r and builds a program image. The name
// is only used in error messages, it is typically the source file name.
func Assemble(name string, r io.Reader) (*vm.Program, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	p := newParser(string(src))
	if err = p.parse(); err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	return p.prog, nil
}

// AssembleFile assembles the file at the given path.
func AssembleFile(path string) (*vm.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Assemble(filepath.Base(path), f)
}
