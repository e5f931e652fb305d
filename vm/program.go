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

import "github.com/pkg/errors"

// LabelID indexes the label table of a Program.
type LabelID uint32

// ExternID indexes the extern table of a Program.
type ExternID uint32

// Constant is a constant pool entry. A string constant starts life holding an
// offset into the data segment (IsDataOffset set); the assembler's pointer
// fixup pass flips it to IsPointer once the data segment is frozen. The
// pointer itself is the offset of the NUL-terminated string in the data
// segment.
type Constant struct {
	Value        Word
	IsDataOffset bool
	IsPointer    bool
}

// Label is a named branch target. NameOffset locates the NUL-terminated label
// name in the data segment, PC the first opcode of the label, and StackAlloc
// the number of bytes reserved on the operand stack when the label is called.
type Label struct {
	NameOffset uint32
	PC         uint32
	StackAlloc uint32
}

// ExternFunc is the uniform calling convention for native functions invoked
// by callext: arguments are read from registers 0..n-1 and the return value
// is written to register 0.
type ExternFunc func(*Registers)

// Program is an executable program image: a packed opcode stream, a constant
// pool, interned strings and label names in a data segment, and the label and
// extern tables. It is built once by the assembler and read-only during
// execution; any number of execution contexts may share one image as long as
// the host serialises extern writes against active runs.
type Program struct {
	data      []byte
	constants []Constant
	opcodes   []Opcode
	labelMap  map[string]LabelID
	labels    []Label
	externMap map[string]ExternID
	externs   []Word

	// native trampolines live beside the extern slots rather than inside
	// them: a Go func value does not fit in a Word.
	externFuncs []ExternFunc
}

// NewProgram returns an empty program image for the assembler to populate.
func NewProgram() *Program {
	return &Program{
		labelMap:  make(map[string]LabelID),
		externMap: make(map[string]ExternID),
	}
}

// WriteStaticString appends the bytes of s to the data segment followed by a
// NUL and returns the offset of the first byte. The NUL guarantees that
// prints terminates.
func (p *Program) WriteStaticString(s string) uint32 {
	off := uint32(len(p.data))
	p.data = append(p.data, s...)
	p.data = append(p.data, 0)
	return off
}

// StringAt returns the NUL-terminated string starting at offset off in the
// data segment.
func (p *Program) StringAt(off uint32) string {
	end := off
	for end < uint32(len(p.data)) && p.data[end] != 0 {
		end++
	}
	return string(p.data[off:end])
}

// Data returns the data segment. It must be treated as read-only once the
// program has been loaded.
func (p *Program) Data() []byte { return p.data }

// Opcodes returns the opcode stream. The opcode index is the program counter.
func (p *Program) Opcodes() []Opcode { return p.opcodes }

// PushOpcode appends an opcode to the stream and returns its pc.
func (p *Program) PushOpcode(o Opcode) uint32 {
	pc := uint32(len(p.opcodes))
	p.opcodes = append(p.opcodes, o)
	return pc
}

// Constants returns the constant pool.
func (p *Program) Constants() []Constant { return p.constants }

// PushConstant appends a constant pool entry and returns its index.
func (p *Program) PushConstant(c Constant) uint16 {
	idx := uint16(len(p.constants))
	p.constants = append(p.constants, c)
	return idx
}

// SetConstant replaces the constant pool entry at idx.
func (p *Program) SetConstant(idx uint16, c Constant) { p.constants[idx] = c }

// Labels returns the label table.
func (p *Program) Labels() []Label { return p.labels }

// DefineLabel adds a label at the given pc and returns its id. Defining the
// same name twice is an error.
func (p *Program) DefineLabel(name string, pc uint32) (LabelID, error) {
	if _, ok := p.labelMap[name]; ok {
		return 0, errors.Errorf("Duplicate label %s detected", name)
	}
	id := LabelID(len(p.labels))
	p.labels = append(p.labels, Label{PC: pc})
	p.labelMap[name] = id
	return id, nil
}

// LookupLabel returns the id of a defined label.
func (p *Program) LookupLabel(name string) (LabelID, bool) {
	id, ok := p.labelMap[name]
	return id, ok
}

// Label returns the label record for id.
func (p *Program) Label(id LabelID) *Label { return &p.labels[id] }

// LabelName returns the interned name of the label, valid once the assembler
// has run its name fixup pass.
func (p *Program) LabelName(id LabelID) string {
	return p.StringAt(p.labels[id].NameOffset)
}

// DefineExtern adds a named extern slot and returns its id. Defining the same
// name twice is an error.
func (p *Program) DefineExtern(name string) (ExternID, error) {
	if _, ok := p.externMap[name]; ok {
		return 0, errors.Errorf("Duplicate extern %s detected", name)
	}
	id := ExternID(len(p.externs))
	p.externs = append(p.externs, 0)
	p.externFuncs = append(p.externFuncs, nil)
	p.externMap[name] = id
	return id, nil
}

// ExternName returns the declared name of an extern slot, or the empty
// string for an id outside the table. The lookup walks the name map, so keep
// it out of hot paths.
func (p *Program) ExternName(id ExternID) string {
	for name, eid := range p.externMap {
		if eid == id {
			return name
		}
	}
	return ""
}

// LookupExtern returns the id of a declared extern.
func (p *Program) LookupExtern(name string) (ExternID, bool) {
	id, ok := p.externMap[name]
	return id, ok
}

// Externs returns the extern slots.
func (p *Program) Externs() []Word { return p.externs }

// ExternWord returns a pointer to the named extern slot. The host may read
// and write the slot through it between runs or while the context is
// suspended at a yield.
func (p *Program) ExternWord(name string) (*Word, error) {
	id, ok := p.externMap[name]
	if !ok {
		return nil, errors.Errorf("Unknown extern %s", name)
	}
	return &p.externs[id], nil
}

// SetUnsignedExtern writes v to the unsigned view of the named extern slot.
func (p *Program) SetUnsignedExtern(name string, v uint64) error {
	w, err := p.ExternWord(name)
	if err != nil {
		return err
	}
	w.SetUint(v)
	return nil
}

// SetSignedExtern writes v to the signed view of the named extern slot.
func (p *Program) SetSignedExtern(name string, v int64) error {
	w, err := p.ExternWord(name)
	if err != nil {
		return err
	}
	w.SetInt(v)
	return nil
}

// SetFloatExtern writes v to the float view of the named extern slot.
func (p *Program) SetFloatExtern(name string, v float64) error {
	w, err := p.ExternWord(name)
	if err != nil {
		return err
	}
	w.SetFloat(v)
	return nil
}

// UnsignedExtern reads the unsigned view of the named extern slot.
func (p *Program) UnsignedExtern(name string) (uint64, error) {
	w, err := p.ExternWord(name)
	if err != nil {
		return 0, err
	}
	return w.Uint(), nil
}

// SignedExtern reads the signed view of the named extern slot.
func (p *Program) SignedExtern(name string) (int64, error) {
	w, err := p.ExternWord(name)
	if err != nil {
		return 0, err
	}
	return w.Int(), nil
}

// FloatExtern reads the float view of the named extern slot.
func (p *Program) FloatExtern(name string) (float64, error) {
	w, err := p.ExternWord(name)
	if err != nil {
		return 0, err
	}
	return w.Float(), nil
}

// SetExternFunc installs a native trampoline at the named extern slot. It is
// invoked synchronously by callext with the running context's registers.
func (p *Program) SetExternFunc(name string, fn ExternFunc) error {
	id, ok := p.externMap[name]
	if !ok {
		return errors.Errorf("Unknown extern %s", name)
	}
	p.externFuncs[id] = fn
	return nil
}
