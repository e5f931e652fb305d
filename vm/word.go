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

import "math"

// Word is the raw type stored in a register, a constant pool entry or an
// extern slot. The same 64 bits are read as a signed integer, an unsigned
// integer or an IEEE-754 double depending on the instruction; pointers into
// the data segment are carried in the unsigned view.
type Word uint64

// IntWord returns a Word holding v in its signed view.
func IntWord(v int64) Word { return Word(v) }

// UintWord returns a Word holding v in its unsigned view.
func UintWord(v uint64) Word { return Word(v) }

// FloatWord returns a Word holding v in its float view.
func FloatWord(v float64) Word { return Word(math.Float64bits(v)) }

// Int reads the signed view of w.
func (w Word) Int() int64 { return int64(w) }

// Uint reads the unsigned view of w.
func (w Word) Uint() uint64 { return uint64(w) }

// Float reads the float view of w.
func (w Word) Float() float64 { return math.Float64frombits(uint64(w)) }

// SetInt writes v to the signed view of w.
func (w *Word) SetInt(v int64) { *w = Word(v) }

// SetUint writes v to the unsigned view of w.
func (w *Word) SetUint(v uint64) { *w = Word(v) }

// SetFloat writes v to the float view of w.
func (w *Word) SetFloat(v float64) { *w = Word(math.Float64bits(v)) }
