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

import (
	"reflect"

	"github.com/pkg/errors"
)

// maxBindArgs caps the argument count of bound functions. Register 15 is
// reserved for the trampoline family.
const maxBindArgs = 15

// Bind adapts an arbitrary host function to the register calling convention
// and installs it at the named extern slot. Arguments are read from registers
// 0..n-1 using the view matching each parameter type: signed integers from
// the signed view, unsigned integers and uintptr from the unsigned view,
// floats from the float view, narrower types truncated from 64 bits. A
// non-void result is written back to register 0 with the same rules; a void
// function leaves 0 in register 0.
//
// Every parameter must be an integral, floating-point or uintptr type of at
// most 8 bytes, the result additionally may be absent, and n must not exceed
// 15. Anything else is rejected here, at bind time.
//
// Host code that needs more than word-sized primitives can install a raw
// trampoline with SetExternFunc and work on the Registers directly.
func Bind(p *Program, name string, fn interface{}) error {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return errors.Errorf("Bind %s: not a function", name)
	}
	if t.IsVariadic() {
		return errors.Errorf("Bind %s: variadic functions cannot be bound", name)
	}
	if t.NumIn() > maxBindArgs {
		return errors.Errorf("Bind %s: %d arguments, limit is %d", name, t.NumIn(), maxBindArgs)
	}

	loaders := make([]func(Word) reflect.Value, t.NumIn())
	for i := range loaders {
		l, err := argLoader(t.In(i))
		if err != nil {
			return errors.Wrapf(err, "Bind %s: argument %d", name, i)
		}
		loaders[i] = l
	}

	var store func(reflect.Value) Word
	switch t.NumOut() {
	case 0:
	case 1:
		s, err := retStorer(t.Out(0))
		if err != nil {
			return errors.Wrapf(err, "Bind %s: return value", name)
		}
		store = s
	default:
		return errors.Errorf("Bind %s: multiple return values", name)
	}

	return p.SetExternFunc(name, func(regs *Registers) {
		args := make([]reflect.Value, len(loaders))
		for i, l := range loaders {
			args[i] = l(regs.R[i])
		}
		out := v.Call(args)
		if store != nil {
			regs.R[0] = store(out[0])
		} else {
			regs.R[0] = 0
		}
	})
}

func argLoader(t reflect.Type) (func(Word) reflect.Value, error) {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(w Word) reflect.Value {
			rv := reflect.New(t).Elem()
			rv.SetInt(truncInt(w.Int(), t.Bits()))
			return rv
		}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(w Word) reflect.Value {
			rv := reflect.New(t).Elem()
			rv.SetUint(truncUint(w.Uint(), t.Bits()))
			return rv
		}, nil
	case reflect.Float32, reflect.Float64:
		return func(w Word) reflect.Value {
			rv := reflect.New(t).Elem()
			rv.SetFloat(w.Float())
			return rv
		}, nil
	}
	return nil, errors.Errorf("type %s is not a word-sized primitive", t)
}

func retStorer(t reflect.Type) (func(reflect.Value) Word, error) {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v reflect.Value) Word { return IntWord(v.Int()) }, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(v reflect.Value) Word { return UintWord(v.Uint()) }, nil
	case reflect.Float32, reflect.Float64:
		return func(v reflect.Value) Word { return FloatWord(v.Float()) }, nil
	}
	return nil, errors.Errorf("type %s is not a word-sized primitive", t)
}

func truncInt(v int64, bits int) int64 {
	switch bits {
	case 8:
		return int64(int8(v))
	case 16:
		return int64(int16(v))
	case 32:
		return int64(int32(v))
	}
	return v
}

func truncUint(v uint64, bits int) uint64 {
	switch bits {
	case 8:
		return uint64(uint8(v))
	case 16:
		return uint64(uint16(v))
	case 32:
		return uint64(uint32(v))
	}
	return v
}
