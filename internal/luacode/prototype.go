// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Signature is the magic header for a binary (pre-compiled) Lua chunk.
// Data with this prefix can be loaded with [*Prototype.UnmarshalBinary].
const Signature = "\x1bLua"

const (
	luacVersion byte    = 5*16 + 3
	luacFormat  byte    = 0
	luacData            = "\x19\x93\r\n\x1a\n"
	luacInt     int64   = 0x5678
	luacNum     float64 = 370.5
)

// Prototype is a compiled Lua function:
// its code, constants, upvalue descriptors, and nested prototypes.
type Prototype struct {
	// NumParams is the number of fixed (named) parameters.
	NumParams uint8
	IsVararg  bool
	// MaxStackSize is the number of registers needed by this function.
	MaxStackSize uint8

	Constants []Value
	Code      []Instruction
	Functions []*Prototype
	Upvalues  []UpvalueDescriptor

	// Locals is the function's local variables in declaration order.
	// Each occupies its register for the function's whole lifetime.
	Locals []Local

	Source Source
}

// addConstant interns a value in the constant table and returns its index:
// the index of an equal existing constant if there is one,
// or the index of a newly appended entry otherwise.
func (f *Prototype) addConstant(k Value) int {
	if i := slices.Index(f.Constants, k); i >= 0 {
		return i
	}
	f.Constants = append(f.Constants, k)
	return len(f.Constants) - 1
}

// IsMainChunk reports whether the prototype represents a whole source file.
// The main chunk receives _ENV as its sole upvalue.
func (f *Prototype) IsMainChunk() bool {
	return len(f.Upvalues) == 1 &&
		f.Upvalues[0].Name == EnvName &&
		f.Upvalues[0].InStack &&
		f.Upvalues[0].Index == 0 &&
		f.IsVararg
}

// StripDebug returns a copy of the prototype tree
// with local variable and upvalue names removed.
func (f *Prototype) StripDebug() *Prototype {
	f2 := new(Prototype)
	*f2 = *f
	f2.Source = ""
	f2.Locals = nil

	if len(f.Upvalues) > 0 {
		f2.Upvalues = slices.Clone(f.Upvalues)
		for i := range f2.Upvalues {
			f2.Upvalues[i].Name = ""
		}
	}
	if len(f.Functions) > 0 {
		f2.Functions = make([]*Prototype, len(f.Functions))
		for i, p := range f.Functions {
			f2.Functions[i] = p.StripDebug()
		}
	}
	return f2
}

func (f *Prototype) hasUpvalueNames() bool {
	for _, upval := range f.Upvalues {
		if upval.Name != "" {
			return true
		}
	}
	return false
}

// MarshalBinary marshals the function as a precompiled chunk
// in the same format as [luac 5.3].
//
// [luac 5.3]: https://www.lua.org/manual/5.3/luac.html
func (f *Prototype) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = append(buf, Signature...)
	buf = append(buf, luacVersion, luacFormat)
	buf = append(buf, luacData...)
	// Sizes of C int, size_t, Instruction, lua_Integer, and lua_Number.
	buf = append(buf, 4, 8, 4, 8, 8)
	buf = binary.NativeEndian.AppendUint64(buf, uint64(luacInt))
	buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(luacNum))

	if len(f.Upvalues) > maxUpvalues {
		return nil, fmt.Errorf("dump lua chunk: too many upvalues (%d)", len(f.Upvalues))
	}
	buf = append(buf, byte(len(f.Upvalues)))

	return dumpFunction(buf, f, "")
}

func dumpFunction(buf []byte, f *Prototype, parentSource Source) ([]byte, error) {
	if f.Source == "" || f.Source == parentSource {
		buf = append(buf, 0)
	} else {
		buf = dumpString(buf, string(f.Source))
	}
	// Line tracking is not recorded, so the defined-at lines are zero.
	buf = dumpInt(buf, 0)
	buf = dumpInt(buf, 0)
	buf = append(buf, f.NumParams)
	buf = dumpBool(buf, f.IsVararg)
	buf = append(buf, f.MaxStackSize)

	// Code
	buf = dumpInt(buf, len(f.Code))
	for _, code := range f.Code {
		buf = binary.NativeEndian.AppendUint32(buf, uint32(code))
	}

	// Constants
	buf = dumpInt(buf, len(f.Constants))
	for i, value := range f.Constants {
		switch {
		case value.IsNil():
			buf = append(buf, valueDumpTypeNil)
		case value.IsBoolean():
			b, _ := value.Bool()
			buf = append(buf, valueDumpTypeBoolean)
			buf = dumpBool(buf, b)
		case value.IsInteger():
			i, _ := value.Int64()
			buf = append(buf, valueDumpTypeInt)
			buf = binary.NativeEndian.AppendUint64(buf, uint64(i))
		case value.IsNumber():
			n, _ := value.Float64()
			buf = append(buf, valueDumpTypeFloat)
			buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(n))
		case value.IsString():
			s, _ := value.Unquoted()
			if value.isShortString() {
				buf = append(buf, valueDumpTypeShortString)
			} else {
				buf = append(buf, valueDumpTypeLongString)
			}
			buf = dumpString(buf, s)
		default:
			return nil, fmt.Errorf("dump lua chunk: Constants[%d] cannot be represented", i)
		}
	}

	// Upvalues
	buf = dumpInt(buf, len(f.Upvalues))
	for _, upval := range f.Upvalues {
		buf = dumpBool(buf, upval.InStack)
		buf = append(buf, upval.Index)
	}

	// Nested prototypes
	buf = dumpInt(buf, len(f.Functions))
	for _, p := range f.Functions {
		var err error
		buf, err = dumpFunction(buf, p, f.Source)
		if err != nil {
			return nil, err
		}
	}

	// Debug information.
	// Line info is always empty (line tracking is not recorded).
	buf = dumpInt(buf, 0)
	buf = dumpInt(buf, len(f.Locals))
	for _, v := range f.Locals {
		buf = dumpString(buf, v.Name)
		buf = dumpInt(buf, 0)
		buf = dumpInt(buf, len(f.Code))
	}
	if !f.hasUpvalueNames() {
		buf = dumpInt(buf, 0)
	} else {
		buf = dumpInt(buf, len(f.Upvalues))
		for _, upval := range f.Upvalues {
			buf = dumpString(buf, upval.Name)
		}
	}

	return buf, nil
}

// dumpString appends a string in the luac 5.3 encoding:
// length plus one in a byte
// (0xFF followed by a size_t for long strings),
// then the bytes.
func dumpString(buf []byte, s string) []byte {
	size := len(s) + 1
	if size < 0xff {
		buf = append(buf, byte(size))
	} else {
		buf = append(buf, 0xff)
		buf = binary.NativeEndian.AppendUint64(buf, uint64(size))
	}
	return append(buf, s...)
}

// dumpInt appends a C int (4 bytes).
func dumpInt(buf []byte, n int) []byte {
	return binary.NativeEndian.AppendUint32(buf, uint32(n))
}

func dumpBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// UpvalueDescriptor describes an upvalue in a [Prototype].
type UpvalueDescriptor struct {
	Name string
	// InStack is true if the upvalue captures a local variable
	// of the immediately enclosing function.
	// Otherwise, the upvalue refers to an upvalue of the enclosing function.
	InStack bool
	// Index is the register of the captured local when InStack is true,
	// or the index into the enclosing function's upvalue table otherwise.
	Index uint8
}

// Local describes a local variable in a [Prototype].
type Local struct {
	Name string
	// Register is the register holding the variable.
	// It is fixed for the lifetime of the enclosing function.
	Register uint8
}

// Source describes the chunk that produced a [Prototype],
// using the Lua convention that a leading "@" marks a file name
// and a leading "=" marks an abstract description.
// Anything else is the literal source text itself.
type Source string

// UnknownSource is a placeholder for an unknown [Source].
const UnknownSource Source = "=?"

// FilenameSource returns a [Source] for a filesystem path.
func FilenameSource(path string) Source {
	return Source("@" + path)
}

// AbstractSource returns a [Source] from a user-dependent description.
func AbstractSource(description string) Source {
	return Source("=" + description)
}

// Filename returns the file name of the chunk
// provided to [FilenameSource].
func (source Source) Filename() (_ string, isFilename bool) {
	if !strings.HasPrefix(string(source), "@") {
		return "", false
	}
	return string(source[1:]), true
}

// Abstract returns the user-dependent description of the source
// provided to [AbstractSource].
func (source Source) Abstract() (_ string, isAbstract bool) {
	if !strings.HasPrefix(string(source), "=") {
		return "", false
	}
	return string(source[1:]), true
}

// String formats the source in the concise manner
// Lua uses in error messages.
func (source Source) String() string {
	const maxSize = 60
	switch {
	case strings.HasPrefix(string(source), "="), strings.HasPrefix(string(source), "@"):
		s := string(source[1:])
		if len(s) > maxSize {
			if source[0] == '@' {
				return "..." + s[len(s)-maxSize+3:]
			}
			return s[:maxSize]
		}
		return s
	default:
		line, _, multipleLines := strings.Cut(string(source), "\n")
		if !multipleLines && len(line) <= maxSize-len(`[string ""]`) {
			return `[string "` + line + `"]`
		}
		if len(line) > maxSize-len(`[string "..."]`) {
			line = line[:maxSize-len(`[string "..."]`)]
		}
		return `[string "` + line + `..."]`
	}
}

// maxRegisters is the maximum number of registers in a Lua function.
const maxRegisters = 255

type registerIndex uint8

// noRegister is a sentinel for an invalid register.
const noRegister registerIndex = maxRegisters

func (ridx registerIndex) isValid() bool {
	return ridx < maxRegisters
}

// maxUpvalues is the maximum number of upvalues in a closure.
// The value must fit in a VM register.
const maxUpvalues = 255

type upvalueIndex uint8
