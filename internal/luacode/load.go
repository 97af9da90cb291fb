// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// [Value] type tags in the dump format.
const (
	valueDumpTypeNil         byte = 0x00
	valueDumpTypeBoolean     byte = 0x01
	valueDumpTypeFloat       byte = 0x03
	valueDumpTypeInt         byte = 0x13
	valueDumpTypeShortString byte = 0x04
	valueDumpTypeLongString  byte = 0x14
)

// UnmarshalBinary unmarshals a precompiled chunk like those produced by luac 5.3.
// Chunks from either endianness are accepted.
func (f *Prototype) UnmarshalBinary(data []byte) error {
	r, err := newChunkReader(data)
	if err != nil {
		return fmt.Errorf("load lua chunk: %v", err)
	}
	mainUpvalueCount, ok := r.readByte()
	if !ok {
		return fmt.Errorf("load lua chunk: %v", io.ErrUnexpectedEOF)
	}
	if err := loadFunction(f, r, UnknownSource); err != nil {
		return fmt.Errorf("load lua chunk: %v", err)
	}
	if _, hasMore := r.readByte(); hasMore {
		return errors.New("load lua chunk: trailing data")
	}
	if int(mainUpvalueCount) != len(f.Upvalues) {
		return fmt.Errorf("load lua chunk: header upvalue count (%d) != prototype upvalue count (%d)", mainUpvalueCount, len(f.Upvalues))
	}
	return nil
}

func loadFunction(f *Prototype, r *chunkReader, parentSource Source) error {
	source, hasSource, err := r.readString()
	if err != nil {
		return fmt.Errorf("load function: source: %v", err)
	}
	if !hasSource {
		source = string(parentSource)
	}
	f.Source = Source(source)

	// Defined-at lines are read and discarded:
	// this compiler does not record line information.
	if _, ok := r.readInt(); !ok {
		return fmt.Errorf("load function: line defined: %v", io.ErrUnexpectedEOF)
	}
	if _, ok := r.readInt(); !ok {
		return fmt.Errorf("load function: last line defined: %v", io.ErrUnexpectedEOF)
	}
	var ok bool
	f.NumParams, ok = r.readByte()
	if !ok {
		return fmt.Errorf("load function: number of parameters: %v", io.ErrUnexpectedEOF)
	}
	f.IsVararg, ok = r.readBool()
	if !ok {
		return fmt.Errorf("load function: is vararg: %v", io.ErrUnexpectedEOF)
	}
	f.MaxStackSize, ok = r.readByte()
	if !ok {
		return fmt.Errorf("load function: max stack size: %v", io.ErrUnexpectedEOF)
	}

	// Code
	n, ok := r.readInt()
	if !ok {
		return fmt.Errorf("load function: instruction count: %v", io.ErrUnexpectedEOF)
	}
	f.Code = make([]Instruction, n)
	for i := range f.Code {
		f.Code[i], ok = r.readInstruction()
		if !ok {
			return fmt.Errorf("load function: instructions: %v", io.ErrUnexpectedEOF)
		}
	}

	// Constants
	n, ok = r.readInt()
	if !ok {
		return fmt.Errorf("load function: constant table size: %v", io.ErrUnexpectedEOF)
	}
	f.Constants = make([]Value, n)
	for i := range f.Constants {
		t, ok := r.readByte()
		if !ok {
			return fmt.Errorf("load function: constant table: %v", io.ErrUnexpectedEOF)
		}
		switch t {
		case valueDumpTypeNil:
			// Already zeroed; nothing to do.
		case valueDumpTypeBoolean:
			b, ok := r.readBool()
			if !ok {
				return fmt.Errorf("load function: constant table: %v", io.ErrUnexpectedEOF)
			}
			f.Constants[i] = BoolValue(b)
		case valueDumpTypeFloat:
			n, ok := r.readNumber()
			if !ok {
				return fmt.Errorf("load function: constant table: %v", io.ErrUnexpectedEOF)
			}
			f.Constants[i] = FloatValue(n)
		case valueDumpTypeInt:
			n, ok := r.readInteger()
			if !ok {
				return fmt.Errorf("load function: constant table: %v", io.ErrUnexpectedEOF)
			}
			f.Constants[i] = IntegerValue(n)
		case valueDumpTypeShortString, valueDumpTypeLongString:
			s, _, err := r.readString()
			if err != nil {
				return fmt.Errorf("load function: constant table [%d]: %v", i, err)
			}
			f.Constants[i] = StringValue(s)
		default:
			return fmt.Errorf("load function: constant table [%d]: unknown type %#02x", i, t)
		}
	}

	// Upvalues
	n, ok = r.readInt()
	if !ok {
		return fmt.Errorf("load function: upvalues: %v", io.ErrUnexpectedEOF)
	}
	f.Upvalues = make([]UpvalueDescriptor, n)
	for i := range f.Upvalues {
		f.Upvalues[i].InStack, ok = r.readBool()
		if !ok {
			return fmt.Errorf("load function: upvalues: %v", io.ErrUnexpectedEOF)
		}
		f.Upvalues[i].Index, ok = r.readByte()
		if !ok {
			return fmt.Errorf("load function: upvalues: %v", io.ErrUnexpectedEOF)
		}
	}

	// Nested prototypes
	n, ok = r.readInt()
	if !ok {
		return fmt.Errorf("load function: prototypes: %v", io.ErrUnexpectedEOF)
	}
	f.Functions = make([]*Prototype, n)
	for i := range f.Functions {
		fi := new(Prototype)
		if err := loadFunction(fi, r, f.Source); err != nil {
			return err
		}
		f.Functions[i] = fi
	}

	// Debug information
	n, ok = r.readInt()
	if !ok {
		return fmt.Errorf("load function: line info: %v", io.ErrUnexpectedEOF)
	}
	for range n {
		if _, ok := r.readInt(); !ok {
			return fmt.Errorf("load function: line info: %v", io.ErrUnexpectedEOF)
		}
	}
	n, ok = r.readInt()
	if !ok {
		return fmt.Errorf("load function: local variables: %v", io.ErrUnexpectedEOF)
	}
	f.Locals = make([]Local, n)
	for i := range f.Locals {
		f.Locals[i].Name, _, err = r.readString()
		if err != nil {
			return fmt.Errorf("load function: local variables [%d]: name: %v", i, err)
		}
		// The start and end PCs are not retained.
		if _, ok := r.readInt(); !ok {
			return fmt.Errorf("load function: local variables [%d]: start pc: %v", i, io.ErrUnexpectedEOF)
		}
		if _, ok := r.readInt(); !ok {
			return fmt.Errorf("load function: local variables [%d]: end pc: %v", i, io.ErrUnexpectedEOF)
		}
		// The dump format does not record registers;
		// locals occupy the register prefix in declaration order.
		f.Locals[i].Register = uint8(min(i, maxRegisters-1))
	}
	n, ok = r.readInt()
	if !ok {
		return fmt.Errorf("load function: upvalue names: %v", io.ErrUnexpectedEOF)
	}
	if n != 0 && n != len(f.Upvalues) {
		return fmt.Errorf("load function: upvalue names: length (%d) does not match table (%d)", n, len(f.Upvalues))
	}
	for i := range n {
		f.Upvalues[i].Name, _, err = r.readString()
		if err != nil {
			return fmt.Errorf("load function: upvalue names [%d]: %v", i, err)
		}
	}

	return nil
}

type chunkReader struct {
	s []byte

	byteOrder binary.ByteOrder
	sizeTSize int
}

func newChunkReader(s []byte) (*chunkReader, error) {
	r := &chunkReader{s: s}
	if !r.literal(Signature) {
		return nil, errors.New("missing signature")
	}
	if version, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if version != luacVersion {
		return nil, errors.New("version mismatch")
	}
	if format, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if format != luacFormat {
		return nil, errors.New("format mismatch")
	}
	if !r.literal(luacData) {
		return nil, errors.New("corrupted chunk")
	}

	if intSize, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if intSize != 4 {
		return nil, errors.New("int size must be 4")
	}
	sizeTSize, ok := r.readByte()
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	if sizeTSize != 4 && sizeTSize != 8 {
		return nil, fmt.Errorf("unsupported size_t size (%d)", sizeTSize)
	}
	r.sizeTSize = int(sizeTSize)
	if instructionSize, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if instructionSize != 4 {
		return nil, errors.New("instruction size must be 4")
	}
	if integerSize, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if integerSize != 8 {
		return nil, errors.New("integer size must be 8")
	}
	if numberSize, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if numberSize != 8 {
		return nil, errors.New("float size must be 8")
	}

	// Determine endianness from the check integer.
	if len(r.s) < 8 {
		return nil, io.ErrUnexpectedEOF
	}
	switch {
	case binary.LittleEndian.Uint64(r.s) == uint64(luacInt):
		r.byteOrder = binary.LittleEndian
	case binary.BigEndian.Uint64(r.s) == uint64(luacInt):
		r.byteOrder = binary.BigEndian
	default:
		return nil, errors.New("integer format mismatch")
	}
	r.s = r.s[8:]

	if n, ok := r.readNumber(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if n != luacNum {
		return nil, errors.New("float format mismatch")
	}

	return r, nil
}

func (r *chunkReader) readByte() (byte, bool) {
	if len(r.s) == 0 {
		return 0, false
	}
	b := r.s[0]
	r.s = r.s[1:]
	return b, true
}

func (r *chunkReader) readBool() (bool, bool) {
	b, ok := r.readByte()
	return b != 0, ok
}

// readInt reads a C int (4 bytes).
func (r *chunkReader) readInt() (int, bool) {
	if len(r.s) < 4 {
		return 0, false
	}
	n := int(int32(r.byteOrder.Uint32(r.s)))
	r.s = r.s[4:]
	if n < 0 {
		return 0, false
	}
	return n, true
}

// readInteger reads a lua_Integer (8 bytes).
func (r *chunkReader) readInteger() (int64, bool) {
	if len(r.s) < 8 {
		return 0, false
	}
	i := int64(r.byteOrder.Uint64(r.s))
	r.s = r.s[8:]
	return i, true
}

// readNumber reads a lua_Number (8 bytes).
func (r *chunkReader) readNumber() (float64, bool) {
	if len(r.s) < 8 {
		return 0, false
	}
	f := math.Float64frombits(r.byteOrder.Uint64(r.s))
	r.s = r.s[8:]
	return f, true
}

// readString reads a string in the luac 5.3 encoding.
// valid is false for the NULL string.
func (r *chunkReader) readString() (s string, valid bool, err error) {
	size64, ok := r.readByte()
	if !ok {
		return "", false, io.ErrUnexpectedEOF
	}
	size := uint64(size64)
	if size == 0xff {
		if len(r.s) < r.sizeTSize {
			return "", false, io.ErrUnexpectedEOF
		}
		switch r.sizeTSize {
		case 4:
			size = uint64(r.byteOrder.Uint32(r.s))
		case 8:
			size = r.byteOrder.Uint64(r.s)
		}
		r.s = r.s[r.sizeTSize:]
	}
	if size == 0 {
		return "", false, nil
	}
	n := int(size - 1)
	if n < 0 || len(r.s) < n {
		return "", false, io.ErrUnexpectedEOF
	}
	s = string(r.s[:n])
	r.s = r.s[n:]
	return s, true, nil
}

func (r *chunkReader) readInstruction() (Instruction, bool) {
	const size = 4
	if len(r.s) < size {
		return 0, false
	}
	i := Instruction(r.byteOrder.Uint32(r.s))
	r.s = r.s[size:]
	return i, true
}

func (r *chunkReader) literal(prefix string) bool {
	if len(r.s) < len(prefix) || string(r.s[:len(prefix)]) != prefix {
		return false
	}
	r.s = r.s[len(prefix):]
	return true
}
