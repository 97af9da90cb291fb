// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"errors"
	"fmt"
)

// funcState is the mutable state associated with a [Prototype]
// while its code is being generated.
type funcState struct {
	*Prototype

	// prev is the enclosing function.
	// It is nil for the main chunk
	// and is only followed while this function's code is generated.
	prev *funcState
	// childIndex is this prototype's index
	// in the enclosing prototype's Functions slice,
	// or -1 for the main chunk.
	childIndex int

	// nextRegister is the lowest register not yet handed out.
	nextRegister registerIndex
	// freeRegisters is a pool of reclaimed temporary registers.
	// Nothing fills it yet; usableRegister drains it first when it does.
	freeRegisters []registerIndex
}

// newFuncState returns the state for a main chunk prototype.
func newFuncState(source Source) *funcState {
	return &funcState{
		Prototype: &Prototype{
			Source:       source,
			MaxStackSize: minStackSize,
		},
		childIndex: -1,
	}
}

// newChild appends a fresh prototype to fs
// and returns the state for generating its code.
func (fs *funcState) newChild() *funcState {
	child := &funcState{
		Prototype: &Prototype{
			Source:       fs.Source,
			MaxStackSize: minStackSize,
		},
		prev:       fs,
		childIndex: len(fs.Functions),
	}
	fs.Functions = append(fs.Functions, child.Prototype)
	return child
}

// minStackSize is the initial register high-water mark:
// the virtual machine assumes every frame has at least two slots.
const minStackSize = 2

// checkStack accounts for n more registers,
// raising the prototype's MaxStackSize high-water mark.
func (fs *funcState) checkStack(n int) error {
	newStack := int(fs.nextRegister) + n
	if newStack <= int(fs.MaxStackSize) {
		return nil
	}
	if newStack > maxRegisters {
		return errors.New("function or expression needs too many registers")
	}
	fs.MaxStackSize = uint8(newStack)
	return nil
}

// reserveRegister hands out the next register.
func (fs *funcState) reserveRegister() (registerIndex, error) {
	if err := fs.checkStack(1); err != nil {
		return noRegister, err
	}
	reg := fs.nextRegister
	fs.nextRegister++
	return reg, nil
}

// usableRegister returns a register an expression may clobber,
// preferring the reclaimed pool over extending the register window.
func (fs *funcState) usableRegister() (registerIndex, error) {
	if n := len(fs.freeRegisters); n > 0 {
		reg := fs.freeRegisters[n-1]
		fs.freeRegisters = fs.freeRegisters[:n-1]
		return reg, nil
	}
	return fs.reserveRegister()
}

// setNextRegister rewinds the register window,
// typically after a call's result count is known.
func (fs *funcState) setNextRegister(reg registerIndex) {
	fs.nextRegister = reg
}

// defineLocal declares a local variable bound to the given register.
func (fs *funcState) defineLocal(name string, reg registerIndex) {
	fs.Locals = append(fs.Locals, Local{Name: name, Register: uint8(reg)})
}

// searchLocal returns the register of the named local variable.
// The latest declaration wins.
func (fs *funcState) searchLocal(name string) (registerIndex, bool) {
	for i := len(fs.Locals) - 1; i >= 0; i-- {
		if fs.Locals[i].Name == name {
			return registerIndex(fs.Locals[i].Register), true
		}
	}
	return noRegister, false
}

// searchUpvalue returns the index of the upvalue with the given name.
func (fs *funcState) searchUpvalue(name string) (upvalueIndex, bool) {
	for i := range fs.Upvalues {
		if fs.Upvalues[i].Name == name {
			return upvalueIndex(i), true
		}
	}
	return 0, false
}

func (fs *funcState) addUpvalue(up UpvalueDescriptor) (upvalueIndex, error) {
	if len(fs.Upvalues) >= maxUpvalues {
		return 0, errors.New("too many upvalues")
	}
	fs.Upvalues = append(fs.Upvalues, up)
	return upvalueIndex(len(fs.Upvalues) - 1), nil
}

// resolveUpvalue binds a free name in fs to an upvalue,
// walking up the chain of enclosing functions.
// Every function between the declaration site and fs
// receives a capture of its own,
// so the chain from declaration to use is unbroken.
// The in-stack flag is only ever set at the frame
// directly above the captured local.
// found is false if no enclosing function provides the name,
// in which case the caller must treat it as a global access through _ENV.
func (fs *funcState) resolveUpvalue(name string) (_ upvalueIndex, found bool, _ error) {
	if i, ok := fs.searchUpvalue(name); ok {
		return i, true, nil
	}
	if fs.prev == nil {
		return 0, false, nil
	}
	if reg, ok := fs.prev.searchLocal(name); ok {
		i, err := fs.addUpvalue(UpvalueDescriptor{Name: name, InStack: true, Index: uint8(reg)})
		return i, err == nil, err
	}
	parent, ok, err := fs.prev.resolveUpvalue(name)
	if err != nil || !ok {
		return 0, false, err
	}
	i, err := fs.addUpvalue(UpvalueDescriptor{Name: name, InStack: false, Index: uint8(parent)})
	return i, err == nil, err
}

// code appends an instruction and returns its address.
func (fs *funcState) code(i Instruction) int {
	fs.Code = append(fs.Code, i)
	return len(fs.Code) - 1
}

// codeJump appends a placeholder jump and returns its address.
// The destination is fixed later with [funcState.fixJump].
func (fs *funcState) codeJump() int {
	return fs.code(ABxInstruction(OpJmp, 0, noJump))
}

// fixJump points the jump at pc to target,
// encoding the Lua-relative displacement target-pc-1.
func (fs *funcState) fixJump(pc, target int) error {
	if target < 0 || target > len(fs.Code) {
		return errors.New("jump target out of range")
	}
	jmp, ok := fs.Code[pc].WithArgSBx(int32(target - pc - 1))
	if !ok {
		return fmt.Errorf("fixJump called on %v", fs.Code[pc].OpCode())
	}
	fs.Code[pc] = jmp
	return nil
}
