// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import "fmt"

// Instruction is a single Lua 5.3 virtual machine instruction
// in the packed 32-bit encoding:
// opcode in the low 6 bits, then A (8 bits), C (9 bits), and B (9 bits).
// Bx and sBx overlay the C and B fields.
type Instruction uint32

const (
	sizeOpCode = 6
	sizeA      = 8
	sizeC      = 9
	sizeB      = 9
	sizeBx     = sizeC + sizeB
	sizeAx     = sizeA + sizeC + sizeB

	posOpCode = 0
	posA      = posOpCode + sizeOpCode
	posC      = posA + sizeA
	posB      = posC + sizeC
	posBx     = posC
	posAx     = posA
)

// Field limits.
const (
	MaxArgA  = 1<<sizeA - 1
	MaxArgB  = 1<<sizeB - 1
	MaxArgC  = 1<<sizeC - 1
	MaxArgBx = 1<<sizeBx - 1
	MaxArgAx = 1<<sizeAx - 1

	// OffsetSBx is the excess applied to the Bx field
	// to store a signed sBx argument.
	OffsetSBx = MaxArgBx >> 1

	noJump = -1
)

// RK operand encoding: bit 8 of a 9-bit operand selects
// a constant table index instead of a register.
const (
	rkMask = 1 << (sizeB - 1)

	// MaxRKIndex is the largest constant table index
	// that fits in an RK operand.
	MaxRKIndex = rkMask - 1
)

// RKConstant returns the RK encoding of the k'th constant.
// RKConstant panics if the index does not fit in an RK operand.
func RKConstant(k int) uint16 {
	if k < 0 || k > MaxRKIndex {
		panic("constant index out of RK range")
	}
	return uint16(k) | rkMask
}

// IsConstantOperand reports whether an RK operand refers to the constant table.
func IsConstantOperand(arg uint16) bool {
	return arg&rkMask != 0
}

// ConstantIndex returns the constant table index of an RK operand.
func ConstantIndex(arg uint16) int {
	return int(arg &^ uint16(rkMask))
}

// ABCInstruction returns a new [OpModeABC] [Instruction]
// with the given arguments.
// ABCInstruction panics if the [OpCode] given
// does not return [OpModeABC] from [OpCode.OpMode]
// or an argument is out of range.
func ABCInstruction(op OpCode, a uint8, b, c uint16) Instruction {
	if op.OpMode() != OpModeABC {
		panic("ABCInstruction with invalid OpCode")
	}
	if b > MaxArgB || c > MaxArgC {
		panic("ABCInstruction argument out of range")
	}
	return Instruction(op) |
		Instruction(a)<<posA |
		Instruction(b)<<posB |
		Instruction(c)<<posC
}

// ABxInstruction returns a new [OpModeABx] or [OpModeAsBx] [Instruction]
// with the given arguments.
// For an [OpModeAsBx] opcode, bx is interpreted as the signed sBx argument.
// ABxInstruction panics if the [OpCode] mode does not use a Bx field
// or the argument is out of range.
func ABxInstruction(op OpCode, a uint8, bx int32) Instruction {
	switch op.OpMode() {
	case OpModeABx:
		if bx < 0 || bx > MaxArgBx {
			panic("Bx argument out of range")
		}
		return Instruction(op) |
			Instruction(a)<<posA |
			Instruction(bx)<<posBx
	case OpModeAsBx:
		if !fitsSBx(int64(bx)) {
			panic("sBx argument out of range")
		}
		return Instruction(op) |
			Instruction(a)<<posA |
			Instruction(bx+OffsetSBx)<<posBx
	default:
		panic("ABxInstruction with invalid OpCode")
	}
}

// ExtraArgument returns an [OpModeAx] [Instruction].
// ExtraArgument panics if the argument is too large.
func ExtraArgument(ax uint32) Instruction {
	if ax > MaxArgAx {
		panic("ExtraArgument argument out of range")
	}
	return Instruction(OpExtraArg) | Instruction(ax)<<posAx
}

func fitsSBx(i int64) bool {
	return -OffsetSBx <= i && i <= MaxArgBx-OffsetSBx
}

// OpCode returns the instruction's type.
func (i Instruction) OpCode() OpCode {
	return OpCode(i & (1<<sizeOpCode - 1))
}

// ArgA returns the A argument of the instruction.
func (i Instruction) ArgA() uint8 {
	return uint8(i >> posA)
}

// ArgB returns the B argument of an [OpModeABC] instruction.
func (i Instruction) ArgB() uint16 {
	if i.OpCode().OpMode() != OpModeABC {
		return 0
	}
	return uint16(i>>posB) & MaxArgB
}

// ArgC returns the C argument of an [OpModeABC] instruction.
func (i Instruction) ArgC() uint16 {
	if i.OpCode().OpMode() != OpModeABC {
		return 0
	}
	return uint16(i>>posC) & MaxArgC
}

// ArgBx returns the Bx argument
// of an [OpModeABx] or [OpModeAsBx] instruction,
// applying the signed offset in the latter case.
func (i Instruction) ArgBx() int32 {
	switch i.OpCode().OpMode() {
	case OpModeABx:
		return int32(i >> posBx)
	case OpModeAsBx:
		return int32(i>>posBx) - OffsetSBx
	default:
		return 0
	}
}

// ArgAx returns the argument passed to [ExtraArgument].
func (i Instruction) ArgAx() uint32 {
	if i.OpCode().OpMode() != OpModeAx {
		return 0
	}
	return uint32(i >> posAx)
}

// WithArgSBx returns a copy of i
// with its sBx argument changed to the given value.
// ok is false if i is not an [OpModeAsBx] instruction.
func (i Instruction) WithArgSBx(sbx int32) (_ Instruction, ok bool) {
	if i.OpCode().OpMode() != OpModeAsBx || !fitsSBx(int64(sbx)) {
		return i, false
	}
	const mask = Instruction(MaxArgBx) << posBx
	return i&^mask | Instruction(sbx+OffsetSBx)<<posBx, true
}

// String decodes the instruction
// and formats it in the manner of [luac] -l:
// RK operands that refer to the constant table
// are shown as negative numbers counting from -1.
//
// [luac]: https://www.lua.org/manual/5.3/luac.html
func (i Instruction) String() string {
	op := i.OpCode()
	switch op.OpMode() {
	case OpModeABC:
		s := fmt.Sprintf("%-9s %d", op, i.ArgA())
		if op.BMode() != OpArgN {
			s += fmt.Sprintf(" %d", rkDisplay(op.BMode(), i.ArgB()))
		}
		if op.CMode() != OpArgN {
			s += fmt.Sprintf(" %d", rkDisplay(op.CMode(), i.ArgC()))
		}
		return s
	case OpModeABx:
		bx := i.ArgBx()
		if op.BMode() == OpArgK {
			return fmt.Sprintf("%-9s %d %d", op, i.ArgA(), -1-bx)
		}
		return fmt.Sprintf("%-9s %d %d", op, i.ArgA(), bx)
	case OpModeAsBx:
		return fmt.Sprintf("%-9s %d %d", op, i.ArgA(), i.ArgBx())
	case OpModeAx:
		return fmt.Sprintf("%-9s %d", op, i.ArgAx())
	default:
		return fmt.Sprintf("Instruction(%#08x)", uint32(i))
	}
}

func rkDisplay(mode OpArgMask, arg uint16) int {
	if mode == OpArgK && IsConstantOperand(arg) {
		return -1 - ConstantIndex(arg)
	}
	return int(arg)
}

// OpCode is an enumeration of [Instruction] types.
type OpCode uint8

// Defined [OpCode] values.
// The numbering matches the Lua 5.3 virtual machine.
const (
	// A B R(A) := R(B)
	OpMove OpCode = iota
	// A Bx R(A) := Kst(Bx)
	OpLoadK
	// A R(A) := Kst(extra arg)
	OpLoadKX
	// A B C R(A) := (Bool)B; if (C) pc++
	OpLoadBool
	// A B R(A), R(A+1), ..., R(A+B) := nil
	OpLoadNil
	// A B R(A) := UpValue[B]
	OpGetUpval
	// A B C R(A) := UpValue[B][RK(C)]
	OpGetTabUp
	// A B C R(A) := R(B)[RK(C)]
	OpGetTable
	// A B C UpValue[A][RK(B)] := RK(C)
	OpSetTabUp
	// A B UpValue[B] := R(A)
	OpSetUpval
	// A B C R(A)[RK(B)] := RK(C)
	OpSetTable
	// A B C R(A) := {} (size = B,C)
	OpNewTable
	// A B C R(A+1) := R(B); R(A) := R(B)[RK(C)]
	OpSelf
	// A B C R(A) := RK(B) + RK(C)
	OpAdd
	// A B C R(A) := RK(B) - RK(C)
	OpSub
	// A B C R(A) := RK(B) * RK(C)
	OpMul
	// A B C R(A) := RK(B) % RK(C)
	OpMod
	// A B C R(A) := RK(B) ^ RK(C)
	OpPow
	// A B C R(A) := RK(B) / RK(C)
	OpDiv
	// A B C R(A) := RK(B) // RK(C)
	OpIDiv
	// A B C R(A) := RK(B) & RK(C)
	OpBAnd
	// A B C R(A) := RK(B) | RK(C)
	OpBOr
	// A B C R(A) := RK(B) ~ RK(C)
	OpBXor
	// A B C R(A) := RK(B) << RK(C)
	OpSHL
	// A B C R(A) := RK(B) >> RK(C)
	OpSHR
	// A B R(A) := -R(B)
	OpUNM
	// A B R(A) := ~R(B)
	OpBNot
	// A B R(A) := not R(B)
	OpNot
	// A B R(A) := length of R(B)
	OpLen
	// A B C R(A) := R(B).. ... ..R(C)
	OpConcat
	// A sBx pc+=sBx; if (A) close all upvalues >= R(A - 1)
	OpJmp
	// A B C if ((RK(B) == RK(C)) ~= A) then pc++
	OpEQ
	// A B C if ((RK(B) <  RK(C)) ~= A) then pc++
	OpLT
	// A B C if ((RK(B) <= RK(C)) ~= A) then pc++
	OpLE
	// A C if not (R(A) <=> C) then pc++
	OpTest
	// A B C if (R(B) <=> C) then R(A) := R(B) else pc++
	OpTestSet
	// A B C R(A), ... ,R(A+C-2) := R(A)(R(A+1), ... ,R(A+B-1))
	OpCall
	// A B C return R(A)(R(A+1), ... ,R(A+B-1))
	OpTailCall
	// A B return R(A), ... ,R(A+B-2)
	OpReturn
	// A sBx R(A)+=R(A+2); if R(A) <?= R(A+1) then { pc+=sBx; R(A+3)=R(A) }
	OpForLoop
	// A sBx R(A)-=R(A+2); pc+=sBx
	OpForPrep
	// A C R(A+3), ... ,R(A+2+C) := R(A)(R(A+1), R(A+2))
	OpTForCall
	// A sBx if R(A+1) ~= nil then { R(A)=R(A+1); pc += sBx }
	OpTForLoop
	// A B C R(A)[(C-1)*FPF+i] := R(A+i), 1 <= i <= B
	OpSetList
	// A Bx R(A) := closure(KPROTO[Bx])
	OpClosure
	// A B R(A), R(A+1), ..., R(A+B-2) = vararg
	OpVararg
	// Ax extra (larger) argument for previous opcode
	OpExtraArg

	maxOpCode = OpExtraArg
)

var opNames = [maxOpCode + 1]string{
	OpMove:     "MOVE",
	OpLoadK:    "LOADK",
	OpLoadKX:   "LOADKX",
	OpLoadBool: "LOADBOOL",
	OpLoadNil:  "LOADNIL",
	OpGetUpval: "GETUPVAL",
	OpGetTabUp: "GETTABUP",
	OpGetTable: "GETTABLE",
	OpSetTabUp: "SETTABUP",
	OpSetUpval: "SETUPVAL",
	OpSetTable: "SETTABLE",
	OpNewTable: "NEWTABLE",
	OpSelf:     "SELF",
	OpAdd:      "ADD",
	OpSub:      "SUB",
	OpMul:      "MUL",
	OpMod:      "MOD",
	OpPow:      "POW",
	OpDiv:      "DIV",
	OpIDiv:     "IDIV",
	OpBAnd:     "BAND",
	OpBOr:      "BOR",
	OpBXor:     "BXOR",
	OpSHL:      "SHL",
	OpSHR:      "SHR",
	OpUNM:      "UNM",
	OpBNot:     "BNOT",
	OpNot:      "NOT",
	OpLen:      "LEN",
	OpConcat:   "CONCAT",
	OpJmp:      "JMP",
	OpEQ:       "EQ",
	OpLT:       "LT",
	OpLE:       "LE",
	OpTest:     "TEST",
	OpTestSet:  "TESTSET",
	OpCall:     "CALL",
	OpTailCall: "TAILCALL",
	OpReturn:   "RETURN",
	OpForLoop:  "FORLOOP",
	OpForPrep:  "FORPREP",
	OpTForCall: "TFORCALL",
	OpTForLoop: "TFORLOOP",
	OpSetList:  "SETLIST",
	OpClosure:  "CLOSURE",
	OpVararg:   "VARARG",
	OpExtraArg: "EXTRAARG",
}

// String returns the opcode's name as printed by luac.
func (op OpCode) String() string {
	if !op.IsValid() {
		return fmt.Sprintf("OpCode(%d)", uint8(op))
	}
	return opNames[op]
}

// IsValid reports whether the opcode is one of the known instructions.
func (op OpCode) IsValid() bool {
	return op <= maxOpCode
}

// OpMode is an enumeration of [Instruction] formats.
type OpMode uint8

// Instruction formats.
const (
	OpModeABC OpMode = iota
	OpModeABx
	OpModeAsBx
	OpModeAx
)

// OpArgMask is an enumeration of the ways
// an instruction's B or C field can be used.
type OpArgMask uint8

// Argument classes.
const (
	// OpArgN means the argument is not used.
	OpArgN OpArgMask = iota
	// OpArgU means the argument is used as an unsigned value.
	OpArgU
	// OpArgR means the argument is a register or a jump offset.
	OpArgR
	// OpArgK means the argument is a constant or an RK operand.
	OpArgK
)

// opProps packs each opcode's properties in a byte,
// mirroring the layout of luaP_opmodes in upstream Lua:
// test flag in bit 7, sets-A flag in bit 6,
// B class in bits 4-5, C class in bits 2-3, mode in bits 0-1.
func opProps(test, setsA bool, b, c OpArgMask, mode OpMode) byte {
	props := byte(b)<<4 | byte(c)<<2 | byte(mode)
	if test {
		props |= 1 << 7
	}
	if setsA {
		props |= 1 << 6
	}
	return props
}

var opModes = [maxOpCode + 1]byte{
	OpMove:     opProps(false, true, OpArgR, OpArgN, OpModeABC),
	OpLoadK:    opProps(false, true, OpArgK, OpArgN, OpModeABx),
	OpLoadKX:   opProps(false, true, OpArgN, OpArgN, OpModeABx),
	OpLoadBool: opProps(false, true, OpArgU, OpArgU, OpModeABC),
	OpLoadNil:  opProps(false, true, OpArgU, OpArgN, OpModeABC),
	OpGetUpval: opProps(false, true, OpArgU, OpArgN, OpModeABC),
	OpGetTabUp: opProps(false, true, OpArgU, OpArgK, OpModeABC),
	OpGetTable: opProps(false, true, OpArgR, OpArgK, OpModeABC),
	OpSetTabUp: opProps(false, false, OpArgK, OpArgK, OpModeABC),
	OpSetUpval: opProps(false, false, OpArgU, OpArgN, OpModeABC),
	OpSetTable: opProps(false, false, OpArgK, OpArgK, OpModeABC),
	OpNewTable: opProps(false, true, OpArgU, OpArgU, OpModeABC),
	OpSelf:     opProps(false, true, OpArgR, OpArgK, OpModeABC),
	OpAdd:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpSub:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpMul:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpMod:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpPow:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpDiv:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpIDiv:     opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpBAnd:     opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpBOr:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpBXor:     opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpSHL:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpSHR:      opProps(false, true, OpArgK, OpArgK, OpModeABC),
	OpUNM:      opProps(false, true, OpArgR, OpArgN, OpModeABC),
	OpBNot:     opProps(false, true, OpArgR, OpArgN, OpModeABC),
	OpNot:      opProps(false, true, OpArgR, OpArgN, OpModeABC),
	OpLen:      opProps(false, true, OpArgR, OpArgN, OpModeABC),
	OpConcat:   opProps(false, true, OpArgR, OpArgR, OpModeABC),
	OpJmp:      opProps(false, false, OpArgR, OpArgN, OpModeAsBx),
	OpEQ:       opProps(true, false, OpArgK, OpArgK, OpModeABC),
	OpLT:       opProps(true, false, OpArgK, OpArgK, OpModeABC),
	OpLE:       opProps(true, false, OpArgK, OpArgK, OpModeABC),
	OpTest:     opProps(true, false, OpArgN, OpArgU, OpModeABC),
	OpTestSet:  opProps(true, true, OpArgR, OpArgU, OpModeABC),
	OpCall:     opProps(false, true, OpArgU, OpArgU, OpModeABC),
	OpTailCall: opProps(false, true, OpArgU, OpArgU, OpModeABC),
	OpReturn:   opProps(false, false, OpArgU, OpArgN, OpModeABC),
	OpForLoop:  opProps(false, true, OpArgR, OpArgN, OpModeAsBx),
	OpForPrep:  opProps(false, true, OpArgR, OpArgN, OpModeAsBx),
	OpTForCall: opProps(false, false, OpArgN, OpArgU, OpModeABC),
	OpTForLoop: opProps(false, true, OpArgR, OpArgN, OpModeAsBx),
	OpSetList:  opProps(false, false, OpArgU, OpArgU, OpModeABC),
	OpClosure:  opProps(false, true, OpArgU, OpArgN, OpModeABx),
	OpVararg:   opProps(false, true, OpArgU, OpArgN, OpModeABC),
	OpExtraArg: opProps(false, false, OpArgU, OpArgU, OpModeAx),
}

func (op OpCode) props() byte {
	if !op.IsValid() {
		return 0
	}
	return opModes[op]
}

// OpMode returns the format of an [Instruction] that uses the opcode.
func (op OpCode) OpMode() OpMode {
	return OpMode(op.props() & 3)
}

// BMode returns how the opcode uses the B field.
func (op OpCode) BMode() OpArgMask {
	return OpArgMask(op.props() >> 4 & 3)
}

// CMode returns how the opcode uses the C field.
func (op OpCode) CMode() OpArgMask {
	return OpArgMask(op.props() >> 2 & 3)
}

// SetsA reports whether an [Instruction] that uses the opcode
// writes to the register given in [Instruction.ArgA].
func (op OpCode) SetsA() bool {
	return op.props()&(1<<6) != 0
}

// IsTest reports whether the instruction is a test;
// in a valid program, the next instruction is a jump.
func (op OpCode) IsTest() bool {
	return op.props()&(1<<7) != 0
}
