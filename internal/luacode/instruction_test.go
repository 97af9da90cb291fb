// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import "testing"

func TestABCInstruction(t *testing.T) {
	tests := []struct {
		op      OpCode
		a       uint8
		b, c    uint16
		wantStr string
	}{
		{OpMove, 1, 2, 0, "MOVE      1 2"},
		{OpCall, 0, 1, 3, "CALL      0 1 3"},
		{OpReturn, 0, 1, 0, "RETURN    0 1"},
		{OpGetTabUp, 0, 0, RKConstant(0), "GETTABUP  0 0 -1"},
		{OpSetTabUp, 0, RKConstant(1), 4, "SETTABUP  0 -2 4"},
		{OpAdd, 3, RKConstant(255), 2, "ADD       3 -256 2"},
		{OpEQ, 1, 0, RKConstant(7), "EQ        1 0 -8"},
		{OpTest, 5, 0, 0, "TEST      5 0"},
		{OpLoadBool, 2, 1, 0, "LOADBOOL  2 1 0"},
	}
	for _, test := range tests {
		i := ABCInstruction(test.op, test.a, test.b, test.c)
		if got := i.OpCode(); got != test.op {
			t.Errorf("ABCInstruction(%v, ...).OpCode() = %v", test.op, got)
		}
		if got := i.ArgA(); got != test.a {
			t.Errorf("%v: ArgA() = %d; want %d", test.op, got, test.a)
		}
		if got := i.ArgB(); got != test.b {
			t.Errorf("%v: ArgB() = %d; want %d", test.op, got, test.b)
		}
		if got := i.ArgC(); got != test.c {
			t.Errorf("%v: ArgC() = %d; want %d", test.op, got, test.c)
		}
		if got := i.String(); got != test.wantStr {
			t.Errorf("String() = %q; want %q", got, test.wantStr)
		}
	}
}

func TestABxInstruction(t *testing.T) {
	i := ABxInstruction(OpLoadK, 3, 41)
	if got := i.ArgA(); got != 3 {
		t.Errorf("ArgA() = %d; want 3", got)
	}
	if got := i.ArgBx(); got != 41 {
		t.Errorf("ArgBx() = %d; want 41", got)
	}
	if got, want := i.String(), "LOADK     3 -42"; got != want {
		t.Errorf("String() = %q; want %q", got, want)
	}

	i = ABxInstruction(OpClosure, 0, MaxArgBx)
	if got := i.ArgBx(); got != MaxArgBx {
		t.Errorf("ArgBx() = %d; want %d", got, MaxArgBx)
	}
}

func TestAsBxInstruction(t *testing.T) {
	for _, sbx := range []int32{0, 1, -1, 100, -100, MaxArgBx - OffsetSBx, -OffsetSBx} {
		i := ABxInstruction(OpJmp, 0, sbx)
		if got := i.ArgBx(); got != sbx {
			t.Errorf("JMP sBx=%d: ArgBx() = %d", sbx, got)
		}
	}
}

func TestWithArgSBx(t *testing.T) {
	i := ABxInstruction(OpJmp, 0, noJump)
	i2, ok := i.WithArgSBx(7)
	if !ok {
		t.Fatal("WithArgSBx(7) not ok")
	}
	if got := i2.ArgBx(); got != 7 {
		t.Errorf("ArgBx() = %d; want 7", got)
	}
	if _, ok := ABCInstruction(OpMove, 0, 0, 0).WithArgSBx(1); ok {
		t.Error("WithArgSBx on MOVE reported ok")
	}
}

func TestExtraArgument(t *testing.T) {
	i := ExtraArgument(123456)
	if got := i.OpCode(); got != OpExtraArg {
		t.Errorf("OpCode() = %v; want EXTRAARG", got)
	}
	if got := i.ArgAx(); got != 123456 {
		t.Errorf("ArgAx() = %d; want 123456", got)
	}
}

func TestRKOperands(t *testing.T) {
	if IsConstantOperand(0) || IsConstantOperand(255) {
		t.Error("plain register operands reported as constants")
	}
	for _, k := range []int{0, 1, MaxRKIndex} {
		arg := RKConstant(k)
		if !IsConstantOperand(arg) {
			t.Errorf("RKConstant(%d) not reported as constant", k)
		}
		if got := ConstantIndex(arg); got != k {
			t.Errorf("ConstantIndex(RKConstant(%d)) = %d", k, got)
		}
	}
}

func TestInstructionConstructorsPanic(t *testing.T) {
	tests := []struct {
		name string
		f    func()
	}{
		{"ABCWithABx", func() { ABCInstruction(OpLoadK, 0, 0, 0) }},
		{"ABxWithABC", func() { ABxInstruction(OpMove, 0, 0) }},
		{"BxOutOfRange", func() { ABxInstruction(OpLoadK, 0, MaxArgBx+1) }},
		{"SBxOutOfRange", func() { ABxInstruction(OpJmp, 0, MaxArgBx) }},
		{"BOutOfRange", func() { ABCInstruction(OpMove, 0, MaxArgB+1, 0) }},
		{"RKOutOfRange", func() { RKConstant(MaxRKIndex + 1) }},
		{"AxOutOfRange", func() { ExtraArgument(MaxArgAx + 1) }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("no panic")
				}
			}()
			test.f()
		})
	}
}

func TestOpCodeProperties(t *testing.T) {
	if mode := OpJmp.OpMode(); mode != OpModeAsBx {
		t.Errorf("JMP mode = %d; want AsBx", mode)
	}
	if mode := OpExtraArg.OpMode(); mode != OpModeAx {
		t.Errorf("EXTRAARG mode = %d; want Ax", mode)
	}
	if !OpEQ.IsTest() || !OpTest.IsTest() || !OpTestSet.IsTest() {
		t.Error("comparison and test opcodes not flagged as tests")
	}
	if OpMove.IsTest() {
		t.Error("MOVE flagged as test")
	}
	if !OpMove.SetsA() || !OpCall.SetsA() {
		t.Error("MOVE/CALL not flagged as setting A")
	}
	if OpReturn.SetsA() || OpSetTabUp.SetsA() {
		t.Error("RETURN/SETTABUP flagged as setting A")
	}
	if OpAdd.BMode() != OpArgK || OpAdd.CMode() != OpArgK {
		t.Error("ADD operand classes are not RK")
	}
	if OpConcat.BMode() != OpArgR || OpConcat.CMode() != OpArgR {
		t.Error("CONCAT operand classes are not registers")
	}
	if OpTest.BMode() != OpArgN {
		t.Error("TEST B class is not unused")
	}
}
