// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"

	"lunac.dev/pkg/internal/luaast"
)

// EnvName is the name of the implicit upvalue
// through which global accesses are routed.
// It is always upvalue 0 of the main chunk.
const EnvName = "_ENV"

// allResults requests every result of a multi-valued expression,
// however many that turns out to be at run time.
const allResults = -1

// Generate compiles a syntax tree into a prototype tree.
//
// Every expression visit receives two pieces of context from its caller:
// the destination register its primary result must be delivered to
// ([noRegister] meaning "no preference, pick one"),
// and the number of results the caller wants from a multi-valued producer
// (1 by default, [allResults] for "everything up to the stack top").
// Both travel down the recursion as explicit parameters,
// so the strictly LIFO discipline of the context
// is carried by the call stack itself.
func Generate(source Source, chunk *luaast.Chunk) (*Prototype, error) {
	fs := newFuncState(source)
	fs.IsVararg = true
	if _, err := fs.addUpvalue(UpvalueDescriptor{Name: EnvName, InStack: true, Index: 0}); err != nil {
		return nil, err
	}
	if err := fs.statements(chunk.Statements); err != nil {
		return nil, err
	}
	fs.code(ABCInstruction(OpReturn, 0, 1, 0))
	return fs.Prototype, nil
}

func (fs *funcState) statements(list []luaast.Statement) error {
	for _, stmt := range list {
		if err := fs.statement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (fs *funcState) statement(stmt luaast.Statement) error {
	switch stmt := stmt.(type) {
	case *luaast.LocalStatement:
		return fs.localStatement(stmt)
	case *luaast.AssignStatement:
		return fs.assignStatement(stmt)
	case *luaast.IfStatement:
		return fs.ifStatement(stmt)
	case *luaast.BlockStatement:
		return fs.statements(stmt.Statements)
	case *luaast.CallStatement:
		_, err := fs.expression(stmt.Call, noRegister, 0)
		return err
	case *luaast.ReturnStatement:
		return fs.returnStatement(stmt)
	case *luaast.FunctionDeclaration:
		return fs.functionDeclaration(stmt)
	default:
		return fmt.Errorf("%v: unsupported construct %T", stmt.Pos(), stmt)
	}
}

// localStatement declares each name with a fresh register,
// then evaluates the initializing expressions into those registers.
// A call in trailing position delivers every remaining name at once;
// names with no expression at all are initialized to nil.
func (fs *funcState) localStatement(stmt *luaast.LocalStatement) error {
	base := fs.nextRegister
	for _, name := range stmt.Names {
		reg, err := fs.reserveRegister()
		if err != nil {
			return err
		}
		fs.defineLocal(name, reg)
	}

	n := len(stmt.Names)
	m := len(stmt.Values)
	lastIsCall := m > 0 && m <= n && isCallExpression(stmt.Values[m-1])
	for i, name := range stmt.Names {
		reg, err := fs.localRegister(name)
		if err != nil {
			return err
		}
		switch {
		case lastIsCall && i == m-1:
			// The call populates this register and every one after it.
			if _, err := fs.expression(stmt.Values[i], reg, n-m+1); err != nil {
				return err
			}
		case lastIsCall && i >= m:
			// Already populated by the trailing call.
		case i < m:
			if _, err := fs.expression(stmt.Values[i], reg, 1); err != nil {
				return err
			}
		default:
			fs.code(ABCInstruction(OpLoadNil, uint8(reg), 0, 0))
		}
	}

	// A trailing call rewinds the register window to its result count;
	// the declared locals always stay reserved.
	if fs.nextRegister < base+registerIndex(n) {
		fs.setNextRegister(base + registerIndex(n))
	}
	return nil
}

// assignTarget describes where one assignment target stores its value.
// Local stores happen in place;
// upvalue and global stores are deferred until every value is evaluated.
type assignTarget struct {
	localReg registerIndex
	isLocal  bool
	upval    upvalueIndex
	isUpval  bool
	// nameRK is the RK operand of the global's name constant.
	nameRK uint16

	valueReg registerIndex
}

// assignStatement evaluates each value into its target's register
// (a temporary for upvalue and global targets),
// then flushes the deferred SETUPVAL and SETTABUP stores
// in collection order.
func (fs *funcState) assignStatement(stmt *luaast.AssignStatement) error {
	n := len(stmt.Targets)
	m := len(stmt.Values)
	lastIsCall := m > 0 && m <= n && isCallExpression(stmt.Values[m-1])

	var deferred []assignTarget
	var callBase registerIndex
	for i, target := range stmt.Targets {
		st, err := fs.resolveAssignTarget(target.Name)
		if err != nil {
			return err
		}

		switch {
		case lastIsCall && i == m-1:
			// The trailing call delivers this target's value
			// and one more for each remaining target.
			dest := st.localReg
			if !st.isLocal {
				if dest, err = fs.usableRegister(); err != nil {
					return err
				}
			}
			callBase, err = fs.expression(stmt.Values[i], dest, n-m+1)
			if err != nil {
				return err
			}
			st.valueReg = callBase
		case lastIsCall && i >= m:
			st.valueReg = callBase + registerIndex(i-(m-1))
			if st.isLocal && st.localReg != st.valueReg {
				fs.code(ABCInstruction(OpMove, uint8(st.localReg), uint16(st.valueReg), 0))
			}
		default:
			dest := st.localReg
			if !st.isLocal {
				if dest, err = fs.usableRegister(); err != nil {
					return err
				}
			}
			if i < m {
				if _, err := fs.expression(stmt.Values[i], dest, 1); err != nil {
					return err
				}
			} else {
				fs.code(ABCInstruction(OpLoadNil, uint8(dest), 0, 0))
			}
			st.valueReg = dest
		}

		if !st.isLocal {
			deferred = append(deferred, st)
		}
	}

	for _, st := range deferred {
		if st.isUpval {
			fs.code(ABCInstruction(OpSetUpval, uint8(st.valueReg), uint16(st.upval), 0))
			continue
		}
		env, err := fs.env()
		if err != nil {
			return err
		}
		fs.code(ABCInstruction(OpSetTabUp, uint8(env), st.nameRK, uint16(st.valueReg)))
	}
	return nil
}

// resolveAssignTarget classifies an assignment target
// as a local, an upvalue, or a global.
// A global's name is interned immediately
// so the constant precedes any the value expression adds.
func (fs *funcState) resolveAssignTarget(name string) (assignTarget, error) {
	if reg, ok := fs.searchLocal(name); ok {
		return assignTarget{isLocal: true, localReg: reg}, nil
	}
	if idx, found, err := fs.resolveUpvalue(name); err != nil {
		return assignTarget{}, err
	} else if found {
		return assignTarget{isUpval: true, upval: idx}, nil
	}
	k := fs.addConstant(StringValue(name))
	if k > MaxRKIndex {
		return assignTarget{}, fmt.Errorf("too many constants while assigning to %q", name)
	}
	return assignTarget{nameRK: RKConstant(k)}, nil
}

// ifStatement lowers a conditional to a test/jump sequence:
//
//	TEST reg 0
//	JMP  else            ; taken when the condition is false
//	<consequent>
//	JMP  end
//	else: <alternate>
//	end:
func (fs *funcState) ifStatement(stmt *luaast.IfStatement) error {
	testReg, err := fs.expression(stmt.Condition, noRegister, 0)
	if err != nil {
		return err
	}
	fs.code(ABCInstruction(OpTest, uint8(testReg), 0, 0))
	jmpElse := fs.codeJump()
	if err := fs.statements(stmt.Then); err != nil {
		return err
	}
	jmpEnd := fs.codeJump()
	if err := fs.fixJump(jmpElse, len(fs.Code)); err != nil {
		return err
	}
	if err := fs.statements(stmt.Else); err != nil {
		return err
	}
	return fs.fixJump(jmpEnd, len(fs.Code))
}

func (fs *funcState) returnStatement(stmt *luaast.ReturnStatement) error {
	if len(stmt.Values) == 0 {
		fs.code(ABCInstruction(OpReturn, 0, 1, 0))
		return nil
	}
	first := fs.nextRegister
	for _, e := range stmt.Values {
		reg, err := fs.reserveRegister()
		if err != nil {
			return err
		}
		if _, err := fs.expression(e, reg, 1); err != nil {
			return err
		}
	}
	fs.code(ABCInstruction(OpReturn, uint8(first), uint16(len(stmt.Values)+1), 0))
	return nil
}

// functionDeclaration compiles the function body into a child prototype
// and binds the resulting closure to its name:
// a fresh local for "local function",
// a global store through _ENV otherwise.
func (fs *funcState) functionDeclaration(stmt *luaast.FunctionDeclaration) error {
	reg, err := fs.closure(stmt.Params, stmt.Body, noRegister)
	if err != nil {
		return err
	}
	if stmt.IsLocal {
		fs.defineLocal(stmt.Name, reg)
		return nil
	}
	env, err := fs.env()
	if err != nil {
		return err
	}
	k := fs.addConstant(StringValue(stmt.Name))
	if k > MaxRKIndex {
		return fmt.Errorf("too many constants while declaring function %q", stmt.Name)
	}
	fs.code(ABCInstruction(OpSetTabUp, uint8(env), RKConstant(k), uint16(reg)))
	return nil
}

// closure compiles a function body into a child prototype
// and emits the CLOSURE instruction into dest.
func (fs *funcState) closure(params []string, body []luaast.Statement, dest registerIndex) (registerIndex, error) {
	child := fs.newChild()
	child.NumParams = uint8(len(params))
	for _, param := range params {
		reg, err := child.reserveRegister()
		if err != nil {
			return noRegister, err
		}
		child.defineLocal(param, reg)
	}
	if err := child.statements(body); err != nil {
		return noRegister, err
	}
	child.code(ABCInstruction(OpReturn, 0, 1, 0))

	reg, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	fs.code(ABxInstruction(OpClosure, uint8(reg), int32(child.childIndex)))
	return reg, nil
}

// expression generates code delivering the expression's value
// into the dest register
// ([noRegister] lets the expression pick; locals resolve in place)
// and returns the register actually holding the result.
// results is the number of values the caller wants
// from a multi-valued producer.
func (fs *funcState) expression(e luaast.Expression, dest registerIndex, results int) (registerIndex, error) {
	switch e := e.(type) {
	case *luaast.NilLiteral:
		reg, err := fs.target(dest)
		if err != nil {
			return noRegister, err
		}
		fs.code(ABCInstruction(OpLoadNil, uint8(reg), 0, 0))
		return reg, nil
	case *luaast.BooleanLiteral:
		reg, err := fs.target(dest)
		if err != nil {
			return noRegister, err
		}
		var b uint16
		if e.Value {
			b = 1
		}
		fs.code(ABCInstruction(OpLoadBool, uint8(reg), b, 0))
		return reg, nil
	case *luaast.NumberLiteral:
		return fs.constantExpression(numberValue(e), dest)
	case *luaast.StringLiteral:
		return fs.constantExpression(StringValue(e.Value), dest)
	case *luaast.Identifier:
		return fs.identifier(e, dest)
	case *luaast.FunctionExpression:
		return fs.closure(e.Params, e.Body, dest)
	case *luaast.CallExpression:
		return fs.callExpression(e, dest, results)
	case *luaast.BinaryExpression:
		return fs.binaryExpression(e, dest, results)
	case *luaast.UnaryExpression:
		return fs.unaryExpression(e, dest)
	default:
		return noRegister, fmt.Errorf("%v: unsupported construct %T", e.Pos(), e)
	}
}

// target resolves the destination channel:
// the caller's register if it named one, a usable register otherwise.
func (fs *funcState) target(dest registerIndex) (registerIndex, error) {
	if dest != noRegister {
		return dest, nil
	}
	return fs.usableRegister()
}

func (fs *funcState) constantExpression(v Value, dest registerIndex) (registerIndex, error) {
	reg, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	k := fs.addConstant(v)
	if k > MaxArgBx {
		return noRegister, fmt.Errorf("too many constants (%d)", k)
	}
	fs.code(ABxInstruction(OpLoadK, uint8(reg), int32(k)))
	return reg, nil
}

// identifier generates an rvalue reference:
// locals resolve to their own register
// (copied only when the caller demands a particular one),
// captured names load through GETUPVAL,
// and anything else is a global read through _ENV.
func (fs *funcState) identifier(e *luaast.Identifier, dest registerIndex) (registerIndex, error) {
	if lreg, ok := fs.searchLocal(e.Name); ok {
		if dest == noRegister || dest == lreg {
			return lreg, nil
		}
		fs.code(ABCInstruction(OpMove, uint8(dest), uint16(lreg), 0))
		return dest, nil
	}

	reg, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	if idx, found, err := fs.resolveUpvalue(e.Name); err != nil {
		return noRegister, err
	} else if found {
		fs.code(ABCInstruction(OpGetUpval, uint8(reg), uint16(idx), 0))
		return reg, nil
	}

	env, err := fs.env()
	if err != nil {
		return noRegister, err
	}
	k := fs.addConstant(StringValue(e.Name))
	if k > MaxRKIndex {
		return noRegister, fmt.Errorf("too many constants while reading %q", e.Name)
	}
	fs.code(ABCInstruction(OpGetTabUp, uint8(reg), uint16(env), RKConstant(k)))
	return reg, nil
}

// callExpression places the callable in the target register,
// forces the arguments into the contiguous block directly above it
// (a CALL invariant of the virtual machine),
// and encodes the caller's result expectation in the C field.
func (fs *funcState) callExpression(e *luaast.CallExpression, dest registerIndex, results int) (registerIndex, error) {
	callReg, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	if _, err := fs.expression(e.Function, callReg, 1); err != nil {
		return noRegister, err
	}
	fs.setNextRegister(callReg + 1)

	b := uint16(len(e.Arguments) + 1)
	for i, arg := range e.Arguments {
		argReg, err := fs.reserveRegister()
		if err != nil {
			return noRegister, err
		}
		argResults := 1
		if i == len(e.Arguments)-1 && isCallExpression(arg) {
			// A trailing call feeds every result to this call.
			argResults = allResults
			b = 0
		}
		if _, err := fs.expression(arg, argReg, argResults); err != nil {
			return noRegister, err
		}
	}

	var c uint16
	switch {
	case results == allResults:
		c = 0
	case results == 0:
		c = 1
	default:
		c = uint16(results) + 1
	}
	fs.code(ABCInstruction(OpCall, uint8(callReg), b, c))

	// Rewind the register window to the results actually kept,
	// so later code can overwrite the argument tail.
	switch {
	case results == allResults:
		// The stack top is dynamic; leave the window alone.
	default:
		fs.setNextRegister(callReg + registerIndex(results))
	}
	return callReg, nil
}

func (fs *funcState) binaryExpression(e *luaast.BinaryExpression, dest registerIndex, results int) (registerIndex, error) {
	switch {
	case e.Operator.IsLogical():
		return fs.logicalExpression(e, dest)
	case e.Operator.IsComparison():
		return fs.comparisonExpression(e, dest, results)
	default:
		return fs.arithmeticExpression(e, dest)
	}
}

var arithmeticOpcodes = map[luaast.BinaryOperator]OpCode{
	luaast.BinaryAdd:      OpAdd,
	luaast.BinarySubtract: OpSub,
	luaast.BinaryMultiply: OpMul,
	luaast.BinaryDivide:   OpDiv,
	luaast.BinaryModulo:   OpMod,
	luaast.BinaryPower:    OpPow,
	luaast.BinaryConcat:   OpConcat,
}

// arithmeticExpression emits an arithmetic or concatenation instruction.
// Numeric and string literal operands fold into RK constants
// where the opcode allows;
// concatenation operands always live in registers.
func (fs *funcState) arithmeticExpression(e *luaast.BinaryExpression, dest registerIndex) (registerIndex, error) {
	op, known := arithmeticOpcodes[e.Operator]
	if !known {
		return noRegister, fmt.Errorf("%v: unsupported binary operator %v", e.Pos(), e.Operator)
	}
	a, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	allowConstant := op != OpConcat
	b, err := fs.operand(e.Left, allowConstant)
	if err != nil {
		return noRegister, err
	}
	c, err := fs.operand(e.Right, allowConstant)
	if err != nil {
		return noRegister, err
	}
	fs.code(ABCInstruction(op, uint8(a), b, c))
	return a, nil
}

// operand prepares one side of a binary instruction:
// an RK constant for interned literals when permitted,
// otherwise a register holding the evaluated expression.
func (fs *funcState) operand(e luaast.Expression, allowConstant bool) (uint16, error) {
	if allowConstant {
		if v, isLiteral := literalValue(e); isLiteral {
			if k := fs.addConstant(v); k <= MaxRKIndex {
				return RKConstant(k), nil
			}
		}
	}
	reg, err := fs.expression(e, noRegister, 1)
	if err != nil {
		return 0, err
	}
	return uint16(reg), nil
}

// literalValue returns the constant for a numeric or string literal.
func literalValue(e luaast.Expression) (_ Value, isLiteral bool) {
	switch lit := e.(type) {
	case *luaast.NumberLiteral:
		return numberValue(lit), true
	case *luaast.StringLiteral:
		return StringValue(lit.Value), true
	default:
		return Value{}, false
	}
}

// comparisonExpression lowers ==, ~=, <, <=, >, and >=
// onto the EQ, LT, and LE opcodes.
// The A field is the outcome that lets execution continue;
// > and >= keep their textual operand order
// and express the negation through A instead.
// When the caller wants a boolean value,
// the canonical jump/load-bool/load-bool tail materializes it.
func (fs *funcState) comparisonExpression(e *luaast.BinaryExpression, dest registerIndex, results int) (registerIndex, error) {
	var op OpCode
	var want uint8
	switch e.Operator {
	case luaast.BinaryEqual:
		op, want = OpEQ, 1
	case luaast.BinaryNotEqual:
		op, want = OpEQ, 0
	case luaast.BinaryLess:
		op, want = OpLT, 1
	case luaast.BinaryLessEqual:
		op, want = OpLE, 1
	case luaast.BinaryGreater:
		op, want = OpLT, 0
	case luaast.BinaryGreaterEqual:
		op, want = OpLE, 0
	}
	b, err := fs.operand(e.Left, true)
	if err != nil {
		return noRegister, err
	}
	c, err := fs.operand(e.Right, true)
	if err != nil {
		return noRegister, err
	}
	fs.code(ABCInstruction(op, want, b, c))

	if results != 1 {
		// A bare test (as in an if condition) produces no value;
		// report the register the test inspects.
		switch {
		case !IsConstantOperand(b):
			return registerIndex(b), nil
		case !IsConstantOperand(c):
			return registerIndex(c), nil
		default:
			return fs.target(dest)
		}
	}

	reg, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	fs.code(ABxInstruction(OpJmp, 0, 1))
	fs.code(ABCInstruction(OpLoadBool, uint8(reg), 0, 1))
	fs.code(ABCInstruction(OpLoadBool, uint8(reg), 1, 0))
	return reg, nil
}

// logicalExpression lowers "and" and "or" into a TESTSET chain:
// the left value is kept (and the right side skipped)
// when it already decides the result,
// otherwise the right side's value is moved into the target.
func (fs *funcState) logicalExpression(e *luaast.BinaryExpression, dest registerIndex) (registerIndex, error) {
	t, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	left, err := fs.expression(e.Left, noRegister, 1)
	if err != nil {
		return noRegister, err
	}
	var c uint16
	if e.Operator == luaast.BinaryOr {
		c = 1
	}
	fs.code(ABCInstruction(OpTestSet, uint8(t), uint16(left), c))
	jmp := fs.codeJump()
	right, err := fs.expression(e.Right, noRegister, 1)
	if err != nil {
		return noRegister, err
	}
	fs.code(ABCInstruction(OpMove, uint8(t), uint16(right), 0))
	if err := fs.fixJump(jmp, len(fs.Code)); err != nil {
		return noRegister, err
	}
	return t, nil
}

var unaryOpcodes = map[luaast.UnaryOperator]OpCode{
	luaast.UnaryNegate: OpUNM,
	luaast.UnaryNot:    OpNot,
	luaast.UnaryLength: OpLen,
}

func (fs *funcState) unaryExpression(e *luaast.UnaryExpression, dest registerIndex) (registerIndex, error) {
	op, known := unaryOpcodes[e.Operator]
	if !known {
		return noRegister, fmt.Errorf("%v: unsupported unary operator %v", e.Pos(), e.Operator)
	}
	a, err := fs.target(dest)
	if err != nil {
		return noRegister, err
	}
	operand, err := fs.expression(e.Operand, noRegister, 1)
	if err != nil {
		return noRegister, err
	}
	fs.code(ABCInstruction(op, uint8(a), uint16(operand), 0))
	return a, nil
}

// env returns the index of the _ENV upvalue in this function,
// capturing it through enclosing functions on first use.
func (fs *funcState) env() (upvalueIndex, error) {
	idx, found, err := fs.resolveUpvalue(EnvName)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("internal error: %s does not exist", EnvName)
	}
	return idx, nil
}

// localRegister returns the register of a local that must exist.
func (fs *funcState) localRegister(name string) (registerIndex, error) {
	reg, ok := fs.searchLocal(name)
	if !ok {
		return noRegister, fmt.Errorf("local %q is not declared", name)
	}
	return reg, nil
}

func numberValue(e *luaast.NumberLiteral) Value {
	if e.IsInteger {
		return IntegerValue(e.Integer)
	}
	return FloatValue(e.Float)
}

func isCallExpression(e luaast.Expression) bool {
	_, ok := e.(*luaast.CallExpression)
	return ok
}
