// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luaparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunac.dev/pkg/internal/luaast"
)

func TestParseLocalStatement(t *testing.T) {
	chunk, err := Parse("local a, b = f(), 2")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	local, ok := chunk.Statements[0].(*luaast.LocalStatement)
	require.True(t, ok, "statement is %T", chunk.Statements[0])
	assert.Equal(t, []string{"a", "b"}, local.Names)
	require.Len(t, local.Values, 2)

	call, ok := local.Values[0].(*luaast.CallExpression)
	require.True(t, ok, "first value is %T", local.Values[0])
	callee, ok := call.Function.(*luaast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "f", callee.Name)
	assert.Empty(t, call.Arguments)

	num, ok := local.Values[1].(*luaast.NumberLiteral)
	require.True(t, ok, "second value is %T", local.Values[1])
	assert.True(t, num.IsInteger)
	assert.Equal(t, int64(2), num.Integer)
}

func TestParseAssignment(t *testing.T) {
	chunk, err := Parse("x, y = y, x")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	assign, ok := chunk.Statements[0].(*luaast.AssignStatement)
	require.True(t, ok, "statement is %T", chunk.Statements[0])
	require.Len(t, assign.Targets, 2)
	assert.Equal(t, "x", assign.Targets[0].Name)
	assert.Equal(t, "y", assign.Targets[1].Name)
	require.Len(t, assign.Values, 2)
}

func TestParseIfStatement(t *testing.T) {
	chunk, err := Parse("if a == 1 then b = 2 else b = 3 end")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	ifStmt, ok := chunk.Statements[0].(*luaast.IfStatement)
	require.True(t, ok, "statement is %T", chunk.Statements[0])

	cond, ok := ifStmt.Condition.(*luaast.BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, luaast.BinaryEqual, cond.Operator)
	assert.Len(t, ifStmt.Then, 1)
	assert.Len(t, ifStmt.Else, 1)
}

func TestParseElseifChain(t *testing.T) {
	chunk, err := Parse("if a then x = 1 elseif b then x = 2 else x = 3 end")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	outer, ok := chunk.Statements[0].(*luaast.IfStatement)
	require.True(t, ok)
	require.Len(t, outer.Else, 1)
	inner, ok := outer.Else[0].(*luaast.IfStatement)
	require.True(t, ok, "else branch is %T", outer.Else[0])
	assert.Len(t, inner.Then, 1)
	assert.Len(t, inner.Else, 1)
}

func TestParseFunctionDeclaration(t *testing.T) {
	chunk, err := Parse("local function add(x, y) return x + y end")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	fn, ok := chunk.Statements[0].(*luaast.FunctionDeclaration)
	require.True(t, ok, "statement is %T", chunk.Statements[0])
	assert.True(t, fn.IsLocal)
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, []string{"x", "y"}, fn.Params)
	require.Len(t, fn.Body, 1)

	ret, ok := fn.Body[0].(*luaast.ReturnStatement)
	require.True(t, ok)
	require.Len(t, ret.Values, 1)
	sum, ok := ret.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, luaast.BinaryAdd, sum.Operator)
}

func TestParseGlobalFunctionDeclaration(t *testing.T) {
	chunk, err := Parse("function greet() print('hi') end")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	fn, ok := chunk.Statements[0].(*luaast.FunctionDeclaration)
	require.True(t, ok)
	assert.False(t, fn.IsLocal)
	assert.Equal(t, "greet", fn.Name)
	assert.Empty(t, fn.Params)
}

func TestParseCallStatement(t *testing.T) {
	chunk, err := Parse(`print("hello", 1 + 2, g())`)
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	call, ok := chunk.Statements[0].(*luaast.CallStatement)
	require.True(t, ok, "statement is %T", chunk.Statements[0])
	assert.Len(t, call.Call.Arguments, 3)
}

func TestParseStringArgumentCall(t *testing.T) {
	chunk, err := Parse(`require "mod"`)
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)

	call, ok := chunk.Statements[0].(*luaast.CallStatement)
	require.True(t, ok)
	require.Len(t, call.Call.Arguments, 1)
	arg, ok := call.Call.Arguments[0].(*luaast.StringLiteral)
	require.True(t, ok)
	assert.Equal(t, "mod", arg.Value)
}

func TestParsePrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3).
	chunk, err := Parse("x = 1 + 2 * 3")
	require.NoError(t, err)
	assign := chunk.Statements[0].(*luaast.AssignStatement)
	sum, ok := assign.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	require.Equal(t, luaast.BinaryAdd, sum.Operator)
	product, ok := sum.Right.(*luaast.BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, luaast.BinaryMultiply, product.Operator)

	// Comparison binds looser than arithmetic.
	chunk, err = Parse("x = a + 1 < b")
	require.NoError(t, err)
	assign = chunk.Statements[0].(*luaast.AssignStatement)
	cmp, ok := assign.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, luaast.BinaryLess, cmp.Operator)

	// Power is right-associative: 2 ^ 3 ^ 2 is 2 ^ (3 ^ 2).
	chunk, err = Parse("x = 2 ^ 3 ^ 2")
	require.NoError(t, err)
	assign = chunk.Statements[0].(*luaast.AssignStatement)
	pow, ok := assign.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	require.Equal(t, luaast.BinaryPower, pow.Operator)
	_, isNested := pow.Right.(*luaast.BinaryExpression)
	assert.True(t, isNested)

	// Unary binds tighter than binary arithmetic.
	chunk, err = Parse("x = -a + b")
	require.NoError(t, err)
	assign = chunk.Statements[0].(*luaast.AssignStatement)
	sum, ok = assign.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	require.Equal(t, luaast.BinaryAdd, sum.Operator)
	_, isUnary := sum.Left.(*luaast.UnaryExpression)
	assert.True(t, isUnary)

	// Concatenation is right-associative.
	chunk, err = Parse(`x = "a" .. "b" .. "c"`)
	require.NoError(t, err)
	assign = chunk.Statements[0].(*luaast.AssignStatement)
	cat, ok := assign.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	require.Equal(t, luaast.BinaryConcat, cat.Operator)
	_, isNested = cat.Right.(*luaast.BinaryExpression)
	assert.True(t, isNested)
}

func TestParseParenthesizedExpression(t *testing.T) {
	chunk, err := Parse("x = (1 + 2) * 3")
	require.NoError(t, err)
	assign := chunk.Statements[0].(*luaast.AssignStatement)
	product, ok := assign.Values[0].(*luaast.BinaryExpression)
	require.True(t, ok)
	require.Equal(t, luaast.BinaryMultiply, product.Operator)
	sum, ok := product.Left.(*luaast.BinaryExpression)
	require.True(t, ok)
	assert.Equal(t, luaast.BinaryAdd, sum.Operator)
}

func TestParseReturnStatement(t *testing.T) {
	chunk, err := Parse("return 1, f()")
	require.NoError(t, err)
	require.Len(t, chunk.Statements, 1)
	ret, ok := chunk.Statements[0].(*luaast.ReturnStatement)
	require.True(t, ok)
	assert.Len(t, ret.Values, 2)

	chunk, err = Parse("return")
	require.NoError(t, err)
	ret = chunk.Statements[0].(*luaast.ReturnStatement)
	assert.Empty(t, ret.Values)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		source  string
		wantMsg string
	}{
		{"while true do end", "not supported"},
		{"for i = 1, 10 do end", "not supported"},
		{"x = {1, 2}", "not supported"},
		{"obj:method()", "not supported"},
		{"t.field = 1", "not supported"},
		{"function t.f() end", "not supported"},
		{"x = ...", "not supported"},
		{"goto done", "not supported"},
		{"local function f(...) end", "not supported"},
		{"1 + 2", "unexpected"},
		{"local a =", "unexpected symbol"},
		{"if a then", "end expected"},
		{"f(, 1)", "unexpected symbol"},
		{"x, f() = 2, 3", "cannot assign"},
	}
	for _, test := range tests {
		_, err := Parse(test.source)
		if assert.Error(t, err, "Parse(%q)", test.source) {
			assert.Contains(t, err.Error(), test.wantMsg, "Parse(%q)", test.source)
		}
	}
}
