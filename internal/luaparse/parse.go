// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

// Package luaparse builds syntax trees for the Lua subset
// accepted by the compiler.
//
// The parser recognizes local declarations, assignments, if statements,
// do blocks, function declarations and expressions, calls, and returns.
// Constructs outside the subset (loops, tables, method calls, goto,
// varargs) are reported as errors naming the construct.
package luaparse

import (
	"fmt"

	"lunac.dev/pkg/internal/luaast"
	"lunac.dev/pkg/internal/lualex"
)

// An Error is a syntax error at a known position.
type Error struct {
	Position lualex.Position
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Position, e.Msg)
}

// Parse converts a source chunk into a syntax tree.
func Parse(source string) (*luaast.Chunk, error) {
	p := &parser{s: lualex.NewScanner(source)}
	if err := p.next(); err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != lualex.EOFToken {
		return nil, p.errorf("%v expected near %v", lualex.EOFToken, p.tok)
	}
	return &luaast.Chunk{Statements: body}, nil
}

type parser struct {
	s   *lualex.Scanner
	tok lualex.Token
}

func (p *parser) next() error {
	tok, err := p.s.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &Error{Position: p.tok.Position, Msg: fmt.Sprintf(format, args...)}
}

// expect consumes a token of the given kind
// or reports an error mentioning what was found instead.
func (p *parser) expect(kind lualex.TokenKind) (lualex.Token, error) {
	if p.tok.Kind != kind {
		return lualex.Token{}, p.errorf("%v expected near %v", kind, p.tok)
	}
	tok := p.tok
	err := p.next()
	return tok, err
}

// blockFollow reports whether the current token ends a block.
func (p *parser) blockFollow() bool {
	switch p.tok.Kind {
	case lualex.EOFToken, lualex.EndToken, lualex.ElseToken, lualex.ElseifToken, lualex.UntilToken:
		return true
	default:
		return false
	}
}

func (p *parser) block() ([]luaast.Statement, error) {
	var list []luaast.Statement
	for !p.blockFollow() {
		if p.tok.Kind == lualex.ReturnToken {
			stmt, err := p.returnStatement()
			if err != nil {
				return nil, err
			}
			return append(list, stmt), nil
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			list = append(list, stmt)
		}
	}
	return list, nil
}

func (p *parser) statement() (luaast.Statement, error) {
	switch p.tok.Kind {
	case lualex.SemiToken:
		return nil, p.next()
	case lualex.LocalToken:
		return p.localStatement()
	case lualex.IfToken:
		return p.ifStatement(p.tok.Kind)
	case lualex.DoToken:
		pos := p.tok.Position
		if err := p.next(); err != nil {
			return nil, err
		}
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lualex.EndToken); err != nil {
			return nil, err
		}
		return &luaast.BlockStatement{Do: pos, Statements: body}, nil
	case lualex.FunctionToken:
		return p.functionStatement(false)
	case lualex.WhileToken, lualex.RepeatToken, lualex.ForToken, lualex.BreakToken, lualex.GotoToken, lualex.LabelToken:
		return nil, p.errorf("%v statement is not supported", p.tok.Kind)
	default:
		return p.expressionStatement()
	}
}

func (p *parser) localStatement() (luaast.Statement, error) {
	pos := p.tok.Position
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind == lualex.FunctionToken {
		return p.functionStatement(true)
	}

	names, err := p.nameList()
	if err != nil {
		return nil, err
	}
	var values []luaast.Expression
	if p.tok.Kind == lualex.AssignToken {
		if err := p.next(); err != nil {
			return nil, err
		}
		values, err = p.expressionList()
		if err != nil {
			return nil, err
		}
	}
	return &luaast.LocalStatement{Local: pos, Names: names, Values: values}, nil
}

// functionStatement parses "function Name funcbody".
// The caller consumed "local" when isLocal is true;
// the "function" keyword is the current token either way.
func (p *parser) functionStatement(isLocal bool) (luaast.Statement, error) {
	pos := p.tok.Position
	if err := p.next(); err != nil {
		return nil, err
	}
	name, err := p.expect(lualex.IdentifierToken)
	if err != nil {
		return nil, err
	}
	if p.tok.Kind == lualex.DotToken || p.tok.Kind == lualex.ColonToken {
		return nil, p.errorf("%v in function name is not supported", p.tok.Kind)
	}
	params, body, err := p.functionBody()
	if err != nil {
		return nil, err
	}
	return &luaast.FunctionDeclaration{
		Function: pos,
		Name:     name.Value,
		IsLocal:  isLocal,
		Params:   params,
		Body:     body,
	}, nil
}

// functionBody parses "( [namelist] ) block end".
func (p *parser) functionBody() (params []string, body []luaast.Statement, err error) {
	if _, err := p.expect(lualex.LParenToken); err != nil {
		return nil, nil, err
	}
	if p.tok.Kind != lualex.RParenToken {
		if p.tok.Kind == lualex.VarargToken {
			return nil, nil, p.errorf("vararg functions are not supported")
		}
		params, err = p.nameList()
		if err != nil {
			return nil, nil, err
		}
	}
	if _, err := p.expect(lualex.RParenToken); err != nil {
		return nil, nil, err
	}
	body, err = p.block()
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(lualex.EndToken); err != nil {
		return nil, nil, err
	}
	return params, body, nil
}

// ifStatement parses the tail of an if or elseif clause;
// an elseif desugars into an if statement in the else branch.
func (p *parser) ifStatement(lead lualex.TokenKind) (luaast.Statement, error) {
	pos := p.tok.Position
	if err := p.next(); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lualex.ThenToken); err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	stmt := &luaast.IfStatement{If: pos, Condition: cond, Then: then}
	switch p.tok.Kind {
	case lualex.ElseifToken:
		alt, err := p.ifStatement(p.tok.Kind)
		if err != nil {
			return nil, err
		}
		stmt.Else = []luaast.Statement{alt}
	case lualex.ElseToken:
		if err := p.next(); err != nil {
			return nil, err
		}
		stmt.Else, err = p.block()
		if err != nil {
			return nil, err
		}
	}
	if lead == lualex.ElseifToken {
		// The enclosing if statement owns the single "end".
		return stmt, nil
	}
	if _, err := p.expect(lualex.EndToken); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) returnStatement() (luaast.Statement, error) {
	pos := p.tok.Position
	if err := p.next(); err != nil {
		return nil, err
	}
	var values []luaast.Expression
	if !p.blockFollow() && p.tok.Kind != lualex.SemiToken {
		var err error
		values, err = p.expressionList()
		if err != nil {
			return nil, err
		}
	}
	if p.tok.Kind == lualex.SemiToken {
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return &luaast.ReturnStatement{Return: pos, Values: values}, nil
}

// expressionStatement parses either an assignment or a call statement.
func (p *parser) expressionStatement() (luaast.Statement, error) {
	pos := p.tok.Position
	first, err := p.suffixedExpression()
	if err != nil {
		return nil, err
	}

	if p.tok.Kind == lualex.AssignToken || p.tok.Kind == lualex.CommaToken {
		targets := make([]*luaast.Identifier, 0, 1)
		appendTarget := func(e luaast.Expression) error {
			id, ok := e.(*luaast.Identifier)
			if !ok {
				return &Error{Position: e.Pos(), Msg: "cannot assign to this expression"}
			}
			targets = append(targets, id)
			return nil
		}
		if err := appendTarget(first); err != nil {
			return nil, err
		}
		for p.tok.Kind == lualex.CommaToken {
			if err := p.next(); err != nil {
				return nil, err
			}
			e, err := p.suffixedExpression()
			if err != nil {
				return nil, err
			}
			if err := appendTarget(e); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(lualex.AssignToken); err != nil {
			return nil, err
		}
		values, err := p.expressionList()
		if err != nil {
			return nil, err
		}
		return &luaast.AssignStatement{Targets: targets, Values: values}, nil
	}

	call, ok := first.(*luaast.CallExpression)
	if !ok {
		return nil, &Error{Position: pos, Msg: "syntax error: unexpected expression statement"}
	}
	return &luaast.CallStatement{Call: call}, nil
}

func (p *parser) nameList() ([]string, error) {
	name, err := p.expect(lualex.IdentifierToken)
	if err != nil {
		return nil, err
	}
	names := []string{name.Value}
	for p.tok.Kind == lualex.CommaToken {
		if err := p.next(); err != nil {
			return nil, err
		}
		name, err := p.expect(lualex.IdentifierToken)
		if err != nil {
			return nil, err
		}
		names = append(names, name.Value)
	}
	return names, nil
}

func (p *parser) expressionList() ([]luaast.Expression, error) {
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	list := []luaast.Expression{e}
	for p.tok.Kind == lualex.CommaToken {
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, nil
}

// Operator precedence, following the Lua 5.3 reference manual
// for the supported operators.
// Power and concatenation are right-associative.
var binaryPrecedence = map[lualex.TokenKind]struct {
	left, right int
	op          luaast.BinaryOperator
}{
	lualex.OrToken:           {1, 1, luaast.BinaryOr},
	lualex.AndToken:          {2, 2, luaast.BinaryAnd},
	lualex.LessToken:         {3, 3, luaast.BinaryLess},
	lualex.GreaterToken:      {3, 3, luaast.BinaryGreater},
	lualex.LessEqualToken:    {3, 3, luaast.BinaryLessEqual},
	lualex.GreaterEqualToken: {3, 3, luaast.BinaryGreaterEqual},
	lualex.NotEqualToken:     {3, 3, luaast.BinaryNotEqual},
	lualex.EqualToken:        {3, 3, luaast.BinaryEqual},
	lualex.ConcatToken:       {9, 8, luaast.BinaryConcat},
	lualex.AddToken:          {10, 10, luaast.BinaryAdd},
	lualex.SubToken:          {10, 10, luaast.BinarySubtract},
	lualex.MulToken:          {11, 11, luaast.BinaryMultiply},
	lualex.DivToken:          {11, 11, luaast.BinaryDivide},
	lualex.ModToken:          {11, 11, luaast.BinaryModulo},
	lualex.PowToken:          {14, 13, luaast.BinaryPower},
}

const unaryPrecedence = 12

func (p *parser) expression() (luaast.Expression, error) {
	return p.subExpression(0)
}

// subExpression implements precedence climbing:
// it consumes operators binding tighter than limit.
func (p *parser) subExpression(limit int) (luaast.Expression, error) {
	var left luaast.Expression
	switch p.tok.Kind {
	case lualex.NotToken, lualex.SubToken, lualex.LenToken:
		opPos := p.tok.Position
		var op luaast.UnaryOperator
		switch p.tok.Kind {
		case lualex.NotToken:
			op = luaast.UnaryNot
		case lualex.SubToken:
			op = luaast.UnaryNegate
		case lualex.LenToken:
			op = luaast.UnaryLength
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.subExpression(unaryPrecedence)
		if err != nil {
			return nil, err
		}
		left = &luaast.UnaryExpression{OpPos: opPos, Operator: op, Operand: operand}
	default:
		var err error
		left, err = p.simpleExpression()
		if err != nil {
			return nil, err
		}
	}

	for {
		prec, isBinary := binaryPrecedence[p.tok.Kind]
		if !isBinary || prec.left <= limit {
			return left, nil
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.subExpression(prec.right)
		if err != nil {
			return nil, err
		}
		left = &luaast.BinaryExpression{Left: left, Operator: prec.op, Right: right}
	}
}

func (p *parser) simpleExpression() (luaast.Expression, error) {
	pos := p.tok.Position
	switch p.tok.Kind {
	case lualex.NumeralToken:
		i, f, isInteger, err := lualex.ParseNumeral(p.tok.Value)
		if err != nil {
			return nil, p.errorf("malformed number near %v", p.tok)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return &luaast.NumberLiteral{ValuePos: pos, IsInteger: isInteger, Integer: i, Float: f}, nil
	case lualex.StringToken:
		value := p.tok.Value
		if err := p.next(); err != nil {
			return nil, err
		}
		return &luaast.StringLiteral{ValuePos: pos, Value: value}, nil
	case lualex.NilToken:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &luaast.NilLiteral{ValuePos: pos}, nil
	case lualex.TrueToken, lualex.FalseToken:
		value := p.tok.Kind == lualex.TrueToken
		if err := p.next(); err != nil {
			return nil, err
		}
		return &luaast.BooleanLiteral{ValuePos: pos, Value: value}, nil
	case lualex.FunctionToken:
		if err := p.next(); err != nil {
			return nil, err
		}
		params, body, err := p.functionBody()
		if err != nil {
			return nil, err
		}
		return &luaast.FunctionExpression{Function: pos, Params: params, Body: body}, nil
	case lualex.LBraceToken:
		return nil, p.errorf("table constructors are not supported")
	case lualex.VarargToken:
		return nil, p.errorf("vararg expressions are not supported")
	default:
		return p.suffixedExpression()
	}
}

// suffixedExpression parses a primary expression
// followed by any number of call argument lists.
func (p *parser) suffixedExpression() (luaast.Expression, error) {
	e, err := p.primaryExpression()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.Kind {
		case lualex.LParenToken:
			if err := p.next(); err != nil {
				return nil, err
			}
			var args []luaast.Expression
			if p.tok.Kind != lualex.RParenToken {
				args, err = p.expressionList()
				if err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(lualex.RParenToken); err != nil {
				return nil, err
			}
			e = &luaast.CallExpression{Function: e, Arguments: args}
		case lualex.StringToken:
			arg := &luaast.StringLiteral{ValuePos: p.tok.Position, Value: p.tok.Value}
			if err := p.next(); err != nil {
				return nil, err
			}
			e = &luaast.CallExpression{Function: e, Arguments: []luaast.Expression{arg}}
		case lualex.ColonToken:
			return nil, p.errorf("method calls are not supported")
		case lualex.DotToken, lualex.LBracketToken:
			return nil, p.errorf("indexing is not supported")
		default:
			return e, nil
		}
	}
}

func (p *parser) primaryExpression() (luaast.Expression, error) {
	switch p.tok.Kind {
	case lualex.IdentifierToken:
		e := &luaast.Identifier{NamePos: p.tok.Position, Name: p.tok.Value}
		return e, p.next()
	case lualex.LParenToken:
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lualex.RParenToken); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, p.errorf("unexpected symbol near %v", p.tok)
	}
}
