// Copyright (C) 1994-2017 Lua.org, PUC-Rio.
// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"math"
	"strconv"
	"strings"

	"lunac.dev/pkg/internal/lualex"
)

type valueType byte

const (
	valueTypeNil     valueType = 0
	valueTypeBoolean valueType = 1
	valueTypeNumber  valueType = 3
	valueTypeString  valueType = 4
)

// Variants.
const (
	valueTypeFalse   = valueTypeBoolean
	valueTypeTrue    = valueTypeBoolean | (1 << 4)
	valueTypeFloat   = valueTypeNumber
	valueTypeInteger = valueTypeNumber | (1 << 4)
)

func (t valueType) noVariant() valueType {
	return t & 0x0f
}

// Value is a Lua value that can live in a constant table:
// nil, a boolean, a float, an integer, or a string.
// The zero value is nil.
//
// Values are comparable with the == operator,
// which is exactly the constant-table identity the compiler needs:
// floats compare bitwise
// (so -0.0 and 0.0 are distinct constants and NaN equals itself)
// and integers never equal floats.
type Value struct {
	bits uint64
	s    string
	t    valueType
}

// BoolValue converts a boolean to a [Value].
func BoolValue(b bool) Value {
	if b {
		return Value{t: valueTypeTrue}
	}
	return Value{t: valueTypeFalse}
}

// IntegerValue converts an integer to a [Value].
func IntegerValue(i int64) Value {
	return Value{t: valueTypeInteger, bits: uint64(i)}
}

// FloatValue converts a floating-point number to a [Value].
func FloatValue(f float64) Value {
	return Value{t: valueTypeFloat, bits: math.Float64bits(f)}
}

// StringValue converts a string to a [Value].
func StringValue(s string) Value {
	return Value{t: valueTypeString, s: s}
}

// IsNil reports whether v is the zero value.
func (v Value) IsNil() bool {
	return v.t == valueTypeNil
}

// IsBoolean reports whether the value is a boolean.
func (v Value) IsBoolean() bool {
	return v.t.noVariant() == valueTypeBoolean
}

// IsNumber reports whether the value is an integer or a float.
func (v Value) IsNumber() bool {
	return v.t.noVariant() == valueTypeNumber
}

// IsInteger reports whether the value is an integer.
func (v Value) IsInteger() bool {
	return v.t == valueTypeInteger
}

// IsString reports whether the value is a string.
func (v Value) IsString() bool {
	return v.t.noVariant() == valueTypeString
}

func (v Value) isShortString() bool {
	return v.t.noVariant() == valueTypeString && len(v.s) < 40
}

// Bool returns the value's truth
// and reports whether the value is a boolean.
func (v Value) Bool() (_ bool, isBool bool) {
	return v.t != valueTypeNil && v.t != valueTypeFalse, v.t.noVariant() == valueTypeBoolean
}

// Float64 returns the value as a floating-point number
// and reports whether the value is a number.
// No coercion of other types occurs.
func (v Value) Float64() (_ float64, isNumber bool) {
	switch v.t {
	case valueTypeInteger:
		return float64(int64(v.bits)), true
	case valueTypeFloat:
		return math.Float64frombits(v.bits), true
	default:
		return 0, false
	}
}

// Int64 returns the value as an integer
// and reports whether the value is an integer.
// Floats are not converted.
func (v Value) Int64() (_ int64, isInteger bool) {
	if v.t != valueTypeInteger {
		return 0, false
	}
	return int64(v.bits), true
}

// Unquoted returns the value as a string
// and reports whether the value is a string.
// Numbers are formatted, but isString is false for them.
func (v Value) Unquoted() (s string, isString bool) {
	switch v.t {
	case valueTypeString:
		return v.s, true
	case valueTypeFloat:
		f, _ := v.Float64()
		s = strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".einEIN") {
			s += ".0"
		}
		return s, false
	case valueTypeInteger:
		i, _ := v.Int64()
		return strconv.FormatInt(i, 10), false
	default:
		return "", false
	}
}

// String formats the value as a Lua constant.
func (v Value) String() string {
	switch v.t {
	case valueTypeNil:
		return "nil"
	case valueTypeFalse:
		return "false"
	case valueTypeTrue:
		return "true"
	case valueTypeFloat, valueTypeInteger:
		s, _ := v.Unquoted()
		return s
	case valueTypeString:
		return lualex.Quote(v.s)
	default:
		return "<invalid value>"
	}
}
