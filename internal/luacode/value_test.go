// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"math"
	"testing"
)

func TestValueString(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Value{}, "nil"},
		{BoolValue(false), "false"},
		{BoolValue(true), "true"},
		{IntegerValue(0), "0"},
		{IntegerValue(42), "42"},
		{IntegerValue(-42), "-42"},
		{IntegerValue(math.MaxInt64), "9223372036854775807"},
		{FloatValue(0), "0.0"},
		{FloatValue(42), "42.0"},
		{FloatValue(3.14), "3.14"},
		{FloatValue(1e100), "1e+100"},
		{StringValue(""), `""`},
		{StringValue("abc"), `"abc"`},
		{StringValue("a\nb"), `"a\nb"`},
	}
	for _, test := range tests {
		if got := test.value.String(); got != test.want {
			t.Errorf("Value.String() = %q; want %q", got, test.want)
		}
	}
}

// TestValueIdentity covers the equality used for constant-table interning:
// the == operator on Value.
func TestValueIdentity(t *testing.T) {
	tests := []struct {
		v1, v2 Value
		want   bool
	}{
		{Value{}, Value{}, true},
		{BoolValue(false), Value{}, false},
		{BoolValue(true), BoolValue(true), true},
		{BoolValue(true), BoolValue(false), false},
		{IntegerValue(42), IntegerValue(42), true},
		{IntegerValue(42), IntegerValue(-42), false},
		// Integers and floats are distinct constants even when equal as numbers.
		{IntegerValue(1), FloatValue(1), false},
		{FloatValue(3.14), FloatValue(3.14), true},
		// Float comparison is bitwise: NaN interns stably,
		// and the two zeroes are distinct constants.
		{FloatValue(math.NaN()), FloatValue(math.NaN()), true},
		{FloatValue(0), FloatValue(math.Copysign(0, -1)), false},
		{StringValue(""), StringValue(""), true},
		{StringValue("abc"), StringValue("abc"), true},
		{StringValue("abc"), StringValue("abd"), false},
		{StringValue("1"), IntegerValue(1), false},
	}
	for _, test := range tests {
		if got := test.v1 == test.v2; got != test.want {
			t.Errorf("(%v == %v) = %t; want %t", test.v1, test.v2, got, test.want)
		}
	}
}

func TestValueAccessors(t *testing.T) {
	if f, ok := IntegerValue(7).Float64(); !ok || f != 7 {
		t.Errorf("IntegerValue(7).Float64() = %g, %t", f, ok)
	}
	if i, ok := IntegerValue(7).Int64(); !ok || i != 7 {
		t.Errorf("IntegerValue(7).Int64() = %d, %t", i, ok)
	}
	if _, ok := FloatValue(7).Int64(); ok {
		t.Error("FloatValue(7).Int64() reported ok")
	}
	if b, isBool := BoolValue(true).Bool(); !isBool || !b {
		t.Errorf("BoolValue(true).Bool() = %t, %t", b, isBool)
	}
	if b, isBool := IntegerValue(1).Bool(); isBool || !b {
		t.Errorf("IntegerValue(1).Bool() = %t, %t", b, isBool)
	}
	if b, _ := (Value{}).Bool(); b {
		t.Error("nil value is truthy")
	}
	if s, isString := StringValue("x").Unquoted(); !isString || s != "x" {
		t.Errorf(`StringValue("x").Unquoted() = %q, %t`, s, isString)
	}
	if s, isString := IntegerValue(9).Unquoted(); isString || s != "9" {
		t.Errorf("IntegerValue(9).Unquoted() = %q, %t", s, isString)
	}
}
