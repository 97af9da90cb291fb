// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package lualex

import (
	"math"
	"testing"
)

func TestParseNumeral(t *testing.T) {
	tests := []struct {
		s           string
		wantInt     int64
		wantFloat   float64
		wantInteger bool
	}{
		{"0", 0, 0, true},
		{"1", 1, 0, true},
		{"42", 42, 0, true},
		{"9223372036854775807", math.MaxInt64, 0, true},
		{"0x7f", 0x7f, 0, true},
		{"0XFF", 0xff, 0, true},
		{"0xffffffffffffffff", -1, 0, true},
		{"1.0", 0, 1, false},
		{"3.14", 0, 3.14, false},
		{"1e2", 0, 100, false},
		{"3.25e-1", 0, 0.325, false},
		{"0x1p4", 0, 16, false},
		{"0x.8", 0, 0.5, false},
		// Decimal integers that overflow become floats.
		{"9223372036854775808", 0, 9.223372036854776e18, false},
	}
	for _, test := range tests {
		i, f, isInteger, err := ParseNumeral(test.s)
		if err != nil {
			t.Errorf("ParseNumeral(%q): %v", test.s, err)
			continue
		}
		if i != test.wantInt || f != test.wantFloat || isInteger != test.wantInteger {
			t.Errorf("ParseNumeral(%q) = %d, %g, %t; want %d, %g, %t",
				test.s, i, f, isInteger, test.wantInt, test.wantFloat, test.wantInteger)
		}
	}
}

func TestParseNumeralErrors(t *testing.T) {
	for _, s := range []string{"", "0x", "0xg", "1.2.3", "bad"} {
		if _, _, _, err := ParseNumeral(s); err == nil {
			t.Errorf("ParseNumeral(%q): no error", s)
		}
	}
}
