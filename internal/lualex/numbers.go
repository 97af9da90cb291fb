// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package lualex

import (
	"strconv"
	"strings"
)

// ParseNumeral converts a numeral as written in Lua source
// into an integer or a floating-point number,
// following the Lua 5.3 rules:
// a numeral with neither a radix point nor an exponent denotes an integer
// (hexadecimal integers wrap around on overflow),
// anything else denotes a float.
func ParseNumeral(s string) (i int64, f float64, isInteger bool, err error) {
	if rest, isHex := cutHexPrefix(s); isHex {
		if !strings.ContainsAny(rest, ".pP") {
			i, err = parseHexInteger(rest)
			return i, 0, true, err
		}
		toParse := s
		if !strings.ContainsAny(rest, "pP") {
			// Go hex float literals require an exponent.
			toParse += "p0"
		}
		f, err = strconv.ParseFloat(toParse, 64)
		return 0, f, false, err
	}

	if !strings.ContainsAny(s, ".eE") {
		i, err = strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, 0, true, nil
		}
		// Decimal integers that overflow denote floats.
	}
	f, err = strconv.ParseFloat(s, 64)
	return 0, f, false, err
}

// parseHexInteger parses hexadecimal digits,
// wrapping around to fit 64 bits as Lua integers do.
func parseHexInteger(digits string) (int64, error) {
	if digits == "" {
		return 0, strconv.ErrSyntax
	}
	var x uint64
	for i := range len(digits) {
		c := digits[i]
		if !isHexDigit(c) {
			return 0, strconv.ErrSyntax
		}
		x = x<<4 | uint64(hexValue(c))
	}
	return int64(x), nil
}

func cutHexPrefix(s string) (rest string, isHex bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return s, false
}
