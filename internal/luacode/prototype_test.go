// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"lunac.dev/pkg/internal/luaparse"
)

func TestAddConstant(t *testing.T) {
	f := new(Prototype)
	a := f.addConstant(IntegerValue(1))
	b := f.addConstant(StringValue("x"))
	c := f.addConstant(FloatValue(1))
	if a == b || a == c || b == c {
		t.Errorf("distinct values share indices: %d %d %d", a, b, c)
	}

	// Interning the same value twice yields the same index.
	if got := f.addConstant(IntegerValue(1)); got != a {
		t.Errorf("addConstant(1) = %d; want %d", got, a)
	}
	if got := f.addConstant(StringValue("x")); got != b {
		t.Errorf(`addConstant("x") = %d; want %d`, got, b)
	}
	if got := len(f.Constants); got != 3 {
		t.Errorf("len(Constants) = %d; want 3", got)
	}
}

var marshalRoundTripSources = []string{
	"",
	"local a = 1",
	"local a, b = f()",
	"x = 1 + 2",
	`s = "a long string constant that does not fit the short string encoding" .. t`,
	"if a == 1 then b = 2 else b = 3 end",
	"local function f(x) return x + 1 end return f(41)",
	"local function outer() local y = 1 local function inner() return y end end",
	"x = 1.5 y = -2 z = x and y or nil",
}

func TestPrototypeMarshalBinaryRoundTrip(t *testing.T) {
	for _, source := range marshalRoundTripSources {
		proto := compile(t, source)
		proto.Source = FilenameSource("input.lua")

		data, err := proto.MarshalBinary()
		if err != nil {
			t.Errorf("MarshalBinary (%q): %v", source, err)
			continue
		}
		if !bytes.HasPrefix(data, []byte(Signature)) {
			t.Errorf("chunk for %q does not start with the signature", source)
		}

		got := new(Prototype)
		if err := got.UnmarshalBinary(data); err != nil {
			t.Errorf("UnmarshalBinary (%q): %v", source, err)
			continue
		}
		if diff := cmp.Diff(proto, got, cmpopts.EquateEmpty(), cmpopts.EquateComparable(Value{})); diff != "" {
			t.Errorf("round trip of %q (-want +got):\n%s", source, diff)
		}
	}
}

func TestUnmarshalBinaryErrors(t *testing.T) {
	proto := compile(t, "local a = 1")
	data, err := proto.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"BadSignature", []byte("\x1bLuQ")},
		{"Truncated", data[:len(data)/2]},
		{"TrailingData", append(bytes.Clone(data), 0)},
		{"WrongVersion", func() []byte {
			d := bytes.Clone(data)
			d[4] = 5*16 + 4
			return d
		}()},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := new(Prototype)
			if err := f.UnmarshalBinary(test.data); err == nil {
				t.Error("no error")
			}
		})
	}
}

// compileChunk compiles a source string straight to a binary chunk.
func compileChunk(source string) ([]byte, error) {
	chunk, err := luaparse.Parse(source)
	if err != nil {
		return nil, err
	}
	proto, err := Generate(AbstractSource("fuzz"), chunk)
	if err != nil {
		return nil, err
	}
	return proto.MarshalBinary()
}

func FuzzPrototypeUnmarshalBinary(f *testing.F) {
	for _, source := range marshalRoundTripSources {
		chunk, err := compileChunk(source)
		if err != nil {
			continue
		}
		f.Add(chunk)
	}

	f.Fuzz(func(t *testing.T, chunk []byte) {
		want := new(Prototype)
		if err := want.UnmarshalBinary(chunk); err != nil {
			t.Skip(err)
		}
		data, err := want.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		got := new(Prototype)
		if err := got.UnmarshalBinary(data); err != nil {
			t.Error(err)
		}
	})
}

func TestStripDebug(t *testing.T) {
	proto := compile(t, "local function f(x) return x end")
	proto.Source = FilenameSource("input.lua")
	stripped := proto.StripDebug()

	if stripped.Source != "" {
		t.Errorf("stripped Source = %q", stripped.Source)
	}
	if len(stripped.Locals) != 0 {
		t.Errorf("stripped Locals = %v", stripped.Locals)
	}
	for _, up := range stripped.Upvalues {
		if up.Name != "" {
			t.Errorf("stripped upvalue keeps name %q", up.Name)
		}
	}
	if len(stripped.Functions) != 1 || len(stripped.Functions[0].Locals) != 0 {
		t.Error("debug information not stripped from nested prototype")
	}

	// The original is untouched.
	if len(proto.Locals) == 0 || proto.Upvalues[0].Name != EnvName {
		t.Error("StripDebug modified its receiver")
	}
}

func TestSource(t *testing.T) {
	fileSource := FilenameSource("dir/input.lua")
	if name, ok := fileSource.Filename(); !ok || name != "dir/input.lua" {
		t.Errorf("Filename() = %q, %t", name, ok)
	}
	if _, ok := fileSource.Abstract(); ok {
		t.Error("file source reports abstract")
	}
	if got, want := fileSource.String(), "dir/input.lua"; got != want {
		t.Errorf("String() = %q; want %q", got, want)
	}

	abstract := AbstractSource("stdin")
	if desc, ok := abstract.Abstract(); !ok || desc != "stdin" {
		t.Errorf("Abstract() = %q, %t", desc, ok)
	}

	literal := Source("return 1")
	if got, want := literal.String(), `[string "return 1"]`; got != want {
		t.Errorf("String() = %q; want %q", got, want)
	}
	multiline := Source("local x = 1\nreturn x")
	if got, want := multiline.String(), `[string "local x = 1..."]`; got != want {
		t.Errorf("String() = %q; want %q", got, want)
	}
}
