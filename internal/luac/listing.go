// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luac

import (
	"bytes"
	"fmt"
	"io"

	"lunac.dev/pkg/internal/luacode"
)

// printFunction writes a luac-style listing of a prototype
// and all of its nested functions.
// When full is set, the constant, local, and upvalue tables follow the code.
func printFunction(w io.Writer, f *luacode.Prototype, functionNames map[*luacode.Prototype]string, pcBase int, full bool) error {
	var source string
	if s, ok := f.Source.Abstract(); ok {
		source = s
	} else if s, ok := f.Source.Filename(); ok {
		source = s
	} else {
		source = "(string)"
	}
	kind := "function"
	if f.IsMainChunk() {
		kind = "main"
	}
	vararg := ""
	if f.IsVararg {
		vararg = "+"
	}
	_, err := fmt.Fprintf(
		w,
		"\n%s <%s> (%s for %s)\n%d%s %s, %s, %s, %s, %s, %s\n",
		kind,
		source,
		plural(len(f.Code), "instruction", "instructions"),
		functionNames[f],
		f.NumParams,
		vararg,
		pluralUnit(int(f.NumParams), "param", "params"),
		plural(int(f.MaxStackSize), "slot", "slots"),
		plural(len(f.Upvalues), "upvalue", "upvalues"),
		plural(len(f.Locals), "local", "locals"),
		plural(len(f.Constants), "constant", "constants"),
		plural(len(f.Functions), "function", "functions"),
	)
	if err != nil {
		return err
	}

	lineBuf := new(bytes.Buffer)
	for pc, i := range f.Code {
		lineBuf.Reset()
		fmt.Fprintf(lineBuf, "\t%d\t", pcBase+pc)
		lineBuf.WriteString(i.String())
		writeComment(lineBuf, f, functionNames, pcBase, pc, i)
		lineBuf.WriteByte('\n')
		if _, err := w.Write(lineBuf.Bytes()); err != nil {
			return err
		}
	}

	if full {
		if err := printTables(w, f, functionNames); err != nil {
			return err
		}
	}

	for _, child := range f.Functions {
		if err := printFunction(w, child, functionNames, pcBase, full); err != nil {
			return err
		}
	}
	return nil
}

// writeComment appends the "; ..." context luac shows
// for instructions that reference constants, functions, or jump targets.
func writeComment(buf *bytes.Buffer, f *luacode.Prototype, functionNames map[*luacode.Prototype]string, pcBase, pc int, i luacode.Instruction) {
	op := i.OpCode()
	switch op {
	case luacode.OpLoadK:
		if bx := i.ArgBx(); int(bx) < len(f.Constants) {
			fmt.Fprintf(buf, "\t; %v", f.Constants[bx])
		}
	case luacode.OpClosure:
		if bx := i.ArgBx(); int(bx) < len(f.Functions) {
			fmt.Fprintf(buf, "\t; %s", functionNames[f.Functions[bx]])
		}
	case luacode.OpJmp:
		fmt.Fprintf(buf, "\t; to %d", pcBase+pc+1+int(i.ArgBx()))
	default:
		comments := constantOperands(f, i)
		if len(comments) > 0 {
			buf.WriteString("\t;")
			for _, c := range comments {
				fmt.Fprintf(buf, " %v", c)
			}
		}
	}
}

// constantOperands collects the constants referenced
// by an instruction's RK operands, in operand order.
func constantOperands(f *luacode.Prototype, i luacode.Instruction) []luacode.Value {
	op := i.OpCode()
	var comments []luacode.Value
	if op.BMode() == luacode.OpArgK && luacode.IsConstantOperand(i.ArgB()) {
		if k := luacode.ConstantIndex(i.ArgB()); k < len(f.Constants) {
			comments = append(comments, f.Constants[k])
		}
	}
	if op.CMode() == luacode.OpArgK && luacode.IsConstantOperand(i.ArgC()) {
		if k := luacode.ConstantIndex(i.ArgC()); k < len(f.Constants) {
			comments = append(comments, f.Constants[k])
		}
	}
	return comments
}

func printTables(w io.Writer, f *luacode.Prototype, functionNames map[*luacode.Prototype]string) error {
	if _, err := fmt.Fprintf(w, "constants (%d) for %s\n", len(f.Constants), functionNames[f]); err != nil {
		return err
	}
	for i, k := range f.Constants {
		var tag string
		switch {
		case k.IsNil():
			tag = "N"
		case k.IsBoolean():
			tag = "B"
		case k.IsInteger():
			tag = "I"
		case k.IsNumber():
			tag = "F"
		case k.IsString():
			tag = "S"
		default:
			tag = "?"
		}
		if _, err := fmt.Fprintf(w, "\t%d\t%s\t%v\n", i, tag, k); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "locals (%d) for %s\n", len(f.Locals), functionNames[f]); err != nil {
		return err
	}
	for i, v := range f.Locals {
		if _, err := fmt.Fprintf(w, "\t%d\t%s\t%d\n", i, v.Name, v.Register); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "upvalues (%d) for %s\n", len(f.Upvalues), functionNames[f]); err != nil {
		return err
	}
	for i, uv := range f.Upvalues {
		inStack := 0
		if uv.InStack {
			inStack = 1
		}
		if _, err := fmt.Fprintf(w, "\t%d\t%s\t%d\t%d\n", i, uv.Name, inStack, uv.Index); err != nil {
			return err
		}
	}
	return nil
}

// nameFunctions assigns each prototype in the tree a stable display name
// of the form main, F[0], F[0][1], and so on.
func nameFunctions(names map[*luacode.Prototype]string, f *luacode.Prototype) {
	base := names[f]
	isTop := base == ""
	if isTop {
		if f.IsMainChunk() {
			base = "main"
		} else {
			base = "top"
		}
		names[f] = base
	}

	for i, child := range f.Functions {
		var name string
		if isTop {
			name = fmt.Sprintf("F[%d]", i)
		} else {
			name = fmt.Sprintf("%s[%d]", base, i)
		}
		names[child] = name
		nameFunctions(names, child)
	}
}

func plural(n int, unit, unitPlural string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %s", n, unitPlural)
}

func pluralUnit(n int, unit, unitPlural string) string {
	if n == 1 {
		return unit
	}
	return unitPlural
}
