// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

package luac

import (
	"fmt"
	"io"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"lunac.dev/pkg/internal/luacode"
)

// prototypeJSON is the machine-readable projection of a [luacode.Prototype]
// printed by the --json flag.
type prototypeJSON struct {
	Source       string          `json:"source,omitzero"`
	NumParams    uint8           `json:"numParams"`
	IsVararg     bool            `json:"isVararg"`
	MaxStackSize uint8           `json:"maxStackSize"`
	Code         []string        `json:"code"`
	Constants    []constantJSON  `json:"constants"`
	Upvalues     []upvalueJSON   `json:"upvalues"`
	Locals       []localJSON     `json:"locals,omitzero"`
	Functions    []prototypeJSON `json:"functions,omitzero"`
}

type constantJSON struct {
	Type string `json:"type"`
	// Value is absent for nil constants.
	Value any `json:"value,omitzero"`
}

type upvalueJSON struct {
	Name    string `json:"name,omitzero"`
	InStack bool   `json:"inStack"`
	Index   uint8  `json:"index"`
}

type localJSON struct {
	Name     string `json:"name"`
	Register uint8  `json:"register"`
}

func printJSON(w io.Writer, f *luacode.Prototype) error {
	data, err := jsonv2.Marshal(prototypeToJSON(f), jsontext.Multiline(true))
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func prototypeToJSON(f *luacode.Prototype) prototypeJSON {
	out := prototypeJSON{
		Source:       string(f.Source),
		NumParams:    f.NumParams,
		IsVararg:     f.IsVararg,
		MaxStackSize: f.MaxStackSize,
		Code:         make([]string, 0, len(f.Code)),
	}
	for _, i := range f.Code {
		out.Code = append(out.Code, i.String())
	}
	for _, k := range f.Constants {
		out.Constants = append(out.Constants, constantToJSON(k))
	}
	for _, up := range f.Upvalues {
		out.Upvalues = append(out.Upvalues, upvalueJSON{
			Name:    up.Name,
			InStack: up.InStack,
			Index:   up.Index,
		})
	}
	for _, v := range f.Locals {
		out.Locals = append(out.Locals, localJSON{Name: v.Name, Register: v.Register})
	}
	for _, child := range f.Functions {
		out.Functions = append(out.Functions, prototypeToJSON(child))
	}
	return out
}

func constantToJSON(k luacode.Value) constantJSON {
	switch {
	case k.IsNil():
		return constantJSON{Type: "nil"}
	case k.IsBoolean():
		b, _ := k.Bool()
		return constantJSON{Type: "boolean", Value: b}
	case k.IsInteger():
		i, _ := k.Int64()
		return constantJSON{Type: "integer", Value: i}
	case k.IsNumber():
		f, _ := k.Float64()
		return constantJSON{Type: "float", Value: f}
	case k.IsString():
		s, _ := k.Unquoted()
		return constantJSON{Type: "string", Value: s}
	default:
		return constantJSON{Type: fmt.Sprintf("unknown(%v)", k)}
	}
}
