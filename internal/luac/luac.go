// Copyright 2026 The lunac Authors
// SPDX-License-Identifier: MIT

// Package luac provides a Cobra command for a Lua compiler.
// Its command-line options and behavior are roughly the same as [luac(1)],
// with a JSON listing mode added for tooling.
//
// [luac(1)]: https://www.lua.org/manual/5.3/luac.html
package luac

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"

	"lunac.dev/pkg/internal/luacode"
	"lunac.dev/pkg/internal/luaparse"
)

type options struct {
	inputFilenames []string
	source         string
	outputFilename string
	list           int
	parseOnly      bool
	stripDebug     bool
	jsonOutput     bool
	rawPC          bool
}

// New returns a new lunac command.
func New() *cobra.Command {
	c := &cobra.Command{
		Use:                   "lunac [flags] FILE [FILE ...]",
		Short:                 "compile Lua source to 5.3 bytecode",
		Args:                  cobra.MinimumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(options)
	c.Flags().CountVarP(&opts.list, "list", "l", "produce a listing of compiled bytecode (give twice for constants, locals, and upvalues)")
	c.Flags().StringVarP(&opts.outputFilename, "output", "o", "", "output to `filename` (single input only; default luac.out)")
	c.Flags().BoolVarP(&opts.parseOnly, "parse-only", "p", false, "do not write bytecode")
	c.Flags().BoolVarP(&opts.stripDebug, "strip-debug", "s", false, "strip debug information")
	c.Flags().BoolVarP(&opts.rawPC, "raw-pc", "0", false, "show literal PC values")
	c.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the compiled prototype tree as JSON instead of writing bytecode")
	c.Flags().Var((*sourceFlag)(&opts.source), "source", "source `name` to record in the chunk instead of the filename")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.inputFilenames = args
		return run(cmd.Context(), cmd, opts)
	}
	return c
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	if opts.outputFilename != "" && len(opts.inputFilenames) > 1 {
		return fmt.Errorf("--output cannot be used with %d input files", len(opts.inputFilenames))
	}
	if opts.source != "" && len(opts.inputFilenames) > 1 {
		return fmt.Errorf("--source cannot be used with %d input files", len(opts.inputFilenames))
	}

	protos := make([]*luacode.Prototype, len(opts.inputFilenames))
	grp, grpCtx := errgroup.WithContext(ctx)
	for i, filename := range opts.inputFilenames {
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			proto, err := compileFile(grpCtx, filename, opts.source)
			if err != nil {
				return err
			}
			protos[i] = proto
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	for i, proto := range protos {
		if opts.list > 0 {
			functionNames := make(map[*luacode.Prototype]string)
			nameFunctions(functionNames, proto)
			pcBase := 0
			if !opts.rawPC {
				pcBase = 1
			}
			if err := printFunction(cmd.OutOrStdout(), proto, functionNames, pcBase, opts.list > 1); err != nil {
				return err
			}
		}
		if opts.jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), proto); err != nil {
				return err
			}
		}
		if opts.parseOnly || opts.jsonOutput {
			continue
		}

		if opts.stripDebug {
			proto = proto.StripDebug()
		}
		output, err := proto.MarshalBinary()
		if err != nil {
			return err
		}
		outputFilename := opts.outputFilename
		if outputFilename == "" {
			if len(opts.inputFilenames) == 1 {
				outputFilename = "luac.out"
			} else {
				outputFilename = opts.inputFilenames[i] + ".out"
			}
		}
		if err := os.WriteFile(outputFilename, output, 0o666); err != nil {
			return err
		}
		log.Debugf(ctx, "wrote %s (%d bytes)", outputFilename, len(output))
	}
	return nil
}

// sourceFlag is a [pflag.Value] for the --source option.
// Source names are recorded verbatim in chunk debug information,
// so line breaks are refused up front.
type sourceFlag string

func (s *sourceFlag) String() string { return string(*s) }

func (s *sourceFlag) Type() string { return "name" }

func (s *sourceFlag) Set(value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("source name cannot contain line breaks")
	}
	*s = sourceFlag(value)
	return nil
}

var _ pflag.Value = (*sourceFlag)(nil)

// compileFile turns one input into a prototype:
// Lua source is compiled,
// while a file that already holds a binary chunk is loaded as-is
// (so listings work on precompiled output).
func compileFile(ctx context.Context, filename string, sourceOverride string) (*luacode.Prototype, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(string(data), luacode.Signature) {
		proto := new(luacode.Prototype)
		if err := proto.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%s: %v", filename, err)
		}
		log.Debugf(ctx, "loaded precompiled chunk %s", filename)
		return proto, nil
	}

	chunk, err := luaparse.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s:%v", filename, err)
	}
	sourceName := luacode.FilenameSource(filename)
	if sourceOverride != "" {
		sourceName = luacode.Source(sourceOverride)
	}
	proto, err := luacode.Generate(sourceName, chunk)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", filename, err)
	}
	log.Debugf(ctx, "compiled %s: %d instructions, %d constants, %d functions",
		filename, len(proto.Code), len(proto.Constants), len(proto.Functions))
	return proto, nil
}
