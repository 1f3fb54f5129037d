package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"tilec/internal/backend"
	"tilec/internal/diag"
	"tilec/internal/frontend"
	"tilec/internal/ir"
	"tilec/internal/pipeline"
	"tilec/internal/placer"
)

var emitVerilog = backend.EmitVerilog

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "translate":
		return runStage(args[0], args[1:], frontend.LevelIR, func(_ context.Context, p *pipeline.Pipeline, prog *ir.Prog) error {
			return p.Translate(prog)
		})
	case "optimize":
		return runStage(args[0], args[1:], frontend.LevelAsm, func(_ context.Context, p *pipeline.Pipeline, prog *ir.Prog) error {
			return p.Optimize(prog)
		})
	case "place":
		return runStage(args[0], args[1:], frontend.LevelAsm, func(ctx context.Context, p *pipeline.Pipeline, prog *ir.Prog) error {
			return p.Place(ctx, prog)
		})
	case "assemble":
		return runStage(args[0], args[1:], frontend.LevelAsm, func(_ context.Context, p *pipeline.Pipeline, prog *ir.Prog) error {
			return p.Assemble(prog)
		})
	case "compile":
		return runCompile(args[1:])
	case "fmt":
		return runFmt(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "tilec, a tile-based instruction selector for FPGA fabrics\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  tilec <command> [options] [files]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  translate  Select assembly for an IR program\n")
	fmt.Fprintf(os.Stderr, "  optimize   Fuse DSP operations and form cascades in an assembly program\n")
	fmt.Fprintf(os.Stderr, "  place      Resolve the locations of an assembly program\n")
	fmt.Fprintf(os.Stderr, "  assemble   Expand an assembly program into device primitives\n")
	fmt.Fprintf(os.Stderr, "  compile    Compile an IR program to structural Verilog\n")
	fmt.Fprintf(os.Stderr, "  fmt        Parse and pretty-print a program\n")
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	input      *string
	output     *string
	diagFormat *string
	lib        *string
	oracle     *string
	columns    *int
	verbose    *bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	c := &commonFlags{
		input:      fs.String("input", "", "input file (\"-\" for stdin); extra files may follow the flags"),
		output:     fs.String("output", "", "output file path (stdout when omitted)"),
		diagFormat: fs.String("diag-format", "text", "diagnostic output format (text|json)"),
		lib:        fs.String("lib", "", "pattern/implementation library directory or .txtar archive (default $"+pipeline.LibraryEnv+" or built in)"),
		oracle:     fs.String("oracle", pipeline.GridOracle, "placement oracle: \"grid\" or an executable speaking the placement protocol"),
		columns:    fs.Int("grid-columns", placer.DefaultColumns, "sites per row of the built-in grid oracle"),
		verbose:    fs.Bool("v", false, "print progress notes"),
	}
	return fs, c
}

func (c *commonFlags) sources(fs *flag.FlagSet) []string {
	var srcs []string
	if *c.input != "" {
		srcs = append(srcs, *c.input)
	}
	return append(srcs, fs.Args()...)
}

func (c *commonFlags) reporter() *diag.Reporter {
	r := diag.NewReporter(os.Stderr, *c.diagFormat)
	r.SetVerbose(*c.verbose)
	return r
}

func (c *commonFlags) pipeline(reporter *diag.Reporter) (*pipeline.Pipeline, error) {
	lib, err := pipeline.LoadLibrary(libraryPath(*c.lib))
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Reporter: reporter,
		Library:  lib,
		Oracle:   pipeline.NewOracle(*c.oracle, *c.columns),
	})
}

type stageFunc func(ctx context.Context, p *pipeline.Pipeline, prog *ir.Prog) error

func runStage(name string, args []string, level frontend.Level, stage stageFunc) error {
	fs, c := newFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return err
	}
	prog, reporter, err := load(fs, c, level)
	if err != nil {
		return err
	}
	p, err := c.pipeline(reporter)
	if err != nil {
		return err
	}
	if err := stage(context.Background(), p, prog); err != nil {
		return err
	}
	return writeProg(prog, *c.output)
}

func runCompile(args []string) error {
	fs, c := newFlagSet("compile")
	lint := fs.Bool("lint", false, "run a lint tool on the emitted Verilog")
	lintPath := fs.String("lint-path", "", "path to the lint tool (optional, falls back to "+backend.DefaultLinter+" on PATH)")
	lintArgs := fs.String("lint-args", "", "lint tool arguments (space-separated)")
	asmOut := fs.String("asm-out", "", "path to write the placed assembly program (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prog, reporter, err := load(fs, c, frontend.LevelIR)
	if err != nil {
		return err
	}
	p, err := c.pipeline(reporter)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := p.Translate(prog); err != nil {
		return err
	}
	if err := p.Optimize(prog); err != nil {
		return err
	}
	if err := p.Place(ctx, prog); err != nil {
		return err
	}
	if *asmOut != "" {
		if err := writeProg(prog, *asmOut); err != nil {
			return err
		}
	}
	if err := p.Assemble(prog); err != nil {
		return err
	}
	opts := backend.Options{
		Lint:     *lint,
		LintPath: *lintPath,
	}
	if *lintArgs != "" {
		opts.LintArgs = strings.Fields(*lintArgs)
	}
	res, err := emitVerilog(prog, *c.output, opts)
	if err != nil {
		return err
	}
	reporter.Notef("wrote module(s) %s to %s", strings.Join(res.Modules, ", "), res.MainPath)
	return nil
}

func runFmt(args []string) error {
	fs, c := newFlagSet("fmt")
	levelName := fs.String("level", "ir", "instruction level of the input (ir|asm|machine)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	level, err := frontend.ParseLevel(*levelName)
	if err != nil {
		return err
	}
	prog, _, err := load(fs, c, level)
	if err != nil {
		return err
	}
	return writeProg(prog, *c.output)
}

func load(fs *flag.FlagSet, c *commonFlags, level frontend.Level) (*ir.Prog, *diag.Reporter, error) {
	srcs := c.sources(fs)
	if len(srcs) == 0 {
		fs.Usage()
		return nil, nil, fmt.Errorf("%s requires an input file", fs.Name())
	}
	reporter := c.reporter()
	prog, err := frontend.LoadProgram(frontend.LoadConfig{Sources: srcs, Level: level, Stdin: os.Stdin}, reporter)
	if err != nil {
		return nil, nil, err
	}
	if reporter.HasErrors() {
		return nil, nil, fmt.Errorf("errors reported while loading sources")
	}
	return prog, reporter, nil
}

func writeProg(prog *ir.Prog, path string) error {
	var buf bytes.Buffer
	ir.Dump(prog, &buf)
	if path == "" || path == "-" {
		if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
			return diag.Wrap(diag.IOError, err, "write program to stdout")
		}
		return nil
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return diag.Wrap(diag.IOError, err, "write %s", path)
	}
	return nil
}
