// Package backend prints primitive programs as structural Verilog and
// optionally hands the result to an external lint tool.
package backend

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"

	"tilec/internal/diag"
	"tilec/internal/ir"
)

// DefaultLinter is looked up on PATH when Lint is set without LintPath.
const DefaultLinter = "verilator"

// Options configures Verilog emission.
type Options struct {
	// Lint runs a lint tool on the emitted file.
	Lint bool
	// LintPath optionally overrides the lint binary. When empty the backend
	// looks DefaultLinter up on PATH.
	LintPath string
	// LintArgs precede the file name on the lint command line. Nil means
	// "--lint-only".
	LintArgs []string
	// KeepTemps preserves the scratch directory used to lint stdout output.
	KeepTemps bool
}

// Result lists the artifacts produced during Verilog emission.
type Result struct {
	MainPath string
	Modules  []string
}

// Render prints every definition of prog as one Verilog module.
func Render(prog *ir.Prog) ([]byte, []string, error) {
	if prog == nil {
		return nil, nil, diag.Errorf(diag.ConversionError, "backend: program is nil")
	}
	var buf bytes.Buffer
	var modules []string
	for i, def := range prog.Defs {
		if i > 0 {
			buf.WriteString("\n")
		}
		if err := WriteModule(&buf, def); err != nil {
			return nil, nil, err
		}
		modules = append(modules, net(def.Sig.ID))
	}
	return buf.Bytes(), modules, nil
}

// EmitVerilog writes prog to outputPath. When outputPath is empty or "-",
// the result is written to stdout and linting, if requested, runs on a
// scratch copy.
func EmitVerilog(prog *ir.Prog, outputPath string, opts Options) (Result, error) {
	src, modules, err := Render(prog)
	if err != nil {
		return Result{}, err
	}

	var lintPath string
	if opts.Lint {
		if lintPath, err = resolveBinary(opts.LintPath, DefaultLinter); err != nil {
			return Result{}, diag.Wrap(diag.IOError, err, "backend: resolve lint tool")
		}
	}

	res := Result{MainPath: outputPath, Modules: modules}
	target := outputPath
	if outputPath == "" || outputPath == "-" {
		res.MainPath = "-"
		if _, err := os.Stdout.Write(src); err != nil {
			return Result{}, diag.Wrap(diag.IOError, err, "backend: write verilog")
		}
		if !opts.Lint {
			return res, nil
		}
		tempDir, err := os.MkdirTemp("", "tilec-lint-*")
		if err != nil {
			return Result{}, diag.Wrap(diag.IOError, err, "backend: create temp dir")
		}
		if !opts.KeepTemps {
			defer os.RemoveAll(tempDir)
		}
		target = filepath.Join(tempDir, "design.v")
	} else if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Result{}, diag.Wrap(diag.IOError, err, "backend: create verilog output dir")
	}
	if err := os.WriteFile(target, src, 0o644); err != nil {
		return Result{}, diag.Wrap(diag.IOError, err, "backend: write verilog")
	}

	if opts.Lint {
		if err := runLint(lintPath, opts.LintArgs, target); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func runLint(binary string, args []string, path string) error {
	if args == nil {
		args = []string{"--lint-only"}
	}
	cmd := exec.Command(binary, append(append([]string(nil), args...), path)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return diag.Wrap(diag.IOError, err, "backend: lint %s failed", path)
	}
	return nil
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	return exec.LookPath(fallback)
}
