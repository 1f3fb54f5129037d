package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/txtar"

	"tilec/internal/backend"
	"tilec/internal/diag"
	"tilec/internal/ir"
)

// fixtures extracts testdata/cli.txtar into a fresh directory and returns
// the path of every member by name.
func fixtures(t *testing.T) map[string]string {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", "cli.txtar"))
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	dir := t.TempDir()
	paths := make(map[string]string, len(ar.Files))
	for _, f := range ar.Files {
		paths[f.Name] = writeFile(t, dir, f.Name, string(f.Data))
	}
	return paths
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("run() = %v, want missing command", err)
	}
	if err := run([]string{"simulate"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("run(simulate) = %v, want unknown command", err)
	}
}

func TestStageRequiresInput(t *testing.T) {
	err := run([]string{"translate"})
	if err == nil || !strings.Contains(err.Error(), "requires an input file") {
		t.Fatalf("translate without input = %v", err)
	}
}

func TestTranslateWritesAssembly(t *testing.T) {
	files := fixtures(t)
	out := filepath.Join(t.TempDir(), "adder.asm")
	if err := run([]string{"translate", "--input", files["adder.ir"], "--output", out}); err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := `def main(a:i8, b:i8) -> (y:i8) {
    y:i8 = ladd_i8(a, b) @lut(??, ??);
}
`
	if diff := cmp.Diff(want, readFile(t, out)); diff != "" {
		t.Fatalf("assembly mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.ir", "def main(a:i8) -> (y:i8) {\n    y:i8 = add(a, ;\n}\n")
	err := run([]string{"translate", "--diag-format", "json", bad})
	if !diag.Is(err, diag.ParseError) {
		t.Fatalf("error = %v, want parse error", err)
	}
}

func TestPlaceWithGridOracle(t *testing.T) {
	files := fixtures(t)
	out := filepath.Join(t.TempDir(), "placed.asm")
	if err := run([]string{"place", "--grid-columns", "1", "--output", out, files["adder.asm"]}); err != nil {
		t.Fatalf("place: %v", err)
	}
	want := `def main(a:i8, b:i8) -> (y:i8) {
    t:i8 = ladd_i8(a, b) @lut(0, 0);
    y:i8 = lxor_i8(t, b) @lut(0, 1);
}
`
	if diff := cmp.Diff(want, readFile(t, out)); diff != "" {
		t.Fatalf("placed program mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaceWithOracleScript(t *testing.T) {
	requirePosix(t)
	files := fixtures(t)
	dir := t.TempDir()
	oracle := writeScript(t, dir, "oracle.sh", `#!/bin/sh
while IFS=, read id prim; do
  echo "$id,5,6"
done
`)
	out := filepath.Join(dir, "placed.asm")
	if err := run([]string{"place", "--oracle", oracle, "--input", files["adder.asm"], "--output", out}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := strings.Count(readFile(t, out), "@lut(5, 6)"); got != 2 {
		t.Fatalf("placed %d instruction(s) at (5, 6), want 2:\n%s", got, readFile(t, out))
	}
}

func TestAssembleWritesPrimitives(t *testing.T) {
	files := fixtures(t)
	out := filepath.Join(t.TempDir(), "adder.machine")
	if err := run([]string{"assemble", "--input", files["adder.asm"], "--output", out}); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	got := readFile(t, out)
	for _, want := range []string{"carry8(", "lut2[6](", "@a6lut(??, ??)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("assembled program lacks %q:\n%s", want, got)
		}
	}
}

func TestCompileWritesVerilog(t *testing.T) {
	files := fixtures(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "mac.v")
	asmOut := filepath.Join(dir, "mac.asm")
	if err := run([]string{"compile", "--input", files["mac.ir"], "--output", out, "--asm-out", asmOut}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	src := readFile(t, out)
	for _, want := range []string{"module main (", "input wire clock,", "DSP48E2 #(", "FDRE #(", "LOC = \"SLICE_X"} {
		if !strings.Contains(src, want) {
			t.Fatalf("verilog lacks %q:\n%s", want, src)
		}
	}
	if strings.Contains(readFile(t, asmOut), "??") {
		t.Fatalf("assembly dump has open locations:\n%s", readFile(t, asmOut))
	}
}

func TestCompilePassesLintOptions(t *testing.T) {
	files := fixtures(t)
	var gotOpts backend.Options
	var gotPath string
	stubEmitVerilog(t, func(prog *ir.Prog, path string, opts backend.Options) (backend.Result, error) {
		gotOpts, gotPath = opts, path
		return backend.Result{MainPath: path, Modules: []string{"main"}}, nil
	})
	out := filepath.Join(t.TempDir(), "adder.v")
	err := run([]string{"compile", "--lint", "--lint-path", "/opt/lint", "--lint-args", "-Wall -Wno-fatal", "--output", out, files["adder.ir"]})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := backend.Options{Lint: true, LintPath: "/opt/lint", LintArgs: []string{"-Wall", "-Wno-fatal"}}
	if diff := cmp.Diff(want, gotOpts); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if gotPath != out {
		t.Fatalf("output path = %s, want %s", gotPath, out)
	}
}

func TestCompileUsesLibraryFlag(t *testing.T) {
	files := fixtures(t)
	err := run([]string{"compile", "--lib", filepath.Join(t.TempDir(), "missing"), files["adder.ir"]})
	if !diag.Is(err, diag.IOError) {
		t.Fatalf("error = %v, want io error", err)
	}
}

func TestFmtRoundTrip(t *testing.T) {
	files := fixtures(t)
	out := filepath.Join(t.TempDir(), "netlist.machine")
	if err := run([]string{"fmt", "--level", "machine", "--input", files["netlist.machine"], "--output", out}); err != nil {
		t.Fatalf("fmt: %v", err)
	}
	if diff := cmp.Diff(readFile(t, files["netlist.machine"]), readFile(t, out)); diff != "" {
		t.Fatalf("fmt changed the program (-want +got):\n%s", diff)
	}
	if err := run([]string{"fmt", "--level", "rtl", files["netlist.machine"]}); err == nil {
		t.Fatalf("fmt accepted an unknown level")
	}
}

func TestOutputWriteFailure(t *testing.T) {
	requirePosix(t)
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	files := fixtures(t)
	err := run([]string{"fmt", "--level", "machine", "--input", files["netlist.machine"], "--output", "/dev/full"})
	if !diag.Is(err, diag.IOError) {
		t.Fatalf("error = %v, want io error", err)
	}
	err = run([]string{"translate", "--output", filepath.Join(t.TempDir(), "missing", "adder.asm"), files["adder.ir"]})
	if !diag.Is(err, diag.IOError) {
		t.Fatalf("error = %v, want io error", err)
	}
}

func TestLibraryPathPrecedence(t *testing.T) {
	t.Setenv("TILEC_LIB_DIR", "/env/lib")
	if got := libraryPath("/flag/lib"); got != "/flag/lib" {
		t.Fatalf("libraryPath with flag = %s", got)
	}
	if got := libraryPath(""); got != "/env/lib" {
		t.Fatalf("libraryPath from env = %s", got)
	}
}

func stubEmitVerilog(t *testing.T, fn func(*ir.Prog, string, backend.Options) (backend.Result, error)) {
	t.Helper()
	orig := emitVerilog
	emitVerilog = fn
	t.Cleanup(func() { emitVerilog = orig })
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require a POSIX shell")
	}
}
