package frontend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tilec/internal/diag"
	"tilec/internal/ir"
)

// Level selects which instruction set a source file is written in.
type Level int

const (
	LevelIR Level = iota
	LevelAsm
	LevelMachine
)

// LoadConfig configures how source files are loaded before translation.
type LoadConfig struct {
	Sources []string
	Level   Level
	// Stdin is read when a source is "-".
	Stdin io.Reader
}

// LoadProgram reads and parses every source into one program. Parse errors
// are reported through reporter; the returned error summarizes them.
func LoadProgram(cfg LoadConfig, reporter *diag.Reporter) (*ir.Prog, error) {
	if len(cfg.Sources) == 0 {
		return nil, diag.Errorf(diag.IOError, "no source files were provided")
	}

	prog := ir.NewProg()
	var failed int
	for _, src := range cfg.Sources {
		name, data, err := readSource(src, cfg.Stdin)
		if err != nil {
			reporter.Report(err)
			failed++
			continue
		}
		part, err := parseLevel(cfg.Level, name, data)
		if err != nil {
			reporter.Report(err)
			failed++
			continue
		}
		for _, def := range part.Defs {
			if _, dup := prog.Lookup(def.Sig.ID); dup {
				reporter.Report(diag.At(diag.ParseError, diag.Pos{File: name}, "definition %q already declared", def.Sig.ID))
				failed++
				continue
			}
			prog.Add(def)
		}
	}
	if failed > 0 {
		return nil, diag.Errorf(diag.ParseError, "loading failed with %d error(s)", failed)
	}
	reporter.Notef("loaded %d definition(s) from %d source(s)", len(prog.Defs), len(cfg.Sources))
	return prog, nil
}

func parseLevel(level Level, name string, data []byte) (*ir.Prog, error) {
	switch level {
	case LevelAsm:
		return ParseAsm(name, data)
	case LevelMachine:
		return ParseMachine(name, data)
	default:
		return ParseProg(name, data)
	}
}

func readSource(path string, stdin io.Reader) (string, []byte, error) {
	if path == "-" {
		if stdin == nil {
			return "", nil, diag.Errorf(diag.IOError, "no standard input available")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", nil, diag.Wrap(diag.IOError, err, "read standard input")
		}
		return "<stdin>", data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, diag.Wrap(diag.IOError, err, "read %s", path)
	}
	return filepath.Clean(path), data, nil
}

// ReadFile reads a file for callers that parse it themselves.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Wrap(diag.IOError, err, "read %s", path)
	}
	return data, nil
}

func (l Level) String() string {
	switch l {
	case LevelAsm:
		return "asm"
	case LevelMachine:
		return "machine"
	default:
		return "ir"
	}
}

// ParseLevel maps a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "ir", "":
		return LevelIR, nil
	case "asm":
		return LevelAsm, nil
	case "machine":
		return LevelMachine, nil
	}
	return LevelIR, fmt.Errorf("unknown level %q", s)
}
