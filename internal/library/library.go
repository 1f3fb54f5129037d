// Package library loads pattern and implementation libraries: the default
// one embedded in the binary, a directory of .pat/.imp files, or a txtar
// archive holding such files.
package library

import (
	_ "embed"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/tools/txtar"

	"tilec/internal/diag"
	"tilec/internal/frontend"
	"tilec/internal/ir"
	"tilec/internal/machine"
	"tilec/internal/passes"
	"tilec/internal/validate"
)

//go:embed default.txtar
var defaultArchive []byte

// Library is a read-only set of patterns and implementations.
type Library struct {
	// Patterns is sorted by name.
	Patterns []*ir.Pattern
	patterns map[string]*ir.Pattern
	imps     map[string]*machine.Imp
}

// New indexes patterns and imps, types every body and validates the
// result.
func New(pats []*ir.Pattern, imps []*machine.Imp) (*Library, error) {
	for _, p := range pats {
		if err := passes.InferDef(p.Def); err != nil {
			return nil, errors.Wrapf(err, "pattern %s", p.Name)
		}
	}
	for _, m := range imps {
		if err := passes.FillTypes(m.Def); err != nil {
			return nil, errors.Wrapf(err, "implementation %s", m.Name)
		}
	}
	if err := validate.CheckLibrary(pats, imps); err != nil {
		return nil, err
	}
	lib := &Library{
		Patterns: slices.Clone(pats),
		patterns: make(map[string]*ir.Pattern, len(pats)),
		imps:     make(map[string]*machine.Imp, len(imps)),
	}
	sort.SliceStable(lib.Patterns, func(i, j int) bool {
		return lib.Patterns[i].Name < lib.Patterns[j].Name
	})
	for _, p := range pats {
		lib.patterns[p.Name] = p
	}
	for _, m := range imps {
		lib.imps[m.Name] = m
	}
	return lib, nil
}

// Pattern returns the pattern called name.
func (l *Library) Pattern(name string) (*ir.Pattern, bool) {
	p, ok := l.patterns[name]
	return p, ok
}

// PatternMap exposes the name index for callers that annotate assembly.
func (l *Library) PatternMap() map[string]*ir.Pattern {
	return l.patterns
}

// Imp returns the implementation of the assembly opcode name.
func (l *Library) Imp(name string) (*machine.Imp, bool) {
	m, ok := l.imps[name]
	return m, ok
}

// PatternsFor returns the patterns targeting prim, sorted by name.
func (l *Library) PatternsFor(prim ir.Prim) []*ir.Pattern {
	var out []*ir.Pattern
	for _, p := range l.Patterns {
		if p.Prim == prim {
			out = append(out, p)
		}
	}
	return out
}

// ImpNames lists implementation names in sorted order.
func (l *Library) ImpNames() []string {
	names := make([]string, 0, len(l.imps))
	for name := range l.imps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
	defaultErr  error
)

// Default returns the library embedded in the binary.
func Default() (*Library, error) {
	defaultOnce.Do(func() {
		defaultLib, defaultErr = FromArchive("default.txtar", defaultArchive)
	})
	return defaultLib, defaultErr
}

// DefaultArchive returns the embedded library source.
func DefaultArchive() []byte {
	return slices.Clone(defaultArchive)
}

// FromArchive builds a library from the .pat and .imp members of a txtar
// archive. Other members are ignored.
func FromArchive(name string, data []byte) (*Library, error) {
	ar := txtar.Parse(data)
	var sources []source
	for _, f := range ar.Files {
		sources = append(sources, source{name: name + ":" + f.Name, data: f.Data})
	}
	return fromSources(sources)
}

// Load reads a library from a directory of .pat/.imp files or from a
// .txtar archive.
func Load(path string) (*Library, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, diag.Wrap(diag.IOError, err, "library %s", path)
	}
	if !info.IsDir() {
		data, err := frontend.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return FromArchive(path, data)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, diag.Wrap(diag.IOError, err, "library %s", path)
	}
	var sources []source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := filepath.Join(path, e.Name())
		if kindOf(file) == "" {
			continue
		}
		data, err := frontend.ReadFile(file)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source{name: file, data: data})
	}
	return fromSources(sources)
}

type source struct {
	name string
	data []byte
}

func kindOf(name string) string {
	switch {
	case strings.HasSuffix(name, ".pat"):
		return "pat"
	case strings.HasSuffix(name, ".imp"):
		return "imp"
	}
	return ""
}

func fromSources(sources []source) (*Library, error) {
	var pats []*ir.Pattern
	var imps []*machine.Imp
	for _, src := range sources {
		switch kindOf(src.name) {
		case "pat":
			ps, err := frontend.ParsePatterns(src.name, src.data)
			if err != nil {
				return nil, err
			}
			pats = append(pats, ps...)
		case "imp":
			ms, err := frontend.ParseImps(src.name, src.data)
			if err != nil {
				return nil, err
			}
			imps = append(imps, ms...)
		}
	}
	if len(pats) == 0 {
		return nil, diag.Errorf(diag.IOError, "library contains no patterns")
	}
	return New(pats, imps)
}
