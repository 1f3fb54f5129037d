// Package pipeline strings the compiler stages together for the CLI:
// translate (IR to assembly), optimize (DSP cascades), place, assemble
// (assembly to primitives) and Verilog emission.
package pipeline

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"tilec/internal/asm"
	"tilec/internal/assembler"
	"tilec/internal/cascade"
	"tilec/internal/diag"
	"tilec/internal/ir"
	"tilec/internal/library"
	"tilec/internal/passes"
	"tilec/internal/placer"
	"tilec/internal/selector"
)

// LibraryEnv names the environment variable consulted when no library path
// is given.
const LibraryEnv = "TILEC_LIB_DIR"

// GridOracle selects the built-in placement oracle.
const GridOracle = "grid"

// LoadLibrary resolves the pattern and implementation library: an explicit
// path wins, then $TILEC_LIB_DIR, then the embedded default.
func LoadLibrary(path string) (*library.Library, error) {
	if path == "" {
		path = os.Getenv(LibraryEnv)
	}
	if path == "" {
		return library.Default()
	}
	return library.Load(path)
}

// NewOracle maps an --oracle value to a placement oracle. The empty string
// and "grid" select the built-in grid; anything else is an executable.
func NewOracle(spec string, columns int) placer.Oracle {
	if spec == "" || spec == GridOracle {
		return placer.Grid{Columns: columns}
	}
	fields := strings.Fields(spec)
	return placer.Command{Path: fields[0], Args: fields[1:]}
}

// Config holds the collaborators shared by every stage.
type Config struct {
	Reporter *diag.Reporter
	Library  *library.Library
	Oracle   placer.Oracle
	// Phases overrides the selector's primitive order.
	Phases []ir.Prim
}

// Pipeline runs compiler stages over whole programs.
type Pipeline struct {
	cfg     Config
	cascade *cascade.Cascader
}

// New returns a pipeline. A nil library selects the embedded default and a
// nil oracle the grid.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Library == nil {
		lib, err := library.Default()
		if err != nil {
			return nil, err
		}
		cfg.Library = lib
	}
	if cfg.Oracle == nil {
		cfg.Oracle = placer.Grid{}
	}
	return &Pipeline{cfg: cfg, cascade: cascade.New(cfg.Reporter, cfg.Library)}, nil
}

// CascadeStats reports the cascader totals so far.
func (p *Pipeline) CascadeStats() cascade.Stats { return p.cascade.Stats() }

// Translate inlines calls, infers types and selects instructions, turning
// an IR program into an assembly program.
func (p *Pipeline) Translate(prog *ir.Prog) error {
	var opts []selector.Option
	if len(p.cfg.Phases) > 0 {
		opts = append(opts, selector.WithPhases(p.cfg.Phases...))
	}
	sel, err := selector.New(p.cfg.Library.Patterns, opts...)
	if err != nil {
		return err
	}
	m := passes.Default(p.cfg.Reporter)
	m.Add(&selectPass{sel: sel, reporter: p.cfg.Reporter})
	return m.Run(prog)
}

// Optimize types an assembly program, fills in pattern costs and forms DSP
// cascades.
func (p *Pipeline) Optimize(prog *ir.Prog) error {
	m := passes.NewManager(p.cfg.Reporter)
	m.Add(&annotatePass{patterns: p.cfg.Library.PatternMap()})
	m.Add(p.cascade)
	return m.Run(prog)
}

// Place resolves every open location through the oracle.
func (p *Pipeline) Place(ctx context.Context, prog *ir.Prog) error {
	if err := p.run(prog, &annotatePass{patterns: p.cfg.Library.PatternMap()}); err != nil {
		return err
	}
	return placer.New(p.cfg.Reporter, p.cfg.Oracle).RunContext(ctx, prog)
}

// Assemble expands an assembly program into primitives.
func (p *Pipeline) Assemble(prog *ir.Prog) error {
	return p.run(prog,
		&annotatePass{patterns: p.cfg.Library.PatternMap()},
		assembler.New(p.cfg.Reporter, p.cfg.Library),
	)
}

// Compile runs every stage from IR to a placed primitive program.
func (p *Pipeline) Compile(ctx context.Context, prog *ir.Prog) error {
	if err := p.Translate(prog); err != nil {
		return err
	}
	if err := p.Optimize(prog); err != nil {
		return err
	}
	if err := p.Place(ctx, prog); err != nil {
		return err
	}
	return p.Assemble(prog)
}

func (p *Pipeline) run(prog *ir.Prog, ps ...passes.Pass) error {
	m := passes.NewManager(p.cfg.Reporter)
	for _, pass := range ps {
		m.Add(pass)
	}
	return m.Run(prog)
}

// selectPass replaces every definition by its assembly program.
type selectPass struct {
	sel      *selector.Selector
	reporter *diag.Reporter
}

func (s *selectPass) Name() string { return "select" }

func (s *selectPass) Run(prog *ir.Prog) error {
	for _, def := range prog.Defs {
		res, err := s.sel.Select(def)
		if err != nil {
			return err
		}
		prog.Add(res.Asm)
		s.reporter.Notef("selected %s: area %d, tiles %s", def.Sig.ID, asm.TotalArea(res.Asm), formatTiles(res.Tiles))
	}
	return nil
}

// annotatePass types assembly read from text and restores the area,
// latency and primitive class recorded in the library.
type annotatePass struct {
	patterns map[string]*ir.Pattern
}

func (a *annotatePass) Name() string { return "annotate" }

func (a *annotatePass) Run(prog *ir.Prog) error {
	for _, def := range prog.Defs {
		if err := passes.FillTypes(def); err != nil {
			return err
		}
		asm.Annotate(def, a.patterns)
	}
	return nil
}

func formatTiles(tiles map[string]int) string {
	names := make([]string, 0, len(tiles))
	for name := range tiles {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.Itoa(tiles[name])
	}
	return strings.Join(parts, " ")
}
