// Package placer resolves the open locations of an assembly program by
// handing slot requests to a placement oracle.
package placer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/pkg/errors"

	"tilec/internal/asm"
	"tilec/internal/diag"
	"tilec/internal/ir"
)

// Request asks for one site of a primitive class. ID is the body index of
// the assembly instruction.
type Request struct {
	ID   int
	Prim ir.Prim
}

// Constraint groups the requests of one primitive class.
type Constraint struct {
	Prim     ir.Prim
	Requests []Request
}

// Constraints partitions the unplaced assembly instructions of def by
// primitive class. Instructions that already carry concrete coordinates are
// left out.
func Constraints(def *ir.Def) ([]Constraint, map[int]*asm.Instr, error) {
	back := make(map[int]*asm.Instr)
	byPrim := make(map[ir.Prim][]Request)
	for i, instr := range def.Body {
		a, ok := instr.(*asm.Instr)
		if !ok || a.Loc.IsPlaced() {
			continue
		}
		if a.Loc.Prim == ir.PrimAny {
			return nil, nil, diag.Errorf(diag.PlacerError, "%s: %s has no primitive class", def.Sig.ID, a.Op)
		}
		back[i] = a
		byPrim[a.Loc.Prim] = append(byPrim[a.Loc.Prim], Request{ID: i, Prim: a.Loc.Prim})
	}
	var out []Constraint
	for _, prim := range ir.Prims() {
		if reqs := byPrim[prim]; len(reqs) > 0 {
			out = append(out, Constraint{Prim: prim, Requests: reqs})
		}
	}
	return out, back, nil
}

// Encode serialises constraints in the oracle request format.
func Encode(cs []Constraint) []byte {
	var b bytes.Buffer
	for _, c := range cs {
		for _, r := range c.Requests {
			fmt.Fprintf(&b, "%d,%s\n", r.ID, r.Prim)
		}
	}
	return b.Bytes()
}

// Site is one oracle answer.
type Site struct {
	ID   int
	X, Y int
}

// Decode parses an oracle response.
func Decode(data []byte) ([]Site, error) {
	var out []Site
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) != 3 {
			return nil, diag.Errorf(diag.PlacerError, "placement line %d: want <id>,<x>,<y>, got %q", line, text)
		}
		var nums [3]int
		for i, f := range fields {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || n < 0 {
				return nil, diag.Errorf(diag.PlacerError, "placement line %d: %q is not a non-negative integer", line, f)
			}
			nums[i] = n
		}
		out = append(out, Site{ID: nums[0], X: nums[1], Y: nums[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, diag.Wrap(diag.PlacerError, err, "read placement")
	}
	return out, nil
}

// Placer is a pass that places every definition of a program.
type Placer struct {
	reporter *diag.Reporter
	oracle   Oracle
}

// New returns a placer asking oracle for sites.
func New(reporter *diag.Reporter, oracle Oracle) *Placer {
	return &Placer{reporter: reporter, oracle: oracle}
}

// Name implements passes.Pass.
func (p *Placer) Name() string { return "place" }

// Run implements passes.Pass.
func (p *Placer) Run(prog *ir.Prog) error {
	return p.RunContext(context.Background(), prog)
}

// RunContext places every definition of prog, stopping at the first
// failure.
func (p *Placer) RunContext(ctx context.Context, prog *ir.Prog) error {
	for _, def := range prog.Defs {
		if err := p.Place(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// Place resolves the locations of def in place.
func (p *Placer) Place(ctx context.Context, def *ir.Def) error {
	cs, back, err := Constraints(def)
	if err != nil {
		return err
	}
	if len(back) == 0 {
		return nil
	}
	resp, err := p.oracle.Place(ctx, Encode(cs))
	if err != nil {
		if diag.KindOf(err) == diag.UnknownError {
			err = diag.Wrap(diag.PlacerError, err, "oracle")
		}
		return errors.Wrap(err, def.Sig.ID)
	}
	sites, err := Decode(resp)
	if err != nil {
		return errors.Wrap(err, def.Sig.ID)
	}
	placed := set.New[int](len(sites))
	for _, s := range sites {
		a, ok := back[s.ID]
		if !ok {
			return diag.Errorf(diag.PlacerError, "%s: oracle placed unknown request %d", def.Sig.ID, s.ID)
		}
		if !placed.Insert(s.ID) {
			return diag.Errorf(diag.PlacerError, "%s: oracle placed request %d twice", def.Sig.ID, s.ID)
		}
		a.Loc.X, a.Loc.Y = ir.At(s.X), ir.At(s.Y)
	}
	for _, c := range cs {
		for _, r := range c.Requests {
			if !placed.Contains(r.ID) {
				return diag.Errorf(diag.PlacerError, "%s: %s (request %d) was not placed", def.Sig.ID, back[r.ID].Op, r.ID)
			}
		}
	}
	if p.reporter != nil {
		p.reporter.Notef("placed %d instruction(s) of %s", placed.Size(), def.Sig.ID)
	}
	return nil
}
