package ir

import (
	"strconv"

	"github.com/hashicorp/go-set/v3"
)

// Namer hands out ids that no other id of a definition uses. Every id it
// returns is reserved, so two calls never yield the same id.
type Namer struct {
	taken *set.Set[string]
}

// NewNamer reserves every id def mentions: signature ids, destinations and
// arguments.
func NewNamer(def *Def) *Namer {
	n := &Namer{taken: set.New[string](len(def.Body) + len(def.Sig.Inputs) + len(def.Sig.Outputs))}
	n.Reserve(def.Sig.Inputs.IDs()...)
	n.Reserve(def.Sig.Outputs.IDs()...)
	for _, instr := range def.Body {
		f := instr.Base()
		n.Reserve(f.Dst.IDs()...)
		n.Reserve(f.Args.IDs()...)
	}
	return n
}

// Reserve marks ids as used.
func (n *Namer) Reserve(ids ...string) {
	for _, id := range ids {
		n.taken.Insert(id)
	}
}

// Fresh returns base when it is free, otherwise base followed by the first
// free "_<k>" suffix.
func (n *Namer) Fresh(base string) string {
	id := base
	for k := 1; n.taken.Contains(id); k++ {
		id = base + "_" + strconv.Itoa(k)
	}
	n.taken.Insert(id)
	return id
}
