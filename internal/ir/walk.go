package ir

// Producers maps every destination id of the body to the instruction that
// defines it.
func Producers(body []Instr) map[string]Instr {
	out := make(map[string]Instr, len(body))
	for _, instr := range body {
		for _, t := range instr.Base().Dst {
			if t.IsVar() {
				out[t.ID] = instr
			}
		}
	}
	return out
}

// UseCounts counts argument occurrences of every id across the body. Output
// ids of the signature count as one extra use each.
func UseCounts(def *Def) map[string]int {
	uses := make(map[string]int)
	for _, instr := range def.Body {
		for _, t := range instr.Base().Args {
			if t.IsVar() {
				uses[t.ID]++
			}
		}
	}
	for _, t := range def.Sig.Outputs {
		if t.IsVar() {
			uses[t.ID]++
		}
	}
	return uses
}

// Env maps ids to their declared types: signature inputs, then body
// destinations.
func Env(def *Def) map[string]Ty {
	env := make(map[string]Ty)
	for _, t := range def.Sig.Inputs {
		if t.IsVar() {
			env[t.ID] = t.Ty
		}
	}
	for _, instr := range def.Body {
		for _, t := range instr.Base().Dst {
			if t.IsVar() {
				env[t.ID] = t.Ty
			}
		}
	}
	return env
}

// CloneDef deep-copies a definition.
func CloneDef(def *Def) *Def {
	out := &Def{
		Sig: Sig{
			ID:      def.Sig.ID,
			Inputs:  def.Sig.Inputs.Clone(),
			Outputs: def.Sig.Outputs.Clone(),
		},
		Body: make([]Instr, 0, len(def.Body)),
	}
	for _, instr := range def.Body {
		out.Body = append(out.Body, instr.Clone())
	}
	return out
}

// RenameVars rewrites every variable of the instruction's destination and
// argument lists through fn. Attributes are literals and stay untouched.
func RenameVars(instr Instr, fn func(Term) Term) {
	f := instr.Base()
	for i, t := range f.Dst {
		if t.IsVar() {
			f.Dst[i] = fn(t)
		}
	}
	for i, t := range f.Args {
		if t.IsVar() {
			f.Args[i] = fn(t)
		}
	}
}

// IsInput reports whether id is one of the signature inputs.
func (d *Def) IsInput(id string) bool {
	for _, t := range d.Sig.Inputs {
		if t.IsVar() && t.ID == id {
			return true
		}
	}
	return false
}

// IsOutput reports whether id is one of the signature outputs.
func (d *Def) IsOutput(id string) bool {
	for _, t := range d.Sig.Outputs {
		if t.IsVar() && t.ID == id {
			return true
		}
	}
	return false
}
