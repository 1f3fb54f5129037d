package machine

import "tilec/internal/ir"

// DSP48E2 port widths.
const (
	DspAWidth    = 30
	DspBWidth    = 18
	DspCWidth    = 48
	DspPWidth    = 48
	DspMulAWidth = 27
)

// DspConfig decodes the attribute tuple of a DSP machine instruction:
// [areg, breg, creg, preg, pcin, pcout]. Missing entries are zero.
type DspConfig struct {
	AReg  bool
	BReg  bool
	CReg  bool
	PReg  bool
	PCIn  bool
	PCOut bool
}

// DecodeDsp reads a DSP configuration from an attribute expression.
func DecodeDsp(attr ir.Expr) DspConfig {
	flag := func(i int) bool {
		return i < len(attr) && attr[i].IsVal() && attr[i].Val != 0
	}
	return DspConfig{
		AReg:  flag(0),
		BReg:  flag(1),
		CReg:  flag(2),
		PReg:  flag(3),
		PCIn:  flag(4),
		PCOut: flag(5),
	}
}

// Encode is the inverse of DecodeDsp.
func (c DspConfig) Encode() ir.Expr {
	bit := func(b bool) ir.Term {
		if b {
			return ir.Val(1)
		}
		return ir.Val(0)
	}
	return ir.Expr{bit(c.AReg), bit(c.BReg), bit(c.CReg), bit(c.PReg), bit(c.PCIn), bit(c.PCOut)}
}

// PCOutNet names the cascade net driven by the DSP that defines id.
func PCOutNet(id string) string {
	return id + "_pcout"
}
