// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ir

import (
	"fmt"
	"strings"
)

var opNames = map[Op]string{
	OpParam:         "param",
	OpConst:         "const",
	OpUndef:         "undef",
	OpIAdd:          "iadd",
	OpISub:          "isub",
	OpIMul:          "imul",
	OpUMulHi:        "umulhi",
	OpUDiv:          "udiv",
	OpUMin:          "umin",
	OpAnd:           "and",
	OpOr:            "or",
	OpShl:           "shl",
	OpLShr:          "lshr",
	OpPopCount:      "popcount",
	OpFAdd:          "fadd",
	OpFMul:          "fmul",
	OpFClamp:        "fclamp",
	OpUIToFP:        "uitofp",
	OpF32ToF16:      "f32tof16",
	OpPackHalf:      "packhalf",
	OpPackSnorm16:   "packsnorm16",
	OpPackUnorm16:   "packunorm16",
	OpICmp:          "icmp",
	OpFCmp:          "fcmp",
	OpSelect:        "select",
	OpBitcast:       "bitcast",
	OpZExt:          "zext",
	OpTruncBit:      "truncbit",
	OpPtrToInt:      "ptrtoint",
	OpIntToPtr:      "inttoptr",
	OpCompose:       "compose",
	OpExtract:       "extract",
	OpIfBegin:       "if",
	OpEndIf:         "endif",
	OpBarrier:       "barrier",
	OpWaveReduce:    "wave.reduce",
	OpWaveExclScan:  "wave.exclscan",
	OpWaveInclScan:  "wave.inclscan",
	OpMBCnt:         "mbcnt",
	OpReadLane:      "readlane",
	OpReadFirstLane: "readfirstlane",
	OpWriteLane:     "writelane",
	OpLDSLoad:       "lds.load",
	OpLDSStore:      "lds.store",
	OpLoadDesc:      "loaddesc",
	OpBufferLoad:    "buffer.load",
	OpBufferStore:   "buffer.store",
	OpGDSOrderedAdd: "gds.orderedadd",
	OpGDSAtomicSub:  "gds.atomicsub",
	OpExport:        "export",
	OpSendMsg:       "sendmsg",
	OpKill:          "kill",
	OpCall:          "call",
	OpTupleExtract:  "tupleextract",
	OpRet:           "ret",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

// String renders the function as a readable listing, one instruction per
// line. Debug aid only; the format is not stable.
func (f *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s (%d params, %d results)\n", f.Name, len(f.Params), len(f.Results))
	for i, in := range f.Instrs {
		fmt.Fprintf(&sb, "  v%-3d %s %s", i, in.Class, in.Op)
		if in.Sub != 0 {
			fmt.Fprintf(&sb, " sub=%#x", in.Sub)
		}
		if in.Imm != 0 {
			fmt.Fprintf(&sb, " imm=%#x", in.Imm)
		}
		for _, a := range in.Args {
			fmt.Fprintf(&sb, " v%d", a)
		}
		if in.Region != 0 {
			fmt.Fprintf(&sb, " @r%d", in.Region)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// String renders every function of the module.
func (m *Module) String() string {
	var sb strings.Builder
	for _, f := range m.Funcs {
		sb.WriteString(f.String())
	}
	return sb.String()
}
