// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ir

import (
	"fmt"
	"math"
)

// Descriptor is the executor's model of a buffer descriptor: four hardware
// words (word 2 is the buffer size in bytes) and the backing storage.
type Descriptor struct {
	Words [4]uint32
	Data  []uint32
}

// NewBufferDescriptor builds a descriptor over data with the given size in
// bytes recorded in word 2.
func NewBufferDescriptor(data []uint32) *Descriptor {
	return &Descriptor{Words: [4]uint32{0, 0, uint32(len(data) * 4), 0}, Data: data}
}

// ExecConfig describes the modeled workgroup for one run.
type ExecConfig struct {
	WaveSize int
	NumWaves int

	// ScalarInputs sets scalar parameters of the entry function by index.
	ScalarInputs map[int]uint64

	// VectorInputs sets vector parameters per lane (length NumWaves*WaveSize).
	VectorInputs map[int][]uint64

	// Descriptors maps descriptor-table slots to buffers.
	Descriptors map[uint32]*Descriptor

	// GDS is the device-global counter space (dword-addressed).
	GDS []uint32
}

// ExportRec is one recorded export instruction.
type ExportRec struct {
	Target uint32
	Flags  uint32
	Mask   uint32
	Values [4][]uint64
	Active []bool
}

// MsgRec is one recorded hardware message.
type MsgRec struct {
	Msg     uint32
	Payload uint64
}

// Result is the observable outcome of executing a function over a workgroup.
type Result struct {
	// Returns holds the entry function's result tuple, one lane array per
	// tuple element.
	Returns [][]uint64

	Exports []ExportRec
	Msgs    []MsgRec

	// Killed marks lanes discarded by a kill instruction.
	Killed []bool

	// GDS is the final state of the global counter space.
	GDS []uint32
}

// Executor runs IR functions over a modeled workgroup in lockstep. It is a
// test vehicle, not a performance model: one instruction at a time, all lanes
// together, waves in index order for ordered atomics.
type Executor struct {
	m      *Module
	cfg    ExecConfig
	lanes  int
	killed []bool
	lds    map[[2]uint32][]uint32
	res    *Result
}

// Exec runs fn over the configured workgroup.
func Exec(m *Module, fn FuncHandle, cfg ExecConfig) (*Result, error) {
	if cfg.WaveSize <= 0 || cfg.NumWaves <= 0 {
		return nil, fmt.Errorf("ir: exec needs a positive wave size and wave count")
	}
	e := &Executor{
		m:     m,
		cfg:   cfg,
		lanes: cfg.WaveSize * cfg.NumWaves,
		lds:   make(map[[2]uint32][]uint32),
	}
	e.killed = make([]bool, e.lanes)
	e.res = &Result{GDS: cfg.GDS, Killed: e.killed}

	f := m.Func(fn)
	args := make([][]uint64, len(f.Params))
	for i, p := range f.Params {
		lanesv := make([]uint64, e.lanes)
		if p.Class == Scalar {
			v := cfg.ScalarInputs[i]
			for l := range lanesv {
				lanesv[l] = v
			}
		} else if in, ok := cfg.VectorInputs[i]; ok {
			if len(in) != e.lanes {
				return nil, fmt.Errorf("ir: vector input %d has %d lanes, want %d", i, len(in), e.lanes)
			}
			copy(lanesv, in)
		}
		args[i] = lanesv
	}

	mask := make([]bool, e.lanes)
	for i := range mask {
		mask[i] = true
	}
	rets, err := e.runFunc(fn, args, mask)
	if err != nil {
		return nil, err
	}
	e.res.Returns = rets
	return e.res, nil
}

func (e *Executor) ldsArray(fn FuncHandle, idx int) []uint32 {
	key := [2]uint32{uint32(fn), uint32(idx)}
	arr, ok := e.lds[key]
	if !ok {
		arr = make([]uint32, e.m.Func(fn).LDS[idx].Dwords)
		e.lds[key] = arr
	}
	return arr
}

func (e *Executor) runFunc(fh FuncHandle, args [][]uint64, entryMask []bool) ([][]uint64, error) {
	f := e.m.Func(fh)
	vals := make([][]uint64, len(f.Instrs))
	tuples := make(map[Value][][]uint64)
	maskStack := [][]bool{append([]bool(nil), entryMask...)}

	mask := func() []bool { return maskStack[len(maskStack)-1] }
	lane := func(v Value) []uint64 { return vals[v] }

	for ip, in := range f.Instrs {
		v := Value(ip)
		switch in.Op {
		case OpParam:
			vals[v] = args[in.Imm]

		case OpConst, OpUndef:
			out := make([]uint64, e.lanes)
			for l := range out {
				out[l] = in.Imm
			}
			vals[v] = out

		case OpIAdd, OpISub, OpIMul, OpUMulHi, OpUDiv, OpUMin, OpAnd, OpOr,
			OpShl, OpLShr, OpFAdd, OpFMul, OpPackHalf, OpPackSnorm16, OpPackUnorm16:
			x, y := lane(in.Args[0]), lane(in.Args[1])
			out := make([]uint64, e.lanes)
			for l := range out {
				out[l] = evalBinary(in.Op, x[l], y[l])
			}
			vals[v] = out

		case OpPopCount, OpFClamp, OpUIToFP, OpF32ToF16, OpZExt, OpTruncBit,
			OpBitcast, OpPtrToInt, OpIntToPtr:
			x := lane(in.Args[0])
			out := make([]uint64, e.lanes)
			for l := range out {
				out[l] = evalUnary(in.Op, x[l])
			}
			vals[v] = out

		case OpICmp, OpFCmp:
			x, y := lane(in.Args[0]), lane(in.Args[1])
			out := make([]uint64, e.lanes)
			for l := range out {
				if evalCmp(in.Op, in.Sub, x[l], y[l]) {
					out[l] = 1
				}
			}
			vals[v] = out

		case OpSelect:
			c, x, y := lane(in.Args[0]), lane(in.Args[1]), lane(in.Args[2])
			out := make([]uint64, e.lanes)
			for l := range out {
				if c[l] != 0 {
					out[l] = x[l]
				} else {
					out[l] = y[l]
				}
			}
			vals[v] = out

		case OpCompose:
			out := make([]uint64, e.lanes)
			for i, a := range in.Args {
				src := lane(a)
				for l := range out {
					out[l] |= (src[l] & 0xffffffff) << (32 * uint(i))
				}
			}
			// Composes wider than 64 bits would need a tuple representation;
			// nothing in the part ABI produces one.
			if len(in.Args) > 2 {
				return nil, fmt.Errorf("ir: exec: compose of %d dwords unsupported", len(in.Args))
			}
			vals[v] = out

		case OpExtract:
			src := lane(in.Args[0])
			out := make([]uint64, e.lanes)
			if at := f.Instrs[in.Args[0]].Type; at.Kind == KindI32 && at.Lanes == 4 {
				// Descriptor word extract: the runtime value of a loaded
				// descriptor is its table slot.
				for l := range out {
					if d := e.cfg.Descriptors[uint32(src[l])]; d != nil {
						out[l] = uint64(d.Words[in.Imm])
					}
				}
			} else {
				for l := range out {
					out[l] = (src[l] >> (32 * uint(in.Imm))) & 0xffffffff
				}
			}
			vals[v] = out

		case OpIfBegin:
			cond := lane(in.Args[0])
			cur := mask()
			next := make([]bool, e.lanes)
			for l := range next {
				next[l] = cur[l] && cond[l] != 0
			}
			maskStack = append(maskStack, next)

		case OpEndIf:
			maskStack = maskStack[:len(maskStack)-1]

		case OpBarrier:
			// Lockstep execution satisfies the barrier by construction; the
			// builder already rejected barriers inside conditional regions.

		case OpWaveReduce, OpWaveExclScan, OpWaveInclScan:
			vals[v] = e.waveScan(in, lane(in.Args[0]), mask())

		case OpMBCnt:
			out := make([]uint64, e.lanes)
			for l := range out {
				out[l] = uint64(l % e.cfg.WaveSize)
			}
			vals[v] = out

		case OpReadLane:
			src, ln := lane(in.Args[0]), lane(in.Args[1])
			out := make([]uint64, e.lanes)
			for w := 0; w < e.cfg.NumWaves; w++ {
				base := w * e.cfg.WaveSize
				pick := src[base+int(ln[base]%uint64(e.cfg.WaveSize))]
				for l := 0; l < e.cfg.WaveSize; l++ {
					out[base+l] = pick
				}
			}
			vals[v] = out

		case OpReadFirstLane:
			src := lane(in.Args[0])
			cur := mask()
			out := make([]uint64, e.lanes)
			for w := 0; w < e.cfg.NumWaves; w++ {
				base := w * e.cfg.WaveSize
				pick := src[base]
				for l := 0; l < e.cfg.WaveSize; l++ {
					if cur[base+l] {
						pick = src[base+l]
						break
					}
				}
				for l := 0; l < e.cfg.WaveSize; l++ {
					out[base+l] = pick
				}
			}
			vals[v] = out

		case OpWriteLane:
			dst, val, ln := lane(in.Args[0]), lane(in.Args[1]), lane(in.Args[2])
			out := make([]uint64, e.lanes)
			copy(out, dst)
			for w := 0; w < e.cfg.NumWaves; w++ {
				base := w * e.cfg.WaveSize
				out[base+int(ln[base]%uint64(e.cfg.WaveSize))] = val[base]
			}
			vals[v] = out

		case OpLDSLoad:
			arr := e.ldsArray(fh, int(in.Imm))
			off := lane(in.Args[0])
			cur := mask()
			out := make([]uint64, e.lanes)
			for l := range out {
				if cur[l] && int(off[l]) < len(arr) {
					out[l] = uint64(arr[off[l]])
				}
			}
			vals[v] = out

		case OpLDSStore:
			arr := e.ldsArray(fh, int(in.Imm))
			off, val := lane(in.Args[0]), lane(in.Args[1])
			cur := mask()
			for l := 0; l < e.lanes; l++ {
				if cur[l] && int(off[l]) < len(arr) {
					arr[off[l]] = uint32(val[l])
				}
			}

		case OpLoadDesc:
			slot := lane(in.Args[1])
			out := make([]uint64, e.lanes)
			copy(out, slot)
			vals[v] = out

		case OpBufferLoad:
			desc, off := lane(in.Args[0]), lane(in.Args[1])
			cur := mask()
			out := make([]uint64, e.lanes)
			for l := range out {
				if !cur[l] {
					continue
				}
				if d := e.cfg.Descriptors[uint32(desc[l])]; d != nil {
					if i := int(off[l] / 4); i < len(d.Data) {
						out[l] = uint64(d.Data[i])
					}
				}
			}
			vals[v] = out

		case OpBufferStore:
			desc, off, val := lane(in.Args[0]), lane(in.Args[1]), lane(in.Args[2])
			cur := mask()
			for l := 0; l < e.lanes; l++ {
				if !cur[l] {
					continue
				}
				if d := e.cfg.Descriptors[uint32(desc[l])]; d != nil {
					if i := int(off[l] / 4); i < len(d.Data) {
						d.Data[i] = uint32(val[l])
					}
				}
			}

		case OpGDSOrderedAdd:
			addr, val := lane(in.Args[0]), lane(in.Args[1])
			cur := mask()
			out := make([]uint64, e.lanes)
			for l := 0; l < e.lanes; l++ {
				if !cur[l] {
					continue
				}
				a := int(addr[l])
				if a < len(e.res.GDS) {
					out[l] = uint64(e.res.GDS[a])
					e.res.GDS[a] += uint32(val[l])
				}
			}
			vals[v] = out

		case OpGDSAtomicSub:
			addr, val := lane(in.Args[0]), lane(in.Args[1])
			cur := mask()
			for l := 0; l < e.lanes; l++ {
				if !cur[l] {
					continue
				}
				a := int(addr[l])
				if a < len(e.res.GDS) {
					e.res.GDS[a] -= uint32(val[l])
				}
			}

		case OpExport:
			rec := ExportRec{
				Target: in.Sub & 0xff,
				Flags:  in.Sub &^ 0xff,
				Mask:   uint32(in.Imm),
				Active: append([]bool(nil), mask()...),
			}
			for i, a := range in.Args {
				rec.Values[i] = append([]uint64(nil), lane(a)...)
			}
			e.res.Exports = append(e.res.Exports, rec)

		case OpSendMsg:
			payload := lane(in.Args[0])
			cur := mask()
			val := payload[0]
			for l := 0; l < e.lanes; l++ {
				if cur[l] {
					val = payload[l]
					break
				}
			}
			e.res.Msgs = append(e.res.Msgs, MsgRec{Msg: in.Sub, Payload: val})

		case OpKill:
			cond := lane(in.Args[0])
			cur := mask()
			for l := 0; l < e.lanes; l++ {
				if cur[l] && cond[l] == 0 {
					e.killed[l] = true
					for _, m := range maskStack {
						m[l] = false
					}
				}
			}

		case OpCall:
			callee := FuncHandle(in.Imm)
			cargs := make([][]uint64, len(in.Args))
			for i, a := range in.Args {
				cargs[i] = lane(a)
			}
			rets, err := e.runFunc(callee, cargs, mask())
			if err != nil {
				return nil, err
			}
			tuples[v] = rets

		case OpTupleExtract:
			vals[v] = tuples[in.Args[0]][in.Imm]

		case OpRet:
			rets := make([][]uint64, len(in.Args))
			for i, a := range in.Args {
				rets[i] = lane(a)
			}
			return rets, nil

		default:
			return nil, fmt.Errorf("ir: exec: unhandled op %d in %s", in.Op, f.Name)
		}
	}
	return nil, nil
}

// waveScan handles reduce and prefix scans per wave, in lane order, with
// inactive lanes contributing the operator identity.
func (e *Executor) waveScan(in Instr, src []uint64, mask []bool) []uint64 {
	op := CombineOp(in.Sub)
	out := make([]uint64, e.lanes)
	for w := 0; w < e.cfg.NumWaves; w++ {
		base := w * e.cfg.WaveSize
		acc := op.Identity()
		for l := 0; l < e.cfg.WaveSize; l++ {
			contrib := op.Identity()
			if mask[base+l] {
				contrib = src[base+l] & 0xffffffff
			}
			switch in.Op {
			case OpWaveExclScan:
				out[base+l] = acc
				acc = op.Apply(acc, contrib)
			case OpWaveInclScan:
				acc = op.Apply(acc, contrib)
				out[base+l] = acc
			default:
				acc = op.Apply(acc, contrib)
			}
		}
		if in.Op == OpWaveReduce {
			for l := 0; l < e.cfg.WaveSize; l++ {
				out[base+l] = acc
			}
		}
	}
	return out
}

func evalBinary(op Op, x, y uint64) uint64 {
	a, b := uint32(x), uint32(y)
	switch op {
	case OpIAdd:
		return uint64(a + b)
	case OpISub:
		return uint64(a - b)
	case OpIMul:
		return uint64(a * b)
	case OpUMulHi:
		return uint64(uint32((uint64(a) * uint64(b)) >> 32))
	case OpUDiv:
		if b == 0 {
			return 0
		}
		return uint64(a / b)
	case OpUMin:
		if a < b {
			return uint64(a)
		}
		return uint64(b)
	case OpAnd:
		return uint64(a & b)
	case OpOr:
		return uint64(a | b)
	case OpShl:
		return uint64(a << (b & 31))
	case OpLShr:
		return uint64(a >> (b & 31))
	case OpFAdd:
		return f32bits(f32(a) + f32(b))
	case OpFMul:
		return f32bits(f32(a) * f32(b))
	case OpPackHalf:
		return uint64(uint32(f32ToHalf(f32(a))) | uint32(f32ToHalf(f32(b)))<<16)
	case OpPackSnorm16:
		return uint64(uint32(packSnorm(f32(a))) | uint32(packSnorm(f32(b)))<<16)
	case OpPackUnorm16:
		return uint64(uint32(packUnorm(f32(a))) | uint32(packUnorm(f32(b)))<<16)
	}
	return 0
}

func evalUnary(op Op, x uint64) uint64 {
	switch op {
	case OpPopCount:
		var n uint64
		for v := uint32(x); v != 0; v &= v - 1 {
			n++
		}
		return n
	case OpFClamp:
		f := f32(uint32(x))
		if f < 0 || f != f {
			f = 0
		} else if f > 1 {
			f = 1
		}
		return f32bits(f)
	case OpUIToFP:
		return f32bits(float32(uint32(x)))
	case OpF32ToF16:
		return uint64(f32ToHalf(f32(uint32(x))))
	case OpZExt, OpTruncBit:
		if uint32(x)&1 != 0 && op == OpTruncBit {
			return 1
		}
		if op == OpZExt && x != 0 {
			return 1
		}
		return 0
	case OpBitcast, OpPtrToInt, OpIntToPtr:
		return x
	}
	return 0
}

func evalCmp(op Op, pred uint32, x, y uint64) bool {
	if op == OpICmp {
		a, b := uint32(x), uint32(y)
		switch pred {
		case CmpEQ:
			return a == b
		case CmpNE:
			return a != b
		case CmpULT:
			return a < b
		case CmpULE:
			return a <= b
		case CmpUGT:
			return a > b
		case CmpUGE:
			return a >= b
		}
		return false
	}
	a, b := f32(uint32(x)), f32(uint32(y))
	switch pred {
	case CmpOLT:
		return a < b
	case CmpOLE:
		return a <= b
	case CmpOGT:
		return a > b
	case CmpOGE:
		return a >= b
	case CmpOEQ:
		return a == b
	case CmpONE:
		return a == a && b == b && a != b
	}
	return false
}

func f32(bits uint32) float32  { return math.Float32frombits(bits) }
func f32bits(f float32) uint64 { return uint64(math.Float32bits(f)) }
func clampF(f, lo, hi float32) float32 {
	if f != f {
		return 0
	}
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func packSnorm(f float32) uint16 {
	return uint16(int16(math.RoundToEven(float64(clampF(f, -1, 1) * 32767))))
}

func packUnorm(f float32) uint16 {
	return uint16(math.RoundToEven(float64(clampF(f, 0, 1) * 65535)))
}

// f32ToHalf converts to IEEE 754 binary16 with round-to-nearest-even.
func f32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits >> 16 & 0x8000)
	exp := int32(bits>>23&0xff) - 127
	man := bits & 0x7fffff

	switch {
	case exp == 128: // inf / nan
		if man != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp > 15:
		return sign | 0x7c00
	case exp >= -14:
		// Normal: round 23-bit mantissa to 10 bits.
		h := uint32(exp+15)<<10 | man>>13
		round := man & 0x1fff
		if round > 0x1000 || (round == 0x1000 && h&1 != 0) {
			h++
		}
		return sign | uint16(h)
	case exp >= -24:
		// Subnormal.
		man |= 0x800000
		shift := uint32(-exp - 1)
		h := man >> (shift + 10)
		round := man & ((1 << (shift + 10)) - 1)
		half := uint32(1) << (shift + 9)
		if round > half || (round == half && h&1 != 0) {
			h++
		}
		return sign | uint16(h)
	default:
		return sign
	}
}
