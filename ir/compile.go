// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ir

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// RegisterUsage reports peak register pressure of a compiled function, in
// dword registers per class, plus its LDS footprint.
type RegisterUsage struct {
	NumSGPRs int
	NumVGPRs int
	LDSBytes int

	// SpilledVGPRs stays zero for the modeled backend; real backends spill
	// and the variant layer aggregates the field either way.
	SpilledVGPRs int
}

// Binary is a compiled function: a deterministic encoding of its instruction
// stream plus the register accounting the variant layer aggregates.
type Binary struct {
	Code  []byte
	Usage RegisterUsage
}

// Hash returns a stable fingerprint of the code, usable as an identity check
// for deduplicated uploads.
func (b *Binary) Hash() uint64 {
	h := fnv.New64a()
	h.Write(b.Code)
	return h.Sum64()
}

// Optimize removes instructions whose results are never used. Side-effecting
// and control instructions are always kept. It rewrites the function in
// place; handles held by callers stay valid because dead instructions are
// replaced with undefs rather than compacted away.
func Optimize(m *Module, fh FuncHandle) {
	f := m.Func(fh)
	live := make([]bool, len(f.Instrs))
	for i := len(f.Instrs) - 1; i >= 0; i-- {
		in := &f.Instrs[i]
		if hasSideEffect(in.Op) || live[i] {
			live[i] = true
			for _, a := range in.Args {
				live[a] = true
			}
		}
	}
	for i := range f.Instrs {
		if !live[i] {
			f.Instrs[i] = Instr{Op: OpUndef, Type: f.Instrs[i].Type, Class: f.Instrs[i].Class, Region: f.Instrs[i].Region}
		}
	}
}

func hasSideEffect(op Op) bool {
	switch op {
	case OpParam, OpIfBegin, OpEndIf, OpBarrier,
		OpLDSStore, OpBufferStore, OpGDSOrderedAdd, OpGDSAtomicSub,
		OpExport, OpSendMsg, OpKill, OpCall, OpRet, OpWriteLane:
		return true
	}
	return false
}

// Compile lowers a function to a Binary. The register accounting is a
// dword-weighted live-range sweep per class: a value occupies DwordSize
// registers of its class from definition through last use, and the peak
// concurrent occupancy is the reported count. Parameters are live from entry.
func Compile(m *Module, fh FuncHandle) (*Binary, error) {
	f := m.Func(fh)
	if len(f.Instrs) == 0 || f.Instrs[len(f.Instrs)-1].Op != OpRet {
		return nil, fmt.Errorf("ir: %s does not end in a return", f.Name)
	}

	lastUse := make([]int, len(f.Instrs))
	for i, in := range f.Instrs {
		lastUse[i] = i
		for _, a := range in.Args {
			lastUse[a] = i
		}
	}

	var peakS, peakV, curS, curV int
	ends := make(map[int][]int) // instruction index -> values whose range ends there
	for i := range f.Instrs {
		ends[lastUse[i]] = append(ends[lastUse[i]], i)
	}
	acct := func(in *Instr, sign int) {
		w := sign * in.Type.DwordSize()
		if in.Class == Scalar {
			curS += w
		} else {
			curV += w
		}
	}
	for i := range f.Instrs {
		in := &f.Instrs[i]
		acct(in, 1)
		if in.Op == OpCall {
			callee, err := Compile(m, FuncHandle(in.Imm))
			if err != nil {
				return nil, err
			}
			if s := curS + callee.Usage.NumSGPRs; s > peakS {
				peakS = s
			}
			if v := curV + callee.Usage.NumVGPRs; v > peakV {
				peakV = v
			}
		}
		if curS > peakS {
			peakS = curS
		}
		if curV > peakV {
			peakV = curV
		}
		for _, dead := range ends[i] {
			acct(&f.Instrs[dead], -1)
		}
	}

	return &Binary{
		Code: encode(f),
		Usage: RegisterUsage{
			NumSGPRs: peakS,
			NumVGPRs: peakV,
			LDSBytes: int(f.LDSBytes()),
		},
	}, nil
}

// encode serializes the instruction stream. The format only needs to be
// deterministic for a given function; it is the identity compared when
// probing whether two variants shared a main part binary.
func encode(f *Func) []byte {
	buf := make([]byte, 0, 16*len(f.Instrs))
	var w [8]byte
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(w[:4], v)
		buf = append(buf, w[:4]...)
	}
	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(w[:], v)
		buf = append(buf, w[:]...)
	}
	put32(uint32(len(f.Instrs)))
	for _, in := range f.Instrs {
		put32(uint32(in.Op)<<16 | uint32(in.Class)<<8 | uint32(in.Type.Kind))
		put32(in.Sub)
		put64(in.Imm)
		put32(uint32(len(in.Args)))
		for _, a := range in.Args {
			put32(uint32(a))
		}
	}
	return buf
}
