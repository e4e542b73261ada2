// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ngg

import (
	"github.com/gogpu/gcn/ir"
)

// Compaction assigns dense output slots to the live vertices of a workgroup
// and builds the scatter/gather permutation through shared memory. Liveness
// in, per-invocation dense index and slot-to-source mapping out.
//
// The permutation uses its own scratch region rather than reusing the scan
// scratch; the memory cost is small and it removes the temporal-ownership
// coupling between the two uses.
type Compaction struct {
	// MaxLanes sizes the permutation scratch: the largest workgroup this
	// shader can be dispatched with.
	MaxLanes int

	MaxWaves int
	WaveID   ir.Value
	NumWaves ir.Value

	// TID is the invocation index within the workgroup; VertexLive the
	// per-invocation liveness predicate.
	TID        ir.Value
	VertexLive ir.Value

	// NewIndex is the dense slot of a live invocation's vertex (undefined
	// for dead ones); SourceIndex maps an output slot back to the
	// invocation that produced its vertex; NumVertices is the live total.
	NewIndex    ir.Value
	SourceIndex ir.Value
	NumVertices ir.Value
}

// Emit builds the compaction. It contains two workgroup barriers: one inside
// the scan and one between the scatter and the gather.
func (c *Compaction) Emit(b *ir.Builder) {
	scan := WGScan{
		Op:              ir.CombineIAdd,
		EnableReduce:    true,
		EnableExclusive: true,
		MaxWaves:        c.MaxWaves,
		WaveID:          c.WaveID,
		NumWaves:        c.NumWaves,
		Src:             b.ZExt(c.VertexLive),
	}
	scan.Run(b)
	c.NewIndex = scan.ResultExclusive
	c.NumVertices = scan.Result

	perm := b.AllocLDS("compaction_perm", uint32(c.MaxLanes))
	b.IfBegin(c.VertexLive)
	b.LDSStore(perm, c.NewIndex, c.TID)
	b.EndIf()
	b.Barrier()
	c.SourceIndex = b.LDSLoad(perm, c.TID)
}

// EmitAllocRequest asks the hardware to allocate export space for the
// workgroup's vertices and primitives. The message must be sent even when
// both counts are zero, or the workgroup deadlocks waiting for space.
func EmitAllocRequest(b *ir.Builder, numVertices, numPrimitives ir.Value) {
	payload := b.Or(numVertices, b.Shl(numPrimitives, b.ConstI32(12)))
	b.SendMsg(ir.MsgGSAllocReq, payload)
}

// EmitPrimExport packs up to three vertex indices, ten bits each, plus the
// null-primitive bit into one export word and exports it to the primitive
// target.
func EmitPrimExport(b *ir.Builder, indices []ir.Value, isNull ir.Value) {
	packed := b.ConstI32(0)
	for i, idx := range indices {
		packed = b.Or(packed, b.Shl(idx, b.ConstI32(uint32(10*i))))
	}
	if isNull != ir.None {
		packed = b.Or(packed, b.Shl(b.ZExt(isNull), b.ConstI32(31)))
	}
	undef := b.Undef(ir.TI32, ir.Vector)
	b.Export(ir.ExpPrim, ir.ExpDone|ir.ExpValidMask, 0x1, packed, undef, undef, undef)
}
