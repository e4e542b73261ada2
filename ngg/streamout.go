// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ngg

import (
	"github.com/gogpu/gcn/ir"
)

// MaxStreamoutBuffers and MaxStreams bound the transform-feedback
// configuration. One stream may feed several buffers, never the reverse.
const (
	MaxStreamoutBuffers = 4
	MaxStreams          = 4
)

// Streamout emits the transform-feedback bookkeeping of a primitive shader:
// advance the per-buffer device counters by the space the workgroup wants,
// clamp the emitted primitive count to the space each buffer actually has,
// and give back the over-allocation so the counters reflect exactly what was
// written.
type Streamout struct {
	// BufferEnabled and BufferToStream describe which buffers capture which
	// stream; PrimStrideDw is the dwords one primitive occupies in a buffer.
	BufferEnabled  [MaxStreamoutBuffers]bool
	BufferToStream [MaxStreamoutBuffers]int
	PrimStrideDw   [MaxStreamoutBuffers]uint32

	// DescSlot and GDSAddr locate each buffer's descriptor and its counter
	// dword in device-global memory.
	DescSlot [MaxStreamoutBuffers]uint32
	GDSAddr  [MaxStreamoutBuffers]uint32

	NumStreams int

	// DescTable is the scalar descriptor-table base; TID the invocation
	// index within the wave; WaveID the wave index.
	DescTable ir.Value
	TID       ir.Value
	WaveID    ir.Value

	// GeneratedByStream holds the workgroup's generated primitive count per
	// stream, uniform across the workgroup.
	GeneratedByStream [MaxStreams]ir.Value

	// Results, valid after Emit: the dword offset each buffer's write
	// begins at and the clamped emit count per stream. Uniform values.
	BufOffsetDw  [MaxStreamoutBuffers]ir.Value
	EmitByStream [MaxStreams]ir.Value
}

// Scratch slot layout: buffer offsets then per-stream emit counts.
const streamoutScratchDwords = MaxStreamoutBuffers + MaxStreams

// Emit builds the counter update. The first wave's first invocation does the
// device-counter arithmetic; the results travel through shared scratch so
// every wave sees the same offsets and emit counts.
func (so *Streamout) Emit(b *ir.Builder) {
	scratch := b.AllocLDS("streamout_scratch", streamoutScratchDwords)

	firstWave := b.ICmp(ir.CmpEQ, so.WaveID, b.ConstI32(0))
	firstLane := b.ICmp(ir.CmpEQ, so.TID, b.ConstI32(0))

	b.IfBegin(firstWave)
	b.IfBegin(firstLane)
	{
		var emit [MaxStreams]ir.Value
		for s := 0; s < so.NumStreams; s++ {
			emit[s] = so.GeneratedByStream[s]
		}

		var offsets [MaxStreamoutBuffers]ir.Value
		for buf := 0; buf < MaxStreamoutBuffers; buf++ {
			if !so.BufferEnabled[buf] {
				continue
			}
			stream := so.BufferToStream[buf]
			generated := so.GeneratedByStream[stream]
			stride := b.ConstI32(so.PrimStrideDw[buf])

			// Claim space for everything generated; the fixup below gives
			// back what does not fit.
			offsets[buf] = b.GDSOrderedAdd(b.ConstI32(so.GDSAddr[buf]), b.IMul(generated, stride))

			desc := b.LoadDesc(so.DescTable, b.ConstI32(so.DescSlot[buf]))
			bufSizeDw := b.LShr(b.Extract(desc, 2), b.ConstI32(2))

			maxEmit := b.UDiv(b.ISub(bufSizeDw, offsets[buf]), stride)
			overflowed := b.ICmp(ir.CmpUGT, offsets[buf], bufSizeDw)
			maxEmit = b.Select(overflowed, b.ConstI32(0), maxEmit)

			emit[stream] = b.UMin(emit[stream], maxEmit)
		}

		// Second pass: every buffer of a stream gives back the same
		// over-allocation, since the emit count is the min across them.
		for buf := 0; buf < MaxStreamoutBuffers; buf++ {
			if !so.BufferEnabled[buf] {
				continue
			}
			stream := so.BufferToStream[buf]
			over := b.ISub(so.GeneratedByStream[stream], emit[stream])
			b.GDSAtomicSub(b.ConstI32(so.GDSAddr[buf]), b.IMul(over, b.ConstI32(so.PrimStrideDw[buf])))

			b.LDSStore(scratch, b.ConstI32(uint32(buf)), offsets[buf])
		}
		for s := 0; s < so.NumStreams; s++ {
			b.LDSStore(scratch, b.ConstI32(uint32(MaxStreamoutBuffers+s)), emit[s])
		}
	}
	b.EndIf()
	b.EndIf()

	b.Barrier()

	// Distribute the results to all waves.
	for buf := 0; buf < MaxStreamoutBuffers; buf++ {
		if !so.BufferEnabled[buf] {
			continue
		}
		so.BufOffsetDw[buf] = b.ReadFirstLane(b.LDSLoad(scratch, b.ConstI32(uint32(buf))))
	}
	for s := 0; s < so.NumStreams; s++ {
		so.EmitByStream[s] = b.ReadFirstLane(b.LDSLoad(scratch, b.ConstI32(uint32(MaxStreamoutBuffers+s))))
	}
}
