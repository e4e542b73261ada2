// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"math/bits"

	"github.com/gogpu/gcn/ir"
)

// UdivInfo holds the factors of a fast unsigned division by a fixed divisor:
//
//	q = umulhi((n >> PreShift) + Increment, Multiplier) >> PostShift
//
// The driver computes the factors on the CPU when a divisor becomes known
// and stores them in the instance-divisor buffer; the VS prolog evaluates
// the sequence with factors fetched at run time, so one compiled prolog
// serves every divisor value.
type UdivInfo struct {
	Multiplier uint32
	PreShift   uint8
	PostShift  uint8
	Increment  uint8
}

// ComputeUdivInfo derives division factors for a divisor d >= 1. The result
// is exact for every 32-bit numerand as long as the increment cannot wrap,
// which holds for the instance counts the prolog feeds it.
func ComputeUdivInfo(d uint32) UdivInfo {
	if d == 0 {
		panic("parts: udiv factors for divisor 0")
	}
	if d&(d-1) == 0 {
		// Power of two: shift out the divisor, then the +1 balanced against
		// the 2^32-1 multiplier leaves the quotient unchanged.
		return UdivInfo{
			Multiplier: 0xffffffff,
			PreShift:   uint8(bits.TrailingZeros32(d)),
			Increment:  1,
		}
	}
	l := uint(31 - bits.LeadingZeros32(d)) // floor(log2(d))
	n := uint64(1) << (32 + l)
	mDown := n / uint64(d)
	rem := n - mDown*uint64(d)
	if uint64(d)-rem <= uint64(1)<<l {
		// Round the multiplier up; no increment needed.
		return UdivInfo{Multiplier: uint32(mDown + 1), PostShift: uint8(l)}
	}
	// Round down and compensate with an increment before the multiply.
	return UdivInfo{Multiplier: uint32(mDown), PostShift: uint8(l), Increment: 1}
}

// Pack lays the factors out as the four dwords of one instance-divisor
// buffer slot.
func (u UdivInfo) Pack() [4]uint32 {
	return [4]uint32{u.Multiplier, uint32(u.PreShift), uint32(u.PostShift), uint32(u.Increment)}
}

// Divide evaluates the sequence on the CPU. Tests compare it, and the IR
// emitted by EmitFastUdiv, against plain integer division.
func (u UdivInfo) Divide(n uint32) uint32 {
	x := uint64(n>>u.PreShift) + uint64(u.Increment)
	return uint32((x * uint64(u.Multiplier)) >> 32 >> u.PostShift)
}

// EmitFastUdiv emits the division sequence with run-time factor values.
// The add of the increment must not wrap; the factors guarantee that for
// in-range numerands.
func EmitFastUdiv(b *ir.Builder, num, multiplier, preShift, postShift, increment ir.Value) ir.Value {
	x := b.LShr(num, preShift)
	x = b.IAdd(x, increment)
	x = b.UMulHi(x, multiplier)
	return b.LShr(x, postShift)
}
