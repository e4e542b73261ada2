// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"github.com/gogpu/gcn/ir"
)

// Internal descriptor-table slots shared with the state tracker. Slot 0 of
// every part's scalar arguments is the table these index into.
const (
	SlotInstanceDivisors uint32 = iota
	SlotPolyStipple
	SlotTessFactorRing
)

// finishPart runs the backend over a built part and wraps the result. The
// usage floors account for input registers the hardware loads whether or not
// the body reads them.
func finishPart(m *ir.Module, kind Kind, fh ir.FuncHandle, numInputSGPRs, numInputVGPRs int) (*CompiledPart, error) {
	ir.Optimize(m, fh)
	bin, err := ir.Compile(m, fh)
	if err != nil {
		return nil, backendErr(kind, "code generation failed", err)
	}
	return &CompiledPart{
		Func:   fh,
		Binary: bin,
		Usage:  ApplyFloors(bin.Usage, numInputSGPRs, numInputVGPRs),
	}, nil
}
