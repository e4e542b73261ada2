// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"fmt"

	"github.com/gogpu/gcn/ir"
)

// MaxComputeSGPRs is the scalar register budget of the compute hardware
// role. Graphics roles get their budget checked by the packet emitter, but a
// compute dispatch with too many SGPRs hangs, so it is fatal here.
const MaxComputeSGPRs = 104

// MaxUsage combines two usage summaries by taking the per-field maximum.
// A stitched shader's demand is the peak across its constituent parts, not
// their sum, because parts run one after another in the same registers.
func MaxUsage(a, b ir.RegisterUsage) ir.RegisterUsage {
	if b.NumSGPRs > a.NumSGPRs {
		a.NumSGPRs = b.NumSGPRs
	}
	if b.NumVGPRs > a.NumVGPRs {
		a.NumVGPRs = b.NumVGPRs
	}
	if b.LDSBytes > a.LDSBytes {
		a.LDSBytes = b.LDSBytes
	}
	if b.SpilledVGPRs > a.SpilledVGPRs {
		a.SpilledVGPRs = b.SpilledVGPRs
	}
	return a
}

// ApplyFloors raises a usage summary to the minimum the hardware loads
// regardless of what the program touches: every declared input register is
// occupied at entry, and two SGPRs are always reserved for the carry mask.
func ApplyFloors(u ir.RegisterUsage, numInputSGPRs, numInputVGPRs int) ir.RegisterUsage {
	if min := numInputSGPRs + 2; u.NumSGPRs < min {
		u.NumSGPRs = min
	}
	if u.NumVGPRs < numInputVGPRs {
		u.NumVGPRs = numInputVGPRs
	}
	return u
}

// CheckComputeSGPRs verifies the compute SGPR budget. allowOverflow is the
// test-harness override; production callers pass false.
func CheckComputeSGPRs(u ir.RegisterUsage, allowOverflow bool) error {
	if u.NumSGPRs > MaxComputeSGPRs && !allowOverflow {
		return &Error{
			Kind:    ErrRegisterBudget,
			Message: fmt.Sprintf("compute shader uses %d SGPRs, limit is %d", u.NumSGPRs, MaxComputeSGPRs),
		}
	}
	return nil
}
