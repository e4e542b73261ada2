// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package variant

import (
	"github.com/gogpu/gcn/ir"
	"github.com/gogpu/gcn/parts"
)

// CompiledShader is one variant: a main-part binary plus non-owning
// references to the cached parts stitched around it. Created on first use of
// a key, linked into its selector's variant list, never mutated afterwards.
type CompiledShader struct {
	Key parts.ShaderKey

	Prolog        *parts.CompiledPart
	PreviousStage *CompiledShader
	Prolog2       *parts.CompiledPart
	Epilog        *parts.CompiledPart

	MainFunc ir.FuncHandle
	Binary   *ir.Binary

	// BinaryShared marks a main binary reused from a sibling variant; a
	// shared binary is owned by the selector's main-part table, not by
	// this variant.
	BinaryShared bool

	// Usage is the aggregate register demand of the stitched program.
	Usage ir.RegisterUsage
}

// AggregateUsage folds the register demand of every constituent part into
// the shader's own and applies the hardware input floors.
func (s *CompiledShader) AggregateUsage(numInputSGPRs, numInputVGPRs int) {
	u := ir.RegisterUsage{}
	if s.Binary != nil {
		u = s.Binary.Usage
	}
	if s.Prolog != nil {
		u = parts.MaxUsage(u, s.Prolog.Usage)
	}
	if s.PreviousStage != nil {
		u = parts.MaxUsage(u, s.PreviousStage.Usage)
	}
	if s.Prolog2 != nil {
		u = parts.MaxUsage(u, s.Prolog2.Usage)
	}
	if s.Epilog != nil {
		u = parts.MaxUsage(u, s.Epilog.Usage)
	}
	s.Usage = parts.ApplyFloors(u, numInputSGPRs, numInputVGPRs)
}
