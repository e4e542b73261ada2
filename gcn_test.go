// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package gcn

import (
	"testing"

	"github.com/gogpu/gcn/ir"
	"github.com/gogpu/gcn/parts"
	"github.com/gogpu/gcn/variant"
)

func testOptions() Options {
	o := DefaultOptions()
	o.Workers = 2
	return o
}

func TestScreenPartDedup(t *testing.T) {
	s := NewScreen(testOptions())
	defer s.Destroy()

	key := parts.GSPrologKey{TriStripAdjFix: true, NumInputSGPRs: 2, NumInputVGPRs: 7}
	a, err := s.GSProlog(key)
	if err != nil {
		t.Fatalf("GSProlog: %v", err)
	}
	b, err := s.GSProlog(key)
	if err != nil {
		t.Fatalf("GSProlog again: %v", err)
	}
	if a != b {
		t.Error("equal keys produced distinct parts")
	}

	other, err := s.GSProlog(parts.GSPrologKey{NumInputSGPRs: 2, NumInputVGPRs: 7})
	if err != nil {
		t.Fatalf("GSProlog other: %v", err)
	}
	if other == a {
		t.Error("distinct keys shared one part")
	}
}

func TestScreenLink(t *testing.T) {
	s := NewScreen(testOptions())
	defer s.Destroy()

	p, err := s.GSProlog(parts.GSPrologKey{NumInputSGPRs: 2, NumInputVGPRs: 7})
	if err != nil {
		t.Fatalf("GSProlog: %v", err)
	}
	fh, bin, err := s.Link([]ir.FuncHandle{p.Func}, 0, 0)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if bin == nil || len(bin.Code) == 0 {
		t.Fatal("linked program has no code")
	}
	if bin.Usage.NumVGPRs == 0 {
		t.Error("linked program reports zero VGPRs")
	}

	// The stitched program must behave like the lone part.
	cfg := ir.ExecConfig{
		WaveSize: 1,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2: {5}, 3: {6}, 4: {7}, 5: {8}, 6: {9}, 7: {10}, 8: {11},
		},
	}
	res, err := ir.Exec(s.Module(), fh, cfg)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Returns[2][0] != 5 || res.Returns[8][0] != 11 {
		t.Error("linked program does not forward its inputs")
	}
}

func TestScreenValidateUsage(t *testing.T) {
	s := NewScreen(testOptions())
	defer s.Destroy()

	over := ir.RegisterUsage{NumSGPRs: parts.MaxComputeSGPRs + 1}
	if err := s.ValidateUsage(parts.StageCompute, over); err == nil {
		t.Error("compute SGPR budget not enforced")
	}
	under := ir.RegisterUsage{NumSGPRs: parts.MaxComputeSGPRs}
	if err := s.ValidateUsage(parts.StageCompute, under); err != nil {
		t.Errorf("usage at the budget rejected: %v", err)
	}
	// Graphics stages have no SGPR budget here.
	if err := s.ValidateUsage(parts.StageVertex, over); err != nil {
		t.Errorf("vertex usage rejected: %v", err)
	}

	loose := testOptions()
	loose.AllowLargeComputeSGPRs = true
	s2 := NewScreen(loose)
	defer s2.Destroy()
	if err := s2.ValidateUsage(parts.StageCompute, over); err != nil {
		t.Errorf("escape hatch did not disable the budget: %v", err)
	}
}

func TestScreenSelectorLifecycle(t *testing.T) {
	s := NewScreen(testOptions())

	sel := s.NewSelector(parts.StageVertex, func(key parts.ShaderKey) (*variant.CompiledShader, error) {
		return &variant.CompiledShader{Key: key}, nil
	})
	if _, err := sel.Select(parts.ShaderKey{}, variant.SelectOptions{}); err != nil {
		t.Fatalf("Select: %v", err)
	}

	s.Destroy()
	if _, err := sel.Select(parts.ShaderKey{}, variant.SelectOptions{}); err == nil {
		t.Error("selector survived screen teardown")
	}
}

func TestScreenSynchronousCompile(t *testing.T) {
	o := testOptions()
	o.SynchronousCompile = true
	s := NewScreen(o)
	defer s.Destroy()

	sel := s.NewSelector(parts.StageVertex, func(key parts.ShaderKey) (*variant.CompiledShader, error) {
		return &variant.CompiledShader{Key: key}, nil
	})
	key := parts.ShaderKey{}
	key.Opt.KillPointSize = true
	sh, err := sel.Select(key, variant.SelectOptions{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// Without a queue the optimized variant compiles on the spot.
	if !sh.Key.HasOpt() {
		t.Error("synchronous screen served the unoptimized fallback")
	}
}
