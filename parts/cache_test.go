// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gcn/ir"
)

func irUsage(sgprs, vgprs, lds int) ir.RegisterUsage {
	return ir.RegisterUsage{NumSGPRs: sgprs, NumVGPRs: vgprs, LDSBytes: lds}
}

func TestCacheReusesEqualKeys(t *testing.T) {
	var c Cache
	builds := 0
	build := func() (*CompiledPart, error) {
		builds++
		return &CompiledPart{}, nil
	}

	key := VSPrologKey{NumInputs: 2, NumInputSGPRs: 4}
	p1, err := c.GetOrCompile(KindVSProlog, key, build)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	p2, err := c.GetOrCompile(KindVSProlog, key, build)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if p1 != p2 {
		t.Error("equal keys returned distinct parts")
	}
	if builds != 1 {
		t.Errorf("build ran %d times, want 1", builds)
	}
}

func TestCacheDistinctKeys(t *testing.T) {
	var c Cache
	build := func() (*CompiledPart, error) { return &CompiledPart{}, nil }

	a, _ := c.GetOrCompile(KindPSEpilog, PSEpilogKey{ColorsWritten: 1}, build)
	b, _ := c.GetOrCompile(KindPSEpilog, PSEpilogKey{ColorsWritten: 3}, build)
	if a == b {
		t.Error("distinct keys shared a part")
	}
	if got := c.Len(KindPSEpilog); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}

func TestCacheAtMostOnceConcurrent(t *testing.T) {
	var c Cache
	var builds atomic.Int32
	build := func() (*CompiledPart, error) {
		builds.Add(1)
		return &CompiledPart{}, nil
	}

	key := GSPrologKey{TriStripAdjFix: true, NumInputSGPRs: 2, NumInputVGPRs: 7}
	var wg sync.WaitGroup
	results := make([]*CompiledPart, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.GetOrCompile(KindGSProlog, key, build)
			if err != nil {
				t.Errorf("GetOrCompile: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Errorf("build ran %d times, want 1", n)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different part", i)
		}
	}
}

func TestCacheFailureNotInserted(t *testing.T) {
	var c Cache
	boom := errors.New("backend failure")
	calls := 0
	key := PSPrologKey{PolyStipple: true, NumInputSGPRs: 2, NumInputVGPRs: 16}

	_, err := c.GetOrCompile(KindPSProlog, key, func() (*CompiledPart, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got := c.Len(KindPSProlog); got != 0 {
		t.Fatalf("failed compile was cached, Len = %d", got)
	}

	// A retry after the failure must run the builder again.
	p, err := c.GetOrCompile(KindPSProlog, key, func() (*CompiledPart, error) {
		calls++
		return &CompiledPart{}, nil
	})
	if err != nil || p == nil {
		t.Fatalf("retry failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("builder ran %d times, want 2", calls)
	}
}

func TestUsageAggregation(t *testing.T) {
	u := MaxUsage(
		irUsage(10, 4, 0),
		irUsage(6, 12, 256),
	)
	if u.NumSGPRs != 10 || u.NumVGPRs != 12 || u.LDSBytes != 256 {
		t.Errorf("MaxUsage = %+v", u)
	}

	floored := ApplyFloors(irUsage(1, 0, 0), 8, 5)
	if floored.NumSGPRs != 10 {
		t.Errorf("SGPR floor = %d, want 10 (inputs + carry mask)", floored.NumSGPRs)
	}
	if floored.NumVGPRs != 5 {
		t.Errorf("VGPR floor = %d, want 5", floored.NumVGPRs)
	}
}

func TestComputeSGPRBudget(t *testing.T) {
	over := irUsage(MaxComputeSGPRs+1, 0, 0)
	if err := CheckComputeSGPRs(over, false); err == nil {
		t.Error("over-budget compute usage passed the check")
	}
	if err := CheckComputeSGPRs(over, true); err != nil {
		t.Errorf("override still failed: %v", err)
	}
	if err := CheckComputeSGPRs(irUsage(MaxComputeSGPRs, 0, 0), false); err != nil {
		t.Errorf("at-budget usage failed: %v", err)
	}
}
