// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"testing"

	"github.com/gogpu/gcn/ir"
)

func TestPSPrologContradictoryKeyPanics(t *testing.T) {
	cases := []PSPrologKey{
		{ForcePerspSampleInterp: true, ForcePerspCenterInterp: true, NumInputSGPRs: 2, NumInputVGPRs: 16},
		{ForceLinearSampleInterp: true, ForceLinearCenterInterp: true, NumInputSGPRs: 2, NumInputVGPRs: 16},
		{BCOptimizeForPersp: true, ForcePerspSampleInterp: true, NumInputSGPRs: 2, NumInputVGPRs: 16},
		{BCOptimizeForLinear: true, ForceLinearCenterInterp: true, NumInputSGPRs: 2, NumInputVGPRs: 16},
		{NumInputSGPRs: 2, NumInputVGPRs: 3},
	}
	for i, key := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("case %d: no panic", i)
				}
			}()
			m := ir.NewModule("test")
			BuildPSProlog(m, key)
		}()
	}
}

func TestPSPrologPerSampleCoverage(t *testing.T) {
	m := ir.NewModule("test")
	key := PSPrologKey{
		SamplemaskLogPSIter: 2, // 4 samples per pixel
		NumInputSGPRs:       2,
		NumInputVGPRs:       16,
	}
	p, err := BuildPSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildPSProlog: %v", err)
	}

	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 2,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2 + psInAncillary:      {0 << 8, 1 << 8}, // sample 0, sample 1
			2 + psInSampleCoverage: {0xffff, 0xffff},
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	cov := res.Returns[2+psInSampleCoverage]
	if cov[0] != 0x1111 {
		t.Errorf("sample 0 coverage = %#x, want 0x1111", cov[0])
	}
	if cov[1] != 0x2222 {
		t.Errorf("sample 1 coverage = %#x, want 0x2222", cov[1])
	}
}

func TestPSPrologTwoSidedColors(t *testing.T) {
	m := ir.NewModule("test")
	key := PSPrologKey{
		ColorTwoSide:  true,
		ColorsRead:    0b11,
		NumInputSGPRs: 2,
		NumInputVGPRs: 16,
	}
	p, err := BuildPSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildPSProlog: %v", err)
	}

	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 2,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2 + psInFrontFace: {1, 0}, // front-facing, back-facing
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	// Selections follow the 16 forwarded VGPRs.
	sel := res.Returns[2+16:]
	wantFront := []uint64{0, 1}
	wantBack := []uint64{backColorOffset, backColorOffset + 1}
	for c := 0; c < 2; c++ {
		if sel[c][0] != wantFront[c] {
			t.Errorf("front color %d select = %d, want %d", c, sel[c][0], wantFront[c])
		}
		if sel[c][1] != wantBack[c] {
			t.Errorf("back color %d select = %d, want %d", c, sel[c][1], wantBack[c])
		}
	}
}

func TestPSPrologFlatshadeFlag(t *testing.T) {
	m := ir.NewModule("test")
	key := PSPrologKey{
		FlatshadeColors: true,
		ColorsRead:      0b1,
		NumInputSGPRs:   2,
		NumInputVGPRs:   16,
	}
	p, err := BuildPSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildPSProlog: %v", err)
	}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{WaveSize: 1, NumWaves: 1})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := res.Returns[2+16][0]; got != FlatColorFlag {
		t.Errorf("flat color select = %#x, want %#x", got, FlatColorFlag)
	}
}

func TestPSPrologPolyStipple(t *testing.T) {
	m := ir.NewModule("test")
	key := PSPrologKey{
		PolyStipple:   true,
		NumInputSGPRs: 2,
		NumInputVGPRs: 16,
	}
	p, err := BuildPSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildPSProlog: %v", err)
	}

	// Row 0 of the pattern keeps only even columns.
	pattern := make([]uint32, 32)
	pattern[0] = 0x55555555
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 2,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			// Fixed-point position: x in low 16 bits, y in high 16.
			2 + psInPosFixedPt: {0, 1}, // (0,0) kept, (1,0) discarded
		},
		Descriptors: map[uint32]*ir.Descriptor{
			SlotPolyStipple: ir.NewBufferDescriptor(pattern),
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Killed[0] {
		t.Error("lane 0 discarded, pattern bit is set")
	}
	if !res.Killed[1] {
		t.Error("lane 1 survived, pattern bit is clear")
	}
}

func TestPSEpilogNullExport(t *testing.T) {
	m := ir.NewModule("test")
	p, err := BuildPSEpilog(m, PSEpilogKey{NumInputSGPRs: 2, AlphaFunc: FuncAlways})
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{WaveSize: 1, NumWaves: 1})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res.Exports) != 1 {
		t.Fatalf("got %d exports, want 1", len(res.Exports))
	}
	e := res.Exports[0]
	if e.Target != ir.ExpNull {
		t.Errorf("target = %d, want null", e.Target)
	}
	if e.Flags&ir.ExpDone == 0 || e.Flags&ir.ExpValidMask == 0 {
		t.Errorf("flags = %#x, want done and valid mask", e.Flags)
	}
}

func TestPSEpilogAlphaNeverKillsWithoutColors(t *testing.T) {
	m := ir.NewModule("test")
	p, err := BuildPSEpilog(m, PSEpilogKey{NumInputSGPRs: 2, AlphaFunc: FuncNever})
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{WaveSize: 4, NumWaves: 1})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	for l, killed := range res.Killed {
		if !killed {
			t.Errorf("lane %d survived alpha func never", l)
		}
	}
	// The null export must still happen.
	if len(res.Exports) != 1 || res.Exports[0].Target != ir.ExpNull {
		t.Errorf("exports = %+v, want single null export", res.Exports)
	}
}

func TestPSEpilogAlphaTest(t *testing.T) {
	m := ir.NewModule("test")
	key := PSEpilogKey{
		NumInputSGPRs:      3,
		ColorsWritten:      0b1,
		SPIShaderColFormat: ColFormat32ABGR,
		AlphaFunc:          FuncGreater,
	}
	p, err := BuildPSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}

	ref := uint64(f32Bits(0.5))
	alphas := []uint64{uint64(f32Bits(0.25)), uint64(f32Bits(0.75))}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize:     2,
		NumWaves:     1,
		ScalarInputs: map[int]uint64{2: ref},
		VectorInputs: map[int][]uint64{
			6: alphas, // color 0 alpha, after the 3 scalar inputs
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Killed[0] {
		t.Error("alpha 0.25 > 0.5 should not pass")
	}
	if res.Killed[1] {
		t.Error("alpha 0.75 > 0.5 should pass")
	}
}

func TestPSEpilogAlphaToOneBeforeTest(t *testing.T) {
	m := ir.NewModule("test")
	key := PSEpilogKey{
		NumInputSGPRs:      3,
		ColorsWritten:      0b1,
		SPIShaderColFormat: ColFormat32ABGR,
		AlphaFunc:          FuncLess,
		AlphaToOne:         true,
	}
	p, err := BuildPSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}

	// Incoming alpha 0.25 would pass "less than 0.5", but alpha-to-one
	// replaces it first, so the test sees 1.0 and discards.
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize:     1,
		NumWaves:     1,
		ScalarInputs: map[int]uint64{2: uint64(f32Bits(0.5))},
		VectorInputs: map[int][]uint64{
			6: {uint64(f32Bits(0.25))},
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Killed[0] {
		t.Error("alpha-to-one must apply before the alpha test")
	}
	if len(res.Exports) != 1 {
		t.Fatalf("got %d exports, want 1", len(res.Exports))
	}
	if got := res.Exports[0].Values[3][0]; got != uint64(f32Bits(1)) {
		t.Errorf("exported alpha = %#x, want 1.0", got)
	}
}

func TestPSEpilogMRTZOrderAndDoneBit(t *testing.T) {
	m := ir.NewModule("test")
	key := PSEpilogKey{
		NumInputSGPRs:      2,
		ColorsWritten:      0b1,
		SPIShaderColFormat: ColFormat32R,
		WritesZ:            true,
		WritesStencil:      true,
		AlphaFunc:          FuncAlways,
	}
	p, err := BuildPSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}

	depth := uint64(f32Bits(0.5))
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 1,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2: {uint64(f32Bits(7))}, // color 0 red
			6: {depth},
			7: {42}, // stencil
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if len(res.Exports) != 2 {
		t.Fatalf("got %d exports, want 2", len(res.Exports))
	}
	z := res.Exports[0]
	if z.Target != ir.ExpMRTZ {
		t.Fatalf("first export target = %d, want MRTZ", z.Target)
	}
	if z.Mask != 0x3 {
		t.Errorf("MRTZ mask = %#x, want z and stencil", z.Mask)
	}
	if z.Flags&ir.ExpDone != 0 {
		t.Error("MRTZ carries the done bit, only the last export may")
	}
	if z.Values[0][0] != depth {
		t.Errorf("MRTZ z = %#x, want %#x", z.Values[0][0], depth)
	}
	if z.Values[1][0] != 42 {
		t.Errorf("MRTZ stencil = %d, want 42", z.Values[1][0])
	}

	col := res.Exports[1]
	if col.Target != ir.ExpMRT0 {
		t.Errorf("second export target = %d, want MRT0", col.Target)
	}
	if col.Flags&ir.ExpDone == 0 || col.Flags&ir.ExpValidMask == 0 {
		t.Errorf("last export flags = %#x, want done and valid mask", col.Flags)
	}
	if col.Mask != 0x1 {
		t.Errorf("MRT0 mask = %#x, want red only", col.Mask)
	}
}

func TestPSEpilogBroadcastLastCbuf(t *testing.T) {
	m := ir.NewModule("test")
	key := PSEpilogKey{
		NumInputSGPRs:      2,
		ColorsWritten:      0b1,
		LastCbuf:           2,
		SPIShaderColFormat: ColFormat32ABGR | ColFormat32ABGR<<4 | ColFormat32ABGR<<8,
		AlphaFunc:          FuncAlways,
	}
	p, err := BuildPSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}

	red := uint64(f32Bits(3))
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 1,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2: {red},
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res.Exports) != 3 {
		t.Fatalf("got %d exports, want 3", len(res.Exports))
	}
	for i, e := range res.Exports {
		if e.Target != ir.ExpMRT0+uint32(i) {
			t.Errorf("export %d target = %d, want MRT%d", i, e.Target, i)
		}
		if e.Values[0][0] != red {
			t.Errorf("export %d red = %#x, want color 0 broadcast", i, e.Values[0][0])
		}
		wantDone := i == 2
		if (e.Flags&ir.ExpDone != 0) != wantDone {
			t.Errorf("export %d done bit = %v, want %v", i, !wantDone, wantDone)
		}
	}
}

func TestPSEpilogUintClamp(t *testing.T) {
	m := ir.NewModule("test")
	key := PSEpilogKey{
		NumInputSGPRs:      2,
		ColorsWritten:      0b1,
		ColorIsInt8:        0b1,
		SPIShaderColFormat: ColFormatUint16ABGR,
		AlphaFunc:          FuncAlways,
	}
	p, err := BuildPSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildPSEpilog: %v", err)
	}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 1,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2: {300}, // over the int8 range
			3: {7},
			4: {1}, 5: {2},
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res.Exports) != 1 {
		t.Fatalf("got %d exports, want 1", len(res.Exports))
	}
	e := res.Exports[0]
	if e.Flags&ir.ExpCompressed == 0 {
		t.Error("16-bit formats export compressed")
	}
	if got, want := e.Values[0][0], uint64(0xff|7<<16); got != want {
		t.Errorf("packed rg = %#x, want %#x", got, want)
	}
}
