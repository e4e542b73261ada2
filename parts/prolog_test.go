// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"math"
	"testing"

	"github.com/gogpu/gcn/ir"
)

func f32Bits(v float32) uint32 { return math.Float32bits(v) }

func TestVSPrologFetchIndices(t *testing.T) {
	m := ir.NewModule("test")
	const divisor = 6
	key := VSPrologKey{
		NumInputs:                3,
		NumInputSGPRs:            4,
		NumInputVGPRs:            2,
		InstanceDivisorIsOne:     1 << 0,
		InstanceDivisorIsFetched: 1 << 1,
	}
	p, err := BuildVSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildVSProlog: %v", err)
	}

	// Factor slot of attribute 1 starts at dword 4 of the divisor buffer.
	factors := ComputeUdivInfo(divisor).Pack()
	data := make([]uint32, 8)
	copy(data[4:], factors[:])

	vertexIDs := []uint64{10, 11, 12, 13}
	instanceIDs := []uint64{0, 5, 6, 100}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 4,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			4: vertexIDs,
			5: instanceIDs,
		},
		Descriptors: map[uint32]*ir.Descriptor{
			SlotInstanceDivisors: ir.NewBufferDescriptor(data),
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	// Returns: 4 SGPRs, 2 VGPRs, then the three fetch indices.
	idx := res.Returns[6:]
	for l := 0; l < 4; l++ {
		if got, want := idx[0][l], instanceIDs[l]; got != want {
			t.Errorf("attr0 lane %d: got %d, want instance %d", l, got, want)
		}
		if got, want := idx[1][l], instanceIDs[l]/divisor; got != want {
			t.Errorf("attr1 lane %d: got %d, want %d", l, got, want)
		}
		if got, want := idx[2][l], vertexIDs[l]; got != want {
			t.Errorf("attr2 lane %d: got %d, want vertex %d", l, got, want)
		}
	}
}

func TestVSPrologUnpacksIDs(t *testing.T) {
	m := ir.NewModule("test")
	key := VSPrologKey{
		NumInputs:            1,
		NumInputSGPRs:        4,
		NumInputVGPRs:        2,
		UnpackInstanceID:     true,
		InstanceDivisorIsOne: 1 << 0,
	}
	p, err := BuildVSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildVSProlog: %v", err)
	}

	// Instance 7 in the upper half, vertex 3 in the lower.
	packed := uint64(7<<16 | 3)
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize:     2,
		NumWaves:     1,
		VectorInputs: map[int][]uint64{4: {packed, packed}},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := res.Returns[4][0]; got != 3 {
		t.Errorf("vertex ID out = %d, want 3", got)
	}
	if got := res.Returns[5][0]; got != 7 {
		t.Errorf("instance ID out = %d, want 7", got)
	}
	if got := res.Returns[6][0]; got != 7 {
		t.Errorf("attr0 index = %d, want instance 7", got)
	}
}

func TestVSPrologLSVGPRFix(t *testing.T) {
	m := ir.NewModule("test")
	key := VSPrologKey{
		NumInputs:     1,
		NumInputSGPRs: 4,
		NumInputVGPRs: 4,
		LSVGPRFix:     true,
	}
	p, err := BuildVSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildVSProlog: %v", err)
	}

	run := func(waveInfo uint64) *ir.Result {
		res, err := ir.Exec(m, p.Func, ir.ExecConfig{
			WaveSize:     2,
			NumWaves:     1,
			ScalarInputs: map[int]uint64{3: waveInfo},
			VectorInputs: map[int][]uint64{
				4: {1, 1}, // slot 0
				5: {2, 2},
				6: {3, 3},
				7: {4, 4},
			},
		})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		return res
	}

	// Next-stage thread count zero (bits 8..15): registers shift down.
	shifted := run(0)
	if shifted.Returns[4][0] != 3 || shifted.Returns[5][0] != 4 {
		t.Errorf("empty group: got %d,%d, want 3,4",
			shifted.Returns[4][0], shifted.Returns[5][0])
	}

	// Non-empty group: registers stay put.
	plain := run(2 << 8)
	if plain.Returns[4][0] != 1 || plain.Returns[5][0] != 2 {
		t.Errorf("live group: got %d,%d, want 1,2",
			plain.Returns[4][0], plain.Returns[5][0])
	}
}

func TestGSPrologTriStripAdjFix(t *testing.T) {
	m := ir.NewModule("test")
	key := GSPrologKey{TriStripAdjFix: true, NumInputSGPRs: 2, NumInputVGPRs: 7}
	p, err := BuildGSProlog(m, key)
	if err != nil {
		t.Fatalf("BuildGSProlog: %v", err)
	}

	verts := [6][]uint64{
		{10, 10}, {11, 11}, {12, 12}, {13, 13}, {14, 14}, {15, 15},
	}
	inputs := map[int][]uint64{8: {0, 1}} // even primitive, odd primitive
	for i, v := range verts {
		inputs[2+i] = v
	}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize:     2,
		NumWaves:     1,
		VectorInputs: inputs,
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	for i := 0; i < 6; i++ {
		even := res.Returns[2+i][0]
		odd := res.Returns[2+i][1]
		if want := uint64(10 + i); even != want {
			t.Errorf("even prim vert %d: got %d, want %d", i, even, want)
		}
		if want := uint64(10 + (i+4)%6); odd != want {
			t.Errorf("odd prim vert %d: got %d, want %d", i, odd, want)
		}
	}
}

func TestGSPrologPassThrough(t *testing.T) {
	m := ir.NewModule("test")
	p, err := BuildGSProlog(m, GSPrologKey{NumInputSGPRs: 2, NumInputVGPRs: 7})
	if err != nil {
		t.Fatalf("BuildGSProlog: %v", err)
	}
	inputs := map[int][]uint64{}
	for i := 0; i < 7; i++ {
		inputs[2+i] = []uint64{uint64(20 + i)}
	}
	res, err := ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize:     1,
		NumWaves:     1,
		ScalarInputs: map[int]uint64{0: 7, 1: 8},
		VectorInputs: inputs,
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Returns[0][0] != 7 || res.Returns[1][0] != 8 {
		t.Error("scalar inputs not forwarded")
	}
	for i := 0; i < 7; i++ {
		if got, want := res.Returns[2+i][0], uint64(20+i); got != want {
			t.Errorf("vgpr %d: got %d, want %d", i, got, want)
		}
	}
}

func TestTCSEpilogRingWrites(t *testing.T) {
	m := ir.NewModule("test")
	key := TCSEpilogKey{
		PrimMode:                PrimTriangles,
		InvocZeroDefinesFactors: true,
		NumInputSGPRs:           2,
	}
	p, err := BuildTCSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildTCSEpilog: %v", err)
	}

	ring := make([]uint32, 16)
	f := func(v float32) uint64 { return uint64(f32Bits(v)) }
	_, err = ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize:     4,
		NumWaves:     1,
		ScalarInputs: map[int]uint64{1: 0}, // ring base 0
		VectorInputs: map[int][]uint64{
			2: {0, 0, 1, 1}, // rel patch id
			3: {0, 1, 0, 1}, // invocation id
			4: {f(1), f(1), f(5), f(5)},
			5: {f(2), f(2), f(6), f(6)},
			6: {f(3), f(3), f(7), f(7)},
			7: {f(4), f(4), f(8), f(8)},
		},
		Descriptors: map[uint32]*ir.Descriptor{
			SlotTessFactorRing: ir.NewBufferDescriptor(ring),
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if ring[0] != 0x80000000 {
		t.Errorf("ring header = %#x, want 0x80000000", ring[0])
	}
	// Triangles write 3 outer + 1 inner factor, 16 bytes per patch,
	// starting after the header word.
	wantPatch0 := []float32{1, 2, 3, 4}
	wantPatch1 := []float32{5, 6, 7, 8}
	for i := 0; i < 4; i++ {
		if got := ring[1+i]; got != f32Bits(wantPatch0[i]) {
			t.Errorf("patch 0 factor %d = %#x, want %g", i, got, wantPatch0[i])
		}
		if got := ring[5+i]; got != f32Bits(wantPatch1[i]) {
			t.Errorf("patch 1 factor %d = %#x, want %g", i, got, wantPatch1[i])
		}
	}
}

func TestTCSEpilogIsolineSwap(t *testing.T) {
	m := ir.NewModule("test")
	key := TCSEpilogKey{
		PrimMode:                PrimIsolines,
		InvocZeroDefinesFactors: true,
		NumInputSGPRs:           2,
	}
	p, err := BuildTCSEpilog(m, key)
	if err != nil {
		t.Fatalf("BuildTCSEpilog: %v", err)
	}

	ring := make([]uint32, 8)
	f := func(v float32) uint64 { return uint64(f32Bits(v)) }
	_, err = ir.Exec(m, p.Func, ir.ExecConfig{
		WaveSize: 1,
		NumWaves: 1,
		VectorInputs: map[int][]uint64{
			2: {0},    // rel patch id
			3: {0},    // invocation id
			4: {f(9)}, // outer[0]
			5: {f(4)}, // outer[1]
			6: {0}, 7: {0}, 8: {0}, 9: {0},
		},
		Descriptors: map[uint32]*ir.Descriptor{
			SlotTessFactorRing: ir.NewBufferDescriptor(ring),
		},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	// Isolines store the outer factors reversed.
	if ring[1] != f32Bits(4) || ring[2] != f32Bits(9) {
		t.Errorf("isoline factors = %#x,%#x, want swapped 4,9", ring[1], ring[2])
	}
}
