// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"testing"

	"github.com/gogpu/gcn/abi"
	"github.com/gogpu/gcn/ir"
)

func TestUdivRoundTrip(t *testing.T) {
	// Every divisor a fetched instance divisor can hold, against reference
	// integer division, over numerands spanning the instance-count range.
	for d := uint32(1); d < 1<<16; d++ {
		info := ComputeUdivInfo(d)
		nums := [...]uint32{0, 1, 2, d - 1, d, d + 1, 2*d + 1, 12345, 1<<20 - 1}
		for _, n := range nums {
			if n >= 1<<20 {
				n = 1<<20 - 1
			}
			if got, want := info.Divide(n), n/d; got != want {
				t.Fatalf("d=%d n=%d: got %d, want %d (info %+v)", d, n, got, want, info)
			}
		}
	}
}

func TestUdivEdgeDivisors(t *testing.T) {
	cases := []uint32{1, 2, 4, 1 << 15, 3, 5, 7, 641, 65535}
	for _, d := range cases {
		info := ComputeUdivInfo(d)
		for n := uint32(0); n < 4096; n++ {
			if got, want := info.Divide(n), n/d; got != want {
				t.Fatalf("d=%d n=%d: got %d, want %d", d, n, got, want)
			}
		}
	}
}

func TestUdivZeroDivisorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("divisor 0 did not panic")
		}
	}()
	ComputeUdivInfo(0)
}

func TestEmitFastUdivMatchesReference(t *testing.T) {
	m := ir.NewModule("test")

	var num, mult, pre, post, inc ir.Value
	var list abi.List
	list.Begin()
	list.AddBound(ir.Scalar, ir.TI32, &mult)
	list.AddBound(ir.Scalar, ir.TI32, &pre)
	list.AddBound(ir.Scalar, ir.TI32, &post)
	list.AddBound(ir.Scalar, ir.TI32, &inc)
	list.AddBound(ir.Vector, ir.TI32, &num)
	b, fh := list.Finalize(m, "udiv", []ir.RetType{{Class: ir.Vector, Type: ir.TI32}})
	b.Ret(EmitFastUdiv(b, num, mult, pre, post, inc))

	for _, d := range []uint32{1, 3, 6, 100, 1024, 65535} {
		info := ComputeUdivInfo(d)
		nums := []uint64{0, 1, uint64(d), uint64(2*d + 1), 1<<20 - 1}
		res, err := ir.Exec(m, fh, ir.ExecConfig{
			WaveSize: len(nums),
			NumWaves: 1,
			ScalarInputs: map[int]uint64{
				0: uint64(info.Multiplier),
				1: uint64(info.PreShift),
				2: uint64(info.PostShift),
				3: uint64(info.Increment),
			},
			VectorInputs: map[int][]uint64{4: nums},
		})
		if err != nil {
			t.Fatalf("d=%d: Exec: %v", d, err)
		}
		for l, n := range nums {
			want := uint64(uint32(n) / d)
			if res.Returns[0][l] != want {
				t.Errorf("d=%d n=%d: got %d, want %d", d, n, res.Returns[0][l], want)
			}
		}
	}
}

func TestUdivPack(t *testing.T) {
	info := UdivInfo{Multiplier: 7, PreShift: 1, PostShift: 2, Increment: 1}
	want := [4]uint32{7, 1, 2, 1}
	if got := info.Pack(); got != want {
		t.Errorf("Pack() = %v, want %v", got, want)
	}
}
