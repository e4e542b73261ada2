// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ir

import (
	"fmt"
	"math"
)

// Builder constructs one function. All emission goes through the builder so
// that region membership and operand visibility can be checked as the IR is
// produced rather than in a separate validation pass.
type Builder struct {
	m  *Module
	f  *Func
	fh FuncHandle

	// Stack of open conditional regions. Index 0 is the entry region.
	regions []int32
}

// NewFunc creates a function with the given parameter and result lists and
// returns a builder positioned at its entry.
func NewFunc(m *Module, name string, params []Param, results []RetType) (*Builder, FuncHandle) {
	f := &Func{
		Name:         name,
		Params:       append([]Param(nil), params...),
		Results:      append([]RetType(nil), results...),
		regionParent: []int32{-1},
	}
	h := m.add(f)
	b := &Builder{m: m, f: f, fh: h, regions: []int32{0}}
	for i, p := range params {
		b.emit(Instr{Op: OpParam, Type: p.Type, Class: p.Class, Imm: uint64(i)})
	}
	return b, h
}

// Func returns the function under construction.
func (b *Builder) Func() *Func { return b.f }

// Handle returns the function's handle in the module.
func (b *Builder) Handle() FuncHandle { return b.fh }

func (b *Builder) emit(in Instr) Value {
	in.Region = b.regions[len(b.regions)-1]
	b.f.Instrs = append(b.f.Instrs, in)
	return Value(len(b.f.Instrs) - 1)
}

// use checks that v is visible from the current region: it must have been
// defined in the current region or one of its ancestors. A failure here is a
// programming error in a part compiler, not a bad shader key, so it panics.
func (b *Builder) use(v Value) Value {
	if int(v) >= len(b.f.Instrs) {
		panic(fmt.Sprintf("ir: use of unknown value v%d in %s", v, b.f.Name))
	}
	def := b.f.Instrs[v].Region
	for r := b.regions[len(b.regions)-1]; r != -1; r = b.f.regionParent[r] {
		if r == def {
			return v
		}
	}
	panic(fmt.Sprintf("ir: v%d escapes its defining region in %s", v, b.f.Name))
}

func (b *Builder) typeOf(v Value) Type   { return b.f.Instrs[v].Type }
func (b *Builder) classOf(v Value) Class { return b.f.Instrs[v].Class }

// joinClass is Vector if any operand is per-invocation.
func (b *Builder) joinClass(args ...Value) Class {
	for _, a := range args {
		if b.classOf(a) == Vector {
			return Vector
		}
	}
	return Scalar
}

// Constants.

// ConstI32 returns an i32 constant (scalar class).
func (b *Builder) ConstI32(v uint32) Value {
	return b.emit(Instr{Op: OpConst, Type: TI32, Class: Scalar, Imm: uint64(v)})
}

// ConstF32 returns an f32 constant.
func (b *Builder) ConstF32(v float32) Value {
	return b.emit(Instr{Op: OpConst, Type: TF32, Class: Scalar, Imm: uint64(math.Float32bits(v))})
}

// ConstBool returns a predicate constant.
func (b *Builder) ConstBool(v bool) Value {
	var bits uint64
	if v {
		bits = 1
	}
	return b.emit(Instr{Op: OpConst, Type: TBool, Class: Scalar, Imm: bits})
}

// Undef returns an undefined value of the given type and class.
func (b *Builder) Undef(t Type, c Class) Value {
	return b.emit(Instr{Op: OpUndef, Type: t, Class: c})
}

func (b *Builder) binop(op Op, t Type, x, y Value) Value {
	b.use(x)
	b.use(y)
	return b.emit(Instr{Op: op, Type: t, Class: b.joinClass(x, y), Args: []Value{x, y}})
}

// Integer ops.

func (b *Builder) IAdd(x, y Value) Value   { return b.binop(OpIAdd, TI32, x, y) }
func (b *Builder) ISub(x, y Value) Value   { return b.binop(OpISub, TI32, x, y) }
func (b *Builder) IMul(x, y Value) Value   { return b.binop(OpIMul, TI32, x, y) }
func (b *Builder) UMulHi(x, y Value) Value { return b.binop(OpUMulHi, TI32, x, y) }
func (b *Builder) UDiv(x, y Value) Value   { return b.binop(OpUDiv, TI32, x, y) }
func (b *Builder) UMin(x, y Value) Value   { return b.binop(OpUMin, TI32, x, y) }
func (b *Builder) And(x, y Value) Value    { return b.binop(OpAnd, TI32, x, y) }
func (b *Builder) Or(x, y Value) Value     { return b.binop(OpOr, TI32, x, y) }
func (b *Builder) Shl(x, y Value) Value    { return b.binop(OpShl, TI32, x, y) }
func (b *Builder) LShr(x, y Value) Value   { return b.binop(OpLShr, TI32, x, y) }

// PopCount counts the set bits of an i32.
func (b *Builder) PopCount(x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpPopCount, Type: TI32, Class: b.classOf(x), Args: []Value{x}})
}

// UnpackBits extracts bits [offset, offset+count) of an i32, the way packed
// hardware input words are consumed.
func (b *Builder) UnpackBits(x Value, offset, count uint32) Value {
	shifted := x
	if offset > 0 {
		shifted = b.LShr(x, b.ConstI32(offset))
	}
	if count >= 32 {
		return shifted
	}
	return b.And(shifted, b.ConstI32((1<<count)-1))
}

// Float ops.

func (b *Builder) FAdd(x, y Value) Value { return b.binop(OpFAdd, TF32, x, y) }
func (b *Builder) FMul(x, y Value) Value { return b.binop(OpFMul, TF32, x, y) }

// FClamp clamps to [0, 1].
func (b *Builder) FClamp(x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpFClamp, Type: TF32, Class: b.classOf(x), Args: []Value{x}})
}

// UIToFP converts an unsigned i32 to f32.
func (b *Builder) UIToFP(x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpUIToFP, Type: TF32, Class: b.classOf(x), Args: []Value{x}})
}

// F32ToF16 converts to half precision, result in the low 16 bits.
func (b *Builder) F32ToF16(x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpF32ToF16, Type: TI32, Class: b.classOf(x), Args: []Value{x}})
}

// PackHalf packs two floats into 2x16-bit float form.
func (b *Builder) PackHalf(x, y Value) Value { return b.binop(OpPackHalf, TI32, x, y) }

// PackSnorm16 packs two floats into 2x16-bit signed-normalized form.
func (b *Builder) PackSnorm16(x, y Value) Value { return b.binop(OpPackSnorm16, TI32, x, y) }

// PackUnorm16 packs two floats into 2x16-bit unsigned-normalized form.
func (b *Builder) PackUnorm16(x, y Value) Value { return b.binop(OpPackUnorm16, TI32, x, y) }

// Comparisons and selection.

// ICmp compares two integers under the given predicate.
func (b *Builder) ICmp(pred uint32, x, y Value) Value {
	b.use(x)
	b.use(y)
	return b.emit(Instr{Op: OpICmp, Type: TBool, Class: b.joinClass(x, y), Sub: pred, Args: []Value{x, y}})
}

// FCmp compares two floats under the given (ordered) predicate.
func (b *Builder) FCmp(pred uint32, x, y Value) Value {
	b.use(x)
	b.use(y)
	return b.emit(Instr{Op: OpFCmp, Type: TBool, Class: b.joinClass(x, y), Sub: pred, Args: []Value{x, y}})
}

// Select returns x where cond is true, else y.
func (b *Builder) Select(cond, x, y Value) Value {
	b.use(cond)
	b.use(x)
	b.use(y)
	return b.emit(Instr{
		Op: OpSelect, Type: b.typeOf(x), Class: b.joinClass(cond, x, y),
		Args: []Value{cond, x, y},
	})
}

// Conversions.

// Bitcast reinterprets a one-dword value as t (i32 <-> f32).
func (b *Builder) Bitcast(t Type, x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpBitcast, Type: t, Class: b.classOf(x), Args: []Value{x}})
}

// AsI32 reinterprets x as i32 if it is not one already.
func (b *Builder) AsI32(x Value) Value {
	if b.typeOf(x) == TI32 {
		return x
	}
	return b.Bitcast(TI32, x)
}

// AsF32 reinterprets x as f32 if it is not one already.
func (b *Builder) AsF32(x Value) Value {
	if b.typeOf(x) == TF32 {
		return x
	}
	return b.Bitcast(TF32, x)
}

// ZExt widens a predicate to i32.
func (b *Builder) ZExt(x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpZExt, Type: TI32, Class: b.classOf(x), Args: []Value{x}})
}

// TruncBit narrows an i32 to a predicate (low bit).
func (b *Builder) TruncBit(x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpTruncBit, Type: TBool, Class: b.classOf(x), Args: []Value{x}})
}

// PtrToInt converts a pointer to an integer of the same dword size.
func (b *Builder) PtrToInt(x Value) Value {
	b.use(x)
	t := TI64
	if b.typeOf(x).Kind == KindPtr32 {
		t = TI32
	}
	return b.emit(Instr{Op: OpPtrToInt, Type: t, Class: b.classOf(x), Args: []Value{x}})
}

// IntToPtr converts an integer to a pointer of type t.
func (b *Builder) IntToPtr(t Type, x Value) Value {
	b.use(x)
	return b.emit(Instr{Op: OpIntToPtr, Type: t, Class: b.classOf(x), Args: []Value{x}})
}

// Compose gathers one-dword values into a multi-dword value of type t.
func (b *Builder) Compose(t Type, dwords ...Value) Value {
	if len(dwords) != t.DwordSize() {
		panic(fmt.Sprintf("ir: compose of %d dwords into %d-dword type", len(dwords), t.DwordSize()))
	}
	args := make([]Value, len(dwords))
	for i, v := range dwords {
		args[i] = b.use(v)
	}
	return b.emit(Instr{Op: OpCompose, Type: t, Class: b.joinClass(dwords...), Args: args})
}

// Extract pulls dword i out of a multi-dword value.
func (b *Builder) Extract(x Value, i int) Value {
	b.use(x)
	return b.emit(Instr{
		Op: OpExtract, Type: Type{Kind: b.typeOf(x).Kind, Lanes: 1}, Class: b.classOf(x),
		Imm: uint64(i), Args: []Value{x},
	})
}

// Control flow.

// IfBegin opens a conditional region executed by lanes where cond is true.
func (b *Builder) IfBegin(cond Value) {
	b.use(cond)
	id := int32(len(b.f.regionParent))
	b.f.regionParent = append(b.f.regionParent, b.regions[len(b.regions)-1])
	b.emit(Instr{Op: OpIfBegin, Args: []Value{cond}, Sub: uint32(id)})
	b.regions = append(b.regions, id)
}

// EndIf closes the innermost conditional region.
func (b *Builder) EndIf() {
	if len(b.regions) == 1 {
		panic("ir: EndIf without matching IfBegin in " + b.f.Name)
	}
	b.regions = b.regions[:len(b.regions)-1]
	b.emit(Instr{Op: OpEndIf})
}

// Barrier suspends the wave until all waves in the workgroup arrive. It must
// be reached by every invocation, so it is rejected inside a conditional
// region.
func (b *Builder) Barrier() {
	if len(b.regions) != 1 {
		panic("ir: barrier inside a conditional region in " + b.f.Name)
	}
	b.emit(Instr{Op: OpBarrier})
}

// Cross-lane.

// WaveReduce reduces src across the wave; every active lane receives the
// result (scalar class).
func (b *Builder) WaveReduce(op CombineOp, src Value) Value {
	b.use(src)
	return b.emit(Instr{Op: OpWaveReduce, Type: b.typeOf(src), Class: Scalar, Sub: uint32(op), Args: []Value{src}})
}

// WaveExclScan computes the per-lane exclusive prefix within the wave.
func (b *Builder) WaveExclScan(op CombineOp, src Value) Value {
	b.use(src)
	return b.emit(Instr{Op: OpWaveExclScan, Type: b.typeOf(src), Class: Vector, Sub: uint32(op), Args: []Value{src}})
}

// WaveInclScan computes the per-lane inclusive prefix within the wave.
func (b *Builder) WaveInclScan(op CombineOp, src Value) Value {
	b.use(src)
	return b.emit(Instr{Op: OpWaveInclScan, Type: b.typeOf(src), Class: Vector, Sub: uint32(op), Args: []Value{src}})
}

// MBCnt returns the invocation's index within its wave.
func (b *Builder) MBCnt() Value {
	return b.emit(Instr{Op: OpMBCnt, Type: TI32, Class: Vector})
}

// ReadLane broadcasts the value of src at the given lane (scalar result).
func (b *Builder) ReadLane(src, lane Value) Value {
	b.use(src)
	b.use(lane)
	return b.emit(Instr{Op: OpReadLane, Type: b.typeOf(src), Class: Scalar, Args: []Value{src, lane}})
}

// ReadFirstLane broadcasts the first active lane's value.
func (b *Builder) ReadFirstLane(src Value) Value {
	b.use(src)
	return b.emit(Instr{Op: OpReadFirstLane, Type: b.typeOf(src), Class: Scalar, Args: []Value{src}})
}

// WriteLane returns dst with the given lane replaced by value.
func (b *Builder) WriteLane(dst, value, lane Value) Value {
	b.use(dst)
	b.use(value)
	b.use(lane)
	return b.emit(Instr{Op: OpWriteLane, Type: b.typeOf(dst), Class: Vector, Args: []Value{dst, value, lane}})
}

// Memory.

// AllocLDS reserves a workgroup-local scratch array and returns its index.
func (b *Builder) AllocLDS(name string, dwords uint32) int {
	b.f.LDS = append(b.f.LDS, LDSVar{Name: name, Dwords: dwords})
	return len(b.f.LDS) - 1
}

// LDSLoad reads one dword of local memory.
func (b *Builder) LDSLoad(lds int, offset Value) Value {
	b.use(offset)
	return b.emit(Instr{Op: OpLDSLoad, Type: TI32, Class: Vector, Imm: uint64(lds), Args: []Value{offset}})
}

// LDSStore writes one dword of local memory.
func (b *Builder) LDSStore(lds int, offset, value Value) {
	b.use(offset)
	b.use(value)
	b.emit(Instr{Op: OpLDSStore, Imm: uint64(lds), Args: []Value{offset, value}})
}

// LoadDesc loads a buffer descriptor from a descriptor table into scalar
// registers.
func (b *Builder) LoadDesc(table, slot Value) Value {
	b.use(table)
	b.use(slot)
	return b.emit(Instr{Op: OpLoadDesc, Type: TV4I32, Class: Scalar, Args: []Value{table, slot}})
}

// BufferLoad reads one dword through a buffer descriptor.
func (b *Builder) BufferLoad(desc, byteOffset Value) Value {
	b.use(desc)
	b.use(byteOffset)
	return b.emit(Instr{Op: OpBufferLoad, Type: TI32, Class: b.classOf(byteOffset), Args: []Value{desc, byteOffset}})
}

// BufferStore writes one dword through a buffer descriptor.
func (b *Builder) BufferStore(desc, byteOffset, value Value) {
	b.use(desc)
	b.use(byteOffset)
	b.use(value)
	b.emit(Instr{Op: OpBufferStore, Args: []Value{desc, byteOffset, value}})
}

// GDSOrderedAdd atomically advances a device-global counter in wave order and
// returns the pre-add value.
func (b *Builder) GDSOrderedAdd(addr, value Value) Value {
	b.use(addr)
	b.use(value)
	return b.emit(Instr{Op: OpGDSOrderedAdd, Type: TI32, Class: Vector, Args: []Value{addr, value}})
}

// GDSAtomicSub atomically subtracts from a device-global counter.
func (b *Builder) GDSAtomicSub(addr, value Value) {
	b.use(addr)
	b.use(value)
	b.emit(Instr{Op: OpGDSAtomicSub, Args: []Value{addr, value}})
}

// Outputs.

// Export emits one export instruction. Unused channels should be Undef.
func (b *Builder) Export(target, flags, channelMask uint32, v0, v1, v2, v3 Value) {
	args := []Value{b.use(v0), b.use(v1), b.use(v2), b.use(v3)}
	b.emit(Instr{Op: OpExport, Sub: target | flags, Imm: uint64(channelMask), Args: args})
}

// SendMsg emits a hardware message with a payload word.
func (b *Builder) SendMsg(msg uint32, payload Value) {
	b.use(payload)
	b.emit(Instr{Op: OpSendMsg, Sub: msg, Args: []Value{payload}})
}

// Kill discards all lanes where cond is false.
func (b *Builder) Kill(cond Value) {
	b.use(cond)
	b.emit(Instr{Op: OpKill, Args: []Value{cond}})
}

// Calls and returns.

// Call invokes another function of the module; the result is a tuple indexed
// with TupleExtract.
func (b *Builder) Call(callee FuncHandle, args ...Value) Value {
	fn := b.m.Func(callee)
	if len(args) != len(fn.Params) {
		panic(fmt.Sprintf("ir: call of %s with %d args, want %d", fn.Name, len(args), len(fn.Params)))
	}
	used := make([]Value, len(args))
	for i, a := range args {
		used[i] = b.use(a)
	}
	return b.emit(Instr{Op: OpCall, Imm: uint64(callee), Args: used})
}

// TupleExtract pulls element i out of a call result.
func (b *Builder) TupleExtract(call Value, i int) Value {
	b.use(call)
	if b.f.Instrs[call].Op != OpCall {
		panic("ir: TupleExtract of a non-call value")
	}
	callee := b.m.Func(FuncHandle(b.f.Instrs[call].Imm))
	rt := callee.Results[i]
	return b.emit(Instr{Op: OpTupleExtract, Type: rt.Type, Class: rt.Class, Imm: uint64(i), Args: []Value{call}})
}

// NumResults returns the callee result count of a call value.
func (b *Builder) NumResults(call Value) int {
	return len(b.m.Func(FuncHandle(b.f.Instrs[call].Imm)).Results)
}

// Ret terminates the function, returning the given tuple elements (none for a
// void function). The result count and classes must match the declaration.
func (b *Builder) Ret(values ...Value) {
	if len(b.regions) != 1 {
		panic("ir: return inside a conditional region in " + b.f.Name)
	}
	if len(values) != len(b.f.Results) {
		panic(fmt.Sprintf("ir: %s returns %d values, declared %d", b.f.Name, len(values), len(b.f.Results)))
	}
	used := make([]Value, len(values))
	for i, v := range values {
		used[i] = b.use(v)
	}
	b.emit(Instr{Op: OpRet, Args: used})
}
