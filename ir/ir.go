// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package ir

// Class is the register class of a value or function parameter.
type Class uint8

const (
	// Scalar values are uniform across a wave (SGPR analogue).
	Scalar Class = iota

	// Vector values are per-invocation (VGPR analogue).
	Vector
)

func (c Class) String() string {
	if c == Scalar {
		return "sgpr"
	}
	return "vgpr"
}

// AddrSpace identifies a memory address space.
type AddrSpace uint8

const (
	// SpaceConst is 64-bit-addressed read-only memory (descriptor tables).
	SpaceConst AddrSpace = iota

	// SpaceConst32 is read-only memory addressed with a 32-bit pointer.
	SpaceConst32

	// SpaceLDS is workgroup-local shared memory.
	SpaceLDS

	// SpaceGDS is device-global ordered-append memory (streamout counters).
	SpaceGDS
)

// Kind is the basic type kind of a value.
type Kind uint8

const (
	KindI32 Kind = iota
	KindF32
	KindI64
	KindBool // predicate; never a function parameter
	KindPtr  // 64-bit pointer
	KindPtr32
)

// Type describes the type of a value. Lanes > 1 makes a short vector of the
// scalar kind (descriptors are <4 x i32>).
type Type struct {
	Kind  Kind
	Lanes uint8
	Space AddrSpace // pointers only
}

// Common types.
var (
	TI32   = Type{Kind: KindI32, Lanes: 1}
	TF32   = Type{Kind: KindF32, Lanes: 1}
	TI64   = Type{Kind: KindI64, Lanes: 1}
	TBool  = Type{Kind: KindBool, Lanes: 1}
	TV2I32 = Type{Kind: KindI32, Lanes: 2}
	TV4I32 = Type{Kind: KindI32, Lanes: 4}
)

// TPtr returns a 64-bit pointer type in the given space.
func TPtr(space AddrSpace) Type { return Type{Kind: KindPtr, Lanes: 1, Space: space} }

// TPtr32 returns a 32-bit pointer type (SpaceConst32).
func TPtr32() Type { return Type{Kind: KindPtr32, Lanes: 1, Space: SpaceConst32} }

// TVec returns an n-lane vector of kind k.
func TVec(k Kind, n uint8) Type { return Type{Kind: k, Lanes: n} }

// DwordSize returns how many 32-bit register slots a value of this type
// occupies when passed across a part boundary.
func (t Type) DwordSize() int {
	base := 1
	switch t.Kind {
	case KindI64, KindPtr:
		base = 2
	}
	n := int(t.Lanes)
	if n == 0 {
		n = 1
	}
	return base * n
}

// Scalar returns the one-lane version of t.
func (t Type) Scalar() Type { t.Lanes = 1; return t }

// Op enumerates IR instructions.
type Op uint16

const (
	OpInvalid Op = iota
	OpParam      // Imm = parameter index
	OpConst      // Imm = bit pattern
	OpUndef

	// Integer arithmetic and bit manipulation.
	OpIAdd
	OpISub
	OpIMul
	OpUMulHi // high 32 bits of 32x32 unsigned multiply
	OpUDiv
	OpUMin
	OpAnd
	OpOr
	OpShl
	OpLShr
	OpPopCount

	// Float arithmetic (only what the PS epilog emulation needs).
	OpFAdd
	OpFMul
	OpFClamp // clamp to [0, 1]
	OpUIToFP
	OpF32ToF16    // low 16 bits of result
	OpPackHalf    // two f32 -> packed 2x16 float
	OpPackSnorm16 // two f32 -> packed 2x16 snorm
	OpPackUnorm16 // two f32 -> packed 2x16 unorm

	// Comparisons and selection. Sub holds the predicate.
	OpICmp
	OpFCmp
	OpSelect

	// Conversions and reinterpretation.
	OpBitcast  // i32 <-> f32 reinterpret
	OpZExt     // bool -> i32
	OpTruncBit // i32 -> bool (low bit)
	OpPtrToInt
	OpIntToPtr

	// Vector slot plumbing for part boundaries.
	OpCompose // gather scalar dwords into a multi-dword value
	OpExtract // Imm = dword index

	// Structured control flow.
	OpIfBegin // Args[0] = condition; opens a region
	OpEndIf
	OpBarrier // whole-workgroup barrier

	// Cross-lane primitives. Sub = CombineOp where applicable.
	OpWaveReduce
	OpWaveExclScan
	OpWaveInclScan
	OpMBCnt         // invocation index within the wave
	OpReadLane      // Args = (src, lane)
	OpReadFirstLane // Args = (src)
	OpWriteLane     // Args = (dst, value, lane)

	// Memory.
	OpLDSLoad       // Imm = LDS var index; Args[0] = dword offset
	OpLDSStore      // Imm = LDS var index; Args = (dword offset, value)
	OpLoadDesc      // Args = (table pointer, slot); result <4 x i32> scalar
	OpBufferLoad    // Args = (desc, byte offset); result i32
	OpBufferStore   // Args = (desc, byte offset, value)
	OpGDSOrderedAdd // Args = (dword address, value); returns pre-add value
	OpGDSAtomicSub  // Args = (dword address, value)

	// Outputs.
	OpExport  // Sub = ExportTarget | flags; Imm = channel mask; Args = 4 values
	OpSendMsg // Sub = message; Args[0] = payload
	OpKill    // Args[0] = condition; discards lanes where false

	// Calls and returns.
	OpCall         // Imm = FuncHandle; result is a tuple
	OpTupleExtract // Args[0] = call; Imm = element index
	OpRet          // Args = result values (empty for void)
)

// Predicates for OpICmp / OpFCmp (Sub field).
const (
	CmpEQ uint32 = iota
	CmpNE
	CmpULT
	CmpULE
	CmpUGT
	CmpUGE
	CmpOLT // float, ordered
	CmpOLE
	CmpOGT
	CmpOGE
	CmpOEQ
	CmpONE
)

// CombineOp is the associative operator of cross-lane and workgroup scans.
// Integer addition is the only operator current call sites use, but the scan
// machinery does not assume it.
type CombineOp uint8

const (
	CombineIAdd CombineOp = iota
	CombineUMin
	CombineUMax
)

// Identity returns the operator's identity element.
func (op CombineOp) Identity() uint64 {
	switch op {
	case CombineUMin:
		return 0xffffffff
	default:
		return 0
	}
}

// Apply combines two elements.
func (op CombineOp) Apply(a, b uint64) uint64 {
	switch op {
	case CombineUMin:
		if a < b {
			return a
		}
		return b
	case CombineUMax:
		if a > b {
			return a
		}
		return b
	default:
		return (a + b) & 0xffffffff
	}
}

// Export targets (low byte of Sub in OpExport).
const (
	ExpMRT0 uint32 = iota // MRT0..MRT7 are consecutive
	ExpMRT1
	ExpMRT2
	ExpMRT3
	ExpMRT4
	ExpMRT5
	ExpMRT6
	ExpMRT7
	ExpMRTZ
	ExpNull
	ExpPos
	ExpPrim
	ExpParam0 // Param0..Param31 are consecutive
)

// Export flags (high bits of Sub in OpExport).
const (
	ExpDone       uint32 = 1 << 8
	ExpValidMask  uint32 = 1 << 9
	ExpCompressed uint32 = 1 << 10
)

// Messages for OpSendMsg.
const (
	MsgGSAllocReq uint32 = iota + 1
)

// Value is a handle to an instruction result within one function.
type Value uint32

// None marks "no value".
const None Value = ^Value(0)

// Instr is one IR instruction. Class and Type describe the result (if any);
// Region is the conditional region the result is defined in.
type Instr struct {
	Op     Op
	Type   Type
	Class  Class
	Sub    uint32
	Imm    uint64
	Args   []Value
	Region int32
}

// ParamAttr carries backend hints for a function parameter.
type ParamAttr uint8

const (
	// AttrInReg asks for the parameter in a scalar register, not memory.
	AttrInReg ParamAttr = 1 << iota

	// AttrNoAlias marks a descriptor-table pointer that nothing else aliases.
	AttrNoAlias

	// AttrDereferenceable marks a pointer the backend may load from early.
	AttrDereferenceable
)

// Param is a function parameter.
type Param struct {
	Class Class
	Type  Type
	Attrs ParamAttr
}

// RetType describes one element of a function's result tuple.
type RetType struct {
	Class Class
	Type  Type
}

// LDSVar is a workgroup-local scratch allocation.
type LDSVar struct {
	Name   string
	Dwords uint32
}

// FuncHandle references a function within a Module.
type FuncHandle uint32

// Func is a callable function.
type Func struct {
	Name    string
	Params  []Param
	Results []RetType
	Instrs  []Instr
	LDS     []LDSVar

	// regionParent maps region id -> parent region id (entry region is 0,
	// parent -1). Maintained by the Builder.
	regionParent []int32
}

// ParamValue returns the Value of parameter i. Parameter instructions are
// always the first len(Params) instructions of a function.
func (f *Func) ParamValue(i int) Value { return Value(i) }

// LDSBytes returns the function's local-memory footprint in bytes.
func (f *Func) LDSBytes() uint32 {
	var dw uint32
	for _, v := range f.LDS {
		dw += v.Dwords
	}
	return dw * 4
}

// Module is an arena of functions compiled together.
type Module struct {
	Name  string
	Funcs []*Func
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Func returns the function behind a handle.
func (m *Module) Func(h FuncHandle) *Func { return m.Funcs[h] }

// add appends fn and returns its handle.
func (m *Module) add(fn *Func) FuncHandle {
	m.Funcs = append(m.Funcs, fn)
	return FuncHandle(len(m.Funcs) - 1)
}
