// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package parts compiles the prolog and epilog fragments of hardware shaders
// and stitches them, together with a separately compiled main part, into one
// callable program. Every fragment is selected by a fixed-size comparable
// key; equal keys always share one compiled artifact.
package parts

// Stage identifies a logical shader stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageTessCtrl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageTessCtrl:
		return "tess-ctrl"
	case StageTessEval:
		return "tess-eval"
	case StageGeometry:
		return "geometry"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Kind identifies which part a PartKey selects.
type Kind uint8

const (
	KindVSProlog Kind = iota
	KindTCSEpilog
	KindGSProlog
	KindPSProlog
	KindPSEpilog

	NumKinds
)

// String returns a human-readable part kind name.
func (k Kind) String() string {
	switch k {
	case KindVSProlog:
		return "vs-prolog"
	case KindTCSEpilog:
		return "tcs-epilog"
	case KindGSProlog:
		return "gs-prolog"
	case KindPSProlog:
		return "ps-prolog"
	case KindPSEpilog:
		return "ps-epilog"
	default:
		return "unknown"
	}
}

// PrimMode is the tessellation output topology a TCS epilog writes factors for.
type PrimMode uint8

const (
	PrimTriangles PrimMode = iota
	PrimQuads
	PrimIsolines
)

// CompareFunc is the alpha-test comparison, matching the API enum order.
type CompareFunc uint8

const (
	FuncNever CompareFunc = iota
	FuncLess
	FuncEqual
	FuncLEqual
	FuncGreater
	FuncNotEqual
	FuncGEqual
	FuncAlways
)

// Color export formats programmed per render target, 4 bits each.
const (
	ColFormatZero uint32 = iota
	ColFormat32R
	ColFormat32GR
	ColFormat32AR
	ColFormatFP16ABGR
	ColFormatUnorm16ABGR
	ColFormatSnorm16ABGR
	ColFormatUint16ABGR
	ColFormatSint16ABGR
	ColFormat32ABGR
)

// VSPrologKey selects one vertex-shader prolog. NumInputSGPRs and
// NumInputVGPRs fix the raw register layout the prolog forwards; the
// remaining bits select the index arithmetic per vertex attribute.
type VSPrologKey struct {
	// Per-attribute bit i set: attribute i is instanced with divisor 1.
	InstanceDivisorIsOne uint32

	// Per-attribute bit i set: attribute i is instanced and its division
	// factors are fetched from the internal divisor buffer at draw time.
	InstanceDivisorIsFetched uint32

	NumInputs     uint8
	NumInputSGPRs uint8
	NumInputVGPRs uint8

	// UnpackInstanceID: vertex and instance IDs arrive packed 16/16 in one
	// register and must be split before any divisor arithmetic.
	UnpackInstanceID bool

	// LSVGPRFix works around merged LS-HS dispatch loading LS registers at
	// the HS positions when the group has no HS threads.
	LSVGPRFix bool

	AsLS  bool
	AsNGG bool
}

// TCSEpilogKey selects one tessellation-control epilog.
type TCSEpilogKey struct {
	PrimMode PrimMode

	// InvocZeroDefinesFactors: the factors of invocation 0 are statically
	// known to be in registers, so the epilog skips the shared-memory read.
	InvocZeroDefinesFactors bool

	NumInputSGPRs uint8
}

// GSPrologKey selects one geometry-shader prolog.
type GSPrologKey struct {
	// TriStripAdjFix rotates the six vertex indices of odd primitives of a
	// triangle-strip-with-adjacency input.
	TriStripAdjFix bool

	NumInputSGPRs uint8
	NumInputVGPRs uint8
}

// PSPrologKey selects one pixel-shader prolog.
type PSPrologKey struct {
	ColorTwoSide    bool
	FlatshadeColors bool

	// ColorsRead: bit c set means interpolated color c is consumed and the
	// two-sided selection must produce an attribute index for it.
	ColorsRead uint8

	ForcePerspSampleInterp  bool
	ForceLinearSampleInterp bool
	ForcePerspCenterInterp  bool
	ForceLinearCenterInterp bool
	BCOptimizeForPersp      bool
	BCOptimizeForLinear     bool

	PolyStipple bool

	// SamplemaskLogPSIter is log2 of the per-sample shading rate; it narrows
	// the coverage register to the samples owned by this invocation.
	SamplemaskLogPSIter uint8

	WQM bool

	NumInputSGPRs uint8
	NumInputVGPRs uint8
}

// PSEpilogKey selects one pixel-shader epilog.
type PSEpilogKey struct {
	// SPIShaderColFormat holds one 4-bit ColFormat per render target.
	SPIShaderColFormat uint32

	ColorIsInt8  uint8
	ColorIsInt10 uint8

	// ColorsWritten: bit c set means the main part produced color c.
	ColorsWritten uint8

	// LastCbuf > 0 broadcasts color 0 to render targets 0..LastCbuf.
	LastCbuf uint8

	WritesZ          bool
	WritesStencil    bool
	WritesSampleMask bool

	AlphaFunc         CompareFunc
	AlphaToOne        bool
	ClampColor        bool
	PolyLineSmoothing bool

	NumInputSGPRs uint8
	NumInputVGPRs uint8
}

// MonoBits are decisions baked into a monolithic main part instead of a
// separate prolog or epilog.
type MonoBits struct {
	// VSFetchOpencode: attributes whose format conversion the hardware
	// fetcher cannot do, forcing open-coded fetch in the main part.
	VSFetchOpencode uint16

	// FFTCSInputsToCopy: fixed-function passthrough mask for tess-control
	// inputs copied straight to outputs.
	FFTCSInputsToCopy uint32
}

// OptBits change code quality, never correctness. Variants differing only
// here may share an unoptimized fallback while the optimized one compiles in
// the background.
type OptBits struct {
	// KillOutputs: outputs proven dead by the consuming stage.
	KillOutputs uint64

	KillClipDistances uint8
	KillPointSize     bool
}

// PartUnion carries the stage-specific part sub-keys. Only the fields of the
// variant's stage are ever non-zero.
type PartUnion struct {
	VSProlog  VSPrologKey
	TCSEpilog TCSEpilogKey
	GSProlog  GSPrologKey
	PSProlog  PSPrologKey
	PSEpilog  PSEpilogKey
}

// ShaderKey selects one compiled shader variant. It is a plain comparable
// value; Go equality is the byte-wise comparison of the source driver. All
// fields must be explicitly populated from pipeline state, never left to
// chance, so equal pipeline state always produces equal keys.
type ShaderKey struct {
	Part PartUnion

	// Hardware role of the variant.
	AsES  bool
	AsLS  bool
	AsNGG bool

	Mono MonoBits
	Opt  OptBits
}

// HasOpt reports whether any optimization bit is set.
func (k *ShaderKey) HasOpt() bool { return k.Opt != (OptBits{}) }

// ClearOpt drops the optimization bits, yielding the unoptimized fallback
// key that may be served while the optimized variant compiles.
func (k *ShaderKey) ClearOpt() { k.Opt = OptBits{} }

// MainIndex packs the {as_ls, as_es, as_ngg} role bits into a table index.
// Variants that agree on these bits can share one main part, since the role
// changes the entry and exit ABI but not the program logic.
func (k *ShaderKey) MainIndex() int {
	i := 0
	if k.AsLS {
		i |= 1
	}
	if k.AsES {
		i |= 2
	}
	if k.AsNGG {
		i |= 4
	}
	return i
}

// NumMainVariants is the size of a selector's main-part table.
const NumMainVariants = 8
