// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package ir defines the ahead-of-time IR that shader parts are built from.
//
// The IR is deliberately low level: values carry a register class (scalar or
// vector) in addition to a type, control flow is expressed as structured
// conditional regions opened and closed by the builder, and cross-lane
// operations (wave reduction, prefix scans, lane broadcasts) are first-class
// instructions. This is the contract between the part compilers and the
// code-generation backend: the parts describe what must happen per wave and
// per workgroup, and the backend is free to schedule it.
//
// Values are handles into a per-function arena, in the same style as the
// expression arenas of structured shading-language IRs. Every value records
// the conditional region it was defined in; the builder rejects any use of a
// value outside its defining region, which turns the classic "value escapes
// its control-flow region" bug into a loud failure at IR construction time
// instead of silent miscompilation.
//
// The package also provides an Executor that runs a function over a modeled
// workgroup in lockstep. Tests use it to check observational behavior (scan
// results, streamout counters, export traces) without a hardware target.
package ir
