// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package variant

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/gcn/ir"
	"github.com/gogpu/gcn/parts"
)

// CompileFunc builds the variant for one key. It runs under the selector's
// mutex for synchronous compiles and on a queue worker for background ones.
type CompileFunc func(key parts.ShaderKey) (*CompiledShader, error)

type variantState uint8

const (
	stateCompiling variantState = iota
	stateReady
	stateFailed
)

// entry is one node of a selector's variant list. Failed entries stay in
// the list so the failure is remembered instead of recompiled every draw.
type entry struct {
	key    parts.ShaderKey
	state  variantState
	shader *CompiledShader
	task   *Task
	next   *entry
}

// mainEntry is one slot of the main-part table.
type mainEntry struct {
	fn    ir.FuncHandle
	bin   *ir.Binary
	err   error
	built bool
}

// SelectOptions tune one selection.
type SelectOptions struct {
	// OptimizedOrNone: fail instead of falling back to the unoptimized
	// variant while the optimized one compiles.
	OptimizedOrNone bool

	// Synchronous forces the optimized variant to compile on the calling
	// goroutine.
	Synchronous bool

	// PreviousStage, for merged two-stage pipelines, is waited on for
	// readiness before this stage compiles against its outputs.
	PreviousStage *Selector
}

// Selector is the stage-level shader object: a list of compiled variants
// keyed by ShaderKey, plus a small table of main parts shared between
// variants that agree on the {as_ls, as_es, as_ngg} role bits. Draw-time
// lookups and background compilation threads touch it concurrently.
type Selector struct {
	stage   parts.Stage
	compile CompileFunc
	queue   *Queue

	// ready signals after the first compile attempt, successful or not;
	// merged-pipeline consumers wait on it.
	ready *Fence

	// current caches the variant served last, for the lock-free fast path.
	current atomic.Pointer[entry]

	mu        sync.Mutex
	variants  *entry
	destroyed bool

	// mains has its own lock because CompileFuncs reach it while a
	// synchronous compile holds mu.
	mainsMu sync.Mutex
	mains   [parts.NumMainVariants]mainEntry
}

// NewSelector creates a selector for one stage. queue may be nil, which
// forces every compile synchronous.
func NewSelector(stage parts.Stage, compile CompileFunc, queue *Queue) *Selector {
	return &Selector{stage: stage, compile: compile, queue: queue, ready: NewFence()}
}

// Stage returns the selector's shader stage.
func (s *Selector) Stage() parts.Stage { return s.stage }

// WaitReady blocks until the selector has finished its first compile.
func (s *Selector) WaitReady() { s.ready.Wait() }

// Select returns the variant for key, compiling it if needed.
//
// A key with optimization bits normally compiles in the background: the call
// queues the optimized compile, strips the bits, and serves the unoptimized
// fallback without stalling. OptimizedOrNone opts out of the fallback and
// fails while the optimized variant is in flight.
func (s *Selector) Select(key parts.ShaderKey, opts SelectOptions) (*CompiledShader, error) {
	// Fast path: the variant served last draw.
	if cur := s.current.Load(); cur != nil && cur.key == key && cur.state == stateReady {
		return cur.shader, nil
	}

	if opts.PreviousStage != nil {
		opts.PreviousStage.WaitReady()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.destroyed {
			return nil, &Error{Kind: ErrSelectorDestroyed, Stage: s.stage, Message: "select after destroy"}
		}

		if v := s.find(key); v != nil {
			switch v.state {
			case stateReady:
				s.current.Store(v)
				return v.shader, nil
			case stateFailed:
				return nil, &Error{Kind: ErrCompileFailed, Stage: s.stage, Message: "variant compilation failed earlier"}
			case stateCompiling:
				// Only optimized variants compile off-thread.
				if opts.OptimizedOrNone {
					return nil, &Error{Kind: ErrOptimizedUnavailable, Stage: s.stage, Message: "optimized variant still compiling"}
				}
				key.ClearOpt()
				continue
			}
		}

		if key.HasOpt() && !opts.Synchronous && s.queue != nil {
			s.insertBackground(key)
			if opts.OptimizedOrNone {
				return nil, &Error{Kind: ErrOptimizedUnavailable, Stage: s.stage, Message: "optimized variant queued"}
			}
			key.ClearOpt()
			continue
		}

		return s.compileLocked(key)
	}
}

// find walks the variant list. Caller holds s.mu.
func (s *Selector) find(key parts.ShaderKey) *entry {
	for v := s.variants; v != nil; v = v.next {
		if v.key == key {
			return v
		}
	}
	return nil
}

// compileLocked compiles a variant on the calling goroutine, under s.mu.
func (s *Selector) compileLocked(key parts.ShaderKey) (*CompiledShader, error) {
	v := &entry{key: key, state: stateCompiling}
	v.next = s.variants
	s.variants = v

	sh, err := s.compile(key)
	defer s.ready.Signal()
	if err != nil {
		v.state = stateFailed
		return nil, &Error{Kind: ErrCompileFailed, Stage: s.stage, Message: "variant compilation failed", Err: err}
	}
	v.shader = sh
	v.state = stateReady
	s.current.Store(v)
	return sh, nil
}

// insertBackground inserts an in-flight entry and queues its compile.
// Caller holds s.mu.
func (s *Selector) insertBackground(key parts.ShaderKey) {
	v := &entry{key: key, state: stateCompiling}
	v.next = s.variants
	s.variants = v

	v.task = s.queue.Submit(func() {
		sh, err := s.compile(key)
		s.mu.Lock()
		if err != nil || sh == nil {
			v.state = stateFailed
		} else {
			v.shader = sh
			v.state = stateReady
		}
		s.mu.Unlock()
	})
}

// MainPart returns the main part shared by every variant with the given
// role index, building it on first miss with the same at-most-once contract
// as the part cache.
func (s *Selector) MainPart(index int, build func() (ir.FuncHandle, *ir.Binary, error)) (ir.FuncHandle, *ir.Binary, error) {
	s.mainsMu.Lock()
	defer s.mainsMu.Unlock()

	e := &s.mains[index]
	if !e.built {
		e.fn, e.bin, e.err = build()
		e.built = true
	}
	return e.fn, e.bin, e.err
}

// WaitIdle waits for every background compile of this selector.
func (s *Selector) WaitIdle() {
	s.mu.Lock()
	var tasks []*Task
	for v := s.variants; v != nil; v = v.next {
		if v.task != nil {
			tasks = append(tasks, v.task)
		}
	}
	s.mu.Unlock()
	for _, t := range tasks {
		t.Wait()
	}
}

// Destroy cancels in-flight compiles best-effort, waits them out, and drops
// the variant list.
func (s *Selector) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	var tasks []*Task
	for v := s.variants; v != nil; v = v.next {
		if v.task != nil {
			v.task.Cancel()
			tasks = append(tasks, v.task)
		}
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Wait()
	}

	s.mu.Lock()
	s.variants = nil
	s.current.Store(nil)
	s.mu.Unlock()
	s.ready.Signal()
}
