// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package variant selects compiled shader variants for draw calls and
// schedules background compilation of optimized ones.
package variant

import "sync"

// Fence is a one-shot readiness signal. Signal may be called any number of
// times; waiters unblock after the first.
type Fence struct {
	once sync.Once
	ch   chan struct{}
}

// NewFence returns an unsignaled fence.
func NewFence() *Fence {
	return &Fence{ch: make(chan struct{})}
}

// Signal marks the fence. Safe to call repeatedly and from any goroutine.
func (f *Fence) Signal() {
	f.once.Do(func() { close(f.ch) })
}

// Wait blocks until the fence is signaled.
func (f *Fence) Wait() {
	<-f.ch
}

// Done reports whether the fence has been signaled, without blocking.
func (f *Fence) Done() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}
