// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package parts

import (
	"sync"

	"github.com/gogpu/gcn/ir"
)

// CompiledPart is one cached prolog or epilog. Once returned from the cache
// it is never mutated, so callers read it without further locking.
type CompiledPart struct {
	Key    any
	Func   ir.FuncHandle
	Binary *ir.Binary
	Usage  ir.RegisterUsage

	next *CompiledPart
}

// Cache associates (part kind, key) with a compiled part, process-wide.
// Each kind keeps a singly-linked list with newest entries at the head;
// variant churn revisits recent keys, so the head is where hits cluster.
type Cache struct {
	mu    sync.Mutex
	heads [NumKinds]*CompiledPart
}

// GetOrCompile returns the cached part for key, compiling and inserting it
// on a miss. The mutex is held across the compile, which serializes misses
// of all kinds but makes the at-most-once guarantee trivial: between the
// lookup and the insert nobody else can race in the same key.
//
// A failed compile returns the error without inserting anything, so a later
// call may retry. Callers treat a failure as "skip this draw".
func (c *Cache) GetOrCompile(kind Kind, key any, build func() (*CompiledPart, error)) (*CompiledPart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for p := c.heads[kind]; p != nil; p = p.next {
		if p.Key == key {
			return p, nil
		}
	}

	p, err := build()
	if err != nil {
		return nil, err
	}
	p.Key = key
	p.next = c.heads[kind]
	c.heads[kind] = p
	return p, nil
}

// Len reports the number of cached parts of one kind.
func (c *Cache) Len(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for p := c.heads[kind]; p != nil; p = p.next {
		n++
	}
	return n
}

// Destroy drops every cached part. The caches live for the life of the
// screen; this runs at screen teardown.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.heads {
		c.heads[i] = nil
	}
}
