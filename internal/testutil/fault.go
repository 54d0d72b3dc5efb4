package testutil

import (
	"context"
	"sync"

	"github.com/roach88/ajstore/internal/store"
)

// Op names a Backend operation that can be faulted or held.
type Op string

const (
	OpWrite  Op = "write"
	OpAppend Op = "append"
	OpRename Op = "rename"
	OpRemove Op = "remove"
)

// FaultBackend wraps a Backend and injects failures or pauses into selected
// operations. Operations without a configured fault pass straight through.
type FaultBackend struct {
	store.Backend

	mu     sync.Mutex
	calls  map[Op]int
	faults map[Op]fault
	gates  map[Op]*Gate
}

type fault struct {
	nth int
	err error
}

// NewFaultBackend wraps inner.
func NewFaultBackend(inner store.Backend) *FaultBackend {
	return &FaultBackend{
		Backend: inner,
		calls:   make(map[Op]int),
		faults:  make(map[Op]fault),
		gates:   make(map[Op]*Gate),
	}
}

// FailOn makes the nth call (1-based, counted from now) of op return err.
func (f *FaultBackend) FailOn(op Op, nth int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = fault{nth: f.calls[op] + nth, err: err}
}

// Clear removes every configured fault.
func (f *FaultBackend) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[Op]fault)
}

// Calls returns how many times op has been invoked.
func (f *FaultBackend) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Hold pauses every call of op until the returned gate is released.
func (f *FaultBackend) Hold(op Op) *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.gates[op] = g
	return g
}

func (f *FaultBackend) before(ctx context.Context, op Op) error {
	f.mu.Lock()
	f.calls[op]++
	n := f.calls[op]
	flt, hasFault := f.faults[op]
	g := f.gates[op]
	f.mu.Unlock()

	if g != nil {
		g.enter()
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if hasFault && flt.nth == n {
		return flt.err
	}
	return nil
}

func (f *FaultBackend) Write(ctx context.Context, path string, data []byte) error {
	if err := f.before(ctx, OpWrite); err != nil {
		return err
	}
	return f.Backend.Write(ctx, path, data)
}

func (f *FaultBackend) Append(ctx context.Context, path string, data []byte) error {
	if err := f.before(ctx, OpAppend); err != nil {
		return err
	}
	return f.Backend.Append(ctx, path, data)
}

func (f *FaultBackend) Rename(ctx context.Context, from, to string) error {
	if err := f.before(ctx, OpRename); err != nil {
		return err
	}
	return f.Backend.Rename(ctx, from, to)
}

func (f *FaultBackend) Remove(ctx context.Context, path string) error {
	if err := f.before(ctx, OpRemove); err != nil {
		return err
	}
	return f.Backend.Remove(ctx, path)
}

// Gate pauses a held operation.
type Gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	closed  sync.Once
}

func (g *Gate) enter() {
	g.once.Do(func() { close(g.entered) })
}

// Entered is closed once the first held call is waiting.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets every waiting and future call proceed.
func (g *Gate) Release() {
	g.closed.Do(func() { close(g.release) })
}
