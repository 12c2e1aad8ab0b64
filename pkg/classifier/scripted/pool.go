package scripted

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// vmPool holds a fixed set of sandboxed VMs for concurrent evaluation.
// Every predict sets its own globals, so VMs rotate without a reset step.
type vmPool struct {
	vms  chan *goja.Runtime
	size int

	mu     sync.Mutex
	closed bool
}

func newVMPool(size int, build func() (*goja.Runtime, error)) (*vmPool, error) {
	p := &vmPool{vms: make(chan *goja.Runtime, size), size: size}
	for i := 0; i < size; i++ {
		vm, err := build()
		if err != nil {
			p.close()
			return nil, fmt.Errorf("creating VM %d: %w", i, err)
		}
		p.vms <- vm
	}
	return p, nil
}

// acquire takes a VM, waiting until one is free or the context ends.
func (p *vmPool) acquire(ctx context.Context) (*goja.Runtime, error) {
	select {
	case vm, ok := <-p.vms:
		if !ok {
			return nil, fmt.Errorf("pool is closed")
		}
		return vm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a VM to the pool. VMs released after close are dropped.
func (p *vmPool) release(vm *goja.Runtime) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.vms <- vm:
	default:
	}
}

func (p *vmPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.vms)
	for range p.vms {
	}
}
