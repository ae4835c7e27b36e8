package jsvm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// PoolConfig holds configuration for the VM pool.
type PoolConfig struct {
	// MaxSize is the maximum number of live VM instances.
	MaxSize int
	// IdleTimeout is the duration after which an idle VM is discarded on reuse.
	IdleTimeout time.Duration
	// AcquireTimeout is the maximum time to wait for a VM.
	AcquireTimeout time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:        4,
		IdleTimeout:    5 * time.Minute,
		AcquireTimeout: 5 * time.Second,
	}
}

type vmInstance struct {
	vm         *goja.Runtime
	lastUsedAt time.Time
}

// VMPool bounds the number of goja runtimes alive at once.
type VMPool struct {
	cfg     PoolConfig
	slots   chan struct{}
	created atomic.Int64

	mu     sync.Mutex
	idle   []*vmInstance
	closed bool
}

// NewVMPool creates a pool.
func NewVMPool(cfg PoolConfig) *VMPool {
	def := DefaultPoolConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	return &VMPool{cfg: cfg, slots: make(chan struct{}, cfg.MaxSize)}
}

// Acquire takes a VM, reusing an idle one when it has not expired.
func (p *VMPool) Acquire(ctx context.Context) (*goja.Runtime, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrPoolExhausted
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		<-p.slots
		return nil, ErrClosed
	}
	for len(p.idle) > 0 {
		inst := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if time.Since(inst.lastUsedAt) <= p.cfg.IdleTimeout {
			return inst.vm, nil
		}
	}
	p.created.Add(1)
	return goja.New(), nil
}

// Release returns vm to the pool. Globals injected for a run are removed.
func (p *VMPool) Release(vm *goja.Runtime) {
	if vm == nil {
		return
	}
	_ = vm.GlobalObject().Delete("console")
	vm.ClearInterrupt()

	p.mu.Lock()
	if !p.closed {
		p.idle = append(p.idle, &vmInstance{vm: vm, lastUsedAt: time.Now()})
	}
	p.mu.Unlock()
	<-p.slots
}

// Close drops idle VMs and rejects further acquisitions.
func (p *VMPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.idle = nil
	p.mu.Unlock()
}

// PoolStats contains pool statistics.
type PoolStats struct {
	MaxSize int
	Created int
	Active  int
	Idle    int
}

// Stats returns current pool statistics.
func (p *VMPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		MaxSize: p.cfg.MaxSize,
		Created: int(p.created.Load()),
		Active:  len(p.slots),
		Idle:    len(p.idle),
	}
}
