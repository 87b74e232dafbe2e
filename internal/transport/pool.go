package transport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/crestkit/crestctl/internal/ports"
)

// Factory builds a transport for the given options. The default factory
// produces SSH transports; tests substitute fakes.
type Factory func(Options) (ports.Transport, error)

// Pool de-duplicates live transports by identity (user@host:port): the same
// device reached with the same credentials within one process shares one
// link. The pool is explicitly constructed and passed to its users; its
// lifetime ends with ReleaseAll.
type Pool struct {
	mu         sync.Mutex
	transports map[string]ports.Transport
	factory    Factory
}

// NewPool creates a pool producing SSH transports.
func NewPool() *Pool {
	return NewPoolWithFactory(func(opts Options) (ports.Transport, error) {
		return NewSSH(opts)
	})
}

// NewPoolWithFactory creates a pool with a custom transport factory.
func NewPoolWithFactory(factory Factory) *Pool {
	return &Pool{
		transports: make(map[string]ports.Transport),
		factory:    factory,
	}
}

// Get returns the pooled transport for the options' identity, creating one
// if absent. The transport is returned unconnected on first creation; the
// caller drives Connect.
func (p *Pool) Get(opts Options) (ports.Transport, error) {
	key := opts.Identity()

	p.mu.Lock()
	defer p.mu.Unlock()

	if tr, ok := p.transports[key]; ok {
		slog.Debug("reusing pooled transport", slog.String("identity", key))
		return tr, nil
	}

	tr, err := p.factory(opts)
	if err != nil {
		return nil, fmt.Errorf("create transport %s: %w", key, err)
	}
	p.transports[key] = tr

	slog.Debug("created pooled transport", slog.String("identity", key))
	return tr, nil
}

// Release closes and removes the transport for one identity.
func (p *Pool) Release(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tr, ok := p.transports[identity]; ok {
		tr.Close()
		delete(p.transports, identity)
	}
}

// ReleaseAll closes every pooled transport.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, tr := range p.transports {
		tr.Close()
		delete(p.transports, key)
	}
}

// Len returns the number of pooled transports.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transports)
}
