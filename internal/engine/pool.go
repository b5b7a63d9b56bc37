package engine

import "sync"

// Pool is a mutex-guarded free list of reusable stage objects.
// The lock is held only while pushing or popping.
type Pool[T any] struct {
	mu        sync.Mutex
	free      []*T
	newFn     func() *T
	allocated int
}

// NewPool returns a pool that allocates with newFn when the free list is empty.
func NewPool[T any](newFn func() *T) *Pool[T] {
	return &Pool[T]{newFn: newFn}
}

// Acquire pops an idle object or allocates a new one.
func (p *Pool[T]) Acquire() *Handle[T] {
	p.mu.Lock()
	var v *T
	if n := len(p.free); n > 0 {
		v = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		p.allocated++
	}
	p.mu.Unlock()
	if v == nil {
		v = p.newFn()
	}
	return &Handle[T]{pool: p, v: v}
}

func (p *Pool[T]) put(v *T) {
	p.mu.Lock()
	p.free = append(p.free, v)
	p.mu.Unlock()
}

// Idle returns the number of objects waiting in the free list.
func (p *Pool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Allocated returns how many objects the pool has created.
func (p *Pool[T]) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Handle grants exclusive use of one pooled object until Release.
// A handle is not safe for use by more than one goroutine.
type Handle[T any] struct {
	pool *Pool[T]
	v    *T
}

// Get returns the held object, or nil after Release.
func (h *Handle[T]) Get() *T {
	return h.v
}

// Release returns the object to its pool. Calling it again is a no-op.
func (h *Handle[T]) Release() {
	if h.v == nil {
		return
	}
	v := h.v
	h.v = nil
	h.pool.put(v)
}
