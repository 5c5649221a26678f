package interception

import "sync"

type hooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *hooks) add(fn func()) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *hooks) fire() {
	h.mu.Lock()
	fns := make([]func(), len(h.fns))
	copy(fns, h.fns)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
