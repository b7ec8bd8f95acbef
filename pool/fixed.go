package pool

type fixed struct {
	size      int
	available chan []byte
	// one token per buffer ever allocated; bounds the total at capacity
	all chan struct{}
}

// NewFixed returns a pool that allocates at most capacity buffers of the given size.
// Once all of them are handed out, Get blocks until one is Put back.
func NewFixed(capacity uint, size int) Pool {
	return &fixed{
		size:      size,
		available: make(chan []byte, capacity),
		all:       make(chan struct{}, capacity),
	}
}

func (p *fixed) Get(done <-chan struct{}) ([]byte, bool) {
	select {
	case buf := <-p.available:
		return buf, true
	default:
	}

	select {
	case p.all <- struct{}{}:
		return make([]byte, p.size), true
	default:
	}

	select {
	case buf := <-p.available:
		return buf, true
	case <-done:
		return nil, false
	}
}

func (p *fixed) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	select {
	case p.available <- buf[:p.size]:
	default:
		// more buffers returned than allocated; drop the foreign one
	}
}
