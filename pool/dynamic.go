package pool

import "sync"

type dynamic struct {
	size int
	p    sync.Pool
}

// NewDynamic returns an unbounded pool backed by sync.Pool. Get never blocks.
func NewDynamic(size int) Pool {
	d := &dynamic{size: size}
	d.p.New = func() interface{} {
		b := make([]byte, size)
		return &b
	}
	return d
}

func (d *dynamic) Get(_ <-chan struct{}) ([]byte, bool) {
	return *(d.p.Get().(*[]byte)), true
}

func (d *dynamic) Put(buf []byte) {
	if cap(buf) < d.size {
		return
	}
	buf = buf[:d.size]
	d.p.Put(&buf)
}
