package worker

import (
	"image"
	"io"
	"log"
	"sync"

	"region-snip/src/screenshot"
)

// ResultCallback is invoked when a save job finishes (from a worker
// goroutine). The event loop passes a closure that posts the outcome back
// into the loop instead of touching state here.
type ResultCallback func(name string, err error)

// Pool is a small save-worker pool with a 1-slot input queue, so a capture
// whose write is still in flight rejects the next one instead of queueing up.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
}

type job struct {
	img  *image.RGBA
	dst  io.WriteCloser
	name string
	cb   ResultCallback
}

// New creates a worker pool. Size defaults to 1 when size<=0; encoding PNGs
// is the only work here and captures arrive one at a time.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				err := encodeTo(j.img, j.dst)
				if err != nil {
					log.Printf("worker: save %q failed: %v", j.name, err)
				} else {
					log.Printf("worker: saved %q", j.name)
				}
				j.cb(j.name, err)
			}
		}()
	}
}

// Submit enqueues a save job if the single-slot queue is free.
// Returns false if dropped.
func (p *Pool) Submit(img *image.RGBA, dst io.WriteCloser, name string, cb ResultCallback) bool {
	select {
	case p.jobs <- job{img: img, dst: dst, name: name, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

func encodeTo(img *image.RGBA, dst io.WriteCloser) error {
	data, err := screenshot.EncodePNG(img)
	if err != nil {
		_ = dst.Close()
		return err
	}
	if _, err := dst.Write(data); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
