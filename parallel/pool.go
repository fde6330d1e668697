// Package parallel provides the persistent worker pool used to project the
// constraints of one color concurrently.
package parallel

import (
	"runtime"
	"sync"
)

// DefaultMinBatchSize is the minimum range length dispatched to workers.
// Below this, single-threaded is faster due to goroutine overhead.
const DefaultMinBatchSize = 64

// workChunk is a range of work items for a worker to process.
type workChunk struct {
	start, end int
	fn         func(start, end int)
}

// Pool is a fixed set of worker goroutines fed with index ranges.
// A nil *Pool is valid and runs everything on the calling goroutine.
type Pool struct {
	numWorkers   int
	minBatchSize int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool

	// For calls are serialized; a color must finish before the next starts.
	mu sync.Mutex
}

// NewPool creates a pool with numWorkers workers (GOMAXPROCS when <= 0).
// Workers are started lazily on the first parallel dispatch.
func NewPool(numWorkers, minBatchSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if minBatchSize <= 0 {
		minBatchSize = DefaultMinBatchSize
	}
	return &Pool{
		numWorkers:   numWorkers,
		minBatchSize: minBatchSize,
	}
}

// NumWorkers returns the number of workers, 1 for a nil pool.
func (p *Pool) NumWorkers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// MinBatchSize returns the sequential threshold.
func (p *Pool) MinBatchSize() int {
	if p == nil {
		return DefaultMinBatchSize
	}
	return p.minBatchSize
}

// startWorkers launches persistent worker goroutines.
func (p *Pool) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Close signals all workers to exit and waits for them.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end)
			p.doneChan <- struct{}{}
		}
	}
}

// For calls fn over [start, end) split into contiguous chunks, one per
// worker, and returns once every chunk is done. Ranges shorter than the
// pool's minimum batch size run inline.
func (p *Pool) For(start, end int, fn func(start, end int)) {
	n := end - start
	if n <= 0 {
		return
	}
	if p == nil || p.numWorkers < 2 || n < p.minBatchSize {
		fn(start, end)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Ensure workers are running
	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	// Dispatch chunks to workers
	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		s := start + w*chunkSize
		e := s + chunkSize
		if e > end {
			e = end
		}
		if s >= e {
			continue
		}

		p.workChan <- workChunk{start: s, end: e, fn: fn}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}
}
