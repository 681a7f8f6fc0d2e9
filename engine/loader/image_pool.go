package loader

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

const (
	// imagePoolQueueSize bounds the number of decodes waiting for a worker. Submission blocks
	// once it is full.
	imagePoolQueueSize = 256

	imagePoolIdleTimeout = 1 * time.Second
)

// imageJob is one queued decode. Exactly one of the worker or Close claims it.
type imageJob struct {
	claimed atomic.Bool
	run     func()
	abandon func(error)
}

func (j *imageJob) claim() bool {
	return j.claimed.CompareAndSwap(false, true)
}

// imagePool runs image decodes on a bounded set of reusable workers. It is owned by a Loader
// and shut down by Close; there is no process-wide state.
type imagePool struct {
	// mu serializes submit against close.
	mu     sync.Mutex
	pool   worker.DynamicWorkerPool
	closed bool
	nextID int

	// pending holds jobs submitted but not yet claimed, so close can fail them. Workers only
	// take pendingMu, never mu.
	pendingMu sync.Mutex
	pending   map[int]*imageJob
	wg        sync.WaitGroup
}

// newImagePool creates a pool with the given number of workers.
//
// Parameters:
//   - workers: maximum concurrent decodes (clamped to [1, imagePoolQueueSize])
//
// Returns:
//   - *imagePool: the running pool
func newImagePool(workers int) *imagePool {
	workers = min(max(workers, 1), imagePoolQueueSize)
	return &imagePool{
		pool:    worker.NewDynamicWorkerPool(workers, imagePoolQueueSize, imagePoolIdleTimeout),
		pending: make(map[int]*imageJob),
	}
}

// submit queues run. If the pool is closed, or closes before run starts, abandon is called with
// ErrPoolClosed instead. Exactly one of run and abandon is called.
//
// Parameters:
//   - run: the decode work
//   - abandon: called instead of run when the pool will not run it
func (p *imagePool) submit(run func(), abandon func(error)) {
	job := &imageJob{run: run, abandon: abandon}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		abandon(ErrPoolClosed)
		return
	}
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.pendingMu.Lock()
	p.pending[id] = job
	p.pendingMu.Unlock()
	p.wg.Add(1)

	// mu stays held across SubmitTask so close cannot stop the pool under a blocked submit
	p.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			p.pendingMu.Lock()
			delete(p.pending, id)
			p.pendingMu.Unlock()

			if !job.claim() {
				return nil, ErrPoolClosed
			}
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					job.abandon(fmt.Errorf("image decode panicked: %v", r))
				}
			}()
			job.run()
			return nil, nil
		},
	})
}

// wait blocks until every submitted job has run or been abandoned.
func (p *imagePool) wait() {
	p.wg.Wait()
}

// close stops the workers. Jobs still queued are abandoned with ErrPoolClosed; jobs already
// running finish normally. Safe to call more than once.
//
// Workers only exit on a stop message carrying their own id, which the pool's Stop does not
// guarantee, so each worker is handed one task that ends its goroutine. Nothing else is queued
// once closed is set and the queue has a slot per worker, so close never blocks.
func (p *imagePool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pool.ClearTaskQueue()

	p.pendingMu.Lock()
	pending := p.pending
	p.pending = make(map[int]*imageJob)
	p.pendingMu.Unlock()

	for _, job := range pending {
		if job.claim() {
			job.abandon(ErrPoolClosed)
			p.wg.Done()
		}
	}

	for i := range p.pool.GetMaxWorkers() {
		p.pool.SubmitTask(worker.Task{
			ID: -1 - i,
			Do: func() (any, error) {
				runtime.Goexit()
				return nil, nil
			},
		})
	}
}
