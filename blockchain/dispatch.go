package blockchain

import (
	"runtime"
	"sync"
)

// Dispatcher is the dedicated validation worker pool.  Script jobs fan out
// across its workers and join before a phase returns.  When priority is
// requested the workers are pinned to OS threads so the host can grant the
// process elevated scheduling for them.
type Dispatcher struct {
	workers  int
	priority bool

	jobs chan func()
	quit chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher returns a pool with the given number of workers; a
// non-positive count falls back to the number of CPUs.
func NewDispatcher(workers int, priority bool) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Dispatcher{
		workers:  workers,
		priority: priority,
		jobs:     make(chan func()),
		quit:     make(chan struct{}),
	}
}

// Workers returns the configured worker count.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	if d.priority {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for {
		select {
		case job := <-d.jobs:
			job()
		case <-d.quit:
			return
		}
	}
}

// Execute submits a job to the pool.  It returns false when the pool has
// been stopped.
func (d *Dispatcher) Execute(job func()) bool {
	select {
	case d.jobs <- job:
		return true
	case <-d.quit:
		return false
	}
}

// Stop drains the pool.  It must only be called once no phase is in flight;
// the organizer releases its writer lock before stopping the pool.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
}
