package tracer

import "sync"

// workerPool runs writer deliveries on a fixed number of goroutines.
// Submissions never block: a full queue rejects the task.
type workerPool struct {
	tasks  chan func()
	stop   chan struct{}
	mutex  sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newWorkerPool(workers, queueSize int) *workerPool {

	w := &workerPool{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w
}

func (w *workerPool) run() {

	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (w *workerPool) submit(task func()) bool {

	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if w.closed {
		return false
	}
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

// shutdown runs every queued task and waits for the workers.
func (w *workerPool) shutdown() {

	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return
	}
	w.closed = true
	w.mutex.Unlock()

	close(w.stop)
	w.wg.Wait()
}
