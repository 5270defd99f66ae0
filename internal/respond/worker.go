package respond

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
)

// Worker runs post-process tasks on a background goroutine after responses
// have been flushed.
type Worker struct {
	tasks  chan Task
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewWorker starts a worker with the given queue capacity.
func NewWorker(capacity int) *Worker {
	if capacity <= 0 {
		capacity = 1
	}
	w := &Worker{tasks: make(chan Task, capacity)}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) run() {
	defer w.wg.Done()
	for task := range w.tasks {
		w.execute(task)
	}
}

func (w *Worker) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("post-process task panic: %v\n%s", r, debug.Stack())
		}
	}()
	task(context.Background())
}

// Submit enqueues a task. A full queue blocks the submitter, never the
// client: Submit is called only after the response has been flushed.
func (w *Worker) Submit(task Task) {
	if task == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		log.Println("post-process worker closed, dropping task")
		return
	}
	w.tasks <- task
	w.mu.Unlock()
}

// Shutdown stops accepting tasks and waits for the queue to drain.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.tasks)
	w.mu.Unlock()
	w.wg.Wait()
}
