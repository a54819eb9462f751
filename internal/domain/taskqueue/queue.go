package taskqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/tribes-lab/backend/pkg/xcontext"
)

// Task is one best-effort side job. Failure re-enqueues it with its priority
// reduced by one until the attempt ceiling, then it is dropped with a log
// line. Nothing a handler does is ever reported to the code that enqueued.
type Task struct {
	ID       int64
	Type     string
	Data     any
	Priority int
	Attempts int

	seq uint64
}

type Handler func(ctx context.Context, data any) error

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}

	// Equal priority drains in enqueue order.
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

type Queue struct {
	mutex    sync.Mutex
	tasks    taskHeap
	handlers map[string]Handler
	seq      uint64

	maxAttempts int
	tick        time.Duration
	itemDelay   time.Duration
	timeout     time.Duration

	kick chan struct{}
	stop chan struct{}
	wait sync.WaitGroup
	once sync.Once
}

func NewQueue(ctx context.Context) *Queue {
	cfg := xcontext.Configs(ctx).Queue
	return &Queue{
		handlers:    make(map[string]Handler),
		maxAttempts: cfg.MaxAttempts,
		tick:        cfg.Tick,
		itemDelay:   cfg.ItemDelay,
		timeout:     cfg.DefaultTimeout,
		kick:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

func (q *Queue) RegisterHandler(taskType string, handler Handler) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.handlers[taskType] = handler
}

// Enqueue adds a task and wakes the drain loop if it is idle. It never
// blocks and never fails; an unknown task type is discovered (and dropped)
// at drain time.
func (q *Queue) Enqueue(ctx context.Context, taskType string, data any, priority int) int64 {
	task := &Task{
		ID:       xcontext.SnowFlake(ctx).Generate().Int64(),
		Type:     taskType,
		Data:     data,
		Priority: priority,
	}

	q.mutex.Lock()
	task.seq = q.seq
	q.seq++
	heap.Push(&q.tasks, task)
	q.mutex.Unlock()

	select {
	case q.kick <- struct{}{}:
	default:
	}

	return task.ID
}

func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return len(q.tasks)
}

func (q *Queue) Start(ctx context.Context) {
	q.wait.Add(1)
	go q.loop(ctx)
}

func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stop) })
	q.wait.Wait()
}

func (q *Queue) loop(ctx context.Context) {
	defer q.wait.Done()

	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-q.kick:
			q.Drain(ctx)
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

func (q *Queue) pop() *Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}

	return heap.Pop(&q.tasks).(*Task)
}

// Drain executes tasks until the queue is empty, with a short delay between
// items so a long backlog does not starve the rest of the process.
func (q *Queue) Drain(ctx context.Context) {
	for {
		task := q.pop()
		if task == nil {
			return
		}

		q.execute(ctx, task)

		select {
		case <-q.stop:
			return
		case <-time.After(q.itemDelay):
		}
	}
}

func (q *Queue) execute(ctx context.Context, task *Task) {
	q.mutex.Lock()
	handler, ok := q.handlers[task.Type]
	q.mutex.Unlock()

	if !ok {
		xcontext.Logger(ctx).Warnf("No handler registered for task type %s, dropped", task.Type)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, q.timeout)
	err := handler(taskCtx, task.Data)
	cancel()

	if err == nil {
		return
	}

	task.Attempts++
	if task.Attempts >= q.maxAttempts {
		xcontext.Logger(ctx).Warnf(
			"Task %s (%d) dropped after %d attempts: %v", task.Type, task.ID, task.Attempts, err)
		return
	}

	xcontext.Logger(ctx).Debugf("Task %s (%d) failed, will retry: %v", task.Type, task.ID, err)

	task.Priority--
	q.mutex.Lock()
	task.seq = q.seq
	q.seq++
	heap.Push(&q.tasks, task)
	q.mutex.Unlock()
}
