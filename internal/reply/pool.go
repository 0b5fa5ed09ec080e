// Package reply runs outbound deliveries on a bounded worker pool so the
// dispatch loop never waits on the network.
package reply

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stencilbot/stencilbot/internal/events"
	"github.com/stencilbot/stencilbot/internal/log"
)

const taskBuffer = 256

// Task is one fire-and-forget delivery. The function owns its retry policy;
// an error returned here means delivery is exhausted and the task is dropped.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool is a fixed set of delivery workers. Submitted tasks are executed in
// no particular order relative to each other; outcomes are logged, never
// surfaced to the submitter.
type Pool struct {
	tasks  chan Task
	hub    *events.Hub
	logger *slog.Logger

	startOnce sync.Once
	wg        sync.WaitGroup
	workers   int
}

// NewPool creates a Pool with the given number of workers.
func NewPool(workers int, hub *events.Hub) *Pool {
	if workers <= 0 {
		workers = 5
	}
	return &Pool{
		tasks:   make(chan Task, taskBuffer),
		hub:     hub,
		logger:  log.WithComponent("reply"),
		workers: workers,
	}
}

// Start launches the workers. They drain the task queue until ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
	})
}

// Submit queues a delivery without blocking the caller. If the queue is full
// the task is dropped and logged; delivery is best-effort by contract.
func (p *Pool) Submit(name string, run func(ctx context.Context) error) {
	select {
	case p.tasks <- Task{Name: name, Run: run}:
	default:
		p.logger.Warn("delivery queue full, dropping task", "task", name)
		p.publishDropped(name, "queue full")
	}
}

// Wait blocks until all workers have stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.execute(ctx, task)
		}
	}
}

func (p *Pool) execute(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("delivery task panicked", "task", task.Name, "panic", r)
			p.publishDropped(task.Name, "panic")
		}
	}()

	if err := task.Run(ctx); err != nil {
		p.logger.Warn("delivery failed, dropping", "task", task.Name, "error", err)
		p.publishDropped(task.Name, err.Error())
		return
	}
	p.logger.Debug("delivery completed", "task", task.Name)
}

func (p *Pool) publishDropped(name, reason string) {
	if p.hub == nil {
		return
	}
	p.hub.Publish(events.TypeReplyDropped, map[string]any{
		"task":   name,
		"reason": reason,
	})
}
