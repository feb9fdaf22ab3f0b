package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownTask is returned by RunNow for names that were never added.
var ErrUnknownTask = errors.New("scheduler: unknown task")

// TaskFn is a periodic job. The context is cancelled when the scheduler
// stops or the task is removed.
type TaskFn func(ctx context.Context) error

// TaskInfo reports the state of one periodic task.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run"`
	LastTook  time.Duration `json:"last_took"`
	LastError string        `json:"last_error,omitempty"`
}

type task struct {
	name     string
	interval time.Duration
	fn       TaskFn
	cancel   context.CancelFunc
	runMu    sync.Mutex // serialises ticker runs with RunNow

	mu   sync.Mutex
	info TaskInfo
}

// Scheduler runs named periodic maintenance tasks on their own goroutines.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		stop:   cancel,
		logger: logger,
	}
}

// Every registers fn to run on a fixed interval. A task with the same name
// is replaced.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{
		name:     name,
		interval: interval,
		fn:       fn,
		cancel:   cancel,
		info:     TaskInfo{Name: name, Interval: interval},
	}
	s.tasks[name] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, t)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

func (s *Scheduler) run(ctx context.Context, t *task) (err error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("scheduler task panicked", zap.String("task", t.name), zap.Any("recover", r))
		}
		t.mu.Lock()
		t.info.Runs++
		t.info.LastRun = start
		t.info.LastTook = time.Since(start)
		t.info.LastError = ""
		if err != nil {
			t.info.Failures++
			t.info.LastError = err.Error()
		}
		t.mu.Unlock()
		if err != nil {
			s.logger.Warn("scheduler task failed", zap.String("task", t.name), zap.Error(err))
		}
	}()
	return t.fn(ctx)
}

// RunNow runs the named task synchronously on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(ctx, t)
}

// Remove stops and forgets a task.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.cancel()
		delete(s.tasks, name)
	}
}

// Tasks lists the registered tasks by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, t.info)
		t.mu.Unlock()
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop cancels every task and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.stop()
	s.wg.Wait()
}
