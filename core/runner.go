package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"pkt.systems/pslog"
	"pkt.systems/sshdesk/internal/logx"
	"pkt.systems/sshdesk/schema"
)

// TaskFunc performs one background operation.
type TaskFunc func(ctx context.Context) (schema.TaskResult, error)

// Future delivers exactly one result for a submitted task.
type Future struct {
	id   schema.TaskID
	kind schema.TaskKind
	done chan schema.TaskResult
}

// ID returns the task id.
func (f *Future) ID() schema.TaskID { return f.id }

// Kind returns the task kind.
func (f *Future) Kind() schema.TaskKind { return f.kind }

// Done yields the result once and is then closed.
func (f *Future) Done() <-chan schema.TaskResult { return f.done }

// Wait blocks until the task completes or ctx ends. Canceling ctx does not
// cancel the task.
func (f *Future) Wait(ctx context.Context) (schema.TaskResult, error) {
	select {
	case res, ok := <-f.done:
		if !ok {
			return schema.TaskResult{}, fmt.Errorf("task %s result already consumed", f.id)
		}
		return res, nil
	case <-ctx.Done():
		return schema.TaskResult{}, ctx.Err()
	}
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Mode schema.TaskMode
	// MaxConcurrent bounds concurrent mode. Zero means unbounded.
	MaxConcurrent int
	// OnComplete observes every result just before it is delivered to its future.
	OnComplete func(schema.TaskResult)
	Logger     pslog.Logger
}

type job struct {
	ctx    context.Context
	fn     TaskFunc
	future *Future
}

// Runner executes tasks off the caller's goroutine. In ordered mode a single
// worker runs tasks in submission order; in concurrent mode every task gets
// its own goroutine and completes in finish order.
type Runner struct {
	opts RunnerOptions
	sem  *semaphore.Weighted

	mu      sync.Mutex
	pending []*job
	closed  bool
	wake    chan struct{}
	wg      sync.WaitGroup
}

// NewRunner starts a runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Mode == "" {
		opts.Mode = schema.TaskModeOrdered
	}
	r := &Runner{opts: opts, wake: make(chan struct{}, 1)}
	if opts.Mode == schema.TaskModeConcurrent && opts.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	if opts.Mode == schema.TaskModeOrdered {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Submit schedules fn and returns immediately.
func (r *Runner) Submit(ctx context.Context, kind schema.TaskKind, fn TaskFunc) *Future {
	future := &Future{id: newTaskID(), kind: kind, done: make(chan schema.TaskResult, 1)}
	ctx = logx.ContextWithTask(context.WithoutCancel(ctx), future.id)
	j := &job{ctx: ctx, fn: fn, future: future}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.finish(j, schema.TaskResult{}, schema.ErrRunnerClosed)
		return future
	}
	if r.opts.Mode == schema.TaskModeConcurrent {
		r.wg.Add(1)
		r.mu.Unlock()
		go r.runConcurrent(j)
		return future
	}
	r.pending = append(r.pending, j)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return future
}

// Close stops accepting tasks and waits for queued and running ones.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.wg.Wait()
		return
	}
	r.closed = true
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return
			}
			<-r.wake
			continue
		}
		j := r.pending[0]
		r.pending[0] = nil
		r.pending = r.pending[1:]
		r.mu.Unlock()
		r.execute(j)
	}
}

func (r *Runner) runConcurrent(j *job) {
	defer r.wg.Done()
	if r.sem != nil {
		if err := r.sem.Acquire(context.Background(), 1); err != nil {
			r.finish(j, schema.TaskResult{}, err)
			return
		}
		defer r.sem.Release(1)
	}
	r.execute(j)
}

func (r *Runner) execute(j *job) {
	res, err := r.invoke(j)
	r.finish(j, res, err)
}

func (r *Runner) invoke(j *job) (res schema.TaskResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = schema.TaskResult{}
			err = fmt.Errorf("%w: %v", schema.ErrTaskPanicked, rec)
		}
	}()
	return j.fn(j.ctx)
}

// finish applies the failure sentinel, notifies the hook and delivers the result.
func (r *Runner) finish(j *job, res schema.TaskResult, err error) {
	res.ID = j.future.id
	res.Kind = j.future.kind
	if err != nil {
		res = schema.TaskResult{ID: res.ID, Kind: res.Kind, Transcript: res.Transcript, Err: err}
	}
	if r.opts.Logger != nil {
		log := logx.WithTask(r.opts.Logger, res.ID, res.Kind)
		if err != nil {
			log.Warn("task failed", "err", err)
		} else {
			log.Debug("task complete", "ok", res.OK)
		}
	}
	if r.opts.OnComplete != nil {
		r.opts.OnComplete(res)
	}
	j.future.done <- res
	close(j.future.done)
}
