// Package jobs runs independent tasks in parallel and lets the caller join
// or cancel everything it started as one unit.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work. It should return promptly once ctx is done.
type Task func(ctx context.Context) error

// Option configures ParallelJobs.
type Option func(*ParallelJobs)

// WithLimit bounds the number of tasks running at once. Add blocks while the
// limit is reached. Zero or negative means unbounded.
func WithLimit(n int) Option {
	return func(j *ParallelJobs) { j.limit = n }
}

// WithSequential runs every task synchronously inside Add. Size, JoinAll and
// CancelAll keep their meaning, which makes runs reproducible when
// debugging.
func WithSequential() Option {
	return func(j *ParallelJobs) { j.sequential = true }
}

// WithContext derives task contexts from ctx instead of the background
// context.
func WithContext(ctx context.Context) Option {
	return func(j *ParallelJobs) { j.parent = ctx }
}

// generation is the set of tasks started since the last JoinAll or
// CancelAll.
type generation struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	tasks  atomic.Int64

	// launch is read-held by Add while starting a task; sealing takes the
	// write lock so no task can join a generation that is being waited on.
	launch sync.RWMutex
	sealed bool

	mu   sync.Mutex
	errs []error
}

func (g *generation) record(err error) {
	if err == nil {
		return
	}
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}

func (g *generation) seal() {
	g.launch.Lock()
	g.sealed = true
	g.launch.Unlock()
}

// ParallelJobs tracks a set of running tasks. It is safe for concurrent use.
type ParallelJobs struct {
	parent     context.Context
	limit      int
	sequential bool

	mu   sync.Mutex
	gen  *generation
	size atomic.Int64
}

// New returns an empty ParallelJobs.
func New(opts ...Option) *ParallelJobs {
	j := &ParallelJobs{parent: context.Background()}
	for _, opt := range opts {
		opt(j)
	}
	j.gen = j.newGeneration()
	return j
}

func (j *ParallelJobs) newGeneration() *generation {
	ctx, cancel := context.WithCancel(j.parent)
	g := &generation{ctx: ctx, cancel: cancel}
	if j.limit > 0 {
		g.group.SetLimit(j.limit)
	}
	return g
}

func (j *ParallelJobs) current() *generation {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.gen
}

func (j *ParallelJobs) swap() *generation {
	j.mu.Lock()
	defer j.mu.Unlock()
	old := j.gen
	j.gen = j.newGeneration()
	return old
}

// Add starts task and tracks it until the next JoinAll or CancelAll.
func (j *ParallelJobs) Add(task Task) {
	for {
		gen := j.current()
		gen.launch.RLock()
		if gen.sealed {
			gen.launch.RUnlock()
			continue
		}
		gen.tasks.Add(1)
		j.size.Add(1)
		if j.sequential {
			gen.record(run(gen.ctx, task))
		} else {
			gen.group.Go(func() error {
				gen.record(run(gen.ctx, task))
				return nil
			})
		}
		gen.launch.RUnlock()
		return
	}
}

func run(ctx context.Context, task Task) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Size returns the number of tracked tasks, running or finished, that have
// not been joined or cancelled yet.
func (j *ParallelJobs) Size() int {
	return int(j.size.Load())
}

// JoinAll waits for every tracked task, stops tracking them and returns
// their failures joined into one error.
func (j *ParallelJobs) JoinAll() error {
	old := j.swap()
	old.seal()
	_ = old.group.Wait()
	old.cancel()
	j.size.Add(-old.tasks.Load())

	old.mu.Lock()
	defer old.mu.Unlock()
	return errors.Join(old.errs...)
}

// CancelAll cancels the context of every tracked task and stops tracking
// them without waiting for them to return.
func (j *ParallelJobs) CancelAll() {
	old := j.swap()
	old.cancel()
	old.seal()
	j.size.Add(-old.tasks.Load())
}
