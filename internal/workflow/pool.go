package workflow

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrPoolFull   = errors.New("worker pool shard full")
)

type Job struct {
	Key  string
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs jobs on a fixed set of shards. Jobs sharing a key always land
// on the same shard and run one after another.
type Pool struct {
	shards []chan Job
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queue int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{shards: make([]chan Job, workers), log: log}
	for i := range p.shards {
		p.shards[i] = make(chan Job, queue)
	}
	return p
}

func (p *Pool) shard(key string) chan Job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit queues a job, blocking while its shard is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.shard(job.Key) <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a job only if its shard has room. Callers on a request
// path use it and leave a rejected job to a recovery sweep.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.shard(job.Key) <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

// Run consumes the shards until ctx ends. Jobs still queued at that point
// are handed the cancelled context. Job errors are logged and never stop a
// shard.
func (p *Pool) Run(ctx context.Context) error {
	var g errgroup.Group
	for i, ch := range p.shards {
		g.Go(func() error {
			for job := range ch {
				if err := job.Run(ctx); err != nil {
					p.log.Error("job failed",
						zap.Int("shard", i),
						zap.String("job", job.Name),
						zap.String("key", job.Key),
						zap.Error(err))
				}
			}
			return nil
		})
	}
	<-ctx.Done()
	p.mu.Lock()
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()
	return g.Wait()
}
