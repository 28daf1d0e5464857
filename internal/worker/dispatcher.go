// Package worker runs inference jobs through a bounded queue so
// concurrent requests cannot stampede the single local model process.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vennietweek/llm-chat/internal/models"
)

// ErrDispatcherBusy is returned when the job queue is full.
var ErrDispatcherBusy = errors.New("inference queue is full")

const defaultWorkerIdle = 5 * time.Minute

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

type jobResult struct {
	message *models.Message
	err     error
}

type job struct {
	ctx    context.Context
	input  string
	result chan jobResult
}

// Dispatcher feeds queued jobs to a small worker pool. MinWorkers
// goroutines are permanent; extra workers spawn under load up to
// MaxWorkers and retire after sitting idle.
type Dispatcher struct {
	pipeline *Pipeline
	jobs     chan job
	cfg      DispatcherConfig

	mu      sync.Mutex
	running int
}

func NewDispatcher(pipeline *Pipeline, cfg DispatcherConfig) *Dispatcher {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	if cfg.WorkerIdleTimeout <= 0 {
		cfg.WorkerIdleTimeout = defaultWorkerIdle
	}

	d := &Dispatcher{
		pipeline: pipeline,
		jobs:     make(chan job, cfg.QueueSize),
		cfg:      cfg,
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.spawnWorker(true)
	}
	return d
}

// Process enqueues an inference job and waits for its result. Returns
// ErrDispatcherBusy without blocking when the queue is full.
func (d *Dispatcher) Process(ctx context.Context, userInput string) (*models.Message, error) {
	j := job{ctx: ctx, input: userInput, result: make(chan jobResult, 1)}
	select {
	case d.jobs <- j:
	default:
		return nil, ErrDispatcherBusy
	}
	d.scaleUp()

	select {
	case res := <-j.result:
		return res.message, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// scaleUp spawns a transient worker while jobs are waiting and the
// pool is below its cap.
func (d *Dispatcher) scaleUp() {
	if len(d.jobs) == 0 {
		return
	}
	d.spawnWorker(false)
}

func (d *Dispatcher) spawnWorker(permanent bool) {
	d.mu.Lock()
	if d.running >= d.cfg.MaxWorkers {
		d.mu.Unlock()
		return
	}
	d.running++
	d.mu.Unlock()
	go d.runWorker(permanent)
}

func (d *Dispatcher) retireWorker() {
	d.mu.Lock()
	d.running--
	d.mu.Unlock()
}

func (d *Dispatcher) runWorker(permanent bool) {
	if permanent {
		for j := range d.jobs {
			d.execute(j)
		}
		return
	}

	defer d.retireWorker()
	idle := time.NewTimer(d.cfg.WorkerIdleTimeout)
	defer idle.Stop()
	for {
		select {
		case j := <-d.jobs:
			d.execute(j)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(d.cfg.WorkerIdleTimeout)
		case <-idle.C:
			return
		}
	}
}

func (d *Dispatcher) execute(j job) {
	msg, err := d.pipeline.Run(j.ctx, j.input)
	j.result <- jobResult{message: msg, err: err}
}
