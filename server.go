package agentmesh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/AgentMesh/agentmesh-go/internal/hctx"
	"github.com/google/uuid"
)

// ServerConfig defines the configuration for a worker server.
type ServerConfig struct {
	// Queues defines the queues to process and their relative weights.
	Queues map[string]int
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// WorkerID identifies this process as a lease owner. Generated if empty.
	WorkerID string
	// PollInterval is the backoff between empty lease polls.
	PollInterval time.Duration
	// Logger is the logger used for server events.
	Logger Logger
}

// Server executes tasks from queues using a pool of workers and runs the
// background maintenance loops: due-task promotion, expired-lease sweep and
// retention purge.
type Server struct {
	q   *Queue
	mux *Mux
	cfg ServerConfig
	log Logger

	workerID  string
	queueList []string

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a worker server over the given queue and mux.
func NewServer(q *Queue, cfg ServerConfig, mux *Mux) *Server {
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		q:         q,
		mux:       mux,
		cfg:       cfg,
		log:       l,
		workerID:  workerID,
		queueList: expandQueues(cfg.Queues),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WorkerID returns the lease-owner identity of this server.
func (s *Server) WorkerID() string { return s.workerID }

// Start launches the workers and background maintenance routines.
// It is idempotent and non-blocking.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started {
		s.log.Warnf("server already started; ignoring Start()")
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.log.Infof("starting server: worker=%s concurrency=%d queues=%d",
		s.workerID, s.cfg.Concurrency, len(s.cfg.Queues))

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
		go func(r *rand.Rand) {
			defer s.wg.Done()
			s.workerLoop(r)
		}(rng)
	}

	for queue := range s.cfg.Queues {
		// Scheduler: promote due delayed tasks into the ready set.
		s.spawnTicker(queue, 100*time.Millisecond, func(ctx context.Context, q string) {
			if _, err := s.q.PromoteDue(ctx, q, 256); err != nil {
				s.log.Warnf("scheduler: promote failed queue=%s err=%v", q, err)
			}
		})
		// Reclaimer: sweep leases held past their timeout.
		s.spawnTicker(queue, 200*time.Millisecond, func(ctx context.Context, q string) {
			if _, err := s.q.SweepExpiredLeases(ctx, q); err != nil {
				s.log.Warnf("reclaimer: sweep failed queue=%s err=%v", q, err)
			}
		})
		// Cleaner: purge completed/failed tasks past retention.
		s.spawnTicker(queue, time.Second, func(ctx context.Context, q string) {
			if err := s.q.PurgeExpired(ctx, q); err != nil {
				s.log.Warnf("cleaner: purge failed queue=%s err=%v", q, err)
			}
		})
	}
}

// Stop gracefully shuts down the server, waiting for workers to finish
// current tasks.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.log.Warnf("server not started; ignoring Stop()")
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	s.log.Infof("stopping server")
	s.cancel()
	s.wg.Wait()
}

func (s *Server) spawnTicker(queue string, every time.Duration, fn func(ctx context.Context, queue string)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				fn(s.ctx, queue)
			}
		}
	}()
}

func (s *Server) workerLoop(rng *rand.Rand) {
	if len(s.queueList) == 0 {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		queue := s.queueList[rng.Intn(len(s.queueList))]
		tasks, err := s.q.Lease(s.ctx, queue, 1, s.workerID)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Errorf("lease failed queue=%s err=%v", queue, err)
			time.Sleep(s.cfg.PollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(s.cfg.PollInterval)
			continue
		}
		s.process(queue, tasks[0])
	}
}

func (s *Server) process(queue string, t *Task) {
	// Reporting survives Stop(): a task that finished during shutdown must
	// still settle instead of being reclaimed as a lease timeout later.
	rctx := context.WithoutCancel(s.ctx)
	if err := s.q.Start(rctx, queue, t.ID, s.workerID); err != nil {
		s.log.Errorf("start failed: id=%s queue=%s err=%v", t.ID, queue, err)
		return
	}

	st := hctx.New()
	ctx := hctx.WithState(s.ctx, st)
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	err := s.execute(ctx, t)
	s.q.setProgress(rctx, queue, t.ID, st.Progress)

	switch {
	case err == nil:
		if e := s.q.ReportSuccess(rctx, queue, t.ID, st.Result); e != nil {
			s.log.Errorf("success report failed: id=%s queue=%s err=%v", t.ID, queue, e)
		} else {
			s.log.Debugf("processed: id=%s type=%s queue=%s", t.ID, t.Type, queue)
		}
	case errors.Is(err, ErrNoHandler):
		if e := s.q.DeadLetter(rctx, queue, t.ID, "no handler"); e != nil {
			s.log.Errorf("deadletter failed: id=%s type=%s queue=%s err=%v", t.ID, t.Type, queue, e)
		}
		s.log.Warnf("no handler for task: id=%s type=%s queue=%s", t.ID, t.Type, queue)
	default:
		switch e := s.q.ReportFailure(rctx, queue, t.ID, err); {
		case e == nil:
			s.log.Warnf("handler error: id=%s type=%s queue=%s err=%v", t.ID, t.Type, queue, err)
		case errors.Is(e, ErrRetriesExhausted):
			s.log.Warnf("task failed terminally: id=%s type=%s queue=%s err=%v", t.ID, t.Type, queue, err)
		default:
			s.log.Errorf("failure report failed: id=%s type=%s queue=%s err=%v", t.ID, t.Type, queue, e)
		}
	}
}

// execute runs the handler chain and converts panics into errors so a broken
// handler consumes a retry instead of killing the worker.
func (s *Server) execute(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.mux.dispatch(ctx, t.Type, t.Payload)
}

func expandQueues(q map[string]int) []string {
	n := 0
	for _, w := range q {
		n += w
	}
	out := make([]string, 0, n)
	for name, weight := range q {
		if weight <= 0 {
			weight = 1
		}
		for i := 0; i < weight; i++ {
			out = append(out, name)
		}
	}
	return out
}
