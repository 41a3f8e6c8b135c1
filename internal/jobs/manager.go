// Package jobs runs render jobs on a fixed pool of workers fed by a bounded
// queue. It owns admission, cancellation, per-job timeouts and the fan-out
// of job snapshots to subscribers.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/models"
	"clipforge/internal/pipeline"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/metrics"
	"clipforge/internal/ports"
)

// Admission policies.
const (
	AdmissionQueue  = "queue"
	AdmissionReject = "reject"
)

const (
	saveTimeout        = 5 * time.Second
	progressSaveEvery  = 500 * time.Millisecond
	subscriberBuffer   = 16
	remotePollInterval = 250 * time.Millisecond
)

// Runner takes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job *models.Job, sink pipeline.Sink) error
}

// Dispatcher hands job ids to an out-of-process worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

type Config struct {
	Workers    int
	QueueSize  int
	Admission  string
	JobTimeout time.Duration
}

type Deps struct {
	Runner  Runner
	Store   ports.JobStore
	Metrics *metrics.Metrics
	Log     *logger.Logger
	Config  Config

	// Dispatcher, when set, sends jobs to remote workers instead of the
	// local pool.
	Dispatcher Dispatcher
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers  int    `json:"workers"`
	Busy     int    `json:"busy"`
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Live     int    `json:"live"`
	Mode     string `json:"mode"`
}

type task struct {
	job     models.Job
	started bool
	err     error

	// dispatched tasks came from the shared store; another process may
	// finish or cancel them while they wait here.
	dispatched bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lastSaved      time.Time
	lastSavedState models.JobState
}

// Manager is the job service used by the HTTP API, the queue worker and
// the CLI.
type Manager struct {
	runner   Runner
	store    ports.JobStore
	dispatch Dispatcher
	metrics  *metrics.Metrics
	log      *logger.Logger
	cfg      Config
	now      func() time.Time
	newID    func() string

	queue chan *task
	quit  chan struct{}
	wg    sync.WaitGroup
	busy  atomic.Int32

	baseCtx   context.Context
	cancelAll context.CancelFunc

	admit  sync.RWMutex
	closed bool

	mu    sync.Mutex
	tasks map[string]*task
	subs  map[string]map[chan models.Job]struct{}
}

// New starts the worker pool. Workers below 1 are raised to 1 unless a
// Dispatcher is set, in which case no local workers run.
func New(d Deps) *Manager {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	cfg := d.Config
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Admission == "" {
		cfg.Admission = AdmissionQueue
	}
	if d.Dispatcher != nil {
		cfg.Workers = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner:    d.Runner,
		store:     d.Store,
		dispatch:  d.Dispatcher,
		metrics:   d.Metrics,
		log:       log.WithComponent("jobs"),
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		queue:     make(chan *task, cfg.QueueSize),
		quit:      make(chan struct{}),
		baseCtx:   ctx,
		cancelAll: cancel,
		tasks:     make(map[string]*task),
		subs:      make(map[string]map[chan models.Job]struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Submit validates req, records a pending job and admits it. With the
// reject policy a full queue fails the job with RESOURCE_EXHAUSTED; with
// the queue policy Submit waits for room until ctx ends. The job is
// returned even when admission fails.
func (m *Manager) Submit(ctx context.Context, req models.RenderRequest) (models.Job, error) {
	if m.dispatch != nil {
		return m.submitRemote(ctx, req)
	}
	t, err := m.submit(ctx, req)
	if t == nil {
		return models.Job{}, err
	}
	return m.snapshot(t), err
}

func (m *Manager) submit(ctx context.Context, req models.RenderRequest) (*task, error) {
	job, err := m.create(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.enqueue(ctx, job, false)
}

func (m *Manager) create(ctx context.Context, req models.RenderRequest) (models.Job, error) {
	if err := req.Validate(); err != nil {
		return models.Job{}, err
	}
	job := models.NewJob(m.newID(), req, m.now())
	if err := m.store.Create(ctx, job); err != nil {
		return models.Job{}, errors.Wrap(err, "jobs.submit", "failed to record job")
	}
	m.metrics.JobSubmitted()
	return job, nil
}

// Enqueue admits a job already recorded in the store, as created by an API
// process in distributed mode. Jobs that are no longer pending are skipped
// with CONFLICT.
func (m *Manager) Enqueue(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State != models.JobPending {
		return errors.Conflict(fmt.Sprintf("job %s is %s", jobID, job.State)).WithField("job_id", jobID)
	}
	_, err = m.enqueue(ctx, job, true)
	return err
}

func (m *Manager) enqueue(ctx context.Context, job models.Job, dispatched bool) (*task, error) {
	tctx, cancel := context.WithCancel(m.baseCtx)
	tctx = logger.ContextWithJobID(tctx, job.ID)
	t := &task{
		job:            job,
		ctx:            tctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		lastSavedState: job.State,
		dispatched:     dispatched,
	}
	m.mu.Lock()
	m.tasks[job.ID] = t
	m.mu.Unlock()

	m.admit.RLock()
	defer m.admit.RUnlock()

	if m.closed {
		err := errors.Unavailable("render queue")
		m.failPending(t, err)
		return t, err
	}

	if m.cfg.Admission == AdmissionReject {
		select {
		case m.queue <- t:
		default:
			err := errors.ResourceExhausted("render queue").
				WithField("queue_size", m.cfg.QueueSize).
				WithField("workers", m.cfg.Workers)
			m.metrics.JobRejected()
			m.failPending(t, err)
			return t, err
		}
	} else {
		select {
		case m.queue <- t:
		case <-ctx.Done():
			err := errors.FromContext(ctx, "jobs.admit")
			m.failPending(t, err)
			return t, err
		}
	}
	m.metrics.SetQueueDepth(len(m.queue))
	m.log.FromContext(tctx).Info("job queued", "queued", len(m.queue))
	return t, nil
}

// Get returns the latest snapshot of a job.
func (m *Manager) Get(ctx context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if ok {
		j := t.job.Clone()
		m.mu.Unlock()
		return j, nil
	}
	m.mu.Unlock()
	return m.store.Get(ctx, id)
}

// List returns up to limit jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]models.Job, error) {
	return m.store.List(ctx, limit)
}

// Wait blocks until the job is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if ok {
		select {
		case <-t.done:
			return m.snapshot(t), nil
		case <-ctx.Done():
			return models.Job{}, errors.FromContext(ctx, "jobs.wait")
		}
	}
	if m.dispatch != nil {
		return m.waitRemote(ctx, id)
	}
	return m.store.Get(ctx, id)
}

// Render submits req and waits for it. If ctx ends first the job is
// canceled. The returned error is the one the job failed with.
func (m *Manager) Render(ctx context.Context, req models.RenderRequest) (models.Job, error) {
	if m.dispatch != nil {
		job, err := m.Submit(ctx, req)
		if err != nil {
			return job, err
		}
		job, err = m.waitRemote(ctx, job.ID)
		if err != nil {
			return job, err
		}
		return job, jobError(job)
	}

	t, err := m.submit(ctx, req)
	if err != nil {
		if t != nil {
			return m.snapshot(t), err
		}
		return models.Job{}, err
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		m.Cancel(context.Background(), t.job.ID)
		<-t.done
	}
	m.mu.Lock()
	job, err := t.job.Clone(), t.err
	m.mu.Unlock()
	return job, err
}

// Cancel stops a job. A pending job fails immediately with CANCELED; a
// running job has its context canceled and fails once the engine stops.
// Terminal jobs are a CONFLICT.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		if m.dispatch != nil {
			return m.cancelRemote(ctx, id)
		}
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		return errors.Conflict(fmt.Sprintf("job %s is already %s", id, job.State)).WithField("job_id", id)
	}
	started := t.started
	m.mu.Unlock()

	if started {
		m.log.Info("canceling running job", "job_id", id)
		t.cancel()
		return nil
	}
	m.failPending(t, errors.Canceled("jobs.cancel"))
	return nil
}

// Subscribe streams snapshots of a job: the current one first, then every
// change. The channel is closed after the terminal snapshot. Slow readers
// miss intermediate progress, never the final state. The returned func
// stops the subscription early.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan models.Job, func(), error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if ok {
		ch := make(chan models.Job, subscriberBuffer)
		ch <- t.job.Clone()
		if m.subs[id] == nil {
			m.subs[id] = make(map[chan models.Job]struct{})
		}
		m.subs[id][ch] = struct{}{}
		m.mu.Unlock()
		return ch, func() { m.unsubscribe(id, ch) }, nil
	}
	m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if m.dispatch != nil && !job.State.IsTerminal() {
		return m.subscribeRemote(id, job)
	}
	ch := make(chan models.Job, 1)
	ch <- job
	close(ch)
	return ch, func() {}, nil
}

func (m *Manager) unsubscribe(id string, ch chan models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subs[id]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(m.subs, id)
		}
	}
}

// Stats reports pool occupancy.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	live := len(m.tasks)
	m.mu.Unlock()
	mode := "local"
	if m.dispatch != nil {
		mode = "dispatch"
	}
	return Stats{
		Workers:  m.cfg.Workers,
		Busy:     int(m.busy.Load()),
		Queued:   len(m.queue),
		Capacity: cap(m.queue),
		Live:     live,
		Mode:     mode,
	}
}

// Close stops admission and lets workers drain the queue. If ctx ends
// first, in-flight jobs are canceled and Close waits for them to fail.
func (m *Manager) Close(ctx context.Context) error {
	m.admit.Lock()
	if !m.closed {
		m.closed = true
		close(m.quit)
	}
	m.admit.Unlock()

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.cancelAll()
		return nil
	case <-ctx.Done():
		m.log.Warn("drain deadline reached, canceling in-flight jobs", "busy", m.busy.Load(), "queued", len(m.queue))
		m.cancelAll()
		<-drained
		return errors.FromContext(ctx, "jobs.close")
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case t := <-m.queue:
			m.process(t)
		case <-m.quit:
			for {
				select {
				case t := <-m.queue:
					m.process(t)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) process(t *task) {
	m.metrics.SetQueueDepth(len(m.queue))

	if t.dispatched && m.settledElsewhere(t) {
		return
	}

	m.mu.Lock()
	if t.job.State.IsTerminal() {
		m.mu.Unlock()
		return
	}
	t.started = true
	job := t.job.Clone()
	m.mu.Unlock()

	m.busy.Add(1)
	m.metrics.WorkerBusy()
	defer func() {
		m.busy.Add(-1)
		m.metrics.WorkerIdle()
	}()

	ctx := t.ctx
	if m.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.JobTimeout)
		defer cancel()
	}

	log := m.log.FromContext(ctx)
	log.Info("processing job")
	start := time.Now()

	err := m.run(ctx, t, &job)

	if err != nil {
		log.Info("job finished", "state", job.State, "code", errors.GetCode(err), "duration_ms", time.Since(start).Milliseconds())
	} else {
		log.Info("job finished", "state", job.State, "duration_ms", time.Since(start).Milliseconds())
	}
	m.finish(t, err)
}

// settledElsewhere re-reads a dispatched job before it runs. If the store
// no longer has it pending (canceled by the API, or picked up by another
// worker) the task ends with the stored state and the runner is skipped.
// A store that cannot be read does not block the job; Save still refuses
// to overwrite a final state.
func (m *Manager) settledElsewhere(t *task) bool {
	ctx, cancel := context.WithTimeout(t.ctx, saveTimeout)
	stored, err := m.store.Get(ctx, t.job.ID)
	cancel()
	if err != nil || stored.State == models.JobPending {
		return false
	}

	m.mu.Lock()
	if t.started || t.job.State.IsTerminal() {
		m.mu.Unlock()
		return true
	}
	t.job = stored.Clone()
	for ch := range m.subs[stored.ID] {
		offer(ch, stored.Clone())
	}
	m.mu.Unlock()

	m.log.FromContext(t.ctx).Info("job no longer pending in store, skipping", "state", stored.State)
	jerr := jobError(stored)
	if jerr == nil && !stored.State.IsTerminal() {
		jerr = errors.Conflict(fmt.Sprintf("job %s is %s", stored.ID, stored.State)).WithField("job_id", stored.ID)
	}
	m.finish(t, jerr)
	return true
}

// run calls the runner, turning a panic into a failed job.
func (m *Manager) run(ctx context.Context, t *task, job *models.Job) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = errors.Internal(fmt.Sprintf("render worker panic: %v", r)).WithField("job_id", job.ID)
		m.log.FromContext(ctx).Error("render worker panic",
			"panic", fmt.Sprint(r),
			"stack", string(debug.Stack()),
		)
		if !job.State.IsTerminal() {
			_ = job.Fail(err, m.now())
			m.metrics.JobFinished(string(models.JobFailed), string(errors.CodeInternal))
		}
		m.update(t, job.Clone())
	}()
	return m.runner.Run(ctx, job, func(s models.Job) { m.update(t, s) })
}

// update stores a new snapshot, fans it out and persists it. Progress-only
// changes are persisted at most every progressSaveEvery.
func (m *Manager) update(t *task, snap models.Job) {
	m.mu.Lock()
	t.job = snap
	for ch := range m.subs[snap.ID] {
		offer(ch, snap)
	}
	now := m.now()
	persist := snap.State != t.lastSavedState || snap.State.IsTerminal() || now.Sub(t.lastSaved) >= progressSaveEvery
	if persist {
		t.lastSaved = now
		t.lastSavedState = snap.State
	}
	m.mu.Unlock()

	if persist {
		if err := m.save(snap); errors.IsCode(err, errors.CodeConflict) {
			// The stored job is final already; stop working on it.
			t.cancel()
		}
	}
}

// offer sends without blocking, dropping the oldest buffered snapshot when
// the subscriber is behind.
func offer(ch chan models.Job, snap models.Job) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (m *Manager) save(job models.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	err := m.store.Save(ctx, job)
	if err != nil {
		m.log.Warn("failed to persist job", "job_id", job.ID, "state", job.State, "error", err.Error())
	}
	return err
}

// failPending fails a job that never reached a worker. Marking it terminal
// under the lock makes a worker that dequeues it later skip it.
func (m *Manager) failPending(t *task, err error) {
	m.mu.Lock()
	if t.started || t.job.State.IsTerminal() {
		m.mu.Unlock()
		return
	}
	job := t.job.Clone()
	if ferr := job.Fail(err, m.now()); ferr != nil {
		m.mu.Unlock()
		return
	}
	t.job = job
	m.mu.Unlock()

	m.metrics.JobFinished(string(models.JobFailed), string(errors.GetCode(err)))
	m.update(t, job)
	m.finish(t, err)
}

// finish publishes the terminal state and forgets the task.
func (m *Manager) finish(t *task, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-t.done:
		return
	default:
	}
	t.err = err
	t.cancel()
	delete(m.tasks, t.job.ID)
	for ch := range m.subs[t.job.ID] {
		close(ch)
	}
	delete(m.subs, t.job.ID)
	close(t.done)
}

func (m *Manager) snapshot(t *task) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.job.Clone()
}

// jobError rebuilds a coded error from a persisted failure.
func jobError(job models.Job) error {
	if job.State != models.JobFailed || job.Error == nil {
		return nil
	}
	e := errors.New(errors.Code(job.Error.Code), job.Error.Message)
	e.Op = job.Error.Op
	return e
}
