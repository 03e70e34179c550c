// Package supervisor implements the master loop of the process pool. It
// pulls commands from a source, runs each in its own worker process,
// collects and dispatches the results and reaps the workers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lambda-feedback/procpool/dispatch"
	"github.com/lambda-feedback/procpool/internal/execution/control"
	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/lambda-feedback/procpool/internal/execution/reaper"
	"github.com/lambda-feedback/procpool/internal/execution/rlimit"
	"github.com/lambda-feedback/procpool/internal/execution/worker"
	"github.com/lambda-feedback/procpool/source"
	"github.com/lambda-feedback/procpool/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrSpawnFailed     = errors.New("failed to spawn worker")
	ErrAlreadyStarted  = errors.New("supervisor already started")
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
	ErrMissingParam    = errors.New("missing supervisor parameter")
)

type Params struct {
	// Config is the config used to set up the supervisor.
	Config Config

	// Source supplies the commands to run.
	Source source.Source

	// Dispatcher consumes the results.
	Dispatcher dispatch.Dispatcher

	// Spawner creates the worker processes.
	Spawner worker.Spawner

	// Tracer records one span per worker. Optional.
	Tracer trace.Tracer

	// Level is the adjustable level of Log. Optional, without it
	// the log_level control command fails.
	Level *zap.AtomicLevel

	// Log is the logger to use for the supervisor
	Log *zap.Logger
}

// record is the bookkeeping of one live worker. It is removed once the
// process has been reaped and its channel has been closed, in any order.
type record struct {
	cmd   models.Command
	proc  *worker.Process
	start time.Time
	span  trace.Span

	exit      *models.ExitStatus
	closed    bool
	delivered bool
}

func (r *record) done() bool {
	return r.exit != nil && r.closed
}

type Supervisor struct {
	config     Config
	source     source.Source
	dispatcher dispatch.Dispatcher
	spawner    worker.Spawner
	tracer     trace.Tracer
	level      *zap.AtomicLevel

	capacity atomic.Int64
	state    atomic.Int32
	started  atomic.Bool

	// mu guards writes to records and limits by the loop and
	// snapshot reads by other goroutines
	mu      sync.RWMutex
	records map[int]*record
	limits  rlimit.Limits

	history    *History
	reaper     *reaper.Reaper
	decoder    *ipc.Decoder
	registry   *control.Registry
	inbox      *control.Inbox
	signalFile *control.SignalFile

	cancelFetch context.CancelFunc

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	log *zap.Logger
}

func New(params Params) (*Supervisor, error) {
	if params.Source == nil || params.Dispatcher == nil || params.Spawner == nil {
		return nil, ErrMissingParam
	}

	if params.Log == nil {
		params.Log = zap.NewNop()
	}

	if params.Tracer == nil {
		params.Tracer = tracing.Noop()
	}

	config := params.Config.withDefaults()

	decoder, err := ipc.NewDecoder(config.MaxResultSize, 2)
	if err != nil {
		return nil, err
	}

	log := params.Log.Named("supervisor")

	s := &Supervisor{
		config:     config,
		source:     params.Source,
		dispatcher: params.Dispatcher,
		spawner:    params.Spawner,
		tracer:     params.Tracer,
		level:      params.Level,
		records:    make(map[int]*record),
		limits:     config.Limits,
		history:    NewHistory(config.HistorySize),
		reaper:     reaper.New(log),
		decoder:    decoder,
		registry:   control.NewRegistry(log),
		inbox:      control.NewInbox(16),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
	}

	if config.Control.File != "" {
		s.signalFile = control.NewSignalFile(config.Control.File)
	}

	s.capacity.Store(int64(config.Capacity))
	s.registerHandlers()

	return s, nil
}

// MARK: - lifecycle

// Run drives the loop until all work is drained. It returns nil after a
// completed drain, or an error wrapping ErrSpawnFailed. Cancelling ctx
// requests termination: intake stops, running workers are awaited.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	defer close(s.done)
	defer s.decoder.Close()
	defer s.inbox.Close()

	if s.config.PidFile != "" {
		if err := control.WritePidFile(s.config.PidFile); err != nil {
			s.setState(StateTerminated)
			return fmt.Errorf("failed to advertise pid: %w", err)
		}
		defer s.removePidFile()
	}

	sigchld := s.reaper.Start()
	defer s.reaper.Stop()

	var ctlsig <-chan os.Signal
	if s.signalFile != nil {
		ctlsig = s.signalFile.Start()
		defer s.signalFile.Stop()
	}

	fetchCtx, cancelFetch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelFetch()
	s.cancelFetch = cancelFetch

	f := newFetcher(s.source)
	go f.run(fetchCtx)

	// results are dispatched even while the run context is cancelled
	dispatchCtx := context.WithoutCancel(ctx)

	s.setState(StateRunning)
	s.log.Info("supervisor running",
		zap.Int("capacity", s.Capacity()),
		zap.Int("pid", os.Getpid()))

	for {
		select {
		case <-ctx.Done():
			s.drain("termination requested")
		case <-s.stop:
			s.drain("termination requested")
		default:
		}

		// control messages take effect on this scheduling decision
		s.inbox.Drain(s.registry)
		select {
		case <-ctlsig:
			s.readControlFile()
		default:
		}

		select {
		case <-sigchld:
			s.reap()
		default:
			if s.awaitingExit() {
				s.reap()
			}
		}

		progressed, err := s.schedule(ctx, f)
		if err != nil {
			s.setState(StateTerminated)
			s.log.Error("aborting supervisor", zap.Error(err))
			return err
		}

		timeout := s.config.PollInterval
		if progressed {
			timeout = 0
		}

		s.service(dispatchCtx, timeout)
		s.sweep()

		if s.State() == StateDraining && s.Active() == 0 {
			s.setState(StateTerminated)
			s.log.Info("supervisor terminated")
			return nil
		}
	}
}

// Stop requests termination and waits until Run returned or ctx expired.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) drain(reason string) {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return
	}

	if s.cancelFetch != nil {
		s.cancelFetch()
	}

	s.log.Info("draining", zap.String("reason", reason), zap.Int("active", s.Active()))
	s.record(models.Event{Kind: models.EventState, Message: StateDraining.String() + ": " + reason})
}

func (s *Supervisor) removePidFile() {
	if err := os.Remove(s.config.PidFile); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove pid file", zap.Error(err))
	}
}

// MARK: - scheduling

// schedule asks the fetcher for the next command while there is spare
// capacity and spawns a worker for a command that arrived. It reports
// whether anything changed.
func (s *Supervisor) schedule(ctx context.Context, f *fetcher) (bool, error) {
	progressed := false

	if s.State() == StateRunning && !f.pending && s.Active() < s.Capacity() {
		f.request()
		progressed = true
	}

	res, ok := f.poll()
	if !ok {
		return progressed, nil
	}

	if s.State() != StateRunning {
		if res.err == nil {
			s.log.Warn("dropping command received while draining", zap.Stringer("command", res.cmd))
			s.record(models.Event{Kind: models.EventDrop, CommandID: res.cmd.ID, Message: "received while draining"})
		}
		return progressed, nil
	}

	if res.err != nil {
		if !errors.Is(res.err, source.ErrEndOfWork) {
			s.log.Error("command source failed", zap.Error(res.err))
		}
		s.drain("end of work")
		return true, nil
	}

	if err := s.spawn(ctx, res.cmd); err != nil {
		return true, err
	}

	return true, nil
}

func (s *Supervisor) spawn(ctx context.Context, cmd models.Command) error {
	_, span := s.tracer.Start(ctx, "worker", trace.WithAttributes(
		attrCommandID.String(cmd.ID),
		attrCommandOp.String(cmd.Op),
	))

	proc, err := s.spawner.Spawn(cmd, s.Limits())
	if err != nil {
		tracing.SetError(span, err)
		span.End()
		return fmt.Errorf("%w: %s: %w", ErrSpawnFailed, cmd, err)
	}

	// tracked before the next reap, so an early exit is not missed
	s.reaper.Track(proc.Pid)

	span.SetAttributes(attrPid.Int(proc.Pid))

	s.mu.Lock()
	s.records[proc.Pid] = &record{
		cmd:   cmd,
		proc:  proc,
		start: proc.Started,
		span:  span,
	}
	s.mu.Unlock()

	s.log.Debug("spawned worker", zap.Int("pid", proc.Pid), zap.Stringer("command", cmd))
	s.record(models.Event{Kind: models.EventSpawn, Pid: proc.Pid, CommandID: cmd.ID})

	return nil
}

// MARK: - channels

// service waits up to timeout for ready worker channels and collects
// one envelope from each.
func (s *Supervisor) service(ctx context.Context, timeout time.Duration) {
	byChannel := make(map[*ipc.Channel]*record, len(s.records))
	open := make([]*ipc.Channel, 0, len(s.records))
	for _, rec := range s.records {
		if rec.closed {
			continue
		}
		byChannel[rec.proc.Channel] = rec
		open = append(open, rec.proc.Channel)
	}

	ready, err := ipc.Poll(open, timeout)
	if err != nil {
		s.log.Error("failed to poll worker channels", zap.Error(err))
		return
	}

	for _, ch := range ready {
		s.collect(ctx, byChannel[ch])
	}
}

// collect reads the single envelope of rec, dispatches it and closes
// the channel. A channel without a complete envelope is closed too.
func (s *Supervisor) collect(ctx context.Context, rec *record) {
	log := s.log.With(zap.Int("pid", rec.proc.Pid), zap.Stringer("command", rec.cmd))

	var envelope models.Envelope
	err := s.decoder.Decode(ctx, rec.proc.Channel, &envelope)

	if closeErr := rec.proc.Channel.Close(); closeErr != nil {
		log.Debug("failed to close channel", zap.Error(closeErr))
	}
	rec.closed = true

	switch {
	case errors.Is(err, ipc.ErrClosed):
		log.Warn("worker closed channel without a result")
		return
	case err != nil:
		log.Error("discarding unreadable result", zap.Error(err))
		tracing.SetError(rec.span, err)
		return
	}

	if envelope.Command.ID != rec.cmd.ID {
		log.Warn("result names a different command", zap.String("result_command", envelope.Command.ID))
	}

	rec.delivered = true
	rec.span.AddEvent("result")

	s.dispatch(ctx, rec.cmd, envelope.Result)
	s.record(models.Event{Kind: models.EventDispatch, Pid: rec.proc.Pid, CommandID: rec.cmd.ID})
}

// dispatch hands a result to the dispatcher. Errors and panics are
// logged, they never reach the loop.
func (s *Supervisor) dispatch(ctx context.Context, cmd models.Command, result models.Result) {
	log := s.log.With(zap.Stringer("command", cmd))

	defer func() {
		if p := recover(); p != nil {
			log.Error("dispatcher panicked", zap.Any("panic", p))
		}
	}()

	if err := s.dispatcher.Dispatch(ctx, cmd, result); err != nil {
		log.Error("failed to dispatch result", zap.Error(err))
	}
}

// MARK: - reaping

func (s *Supervisor) awaitingExit() bool {
	for _, rec := range s.records {
		if rec.closed && rec.exit == nil {
			return true
		}
	}

	return false
}

func (s *Supervisor) reap() {
	for _, exit := range s.reaper.Reap() {
		rec, ok := s.records[exit.Pid]
		if !ok {
			continue
		}

		status := exit.Status
		rec.exit = &status

		if err := rec.proc.Release(); err != nil {
			s.log.Debug("failed to release process", zap.Int("pid", exit.Pid), zap.Error(err))
		}

		log := s.log.With(
			zap.Int("pid", exit.Pid),
			zap.Stringer("command", rec.cmd),
			zap.Stringer("status", status),
			zap.Duration("runtime", time.Since(rec.start)),
		)

		if status.Abnormal() {
			log.Warn("worker terminated abnormally")
		} else {
			log.Debug("reaped worker")
		}

		if status.Code != nil {
			rec.span.SetAttributes(attrExitCode.Int(*status.Code))
		}
		if status.Signal != nil {
			rec.span.SetAttributes(attrSignal.Int(*status.Signal))
		}

		s.record(models.Event{Kind: models.EventReap, Pid: exit.Pid, CommandID: rec.cmd.ID, Exit: &status})
	}
}

// sweep removes records that are both reaped and closed.
func (s *Supervisor) sweep() {
	for pid, rec := range s.records {
		if !rec.done() {
			continue
		}

		if !rec.delivered {
			rec.span.AddEvent("no result")
		}
		rec.span.End()

		s.mu.Lock()
		delete(s.records, pid)
		s.mu.Unlock()
	}
}

// MARK: - state

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
	s.record(models.Event{Kind: models.EventState, Message: state.String()})
}

// Capacity returns the maximum number of concurrent workers.
func (s *Supervisor) Capacity() int {
	return int(s.capacity.Load())
}

// SetCapacity changes the number of concurrent workers, effective on
// the next scheduling decision. Running workers are never killed.
func (s *Supervisor) SetCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, n)
	}

	old := s.capacity.Swap(int64(n))
	s.record(models.Event{Kind: models.EventControl, Message: fmt.Sprintf("capacity %d -> %d", old, n)})

	return nil
}

// Limits returns the limits applied to newly spawned workers.
func (s *Supervisor) Limits() rlimit.Limits {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.limits
}

// SetLimits changes the limits of workers spawned afterwards.
func (s *Supervisor) SetLimits(limits rlimit.Limits) {
	s.mu.Lock()
	s.limits = limits
	s.mu.Unlock()

	s.record(models.Event{
		Kind:    models.EventControl,
		Message: fmt.Sprintf("limits cpu=%ds as=%d", limits.CPUSeconds, limits.AddressSpace),
	})
}

// Active returns the number of live worker records.
func (s *Supervisor) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Workers returns a snapshot of the live workers, oldest first.
func (s *Supervisor) Workers() []models.WorkerInfo {
	s.mu.RLock()
	workers := make([]models.WorkerInfo, 0, len(s.records))
	for pid, rec := range s.records {
		workers = append(workers, models.WorkerInfo{Pid: pid, Command: rec.cmd, Start: rec.start})
	}
	s.mu.RUnlock()

	sort.Slice(workers, func(i, j int) bool {
		return workers[i].Start.Before(workers[j].Start)
	})

	return workers
}

// History returns the retained lifecycle events, oldest first.
func (s *Supervisor) History() []models.Event {
	return s.history.Events()
}

// Inbox is where transports submit administrative lines.
func (s *Supervisor) Inbox() *control.Inbox {
	return s.inbox
}

// Registry holds the administrative commands the supervisor understands.
func (s *Supervisor) Registry() *control.Registry {
	return s.registry
}

func (s *Supervisor) record(e models.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.history.Append(e)
}
