// Package engine runs a task graph for one schedule key: it promotes tasks
// whose upstreams succeeded, dispatches them concurrently, retries retriable
// failures and propagates failures to everything downstream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/semaphore"

	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/ledger"
	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/operators"
	"github.com/maxkimambo/energy-etl/internal/progress"
	"github.com/maxkimambo/energy-etl/internal/runstate"
)

// Trigger names the run to execute
type Trigger struct {
	Pipeline string
	RunKey   string
	// PreviousRunKey is the schedule key before RunKey; empty when there is none
	PreviousRunKey string
}

// ExecutionResult contains the results of a run
type ExecutionResult struct {
	// Run is the final state of every task
	Run *runstate.RunInstance

	// Success indicates if every task succeeded
	Success bool

	// ExecutionTime is the total time taken for execution
	ExecutionTime time.Duration

	// Error is the failure of the first failed task in topological order,
	// or the cancellation cause of an aborted run
	Error error
}

// Engine executes one task graph. It is safe to call Run for different
// triggers from separate goroutines.
type Engine struct {
	graph    *dag.Graph
	registry operators.Registry
	clients  operators.Clients
	ledger   ledger.Ledger
	config   Config
	metrics  *Metrics

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithMetrics records engine metrics
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for task timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine for graph. Every task must have a registered
// operator that accepts its configuration. A nil ledger keeps records in memory.
func New(graph *dag.Graph, registry operators.Registry, clients operators.Clients, l ledger.Ledger, opts ...Option) (*Engine, error) {
	if graph == nil {
		return nil, errors.New("engine requires a task graph")
	}
	if registry == nil {
		registry = operators.DefaultRegistry()
	}
	if l == nil {
		l = ledger.NewMemoryLedger()
	}

	e := &Engine{
		graph:    graph,
		registry: registry,
		clients:  clients,
		ledger:   l,
		config:   DefaultConfig(),
		sleep:    gax.Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if err := registry.Validate(graph); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFromDefinitions builds the graph and the engine in one step. A graph
// that fails to build leaves the ledger untouched.
func NewFromDefinitions(defs []dag.TaskDefinition, registry operators.Registry, clients operators.Clients, l ledger.Ledger, opts ...Option) (*Engine, error) {
	graph, err := dag.Build(defs)
	if err != nil {
		return nil, err
	}
	return New(graph, registry, clients, l, opts...)
}

// Graph returns the task graph the engine executes
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Ledger returns the ledger runs are recorded in
func (e *Engine) Ledger() ledger.Ledger {
	return e.ledger
}

// Run executes the graph for trig to completion. The returned error is
// non-nil only when the run could not be started or recorded; task
// failures are reported through the result.
func (e *Engine) Run(ctx context.Context, trig Trigger) (*ExecutionResult, error) {
	if trig.Pipeline == "" {
		return nil, errors.New("trigger requires a pipeline name")
	}
	if trig.RunKey == "" {
		return nil, errors.New("trigger requires a run key")
	}

	x := &execution{
		Engine:   e,
		trigger:  trig,
		run:      runstate.NewRunInstance(trig.Pipeline, trig.RunKey, e.graph.Kinds(), e.now()),
		machines: make(map[string]*runstate.Machine, e.graph.Size()),
		results:  make(chan taskResult, e.graph.Size()),
		reporter: progress.NewReporter(e.config.ProgressInterval),
	}
	for _, id := range e.graph.IDs() {
		x.machines[id] = runstate.NewMachine()
	}
	if e.config.MaxParallelTasks > 0 {
		x.sem = semaphore.NewWeighted(int64(e.config.MaxParallelTasks))
	}
	x.previous = x.loadPrevious(ctx)

	if err := e.ledger.StartRun(ctx, x.run.Clone()); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	logger.User.Startingf("Running pipeline %s for %s (%d tasks)", trig.Pipeline, trig.RunKey, e.graph.Size())
	logger.Op.WithFields(map[string]interface{}{
		"pipeline":        trig.Pipeline,
		"run_key":         trig.RunKey,
		"idempotency_key": x.run.IdempotencyKey,
		"execution_id":    x.run.ExecutionID,
		"max_parallel":    e.config.MaxParallelTasks,
	}).Info("Run started")

	start := time.Now()
	finished := make(chan struct{})
	go x.logProgress(finished)

	x.schedule(ctx)
	x.wg.Wait()
	close(finished)

	result := x.finish(ctx, time.Since(start))
	if err := e.ledger.FinishRun(context.WithoutCancel(ctx), result.Run); err != nil {
		return result, fmt.Errorf("failed to record run outcome: %w", err)
	}
	return result, nil
}

type taskResult struct {
	taskID string
	err    error
}

// execution is the state of a single Run call
type execution struct {
	*Engine

	trigger  Trigger
	run      *runstate.RunInstance
	machines map[string]*runstate.Machine
	previous *runstate.RunInstance
	sem      *semaphore.Weighted
	results  chan taskResult
	reporter *progress.Reporter

	wg sync.WaitGroup
	mu sync.Mutex
}

// schedule is the controller loop. It owns promotion and failure
// propagation; workers own their task from Ready until a terminal status.
func (x *execution) schedule(ctx context.Context) {
	done := ctx.Done()
	inFlight := 0

	for {
		if ctx.Err() == nil {
			inFlight += x.promote(ctx)
		}
		if inFlight == 0 {
			break
		}

		select {
		case res := <-x.results:
			inFlight--
			if x.status(res.taskID) == runstate.StatusFailed {
				x.propagateFailure(ctx, res.taskID, res.err)
			}
		case <-done:
			done = nil
			logger.User.Warnf("Run %s cancelled, waiting for %d running task(s) to finish", x.trigger.RunKey, inFlight)
			x.skipPending(ctx, etlerrors.Wrap(etlerrors.KindCancelled, ctx.Err(), "Run aborted"))
		}
	}

	if ctx.Err() != nil {
		x.skipPending(ctx, etlerrors.Wrap(etlerrors.KindCancelled, ctx.Err(), "Run aborted"))
	}
}

// promote moves every Pending task whose upstreams all succeeded to Ready
// and starts its worker. It returns the number of workers started.
func (x *execution) promote(ctx context.Context) int {
	started := 0
	for _, id := range x.graph.TopologicalOrder() {
		if x.status(id) != runstate.StatusPending || !x.upstreamsSucceeded(id) {
			continue
		}
		task, _ := x.graph.Task(id)

		if err := x.checkPast(task); err != nil {
			x.transition(ctx, id, runstate.EventSkip, err)
			logger.User.Skipf("%s skipped: %s", id, etlerrors.Summary(err))
			x.skipDescendants(ctx, id, etlerrors.NewUpstreamFailedError(id, err))
			continue
		}

		x.transition(ctx, id, runstate.EventPromote, nil)
		x.wg.Add(1)
		go x.work(ctx, task)
		started++
	}
	return started
}

func (x *execution) upstreamsSucceeded(id string) bool {
	for _, up := range x.graph.UpstreamOf(id) {
		if x.status(up) != runstate.StatusSucceeded {
			return false
		}
	}
	return true
}

// work runs the attempt loop of one task and reports its final error
func (x *execution) work(ctx context.Context, task dag.TaskDefinition) {
	defer x.wg.Done()
	x.results <- taskResult{taskID: task.ID, err: x.attempt(ctx, task)}
}

func (x *execution) attempt(ctx context.Context, task dag.TaskDefinition) error {
	op, err := x.registry.Lookup(task.Kind)
	if err != nil {
		return x.abandon(ctx, task.ID, etlerrors.NewInvalidConfigError(task.ID, err.Error()))
	}
	policy := x.config.Retry
	backoff := policy.Backoff()

	for {
		if err := x.acquire(ctx); err != nil {
			return x.skipCancelled(ctx, task.ID, err)
		}

		_, attempts := x.transition(ctx, task.ID, runstate.EventDispatch, nil)
		x.logDispatch(task, attempts)

		started := time.Now()
		err := x.invoke(ctx, op, task)
		elapsed := time.Since(started)
		x.release()

		fields := logger.TaskFields(x.trigger.RunKey, task.ID, string(task.Kind), attempts)
		if err == nil {
			x.transition(ctx, task.ID, runstate.EventSucceed, nil)
			x.metrics.attempt(x.trigger.Pipeline, string(task.Kind), "success", elapsed)
			logger.User.Successf("%s completed in %s", task.ID, progress.FormatDuration(elapsed))
			logger.Op.WithFields(fields).WithField("duration", elapsed).Info("Task succeeded")
			return nil
		}

		if !policy.ShouldRetry(err, attempts) {
			x.transition(ctx, task.ID, runstate.EventFail, err)
			x.metrics.attempt(x.trigger.Pipeline, string(task.Kind), "failure", elapsed)
			logger.User.Errorf("%s failed after %d attempt(s): %s", task.ID, attempts, etlerrors.Summary(err))
			logger.Op.WithFields(fields).WithField("error_kind", etlerrors.KindOf(err)).Error(err.Error())
			return err
		}

		x.transition(ctx, task.ID, runstate.EventRetry, err)
		x.metrics.attempt(x.trigger.Pipeline, string(task.Kind), "retry", elapsed)
		wait := backoff.Pause()
		logger.User.Retryf("%s attempt %d/%d failed, retrying in %s: %s",
			task.ID, attempts, policy.MaxAttempts(), wait, etlerrors.Summary(err))
		logger.Op.WithFields(fields).WithField("backoff", wait).Warn(err.Error())

		if err := x.sleep(ctx, wait); err != nil {
			return x.skipCancelled(ctx, task.ID, err)
		}
	}
}

// invoke runs one operator call. The call is detached from run
// cancellation so an in-flight transaction is never cut short, but it
// carries its own deadline.
func (x *execution) invoke(ctx context.Context, op operators.Operator, task dag.TaskDefinition) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.config.TaskTimeout)
	defer cancel()

	x.metrics.inFlight(1)
	defer x.metrics.inFlight(-1)

	return operators.Classify(string(task.Kind), op.Execute(callCtx, task, x.clients))
}

func (x *execution) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if x.sem == nil {
		return nil
	}
	return x.sem.Acquire(ctx, 1)
}

func (x *execution) release() {
	if x.sem != nil {
		x.sem.Release(1)
	}
}

func (x *execution) skipCancelled(ctx context.Context, id string, cause error) error {
	return x.abandon(ctx, id, etlerrors.Wrap(etlerrors.KindCancelled, cause, "Run aborted"))
}

// abandon moves a Ready task to Skipped without running it again
func (x *execution) abandon(ctx context.Context, id string, err error) error {
	x.transition(ctx, id, runstate.EventSkip, err)
	logger.User.Skipf("%s skipped: %s", id, etlerrors.Summary(err))
	return err
}

// propagateFailure marks direct downstream tasks UpstreamFailed and every
// task further down Skipped, each naming root as the cause
func (x *execution) propagateFailure(ctx context.Context, root string, rootErr error) {
	upErr := etlerrors.NewUpstreamFailedError(root, rootErr)
	for _, child := range x.graph.DownstreamOf(root) {
		if x.status(child) != runstate.StatusPending {
			continue
		}
		x.transition(ctx, child, runstate.EventBlock, upErr)
		logger.User.Skipf("%s not run: upstream %s failed", child, root)
	}
	x.skipDescendants(ctx, root, upErr)
}

func (x *execution) skipDescendants(ctx context.Context, root string, err error) {
	for _, id := range x.graph.Descendants(root) {
		if x.status(id) != runstate.StatusPending {
			continue
		}
		x.transition(ctx, id, runstate.EventSkip, err)
		logger.User.Skipf("%s not run: upstream %s did not succeed", id, root)
	}
}

func (x *execution) skipPending(ctx context.Context, err error) {
	for _, id := range x.graph.TopologicalOrder() {
		if x.status(id) == runstate.StatusPending {
			x.transition(ctx, id, runstate.EventSkip, err)
		}
	}
}

// checkPast enforces depends_on_past for task
func (x *execution) checkPast(task dag.TaskDefinition) error {
	if !x.config.DependsOnPast && !task.DependsOnPast {
		return nil
	}
	if x.previous == nil {
		return nil
	}
	prev, ok := x.previous.Tasks[task.ID]
	if !ok || prev.Status == runstate.StatusSucceeded {
		return nil
	}
	return etlerrors.NewDependsOnPastError(task.ID, x.previous.RunKey, prev.Status.String())
}

// loadPrevious fetches the previous schedule's run when any task depends on it
func (x *execution) loadPrevious(ctx context.Context) *runstate.RunInstance {
	if x.trigger.PreviousRunKey == "" || !x.needsPast() {
		return nil
	}
	rec, err := x.ledger.Load(ctx, x.trigger.Pipeline, x.trigger.PreviousRunKey)
	if err != nil {
		if !errors.Is(err, ledger.ErrRunNotFound) {
			logger.Op.WithFields(map[string]interface{}{
				"pipeline": x.trigger.Pipeline,
				"run_key":  x.trigger.PreviousRunKey,
			}).Warnf("Cannot read previous run, depends_on_past not enforced: %v", err)
		}
		return nil
	}
	return rec.Run
}

func (x *execution) needsPast() bool {
	if x.config.DependsOnPast {
		return true
	}
	for _, id := range x.graph.IDs() {
		if task, _ := x.graph.Task(id); task.DependsOnPast {
			return true
		}
	}
	return false
}

func (x *execution) status(id string) runstate.Status {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.run.Tasks[id].Status
}

// transition fires event on the task's state machine, updates its record and
// appends the change to the ledger. It returns the new status and attempt count.
func (x *execution) transition(ctx context.Context, id string, event runstate.Event, cause error) (runstate.Status, int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	state := x.run.Tasks[id]
	from := state.Status
	to, err := x.machines[id].Fire(context.Background(), event)
	if err != nil {
		logger.Op.WithFields(logger.TaskFields(x.trigger.RunKey, id, state.Kind, state.Attempts)).Error(err.Error())
		return from, state.Attempts
	}

	now := x.now()
	state.Status = to
	switch event {
	case runstate.EventDispatch:
		state.Attempts++
		if state.StartedAt == nil {
			state.StartedAt = &now
		}
	case runstate.EventSucceed:
		state.LastError = nil
	}
	if cause != nil {
		state.LastError = runstate.NewErrorInfo(cause)
	}
	if to.IsTerminal() {
		state.FinishedAt = &now
		x.metrics.taskFinished(x.trigger.Pipeline, to.String())
	}

	snapshot := state.Clone()
	t := ledger.Transition{
		TaskID:  id,
		From:    from,
		To:      to,
		Attempt: state.Attempts,
		At:      now,
		Error:   snapshot.LastError,
	}
	if err := x.ledger.RecordTransition(context.WithoutCancel(ctx), x.run.IdempotencyKey, snapshot, t); err != nil {
		logger.Op.WithFields(logger.TaskFields(x.trigger.RunKey, id, state.Kind, state.Attempts)).
			Warnf("Failed to record transition %s -> %s: %v", from, to, err)
	}
	return to, state.Attempts
}

func (x *execution) logDispatch(task dag.TaskDefinition, attempt int) {
	suffix := ""
	if attempt > 1 {
		suffix = fmt.Sprintf(" (attempt %d/%d)", attempt, x.config.Retry.MaxAttempts())
	}
	switch task.Kind {
	case dag.KindStage:
		logger.User.Stagef("Staging %s%s", task.ID, suffix)
	case dag.KindLoadFact, dag.KindLoadDimension:
		logger.User.Loadf("Loading %s%s", task.ID, suffix)
	case dag.KindQualityCheck:
		logger.User.Checkf("Checking %s%s", task.ID, suffix)
	}
	logger.Op.WithFields(logger.TaskFields(x.trigger.RunKey, task.ID, string(task.Kind), attempt)).Debug("Task dispatched")
}

// finish settles the run outcome
func (x *execution) finish(ctx context.Context, elapsed time.Duration) *ExecutionResult {
	x.mu.Lock()
	now := x.now()
	x.run.FinishedAt = &now

	var firstErr error
	failed, succeeded := false, 0
	for _, id := range x.graph.TopologicalOrder() {
		state := x.run.Tasks[id]
		switch state.Status {
		case runstate.StatusSucceeded:
			succeeded++
		case runstate.StatusFailed:
			failed = true
			if firstErr == nil {
				firstErr = fmt.Errorf("task %s failed: %s", id, state.LastError.Message)
			}
		}
	}

	switch {
	case succeeded == len(x.run.Tasks):
		x.run.Outcome = runstate.OutcomeSucceeded
	case failed:
		x.run.Outcome = runstate.OutcomeFailed
	case ctx.Err() != nil:
		x.run.Outcome = runstate.OutcomeAborted
		firstErr = fmt.Errorf("run aborted: %w", ctx.Err())
	default:
		x.run.Outcome = runstate.OutcomeFailed
		firstErr = x.firstSkipError()
	}
	run := x.run.Clone()
	x.mu.Unlock()

	x.metrics.runFinished(run.Pipeline, string(run.Outcome), elapsed)
	x.logFinalProgress(run, elapsed)

	return &ExecutionResult{
		Run:           run,
		Success:       run.Outcome == runstate.OutcomeSucceeded,
		ExecutionTime: elapsed,
		Error:         firstErr,
	}
}

func (x *execution) firstSkipError() error {
	for _, id := range x.graph.TopologicalOrder() {
		state := x.run.Tasks[id]
		if state.Status.IsSkipped() && state.LastError != nil {
			return fmt.Errorf("task %s skipped: %s", id, state.LastError.Message)
		}
	}
	return errors.New("run did not complete")
}
