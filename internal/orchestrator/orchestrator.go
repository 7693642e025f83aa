package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	api "github.com/caseflow/caseflow/api/v1alpha1"
	"github.com/caseflow/caseflow/internal/docgen"
	"github.com/caseflow/caseflow/internal/events"
	"github.com/caseflow/caseflow/internal/statuscache"
	"github.com/caseflow/caseflow/pkg/metrics"
)

// GenerationClient is the surface of the external document generation
// service the orchestrator depends on.
type GenerationClient interface {
	CreateTask(ctx context.Context, caseRecord json.RawMessage, dataID string) (string, error)
	GetTask(ctx context.Context, taskID string) (*docgen.TaskStatus, error)
	VerifyCallback(checksum, content, dataID string) bool
}

// Settings are the retry/poll knobs. The defaults were chosen empirically,
// not derived from any SLA; every one of them is configurable.
type Settings struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// RetryBackoff is the first backoff interval; it doubles per retry.
	RetryBackoff time.Duration
	// PollInterval drives the fallback polling loop for deployments where
	// the generation service cannot call back.
	PollInterval time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PollInterval: 2 * time.Second,
	}
}

// Orchestrator owns the background generation pipeline. It is the only
// writer of the status cache: every progress report, from webhook or poll,
// funnels through the per-job run loop before it touches the cache.
type Orchestrator struct {
	cache    *statuscache.Cache
	client   GenerationClient
	producer *events.EventProducer
	settings Settings

	mu        sync.Mutex
	callbacks map[string]chan *docgen.TaskStatus
}

func New(cache *statuscache.Cache, client GenerationClient, producer *events.EventProducer, settings Settings) *Orchestrator {
	return &Orchestrator{
		cache:     cache,
		client:    client,
		producer:  producer,
		settings:  settings,
		callbacks: make(map[string]chan *docgen.TaskStatus),
	}
}

// Submit registers a new generation job and returns its id without waiting
// for the external service. The background run inherits the caller's context
// values but not its cancellation: closing the originating request must not
// kill the job.
func (o *Orchestrator) Submit(ctx context.Context, record api.CaseRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to encode case record: %w", err)
	}

	jobID := uuid.NewString()

	o.mu.Lock()
	o.callbacks[jobID] = make(chan *docgen.TaskStatus, 16)
	o.mu.Unlock()

	o.cache.Put(jobID, statuscache.JobStatus{
		State:   statuscache.StateQueued,
		Message: "submission accepted",
	})
	metrics.IncreaseJobsSubmittedTotalMetric()
	o.emitEvent(ctx, events.JobCreatedKind, events.JobEvent{JobID: jobID, State: string(statuscache.StateQueued)})

	go o.run(context.WithoutCancel(ctx), jobID, payload)

	return jobID, nil
}

// Status is a read-through to the cache for the polling endpoint.
func (o *Orchestrator) Status(jobID string) (statuscache.JobStatus, error) {
	status, err := o.cache.Get(jobID)
	if err != nil {
		return statuscache.JobStatus{}, NewErrUnknownJob(jobID)
	}
	return status, nil
}

// HandleCallback verifies and routes a webhook delivery to the job's run
// loop. Deliveries for finished or unknown jobs return ErrUnknownJob; the
// handler treats those as harmless duplicates.
func (o *Orchestrator) HandleCallback(payload docgen.CallbackPayload) error {
	var status docgen.TaskStatus
	if err := json.Unmarshal([]byte(payload.Content), &status); err != nil {
		return NewErrInvalidCallback("unparsable content")
	}
	if status.DataID == "" {
		return NewErrInvalidCallback("missing data id")
	}
	if !o.client.VerifyCallback(payload.Checksum, payload.Content, status.DataID) {
		return NewErrInvalidCallback("checksum mismatch")
	}

	o.mu.Lock()
	ch, ok := o.callbacks[status.DataID]
	o.mu.Unlock()
	if !ok {
		return NewErrUnknownJob(status.DataID)
	}

	select {
	case ch <- &status:
	default:
		// the run loop is behind; the poll fallback will catch up
		zap.S().Named("orchestrator").Warnw("dropping callback, job channel full", "job_id", status.DataID)
	}
	return nil
}

// run drives one job to a terminal state. Nothing it does may surface as an
// error to the submitter; every failure lands in the cache.
func (o *Orchestrator) run(ctx context.Context, jobID string, payload json.RawMessage) {
	logger := zap.S().Named("orchestrator").With("job_id", jobID)

	defer o.dropCallbackChan(jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("pipeline panicked", "panic", r)
			o.finish(ctx, jobID, statuscache.JobStatus{
				State:   statuscache.StateFailed,
				Message: "internal pipeline failure",
				ErrorDetail: &statuscache.ErrorDetail{
					Kind:    statuscache.FailurePermanent,
					Message: fmt.Sprintf("panic: %v", r),
				},
			})
		}
	}()

	taskID, attempts, err := o.createTaskWithRetry(ctx, jobID, payload)
	if err != nil {
		kind := statuscache.FailurePermanent
		if docgen.IsTransient(err) {
			kind = statuscache.FailureTransient
		}
		logger.Errorw("failed to create generation task", "error", err, "attempts", attempts)
		o.finish(ctx, jobID, statuscache.JobStatus{
			State:   statuscache.StateFailed,
			Message: "could not start document generation",
			ErrorDetail: &statuscache.ErrorDetail{
				Kind:     kind,
				Message:  err.Error(),
				Attempts: attempts,
			},
		})
		return
	}

	logger.Infow("generation task accepted", "task_id", taskID)
	o.cache.Put(jobID, statuscache.JobStatus{
		State:   statuscache.StateRunning,
		Phase:   "accepted",
		Message: "document generation started",
	})

	o.await(ctx, jobID, taskID, logger)
}

// await consumes progress from the per-job callback channel and the polling
// fallback, whichever reports first, until a terminal state is applied.
func (o *Orchestrator) await(ctx context.Context, jobID, taskID string, logger *zap.SugaredLogger) {
	o.mu.Lock()
	ch := o.callbacks[jobID]
	o.mu.Unlock()

	ticker := jitterbug.New(o.settings.PollInterval, &jitterbug.Norm{Stdev: o.settings.PollInterval / 10, Mean: 0})
	defer ticker.Stop()

	pollFailures := 0
	for {
		select {
		case <-ctx.Done():
			logger.Warn("shutting down with job still in flight")
			return

		case status := <-ch:
			if o.apply(ctx, jobID, status) {
				return
			}

		case <-ticker.C:
			status, err := o.client.GetTask(ctx, taskID)
			if err != nil {
				if !docgen.IsTransient(err) {
					logger.Errorw("generation task lookup rejected", "error", err)
					o.finish(ctx, jobID, statuscache.JobStatus{
						State:   statuscache.StateFailed,
						Message: "document generation failed",
						ErrorDetail: &statuscache.ErrorDetail{
							Kind:    statuscache.FailurePermanent,
							Message: err.Error(),
						},
					})
					return
				}

				pollFailures++
				metrics.IncreaseDocgenRetriesTotalMetric()
				logger.Warnw("generation service unreachable", "error", err, "consecutive_failures", pollFailures)
				if pollFailures > o.settings.MaxRetries {
					o.finish(ctx, jobID, statuscache.JobStatus{
						State:   statuscache.StateFailed,
						Message: "lost contact with the generation service",
						ErrorDetail: &statuscache.ErrorDetail{
							Kind:     statuscache.FailureTransient,
							Message:  err.Error(),
							Attempts: pollFailures,
						},
					})
					return
				}
				continue
			}
			pollFailures = 0
			if o.apply(ctx, jobID, status) {
				return
			}
		}
	}
}

// apply translates one service-side task report into a cache mutation.
// Returns true once the job is terminal. Duplicate reports collapse: a
// report that changes nothing does not bump the version, and a report
// arriving after the terminal write is ignored.
func (o *Orchestrator) apply(ctx context.Context, jobID string, status *docgen.TaskStatus) bool {
	current, err := o.cache.Get(jobID)
	if err != nil {
		// evicted under us; nothing left to narrate
		return true
	}
	if current.State.IsTerminal() {
		return true
	}

	switch status.State {
	case docgen.TaskStateDone:
		o.finish(ctx, jobID, statuscache.JobStatus{
			State:   statuscache.StateSucceeded,
			Message: "documents generated",
			Result:  status.Result,
		})
		return true

	case docgen.TaskStateFailed:
		msg := status.ErrorMsg
		if msg == "" {
			msg = "generation service reported failure"
		}
		o.finish(ctx, jobID, statuscache.JobStatus{
			State:   statuscache.StateFailed,
			Message: "document generation failed",
			ErrorDetail: &statuscache.ErrorDetail{
				Kind:    statuscache.FailurePermanent,
				Message: msg,
			},
		})
		return true

	default:
		// progressPercent never moves backwards while running
		progress := status.ProgressPercent
		if progress < current.ProgressPercent {
			progress = current.ProgressPercent
		}
		if progress > 100 {
			progress = 100
		}

		phase := status.Phase
		if phase == "" {
			phase = current.Phase
		}
		message := status.Message
		if message == "" {
			message = current.Message
		}

		if current.State == statuscache.StateRunning &&
			current.Phase == phase &&
			current.ProgressPercent == progress &&
			current.Message == message {
			return false
		}

		o.cache.Put(jobID, statuscache.JobStatus{
			State:           statuscache.StateRunning,
			Phase:           phase,
			ProgressPercent: progress,
			Message:         message,
		})
		return false
	}
}

// finish performs the unique terminal write for a job. It re-reads the
// current state so duplicate completion signals can never produce a second
// terminal version.
func (o *Orchestrator) finish(ctx context.Context, jobID string, terminal statuscache.JobStatus) {
	current, err := o.cache.Get(jobID)
	if err == nil && current.State.IsTerminal() {
		return
	}

	now := time.Now()
	terminal.EndedAt = &now
	if terminal.State == statuscache.StateSucceeded {
		terminal.ProgressPercent = 100
	}
	stored := o.cache.Put(jobID, terminal)

	metrics.IncreaseJobsFinishedTotalMetric(string(terminal.State))

	event := events.JobEvent{JobID: jobID, State: string(terminal.State), Message: terminal.Message}
	if terminal.ErrorDetail != nil {
		event.ErrorMsg = terminal.ErrorDetail.Message
	}
	o.emitEvent(ctx, events.JobFinishedKind, event)

	zap.S().Named("orchestrator").Infow("job finished",
		"job_id", jobID, "state", terminal.State, "version", stored.Version)
}

// createTaskWithRetry retries transient registration failures with doubling
// backoff. It reports how many attempts were made in total.
func (o *Orchestrator) createTaskWithRetry(ctx context.Context, jobID string, payload json.RawMessage) (string, int, error) {
	var lastErr error
	backoff := o.settings.RetryBackoff

	for attempt := 1; attempt <= o.settings.MaxRetries+1; attempt++ {
		taskID, err := o.client.CreateTask(ctx, payload, jobID)
		if err == nil {
			return taskID, attempt, nil
		}
		lastErr = err

		if !docgen.IsTransient(err) || attempt == o.settings.MaxRetries+1 {
			return "", attempt, lastErr
		}

		metrics.IncreaseDocgenRetriesTotalMetric()
		o.cache.Put(jobID, statuscache.JobStatus{
			State:   statuscache.StateQueued,
			Message: fmt.Sprintf("generation service unavailable, retrying (%d/%d)", attempt, o.settings.MaxRetries),
		})

		select {
		case <-ctx.Done():
			return "", attempt, lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", o.settings.MaxRetries + 1, lastErr
}

func (o *Orchestrator) dropCallbackChan(jobID string) {
	o.mu.Lock()
	delete(o.callbacks, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) emitEvent(ctx context.Context, kind string, event events.JobEvent) {
	if o.producer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := o.producer.Write(ctx, kind, bytes.NewReader(data)); err != nil {
		zap.S().Named("orchestrator").Warnw("failed to publish job event", "error", err, "kind", kind)
	}
}
