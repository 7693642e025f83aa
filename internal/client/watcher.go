package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/statuscache"
)

// Config tunes the watcher's connection handling.
type Config struct {
	// ServiceUrl is the base URL of the intake service.
	ServiceUrl string
	// SilenceWindow is how long the watcher tolerates a connection that
	// delivers nothing, heartbeats included, before treating it as dead.
	SilenceWindow time.Duration
	// ReconnectAttempts caps consecutive reconnects. A delivered event
	// resets the count.
	ReconnectAttempts int
	// ReconnectBackoff is the first reconnect delay; it doubles per attempt.
	ReconnectBackoff time.Duration

	HTTPClient *http.Client
}

// Watcher tails one job's progress stream. It runs a small connection state
// machine: connect, consume, reconnect on loss with doubling backoff, and
// stop for good once a terminal event has been observed. The terminal latch
// is unconditional: no reconnect ever follows a terminal event, even if the
// connection drops a moment later.
type Watcher struct {
	config Config
	client *http.Client
}

func NewWatcher(config Config) *Watcher {
	if config.SilenceWindow == 0 {
		config.SilenceWindow = 20 * time.Second
	}
	if config.ReconnectAttempts == 0 {
		config.ReconnectAttempts = 5
	}
	if config.ReconnectBackoff == 0 {
		config.ReconnectBackoff = time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Watcher{config: config, client: client}
}

// Watch streams status updates for jobID, calling onUpdate for every new
// version, and returns the terminal status. onUpdate may be nil. The
// returned status reports success or failure of the job itself; a non-nil
// error means the watcher could not find out.
func (w *Watcher) Watch(ctx context.Context, jobID string, onUpdate func(statuscache.JobStatus)) (statuscache.JobStatus, error) {
	logger := zap.S().Named("watcher").With("job_id", jobID)

	var (
		lastStatus       statuscache.JobStatus
		lastVersion      uint64
		terminalObserved bool
		reconnects       int
		lastErr          error
	)

	for {
		if reconnects > 0 {
			backoff := w.config.ReconnectBackoff << (reconnects - 1)
			logger.Infow("reconnecting", "attempt", reconnects, "backoff", backoff)
			select {
			case <-ctx.Done():
				return lastStatus, ctx.Err()
			case <-time.After(backoff):
			}
		}

		delivered, err := w.consume(ctx, jobID, &lastStatus, &lastVersion, &terminalObserved, onUpdate)
		if terminalObserved {
			return lastStatus, nil
		}
		if ctx.Err() != nil {
			return lastStatus, ctx.Err()
		}
		if err != nil {
			var notFound *ErrJobNotFound
			if errors.As(err, &notFound) {
				return lastStatus, err
			}
			lastErr = err
		}

		// progress on the wire proves the service is alive, so the
		// reconnect budget starts over
		if delivered {
			reconnects = 0
		}
		reconnects++
		if reconnects > w.config.ReconnectAttempts {
			if lastErr == nil {
				lastErr = errors.New("stream ended without a terminal event")
			}
			return lastStatus, NewErrConnectionLost(w.config.ReconnectAttempts, lastErr)
		}
	}
}

// consume runs a single connection until it breaks or a terminal event
// arrives. It reports whether at least one event was delivered.
func (w *Watcher) consume(ctx context.Context, jobID string, lastStatus *statuscache.JobStatus, lastVersion *uint64, terminalObserved *bool, onUpdate func(statuscache.JobStatus)) (bool, error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/jobs/%s/stream", strings.TrimRight(w.config.ServiceUrl, "/"), jobID)
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to create stream request")
	}
	req.Header.Set("Accept", "text/event-stream")
	if *lastVersion > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(*lastVersion, 10))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "failed to connect")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, NewErrJobNotFound(jobID)
	default:
		return false, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	events := make(chan wireEvent)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		readErr <- readEvents(connCtx, resp.Body, events)
	}()

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()

		case <-time.After(w.config.SilenceWindow):
			// nothing on the wire, not even a heartbeat
			cancel()
			return delivered, errors.New("stream went silent")

		case event, ok := <-events:
			if !ok {
				return delivered, <-readErr
			}
			if event.kind == "heartbeat" {
				continue
			}

			var status statuscache.JobStatus
			if err := json.Unmarshal([]byte(event.data), &status); err != nil {
				return delivered, errors.Wrap(err, "malformed event payload")
			}
			if status.Version <= *lastVersion {
				continue
			}

			delivered = true
			*lastStatus = status
			*lastVersion = status.Version
			// latch first: once a terminal event is on the wire nothing,
			// not even a failing callback, may lead back to a reconnect
			if status.State.IsTerminal() {
				*terminalObserved = true
			}
			if onUpdate != nil {
				onUpdate(status)
			}
			if *terminalObserved {
				return delivered, nil
			}
		}
	}
}

type wireEvent struct {
	kind string
	data string
}

// readEvents parses the event-stream framing line by line and pushes
// complete events to out. Returns when the stream ends.
func readEvents(ctx context.Context, body io.Reader, out chan<- wireEvent) error {
	reader := bufio.NewReader(body)
	var event wireEvent
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "stream read failed")
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event.kind != "" {
				select {
				case out <- event:
				case <-ctx.Done():
					return nil
				}
			}
			event = wireEvent{}
		case strings.HasPrefix(line, "event: "):
			event.kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.data = strings.TrimPrefix(line, "data: ")
		}
	}
}
