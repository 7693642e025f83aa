package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/statuscache"
	"github.com/caseflow/caseflow/pkg/metrics"
	"github.com/caseflow/caseflow/pkg/requestid"
)

// Event types emitted on the wire. Progress and the two terminal kinds carry
// the job status JSON; heartbeats carry an empty object.
const (
	EventProgress  = "progress"
	EventHeartbeat = "heartbeat"
	EventComplete  = "complete"
	EventError     = "error"
)

// Server pushes job status updates to clients over server-sent events. Each
// session tails one job; the server closes the stream right after delivering
// a terminal event, there is nothing to say about a finished job.
type Server struct {
	cache             *statuscache.Cache
	heartbeatInterval time.Duration
}

func NewServer(cache *statuscache.Cache, heartbeatInterval time.Duration) *Server {
	return &Server{
		cache:             cache,
		heartbeatInterval: heartbeatInterval,
	}
}

// ServeJob runs one streaming session over the request's lifetime. The
// first write is always the current snapshot, so a client that attaches
// to an already finished job still gets exactly one terminal event.
// Last-Event-ID carries the status version, letting a reconnecting client
// skip snapshots it has already seen.
func (s *Server) ServeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	logger := zap.S().Named("stream").With("job_id", jobID, "request_id", requestid.FromRequest(r))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	status, notify, err := s.cache.Watch(jobID)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.StreamSessionOpened()
	defer metrics.StreamSessionClosed()
	logger.Info("stream session opened")

	var lastVersion uint64
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		if v, err := strconv.ParseUint(id, 10, 64); err == nil {
			lastVersion = v
		}
	}

	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		// the terminal snapshot is always delivered, even when the client's
		// Last-Event-ID says it has seen this version: a resuming client
		// recognizes the duplicate, and the session must close either way
		if status.State.IsTerminal() {
			if err := writeEvent(w, eventType(status), status); err != nil {
				logger.Infow("client went away", "error", err)
				return
			}
			flusher.Flush()
			logger.Infow("terminal event delivered, closing stream", "state", status.State)
			return
		}

		if status.Version > lastVersion {
			if err := writeEvent(w, eventType(status), status); err != nil {
				logger.Infow("client went away", "error", err)
				return
			}
			flusher.Flush()
			lastVersion = status.Version
		}

		select {
		case <-r.Context().Done():
			logger.Info("stream session closed by client")
			return

		case <-heartbeat.C:
			if err := writeHeartbeat(w); err != nil {
				logger.Infow("client went away", "error", err)
				return
			}
			flusher.Flush()

		case <-notify:
		}

		status, notify, err = s.cache.Watch(jobID)
		if err != nil {
			// evicted mid-stream; tell the client instead of going silent
			_ = writeEvent(w, EventError, statuscache.JobStatus{
				JobID:   jobID,
				State:   statuscache.StateFailed,
				Message: "job record expired",
				Version: lastVersion + 1,
			})
			flusher.Flush()
			logger.Warn("job evicted while streaming")
			return
		}
	}
}

// eventType maps a status to its wire event name.
func eventType(status statuscache.JobStatus) string {
	switch status.State {
	case statuscache.StateSucceeded:
		return EventComplete
	case statuscache.StateFailed:
		return EventError
	default:
		return EventProgress
	}
}

func writeEvent(w http.ResponseWriter, kind string, status statuscache.JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", status.Version, kind, data)
	return err
}

func writeHeartbeat(w http.ResponseWriter) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", EventHeartbeat)
	return err
}
