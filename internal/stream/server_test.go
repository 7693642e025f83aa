package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow/internal/statuscache"
)

type sseEvent struct {
	ID   uint64
	Type string
	Data string
}

// readEvent parses one event block from the stream.
func readEvent(t *testing.T, r *bufio.Reader) (sseEvent, error) {
	t.Helper()
	var event sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return event, err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event.Type != "" {
				return event, nil
			}
		case strings.HasPrefix(line, "id: "):
			id, err := strconv.ParseUint(strings.TrimPrefix(line, "id: "), 10, 64)
			require.NoError(t, err)
			event.ID = id
		case strings.HasPrefix(line, "event: "):
			event.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newStreamServer(t *testing.T, cache *statuscache.Cache, heartbeat time.Duration) *httptest.Server {
	t.Helper()
	streamServer := NewServer(cache, heartbeat)
	router := chi.NewRouter()
	router.Get("/jobs/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		streamServer.ServeJob(w, r, chi.URLParam(r, "id"))
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func attach(t *testing.T, server *httptest.Server, jobID string, lastEventID string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+"/jobs/"+jobID+"/stream", nil)
	require.NoError(t, err)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func TestStreamDeliversProgressAndCloses(t *testing.T) {
	cache := statuscache.NewCache(time.Minute)
	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning, ProgressPercent: 10})
	server := newStreamServer(t, cache, time.Minute)

	resp, reader := attach(t, server, "job-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	first, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventProgress, first.Type)

	var status statuscache.JobStatus
	require.NoError(t, json.Unmarshal([]byte(first.Data), &status))
	require.Equal(t, statuscache.StateRunning, status.State)
	require.Equal(t, 10, status.ProgressPercent)

	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning, ProgressPercent: 70})
	second, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventProgress, second.Type)
	require.Greater(t, second.ID, first.ID)

	now := time.Now()
	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateSucceeded, ProgressPercent: 100, EndedAt: &now})
	terminal, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventComplete, terminal.Type)
	require.Greater(t, terminal.ID, second.ID)

	// server must close after the terminal event
	_, err = readEvent(t, reader)
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamAttachToFinishedJob(t *testing.T) {
	cache := statuscache.NewCache(time.Minute)
	now := time.Now()
	cache.Put("job-1", statuscache.JobStatus{
		State:   statuscache.StateFailed,
		Message: "generation failed",
		ErrorDetail: &statuscache.ErrorDetail{
			Kind:    statuscache.FailurePermanent,
			Message: "boom",
		},
		EndedAt: &now,
	})
	server := newStreamServer(t, cache, time.Minute)

	_, reader := attach(t, server, "job-1", "")

	event, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventError, event.Type)

	var status statuscache.JobStatus
	require.NoError(t, json.Unmarshal([]byte(event.Data), &status))
	require.NotNil(t, status.ErrorDetail)
	require.Equal(t, statuscache.FailurePermanent, status.ErrorDetail.Kind)

	_, err = readEvent(t, reader)
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamHeartbeats(t *testing.T) {
	cache := statuscache.NewCache(time.Minute)
	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning})
	server := newStreamServer(t, cache, 10*time.Millisecond)

	_, reader := attach(t, server, "job-1", "")

	first, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventProgress, first.Type)

	beat, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventHeartbeat, beat.Type)
}

func TestStreamResumeSkipsSeenVersions(t *testing.T) {
	cache := statuscache.NewCache(time.Minute)
	current := cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning, ProgressPercent: 30})
	server := newStreamServer(t, cache, time.Minute)

	_, reader := attach(t, server, "job-1", strconv.FormatUint(current.Version, 10))

	done := make(chan sseEvent, 1)
	go func() {
		event, err := readEvent(t, reader)
		if err == nil {
			done <- event
		}
	}()

	// the already-seen snapshot must not be replayed
	select {
	case event := <-done:
		t.Fatalf("unexpected replay of version %d", event.ID)
	case <-time.After(100 * time.Millisecond):
	}

	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning, ProgressPercent: 60})
	select {
	case event := <-done:
		require.Equal(t, EventProgress, event.Type)
		require.Greater(t, event.ID, current.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the next update")
	}
}

func TestStreamResumeToFinishedJobClosesImmediately(t *testing.T) {
	cache := statuscache.NewCache(time.Minute)
	now := time.Now()
	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning, ProgressPercent: 80})
	terminal := cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateSucceeded, ProgressPercent: 100, EndedAt: &now})
	server := newStreamServer(t, cache, 10*time.Millisecond)

	// the client saw the terminal event before the connection dropped
	_, reader := attach(t, server, "job-1", strconv.FormatUint(terminal.Version, 10))

	event, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventComplete, event.Type)
	require.Equal(t, terminal.Version, event.ID)

	_, err = readEvent(t, reader)
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamUnknownJob(t *testing.T) {
	server := newStreamServer(t, statuscache.NewCache(time.Minute), time.Minute)

	resp, err := http.Get(server.URL + "/jobs/no-such-job/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamEvictionMidSession(t *testing.T) {
	cache := statuscache.NewCache(time.Minute)
	cache.Put("job-1", statuscache.JobStatus{State: statuscache.StateRunning})
	server := newStreamServer(t, cache, time.Minute)

	_, reader := attach(t, server, "job-1", "")

	_, err := readEvent(t, reader)
	require.NoError(t, err)

	cache.Delete("job-1")

	event, err := readEvent(t, reader)
	require.NoError(t, err)
	require.Equal(t, EventError, event.Type)

	_, err = readEvent(t, reader)
	require.ErrorIs(t, err, io.EOF)
}
