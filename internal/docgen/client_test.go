package docgen_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow/internal/docgen"
)

func TestCreateTask(t *testing.T) {
	t.Run("returns the task id on success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/generate/tasks", r.URL.Path)
			require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var req docgen.TaskRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "job-42", req.DataID)
			assert.JSONEq(t, `{"caseNumber":"A-1"}`, string(req.CaseRecord))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"task_id":"task-7"}`))
		}))
		defer srv.Close()

		client := docgen.NewClient(docgen.Config{ApiUrl: srv.URL, ApiToken: "secret"})
		taskID, err := client.CreateTask(context.Background(), json.RawMessage(`{"caseNumber":"A-1"}`), "job-42")
		require.NoError(t, err)
		assert.Equal(t, "task-7", taskID)
	})

	t.Run("classifies 5xx as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := docgen.NewClient(docgen.Config{ApiUrl: srv.URL})
		_, err := client.CreateTask(context.Background(), json.RawMessage(`{}`), "job-1")
		require.Error(t, err)
		assert.True(t, docgen.IsTransient(err))
	})

	t.Run("classifies 4xx as permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "malformed case record", http.StatusBadRequest)
		}))
		defer srv.Close()

		client := docgen.NewClient(docgen.Config{ApiUrl: srv.URL})
		_, err := client.CreateTask(context.Background(), json.RawMessage(`{}`), "job-1")
		require.Error(t, err)
		assert.False(t, docgen.IsTransient(err))
	})

	t.Run("classifies connection failure as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		client := docgen.NewClient(docgen.Config{ApiUrl: srv.URL, AttemptTimeout: time.Second})
		_, err := client.CreateTask(context.Background(), json.RawMessage(`{}`), "job-1")
		require.Error(t, err)
		assert.True(t, docgen.IsTransient(err))
	})

	t.Run("sends callback parameters when configured", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req docgen.TaskRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "https://caseflow.example.com/api/v1/callbacks/docgen", req.Callback)
			assert.Equal(t, "s33d", req.Seed)
			_, _ = w.Write([]byte(`{"task_id":"task-1"}`))
		}))
		defer srv.Close()

		client := docgen.NewClient(docgen.Config{
			ApiUrl:       srv.URL,
			CallbackUrl:  "https://caseflow.example.com/api/v1/callbacks/docgen",
			CallbackSeed: "s33d",
		})
		_, err := client.CreateTask(context.Background(), json.RawMessage(`{}`), "job-1")
		require.NoError(t, err)
	})
}

func TestGetTask(t *testing.T) {
	t.Run("parses the task status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/generate/tasks/task-7", r.URL.Path)
			_, _ = w.Write([]byte(`{"task_id":"task-7","data_id":"job-42","state":"running","phase":"rendering","progress_percent":40,"message":"rendering documents"}`))
		}))
		defer srv.Close()

		client := docgen.NewClient(docgen.Config{ApiUrl: srv.URL})
		status, err := client.GetTask(context.Background(), "task-7")
		require.NoError(t, err)
		assert.Equal(t, docgen.TaskStateRunning, status.State)
		assert.Equal(t, "rendering", status.Phase)
		assert.Equal(t, 40, status.ProgressPercent)
		assert.Equal(t, "job-42", status.DataID)
	})

	t.Run("treats unparsable bodies as permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>not json</html>`))
		}))
		defer srv.Close()

		client := docgen.NewClient(docgen.Config{ApiUrl: srv.URL})
		_, err := client.GetTask(context.Background(), "task-7")
		require.Error(t, err)
		assert.False(t, docgen.IsTransient(err))
	})
}

func TestVerifyCallback(t *testing.T) {
	client := docgen.NewClient(docgen.Config{CallbackSeed: "s33d"})

	content := `{"task_id":"task-7","state":"done"}`
	sum := sha256.Sum256([]byte("job-42" + "s33d" + content))
	checksum := hex.EncodeToString(sum[:])

	assert.True(t, client.VerifyCallback(checksum, content, "job-42"))
	assert.False(t, client.VerifyCallback(checksum, content, "job-43"))
	assert.False(t, client.VerifyCallback("deadbeef", content, "job-42"))
}
