package docgen

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Task states reported by the generation service.
const (
	TaskStatePending = "pending"
	TaskStateRunning = "running"
	TaskStateDone    = "done"
	TaskStateFailed  = "failed"
)

// Config holds everything needed to talk to the document generation service.
type Config struct {
	ApiUrl         string
	ApiToken       string
	CallbackUrl    string
	CallbackSeed   string
	AttemptTimeout time.Duration
}

// Client is the HTTP client for the external document normalization and
// generation service. The service is opaque: it accepts a case record,
// reports progress, and eventually produces document locations.
type Client struct {
	config     Config
	httpClient *http.Client
}

// TaskRequest is the body sent when registering a generation task.
type TaskRequest struct {
	CaseRecord json.RawMessage `json:"case_record"`
	DataID     string          `json:"data_id"`
	Callback   string          `json:"callback,omitempty"`
	Seed       string          `json:"seed,omitempty"`
}

type taskCreateResponse struct {
	TaskID string `json:"task_id"`
}

// TaskStatus is the generation service's view of a task. DataID carries our
// job ID back to us on callbacks and polls.
type TaskStatus struct {
	TaskID          string          `json:"task_id"`
	DataID          string          `json:"data_id"`
	State           string          `json:"state"`
	Phase           string          `json:"phase,omitempty"`
	ProgressPercent int             `json:"progress_percent"`
	Message         string          `json:"message,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMsg        string          `json:"err_msg,omitempty"`
}

// CallbackPayload is the webhook body the generation service posts to us.
// Content is the JSON encoding of a TaskStatus; Checksum authenticates it.
type CallbackPayload struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

func NewClient(cfg Config) *Client {
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.AttemptTimeout,
		},
	}
}

// CreateTask registers a new generation task for the case record and returns
// the service-side task id. dataID is echoed back on every progress report.
func (c *Client) CreateTask(ctx context.Context, caseRecord json.RawMessage, dataID string) (string, error) {
	reqBody := TaskRequest{
		CaseRecord: caseRecord,
		DataID:     dataID,
	}
	if c.config.CallbackUrl != "" {
		reqBody.Callback = c.config.CallbackUrl
		reqBody.Seed = c.config.CallbackSeed
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", NewPermanentError(errors.Wrap(err, "failed to marshal task request"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ApiUrl+"/v1/generate/tasks", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", NewPermanentError(errors.Wrap(err, "failed to create request"))
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", NewTransientError(errors.Wrap(err, "failed to reach generation service"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewTransientError(errors.Wrap(err, "failed to read response"))
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return "", err
	}

	var result taskCreateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", NewPermanentError(errors.Wrapf(err, "failed to parse response: %s", string(body)))
	}
	if result.TaskID == "" {
		return "", NewPermanentError(errors.New("generation service returned no task id"))
	}

	return result.TaskID, nil
}

// GetTask queries the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/generate/tasks/%s", c.config.ApiUrl, taskID), nil)
	if err != nil {
		return nil, NewPermanentError(errors.Wrap(err, "failed to create request"))
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewTransientError(errors.Wrap(err, "failed to reach generation service"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransientError(errors.Wrap(err, "failed to read response"))
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var status TaskStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, NewPermanentError(errors.Wrapf(err, "failed to parse response: %s", string(body)))
	}

	return &status, nil
}

// VerifyCallback checks the webhook checksum: SHA256(dataID + seed + content).
func (c *Client) VerifyCallback(checksum, content, dataID string) bool {
	hash := sha256.Sum256([]byte(dataID + c.config.CallbackSeed + content))
	return checksum == hex.EncodeToString(hash[:])
}

func (c *Client) setHeaders(req *http.Request) {
	if c.config.ApiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.ApiToken)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// classifyStatus maps an HTTP status to the retry taxonomy: 5xx plus request
// timeout and throttling are transient, everything else non-2xx is permanent.
func classifyStatus(statusCode int, body []byte) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode >= 500,
		statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests:
		return NewTransientError(errors.Errorf("generation service unavailable: status %d: %s", statusCode, string(body)))
	default:
		return NewPermanentError(errors.Errorf("generation service rejected request: status %d: %s", statusCode, string(body)))
	}
}
