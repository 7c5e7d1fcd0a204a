// Package prepapi implements the service.Service interface over the exam-prep
// backend's JSON HTTP API.
package prepapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prepsync/internal/logging"
	"prepsync/internal/service"
)

const (
	// DefaultTimeout is the timeout for API calls.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
)

// Executor sends an authenticated request.
type Executor interface {
	Execute(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client implements service.Service.
type Client struct {
	baseURL *url.URL
	exec    Executor
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, exec Executor, timeout time.Duration, logger *logging.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url: %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{baseURL: u, exec: exec, timeout: timeout, logger: logger}, nil
}

type batchTask struct {
	TaskTitle     string         `json:"taskTitle"`
	DayNumber     int            `json:"dayNumber"`
	WeekNumber    int            `json:"weekNumber"`
	Skill         string         `json:"skill,omitempty"`
	InitialStatus service.Status `json:"initialStatus"`
}

type batchRequest struct {
	WeeklyPlanID string      `json:"weeklyPlanId"`
	WeekNumber   int         `json:"weekNumber"`
	Tasks        []batchTask `json:"tasks"`
}

type createRequest struct {
	WeeklyPlanID string `json:"weeklyPlanId"`
	batchTask
	ProgressData json.RawMessage `json:"progressData,omitempty"`
}

type listResponse struct {
	Success   bool             `json:"success"`
	NoRecords bool             `json:"noRecords"`
	Results   []service.Record `json:"results"`
}

type recordResponse struct {
	Success *bool           `json:"success"`
	Result  *service.Record `json:"result"`
}

// ListProgress implements service.Service.
func (c *Client) ListProgress(ctx context.Context, planID string) ([]service.Record, error) {
	var resp listResponse
	err := c.do(ctx, http.MethodGet, "/api/weekly-plans/"+url.PathEscape(planID)+"/task-progress", nil, &resp)
	if service.StatusOf(err) == http.StatusNotFound {
		return nil, service.ErrMissingRecords
	}
	if err != nil {
		return nil, err
	}
	if resp.NoRecords || len(resp.Results) == 0 {
		return nil, service.ErrMissingRecords
	}
	return resp.Results, nil
}

// BatchInitialize implements service.Service.
func (c *Client) BatchInitialize(ctx context.Context, planID string, weekNumber int, tasks []service.Task, initial service.Status) ([]service.Record, error) {
	body := batchRequest{
		WeeklyPlanID: planID,
		WeekNumber:   weekNumber,
		Tasks:        make([]batchTask, 0, len(tasks)),
	}
	for _, t := range tasks {
		body.Tasks = append(body.Tasks, toBatchTask(t, initial))
	}

	var resp listResponse
	if err := c.do(ctx, http.MethodPost, "/api/task-progress/batch-initialize", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &service.APIError{Status: http.StatusOK, Message: "batch initialize reported failure"}
	}
	return resp.Results, nil
}

// CreateRecord implements service.Service.
func (c *Client) CreateRecord(ctx context.Context, planID string, task service.Task, initial service.Status, progressData json.RawMessage) (service.Record, error) {
	body := createRequest{WeeklyPlanID: planID, batchTask: toBatchTask(task, initial), ProgressData: progressData}
	return c.doRecord(ctx, http.MethodPost, "/api/task-progress", body)
}

// UpdateRecord implements service.Service.
func (c *Client) UpdateRecord(ctx context.Context, recordID string, update service.Update) (service.Record, error) {
	return c.doRecord(ctx, http.MethodPatch, "/api/task-progress/"+url.PathEscape(recordID), update)
}

func toBatchTask(t service.Task, initial service.Status) batchTask {
	return batchTask{
		TaskTitle:     t.Title,
		DayNumber:     t.DayNumber,
		WeekNumber:    t.WeekNumber,
		Skill:         t.Skill,
		InitialStatus: initial,
	}
}

// doRecord accepts either a bare record or {success, result} envelope.
func (c *Client) doRecord(ctx context.Context, method, path string, body any) (service.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, method, path, body, &raw); err != nil {
		return service.Record{}, err
	}

	var env recordResponse
	if err := json.Unmarshal(raw, &env); err == nil && env.Result != nil {
		if env.Success != nil && !*env.Success {
			return service.Record{}, &service.APIError{Status: http.StatusOK, Message: "request reported failure"}
		}
		return *env.Result, nil
	}
	var rec service.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return service.Record{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	if rec.ID == "" {
		return service.Record{}, fmt.Errorf("decode %s response: missing record id", path)
	}
	return rec, nil
}

// do sends one request through the executor and decodes a 2xx JSON body
// into out. Non-2xx responses become *service.APIError; transport failures
// become *service.APIError with Status 0.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.exec.Execute(ctx, req)
	if err != nil {
		return wrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &service.APIError{Status: resp.StatusCode, Message: errorMessage(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// wrapError classifies a transport failure.
func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &service.APIError{Status: 0, Message: "request timed out", Err: err}
	}
	return &service.APIError{Status: 0, Err: err}
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from an error
// body, falling back to the trimmed text.
func errorMessage(body []byte) string {
	var v struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &v) == nil {
		if v.Message != "" {
			return v.Message
		}
		if v.Error != "" {
			return v.Error
		}
	}
	return strings.TrimSpace(string(body))
}
