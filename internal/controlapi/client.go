package controlapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for netravenctl against a running
// worker's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client targeting baseURL (e.g. "http://localhost:8090").
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("controlapi: request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("controlapi: %s", apiErr.Error)
		}
		return fmt.Errorf("controlapi: unexpected status %d from %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Register tells the worker to move job-id into its live schedule set.
func (c *Client) Register(jobID string) error {
	return c.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/register", nil)
}

// Deregister removes job-id from the worker's live schedule set.
func (c *Client) Deregister(jobID string) error {
	return c.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/deregister", nil)
}

// Enable resumes a paused job.
func (c *Client) Enable(jobID string) error {
	return c.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/enable", nil)
}

// Disable pauses an active job.
func (c *Client) Disable(jobID string) error {
	return c.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/disable", nil)
}

// RunNow triggers an immediate out-of-schedule run and returns its job-run id.
func (c *Client) RunNow(jobID string) (string, error) {
	var out struct {
		JobRunID string `json:"job_run_id"`
	}
	if err := c.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/run-now", &out); err != nil {
		return "", err
	}
	return out.JobRunID, nil
}

// CancelRun cancels an in-flight job run by its job-run id.
func (c *Client) CancelRun(jobRunID string) error {
	return c.do(http.MethodPost, "/api/v1/runs/"+jobRunID+"/cancel", nil)
}

// ListSchedules fetches every registered job's next-fire time and state.
func (c *Client) ListSchedules() ([]ScheduleView, error) {
	var out []ScheduleView
	if err := c.do(http.MethodGet, "/api/v1/schedules", &out); err != nil {
		return nil, err
	}
	return out, nil
}
