package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/carlosmarte/repometrics/internal/analysis"
	"github.com/carlosmarte/repometrics/internal/domain"
)

// Client is the API client for repometrics
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetReport retrieves the full derived report for a repository
func (c *Client) GetReport(owner, repo string, start, end time.Time, granularity string) (*analysis.Report, error) {
	path := fmt.Sprintf("/api/v1/sources/%s/%s/report", owner, repo)
	params := c.buildTimeParams(start, end, granularity)

	var response struct {
		Data *analysis.Report `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSummary retrieves per-group statistics for a repository
func (c *Client) GetSummary(owner, repo, groupBy string, start, end time.Time, granularity string) ([]analysis.GroupReport, error) {
	path := fmt.Sprintf("/api/v1/sources/%s/%s/summary", owner, repo)
	params := c.buildTimeParams(start, end, granularity)
	if groupBy != "" {
		params.Set("group_by", groupBy)
	}

	var response struct {
		Data []analysis.GroupReport `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetTrends retrieves period trends for a repository
func (c *Client) GetTrends(owner, repo string, start, end time.Time, granularity string) (map[string]analysis.Trend, error) {
	path := fmt.Sprintf("/api/v1/sources/%s/%s/trends", owner, repo)
	params := c.buildTimeParams(start, end, granularity)

	var response struct {
		Data map[string]analysis.Trend `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRuns retrieves collection run history for a repository
func (c *Client) GetRuns(owner, repo string) ([]*domain.CollectionRun, error) {
	path := fmt.Sprintf("/api/v1/sources/%s/%s/runs", owner, repo)

	var response struct {
		Data []*domain.CollectionRun `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) buildTimeParams(start, end time.Time, granularity string) url.Values {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("end", end.Format("2006-01-02"))
	}
	if granularity != "" {
		params.Set("granularity", granularity)
	}
	return params
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
