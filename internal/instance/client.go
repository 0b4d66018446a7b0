// pattern: Imperative Shell
package instance

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a thin HTTP client for a running dmnexplorer instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Tree fetches the decision tree as raw JSON.
func (c *Client) Tree() ([]byte, error) {
	return c.do(http.MethodGet, "/api/tree")
}

// Validate asks the instance to validate a decision file. It returns the
// name of the surface that receives the response and the run opened there.
func (c *Client) Validate(path string) (string, int, error) {
	body, err := c.do(http.MethodPost, "/api/validate?path="+url.QueryEscape(path))
	if err != nil {
		return "", 0, err
	}
	var resp struct {
		Surface string `json:"surface"`
		Run     int    `json:"run"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Surface, resp.Run, nil
}

// Output fetches a surface snapshot as raw JSON.
func (c *Client) Output(name string) ([]byte, error) {
	return c.do(http.MethodGet, "/api/output?name="+url.QueryEscape(name))
}

// OutputRun fetches the lines and outcome of one run of a surface as raw JSON.
func (c *Client) OutputRun(name string, run int) ([]byte, error) {
	return c.do(http.MethodGet, "/api/output?name="+url.QueryEscape(name)+"&run="+strconv.Itoa(run))
}

// Outputs lists the instance's surfaces, most recently used first, as raw JSON.
func (c *Client) Outputs() ([]byte, error) {
	return c.do(http.MethodGet, "/api/outputs")
}

func (c *Client) do(method, path string) ([]byte, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to dmnexplorer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dmnexplorer returned status %d: %s", resp.StatusCode, extractErrorMessage(body))
	}
	return body, nil
}

// extractErrorMessage returns the "error" field of a JSON body, or the
// raw body when there is none.
func extractErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(body)
}
