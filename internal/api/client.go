package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldsense/lux.report/internal/httputil"
	"github.com/fieldsense/lux.report/internal/luxdb"
)

// Client calls a running daemon's JSON API. The probe tool uses it to
// watch a live deployment, and bench scripts use it to bracket their
// runs in sessions.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
}

// NewClient creates a client for the daemon at baseURL. A nil
// httpClient gets a 30 second timeout, which suits one-shot tool use.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &Client{
		HTTPClient: httpClient,
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// getJSON fetches path and decodes the body into out. Non-200 replies
// become errors carrying the server's message.
func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchEstimate returns the daemon's current illuminance estimate.
func (c *Client) FetchEstimate() (*EstimateResponse, error) {
	var est EstimateResponse
	if err := c.getJSON("/api/estimate", &est); err != nil {
		return nil, err
	}
	return &est, nil
}

// FetchBounds returns the live floor and ceiling evidence.
func (c *Client) FetchBounds() (*BoundsResponse, error) {
	var bounds BoundsResponse
	if err := c.getJSON("/api/bounds", &bounds); err != nil {
		return nil, err
	}
	return &bounds, nil
}

// FetchStats returns feed state and pipeline counters.
func (c *Client) FetchStats() (*StatsResponse, error) {
	var stats StatsResponse
	if err := c.getJSON("/api/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// FetchVersion returns the daemon's build information.
func (c *Client) FetchVersion() (map[string]string, error) {
	var v map[string]string
	if err := c.getJSON("/api/version", &v); err != nil {
		return nil, err
	}
	return v, nil
}

// StartSession opens a recording session tagged with source and notes.
// The daemon refuses with a conflict while another session is active;
// that surfaces here as an error naming the active session.
func (c *Client) StartSession(source, notes string) (*luxdb.Session, error) {
	payload, err := json.Marshal(map[string]string{"source": source, "notes": notes})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	resp, err := c.HTTPClient.Post(c.BaseURL+"/api/sessions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("start session returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sess luxdb.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession closes the active recording session and returns it with
// its final sample and estimate counts.
func (c *Client) EndSession() (*luxdb.Session, error) {
	resp, err := c.HTTPClient.Post(c.BaseURL+"/api/sessions/end", "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("end session returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sess luxdb.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
