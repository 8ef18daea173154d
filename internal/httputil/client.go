// Package httputil provides the HTTP plumbing shared by the API server
// and the tools that call it: JSON response writers on the server side,
// and a swappable client interface so daemon-facing tools can be tested
// without a running daemon.
package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the transport seam used by API clients. Production code
// wraps *http.Client via NewStandardClient; tests queue canned replies
// on a MockHTTPClient.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts *http.Client to the HTTPClient interface.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, falling back to http.DefaultClient when c
// is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

func (c *StandardClient) Get(url string) (*http.Response, error) {
	return c.Client.Get(url)
}

func (c *StandardClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return c.Client.Post(url, contentType, body)
}

// MockHTTPClient replays a queue of canned replies in order and records
// every request it receives. An exhausted queue is an error, so a test
// that makes more calls than it scripted fails loudly instead of
// silently seeing empty 200s.
type MockHTTPClient struct {
	mu       sync.Mutex
	requests []*http.Request
	queue    []mockReply
	next     int
}

type mockReply struct {
	status int
	body   string
	header http.Header
	err    error
}

// NewMockHTTPClient returns an empty mock. Queue replies with
// AddResponse, AddJSONResponse, or AddErrorResponse before use.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a reply with the given status and literal body.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{status: status, body: body, header: make(http.Header)})
	return m
}

// AddJSONResponse queues a reply whose body is the JSON encoding of v,
// with the content type set accordingly.
func (m *MockHTTPClient) AddJSONResponse(status int, v interface{}) *MockHTTPClient {
	data, err := json.Marshal(v)
	if err != nil {
		// A fixture that cannot marshal is a bug in the test itself.
		panic(fmt.Sprintf("httputil: cannot marshal mock response: %v", err))
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{status: status, body: string(data), header: header})
	return m
}

// AddErrorResponse queues a transport-level failure.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
	return m
}

// Do records the request and returns the next queued reply.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.next >= len(m.queue) {
		return nil, fmt.Errorf("httputil: no canned response for %s %s", req.Method, req.URL)
	}
	reply := m.queue[m.next]
	m.next++

	if reply.err != nil {
		return nil, reply.err
	}
	return &http.Response{
		StatusCode: reply.status,
		Body:       io.NopCloser(bytes.NewBufferString(reply.body)),
		Header:     reply.header,
		Request:    req,
	}, nil
}

func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// Requests returns a copy of every request seen so far, in order.
func (m *MockHTTPClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests seen so far.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
