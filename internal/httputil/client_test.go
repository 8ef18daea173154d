package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
}

func TestStandardClient_NilDefaults(t *testing.T) {
	client := NewStandardClient(nil)
	if client.Client != http.DefaultClient {
		t.Error("expected nil to fall back to http.DefaultClient")
	}
}

func TestStandardClient_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, "get-body")
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, r.Header.Get("Content-Type")+":"+string(body))
		}
	}))
	defer srv.Close()

	client := NewStandardClient(srv.Client())

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "get-body" {
		t.Errorf("got body %q", string(body))
	}

	resp, err = client.Post(srv.URL, "application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(body) != `application/json:{"a":1}` {
		t.Errorf("got body %q", string(body))
	}
}

func TestMockHTTPClient_Get(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"result": "success"}`)

	resp, err := mock.Get("http://example.com/api")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"result": "success"}` {
		t.Errorf("got body %q", string(body))
	}

	if mock.RequestCount() != 1 {
		t.Errorf("got %d requests, want 1", mock.RequestCount())
	}
}

func TestMockHTTPClient_Post(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusCreated, `{"id": 123}`)

	resp, err := mock.Post("http://example.com/api", "application/json", strings.NewReader(`{"name": "test"}`))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].Method != http.MethodPost {
		t.Errorf("got method %s, want POST", reqs[0].Method)
	}
	if reqs[0].Header.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q", reqs[0].Header.Get("Content-Type"))
	}
}

func TestMockHTTPClient_RepliesInOrder(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first").
		AddResponse(http.StatusNotFound, "second")

	resp, err := mock.Get("http://example.com/one")
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("first reply: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = mock.Get("http://example.com/two")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || string(body) != "second" {
		t.Errorf("second reply: got %d %q", resp.StatusCode, string(body))
	}
}

func TestMockHTTPClient_ExhaustedQueue(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "only")

	resp, err := mock.Get("http://example.com/api")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()

	if _, err := mock.Get("http://example.com/api"); err == nil {
		t.Error("expected an error once the queue is exhausted")
	}
	if mock.RequestCount() != 2 {
		t.Errorf("got %d requests, want 2 (failed calls are still recorded)", mock.RequestCount())
	}
}

func TestMockHTTPClient_ErrorResponse(t *testing.T) {
	wantErr := errors.New("connection refused")
	mock := NewMockHTTPClient()
	mock.AddErrorResponse(wantErr)

	_, err := mock.Get("http://example.com/api")
	if !errors.Is(err, wantErr) {
		t.Errorf("got error %v, want %v", err, wantErr)
	}
}

func TestMockHTTPClient_JSONResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddJSONResponse(http.StatusOK, map[string]int{"count": 7})

	resp, err := mock.Get("http://example.com/api")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("got Content-Type %q, want application/json", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"count":7}` {
		t.Errorf("got body %q", string(body))
	}
}

func TestMockHTTPClient_RequestsCopies(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "")
	resp, err := mock.Get("http://example.com/api")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()

	reqs := mock.Requests()
	reqs[0] = nil
	if mock.Requests()[0] == nil {
		t.Error("mutating the returned slice should not affect the mock")
	}
}

func TestMockHTTPClient_Do(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusAccepted, "queued")

	req, _ := http.NewRequest(http.MethodDelete, "http://example.com/thing/1", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if got := mock.Requests()[0].Method; got != http.MethodDelete {
		t.Errorf("got method %s, want DELETE", got)
	}
}
