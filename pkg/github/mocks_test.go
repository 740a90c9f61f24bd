package github

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// mockDoer is a programmable HTTPDoer: configure responses per method and
// URL, optionally as an ordered queue so retry paths can see a failure
// followed by a success. Every Do mints a fresh response body, so retried
// requests read a full body each time.
type mockDoer struct {
	responses map[string]responseSpec
	queues    map[string][]responseSpec
	errors    map[string]error
	calls     []httpCall
	mu        sync.RWMutex
}

type responseSpec struct {
	headers    map[string]string
	body       []byte
	statusCode int
}

type httpCall struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func newMockDoer() *mockDoer {
	return &mockDoer{
		responses: make(map[string]responseSpec),
		queues:    make(map[string][]responseSpec),
		errors:    make(map[string]error),
	}
}

// Do records the request and returns the configured response. Queued
// responses are consumed in order before the sticky response; unknown
// requests get a 404.
func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	m.calls = append(m.calls, httpCall{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})

	key := req.Method + ":" + req.URL.String()

	if err, ok := m.errors[key]; ok {
		return nil, err
	}

	if queue := m.queues[key]; len(queue) > 0 {
		spec := queue[0]
		m.queues[key] = queue[1:]
		return spec.build(), nil
	}

	if spec, ok := m.responses[key]; ok {
		return spec.build(), nil
	}

	return &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Body:       io.NopCloser(strings.NewReader(`{"message":"not found"}`)),
		Header:     make(http.Header),
	}, nil
}

func (s responseSpec) build() *http.Response {
	header := make(http.Header)
	for k, v := range s.headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: s.statusCode,
		Status:     fmt.Sprintf("%d %s", s.statusCode, http.StatusText(s.statusCode)),
		Body:       io.NopCloser(bytes.NewReader(s.body)),
		Header:     header,
	}
}

func marshalBody(body any) []byte {
	if body == nil {
		return nil
	}
	if raw, ok := body.([]byte); ok {
		return raw
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal response body: %v", err))
	}
	return data
}

// SetResponse configures a sticky response for a specific method and URL.
func (m *mockDoer) SetResponse(method, url string, statusCode int, body any) {
	m.SetResponseWithHeaders(method, url, statusCode, nil, body)
}

// SetResponseWithHeaders configures a sticky response with explicit headers.
// Tests exercising rate limit or ETag handling set the relevant headers here.
func (m *mockDoer) SetResponseWithHeaders(method, url string, statusCode int, headers map[string]string, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method+":"+url] = responseSpec{
		statusCode: statusCode,
		headers:    headers,
		body:       marshalBody(body),
	}
}

// QueueResponse appends a one-shot response for a method and URL. Queued
// responses are served in order before any sticky response.
func (m *mockDoer) QueueResponse(method, url string, statusCode int, headers map[string]string, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + ":" + url
	m.queues[key] = append(m.queues[key], responseSpec{
		statusCode: statusCode,
		headers:    headers,
		body:       marshalBody(body),
	})
}

// SetError configures a transport error for a specific method and URL.
func (m *mockDoer) SetError(method, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method+":"+url] = err
}

// Calls returns all recorded HTTP calls.
func (m *mockDoer) Calls() []httpCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]httpCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// mockClock implements TimeProvider with a fixed current time. After
// records requested durations and returns the shared AfterChan; send on it
// to release a waiter.
type mockClock struct {
	CurrentTime time.Time
	AfterChan   chan time.Time
	afterCalls  []time.Duration
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{
		CurrentTime: now,
		AfterChan:   make(chan time.Time, 1),
	}
}

func (m *mockClock) Now() time.Time { return m.CurrentTime }

func (m *mockClock) After(d time.Duration) <-chan time.Time {
	m.afterCalls = append(m.afterCalls, d)
	return m.AfterChan
}

// AfterCalls returns the durations passed to After, in order.
func (m *mockClock) AfterCalls() []time.Duration {
	calls := make([]time.Duration, len(m.afterCalls))
	copy(calls, m.afterCalls)
	return calls
}

func (m *mockClock) NewTicker(_ time.Duration) Ticker {
	return mockTicker{c: make(chan time.Time)}
}

type mockTicker struct{ c chan time.Time }

func (m mockTicker) C() <-chan time.Time { return m.c }
func (mockTicker) Stop()                 {}
