// Package testutil provides an HTTP origin with controllable range support,
// pacing and failure modes, plus a manual clock.
package testutil

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

type mockConfig struct {
	size            int64
	seed            int64
	rangeSupport    bool
	hideLength      bool
	status          int
	flushSize       int
	filename        string
	contentType     string
	gateAfter       int64
	gate            <-chan struct{}
	shortBody       int64
	ignoreRangeOnce bool
}

type MockServerOption func(*mockConfig)

func WithFileSize(n int64) MockServerOption {
	return func(c *mockConfig) { c.size = n }
}

// WithSeed makes the served content reproducible
func WithSeed(seed int64) MockServerOption {
	return func(c *mockConfig) { c.seed = seed }
}

func WithRangeSupport(enabled bool) MockServerOption {
	return func(c *mockConfig) { c.rangeSupport = enabled }
}

// WithoutContentLength streams the body without announcing its size
func WithoutContentLength() MockServerOption {
	return func(c *mockConfig) { c.hideLength = true }
}

// WithStatus makes every request fail with the given status
func WithStatus(code int) MockServerOption {
	return func(c *mockConfig) { c.status = code }
}

// WithFlushSize writes and flushes the body n bytes at a time
func WithFlushSize(n int) MockServerOption {
	return func(c *mockConfig) { c.flushSize = n }
}

func WithFilename(name string) MockServerOption {
	return func(c *mockConfig) { c.filename = name }
}

func WithContentType(ct string) MockServerOption {
	return func(c *mockConfig) { c.contentType = ct }
}

// WithGate stops the body at absolute offset after until release is closed
// or the client goes away
func WithGate(after int64, release <-chan struct{}) MockServerOption {
	return func(c *mockConfig) {
		c.gateAfter = after
		c.gate = release
	}
}

// WithShortBody announces the full length but hangs up after n bytes
func WithShortBody(n int64) MockServerOption {
	return func(c *mockConfig) { c.shortBody = n }
}

// WithIgnoreRangeOnce answers the first ranged body request with a full 200,
// like a misbehaving cache in front of a range-capable origin
func WithIgnoreRangeOnce() MockServerOption {
	return func(c *mockConfig) { c.ignoreRangeOnce = true }
}

type MockServer struct {
	*httptest.Server

	cfg  mockConfig
	data []byte

	requests     atomic.Int64
	ignoredRange atomic.Bool

	mu     sync.Mutex
	ranges []string
}

func NewMockServer(opts ...MockServerOption) *MockServer {
	cfg := mockConfig{
		size:         1024,
		seed:         1,
		rangeSupport: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	data := make([]byte, cfg.size)
	rand.New(rand.NewSource(cfg.seed)).Read(data)

	m := &MockServer{cfg: cfg, data: data}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Data returns the full content the server hands out
func (m *MockServer) Data() []byte {
	return m.data
}

// Requests counts every request received, probes included
func (m *MockServer) Requests() int64 {
	return m.requests.Load()
}

// RangeHeaders returns the Range header of each request in arrival order
func (m *MockServer) RangeHeaders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ranges...)
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)
	rangeHeader := r.Header.Get("Range")
	m.mu.Lock()
	m.ranges = append(m.ranges, rangeHeader)
	m.mu.Unlock()

	if m.cfg.status != 0 {
		http.Error(w, http.StatusText(m.cfg.status), m.cfg.status)
		return
	}

	size := int64(len(m.data))
	if m.cfg.filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.cfg.filename))
	}
	if m.cfg.contentType != "" {
		w.Header().Set("Content-Type", m.cfg.contentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}

	start, end := int64(0), size-1
	partial, isProbe := false, false
	if m.cfg.rangeSupport && rangeHeader != "" {
		s, e, ok := parseRange(rangeHeader, size)
		if !ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		isProbe = s == 0 && e < size-1
		if m.cfg.ignoreRangeOnce && !isProbe && m.ignoredRange.CompareAndSwap(false, true) {
			s, e = 0, size-1
		} else {
			partial = true
		}
		start, end = s, e
	}

	if m.cfg.rangeSupport {
		w.Header().Set("Accept-Ranges", "bytes")
	}

	body := m.data[start : end+1]
	if m.cfg.shortBody > 0 && m.cfg.shortBody < int64(len(body)) {
		w.Header().Set("Content-Length", strconv.FormatInt(int64(len(body)), 10))
		body = body[:m.cfg.shortBody]
	} else if !m.cfg.hideLength {
		w.Header().Set("Content-Length", strconv.FormatInt(int64(len(body)), 10))
	}

	if partial {
		total := strconv.FormatInt(size, 10)
		if m.cfg.hideLength {
			total = "*"
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%s", start, end, total))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	flushSize := m.cfg.flushSize
	if flushSize <= 0 {
		flushSize = len(body)
	}
	flusher, _ := w.(http.Flusher)

	gate := m.cfg.gate
	if isProbe {
		gate = nil
	}

	offset := start
	for len(body) > 0 {
		n := flushSize
		if n > len(body) {
			n = len(body)
		}
		if gate != nil && offset >= m.cfg.gateAfter {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		} else if gate != nil && offset+int64(n) > m.cfg.gateAfter {
			n = int(m.cfg.gateAfter - offset)
		}

		if _, err := w.Write(body[:n]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		body = body[n:]
		offset += int64(n)
	}
}

// parseRange understands the single-range forms "bytes=a-b" and "bytes=a-"
func parseRange(h string, size int64) (int64, int64, bool) {
	spec, ok := strings.CutPrefix(h, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	from, to, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if to != "" {
		e, err := strconv.ParseInt(to, 10, 64)
		if err != nil || e < start {
			return 0, 0, false
		}
		if e < end {
			end = e
		}
	}
	return start, end, true
}
