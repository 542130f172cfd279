package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/juanclpzq/digital-library/pkg/idx"
)

// RequestIDHeader correlates client and server log lines.
const RequestIDHeader = "X-Request-ID"

// Transport is an http.RoundTripper that stamps every outbound request with a
// request id and logs its outcome. Headers are never logged: they carry
// bearer tokens.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

// RoundTrip logs the request and its outcome.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, reqID)
	}

	logger := t.Logger.With("req_id", reqID, "method", req.Method, "path", req.URL.Path)
	start := time.Now()

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		logger.Warn("http_request_failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	logger.Debug("http_request", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}
