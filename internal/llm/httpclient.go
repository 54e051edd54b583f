package llm

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

// newHTTPClient returns the shared client configuration for completer APIs.
// Completion calls can be slow; the per-request context carries the real
// deadline, this is just a safety net.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}
