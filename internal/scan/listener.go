package scan

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const ackBody = "Barcode Received"

// Listener is the network-facing scan producer. It parses inbound requests
// with a fixed, narrow grammar and pushes valid codes onto the queue. It
// always acknowledges with 200 so the scanning hardware never retries;
// malformed input is logged and dropped, never surfaced to the scanner.
type Listener struct {
	queue  *Queue
	server *http.Server
}

func NewListener(addr string, queue *Queue) *Listener {
	l := &Listener{queue: queue}
	l.server = &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(l.handleScan),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return l
}

func (l *Listener) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if code, ok := ExtractCode(r.URL.RawQuery); ok {
			log.Printf("[scan] received barcode %s", code)
			l.queue.Push(code)
		} else if r.URL.RawQuery != "" {
			log.Printf("[scan] dropped malformed scan query %q", r.URL.RawQuery)
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ackBody))
}

// ExtractCode applies the scanner grammar: the query string must start with
// "code=" and must not contain "http" anywhere, which filters accidental
// resubmissions of full URLs by misconfigured proxies.
func ExtractCode(query string) (string, bool) {
	if !strings.HasPrefix(query, "code=") || strings.Contains(query, "http") {
		return "", false
	}
	code := query[len("code="):]
	if unescaped, err := url.QueryUnescape(code); err == nil {
		code = unescaped
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	return code, true
}

// ListenAndServe blocks serving scan requests. A bind failure is returned to
// the caller, which treats it as fatal at startup.
func (l *Listener) ListenAndServe() error {
	return l.server.ListenAndServe()
}

func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}

// Handler exposes the scan handler for tests.
func (l *Listener) Handler() http.Handler {
	return l.server.Handler
}
