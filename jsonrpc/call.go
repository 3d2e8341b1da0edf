package jsonrpc

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Call carries the per-call state visible to handlers. A Call is created for
// each request and is not shared between requests.
type Call struct {
	Service *Service
	// Request is the transport request. It is nil for calls made with
	// Service.Invoke.
	Request    *http.Request
	ClientAddr string
	Method     string
	ID         any
	// ReadOnly is set for calls that arrived through GET.
	ReadOnly bool
	Padding  string

	xhr     bool // sent with X-Requested-With: XMLHttpRequest
	queries queryLog
}

type callKey struct{}

// WithCall returns a context carrying call.
func WithCall(ctx context.Context, call *Call) context.Context {
	return context.WithValue(ctx, callKey{}, call)
}

// CallFromContext returns the *Call carried by ctx.
func CallFromContext(ctx context.Context) (*Call, bool) {
	call, ok := ctx.Value(callKey{}).(*Call)
	return call, ok && call != nil
}

// Query is one entry in a call's query log.
type Query struct {
	SQL  string `json:"sql"`
	Time string `json:"time"` // seconds, 3 decimal places
}

type queryLog struct {
	mu      sync.Mutex
	entries []Query
}

func (l *queryLog) add(q Query) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, q)
}

func (l *queryLog) snapshot() []Query {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Query{}, l.entries...)
}

// LogQuery records a query executed on behalf of the current call. Services
// running in debug mode report the log in the response's debug block. It is
// a no-op if ctx carries no call.
func LogQuery(ctx context.Context, sql string, elapsed time.Duration) {
	call, ok := CallFromContext(ctx)
	if !ok {
		return
	}
	call.queries.add(Query{
		SQL:  sql,
		Time: strconv.FormatFloat(elapsed.Seconds(), 'f', 3, 64),
	})
}

// Queries returns a copy of the queries logged so far.
func (c *Call) Queries() []Query { return c.queries.snapshot() }

// clientAddr returns the host part of the request's remote address.
func clientAddr(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
