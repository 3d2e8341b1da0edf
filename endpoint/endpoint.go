// Package endpoint is the HTTP layer the RPC service runs on.
//
// An EndpointHandler serves one typed function. For each request it runs
// the processor chain, decodes the request into the function's params
// struct with Unmarshal, calls the function and renders the Renderer it
// returns. Endpoint functions never write to the response themselves.
//
// Processors may register hooks with Defer; the hooks run once, most recent
// first, immediately before the response status is written, whether the
// request succeeds or fails.
package endpoint

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// EndpointError is an error with the HTTP status to report it with.
type EndpointError struct {
	Status  int
	Message string // response body; empty means the status text
	Cause   error
}

func (e *EndpointError) Error() string {
	if e == nil {
		return "endpoint: error: <nil>"
	}
	msg := e.text()
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *EndpointError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// text is the message written to the client.
func (e *EndpointError) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case http.StatusText(e.Status) != "":
		return http.StatusText(e.Status)
	}
	return "unknown error"
}

// Error returns an *EndpointError. If err already wraps one, err is returned
// as it is and the new status is ignored.
func Error(status int, message string, err error) error {
	return newEndpointError(status, message, err)
}

func newEndpointError(status int, message string, err error) error {
	if _, ok := asEndpointError(err); ok {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

func asEndpointError(err error) (*EndpointError, bool) {
	var ee *EndpointError
	return ee, errors.As(err, &ee) && ee != nil
}

// Renderer writes a complete response, status first.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc is a function Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error { return f(w, r) }

// Next continues a processor chain.
type Next = func(w http.ResponseWriter, r *http.Request) error

// Processor wraps the rest of the chain. It may set headers, replace the
// request or stop the chain by returning without calling next. It must not
// write the status or body.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next Next) error
}

// ProcessorFunc is a function Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next Next) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next Next) error {
	return f(w, r, next)
}

// EndpointFunc handles a request whose params have been decoded into P.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler serves an EndpointFunc behind a list of processors, which
// run in order.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler returns the handler for fn. P is inferred from fn.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{Endpoint: fn, Processors: processors}
}

// HandleFunc is Handler as an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

// hookList holds the functions registered with Defer for one request.
type hookList struct {
	fns []func(http.ResponseWriter)
}

type hooksKey struct{}

func hooksFrom(ctx context.Context) *hookList {
	h, _ := ctx.Value(hooksKey{}).(*hookList)
	return h
}

// Defer registers fn to run immediately before the response status is
// written. fn may set headers and cookies but must not write. Defer is a
// no-op when ctx does not come from an EndpointHandler.
func Defer(ctx context.Context, fn func(http.ResponseWriter)) {
	if h := hooksFrom(ctx); h != nil {
		h.fns = append(h.fns, fn)
	}
}

// Commit runs and discards the hooks registered with Defer, most recent
// first. Renderers do not need to call it; the handler does.
func Commit(ctx context.Context, w http.ResponseWriter) {
	h := hooksFrom(ctx)
	if h == nil {
		return
	}
	fns := h.fns
	h.fns = nil
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](w)
	}
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "endpoint: nil EndpointFunc", http.StatusInternalServerError)
		return
	}
	if hooksFrom(r.Context()) == nil {
		r = r.WithContext(context.WithValue(r.Context(), hooksKey{}, new(hookList)))
	}
	if err := h.chain()(w, r); err != nil {
		Commit(r.Context(), w)
		status, msg := http.StatusInternalServerError, err.Error()
		if ee, ok := asEndpointError(err); ok {
			if ee.Status >= 100 {
				status = ee.Status
			}
			msg = (&EndpointError{Status: status, Message: ee.Message}).text()
		}
		http.Error(w, msg, status)
	}
}

// chain composes the processors around the endpoint call.
func (h *EndpointHandler[P]) chain() Next {
	next := h.serve
	for i := len(h.Processors) - 1; i >= 0; i-- {
		p, inner := h.Processors[i], next
		if p == nil {
			next = func(http.ResponseWriter, *http.Request) error { return errors.New("endpoint: nil processor") }
			continue
		}
		next = func(w http.ResponseWriter, r *http.Request) error { return p.Process(w, r, inner) }
	}
	return next
}

// serve decodes the params, calls the endpoint and renders its result.
func (h *EndpointHandler[P]) serve(w http.ResponseWriter, r *http.Request) error {
	var params P
	if err := Unmarshal(r, &params); err != nil {
		return err
	}
	out, err := h.Endpoint(w, r, params)
	if err != nil {
		return err
	}
	if out == nil {
		return errors.New("endpoint: nil renderer")
	}
	if c, ok := out.(io.Closer); ok {
		defer c.Close()
	}
	Commit(r.Context(), w)
	return out.Render(w, r)
}
