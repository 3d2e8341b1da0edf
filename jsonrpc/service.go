package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mnehpets/sigrpc/endpoint"
)

// DefaultMaxBodySize is the default limit on POST bodies.
const DefaultMaxBodySize = 1 << 20

// DefaultPaddingNames are the query parameters accepted as JSON-P callback
// names when none are configured.
var DefaultPaddingNames = []string{"callback", "jsoncallback"}

// Request is the validated envelope of a call, as seen by a Validator.
type Request struct {
	Method     string
	Params     any // []any or map[string]any
	ID         any // string or json.Number
	Descriptor *Descriptor
}

// Validator is an extra check run after the envelope and method are
// resolved and before parameters are validated. Returning an *Error reports
// it to the client unchanged; any other error is reported as a ServerError
// carrying the error text.
type Validator interface {
	ValidateCall(ctx context.Context, call *Call, req *Request) error
}

// ValidatorFunc adapts a function to a Validator.
type ValidatorFunc func(ctx context.Context, call *Call, req *Request) error

func (f ValidatorFunc) ValidateCall(ctx context.Context, call *Call, req *Request) error {
	return f(ctx, call, req)
}

// Service dispatches JSON-RPC calls to the procedures of a registry.
// A Service is safe for concurrent use.
type Service struct {
	registry        *Registry
	info            Info
	debug           bool
	verbose         *bool // nil follows debug
	safe            bool
	httpErrors      bool
	paddingNames    []string
	contentType     string
	validator       Validator
	logger          *slog.Logger
	propagateFaults bool
	maxBodySize     int64

	metrics *serviceMetrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithInfo sets the metadata reported by system.describe.
func WithInfo(info Info) ServiceOption {
	return func(s *Service) { s.info = info }
}

// WithDebug enables debug output: the debug block on every response, and
// the original type, message and traceback of wrapped faults. Never enable
// it in production.
func WithDebug(on bool) ServiceOption {
	return func(s *Service) { s.debug = on }
}

// WithVerbose indents responses. Without it, responses are indented when
// debug output is on.
func WithVerbose(on bool) ServiceOption {
	return func(s *Service) { s.verbose = &on }
}

// WithSafe makes every procedure callable through GET, not only those marked
// Safe.
func WithSafe(on bool) ServiceOption {
	return func(s *Service) { s.safe = on }
}

// WithHTTPErrors controls whether error responses carry the error's HTTP
// status (the default) or always 200.
func WithHTTPErrors(on bool) ServiceOption {
	return func(s *Service) { s.httpErrors = on }
}

// WithPaddingNames sets the allow-list of JSON-P callback parameter names,
// in priority order. An empty list disables JSON-P.
func WithPaddingNames(names ...string) ServiceOption {
	return func(s *Service) { s.paddingNames = append([]string(nil), names...) }
}

// WithContentType overrides the response content type.
func WithContentType(ct string) ServiceOption {
	return func(s *Service) { s.contentType = ct }
}

// WithValidator installs an extra validation hook.
func WithValidator(v Validator) ServiceOption {
	return func(s *Service) { s.validator = v }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithFaultPropagation makes a debug-mode service return handler faults that
// are not JSON-RPC errors to the transport unhandled, so they surface in the
// host's own error page. Calls made with X-Requested-With: XMLHttpRequest
// still get a JSON-RPC response. It has no effect without WithDebug.
func WithFaultPropagation(on bool) ServiceOption {
	return func(s *Service) { s.propagateFaults = on }
}

// WithMaxBodySize limits the size of POST bodies. Zero or less means no
// limit.
func WithMaxBodySize(n int64) ServiceOption {
	return func(s *Service) { s.maxBodySize = n }
}

// NewService returns a service dispatching to reg. A nil reg serves only the
// built-in procedures.
func NewService(reg *Registry, opts ...ServiceOption) *Service {
	if reg == nil {
		reg = Base()
	}
	s := &Service{
		registry:     reg,
		httpErrors:   true,
		paddingNames: DefaultPaddingNames,
		maxBodySize:  DefaultMaxBodySize,
		metrics:      newServiceMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.info = s.info.withDefaults()
	return s
}

// Registry returns the registry the service dispatches to.
func (s *Service) Registry() *Registry { return s.registry }

// Info returns the service metadata.
func (s *Service) Info() Info { return s.info }

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// envelopeSource holds the query and header inputs the pipeline reads from
// a request.
type envelopeSource struct {
	JSON          string `query:"json" maxLength:""`
	RequestedWith string `header:"X-Requested-With"`
}

// bodySource holds a POST body. The reader is already bounded by the
// service's body limit.
type bodySource struct {
	Body []byte `body:"" maxLength:""`
}

// Call runs one request through the pipeline and returns the response to
// send along with the per-call state. The error is non-nil only when a
// fault is propagated to the transport (see WithFaultPropagation); the
// response is then nil.
func (s *Service) Call(ctx context.Context, r *http.Request) (*Response, *Call, error) {
	call := &Call{Service: s, Request: r, ClientAddr: clientAddr(r)}
	ctx = WithCall(ctx, call)

	s.metrics.calls.Add(1)
	s.metrics.callsActive.Add(1)
	result, err := s.dispatch(ctx, call, r)
	if err != nil {
		if _, ok := rpcError(err); !ok && s.propagate(call) {
			s.metrics.callsActive.Add(-1)
			s.metrics.callsFailed.Add(1)
			return nil, call, err
		}
		err = s.fault(ctx, call, err)
	}

	rsp := BuildResponse(call.ID, result, err, s.httpErrors)
	if s.debug {
		q := call.Queries()
		rsp.Debug = &DebugInfo{Queries: DebugQueries{Count: len(q), Data: q}}
	}
	s.metrics.finish(rsp)
	return rsp, call, nil
}

func (s *Service) propagate(call *Call) bool {
	return s.debug && s.propagateFaults && call.Request != nil && !call.xhr
}

// dispatch runs the pipeline stages in order. The first failure ends the
// call.
func (s *Service) dispatch(ctx context.Context, call *Call, r *http.Request) (any, error) {
	env, err := s.extract(call, r)
	if err != nil {
		return nil, err
	}

	id, err := envelopeID(env)
	if err != nil {
		return nil, err
	}
	call.ID = id

	if v, ok := env["jsonrpc"].(string); !ok || v != Version {
		return nil, InvalidRequestError("The `jsonrpc` member must be exactly \"" + Version + "\".")
	}

	method, ok := env["method"].(string)
	if !ok {
		return nil, InvalidRequestError("The `method` member must be a string.")
	}
	call.Method = method
	d, err := s.resolve(call, method)
	if err != nil {
		return nil, err
	}

	params, ok := env["params"]
	if !ok {
		return nil, InvalidRequestError("The `params` member is required.")
	}
	switch params.(type) {
	case []any, map[string]any:
	default:
		return nil, InvalidParamsError("The `params` argument must be an array or object.")
	}

	if s.validator != nil {
		req := &Request{Method: method, Params: params, ID: id, Descriptor: d}
		if err := s.validator.ValidateCall(ctx, call, req); err != nil {
			if rpcErr, ok := rpcError(err); ok {
				return nil, rpcErr
			}
			return nil, ServerError(CodeServerErrorMax, "", err.Error())
		}
	}

	p, err := Validate(d, params)
	if err != nil {
		return nil, err
	}
	return s.invoke(ctx, d, p)
}

// extract reads and decodes the envelope carried by r.
func (s *Service) extract(call *Call, r *http.Request) (map[string]any, error) {
	if r == nil {
		return nil, InvalidRequestError("No request was received.")
	}
	var src envelopeSource
	if err := endpoint.Unmarshal(r, &src); err != nil {
		return nil, InvalidRequestError("The request could not be read.")
	}
	call.xhr = src.RequestedWith == "XMLHttpRequest"

	var raw []byte
	switch r.Method {
	case http.MethodGet:
		call.ReadOnly = true
		call.Padding = s.padding(r)
		if src.JSON == "" {
			return nil, InvalidRequestError("The `json` query parameter is required for GET requests.")
		}
		raw = []byte(src.JSON)
	case http.MethodPost:
		body, err := s.readBody(r)
		if err != nil {
			return nil, err
		}
		raw = body
	default:
		return nil, InvalidRequestError("The " + r.Method + " method is not supported; use GET or POST.")
	}
	return decodeEnvelope(raw)
}

// readBody reads a POST body, up to the configured limit. Bodies of other
// methods are never read.
func (s *Service) readBody(r *http.Request) ([]byte, error) {
	if r.Body != nil && s.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, s.maxBodySize)
	}
	var src bodySource
	if err := endpoint.Unmarshal(r, &src); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, InvalidRequestError(fmt.Sprintf("The request body exceeds %d bytes.", mbe.Limit))
		}
		return nil, InvalidRequestError("The request could not be read.")
	}
	return src.Body, nil
}

// padding returns the value of the first allowed callback parameter present
// in the query of r.
func (s *Service) padding(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	q := r.URL.Query()
	for _, name := range s.paddingNames {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// decodeEnvelope parses raw as a single JSON object. Numbers are kept as
// json.Number.
func decodeEnvelope(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, ParseError("")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ParseError("Unexpected data after the request object.")
	}
	env, ok := v.(map[string]any)
	if !ok {
		return nil, InvalidRequestError("The request must be a JSON object.")
	}
	return env, nil
}

func envelopeID(env map[string]any) (any, error) {
	switch id := env["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case json.Number:
		if _, err := id.Int64(); err == nil {
			return id, nil
		}
	}
	return nil, InvalidRequestError("The `id` member must be a non-empty string or an integer.")
}

// resolve finds the procedure for method. Procedures that are not safe are
// reported as missing to read-only calls.
func (s *Service) resolve(call *Call, method string) (*Descriptor, error) {
	d, ok := s.registry.Resolve(method)
	if !ok || (call.ReadOnly && !d.Safe && !s.safe) {
		return nil, MethodNotFoundError("The method `" + method + "` does not exist / is not available.")
	}
	return d, nil
}

// PanicError is the fault recorded when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (s *Service) invoke(ctx context.Context, d *Descriptor, p Params) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			s.metrics.panics.Add(1)
			result, err = nil, &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	result, err = d.Handler(ctx, p)
	if err == nil && s.debug && !d.Return.Accepts(result) {
		s.log().WarnContext(ctx, "jsonrpc: result does not match declared return type",
			"method", d.Name, "return", d.Return, "type", fmt.Sprintf("%T", result))
	}
	return result, err
}

// fault converts err to the *Error reported to the client, logging faults
// that are not JSON-RPC errors.
func (s *Service) fault(ctx context.Context, call *Call, err error) *Error {
	if rpcErr, ok := rpcError(err); ok {
		return rpcErr
	}
	e := AsError(err)
	var stack []any
	var pe *PanicError
	if errors.As(err, &pe) {
		e.OriginalType = fmt.Sprintf("%T", pe.Value)
		e.OriginalMessage = fmt.Sprint(pe.Value)
		e.Stack = pe.Stack
		stack = []any{"stack", string(pe.Stack)}
	} else if s.debug {
		e.Stack = debug.Stack()
	}
	attrs := append([]any{"method", call.Method, "id", call.ID, "error", err, "type", e.OriginalType}, stack...)
	s.log().ErrorContext(ctx, "jsonrpc: call failed", attrs...)
	return e
}

// Invoke calls a procedure directly, without a transport. params must be a
// []any or map[string]any. The extra validation hook is not run. Errors are
// always *Error values.
func (s *Service) Invoke(ctx context.Context, method string, params any) (any, error) {
	call := &Call{Service: s, Method: method}
	ctx = WithCall(ctx, call)
	d, err := s.resolve(call, method)
	if err != nil {
		return nil, err
	}
	p, err := Validate(d, params)
	if err != nil {
		return nil, err
	}
	result, err := s.invoke(ctx, d, p)
	if err != nil {
		return nil, s.fault(ctx, call, err)
	}
	return result, nil
}

// Encode serializes rsp for call, returning the body and its content type.
// If the result cannot be serialized, an InternalError response is encoded
// in its place.
func (s *Service) Encode(ctx context.Context, call *Call, rsp *Response) ([]byte, string, error) {
	opts := EncodeOptions{Verbose: s.isVerbose(), Debug: s.debug, Padding: call.Padding}
	body, err := rsp.Encode(opts)
	if err != nil {
		s.log().ErrorContext(ctx, "jsonrpc: encode response", "method", call.Method, "id", call.ID, "error", err)
		fallback := BuildResponse(rsp.ID, nil, InternalError("The result could not be encoded as JSON."), s.httpErrors)
		fallback.Debug = rsp.Debug
		s.metrics.replace(rsp, fallback)
		*rsp = *fallback
		if body, err = rsp.Encode(opts); err != nil {
			return nil, "", err
		}
	}
	return body, s.responseType(call), nil
}

func (s *Service) isVerbose() bool {
	if s.verbose != nil {
		return *s.verbose
	}
	return s.debug
}

func (s *Service) responseType(call *Call) string {
	switch {
	case s.contentType != "":
		return s.contentType
	case call.Padding != "":
		return "application/javascript"
	default:
		return "application/json"
	}
}

// Endpoint is an endpoint.EndpointFunc serving the service.
func (s *Service) Endpoint(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	rsp, call, err := s.Call(r.Context(), r)
	if err != nil {
		return nil, err
	}
	body, ct, err := s.Encode(r.Context(), call, rsp)
	if err != nil {
		return nil, endpoint.Error(http.StatusInternalServerError, "", err)
	}
	return &endpoint.BytesRenderer{Status: rsp.Status, ContentType: ct, Body: body}, nil
}

// Handler returns an http.Handler serving the service behind processors.
func (s *Service) Handler(processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(s.Endpoint, processors...)
}
