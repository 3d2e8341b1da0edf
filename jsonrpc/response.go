package jsonrpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// Version is the protocol version carried in every envelope.
const Version = "2.0"

// Response is a built, not yet serialized, response envelope. Exactly one of
// Result and Error is meaningful: Error when non-nil, Result otherwise.
type Response struct {
	ID     any
	Result any
	Error  *Error
	// Status is the HTTP status to send.
	Status int
	// Debug is set only by services running in debug mode.
	Debug *DebugInfo
}

// DebugInfo is the debug block attached to responses in debug mode.
type DebugInfo struct {
	Queries DebugQueries `json:"queries"`
}

// DebugQueries reports the queries logged during a call.
type DebugQueries struct {
	Count int     `json:"count"`
	Data  []Query `json:"data"`
}

// EncodeOptions control serialization of a Response.
type EncodeOptions struct {
	// Verbose indents the output by four spaces. It does not change field
	// order or values.
	Verbose bool
	// Debug adds the traceback and original error type to error objects.
	Debug bool
	// Padding, if set, wraps the output as Padding(json). The value is used
	// verbatim; callers must restrict it to an allow-list.
	Padding string
}

// BuildResponse assembles the response for a finished call. A non-nil err
// takes precedence over result and is converted with AsError. When
// httpErrors is false every response has status 200.
func BuildResponse(id, result any, err error, httpErrors bool) *Response {
	rsp := &Response{ID: id, Status: http.StatusOK}
	if err != nil {
		rsp.Error = AsError(err)
		if httpErrors {
			rsp.Status = rsp.Error.HTTPStatus()
		}
		return rsp
	}
	rsp.Result = result
	return rsp
}

type successEnvelope struct {
	JSONRPC string     `json:"jsonrpc"`
	Result  any        `json:"result"`
	ID      any        `json:"id"`
	Debug   *DebugInfo `json:"debug,omitempty"`
}

type errorEnvelope struct {
	JSONRPC string      `json:"jsonrpc"`
	Error   errorObject `json:"error"`
	ID      any         `json:"id"`
	Debug   *DebugInfo  `json:"debug,omitempty"`
}

type errorObject struct {
	Code            int       `json:"code"`
	Message         string    `json:"message"`
	Data            errorData `json:"data"`
	OriginalMessage string    `json:"original_message,omitempty"`
}

type errorData struct {
	Details      *string  `json:"details"`
	Traceback    []string `json:"traceback,omitempty"`
	OriginalType string   `json:"original_type,omitempty"`
}

func (e *Error) wire(debug bool) errorObject {
	obj := errorObject{Code: e.Code, Message: e.Message}
	if e.Details != "" {
		d := e.Details
		obj.Data.Details = &d
	}
	if !debug {
		return obj
	}
	obj.Data.OriginalType = e.OriginalType
	if obj.Data.OriginalType == "" {
		obj.Data.OriginalType = e.Kind.String()
	}
	obj.OriginalMessage = e.OriginalMessage
	if obj.OriginalMessage == "" {
		obj.OriginalMessage = e.Message
	}
	if len(e.Stack) != 0 {
		obj.Data.Traceback = strings.Split(strings.TrimRight(string(e.Stack), "\n"), "\n")
	}
	return obj
}

// Encode serializes r. The envelope fields appear in the order jsonrpc,
// result or error, id, debug.
func (r *Response) Encode(opts EncodeOptions) ([]byte, error) {
	var v any
	if r.Error != nil {
		v = errorEnvelope{JSONRPC: Version, Error: r.Error.wire(opts.Debug), ID: r.ID, Debug: r.Debug}
	} else {
		v = successEnvelope{JSONRPC: Version, Result: r.Result, ID: r.ID, Debug: r.Debug}
	}

	var buf bytes.Buffer
	if opts.Padding != "" {
		buf.WriteString(opts.Padding)
		buf.WriteByte('(')
	}
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if opts.Verbose {
		enc.SetIndent("", "    ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Drop the newline json.Encoder appends.
	buf.Truncate(buf.Len() - 1)
	if opts.Padding != "" {
		buf.WriteByte(')')
	}
	return buf.Bytes(), nil
}
