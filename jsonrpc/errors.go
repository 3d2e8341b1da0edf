package jsonrpc

import (
	"errors"
	"fmt"
	"net/http"
)

// Reserved JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Application faults use codes in [CodeServerErrorMin, CodeServerErrorMax].
	CodeServerErrorMin = -32099
	CodeServerErrorMax = -32000
)

// Kind identifies one member of the closed error taxonomy.
type Kind int

const (
	KindParse Kind = iota
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindInternal
	KindServer
)

type kindInfo struct {
	name    string
	code    int
	message string
	details string
	status  int
}

var kinds = [...]kindInfo{
	KindParse: {
		name:    "ParseError",
		code:    CodeParseError,
		message: "Parse error",
		details: "Invalid JSON was received by the server. An error occurred on the server while parsing the JSON text.",
		status:  http.StatusInternalServerError,
	},
	KindInvalidRequest: {
		name:    "InvalidRequestError",
		code:    CodeInvalidRequest,
		message: "Invalid request",
		details: "The JSON sent is not a valid Request object.",
		status:  http.StatusBadRequest,
	},
	KindMethodNotFound: {
		name:    "MethodNotFoundError",
		code:    CodeMethodNotFound,
		message: "Method not found",
		details: "The method does not exist / is not available.",
		status:  http.StatusNotFound,
	},
	KindInvalidParams: {
		name:    "InvalidParamsError",
		code:    CodeInvalidParams,
		message: "Invalid params",
		status:  http.StatusInternalServerError,
	},
	KindInternal: {
		name:    "InternalError",
		code:    CodeInternalError,
		message: "Internal error",
		details: "Internal JSON-RPC error.",
		status:  http.StatusInternalServerError,
	},
	KindServer: {
		name:    "ServerError",
		code:    CodeServerErrorMin,
		message: "Server error",
		status:  http.StatusInternalServerError,
	},
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kinds) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// HTTPStatus returns the HTTP status code declared for k.
func (k Kind) HTTPStatus() int {
	if k < 0 || int(k) >= len(kinds) {
		return http.StatusInternalServerError
	}
	return kinds[k].status
}

// Error is a JSON-RPC error. Values are immutable once constructed; the
// With* methods return modified copies.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	// Details is reported as error.data.details; empty is reported as null.
	Details string

	// Set only when a foreign fault is wrapped as an InternalError. They are
	// reported to clients in debug mode only.
	OriginalType    string
	OriginalMessage string
	Stack           []byte
}

func (e *Error) Error() string {
	if e == nil {
		return "jsonrpc: <nil>"
	}
	if e.Details != "" {
		return fmt.Sprintf("jsonrpc: %s (%d): %s", e.Message, e.Code, e.Details)
	}
	return fmt.Sprintf("jsonrpc: %s (%d)", e.Message, e.Code)
}

// HTTPStatus returns the HTTP status code declared for e's kind.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// ErrorCode returns the JSON-RPC error code.
func (e *Error) ErrorCode() int { return e.Code }

// Is reports whether target is an *Error of the same kind and code, so that
// errors.Is(err, jsonrpc.ErrMethodNotFound) works for any details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && t.Kind == e.Kind && t.Code == e.Code
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *Error) WithDetailsf(format string, args ...any) *Error {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func newError(k Kind, details string) *Error {
	info := kinds[k]
	if details == "" {
		details = info.details
	}
	return &Error{Kind: k, Code: info.code, Message: info.message, Details: details}
}

// Sentinels for use with errors.Is. Do not return them directly; use the
// constructors, which set per-call details.
var (
	ErrParse          = newError(KindParse, "")
	ErrInvalidRequest = newError(KindInvalidRequest, "")
	ErrMethodNotFound = newError(KindMethodNotFound, "")
	ErrInvalidParams  = newError(KindInvalidParams, "")
	ErrInternal       = newError(KindInternal, "")
)

// ParseError reports envelope text that is not valid JSON.
func ParseError(details string) *Error { return newError(KindParse, details) }

// InvalidRequestError reports a missing or malformed envelope field.
func InvalidRequestError(details string) *Error { return newError(KindInvalidRequest, details) }

// MethodNotFoundError reports an unknown or unreachable method.
func MethodNotFoundError(details string) *Error { return newError(KindMethodNotFound, details) }

// InvalidParamsError reports a parameter count, type or shape mismatch.
func InvalidParamsError(details string) *Error { return newError(KindInvalidParams, details) }

// InternalError reports an unexpected fault.
func InternalError(details string) *Error { return newError(KindInternal, details) }

// ServerError is an application-defined fault. Codes outside
// [CodeServerErrorMin, CodeServerErrorMax] are replaced with
// CodeServerErrorMin. An empty message uses the default "Server error".
func ServerError(code int, message, details string) *Error {
	e := newError(KindServer, details)
	if code >= CodeServerErrorMin && code <= CodeServerErrorMax {
		e.Code = code
	}
	if message != "" {
		e.Message = message
	}
	return e
}

// AsError converts err to a JSON-RPC error. An *Error anywhere in err's chain
// is returned unchanged; anything else becomes an InternalError that records
// the original type and message for debug output. AsError(nil) is nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := rpcError(err); ok {
		return rpcErr
	}
	e := InternalError("An unknown error has occurred.")
	e.OriginalType = fmt.Sprintf("%T", err)
	e.OriginalMessage = err.Error()
	return e
}

// rpcError returns the *Error in err's chain. A nil *Error in the chain does
// not count.
func rpcError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr, true
	}
	return nil, false
}
