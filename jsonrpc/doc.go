// Package jsonrpc provides a JSON-RPC 2.0 service whose procedures are
// declared with compact signatures and validated before they run.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// for single calls over HTTP GET and POST. Batch requests and notifications
// are not supported.
//
// # Basic Usage
//
// Declare procedures, build a registry on top of Base, and serve it:
//
//	var reg = jsonrpc.NewBuilder(jsonrpc.Base()).Register(
//	    jsonrpc.Proc("add(a=<num>, b=<num>) -> <num>", add, jsonrpc.Safe()),
//	).Build()
//
//	svc := jsonrpc.NewService(reg, jsonrpc.WithInfo(jsonrpc.Info{Name: "Arith"}))
//	http.Handle("/rpc", svc.Handler())
//
// Handlers receive the validated parameters:
//
//	func add(ctx context.Context, p jsonrpc.Params) (any, error) {
//	    return p.Float("a") + p.Float("b"), nil
//	}
//
// # Signatures
//
// A signature names the procedure, its parameters and its return type:
//
//	name(arg=<type>, opt=<type>?) -> <type>
//
// Types are the tags bit, num, str, arr, obj, nil and any. A trailing ? marks
// a parameter optional; optional parameters must come last. Omitted optional
// parameters are passed to the handler as nil. Parameters the client supplies
// beyond those declared are dropped.
//
// # Inheritance
//
// A registry may extend others. NewBuilder copies its ancestors in order, and
// each Register replaces any procedure of the same name:
//
//	var derived = jsonrpc.NewBuilder(reg).Register(
//	    jsonrpc.Proc("add(a=<num>, b=<num>, c=<num>?) -> <num>", add3),
//	).Build()
//
// Registries are frozen once built and may be shared by any number of
// services and goroutines.
//
// # Transports
//
// POST carries the request object as the body. GET carries it URL-encoded in
// the json query parameter and may only call procedures marked Safe (or any
// procedure, with WithSafe). A GET request may ask for JSON-P with one of the
// padding parameters, callback or jsoncallback by default.
//
// # Error Handling
//
// Handlers return *Error values for protocol-level errors:
//
//	return nil, jsonrpc.ServerError(-32010, "Quota exceeded", "try again tomorrow")
//
// Any other error, or a panic, is reported as an InternalError. Its type,
// message and stack are included only in debug mode.
//
// Error responses carry the HTTP status of their kind unless
// WithHTTPErrors(false) is set:
//   - ParseError (-32700): 500
//   - InvalidRequestError (-32600): 400
//   - MethodNotFoundError (-32601): 404
//   - InvalidParamsError (-32602): 500
//   - InternalError (-32603): 500
//   - ServerError (-32099 to -32000): 500
//
// # Processor Integration
//
// Processors can be passed to Handler for cross-cutting concerns:
//
//	http.Handle("/rpc", svc.Handler(middleware.NewSecurityHeadersProcessor()))
//
// Processor errors return HTTP error responses (not JSON-RPC errors).
package jsonrpc
