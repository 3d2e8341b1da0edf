// Package quota provides call-rate checks that plug into a jsonrpc.Service
// as validators.
//
// RateLimiter keeps a token bucket per client address on the server.
// CookieBudget keeps a per-browser call count in a sealed cookie, so the
// server holds no state for it.
package quota

import (
	"context"

	"github.com/mnehpets/sigrpc/jsonrpc"
)

// Error codes reported when a quota is exhausted.
const (
	CodeRateLimited     = -32001
	CodeBudgetExhausted = -32002
)

// Chain returns a validator that runs vs in order and stops at the first
// error. Nil validators are skipped.
func Chain(vs ...jsonrpc.Validator) jsonrpc.Validator {
	var live []jsonrpc.Validator
	for _, v := range vs {
		if v != nil {
			live = append(live, v)
		}
	}
	return jsonrpc.ValidatorFunc(func(ctx context.Context, call *jsonrpc.Call, req *jsonrpc.Request) error {
		for _, v := range live {
			if err := v.ValidateCall(ctx, call, req); err != nil {
				return err
			}
		}
		return nil
	})
}
