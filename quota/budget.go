package quota

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mnehpets/sigrpc/endpoint"
	"github.com/mnehpets/sigrpc/jsonrpc"
	"github.com/mnehpets/sigrpc/middleware"
)

// budgetState is the sealed cookie payload.
type budgetState struct {
	Start int64 `cbor:"1,keyasint"` // window start, unix seconds
	Used  int   `cbor:"2,keyasint"`
}

// CookieBudget allows a browser a fixed number of calls per window. The
// count travels in a sealed cookie that is reissued on every counted call.
// Calls without a transport request are not counted.
//
// CookieBudget implements jsonrpc.Validator.
type CookieBudget struct {
	cookie *middleware.SealedCookie
	calls  int
	window time.Duration
	now    func() time.Time
}

// NewCookieBudget returns a budget of calls per window, stored in cookie.
func NewCookieBudget(cookie *middleware.SealedCookie, calls int, window time.Duration) *CookieBudget {
	return &CookieBudget{cookie: cookie, calls: calls, window: window, now: time.Now}
}

// ValidateCall implements jsonrpc.Validator.
func (b *CookieBudget) ValidateCall(ctx context.Context, call *jsonrpc.Call, _ *jsonrpc.Request) error {
	if call.Request == nil {
		return nil
	}
	now := b.now()

	var st budgetState
	if err := b.cookie.Read(call.Request, &st); err != nil || !b.current(st, now) {
		st = budgetState{Start: now.Unix()}
	}
	if st.Used >= b.calls {
		return jsonrpc.ServerError(CodeBudgetExhausted, "Call budget exhausted",
			fmt.Sprintf("At most %d calls are allowed every %s.", b.calls, b.window))
	}
	st.Used++

	remaining := time.Unix(st.Start, 0).Add(b.window).Sub(now)
	ck, err := b.cookie.Seal(st, max(remaining, time.Second))
	if err != nil {
		return fmt.Errorf("quota: sealing budget cookie: %w", err)
	}
	endpoint.Defer(ctx, func(w http.ResponseWriter) { http.SetCookie(w, ck) })
	return nil
}

// current reports whether st belongs to the window containing now.
func (b *CookieBudget) current(st budgetState, now time.Time) bool {
	start := time.Unix(st.Start, 0)
	return !start.After(now) && now.Sub(start) < b.window
}
