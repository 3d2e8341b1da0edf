// Package arith defines the demonstration services served by sigrpcd.
//
// Calculator is a small arithmetic service built on the base registry.
// Checked extends Calculator: it overrides add to take an optional third
// operand and adds multiply, inheriting everything else.
package arith

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/mnehpets/sigrpc/jsonrpc"
)

// Calculator is the registry of the base arithmetic service.
var Calculator = jsonrpc.NewBuilder(jsonrpc.Base()).Register(
	jsonrpc.Proc("add(a=<num>, b=<num>) -> <num>", add,
		jsonrpc.Safe(), jsonrpc.Idempotent(), jsonrpc.Summary("Returns a + b.")),
	jsonrpc.Proc("subtract(a=<num>, b=<num>) -> <num>", subtract,
		jsonrpc.Safe(), jsonrpc.Idempotent(), jsonrpc.Summary("Returns a - b.")),
	jsonrpc.Proc("divide(a=<num>, b=<num>) -> <num>", divide,
		jsonrpc.Safe(), jsonrpc.Idempotent(), jsonrpc.Summary("Returns a / b.")),
	jsonrpc.Proc("sum(values=<arr>) -> <num>", sum,
		jsonrpc.Safe(), jsonrpc.Idempotent(), jsonrpc.Summary("Returns the sum of an array of numbers.")),
	jsonrpc.Proc("echo(value=<any>?) -> <any>", echo,
		jsonrpc.Summary("Returns its argument unchanged.")),
	jsonrpc.Proc("whoami() -> <obj>", whoami,
		jsonrpc.Safe(), jsonrpc.Summary("Reports how the call reached the service.")),
	jsonrpc.Proc("fail(message=<str>?) -> <nil>", fail, jsonrpc.Hidden()),
).Build()

// Checked is the registry of the extended arithmetic service.
var Checked = jsonrpc.NewBuilder(Calculator).Register(
	jsonrpc.Proc("add(a=<num>, b=<num>, c=<num>?) -> <num>", addChecked,
		jsonrpc.Safe(), jsonrpc.Idempotent(), jsonrpc.Summary("Returns a + b (+ c).")),
	jsonrpc.Proc("multiply(a=<num>, b=<num>) -> <num>", multiply,
		jsonrpc.Safe(), jsonrpc.Idempotent(), jsonrpc.Summary("Returns a * b.")),
).Build()

// CodeDivideByZero is reported by divide for a zero divisor.
const CodeDivideByZero = -32010

// maxExponent bounds the decimal exponent accepted for exact arithmetic.
const maxExponent = 400

// parseRat returns the exact value of n, refusing exponents that would make
// the rational unreasonably large.
func parseRat(n json.Number) (*big.Rat, bool) {
	s := n.String()
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(strings.TrimPrefix(s[i+1:], "+"))
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return nil, false
		}
	}
	return new(big.Rat).SetString(s)
}

// rat returns the exact value of a numeric parameter.
func rat(p jsonrpc.Params, name string) (*big.Rat, error) {
	r, ok := parseRat(p.Number(name))
	if !ok {
		return nil, jsonrpc.InvalidParamsError(fmt.Sprintf("`%s` is not a representable number.", name))
	}
	return r, nil
}

func operands(p jsonrpc.Params) (a, b *big.Rat, err error) {
	if a, err = rat(p, "a"); err != nil {
		return nil, nil, err
	}
	if b, err = rat(p, "b"); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// number returns r as a JSON number, exact when r is an integer.
func number(r *big.Rat) any {
	if r.IsInt() {
		return json.Number(r.Num().String())
	}
	f, _ := r.Float64()
	return f
}

func add(_ context.Context, p jsonrpc.Params) (any, error) {
	a, b, err := operands(p)
	if err != nil {
		return nil, err
	}
	return number(a.Add(a, b)), nil
}

func addChecked(_ context.Context, p jsonrpc.Params) (any, error) {
	a, b, err := operands(p)
	if err != nil {
		return nil, err
	}
	a.Add(a, b)
	if !p.IsNil("c") {
		c, err := rat(p, "c")
		if err != nil {
			return nil, err
		}
		a.Add(a, c)
	}
	return number(a), nil
}

func subtract(_ context.Context, p jsonrpc.Params) (any, error) {
	a, b, err := operands(p)
	if err != nil {
		return nil, err
	}
	return number(a.Sub(a, b)), nil
}

func multiply(_ context.Context, p jsonrpc.Params) (any, error) {
	a, b, err := operands(p)
	if err != nil {
		return nil, err
	}
	return number(a.Mul(a, b)), nil
}

func divide(_ context.Context, p jsonrpc.Params) (any, error) {
	a, b, err := operands(p)
	if err != nil {
		return nil, err
	}
	if b.Sign() == 0 {
		return nil, jsonrpc.ServerError(CodeDivideByZero, "Division by zero", "The divisor `b` must not be zero.")
	}
	return number(a.Quo(a, b)), nil
}

func sum(ctx context.Context, p jsonrpc.Params) (any, error) {
	start := time.Now()
	total := new(big.Rat)
	for i, v := range p.Array("values") {
		n, ok := v.(json.Number)
		if !ok {
			return nil, jsonrpc.InvalidParamsError(fmt.Sprintf("`values[%d]` should be of type num.", i))
		}
		r, ok := parseRat(n)
		if !ok {
			return nil, jsonrpc.InvalidParamsError(fmt.Sprintf("`values[%d]` is not a representable number.", i))
		}
		total.Add(total, r)
	}
	jsonrpc.LogQuery(ctx, fmt.Sprintf("SUM(%d values)", len(p.Array("values"))), time.Since(start))
	return number(total), nil
}

func echo(_ context.Context, p jsonrpc.Params) (any, error) {
	return p.Get("value"), nil
}

func whoami(ctx context.Context, _ jsonrpc.Params) (any, error) {
	call, ok := jsonrpc.CallFromContext(ctx)
	if !ok {
		return nil, jsonrpc.InternalError("No call in context.")
	}
	transport := "none"
	if call.Request != nil {
		transport = strings.ToUpper(call.Request.Method)
	}
	return map[string]any{
		"client":    call.ClientAddr,
		"method":    call.Method,
		"read_only": call.ReadOnly,
		"transport": transport,
	}, nil
}

func fail(_ context.Context, p jsonrpc.Params) (any, error) {
	msg := p.String("message")
	if msg == "" {
		msg = "fail called"
	}
	return nil, fmt.Errorf("arith: %s", msg)
}
