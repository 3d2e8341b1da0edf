package jsonrpc

import (
	"expvar"
	"strconv"
)

// serviceMetrics record call activity counters.
type serviceMetrics struct {
	calls       expvar.Int // calls received
	callsFailed expvar.Int // calls answered with an error
	callsActive expvar.Int // calls in progress
	panics      expvar.Int // handler panics recovered
	errCodes    expvar.Map // error responses by code

	emap *expvar.Map
}

func newServiceMetrics() *serviceMetrics {
	m := &serviceMetrics{emap: new(expvar.Map)}
	m.errCodes.Init()
	m.emap.Set("calls", &m.calls)
	m.emap.Set("calls_failed", &m.callsFailed)
	m.emap.Set("calls_active", &m.callsActive)
	m.emap.Set("handler_panics", &m.panics)
	m.emap.Set("errors_by_code", &m.errCodes)
	return m
}

func (m *serviceMetrics) finish(rsp *Response) {
	m.callsActive.Add(-1)
	if rsp.Error != nil {
		m.callsFailed.Add(1)
		m.errCodes.Add(strconv.Itoa(rsp.Error.Code), 1)
	}
}

// Metrics returns the service's counters. The map is live; publish it with
// expvar.Publish to expose it.
func (s *Service) Metrics() *expvar.Map { return s.metrics.emap }

// replace corrects the counters when rsp, already counted, is replaced by
// next before it is sent.
func (m *serviceMetrics) replace(rsp, next *Response) {
	if rsp.Error != nil {
		m.errCodes.Add(strconv.Itoa(rsp.Error.Code), -1)
	} else if next.Error != nil {
		m.callsFailed.Add(1)
	}
	if next.Error != nil {
		m.errCodes.Add(strconv.Itoa(next.Error.Code), 1)
	}
}
