package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/sigrpc/endpoint"
)

// SecurityHeadersProcessor adds hardening headers to RPC responses. Empty
// string fields and a nil HSTS are not sent.
//
// X-Content-Type-Options: nosniff keeps browsers from executing a JSON
// error body that was loaded through a JSON-P script tag.
type SecurityHeadersProcessor struct {
	HSTS                      *HSTSConfig // Strict-Transport-Security
	ReferrerPolicy            string      // Referrer-Policy
	FrameOptions              string      // X-Frame-Options
	ContentTypeOptions        bool        // X-Content-Type-Options: nosniff
	ContentSecurityPolicy     string      // Content-Security-Policy
	CacheControl              string      // Cache-Control
	CrossOriginResourcePolicy string      // Cross-Origin-Resource-Policy; "cross-origin" for JSON-P
}

// HSTSConfig is the Strict-Transport-Security policy. A MaxAge (seconds) of
// zero or less disables it.
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// SecurityHeadersOption modifies a SecurityHeadersProcessor.
type SecurityHeadersOption func(*SecurityHeadersProcessor)

// NewSecurityHeadersProcessor returns a processor for responses that are
// never rendered as documents: nosniff, no-store, no referrer, a CSP that
// allows nothing, and no framing. HSTS is off until WithHSTS is given.
func NewSecurityHeadersProcessor(opts ...SecurityHeadersOption) *SecurityHeadersProcessor {
	p := &SecurityHeadersProcessor{
		ContentTypeOptions:    true,
		CacheControl:          "no-store",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:          "DENY",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHSTS sets the Strict-Transport-Security policy. Only use it on
// servers reached over TLS.
func WithHSTS(maxAge int, includeSubDomains, preload bool) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = &HSTSConfig{MaxAge: maxAge, IncludeSubDomains: includeSubDomains, Preload: preload}
	}
}

// WithReferrerPolicy sets Referrer-Policy. Empty disables the header.
func WithReferrerPolicy(policy string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.ReferrerPolicy = policy }
}

// WithFrameOptions sets X-Frame-Options, such as "DENY" or "SAMEORIGIN".
func WithFrameOptions(v string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.FrameOptions = v }
}

// WithCSP sets Content-Security-Policy.
func WithCSP(policy string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.ContentSecurityPolicy = policy }
}

// WithCacheControl sets Cache-Control. Responses to GET calls of safe
// methods may be cached when this allows it.
func WithCacheControl(v string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.CacheControl = v }
}

// WithCrossOriginResourcePolicy sets Cross-Origin-Resource-Policy. JSON-P
// callers on other origins need "cross-origin".
func WithCrossOriginResourcePolicy(policy string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.CrossOriginResourcePolicy = policy }
}

// headers returns the header values p sends, empty values included.
func (p *SecurityHeadersProcessor) headers() [][2]string {
	nosniff := ""
	if p.ContentTypeOptions {
		nosniff = "nosniff"
	}
	return [][2]string{
		{"Strict-Transport-Security", formatHSTS(p.HSTS)},
		{"X-Content-Type-Options", nosniff},
		{"Cache-Control", p.CacheControl},
		{"Referrer-Policy", p.ReferrerPolicy},
		{"Content-Security-Policy", p.ContentSecurityPolicy},
		{"X-Frame-Options", p.FrameOptions},
		{"Cross-Origin-Resource-Policy", p.CrossOriginResourcePolicy},
	}
}

// Process implements endpoint.Processor.
func (p *SecurityHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next endpoint.Next) error {
	h := w.Header()
	for _, kv := range p.headers() {
		if kv[1] != "" {
			h.Set(kv[0], kv[1])
		}
	}
	return next(w, r)
}

func formatHSTS(c *HSTSConfig) string {
	if c == nil || c.MaxAge <= 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("max-age=")
	b.WriteString(strconv.Itoa(c.MaxAge))
	if c.IncludeSubDomains {
		b.WriteString("; includeSubDomains")
	}
	if c.Preload {
		b.WriteString("; preload")
	}
	return b.String()
}

var _ endpoint.Processor = (*SecurityHeadersProcessor)(nil)
