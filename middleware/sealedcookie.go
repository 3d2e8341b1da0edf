package middleware

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCookieFormat  = errors.New("invalid sealed cookie format")
	ErrCookieInvalid = errors.New("invalid sealed cookie")
	ErrCookieConfig  = errors.New("invalid sealed cookie configuration")
)

// maxCookieLen bounds the cookie value we are willing to decode.
const maxCookieLen = 4096

// KeySize is the key length, in bytes, accepted by NewSealedCookie.
const KeySize = chacha20poly1305.KeySize

// SealedCookie stores a CBOR-encoded value in a cookie, sealed with
// XChaCha20-Poly1305.
//
// Format: [keyID] "." base64url(nonce || ciphertext)
//
// The cookie name, domain, path and secure flag are bound into the
// additional data, so a value sealed for one cookie does not open as another.
// All keys in the key set are accepted when opening; keyID selects the key
// used for sealing.
type SealedCookie struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite

	keyID string
	aeads map[string]cipher.AEAD
}

// SealedCookieOption configures a SealedCookie.
type SealedCookieOption func(*SealedCookie)

// WithPath configures the cookie path.
func WithPath(path string) SealedCookieOption {
	return func(sc *SealedCookie) { sc.path = path }
}

// WithDomain configures the cookie domain.
func WithDomain(domain string) SealedCookieOption {
	return func(sc *SealedCookie) { sc.domain = domain }
}

// WithSecure configures the cookie secure flag.
func WithSecure(secure bool) SealedCookieOption {
	return func(sc *SealedCookie) { sc.secure = secure }
}

// WithSameSite configures the cookie SameSite attribute.
func WithSameSite(sameSite http.SameSite) SealedCookieOption {
	return func(sc *SealedCookie) { sc.sameSite = sameSite }
}

// NewSealedCookie creates a SealedCookie.
//
// Defaults:
//   - Path: /
//   - HttpOnly: true
//   - Secure: true
//   - SameSite: Lax
func NewSealedCookie(name, keyID string, keys map[string][]byte, opts ...SealedCookieOption) (*SealedCookie, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty cookie name", ErrCookieConfig)
	}
	if _, ok := keys[keyID]; !ok {
		return nil, fmt.Errorf("%w: key %q not in key set", ErrCookieConfig, keyID)
	}
	sc := &SealedCookie{
		name:     name,
		path:     "/",
		secure:   true,
		sameSite: http.SameSiteLaxMode,
		keyID:    keyID,
		aeads:    make(map[string]cipher.AEAD, len(keys)),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.path == "" {
		sc.path = "/"
	}
	for id, k := range keys {
		if id == "" || strings.Contains(id, ".") {
			return nil, fmt.Errorf("%w: invalid key id %q", ErrCookieConfig, id)
		}
		aead, err := chacha20poly1305.NewX(k)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrCookieConfig, id, err)
		}
		sc.aeads[id] = aead
	}
	return sc, nil
}

// ParseKeys parses "id:base64key" entries. The first entry is the sealing key.
func ParseKeys(entries []string) (keyID string, keys map[string][]byte, err error) {
	keys = make(map[string][]byte, len(entries))
	for i, e := range entries {
		id, enc, ok := strings.Cut(e, ":")
		if !ok || id == "" {
			return "", nil, fmt.Errorf("%w: key entry %d is not of the form id:key", ErrCookieConfig, i)
		}
		k, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return "", nil, fmt.Errorf("%w: key %q: %v", ErrCookieConfig, id, err)
		}
		if len(k) != KeySize {
			return "", nil, fmt.Errorf("%w: key %q has %d bytes, want %d", ErrCookieConfig, id, len(k), KeySize)
		}
		if _, dup := keys[id]; dup {
			return "", nil, fmt.Errorf("%w: duplicate key id %q", ErrCookieConfig, id)
		}
		if i == 0 {
			keyID = id
		}
		keys[id] = k
	}
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("%w: no keys", ErrCookieConfig)
	}
	return keyID, keys, nil
}

// Name returns the cookie name.
func (sc *SealedCookie) Name() string { return sc.name }

func (sc *SealedCookie) aad() []byte {
	secure := "f"
	if sc.secure {
		secure = "t"
	}
	return []byte(sc.name + ":" + sc.domain + ":" + sc.path + ":" + secure)
}

// Seal encodes v and returns a cookie carrying it for maxAge.
func (sc *SealedCookie) Seal(v any, maxAge time.Duration) (*http.Cookie, error) {
	secs := int(maxAge / time.Second)
	if secs <= 0 {
		return nil, fmt.Errorf("%w: max age %v", ErrCookieConfig, maxAge)
	}
	plain, err := cbor.Marshal(v)
	if err != nil {
		return nil, err
	}
	aead := sc.aeads[sc.keyID]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plain, sc.aad())
	return &http.Cookie{
		Name:     sc.name,
		Value:    sc.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed),
		Path:     sc.path,
		Domain:   sc.domain,
		MaxAge:   secs,
		Expires:  time.Now().Add(maxAge),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
	}, nil
}

// Open decodes a cookie produced by Seal into v.
func (sc *SealedCookie) Open(c *http.Cookie, v any) error {
	if c == nil || c.Value == "" || len(c.Value) > maxCookieLen {
		return ErrCookieFormat
	}
	keyID, enc, ok := strings.Cut(c.Value, ".")
	if !ok || keyID == "" || enc == "" {
		return ErrCookieFormat
	}
	aead, ok := sc.aeads[keyID]
	if !ok {
		return ErrCookieInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return ErrCookieFormat
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return ErrCookieFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, sc.aad())
	if err != nil {
		return ErrCookieInvalid
	}
	if err := cbor.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCookieInvalid, err)
	}
	return nil
}

// Read finds this cookie on r and opens it into v. It returns
// http.ErrNoCookie when the request does not carry the cookie.
func (sc *SealedCookie) Read(r *http.Request, v any) error {
	c, err := r.Cookie(sc.name)
	if err != nil {
		return err
	}
	return sc.Open(c, v)
}

// Clear returns a cookie that removes this cookie from the client.
func (sc *SealedCookie) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     sc.name,
		Path:     sc.path,
		Domain:   sc.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   sc.secure,
		HttpOnly: true,
		SameSite: sc.sameSite,
	}
}
