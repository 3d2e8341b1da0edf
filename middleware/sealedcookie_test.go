package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testPayload struct {
	Msg string
	Num int
}

func newKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		t.Fatalf("rand.Read(key): %v", err)
	}
	return k
}

func TestSealedCookie_RoundTrip(t *testing.T) {
	sc, err := NewSealedCookie("sc", "a", map[string][]byte{"a": newKey(t)},
		WithPath("/rpc"), WithDomain("example.com"), WithSecure(false), WithSameSite(http.SameSiteStrictMode))
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}

	want := testPayload{Msg: "hello world", Num: 1}
	ck, err := sc.Seal(want, time.Hour)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if ck.Name != "sc" || ck.Path != "/rpc" || ck.Domain != "example.com" {
		t.Errorf("cookie scope: got name=%q path=%q domain=%q", ck.Name, ck.Path, ck.Domain)
	}
	if !ck.HttpOnly || ck.Secure || ck.SameSite != http.SameSiteStrictMode || ck.MaxAge != 3600 {
		t.Errorf("cookie attributes: %+v", ck)
	}
	if !strings.HasPrefix(ck.Value, "a.") {
		t.Errorf("cookie value %q does not carry the key id", ck.Value)
	}

	var got testPayload
	if err := sc.Open(ck, &got); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestSealedCookie_KeyRotation(t *testing.T) {
	k1, k2 := newKey(t), newKey(t)
	before, err := NewSealedCookie("sc", "old", map[string][]byte{"old": k1})
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}
	after, err := NewSealedCookie("sc", "new", map[string][]byte{"old": k1, "new": k2})
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}

	ck, err := before.Seal(testPayload{Num: 7}, time.Minute)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	var got testPayload
	if err := after.Open(ck, &got); err != nil || got.Num != 7 {
		t.Fatalf("Open with rotated keys: got %+v, %v", got, err)
	}

	ck, err = after.Seal(testPayload{Num: 8}, time.Minute)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(ck.Value, "new.") {
		t.Errorf("cookie value %q not sealed with the current key", ck.Value)
	}
	if err := before.Open(ck, &got); !errors.Is(err, ErrCookieInvalid) {
		t.Errorf("Open with unknown key id: got %v, want ErrCookieInvalid", err)
	}
}

func TestSealedCookie_Open_Rejects(t *testing.T) {
	key := newKey(t)
	sc, err := NewSealedCookie("sc", "a", map[string][]byte{"a": key})
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}
	other, err := NewSealedCookie("other", "a", map[string][]byte{"a": key})
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}
	good, err := sc.Seal(testPayload{Msg: "x"}, time.Minute)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	fromOther, err := other.Seal(testPayload{Msg: "x"}, time.Minute)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := []byte(good.Value)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	tests := []struct {
		name  string
		value string
		want  error
	}{
		{"empty", "", ErrCookieFormat},
		{"no separator", "abc", ErrCookieFormat},
		{"empty key id", ".abc", ErrCookieFormat},
		{"bad base64", "a.!!!", ErrCookieFormat},
		{"too short", "a." + base64.RawURLEncoding.EncodeToString([]byte("short")), ErrCookieFormat},
		{"too long", "a." + strings.Repeat("A", maxCookieLen), ErrCookieFormat},
		{"unknown key", "z." + strings.SplitN(good.Value, ".", 2)[1], ErrCookieInvalid},
		{"tampered", string(tampered), ErrCookieInvalid},
		{"other cookie name", fromOther.Value, ErrCookieInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got testPayload
			err := sc.Open(&http.Cookie{Name: "sc", Value: tt.value}, &got)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
	if err := sc.Open(nil, &testPayload{}); !errors.Is(err, ErrCookieFormat) {
		t.Errorf("nil cookie: got %v", err)
	}
}

func TestSealedCookie_Read(t *testing.T) {
	sc, err := NewSealedCookie("sc", "a", map[string][]byte{"a": newKey(t)})
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}
	var got testPayload
	if err := sc.Read(httptest.NewRequest(http.MethodGet, "/", nil), &got); !errors.Is(err, http.ErrNoCookie) {
		t.Errorf("missing cookie: got %v, want http.ErrNoCookie", err)
	}

	ck, err := sc.Seal(testPayload{Msg: "hi"}, time.Minute)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	if err := sc.Read(req, &got); err != nil || got.Msg != "hi" {
		t.Errorf("Read: got %+v, %v", got, err)
	}
}

func TestSealedCookie_Clear(t *testing.T) {
	sc, err := NewSealedCookie("sc", "a", map[string][]byte{"a": newKey(t)}, WithPath(""))
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}
	ck := sc.Clear()
	if ck.Name != "sc" || ck.Path != "/" || ck.MaxAge != -1 || ck.Value != "" || !ck.HttpOnly {
		t.Errorf("Clear: %+v", ck)
	}
}

func TestNewSealedCookie_Config(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		keyID  string
		keys   map[string][]byte
	}{
		{"empty name", "", "a", map[string][]byte{"a": newKey(t)}},
		{"missing key id", "sc", "b", map[string][]byte{"a": newKey(t)}},
		{"nil keys", "sc", "a", nil},
		{"short key", "sc", "a", map[string][]byte{"a": []byte("short")}},
		{"dotted key id", "sc", "a.b", map[string][]byte{"a.b": newKey(t)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSealedCookie(tt.cookie, tt.keyID, tt.keys); !errors.Is(err, ErrCookieConfig) {
				t.Errorf("got %v, want ErrCookieConfig", err)
			}
		})
	}

	sc, err := NewSealedCookie("sc", "a", map[string][]byte{"a": newKey(t)})
	if err != nil {
		t.Fatalf("NewSealedCookie: %v", err)
	}
	if _, err := sc.Seal(testPayload{}, 0); !errors.Is(err, ErrCookieConfig) {
		t.Errorf("Seal with zero max age: got %v", err)
	}
}

func TestParseKeys(t *testing.T) {
	k1 := base64.StdEncoding.EncodeToString(newKey(t))
	k2 := base64.StdEncoding.EncodeToString(newKey(t))

	keyID, keys, err := ParseKeys([]string{"two:" + k2, "one:" + k1})
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}
	if keyID != "two" || len(keys) != 2 {
		t.Errorf("got keyID %q with %d keys", keyID, len(keys))
	}

	for _, bad := range [][]string{
		nil,
		{"nokey"},
		{":" + k1},
		{"a:not base64!"},
		{"a:" + base64.StdEncoding.EncodeToString([]byte("short"))},
		{"a:" + k1, "a:" + k2},
	} {
		if _, _, err := ParseKeys(bad); !errors.Is(err, ErrCookieConfig) {
			t.Errorf("ParseKeys(%q): got %v, want ErrCookieConfig", bad, err)
		}
	}
}
