package sessioncookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRead(t *testing.T) {
	t.Parallel()

	if _, ok := Read(nil); ok {
		t.Fatalf("expected nil request to have no session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	if _, ok := Read(req); ok {
		t.Fatalf("expected missing cookie")
	}

	req.AddCookie(&http.Cookie{Name: Name, Value: "  tok-1  "})
	value, ok := Read(req)
	if !ok {
		t.Fatalf("expected cookie to be present")
	}
	if value != "tok-1" {
		t.Fatalf("value = %q, want %q", value, "tok-1")
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	Write(rr, "tok-1", 7*24*time.Hour, true)
	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Name != Name || cookie.Value != "tok-1" {
		t.Fatalf("cookie = %s=%s, want %s=tok-1", cookie.Name, cookie.Value, Name)
	}
	if !cookie.Secure || !cookie.HttpOnly {
		t.Fatalf("expected secure http-only cookie, got %+v", cookie)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v, want Lax", cookie.SameSite)
	}
	if cookie.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("MaxAge = %d", cookie.MaxAge)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	Clear(rr, false)
	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.MaxAge >= 0 {
		t.Fatalf("MaxAge = %d, want negative", cookie.MaxAge)
	}
	if cookie.Secure {
		t.Fatal("expected insecure cookie for plain http")
	}
}
