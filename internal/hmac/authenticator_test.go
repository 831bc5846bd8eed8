package hmac

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/kuiperzone/implink/internal/noncecache"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	a := New([]byte("K1"), 30)
	body := []byte(`{"text":"hello"}`)

	ts, nonce, sig, err := a.Sign(body)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	h := http.Header{}
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderSign, sig)

	if reason := a.Verify(h, body); reason != "" {
		t.Fatalf("expected verify to pass, got reason %q", reason)
	}
}

func TestVerifyFailsOnTamperedBody(t *testing.T) {
	a := New([]byte("K1"), 30)
	body := []byte(`{"text":"hello"}`)
	ts, nonce, sig, _ := a.Sign(body)

	h := http.Header{}
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderSign, sig)

	if reason := a.Verify(h, []byte(`{"text":"tampered"}`)); reason == "" {
		t.Fatal("expected verify to fail on tampered body")
	}
}

func TestVerifyFailsOnTamperedTimestamp(t *testing.T) {
	a := New([]byte("K1"), 30)
	body := []byte("body")
	ts, nonce, sig, _ := a.Sign(body)
	tsInt, _ := strconv.ParseInt(ts, 10, 64)

	h := http.Header{}
	h.Set(HeaderTimestamp, strconv.FormatInt(tsInt+1, 10))
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderSign, sig)

	if reason := a.Verify(h, body); reason == "" {
		t.Fatal("expected verify to fail when timestamp is altered post-signing")
	}
}

func TestVerifyFailsOnTamperedNonce(t *testing.T) {
	a := New([]byte("K1"), 30)
	body := []byte("body")
	ts, _, sig, _ := a.Sign(body)

	h := http.Header{}
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderNonce, "different-nonce")
	h.Set(HeaderSign, sig)

	if reason := a.Verify(h, body); reason == "" {
		t.Fatal("expected verify to fail when nonce is altered post-signing")
	}
}

func TestSkewEnvelope(t *testing.T) {
	a := New([]byte("K1"), 30)
	body := []byte("body")

	within := a.now().Add(-20 * time.Second).Unix()
	h := http.Header{}
	h.Set(HeaderTimestamp, strconv.FormatInt(within, 10))
	h.Set(HeaderNonce, "n")
	h.Set(HeaderSign, a.sign(strconv.FormatInt(within, 10), "n", body))
	if reason := a.Verify(h, body); reason != "" {
		t.Fatalf("expected timestamp within skew to verify, got %q", reason)
	}

	outside := a.now().Add(-40 * time.Second).Unix()
	h2 := http.Header{}
	h2.Set(HeaderTimestamp, strconv.FormatInt(outside, 10))
	h2.Set(HeaderNonce, "n")
	h2.Set(HeaderSign, a.sign(strconv.FormatInt(outside, 10), "n", body))
	reason := a.Verify(h2, body)
	if reason == "" {
		t.Fatal("expected timestamp outside skew to fail")
	}
}

func TestVerifyRejectsReplayedNonceWhenCacheEnabled(t *testing.T) {
	cache, err := noncecache.New(16)
	if err != nil {
		t.Fatalf("noncecache.New: %v", err)
	}

	a := New([]byte("K1"), 30)
	a.UseNonceCache(cache, "route-1")

	body := []byte("body")
	ts, nonce, sig, _ := a.Sign(body)
	h := http.Header{}
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderSign, sig)

	if reason := a.Verify(h, body); reason != "" {
		t.Fatalf("expected first use to verify, got %q", reason)
	}
	if reason := a.Verify(h, body); reason == "" {
		t.Fatal("expected replayed nonce to be rejected once the cache is enabled")
	}
}

func TestVerifyAllowsRepeatNonceWhenCacheDisabled(t *testing.T) {
	a := New([]byte("K1"), 30)
	body := []byte("body")
	ts, nonce, sig, _ := a.Sign(body)
	h := http.Header{}
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderSign, sig)

	if reason := a.Verify(h, body); reason != "" {
		t.Fatalf("expected first use to verify, got %q", reason)
	}
	if reason := a.Verify(h, body); reason != "" {
		t.Fatalf("expected stateless contract to hold with no cache configured, got %q", reason)
	}
}

func TestVerifyDisabledWhenSecretEmpty(t *testing.T) {
	a := New(nil, 30)
	h := http.Header{}
	if reason := a.Verify(h, []byte("anything")); reason != "" {
		t.Fatalf("expected verification disabled with empty secret, got %q", reason)
	}
}
