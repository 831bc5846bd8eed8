package clientadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kuiperzone/implink/internal/logging"
	"github.com/kuiperzone/implink/internal/profile"
)

func stubProfile(id string) *profile.ClientProfile {
	return &profile.ClientProfile{
		ID: id, Kind: profile.KindStub, BaseAddress: "http://localhost/",
		TimeoutMS: 1000, Enabled: true,
	}
}

func TestStubEchoesOKByDefault(t *testing.T) {
	a, err := New(stubProfile("A"), logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	resp, err := a.Send(context.Background(), &profile.NativeMessage{Text: "hello", UserName: "alice", MsgID: "abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusOK || resp.Content != "abc123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestStubReflectsStatusName(t *testing.T) {
	a, _ := New(stubProfile("B"), logging.Nop())
	resp, _ := a.Send(context.Background(), &profile.NativeMessage{Text: "InternalServerError"})
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Status)
	}
}

func TestTruncationIdempotence(t *testing.T) {
	p := stubProfile("C")
	p.MaxText = 10
	if _, err := New(p, logging.Nop()); err != nil {
		t.Fatal(err)
	}

	msg := &profile.NativeMessage{Text: "this text is definitely too long", UserName: "bob"}
	out := applyTextPolicy(msg, p.PrefixUser, p.MaxText)
	if len(out.Text) > p.MaxText {
		t.Fatalf("expected length <= %d, got %d (%q)", p.MaxText, len(out.Text), out.Text)
	}
	if !strings.HasSuffix(out.Text, "...") {
		t.Fatalf("expected truncation suffix, got %q", out.Text)
	}

	reforwarded := applyTextPolicy(out, p.PrefixUser, p.MaxText)
	if reforwarded.Text != out.Text {
		t.Fatalf("re-forwarding truncated text should be stable, got %q then %q", out.Text, reforwarded.Text)
	}
	if msg.Text == out.Text {
		t.Fatal("original message must not be mutated by truncation")
	}
}

func TestUserPrefixAppliedBeforeTruncation(t *testing.T) {
	p := stubProfile("D")
	p.PrefixUser = true
	p.MaxText = 12

	out := applyTextPolicy(&profile.NativeMessage{Text: "hello world", UserName: "alice"}, p.PrefixUser, p.MaxText)
	if !strings.HasPrefix(out.Text, "alice: ") {
		t.Fatalf("expected userName prefix, got %q", out.Text)
	}
	if len(out.Text) > p.MaxText {
		t.Fatalf("expected final length <= %d, got %d", p.MaxText, len(out.Text))
	}
}

func TestUserPrefixNotDuplicated(t *testing.T) {
	out := applyTextPolicy(&profile.NativeMessage{Text: "alice: already prefixed", UserName: "alice"}, true, 0)
	if strings.Count(out.Text, "alice: ") != 1 {
		t.Fatalf("prefix should not be duplicated, got %q", out.Text)
	}
}

func TestImpV1NonOKStatusSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":502,"content":"upstream down"}`))
	}))
	defer srv.Close()

	p := &profile.ClientProfile{
		ID: "E", Kind: profile.KindImpV1, BaseAddress: srv.URL, TimeoutMS: 2000, Enabled: true,
		Secret: map[string]string{"SECRET": "K1"},
	}
	a, err := New(p, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	resp, _ := a.Send(context.Background(), &profile.NativeMessage{Text: "hi", UserName: "u"})
	if resp.Status != http.StatusBadGateway || resp.Content != "upstream down" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLazyHTTPClientOnlyBuiltOnSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":200}`))
	}))
	defer srv.Close()

	p := &profile.ClientProfile{ID: "F", Kind: profile.KindImpV1, BaseAddress: srv.URL, TimeoutMS: 1000, Enabled: true}
	a, err := New(p, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if a.httpClient.Load() != nil {
		t.Fatal("http client must not be constructed before first send")
	}
	if _, err := a.Send(context.Background(), &profile.NativeMessage{Text: "hi", UserName: "u"}); err != nil {
		t.Fatal(err)
	}
	if a.httpClient.Load() == nil {
		t.Fatal("http client should be constructed after first send")
	}
}
