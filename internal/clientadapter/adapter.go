// Package clientadapter implements C4 ClientAdapter: a tagged variant
// whose Send switches on the profile's kind, one branch per vendor. Each adapter owns
// its HTTP client, materialized lazily on first send.
package clientadapter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/hmac"
	"github.com/kuiperzone/implink/internal/profile"
)

// Adapter is a live, per-endpoint ClientAdapter. It is owned
// exclusively by a ClientRegistry and referenced (never owned) by
// MessageRouters, per spec §3 Ownership.
type Adapter struct {
	profile profile.ClientProfile
	log     *zap.Logger

	baseAddress string
	auth        *hmac.Authenticator

	once       sync.Once
	httpClient atomic.Pointer[http.Client]
}

// New builds an Adapter for p. The HTTP client is not created here;
// it is constructed lazily on first Send.
func New(p *profile.ClientProfile, log *zap.Logger) (*Adapter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	base := p.BaseAddress
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	a := &Adapter{profile: *p, log: log, baseAddress: base}
	if p.Kind == profile.KindImpV1 {
		a.auth = hmac.New([]byte(p.Secret["SECRET"]), 0)
	}
	return a, nil
}

// client returns the lazily-constructed HTTP client, building it under
// a sync.Once so unused profiles never open a connection, per spec
// §4.4. The client itself lives behind an atomic.Pointer rather than a
// bare field so Close (which may run concurrently with a displaced
// adapter's in-flight or just-starting Send, per spec §3/§5) never
// races with this store.
func (a *Adapter) client() *http.Client {
	a.once.Do(func() {
		transport := &http.Transport{}
		if a.profile.DisableTLSValidation {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		a.httpClient.Store(&http.Client{
			Transport: transport,
			Timeout:   time.Duration(a.profile.TimeoutMS) * time.Millisecond,
		})
	})
	return a.httpClient.Load()
}

// Kind returns the adapter's variant tag.
func (a *Adapter) Kind() profile.ClientKind { return a.profile.Kind }

// ID returns the adapter's client profile id.
func (a *Adapter) ID() string { return a.profile.ID }

// applyTextPolicy applies the user-prefix policy then the truncation
// policy, on a copy, per spec §4.4. Prefix runs before truncation.
func applyTextPolicy(msg *profile.NativeMessage, prefixUser bool, maxText int) *profile.NativeMessage {
	out := msg
	copied := false
	ensureCopy := func() {
		if !copied {
			out = msg.Clone()
			copied = true
		}
	}

	if prefixUser && strings.TrimSpace(msg.UserName) != "" {
		prefix := msg.UserName + ": "
		if !strings.HasPrefix(msg.Text, prefix) {
			ensureCopy()
			out.Text = prefix + out.Text
		}
	}

	if maxText > 3 && len(out.Text) > maxText-3 {
		ensureCopy()
		out.Text = out.Text[:maxText-3] + "..."
	}

	return out
}

// Send dispatches msg through this adapter's vendor variant. Any
// transport failure is mapped to a NativeResponse rather than returned
// as a Go error, per spec §4.4/§7 — the returned error is reserved for
// truly unexpected programming errors and is always nil in practice.
func (a *Adapter) Send(ctx context.Context, msg *profile.NativeMessage) (profile.NativeResponse, error) {
	out := applyTextPolicy(msg, a.profile.PrefixUser, a.profile.MaxText)

	switch a.profile.Kind {
	case profile.KindStub:
		return a.sendStub(out), nil
	case profile.KindImpV1:
		return a.sendImpV1(ctx, out), nil
	case profile.KindTwitter:
		return a.sendVendor(ctx, out, "Twitter"), nil
	case profile.KindFacebook:
		return a.sendVendor(ctx, out, "Facebook"), nil
	default:
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: "unknown client kind"}, nil
	}
}

// sendStub implements the test-only Stub variant of spec §4.4: if Text
// parses as an HTTP status name, reflect that status; otherwise return
// OK and echo or generate a msgId.
func (a *Adapter) sendStub(msg *profile.NativeMessage) profile.NativeResponse {
	if code, ok := statusByName(msg.Text); ok {
		if code >= 200 && code < 300 {
			return profile.NativeResponse{Status: code, Content: msg.MsgID}
		}
		return profile.NativeResponse{Status: code, Content: fmt.Sprintf("stub: simulated %d", code)}
	}
	content := msg.MsgID
	if content == "" {
		content = "stub-generated-id"
	}
	return profile.NativeResponse{Status: http.StatusOK, Content: content}
}

var statusNames = map[string]int{
	"OK":                  http.StatusOK,
	"BadRequest":          http.StatusBadRequest,
	"Unauthorized":        http.StatusUnauthorized,
	"Forbidden":           http.StatusForbidden,
	"NotFound":            http.StatusNotFound,
	"RequestTimeout":      http.StatusRequestTimeout,
	"TooManyRequests":     http.StatusTooManyRequests,
	"InternalServerError": http.StatusInternalServerError,
	"BadGateway":          http.StatusBadGateway,
	"ServiceUnavailable":  http.StatusServiceUnavailable,
}

func statusByName(s string) (int, bool) {
	if code, ok := statusNames[s]; ok {
		return code, true
	}
	if code, err := strconv.Atoi(s); err == nil && code >= 100 && code < 600 {
		return code, true
	}
	return 0, false
}

// sendImpV1 posts JSON to baseAddress/PostMessage, signed with this
// profile's SECRET, per spec §4.4.
func (a *Adapter) sendImpV1(ctx context.Context, msg *profile.NativeMessage) profile.NativeResponse {
	body, err := json.Marshal(msg)
	if err != nil {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: err.Error()}
	}

	u, err := url.Parse(a.baseAddress + "PostMessage")
	if err != nil {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if a.profile.UserAgent != "" {
		req.Header.Set("User-Agent", a.profile.UserAgent)
	}
	if a.auth != nil {
		ts, nonce, sig, signErr := a.auth.Sign(body)
		if signErr == nil {
			req.Header.Set(hmac.HeaderTimestamp, ts)
			req.Header.Set(hmac.HeaderNonce, nonce)
			req.Header.Set(hmac.HeaderSign, sig)
			req.Header.Set(hmac.HeaderAPI, "ImpV1")
		}
	}

	resp, respBody, err := a.do(req)
	if err != nil {
		return err.(*sendErr).response
	}

	var decoded profile.NativeResponse
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &decoded)
	}
	if decoded.Status != 0 && decoded.Status != resp.StatusCode {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: "declared status does not match transport status"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		content := decoded.Content
		if content == "" {
			content = string(respBody)
		}
		return profile.NativeResponse{Status: resp.StatusCode, Content: content}
	}
	return profile.NativeResponse{Status: resp.StatusCode, Content: decoded.Content}
}

// sendVendor is the shared transport for the Twitter/Facebook variants.
// The translation of a NativeMessage into the vendor's create-post
// request shape is an external collaborator per spec §1 — this
// implements only the fixed send/timeout/error-mapping contract of
// §4.4 common to all vendor variants.
func (a *Adapter) sendVendor(ctx context.Context, msg *profile.NativeMessage, vendor string) profile.NativeResponse {
	body, _ := json.Marshal(map[string]string{"status": msg.Text})

	u, err := url.Parse(a.baseAddress + "statuses/update")
	if err != nil {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if a.profile.UserAgent != "" {
		req.Header.Set("User-Agent", a.profile.UserAgent)
	}

	resp, respBody, err := a.do(req)
	if err != nil {
		return err.(*sendErr).response
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return profile.NativeResponse{Status: resp.StatusCode, Content: fmt.Sprintf("%s: %s", vendor, string(respBody))}
	}
	return profile.NativeResponse{Status: resp.StatusCode, Content: msg.MsgID}
}

// sendErr carries a pre-mapped NativeResponse for transport failures
// so callers can propagate it without re-deriving status codes.
type sendErr struct {
	response profile.NativeResponse
}

func (e *sendErr) Error() string { return e.response.Content }

// do executes req, mapping transport exceptions to 500 and timeouts to
// 408 per spec §4.4, and reads the body fully as UTF-8.
func (a *Adapter) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := a.client().Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, &sendErr{response: profile.NativeResponse{Status: http.StatusRequestTimeout, Content: err.Error()}}
		}
		return nil, nil, &sendErr{response: profile.NativeResponse{Status: http.StatusInternalServerError, Content: err.Error()}}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, nil, &sendErr{response: profile.NativeResponse{Status: http.StatusInternalServerError, Content: readErr.Error()}}
	}
	return resp, body, nil
}

type timeouter interface{ Timeout() bool }

func isTimeout(err error) bool {
	for err != nil {
		if te, ok := err.(timeouter); ok && te.Timeout() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Close releases the adapter's HTTP client resources asynchronously,
// allowing in-flight sends to finish up to their configured timeout,
// per spec §4.6 disposal rules.
func (a *Adapter) Close() {
	go func() {
		if c := a.httpClient.Load(); c != nil {
			c.CloseIdleConnections()
		}
	}()
}
