// Package msgrouter implements C6 MessageRouter: the gate sequence and
// fan-out of spec §4.6, the central state of the router core.
package msgrouter

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/clientadapter"
	"github.com/kuiperzone/implink/internal/dispatch"
	"github.com/kuiperzone/implink/internal/hmac"
	"github.com/kuiperzone/implink/internal/metrics"
	"github.com/kuiperzone/implink/internal/noncecache"
	"github.com/kuiperzone/implink/internal/profile"
	"github.com/kuiperzone/implink/internal/ratecounter"
)

// namedClient pairs a resolved adapter with the name it was resolved
// from, preserving clients-list declaration order for fan-out.
type namedClient struct {
	name    string
	adapter *clientadapter.Adapter
}

// Router is one route's live MessageRouter. Router holds non-owning
// references into the ClientRegistry's adapters (spec §3 Ownership);
// it never disposes them.
type Router struct {
	profile *profile.RouteProfile
	clients []namedClient

	rate *ratecounter.RateCounter
	auth *hmac.Authenticator

	waitOnForward bool
	dispatcher    *dispatch.Pool
	log           *zap.Logger
	metrics       *metrics.Metrics
}

// Resolver looks up a live ClientAdapter by client profile id. Routers
// resolve their client names through Resolver once, at construction
// time, and keep each name with its resolved adapter; the client
// registry holds no back-pointer to its routers (spec §9).
type Resolver func(name string) (*clientadapter.Adapter, bool)

// New builds a Router from profile p, resolving p.Clients through
// resolve. Unresolved names produce a warning, not a failure, per spec
// §4.6. nonceCache is nil unless Config.NonceCache.Enabled, per §4.10.
func New(p *profile.RouteProfile, resolve Resolver, waitOnForward bool, dispatcher *dispatch.Pool, log *zap.Logger, m *metrics.Metrics, nonceCache *noncecache.Cache) *Router {
	auth := hmac.New([]byte(p.Secret), 0)
	if nonceCache != nil {
		auth.UseNonceCache(nonceCache, p.ID)
	}

	r := &Router{
		profile:       p,
		rate:          ratecounter.New(p.ThrottleRate),
		auth:          auth,
		waitOnForward: waitOnForward,
		dispatcher:    dispatcher,
		log:           log,
		metrics:       m,
	}

	for _, name := range p.Clients {
		if a, ok := resolve(name); ok {
			r.clients = append(r.clients, namedClient{name: name, adapter: a})
		} else if log != nil {
			log.Warn("route references unresolved client", zap.String("route", p.ID), zap.String("client", name))
		}
	}

	return r
}

// Profile returns the route profile this Router was built from.
func (r *Router) Profile() *profile.RouteProfile { return r.profile }

// direction mirrors config.Direction's string values without
// importing the config package into the routing core.
func (r *Router) direction() string {
	if r.profile.IsRemoteOriginated {
		return "remote-originated"
	}
	return "remote-terminated"
}

const msgIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func generateMsgID() string {
	buf := make([]byte, 12)
	rand.Read(buf)
	out := make([]byte, 12)
	for i, b := range buf {
		out[i] = msgIDAlphabet[int(b)%len(msgIDAlphabet)]
	}
	return string(out)
}

// PostMessage is the primary operation of spec §4.6. It never lets a
// panic escape: it recovers any panic itself and returns it as a 500
// NativeResponse.
func (r *Router) PostMessage(ctx context.Context, headers hmac.HeaderGetter, body []byte, msg *profile.NativeMessage) (resp profile.NativeResponse) {
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveRequest(r.direction(), r.profile.ID, strconv.Itoa(resp.Status))
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			resp = profile.NativeResponse{Status: http.StatusInternalServerError, Content: fmt.Sprintf("%v", rec)}
		}
	}()

	if err := msg.CheckValidity(r.profile.IsRemoteOriginated); err != nil {
		return profile.NativeResponse{Status: http.StatusBadRequest, Content: err.Error()}
	}

	if reason := r.auth.Verify(headers, body); reason != "" {
		return profile.NativeResponse{Status: http.StatusUnauthorized, Content: "Authentication failed"}
	}

	if !r.profile.Enabled {
		return profile.NativeResponse{Status: http.StatusBadRequest, Content: "route is disabled"}
	}

	if len(r.profile.Tags) > 0 {
		if _, ok := r.profile.Tags[msg.Tag]; !ok {
			return profile.NativeResponse{Status: http.StatusBadRequest, Content: "Invalid message tag"}
		}
	}

	if !r.profile.Replies && msg.ParentMsgID != "" {
		return profile.NativeResponse{Status: http.StatusBadRequest, Content: "replies are not permitted on this route"}
	}

	if r.rate.IsThrottled(true) {
		if r.metrics != nil {
			r.metrics.ObserveThrottle(r.profile.ID)
		}
		return profile.NativeResponse{Status: http.StatusTooManyRequests, Content: "Requests limit reached"}
	}

	if len(r.clients) == 0 {
		return profile.NativeResponse{Status: http.StatusInternalServerError, Content: "route has no resolvable clients"}
	}

	if msg.MsgID == "" {
		msg.MsgID = generateMsgID()
	}

	return r.fanOut(ctx, msg)
}

// fanOut dispatches msg to every resolved client in declaration order,
// per spec §4.6.
func (r *Router) fanOut(ctx context.Context, msg *profile.NativeMessage) profile.NativeResponse {
	status := http.StatusOK
	success := 0
	var errs []string
	latched := false

	for _, nc := range r.clients {
		if msg.ParentMsgID != "" && nc.adapter.Kind() != profile.KindImpV1 {
			errs = append(errs, fmt.Sprintf("%s: replies are not supported by this client", nc.name))
			if !latched {
				status = http.StatusBadRequest
				latched = true
			}
			continue
		}

		if r.waitOnForward {
			start := time.Now()
			resp, _ := nc.adapter.Send(ctx, msg)
			r.observe(nc.name, resp, time.Since(start))
			if resp.OK() {
				success++
			} else {
				reason := resp.Content
				if reason == "" {
					reason = fmt.Sprintf("status %d", resp.Status)
				}
				errs = append(errs, fmt.Sprintf("%s: %s", nc.name, reason))
				if !latched {
					status = resp.Status
					latched = true
				}
			}
			continue
		}

		// Non-waiting (production) mode: fire-and-forget, counted as
		// accepted immediately; the real outcome is only logged.
		adapter := nc.adapter
		name := nc.name
		cloned := msg.Clone()
		r.dispatcher.Enqueue(func() {
			start := time.Now()
			resp, _ := adapter.Send(context.Background(), cloned)
			r.observe(name, resp, time.Since(start))
			if r.log != nil && !resp.OK() {
				r.log.Warn("async fan-out send failed",
					zap.String("route", r.profile.ID), zap.String("client", name),
					zap.Int("status", resp.Status), zap.String("reason", resp.Content))
			}
		})
		success++
	}

	if status == http.StatusOK && success == 0 {
		status = http.StatusBadRequest
	}

	content := msg.MsgID
	total := success + len(errs)
	switch {
	case len(errs) == 0:
		// content stays the msgId
	case total == 1:
		// The route resolved to exactly one client: report its reason
		// alone rather than an "0 of 1 succeeded" aggregate.
		content = errs[0]
	default:
		content = fmt.Sprintf("%d of %d succeeded: %s", success, total, strings.Join(errs, "; "))
	}

	return profile.NativeResponse{Status: status, Content: content}
}

func (r *Router) observe(client string, resp profile.NativeResponse, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	outcome := "success"
	if !resp.OK() {
		outcome = "failure"
	}
	r.metrics.ObserveFanout(r.profile.ID, client, outcome, elapsed.Seconds())
}
