// Package server implements C9 Server: the HTTP front door binding one
// direction's RouterRegistry and RefreshController behind
// julienschmidt/httprouter, per spec §6/§4.12. Grounded on the
// teacher's gateway.Server shutdown ordering and admin-mux layout.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/clientadapter"
	"github.com/kuiperzone/implink/internal/config"
	"github.com/kuiperzone/implink/internal/dispatch"
	"github.com/kuiperzone/implink/internal/errors"
	"github.com/kuiperzone/implink/internal/hmac"
	"github.com/kuiperzone/implink/internal/msgrouter"
	"github.com/kuiperzone/implink/internal/profile"
	"github.com/kuiperzone/implink/internal/refresh"
	"github.com/kuiperzone/implink/internal/registry"
)

// RouteRegistry is the lookup capability Server needs to resolve a
// request's routing key (groupId or gatewayId, by direction) to a live
// Router.
type RouteRegistry interface {
	Get(id string) (*msgrouter.Router, bool)
}

// Server wraps one direction's router core behind an HTTP listener
// plus a separate admin listener for /healthz and /metrics.
type Server struct {
	cfg        *config.Config
	routes     RouteRegistry
	refresher  *refresh.Controller
	dispatcher *dispatch.Pool
	clients    *registry.Registry[*profile.ClientProfile, *clientadapter.Adapter]
	clientFac  *clientadapter.Factory
	log        *zap.Logger

	httpServer  *http.Server
	adminServer *http.Server
	ready       bool
}

// New builds a Server for cfg. routes resolves the routing key to a Router;
// refresher drives periodic/on-demand reconciliation; dispatcher and
// clients are drained/disposed on Shutdown.
func New(
	cfg *config.Config,
	routes RouteRegistry,
	refresher *refresh.Controller,
	dispatcher *dispatch.Pool,
	clients *registry.Registry[*profile.ClientProfile, *clientadapter.Adapter],
	clientFac *clientadapter.Factory,
	metricsGatherer prometheus.Gatherer,
	log *zap.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		routes:     routes,
		refresher:  refresher,
		dispatcher: dispatcher,
		clients:    clients,
		clientFac:  clientFac,
		log:        log,
	}

	r := httprouter.New()
	r.POST("/PostMessage", s.handlePostMessage)
	r.GET("/GetTime", s.handleGetTime)
	if cfg.Direction == config.DirectionRemoteTerminated {
		r.GET("/GetRoutingInfo", s.handleGetRoutingInfo)
		r.GET("/UpdateRouting", s.handleUpdateRouting)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      r,
		ReadTimeout:  cfg.ResponseTimeout,
		WriteTimeout: cfg.ResponseTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if metricsGatherer == nil {
		metricsGatherer = prometheus.DefaultGatherer
	}

	admin := httprouter.New()
	admin.GET("/healthz", s.handleHealthz)
	admin.GET("/metrics", wrapHandler(promhttp.HandlerFor(metricsGatherer, promhttp.HandlerOpts{})))
	s.adminServer = &http.Server{
		Addr:         cfg.AdminListenAddress,
		Handler:      admin,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func wrapHandler(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// Run starts both listeners and blocks until ctx is cancelled, then
// performs graceful shutdown bounded by cfg.ResponseTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.ready = true
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("router listener: %w", err)
		}
	}()
	go func() {
		if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin listener: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown implements the ordering of spec §5 [EXPANSION]:
// listener → admin listener → dispatcher drain → client disposal, all
// under one shared deadline of ResponseTimeout. Fan-out jobs still
// queued when the deadline expires are abandoned. The refresh
// controller is not stopped here; it stops when the context passed to
// its Run is cancelled.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ResponseTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && s.log != nil {
		s.log.Warn("router listener shutdown error", zap.Error(err))
	}
	if err := s.adminServer.Shutdown(ctx); err != nil && s.log != nil {
		s.log.Warn("admin listener shutdown error", zap.Error(err))
	}

	if s.dispatcher != nil {
		drained := make(chan struct{})
		go func() {
			s.dispatcher.Close()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			if s.log != nil {
				s.log.Warn("dispatcher drain deadline reached; abandoning queued fan-out jobs")
			}
		}
	}

	if s.clients != nil && s.clientFac != nil {
		for _, a := range s.clients.Values() {
			s.clientFac.Dispose(a)
		}
	}

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetTime(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, profile.NativeResponse{Status: http.StatusOK, Content: time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		errors.ErrValidation.WithDetails("failed to read body").WriteJSON(w)
		return
	}

	var msg profile.NativeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		errors.ErrValidation.WithDetails("malformed JSON body").WriteJSON(w)
		return
	}

	// Directions differ only in routing key source (spec §2/§3): a
	// remote-terminated instance routes on groupId, a remote-originated
	// one on gatewayId.
	routeKey := msg.GroupID
	if s.cfg.Direction == config.DirectionRemoteOriginated {
		routeKey = msg.GatewayID
	}

	router, ok := s.routes.Get(routeKey)
	if !ok {
		errors.ErrConfig.WithDetails("no route for routing key").WriteJSON(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ResponseTimeout)
	defer cancel()

	resp := router.PostMessage(ctx, headerGetter{r.Header}, body, &msg)
	writeJSON(w, resp)
}

func (s *Server) handleGetRoutingInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var b strings.Builder
	if reg, ok := s.routes.(*registry.Registry[*profile.RouteProfile, *msgrouter.Router]); ok {
		for _, k := range reg.Keys() {
			fmt.Fprintf(&b, "%s\n", k)
		}
	}
	writeJSON(w, profile.NativeResponse{Status: http.StatusOK, Content: b.String()})
}

func (s *Server) handleUpdateRouting(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.refresher.RefreshOnce()
	writeJSON(w, profile.NativeResponse{Status: http.StatusOK, Content: "refresh triggered"})
}

type headerGetter struct{ h http.Header }

func (g headerGetter) Get(key string) string { return g.h.Get(key) }

var _ hmac.HeaderGetter = headerGetter{}

func writeJSON(w http.ResponseWriter, resp profile.NativeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}
