package service

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers liveness probes. It reports unhealthy once the
// engine marks itself stopped.
type HealthzServer struct {
	ctx     context.Context
	server  *http.Server
	log     log.Logger
	stopped atomic.Bool
}

func (h *HealthzServer) handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.server = &http.Server{
		Handler: h.handler(),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

// SetStopped flips the probe result.
func (h *HealthzServer) SetStopped(stopped bool) {
	h.stopped.Store(stopped)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	if h.log != nil {
		h.log.Trace("Received health check request", "path", r.URL.Path)
	}
	if h.stopped.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("STOPPED")) //nolint:errcheck
		return
	}
	w.Write([]byte("OK")) //nolint:errcheck
}
