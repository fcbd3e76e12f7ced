// Package http hosts the dashboard-facing control surface: the REST API,
// the live event stream, and the Prometheus scrape endpoint.
package http

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelids/sentinel/capture"
	"github.com/sentinelids/sentinel/config"
	"github.com/sentinelids/sentinel/http/handler"
	"github.com/sentinelids/sentinel/http/ws"
	"github.com/sentinelids/sentinel/log"
	"github.com/sentinelids/sentinel/metrics"
)

type Server struct {
	srv *stdhttp.Server
	hub *ws.StreamHub
}

func StartServer(cfg *config.Config, session *capture.Session, collector *metrics.Collector) (*Server, error) {
	if cfg.WebServer.Port == 0 {
		log.Infof("Web server disabled (port 0)")
		return nil, nil
	}

	mux := stdhttp.NewServeMux()

	hub := ws.NewStreamHub(session, collector)
	mux.HandleFunc("/api/ws/stream", hub.Handle)

	api := handler.NewAPIHandler(cfg, session)
	api.RegisterEndpoints(mux)

	mux.Handle("/metrics", promhttp.Handler())

	// Apply CORS middleware
	var httpHandler stdhttp.Handler = mux
	httpHandler = cors(httpHandler)

	addr := fmt.Sprintf(":%d", cfg.WebServer.Port)
	log.Infof("Starting web server on %s", addr)

	srv := &stdhttp.Server{
		Addr:              addr,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			log.Errorf("Web server error: %v", err)
		}
	}()

	return &Server{srv: srv, hub: hub}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.hub.Stop()
	return s.srv.Shutdown(ctx)
}

func cors(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == stdhttp.MethodOptions {
			w.WriteHeader(stdhttp.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
