// Package httpapi serves the submission, download and verification
// endpoints of the server.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/server/storage"
	"github.com/dmitrijs2005/tguard/internal/shared"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

// Routes.
const (
	SubmitPath   = "/api"
	DownloadPath = "/api/download/{id}"
	StoragePath  = storage.ServePath + "{id}"
	VerifyPath   = "/api/verify"
	NewEmailPath = "/api/newemail"
	PollPath     = "/api/poll"
	MetricsPath  = "/metrics"
)

// MaxRequestSize bounds the body of a submission.
const MaxRequestSize = 64 << 20

// MessageAPI is the part of the message service the handlers need.
type MessageAPI interface {
	Submit(ctx context.Context, sub *shared.Submission) ([]string, error)
	Download(ctx context.Context, id string) (*shared.Download, error)
	Serve(ctx context.Context, id, token string) ([]byte, error)
}

// IngestAPI stores mail forwarded through Mailgun.
type IngestAPI interface {
	Process(ctx context.Context, messageURL string) (string, error)
	Poll(ctx context.Context) ([]string, error)
}

type HTTPServer struct {
	address  string
	messages MessageAPI
	verifier signing.Verifier
	ingest   IngestAPI
	limiter  *RateLimiter
	registry *prometheus.Registry
	metrics  *Metrics
	logger   logging.Logger
	router   *mux.Router
	now      func() time.Time

	// ShutdownGracePeriod bounds how long Run waits for open requests.
	ShutdownGracePeriod time.Duration
}

// NewHTTPServer wires the routes. verifier may be nil, in which case
// /api/verify is not served; limiter may be nil for no rate limit.
func NewHTTPServer(a string, l logging.Logger, ms MessageAPI, v signing.Verifier, rl *RateLimiter) *HTTPServer {
	reg := prometheus.NewRegistry()
	s := &HTTPServer{
		address:             a,
		messages:            ms,
		verifier:            v,
		limiter:             rl,
		registry:            reg,
		metrics:             NewMetrics(reg),
		logger:              l.With("module", "http_server"),
		now:                 time.Now,
		ShutdownGracePeriod: 10 * time.Second,
	}

	r := mux.NewRouter()
	r.Use(s.metrics.middleware)
	r.HandleFunc(SubmitPath, s.submit).Methods(http.MethodPost)
	r.HandleFunc(DownloadPath, s.download).Methods(http.MethodGet)
	r.HandleFunc(StoragePath, s.serveEnvelope).Methods(http.MethodGet)
	if v != nil {
		r.HandleFunc(VerifyPath, s.verify).Methods(http.MethodPost)
	}
	r.Handle(MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router = r

	return s
}

// WithIngest serves /api/newemail and /api/poll through in.
func (s *HTTPServer) WithIngest(in IngestAPI) *HTTPServer {
	s.ingest = in
	s.router.HandleFunc(NewEmailPath, s.newEmail).Methods(http.MethodPost)
	s.router.HandleFunc(PollPath, s.poll).Methods(http.MethodGet)
	return s
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Registry is the registry /metrics exports.
func (s *HTTPServer) Registry() *prometheus.Registry {
	return s.registry
}

func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ShutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done

	return nil
}
