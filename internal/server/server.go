package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/query"
	"github.com/roach88/logfire/internal/script"
	"github.com/roach88/logfire/internal/store"
)

// Name is reported by GET /.
const Name = "logfire-server"

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// EventStore creates and reads events. *store.Store implements it.
type EventStore interface {
	Create(ctx context.Context, rawEvent string, data ir.Object) (int64, error)
	Get(ctx context.Context, rawID string) (store.Record, error)
}

// QueryRunner runs queries. *query.Engine implements it.
type QueryRunner interface {
	Query(ctx context.Context, opts query.Options) (any, error)
}

// Options configure a Server.
type Options struct {
	Version string

	// Auth is the shared token required on /events and /query. Empty
	// disables authentication.
	Auth string

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	Burst     int

	IDs      IDGenerator
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Clock    func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	events  EventStore
	queries QueryRunner
	opts    Options
	ids     IDGenerator
	logger  *slog.Logger
	limiter *rateLimiter
	handler http.Handler
}

// New creates a server and its route table.
func New(events EventStore, queries QueryRunner, opts Options) *Server {
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Server{
		events:  events,
		queries: queries,
		opts:    opts,
		ids:     opts.IDs,
		logger:  opts.Logger,
	}
	if opts.RateLimit > 0 {
		s.limiter = newRateLimiter(opts.RateLimit, opts.Burst, opts.Clock)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	mux.Handle("POST /events", s.withAuth(http.HandlerFunc(s.handleCreate)))
	mux.Handle("GET /events/{id}", s.withAuth(http.HandlerFunc(s.handleGet)))
	mux.Handle("POST /query", s.withAuth(http.HandlerFunc(s.handleQueryBody)))
	mux.Handle("GET /query", s.withAuth(http.HandlerFunc(s.handleQueryParams)))

	s.handler = s.withRequestID(s.withLogging(s.withRateLimit(mux)))
	return s
}

// Handler returns the root handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": Name, "version": s.opts.Version})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	event, err := eventName(obj)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var data ir.Object
	switch v := obj["data"].(type) {
	case nil, ir.Null:
		data = ir.Object{}
	case ir.Object:
		data = v
	default:
		s.fail(w, r, ir.Errorf(ir.ErrCodeInvalidRequest, "`data` must be an object."))
		return
	}

	id, err := s.events.Create(r.Context(), event, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "$id": id})
}

// eventName reads the event name. A separate category is joined with the
// event as "category.event".
func eventName(obj ir.Object) (string, error) {
	event, _ := obj["event"].(ir.String)
	category, hasCategory := obj["category"].(ir.String)
	if !hasCategory {
		return string(event), nil
	}
	if category == "" {
		return "", ir.Errorf(ir.ErrCodeMissingEvent, "`category` is missing.")
	}
	if event == "" {
		return "", ir.Errorf(ir.ErrCodeMissingEvent, "`event` is missing.")
	}
	return string(category) + "." + string(event), nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleQueryBody(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.runQuery(w, r, obj)
}

// handleQueryParams reads events, select, group, start and end as plain
// parameters and where as a JSON object.
func (s *Server) handleQueryParams(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	obj := ir.Object{}
	for _, key := range []string{"events", "select", "group", "start", "end"} {
		if params.Has(key) {
			obj[key] = ir.String(params.Get(key))
		}
	}
	if params.Has("where") {
		where, err := ir.DecodeObject([]byte(params.Get("where")))
		if err != nil {
			s.fail(w, r, ir.Errorf(ir.ErrCodeInvalidRequest, "`where` must be a JSON object."))
			return
		}
		obj["where"] = where
	}
	s.runQuery(w, r, obj)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, obj ir.Object) {
	opts, err := query.OptionsFromObject(obj)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.queries.Query(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func readObject(w http.ResponseWriter, r *http.Request) (ir.Object, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ir.Errorf(ir.ErrCodeInvalidRequest, "Request body is too large.")
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	obj, err := ir.DecodeObject(body)
	if err != nil {
		return nil, ir.Errorf(ir.ErrCodeInvalidRequest, "Request body is not a valid JSON object.")
	}
	return obj, nil
}

// fail renders err. Client errors keep their message; anything else is
// logged and reported as an internal error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *ir.Error
	if errors.As(err, &cerr) {
		writeError(w, cerr.Status(), cerr.Message)
		return
	}

	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestID(r.Context()),
		"error", err)

	var xerr *script.ExecutionError
	if errors.As(err, &xerr) {
		writeError(w, xerr.Status(), xerr.ClientMessage())
		return
	}
	writeError(w, http.StatusInternalServerError, script.ClientMessage)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
