// Package server exposes a [contractor.Conn] over HTTP with JSON bodies.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /schema
//	GET    /contractors?name=..&location=..&exact=true
//	POST   /contractors
//	GET    /contractors/{id}
//	PUT    /contractors/{id}
//	DELETE /contractors/{id}
//	POST   /contractors/{id}/book
//	DELETE /contractors/{id}/book
//
// Errors are returned as [ErrorResponse] with a stable code per sentinel.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/internal/metrics"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

const (
	maxBodySize     = 64 << 10
	shutdownTimeout = 10 * time.Second
)

// Options configures a [Server]. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// RateLimit is the sustained request rate per second for the contractor
	// routes. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Server serves the contractor routes.
type Server struct {
	conn    contractor.Conn
	log     *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
}

// New returns a server backed by conn.
func New(conn contractor.Conn, opts Options) *Server {
	s := &Server{conn: conn, log: opts.Logger, metrics: opts.Metrics}

	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}

	if opts.RateLimit > 0 {
		burst := max(opts.RateBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return s
}

// Handler returns the routed handler with logging, metrics and rate
// limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withRateLimit(h))
	}

	api("GET /schema", s.handleSchema)
	api("GET /contractors", s.handleFind)
	api("POST /contractors", s.handleCreate)
	api("GET /contractors/{id}", s.handleGet)
	api("PUT /contractors/{id}", s.handleUpdate)
	api("DELETE /contractors/{id}", s.handleDelete)
	api("POST /contractors/{id}/book", s.handleBook)
	api("DELETE /contractors/{id}/book", s.handleUnbook)

	return s.withObservability(mux)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It always closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		s.log.Info("serving", "addr", ln.Addr().String())

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}

		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server: %w", err)
		}

		return nil
	}

	// ctx is already done; shutdown needs its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return <-serverErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.conn.Schema(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, NewSchemaResponse(schema))
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	var criteria contractor.Fields

	exact := false

	for key, vals := range r.URL.Query() {
		if len(vals) > 1 {
			s.writeError(w, r, fmt.Errorf("%w: query parameter %q given %d times", recdb.ErrInvalidInput, key, len(vals)))
			return
		}

		if key == "exact" {
			b, err := strconv.ParseBool(vals[0])
			if err != nil {
				s.writeError(w, r, fmt.Errorf("%w: exact: %w", recdb.ErrInvalidInput, err))
				return
			}

			exact = b

			continue
		}

		if err := criteria.Set(key, vals[0]); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	found, err := s.conn.Find(r.Context(), criteria, exact)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var c contractor.Contractor
	if err := decodeBody(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}

	c.ID = contractor.Unsaved

	id, err := s.conn.Create(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/contractors/%d", id))
	writeJSON(w, http.StatusCreated, CreateResponse{ID: id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.conn.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var f contractor.Fields
	if err := decodeBody(r, &f); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.conn.Update(r.Context(), id, f); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.withID(w, r, s.conn.Delete)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req BookRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.conn.Book(r.Context(), id, req.Owner); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnbook(w http.ResponseWriter, r *http.Request) {
	s.withID(w, r, s.conn.Unbook)
}

// withID runs a body-less operation on the path id and answers 204.
func (s *Server) withID(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) error) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := op(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "handler error", "err", err, "code", code)
	} else {
		s.log.DebugContext(r.Context(), "request rejected", "err", err, "code", code)
	}

	writeErrorCode(w, status, code, err.Error())
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: record id %q", recdb.ErrInvalidInput, raw)
	}

	return id, nil
}

// decodeBody strictly decodes a JSON body into v. Unknown fields and
// trailing data are rejected.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", recdb.ErrInvalidInput, err)
	}

	if len(body) > maxBodySize {
		return fmt.Errorf("%w: body exceeds %d bytes", recdb.ErrInvalidInput, maxBodySize)
	}

	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()

	if err := d.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid body: %w", recdb.ErrInvalidInput, err)
	}

	if d.More() {
		return fmt.Errorf("%w: trailing data after body", recdb.ErrInvalidInput)
	}

	return nil
}
