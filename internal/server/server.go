// Package server exposes the gateway over HTTP/JSON.
//
// Every endpoint answers with a gateway.Response. POST /v1/call takes a
// raw gateway.Request; the other routes are shorthands that build one
// from the path and query string.
//
//	GET  /healthz
//	POST /v1/call
//	GET  /v1/configs
//	GET  /v1/configs/{config}/tables           ?q= searches with row counts
//	GET  /v1/configs/{config}/tables/{table}
//	GET  /v1/configs/{config}/tables/{table}/count
//	GET  /v1/configs/{config}/info
//	GET  /v1/configs/{config}/stats
//	GET  /v1/configs/{config}/schema          ?table= limits to one table
//	POST /v1/configs/{config}/query           {"sql": "...", "limit": 100}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/gateway"
	"github.com/koustreak/sqlgate/internal/logger"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes caps request bodies; a query is text, not data.
const maxBodyBytes = 1 << 20

// Handler is what the server needs from *gateway.Gateway.
type Handler interface {
	Handle(ctx context.Context, req gateway.Request) gateway.Response
}

type Server struct {
	gw              Handler
	log             *logger.Logger
	shutdownTimeout time.Duration
}

type Option func(*Server)

func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithShutdownTimeout bounds how long Run waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

func New(gw Handler, opts ...Option) *Server {
	s := &Server{gw: gw, log: logger.Nop(), shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/call", s.call)
		r.Get("/configs", s.listConfigs)

		r.Route("/configs/{config}", func(r chi.Router) {
			r.Get("/tables", s.tables)
			r.Get("/tables/{table}", s.describe)
			r.Get("/tables/{table}/count", s.count)
			r.Get("/info", s.info)
			r.Get("/stats", s.stats)
			r.Get("/schema", s.schema)
			r.Post("/query", s.query)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.InfoWith("http server listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.Wrap(errs.ErrKindConnectionFailed, "http server failed", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// --- handlers ---

func (s *Server) call(w http.ResponseWriter, r *http.Request) {
	var req gateway.Request
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, r, req)
}

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, gateway.Request{Kind: gateway.KindListConfigs})
}

func (s *Server) tables(w http.ResponseWriter, r *http.Request) {
	req := gateway.Request{ConfigName: chi.URLParam(r, "config"), Kind: gateway.KindListTables}
	if q := r.URL.Query(); q.Has("q") {
		req.Kind = gateway.KindSearchTables
		req.Keyword = q.Get("q")
	}
	s.respond(w, r, req)
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, gateway.Request{
		ConfigName: chi.URLParam(r, "config"),
		Kind:       gateway.KindDescribeTable,
		Table:      chi.URLParam(r, "table"),
	})
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, gateway.Request{
		ConfigName: chi.URLParam(r, "config"),
		Kind:       gateway.KindRowCount,
		Table:      chi.URLParam(r, "table"),
	})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, gateway.Request{ConfigName: chi.URLParam(r, "config"), Kind: gateway.KindDatabaseInfo})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, gateway.Request{ConfigName: chi.URLParam(r, "config"), Kind: gateway.KindDatabaseStats})
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, gateway.Request{
		ConfigName: chi.URLParam(r, "config"),
		Kind:       gateway.KindSchemaOverview,
		Table:      r.URL.Query().Get("table"),
	})
}

type queryBody struct {
	SQL   string `json:"sql"`
	Limit int    `json:"limit"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	if !decode(w, r, &body) {
		return
	}
	if body.Limit == 0 {
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, errs.Newf(errs.ErrKindInvalidInput, "invalid limit %q", v))
				return
			}
			body.Limit = n
		}
	}
	s.respond(w, r, gateway.Request{
		ConfigName: chi.URLParam(r, "config"),
		Kind:       gateway.KindExecuteQuery,
		SQL:        body.SQL,
		Limit:      body.Limit,
	})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, req gateway.Request) {
	resp := s.gw.Handle(r.Context(), req)
	status := http.StatusOK
	if resp.Error != nil {
		status = statusFor(resp.Error.Kind)
	}
	writeJSON(w, status, resp)
}

// statusFor maps an error kind name to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case errs.ErrKindInvalidInput.String(),
		errs.ErrKindEmptyQuery.String(),
		errs.ErrKindWriteRejected.String(),
		errs.ErrKindMultiStatement.String(),
		errs.ErrKindStatementRejected.String():
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied.String():
		return http.StatusForbidden
	case errs.ErrKindConfigNotFound.String(), errs.ErrKindNotFound.String():
		return http.StatusNotFound
	case errs.ErrKindQueryFailed.String():
		return http.StatusUnprocessableEntity
	case errs.ErrKindConnectionFailed.String():
		return http.StatusBadGateway
	case errs.ErrKindTimeout.String():
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- encoding ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err).String()
	writeJSON(w, statusFor(kind), gateway.Response{
		Error: &gateway.Error{Kind: kind, Message: errs.MessageOf(err)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
