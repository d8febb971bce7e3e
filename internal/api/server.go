// Package api serves the detector status and control endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"Go2NetIDS/internal/capture"
	"Go2NetIDS/internal/engine/manager"
	"Go2NetIDS/internal/engine/stats"
	"Go2NetIDS/internal/metrics"
	"Go2NetIDS/internal/model"
	"Go2NetIDS/internal/query"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Detector is the part of the manager the API drives.
type Detector interface {
	Start(ctx context.Context, src model.Source) error
	Stop() error
	Status() manager.Status
	Counters() *stats.Counters
	ResetScaler() error
}

// SourceFactory builds a fresh capture source for each start request.
type SourceFactory func() (model.Source, error)

// Option configures a Server.
type Option func(*Server)

// WithSourceFactory enables POST /api/v1/detector/start.
func WithSourceFactory(f SourceFactory) Option { return func(s *Server) { s.newSource = f } }

// WithQuerier enables the stored-record endpoints.
func WithQuerier(q query.Querier) Option { return func(s *Server) { s.querier = q } }

// WithInterfaces replaces interface discovery, mainly for tests.
func WithInterfaces(f func() ([]capture.Interface, error)) Option {
	return func(s *Server) { s.interfaces = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// Server exposes read-only snapshots of the detector and start/stop control.
type Server struct {
	detector   Detector
	newSource  SourceFactory
	querier    query.Querier
	interfaces func() ([]capture.Interface, error)
	now        func() time.Time

	// runCtx outlives individual requests; detector runs started over HTTP
	// belong to the server.
	runCtx context.Context
	router *mux.Router
	http   *http.Server
}

// NewServer wires the routes. ctx bounds detector runs started through the API.
func NewServer(ctx context.Context, addr string, d Detector, opts ...Option) *Server {
	s := &Server{
		detector:   d,
		interfaces: capture.ListInterfaces,
		now:        time.Now,
		runCtx:     ctx,
		router:     mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	v1.HandleFunc("/traffic", s.trafficHandler).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.historyHandler).Methods(http.MethodGet)
	v1.HandleFunc("/interfaces", s.interfacesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/detector/start", s.startHandler).Methods(http.MethodPost)
	v1.HandleFunc("/detector/stop", s.stopHandler).Methods(http.MethodPost)
	v1.HandleFunc("/scaler/reset", s.resetScalerHandler).Methods(http.MethodPost)
	v1.HandleFunc("/anomalies", s.anomaliesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/anomalies/top-sources", s.topSourcesHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.Infof("API server starting on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type trafficResponse struct {
	stats.Snapshot
	State string `json:"state"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.detector.Status())
}

func (s *Server) trafficHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, trafficResponse{
		Snapshot: s.detector.Counters().Snapshot(),
		State:    s.detector.Status().State,
	})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.detector.Counters().History(s.now()))
}

func (s *Server) interfacesHandler(w http.ResponseWriter, r *http.Request) {
	ifaces, err := s.interfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ifaces)
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if s.newSource == nil {
		writeError(w, http.StatusNotImplemented, errors.New("starting the detector over the API is not enabled"))
		return
	}
	src, err := s.newSource()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.detector.Start(s.runCtx, src); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manager.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.detector.Status())
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.detector.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manager.ErrNotRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.detector.Status())
}

func (s *Server) resetScalerHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.detector.ResetScaler(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "scaler reset"})
}

func (s *Server) anomaliesHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		writeError(w, http.StatusNotImplemented, errors.New("record storage is not configured"))
		return
	}
	f := query.AnomalyFilter{SrcIP: r.URL.Query().Get("src")}
	var err error
	if f.Since, err = parseTime(r, "since"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if f.Until, err = parseTime(r, "until"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if f.Limit, err = parseLimit(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rows, err := s.querier.Anomalies(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []query.Anomaly{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) topSourcesHandler(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		writeError(w, http.StatusNotImplemented, errors.New("record storage is not configured"))
		return
	}
	since, err := parseTime(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if since.IsZero() {
		since = s.now().Add(-24 * time.Hour)
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rows, err := s.querier.TopSources(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []query.SourceCount{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(key + " must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write API response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
