// Package api serves the registered sources over HTTP: listing, browsing,
// metadata, runtime properties, health and status.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/grilobridge/grilobridge/internal/frontend"
	"github.com/grilobridge/grilobridge/internal/objectid"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/health"
	"github.com/grilobridge/grilobridge/pkg/status"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey struct{}

// Server provides the HTTP API
type Server struct {
	httpServer    *http.Server
	router        *mux.Router
	handler       http.Handler
	catalog       frontend.Catalog
	statusTracker *status.Tracker
	healthTracker *health.Tracker
	config        ServerConfig
	logger        *slog.Logger
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// BrowseTimeout bounds synchronous browse and metadata requests
	BrowseTimeout time.Duration `yaml:"browse_timeout" json:"browse_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:       "localhost:8080",
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   60 * time.Second,
		BrowseTimeout: 30 * time.Second,
		EnableCORS:    true,
	}
}

// NewServer creates a new API server. statusTracker and healthTracker may
// be nil.
func NewServer(config ServerConfig, catalog frontend.Catalog, statusTracker *status.Tracker, healthTracker *health.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if statusTracker == nil {
		statusTracker = status.NewTracker(status.TrackerConfig{HealthTracker: healthTracker})
	}

	s := &Server{
		catalog:       catalog,
		statusTracker: statusTracker,
		healthTracker: healthTracker,
		config:        config,
		logger:        logger.With("component", "api"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleSystemStatus).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	r.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}", s.handleSource).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/browse", s.handleBrowse).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/browses", s.handleStartBrowse).Methods(http.MethodPost)
	r.HandleFunc("/sources/{source}/metadata", s.handleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/properties/{key}", s.handleGetProperty).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/properties/{key}", s.handleSetProperty).Methods(http.MethodPut)

	r.HandleFunc("/browses", s.handleOperations).Methods(http.MethodGet)
	r.HandleFunc("/browses/{id}", s.handleOperation).Methods(http.MethodGet)
	r.HandleFunc("/browses/{id}", s.handleCancelOperation).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, http.StatusNotFound, "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Wrap the router rather than r.Use so unmatched routes are covered too.
	var handler http.Handler = r
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	handler = s.requestIDMiddleware(s.loggingMiddleware(handler))

	s.router = r
	s.handler = handler
	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting API server", "address", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Health endpoint handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthTracker == nil {
		s.respondJSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"sources": s.sourceCount(),
		})
		return
	}

	overall := s.healthTracker.GetOverallHealth()
	statusCode := http.StatusOK
	switch overall {
	case health.StateUnavailable:
		statusCode = http.StatusServiceUnavailable
	case health.StateDegraded:
		statusCode = http.StatusPartialContent
	}

	s.respondJSON(w, r, statusCode, map[string]interface{}{
		"status":     overall,
		"timestamp":  time.Now(),
		"sources":    s.sourceCount(),
		"components": s.healthTracker.GetAllComponents(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.sourceCount() > 0
	if ready && s.healthTracker != nil {
		ready = s.healthTracker.GetOverallHealth() != health.StateUnavailable
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, r, statusCode, map[string]interface{}{
		"ready":     ready,
		"sources":   s.sourceCount(),
		"timestamp": time.Now(),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, s.statusTracker.GetSystemStatus())
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var endpoints []string
	_ = s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tpl, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		endpoints = append(endpoints, strings.Join(methods, ",")+" "+tpl)
		return nil
	})

	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"service":   "grilobridge",
		"timestamp": time.Now(),
		"endpoints": endpoints,
	})
}

// Source handlers

type sourceView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Root       string            `json:"root"`
	Health     string            `json:"health,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type propertyLister interface {
	Properties() map[string]string
}

func (s *Server) viewOf(src types.Source) sourceView {
	v := sourceView{ID: src.ID(), Name: src.Name(), Root: objectid.EncodeRoot(src.ID())}
	if s.healthTracker != nil {
		if h, err := s.healthTracker.GetComponentHealth(src.ID()); err == nil {
			v.Health = h.State.String()
		}
	}
	if pl, ok := src.(propertyLister); ok {
		v.Properties = pl.Properties()
	}
	return v
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources := s.catalog.List()
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, s.viewOf(src))
	}
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"sources": views,
		"count":   len(views),
	})
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	src, err := frontend.Lookup(s.catalog, mux.Vars(r)["source"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, s.viewOf(src))
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	src, req, err := s.browseRequest(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	results, err := frontend.Browse(ctx, src, req)
	s.observe(src.ID(), err)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if results == nil {
		results = []types.BrowseResult{}
	}
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"object_id": req.ObjectID,
		"results":   results,
		"count":     len(results),
	})
}

// handleStartBrowse starts a browse that outlives the request. Results are
// polled from /browses/{id}.
func (s *Server) handleStartBrowse(w http.ResponseWriter, r *http.Request) {
	src, req, err := s.browseRequest(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	op := s.statusTracker.StartOperation("browse", src.ID(), req.ObjectID)
	sourceID := src.ID()
	browseID := src.Browse(context.Background(), req, func(res types.BrowseResult) {
		s.statusTracker.Deliver(op.ID, res)
		if res.Terminal() {
			s.observe(sourceID, res.Err)
		}
	})
	if browseID != types.InvalidBrowseID {
		_ = s.statusTracker.Bind(op.ID, browseID, func() error {
			return src.CancelBrowse(browseID)
		})
	}

	snapshot, err := s.statusTracker.GetOperation(op.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/browses/"+op.ID)
	s.respondJSON(w, r, http.StatusAccepted, snapshot)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	src, err := frontend.Lookup(s.catalog, mux.Vars(r)["source"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	q := r.URL.Query()
	objectID := q.Get("object_id")
	if objectID == "" {
		s.respondError(w, r, http.StatusBadRequest, "object_id is required")
		return
	}

	ctx, cancel := s.callContext(r.Context())
	defer cancel()

	res, err := frontend.Metadata(ctx, src, objectID, splitKeys(q.Get("keys")))
	s.observe(src.ID(), err)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	src, err := frontend.Lookup(s.catalog, vars["source"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	value, err := src.Property(vars["key"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"key": vars["key"], "value": value})
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	src, err := frontend.Lookup(s.catalog, vars["source"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var body struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil || body.Value == nil {
		s.respondError(w, r, http.StatusBadRequest, `body must be {"value": "..."}`)
		return
	}

	if err := src.SetProperty(vars["key"], *body.Value); err != nil {
		s.respondErr(w, r, err)
		return
	}
	value, err := src.Property(vars["key"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"key": vars["key"], "value": value})
}

// Browse session handlers

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	active := s.statusTracker.GetAllOperations()
	history := s.statusTracker.GetHistory(limit)
	s.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"active":    active,
		"history":   history,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.respondError(w, r, http.StatusBadRequest, "wait must be a duration")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()

		op, err := s.statusTracker.Wait(ctx, id)
		if err != nil && !stderrors.Is(err, context.DeadlineExceeded) {
			s.respondErr(w, r, err)
			return
		}
		s.respondJSON(w, r, http.StatusOK, op)
		return
	}

	op, err := s.statusTracker.GetOperation(id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, op)
}

func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.statusTracker.CancelOperation(id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusAccepted, map[string]string{"id": id, "status": "canceling"})
}

// Middleware

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", RequestID(r.Context()))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID returns the request id stored by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Helper methods

func (s *Server) browseRequest(r *http.Request) (types.Source, types.BrowseRequest, error) {
	src, err := frontend.Lookup(s.catalog, mux.Vars(r)["source"])
	if err != nil {
		return nil, types.BrowseRequest{}, err
	}

	q := r.URL.Query()
	req := types.BrowseRequest{
		ObjectID:     q.Get("object_id"),
		Keys:         splitKeys(q.Get("keys")),
		Filter:       q.Get("filter"),
		SortCriteria: q.Get("sort"),
		Recursive:    q.Get("recursive") == "true",
	}
	if req.ObjectID == "" {
		req.ObjectID = objectid.EncodeRoot(src.ID())
	}
	if req.Skip, err = parseUint(q.Get("skip"), "skip"); err != nil {
		return nil, req, err
	}
	if req.Count, err = parseUint(q.Get("count"), "count"); err != nil {
		return nil, req, err
	}
	return src, req, nil
}

func (s *Server) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.BrowseTimeout > 0 {
		return context.WithTimeout(ctx, s.config.BrowseTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) observe(sourceID string, err error) {
	if s.healthTracker == nil {
		return
	}
	s.healthTracker.RegisterComponent(sourceID)
	s.healthTracker.Observe(sourceID, err)
}

func (s *Server) sourceCount() int {
	return len(s.catalog.List())
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Error encoding JSON response", "error", err, "request_id", RequestID(r.Context()))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	s.respondJSON(w, r, statusCode, map[string]interface{}{
		"error":      message,
		"request_id": RequestID(r.Context()),
		"timestamp":  time.Now(),
	})
}

// respondErr maps err onto a status code and writes its code and message.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	switch {
	case code == "" && stderrors.Is(err, context.DeadlineExceeded):
		code = "TIMEOUT"
	case code == "" && stderrors.Is(err, context.Canceled):
		code = errors.ErrCodeOperationCanceled
	case code == "":
		code = errors.ErrCodeInternalError
	}

	statusCode := StatusFor(err)
	if statusCode >= 500 {
		s.logger.Warn("Request failed", "path", r.URL.Path, "error", err, "request_id", RequestID(r.Context()))
	}
	s.respondJSON(w, r, statusCode, map[string]interface{}{
		"error":      err.Error(),
		"code":       code,
		"request_id": RequestID(r.Context()),
		"timestamp":  time.Now(),
	})
}

// StatusFor maps an error to an HTTP status code. A NOT_FOUND anywhere in
// the chain wins over the code that wraps it.
func StatusFor(err error) int {
	switch {
	case errors.IsCode(err, errors.ErrCodeNotFound), errors.IsCode(err, errors.ErrCodeInvalidProperty):
		return http.StatusNotFound
	case errors.IsCode(err, errors.ErrCodeInvalidIdentifier), errors.IsCode(err, errors.ErrCodeInvalidValue):
		return http.StatusBadRequest
	case errors.IsCode(err, errors.ErrCodeUnimplemented):
		return http.StatusNotImplemented
	case errors.IsCode(err, errors.ErrCodeOperationCanceled), stderrors.Is(err, context.Canceled):
		return http.StatusConflict
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.IsCode(err, errors.ErrCodeBackendError), errors.IsCode(err, errors.ErrCodeProtocolViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func splitKeys(v string) []string {
	if v == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(v, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func parseUint(v, name string) (uint, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeInvalidValue, name+" must be a non-negative integer").
			WithComponent("api").
			WithDetail(name, v)
	}
	return uint(n), nil
}
