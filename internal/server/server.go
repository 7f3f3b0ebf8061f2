package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/tapflow/internal/engine"
	"github.com/roach88/tapflow/internal/store"
	"github.com/roach88/tapflow/internal/workflow"
)

// Server serves the HTTP control surface of one workflow graph.
type Server struct {
	graph    *workflow.Graph
	app      *engine.App
	store    *store.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the trail endpoint.
func WithStore(s *store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithGatherer sets the registry /metrics exposes.
// Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

// WithLogger sets the logger. Default: the App's logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New creates a server for graph.
func New(graph *workflow.Graph, opts ...Option) *Server {
	s := &Server{
		graph:    graph,
		app:      graph.App(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = s.app.Logger()
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.RegisterRoutes(r.Group("/v1"))
	return r
}

// RegisterRoutes registers the /v1 routes on rg.
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/enqueue", s.HandleEnqueue)
	rg.POST("/stop", s.HandleStop)
	rg.POST("/terminate", s.HandleTerminate)
	rg.GET("/info", s.HandleInfo)
	rg.GET("/results", s.HandleResults)
	rg.GET("/records/:id/trail", s.HandleTrail)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listener starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http listener stopping", "addr", addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleEnqueue handles POST /v1/enqueue.
//
// Response:
//
//	202 Accepted: EnqueueResponse
//	400 Bad Request: invalid body
//	404 Not Found: unknown node
//	503 Service Unavailable: the App no longer accepts work
func (s *Server) HandleEnqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid enqueue request", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if _, ok := s.graph.Node(req.Node); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("unknown node %q", req.Node),
			Code:  "UNKNOWN_NODE",
		})
		return
	}

	inputs := make([]any, len(req.Inputs))
	for i, in := range req.Inputs {
		inputs[i] = normalizeJSON(in)
	}
	if err := s.graph.Enqueue(req.Node, inputs...); err != nil {
		status, code := http.StatusInternalServerError, "ENQUEUE_FAILED"
		if errors.Is(err, engine.ErrQueueClosed) {
			status, code = http.StatusServiceUnavailable, "QUEUE_CLOSED"
		}
		s.logger.Error("enqueue failed", "node", req.Node, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	s.logger.Debug("enqueued over http", "node", req.Node, "inputs", len(inputs))
	c.JSON(http.StatusAccepted, EnqueueResponse{
		Node:       req.Node,
		QueueDepth: s.app.Info().QueueDepth,
	})
}

// HandleStop handles POST /v1/stop.
func (s *Server) HandleStop(c *gin.Context) {
	s.app.Stop()
	s.logger.Info("stop requested over http")
	c.JSON(http.StatusOK, s.app.Info())
}

// HandleTerminate handles POST /v1/terminate.
func (s *Server) HandleTerminate(c *gin.Context) {
	s.app.Terminate()
	s.logger.Info("terminate requested over http")
	c.JSON(http.StatusOK, s.app.Info())
}

// HandleInfo handles GET /v1/info.
func (s *Server) HandleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Info())
}

// HandleResults handles GET /v1/results. Values are keyed by node display
// name; ?node=name keeps only the members of one node.
func (s *Server) HandleResults(c *gin.Context) {
	filter := c.Query("node")
	agg := s.app.Aggregator()

	results := make(map[string][]any)
	for _, node := range agg.Nodes() {
		if filter != "" && node.Name() != filter {
			continue
		}
		results[node.String()] = agg.Values(node)
	}

	c.JSON(http.StatusOK, ResultsResponse{
		Cycle:   s.app.Cycle(),
		Results: results,
	})
}

// HandleTrail handles GET /v1/records/:id/trail.
func (s *Server) HandleTrail(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error: "no audit store configured",
			Code:  "NO_STORE",
		})
		return
	}

	id := c.Param("id")
	trail, err := s.store.ReadTrail(c.Request.Context(), id)
	if err != nil {
		status, code := http.StatusInternalServerError, "READ_FAILED"
		if errors.Is(err, store.ErrNotFound) {
			status, code = http.StatusNotFound, "NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	c.JSON(http.StatusOK, TrailResponse{ID: id, Trail: trail})
}

// normalizeJSON turns integral float64 values decoded from JSON back into
// ints, matching what workflow files and Go callers produce.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= math.MaxInt32 {
			return int(x)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeJSON(x[k])
		}
		return x
	default:
		return v
	}
}
