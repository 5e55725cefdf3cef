package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/idgen"
	"github.com/ceyewan/flake/metrics"
	"github.com/ceyewan/flake/ratelimit"
	"github.com/ceyewan/flake/trace"
)

type server struct {
	gen        *idgen.Generator
	resolution idgen.Resolution
	limiter    ratelimit.Limiter
	meter      metrics.Meter
	httpMetric *metrics.HTTPServerMetrics
	batch      BatchConfig
	service    string
	logger     clog.Logger
}

type idResponse struct {
	ID uint64 `json:"id,string"`
}

type idsResponse struct {
	IDs []string `json:"ids"`
}

type decodeResponse struct {
	idgen.Components
	Time time.Time `json:"time"`
}

type healthResponse struct {
	Status   string `json:"status"`
	WorkerID uint64 `json:"worker_id"`
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), trace.GinMiddleware(s.service), metrics.GinHTTPMiddleware(s.httpMetric))

	api := r.Group("/api")
	api.GET("/id", s.nextID)
	api.GET("/ids",
		ratelimit.GinMiddleware(s.limiter, s.batch.limit(), nil, batchCount),
		s.nextIDs,
	)
	api.GET("/ids/:id", s.decode)
	api.GET("/health", s.health)

	r.GET("/metrics", gin.WrapH(s.meter.Handler()))
	return r
}

func batchCount(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("count", "1"))
	if err != nil {
		return 0
	}
	return n
}

func (s *server) nextID(c *gin.Context) {
	ctx, span := trace.StartIssue(c.Request.Context(), 1, s.gen.WorkerID())
	id, err := s.gen.NextIDWithRetry(ctx)
	trace.End(span, err)
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.SetIssued(c, 1)
	c.JSON(http.StatusOK, idResponse{ID: id})
}

func (s *server) nextIDs(c *gin.Context) {
	n := batchCount(c)
	if n < 1 || n > s.batch.MaxCount {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "count must be between 1 and " + strconv.Itoa(s.batch.MaxCount),
		})
		return
	}

	ctx, span := trace.StartIssue(c.Request.Context(), n, s.gen.WorkerID())
	ids := make([]string, 0, n)
	for range n {
		id, err := s.gen.NextIDWithRetry(ctx)
		if err != nil {
			trace.End(span, err)
			s.fail(c, err)
			return
		}
		ids = append(ids, strconv.FormatUint(id, 10))
	}
	trace.End(span, nil)
	metrics.SetIssued(c, n)
	c.JSON(http.StatusOK, idsResponse{IDs: ids})
}

func (s *server) decode(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an unsigned 64-bit integer"})
		return
	}
	parts := s.gen.Decode(id)
	c.JSON(http.StatusOK, decodeResponse{Components: parts, Time: parts.Time()})
}

func (s *server) health(c *gin.Context) {
	resp := healthResponse{
		Status:   "ok",
		WorkerID: s.gen.WorkerID(),
		Strategy: s.resolution.Strategy,
	}
	if err := s.gen.Err(); err != nil {
		resp.Status = "fenced"
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case idgen.IsClockBackward(err):
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "1")
	case c.Request.Context().Err() != nil:
		status = http.StatusRequestTimeout
	case errors.Is(err, idgen.ErrLeaseExpired):
		status = http.StatusServiceUnavailable
	}
	s.logger.Error("id generation failed", clog.Error(err), clog.Int("status", status))
	c.JSON(status, gin.H{"error": err.Error()})
}
