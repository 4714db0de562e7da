package remote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// maxRecordSize bounds one upsert body.
const maxRecordSize = 1 << 20 // 1MB

// Server exposes a Repository over HTTP.
type Server struct {
	repo   Repository
	blobs  BlobStore
	logger *slog.Logger
	router *gin.Engine
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// NewServer creates a new server for repo. Blob routes are only mounted when
// a store is supplied with WithBlobs.
func NewServer(repo Repository, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		repo:   repo,
		logger: logger,
		router: router,
	}
	for _, opt := range opts {
		opt(s)
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/v1")
	{
		api.PUT("/tables/:table", s.handleUpsert)
		api.GET("/tables/:table", s.handleSelect)
		if s.blobs != nil {
			api.PUT("/blobs/*path", s.handlePutBlob)
			api.GET("/blobs/*path", s.handleGetBlob)
			api.DELETE("/blobs/*path", s.handleDeleteBlob)
		}
	}

	return s
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("remote server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpsert(c *gin.Context) {
	table := c.Param("table")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRecordSize)

	var rec Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		s.fail(c, &Error{Code: CodeInvalidText, Message: err.Error()})
		return
	}
	if err := s.repo.Upsert(c.Request.Context(), table, rec); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSelect(c *gin.Context) {
	table := c.Param("table")
	q := Query{UserID: c.Query("user_id")}

	if v := c.Query("updated_after"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.fail(c, &Error{Code: CodeInvalidText, Message: "updated_after: " + err.Error()})
			return
		}
		q.UpdatedAfter = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(c, &Error{Code: CodeInvalidText, Message: "limit must be a non-negative integer"})
			return
		}
		q.Limit = n
	}

	records, err := s.repo.Select(c.Request.Context(), table, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// fail writes err as a JSON error body.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Code: CodeInternal, Message: err.Error()}
	var re *Error
	if errors.As(err, &re) {
		body.Code = re.Code
		body.Message = re.Message
		body.Temporary = re.Temporary
	}
	if status >= 500 {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"table", c.Param("table"),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
