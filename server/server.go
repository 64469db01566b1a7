// Package server exposes sound matching over HTTP.
//
//	GET  /sound_match?target=<path>  match a WAV file readable by the server
//	POST /sound_match                match the WAV file in the request body
//	GET  /healthz
//
// Matches run one at a time.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-soundmatch/analysis"
	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/match"
	"github.com/cwbudde/algo-soundmatch/synth"
)

const defaultMaxBody = 64 << 20

// Matcher is the part of match.Matcher the server uses.
type Matcher interface {
	Match(ctx context.Context, target *audio.Signal) (*match.Result, error)
}

// MatchResponse is the JSON body of a successful match.
type MatchResponse struct {
	Patch       synth.Patch       `json:"patch"`
	Fitness     float64           `json:"fitness"`
	Evaluations int               `json:"evaluations"`
	Metrics     *analysis.Metrics `json:"metrics,omitempty"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server serves match requests through a gin engine.
type Server struct {
	matcher Matcher
	mu      sync.Mutex
	log     logrus.FieldLogger
	root    string
	maxBody int64
	engine  *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger. The default discards.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

// WithRoot restricts GET targets to files below dir. Relative targets are
// resolved against dir.
func WithRoot(dir string) Option {
	return func(s *Server) { s.root = filepath.Clean(dir) }
}

// WithMaxBody limits POST bodies to n bytes.
func WithMaxBody(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// New builds a Server around m and registers its routes.
func New(m Matcher, opts ...Option) *Server {
	s := &Server{matcher: m, maxBody: defaultMaxBody}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		s.log = l
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/sound_match", s.matchPath)
	r.POST("/sound_match", s.matchBody)
	s.engine = r
	return s
}

// Handler returns the routed engine, for tests or an outer mux.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("serving")
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("error", c.Errors.String()).Warn("request failed")
			return
		}
		entry.Info("request")
	}
}

func (s *Server) matchPath(c *gin.Context) {
	target := c.Query("target")
	if target == "" {
		abort(c, http.StatusBadRequest, "MISSING_TARGET", errors.New("query parameter target is required"))
		return
	}
	path, err := s.resolve(target)
	if err != nil {
		abort(c, http.StatusForbidden, "FORBIDDEN_TARGET", err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		abort(c, http.StatusNotFound, "TARGET_NOT_FOUND", err)
		return
	}
	sig, err := audio.LoadWAV(path)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_AUDIO", err)
		return
	}
	s.run(c, sig)
}

func (s *Server) matchBody(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err)
			return
		}
		abort(c, http.StatusBadRequest, "READ_FAILED", err)
		return
	}
	if len(data) == 0 {
		abort(c, http.StatusBadRequest, "MISSING_TARGET", errors.New("empty request body"))
		return
	}
	sig, err := audio.DecodeWAV(data)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_AUDIO", err)
		return
	}
	s.run(c, sig)
}

func (s *Server) run(c *gin.Context, sig *audio.Signal) {
	s.mu.Lock()
	res, err := s.matcher.Match(c.Request.Context(), sig)
	s.mu.Unlock()
	if err != nil {
		status, code := statusFor(err)
		abort(c, status, code, err)
		return
	}
	out := MatchResponse{Patch: res.Patch, Metrics: res.Metrics}
	if res.Prediction != nil {
		out.Fitness = res.Prediction.Fitness
		out.Evaluations = res.Prediction.Evaluations
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) resolve(target string) (string, error) {
	if s.root == "" {
		return filepath.Clean(target), nil
	}
	path := target
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("target outside the served directory")
	}
	return path, nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	case errors.Is(err, errs.ErrEstimator):
		return http.StatusInternalServerError, "MATCH_FAILED"
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrShape):
		return http.StatusUnprocessableEntity, "INVALID_TARGET"
	}
	return http.StatusInternalServerError, "MATCH_FAILED"
}

func abort(c *gin.Context, status int, code string, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
}
