// Package relay is the same-origin pass-through in front of the aggregator.
// It holds the API credential so clients never have to, and answers
// /api/quote, /api/swap, /api/price and /api/healthcheck by forwarding to
// {upstream}/{chain}/{endpoint}.
package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultAddr      = ":3001"
	DefaultRateLimit = 5
	DefaultBurst     = 10
)

// Config holds configuration for the relay server
type Config struct {
	Addr            string
	UpstreamURL     string
	APIKey          string
	DefaultChainID  int64
	RateLimit       float64 // requests per second per client IP, <= 0 uses DefaultRateLimit
	Burst           int
	UpstreamTimeout time.Duration
	DevMode         bool // include upstream error details in responses
}

// Server wraps echo with lifecycle management
type Server struct {
	e         *echo.Echo
	cfg       Config
	logger    *logrus.Logger
	closed    chan struct{}
	closeOnce sync.Once
}

// NewServer creates a relay server. The logger defaults to logrus.StandardLogger.
func NewServer(cfg Config, logger *logrus.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return nil, errors.New("relay: upstream url is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DefaultChainID <= 0 {
		cfg.DefaultChainID = 1
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	h := &Handlers{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
	}
	registerRoutes(e, h, cfg, logger)

	return &Server{e: e, cfg: cfg, logger: logger, closed: make(chan struct{})}, nil
}

func registerRoutes(e *echo.Echo, h *Handlers, cfg Config, logger *logrus.Logger) {
	e.HTTPErrorHandler = jsonErrorHandler()

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORS())
	e.Use(setNoCacheHeaders)

	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimit),
		Burst:     cfg.Burst,
		ExpiresIn: 3 * time.Minute,
	})))
	api.GET("/quote", h.Quote)
	api.GET("/swap", h.Swap)
	api.GET("/price", h.Price)
	api.GET("/healthcheck", h.UpstreamHealth)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{
		"addr":     s.cfg.Addr,
		"upstream": s.cfg.UpstreamURL,
	}).Info("relay listening")

	err := s.e.Start(s.cfg.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server with a 10-second timeout.
// Calling it more than once is safe.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.closeOnce.Do(func() { close(s.closed) })
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until the server is fully shut down or ctx is done
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

func jsonErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{Error: http.StatusText(he.Code), Code: he.Code})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

func requestLogger(logger *logrus.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}

func setNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}
