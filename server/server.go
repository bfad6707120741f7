package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"

	"github.com/lotus-health/lotus/ai/metrics"
	"github.com/lotus-health/lotus/internal/profile"
	apiv1 "github.com/lotus-health/lotus/server/router/api/v1"
	"github.com/lotus-health/lotus/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiService *apiv1.APIV1Service
	exporter   *metrics.PrometheusExporter
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	e := echo.New()
	e.Debug = true
	e.HideBanner = true
	e.HidePort = true

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	s := &Server{
		Profile:    profile,
		Store:      store,
		echoServer: e,
		exporter:   exporter,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: shortuuid.New,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.Error("request", attrs...)
			} else {
				slog.Info("request", attrs...)
			}
			return nil
		},
	}))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(profile.RateLimitRPS),
			Burst:     profile.RateLimitBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	}))

	e.GET("/health", s.healthCheck)
	e.GET("/ready", s.readinessCheck)
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	s.apiService = apiv1.NewAPIV1Service(profile, store, exporter)
	s.apiService.RegisterRoutes(e)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.Profile.UNIXSock != "" {
		// Remove stale socket file before binding.
		_ = os.Remove(s.Profile.UNIXSock)
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return fmt.Errorf("failed to listen on unix socket %s: %w", s.Profile.UNIXSock, err)
		}
		s.echoServer.Listener = listener
		go func() {
			if err := s.echoServer.Start(""); err != nil && err != http.ErrServerClosed {
				slog.Error("failed to start server", "error", err)
			}
		}()
		return nil
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("lotus stopped properly")
}

// GetEcho is exposed for testing.
func (s *Server) GetEcho() *echo.Echo {
	return s.echoServer
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "Lotus Backend",
		"version":   s.Profile.Version,
		"mode":      s.Profile.Mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readinessCheck verifies the database answers before reporting ready.
func (s *Server) readinessCheck(c echo.Context) error {
	_, err := s.Store.CountIngredients(c.Request().Context(), &store.FindIngredient{})
	if err != nil {
		slog.Error("readiness check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"ready":     false,
			"service":   "Lotus Backend",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ready":     true,
		"service":   "Lotus Backend",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
