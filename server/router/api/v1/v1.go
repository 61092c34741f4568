package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/voxcache/ai/cache"
	"github.com/hrygo/voxcache/internal/profile"
)

// Cache is the part of *cache.Cache served over HTTP.
type Cache interface {
	Lookup(ctx context.Context, text string) (*cache.Result, bool)
	Store(ctx context.Context, req cache.StoreRequest) cache.StoreOutcome
	Stats() cache.Stats
	Clear(ctx context.Context) error
	AnchorsReady() bool
}

type APIV1Service struct {
	Profile *profile.Profile
	Cache   Cache
	Logger  *slog.Logger

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewAPIV1Service(profile *profile.Profile, c Cache, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{
		Profile: profile,
		Cache:   c,
		Logger:  logger,
	}
}

// RegisterRoutes registers the cache API with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	})

	cacheGroup := echoServer.Group("/api/v1/cache", corsHandler)
	cacheGroup.POST("/lookup", s.Lookup)
	cacheGroup.POST("/store", s.Store)
	cacheGroup.GET("/stats", s.GetStats)
	cacheGroup.DELETE("", s.Clear)

	echoServer.GET("/healthz", s.Health)
	if s.Metrics != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.Metrics))
	}
}
