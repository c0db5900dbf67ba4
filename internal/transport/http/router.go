package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/ErlanBelekov/anime-sync/internal/transport/http/handler"
	"github.com/ErlanBelekov/anime-sync/internal/transport/http/middleware"
)

// HealthChecker is satisfied by *health.Checker.
type HealthChecker interface {
	LivenessHandler() http.Handler
	ReadinessHandler() http.Handler
}

func NewRouter(
	logger *slog.Logger,
	jobHandler *handler.JobHandler,
	providerHandler *handler.ProviderHandler,
	checker HealthChecker,
	jwtKey []byte,
) *gin.Engine {
	quietPaths := []string{"/healthz", "/readyz"}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(logger, sloggin.Config{
		WithRequestID: false,
		Filters:       []sloggin.Filter{sloggin.IgnorePath(quietPaths...)},
	}))
	r.Use(middleware.Metrics(quietPaths...))

	r.GET("/healthz", gin.WrapH(checker.LivenessHandler()))
	r.GET("/readyz", gin.WrapH(checker.ReadinessHandler()))

	authMW := middleware.Auth(jwtKey)

	jobs := r.Group("/jobs", authMW)
	{
		jobs.POST("", jobHandler.Create)
		jobs.GET("", jobHandler.List)
		jobs.GET("/stats", jobHandler.Stats)
		jobs.DELETE("/completed", jobHandler.DeleteCompleted)
		jobs.GET("/:id", jobHandler.GetByID)
		jobs.GET("/:id/attempts", jobHandler.ListAttempts)
	}

	r.GET("/anime/:id/jobs", authMW, jobHandler.ListForAnime)
	r.GET("/providers/health", authMW, providerHandler.Health)

	return r
}
