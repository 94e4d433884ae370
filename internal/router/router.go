package router

import (
	"net/http"
	"strings"
	"time"

	"eyetrack-go/internal/config"
	"eyetrack-go/internal/handlers"
	"eyetrack-go/internal/services"
	"eyetrack-go/views"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

// Setup builds the HTTP surface: the participant page and session API, the
// admin results pages, health and metrics.
func Setup(log *zap.Logger, manager *services.Manager, results handlers.ResultsStore) *gin.Engine {
	conf := config.Conf

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "same-origin",
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		IsDevelopment:        !conf.Server.Production,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Routes without a cookie session.
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": manager.Len()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.StaticFS("/static", views.Static())
	if conf.Data.StimuliDir != "" && strings.HasPrefix(conf.Data.StimuliURL, "/") {
		router.Static(strings.TrimSuffix(conf.Data.StimuliURL, "/"), conf.Data.StimuliDir)
	}

	store := cookie.NewStore([]byte(conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.Server.Production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400,
	})
	router.Use(sessions.Sessions("eyetrack", store))
	router.Use(NonceMiddleware())
	router.Use(CSRFProtection())
	router.Use(SaveSession())
	router.Use(ContentSecurityPolicy())

	experimentHandler := handlers.NewExperimentHandler(log, manager, conf.Sessions.PollTimeout)
	resultsHandler := handlers.NewResultsHandler(log, results, manager.Design().Options.MinimumCalibrationPrecision)
	metricsHandler := handlers.NewMetricsHandler(log, results)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: conf.Server.RateLimit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", experimentHandler.ShowPage)

	api := router.Group("/api/sessions")
	{
		api.POST("", limiter, experimentHandler.CreateSession)

		owned := api.Group("/:id")
		owned.Use(SessionOwner())
		{
			owned.GET("/commands", experimentHandler.Commands)
			owned.POST("/events", experimentHandler.Events)
			owned.GET("/status", experimentHandler.Status)
			owned.DELETE("", experimentHandler.Cancel)
		}
	}

	admin := router.Group("/admin")
	admin.Use(AdminRequired(log))
	{
		admin.GET("/sessions", resultsHandler.ListSessions)
		admin.GET("/sessions/:id/results", resultsHandler.ShowResults)
		admin.GET("/sessions/:id/summary", metricsHandler.Summary)
		admin.GET("/sessions/:id/chart", resultsHandler.ShowCharts)
	}

	return router
}
