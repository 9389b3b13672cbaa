package v1

import (
	"go_niceurl/api/v1/middleware"
	"go_niceurl/api/v1/resolve"
	"go_niceurl/api/v1/rules"
	"go_niceurl/internal/auth"
	"go_niceurl/internal/httpx"
	"go_niceurl/internal/rulestore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Deps holds what the HTTP layer needs
type Deps struct {
	Resolver  resolve.Resolver
	Settings  resolve.Settings
	Rules     *rulestore.Service
	Validator rules.Validator
	Tokens    *auth.Tokens
	Gatherer  prometheus.Gatherer
	Logger    *logrus.Entry
}

// SetupRouter sets up the dispatch endpoint and the API v1 routes
func SetupRouter(r *gin.Engine, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	r.Use(middleware.RequestLogger(logger))

	resolveHandler := resolve.NewHandler(deps.Resolver, deps.Settings)
	r.GET("/r", resolveHandler.Dispatch)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", pingHandler)
		v1.GET("/resolve", resolveHandler.Resolve)
		v1.POST("/links/invert", resolveHandler.Invert)

		// Admin routes (authentication required)
		if deps.Rules != nil && deps.Tokens != nil {
			rulesHandler := rules.NewHandler(deps.Rules, deps.Validator)
			rulesGroup := v1.Group("/rules")
			rulesGroup.Use(middleware.AdminRequired(deps.Tokens))
			{
				rulesGroup.GET("", rulesHandler.List)
				rulesGroup.POST("/create", rulesHandler.Create)
				rulesGroup.POST("/update", rulesHandler.Update)
				rulesGroup.POST("/toggle", rulesHandler.Toggle)
				rulesGroup.POST("/delete", rulesHandler.Delete)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}
