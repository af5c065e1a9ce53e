// Package api exposes dispatch and simulation runs over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"microgrid-sim/internal/api/handlers"
	"microgrid-sim/internal/api/middleware"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/metrics"
	"microgrid-sim/internal/model"
	"microgrid-sim/internal/store"
)

type Deps struct {
	Env       *model.Environment
	Optimizer *dispatch.Optimizer
	// Store is optional; when set every simulation record is persisted.
	Store       store.Store
	Logger      zerolog.Logger
	CORSOrigins []string
	MaxSteps    int
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(d.Logger))
	router.Use(middleware.ErrorHandler(d.Logger))

	policyHandler := handlers.NewPolicyHandler()
	prosumerHandler := handlers.NewProsumerHandler(d.Env, d.Optimizer.Params().Battery)
	dispatchHandler := handlers.NewDispatchHandler(d.Env, d.Optimizer)
	simulationHandler := handlers.NewSimulationHandler(d.Env, d.Optimizer, d.Store, d.Logger, d.MaxSteps)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "prosumers": len(d.Env.Profiles)})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/policies", policyHandler.ListPolicies)
		v1.GET("/prosumers", prosumerHandler.ListProsumers)
		v1.POST("/dispatch", dispatchHandler.RunDispatch)

		v1.GET("/simulations", simulationHandler.ListSimulations)
		v1.POST("/simulations", simulationHandler.RunSimulation)
		v1.GET("/simulations/:id", simulationHandler.GetSimulation)
		v1.GET("/simulations/:id/records", simulationHandler.GetRecords)
		v1.GET("/simulations/:id/rank", simulationHandler.RankProsumers)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
