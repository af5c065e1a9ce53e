package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"microgrid-sim/internal/api"
	"microgrid-sim/internal/config"
	"microgrid-sim/internal/data"
	"microgrid-sim/internal/dispatch"
	"microgrid-sim/internal/logging"
	"microgrid-sim/internal/store"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("SIM_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.API.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cache := data.NewEnvironmentCache(cfg.API.CacheTTL)
	env, err := cfg.Environment(cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("load environment")
	}
	opt, err := dispatch.New(cfg.OptimizerParams())
	if err != nil {
		logger.Fatal().Err(err).Msg("build optimizer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	switch {
	case cfg.Output.PostgresConn != "":
		st, err = store.NewPostgres(ctx, cfg.Output.PostgresConn)
	case cfg.Output.SQLitePath != "":
		if err = os.MkdirAll(filepath.Dir(cfg.Output.SQLitePath), 0o755); err == nil {
			st, err = store.NewSQLite(cfg.Output.SQLitePath)
		}
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	if st != nil {
		defer st.Close()
	}

	router := api.NewRouter(api.Deps{
		Env:         env,
		Optimizer:   opt,
		Store:       st,
		Logger:      logger,
		CORSOrigins: cfg.API.CORSOrigins,
		MaxSteps:    cfg.API.MaxSteps,
	})

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().
			Str("addr", cfg.API.Addr).
			Int("prosumers", len(env.Profiles)).
			Int("days", env.Days()).
			Bool("persist", st != nil).
			Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
