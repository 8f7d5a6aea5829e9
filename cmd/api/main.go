package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"veobatch/internal/app"
	"veobatch/internal/http/handlers"
	httpapi "veobatch/internal/http/httpapi"
	"veobatch/internal/infra"
	"veobatch/internal/infra/geoip"
	"veobatch/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to initialize")
	}
	defer rt.Close()

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
		defer resolver.Close()
	}

	application := handlers.NewApp(rt.Scheduler, rt.Store, rt.Journal, logger)
	application.RunContext = ctx
	application.DefaultModel = rt.DefaultModel()

	router := httpapi.NewRouter(application, httpapi.RouterOptions{
		DefaultLocale:   cfg.Locale,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
		StaticDir:       rt.Store.BasePath(),
		Gatherer:        rt.Registry,
	})

	server := infra.NewHTTPServer(cfg, router)

	logger.Info().Msgf("API listening on :%s", cfg.Port)
	if err := server.Run(ctx, nil); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	rt.Scheduler.Stop()
	logger.Info().Msg("server stopped")
}
