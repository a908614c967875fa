package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AnujSsStw/img-gen/internal/http/handlers"
	httpapi "github.com/AnujSsStw/img-gen/internal/http/httpapi"
	"github.com/AnujSsStw/img-gen/internal/imagegen"
	"github.com/AnujSsStw/img-gen/internal/infra"
	"github.com/AnujSsStw/img-gen/internal/infra/credentials"
	"github.com/AnujSsStw/img-gen/internal/infra/geoip"
	"github.com/AnujSsStw/img-gen/internal/metrics"
	"github.com/AnujSsStw/img-gen/internal/middleware"
	"github.com/AnujSsStw/img-gen/internal/webui"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	keys := credentials.NewStore(nil)
	if key, _ := keys.StabilityAPIKey(context.Background()); key == "" {
		logger.Warn().Msgf("%s is not set; generation requests will fail until it is", credentials.EnvStabilityAPIKey)
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	generator := imagegen.NewStabilityClient(imagegen.StabilityOptions{
		BaseURL: cfg.StabilityBaseURL,
		Keys:    keys,
		Timeout: cfg.UpstreamTimeout,
	})

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.NewRecorder()
	}

	page, err := webui.NewPage(handlers.GeneratePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load form page")
	}

	app := handlers.NewApp(cfg, logger, generator, recorder, page)
	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
