package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alloy/dispatcher/internal/config"
	"github.com/alloy/dispatcher/internal/crm"
	"github.com/alloy/dispatcher/internal/db"
	httpapi "github.com/alloy/dispatcher/internal/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "alloy-dispatcher").Str("env", cfg.Env).Logger()

	ctx := context.Background()
	store, closeStore, err := db.Open(ctx, cfg.JobStore, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("job_store", cfg.JobStore).Msg("failed to open job store")
	}
	defer closeStore()
	logger.Info().Str("job_store", cfg.JobStore).Msg("job store ready")

	client := newCRMClient(cfg, logger)

	router := httpapi.Router(cfg, store, client, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

func newCRMClient(cfg config.Config, logger zerolog.Logger) crm.Client {
	if strings.EqualFold(cfg.CRMMode, "mock") {
		logger.Info().Msg("using mock CRM client")
		return &crm.MockClient{}
	}
	if cfg.GHLAPIKey == "" || cfg.GHLLocationID == "" {
		logger.Error().Msg("GHL_API_KEY or GHL_LOCATION_ID not set; CRM calls will fail")
	}
	return crm.NewHTTPClient(crm.Settings{
		BaseURL:        cfg.GHLBaseURL,
		APIKey:         cfg.GHLAPIKey,
		LocationID:     cfg.GHLLocationID,
		APIVersion:     cfg.GHLAPIVersion,
		JobsObject:     cfg.GHLJobsObject,
		ContractorTags: cfg.Tags(),
		PageLimit:      cfg.ContactsPageLimit,
		PhoneRegion:    cfg.PhoneRegion,
		Timeout:        cfg.OutboundTimeout,
		RatePerSec:     cfg.CRMRatePerSec,
		RateBurst:      cfg.CRMRateBurst,
		Fields: crm.FieldMap{
			ExternalJobID:  cfg.FieldExternalJobID,
			ContractorID:   cfg.FieldContractorID,
			ContractorName: cfg.FieldContractorName,
			Status:         cfg.FieldStatus,
			AccessMethod:   cfg.FieldAccessMethod,
			AccessNotes:    cfg.FieldAccessNotes,
		},
	}, logger)
}
