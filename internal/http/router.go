package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/alloy/dispatcher/internal/config"
	"github.com/alloy/dispatcher/internal/crm"
	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/http/handlers"
	"github.com/alloy/dispatcher/internal/http/middleware"
	"github.com/alloy/dispatcher/internal/service"

	_ "github.com/alloy/dispatcher/docs"
)

func Router(cfg config.Config, store db.JobStore, client crm.Client, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins()
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Dispatcher: &service.Dispatcher{
			Store:       store,
			Directory:   client,
			Notifier:    client,
			Logger:      logger.With().Str("component", "dispatch").Logger(),
			Concurrency: cfg.FanoutConcurrency,
			Timeout:     cfg.OutboundTimeout,
		},
		Resolver: &service.Resolver{
			Store:     store,
			Inference: cfg.ReplyInference,
			Logger:    logger.With().Str("component", "reply").Logger(),
		},
		Assigner: &service.Assigner{
			Store:          store,
			Directory:      client,
			Notifier:       client,
			Pusher:         client,
			Logger:         logger.With().Str("component", "assignment").Logger(),
			AssignedStatus: cfg.AssignedStatus,
			Concurrency:    cfg.FanoutConcurrency,
			Timeout:        cfg.OutboundTimeout,
		},
		CRM:       client,
		Store:     store,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/", h.Health)
	r.GET("/health", h.Health)
	r.GET("/contractors", h.Contractors)

	r.POST("/dispatch", h.Dispatch)
	r.POST("/contractor-reply", h.ContractorReply)

	leads := r.Group("/leads")
	{
		leads.POST("/cleaning", h.LeadsCleaning)
		leads.POST("/pros", h.LeadsPros)
	}

	debug := r.Group("/debug")
	debug.Use(middleware.AdminKey(cfg.AdminKey))
	{
		debug.GET("/jobs", h.DebugJobs)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
