package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/crm"
	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/models"
	"github.com/alloy/dispatcher/internal/service"
)

const serviceName = "alloy-dispatcher"

type Handler struct {
	Dispatcher *service.Dispatcher
	Resolver   *service.Resolver
	Assigner   *service.Assigner
	CRM        crm.Client
	Store      db.JobStore
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

type ContractorsResponse struct {
	OK          bool                `json:"ok"`
	Count       int                 `json:"count"`
	Contractors []models.Contractor `json:"contractors"`
}

type DebugJobsResponse struct {
	OK     bool                  `json:"ok"`
	Count  int                   `json:"count"`
	JobIDs []string              `json:"job_ids"`
	Jobs   map[string]models.Job `json:"jobs"`
}

// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	if p, ok := h.Store.(db.Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Job store unavailable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, HealthResponse{OK: true, Service: serviceName})
}

// @Summary List eligible contractors
// @Description Fresh directory fetch, filtered by the configured contractor tags
// @Tags contractors
// @Produce json
// @Success 200 {object} ContractorsResponse
// @Router /contractors [get]
func (h *Handler) Contractors(c *gin.Context) {
	contractors, err := h.CRM.ListEligibleContractors(c.Request.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("fetch contractors failed")
	}
	if contractors == nil {
		contractors = []models.Contractor{}
	}
	c.JSON(http.StatusOK, ContractorsResponse{OK: true, Count: len(contractors), Contractors: contractors})
}

// @Summary Dump the job store
// @Tags debug
// @Produce json
// @Param X-Admin-Key header string false "Admin key"
// @Success 200 {object} DebugJobsResponse
// @Failure 401 {object} map[string]any
// @Router /debug/jobs [get]
func (h *Handler) DebugJobs(c *gin.Context) {
	jobs, err := h.Store.All(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Failed to list jobs", err.Error())
		return
	}
	resp := DebugJobsResponse{
		OK:     true,
		Count:  len(jobs),
		JobIDs: make([]string, 0, len(jobs)),
		Jobs:   make(map[string]models.Job, len(jobs)),
	}
	for _, job := range jobs {
		resp.JobIDs = append(resp.JobIDs, job.JobID)
		resp.Jobs[job.JobID] = job
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
