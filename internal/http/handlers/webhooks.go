package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alloy/dispatcher/internal/service"
)

// @Summary Dispatch a booked job
// @Description Booking webhook. Stores the job and texts every eligible contractor.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param payload body map[string]any true "Booking event"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /dispatch [post]
func (h *Handler) Dispatch(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}

	res := h.Dispatcher.Dispatch(c.Request.Context(), raw)
	if !res.OK {
		c.JSON(http.StatusOK, gin.H{
			"ok":     false,
			"reason": res.Reason,
			"job":    res.Job,
		})
		return
	}

	body := gin.H{
		"ok":                   true,
		"job":                  res.Job,
		"contractors_notified": res.Notified,
	}
	if res.Reason != "" {
		body["reason"] = res.Reason
	}
	if len(res.Failed) > 0 {
		body["contractors_failed"] = res.Failed
	}
	c.JSON(http.StatusOK, body)
}

// @Summary Contractor SMS reply
// @Description Reply webhook. Rejections come back as ok=false with a reason and status 200.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param payload body map[string]any true "Inbound SMS event"
// @Success 200 {object} map[string]any
// @Router /contractor-reply [post]
func (h *Handler) ContractorReply(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.Logger.Warn().Err(err).Msg("unreadable contractor reply")
		c.JSON(http.StatusOK, gin.H{"ok": false, "reason": service.ReasonInvalidPayload})
		return
	}

	ctx := c.Request.Context()
	resolved, rej := h.Resolver.ResolveReply(ctx, raw)
	if rej != nil {
		body := gin.H{"ok": false, "reason": rej.Reason}
		for k, v := range rej.Fields {
			body[k] = v
		}
		c.JSON(http.StatusOK, body)
		return
	}

	res := h.Assigner.Assign(ctx, resolved.Job, resolved.ContactRef)
	body := gin.H{
		"ok":              res.OK,
		"job_id":          res.JobID,
		"contractor_id":   res.ContractorRef,
		"contractor_name": res.ContractorName,
	}
	if !res.OK {
		body["reason"] = res.Reason
	}
	if res.AlreadyAssigned {
		body["assigned_contractor_id"] = res.AssignedContractorRef
	}
	c.JSON(http.StatusOK, body)
}
