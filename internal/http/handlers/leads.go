package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alloy/dispatcher/internal/models"
)

const (
	leadSource      = "Website Lead"
	defaultLeadCity = "Bend"
)

type CleaningLeadRequest struct {
	Name               string `json:"name" validate:"required"`
	Email              string `json:"email" validate:"required,email"`
	Phone              string `json:"phone" validate:"required"`
	Address            string `json:"address"`
	City               string `json:"city"`
	Zip                string `json:"zip"`
	HomeSize           string `json:"home_size"`
	Bedrooms           *int   `json:"bedrooms" validate:"omitempty,min=0"`
	Bathrooms          *int   `json:"bathrooms" validate:"omitempty,min=0"`
	PreferredFrequency string `json:"preferred_frequency"`
	Notes              string `json:"notes"`
}

type ProsApplicationRequest struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Experience string `json:"experience"`
	Notes      string `json:"notes"`
}

type LeadResponse struct {
	OK        bool   `json:"ok"`
	ContactID string `json:"contact_id"`
	Message   string `json:"message"`
}

// @Summary Submit a cleaning lead
// @Tags leads
// @Accept json
// @Produce json
// @Param payload body CleaningLeadRequest true "Cleaning lead"
// @Success 200 {object} LeadResponse
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /leads/cleaning [post]
func (h *Handler) LeadsCleaning(c *gin.Context) {
	var req CleaningLeadRequest
	if !h.bindLead(c, &req) {
		return
	}

	fields := map[string]string{}
	setField(fields, "address", req.Address)
	setField(fields, "city", req.City)
	if fields["city"] == "" {
		fields["city"] = defaultLeadCity
	}
	setField(fields, "zip", req.Zip)
	setField(fields, "home_size", req.HomeSize)
	if req.Bedrooms != nil {
		fields["bedrooms"] = strconv.Itoa(*req.Bedrooms)
	}
	if req.Bathrooms != nil {
		fields["bathrooms"] = strconv.Itoa(*req.Bathrooms)
	}
	setField(fields, "preferred_frequency", req.PreferredFrequency)
	setField(fields, "notes", req.Notes)

	h.createLead(c, models.NewContact{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Source:       leadSource,
		Tags:         []string{"cleaning_lead", "website_lead"},
		CustomFields: fields,
	}, "Lead submitted successfully. We'll contact you shortly.",
		"Failed to create contact in CRM. Please try again or contact support.")
}

// @Summary Submit a contractor application
// @Tags leads
// @Accept json
// @Produce json
// @Param payload body ProsApplicationRequest true "Application"
// @Success 200 {object} LeadResponse
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /leads/pros [post]
func (h *Handler) LeadsPros(c *gin.Context) {
	var req ProsApplicationRequest
	if !h.bindLead(c, &req) {
		return
	}

	fields := map[string]string{}
	setField(fields, "experience", req.Experience)
	setField(fields, "notes", req.Notes)

	h.createLead(c, models.NewContact{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Source:       leadSource,
		Tags:         []string{"pros_application", "website_lead"},
		CustomFields: fields,
	}, "Application submitted successfully. We'll review and contact you soon.",
		"Failed to submit application. Please try again or contact support.")
}

func (h *Handler) bindLead(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) createLead(c *gin.Context, contact models.NewContact, okMessage, failMessage string) {
	id, err := h.CRM.CreateContact(c.Request.Context(), contact)
	if err != nil {
		h.Logger.Error().Err(err).Strs("tags", contact.Tags).Msg("create contact failed")
		writeError(c, http.StatusInternalServerError, "CRM_ERROR", failMessage, nil)
		return
	}
	h.Logger.Info().Str("contact_id", id).Strs("tags", contact.Tags).Msg("lead submitted")
	c.JSON(http.StatusOK, LeadResponse{OK: true, ContactID: id, Message: okMessage})
}

func setField(fields map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fields[key] = v
	}
}
