// Package crm talks to the booking/CRM platform: the contact directory that
// holds contractors, the SMS conversations API, the custom job records and
// contact creation for the lead forms.
package crm

import (
	"context"
	"errors"
	"fmt"

	"github.com/alloy/dispatcher/internal/models"
)

// ErrNotConfigured is returned by every call when credentials are missing.
var ErrNotConfigured = errors.New("crm credentials not configured")

type Client interface {
	ListEligibleContractors(ctx context.Context) ([]models.Contractor, error)
	SendMessage(ctx context.Context, contactRef string, text string) error
	PushAssignment(ctx context.Context, rec models.AssignmentRecord) error
	CreateContact(ctx context.Context, c models.NewContact) (string, error)
}

// StatusError is a non-2xx answer from the CRM API.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm %s failed (%d): %s", e.Op, e.Status, e.Body)
}

// FieldMap names the job record properties written on assignment. The CRM
// schema differs per account so every key is configuration.
type FieldMap struct {
	ExternalJobID  string
	ContractorID   string
	ContractorName string
	Status         string
	AccessMethod   string
	AccessNotes    string
}

func DefaultFieldMap() FieldMap {
	return FieldMap{
		ExternalJobID:  "external_job_id",
		ContractorID:   "contractor_assigned_id",
		ContractorName: "contractor_assigned_name",
		Status:         "job_status",
		AccessMethod:   "how_will_your_cleaner_get_into_your_home",
		AccessNotes:    "access_notes_for_your_cleaner",
	}
}
