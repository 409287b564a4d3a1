package models

import "time"

const (
	ServiceTypeStandard = "Standard Home Cleaning"
	ServiceTypeDeep     = "Deep Cleaning"
)

type Job struct {
	JobID                  string               `json:"job_id"`
	CustomerName           string               `json:"customer_name"`
	CustomerContactRef     string               `json:"contact_id"`
	ServiceType            string               `json:"service_type"`
	EstimatedPrice         float64              `json:"estimated_price"`
	ScheduledStart         string               `json:"start_time"`
	ScheduledEnd           string               `json:"end_time"`
	AccessMethod           string               `json:"access_method"`
	AccessNotes            string               `json:"access_notes"`
	NotifiedContractorRefs []string             `json:"notified_contractors"`
	NotifiedAt             map[string]time.Time `json:"notified_at,omitempty"`
	AssignedContractorRef  *string              `json:"assigned_contractor_id"`
	AssignedContractorName *string              `json:"assigned_contractor_name"`
	AssignedAt             *time.Time           `json:"assigned_at,omitempty"`
	DispatchedAt           time.Time            `json:"dispatched_at"`
}

func (j Job) IsAssigned() bool {
	return j.AssignedContractorRef != nil
}

func (j Job) WasNotified(contractorRef string) bool {
	for _, ref := range j.NotifiedContractorRefs {
		if ref == contractorRef {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices, maps or pointers with j.
func (j Job) Clone() Job {
	out := j
	out.NotifiedContractorRefs = append([]string(nil), j.NotifiedContractorRefs...)
	if out.NotifiedContractorRefs == nil {
		out.NotifiedContractorRefs = []string{}
	}
	if j.NotifiedAt != nil {
		out.NotifiedAt = make(map[string]time.Time, len(j.NotifiedAt))
		for k, v := range j.NotifiedAt {
			out.NotifiedAt[k] = v
		}
	}
	if j.AssignedContractorRef != nil {
		ref := *j.AssignedContractorRef
		out.AssignedContractorRef = &ref
	}
	if j.AssignedContractorName != nil {
		name := *j.AssignedContractorName
		out.AssignedContractorName = &name
	}
	if j.AssignedAt != nil {
		at := *j.AssignedAt
		out.AssignedAt = &at
	}
	return out
}

type Contractor struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`
	Tags   []string `json:"tags"`
	Source string   `json:"contact_source"`
}

// AssignmentRecord is the flat record pushed to the CRM once a job is taken.
type AssignmentRecord struct {
	JobID          string
	ContractorRef  string
	ContractorName string
	Status         string
	AccessMethod   string
	AccessNotes    string
}

type NewContact struct {
	Name         string
	Email        string
	Phone        string
	Source       string
	Tags         []string
	CustomFields map[string]string
}
