package service

import (
	"fmt"
	"strings"

	"github.com/alloy/dispatcher/internal/models"
)

// Broadcast text never carries access details. Only the contractor who takes
// the job receives them, in confirmationMessage.
func broadcastMessage(job models.Job) string {
	return fmt.Sprintf(
		"New cleaning job available:\nCustomer: %s\nService: %s\nWhen: %s\nEst. price: $%.2f\n\nReply YES %s to accept.",
		job.CustomerName,
		job.ServiceType,
		orDefault(job.ScheduledStart, "TBD"),
		job.EstimatedPrice,
		job.JobID,
	)
}

func confirmationMessage(job models.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You accepted this job:\nCustomer: %s\nWhen: %s\nEst. price: $%.2f\nEntry: %s\n",
		job.CustomerName,
		orDefault(job.ScheduledStart, "TBD"),
		job.EstimatedPrice,
		orDefault(job.AccessMethod, "Not specified"),
	)
	if notes := strings.TrimSpace(job.AccessNotes); notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", notes)
	}
	b.WriteString("\nWe'll share final details in your Alloy dashboard.")
	return b.String()
}

func claimedMessage(job models.Job) string {
	return fmt.Sprintf("Job for %s on %s has been claimed by another contractor.",
		job.CustomerName, orDefault(job.ScheduledStart, "TBD"))
}

func customerAssignedMessage(job models.Job) string {
	return fmt.Sprintf("Your cleaning on %s has been assigned to one of our partner teams. They will contact you before arrival.",
		orDefault(job.ScheduledStart, "TBD"))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
