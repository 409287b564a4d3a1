package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/models"
)

const (
	DefaultAssignedStatus = "contractor_assigned"
	unknownContractorName = "Unknown contractor"
)

type Assigner struct {
	Store          db.JobStore
	Directory      Directory
	Notifier       Notifier
	Pusher         AssignmentPusher
	Logger         zerolog.Logger
	AssignedStatus string
	Concurrency    int
	Timeout        time.Duration
	Now            func() time.Time
}

type AssignmentResult struct {
	OK                    bool
	Reason                string
	JobID                 string
	ContractorRef         string
	ContractorName        string
	AlreadyAssigned       bool
	AssignedContractorRef string
	Job                   models.Job
	NotifyFailures        int
}

// Assign binds job to the replying contractor if nobody holds it yet. Only
// the caller that wins the store's check-and-set fans out notifications and
// pushes the record; losers get an already-assigned result and nothing else
// changes.
func (a *Assigner) Assign(ctx context.Context, job models.Job, contactRef string) AssignmentResult {
	logger := a.Logger.With().Str("job_id", job.JobID).Str("contact_id", contactRef).Logger()
	res := AssignmentResult{JobID: job.JobID, ContractorRef: contactRef, Job: job}

	contractors, err := a.Directory.ListEligibleContractors(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("fetch contractors failed")
	}
	res.ContractorName = contractorName(contractors, contactRef)

	updated, won, err := a.Store.MarkAssigned(ctx, job.JobID, contactRef, res.ContractorName, a.now())
	if err != nil {
		logger.Error().Err(err).Msg("mark assigned failed")
		res.Reason = ReasonStoreError
		if errors.Is(err, db.ErrJobNotFound) {
			res.Reason = ReasonJobNotFound
		}
		return res
	}
	res.Job = updated

	if !won {
		winner := ""
		if updated.AssignedContractorRef != nil {
			winner = *updated.AssignedContractorRef
		}
		res.Reason = ReasonAlreadyAssigned
		res.AlreadyAssigned = true
		res.AssignedContractorRef = winner
		logger.Info().Str("assigned_contractor_id", winner).Msg("job already assigned")
		if winner != contactRef {
			a.fanOut().send(ctx, "late_claim", []outbound{{ContactRef: contactRef, Text: claimedMessage(updated)}})
		}
		return res
	}

	res.OK = true
	res.AssignedContractorRef = contactRef

	msgs := []outbound{{ContactRef: contactRef, Text: confirmationMessage(updated)}}
	claimed := claimedMessage(updated)
	for _, c := range reachable(contractors, logger) {
		if c.ID == contactRef {
			continue
		}
		msgs = append(msgs, outbound{ContactRef: c.ID, Text: claimed})
	}
	if updated.CustomerContactRef != "" {
		msgs = append(msgs, outbound{ContactRef: updated.CustomerContactRef, Text: customerAssignedMessage(updated)})
	}
	for _, err := range a.fanOut().send(ctx, "assignment", msgs) {
		if err != nil {
			res.NotifyFailures++
		}
	}

	a.push(ctx, updated, contactRef, res.ContractorName, logger)

	logger.Info().
		Str("contractor_name", res.ContractorName).
		Int("notifications", len(msgs)).
		Int("notify_failures", res.NotifyFailures).
		Msg("job assigned")
	return res
}

// push is best-effort: the store already holds the assignment and a CRM
// failure does not undo it.
func (a *Assigner) push(ctx context.Context, job models.Job, contactRef, name string, logger zerolog.Logger) {
	if a.Pusher == nil {
		return
	}
	status := a.AssignedStatus
	if status == "" {
		status = DefaultAssignedStatus
	}
	rec := models.AssignmentRecord{
		JobID:          job.JobID,
		ContractorRef:  contactRef,
		ContractorName: name,
		Status:         status,
		AccessMethod:   job.AccessMethod,
		AccessNotes:    job.AccessNotes,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout())
	defer cancel()
	if err := a.Pusher.PushAssignment(pctx, rec); err != nil {
		logger.Error().Err(err).Msg("push assignment failed")
	}
}

func contractorName(contractors []models.Contractor, contactRef string) string {
	for _, c := range contractors {
		if c.ID == contactRef && c.Name != "" {
			return c.Name
		}
	}
	return unknownContractorName
}

func (a *Assigner) fanOut() fanOut {
	return fanOut{notifier: a.Notifier, concurrency: a.Concurrency, timeout: a.Timeout, logger: a.Logger}
}

func (a *Assigner) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return defaultSendTimeout
}

func (a *Assigner) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}
