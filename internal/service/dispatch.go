package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/models"
)

const (
	ReasonNoContractors   = "no_contractors"
	ReasonUnaddressable   = "unaddressable_job"
	ReasonAlreadyAssigned = "already_assigned"
	ReasonStoreError      = "store_error"
)

type Dispatcher struct {
	Store       db.JobStore
	Directory   Directory
	Notifier    Notifier
	Logger      zerolog.Logger
	Concurrency int
	Timeout     time.Duration
	Now         func() time.Time
}

type DispatchResult struct {
	Job      models.Job
	Notified []string
	Failed   []string
	OK       bool
	Reason   string
}

// Dispatch turns one booking event into a stored job and broadcasts it to
// every reachable contractor. Only contractors whose send succeeded are
// recorded as notified.
func (d *Dispatcher) Dispatch(ctx context.Context, raw map[string]any) DispatchResult {
	now := d.now()
	job := BuildJob(raw)
	job.DispatchedAt = now
	logger := d.Logger.With().Str("job_id", job.JobID).Logger()

	if job.JobID == "" {
		logger.Warn().Str("customer", job.CustomerName).Msg("no job_id in booking event, not storing job")
		return DispatchResult{Job: job, Notified: []string{}, OK: true, Reason: ReasonUnaddressable}
	}

	stored, err := d.Store.Put(ctx, job)
	if err != nil {
		logger.Error().Err(err).Msg("store job failed")
		return DispatchResult{Job: job, Notified: []string{}, Reason: ReasonStoreError}
	}
	if stored.IsAssigned() {
		logger.Info().Str("contractor_id", *stored.AssignedContractorRef).Msg("job already assigned, not re-broadcasting")
		return DispatchResult{Job: stored, Notified: []string{}, Reason: ReasonAlreadyAssigned}
	}

	contractors, err := d.Directory.ListEligibleContractors(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("fetch contractors failed")
		contractors = nil
	}
	if len(contractors) == 0 {
		logger.Warn().Msg("no contractors available for dispatch")
		return DispatchResult{Job: stored, Notified: []string{}, Reason: ReasonNoContractors}
	}

	targets := reachable(contractors, logger)
	text := broadcastMessage(stored)
	msgs := make([]outbound, len(targets))
	for i, c := range targets {
		msgs[i] = outbound{ContactRef: c.ID, Text: text}
	}
	errs := d.fanOut().send(ctx, "broadcast", msgs)

	res := DispatchResult{Job: stored, Notified: []string{}, OK: true}
	for i, c := range targets {
		if errs[i] != nil {
			res.Failed = append(res.Failed, c.ID)
			continue
		}
		res.Notified = append(res.Notified, c.ID)
		updated, err := d.Store.AddNotified(ctx, stored.JobID, c.ID, now)
		if err != nil {
			logger.Error().Err(err).Str("contact_id", c.ID).Msg("record notified contractor failed")
			continue
		}
		res.Job = updated
	}

	logger.Info().
		Int("contractors", len(contractors)).
		Int("notified", len(res.Notified)).
		Int("failed", len(res.Failed)).
		Msg("job dispatched")
	return res
}

func (d *Dispatcher) fanOut() fanOut {
	return fanOut{notifier: d.Notifier, concurrency: d.Concurrency, timeout: d.Timeout, logger: d.Logger}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
