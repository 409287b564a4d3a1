package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/models"
)

const (
	ReasonInvalidFormat      = "invalid_format"
	ReasonNoJobForContractor = "job_not_found_for_contractor"
	ReasonJobNotFound        = "job_not_found"
	ReasonMissingContactID   = "missing_contact_id"
	ReasonInvalidPayload     = "invalid_payload"
)

// Bare-affirmative inference modes.
const (
	InferByDispatch     = "dispatch"
	InferByNotification = "notification"
)

const acceptKeyword = "YES"

var bareAffirmatives = map[string]bool{
	"YES":  true,
	"Y":    true,
	"YEA":  true,
	"YEAH": true,
	"YEP":  true,
}

var (
	contactRefExtractors = []extractor{
		at("contact_id"),
		at("contactId"),
		at("customData", "contact_id"),
	}
	replyTextExtractors = []extractor{
		bodyAt("customData", "body"),
		bodyAt("message", "body"),
		bodyAt("message"),
	}
)

// bodyAt is like at, but an object found at the path is read through its
// "body" field.
func bodyAt(keys ...string) extractor {
	return func(raw map[string]any) string {
		v := lookup(raw, keys...)
		if m, ok := v.(map[string]any); ok {
			v = m["body"]
		}
		return stringValue(v)
	}
}

type Resolver struct {
	Store     db.JobStore
	Inference string
	Logger    zerolog.Logger
}

type ResolvedReply struct {
	Job        models.Job
	JobID      string
	ContactRef string
	Text       string
}

// Rejection is a reply that could not be tied to a job. Fields carries the
// extra response keys for the webhook caller.
type Rejection struct {
	Reason string
	Fields map[string]any
}

func (r *Rejection) Error() string {
	return "reply rejected: " + r.Reason
}

func reject(reason string, key string, value any) *Rejection {
	return &Rejection{Reason: reason, Fields: map[string]any{key: value}}
}

// ResolveReply ties an SMS reply to a stored job. An explicit job id wins;
// a bare affirmative falls back to the latest job this contractor was
// offered.
func (r *Resolver) ResolveReply(ctx context.Context, raw map[string]any) (ResolvedReply, *Rejection) {
	contactRef := firstOf(raw, contactRefExtractors...)
	text := strings.TrimSpace(firstOf(raw, replyTextExtractors...))
	upper := strings.ToUpper(text)
	tokens := strings.Fields(text)

	logger := r.Logger.With().Str("contact_id", contactRef).Logger()
	logger.Info().Str("message_text", text).Msg("parsed contractor reply")

	jobID := stringValue(lookup(raw, "customData", "job_id"))
	if jobID == "" && len(tokens) >= 2 && strings.EqualFold(tokens[0], acceptKeyword) {
		jobID = strings.TrimSpace(tokens[1])
	}

	if jobID != "" {
		job, ok, err := r.Store.Get(ctx, jobID)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("job lookup failed")
		}
		if ok {
			return r.resolved(job, contactRef, text)
		}
	}

	if !bareAffirmatives[upper] {
		logger.Warn().Str("message_text", text).Msg("invalid reply format")
		return ResolvedReply{}, reject(ReasonInvalidFormat, "message_text", text)
	}

	jobs, err := r.Store.All(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("list jobs failed")
		return ResolvedReply{}, reject(ReasonJobNotFound, "job_id", nullable(jobID))
	}

	job, ok := r.latestOffered(jobs, contactRef)
	if !ok {
		logger.Warn().Int("known_jobs", len(jobs)).Msg("no matching job found for contractor")
		return ResolvedReply{}, reject(ReasonNoJobForContractor, "contact_id", nullable(contactRef))
	}
	return r.resolved(job, contactRef, text)
}

func (r *Resolver) resolved(job models.Job, contactRef, text string) (ResolvedReply, *Rejection) {
	if job.JobID == "" {
		return ResolvedReply{}, reject(ReasonJobNotFound, "job_id", nil)
	}
	if contactRef == "" {
		r.Logger.Warn().Str("job_id", job.JobID).Msg("reply has no contact id")
		return ResolvedReply{}, reject(ReasonMissingContactID, "job_id", job.JobID)
	}
	return ResolvedReply{Job: job, JobID: job.JobID, ContactRef: contactRef, Text: text}, nil
}

// latestOffered picks among the jobs this contractor was notified about.
// Jobs arrive in insertion order, so >= lets later jobs win ties.
func (r *Resolver) latestOffered(jobs []models.Job, contactRef string) (models.Job, bool) {
	if contactRef == "" {
		return models.Job{}, false
	}
	var (
		best     models.Job
		bestTime time.Time
		found    bool
	)
	for _, job := range jobs {
		if !job.WasNotified(contactRef) {
			continue
		}
		t := r.offeredAt(job, contactRef)
		if !found || !t.Before(bestTime) {
			best, bestTime, found = job, t, true
		}
	}
	return best, found
}

func (r *Resolver) offeredAt(job models.Job, contactRef string) time.Time {
	if r.Inference == InferByNotification {
		if t, ok := job.NotifiedAt[contactRef]; ok {
			return t
		}
	}
	return job.DispatchedAt
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
