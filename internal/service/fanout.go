package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alloy/dispatcher/internal/models"
	"github.com/alloy/dispatcher/internal/utils"
)

const (
	defaultConcurrency = 8
	defaultSendTimeout = 10 * time.Second
)

// Directory is the read side of the contractor CRM.
type Directory interface {
	ListEligibleContractors(ctx context.Context) ([]models.Contractor, error)
}

type Notifier interface {
	SendMessage(ctx context.Context, contactRef string, text string) error
}

type AssignmentPusher interface {
	PushAssignment(ctx context.Context, rec models.AssignmentRecord) error
}

type outbound struct {
	ContactRef string
	Text       string
}

type fanOut struct {
	notifier    Notifier
	concurrency int
	timeout     time.Duration
	logger      zerolog.Logger
}

// send delivers every message concurrently and returns one error slot per
// message. A failed send never cancels its siblings, and sends are detached
// from the caller's cancellation so a dropped webhook connection does not cut
// a broadcast short.
func (f fanOut) send(ctx context.Context, kind string, msgs []outbound) []error {
	errs := make([]error, len(msgs))
	if len(msgs) == 0 {
		return errs
	}
	limit := f.concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	timeout := f.timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	base := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, msg := range msgs {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(base, timeout)
			defer cancel()
			if err := f.notifier.SendMessage(sctx, msg.ContactRef, msg.Text); err != nil {
				errs[i] = err
				f.logger.Error().Err(err).
					Str("kind", kind).
					Str("contact_id", msg.ContactRef).
					Msg("send failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// reachable drops contractors without an id or phone, and duplicate ids, in
// directory order.
func reachable(contractors []models.Contractor, logger zerolog.Logger) []models.Contractor {
	seen := make(map[string]bool, len(contractors))
	out := make([]models.Contractor, 0, len(contractors))
	for _, c := range contractors {
		if !utils.UsableContact(c.ID, c.Phone) {
			logger.Info().Str("contact_id", c.ID).Str("phone", c.Phone).Msg("skipping contractor without valid id/phone")
			continue
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
