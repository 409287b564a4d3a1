package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alloy/dispatcher/internal/models"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrMissingJobID = errors.New("job has no job_id")
)

// JobStore is the single source of truth for dispatch and assignment state.
// MarkAssigned is the only mutator after creation besides AddNotified, and
// must be atomic: the returned bool is true only for the call that moved the
// job from unassigned to assigned.
type JobStore interface {
	Put(ctx context.Context, job models.Job) (models.Job, error)
	Get(ctx context.Context, jobID string) (models.Job, bool, error)
	All(ctx context.Context) ([]models.Job, error)
	AddNotified(ctx context.Context, jobID, contractorRef string, at time.Time) (models.Job, error)
	MarkAssigned(ctx context.Context, jobID, contractorRef, contractorName string, at time.Time) (models.Job, bool, error)
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	KindMemory   = "memory"
	KindRedis    = "redis"
	KindPostgres = "postgres"
)

// Open builds the configured store. The returned func releases its connections.
func Open(ctx context.Context, kind, redisURL, databaseURL string) (JobStore, func(), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), func() {}, nil
	case KindRedis:
		if redisURL == "" {
			return nil, nil, fmt.Errorf("REDIS_URL is required for JOB_STORE=redis")
		}
		s, err := NewRedisStore(ctx, redisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case KindPostgres:
		if databaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for JOB_STORE=postgres")
		}
		s, err := New(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown JOB_STORE %q", kind)
	}
}

// mergeRedispatch refreshes the descriptive fields of an existing job from a
// new booking event while keeping everything dispatch and assignment wrote.
func mergeRedispatch(existing, incoming models.Job) models.Job {
	out := incoming.Clone()
	out.NotifiedContractorRefs = append([]string{}, existing.NotifiedContractorRefs...)
	out.NotifiedAt = existing.Clone().NotifiedAt
	out.AssignedContractorRef = existing.AssignedContractorRef
	out.AssignedContractorName = existing.AssignedContractorName
	out.AssignedAt = existing.AssignedAt
	return out.Clone()
}

// addNotified appends contractorRef once and always moves its notification
// time to at, so a re-broadcast counts as the latest offer.
func addNotified(job *models.Job, contractorRef string, at time.Time) bool {
	if !job.WasNotified(contractorRef) {
		job.NotifiedContractorRefs = append(job.NotifiedContractorRefs, contractorRef)
	}
	if job.NotifiedAt == nil {
		job.NotifiedAt = map[string]time.Time{}
	}
	job.NotifiedAt[contractorRef] = at.UTC()
	return true
}

func markAssigned(job *models.Job, contractorRef, contractorName string, at time.Time) bool {
	if job.IsAssigned() {
		return false
	}
	ref := contractorRef
	name := contractorName
	assignedAt := at.UTC()
	job.AssignedContractorRef = &ref
	job.AssignedContractorName = &name
	job.AssignedAt = &assignedAt
	return true
}
