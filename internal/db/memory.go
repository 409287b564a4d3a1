package db

import (
	"context"
	"sync"
	"time"

	"github.com/alloy/dispatcher/internal/models"
)

// MemoryStore keeps jobs in process memory. Nothing survives a restart and
// nothing is evicted.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]*models.Job{}}
}

func (s *MemoryStore) Put(_ context.Context, job models.Job) (models.Job, error) {
	if job.JobID == "" {
		return models.Job{}, ErrMissingJobID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.JobID]; ok {
		merged := mergeRedispatch(*existing, job)
		s.jobs[job.JobID] = &merged
		return merged.Clone(), nil
	}
	stored := job.Clone()
	s.jobs[job.JobID] = &stored
	s.order = append(s.order, job.JobID)
	return stored.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (models.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, false, nil
	}
	return job.Clone(), true, nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) AddNotified(_ context.Context, jobID, contractorRef string, at time.Time) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	addNotified(job, contractorRef, at)
	return job.Clone(), nil
}

func (s *MemoryStore) MarkAssigned(_ context.Context, jobID, contractorRef, contractorName string, at time.Time) (models.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, false, ErrJobNotFound
	}
	won := markAssigned(job, contractorRef, contractorName, at)
	return job.Clone(), won, nil
}
