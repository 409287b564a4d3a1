package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/crm"
	"github.com/alloy/dispatcher/internal/db"
	"github.com/alloy/dispatcher/internal/models"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// clock ticks one second per call.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func contractor(id, name, phone string) models.Contractor {
	return models.Contractor{ID: id, Name: name, Phone: phone, Tags: []string{"contractor_cleaning", "job-pending-assignment"}}
}

func newDispatcher(store db.JobStore, client *crm.MockClient) *Dispatcher {
	c := &clock{t: baseTime}
	return &Dispatcher{
		Store:       store,
		Directory:   client,
		Notifier:    client,
		Logger:      zerolog.Nop(),
		Concurrency: 3,
		Timeout:     time.Second,
		Now:         c.Now,
	}
}

func bookingEvent(jobID string) map[string]any {
	return map[string]any{
		"calendar":                  map[string]any{"appointmentId": jobID, "startTime": "Sat 10am"},
		"full_name":                 "Jane Doe",
		"contact_id":                "cust-1",
		"Estimated Price (Contact)": "$150",
		"How Will Your Cleaner Get Into Your Home": "Lockbox",
	}
}

func TestDispatchFanOutIsolation(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	client := &crm.MockClient{
		Contractors: []models.Contractor{
			contractor("c1", "One", "+15415550001"),
			contractor("c2", "Two", "+15415550002"),
			contractor("c3", "Three", "+15415550003"),
			contractor("c4", "Four", "+15415550004"),
			contractor("c5", "Five", "+15415550005"),
		},
		FailFor: map[string]error{"c2": errors.New("carrier rejected")},
	}

	res := newDispatcher(store, client).Dispatch(ctx, bookingEvent("J1"))
	if !res.OK {
		t.Fatalf("expected ok dispatch, got reason %q", res.Reason)
	}
	if strings.Join(res.Notified, ",") != "c1,c3,c4,c5" {
		t.Fatalf("unexpected notified list: %v", res.Notified)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "c2" {
		t.Fatalf("expected c2 reported as failed, got %v", res.Failed)
	}

	job, ok, err := store.Get(ctx, "J1")
	if err != nil || !ok {
		t.Fatalf("expected stored job, ok=%v err=%v", ok, err)
	}
	if strings.Join(job.NotifiedContractorRefs, ",") != "c1,c3,c4,c5" {
		t.Fatalf("unexpected stored notified refs: %v", job.NotifiedContractorRefs)
	}
	for _, id := range []string{"c1", "c3", "c4", "c5"} {
		msgs := client.MessagesTo(id)
		if len(msgs) != 1 || !strings.Contains(msgs[0], "Reply YES J1 to accept.") {
			t.Fatalf("expected one broadcast to %s, got %v", id, msgs)
		}
		if strings.Contains(msgs[0], "Lockbox") {
			t.Fatalf("broadcast must not disclose access method: %s", msgs[0])
		}
	}
}

func TestDispatchNoContractors(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()

	res := newDispatcher(store, &crm.MockClient{}).Dispatch(ctx, bookingEvent("J1"))
	if res.OK || res.Reason != ReasonNoContractors {
		t.Fatalf("expected no_contractors, got ok=%v reason=%q", res.OK, res.Reason)
	}
	if _, ok, _ := store.Get(ctx, "J1"); !ok {
		t.Fatalf("expected job to stay stored for a later retry")
	}

	res = newDispatcher(store, &crm.MockClient{ListErr: crm.ErrNotConfigured}).Dispatch(ctx, bookingEvent("J2"))
	if res.OK || res.Reason != ReasonNoContractors {
		t.Fatalf("expected directory error to read as no_contractors, got %q", res.Reason)
	}
}

func TestDispatchUnaddressableJob(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	client := &crm.MockClient{Contractors: []models.Contractor{contractor("c1", "One", "+15415550001")}}

	event := bookingEvent("")
	delete(event, "calendar")
	res := newDispatcher(store, client).Dispatch(ctx, event)
	if !res.OK || res.Reason != ReasonUnaddressable {
		t.Fatalf("expected ok with unaddressable reason, got ok=%v reason=%q", res.OK, res.Reason)
	}
	if len(res.Notified) != 0 || len(client.Sent) != 0 {
		t.Fatalf("expected no broadcast for unaddressable job")
	}
	jobs, _ := store.All(ctx)
	if len(jobs) != 0 {
		t.Fatalf("expected nothing stored, got %d jobs", len(jobs))
	}
}

func TestDispatchSkipsUnreachableContractors(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	client := &crm.MockClient{Contractors: []models.Contractor{
		contractor("c1", "One", ""),
		contractor("", "Nobody", "+15415550009"),
		contractor("c2", "Two", "+15415550002"),
		contractor("c2", "Two again", "+15415550002"),
	}}

	res := newDispatcher(store, client).Dispatch(ctx, bookingEvent("J1"))
	if !res.OK || strings.Join(res.Notified, ",") != "c2" {
		t.Fatalf("expected only c2 notified, got ok=%v notified=%v", res.OK, res.Notified)
	}
	if len(client.Sent) != 1 {
		t.Fatalf("expected a single send, got %d", len(client.Sent))
	}
}

func TestDispatchDoesNotRebroadcastAssignedJob(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	client := &crm.MockClient{Contractors: []models.Contractor{contractor("c1", "One", "+15415550001")}}
	d := newDispatcher(store, client)

	d.Dispatch(ctx, bookingEvent("J1"))
	if _, won, err := store.MarkAssigned(ctx, "J1", "c1", "One", baseTime); err != nil || !won {
		t.Fatalf("mark assigned: won=%v err=%v", won, err)
	}

	res := d.Dispatch(ctx, bookingEvent("J1"))
	if res.OK || res.Reason != ReasonAlreadyAssigned {
		t.Fatalf("expected already_assigned, got ok=%v reason=%q", res.OK, res.Reason)
	}
	if len(client.Sent) != 1 {
		t.Fatalf("expected no second broadcast, got %d sends", len(client.Sent))
	}
	if res.Job.AssignedContractorRef == nil || *res.Job.AssignedContractorRef != "c1" {
		t.Fatalf("expected assignment preserved, got %+v", res.Job)
	}
}
