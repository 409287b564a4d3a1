package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alloy/dispatcher/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeCRM struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, body map[string]any)
}

func (f *fakeCRM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	f.mu.Unlock()
	f.handler(w, r, body)
}

func newTestClient(t *testing.T, f *fakeCRM) *HTTPClient {
	t.Helper()
	return newLoggedTestClient(t, f, zerolog.Nop())
}

func newLoggedTestClient(t *testing.T, f *fakeCRM, logger zerolog.Logger) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Settings{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		LocationID:     "loc-1",
		ContractorTags: []string{"contractor_cleaning", "job-pending-assignment"},
		Timeout:        2 * time.Second,
	}, logger)
}

func TestListEligibleContractorsFiltersByTags(t *testing.T) {
	f := &fakeCRM{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contacts":[
			{"id":"c1","contactName":"Kelly Kurzman","phone":"(212) 736-5000","tags":["contractor_cleaning","job-pending-assignment"],"source":"referral"},
			{"id":"c2","firstName":"Sam","lastName":"Lee","phone":"","tags":["contractor_cleaning","job-pending-assignment"]},
			{"id":"c3","contactName":"Customer","phone":"+15415550100","tags":["customer"]}
		]}`))
	}}
	client := newTestClient(t, f)

	contractors, err := client.ListEligibleContractors(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contractors) != 2 {
		t.Fatalf("expected 2 contractors, got %+v", contractors)
	}
	if contractors[0].Name != "Kelly Kurzman" || contractors[0].Phone != "+12127365000" {
		t.Fatalf("unexpected first contractor: %+v", contractors[0])
	}
	if contractors[1].Name != "Sam Lee" {
		t.Fatalf("expected name from first+last, got %q", contractors[1].Name)
	}

	req := f.requests[0]
	if req.Method != http.MethodGet || req.Path != "/contacts/" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Auth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %s", req.Auth)
	}
	if req.Query != "limit=50&locationId=loc-1" {
		t.Fatalf("unexpected query: %s", req.Query)
	}
}

func TestListEligibleContractorsLogsTagStages(t *testing.T) {
	f := &fakeCRM{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contacts":[
			{"id":"c1","phone":"+15415550001","tags":["contractor_cleaning"]},
			{"id":"c2","phone":"+15415550002","tags":["customer"]}
		]}`))
	}}
	var buf bytes.Buffer
	client := newLoggedTestClient(t, f, zerolog.New(&buf))

	contractors, err := client.ListEligibleContractors(context.Background())
	if err != nil || len(contractors) != 0 {
		t.Fatalf("expected no eligible contractors, got %+v err=%v", contractors, err)
	}
	out := buf.String()
	if !strings.Contains(out, `"tag_stages":{"contractor_cleaning":1,"job-pending-assignment":0}`) {
		t.Fatalf("expected per-tag counts in log, got %s", out)
	}
	if !strings.Contains(out, `"reason_code":"TAG_MISSING"`) {
		t.Fatalf("expected TAG_MISSING reason in log, got %s", out)
	}
}

func TestSendMessagePayloadAndStatusError(t *testing.T) {
	status := http.StatusCreated
	f := &fakeCRM{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}}
	client := newTestClient(t, f)

	if err := client.SendMessage(context.Background(), "c1", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := f.requests[0].Body
	if body["contactId"] != "c1" || body["type"] != "SMS" || body["message"] != "hello" || body["locationId"] != "loc-1" {
		t.Fatalf("unexpected payload: %+v", body)
	}

	status = http.StatusUnprocessableEntity
	err := client.SendMessage(context.Background(), "c1", "hello")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected StatusError 422, got %v", err)
	}
}

func TestPushAssignmentSearchesThenUpdates(t *testing.T) {
	f := &fakeCRM{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"records":[{"id":"rec-9"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}}
	client := newTestClient(t, f)

	err := client.PushAssignment(context.Background(), models.AssignmentRecord{
		JobID:          "J1",
		ContractorRef:  "c1",
		ContractorName: "Kelly",
		Status:         "contractor_assigned",
		AccessMethod:   "Lockbox",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected search + update, got %d requests", len(f.requests))
	}
	search := f.requests[0]
	if search.Path != "/objects/custom_objects.jobs/records/search" {
		t.Fatalf("unexpected search path: %s", search.Path)
	}
	update := f.requests[1]
	if update.Method != http.MethodPut || update.Path != "/objects/custom_objects.jobs/records/rec-9" || update.Query != "locationId=loc-1" {
		t.Fatalf("unexpected update request: %+v", update)
	}
	props, _ := update.Body["properties"].(map[string]any)
	if props["contractor_assigned_id"] != "c1" || props["job_status"] != "contractor_assigned" || props["external_job_id"] != "J1" {
		t.Fatalf("unexpected properties: %+v", props)
	}
	if props["how_will_your_cleaner_get_into_your_home"] != "Lockbox" {
		t.Fatalf("expected access method property, got %+v", props)
	}
}

func TestPushAssignmentNoRecord(t *testing.T) {
	f := &fakeCRM{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		_, _ = w.Write([]byte(`{"records":[]}`))
	}}
	client := newTestClient(t, f)

	err := client.PushAssignment(context.Background(), models.AssignmentRecord{JobID: "J1", ContractorRef: "c1"})
	if err == nil {
		t.Fatalf("expected error when no job record exists")
	}
	if len(f.requests) != 1 {
		t.Fatalf("expected no update after failed search, got %d requests", len(f.requests))
	}
}

func TestCreateContactSplitsName(t *testing.T) {
	f := &fakeCRM{handler: func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		_, _ = w.Write([]byte(`{"contact":{"id":"new-1"}}`))
	}}
	client := newTestClient(t, f)

	id, err := client.CreateContact(context.Background(), models.NewContact{
		Name:         "Jane Q Doe",
		Email:        "jane@example.com",
		Phone:        "2127365000",
		Source:       "Website Lead",
		Tags:         []string{"cleaning_lead"},
		CustomFields: map[string]string{"city": "Bend"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "new-1" {
		t.Fatalf("expected new-1, got %s", id)
	}
	body := f.requests[0].Body
	if body["firstName"] != "Jane" || body["lastName"] != "Q Doe" || body["city"] != "Bend" || body["phone"] != "+12127365000" {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestUnconfiguredClientDegrades(t *testing.T) {
	client := NewHTTPClient(Settings{}, zerolog.Nop())
	ctx := context.Background()

	if _, err := client.ListEligibleContractors(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := client.SendMessage(ctx, "c1", "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := client.PushAssignment(ctx, models.AssignmentRecord{JobID: "J1", ContractorRef: "c1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := client.CreateContact(ctx, models.NewContact{Name: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
