package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alloy/dispatcher/internal/models"
	"github.com/alloy/dispatcher/internal/utils"
)

const (
	defaultBaseURL    = "https://services.leadconnectorhq.com"
	defaultAPIVersion = "2021-07-28"
	defaultJobsObject = "custom_objects.jobs"
	defaultPageLimit  = 50
)

type Settings struct {
	BaseURL        string
	APIKey         string
	LocationID     string
	APIVersion     string
	JobsObject     string
	ContractorTags []string
	PageLimit      int
	PhoneRegion    string
	Timeout        time.Duration
	RatePerSec     float64
	RateBurst      int
	Fields         FieldMap
}

// HTTPClient is the LeadConnector (GoHighLevel) implementation of Client.
// Calls are paced by a token bucket and guarded by a circuit breaker so a
// failing CRM does not stall every webhook behind its timeouts.
type HTTPClient struct {
	settings Settings
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

func NewHTTPClient(s Settings, logger zerolog.Logger) *HTTPClient {
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.APIVersion == "" {
		s.APIVersion = defaultAPIVersion
	}
	if s.JobsObject == "" {
		s.JobsObject = defaultJobsObject
	}
	if s.PageLimit <= 0 {
		s.PageLimit = defaultPageLimit
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.Fields == (FieldMap{}) {
		s.Fields = DefaultFieldMap()
	}

	limit := rate.Inf
	if s.RatePerSec > 0 {
		limit = rate.Limit(s.RatePerSec)
	}
	burst := s.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClient{
		settings: s,
		client:   &http.Client{Timeout: s.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "crm",
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return se.Status < http.StatusInternalServerError
				}
				return err == nil
			},
		}),
		logger: logger.With().Str("component", "crm").Logger(),
	}
}

func (c *HTTPClient) configured() bool {
	return strings.TrimSpace(c.settings.APIKey) != "" && strings.TrimSpace(c.settings.LocationID) != ""
}

type contactItem struct {
	ID          string   `json:"id"`
	ContactName string   `json:"contactName"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Phone       string   `json:"phone"`
	Tags        []string `json:"tags"`
	Source      string   `json:"source"`
}

func (c *HTTPClient) ListEligibleContractors(ctx context.Context) ([]models.Contractor, error) {
	if !c.configured() {
		return nil, fmt.Errorf("list contractors: %w", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("locationId", c.settings.LocationID)
	q.Set("limit", strconv.Itoa(c.settings.PageLimit))

	var res struct {
		Contacts []contactItem `json:"contacts"`
	}
	if err := c.do(ctx, "list contacts", http.MethodGet, "/contacts/", q, nil, &res); err != nil {
		return nil, err
	}

	contacts := make([]models.Contractor, 0, len(res.Contacts))
	for _, item := range res.Contacts {
		contacts = append(contacts, toContractor(item, c.settings.PhoneRegion))
	}
	elig := FilterEligible(contacts, c.settings.ContractorTags)
	stages := zerolog.Dict()
	for _, tag := range c.settings.ContractorTags {
		stages.Int(tag, elig.StageCount("tag:"+tag))
	}
	c.logger.Info().
		Int("contacts", len(contacts)).
		Int("eligible", len(elig.Eligible)).
		Str("reason_code", elig.ReasonCode).
		Dict("tag_stages", stages).
		Msg("fetched contractors")
	return elig.Eligible, nil
}

func toContractor(item contactItem, region string) models.Contractor {
	name := strings.TrimSpace(item.ContactName)
	if name == "" {
		name = strings.TrimSpace(item.FirstName + " " + item.LastName)
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.Contractor{
		ID:     item.ID,
		Name:   name,
		Phone:  utils.NormalizePhone(item.Phone, region),
		Tags:   tags,
		Source: item.Source,
	}
}

func (c *HTTPClient) SendMessage(ctx context.Context, contactRef string, text string) error {
	if !c.configured() {
		return fmt.Errorf("send sms: %w", ErrNotConfigured)
	}
	payload := map[string]any{
		"locationId": c.settings.LocationID,
		"contactId":  contactRef,
		"type":       "SMS",
		"message":    text,
	}
	if err := c.do(ctx, "send sms", http.MethodPost, "/conversations/messages", nil, payload, nil); err != nil {
		return err
	}
	c.logger.Debug().Str("contact_id", contactRef).Msg("sms sent")
	return nil
}

func (c *HTTPClient) CreateContact(ctx context.Context, nc models.NewContact) (string, error) {
	if !c.configured() {
		return "", fmt.Errorf("create contact: %w", ErrNotConfigured)
	}
	first, last := splitName(nc.Name)
	payload := map[string]any{
		"locationId": c.settings.LocationID,
		"firstName":  first,
		"lastName":   last,
		"email":      nc.Email,
		"phone":      utils.NormalizePhone(nc.Phone, c.settings.PhoneRegion),
		"source":     nc.Source,
	}
	for k, v := range nc.CustomFields {
		payload[k] = v
	}
	if len(nc.Tags) > 0 {
		payload["tags"] = nc.Tags
	}

	var res struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := c.do(ctx, "create contact", http.MethodPost, "/contacts/", nil, payload, &res); err != nil {
		return "", err
	}
	if res.Contact.ID == "" {
		return "", fmt.Errorf("create contact: empty contact id in response")
	}
	return res.Contact.ID, nil
}

// PushAssignment finds the job record by its external job id and writes the
// assignment properties onto it.
func (c *HTTPClient) PushAssignment(ctx context.Context, rec models.AssignmentRecord) error {
	if rec.JobID == "" || rec.ContractorRef == "" {
		return fmt.Errorf("push assignment: missing job_id or contractor id")
	}
	if !c.configured() {
		return fmt.Errorf("push assignment: %w", ErrNotConfigured)
	}

	recordID, err := c.findJobRecordID(ctx, rec.JobID)
	if err != nil {
		return err
	}

	f := c.settings.Fields
	props := map[string]any{}
	setProp(props, f.ExternalJobID, rec.JobID)
	setProp(props, f.ContractorID, rec.ContractorRef)
	setProp(props, f.ContractorName, rec.ContractorName)
	setProp(props, f.Status, rec.Status)
	setProp(props, f.AccessMethod, rec.AccessMethod)
	setProp(props, f.AccessNotes, rec.AccessNotes)

	q := url.Values{}
	q.Set("locationId", c.settings.LocationID)
	path := fmt.Sprintf("/objects/%s/records/%s", c.settings.JobsObject, url.PathEscape(recordID))
	if err := c.do(ctx, "update job record", http.MethodPut, path, q, map[string]any{"properties": props}, nil); err != nil {
		return err
	}
	c.logger.Info().Str("job_id", rec.JobID).Str("record_id", recordID).Msg("job record updated")
	return nil
}

func setProp(props map[string]any, key string, value string) {
	if key != "" {
		props[key] = value
	}
}

type recordRef struct {
	ID string `json:"id"`
}

func (c *HTTPClient) findJobRecordID(ctx context.Context, externalJobID string) (string, error) {
	body := map[string]any{
		"locationId": c.settings.LocationID,
		"page":       1,
		"pageLimit":  1,
		"filters": []any{
			map[string]any{
				"group": "AND",
				"filters": []any{
					map[string]any{
						"field":    "properties." + c.settings.Fields.ExternalJobID,
						"operator": "eq",
						"value":    externalJobID,
					},
				},
			},
		},
	}
	var res struct {
		Records             []recordRef `json:"records"`
		CustomObjectRecords []recordRef `json:"customObjectRecords"`
	}
	path := fmt.Sprintf("/objects/%s/records/search", c.settings.JobsObject)
	if err := c.do(ctx, "search job record", http.MethodPost, path, nil, body, &res); err != nil {
		return "", err
	}
	records := res.Records
	if len(records) == 0 {
		records = res.CustomObjectRecords
	}
	if len(records) == 0 || records[0].ID == "" {
		return "", fmt.Errorf("no job record for external_job_id=%s", externalJobID)
	}
	return records[0].ID, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("crm %s: %w", op, err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, op, method, path, query, body, out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("crm %s: %w", op, err)
		}
		return err
	}
	return nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	endpoint := c.settings.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("crm %s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("crm %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	req.Header.Set("Version", c.settings.APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crm %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("crm %s: decode: %w", op, err)
	}
	return nil
}

func splitName(name string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	first := parts[0]
	last := ""
	if len(parts) > 1 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}
