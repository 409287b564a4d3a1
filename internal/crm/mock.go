package crm

import (
	"context"
	"fmt"
	"sync"

	"github.com/alloy/dispatcher/internal/models"
)

type SentMessage struct {
	ContactRef string
	Text       string
}

// MockClient is an in-memory Client for local runs and tests. Sends to refs
// listed in FailFor return that error.
type MockClient struct {
	mu sync.Mutex

	Contractors []models.Contractor
	ListErr     error
	FailFor     map[string]error
	PushErr     error
	CreateErr   error

	Sent     []SentMessage
	Pushed   []models.AssignmentRecord
	Contacts []models.NewContact
}

func (m *MockClient) ListEligibleContractors(ctx context.Context) ([]models.Contractor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]models.Contractor, len(m.Contractors))
	copy(out, m.Contractors)
	return out, nil
}

func (m *MockClient) SendMessage(ctx context.Context, contactRef string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[contactRef]; ok {
		return err
	}
	m.Sent = append(m.Sent, SentMessage{ContactRef: contactRef, Text: text})
	return nil
}

func (m *MockClient) PushAssignment(ctx context.Context, rec models.AssignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Pushed = append(m.Pushed, rec)
	return nil
}

func (m *MockClient) CreateContact(ctx context.Context, c models.NewContact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.Contacts = append(m.Contacts, c)
	return fmt.Sprintf("mock-contact-%d", len(m.Contacts)), nil
}

// MessagesTo returns the texts sent to one contact, in send order.
func (m *MockClient) MessagesTo(contactRef string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.Sent {
		if s.ContactRef == contactRef {
			out = append(out, s.Text)
		}
	}
	return out
}

func (m *MockClient) PushedRecords() []models.AssignmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AssignmentRecord(nil), m.Pushed...)
}
