package crm

import (
	"testing"

	"github.com/alloy/dispatcher/internal/models"
)

var cleaningTags = []string{"contractor_cleaning", "job-pending-assignment"}

func TestFilterEligible(t *testing.T) {
	contacts := []models.Contractor{
		{ID: "c1", Tags: []string{"contractor_cleaning", "job-pending-assignment"}},
		{ID: "c2", Tags: []string{"contractor_cleaning"}},
		{ID: "c3", Tags: []string{" Job-Pending-Assignment ", "CONTRACTOR_CLEANING"}},
		{ID: "c4", Tags: []string{"customer"}},
	}

	res := FilterEligible(contacts, cleaningTags)
	if len(res.Eligible) != 2 || res.Eligible[0].ID != "c1" || res.Eligible[1].ID != "c3" {
		t.Fatalf("expected c1 and c3 eligible, got %+v", res.Eligible)
	}
	if res.StageCount("directory") != 4 || res.StageCount("tag:contractor_cleaning") != 3 {
		t.Fatalf("unexpected stage counts: %+v", res.Stages)
	}
}

func TestFilterEligibleReasonCodes(t *testing.T) {
	res := FilterEligible(nil, cleaningTags)
	if res.ReasonCode != "NO_CONTACTS" {
		t.Fatalf("expected NO_CONTACTS, got %s", res.ReasonCode)
	}

	res = FilterEligible([]models.Contractor{{ID: "c1", Tags: []string{"contractor_cleaning"}}}, cleaningTags)
	if res.ReasonCode != "TAG_MISSING" {
		t.Fatalf("expected TAG_MISSING, got %s", res.ReasonCode)
	}
	if len(res.Eligible) != 0 {
		t.Fatalf("expected no eligible contractors, got %+v", res.Eligible)
	}
}
