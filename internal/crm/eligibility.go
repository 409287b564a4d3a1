package crm

import (
	"strings"

	"github.com/alloy/dispatcher/internal/models"
)

type EligibilityResult struct {
	Eligible   []models.Contractor
	ReasonCode string
	ReasonText string
	Stages     []EligibilityStage
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Contractor
}

// FilterEligible keeps the contacts carrying every required tag. Each tag is
// a separate stage so the counts explain where candidates dropped out.
func FilterEligible(contacts []models.Contractor, requiredTags []string) EligibilityResult {
	result := EligibilityResult{}
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "directory",
		Candidates: contacts,
	})

	if len(contacts) == 0 {
		result.ReasonCode = "NO_CONTACTS"
		result.ReasonText = "Directory returned no contacts"
		return result
	}

	current := contacts
	for _, tag := range requiredTags {
		current = filterContractors(current, func(c models.Contractor) bool {
			return hasTag(c.Tags, tag)
		})
		result.Stages = append(result.Stages, EligibilityStage{
			Name:       "tag:" + tag,
			Candidates: current,
		})
		if len(current) == 0 {
			result.ReasonCode = "TAG_MISSING"
			result.ReasonText = "No contact tagged " + tag
			return result
		}
	}

	result.Eligible = current
	return result
}

// StageCount returns how many candidates survived the named stage.
func (r EligibilityResult) StageCount(name string) int {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return len(stage.Candidates)
		}
	}
	return 0
}

func hasTag(tags []string, target string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), target) {
			return true
		}
	}
	return false
}

func filterContractors(contractors []models.Contractor, keep func(models.Contractor) bool) []models.Contractor {
	out := make([]models.Contractor, 0, len(contractors))
	for _, c := range contractors {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
