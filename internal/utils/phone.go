package utils

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "US"

// NormalizePhone formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizePhone(input string, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// UsableContact reports whether a contact can receive an SMS through the CRM:
// it needs a contact id and some phone number on file.
func UsableContact(id, phone string) bool {
	return strings.TrimSpace(id) != "" && strings.TrimSpace(phone) != ""
}
