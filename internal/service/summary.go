package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alloy/dispatcher/internal/models"
)

const (
	fieldEstimatedPrice        = "Estimated Price (Contact)"
	fieldEstimatedPriceAlt     = "Estimated Price"
	fieldPriceBreakdown        = "Price Breakdown (Contact)"
	unknownCustomerName        = "Unknown"
	breakdownTotalToken        = "Total"
	breakdownPremiumToken      = "Deep"
	priceCutset                = "$,"
	priceCurrencySymbolsCutset = "$€£"
)

// extractor pulls one candidate value out of a raw booking event. An empty
// result means "not present here, try the next one".
type extractor func(raw map[string]any) string

func firstOf(raw map[string]any, extractors ...extractor) string {
	for _, ex := range extractors {
		if v := ex(raw); v != "" {
			return v
		}
	}
	return ""
}

// at walks nested objects by key and returns the trimmed string form of the
// leaf.
func at(keys ...string) extractor {
	return func(raw map[string]any) string {
		return stringValue(lookup(raw, keys...))
	}
}

func fullName(raw map[string]any) string {
	first := stringValue(raw["first_name"])
	last := stringValue(raw["last_name"])
	return strings.TrimSpace(first + " " + last)
}

var (
	jobIDExtractors = []extractor{
		at("calendar", "appointmentId"),
		at("calendar", "appointment_id"),
		at("calendar", "id"),
	}
	customerNameExtractors = []extractor{
		at("full_name"),
		fullName,
	}
	customerContactExtractors = []extractor{
		at("contact_id"),
		at("contactId"),
	}
	directPriceExtractors = []extractor{
		at(fieldEstimatedPrice),
		at(fieldEstimatedPriceAlt),
	}
	accessMethodExtractors = []extractor{
		at("How Will Your Cleaner Get Into Your Home"),
		at("How will your cleaner get into your home"),
		at("How Will Your Cleaner Get Into Your Home?"),
		at("How will your cleaner get into your home?"),
	}
	accessNotesExtractors = []extractor{
		at("Access Notes For Your Cleaner"),
		at("Access notes for your cleaner"),
		at("Access Notes For Your Cleaner?"),
		at("Access notes for your cleaner?"),
	}
)

// BuildJob normalizes a booking event into a Job. It never fails: missing or
// malformed fields fall back to their defaults.
func BuildJob(raw map[string]any) models.Job {
	breakdown := rawString(raw[fieldPriceBreakdown])

	name := firstOf(raw, customerNameExtractors...)
	if name == "" {
		name = unknownCustomerName
	}

	price, ok := ParsePrice(firstOf(raw, directPriceExtractors...))
	if !ok {
		price, ok = PriceFromBreakdown(breakdown)
	}
	if !ok {
		price = 0
	}

	serviceType := models.ServiceTypeStandard
	if strings.Contains(breakdown, breakdownPremiumToken) {
		serviceType = models.ServiceTypeDeep
	}

	return models.Job{
		JobID:                  firstOf(raw, jobIDExtractors...),
		CustomerName:           name,
		CustomerContactRef:     firstOf(raw, customerContactExtractors...),
		ServiceType:            serviceType,
		EstimatedPrice:         price,
		ScheduledStart:         firstOf(raw, at("calendar", "startTime")),
		ScheduledEnd:           firstOf(raw, at("calendar", "endTime")),
		AccessMethod:           firstOf(raw, accessMethodExtractors...),
		AccessNotes:            firstOf(raw, accessNotesExtractors...),
		NotifiedContractorRefs: []string{},
	}
}

// ParsePrice reads a direct price field such as "$1,234.50". Non-numeric and
// non-positive values report false.
func ParsePrice(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(priceCutset, r) || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || !finite(v) || v <= 0 {
		return 0, false
	}
	return v, true
}

// PriceFromBreakdown scans free text for the first parseable "Total: $X"
// line. Lines that mention Total but do not parse are skipped.
func PriceFromBreakdown(text string) (float64, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, breakdownTotalToken) {
			continue
		}
		part := line
		if idx := strings.Index(line, ":"); idx >= 0 {
			part = line[idx+1:]
		}
		part = strings.Trim(strings.TrimSpace(part), priceCurrencySymbolsCutset)
		part = strings.ReplaceAll(strings.TrimSpace(part), ",", "")
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || !finite(v) || v < 0 {
			continue
		}
		return v, true
	}
	return 0, false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func lookup(raw map[string]any, keys ...string) any {
	var cur any = raw
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func rawString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return stringValue(v)
}

// stringValue renders scalars as text. Objects and arrays have no sensible
// text form here and count as absent.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
