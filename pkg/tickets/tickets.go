// Package tickets extracts ticket references from branch names, titles and
// descriptions, and merges them with API-linked references.
package tickets

import (
	"regexp"

	"github.com/Ramsey-B/aster/pkg/models"
)

// SystemAzureBoards and friends name the tracking systems patterns map to
const (
	SystemAzureBoards  = "azure_boards"
	SystemIssueTracker = "issue_tracker"
	SystemGeneric      = "generic"
	SystemShortForm    = "short_form"
)

// pattern pairs a tracking system with its reference regexp. Order matters:
// more specific systems are tried first so "AB#123" is never claimed by the
// generic "#123" pattern.
type pattern struct {
	system string
	re     *regexp.Regexp
}

var patterns = []pattern{
	{SystemAzureBoards, regexp.MustCompile(`\bAB#(\d+)\b`)},
	{SystemIssueTracker, regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)},
	{SystemGeneric, regexp.MustCompile(`(?:^|[^A-Za-z0-9&])#(\d+)\b`)},
	{SystemShortForm, regexp.MustCompile(`(?:^|[^A-Za-z0-9])!(\d+)\b`)},
}

// Extract scans the given texts in order against the pattern table and
// returns ordered, deduplicated ticket references.
func Extract(texts ...string) []models.TicketRef {
	var refs []models.TicketRef
	seen := make(map[string]bool)

	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, p := range patterns {
			for _, match := range p.re.FindAllStringSubmatch(text, -1) {
				key := canonicalKey(p.system, match[1])
				if seen[key] {
					continue
				}
				seen[key] = true
				refs = append(refs, models.TicketRef{Key: key, System: p.system})
			}
		}
	}

	return refs
}

// Merge combines textually extracted references with API-linked ones. An API
// reference overrides an extracted reference with the same key (the API is
// authoritative for URLs and system attribution); extracted references the
// API did not surface are kept.
func Merge(extracted, apiLinked []models.TicketRef) []models.TicketRef {
	byKey := make(map[string]int, len(extracted))

	merged := make([]models.TicketRef, len(extracted))
	copy(merged, extracted)
	for i, ref := range merged {
		byKey[ref.Key] = i
	}

	for _, ref := range apiLinked {
		if i, ok := byKey[ref.Key]; ok {
			merged[i] = ref
			continue
		}
		byKey[ref.Key] = len(merged)
		merged = append(merged, ref)
	}

	return merged
}

func canonicalKey(system, captured string) string {
	switch system {
	case SystemAzureBoards:
		return "AB#" + captured
	case SystemGeneric:
		return "#" + captured
	case SystemShortForm:
		return "!" + captured
	}
	return captured
}
