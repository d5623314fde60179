// Package rules routes senders to the inbox, the unsorted pile or the
// discard path according to whitelist and blacklist patterns.
package rules

import (
	"strings"

	"github.com/altafino/order-mail-extractor/internal/models"
)

// Destination is the outcome of matching one sender against the rule set
type Destination string

const (
	RouteInbox    Destination = "inbox"
	RouteUnsorted Destination = "unsorted"
	RouteSkip     Destination = "skip"
)

// Index is a precomputed view of the active rules. Exact membership is a
// set lookup; the pattern slices serve the partial comparison.
type Index struct {
	whitelist         map[string]struct{}
	blacklist         map[string]struct{}
	whitelistPatterns []string
	blacklistPatterns []string
}

// NewIndex builds an index from the active rules. Patterns are
// lowercased and empty patterns are dropped.
func NewIndex(rules []models.Rule) *Index {
	idx := &Index{
		whitelist: make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
	}

	for _, r := range rules {
		if !r.Active {
			continue
		}
		pattern := normalize(r.Pattern)
		if pattern == "" {
			continue
		}

		switch r.Type {
		case models.RuleWhitelist:
			if _, ok := idx.whitelist[pattern]; !ok {
				idx.whitelist[pattern] = struct{}{}
				idx.whitelistPatterns = append(idx.whitelistPatterns, pattern)
			}
		case models.RuleBlacklist:
			if _, ok := idx.blacklist[pattern]; !ok {
				idx.blacklist[pattern] = struct{}{}
				idx.blacklistPatterns = append(idx.blacklistPatterns, pattern)
			}
		}
	}

	return idx
}

// Len returns the number of distinct patterns held by the index
func (idx *Index) Len() int {
	return len(idx.whitelist) + len(idx.blacklist)
}

// Route decides where mail from sender goes. When idx is non-nil it is used
// instead of scanning rules. Blacklist is checked first and always wins.
func Route(sender string, rules []models.Rule, idx *Index) Destination {
	s := normalize(sender)
	if s == "" {
		return RouteUnsorted
	}

	if idx != nil {
		if idx.matches(s, idx.blacklist, idx.blacklistPatterns) {
			return RouteSkip
		}
		if idx.matches(s, idx.whitelist, idx.whitelistPatterns) {
			return RouteInbox
		}
		return RouteUnsorted
	}

	if scan(s, rules, models.RuleBlacklist) {
		return RouteSkip
	}
	if scan(s, rules, models.RuleWhitelist) {
		return RouteInbox
	}
	return RouteUnsorted
}

// BlacklistPatterns returns the distinct active blacklist patterns, taken
// from idx when it is non-nil and from rules otherwise
func BlacklistPatterns(rules []models.Rule, idx *Index) []string {
	if idx != nil {
		return append([]string(nil), idx.blacklistPatterns...)
	}

	seen := make(map[string]struct{})
	var patterns []string
	for _, r := range rules {
		if !r.Active || r.Type != models.RuleBlacklist {
			continue
		}
		p := normalize(r.Pattern)
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	return patterns
}

func (idx *Index) matches(sender string, exact map[string]struct{}, patterns []string) bool {
	if _, ok := exact[sender]; ok {
		return true
	}
	for _, p := range patterns {
		if partial(sender, p) {
			return true
		}
	}
	return false
}

func scan(sender string, rules []models.Rule, ruleType models.RuleType) bool {
	for _, r := range rules {
		if !r.Active || r.Type != ruleType {
			continue
		}
		p := normalize(r.Pattern)
		if p == "" {
			continue
		}
		if sender == p || partial(sender, p) {
			return true
		}
	}
	return false
}

// partial is symmetric containment: "shop.com" matches "bob@shop.com" and
// "bob@shop.com" matches "shop.com".
func partial(sender, pattern string) bool {
	return strings.Contains(sender, pattern) || strings.Contains(pattern, sender)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
