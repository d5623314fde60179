package models

import "time"

// RuleType distinguishes whitelist from blacklist rules
type RuleType string

const (
	RuleWhitelist RuleType = "whitelist"
	RuleBlacklist RuleType = "blacklist"
)

// Rule is a sender pattern filter
type Rule struct {
	ID          string    `json:"id" db:"id"`
	Type        RuleType  `json:"type" db:"type"`
	Pattern     string    `json:"pattern" db:"pattern"`
	Description string    `json:"description" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
