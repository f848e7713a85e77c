package enums

import (
	"fmt"
	"strings"
)

// PeriodStatus maps to the period_status enum in Postgres.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

var validPeriodStatuses = []PeriodStatus{
	PeriodStatusOpen,
	PeriodStatusClosed,
	PeriodStatusLocked,
}

// IsValid reports whether the value matches the canonical period status enum.
func (s PeriodStatus) IsValid() bool {
	for _, candidate := range validPeriodStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s PeriodStatus) String() string {
	return string(s)
}

// ParsePeriodStatus converts raw input into PeriodStatus, ignoring case.
func ParsePeriodStatus(value string) (PeriodStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPeriodStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid period status %q", value)
}
