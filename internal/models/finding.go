package models

import (
	"fmt"
	"strings"
)

// Severity classifies how urgent a finding is. The set is closed: anything
// outside the four values is rejected at construction time.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists all valid severities from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity converts a string into a Severity, rejecting unknown values.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(s))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidFinding, s)
	}
	return sev, nil
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities for display, higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Finding is one normalized observation about a security weakness. Every
// probe emits findings in this shape; nothing else crosses the probe
// boundary.
type Finding struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Remediation string   `json:"remediation"`
	AutoFix     string   `json:"auto_fix,omitempty"`
}

// NewFinding validates and constructs a Finding. It fails with
// ErrInvalidFinding when the id or title is empty or the severity is not one
// of the four enum values.
func NewFinding(id string, severity Severity, title, description, impact, remediation string) (Finding, error) {
	if id == "" {
		return Finding{}, fmt.Errorf("%w: empty id", ErrInvalidFinding)
	}
	if title == "" {
		return Finding{}, fmt.Errorf("%w: empty title (id %s)", ErrInvalidFinding, id)
	}
	if !severity.Valid() {
		return Finding{}, fmt.Errorf("%w: severity %q (id %s)", ErrInvalidFinding, severity, id)
	}
	return Finding{
		ID:          id,
		Severity:    severity,
		Title:       title,
		Description: description,
		Impact:      impact,
		Remediation: remediation,
	}, nil
}

// MustFinding is NewFinding for call sites with literal arguments, where a
// validation failure is a bug. It panics on invalid input; the orchestrator
// records stage panics as stage errors, and tests fail loudly.
func MustFinding(id string, severity Severity, title, description, impact, remediation string) Finding {
	f, err := NewFinding(id, severity, title, description, impact, remediation)
	if err != nil {
		panic(err)
	}
	return f
}

// WithAutoFix returns a copy of the finding carrying a reference to a safe
// remediation command.
func (f Finding) WithAutoFix(cmd string) Finding {
	f.AutoFix = cmd
	return f
}

// CountBySeverity tallies findings per severity. Every valid severity is
// present in the map, so serialized counts always carry all four keys.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
