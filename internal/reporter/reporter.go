// Package reporter renders audit snapshots for humans and machines.
package reporter

import "github.com/vibewp/vps-audit/internal/models"

// Reporter is the interface for output formatters.
type Reporter interface {
	// Render generates output for the given audit snapshot.
	Render(snap *models.AuditSnapshot) ([]byte, error)
}

// Get returns a reporter for the specified format.
func Get(format string) Reporter {
	switch format {
	case "json":
		return &JSONReporter{}
	case "html":
		return &HTMLReporter{}
	default:
		return &ConsoleReporter{}
	}
}

// scoreLabel maps a 0-100 score onto a human rating.
func scoreLabel(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 70:
		return "Good"
	case score >= 50:
		return "Needs Improvement"
	}
	return "Critical"
}
