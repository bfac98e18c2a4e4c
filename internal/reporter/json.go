package reporter

import (
	"encoding/json"

	"github.com/vibewp/vps-audit/internal/models"
)

// JSONReporter outputs the snapshot as an indented JSON document. The
// document carries the full snapshot plus a derived summary, so no finding
// detail is lost relative to the other formats.
type JSONReporter struct{}

type jsonDocument struct {
	*models.AuditSnapshot
	Summary jsonSummary `json:"summary"`
}

type jsonSummary struct {
	TotalFindings  int                     `json:"total_findings"`
	SeverityCounts map[models.Severity]int `json:"severity_counts"`
	ScoreLabel     string                  `json:"score_label"`
}

// Render generates JSON output for the given snapshot.
func (r *JSONReporter) Render(snap *models.AuditSnapshot) ([]byte, error) {
	all := snap.AllFindings()
	doc := jsonDocument{
		AuditSnapshot: snap,
		Summary: jsonSummary{
			TotalFindings:  len(all),
			SeverityCounts: models.CountBySeverity(all),
			ScoreLabel:     scoreLabel(snap.Score),
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}
