package audit

import (
	"math"

	"github.com/vibewp/vps-audit/internal/models"
)

// ScorePolicy holds the scoring constants. The penalties and weights are
// empirically chosen policy, not mechanism, so they live in a struct that
// callers may override rather than as hard-coded values.
type ScorePolicy struct {
	SystemWeight        float64
	ApplicationWeight   float64
	VulnerabilityWeight float64
	HardeningWeight     float64

	// Application sub-score penalties.
	AppCriticalPenalty int
	AppHighPenalty     int
	AppFindingPenalty  int

	// Penalty per known vulnerability.
	VulnPenalty int

	// Partial credit a medium or low system finding earns back.
	SoftSeverityCredit float64
}

// DefaultScorePolicy returns the standard weights and penalties.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		SystemWeight:        0.4,
		ApplicationWeight:   0.3,
		VulnerabilityWeight: 0.2,
		HardeningWeight:     0.1,
		AppCriticalPenalty:  15,
		AppHighPenalty:      10,
		AppFindingPenalty:   2,
		VulnPenalty:         10,
		SoftSeverityCredit:  0.5,
	}
}

// Composite computes the 0-100 composite score. Only stages that actually
// ran contribute; weights are renormalized over those stages so a skipped
// stage does not dilute the score with a phantom zero. If nothing ran the
// score is 0.
func (p ScorePolicy) Composite(snap *models.AuditSnapshot) int {
	var total, weights float64

	if snap.System != nil && !snap.StageFailed(models.StageSystem) {
		total += float64(p.SystemScore(snap.System)) * p.SystemWeight
		weights += p.SystemWeight
	}
	if snap.WordPress != nil && !snap.WordPress.Skipped && !snap.StageFailed(models.StageWordPress) {
		total += float64(p.ApplicationScore(snap.WordPress)) * p.ApplicationWeight
		weights += p.ApplicationWeight
	}
	if snap.Vulnerabilities != nil && !snap.Vulnerabilities.Skipped && !snap.StageFailed(models.StageVulnerabilities) {
		total += float64(p.VulnerabilityScore(snap.Vulnerabilities)) * p.VulnerabilityWeight
		weights += p.VulnerabilityWeight
	}
	if snap.Lynis != nil && !snap.Lynis.Skipped && snap.Lynis.Available && !snap.StageFailed(models.StageLynis) {
		total += float64(p.HardeningScore(snap.Lynis)) * p.HardeningWeight
		weights += p.HardeningWeight
	}

	if weights == 0 {
		return 0
	}
	return clampScore(int(math.Round(total / weights)))
}

// SystemScore derives the system sub-score from finding counts. Every
// finding pushes the score down; medium and low severities earn partial
// credit back, so severity modulates the drop without ever reversing it.
func (p ScorePolicy) SystemScore(res *models.SystemResult) int {
	total := len(res.Findings)
	if total == 0 {
		return 100
	}
	var passed float64
	for _, f := range res.Findings {
		if f.Severity == models.SeverityMedium || f.Severity == models.SeverityLow {
			passed += p.SoftSeverityCredit
		}
	}
	score := int((1 - (float64(total)-passed)/float64(total)) * 100)
	return clampScore(score)
}

// ApplicationScore derives the application sub-score from per-severity
// penalties over all site findings.
func (p ScorePolicy) ApplicationScore(res *models.WordPressResult) int {
	if res.SitesAudited == 0 {
		return 100
	}
	counts := models.CountBySeverity(res.Findings)
	penalty := counts[models.SeverityCritical]*p.AppCriticalPenalty +
		counts[models.SeverityHigh]*p.AppHighPenalty +
		len(res.Findings)*p.AppFindingPenalty
	return clampScore(100 - penalty)
}

// VulnerabilityScore penalizes each known vulnerability.
func (p ScorePolicy) VulnerabilityScore(res *models.VulnerabilityResultSet) int {
	return clampScore(100 - res.TotalVulnerabilities*p.VulnPenalty)
}

// HardeningScore uses the Lynis hardening index as-is.
func (p ScorePolicy) HardeningScore(res *models.LynisResult) int {
	return clampScore(res.HardeningIndex)
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
