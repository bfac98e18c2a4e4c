package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vibewp/vps-audit/internal/models"
)

func mustFindings(sevs ...models.Severity) []models.Finding {
	findings := make([]models.Finding, 0, len(sevs))
	for i, s := range sevs {
		findings = append(findings, models.MustFinding(
			"T-"+string(rune('A'+i)), s, "test finding", "d", "i", "r"))
	}
	return findings
}

func TestSystemScore(t *testing.T) {
	p := DefaultScorePolicy()

	assert.Equal(t, 100, p.SystemScore(&models.SystemResult{}))

	// All hard findings drive the score toward zero.
	res := &models.SystemResult{Findings: mustFindings(
		models.SeverityCritical, models.SeverityHigh)}
	assert.Equal(t, 0, p.SystemScore(res))

	// Medium and low findings earn half credit back: 4 findings, 2 soft,
	// passed=1.0 -> (1 - 3/4) * 100 = 25.
	res = &models.SystemResult{Findings: mustFindings(
		models.SeverityCritical, models.SeverityHigh,
		models.SeverityMedium, models.SeverityLow)}
	assert.Equal(t, 25, p.SystemScore(res))

	// A single soft finding: (1 - 0.5/1) * 100 = 50.
	res = &models.SystemResult{Findings: mustFindings(models.SeverityLow)}
	assert.Equal(t, 50, p.SystemScore(res))
}

func TestApplicationScore(t *testing.T) {
	p := DefaultScorePolicy()

	assert.Equal(t, 100, p.ApplicationScore(&models.WordPressResult{}))

	// One medium finding: only the per-finding penalty applies.
	res := &models.WordPressResult{
		SitesAudited: 1,
		Findings:     mustFindings(models.SeverityMedium),
	}
	assert.Equal(t, 98, p.ApplicationScore(res))

	// One critical + one high: 100 - (15 + 10 + 2*2) = 71.
	res = &models.WordPressResult{
		SitesAudited: 1,
		Findings:     mustFindings(models.SeverityCritical, models.SeverityHigh),
	}
	assert.Equal(t, 71, p.ApplicationScore(res))

	// Penalties never push below zero.
	sevs := make([]models.Severity, 10)
	for i := range sevs {
		sevs[i] = models.SeverityCritical
	}
	res = &models.WordPressResult{SitesAudited: 2, Findings: mustFindings(sevs...)}
	assert.Equal(t, 0, p.ApplicationScore(res))
}

func TestVulnerabilityScore(t *testing.T) {
	p := DefaultScorePolicy()
	assert.Equal(t, 100, p.VulnerabilityScore(&models.VulnerabilityResultSet{}))
	assert.Equal(t, 70, p.VulnerabilityScore(&models.VulnerabilityResultSet{TotalVulnerabilities: 3}))
	assert.Equal(t, 0, p.VulnerabilityScore(&models.VulnerabilityResultSet{TotalVulnerabilities: 50}))
}

func TestHardeningScoreClamped(t *testing.T) {
	p := DefaultScorePolicy()
	assert.Equal(t, 64, p.HardeningScore(&models.LynisResult{HardeningIndex: 64}))
	assert.Equal(t, 100, p.HardeningScore(&models.LynisResult{HardeningIndex: 120}))
}

func TestCompositeRenormalizesOverRanStages(t *testing.T) {
	p := DefaultScorePolicy()

	// System 25, application 98, other stages skipped:
	// round((25*0.4 + 98*0.3) / 0.7) = round(56.28...) = 56.
	snap := &models.AuditSnapshot{
		System: &models.SystemResult{Findings: mustFindings(
			models.SeverityCritical, models.SeverityHigh,
			models.SeverityMedium, models.SeverityLow)},
		WordPress: &models.WordPressResult{
			SitesAudited: 1,
			Findings:     mustFindings(models.SeverityMedium),
		},
		Vulnerabilities: &models.VulnerabilityResultSet{Skipped: true},
		Lynis:           &models.LynisResult{Skipped: true},
	}
	assert.Equal(t, 56, p.Composite(snap))
}

func TestCompositeAllStagesClean(t *testing.T) {
	p := DefaultScorePolicy()
	snap := &models.AuditSnapshot{
		System:          &models.SystemResult{},
		WordPress:       &models.WordPressResult{SitesAudited: 1, Findings: []models.Finding{}},
		Vulnerabilities: &models.VulnerabilityResultSet{},
		Lynis:           &models.LynisResult{Available: true, HardeningIndex: 100},
	}
	assert.Equal(t, 100, p.Composite(snap))
}

func TestCompositeZeroWhenNothingRan(t *testing.T) {
	p := DefaultScorePolicy()

	snap := &models.AuditSnapshot{
		WordPress:       &models.WordPressResult{Skipped: true},
		Vulnerabilities: &models.VulnerabilityResultSet{Skipped: true},
		Lynis:           &models.LynisResult{Skipped: true},
	}
	assert.Equal(t, 0, p.Composite(snap))
}

func TestCompositeExcludesFailedStages(t *testing.T) {
	p := DefaultScorePolicy()
	snap := &models.AuditSnapshot{
		System:    &models.SystemResult{},
		WordPress: &models.WordPressResult{SitesAudited: 1, Findings: mustFindings(models.SeverityCritical)},
		Errors:    []models.StageError{{Stage: models.StageWordPress, Message: "boom"}},
	}
	// The failed application stage contributes nothing; only the clean
	// system stage counts.
	assert.Equal(t, 100, p.Composite(snap))
}

func TestCompositeExcludesUnavailableLynis(t *testing.T) {
	p := DefaultScorePolicy()
	snap := &models.AuditSnapshot{
		System: &models.SystemResult{},
		Lynis:  &models.LynisResult{Available: false, Reason: "Lynis not installed"},
	}
	assert.Equal(t, 100, p.Composite(snap))
}
