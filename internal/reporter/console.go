package reporter

import (
	"fmt"
	"strings"

	"github.com/vibewp/vps-audit/internal/models"
)

// ConsoleReporter outputs the snapshot in a human-readable terminal format.
type ConsoleReporter struct{}

var severityIcons = map[models.Severity]string{
	models.SeverityCritical: "🔴",
	models.SeverityHigh:     "🟠",
	models.SeverityMedium:   "🟡",
	models.SeverityLow:      "🔵",
}

// Render generates terminal output for the given snapshot.
func (r *ConsoleReporter) Render(snap *models.AuditSnapshot) ([]byte, error) {
	var sb strings.Builder

	sb.WriteString("\n🛡️  VPS SECURITY AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n", snap.Timestamp.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Security Score: %d/100 (%s)\n", snap.Score, scoreLabel(snap.Score)))
	if snap.Interrupted {
		sb.WriteString("⚠️  Audit was interrupted; results are partial.\n")
	}
	sb.WriteString("\n")

	all := snap.AllFindings()
	counts := models.CountBySeverity(all)
	sb.WriteString(fmt.Sprintf("Findings: %d total", len(all)))
	if len(all) > 0 {
		parts := make([]string, 0, len(models.Severities))
		for _, sev := range models.Severities {
			if counts[sev] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
			}
		}
		sb.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	sb.WriteString("\n\n")

	r.renderSystem(&sb, snap.System)
	r.renderWordPress(&sb, snap.WordPress)
	r.renderVulnerabilities(&sb, snap.Vulnerabilities)
	r.renderLynis(&sb, snap.Lynis)
	r.renderErrors(&sb, snap.Errors)

	return []byte(sb.String()), nil
}

func (r *ConsoleReporter) section(sb *strings.Builder, title string) {
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")
}

func (r *ConsoleReporter) renderSystem(sb *strings.Builder, res *models.SystemResult) {
	r.section(sb, "🖥️  SYSTEM SECURITY")
	if res == nil {
		sb.WriteString("Stage did not run.\n\n")
		return
	}
	sb.WriteString(fmt.Sprintf("Firewall active: %v | Fail2ban active: %v\n", res.FirewallActive, res.Fail2banActive))
	sb.WriteString(fmt.Sprintf("Listening ports: %d | Pending updates: %d (%d security)\n",
		len(res.Ports), res.TotalUpdates, res.SecurityUpdates))
	if res.FailedSSHAttempts > 0 {
		sb.WriteString(fmt.Sprintf("Failed SSH logins in auth log: %d\n", res.FailedSSHAttempts))
	}
	r.renderFindings(sb, res.Findings)
	sb.WriteString("\n")
}

func (r *ConsoleReporter) renderWordPress(sb *strings.Builder, res *models.WordPressResult) {
	r.section(sb, "🌐 WORDPRESS SECURITY")
	switch {
	case res == nil:
		sb.WriteString("Stage did not run.\n\n")
		return
	case res.Skipped:
		sb.WriteString("Skipped by request.\n\n")
		return
	}
	sb.WriteString(fmt.Sprintf("Sites audited: %d\n", res.SitesAudited))
	r.renderFindings(sb, res.Findings)
	sb.WriteString("\n")
}

func (r *ConsoleReporter) renderVulnerabilities(sb *strings.Builder, res *models.VulnerabilityResultSet) {
	r.section(sb, "🔍 KNOWN VULNERABILITIES")
	switch {
	case res == nil:
		sb.WriteString("Stage did not run.\n\n")
		return
	case res.Skipped:
		sb.WriteString(fmt.Sprintf("Skipped: %s.\n\n", res.SkipReason))
		return
	}
	sb.WriteString(fmt.Sprintf("Sites scanned: %d | Vulnerabilities: %d | API requests: %d\n",
		res.ScannedSites, res.TotalVulnerabilities, res.APIRequests))
	r.renderFindings(sb, res.Findings())
	sb.WriteString("\n")
}

func (r *ConsoleReporter) renderLynis(sb *strings.Builder, res *models.LynisResult) {
	r.section(sb, "🔧 SYSTEM HARDENING (LYNIS)")
	switch {
	case res == nil:
		sb.WriteString("Stage did not run.\n\n")
		return
	case res.Skipped:
		sb.WriteString("Skipped by request.\n\n")
		return
	case !res.Available:
		reason := res.Reason
		if reason == "" {
			reason = "not available"
		}
		sb.WriteString(fmt.Sprintf("Unavailable: %s.\n\n", reason))
		return
	}
	sb.WriteString(fmt.Sprintf("Hardening index: %d/100 | Tests: %d | Warnings: %d | Suggestions: %d\n",
		res.HardeningIndex, res.TestsPerformed, res.WarningCount, res.SuggestionNum))
	if res.Version != "" {
		sb.WriteString(fmt.Sprintf("Lynis version: %s\n", res.Version))
	}
	r.renderFindings(sb, res.Findings)
	sb.WriteString("\n")
}

// renderFindings prints findings grouped by severity, worst first. Critical
// and high findings get the full detail; medium and low are one-liners.
func (r *ConsoleReporter) renderFindings(sb *strings.Builder, findings []models.Finding) {
	if len(findings) == 0 {
		sb.WriteString("✅ No issues found.\n")
		return
	}
	for _, sev := range models.Severities {
		for _, f := range findings {
			if f.Severity != sev {
				continue
			}
			sb.WriteString(fmt.Sprintf("\n%s [%s] %s (%s)\n", severityIcons[sev], strings.ToUpper(string(sev)), f.Title, f.ID))
			if sev == models.SeverityCritical || sev == models.SeverityHigh {
				if f.Description != "" {
					sb.WriteString(fmt.Sprintf("   %s\n", f.Description))
				}
				if f.Remediation != "" {
					sb.WriteString(fmt.Sprintf("   Fix: %s\n", f.Remediation))
				}
				if f.AutoFix != "" {
					sb.WriteString(fmt.Sprintf("   Auto-fix: %s\n", f.AutoFix))
				}
			}
		}
	}
}

func (r *ConsoleReporter) renderErrors(sb *strings.Builder, errs []models.StageError) {
	if len(errs) == 0 {
		return
	}
	r.section(sb, "⚠️  STAGE ERRORS")
	for _, e := range errs {
		sb.WriteString(fmt.Sprintf("%s: %s\n", e.Stage, e.Message))
	}
	sb.WriteString("\n")
}
