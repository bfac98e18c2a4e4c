package reporter

import (
	"fmt"
	"html"
	"strings"

	"github.com/vibewp/vps-audit/internal/models"
)

// HTMLReporter outputs the snapshot as a self-contained HTML page.
type HTMLReporter struct{}

const htmlStyle = `
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #f5f5f5; padding: 20px; }
        .container { max-width: 1200px; margin: 0 auto; background: white; padding: 40px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header h1 { font-size: 32px; color: #333; margin-bottom: 10px; }
        .header .timestamp { color: #666; font-size: 14px; }
        .score-badge { display: inline-block; padding: 10px 24px; border-radius: 24px; color: white; font-size: 24px; font-weight: bold; margin: 16px 0; }
        .section { margin: 30px 0; }
        .section h2 { font-size: 22px; color: #333; border-bottom: 2px solid #eee; padding-bottom: 8px; margin-bottom: 16px; }
        .section h3 { font-size: 16px; color: #555; margin: 12px 0 8px; }
        .stats { display: flex; gap: 16px; margin: 20px 0; }
        .stat-card { flex: 1; background: #f5f5f5; padding: 16px; border-radius: 8px; text-align: center; }
        .stat-number { font-size: 36px; font-weight: bold; color: #333; }
        .stat-label { color: #666; font-size: 14px; margin-top: 5px; }
        .finding { border-left: 4px solid #ccc; padding: 12px 16px; margin: 10px 0; background: #f9f9f9; border-radius: 0 4px 4px 0; }
        .finding.critical { border-left-color: #d32f2f; background: #ffebee; }
        .finding.high { border-left-color: #f57c00; background: #fff3e0; }
        .finding.medium { border-left-color: #fbc02d; background: #fffde7; }
        .finding.low { border-left-color: #388e3c; background: #e8f5e9; }
        .severity-badge { display: inline-block; padding: 2px 10px; border-radius: 12px; font-size: 12px; font-weight: bold; text-transform: uppercase; margin-right: 8px; }
        .severity-critical { background: #d32f2f; color: white; }
        .severity-high { background: #f57c00; color: white; }
        .severity-medium { background: #fbc02d; color: black; }
        .severity-low { background: #388e3c; color: white; }
        .finding-description { color: #555; margin: 8px 0; }
        .finding-remediation { color: #333; margin: 8px 0; }
        .skipped { color: #666; font-style: italic; }
        .error { color: #d32f2f; }
        .footer { margin-top: 40px; padding-top: 16px; border-top: 1px solid #eee; color: #666; font-size: 13px; }
`

// scoreColor maps the composite score to a badge color.
func scoreColor(score int) string {
	switch {
	case score >= 90:
		return "#388e3c"
	case score >= 70:
		return "#fbc02d"
	case score >= 50:
		return "#f57c00"
	}
	return "#d32f2f"
}

// Render generates the HTML report for the given snapshot.
func (r *HTMLReporter) Render(snap *models.AuditSnapshot) ([]byte, error) {
	all := snap.AllFindings()
	counts := models.CountBySeverity(all)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString("<title>VPS Security Audit Report</title>\n<style>")
	sb.WriteString(htmlStyle)
	sb.WriteString("</style>\n</head>\n<body>\n<div class=\"container\">\n")

	sb.WriteString("<div class=\"header\">\n<h1>VPS Security Audit Report</h1>\n")
	sb.WriteString(fmt.Sprintf("<div class=\"timestamp\">Generated: %s</div>\n",
		html.EscapeString(snap.Timestamp.Format("2006-01-02 15:04:05 MST"))))
	sb.WriteString(fmt.Sprintf("<div class=\"score-badge\" style=\"background: %s;\">%d/100 &mdash; %s</div>\n",
		scoreColor(snap.Score), snap.Score, html.EscapeString(scoreLabel(snap.Score))))
	if snap.Interrupted {
		sb.WriteString("<p class=\"error\">Audit was interrupted; results are partial.</p>\n")
	}
	sb.WriteString("</div>\n")

	sb.WriteString("<div class=\"stats\">\n")
	r.statCard(&sb, len(all), "Total Findings", "#333")
	r.statCard(&sb, counts[models.SeverityCritical], "Critical", "#d32f2f")
	r.statCard(&sb, counts[models.SeverityHigh], "High", "#f57c00")
	r.statCard(&sb, counts[models.SeverityMedium], "Medium", "#fbc02d")
	r.statCard(&sb, counts[models.SeverityLow], "Low", "#388e3c")
	sb.WriteString("</div>\n")

	r.systemSection(&sb, snap.System)
	r.wordpressSection(&sb, snap.WordPress)
	r.vulnerabilitySection(&sb, snap.Vulnerabilities)
	r.lynisSection(&sb, snap.Lynis)
	r.errorSection(&sb, snap.Errors)

	sb.WriteString("<div class=\"footer\">Generated by vps-audit</div>\n")
	sb.WriteString("</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

func (r *HTMLReporter) statCard(sb *strings.Builder, n int, label, color string) {
	sb.WriteString("<div class=\"stat-card\">")
	sb.WriteString(fmt.Sprintf("<div class=\"stat-number\" style=\"color: %s;\">%d</div>", color, n))
	sb.WriteString(fmt.Sprintf("<div class=\"stat-label\">%s</div></div>\n", html.EscapeString(label)))
}

func (r *HTMLReporter) systemSection(sb *strings.Builder, res *models.SystemResult) {
	sb.WriteString("<div class=\"section\">\n<h2>System Security</h2>\n")
	if res == nil {
		sb.WriteString("<p class=\"skipped\">Stage did not run.</p>\n</div>\n")
		return
	}
	sb.WriteString(fmt.Sprintf("<p>Firewall active: %v &middot; Fail2ban active: %v &middot; Pending updates: %d (%d security)</p>\n",
		res.FirewallActive, res.Fail2banActive, res.TotalUpdates, res.SecurityUpdates))
	r.findingList(sb, res.Findings)
	sb.WriteString("</div>\n")
}

func (r *HTMLReporter) wordpressSection(sb *strings.Builder, res *models.WordPressResult) {
	sb.WriteString("<div class=\"section\">\n<h2>WordPress Security</h2>\n")
	switch {
	case res == nil:
		sb.WriteString("<p class=\"skipped\">Stage did not run.</p>\n")
	case res.Skipped:
		sb.WriteString("<p class=\"skipped\">Skipped by request.</p>\n")
	default:
		sb.WriteString(fmt.Sprintf("<p>Sites audited: %d</p>\n", res.SitesAudited))
		for _, name := range models.SortedKeys(res.Sites) {
			site := res.Sites[name]
			sb.WriteString(fmt.Sprintf("<h3>%s</h3>\n", html.EscapeString(name)))
			r.findingList(sb, site.Findings)
		}
	}
	sb.WriteString("</div>\n")
}

func (r *HTMLReporter) vulnerabilitySection(sb *strings.Builder, res *models.VulnerabilityResultSet) {
	sb.WriteString("<div class=\"section\">\n<h2>Known Vulnerabilities</h2>\n")
	switch {
	case res == nil:
		sb.WriteString("<p class=\"skipped\">Stage did not run.</p>\n")
	case res.Skipped:
		sb.WriteString(fmt.Sprintf("<p class=\"skipped\">Skipped: %s.</p>\n", html.EscapeString(res.SkipReason)))
	default:
		sb.WriteString(fmt.Sprintf("<p>Sites scanned: %d &middot; Vulnerabilities: %d &middot; API requests: %d</p>\n",
			res.ScannedSites, res.TotalVulnerabilities, res.APIRequests))
		for _, name := range models.SortedKeys(res.Sites) {
			site := res.Sites[name]
			if len(site.Findings) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("<h3>%s</h3>\n", html.EscapeString(name)))
			r.findingList(sb, site.Findings)
		}
	}
	sb.WriteString("</div>\n")
}

func (r *HTMLReporter) lynisSection(sb *strings.Builder, res *models.LynisResult) {
	sb.WriteString("<div class=\"section\">\n<h2>System Hardening (Lynis)</h2>\n")
	switch {
	case res == nil:
		sb.WriteString("<p class=\"skipped\">Stage did not run.</p>\n")
	case res.Skipped:
		sb.WriteString("<p class=\"skipped\">Skipped by request.</p>\n")
	case !res.Available:
		sb.WriteString(fmt.Sprintf("<p class=\"skipped\">Unavailable: %s.</p>\n", html.EscapeString(res.Reason)))
	default:
		sb.WriteString(fmt.Sprintf("<p>Hardening index: %d/100 &middot; Tests performed: %d &middot; Warnings: %d &middot; Suggestions: %d</p>\n",
			res.HardeningIndex, res.TestsPerformed, res.WarningCount, res.SuggestionNum))
		r.findingList(sb, res.Findings)
	}
	sb.WriteString("</div>\n")
}

func (r *HTMLReporter) errorSection(sb *strings.Builder, errs []models.StageError) {
	if len(errs) == 0 {
		return
	}
	sb.WriteString("<div class=\"section\">\n<h2>Stage Errors</h2>\n")
	for _, e := range errs {
		sb.WriteString(fmt.Sprintf("<p class=\"error\">%s: %s</p>\n",
			html.EscapeString(e.Stage), html.EscapeString(e.Message)))
	}
	sb.WriteString("</div>\n")
}

// findingList renders findings worst-severity first.
func (r *HTMLReporter) findingList(sb *strings.Builder, findings []models.Finding) {
	if len(findings) == 0 {
		sb.WriteString("<p>No issues found.</p>\n")
		return
	}
	for _, sev := range models.Severities {
		for _, f := range findings {
			if f.Severity != sev {
				continue
			}
			r.finding(sb, f)
		}
	}
}

func (r *HTMLReporter) finding(sb *strings.Builder, f models.Finding) {
	sev := string(f.Severity)
	sb.WriteString(fmt.Sprintf("<div class=\"finding %s\">\n", sev))
	sb.WriteString(fmt.Sprintf("<span class=\"severity-badge severity-%s\">%s</span>", sev, html.EscapeString(sev)))
	sb.WriteString(fmt.Sprintf("<strong>%s</strong> <code>%s</code>\n", html.EscapeString(f.Title), html.EscapeString(f.ID)))
	if f.Description != "" {
		sb.WriteString(fmt.Sprintf("<div class=\"finding-description\">%s</div>\n", html.EscapeString(f.Description)))
	}
	if f.Impact != "" {
		sb.WriteString(fmt.Sprintf("<div class=\"finding-description\"><strong>Impact:</strong> %s</div>\n", html.EscapeString(f.Impact)))
	}
	if f.Remediation != "" {
		sb.WriteString(fmt.Sprintf("<div class=\"finding-remediation\"><strong>Fix:</strong> %s</div>\n", html.EscapeString(f.Remediation)))
	}
	if f.AutoFix != "" {
		sb.WriteString(fmt.Sprintf("<div class=\"finding-remediation\"><strong>Auto-fix:</strong> <code>%s</code></div>\n", html.EscapeString(f.AutoFix)))
	}
	sb.WriteString("</div>\n")
}
