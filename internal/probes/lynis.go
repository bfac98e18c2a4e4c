package probes

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibewp/vps-audit/internal/models"
	"github.com/vibewp/vps-audit/internal/remote"
)

// lynisTimeout caps the audit run; a full Lynis pass can take minutes.
const lynisTimeout = 300 * time.Second

var (
	lynisNumberRe  = regexp.MustCompile(`(\d+)`)
	lynisVersionRe = regexp.MustCompile(`(\d+\.\d+\.\d+)`)
)

// LynisProbe wraps the Lynis system hardening scanner when it is present on
// the target.
type LynisProbe struct {
	runner remote.Runner
	log    *logrus.Entry
}

// NewLynisProbe builds a hardening probe over the given command channel.
func NewLynisProbe(runner remote.Runner, log *logrus.Logger) *LynisProbe {
	return &LynisProbe{runner: runner, log: log.WithField("probe", "lynis")}
}

// Inspect checks for Lynis and, when present, runs a quick audit and folds
// its warnings and suggestions into findings. Lynis being absent is a valid
// result, not an error.
func (p *LynisProbe) Inspect(ctx context.Context) (*models.LynisResult, error) {
	exit, _, _, err := p.runner.Run(ctx, "which lynis", 0)
	if err != nil {
		return nil, fmt.Errorf("lynis availability check failed: %w", err)
	}
	if exit != 0 {
		return &models.LynisResult{
			Available: false,
			Reason:    "Lynis not installed",
			Findings:  []models.Finding{},
		}, nil
	}

	res := &models.LynisResult{Available: true, Findings: []models.Finding{}}

	if exit, out, _, err := p.runner.Run(ctx, "lynis show version 2>/dev/null", 0); err == nil && exit == 0 {
		if m := lynisVersionRe.FindString(out); m != "" {
			res.Version = m
		}
	}

	p.log.Debug("running lynis audit, this may take a few minutes")
	exit, out, _, err := p.runner.Run(ctx,
		"sudo lynis audit system --quick --quiet --no-colors 2>/dev/null", lynisTimeout)
	if err != nil {
		return res, fmt.Errorf("lynis audit failed: %w", err)
	}
	if exit != 0 {
		return res, fmt.Errorf("lynis audit exited with code %d", exit)
	}

	p.parseOutput(out, res)
	res.Findings = append(res.Findings, convertLynisFindings(res)...)
	return res, nil
}

// parseOutput extracts the hardening index, test count, warnings and
// suggestions from lynis console output.
func (p *LynisProbe) parseOutput(out string, res *models.LynisResult) {
	var warnings, suggestions []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.Contains(line, "Hardening index"):
			if m := lynisNumberRe.FindString(line); m != "" {
				res.HardeningIndex = atoiOrZero(m)
			}
		case strings.Contains(line, "Tests performed"):
			if m := lynisNumberRe.FindString(line); m != "" {
				res.TestsPerformed = atoiOrZero(m)
			}
		case strings.Contains(line, "[WARNING]") || strings.HasPrefix(line, "Warning:"):
			text := strings.TrimSpace(strings.NewReplacer("[WARNING]", "", "Warning:", "").Replace(line))
			if text != "" {
				warnings = append(warnings, text)
			}
		case strings.Contains(line, "[SUGGESTION]") || strings.HasPrefix(line, "Suggestion:"):
			text := strings.TrimSpace(strings.NewReplacer("[SUGGESTION]", "", "Suggestion:", "").Replace(line))
			if text != "" {
				suggestions = append(suggestions, text)
			}
		}
	}
	res.WarningCount = len(warnings)
	res.SuggestionNum = len(suggestions)
	res.Findings = lynisTextFindings(warnings, suggestions)
}

// lynisTextFindings maps warnings to high severity findings and suggestions
// to medium severity findings.
func lynisTextFindings(warnings, suggestions []string) []models.Finding {
	findings := make([]models.Finding, 0, len(warnings)+len(suggestions))
	for i, w := range warnings {
		findings = append(findings, models.MustFinding(
			fmt.Sprintf("LYN-W-%03d", i+1), models.SeverityHigh,
			"Lynis warning",
			w,
			"Security configuration issue detected by Lynis",
			"Review the Lynis report on the target: sudo lynis show details",
		))
	}
	for i, s := range suggestions {
		findings = append(findings, models.MustFinding(
			fmt.Sprintf("LYN-S-%03d", i+1), models.SeverityMedium,
			"Lynis suggestion",
			s,
			"Recommended security improvement",
			"Review the Lynis report on the target: sudo lynis show details",
		))
	}
	return findings
}

// convertLynisFindings adds an index finding when the hardening index is
// low.
func convertLynisFindings(res *models.LynisResult) []models.Finding {
	switch {
	case res.HardeningIndex < 60:
		return []models.Finding{models.MustFinding(
			"LYN-INDEX", models.SeverityHigh,
			fmt.Sprintf("Low system hardening index: %d", res.HardeningIndex),
			fmt.Sprintf("Lynis hardening index is %d/100", res.HardeningIndex),
			"System may have multiple security weaknesses",
			"Address Lynis warnings and suggestions to improve the index",
		)}
	case res.HardeningIndex < 80:
		return []models.Finding{models.MustFinding(
			"LYN-INDEX", models.SeverityMedium,
			fmt.Sprintf("Moderate system hardening index: %d", res.HardeningIndex),
			fmt.Sprintf("Lynis hardening index is %d/100", res.HardeningIndex),
			"System security could be improved",
			"Address Lynis suggestions to improve the index",
		)}
	}
	return nil
}
