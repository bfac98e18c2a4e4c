// Package clients talks to the external advisory database.
package clients

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibewp/vps-audit/internal/cache"
	"github.com/vibewp/vps-audit/internal/models"
)

const defaultBaseURL = "https://wpscan.com/api/v3"

// ComponentKind selects the advisory endpoint for a lookup.
type ComponentKind string

const (
	KindCore   ComponentKind = "core"
	KindPlugin ComponentKind = "plugin"
	KindTheme  ComponentKind = "theme"
)

// Per-instance lookup caps. Scanning every installed component would exhaust
// the advisory service's request budget on large sites, so only the first
// MaxPluginScans active plugins and MaxThemeScans active themes per instance
// are submitted. This trades completeness for external-service load; the
// caps are enforced by the caller before any call is issued.
const (
	MaxPluginScans = 10
	MaxThemeScans  = 5
)

// Vulnerability is one advisory entry for a component.
type Vulnerability struct {
	Title     string   `json:"title"`
	VulnType  string   `json:"vuln_type,omitempty"`
	FixedIn   string   `json:"fixed_in,omitempty"`
	CVEs      []string `json:"cves,omitempty"`
	CVSSScore *float64 `json:"cvss_score,omitempty"`
}

// LookupResult is the outcome of one component lookup. A component missing
// from the advisory database yields an empty Vulnerabilities slice, not an
// error.
type LookupResult struct {
	Kind            ComponentKind   `json:"kind"`
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Skipped         bool            `json:"skipped,omitempty"`
	SkipReason      string          `json:"skip_reason,omitempty"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// WPScanClient queries the WPScan advisory database. The response cache and
// the rate-limit latch are owned by the instance and constructed fresh per
// audit run; nothing survives the run.
type WPScanClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	cache       *cache.Cache
	requests    int
	rateLimited bool
	log         *logrus.Entry
}

// NewWPScanClient builds a client. An empty token is valid: every lookup
// then reports "skipped, no credential" instead of failing.
func NewWPScanClient(token string, log *logrus.Logger) *WPScanClient {
	return newWPScanClient(token, defaultBaseURL, log)
}

func newWPScanClient(token, baseURL string, log *logrus.Logger) *WPScanClient {
	return &WPScanClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache.New(),
		log:        log.WithField("client", "wpscan"),
	}
}

// RequestCount reports how many HTTP calls were issued this run.
func (c *WPScanClient) RequestCount() int { return c.requests }

// RateLimited reports whether the advisory service has refused further
// lookups for this run.
func (c *WPScanClient) RateLimited() bool { return c.rateLimited }

// ScanComponent looks up known vulnerabilities for one component version.
// Results are cached by (kind, name, version) for the remainder of the run.
// After a rate-limit response every subsequent uncached lookup returns
// ErrRateLimited without touching the network.
func (c *WPScanClient) ScanComponent(kind ComponentKind, name, version string) (*LookupResult, error) {
	if c.token == "" {
		return &LookupResult{
			Kind: kind, Name: name, Version: version,
			Skipped:         true,
			SkipReason:      "no API credential configured",
			Vulnerabilities: []Vulnerability{},
		}, nil
	}

	key := cache.Key(string(kind), name, version)
	if v, ok := c.cache.Get(key); ok {
		c.log.Debugf("cache hit for %s", key)
		return v.(*LookupResult), nil
	}
	if c.rateLimited {
		return nil, fmt.Errorf("lookup of %s %s: %w", kind, name, models.ErrRateLimited)
	}

	result, err := c.fetch(kind, name, version)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, result)
	return result, nil
}

func (c *WPScanClient) fetch(kind ComponentKind, name, version string) (*LookupResult, error) {
	url, err := c.endpoint(kind, name, version)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build advisory request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", "application/json")

	c.requests++
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProbeTransport, err)
	}
	defer resp.Body.Close()

	result := &LookupResult{Kind: kind, Name: name, Version: version, Vulnerabilities: []Vulnerability{}}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Not listed in the advisory database: zero vulnerabilities.
		return result, nil
	case http.StatusTooManyRequests:
		c.rateLimited = true
		return nil, fmt.Errorf("lookup of %s %s: %w", kind, name, models.ErrRateLimited)
	default:
		return nil, fmt.Errorf("%w: advisory service returned status %d", models.ErrProbeTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read advisory response: %w", err)
	}
	vulns, err := parseAdvisories(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse advisory response for %s %s: %w", kind, name, err)
	}
	result.Vulnerabilities = vulns
	return result, nil
}

func (c *WPScanClient) endpoint(kind ComponentKind, name, version string) (string, error) {
	switch kind {
	case KindCore:
		// The core endpoint is keyed by version digits without dots.
		return fmt.Sprintf("%s/wordpresses/%s", c.baseURL, strings.ReplaceAll(version, ".", "")), nil
	case KindPlugin:
		return fmt.Sprintf("%s/plugins/%s", c.baseURL, name), nil
	case KindTheme:
		return fmt.Sprintf("%s/themes/%s", c.baseURL, name), nil
	}
	return "", fmt.Errorf("unknown component kind %q", kind)
}

// advisoryEntry mirrors the WPScan v3 response: a single top-level key (the
// slug or version) holding the vulnerability list.
type advisoryEntry struct {
	Vulnerabilities []struct {
		Title      string `json:"title"`
		VulnType   string `json:"vuln_type"`
		FixedIn    string `json:"fixed_in"`
		References struct {
			CVE []string `json:"cve"`
		} `json:"references"`
		CVSS *struct {
			Score json.Number `json:"score"`
		} `json:"cvss"`
	} `json:"vulnerabilities"`
}

func parseAdvisories(body []byte) ([]Vulnerability, error) {
	var payload map[string]advisoryEntry
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	vulns := []Vulnerability{}
	for _, entry := range payload {
		for _, v := range entry.Vulnerabilities {
			vuln := Vulnerability{
				Title:    v.Title,
				VulnType: v.VulnType,
				FixedIn:  v.FixedIn,
				CVEs:     v.References.CVE,
			}
			if v.CVSS != nil {
				if score, err := v.CVSS.Score.Float64(); err == nil {
					vuln.CVSSScore = &score
				}
			}
			vulns = append(vulns, vuln)
		}
	}
	return vulns, nil
}

// severityForScore maps a CVSS score onto the finding severity scale. A
// missing score defaults to high: absence of a score is not evidence of low
// risk.
func severityForScore(score *float64) models.Severity {
	if score == nil {
		return models.SeverityHigh
	}
	switch {
	case *score >= 9:
		return models.SeverityCritical
	case *score >= 7:
		return models.SeverityHigh
	case *score >= 4:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// ConvertToFindings maps each vulnerability from a lookup into a normalized
// finding for the given site.
func ConvertToFindings(result *LookupResult, site string) []models.Finding {
	if result == nil || result.Skipped {
		return nil
	}
	findings := make([]models.Finding, 0, len(result.Vulnerabilities))
	for i, v := range result.Vulnerabilities {
		title := v.Title
		if title == "" {
			title = fmt.Sprintf("Known vulnerability in %s %s", result.Name, result.Version)
		}
		remediation := fmt.Sprintf("Review the advisory for %s %s and update the component", result.Name, result.Version)
		if v.FixedIn != "" {
			remediation = fmt.Sprintf("Update %s to version %s or later", result.Name, v.FixedIn)
		}
		description := fmt.Sprintf("%s %s is affected by a known vulnerability", result.Name, result.Version)
		if v.VulnType != "" {
			description = fmt.Sprintf("%s %s is affected by a known %s vulnerability", result.Name, result.Version, v.VulnType)
		}
		if len(v.CVEs) > 0 {
			description += " (CVE-" + strings.Join(v.CVEs, ", CVE-") + ")"
		}
		findings = append(findings, models.MustFinding(
			fmt.Sprintf("VULN-%s-%s-%s-%03d", site, result.Kind, result.Name, i+1),
			severityForScore(v.CVSSScore),
			title,
			description,
			"Component exploitable through a published vulnerability",
			remediation,
		))
	}
	return findings
}
