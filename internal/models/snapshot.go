package models

import (
	"sort"
	"time"
)

// FirewallRule is one parsed ufw rule.
type FirewallRule struct {
	To     string `json:"to"`
	Action string `json:"action"`
	From   string `json:"from"`
}

// ListeningPort is one listening socket parsed from ss output.
type ListeningPort struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     string `json:"port"`
	Process  string `json:"process"`
}

// SystemResult is the system probe's output: findings plus the structured
// context each check parsed out of the host.
type SystemResult struct {
	Findings []Finding `json:"findings"`

	SSHConfig         map[string]string `json:"ssh_config,omitempty"`
	FirewallActive    bool              `json:"firewall_active"`
	FirewallRules     []FirewallRule    `json:"firewall_rules,omitempty"`
	Fail2banActive    bool              `json:"fail2ban_active"`
	Jails             []string          `json:"jails,omitempty"`
	Ports             []ListeningPort   `json:"ports,omitempty"`
	Services          []string          `json:"services,omitempty"`
	SudoUsers         []string          `json:"sudo_users,omitempty"`
	LoginUsers        []string          `json:"login_users,omitempty"`
	TotalUpdates      int               `json:"total_updates"`
	SecurityUpdates   int               `json:"security_updates"`
	FailedSSHAttempts int               `json:"failed_ssh_attempts"`
}

// SiteResult is the application probe's output for one hosted instance.
type SiteResult struct {
	Site     string    `json:"site"`
	Domain   string    `json:"domain,omitempty"`
	Status   string    `json:"status"`
	Findings []Finding `json:"findings"`
}

// WordPressResult aggregates the application probe across all instances.
type WordPressResult struct {
	Skipped      bool                   `json:"skipped,omitempty"`
	SitesAudited int                    `json:"sites_audited"`
	Findings     []Finding              `json:"findings"`
	Sites        map[string]*SiteResult `json:"sites,omitempty"`
}

// ComponentCounts records how many components of each kind were submitted to
// the advisory service for one site.
type ComponentCounts struct {
	Core    bool `json:"core"`
	Plugins int  `json:"plugins"`
	Themes  int  `json:"themes"`
}

// SiteVulnerabilities holds advisory lookup findings for one site.
type SiteVulnerabilities struct {
	Site     string          `json:"site"`
	Findings []Finding       `json:"findings"`
	Scanned  ComponentCounts `json:"scanned_components"`
}

// VulnerabilityResultSet aggregates advisory lookups across all sites.
type VulnerabilityResultSet struct {
	Skipped              bool                            `json:"skipped,omitempty"`
	SkipReason           string                          `json:"skip_reason,omitempty"`
	TotalVulnerabilities int                             `json:"total_vulnerabilities"`
	ScannedSites         int                             `json:"scanned"`
	APIRequests          int                             `json:"api_requests"`
	Sites                map[string]*SiteVulnerabilities `json:"sites,omitempty"`
}

// Findings returns all vulnerability findings across sites, keyed order by
// site name for determinism.
func (v *VulnerabilityResultSet) Findings() []Finding {
	if v == nil {
		return nil
	}
	var out []Finding
	for _, name := range SortedKeys(v.Sites) {
		out = append(out, v.Sites[name].Findings...)
	}
	return out
}

// LynisResult is the hardening reference probe's output.
type LynisResult struct {
	Skipped        bool      `json:"skipped,omitempty"`
	Available      bool      `json:"available"`
	Reason         string    `json:"reason,omitempty"`
	Version        string    `json:"version,omitempty"`
	HardeningIndex int       `json:"hardening_index"`
	TestsPerformed int       `json:"tests_performed"`
	WarningCount   int       `json:"warnings"`
	SuggestionNum  int       `json:"suggestions"`
	Findings       []Finding `json:"findings"`
}

// StageError records a stage that failed during the run. The stage's partial
// output, if any, stays in the snapshot; the error excludes the stage from
// scoring.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Stage names used in StageError entries and skip markers.
const (
	StageSystem          = "system"
	StageWordPress       = "wordpress"
	StageVulnerabilities = "vulnerabilities"
	StageLynis           = "lynis"
)

// AuditSnapshot is the immutable output of one audit run, consumed only by
// the report renderers.
type AuditSnapshot struct {
	Timestamp       time.Time               `json:"timestamp"`
	Score           int                     `json:"composite_score"`
	System          *SystemResult           `json:"system,omitempty"`
	WordPress       *WordPressResult        `json:"wordpress,omitempty"`
	Vulnerabilities *VulnerabilityResultSet `json:"vulnerabilities,omitempty"`
	Lynis           *LynisResult            `json:"lynis,omitempty"`
	Errors          []StageError            `json:"errors"`
	Interrupted     bool                    `json:"interrupted,omitempty"`
}

// NewAuditSnapshot returns an empty snapshot stamped with the current time.
func NewAuditSnapshot() *AuditSnapshot {
	return &AuditSnapshot{
		Timestamp: time.Now().UTC(),
		Errors:    []StageError{},
	}
}

// StageFailed reports whether the named stage recorded an error.
func (s *AuditSnapshot) StageFailed(stage string) bool {
	for _, e := range s.Errors {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

// AllFindings collects every finding across all stages in stage order.
func (s *AuditSnapshot) AllFindings() []Finding {
	var out []Finding
	if s.System != nil {
		out = append(out, s.System.Findings...)
	}
	if s.WordPress != nil {
		out = append(out, s.WordPress.Findings...)
	}
	if s.Vulnerabilities != nil {
		out = append(out, s.Vulnerabilities.Findings()...)
	}
	if s.Lynis != nil {
		out = append(out, s.Lynis.Findings...)
	}
	return out
}

// SortedKeys returns the map's keys in lexical order, for deterministic
// iteration over per-site result maps.
func SortedKeys[V any](m map[string]*V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
