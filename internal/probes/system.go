// Package probes inspects one domain each (host OS, hosted WordPress
// instances, Lynis) and emits normalized findings.
package probes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibewp/vps-audit/internal/models"
	"github.com/vibewp/vps-audit/internal/remote"
)

// failedLoginThreshold is the auth-log failed password count above which a
// finding is raised.
const failedLoginThreshold = 100

// riskyPorts maps well-known database and infrastructure ports to service
// names. Any of these listening on a non-loopback address is flagged.
var riskyPorts = map[string]string{
	"3306":  "MySQL",
	"5432":  "PostgreSQL",
	"6379":  "Redis",
	"27017": "MongoDB",
	"9200":  "Elasticsearch",
	"8080":  "HTTP Proxy",
	"2375":  "Docker API (unencrypted)",
	"2376":  "Docker API",
}

// legacyServices are plaintext or long-deprecated services that should not
// run on a hardened host.
var legacyServices = []string{"telnet", "rsh", "rlogin", "vsftpd", "xinetd"}

// sensitiveFiles maps paths to the permission bits they are expected to
// carry.
var sensitiveFiles = []struct {
	Path     string
	Expected string
}{
	{"/etc/passwd", "644"},
	{"/etc/shadow", "640"},
	{"/etc/group", "644"},
	{"/etc/gshadow", "640"},
	{"/etc/ssh/sshd_config", "600"},
}

// SystemProbe inspects host-level configuration.
type SystemProbe struct {
	runner remote.Runner
	log    *logrus.Entry
}

// NewSystemProbe builds a system probe over the given command channel.
func NewSystemProbe(runner remote.Runner, log *logrus.Logger) *SystemProbe {
	return &SystemProbe{runner: runner, log: log.WithField("probe", "system")}
}

// Inspect runs every system check. Checks are individually fault-isolated: a
// check that cannot obtain data records a gap finding and the remaining
// checks still run.
func (p *SystemProbe) Inspect(ctx context.Context) (*models.SystemResult, error) {
	res := &models.SystemResult{Findings: []models.Finding{}}

	checks := []struct {
		name string
		fn   func(context.Context, *models.SystemResult)
	}{
		{"ssh", p.checkSSHConfig},
		{"firewall", p.checkFirewall},
		{"fail2ban", p.checkFail2ban},
		{"ports", p.checkOpenPorts},
		{"services", p.checkServices},
		{"users", p.checkUsers},
		{"updates", p.checkUpdates},
		{"logs", p.checkAuthLog},
		{"filesystem", p.checkFilePermissions},
	}
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("system inspection interrupted before %s check: %w", c.name, err)
		}
		p.log.Debugf("running %s check", c.name)
		c.fn(ctx, res)
	}
	return res, nil
}

// gapFinding notes that a check could not obtain its data. The gap is
// reported as a low severity finding so "could not check" never reads as
// "checked, found nothing".
func gapFinding(prefix, subject, command string) models.Finding {
	return models.MustFinding(
		prefix+"-GAP",
		models.SeverityLow,
		fmt.Sprintf("Could not check %s", subject),
		fmt.Sprintf("The %s check could not obtain data from the target", subject),
		"This area of the system was not assessed",
		fmt.Sprintf("Verify the audit user can run `%s` on the target and re-run the audit", command),
	)
}

func (p *SystemProbe) checkSSHConfig(ctx context.Context, res *models.SystemResult) {
	exit, out, _, err := p.runner.Run(ctx, "sudo cat /etc/ssh/sshd_config", 0)
	if err != nil || exit != 0 {
		res.Findings = append(res.Findings, gapFinding("SSH", "SSH configuration", "sudo cat /etc/ssh/sshd_config"))
		return
	}

	cfg := parseSSHConfig(out)
	res.SSHConfig = cfg

	permitRoot := strings.ToLower(valueOr(cfg, "permitrootlogin", "yes"))
	if permitRoot != "no" && permitRoot != "prohibit-password" {
		res.Findings = append(res.Findings, models.MustFinding(
			"SSH-001", models.SeverityHigh,
			"Root login enabled",
			"SSH allows direct root login",
			"Increases brute-force attack surface",
			"Edit /etc/ssh/sshd_config: PermitRootLogin no",
		))
	}
	if strings.ToLower(valueOr(cfg, "passwordauthentication", "yes")) == "yes" {
		res.Findings = append(res.Findings, models.MustFinding(
			"SSH-002", models.SeverityHigh,
			"Password authentication enabled",
			"SSH allows password-based login",
			"Vulnerable to brute-force and credential stuffing attacks",
			"Edit /etc/ssh/sshd_config: PasswordAuthentication no",
		))
	}
	if valueOr(cfg, "port", "22") == "22" {
		res.Findings = append(res.Findings, models.MustFinding(
			"SSH-003", models.SeverityMedium,
			"Default SSH port in use",
			"SSH running on default port 22",
			"Easier target for automated attacks",
			"Change SSH port to a non-standard value",
		).WithAutoFix("vps-audit ssh change-port <port>"))
	}
	if strings.ToLower(valueOr(cfg, "pubkeyauthentication", "yes")) != "yes" {
		res.Findings = append(res.Findings, models.MustFinding(
			"SSH-004", models.SeverityHigh,
			"Public key authentication disabled",
			"SSH public key authentication is not enabled",
			"Cannot use key-based authentication",
			"Edit /etc/ssh/sshd_config: PubkeyAuthentication yes",
		))
	}
	if strings.Contains(valueOr(cfg, "protocol", "2"), "1") {
		res.Findings = append(res.Findings, models.MustFinding(
			"SSH-005", models.SeverityCritical,
			"SSH Protocol 1 enabled",
			"Insecure SSH Protocol 1 is enabled",
			"Vulnerable to known protocol attacks",
			"Edit /etc/ssh/sshd_config: Protocol 2",
		))
	}
}

func (p *SystemProbe) checkFirewall(ctx context.Context, res *models.SystemResult) {
	exit, out, _, err := p.runner.Run(ctx, "sudo ufw status verbose", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("FW", "packet filter", "sudo ufw status verbose"))
		return
	}
	if exit != 0 {
		// The packet filter being absent is itself the finding, not a gap.
		res.Findings = append(res.Findings, models.MustFinding(
			"FW-001", models.SeverityCritical,
			"UFW not installed",
			"Uncomplicated Firewall (UFW) is not installed",
			"No firewall protection",
			"Install UFW: sudo apt-get install ufw",
		))
		return
	}

	res.FirewallActive = strings.Contains(out, "Status: active")
	if !res.FirewallActive {
		res.Findings = append(res.Findings, models.MustFinding(
			"FW-002", models.SeverityCritical,
			"Firewall inactive",
			"UFW firewall is installed but not active",
			"All ports exposed to internet",
			"Enable firewall: sudo ufw enable",
		).WithAutoFix("vps-audit firewall enable"))
	}

	res.FirewallRules = parseUFWRules(out)
	for _, rule := range res.FirewallRules {
		if strings.HasPrefix(rule.From, "Anywhere") && !strings.Contains(rule.Action, "DENY") {
			res.Findings = append(res.Findings, models.MustFinding(
				"FW-003", models.SeverityMedium,
				fmt.Sprintf("Unrestricted access on %s", rule.To),
				fmt.Sprintf("Rule %q allows connections from any IP", rule.To),
				"Increased attack surface",
				"Restrict access to specific source IPs where possible",
			))
		}
	}

	if !strings.Contains(out, "Default: deny (incoming)") {
		res.Findings = append(res.Findings, models.MustFinding(
			"FW-004", models.SeverityHigh,
			"Permissive default incoming policy",
			"Default incoming policy is not deny",
			"Ports not explicitly denied are accessible",
			"Set default deny: sudo ufw default deny incoming",
		))
	}
}

func (p *SystemProbe) checkFail2ban(ctx context.Context, res *models.SystemResult) {
	exit, _, _, err := p.runner.Run(ctx, "which fail2ban-client", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("F2B", "intrusion prevention", "which fail2ban-client"))
		return
	}
	if exit != 0 {
		res.Findings = append(res.Findings, models.MustFinding(
			"F2B-001", models.SeverityMedium,
			"fail2ban not installed",
			"fail2ban intrusion prevention not installed",
			"No automatic IP banning for brute-force attacks",
			"Install fail2ban: sudo apt-get install fail2ban",
		))
		return
	}

	_, status, _, err := p.runner.Run(ctx, "sudo systemctl is-active fail2ban 2>/dev/null || echo inactive", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("F2B", "intrusion prevention", "sudo systemctl is-active fail2ban"))
		return
	}
	lower := strings.ToLower(status)
	res.Fail2banActive = strings.Contains(lower, "active") && !strings.Contains(lower, "inactive")
	if !res.Fail2banActive {
		res.Findings = append(res.Findings, models.MustFinding(
			"F2B-002", models.SeverityMedium,
			"fail2ban not running",
			"fail2ban service is not active",
			"No protection against brute-force attacks",
			"Start fail2ban: sudo systemctl start fail2ban",
		))
		return
	}

	exit, jailOut, _, err := p.runner.Run(ctx, "sudo fail2ban-client status", 0)
	if err == nil && exit == 0 {
		res.Jails = parseJailList(jailOut)
	}
	if !containsString(res.Jails, "sshd") {
		res.Findings = append(res.Findings, models.MustFinding(
			"F2B-003", models.SeverityMedium,
			"SSH jail not configured",
			"fail2ban sshd jail is not active",
			"SSH not protected by fail2ban",
			"Enable the sshd jail in /etc/fail2ban/jail.local",
		))
	}
}

func (p *SystemProbe) checkOpenPorts(ctx context.Context, res *models.SystemResult) {
	exit, out, _, err := p.runner.Run(ctx, "sudo ss -tulnp | grep LISTEN", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("PORT", "listening services", "sudo ss -tulnp"))
		return
	}
	if exit != 0 {
		return
	}

	res.Ports = parseSS(out)
	for _, pi := range res.Ports {
		service, risky := riskyPorts[pi.Port]
		if risky && pi.Address != "127.0.0.1" && pi.Address != "::1" {
			res.Findings = append(res.Findings, models.MustFinding(
				"PORT-"+pi.Port, models.SeverityHigh,
				fmt.Sprintf("%s exposed", service),
				fmt.Sprintf("%s (port %s) is listening on %s", service, pi.Port, pi.Address),
				"Service accessible from network",
				fmt.Sprintf("Bind %s to localhost only", service),
			))
		}
	}
}

func (p *SystemProbe) checkServices(ctx context.Context, res *models.SystemResult) {
	exit, out, _, err := p.runner.Run(ctx, "sudo systemctl list-units --type=service --state=running --no-pager", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("SVC", "running services", "sudo systemctl list-units --type=service"))
		return
	}
	if exit != 0 {
		return
	}

	res.Services = parseSystemctl(out)
	for _, name := range legacyServices {
		for _, running := range res.Services {
			if strings.Contains(strings.ToLower(running), name) {
				res.Findings = append(res.Findings, models.MustFinding(
					"SVC-"+strings.ToUpper(name), models.SeverityHigh,
					fmt.Sprintf("Insecure service running: %s", name),
					fmt.Sprintf("%s service is running", name),
					"Legacy service widens the attack surface",
					fmt.Sprintf("Disable service: sudo systemctl disable %s", name),
				))
				break
			}
		}
	}
}

func (p *SystemProbe) checkUsers(ctx context.Context, res *models.SystemResult) {
	exit, sudoOut, _, err := p.runner.Run(ctx, `grep -Po '^sudo.+:\K.*$' /etc/group`, 0)
	if err == nil && exit == 0 && sudoOut != "" {
		for _, u := range strings.Split(sudoOut, ",") {
			if u = strings.TrimSpace(u); u != "" {
				res.SudoUsers = append(res.SudoUsers, u)
			}
		}
	}

	exit, passwd, _, err := p.runner.Run(ctx, `getent passwd | grep -v '/nologin\|/false'`, 0)
	if err == nil && exit == 0 {
		for _, line := range strings.Split(passwd, "\n") {
			parts := strings.Split(strings.TrimSpace(line), ":")
			if len(parts) == 0 || parts[0] == "" {
				continue
			}
			switch parts[0] {
			case "root", "sync", "shutdown", "halt":
			default:
				res.LoginUsers = append(res.LoginUsers, parts[0])
			}
		}
	}

	exit, shadow, _, err := p.runner.Run(ctx, `sudo awk -F: '($2 == "" ) {print $1}' /etc/shadow`, 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("USER", "account passwords", "sudo awk -F: ... /etc/shadow"))
		return
	}
	if exit != 0 {
		return
	}
	for _, line := range strings.Split(shadow, "\n") {
		user := strings.TrimSpace(line)
		if user == "" || user == "root" {
			continue
		}
		res.Findings = append(res.Findings, models.MustFinding(
			"USER-"+user, models.SeverityHigh,
			fmt.Sprintf("User without password: %s", user),
			fmt.Sprintf("User account %s has no password set", user),
			"Potential unauthorized access",
			fmt.Sprintf("Set password: sudo passwd %s", user),
		))
	}
}

func (p *SystemProbe) checkUpdates(ctx context.Context, res *models.SystemResult) {
	// Refresh the package cache quietly first; failures here only stale the
	// counts below.
	p.runner.Run(ctx, "sudo apt-get update -qq 2>/dev/null", 120*time.Second)

	exit, out, _, err := p.runner.Run(ctx, "apt list --upgradable 2>/dev/null | tail -n +2 | wc -l", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("UPD", "pending updates", "apt list --upgradable"))
		return
	}
	if exit == 0 {
		res.TotalUpdates = atoiOrZero(out)
	}

	exit, out, _, err = p.runner.Run(ctx, "apt list --upgradable 2>/dev/null | grep -i security | wc -l", 0)
	if err == nil && exit == 0 {
		res.SecurityUpdates = atoiOrZero(out)
	}

	if res.SecurityUpdates > 0 {
		res.Findings = append(res.Findings, models.MustFinding(
			"UPD-001", models.SeverityHigh,
			fmt.Sprintf("%d security updates available", res.SecurityUpdates),
			fmt.Sprintf("System has %d pending security updates", res.SecurityUpdates),
			"Known vulnerabilities may be exploitable",
			"Install updates: sudo apt-get upgrade",
		).WithAutoFix("vps-audit security install-updates --security-only"))
	}
	if res.TotalUpdates > 10 {
		res.Findings = append(res.Findings, models.MustFinding(
			"UPD-002", models.SeverityMedium,
			fmt.Sprintf("%d total updates available", res.TotalUpdates),
			fmt.Sprintf("System has %d pending updates", res.TotalUpdates),
			"System may be missing important patches",
			"Install updates: sudo apt-get upgrade",
		).WithAutoFix("vps-audit security install-updates"))
	}
}

func (p *SystemProbe) checkAuthLog(ctx context.Context, res *models.SystemResult) {
	exit, out, _, err := p.runner.Run(ctx, "sudo grep 'Failed password' /var/log/auth.log 2>/dev/null | wc -l", 0)
	if err != nil {
		res.Findings = append(res.Findings, gapFinding("LOG", "authentication logs", "sudo grep 'Failed password' /var/log/auth.log"))
		return
	}
	if exit != 0 {
		return
	}
	res.FailedSSHAttempts = atoiOrZero(out)
	if res.FailedSSHAttempts > failedLoginThreshold {
		res.Findings = append(res.Findings, models.MustFinding(
			"LOG-001", models.SeverityMedium,
			fmt.Sprintf("%d failed SSH login attempts", res.FailedSSHAttempts),
			fmt.Sprintf("Detected %d failed SSH authentication attempts", res.FailedSSHAttempts),
			"Possible brute-force attack in progress",
			"Review /var/log/auth.log and consider fail2ban",
		))
	}
}

func (p *SystemProbe) checkFilePermissions(ctx context.Context, res *models.SystemResult) {
	for _, sf := range sensitiveFiles {
		exit, out, _, err := p.runner.Run(ctx, fmt.Sprintf("stat -c '%%a' %s 2>/dev/null", sf.Path), 0)
		if err != nil {
			res.Findings = append(res.Findings, gapFinding("FS", "sensitive file permissions", "stat -c '%a' "+sf.Path))
			return
		}
		if exit != 0 {
			continue
		}
		actual := strings.TrimSpace(out)
		if actual != "" && actual != sf.Expected {
			res.Findings = append(res.Findings, models.MustFinding(
				"FS-"+strings.ReplaceAll(sf.Path, "/", "-"), models.SeverityMedium,
				fmt.Sprintf("Incorrect permissions on %s", sf.Path),
				fmt.Sprintf("%s has permissions %s, expected %s", sf.Path, actual, sf.Expected),
				"Sensitive file may be accessible to unauthorized users",
				fmt.Sprintf("Fix permissions: sudo chmod %s %s", sf.Expected, sf.Path),
			))
		}
	}
}

// Parsing helpers. Raw tool output is turned into typed data here so checks
// and tests never deal with command text.

func parseSSHConfig(raw string) map[string]string {
	cfg := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) == 2 {
			cfg[strings.ToLower(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return cfg
}

func parseUFWRules(status string) []models.FirewallRule {
	var rules []models.FirewallRule
	inRules := false
	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "To") && strings.Contains(line, "Action") && strings.Contains(line, "From") {
			inRules = true
			continue
		}
		if !inRules || line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		first := strings.ToLower(parts[0])
		if !strings.Contains(parts[0], "/") && !isDigits(parts[0]) && first != "anywhere" && first != "any" {
			continue
		}
		// In verbose output the action is two tokens, e.g. "ALLOW IN".
		action, rest := parts[1], parts[2:]
		switch strings.ToUpper(parts[2]) {
		case "IN", "OUT", "FWD":
			action = parts[1] + " " + parts[2]
			rest = parts[3:]
		}
		if len(rest) == 0 {
			continue
		}
		rules = append(rules, models.FirewallRule{
			To:     parts[0],
			Action: action,
			From:   strings.Join(rest, " "),
		})
	}
	return rules
}

func parseJailList(out string) []string {
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, "Jail list:"); idx >= 0 {
			var jails []string
			for _, j := range strings.Split(line[idx+len("Jail list:"):], ",") {
				if j = strings.TrimSpace(j); j != "" {
					jails = append(jails, j)
				}
			}
			return jails
		}
	}
	return nil
}

func parseSS(out string) []models.ListeningPort {
	var ports []models.ListeningPort
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 5 {
			continue
		}
		local := parts[4]
		idx := strings.LastIndex(local, ":")
		if idx < 0 {
			continue
		}
		address := strings.NewReplacer("[", "", "]", "").Replace(local[:idx])
		process := "unknown"
		if len(parts) > 6 {
			process = parts[6]
		}
		ports = append(ports, models.ListeningPort{
			Protocol: parts[0],
			Address:  address,
			Port:     local[idx+1:],
			Process:  process,
		})
	}
	return ports
}

func parseSystemctl(out string) []string {
	var services []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, ".service") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) > 0 {
			services = append(services, strings.TrimSuffix(parts[0], ".service"))
		}
	}
	return services
}

func valueOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
