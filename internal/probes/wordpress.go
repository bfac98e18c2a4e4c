package probes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	version "github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/vibewp/vps-audit/internal/config"
	"github.com/vibewp/vps-audit/internal/models"
	"github.com/vibewp/vps-audit/internal/remote"
)

// staleVersionThreshold is the WordPress core version below which an
// instance is considered critically outdated.
const staleVersionThreshold = "6.4"

const (
	maxInactivePlugins = 5
	maxInactiveThemes  = 3
	maxAdminAccounts   = 5
)

var (
	staleVersion = version.Must(version.NewVersion(staleVersionThreshold))

	debugEnabledRe = regexp.MustCompile(`(?i)define\s*\(\s*['"]WP_DEBUG['"]\s*,\s*true`)
	fileEditOffRe  = regexp.MustCompile(`(?i)define\s*\(\s*['"]DISALLOW_FILE_EDIT['"]\s*,\s*true`)
)

// securityKeys are the wp-config.php cryptographic secrets every instance
// must define with unique values.
var securityKeys = []string{
	"AUTH_KEY", "SECURE_AUTH_KEY", "LOGGED_IN_KEY", "NONCE_KEY",
	"AUTH_SALT", "SECURE_AUTH_SALT", "LOGGED_IN_SALT", "NONCE_SALT",
}

// Component is one installed plugin or theme.
type Component struct {
	Name    string
	Version string
	Status  string
}

// WordPressProbe inspects hosted WordPress instances through their
// containers.
type WordPressProbe struct {
	runner remote.Runner
	log    *logrus.Entry
}

// NewWordPressProbe builds an application probe over the given command
// channel.
func NewWordPressProbe(runner remote.Runner, log *logrus.Logger) *WordPressProbe {
	return &WordPressProbe{runner: runner, log: log.WithField("probe", "wordpress")}
}

// InspectAll inspects every configured site one at a time. The shared
// command channel cannot be used concurrently, so there is no fan-out.
func (p *WordPressProbe) InspectAll(ctx context.Context, sites []config.Site) (*models.WordPressResult, error) {
	res := &models.WordPressResult{
		Findings: []models.Finding{},
		Sites:    make(map[string]*models.SiteResult, len(sites)),
	}
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("application inspection interrupted before site %s: %w", site.Name, err)
		}
		p.log.Debugf("inspecting site %s", site.Name)
		siteRes := p.InspectInstance(ctx, site)
		res.Sites[site.Name] = siteRes
		res.Findings = append(res.Findings, siteRes.Findings...)
		res.SitesAudited++
	}
	return res, nil
}

// InspectInstance audits a single site. If the instance's container is not
// reachable it returns a single high severity finding and skips the
// remaining checks.
func (p *WordPressProbe) InspectInstance(ctx context.Context, site config.Site) *models.SiteResult {
	res := &models.SiteResult{
		Site:     site.Name,
		Domain:   site.Domain,
		Status:   "audited",
		Findings: []models.Finding{},
	}
	container := containerName(site)

	exit, out, _, err := p.runner.Run(ctx,
		fmt.Sprintf("docker ps --filter name=%s --format '{{.Names}}'", container), 0)
	if err != nil || exit != 0 || strings.TrimSpace(out) == "" {
		res.Status = "container_not_running"
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-OFFLINE", site.Name), models.SeverityHigh,
			fmt.Sprintf("WordPress container offline: %s", site.Name),
			fmt.Sprintf("Container %s is not running", container),
			"Site unavailable for security checks",
			fmt.Sprintf("Start container: docker start %s", container),
		))
		return res
	}

	p.checkCoreVersion(ctx, site, res)
	p.checkFilePermissions(ctx, site, res)
	p.checkWPConfig(ctx, site, res)
	p.checkPlugins(ctx, site, res)
	p.checkThemes(ctx, site, res)
	p.checkAccounts(ctx, site, res)
	return res
}

func (p *WordPressProbe) checkCoreVersion(ctx context.Context, site config.Site, res *models.SiteResult) {
	container, path := containerName(site), wpPath(site)

	exit, current, _, err := p.runner.Run(ctx, p.wpCmd(container, path, "core version"), 0)
	if err != nil || exit != 0 || strings.TrimSpace(current) == "" {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-CORE-001", site.Name), models.SeverityMedium,
			fmt.Sprintf("Cannot verify WordPress version: %s", site.Name),
			"Unable to check WordPress core version",
			"Cannot verify if core is up to date",
			"Verify WP-CLI is working inside the container",
		))
		return
	}
	current = strings.TrimSpace(current)

	exit, updates, _, err := p.runner.Run(ctx, p.wpCmd(container, path, "core check-update --format=json"), 0)
	if err == nil && exit == 0 {
		if u := strings.TrimSpace(updates); u != "" && u != "[]" {
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-CORE-002", site.Name), models.SeverityHigh,
				fmt.Sprintf("WordPress core outdated: %s", site.Name),
				fmt.Sprintf("WordPress %s has updates available", current),
				"May contain known security vulnerabilities",
				fmt.Sprintf("Update WordPress: docker exec %s wp core update --path=%s --allow-root", container, path),
			))
		}
	}

	cur, err := version.NewVersion(current)
	if err != nil {
		return
	}
	if cur.LessThan(staleVersion) {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-CORE-003", site.Name), models.SeverityCritical,
			fmt.Sprintf("WordPress version critically outdated: %s", site.Name),
			fmt.Sprintf("WordPress %s is significantly outdated", current),
			"Multiple known security vulnerabilities likely present",
			fmt.Sprintf("Urgently update WordPress: docker exec %s wp core update --path=%s --allow-root", container, path),
		))
	}
}

func (p *WordPressProbe) checkFilePermissions(ctx context.Context, site config.Site, res *models.SiteResult) {
	container := containerName(site)
	configPath := wpConfigPath(site)
	uploadsPath := wpBasePath(site) + "/wp-content/uploads"

	exit, perms, _, err := p.runner.Run(ctx,
		fmt.Sprintf("docker exec %s stat -c '%%a' %s 2>/dev/null", container, configPath), 0)
	if err == nil && exit == 0 {
		switch strings.TrimSpace(perms) {
		case "644", "666", "777":
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-PERM-001", site.Name), models.SeverityHigh,
				fmt.Sprintf("Insecure wp-config.php permissions: %s", site.Name),
				fmt.Sprintf("wp-config.php has permissions %s", strings.TrimSpace(perms)),
				"Database credentials may be readable by other users",
				fmt.Sprintf("docker exec %s chmod 600 %s", container, configPath),
			))
		}
	}

	exit, perms, _, err = p.runner.Run(ctx,
		fmt.Sprintf("docker exec %s stat -c '%%a' %s 2>/dev/null", container, uploadsPath), 0)
	if err == nil && exit == 0 && strings.TrimSpace(perms) == "777" {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-PERM-002", site.Name), models.SeverityMedium,
			fmt.Sprintf("Overly permissive uploads directory: %s", site.Name),
			"Uploads directory has permissions 777",
			"Anyone can write files to uploads",
			fmt.Sprintf("docker exec %s chmod 755 %s", container, uploadsPath),
		))
	}
}

func (p *WordPressProbe) checkWPConfig(ctx context.Context, site config.Site, res *models.SiteResult) {
	container := containerName(site)
	configPath := wpConfigPath(site)

	exit, cfg, _, err := p.runner.Run(ctx,
		fmt.Sprintf("docker exec %s cat %s 2>/dev/null", container, configPath), 0)
	if err != nil || exit != 0 {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-CFG-001", site.Name), models.SeverityCritical,
			fmt.Sprintf("Cannot read wp-config.php: %s", site.Name),
			"wp-config.php is missing or unreadable",
			"Cannot verify security configuration",
			"Investigate WordPress installation integrity",
		))
		return
	}

	if debugEnabledRe.MatchString(cfg) {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-CFG-002", site.Name), models.SeverityMedium,
			fmt.Sprintf("Debug mode enabled: %s", site.Name),
			"WP_DEBUG is set to true",
			"Sensitive information may be exposed in error messages",
			"Set WP_DEBUG to false in wp-config.php",
		))
	}

	if strings.Contains(strings.ToLower(cfg), "put your unique phrase here") {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-CFG-003", site.Name), models.SeverityCritical,
			fmt.Sprintf("Default security keys in use: %s", site.Name),
			"WordPress security keys are using default placeholder values",
			"Authentication can be easily compromised",
			"Replace with unique keys from https://api.wordpress.org/secret-key/1.1/salt/",
		))
	} else {
		for _, key := range securityKeys {
			if !strings.Contains(cfg, key) {
				res.Findings = append(res.Findings, models.MustFinding(
					fmt.Sprintf("WP-%s-CFG-KEY-%s", site.Name, key), models.SeverityHigh,
					fmt.Sprintf("Missing security key: %s in %s", key, site.Name),
					fmt.Sprintf("Security key %s is not defined", key),
					"Weakened authentication security",
					"Add security keys from https://api.wordpress.org/secret-key/1.1/salt/",
				))
			}
		}
	}

	if !fileEditOffRe.MatchString(cfg) {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-CFG-004", site.Name), models.SeverityMedium,
			fmt.Sprintf("File editing not disabled: %s", site.Name),
			"DISALLOW_FILE_EDIT is not set to true",
			"Compromised admin accounts can edit theme and plugin files",
			"Add to wp-config.php: define('DISALLOW_FILE_EDIT', true);",
		))
	}
}

func (p *WordPressProbe) checkPlugins(ctx context.Context, site config.Site, res *models.SiteResult) {
	container, path := containerName(site), wpPath(site)

	exit, out, _, err := p.runner.Run(ctx, p.wpCmd(container, path, "plugin list --update=available --format=count"), 0)
	if err == nil && exit == 0 {
		if n := atoiOrZero(out); n > 0 {
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-PLG-002", site.Name), models.SeverityHigh,
				fmt.Sprintf("%d plugin updates available: %s", n, site.Name),
				fmt.Sprintf("%d plugins have updates available", n),
				"Outdated plugins may have known vulnerabilities",
				fmt.Sprintf("Update plugins: docker exec %s wp plugin update --all --path=%s --allow-root", container, path),
			))
		}
	}

	exit, out, _, err = p.runner.Run(ctx, p.wpCmd(container, path, "plugin list --status=inactive --format=count"), 0)
	if err == nil && exit == 0 {
		if n := atoiOrZero(out); n > maxInactivePlugins {
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-PLG-001", site.Name), models.SeverityLow,
				fmt.Sprintf("Many inactive plugins: %s", site.Name),
				fmt.Sprintf("%d inactive plugins found", n),
				"Unused plugins may contain vulnerabilities",
				"Remove unused plugins to reduce attack surface",
			))
		}
	}
}

func (p *WordPressProbe) checkThemes(ctx context.Context, site config.Site, res *models.SiteResult) {
	container, path := containerName(site), wpPath(site)

	exit, out, _, err := p.runner.Run(ctx, p.wpCmd(container, path, "theme list --update=available --format=count"), 0)
	if err == nil && exit == 0 {
		if n := atoiOrZero(out); n > 0 {
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-THM-001", site.Name), models.SeverityMedium,
				fmt.Sprintf("%d theme updates available: %s", n, site.Name),
				fmt.Sprintf("%d themes have updates available", n),
				"Outdated themes may have vulnerabilities",
				fmt.Sprintf("Update themes: docker exec %s wp theme update --all --path=%s --allow-root", container, path),
			))
		}
	}

	exit, out, _, err = p.runner.Run(ctx, p.wpCmd(container, path, "theme list --status=inactive --format=count"), 0)
	if err == nil && exit == 0 {
		if n := atoiOrZero(out); n > maxInactiveThemes {
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-THM-002", site.Name), models.SeverityLow,
				fmt.Sprintf("Many inactive themes: %s", site.Name),
				fmt.Sprintf("%d inactive themes found", n),
				"Unused themes may contain vulnerabilities",
				"Remove unused themes to reduce attack surface",
			))
		}
	}
}

func (p *WordPressProbe) checkAccounts(ctx context.Context, site config.Site, res *models.SiteResult) {
	container, path := containerName(site), wpPath(site)

	exit, out, _, err := p.runner.Run(ctx, p.wpCmd(container, path, "user list --role=administrator --format=count"), 0)
	if err == nil && exit == 0 {
		if n := atoiOrZero(out); n > maxAdminAccounts {
			res.Findings = append(res.Findings, models.MustFinding(
				fmt.Sprintf("WP-%s-USR-001", site.Name), models.SeverityMedium,
				fmt.Sprintf("Too many administrator accounts: %s", site.Name),
				fmt.Sprintf("%d administrator accounts found", n),
				"Increased risk from compromised admin accounts",
				"Review and reduce the number of admin accounts",
			))
		}
	}

	exit, _, _, err = p.runner.Run(ctx, p.wpCmd(container, path, "user get admin"), 0)
	if err == nil && exit == 0 {
		res.Findings = append(res.Findings, models.MustFinding(
			fmt.Sprintf("WP-%s-USR-002", site.Name), models.SeverityMedium,
			fmt.Sprintf("Default admin username exists: %s", site.Name),
			`User account with username "admin" exists`,
			"Common target for brute-force attacks",
			`Create a new admin user and delete the "admin" account`,
		))
	}
}

// Components lists the core version and installed plugins and themes for
// one site, for the advisory lookup stage.
func (p *WordPressProbe) Components(ctx context.Context, site config.Site) (core string, plugins, themes []Component, err error) {
	container, path := containerName(site), wpPath(site)

	exit, out, _, err := p.runner.Run(ctx, p.wpCmd(container, path, "core version"), 0)
	if err != nil {
		return "", nil, nil, err
	}
	if exit == 0 {
		core = strings.TrimSpace(out)
	}

	exit, out, _, err = p.runner.Run(ctx, p.wpCmd(container, path, "plugin list --format=csv --fields=name,version,status"), 0)
	if err != nil {
		return core, nil, nil, err
	}
	if exit == 0 {
		plugins = parseComponentCSV(out)
	}

	exit, out, _, err = p.runner.Run(ctx, p.wpCmd(container, path, "theme list --format=csv --fields=name,version,status"), 0)
	if err != nil {
		return core, plugins, nil, err
	}
	if exit == 0 {
		themes = parseComponentCSV(out)
	}
	return core, plugins, themes, nil
}

func (p *WordPressProbe) wpCmd(container, path, sub string) string {
	return fmt.Sprintf("docker exec %s wp %s --path=%s --allow-root 2>/dev/null", container, sub, path)
}

func containerName(site config.Site) string {
	return site.Name + "-wp"
}

func wpPath(site config.Site) string {
	switch site.Type {
	case "frankenwp", "wordpress":
		return "/var/www/html"
	}
	return "/var/www/vhosts"
}

func wpBasePath(site config.Site) string {
	switch site.Type {
	case "frankenwp", "wordpress":
		return "/var/www/html"
	}
	return "/var/www/vhosts/" + site.Domain
}

func wpConfigPath(site config.Site) string {
	return wpBasePath(site) + "/wp-config.php"
}

// parseComponentCSV parses WP-CLI csv output with a name,version,status
// header.
func parseComponentCSV(out string) []Component {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil
	}
	headers := strings.Split(lines[0], ",")
	var components []Component
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		values := strings.Split(line, ",")
		var c Component
		for i, h := range headers {
			if i >= len(values) {
				break
			}
			v := strings.TrimSpace(values[i])
			switch strings.TrimSpace(h) {
			case "name":
				c.Name = v
			case "version":
				c.Version = v
			case "status":
				c.Status = v
			}
		}
		if c.Name != "" {
			components = append(components, c)
		}
	}
	return components
}
