package probes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibewp/vps-audit/internal/config"
	"github.com/vibewp/vps-audit/internal/models"
)

func blogSite() config.Site {
	return config.Site{Name: "blog", Domain: "blog.example.com", Type: "wordpress"}
}

const secureWPConfig = `<?php
define( 'DB_NAME', 'wordpress' );
define( 'WP_DEBUG', false );
define( 'DISALLOW_FILE_EDIT', true );
define( 'AUTH_KEY',         'x#1!rnd' );
define( 'SECURE_AUTH_KEY',  'x#2!rnd' );
define( 'LOGGED_IN_KEY',    'x#3!rnd' );
define( 'NONCE_KEY',        'x#4!rnd' );
define( 'AUTH_SALT',        'x#5!rnd' );
define( 'SECURE_AUTH_SALT', 'x#6!rnd' );
define( 'LOGGED_IN_SALT',   'x#7!rnd' );
define( 'NONCE_SALT',       'x#8!rnd' );
`

const defaultKeysWPConfig = `<?php
define( 'WP_DEBUG', true );
define( 'AUTH_KEY', 'put your unique phrase here' );
`

func TestWordPressProbeOfflineContainer(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: ""},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	res, err := probe.InspectAll(context.Background(), []config.Site{blogSite()})
	require.NoError(t, err)

	assert.Equal(t, 1, res.SitesAudited)
	site := res.Sites["blog"]
	require.NotNil(t, site)
	assert.Equal(t, "container_not_running", site.Status)
	require.Len(t, site.Findings, 1)
	offline := site.Findings[0]
	assert.Equal(t, "WP-blog-OFFLINE", offline.ID)
	assert.Equal(t, models.SeverityHigh, offline.Severity)
	// No further commands must reach the dead container.
	assert.Len(t, runner.calls, 1)
}

func TestWordPressProbeStaleCore(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
		{pattern: "core check-update", stdout: `[{"version":"6.5.2"}]`},
		{pattern: "core version", stdout: "5.8"},
		{pattern: "cat /var/www/html/wp-config.php", stdout: secureWPConfig},
		{pattern: "user get admin", exit: 1},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	res, err := probe.InspectAll(context.Background(), []config.Site{blogSite()})
	require.NoError(t, err)

	site := res.Sites["blog"]
	require.NotNil(t, site)
	assert.True(t, hasID(site.Findings, "WP-blog-CORE-002"), "pending update should be flagged")
	stale := findByID(t, site.Findings, "WP-blog-CORE-003")
	assert.Equal(t, models.SeverityCritical, stale.Severity)
	assert.Contains(t, stale.Description, "5.8")
}

func TestWordPressProbeCurrentCore(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
		{pattern: "core check-update", stdout: "[]"},
		{pattern: "core version", stdout: "6.5.2"},
		{pattern: "cat /var/www/html/wp-config.php", stdout: secureWPConfig},
		{pattern: "stat -c '%a' /var/www/html/wp-config.php", stdout: "600"},
		{pattern: "stat -c '%a' /var/www/html/wp-content/uploads", stdout: "755"},
		{pattern: "user get admin", exit: 1},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	res, err := probe.InspectAll(context.Background(), []config.Site{blogSite()})
	require.NoError(t, err)

	site := res.Sites["blog"]
	require.NotNil(t, site)
	assert.Empty(t, site.Findings, "hardened site should be clean, got %v", findingIDs(site.Findings))
	assert.Equal(t, "audited", site.Status)
}

func TestWordPressProbeConfigHardening(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
		{pattern: "core version", stdout: "6.5.2"},
		{pattern: "core check-update", stdout: "[]"},
		{pattern: "cat /var/www/html/wp-config.php", stdout: defaultKeysWPConfig},
		{pattern: "stat -c '%a' /var/www/html/wp-config.php", stdout: "644"},
		{pattern: "stat -c '%a' /var/www/html/wp-content/uploads", stdout: "777"},
		{pattern: "user get admin", exit: 1},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	res, err := probe.InspectAll(context.Background(), []config.Site{blogSite()})
	require.NoError(t, err)

	site := res.Sites["blog"]
	require.NotNil(t, site)
	assert.True(t, hasID(site.Findings, "WP-blog-PERM-001"), "world-readable wp-config.php")
	assert.True(t, hasID(site.Findings, "WP-blog-PERM-002"), "777 uploads dir")
	assert.True(t, hasID(site.Findings, "WP-blog-CFG-002"), "debug mode on")
	defaultKeys := findByID(t, site.Findings, "WP-blog-CFG-003")
	assert.Equal(t, models.SeverityCritical, defaultKeys.Severity)
	assert.True(t, hasID(site.Findings, "WP-blog-CFG-004"), "file editing not disabled")
	// Placeholder keys already flagged; per-key findings must not pile on.
	assert.False(t, hasID(site.Findings, "WP-blog-CFG-KEY-AUTH_KEY"))
}

func TestWordPressProbeMissingSecurityKeys(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
		{pattern: "core version", stdout: "6.5.2"},
		{pattern: "core check-update", stdout: "[]"},
		{pattern: "cat /var/www/html/wp-config.php", stdout: "<?php define( 'DB_NAME', 'wp' );"},
		{pattern: "user get admin", exit: 1},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	res, err := probe.InspectAll(context.Background(), []config.Site{blogSite()})
	require.NoError(t, err)

	site := res.Sites["blog"]
	require.NotNil(t, site)
	for _, key := range securityKeys {
		assert.True(t, hasID(site.Findings, "WP-blog-CFG-KEY-"+key), "missing key %s", key)
	}
}

func TestWordPressProbeDefaultAdminAccount(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
		{pattern: "core version", stdout: "6.5.2"},
		{pattern: "core check-update", stdout: "[]"},
		{pattern: "cat /var/www/html/wp-config.php", stdout: secureWPConfig},
		{pattern: "user list --role=administrator", stdout: "7"},
		{pattern: "user get admin", stdout: "admin"},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	res, err := probe.InspectAll(context.Background(), []config.Site{blogSite()})
	require.NoError(t, err)

	site := res.Sites["blog"]
	require.NotNil(t, site)
	assert.True(t, hasID(site.Findings, "WP-blog-USR-001"), "too many admins")
	assert.True(t, hasID(site.Findings, "WP-blog-USR-002"), "default admin username")
}

func TestWordPressProbeComponents(t *testing.T) {
	pluginCSV := `name,version,status
akismet,5.3,active
hello-dolly,1.7.2,inactive
wordfence,7.11.0,active`
	themeCSV := `name,version,status
twentytwentyfour,1.1,active`
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "plugin list --format=csv", stdout: pluginCSV},
		{pattern: "theme list --format=csv", stdout: themeCSV},
		{pattern: "core version", stdout: "6.5.2"},
	}}
	probe := NewWordPressProbe(runner, testLogger())

	core, plugins, themes, err := probe.Components(context.Background(), blogSite())
	require.NoError(t, err)

	assert.Equal(t, "6.5.2", core)
	require.Len(t, plugins, 3)
	assert.Equal(t, Component{Name: "akismet", Version: "5.3", Status: "active"}, plugins[0])
	assert.Equal(t, "inactive", plugins[1].Status)
	require.Len(t, themes, 1)
	assert.Equal(t, "twentytwentyfour", themes[0].Name)
}

func TestWordPressPathsPerSiteType(t *testing.T) {
	ols := config.Site{Name: "shop", Domain: "shop.example.com", Type: "ols"}
	assert.Equal(t, "/var/www/vhosts", wpPath(ols))
	assert.Equal(t, "/var/www/vhosts/shop.example.com/wp-config.php", wpConfigPath(ols))

	wp := blogSite()
	assert.Equal(t, "/var/www/html", wpPath(wp))
	assert.Equal(t, "/var/www/html/wp-config.php", wpConfigPath(wp))

	fwp := config.Site{Name: "fast", Domain: "fast.example.com", Type: "frankenwp"}
	assert.Equal(t, "/var/www/html", wpBasePath(fwp))
}
