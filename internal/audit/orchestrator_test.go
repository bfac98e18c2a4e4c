package audit

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibewp/vps-audit/internal/config"
	"github.com/vibewp/vps-audit/internal/models"
)

// fakeRunner answers commands from an ordered rule list; the first rule whose
// pattern is a substring of the command wins. Unmatched commands succeed with
// empty output.
type fakeRunner struct {
	rules []fakeRule
	calls []string
}

type fakeRule struct {
	pattern string
	exit    int
	stdout  string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, command string, _ time.Duration) (int, string, string, error) {
	f.calls = append(f.calls, command)
	for _, r := range f.rules {
		if strings.Contains(command, r.pattern) {
			return r.exit, r.stdout, "", r.err
		}
	}
	return 0, "", "", nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSites() []config.Site {
	return []config.Site{{Name: "blog", Domain: "blog.example.com", Type: "wordpress"}}
}

func TestRunFullAuditSkipsOptionalStages(t *testing.T) {
	runner := &fakeRunner{}
	orch := New(runner, testSites(), DefaultScorePolicy(), testLogger())

	snap := orch.RunFullAudit(context.Background(), Options{
		SkipWordPress: true,
		SkipLynis:     true,
	})

	require.NotNil(t, snap.System)
	require.NotNil(t, snap.WordPress)
	assert.True(t, snap.WordPress.Skipped)
	require.NotNil(t, snap.Vulnerabilities)
	assert.True(t, snap.Vulnerabilities.Skipped)
	assert.Equal(t, "application stage skipped", snap.Vulnerabilities.SkipReason)
	require.NotNil(t, snap.Lynis)
	assert.True(t, snap.Lynis.Skipped)
	assert.False(t, snap.Interrupted)
	assert.Empty(t, snap.Errors)
}

func TestRunFullAuditVulnerabilitiesNeedToken(t *testing.T) {
	runner := &fakeRunner{}
	orch := New(runner, testSites(), DefaultScorePolicy(), testLogger())

	snap := orch.RunFullAudit(context.Background(), Options{SkipLynis: true})

	require.NotNil(t, snap.Vulnerabilities)
	assert.True(t, snap.Vulnerabilities.Skipped)
	assert.Equal(t, "no WPScan API token provided", snap.Vulnerabilities.SkipReason)
}

func TestRunFullAuditStageFailureIsIsolated(t *testing.T) {
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "which lynis", err: models.ErrProbeTransport},
	}}
	orch := New(runner, testSites(), DefaultScorePolicy(), testLogger())

	snap := orch.RunFullAudit(context.Background(), Options{SkipWordPress: true})

	assert.True(t, snap.StageFailed(models.StageLynis))
	assert.False(t, snap.StageFailed(models.StageSystem))
	require.NotNil(t, snap.System)
	// Only the system stage contributes; the failed lynis stage is excluded,
	// so the renormalized composite equals the system sub-score.
	assert.Equal(t, DefaultScorePolicy().SystemScore(snap.System), snap.Score)
}

func TestRunFullAuditCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	orch := New(runner, testSites(), DefaultScorePolicy(), testLogger())

	snap := orch.RunFullAudit(ctx, Options{})

	assert.True(t, snap.Interrupted)
	assert.Equal(t, 0, snap.Score)
	for _, stage := range []string{models.StageSystem, models.StageWordPress} {
		assert.True(t, snap.StageFailed(stage), "stage %s should record the interruption", stage)
	}
	assert.Empty(t, runner.calls, "no commands should reach the target")
}

func TestRunStageRecoversPanics(t *testing.T) {
	orch := New(&fakeRunner{}, nil, DefaultScorePolicy(), testLogger())
	snap := models.NewAuditSnapshot()

	orch.runStage(context.Background(), snap, models.StageSystem, func() error {
		panic("probe bug")
	})

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, models.StageSystem, snap.Errors[0].Stage)
	assert.Contains(t, snap.Errors[0].Message, "panic")
	assert.Contains(t, snap.Errors[0].Message, "probe bug")
}

func TestVulnerabilityStageMarksEnumerationGap(t *testing.T) {
	// The container is up, but WP-CLI cannot list components. The site must
	// carry an explicit gap instead of looking like a clean scan.
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
		{pattern: "core version", err: models.ErrProbeTransport},
	}}
	orch := New(runner, testSites(), DefaultScorePolicy(), testLogger())

	snap := orch.RunFullAudit(context.Background(), Options{
		SkipLynis:   true,
		WPScanToken: "test-token",
	})

	require.NotNil(t, snap.Vulnerabilities)
	site := snap.Vulnerabilities.Sites["blog"]
	require.NotNil(t, site)
	require.Len(t, site.Findings, 1)
	gap := site.Findings[0]
	assert.Equal(t, "VULN-blog-GAP", gap.ID)
	assert.Equal(t, models.SeverityLow, gap.Severity)
	// The gap is informational, not a known vulnerability: it must not
	// drag the vulnerability sub-score down.
	assert.Equal(t, 0, snap.Vulnerabilities.TotalVulnerabilities)
	assert.False(t, snap.StageFailed(models.StageVulnerabilities))
}

func TestVulnerabilityStageRunsWithToken(t *testing.T) {
	// The container is up but reports no components, so the stage completes
	// without ever needing the advisory service.
	runner := &fakeRunner{rules: []fakeRule{
		{pattern: "docker ps", stdout: "blog-wp"},
	}}
	orch := New(runner, testSites(), DefaultScorePolicy(), testLogger())

	snap := orch.RunFullAudit(context.Background(), Options{
		SkipLynis:   true,
		WPScanToken: "test-token",
	})

	require.NotNil(t, snap.Vulnerabilities)
	assert.False(t, snap.Vulnerabilities.Skipped)
	assert.Equal(t, 1, snap.Vulnerabilities.ScannedSites)
	assert.Equal(t, 0, snap.Vulnerabilities.APIRequests)
	assert.Equal(t, 0, snap.Vulnerabilities.TotalVulnerabilities)
	assert.False(t, snap.StageFailed(models.StageVulnerabilities))
}
