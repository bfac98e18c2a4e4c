package clients

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibewp/vps-audit/internal/models"
)

const akismetAdvisory = `{
  "akismet": {
    "vulnerabilities": [
      {
        "title": "Akismet - Unauthenticated Stored XSS",
        "vuln_type": "XSS",
        "fixed_in": "3.1.5",
        "references": {"cve": ["2015-9357"]},
        "cvss": {"score": "9.6"}
      },
      {
        "title": "Akismet - Information Disclosure",
        "fixed_in": "4.0.1",
        "cvss": {"score": "5.3"}
      }
    ]
  }
}`

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestScanComponentNoToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := newWPScanClient("", srv.URL, testLog())
	res, err := c.ScanComponent(KindPlugin, "akismet", "3.1.4")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "no API credential configured", res.SkipReason)
	assert.Empty(t, res.Vulnerabilities)
	assert.Zero(t, calls, "no credential must mean no network traffic")
}

func TestScanComponentParsesAdvisories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plugins/akismet", r.URL.Path)
		assert.Equal(t, "Token token=secret", r.Header.Get("Authorization"))
		w.Write([]byte(akismetAdvisory))
	}))
	defer srv.Close()

	c := newWPScanClient("secret", srv.URL, testLog())
	res, err := c.ScanComponent(KindPlugin, "akismet", "3.1.4")
	require.NoError(t, err)
	require.Len(t, res.Vulnerabilities, 2)
	assert.Equal(t, "Akismet - Unauthenticated Stored XSS", res.Vulnerabilities[0].Title)
	assert.Equal(t, "3.1.5", res.Vulnerabilities[0].FixedIn)
	assert.Equal(t, []string{"2015-9357"}, res.Vulnerabilities[0].CVEs)
	require.NotNil(t, res.Vulnerabilities[0].CVSSScore)
	assert.InDelta(t, 9.6, *res.Vulnerabilities[0].CVSSScore, 0.001)
	assert.Equal(t, 1, c.RequestCount())
}

func TestScanComponentCoreEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"6.5.2": {"vulnerabilities": []}}`))
	}))
	defer srv.Close()

	c := newWPScanClient("secret", srv.URL, testLog())
	_, err := c.ScanComponent(KindCore, "wordpress", "6.5.2")
	require.NoError(t, err)
	assert.Equal(t, "/wordpresses/652", path, "core lookups are keyed by version digits")
}

func TestScanComponentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newWPScanClient("secret", srv.URL, testLog())
	res, err := c.ScanComponent(KindTheme, "obscure-theme", "1.0")
	require.NoError(t, err, "an unlisted component is not an error")
	assert.Empty(t, res.Vulnerabilities)
}

func TestScanComponentCaching(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(akismetAdvisory))
	}))
	defer srv.Close()

	c := newWPScanClient("secret", srv.URL, testLog())
	first, err := c.ScanComponent(KindPlugin, "akismet", "3.1.4")
	require.NoError(t, err)
	second, err := c.ScanComponent(KindPlugin, "akismet", "3.1.4")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "repeat lookups must come from the cache")
	assert.Equal(t, 1, c.RequestCount())
	assert.Equal(t, first, second)

	// A different version is a different cache entry.
	_, err = c.ScanComponent(KindPlugin, "akismet", "4.0.0")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestScanComponentRateLimitLatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/plugins/akismet" {
			w.Write([]byte(akismetAdvisory))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newWPScanClient("secret", srv.URL, testLog())

	cached, err := c.ScanComponent(KindPlugin, "akismet", "3.1.4")
	require.NoError(t, err)

	_, err = c.ScanComponent(KindPlugin, "wordfence", "7.11.0")
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.True(t, c.RateLimited())

	// The latch blocks further uncached lookups without touching the network.
	_, err = c.ScanComponent(KindPlugin, "jetpack", "13.0")
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.Equal(t, 2, calls)

	// Cached entries stay readable after the latch closes.
	again, err := c.ScanComponent(KindPlugin, "akismet", "3.1.4")
	require.NoError(t, err)
	assert.Equal(t, cached, again)
	assert.Equal(t, 2, calls)
}

func TestSeverityForScore(t *testing.T) {
	score := func(v float64) *float64 { return &v }

	assert.Equal(t, models.SeverityCritical, severityForScore(score(9.8)))
	assert.Equal(t, models.SeverityCritical, severityForScore(score(9.0)))
	assert.Equal(t, models.SeverityHigh, severityForScore(score(7.5)))
	assert.Equal(t, models.SeverityMedium, severityForScore(score(5.0)))
	assert.Equal(t, models.SeverityLow, severityForScore(score(2.1)))
	assert.Equal(t, models.SeverityHigh, severityForScore(nil),
		"missing score must not default to harmless")
}

func TestConvertToFindings(t *testing.T) {
	high := 9.6
	res := &LookupResult{
		Kind:    KindPlugin,
		Name:    "akismet",
		Version: "3.1.4",
		Vulnerabilities: []Vulnerability{
			{Title: "Stored XSS", VulnType: "XSS", FixedIn: "3.1.5", CVEs: []string{"2015-9357"}, CVSSScore: &high},
			{Title: "Info disclosure"},
		},
	}

	findings := ConvertToFindings(res, "blog")
	require.Len(t, findings, 2)

	assert.Equal(t, "VULN-blog-plugin-akismet-001", findings[0].ID)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
	assert.Contains(t, findings[0].Description, "CVE-2015-9357")
	assert.Contains(t, findings[0].Remediation, "3.1.5")

	assert.Equal(t, models.SeverityHigh, findings[1].Severity)

	assert.Nil(t, ConvertToFindings(&LookupResult{Skipped: true}, "blog"))
	assert.Nil(t, ConvertToFindings(nil, "blog"))
}
