// Package audit drives the staged inspection of a server and aggregates the
// results into a single snapshot.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vibewp/vps-audit/internal/clients"
	"github.com/vibewp/vps-audit/internal/config"
	"github.com/vibewp/vps-audit/internal/models"
	"github.com/vibewp/vps-audit/internal/probes"
	"github.com/vibewp/vps-audit/internal/remote"
)

// Options selects which optional stages run.
type Options struct {
	SkipWordPress bool
	SkipLynis     bool
	WPScanToken   string
}

// Orchestrator runs the audit stages in a fixed order and isolates their
// failures from each other. Stages run strictly sequentially: every probe
// shares one command channel to the target, and interleaving commands over it
// would garble attribution of output to checks.
type Orchestrator struct {
	runner    remote.Runner
	sites     []config.Site
	policy    ScorePolicy
	system    *probes.SystemProbe
	wordpress *probes.WordPressProbe
	lynis     *probes.LynisProbe
	newClient func(token string) *clients.WPScanClient
	log       *logrus.Logger
}

// New builds an orchestrator over the given command channel and site
// inventory.
func New(runner remote.Runner, sites []config.Site, policy ScorePolicy, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		runner:    runner,
		sites:     sites,
		policy:    policy,
		system:    probes.NewSystemProbe(runner, log),
		wordpress: probes.NewWordPressProbe(runner, log),
		lynis:     probes.NewLynisProbe(runner, log),
		newClient: func(token string) *clients.WPScanClient {
			return clients.NewWPScanClient(token, log)
		},
		log: log,
	}
}

// RunFullAudit executes all stages and returns the snapshot. A stage failure
// is recorded in the snapshot and never aborts the run; whatever partial
// output the stage produced stays in place. Context cancellation stops the
// run at the next stage boundary and marks the snapshot interrupted.
func (o *Orchestrator) RunFullAudit(ctx context.Context, opts Options) *models.AuditSnapshot {
	snap := models.NewAuditSnapshot()

	o.runStage(ctx, snap, models.StageSystem, func() error {
		res, err := o.system.Inspect(ctx)
		if res != nil {
			snap.System = res
		}
		return err
	})

	if opts.SkipWordPress {
		o.log.Info("application stage skipped by request")
		snap.WordPress = &models.WordPressResult{Skipped: true, Findings: []models.Finding{}}
	} else {
		o.runStage(ctx, snap, models.StageWordPress, func() error {
			res, err := o.wordpress.InspectAll(ctx, o.sites)
			if res != nil {
				snap.WordPress = res
			}
			return err
		})
	}

	wordpressRan := snap.WordPress != nil && !snap.WordPress.Skipped &&
		!snap.StageFailed(models.StageWordPress)
	switch {
	case opts.SkipWordPress:
		snap.Vulnerabilities = skippedVulnerabilities("application stage skipped")
	case opts.WPScanToken == "":
		o.log.Info("vulnerability stage skipped, no WPScan API token provided")
		snap.Vulnerabilities = skippedVulnerabilities("no WPScan API token provided")
	case !wordpressRan:
		snap.Vulnerabilities = skippedVulnerabilities("application stage did not complete")
	default:
		o.runStage(ctx, snap, models.StageVulnerabilities, func() error {
			res, err := o.scanVulnerabilities(ctx, opts.WPScanToken)
			if res != nil {
				snap.Vulnerabilities = res
			}
			return err
		})
	}

	if opts.SkipLynis {
		o.log.Info("hardening stage skipped by request")
		snap.Lynis = &models.LynisResult{Skipped: true, Findings: []models.Finding{}}
	} else {
		o.runStage(ctx, snap, models.StageLynis, func() error {
			res, err := o.lynis.Inspect(ctx)
			if res != nil {
				snap.Lynis = res
			}
			return err
		})
	}

	snap.Score = o.policy.Composite(snap)
	return snap
}

// runStage executes one stage with fault isolation: a returned error or a
// panic becomes a StageError on the snapshot, and an already-cancelled
// context skips the stage entirely.
func (o *Orchestrator) runStage(ctx context.Context, snap *models.AuditSnapshot, stage string, fn func() error) {
	if ctx.Err() != nil {
		snap.Interrupted = true
		snap.Errors = append(snap.Errors, models.StageError{
			Stage:   stage,
			Message: "interrupted before stage started",
		})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Errorf("%s stage panicked: %v", stage, r)
			snap.Errors = append(snap.Errors, models.StageError{
				Stage:   stage,
				Message: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	o.log.Infof("running %s stage", stage)
	if err := fn(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			snap.Interrupted = true
		}
		o.log.Warnf("%s stage failed: %v", stage, err)
		snap.Errors = append(snap.Errors, models.StageError{Stage: stage, Message: err.Error()})
	}
}

// scanVulnerabilities enumerates each site's components and submits the
// capped set of active ones to the advisory service. A rate-limit response
// ends the stage; everything scanned up to that point is kept.
func (o *Orchestrator) scanVulnerabilities(ctx context.Context, token string) (*models.VulnerabilityResultSet, error) {
	client := o.newClient(token)
	res := &models.VulnerabilityResultSet{
		Sites: make(map[string]*models.SiteVulnerabilities),
	}

	var stageErr error
	for _, site := range o.sites {
		if err := ctx.Err(); err != nil {
			stageErr = fmt.Errorf("vulnerability scan interrupted before site %s: %w", site.Name, err)
			break
		}

		siteRes := &models.SiteVulnerabilities{Site: site.Name, Findings: []models.Finding{}}
		res.Sites[site.Name] = siteRes
		res.ScannedSites++

		core, plugins, themes, err := o.wordpress.Components(ctx, site)
		if err != nil {
			// "Could not list" must never read as "scanned, nothing found".
			o.log.WithField("site", site.Name).Warnf("component enumeration failed: %v", err)
			siteRes.Findings = append(siteRes.Findings, models.MustFinding(
				fmt.Sprintf("VULN-%s-GAP", site.Name), models.SeverityLow,
				fmt.Sprintf("Could not enumerate components: %s", site.Name),
				"Installed core, plugin and theme versions could not be listed for advisory lookup",
				"Known vulnerabilities for this site were not assessed",
				"Verify WP-CLI works inside the container and re-run the audit",
			))
			continue
		}

		if core != "" {
			if done := o.lookup(client, res, siteRes, clients.KindCore, "wordpress", core, &stageErr); done {
				siteRes.Scanned.Core = true
			}
			if stageErr != nil {
				break
			}
		}

		for _, pl := range plugins {
			if pl.Status != "active" || pl.Version == "" {
				continue
			}
			if siteRes.Scanned.Plugins >= clients.MaxPluginScans {
				break
			}
			if done := o.lookup(client, res, siteRes, clients.KindPlugin, pl.Name, pl.Version, &stageErr); done {
				siteRes.Scanned.Plugins++
			}
			if stageErr != nil {
				break
			}
		}
		if stageErr != nil {
			break
		}

		for _, th := range themes {
			if th.Status != "active" || th.Version == "" {
				continue
			}
			if siteRes.Scanned.Themes >= clients.MaxThemeScans {
				break
			}
			if done := o.lookup(client, res, siteRes, clients.KindTheme, th.Name, th.Version, &stageErr); done {
				siteRes.Scanned.Themes++
			}
			if stageErr != nil {
				break
			}
		}
		if stageErr != nil {
			break
		}
	}

	res.APIRequests = client.RequestCount()
	return res, stageErr
}

// lookup performs one advisory lookup and folds its findings into the site
// result, bumping the set's vulnerability count. It reports whether the
// lookup completed; a rate-limit error is stored through stageErr, any other
// error is logged and skipped.
func (o *Orchestrator) lookup(client *clients.WPScanClient, res *models.VulnerabilityResultSet,
	siteRes *models.SiteVulnerabilities, kind clients.ComponentKind, name, version string, stageErr *error) bool {

	result, err := client.ScanComponent(kind, name, version)
	if err != nil {
		if errors.Is(err, models.ErrRateLimited) {
			*stageErr = err
		} else {
			o.log.WithField("site", siteRes.Site).Warnf("advisory lookup for %s %s failed: %v", kind, name, err)
		}
		return false
	}
	converted := clients.ConvertToFindings(result, siteRes.Site)
	siteRes.Findings = append(siteRes.Findings, converted...)
	res.TotalVulnerabilities += len(converted)
	return true
}

func skippedVulnerabilities(reason string) *models.VulnerabilityResultSet {
	return &models.VulnerabilityResultSet{Skipped: true, SkipReason: reason}
}
