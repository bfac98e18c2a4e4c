// Package cmd wires the command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibewp/vps-audit/internal/audit"
	"github.com/vibewp/vps-audit/internal/config"
	"github.com/vibewp/vps-audit/internal/logging"
	"github.com/vibewp/vps-audit/internal/remote"
	"github.com/vibewp/vps-audit/internal/reporter"
)

var (
	flagConfig        string
	flagOutput        string
	flagFormat        string
	flagWPAPIToken    string
	flagSkipWordPress bool
	flagSkipLynis     bool
	flagTimeout       int
	flagVerbose       bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vps-audit",
	Short: "Run a security audit against a managed VPS",
	Long: `vps-audit connects to a VPS over SSH and runs a staged security audit:

  1. System security: SSH daemon config, firewall, fail2ban, open ports,
     legacy services, user accounts, pending updates, auth log, file
     permissions.
  2. WordPress security: core version, file permissions, wp-config.php
     hardening, plugins, themes and administrator accounts for every site
     in the inventory.
  3. Known vulnerabilities: installed core, plugin and theme versions are
     checked against the WPScan advisory database (requires an API token).
  4. System hardening: a Lynis quick audit when Lynis is installed on the
     target.

Each stage is isolated: a failing stage is recorded in the report and the
remaining stages still run. The composite security score weighs the stages
that completed.

Examples:
  # Audit the host from the inventory file
  vps-audit --config vps.toml

  # Produce an HTML report
  vps-audit --config vps.toml --format html --output report.html

  # Include advisory lookups
  vps-audit --config vps.toml --wp-api-token "$WPSCAN_API_TOKEN"

  # System checks only
  vps-audit --config vps.toml --skip-wordpress --skip-lynis`,
	RunE: runAudit,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "vps.toml", "Path to the server inventory file")
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (default: stdout)")
	rootCmd.Flags().StringVarP(&flagFormat, "format", "f", "console", "Output format: console, json, html")
	rootCmd.Flags().StringVar(&flagWPAPIToken, "wp-api-token", "", "WPScan API token (falls back to "+config.TokenEnvVar+")")
	rootCmd.Flags().BoolVar(&flagSkipWordPress, "skip-wordpress", false, "Skip the WordPress application stage")
	rootCmd.Flags().BoolVar(&flagSkipLynis, "skip-lynis", false, "Skip the Lynis hardening stage")
	rootCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "Overall audit timeout in seconds (0 for none)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

func runAudit(cmd *cobra.Command, args []string) error {
	log := logging.Setup(flagVerbose)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	runner := remote.NewSSHRunner(cfg.Host, cfg.User, cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(flagTimeout)*time.Second)
		defer cancel()
	}

	log.Infof("connecting to %s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	if err := runner.Check(ctx); err != nil {
		return fmt.Errorf("cannot reach %s: %w", cfg.Host, err)
	}

	orch := audit.New(runner, cfg.Sites, audit.DefaultScorePolicy(), log)
	snap := orch.RunFullAudit(ctx, audit.Options{
		SkipWordPress: flagSkipWordPress,
		SkipLynis:     flagSkipLynis,
		WPScanToken:   config.ResolveToken(flagWPAPIToken, cfg),
	})

	rep := reporter.Get(flagFormat)
	output, err := rep.Render(snap)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if flagOutput != "" {
		if err := os.WriteFile(flagOutput, output, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", flagOutput)
	} else {
		fmt.Print(string(output))
	}

	return nil
}
