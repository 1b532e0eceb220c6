// Package cli implements the tier sync commands sync-high, sync-medium and
// sync-low. Each runs one tier once and prints a per-marketplace summary.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/bootstrap"
	"github.com/meschain/marketsync/internal/domain/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/infrastructure/scheduler"
)

// Exit codes
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// TierRunner runs one tier
type TierRunner interface {
	Run(ctx context.Context, tier marketsync.Tier, opts scheduler.RunOptions) (*scheduler.RunSummary, error)
}

// Options parsed from the command line
type Options struct {
	Marketplace marketsync.MarketplaceCode
	ConfigPath  string
}

// ParseFlags parses the sync command flags
func ParseFlags(name string, args []string, stderr io.Writer) (*Options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	marketplace := fs.String("marketplace", "", "limit the run to one marketplace code (trendyol, hepsiburada, n11, amazon, ebay)")
	configPath := fs.String("config", "", "path to config.toml; default searches . and ./config")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	opts := &Options{ConfigPath: *configPath}
	if *marketplace != "" {
		code := marketsync.MarketplaceCode(strings.ToLower(strings.TrimSpace(*marketplace)))
		if !code.IsValid() {
			return nil, fmt.Errorf("unknown marketplace %q", *marketplace)
		}
		opts.Marketplace = code
	}
	return opts, nil
}

// Main is the entry point of a tier command
func Main(tier marketsync.Tier) {
	os.Exit(Run(tier, os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes a tier command and returns its exit code
func Run(tier marketsync.Tier, args []string, stdout, stderr io.Writer) int {
	name := "sync-" + string(tier)
	opts, err := ParseFlags(name, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return ExitUsage
	}

	cfg, err := config.LoadFrom(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s: load config: %v\n", name, err)
		return ExitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Scheduler.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scheduler.RunTimeout)
		defer cancel()
	}

	tel, log, err := bootstrap.StartTelemetry(ctx, cfg, "marketsync-"+name, map[string]string{"tier": string(tier)})
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return ExitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
		_ = log.Sync()
	}()

	engine, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("Failed to open sync engine", zap.Error(err))
		return ExitError
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	return Execute(ctx, engine.Runner, tier, opts, stdout, log)
}

// Execute runs tier once through runner and writes the summary to stdout. A
// run skipped because the tier is already running counts as success.
func Execute(ctx context.Context, runner TierRunner, tier marketsync.Tier, opts *Options, stdout io.Writer, log *zap.Logger) int {
	summary, err := runner.Run(ctx, tier, scheduler.RunOptions{Marketplace: opts.Marketplace})
	switch {
	case errors.Is(err, marketsync.ErrTierAlreadyRunning):
		fmt.Fprintf(stdout, "%s tier is already running, nothing to do\n", tier)
		return ExitOK
	case err != nil:
		log.Error("Tier run failed", zap.String("tier", string(tier)), zap.Error(err))
		if summary != nil {
			WriteSummary(stdout, summary)
		}
		return ExitError
	}
	WriteSummary(stdout, summary)
	return ExitOK
}

// WriteSummary renders the per-marketplace counts of a run
func WriteSummary(w io.Writer, summary *scheduler.RunSummary) {
	fmt.Fprintf(w, "tier %s run %s: %s in %s\n", summary.Tier, summary.RunID, summary.Status,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Marketplace", "Processed", "Succeeded", "Failed", "Retried", "Released"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	var rows []appsync.MarketplaceCounts
	if summary.Items != nil {
		rows = summary.Items.Marketplaces()
	}
	for _, c := range rows {
		name := c.Marketplace
		if name == "" {
			name = "#" + strconv.FormatInt(c.MarketplaceID, 10)
		}
		table.Append([]string{name, itoa(c.Processed), itoa(c.Succeeded), itoa(c.Failed), itoa(c.Retried), itoa(c.Released)})
	}
	if len(rows) == 0 {
		table.Append([]string{"-", "0", "0", "0", "0", "0"})
	}
	table.Render()

	if d := summary.Discovered; d != nil {
		fmt.Fprintf(w, "discovered %d changes, enqueued %d, coalesced %d\n", d.Changes, d.Enqueued, d.Coalesced)
	}
	if summary.ReportLocation != "" {
		fmt.Fprintf(w, "daily report: %s\n", summary.ReportLocation)
	}
	for _, msg := range summary.TaskErrors {
		fmt.Fprintf(w, "task error: %s\n", msg)
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
