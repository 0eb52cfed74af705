package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pangancache/internal/config"
	"pangancache/internal/ingest"
	"pangancache/internal/model"
	"pangancache/internal/store"
	"pangancache/internal/store/sqlite"
	"pangancache/internal/upstream"
	"pangancache/internal/upstream/panelharga"
)

const dateLayout = "2006-01-02"

type options struct {
	StartYear   int
	EndYear     int
	PeriodStart string
	PeriodEnd   string
	LevelID     int
	ProvinceID  string
	DBPath      string
	Mock        bool
	DryRun      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ingest failed:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch one window of the monthly price feed and upsert it into the local store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().IntVar(&opts.StartYear, "start-year", now.Year(), "first year of the fetch window")
	cmd.Flags().IntVar(&opts.EndYear, "end-year", now.Year(), "last year of the fetch window")
	cmd.Flags().StringVar(&opts.PeriodStart, "period-start", monthStart.Format(dateLayout), "window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PeriodEnd, "period-end", monthEnd.Format(dateLayout), "window end (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.LevelID, "level", 3, "price level id (1-5)")
	cmd.Flags().StringVar(&opts.ProvinceID, "province", "", "province id (empty = national aggregation)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "sqlite database path (empty uses DATABASE_PATH)")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "use the canned offline payload instead of the network")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "run fetch/validate/normalize but skip persistence")

	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.Logger()

	periodStart, err := time.Parse(dateLayout, opts.PeriodStart)
	if err != nil {
		return fmt.Errorf("invalid --period-start: %w", err)
	}
	periodEnd, err := time.Parse(dateLayout, opts.PeriodEnd)
	if err != nil {
		return fmt.Errorf("invalid --period-end: %w", err)
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.DatabasePath
	}

	var st store.Store
	if opts.DryRun {
		st = &store.NopStore{}
	} else {
		sqliteStore, err := sqlite.New(dbPath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		st = sqliteStore
	}

	var client upstream.Client
	if opts.Mock || cfg.UpstreamMock {
		client = panelharga.NewMock()
	} else {
		client = panelharga.NewWithConfig(panelharga.Config{
			BaseURL:     cfg.UpstreamBaseURL,
			Timeout:     cfg.UpstreamTimeout,
			MaxAttempts: cfg.UpstreamMaxAttempts,
		})
	}

	params := model.FetchParams{
		StartYear:   opts.StartYear,
		EndYear:     opts.EndYear,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		LevelID:     opts.LevelID,
		ProvinceID:  opts.ProvinceID,
	}

	summary, err := ingest.New(client, st, log).Run(cmd.Context(), params, opts.DryRun)
	if err != nil {
		return err
	}

	if summary.DryRun {
		fmt.Printf("dry run: %d row(s) would be written\n", summary.TotalRows)
		return nil
	}
	fmt.Printf("ingest complete (rows=%d inserted=%d updated=%d unchanged=%d failed=%d took=%s)\n",
		summary.TotalRows, summary.Inserted, summary.Updated, summary.Unchanged, summary.Failed,
		summary.Timings.Total.Round(time.Millisecond),
	)
	return nil
}
