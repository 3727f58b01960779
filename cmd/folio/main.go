package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaille/folio/internal/api"
	"github.com/pbaille/folio/internal/assethost"
	"github.com/pbaille/folio/internal/classifier"
	"github.com/pbaille/folio/internal/config"
	"github.com/pbaille/folio/internal/drive"
	"github.com/pbaille/folio/internal/logging"
	"github.com/pbaille/folio/internal/pipeline"
	"github.com/pbaille/folio/internal/prune"
	"github.com/pbaille/folio/internal/state"
	"github.com/pbaille/folio/internal/store"
)

var (
	cfg      *config.Config
	logLevel string
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := syncCmd()
	rootCmd.PersistentFlags().StringVar(&cfg.JournalPath, "db", cfg.JournalPath, "run journal path")
	rootCmd.PersistentFlags().StringVar(&cfg.ContentDir, "content-dir", cfg.ContentDir, "output and state directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg.LogLevel = logLevel
		return logging.Init(logging.Config{
			Level:      cfg.LogLevel,
			Format:     cfg.LogFormat,
			OutputPath: cfg.LogOutput,
		})
	}

	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(serveCmd())

	err = rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	return store.New(cfg.JournalPath)
}

func syncCmd() *cobra.Command {
	var forceDelete bool

	cmd := &cobra.Command{
		Use:           "folio",
		Short:         "Sync portfolio content from Drive to the asset host",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, closeAll, err := buildPipeline(ctx)
			if err != nil {
				logging.Error("startup failed", logging.Err(err))
				return err
			}
			defer closeAll()

			report, err := p.Run(ctx, pipeline.RunOptions{ForceDelete: forceDelete})
			var abort *prune.AbortError
			if errors.As(err, &abort) {
				logging.Error("safety abort", logging.Int("orphans", len(abort.Orphans)), logging.Int("threshold", abort.Threshold))
				fmt.Fprintf(os.Stderr, "\n--- SAFETY ABORT ---\n%s", abort.Report())
				return err
			}
			if err != nil {
				logging.Error("sync failed", logging.Err(err))
				return err
			}

			printReport(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceDelete, strings.TrimPrefix(prune.ForceFlag, "--"), false,
		"prune orphaned assets even past the safety threshold")
	return cmd
}

// buildPipeline constructs every client once and injects them
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	if err := cfg.ValidateSync(); err != nil {
		return nil, nil, err
	}

	var secrets drive.SecretsAPI
	if cfg.ServiceAccountJSON == "" && cfg.ServiceAccountARN != "" {
		client, err := drive.NewSecretsClient(ctx, cfg.S3Region)
		if err != nil {
			return nil, nil, err
		}
		secrets = client
	}
	creds, err := drive.ResolveCredentials(ctx, cfg, secrets)
	if err != nil {
		return nil, nil, err
	}

	svc, err := drive.NewService(ctx, creds)
	if err != nil {
		return nil, nil, err
	}

	host, err := assethost.NewS3(ctx, assethost.Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.AssetBucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.AssetPublicURL,
	})
	if err != nil {
		return nil, nil, err
	}

	clf := classifier.New(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	if !clf.Enabled() {
		logging.Warn("ANTHROPIC_API_KEY not set, layouts and narratives use fallbacks")
	}

	docs, err := state.NewOS(cfg.ContentDir)
	if err != nil {
		return nil, nil, err
	}

	deps := pipeline.Deps{
		Reader:     drive.NewReader(svc, cfg.ExportFormat, cfg.CrawlConcurrency),
		Source:     svc,
		Host:       host,
		Structurer: clf,
		State:      docs,
	}
	// A sync still runs without the journal
	closeAll := func() {}
	if journal, err := getStore(); err != nil {
		logging.Warn("run journal unavailable", logging.String("path", cfg.JournalPath), logging.Err(err))
	} else {
		deps.Journal = journal
		closeAll = func() { journal.Close() }
	}

	p := pipeline.New(deps, pipeline.Settings{
		RootID:         cfg.DriveFolderID,
		AssetPrefix:    cfg.AssetPrefix,
		ErrorLogName:   cfg.ErrorLogPath,
		SiteHeader:     cfg.SiteHeader,
		IntroDocName:   cfg.IntroDocName,
		PruneThreshold: cfg.PruneThreshold,
		Concurrency:    cfg.CrawlConcurrency,
		PushgatewayURL: cfg.PushgatewayURL,
	})
	return p, closeAll, nil
}

func printReport(r *pipeline.Report) {
	if r.Empty {
		fmt.Println("No content found in the Drive folder. Nothing to do.")
		return
	}
	if r.RunID != "" {
		fmt.Printf("Run:        %s\n", r.RunID[:8])
	}
	fmt.Printf("Assets:     %d uploaded, %d reused, %d failed, %d skipped\n",
		r.Assets.Uploaded, r.Assets.Reused, r.Assets.Failed, r.Assets.SkippedFailed)
	fmt.Printf("Pruned:     %d deleted, %d dropped, %d failed\n",
		r.Prune.Deleted, r.Prune.Dropped, r.Prune.DeleteFailed)
	fmt.Printf("Layouts:    %d cached, %d generated\n", r.Layouts.Hits, r.Layouts.Misses)
	fmt.Printf("Narratives: %d cached, %d generated\n", r.Narratives.Hits, r.Narratives.Misses)
	fmt.Printf("Generative: %d calls, %d fallbacks\n", r.Generative.Calls, r.Generative.Fallbacks)
	fmt.Printf("Duration:   %s\n", r.Duration.Round(time.Millisecond))
	if r.Failures > 0 {
		fmt.Printf("\n--- Some assets failed to upload. Check %s for details. ---\n",
			filepath.Join(cfg.ContentDir, cfg.ErrorLogPath))
	}
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Println("No runs yet. Run 'folio' to sync.")
				return nil
			}

			for _, r := range runs {
				c := r.Counters
				fmt.Printf("%s  %s  %-8s  +%d ~%d !%d -%d\n",
					r.ID[:8], r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
					c.Uploaded, c.Reused, c.Failed, c.Pruned)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.GetRun(args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("run not found: %s", args[0])
			}
			if err != nil {
				return err
			}

			c := r.Counters
			fmt.Printf("ID:         %s\n", r.ID)
			fmt.Printf("Status:     %s\n", r.Status)
			fmt.Printf("Started:    %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
			if r.FinishedAt != nil {
				fmt.Printf("Finished:   %s (%s)\n", r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			if r.LastFetch != "" {
				fmt.Printf("Previous:   %s\n", r.LastFetch)
			}
			fmt.Printf("Assets:     %d uploaded, %d reused, %d failed, %d skipped\n",
				c.Uploaded, c.Reused, c.Failed, c.SkippedFailed)
			fmt.Printf("Pruned:     %d deleted, %d dropped, %d failed\n", c.Pruned, c.PruneDropped, c.PruneFailed)
			fmt.Printf("Layouts:    %d cached, %d generated\n", c.LayoutHits, c.LayoutMisses)
			fmt.Printf("Narratives: %d cached, %d generated\n", c.NarrativeHits, c.NarrativeMisses)
			fmt.Printf("Generative: %d calls, %d fallbacks\n", c.GenerativeCalls, c.Fallbacks)
			if r.Error != "" {
				fmt.Printf("\nError:\n%s\n", r.Error)
			}

			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve generated content and run history read-only",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			// Note: don't defer s.Close() as server runs indefinitely

			docs, err := state.NewOS(cfg.ContentDir)
			if err != nil {
				return err
			}

			server := api.New(docs, s, addr)
			return server.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "server address")
	return cmd
}
