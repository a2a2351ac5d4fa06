package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/newsreel/newsreel/internal/archive"
	"github.com/newsreel/newsreel/internal/breaking"
	"github.com/newsreel/newsreel/internal/config"
	"github.com/newsreel/newsreel/internal/pipeline"
	"github.com/newsreel/newsreel/internal/server"
	"github.com/newsreel/newsreel/internal/state"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsreel",
	Short:   "Automated news videos",
	Long:    "Newsreel selects global news stories and turns them into narrated, subtitled videos: daily shorts, weekly roundups, and breaking-news alerts.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API keys may live in a local .env; missing files are fine.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsreel", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsreel/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds and models, and set OPENAI_API_KEY in the environment or a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive and state status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.TotalRuns)
		fmt.Printf("  Completed: %d\n", stats.CompletedRuns)
		fmt.Printf("  Failed: %d\n", stats.FailedRuns)
		fmt.Println("\nOutput:")
		fmt.Printf("  Stories archived: %d\n", stats.TotalArticles)
		fmt.Printf("  Videos rendered: %d\n", stats.TotalVideos)

		fmt.Println("\nState:")
		dataDir := cfg.GetDataDir()
		for _, kind := range []string{pipeline.KindDaily, pipeline.KindWeekly, pipeline.KindBreaking} {
			used, err := state.LoadUsedSet(filepath.Join(dataDir, "used_"+kind+".json"), state.DefaultMaxUsed)
			if err != nil {
				fmt.Printf("  %s used set: unreadable (%v)\n", kind, err)
				continue
			}
			fmt.Printf("  %s used set: %d identities\n", kind, used.Len())
		}
		if counter, err := state.LoadDailyCounter(filepath.Join(dataDir, "breaking_counts.json")); err == nil {
			fmt.Printf("  breaking slots used today: %d of %d\n",
				counter.CountFor(time.Now()), cfg.Breaking.MaxPerDay)
		}

		recent, err := db.RecentRuns(5)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(recent) > 0 {
			fmt.Println("\nRecent runs:")
			for _, run := range recent {
				fmt.Printf("  %s  %-8s %-9s %d stories\n", run.StartedAt, run.Kind, run.Status, run.StoryCount)
			}
		}
		return nil
	},
}

// --- run command ---

var (
	runType   string
	runCount  int
	runSource string
	runOutput string
	dryRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Produce a video: select -> images -> narrate -> speak -> render -> subtitle -> publish -> archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch runType {
		case pipeline.KindDaily, pipeline.KindWeekly, pipeline.KindBreaking:
		default:
			return fmt.Errorf("invalid --type %q (want daily, weekly, or breaking)", runType)
		}
		if err := applyOverrides(); err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(runType)
		} else {
			result = pipe.Run(context.Background(), runType)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if err := result.Err(); err != nil {
			return fmt.Errorf("%s run failed: %w", runType, err)
		}
		if !dryRun && result.Video != "" {
			fmt.Printf("\nDone: %s\n", result.Video)
			fmt.Println("Run 'newsreel serve' to browse run reports.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runType, "type", "t", "daily", "Run type: daily, weekly, or breaking")
	runCmd.Flags().IntVar(&runCount, "count", 0, "Override the story count for this run")
	runCmd.Flags().StringVar(&runSource, "source", "", "Override the article source: rss or api")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Override the output directory")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// applyOverrides folds the run flags into the loaded config.
func applyOverrides() error {
	if runCount > 0 {
		switch runType {
		case pipeline.KindDaily:
			cfg.Selection.DailyCount = runCount
		case pipeline.KindWeekly:
			cfg.Selection.WeeklyCount = runCount
		default:
			log.Println("Ignoring --count: a breaking run always covers one story")
		}
	}
	if runSource != "" {
		if runSource != "rss" && runSource != "api" {
			return fmt.Errorf("invalid --source %q (want rss or api)", runSource)
		}
		cfg.Sources.Mode = runSource
	}
	if runOutput != "" {
		cfg.Output.OutputDir = runOutput
	}
	return nil
}

// --- scan command ---

var scanDryRun bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check for corroborated breaking news without producing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		cand, err := pipe.Scan(context.Background(), !scanDryRun)
		if errors.Is(err, breaking.ErrQuotaExhausted) {
			fmt.Println("Daily breaking quota is exhausted; a breaking run would do nothing today.")
			return nil
		}
		if err != nil {
			return err
		}
		if cand == nil {
			fmt.Println("No corroborated breaking story right now.")
			return nil
		}

		fmt.Printf("Breaking: %s\n", cand.Article.Title)
		fmt.Printf("  Corroborated by %d sources: %s\n", len(cand.Sources), strings.Join(cand.Sources, ", "))
		fmt.Printf("  Lead article: %s\n", cand.Article.Link)
		if cand.Detail != nil && cand.Detail.Text != "" {
			fmt.Printf("  Page text: %d characters extracted\n", len(cand.Detail.Text))
		}
		fmt.Println("\nNothing was consumed; 'newsreel run --type breaking' will pick this up.")
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "Skip LLM verification and page fetch; corroboration counting only")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server for run reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*archive.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "newsreel.db")
	return archive.Open(dbPath)
}
