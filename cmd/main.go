package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vehicle-insights/internal/api"
	"vehicle-insights/internal/config"
	"vehicle-insights/internal/db"
	"vehicle-insights/internal/insights"
	"vehicle-insights/internal/marketplace"
	"vehicle-insights/internal/models"
	"vehicle-insights/internal/parser"
	"vehicle-insights/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	dbPath   string
	envFile  string
	cfg      *config.Config
	logger   *slog.Logger
	database *db.Database
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vehicle-insights",
		Short: "Vehicle Insights - telemetry analysis and data marketplace backend",
		Long: `A CLI tool for generating, ingesting and analysing vehicle telemetry.
Produces cached AI driving insights through an OpenAI-compatible API,
local statistics without any API, and a browsable data marketplace,
with SQLite storage and REST API access.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv(envFile)

			c, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				c.Database.Path = dbPath
			}
			cfg = c
			logger = cfg.Log.NewLogger(os.Stderr)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "vehicle_insights.db", "Path to SQLite database")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config")

	// Add commands
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(listingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initDB initializes database connection
func initDB() error {
	var err error
	database, err = db.New(cfg.Database.Path)
	return err
}

// newInsights wires the analysis client, cache and retry policy. A
// missing API key leaves the provider nil so requests report it.
func newInsights(store insights.HistoryStore) (*insights.Service, *insights.Advisor) {
	ic := cfg.Insights

	var provider insights.AnalysisProvider
	var completer insights.Completer
	client, err := insights.NewGroqClient(insights.GroqConfig{
		APIKey:    ic.APIKey,
		BaseURL:   ic.BaseURL,
		Model:     ic.Model,
		MaxTokens: ic.MaxTokens,
		Timeout:   ic.RequestTimeout,
	}, nil)
	if err != nil {
		logger.Warn("AI insights disabled", "error", err)
	} else {
		provider, completer = client, client
	}

	var cache insights.Cache = insights.NewMemoryCache(ic.CacheTTL, nil)
	if store != nil {
		cache = insights.NewPersistentCache(cache, store, logger)
	}

	svc := insights.NewService(insights.Config{
		Provider: provider,
		Cache:    cache,
		Retry: insights.RetryPolicy{
			MaxAttempts: ic.MaxAttempts,
			Backoff:     insights.LinearBackoff(ic.RetryDelay),
			Sleep:       insights.SleepContext,
		},
		ModelName:    ic.ModelName,
		ModelVersion: ic.ModelVersion,
	}, logger)

	return svc, insights.NewAdvisor(completer, logger)
}

// serverCmd starts the REST API server
func serverCmd() *cobra.Command {
	var port int
	var seed int64

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			svc, advisor := newInsights(database)
			gen := telemetry.NewGenerator(seed, nil)

			server := api.NewServer(api.Deps{
				DB:             database,
				Insights:       svc,
				Advisor:        advisor,
				Generator:      gen,
				Listings:       marketplace.Generate(gen, marketplace.DefaultListingCount, time.Now()),
				AnalysisWindow: cfg.Insights.HistoryDays * 24,
			}, logger)

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()

			logger.Info("Vehicle Insights API listening",
				"addr", httpServer.Addr, "database", cfg.Database.Path,
				"model", cfg.Insights.Model,
			)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed for generated data")
	return cmd
}

// generateCmd generates sample telemetry history
func generateCmd() *cobra.Command {
	var days int
	var seed int64
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate hourly sample telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			records := telemetry.NewGenerator(seed, nil).History(days)

			start := time.Now()
			inserted, err := database.InsertTelemetryBatch(records)
			if err != nil {
				return fmt.Errorf("insert error: %w", err)
			}
			elapsed := time.Since(start)
			fmt.Printf("✓ Generated %d telemetry records in %v (%.0f records/sec)\n",
				inserted, elapsed, float64(inserted)/elapsed.Seconds())

			// Export to file if requested
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("error creating output file: %w", err)
				}
				defer file.Close()

				enc := json.NewEncoder(file)
				enc.SetIndent("", "  ")
				if err := enc.Encode(records); err != nil {
					return err
				}
				fmt.Printf("Data exported to %s\n", output)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 7, "Days of hourly history to generate")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export generated data to JSON file")
	return cmd
}

// ingestCmd ingests telemetry data from files
func ingestCmd() *cobra.Command {
	var format string
	var validate bool

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest telemetry data from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			p := parser.NewParser(format, logger)
			totalRecords := 0
			totalErrors := 0

			for _, file := range args {
				fmt.Printf("Processing %s...\n", file)
				start := time.Now()

				records, err := p.ParseFile(file)
				if err != nil {
					fmt.Printf("  Error: %v\n", err)
					totalErrors++
					continue
				}

				if validate {
					valid := records[:0]
					for i := range records {
						if errs := parser.ValidateTelemetry(&records[i]); len(errs) == 0 {
							valid = append(valid, records[i])
						} else {
							logger.Debug("Rejected record", "file", file, "id", records[i].ID, "errors", errs)
							totalErrors++
						}
					}
					records = valid
				}

				count, err := database.InsertTelemetryBatch(records)
				if err != nil {
					fmt.Printf("  Database error: %v\n", err)
					continue
				}

				elapsed := time.Since(start)
				fmt.Printf("  ✓ Inserted %d records in %v (%.0f records/sec)\n",
					count, elapsed, float64(count)/elapsed.Seconds())
				totalRecords += int(count)
			}

			fmt.Printf("\nTotal: %d records ingested", totalRecords)
			if totalErrors > 0 {
				fmt.Printf(", %d errors", totalErrors)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "File format (csv, json, log)")
	cmd.Flags().BoolVarP(&validate, "validate", "v", true, "Validate records before inserting")
	return cmd
}

// queryCmd queries telemetry data
func queryCmd() *cobra.Command {
	var startTime, endTime string
	var minSpeed, maxSpeed float64
	var errorsOnly bool
	var limit int
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query telemetry data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			q := models.TelemetryQuery{
				MinSpeed:   minSpeed,
				MaxSpeed:   maxSpeed,
				ErrorsOnly: errorsOnly,
				Limit:      limit,
			}

			if startTime != "" {
				t, err := time.Parse(time.RFC3339, startTime)
				if err != nil {
					return fmt.Errorf("invalid start_time format (use RFC3339): %w", err)
				}
				q.StartTime = t
			}

			if endTime != "" {
				t, err := time.Parse(time.RFC3339, endTime)
				if err != nil {
					return fmt.Errorf("invalid end_time format (use RFC3339): %w", err)
				}
				q.EndTime = t
			}

			start := time.Now()
			results, err := database.QueryTelemetry(q)
			if err != nil {
				return fmt.Errorf("query error: %w", err)
			}
			elapsed := time.Since(start)

			switch outputFormat {
			case "json":
				return printJSON(results)
			default:
				fmt.Printf("Found %d records (query time: %v)\n\n", len(results), elapsed)
				for _, r := range results {
					fmt.Printf("[%s] Pos: %.4f,%.4f | Speed: %.1f mph | RPM: %d | Fuel: %.1f%% | MPG: %.1f\n",
						r.Timestamp.Format("2006-01-02 15:04:05"),
						r.Location.Latitude, r.Location.Longitude,
						r.Speed, r.RPM, r.FuelLevel, r.FuelEfficiency)
					if r.Diagnostics.HasError {
						fmt.Printf("     ⚠️  Diagnostic: %s %s\n",
							r.Diagnostics.ErrorCode, r.Diagnostics.ErrorDescription)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&startTime, "start", "s", "", "Start time (RFC3339)")
	cmd.Flags().StringVarP(&endTime, "end", "e", "", "End time (RFC3339)")
	cmd.Flags().Float64Var(&minSpeed, "min-speed", 0, "Minimum speed")
	cmd.Flags().Float64Var(&maxSpeed, "max-speed", 0, "Maximum speed")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Only records with a diagnostic code")
	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum records to return")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// statsCmd shows database statistics
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetStats()
			if err != nil {
				return fmt.Errorf("error getting stats: %w", err)
			}

			fmt.Println("📊 Vehicle Insights Statistics")
			fmt.Println("==============================")
			fmt.Printf("  Telemetry Records:  %d\n", stats.TelemetryRecords)
			fmt.Printf("  Diagnostic Alerts:  %d\n", stats.DiagnosticAlerts)
			fmt.Printf("  Insight Reports:    %d\n", stats.InsightReports)
			fmt.Printf("  Database:           %s\n", cfg.Database.Path)

			return nil
		},
	}
}

// insightsCmd analyses a telemetry file, the stored history or, when
// the database is empty, freshly generated history.
func insightsCmd() *cobra.Command {
	var file, format, output string
	var local bool
	var seed int64

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Generate driving insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			records, err := loadRecords(file, format, seed)
			if err != nil {
				return err
			}

			if local {
				report, err := insights.Local(records)
				if err != nil {
					return err
				}
				return printJSON(report)
			}

			svc, _ := newInsights(database)
			report, err := svc.Generate(cmd.Context(), records)
			if err != nil {
				return err
			}
			if report.Stale {
				logger.Warn("Analysis failed, showing the last successful report",
					"generated_at", report.GeneratedAt)
			}

			switch output {
			case "json":
				return printJSON(report)
			case "html":
				fmt.Println(report.SummaryHTML)
			default:
				fmt.Println(report.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Telemetry file to analyse instead of the database")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "File format (csv, json, log)")
	cmd.Flags().BoolVar(&local, "local", false, "Compute local statistics without calling the API")
	cmd.Flags().StringVarP(&output, "output", "o", "markdown", "Output format (markdown, html, json)")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed when generating history")
	return cmd
}

func loadRecords(file, format string, seed int64) ([]models.TelemetryRecord, error) {
	if file != "" {
		return parser.NewParser(format, logger).ParseFile(file)
	}

	records, err := database.QueryTelemetry(models.TelemetryQuery{Limit: cfg.Insights.HistoryDays * 24})
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	if len(records) > 0 {
		return records, nil
	}

	logger.Info("No stored telemetry, generating history", "days", cfg.Insights.HistoryDays)
	return telemetry.NewGenerator(seed, nil).History(cfg.Insights.HistoryDays), nil
}

// listingsCmd browses a generated marketplace
func listingsCmd() *cobra.Command {
	var count int
	var seed int64
	var q marketplace.Query
	var order string
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Browse marketplace listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Ascending = order == "asc"
			if err := q.Validate(); err != nil {
				return err
			}

			gen := telemetry.NewGenerator(seed, nil)
			results := marketplace.Apply(marketplace.Generate(gen, count, time.Now()), q)

			if outputFormat == "json" {
				return printJSON(results)
			}

			fmt.Printf("%-12s %-14s %-12s %8s %6s %7s  %s\n",
				"ID", "Seller", "Type", "Price", "Rating", "Reviews", "Listed")
			for _, l := range results {
				fmt.Printf("%-12s %-14s %-12s %8.2f %6d %7d  %s\n",
					l.ID, l.Seller, l.DataType, l.Price, l.Rating, l.Reviews,
					l.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", marketplace.DefaultListingCount, "Number of listings to generate")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	cmd.Flags().StringVar(&q.Search, "search", "", "Substring of the data type")
	cmd.Flags().StringVar(&q.Category, "category", "", "Exact data type")
	cmd.Flags().StringVar(&q.SortBy, "sort", "", "Sort by price, date or rating")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order (asc, desc)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
