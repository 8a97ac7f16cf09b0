package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/carlosmarte/repometrics/internal/analysis"
	"github.com/carlosmarte/repometrics/internal/classifier"
	"github.com/carlosmarte/repometrics/internal/collector"
	"github.com/carlosmarte/repometrics/internal/config"
	"github.com/carlosmarte/repometrics/internal/domain"
	apperrors "github.com/carlosmarte/repometrics/internal/errors"
	"github.com/carlosmarte/repometrics/internal/storage"
	"github.com/carlosmarte/repometrics/internal/storage/postgres"
	"github.com/carlosmarte/repometrics/internal/storage/sqlite"
)

var (
	outputJSON  bool
	startDate   string
	endDate     string
	granularity string
	fetchLimit  int
	groupBy     string
	tableName   string
)

var rootCmd = &cobra.Command{
	Use:   "repometrics",
	Short: "Repository activity metrics tool",
	Long: `A CLI tool for collecting and analyzing repository activity.

It collects commits, pull requests and comments from GitHub, stores the
normalized records locally, and derives grouped statistics, period trends
and rule-based classifications from them.`,
}

var collectCmd = &cobra.Command{
	Use:   "collect [owner/repo]",
	Short: "Collect activity records from GitHub",
	Long:  `Collect commits, pull requests and comments for a repository and store them locally.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCollect,
}

var reportCmd = &cobra.Command{
	Use:   "report [owner/repo]",
	Short: "Show a derived activity report",
	Long:  `Derive grouped statistics, trends and classifications from stored records.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var runsCmd = &cobra.Command{
	Use:   "runs [owner/repo]",
	Short: "Show collection run history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&granularity, "granularity", "week", "time granularity (day, week, month)")

	collectCmd.Flags().IntVar(&fetchLimit, "limit", 0, "max records per record kind (overrides FETCH_LIMIT; -1 for unbounded)")
	reportCmd.Flags().StringVar(&groupBy, "group-by", "actor", "grouping key (actor, repo, kind, period)")
	reportCmd.Flags().StringVar(&tableName, "table", "", "restrict classification to one rule table")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func getTimeRange() domain.TimeRange {
	now := time.Now()
	start := now.AddDate(0, -1, 0)
	end := now

	if startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			start = t
		}
	}

	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			end = t
		}
	}

	return domain.TimeRange{
		Start:       start,
		End:         end,
		Granularity: granularity,
	}
}

func splitSource(arg string) (owner, repo string, err error) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/repo, got %q", arg)
	}
	return parts[0], parts[1], nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	owner, repo, err := splitSource(args[0])
	if err != nil {
		return err
	}
	source := owner + "/" + repo

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	timeRange := getTimeRange()

	limit := cfg.FetchLimit
	if cmd.Flags().Changed("limit") {
		limit = fetchLimit
	}

	fmt.Printf("Collecting activity for %s\n", source)
	fmt.Printf("Time range: %s to %s\n", timeRange.Start.Format("2006-01-02"), timeRange.End.Format("2006-01-02"))

	policy := collector.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.BackoffBase = cfg.BackoffBase

	src := collector.NewGitHubSource(cfg.GitHubToken)
	opts := collector.Options{
		Policy:         policy,
		PauseThreshold: cfg.RatePauseThreshold,
		AllowPartial:   cfg.AllowPartial,
		Logger:         log.New(os.Stderr, "", log.LstdFlags),
	}

	now := time.Now()
	run := &domain.CollectionRun{
		ID:        uuid.New().String(),
		Source:    source,
		StartDate: timeRange.Start,
		EndDate:   timeRange.End,
		Status:    "in_progress",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	records, collectErr := collector.CollectRepository(ctx, src, owner, repo, timeRange, opts, limit)
	if collectErr != nil && len(records) == 0 {
		run.Status = "failed"
		run.UpdatedAt = time.Now()
		_ = store.SaveRun(ctx, run)
		return fmt.Errorf("failed to collect data: %w", collectErr)
	}

	fmt.Printf("Collected %d records\n", len(records))

	if err := store.SaveRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	run.Records = len(records)
	run.Partial = collectErr != nil
	run.Status = "completed"
	if collectErr != nil {
		run.Status = "partial"
	}
	run.UpdatedAt = time.Now()
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if collectErr != nil {
		fmt.Printf("Warning: collection incomplete: %v\n", collectErr)
	}

	kinds := make(map[domain.Kind]int)
	for _, rec := range records {
		kinds[rec.Kind]++
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "Records"})
	for _, k := range []domain.Kind{domain.KindCommit, domain.KindPullRequest, domain.KindReview, domain.KindComment} {
		table.Append([]string{string(k), fmt.Sprintf("%d", kinds[k])})
	}
	table.Render()

	fmt.Println("Collection complete!")
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	owner, repo, err := splitSource(args[0])
	if err != nil {
		return err
	}
	source := owner + "/" + repo

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	timeRange := getTimeRange()

	records, err := store.GetRecords(ctx, source, "", timeRange)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	var keyFn analysis.KeyFunc
	switch groupBy {
	case "actor":
		keyFn = analysis.ByActor()
	case "repo":
		keyFn = analysis.ByRepo()
	case "kind":
		keyFn = analysis.ByKind()
	case "period":
		keyFn = analysis.ByPeriod(timeRange)
	default:
		return apperrors.NewBadRequestError("group-by must be one of: actor, repo, kind, period")
	}

	builtin := classifier.BuiltinTables()
	var tables []classifier.RuleTable
	if tableName != "" {
		t, ok := builtin[tableName]
		if !ok {
			return apperrors.NewBadRequestError("unknown rule table: " + tableName)
		}
		tables = []classifier.RuleTable{t}
	} else {
		for _, name := range []string{"inactivity", "sentiment", "automation"} {
			tables = append(tables, builtin[name])
		}
	}

	report := analysis.BuildReport(source, records, timeRange, []analysis.KeyFunc{keyFn}, tables)

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("\nActivity Report: %s\n", source)
	fmt.Printf("Time Range: %s to %s (%d records)\n\n",
		timeRange.Start.Format("2006-01-02"), timeRange.End.Format("2006-01-02"), report.RecordCount)

	renderGroups(report.Groups[keyFn.Name], keyFn.Name)
	renderTrends(report.Trends)
	renderCategories(report.CategoryCounts)

	return nil
}

func renderGroups(groups []analysis.GroupReport, name string) {
	if len(groups) == 0 {
		return
	}

	fmt.Printf("Grouped by %s:\n", name)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{name, "Records", "Commits", "PRs", "Reviews", "Comments"})
	for _, g := range groups {
		table.Append([]string{
			g.Key,
			fmt.Sprintf("%d", g.Count),
			fmt.Sprintf("%d", g.Kinds[domain.KindCommit]),
			fmt.Sprintf("%d", g.Kinds[domain.KindPullRequest]),
			fmt.Sprintf("%d", g.Kinds[domain.KindReview]),
			fmt.Sprintf("%d", g.Kinds[domain.KindComment]),
		})
	}
	table.Render()
	fmt.Println()
}

func renderTrends(trends map[string]analysis.Trend) {
	if len(trends) == 0 {
		return
	}

	names := make([]string, 0, len(trends))
	for name := range trends {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Trends:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Direction", "Slope"})
	for _, name := range names {
		t := trends[name]
		table.Append([]string{name, string(t.Direction), fmt.Sprintf("%.2f", t.Slope)})
	}
	table.Render()
	fmt.Println()
}

func renderCategories(counts map[string]map[string]int) {
	if len(counts) == 0 {
		return
	}

	tables := make([]string, 0, len(counts))
	for name := range counts {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	fmt.Println("Classifications:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Table", "Category", "Records"})
	for _, name := range tables {
		categories := make([]string, 0, len(counts[name]))
		for cat := range counts[name] {
			categories = append(categories, cat)
		}
		sort.Strings(categories)
		for _, cat := range categories {
			table.Append([]string{name, cat, fmt.Sprintf("%d", counts[name][cat])})
		}
	}
	table.Render()
}

func runRuns(cmd *cobra.Command, args []string) error {
	owner, repo, err := splitSource(args[0])
	if err != nil {
		return err
	}
	source := owner + "/" + repo

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	runs, err := store.GetRuns(context.Background(), source)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Start", "End", "Records", "Status", "Updated"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartDate.Format("2006-01-02"),
			r.EndDate.Format("2006-01-02"),
			fmt.Sprintf("%d", r.Records),
			r.Status,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()

	return nil
}
