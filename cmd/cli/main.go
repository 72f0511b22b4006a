package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	bq "github.com/dvloznov/console-reconciler/internal/bigquery"
	"github.com/dvloznov/console-reconciler/internal/config"
	"github.com/dvloznov/console-reconciler/internal/derive"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/extract"
	"github.com/dvloznov/console-reconciler/internal/gcsuploader"
	infraBQ "github.com/dvloznov/console-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/console-reconciler/internal/jobs"
	"github.com/dvloznov/console-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/pipeline"
	"github.com/dvloznov/console-reconciler/internal/provision"
	"github.com/dvloznov/console-reconciler/internal/replay"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	switch os.Args[1] {
	case "extract":
		runExtract(log, cfg)
	case "derive":
		runDerive(log, cfg)
	case "replay":
		runReplay(log, cfg)
	case "provision":
		runProvision(log, cfg)
	case "runs":
		runRuns(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Console Reconciler CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract    Walk the transaction grid and write the per-gateway report")
	fmt.Println("  derive     Print the tax records derived from one or more reports")
	fmt.Println("  replay     Derive tax records from reports and enter them in the console")
	fmt.Println("  provision  Create players from a player list file")
	fmt.Println("  runs       List recent extraction runs from the ledger")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runExtract(log zerolog.Logger, cfg *config.Config) {
	fs := newFlagSet("extract", cfg)
	labelName := fs.String("label", "", "Report label: depo or wd")
	outDir := fs.String("out", cfg.ReportDir, "Directory the report is written to")
	statusFilter := fs.Bool("status-filter", true, "Filter the grid to approved transactions first")
	pause := fs.Bool("pause", false, "Wait for Enter before extracting, e.g. to set date filters by hand")
	timeout := fs.Duration("timeout", 30*time.Minute, "Overall time limit")
	fs.Parse(os.Args[2:])

	label := mustLabel(log, *labelName)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s := mustAttach(ctx, log, cfg)
	defer s.close()

	if *pause {
		waitForOperator("Set up the transaction grid in the browser, then press Enter to start.")
	}

	runs, closeRuns := runRepository(ctx, log, cfg)
	defer closeRuns()

	var storage pipeline.StorageService
	if cfg.ReportBucket != "" {
		storage = gcsuploader.NewGCSStorageService()
	}

	p := pipeline.NewExtractionPipeline(pipeline.ExtractionDeps{
		Extractor:    extract.New(s.con, extract.OptionsFromProfile(s.profile, cfg.Waits)),
		Runs:         runs,
		Storage:      storage,
		Bucket:       cfg.ReportBucket,
		ReportDir:    *outDir,
		StatusFilter: *statusFilter,
	})

	state := &pipeline.PipelineState{Label: label}
	if err := p.Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Str("run_id", state.RunID).Msg("extraction failed")
	}

	fmt.Printf("Report written to %s\n", state.ReportPath)
	if state.ReportURI != "" {
		fmt.Printf("Archived at %s\n", state.ReportURI)
	}
	fmt.Printf("Records: %d  Duplicates: %d  Missing keys: %d  Gateways: %d\n",
		state.Session.Len(), state.Session.DuplicateCount, state.Session.MissingKeyCount, len(state.Aggregates))
}

func runDerive(log zerolog.Logger, cfg *config.Config) {
	fs := newFlagSet("derive", cfg)
	labelName := fs.String("label", "", "Expected label for every report (default: from the file name)")
	fs.Parse(os.Args[2:])

	sources := mustSources(log, fs.Args(), *labelName)

	ctx := logger.WithContext(context.Background(), log)

	reader := derive.Reader{Fetcher: gcsuploader.NewGCSStorageService()}
	recs, err := reader.FromSources(ctx, sources)
	if err != nil {
		log.Fatal().Err(err).Msg("derive failed")
	}

	for _, r := range recs {
		fmt.Printf("%-22s %-4s %s %s:%s %12s  %-34s %s\n",
			r.Gateway, r.SourceLabel.Code(),
			r.ScheduledDatetime.Format("2006-01-02"), r.Hour, r.Minute,
			r.Amount.StringFixed(2), r.BankReference, r.OrderIDTag)
	}
	fmt.Printf("%d tax records\n", len(recs))
}

func runReplay(log zerolog.Logger, cfg *config.Config) {
	fs := newFlagSet("replay", cfg)
	labelName := fs.String("label", "", "Expected label for every report (default: from the file name)")
	force := fs.Bool("force", false, "Replay records the ledger already has")
	timeout := fs.Duration("timeout", 2*time.Hour, "Overall time limit")
	fs.Parse(os.Args[2:])

	sources := mustSources(log, fs.Args(), *labelName)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s := mustAttach(ctx, log, cfg)
	defer s.close()

	var ledger bq.ReplayLedger = bq.NewMemoryLedger()
	if cfg.LedgerEnabled() {
		l, err := infraBQ.NewBigQueryReplayLedger(ctx, ledgerDataset(cfg))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open replay ledger")
		}
		defer l.Close()
		ledger = l
	} else {
		log.Warn().Msg("GCP_PROJECT_ID not set, replay ledger lives only for this run")
	}

	store := inmemory.NewStore()
	driver := replay.New(s.con, replay.Options{ModalWait: cfg.Waits.Modal, PageWait: cfg.Waits.Page})

	p := pipeline.NewReplayPipeline(
		derive.Reader{Fetcher: gcsuploader.NewGCSStorageService()},
		&replay.Batch{Replayer: driver, Ledger: ledger, Jobs: store, Force: *force},
	)

	state := &pipeline.PipelineState{Sources: sources}
	err := p.Execute(ctx, state)

	res := state.Replay
	fmt.Printf("Replay run %s: %d replayed, %d unverified, %d skipped, %d failed\n",
		res.RunID, res.Replayed, res.Unverified, res.Skipped, res.Failed)
	for _, e := range res.Errors {
		fmt.Printf("  %v\n", e)
	}
	printJobSummary(ctx, store)

	if err != nil {
		log.Fatal().Err(err).Msg("replay interrupted")
	}
}

func runProvision(log zerolog.Logger, cfg *config.Config) {
	fs := newFlagSet("provision", cfg)
	filePath := fs.String("file", "", "Player list file")
	timeout := fs.Duration("timeout", time.Hour, "Overall time limit")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open player list")
	}
	players, err := provision.ParsePlayerRecords(ctx, f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read player list")
	}
	if len(players) == 0 {
		fmt.Println("No players to provision.")
		return
	}

	s := mustAttach(ctx, log, cfg)
	defer s.close()

	store := inmemory.NewStore()
	res, err := provision.New(s.con, cfg.Waits.Overlay, store).Run(ctx, players)

	fmt.Printf("Players: %d submitted, %d failed\n", res.Submitted, res.Failed)
	for _, e := range res.Errors {
		fmt.Printf("  %v\n", e)
	}
	printJobSummary(ctx, store)

	if err != nil {
		log.Fatal().Err(err).Msg("provisioning interrupted")
	}
}

func runRuns(log zerolog.Logger, cfg *config.Config) {
	fs := newFlagSet("runs", cfg)
	limit := fs.Int("limit", 20, "Number of runs to list")
	fs.Parse(os.Args[2:])

	if !cfg.LedgerEnabled() {
		log.Fatal().Msg("Error: GCP_PROJECT_ID is required to list runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewBigQueryRunRepository(ctx, ledgerDataset(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open run ledger")
	}
	defer repo.Close()

	rows, err := repo.ListRecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list runs")
	}

	for _, r := range rows {
		fmt.Printf("%s  %-4s  %-8s  %s  records=%d dup=%d gateways=%d  %s\n",
			r.RunID, r.Label, r.Status, r.StartedTS.Format(time.RFC3339),
			r.RecordCount.Int64, r.DuplicateCount.Int64, r.GatewayCount.Int64,
			r.ReportURI.StringVal)
		if r.ErrorMessage.Valid {
			fmt.Printf("    error: %s\n", r.ErrorMessage.StringVal)
		}
	}
}

func mustLabel(log zerolog.Logger, name string) domain.Label {
	if name == "" {
		log.Fatal().Msg("Error: -label is required (depo or wd)")
	}
	label, err := domain.ParseLabel(name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid label")
	}
	return label
}

// mustSources builds report sources from positional arguments.
func mustSources(log zerolog.Logger, args []string, labelName string) []derive.Source {
	if len(args) == 0 {
		log.Fatal().Msg("Error: at least one report path or gs:// URI is required")
	}
	var label domain.Label
	if labelName != "" {
		label = mustLabel(log, labelName)
	}
	sources := make([]derive.Source, 0, len(args))
	for _, a := range args {
		sources = append(sources, derive.Source{Location: a, Label: label})
	}
	return sources
}

func runRepository(ctx context.Context, log zerolog.Logger, cfg *config.Config) (pipeline.RunRepository, func()) {
	if !cfg.LedgerEnabled() {
		return bq.LogRunRepository{}, func() {}
	}
	repo, err := infraBQ.NewBigQueryRunRepository(ctx, ledgerDataset(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open run ledger")
	}
	return repo, func() { repo.Close() }
}

func ledgerDataset(cfg *config.Config) infraBQ.Dataset {
	return infraBQ.Dataset{ProjectID: cfg.ProjectID, DatasetID: cfg.LedgerDataset}
}

func printJobSummary(ctx context.Context, store jobs.JobStore) {
	list, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil || len(list) == 0 {
		return
	}
	summary := jobs.Summarize(list)
	statuses := make([]string, 0, len(summary))
	for status, n := range summary {
		statuses = append(statuses, fmt.Sprintf("%s=%d", status, n))
	}
	sort.Strings(statuses)
	fmt.Printf("Jobs: %s\n", strings.Join(statuses, " "))
}

func waitForOperator(prompt string) {
	fmt.Println(prompt)
	bufio.NewReader(os.Stdin).ReadString('\n')
}
