package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spendlens/internal/anomaly"
	"spendlens/internal/cli"
	"spendlens/internal/config"
	"spendlens/internal/core"
	"spendlens/internal/ingest"
	"spendlens/internal/services"
	"spendlens/internal/sheets"
)

const maxPrintedMatches = 20

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	store := cli.OpenStore(logger, cfg)
	rs := cli.LoadRules(logger, cfg)
	publisher := cli.NewPublisher(logger, cfg)

	svc := services.NewIntelligence(store, publisher, rs, services.Options{
		ModelPath:  cfg.ModelPath,
		MinSamples: cfg.MinTrainingSamples,
		Sigma:      cfg.AnomalySigma,
	})

	ctx := context.Background()

	var err error
	switch command {
	case "ingest":
		err = runIngest(ctx, svc, cfg, args)
	case "categorize":
		err = runCategorize(ctx, svc, args)
	case "ask":
		err = runAsk(ctx, svc, args)
	case "anomalies":
		err = runAnomalies(ctx, svc, args)
	case "insights":
		err = runInsights(ctx, svc, args)
	case "datasets":
		err = runDatasets(ctx, svc, args)
	case "train":
		err = runTrain(ctx, svc, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	code := 0
	if err != nil {
		reportError(command, err)
		code = 1
	}
	if cerr := svc.Close(); cerr != nil {
		logger.Error("Failed to close cleanly", "error", cerr)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: spendlens <command> [flags]

Commands:
  ingest      store CSV files or the configured spreadsheet as a snapshot
  categorize  fill unknown categories using the trained model
  ask         answer a plain-language question about expenses
  anomalies   flag expenses that stand out from their partition
  insights    print descriptive statistics for a snapshot
  datasets    list, inspect or delete snapshots
  train       train the categorization model

Run "spendlens <command> -h" for command flags.
`)
}

// reportError prints actionable advice for the recoverable failures and
// leaves everything else to the log.
func reportError(command string, err error) {
	var insufficient core.InsufficientDataError
	var missing core.MissingColumnError
	switch {
	case errors.As(err, &insufficient):
		fmt.Fprintf(os.Stderr, "Not enough labeled expenses to train: have %d, need %d. Ingest more labeled data first.\n",
			insufficient.Got, insufficient.Need)
	case errors.As(err, &missing):
		fmt.Fprintf(os.Stderr, "Input is missing a %s column; nothing was stored.\n", missing.Field)
	case errors.Is(err, core.ErrModelNotTrained):
		fmt.Fprintln(os.Stderr, `No trained model found. Run "spendlens train" first.`)
	case errors.Is(err, core.ErrDatasetNotFound):
		fmt.Fprintln(os.Stderr, `Dataset not found. Run "spendlens datasets" to list snapshots.`)
	default:
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
	}
}

func runIngest(ctx context.Context, svc *services.Intelligence, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	name := fs.String("name", "", "dataset name (defaults to the first file's base name)")
	fromSheet := fs.Bool("sheet", false, "read the configured Google spreadsheet instead of CSV files")
	fs.Parse(args)

	var (
		ds  *core.Dataset
		rep ingest.Report
		err error
	)
	if *fromSheet {
		if cfg.SheetsSpreadsheetID == "" {
			return errors.New("no spreadsheet configured (set SHEETS_SPREADSHEET_ID)")
		}
		client, cerr := sheets.NewClient(ctx, sheets.Options{
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			ReadRange:       cfg.SheetsReadRange,
		})
		if cerr != nil {
			return cerr
		}
		table, ferr := client.FetchTable(ctx)
		if ferr != nil {
			return ferr
		}
		if *name == "" {
			*name = "sheet"
		}
		ds, rep, err = svc.IngestTable(ctx, *name, table)
	} else {
		files := fs.Args()
		if len(files) == 0 {
			return errors.New("ingest requires at least one CSV file (or -sheet)")
		}
		if *name == "" {
			base := filepath.Base(files[0])
			*name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		ds, rep, err = svc.IngestFiles(ctx, *name, files)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Stored snapshot %s (%s) with %d records.\n", ds.Name, ds.ID, len(ds.Records))
	fmt.Printf("  rows read:    %d\n", rep.RowsIn)
	fmt.Printf("  kept:         %d\n", rep.Kept)
	if rep.Deduplicated > 0 {
		fmt.Printf("  duplicates:   %d\n", rep.Deduplicated)
	}
	if rep.DroppedBadDate > 0 {
		fmt.Printf("  bad dates:    %d\n", rep.DroppedBadDate)
	}
	if rep.DroppedBadAmount > 0 {
		fmt.Printf("  bad amounts:  %d\n", rep.DroppedBadAmount)
	}
	if rep.DroppedNonPositive > 0 {
		fmt.Printf("  non-positive: %d\n", rep.DroppedNonPositive)
	}
	return nil
}

func runCategorize(ctx context.Context, svc *services.Intelligence, args []string) error {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset ID or name (latest snapshot when empty)")
	fs.Parse(args)

	ds, filled, err := svc.Categorize(ctx, *dataset)
	if err != nil {
		return err
	}
	if filled == 0 {
		fmt.Println("No unknown categories to fill.")
		return nil
	}
	fmt.Printf("Filled %d categories. New snapshot: %s (%s)\n", filled, ds.Name, ds.ID)
	return nil
}

func runAsk(ctx context.Context, svc *services.Intelligence, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset ID or name (latest snapshot when empty)")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New(`ask requires a question, e.g. spendlens ask "food expenses in january"`)
	}

	res, err := svc.Ask(ctx, *dataset, question)
	if err != nil {
		return err
	}
	fmt.Println(res.Summary)
	if !res.Recognized && len(res.Matches) > 0 {
		fmt.Println("No filters recognized, showing every expense.")
	}
	printMatches(res.Matches)
	return nil
}

func printMatches(matches []core.Transaction) {
	n := len(matches)
	if n == 0 {
		return
	}
	shown := n
	if shown > maxPrintedMatches {
		shown = maxPrintedMatches
	}
	fmt.Println()
	for _, m := range matches[:shown] {
		fmt.Printf("  %s  %-40s  %12s  %s\n",
			m.Date.Format("2006-01-02"), m.Description, core.FormatAmount(m.Amount), m.Category)
	}
	if n > shown {
		fmt.Printf("  ... and %d more matching expenses\n", n-shown)
	}
}

func runAnomalies(ctx context.Context, svc *services.Intelligence, args []string) error {
	fs := flag.NewFlagSet("anomalies", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset ID or name (latest snapshot when empty)")
	scope := fs.String("scope", "dataset", `statistics partition: "dataset" or "category"`)
	spikes := fs.Bool("spikes", false, "detect daily spending spikes instead of single-expense outliers")
	fs.Parse(args)

	if *spikes {
		found, err := svc.Spikes(ctx, *dataset)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No spending spikes found.")
			return nil
		}
		for _, sp := range found {
			fmt.Printf("  %s  spent %s, rolling week mean %s\n",
				sp.Date.Format("2006-01-02"), core.FormatAmount(sp.Total), core.FormatAmount(sp.RollingMean))
		}
		return nil
	}

	if *scope != string(anomaly.ScopeDataset) && *scope != string(anomaly.ScopeCategory) {
		return fmt.Errorf("invalid scope %q: must be %q or %q", *scope, anomaly.ScopeDataset, anomaly.ScopeCategory)
	}

	records, flags, err := svc.Anomalies(ctx, *dataset, anomaly.Scope(*scope))
	if err != nil {
		return err
	}
	count := 0
	for i, f := range flags {
		if !f.Anomalous {
			continue
		}
		count++
		r := records[i]
		fmt.Printf("  %s  %-40s  %12s  %s\n",
			r.Date.Format("2006-01-02"), r.Description, core.FormatAmount(r.Amount), f.Reason)
	}
	if count == 0 {
		fmt.Println("No anomalies found.")
	} else {
		fmt.Printf("%d of %d expenses flagged.\n", count, len(records))
	}
	return nil
}

func runInsights(ctx context.Context, svc *services.Intelligence, args []string) error {
	fs := flag.NewFlagSet("insights", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset ID or name (latest snapshot when empty)")
	fs.Parse(args)

	sum, err := svc.Insights(ctx, *dataset)
	if err != nil {
		return err
	}
	if sum.Stats.Count == 0 {
		fmt.Println("Snapshot has no records.")
		return nil
	}

	st := sum.Stats
	fmt.Printf("%d expenses from %s to %s\n",
		st.Count, st.First.Format("2006-01-02"), st.Last.Format("2006-01-02"))
	fmt.Printf("  total %s, mean %s, median %s, min %s, max %s\n",
		core.FormatAmount(st.Total), core.FormatAmount(st.Mean), core.FormatAmount(st.Median),
		core.FormatAmount(st.Min), core.FormatAmount(st.Max))

	fmt.Println("\nBy category:")
	for _, c := range sum.Categories {
		fmt.Printf("  %-24s %4d  %12s  %5.1f%%\n",
			c.Category, c.Count, core.FormatAmount(c.Total), c.Share*100)
	}

	if len(sum.Monthly) > 1 {
		fmt.Println("\nBy month:")
		for i, m := range sum.Monthly {
			if i == 0 {
				fmt.Printf("  %d-%02d  %12s\n", m.Year, m.Month, core.FormatAmount(m.Total))
				continue
			}
			fmt.Printf("  %d-%02d  %12s  %+6.1f%%\n", m.Year, m.Month, core.FormatAmount(m.Total), m.Change)
		}
	}

	if len(sum.Merchants) > 0 {
		fmt.Println("\nTop merchants:")
		for _, m := range sum.Merchants {
			fmt.Printf("  %-40s %4d  %12s\n", m.Description, m.Count, core.FormatAmount(m.Total))
		}
	}
	return nil
}

func runDatasets(ctx context.Context, svc *services.Intelligence, args []string) error {
	fs := flag.NewFlagSet("datasets", flag.ExitOnError)
	del := fs.String("delete", "", "delete the snapshot with this ID")
	runs := fs.String("runs", "", "list training runs for this dataset ID")
	fs.Parse(args)

	switch {
	case *del != "":
		if err := svc.DeleteDataset(ctx, *del); err != nil {
			return err
		}
		fmt.Printf("Deleted dataset %s.\n", *del)
		return nil

	case *runs != "":
		list, err := svc.TrainingRuns(ctx, *runs)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No training runs recorded for this dataset.")
			return nil
		}
		for _, r := range list {
			fmt.Printf("  %s  samples %4d  labels %2d  accuracy %5.1f%%  %-8s  %s\n",
				r.FinishedAt.Format("2006-01-02 15:04:05"), r.Samples, r.Labels,
				r.Accuracy*100, r.Trigger, r.Duration.Round(time.Millisecond))
		}
		return nil

	default:
		infos, err := svc.Datasets(ctx)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No datasets stored yet.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("  %s  %-24s  %5d records  %s\n",
				info.ID, info.Name, info.RecordCount, info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}
}

func runTrain(ctx context.Context, svc *services.Intelligence, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset ID or name (latest snapshot when empty)")
	viaQueue := fs.Bool("queue", false, "request training through the retrain queue instead of training locally")
	fs.Parse(args)

	if *viaQueue {
		if err := svc.RequestRetrain(ctx, *dataset); err != nil {
			return err
		}
		fmt.Println("Retrain request queued.")
		return nil
	}

	run, err := svc.Train(ctx, *dataset, "cli")
	if err != nil {
		return err
	}
	fmt.Printf("Model trained on %d records (%d labels), accuracy %.1f%%, took %s.\n",
		run.Samples, run.Labels, run.Accuracy*100, run.Duration.Round(time.Millisecond))
	return nil
}
