package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"swbatch/internal/automation"
	"swbatch/internal/config"
	"swbatch/internal/converter"
	"swbatch/internal/formats"
	"swbatch/internal/history"
	"swbatch/internal/models"
	"swbatch/internal/scanner"
)

var (
	headerColor  = color.New(color.FgBlue, color.Bold)
	successColor = color.New(color.FgGreen)
	skipColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
	taskColor    = color.New(color.FgCyan)
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "convert":
		os.Exit(runConvert(os.Args[2:]))
	case "scan":
		os.Exit(runScan(os.Args[2:]))
	case "history":
		os.Exit(runHistory(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `swbatch - batch SolidWorks conversion

Usage:
  swbatch convert -in DIR -out DIR [-format stl,3mf] [-flat] [-force] [-dry-run] [-v]
  swbatch scan -in DIR [-out DIR] [-format stl,3mf]
  swbatch history [-limit N]`)
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func runConvert(args []string) int {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	inputDir := fs.String("in", "", "input directory containing SolidWorks files")
	outputDir := fs.String("out", "", "output directory")
	formatSpec := fs.String("format", "stl", "export formats, comma separated: stl, 3mf, all")
	inputFormat := fs.String("input-format", "sldprt", "source types to scan: sldprt, sldasm, all")
	flat := fs.Bool("flat", false, "do not preserve directory structure")
	force := fs.Bool("force", false, "reconvert even when output is up to date")
	dryRun := fs.Bool("dry-run", false, "list what would be converted without converting")
	visible := fs.Bool("visible", false, "show the SolidWorks window")
	historyPath := fs.String("history", "config/history.db", "run history database, empty to disable")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	logger := setupLogger(*verbose)

	if *inputDir == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "convert requires -in and -out")
		return 2
	}

	exportFormats, err := formats.Parse(*formatSpec, true)
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	settings := config.Settings{InputFormat: *inputFormat}
	sc := scanner.New(*inputDir, *outputDir, exportFormats, !*flat, settings.InputExtensions())

	headerColor.Printf("input:   %s\n", sc.InputRoot)
	headerColor.Printf("output:  %s\n", sc.OutputRoot)
	headerColor.Printf("formats: %s\n", formatList(exportFormats))

	pending, skippable, err := sc.ScanPending()
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	fmt.Println()
	successColor.Printf("pending:    %d\n", len(pending))
	skipColor.Printf("up to date: %d\n", len(skippable))

	tasks := pending
	if *force {
		tasks = append(pending, skippable...)
	}
	if len(tasks) == 0 {
		successColor.Println("nothing to convert")
		return 0
	}

	if *dryRun {
		fmt.Println()
		for _, task := range tasks {
			taskColor.Printf("  %s -> %s\n", task.RelativeSource(), task.RelativeOutput())
		}
		return 0
	}

	startedAt := time.Now()
	onProgress := func(current, total int, task *models.ConversionTask, status *models.Status) {
		if status == nil {
			taskColor.Printf("[%d/%d] %s -> %s ... ", current, total, task.RelativeSource(), strings.ToUpper(task.Format.String()))
			return
		}
		switch *status {
		case models.StatusSuccess:
			successColor.Println("ok")
		case models.StatusSkipped:
			skipColor.Println("skipped")
		default:
			failColor.Println(string(*status))
		}
	}

	svc := automation.NewSolidWorks(logger, *visible)
	results, err := converter.Run(context.Background(), svc, logger, tasks, converter.RunOptions{
		SkipExisting: !*force,
		OnProgress:   onProgress,
	})
	if err != nil {
		fmt.Println()
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, automation.ErrServiceUnavailable) {
			fmt.Fprintln(os.Stderr, "check that SolidWorks is installed and can be started")
		}
		return 1
	}

	stats := models.StatsFromResults(results)
	elapsed := time.Since(startedAt)

	fmt.Println()
	headerColor.Println("conversion finished")
	successColor.Printf("success: %d\n", stats.Success)
	skipColor.Printf("skipped: %d\n", stats.Skipped)
	if stats.Failed > 0 {
		failColor.Printf("failed:  %d\n", stats.Failed)
		for _, r := range results {
			if r.Status == models.StatusFailed || r.Status == models.StatusOpenFailed {
				failColor.Printf("  %s: %s\n", r.Task.RelativeSource(), r.Message)
			}
		}
	}
	fmt.Printf("elapsed: %.1fs\n", elapsed.Seconds())

	if *historyPath != "" {
		recordRun(logger, *historyPath, sc, exportFormats, startedAt, stats)
	}

	if stats.Failed > 0 {
		return 1
	}
	return 0
}

func recordRun(logger *slog.Logger, path string, sc *scanner.Scanner, exportFormats []formats.ExportFormat, startedAt time.Time, stats models.ConversionStats) {
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("could not open run history", "path", path, "error", err)
		return
	}
	defer store.Close()

	names := make([]string, 0, len(exportFormats))
	for _, f := range exportFormats {
		names = append(names, f.String())
	}
	rec := history.RunRecord{
		ID:         fmt.Sprintf("cli-%d", startedAt.UnixNano()),
		InputDir:   sc.InputRoot,
		OutputDir:  sc.OutputRoot,
		Formats:    names,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Stats:      stats,
	}
	if err := store.Append(rec); err != nil {
		logger.Warn("could not record run history", "error", err)
	}
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	inputDir := fs.String("in", "", "input directory")
	outputDir := fs.String("out", "", "output directory used for staleness checks")
	formatSpec := fs.String("format", "stl", "export formats, comma separated")
	inputFormat := fs.String("input-format", "sldprt", "source types to scan: sldprt, sldasm, all")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	setupLogger(*verbose)

	if *inputDir == "" {
		fmt.Fprintln(os.Stderr, "scan requires -in")
		return 2
	}

	exportFormats, err := formats.Parse(*formatSpec, true)
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	out := *outputDir
	if out == "" {
		out = *inputDir
	}
	settings := config.Settings{InputFormat: *inputFormat}
	sc := scanner.New(*inputDir, out, exportFormats, true, settings.InputExtensions())

	tasks, err := sc.Scan()
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	headerColor.Printf("found %d tasks in %s\n", len(tasks), sc.InputRoot)
	for _, task := range tasks {
		if *outputDir != "" && !task.NeedsConversion() {
			skipColor.Printf("  [up to date] ")
		} else {
			successColor.Printf("  [pending]    ")
		}
		fmt.Printf("%s -> %s\n", task.RelativeSource(), strings.ToUpper(task.Format.String()))
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	path := fs.String("path", "config/history.db", "run history database")
	limit := fs.Int("limit", 10, "number of runs to show")
	fs.Parse(args)

	setupLogger(false)

	store, err := history.Open(*path)
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.Recent(*limit)
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Println("no recorded runs")
		return 0
	}

	for _, rec := range records {
		headerColor.Printf("%s  %s -> %s [%s]\n",
			rec.FinishedAt.Format("2006-01-02 15:04:05"),
			rec.InputDir, rec.OutputDir, strings.Join(rec.Formats, ","))
		fmt.Printf("  %s", rec.Stats.Summary())
		if rec.Error != "" {
			failColor.Printf("  (%s)", rec.Error)
		}
		fmt.Println()
	}
	return 0
}

func formatList(exportFormats []formats.ExportFormat) string {
	names := make([]string, 0, len(exportFormats))
	for _, f := range exportFormats {
		names = append(names, strings.ToUpper(f.String()))
	}
	return strings.Join(names, ", ")
}
