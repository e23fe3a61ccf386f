package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	flag "github.com/spf13/pflag"

	"github.com/brookdb/brook/introspect/pkg/event"
	"github.com/brookdb/brook/introspect/pkg/pipeline"
	"github.com/brookdb/brook/introspect/pkg/relation"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultGranularityNs = 1_000_000_000

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type Config struct {
	ShowVersion bool
	Verbose     bool

	Input         string
	GranularityNs uint64
	Active        []relation.Variant
	AsOfMs        uint64
}

func loadConfig() (Config, error) {
	var cfg Config
	var activeCSV string

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.StringVar(&cfg.Input, "input", "", "event log to replay, one JSON record per line (- for stdin)")
	flag.Uint64Var(&cfg.GranularityNs, "granularity-ns", defaultGranularityNs, "reporting granularity in nanoseconds")
	flag.StringVar(&activeCSV, "active", "", "active variants csv (default: all)")
	flag.Uint64Var(&cfg.AsOfMs, "as-of-ms", 0, "read relations as of this logical time in ms (default: end of log)")
	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}
	if cfg.Input == "" {
		return cfg, fmt.Errorf("--input is required")
	}

	if activeCSV == "" {
		cfg.Active = relation.Variants()
	} else {
		for _, name := range strings.Split(activeCSV, ",") {
			v := relation.Variant(strings.TrimSpace(name))
			if !v.Valid() {
				return cfg, fmt.Errorf("unknown variant %q", v)
			}
			cfg.Active = append(cfg.Active, v)
		}
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	records, err := readRecords(cfg.Input)
	if err != nil {
		return err
	}
	log.Info("loaded event log", "records", len(records), "input", cfg.Input)
	if len(records) == 0 {
		return nil
	}

	// One pipeline per worker, batches in arrival order per worker.
	batches := make(map[event.WorkerID][]event.Record)
	var workers []event.WorkerID
	for _, rec := range records {
		if _, ok := batches[rec.Worker]; !ok {
			workers = append(workers, rec.Worker)
		}
		batches[rec.Worker] = append(batches[rec.Worker], rec)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })

	asOf := event.LogicalTime(cfg.AsOfMs)
	if asOf == 0 {
		asOf = ^event.LogicalTime(0)
	}

	handles := make(map[event.WorkerID]map[relation.Variant]relation.Handle, len(workers))
	for _, w := range workers {
		p, err := pipeline.New(pipeline.Config{
			Logger:         log.With("worker", w),
			GranularityNs:  cfg.GranularityNs,
			ActiveVariants: cfg.Active,
		})
		if err != nil {
			return fmt.Errorf("failed to create pipeline for worker %d: %w", w, err)
		}
		p.ProcessBatch(batches[w])
		handles[w] = p.Handles()
	}

	for _, v := range relation.Variants() {
		if _, ok := handles[workers[0]][v]; !ok {
			continue
		}
		var rows []relation.RowCount
		for _, w := range workers {
			rows = append(rows, handles[w][v].ReadAt(asOf)...)
		}
		printRelation(v, rows)
	}
	return nil
}

func readRecords(input string) ([]event.Record, error) {
	var r *os.File
	if input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var records []event.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec event.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return records, nil
}

func printRelation(v relation.Variant, rows []relation.RowCount) {
	fmt.Printf("\n%s (%d rows)\n", v, len(rows))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	header := append([]string{}, v.Columns()...)
	header = append(header, "multiplicity")
	table.SetHeader(header)

	for _, rc := range rows {
		cells := make([]string, 0, len(rc.Row)+1)
		for _, d := range rc.Row {
			cells = append(cells, d.String())
		}
		cells = append(cells, fmt.Sprintf("%d", rc.Count))
		table.Append(cells)
	}
	table.Render()
}
