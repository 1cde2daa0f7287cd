package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"tickertracker/internal/config"
	"tickertracker/internal/logger"
	"tickertracker/internal/provider"
	"tickertracker/internal/provider/factory"
	"tickertracker/internal/sink"
	"tickertracker/internal/tickline"
	"tickertracker/internal/tracker"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one fetch round and returns the process exit code: 1 on a
// startup failure or when every symbol failed, 0 otherwise.
func run(args []string, stdout, stderr io.Writer) int {
	var configPath, period, symbolsFile string
	var parallel, timeout int

	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configPath, "config", "", "path to config.json (optional)")
	fs.StringVar(&period, "p", "", "period start, YYYY-MM-DD (default 60 days ago)")
	fs.StringVar(&symbolsFile, "f", "", "file of comma separated symbols; overrides arguments")
	fs.IntVar(&parallel, "parallel", 4, "concurrent fetches")
	fs.IntVar(&timeout, "timeout", 30, "overall timeout seconds")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fail := func(err error) int {
		fmt.Fprintf(stderr, "Error::%v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fail(fmt.Errorf("config: %w", err))
	}
	if period != "" {
		cfg.Tracker.Period = period
	}
	if symbolsFile != "" {
		cfg.Tracker.SymbolsFile = symbolsFile
	}
	switch {
	case cfg.Tracker.SymbolsFile != "":
		if cfg.Tracker.Symbols, err = config.ReadSymbols(cfg.Tracker.SymbolsFile); err != nil {
			return fail(err)
		}
	case fs.NArg() > 0:
		cfg.Tracker.Symbols = fs.Args()
	}
	if len(cfg.Tracker.Symbols) == 0 {
		return fail(errors.New("no symbols provided"))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = log.Sync() }()

	now := time.Now()
	from, err := cfg.Tracker.From(now)
	if err != nil {
		log.Warn("bad period, using default", zap.Error(err), zap.Time("from", from))
	}
	fetcher, err := factory.NewFetcher(cfg.Provider, nil)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()
	if failed := report(ctx, stdout, stderr, fetcher, cfg.Tracker.Symbols, from, now, parallel); failed == len(cfg.Tracker.Symbols) {
		return 1
	}
	return 0
}

// report fetches every symbol once and prints the header and tick lines to
// out, failures to errOut. It returns the number of failed symbols.
func report(ctx context.Context, out, errOut io.Writer, f provider.Fetcher, symbols []string, from, to time.Time, parallel int) int {
	fmt.Fprintln(out, tickline.Header)
	failed := 0
	for _, r := range tracker.FetchOnce(ctx, f, symbols, from, to, parallel) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(errOut, "%s%s|%v\n", sink.ErrorPrefix, r.Symbol, r.Err)
			continue
		}
		fmt.Fprintln(out, r.Line)
	}
	return failed
}
