package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tickertracker/internal/config"
	"tickertracker/internal/gateway"
	"tickertracker/internal/logger"
	"tickertracker/internal/provider/factory"
	"tickertracker/internal/sink"
	"tickertracker/internal/tickline"
	"tickertracker/internal/tracker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error::%v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	period      string
	symbolsFile string
	out         string
	addr        string
	logLevel    string
	stdout      bool
	stdoutSet   bool
	noServer    bool
}

func parseFlags(args []string, errOut io.Writer) (options, []string, error) {
	var o options
	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, "usage: tracker [flags] SYMBOL...")
		fs.PrintDefaults()
	}
	fs.StringVar(&o.configPath, "config", "", "path to config.json (optional)")
	fs.StringVar(&o.period, "p", "", "period start, YYYY-MM-DD (default 60 days ago)")
	fs.StringVar(&o.period, "period", "", "alias of -p")
	fs.StringVar(&o.symbolsFile, "f", "", "file of comma separated symbols; overrides arguments")
	fs.StringVar(&o.symbolsFile, "file", "", "alias of -f")
	fs.StringVar(&o.out, "o", "", "write tick lines to this CSV file, truncating it")
	fs.StringVar(&o.out, "out", "", "alias of -o")
	fs.BoolVar(&o.stdout, "stdout", false, "print tick lines to stdout")
	fs.StringVar(&o.addr, "addr", "", "HTTP listen address")
	fs.BoolVar(&o.noServer, "no-server", false, "do not serve HTTP")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "stdout" {
			o.stdoutSet = true
		}
	})
	return o, fs.Args(), nil
}

// apply overrides the loaded configuration with the command line.
func (o options) apply(cfg *config.Config, symbols []string) error {
	if o.period != "" {
		cfg.Tracker.Period = o.period
	}
	if o.symbolsFile != "" {
		cfg.Tracker.SymbolsFile = o.symbolsFile
	}
	switch {
	case cfg.Tracker.SymbolsFile != "":
		s, err := config.ReadSymbols(cfg.Tracker.SymbolsFile)
		if err != nil {
			return err
		}
		cfg.Tracker.Symbols = s
	case len(symbols) > 0:
		cfg.Tracker.Symbols = symbols
	}
	if o.out != "" {
		cfg.Tracker.OutFile = o.out
	}
	if o.stdoutSet {
		cfg.Tracker.Stdout = o.stdout
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.noServer {
		cfg.Server.Enabled = false
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return nil
}

func run(args []string) error {
	o, symbols, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := o.apply(&cfg, symbols); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	from, err := cfg.Tracker.From(time.Now())
	if err != nil {
		log.Warn("bad period, using default", zap.Error(err), zap.Time("from", from))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fetcher, err := factory.NewFetcher(cfg.Provider, nil)
	if err != nil {
		return err
	}
	deps := tracker.Deps{Fetcher: fetcher, Logger: log, Stderr: os.Stderr}
	if cfg.Tracker.Stdout {
		deps.Stdout = os.Stdout
	}
	if cfg.Tracker.OutFile != "" {
		f, err := sink.CreateFile(cfg.Tracker.OutFile, tickline.Header)
		if err != nil {
			return err
		}
		defer f.Close()
		deps.Output, deps.OutputPath = f, cfg.Tracker.OutFile
	}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		deps.Redis = rdb
	}

	var ln net.Listener
	if cfg.Server.Enabled {
		ln, err = net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	tr, err := tracker.Start(tracker.FromConfig(cfg, from), deps)
	if err != nil {
		if ln != nil {
			ln.Close()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if ln == nil {
		g.Go(func() error {
			<-gctx.Done()
			tr.Stop()
			return nil
		})
		return g.Wait()
	}

	gw := gateway.New(tr.History(), tr.Bus(), gateway.Config{
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
	}, log.Named("gateway"))
	srv := gw.HTTPServer(cfg.Server.Addr)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		tr.Stop()
		gw.CloseStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
