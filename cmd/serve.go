package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/meridianbank/ledger"
	"github.com/meridianbank/ledger/gateway"
	"github.com/meridianbank/ledger/pgstore"
)

type serveCmd struct {
	configPath string
	addr       string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP gateway" }
func (*serveCmd) Usage() string {
	return `serve [-config <dir>] [-addr <addr>]

  Serves the ledger over HTTP. With LEDGER_DATABASE_URL (or database_url in
  ledger.yaml) the engine runs on PostgreSQL; otherwise state lives in
  memory, rebuilt from the JSONL journal.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", ".", "Directory holding ledger.yaml.")
	f.StringVar(&c.addr, "addr", "", "Listen address; overrides the configuration.")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := gateway.LoadConfig(c.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.addr != "" {
		cfg.Addr = c.addr
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithLockTimeout(cfg.LockTimeout),
		ledger.WithCommitRetries(cfg.CommitRetries, 50*time.Millisecond),
	}
	var eng *ledger.Engine
	if cfg.DatabaseURL != "" {
		pool, err := pgstore.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		defer pool.Close()
		eng = ledger.NewEngine(pgstore.NewStore(pool), pgstore.NewLog(pool), opts...)
	} else {
		journal := cfg.LogFile
		if journal == "" {
			journal = *journalFile
		}
		flog, err := ledger.OpenFileLog(journal)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		defer flog.Close()
		store := ledger.NewMemoryStore()
		if err := ledger.Replay(ctx, flog, store); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		eng = ledger.NewEngine(store, flog, opts...)
	}

	logger.WithField("addr", cfg.Addr).Info("ledger gateway listening")
	if err := gateway.NewServer(eng, logger).Listen(cfg.Addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
