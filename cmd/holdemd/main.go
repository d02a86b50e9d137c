package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/holdemd/internal/server"
	"github.com/lox/holdemd/internal/store"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Config   string           `short:"c" default:"holdemd.hcl" help:"Path to HCL configuration file"`
	Addr     string           `help:"Listen address, overrides the config file"`
	DB       string           `name:"db" help:"SQLite database path, overrides the config file"`
	LogLevel string           `help:"Log level (debug|info|warn|error), overrides the config file"`
	Seed     *int64           `help:"Deterministic shuffle seed, for demos and tests"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("holdemd"),
		kong.Description("Multiplayer no-limit Texas hold'em server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func (c *CLI) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.DB != "" {
		cfg.Server.DatabasePath = c.DB
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	st, err := store.OpenSQLite(cfg.Server.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	newRand := func() *rand.Rand {
		if c.Seed != nil {
			return rand.New(rand.NewSource(*c.Seed))
		}
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	turnTimeout := time.Duration(cfg.Server.TurnTimeoutSeconds) * time.Second
	registry := server.NewRegistry(st, logger, quartz.NewReal(), turnTimeout, newRand)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := registry.Recover(ctx); err != nil {
		return err
	}
	for _, tc := range cfg.Tables {
		if _, err := registry.Get(tc.Name); err == nil {
			continue // recovered from a previous run
		}
		if _, err := registry.CreateTableWithID(ctx, tc.Name, tc.Owner, tc.MaxPlayers, tc.SmallBlind, tc.BigBlind, tc.AutoStart); err != nil {
			return err
		}
	}

	addr := cfg.ListenAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	srv := server.NewServer(addr, registry, logger)

	logger.Info("starting holdemd",
		"addr", addr,
		"db", cfg.Server.DatabasePath,
		"tables", len(cfg.Tables),
		"turn_timeout", turnTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Stop(shutdownCtx)
		registry.StopAll()
		return err
	})
	return g.Wait()
}
