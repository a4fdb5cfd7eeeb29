package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wishpop/wishpop/internal/api"
	"github.com/wishpop/wishpop/internal/config"
	"github.com/wishpop/wishpop/internal/server"
	"github.com/wishpop/wishpop/internal/stats"
	"github.com/wishpop/wishpop/internal/store"
)

const releaseVersion = "0.1.0"

type flags struct {
	addr           string
	dsn            string
	publicURL      string
	allowedOrigins []string
	inMemory       bool
}

func newCmd(f *flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WISHPOP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "wishpop",
		Short:         "Real-time party wish balloons: guests send wishes, the host display pops them.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(f.addr, f.dsn, f.publicURL, f.allowedOrigins, f.inMemory)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return run(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.addr, "addr", "a", "localhost:8000", "server address (env: WISHPOP_ADDR)")
	fs.StringVar(&f.dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string (env: WISHPOP_DSN)")
	fs.StringVar(&f.publicURL, "public-url", "http://localhost:8000", "base URL used in invite links and QR codes (env: WISHPOP_PUBLIC_URL)")
	fs.StringSliceVar(&f.allowedOrigins, "allowed-origins", nil, "comma-separated list of allowed origins for CORS (env: WISHPOP_ALLOWED_ORIGINS)")
	fs.BoolVar(&f.inMemory, "in-memory", false, "use the in-memory store instead of Postgres (env: WISHPOP_IN_MEMORY)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("wishpop v{{.Version}}\n")

	return cmd
}

func run(cfg *config.Config) error {
	logger := log.New(os.Stderr, "[wishpop] ", log.LstdFlags)

	var st store.Store
	if cfg.InMemory {
		logger.Println("using in-memory store")
		st = store.NewMemoryStore()
	} else {
		pgStore, err := store.NewPgStore(cfg.DatabaseDSN, logger)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		st = pgStore
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	partyServer, err := server.NewPartyServer(logger, st, statsUpdater)
	if err != nil {
		return fmt.Errorf("new party server: %w", err)
	}

	app := api.NewPartyApp(mux, logger, partyServer, st, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go partyServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Println("shutting down party server...")
	if err := partyServer.Shutdown(shutDownCtx); err != nil {
		return fmt.Errorf("party server shutdown: %w", err)
	}

	logger.Println("shutdown complete")
	return nil
}

func main() {
	cobra.CheckErr(newCmd(&flags{}).Execute())
}
