package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trimgram/internal/analysis"
	"trimgram/internal/api"
	"trimgram/internal/auth"
	"trimgram/internal/config"
	"trimgram/internal/journal"
	"trimgram/internal/logging"
	"trimgram/internal/metrics"
	"trimgram/internal/pace"
	"trimgram/internal/platform"
	"trimgram/internal/session"
	"trimgram/internal/theme"
	"trimgram/internal/unfollow"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "serve":
		cmdServe()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: trimgram <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init     Create a config file at ./trimgram.yaml")
	fmt.Println("  serve    Run the analysis and unfollow API")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./trimgram.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./trimgram.yaml", "config path")
	_ = fs.Parse(os.Args[2:])

	_ = godotenv.Load()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// Run on defaults when no config file exists yet.
		cfg = config.Default()
		cfg.ResolveEnv()
		logging.Warn("config_defaulted", map[string]any{"path": *cfgPath, "error": err.Error()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jr, err := journal.Open(cfg.Storage.JournalPath)
	if err != nil {
		logging.Error("journal_open_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer jr.Close()

	store := session.NewStore(cfg.Session.TTL(), cfg.Session.SingleSession)
	store.StartSweeper(ctx, cfg.Session.SweepInterval())

	pacer := pace.New()
	pacer.SetInterval(pace.ClassFetch, cfg.Pacing.FetchInterval())
	pacer.SetInterval(pace.ClassUnfollow, cfg.Pacing.UnfollowInterval())

	platformAPI := platform.NewAPI(cfg.Platform.BaseURL, cfg.Platform.UserAgent, cfg.Platform.Timeout())
	authSvc := auth.New(platformAPI, store)
	engine := analysis.New(store, pacer, cfg.Analysis.PostsPerAccount, cfg.Analysis.MaxResults)
	executor := unfollow.New(store, pacer, jr, cfg.Unfollow.MaxPerHour, cfg.Unfollow.MaxPerDay)

	metrics.StartServer(cfg.Server.MetricsAddr)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.NewServer(authSvc, store, engine, executor, jr).Router(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logging.Info("shutting_down", nil)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	theme.PrintBanner()
	logging.Info("serving", map[string]any{"addr": cfg.Server.ListenAddr})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Error("server_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logging.Info("server_stopped", nil)
}
