package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/stencilbot/stencilbot/internal/botapi"
	"github.com/stencilbot/stencilbot/internal/config"
	"github.com/stencilbot/stencilbot/internal/dispatch"
	"github.com/stencilbot/stencilbot/internal/doctor"
	"github.com/stencilbot/stencilbot/internal/events"
	"github.com/stencilbot/stencilbot/internal/lock"
	"github.com/stencilbot/stencilbot/internal/log"
	"github.com/stencilbot/stencilbot/internal/pipeline"
	"github.com/stencilbot/stencilbot/internal/poller"
	"github.com/stencilbot/stencilbot/internal/render"
	"github.com/stencilbot/stencilbot/internal/reply"
	"github.com/stencilbot/stencilbot/internal/server"
	"github.com/stencilbot/stencilbot/internal/state"
	"github.com/stencilbot/stencilbot/internal/storage"
	"github.com/stencilbot/stencilbot/internal/template"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		return runStart(args)
	case "doctor":
		return runDoctor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`stencilbot - Telegram bot rendering text into images via SVG templates

Usage:
  stencilbot <command> [flags]

Commands:
  start     Run the bot in the foreground
  doctor    Validate configuration and host environment
  version   Show version information
  help      Show this help message

Use 'stencilbot <command> --help' for command-specific flags.
`)
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("stencilbot %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	builtAt := strings.TrimSpace(buildDate)
	if builtAt == "" || builtAt == "unknown" {
		builtAt = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("stencilbot starting", "version", version, "config", *configPath)

	pidLockPath := filepath.Join(filepath.Dir(cfg.State.Path), "stencilbot.lock")
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := state.NewStore(db)
	hub := events.NewHub(256)

	registry := template.New(cfg.Templates.Dir)
	if err := registry.Reload(); err != nil {
		logger.Error("failed to load templates", "dir", cfg.Templates.Dir, "error", err)
		return 1
	}
	logger.Info("templates loaded", "dir", cfg.Templates.Dir, "count", registry.Snapshot().Len())

	if err := os.MkdirAll(cfg.Render.ImagesDir, 0o755); err != nil {
		logger.Error("failed to create images directory", "dir", cfg.Render.ImagesDir, "error", err)
		return 1
	}

	renderer := render.NewRenderer(cfg.Render.InkscapeCmd, cfg.Render.ConvertCmd,
		cfg.Render.Background, cfg.Render.StageTimeout)
	cache := render.NewCache(cfg.Render.ImagesDir, renderer, store, hub)
	pipe := pipeline.New(registry, cache, cfg.Render.Workers)

	api := botapi.NewClient(cfg.Telegram.APIRoot, cfg.Telegram.APIToken, cfg.Telegram.Username)

	pool := reply.NewPool(cfg.Reply.Workers, hub)
	pool.Start(ctx)

	urlRoot := cfg.Render.URLRoot
	if !strings.HasSuffix(urlRoot, "/") {
		urlRoot += "/"
	}

	queue := dispatch.NewQueue()
	dispatcher := dispatch.New(queue, pipe, api, pool, urlRoot, cfg.Telegram.Username, hub)

	offset, err := store.Cursor(ctx)
	if err != nil {
		logger.Error("failed to read cursor", "error", err)
		return 1
	}
	updates := poller.New(api, queue, store, hub, offset,
		cfg.Service.PollInterval, cfg.Service.PollTimeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 4)

	go func() {
		if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("dispatch: %w", err)
		}
	}()

	go func() {
		if err := updates.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("poller: %w", err)
		}
	}()

	if cfg.Templates.Watch {
		watcher := template.NewWatcher(registry, cfg.Templates.Debounce, hub)
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("template watcher: %w", err)
			}
		}()
		logger.Info("template watching enabled", "dir", cfg.Templates.Dir)
	}

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			Listen:    cfg.Server.Listen,
			ImagesDir: cfg.Render.ImagesDir,
		}, store, hub)
		go func() {
			if err := srv.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("server: %w", err)
			}
		}()
		logger.Info("artifact server enabled", "listen", cfg.Server.Listen)
	}

	logger.Info("stencilbot running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	pool.Wait()
	logger.Info("stencilbot stopped")
	return 0
}
