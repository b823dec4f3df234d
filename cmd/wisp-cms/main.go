// ABOUTME: Entry point for the wisp-cms single-admin site server
// ABOUTME: Dispatches serve, init, and reset-password subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/2389/wisp-cms/internal/auth"
	"github.com/2389/wisp-cms/internal/config"
	"github.com/2389/wisp-cms/internal/session"
	"github.com/2389/wisp-cms/internal/store"
	"github.com/2389/wisp-cms/internal/web"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
          _
 __ __ __(_)___ _ __  ___ _ __  ___
 \ V  V /| (_-<| '_ \/ __| '  \(_-<
  \_/\_/ |_/__/| .__/\___|_|_|_/__/
               |_|
`

// getConfigPath returns the path to the wisp-cms config file.
// Priority: WISP_CONFIG env var > XDG_CONFIG_HOME/wisp/config.yaml > ~/.config/wisp/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WISP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "wisp", "config.yaml")
}

// getDataPath returns the path to the wisp-cms data directory.
// Priority: XDG_DATA_HOME/wisp > ~/.local/share/wisp
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "wisp")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: wisp-cms <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve           Start the site server")
		fmt.Println("  init            Create a new config file and site store")
		fmt.Println("  reset-password  Generate a new admin password")
		fmt.Println("  version         Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "reset-password":
		err = runResetPassword()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger from config.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	fmt.Print(color.CyanString(banner))
	fmt.Printf("wisp-cms %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}
	setupLogging(cfg)

	logger := slog.Default().With("component", "server")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	if pw := st.InitialPassword(); pw != "" {
		printCredentials(st, pw)
	}

	sessions := session.NewManager(cfg.Sessions.Duration)
	defer sessions.Close()

	ctrl := auth.New(st, cfg.Site.RootDir)

	mux := http.NewServeMux()
	handler := web.New(st, sessions, ctrl)
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runInit() error {
	configPath := getConfigPath()
	dataDir := getDataPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	cfg := config.Default(dataDir)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	fmt.Printf("Created config at %s\n", configPath)
	fmt.Printf("Created site store at %s\n\n", cfg.Database.Path)
	if pw := st.InitialPassword(); pw != "" {
		printCredentials(st, pw)
	} else {
		fmt.Println("Site store already existed; admin password unchanged.")
	}

	return nil
}

func runResetPassword() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	password, err := store.GeneratePassword()
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := st.Set(store.SectionConfig, store.KeyPassword, string(hash)); err != nil {
		return fmt.Errorf("saving password: %w", err)
	}

	fmt.Println("Admin password reset.")
	fmt.Printf("  New password: %s\n", color.GreenString(password))
	return nil
}

// printCredentials shows the one-time generated admin credentials.
func printCredentials(st *store.Store, password string) {
	loginSlug, err := st.GetString(store.SectionConfig, store.KeyLogin)
	if err != nil {
		loginSlug = "(unavailable)"
	}

	warn := color.New(color.FgYellow, color.Bold)
	warn.Println("Save these credentials now; the password is shown only once.")
	fmt.Printf("  Login page: %s\n", color.CyanString("/"+loginSlug))
	fmt.Printf("  Password:   %s\n", color.GreenString(password))
}
