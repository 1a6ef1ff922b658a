// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hwidgate/hwidgate/internal/api"
	"github.com/hwidgate/hwidgate/internal/auth"
	"github.com/hwidgate/hwidgate/internal/config"
	"github.com/hwidgate/hwidgate/internal/database"
	"github.com/hwidgate/hwidgate/internal/metrics"
	"github.com/hwidgate/hwidgate/internal/models"
	"github.com/hwidgate/hwidgate/internal/services"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "hwidgate",
		Short: "A license server for hardware-bound installations",
		Long: `hwidgate - issues, renews, revokes and verifies time-bounded
licenses keyed by hardware identifier (HWID).`,
		SilenceUsage: true,
	}

	// Initialize logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.Version = Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunMigrateCommand())
	rootCmd.AddCommand(RunCheckCommand())
	rootCmd.AddCommand(RunGrantCommand())
	rootCmd.AddCommand(RunBanCommand())
	rootCmd.AddCommand(RunListCommand())
	rootCmd.AddCommand(RunHashSecretCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/hwidgate/ or %APPDATA%\\hwidgate\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite database (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr only)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		app := NewApplication(Version, configDir, dataDir, logPath)
		return app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hwidgate",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file with a fresh API secret.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/hwidgate/config.toml
- Windows: %APPDATA%\hwidgate\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

type Application struct {
	version   string
	configDir string
	dataDir   string
	logPath   string
}

func NewApplication(version, configDir, dataDir, logPath string) *Application {
	return &Application{
		version:   version,
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() error {
	log.Info().Str("version", app.version).Msg("Starting hwidgate")

	cfg, err := config.New(app.configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()
	cfg.Watch()

	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info().Str("dialect", string(db.Dialect())).Msg("Database ready")

	licenseService, err := newLicenseService(cfg, db)
	if err != nil {
		return err
	}

	if !cfg.Config.HasSecret() {
		log.Warn().Msg("No apiSecret configured - grant and list requests will be rejected")
	}

	var metricsManager *metrics.Manager
	if cfg.Config.MetricsEnabled {
		metricsManager = metrics.NewManager(licenseService)
		log.Info().Msg("Prometheus metrics enabled at /metrics endpoint")
	}

	router := api.NewRouter(&api.Dependencies{
		LicenseService: licenseService,
		MetricsManager: metricsManager,
	})

	readTimeout := time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", srv.Addr).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

// newLicenseService wires the store, secret check and clock settings from cfg.
func newLicenseService(cfg *config.AppConfig, db *database.DB) (*services.LicenseService, error) {
	authService, err := auth.NewService(cfg.Config.APISecret, cfg.Config.APISecretHash)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store := models.NewLicenseStore(db.Conn(), db.Dialect())

	return services.NewLicenseService(store, authService,
		services.WithLocation(loc),
		services.WithDefaultDays(cfg.Config.DefaultDays),
	), nil
}
