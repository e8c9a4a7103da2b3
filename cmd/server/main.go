// Command server runs the crowd zone hub: clients connect over WebSocket,
// report their position and receive live zone occupancy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Tyrowin/crowdzone/internal/logging"
	"github.com/Tyrowin/crowdzone/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	envFile := flagSet.String("env-file", ".env", "dotenv file loaded into the environment if present")
	configPath := flagSet.String("config", "", "YAML config file")
	host := flagSet.String("host", server.DefaultHost, "bind address")
	port := flagSet.Int("port", server.DefaultPort, "bind port")
	adminEmail := flagSet.String("admin-email", server.DefaultAdminEmail, "admin login email")
	adminPassword := flagSet.String("admin-password", server.DefaultAdminPassword, "admin login password")
	zonesFile := flagSet.String("zones-file", "", "YAML file of zones to create at startup")
	logLevel := flagSet.String("log-level", "info", "log level: "+logging.LevelNames())
	logFormat := flagSet.String("log-format", "text", "log format: text or json")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && flagSet.Changed("env-file") {
		return fmt.Errorf("load env file: %w", err)
	}

	level, format := *logLevel, *logFormat
	if v := os.Getenv("LOG_LEVEL"); v != "" && !flagSet.Changed("log-level") {
		level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" && !flagSet.Changed("log-format") {
		format = v
	}
	if err := logging.Setup(logging.Options{Level: level, Format: format, Output: os.Stdout}); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfigFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if flagSet.Changed("host") {
		cfg.Host = *host
	}
	if flagSet.Changed("port") {
		cfg.Port = *port
	}
	if flagSet.Changed("admin-email") {
		cfg.AdminEmail = *adminEmail
	}
	if flagSet.Changed("admin-password") {
		cfg.AdminPassword = *adminPassword
	}
	if flagSet.Changed("zones-file") {
		cfg.ZonesFile = *zonesFile
	}

	srv, err := server.New(cfg, server.Dependencies{Logger: slog.Default()})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting crowdzone server", "addr", cfg.Addr())
	return srv.Run(ctx)
}
