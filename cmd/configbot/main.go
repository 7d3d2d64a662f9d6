package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nexanet/configbot/internal/app"
	"github.com/nexanet/configbot/internal/config"

	log "github.com/sirupsen/logrus"
)

const usage = `usage: configbot [flags] [serve|migrate|sweep|token]

  serve    run the admin API, the bot update endpoint and the sweep schedule (default)
  migrate  create or update the database schema
  sweep    run one maintenance sweep and exit
  token    print an admin API token for the operator
`

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:], os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches the subcommand.
func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("configbot", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	envFile := fs.String("env-file", "", "dotenv file loaded before the config (or env ENV_FILE)")
	port := fs.Int("port", 0, "override http.port")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	command := strings.TrimSpace(fs.Arg(0))
	if command == "" {
		command = "serve"
	}

	if errEnv := config.LoadEnvFile(*envFile); errEnv != nil {
		return errEnv
	}
	if command == "migrate" {
		return app.Migrate(ctx, *cfgPath)
	}

	cfg, err := config.Load(config.ResolveConfigPath(*cfgPath))
	if err != nil {
		return err
	}
	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
		cfg.HTTP.Port = *port
	}
	if errLog := configureLogging(cfg.Logging); errLog != nil {
		return errLog
	}

	switch command {
	case "serve":
		log.Infof("starting configbot with config=%s", cfg.Path)
		return app.RunServer(ctx, cfg)
	case "sweep":
		res, errSweep := app.RunSweep(ctx, cfg)
		if errSweep != nil {
			return errSweep
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "token":
		token, errToken := app.IssueOperatorToken(cfg, time.Now())
		if errToken != nil {
			return errToken
		}
		_, errWrite := fmt.Fprintln(out, token)
		return errWrite
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func configureLogging(cfg config.LoggingConfig) error {
	level, errLevel := log.ParseLevel(cfg.Level)
	if errLevel != nil {
		return fmt.Errorf("logging.level: %w", errLevel)
	}
	log.SetLevel(level)
	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported logging.format %q", cfg.Format)
	}
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
