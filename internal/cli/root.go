// Package cli provides the command-line interface for the equity scanner.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"equity-scanner/internal/config"
	"equity-scanner/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// Execute runs the root command and releases the services it opened.
// Configuration is loaded once flags are parsed; services are built on
// first use.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Logger: zerolog.Nop()}
	defer app.Close()
	return newRootCmd(app).ExecuteContext(ctx)
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Equity scanner - technical and fundamental screening CLI",
		Long: `Equity scanner computes technical indicators, candlestick patterns and
fundamental scores for a universe of stocks, ranks them, and emits entry and
exit signals.

It can run one-off scans, keep a watchlist with edge-triggered alerts, serve
an HTTP API and run scheduled jobs.

Use 'scanner help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/equity-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	addCoreCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addMonitoringCommands(rootCmd, app)
	addUtilityCommands(rootCmd, app)

	return rootCmd
}

// setup loads the configuration and builds the logger.
func (a *App) setup(cmd *cobra.Command) error {
	if a.Config != nil {
		return nil
	}

	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.ConfigDir = dir

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}
	a.Logger = logging.NewLoggerWithConfig(cfg.Log)
	a.Logger.Debug().Str("config_dir", dir).Msg("Configuration loaded")
	return nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Equity Scanner v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.Path(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.Summary.APIKey != "" {
		out.Summary.APIKey = "***"
	}
	if out.Notify.Telegram.BotToken != "" {
		out.Notify.Telegram.BotToken = "***"
	}
	if out.Cache.RedisPassword != "" {
		out.Cache.RedisPassword = "***"
	}
	return out
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Scan")
	output.Printf("  Workers:         %d\n", cfg.Scan.Workers)
	output.Printf("  Lookback:        %d days\n", cfg.Scan.LookbackDays)
	output.Printf("  Universe:        %s\n", orDefault(cfg.Scan.Universe, "built-in"))
	output.Printf("  Market symbol:   %s\n", cfg.Scan.MarketSymbol)
	output.Println()

	output.Bold("Scoring")
	output.Printf("  Factor preset:   %s\n", cfg.Scoring.FactorPreset)
	output.Printf("  Financial mode:  %s\n", cfg.Scoring.FinancialMode)
	output.Printf("  Blend:           factor %.2f / financial %.2f / risk %.2f\n",
		cfg.Scoring.Blend.Factor, cfg.Scoring.Blend.Financial, cfg.Scoring.Blend.Risk)
	output.Println()

	output.Bold("Signals")
	output.Printf("  Entry:           RSI < %.0f, BB < %.0f%%, MA50 gap < %.1f%%, %d down days\n",
		cfg.Signals.RSIEntry, cfg.Signals.BBEntry, cfg.Signals.MA50GapEntry, cfg.Signals.DownDaysEntry)
	output.Printf("  Exit:            stop %.1f%%, take profit %.1f%%, RSI > %.0f\n",
		cfg.Signals.StopLossPct, cfg.Signals.TakeProfitPct, cfg.Signals.RSIExit)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Cache:           %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
	output.Printf("  Database:        %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notify.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notify.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notify.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notify.Telegram.Enabled)
	output.Printf("  Kafka:           %v\n", cfg.Notify.Kafka.Enabled)
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Recommend:       %s\n", cfg.Schedule.RecommendCron)
	output.Printf("  Monitor:         %s\n", cfg.Schedule.MonitorCron)
	output.Printf("  Timezone:        %s\n", cfg.Schedule.Timezone)
	output.Printf("  API address:     %s\n", cfg.API.Addr)
	output.Printf("  Summaries:       %v\n", cfg.Summary.Enabled())
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
