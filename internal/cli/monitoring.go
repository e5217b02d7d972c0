package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"equity-scanner/internal/models"
	"equity-scanner/internal/monitor"
	"equity-scanner/internal/scheduler"
	"equity-scanner/internal/watchlist"
	"equity-scanner/pkg/utils"
)

// addMonitoringCommands adds watchlist, monitor, alerts and history.
func addMonitoringCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newMonitorCmd(app))
	rootCmd.AddCommand(newAlertsCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Manage the watchlist",
		Long: `Keep a list of symbols to watch for entry signals.

A symbol added without --target gets a default target of the lower
Bollinger band or 5% below the current price, whichever is lower.`,
	}

	addCmd := &cobra.Command{
		Use:   "add <symbol>",
		Short: "Add or update a watchlist entry",
		Example: `  scanner watchlist add AAPL
  scanner watchlist add NVDA --target 110 --note "earnings dip"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			target, _ := cmd.Flags().GetFloat64("target")
			note, _ := cmd.Flags().GetString("note")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			entry, err := svc.Watchlist.Add(ctx, args[0], target, note)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(entry)
			}
			output.Success("✓ Watching %s at %s (target %s)",
				entry.Symbol, utils.FormatPrice(entry.AddedPrice), utils.FormatPrice(entry.TargetPrice))
			return nil
		},
	}
	addCmd.Flags().Float64("target", 0, "target entry price (default: derived from the bands)")
	addCmd.Flags().String("note", "", "free-form note")

	removeCmd := &cobra.Command{
		Use:     "remove <symbol>",
		Aliases: []string{"rm"},
		Short:   "Remove a symbol from the watchlist",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			symbol := models.NormalizeSymbol(args[0])
			if err := svc.Watchlist.Remove(ctx, symbol); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"removed": symbol})
			}
			output.Success("✓ Removed %s", symbol)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List watched symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			entries, err := svc.Watchlist.List(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if entries == nil {
					entries = []models.WatchlistEntry{}
				}
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Info("Watchlist is empty. Add symbols with 'scanner watchlist add'.")
				return nil
			}
			table := NewTable(output, "Symbol", "Added", "Added at", "Target", "Note")
			for _, e := range entries {
				table.AddRow(
					output.BoldText(e.Symbol),
					utils.FormatPrice(e.AddedPrice),
					FormatDate(e.AddedAt),
					utils.FormatPrice(e.TargetPrice),
					TruncateString(e.Note, 30),
				)
			}
			table.Render()
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate entry signals for every watched symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			send, _ := cmd.Flags().GetBool("notify")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			result, err := svc.Watchlist.Check(ctx)
			if err != nil {
				return err
			}
			if send {
				if err := svc.Notifier.SendEntrySignals(ctx, result); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to send entry signals")
				}
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printWatchlistCheck(output, result)
			return nil
		},
	}
	checkCmd.Flags().Bool("notify", false, "send fired signals to the configured channels")

	cmd.AddCommand(addCmd, removeCmd, listCmd, checkCmd)
	return cmd
}

func printWatchlistCheck(output *Output, result watchlist.CheckResult) {
	if len(result.Statuses) == 0 && len(result.Failures) == 0 {
		output.Info("Watchlist is empty.")
		return
	}

	table := NewTable(output, "Symbol", "Price", "Since added", "Target", "RSI", "BB%", "Signal")
	for _, s := range result.Statuses {
		signal := output.DimText(EntryLabel(s.Signal))
		if s.Signal.Fired {
			signal = output.Green(EntryLabel(s.Signal))
		}
		table.AddRow(
			output.BoldText(s.Entry.Symbol),
			utils.FormatPrice(s.Price),
			output.Signed(s.ChangePct, utils.FormatPercent(s.ChangePct)),
			utils.FormatPrice(s.Entry.TargetPrice),
			fmt.Sprintf("%.1f", s.Signal.RSI),
			fmt.Sprintf("%.1f", s.Signal.BBPosition),
			signal,
		)
	}
	table.Render()

	output.Println()
	if n := len(result.Signals()); n > 0 {
		output.Success("%d entry signal(s) fired", n)
	} else {
		output.Dim("No entry signals")
	}
	if len(result.Failures) > 0 {
		output.Warning("Dropped %d: %s", len(result.Failures), FailureSummary(result.Failures))
	}
}

func newMonitorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check the watchlist for new alerts",
		Long: `Scan every watched symbol, compare it with the previous check and report
alerts for conditions that started since then: price moves, RSI and
stochastic extremes, volume spikes, level breaks, crossovers and patterns
on the latest bar.`,
		Example: `  scanner monitor
  scanner monitor --notify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			send, _ := cmd.Flags().GetBool("notify")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			symbols, err := svc.Watchlist.Symbols(ctx)
			if err != nil {
				return err
			}
			if len(symbols) == 0 {
				if output.IsJSON() {
					return output.JSON(monitor.Report{Results: []monitor.Result{}})
				}
				output.Info("Watchlist is empty. Add symbols with 'scanner watchlist add'.")
				return nil
			}

			start := time.Now()
			report, err := svc.Monitor.Check(ctx, symbols)
			if err != nil {
				return err
			}
			svc.Metrics.RecordAlerts(allAlerts(report))
			run := scheduler.MonitorRun(report, len(symbols), start, time.Since(start))
			if err := svc.Store.SaveScanRun(ctx, run); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to save monitor run")
			}
			if send {
				if err := svc.Notifier.SendAlerts(ctx, report, start); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to send alerts")
				}
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			printMonitorReport(output, report, start)
			return nil
		},
	}

	cmd.Flags().Bool("notify", false, "send alerts to the configured channels")
	return cmd
}

func allAlerts(report monitor.Report) []models.Alert {
	var out []models.Alert
	for _, r := range report.Results {
		out = append(out, r.Alerts...)
	}
	return out
}

func printMonitorReport(output *Output, report monitor.Report, at time.Time) {
	withAlerts := report.WithAlerts()
	if len(withAlerts) == 0 {
		output.Dim("No new alerts for %d symbols", len(report.Results))
	} else {
		output.Println(monitor.FormatAlerts(withAlerts, at))
	}
	if len(report.Failures) > 0 {
		output.Warning("Dropped %d: %s", len(report.Failures), FailureSummary(report.Failures))
	}
}

func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts [symbol]",
		Short: "Show recently raised alerts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			limit, _ := cmd.Flags().GetInt("limit")
			var symbol string
			if len(args) == 1 {
				symbol = models.NormalizeSymbol(args[0])
			}

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			alerts, err := svc.Store.GetRecentAlerts(ctx, symbol, limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if alerts == nil {
					alerts = []models.Alert{}
				}
				return output.JSON(alerts)
			}
			if len(alerts) == 0 {
				output.Info("No alerts recorded")
				return nil
			}
			table := NewTable(output, "Raised", "Symbol", "Priority", "Alert", "Signal")
			for _, a := range alerts {
				table.AddRow(
					a.RaisedAt.Local().Format("2006-01-02 15:04"),
					output.BoldText(a.Symbol),
					priorityCell(output, a.Priority),
					TruncateString(a.Title, 40),
					TruncateString(a.Signal, 30),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "maximum number of alerts")
	return cmd
}

func priorityCell(output *Output, p models.AlertPriority) string {
	switch p {
	case models.PriorityHigh:
		return output.Red(string(p))
	case models.PriorityMedium:
		return output.Yellow(string(p))
	default:
		return output.DimText(string(p))
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scan, recommend and monitor runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			limit, _ := cmd.Flags().GetInt("limit")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			runs, err := svc.Store.GetScanRuns(ctx, limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Info("No runs recorded")
				return nil
			}
			table := NewTable(output, "Started", "Kind", "Returned", "Dropped", "Took", "Top")
			for _, r := range runs {
				table.AddRow(
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					string(r.Kind),
					fmt.Sprintf("%d/%d", r.Returned, r.Requested),
					fmt.Sprintf("%d", len(r.Failures)),
					FormatDuration(r.Duration),
					TruncateString(joinSymbols(r.TopSymbols), 30),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Int("limit", 10, "maximum number of runs")
	return cmd
}

func joinSymbols(symbols []string) string {
	if len(symbols) == 0 {
		return "-"
	}
	return strings.Join(symbols, " ")
}
