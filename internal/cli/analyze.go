package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/signals"
	"equity-scanner/internal/marketdata"
	"equity-scanner/internal/models"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/scheduler"
	"equity-scanner/internal/summary"
	"equity-scanner/pkg/utils"
)

// addAnalysisCommands adds scan, analyze and recommend.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newRecommendCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [symbols...]",
		Short: "Scan symbols and rank them by composite score",
		Long: `Fetch daily bars and fundamentals for each symbol, compute indicators,
patterns and scores, and print the results ranked by total score.

Without arguments the configured universe is scanned. Symbols that fail are
dropped and summarized at the end; they never fail the scan.`,
		Example: `  scanner scan
  scanner scan AAPL MSFT NVDA
  scanner scan --universe ~/lists/semis.yaml --top 10
  scanner scan --workers 4 --json
  scanner scan --csv picks.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if cmd.Flags().Changed("workers") {
				app.Config.Scan.Workers, _ = cmd.Flags().GetInt("workers")
			}
			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}

			symbols, err := scanSymbols(cmd, args, svc.Universe)
			if err != nil {
				return err
			}
			top, _ := cmd.Flags().GetInt("top")
			csvPath, _ := cmd.Flags().GetString("csv")

			if !output.IsJSON() && csvPath != "-" {
				output.Info("Scanning %d symbols with %d workers...", len(symbols), svc.Scanner.Workers())
			}
			report := svc.Scanner.Scan(ctx, symbols, scan.Options{})
			if err := svc.Store.SaveScanRun(ctx, scheduler.ScanRun(report, top)); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to save scan run")
			}

			ranked := report.Ranked()
			if top > 0 && len(ranked) > top {
				ranked = ranked[:top]
			}

			if csvPath != "" {
				if err := writeCSV(csvPath, cmd.OutOrStdout(), ranked); err != nil {
					return err
				}
				if csvPath == "-" {
					return nil
				}
				if !output.IsJSON() {
					output.Success("Wrote %d rows to %s", len(ranked), csvPath)
				}
			}

			if output.IsJSON() {
				report.Results = ranked
				return output.JSON(report)
			}
			printRanked(output, ranked)
			printScanFooter(output, report)
			return nil
		},
	}

	cmd.Flags().String("universe", "", "YAML universe file (default: configured universe)")
	cmd.Flags().Int("workers", 0, "number of concurrent workers")
	cmd.Flags().Int("top", 0, "show only the top n results")
	cmd.Flags().String("csv", "", "also write the ranked results as CSV (\"-\" for stdout only)")
	return cmd
}

// scanSymbols resolves explicit symbols, a universe file or the default
// universe, in that order.
func scanSymbols(cmd *cobra.Command, args []string, fallback marketdata.Universe) ([]string, error) {
	if len(args) > 0 {
		return models.DedupeSymbols(args), nil
	}
	if path, _ := cmd.Flags().GetString("universe"); path != "" {
		u, err := marketdata.LoadUniverse(path)
		if err != nil {
			return nil, fmt.Errorf("load universe: %w", err)
		}
		return u.Symbols, nil
	}
	return fallback.Symbols, nil
}

func printRanked(output *Output, results []scan.SignalResult) {
	if len(results) == 0 {
		output.Warning("No symbols produced a result")
		return
	}
	table := NewTable(output, "#", "Symbol", "Price", "1D", "Score", "Grade", "Risk", "RSI", "Entry", "Strategies")
	for i, r := range results {
		b := r.Bundle
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			output.BoldText(r.Symbol),
			utils.FormatPrice(b.Price),
			output.Signed(b.Change1d, utils.FormatPercent(b.Change1d)),
			FormatScore(r.Score.TotalScore),
			output.Grade(string(r.Score.Grade)),
			FormatScore(r.Score.RiskScore),
			fmt.Sprintf("%.1f", b.RSI),
			entryCell(output, r),
			TruncateString(StrategyNames(r.Strategies), 40),
		)
	}
	table.Render()
}

func entryCell(output *Output, r scan.SignalResult) string {
	if r.Entry.Fired {
		return output.Green(EntryLabel(r.Entry))
	}
	return output.DimText(FormatConditions(r.Entry))
}

func printScanFooter(output *Output, report scan.Report) {
	output.Println()
	output.Dim("%d of %d symbols analyzed in %s", report.Total, report.Requested, FormatDuration(report.Duration))
	if len(report.Failures) > 0 {
		output.Warning("Dropped %d: %s", len(report.Failures), FailureSummary(report.Failures))
	}
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Full analysis of a single symbol",
		Long: `Print indicators, candlestick patterns, support and resistance levels,
crossovers, volume, scores and entry/exit signals for one symbol.

Pass --buy-price to evaluate exit rules for a held position, and --summary
to request a short natural-language explanation.`,
		Example: `  scanner analyze AAPL
  scanner analyze NVDA --buy-price 118.50
  scanner analyze MSFT --target 400 --summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			symbol := models.NormalizeSymbol(args[0])
			buyPrice, _ := cmd.Flags().GetFloat64("buy-price")
			target, _ := cmd.Flags().GetFloat64("target")
			withSummary, _ := cmd.Flags().GetBool("summary")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}

			var opts scan.Options
			if buyPrice > 0 {
				opts.BuyPrices = map[string]float64{symbol: buyPrice}
			}
			if target > 0 {
				opts.Targets = map[string]float64{symbol: target}
			}

			result, err := svc.Scanner.Analyze(ctx, symbol, opts)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", symbol, err)
			}

			var text string
			if withSummary {
				text, err = svc.Summarizer.Summarize(ctx, result)
				if err != nil && !errors.Is(err, summary.ErrDisabled) {
					app.Logger.Warn().Err(err).Str("symbol", symbol).Msg("Summary failed")
				}
				if errors.Is(err, summary.ErrDisabled) && !output.IsJSON() {
					output.Warning("Summaries are disabled: set summary.api_key or SCANNER_OPENAI_API_KEY")
				}
			}

			if output.IsJSON() {
				return output.JSON(struct {
					*scan.SignalResult
					Summary string `json:"summary,omitempty"`
				}{result, text})
			}
			printAnalysis(output, result)
			if text != "" {
				output.Println()
				output.Bold("Summary")
				output.Println(text)
			}
			return nil
		},
	}

	cmd.Flags().Float64("buy-price", 0, "position entry price; enables exit signals")
	cmd.Flags().Float64("target", 0, "target entry price for the entry rules")
	cmd.Flags().Bool("summary", false, "add a natural-language summary")
	return cmd
}

func printAnalysis(output *Output, r *scan.SignalResult) {
	b := r.Bundle
	output.Printf("%s  %s  %s\n",
		output.BoldText(r.Symbol),
		utils.FormatPrice(b.Price),
		output.Signed(b.Change1d, utils.FormatPercent(b.Change1d)))
	output.Dim("As of %s", FormatDate(b.AsOf))
	output.Println()

	output.Bold("Trend")
	output.Printf("  MA5 %s  MA20 %s  MA50 %s  MA200 %s\n",
		utils.FormatPrice(b.MA5), utils.FormatPrice(b.MA20), utils.FormatPrice(b.MA50), utils.FormatPrice(b.MA200))
	output.Printf("  MA50 gap %s  MA200 gap %s  ADX %.1f\n",
		output.Signed(b.MA50Gap, utils.FormatPercent(b.MA50Gap)),
		output.Signed(b.MA200Gap, utils.FormatPercent(b.MA200Gap)), b.ADX)
	output.Printf("  MACD %.3f  signal %.3f  hist %s\n",
		b.MACD, b.MACDSignal, output.Signed(b.MACDHist, fmt.Sprintf("%.3f", b.MACDHist)))
	output.Println()

	output.Bold("Momentum & volatility")
	output.Printf("  RSI %.1f  Stoch %.1f/%.1f  BB position %.1f%%  ATR %s (%.1f%%)\n",
		b.RSI, b.StochK, b.StochD, b.BBPosition, utils.FormatPrice(b.ATR), b.ATRPct)
	output.Printf("  52w range %s - %s (%.1f%%)  down days %d\n",
		utils.FormatPrice(b.Low52w), utils.FormatPrice(b.High52w), b.Position52w, b.DownDays)
	output.Printf("  Volume %s (%.2fx avg)  %s\n", utils.FormatVolume(b.Volume), b.VolumeRatio, r.Volume.Description)
	output.Println()

	if len(r.Patterns) > 0 {
		output.Bold("Patterns")
		for _, p := range r.Patterns {
			output.Printf("  %s  %-20s %s\n", FormatDate(p.Date), p.Kind, p.Description)
		}
		output.Println()
	}

	if len(r.Supports) > 0 || len(r.Resistances) > 0 {
		output.Bold("Levels")
		output.Printf("  Support    %s\n", levelList(r.Supports))
		output.Printf("  Resistance %s\n", levelList(r.Resistances))
		output.Println()
	}

	if len(r.Crosses) > 0 {
		output.Bold("Crossovers")
		for _, c := range r.Crosses {
			output.Printf("  %-16s %s\n", c.Type, c.Detail)
		}
		output.Println()
	}

	s := r.Score
	output.Bold("Score")
	output.Printf("  Total %s  grade %s  %s\n", FormatScore(s.TotalScore), output.Grade(string(s.Grade)), s.Recommendation)
	output.Printf("  Factor %s  Financial %s  Risk %s (%s)\n",
		FormatScore(s.FactorScore), FormatScore(s.FinancialScore), FormatScore(s.RiskScore), s.RiskGrade)
	for _, w := range s.Warnings {
		output.Warning("  ! %s", w)
	}
	output.Println()

	output.Bold("Signals")
	output.Printf("  Entry  %s\n", EntryLabel(r.Entry))
	for _, line := range conditionLines(output, r.Entry) {
		output.Printf("         %s\n", line)
	}
	output.Printf("  Exit   %s\n", ExitLabel(r.Exit))
	output.Printf("  Fits   %s\n", StrategyNames(r.Strategies))
}

func conditionLines(output *Output, e signals.EntrySignal) []string {
	mark := func(ok bool, text string) string {
		if ok {
			return output.Green("✓ " + text)
		}
		return output.DimText("· " + text)
	}
	c := e.Conditions
	lines := []string{
		mark(c.RSIOversold, fmt.Sprintf("RSI oversold (%.1f)", e.RSI)),
		mark(c.NearBBLower, fmt.Sprintf("near lower band (%.1f%%)", e.BBPosition)),
		mark(c.BelowMA50, fmt.Sprintf("below MA50 (%s)", utils.FormatPercent(e.MA50Gap))),
		mark(c.ConsecutiveDown, fmt.Sprintf("%d down days", e.DownDays)),
	}
	if e.Target > 0 {
		lines = append(lines, mark(c.TargetReached, "target "+utils.FormatPrice(e.Target)))
	}
	return lines
}

func levelList(levels []analysis.PriceLevel) string {
	if len(levels) == 0 {
		return "-"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = utils.FormatPrice(l.Price)
	}
	return strings.Join(parts, "  ")
}

func newRecommendCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Daily picks from the universe",
		Long: `Scan the universe and keep low-risk symbols that match at least one
strategy, ordered by risk, strategy count and score. The market index is
classified alongside.`,
		Example: `  scanner recommend
  scanner recommend --limit 5 --notify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			limit, _ := cmd.Flags().GetInt("limit")
			send, _ := cmd.Flags().GetBool("notify")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = app.Config.Scan.RecommendTop
			}

			recs := svc.Scanner.Recommend(ctx, svc.Universe.Symbols, app.Config.Scan.MarketSymbol, limit)
			if send {
				if err := svc.Notifier.SendRecommendations(ctx, recs); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to send recommendations")
				}
			}

			if output.IsJSON() {
				return output.JSON(recs)
			}
			printRecommendations(output, recs)
			return nil
		},
	}

	cmd.Flags().Int("limit", 0, "maximum number of picks (default: scan.recommend_top)")
	cmd.Flags().Bool("notify", false, "send the picks to the configured channels")
	return cmd
}

func printRecommendations(output *Output, recs scan.Recommendations) {
	output.Printf("Market %s  %s\n", output.Market(string(recs.Market.Status)), recs.Market.Message)
	output.Println()

	if len(recs.Picks) == 0 {
		output.Warning("No picks today (%d symbols scanned)", recs.Scanned)
	} else {
		table := NewTable(output, "#", "Symbol", "Price", "Risk", "Score", "Grade", "Strategies")
		for i, p := range recs.Picks {
			table.AddRow(
				fmt.Sprintf("%d", i+1),
				output.BoldText(p.Symbol),
				utils.FormatPrice(p.Bundle.Price),
				FormatScore(p.Score.RiskScore),
				FormatScore(p.Score.TotalScore),
				output.Grade(string(p.Score.Grade)),
				StrategyNames(p.Strategies),
			)
		}
		table.Render()
	}

	if len(recs.Failures) > 0 {
		output.Println()
		output.Warning("Dropped %d: %s", len(recs.Failures), FailureSummary(recs.Failures))
	}
}
