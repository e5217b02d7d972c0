package cli

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"equity-scanner/internal/api"
	"equity-scanner/internal/notify"
	"equity-scanner/internal/scheduler"
	"equity-scanner/internal/stream"
)

// addUtilityCommands adds the long-running commands.
func addUtilityCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newScheduleCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and Prometheus metrics",
		Long: `Start the HTTP API:

  GET    /health
  GET    /metrics
  POST   /api/scan
  GET    /api/analyze/:symbol
  GET    /api/recommend
  GET    /api/watchlist          POST /api/watchlist
  DELETE /api/watchlist/:symbol  GET  /api/watchlist/check
  GET    /api/alerts
  GET    /api/runs
  GET    /api/stream?types=alert,report   (websocket)

With --schedule the cron jobs run in the same process and their
notifications are also pushed to /api/stream clients.`,
		Example: `  scanner serve
  scanner serve --addr 127.0.0.1:9090 --schedule`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if cmd.Flags().Changed("addr") {
				app.Config.API.Addr, _ = cmd.Flags().GetString("addr")
			}
			withSchedule, _ := cmd.Flags().GetBool("schedule")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}

			var hub *stream.Hub
			if app.Config.API.StreamHistory > 0 {
				hub = stream.NewHub(stream.HubConfig{
					SubscriberBuffer: stream.DefaultHubConfig().SubscriberBuffer,
					History:          app.Config.API.StreamHistory,
				})
				svc.Notifier.AddChannel(hub)
			}

			if withSchedule {
				sched, err := newScheduler(app, svc)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			h := api.NewHandler(svc.Scanner, svc.Watchlist, svc.Store, svc.Summarizer, api.Options{
				MaxSymbols:   app.Config.API.MaxSymbols,
				Universe:     svc.Universe.Symbols,
				MarketSymbol: app.Config.Scan.MarketSymbol,
				RecommendTop: app.Config.Scan.RecommendTop,
			}, app.Logger)
			h.AddHealthCheck(api.PingCheck("store", 250*time.Millisecond, svc.Store.Ping))
			if svc.Redis != nil {
				h.AddHealthCheck(api.PingCheck("redis", 100*time.Millisecond, svc.Redis.Ping))
			}
			if svc.Breaker != nil {
				h.AddHealthCheck(api.BreakerCheck(svc.Breaker))
			}
			if hub != nil {
				h.EnableStream(hub)
			}
			server := api.NewServer(app.Config.API, h, svc.Metrics, app.Logger)

			if !output.IsJSON() {
				output.Info("Listening on %s (Ctrl+C to stop)", app.Config.API.Addr)
			}
			return server.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default: api.addr)")
	cmd.Flags().Bool("schedule", false, "also run the scheduled jobs")
	return cmd
}

func newScheduleCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the scheduled jobs until interrupted",
		Long: `Run the daily recommendation job and the watchlist monitor on their cron
schedules (schedule.recommend_cron and schedule.monitor_cron, evaluated in
schedule.timezone). Jobs are skipped on weekends.

Notifications go to the configured channels and, with --terminal, to this
terminal as well.`,
		Example: `  scanner schedule
  scanner schedule --run-now --terminal --bell`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			runNow, _ := cmd.Flags().GetBool("run-now")
			terminal, _ := cmd.Flags().GetBool("terminal")
			bell, _ := cmd.Flags().GetBool("bell")

			svc, err := app.Services(ctx)
			if err != nil {
				return err
			}
			if terminal {
				svc.Notifier.AddChannel(notify.NewTerminalChannel(cmd.OutOrStdout(), output.colorEnabled, bell))
			}

			sched, err := newScheduler(app, svc)
			if err != nil {
				return err
			}

			if runNow {
				if err := sched.RunMonitorNow(ctx); err != nil {
					output.Warning("Monitor job failed: %v", err)
				}
				if err := sched.RunRecommendNow(ctx); err != nil {
					output.Warning("Recommend job failed: %v", err)
				}
			}

			sched.Start()
			if !output.IsJSON() {
				printNextRuns(output, sched.Next())
				output.Dim("Press Ctrl+C to stop")
			}

			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().Bool("run-now", false, "run both jobs once before waiting")
	cmd.Flags().Bool("terminal", false, "print notifications to this terminal")
	cmd.Flags().Bool("bell", false, "ring the terminal bell on alerts")
	return cmd
}

func newScheduler(app *App, svc *Services) (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		Schedule:     app.Config.Schedule,
		Universe:     svc.Universe.Symbols,
		MarketSymbol: app.Config.Scan.MarketSymbol,
		RecommendTop: app.Config.Scan.RecommendTop,
	}, scheduler.Deps{
		Recommender: svc.Scanner,
		Monitor:     svc.Monitor,
		Watchlist:   svc.Watchlist,
		Store:       svc.Store,
		Notifier:    svc.Notifier,
		Recorder:    svc.Metrics,
	}, app.Logger)
}

func printNextRuns(output *Output, next map[string]time.Time) {
	jobs := make([]string, 0, len(next))
	for job := range next {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	for _, job := range jobs {
		output.Printf("  %-10s next run %s\n", job, next[job].Local().Format("Mon 2006-01-02 15:04 MST"))
	}
}
