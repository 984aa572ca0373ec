package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"MetalPulse/internal/di"
	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/service/pricesource"
	"MetalPulse/pkg/config"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "metalctl",
		Short:        "Operate a MetalPulse store: seed history, run a cycle, inspect data",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file path")

	rootCmd.AddCommand(seedCmd(), collectCmd(), triggerCmd(), historyCmd(), latestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withToolkit(fn func(ctx context.Context, tk *di.Toolkit) error) error {
	cfg, err := config.LoadWithEnv(cfgFile)
	if err != nil {
		return err
	}
	// Keep CLI output readable; only problems are logged.
	if cfg.Log.Level == "info" || cfg.Log.Level == "debug" {
		cfg.Log.Level = "warn"
	}

	tk, err := di.InitializeToolkit(cfg)
	if err != nil {
		return err
	}
	defer tk.Close()

	return fn(context.Background(), tk)
}

func seedCmd() *cobra.Command {
	var (
		days     int
		interval time.Duration
		seed     int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a simulated price history so analysis has a window from the first cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			if interval < time.Minute {
				return fmt.Errorf("--interval must be at least 1m")
			}
			return withToolkit(func(ctx context.Context, tk *di.Toolkit) error {
				n := int(time.Duration(days) * 24 * time.Hour / interval)
				src := pricesource.NewSimulatedSource(pricesource.SimulatedConfig{Seed: seed})
				series := src.Series(time.Now().UTC().Add(-interval), n, interval)

				bar := progressbar.NewOptions(len(series),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Seeding"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]█[reset]",
						SaucerHead:    "[green]█[reset]",
						SaucerPadding: "░",
						BarStart:      "[",
						BarEnd:        "]",
					}),
				)
				for _, o := range series {
					if err := tk.Store.SaveObservation(ctx, o); err != nil {
						return fmt.Errorf("save observation at %s: %w", o.Timestamp.Format(time.RFC3339), err)
					}
					_ = bar.Add(1)
				}
				_ = bar.Finish()
				fmt.Printf("\nseeded %d observations into %s\n", len(series), tk.Store.Name())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days of history to generate")
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "spacing between observations")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random walk seed")
	return cmd
}

func collectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one pipeline cycle now and print its outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withToolkit(func(ctx context.Context, tk *di.Toolkit) error {
				run, err := tk.Orchestrator.Trigger(ctx, "cli:"+reason)
				if err != nil {
					return err
				}
				printRun(run)
				if !run.Success {
					return fmt.Errorf("cycle aborted")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded on the run")
	return cmd
}

func triggerCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running service for a cycle over Redis or Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withToolkit(func(ctx context.Context, tk *di.Toolkit) error {
				via, err := tk.RequestCycle(ctx, reason)
				if err != nil {
					return err
				}
				fmt.Printf("collect requested via %s\n", via)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "cli", "reason recorded on the run")
	return cmd
}

func historyCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored observations for the last N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withToolkit(func(ctx context.Context, tk *di.Toolkit) error {
				h, err := tk.Queries.History(ctx, days)
				if err != nil {
					return err
				}
				table := tablewriter.NewTable(os.Stdout,
					tablewriter.WithHeader([]string{"Time", "Gold", "Silver", "Platinum"}),
				)
				for i := range h.Timestamps {
					table.Append([]string{
						h.Timestamps[i].Local().Format("2006-01-02 15:04"),
						fmt.Sprintf("%.2f", h.GoldPrices[i]),
						fmt.Sprintf("%.2f", h.SilverPrices[i]),
						optional(h.PlatinumPrices[i]),
					})
				}
				table.Render()
				fmt.Printf("%d observations\n", h.Count)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "days to show")
	return cmd
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the newest observation, statistics and narrative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withToolkit(func(ctx context.Context, tk *di.Toolkit) error {
				v, err := tk.Queries.Latest(ctx)
				if err != nil {
					return err
				}
				if o := v.Observation; o != nil {
					fmt.Printf("Observation %s (%s)\n", o.Timestamp.Local().Format(time.RFC3339), o.Source)
					fmt.Printf("  gold %.2f  silver %.2f  platinum %s\n\n", o.GoldPrice, o.SilverPrice, optional(o.PlatinumPrice))
				}
				if s := v.Statistics; s != nil {
					printStats(s)
				}
				if n := v.Narrative; n != nil {
					fmt.Printf("Narrative by %s (confidence %.2f, fallback %t)\n", n.SourceModel, n.Confidence, n.Fallback)
					for _, sec := range []struct{ title, body string }{
						{"Market analysis", n.MarketAnalysis},
						{"Trend prediction", n.TrendPrediction},
						{"Investment advice", n.InvestmentAdvice},
						{"Risk warning", n.RiskWarning},
					} {
						fmt.Printf("\n[%s]\n%s\n", sec.title, sec.body)
					}
				}
				return nil
			})
		},
	}
}

func printStats(s *models.StatisticsSnapshot) {
	fmt.Printf("Statistics (%s, %d points)\n", s.Period, s.DataPoints)
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Metal", "Avg", "Max", "Min", "Std", "Median"}),
	)
	for _, m := range models.Metals {
		st := s.PerMetal.Get(m)
		table.Append([]string{
			string(m),
			fmt.Sprintf("%.2f", st.Avg),
			fmt.Sprintf("%.2f", st.Max),
			fmt.Sprintf("%.2f", st.Min),
			fmt.Sprintf("%.2f", st.Std),
			fmt.Sprintf("%.2f", st.Median),
		})
	}
	table.Render()
	fmt.Println()
}

func printRun(run *models.PipelineRun) {
	fmt.Printf("Run %s  state=%s  success=%t  took=%s\n", run.ID, run.State, run.Success, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.Observation != nil {
		fmt.Printf("  gold %.2f  silver %.2f  platinum %s\n", run.Observation.GoldPrice, run.Observation.SilverPrice, optional(run.Observation.PlatinumPrice))
	}
	if run.Trend != nil {
		for _, m := range models.Metals {
			t := run.Trend.PerMetal.Get(m)
			fmt.Printf("  %-8s %-12s %+.2f%%\n", m, t.Direction, t.ChangePercent)
		}
	}
	if len(run.StageErrors) == 0 {
		return
	}
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Stage", "Error"}),
	)
	for _, se := range run.StageErrors {
		table.Append([]string{string(se.Stage), se.Message})
	}
	table.Render()
}

func optional(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}
