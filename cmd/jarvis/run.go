package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jarvis/internal/channel"
	"jarvis/internal/domain"
	"jarvis/internal/history"
	"jarvis/internal/metrics"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.pruneHistory(ctx)

			tty := isatty.IsTerminal(os.Stdout.Fd())
			cli := channel.NewCLI(channel.CLIConfig{
				Responder: a.responder,
				Logger:    logger,
				Color:     cfg.Channels.CLI.Color && tty,
				Spinner:   tty,
			})
			return cli.Start(ctx)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the remote channels and the metrics endpoint",
		Long:  "Starts every enabled remote channel and, when metrics are enabled, the Prometheus endpoint. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.pruneHistory(ctx)

	g, ctx := errgroup.WithContext(ctx)
	var channels []domain.Channel

	if cfg.Channels.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:         cfg.Channels.Telegram.Token,
			AllowFrom:     cfg.Channels.Telegram.AllowFrom,
			Burst:         cfg.Channels.Telegram.Burst,
			RatePerMinute: cfg.Channels.Telegram.RatePerMinute,
			Responder:     a.responder,
			Logger:        logger,
		}))
	}
	if dc := cfg.Channels.Discord; dc.Enabled {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:         dc.Token,
			GuildID:       dc.GuildID,
			AllowFrom:     dc.AllowFrom,
			Burst:         dc.Burst,
			RatePerMinute: dc.RatePerMinute,
			Responder:     a.responder,
			Logger:        logger,
		}))
	}
	if sc := cfg.Channels.Slack; sc.Enabled {
		channels = append(channels, channel.NewSlack(channel.SlackConfig{
			BotToken:      sc.BotToken,
			AppToken:      sc.AppToken,
			AllowFrom:     sc.AllowFrom,
			Burst:         sc.Burst,
			RatePerMinute: sc.RatePerMinute,
			Responder:     a.responder,
			Logger:        logger,
		}))
	}
	if wc := cfg.Channels.WebSocket; wc.Enabled {
		channels = append(channels, channel.NewWebSocket(channel.WebSocketConfig{
			Addr:       net.JoinHostPort(wc.Host, strconv.Itoa(wc.Port)),
			Path:       wc.Path,
			Token:      wc.Token,
			Dispatcher: a.dispatcher,
			Macros:     a.sequencer,
			Responder:  a.responder,
			Logger:     logger,
		}))
	}
	for _, ch := range channels {
		g.Go(func() error {
			if err := ch.Start(ctx); err != nil {
				return fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			return nil
		})
		logger.Info("channel started", "channel", ch.Name())
	}
	started := len(channels)

	if cfg.Metrics.Enabled {
		addr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", addr, "path", cfg.Metrics.Endpoint)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		started++
	}

	if started == 0 {
		return errors.New("nothing to serve: enable a channel (telegram, discord, slack, websocket) or metrics in the config")
	}
	logger.Info("jarvis serving. Press Ctrl+C to stop.")
	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func doCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "do <intent...>",
		Short: "Run one command line or tool-call JSON and print the results",
		Example: `  jarvis do set_volume 40
  jarvis do get_weather city=London
  jarvis do '{"name":"get_joke"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.responder.Handle(ctx, "cmd", strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(results)
			}
			failed := 0
			for _, res := range results {
				fmt.Printf("[%s] %s\n", res.Status, res.Message)
				if res.Status != domain.StatusOK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d intents failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func macroCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macro",
		Short: "List and run macros",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List macros loaded from the macros directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			macros := a.sequencer.Book().List()
			if len(macros) == 0 {
				fmt.Printf("No macros in %s\n", cfg.Paths.Macros)
				return nil
			}
			for _, m := range macros {
				steps := make([]string, len(m.Steps))
				for i, s := range m.Steps {
					steps[i] = s.Capability
				}
				fmt.Printf("  %-16s %s\n", m.Name, strings.Join(steps, " → "))
				if m.Description != "" {
					fmt.Printf("  %-16s %s\n", "", m.Description)
				}
			}
			return nil
		},
	})

	var asJSON bool
	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a macro and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sequencer.Run(history.WithSource(ctx, "cmd"), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(report)
			}
			for _, step := range report.Steps {
				line := fmt.Sprintf("  %d. %-24s %s", step.Index, step.Capability, step.State)
				if step.Result != nil {
					line += "  " + step.Result.Message
				}
				fmt.Println(line)
			}
			fmt.Println(report.Summary())
			if !report.OK() {
				return errors.New("macro did not complete")
			}
			return nil
		},
	}
	run.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.AddCommand(run)
	return cmd
}
