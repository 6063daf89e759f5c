package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel/irc"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel/line"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/channel/webchat"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/gateway"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/routing"
	"github.com/spf13/cobra"
)

// drainTimeout bounds how long shutdown waits for in-flight replies.
const drainTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			root, closeLog, err := logging.Open(cfg.Logging.Level, cfg.Logging.ConsoleStyle, paths.LogFile(cfg.Logging))
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newCore(ctx, cfg, root)
			if err != nil {
				return err
			}
			defer app.Close()

			channels, err := buildChannels(cfg, root)
			if err != nil {
				return err
			}
			if channels.Count() == 0 {
				root.Warn().Msg("no channels configured; only health and metrics will be served")
			}

			router := routing.NewRouter(channels, app.dispatcher, app.hooks, root)
			router.Wire()
			channels.StartAll(ctx)
			root.Info().
				Strs("channels", channels.List()).
				Str("provider", cfg.Backend.Provider).
				Str("model", cfg.Backend.ChatModel).
				Msg("message routing active")

			srv := gateway.New(cfg.Gateway, root,
				gateway.WithChannels(channels),
				gateway.WithHooks(app.hooks),
			)
			serveErr := srv.Start(ctx)

			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := router.Wait(drainCtx); err != nil {
				root.Warn().Err(err).Msg("shutdown before all replies were sent")
			}
			channels.StopAll(drainCtx)
			return serveErr
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (lan, loopback, custom)")

	return cmd
}

// buildChannels registers every configured channel.
func buildChannels(cfg config.Config, log *logging.Logger) (*channel.Registry, error) {
	channels := channel.NewRegistry(log)

	if cfg.Channels.LINE != nil {
		ch, err := line.New(*cfg.Channels.LINE, log)
		if err != nil {
			return nil, err
		}
		channels.Register(ch)
	}
	if cfg.Channels.IRC != nil {
		channels.Register(irc.New(*cfg.Channels.IRC, log))
	}
	if cfg.Channels.Webchat != nil {
		channels.Register(webchat.New(*cfg.Channels.Webchat, cfg.Gateway.AllowedOrigins, log))
	}
	return channels, nil
}
