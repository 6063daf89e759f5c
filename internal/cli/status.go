package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/gateway"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and query the running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "linebot %s (commit %s)\n\n", version.Version, version.Commit)
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s metrics=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.MetricsEnabled())
			fmt.Fprintf(out, "Backend: provider=%s chat=%s image=%s transcribe=%s\n",
				cfg.Backend.Provider, cfg.Backend.ChatModel, cfg.Backend.ImageModel, cfg.Backend.TranscriptionModel)
			fmt.Fprintf(out, "Session: exchanges=%d maxSessions=%d clearOnError=%v\n",
				cfg.Session.Exchanges, cfg.Session.MaxSessions, cfg.Session.ClearHistoryOnError())
			fmt.Fprintf(out, "Store:   driver=%s path=%s\n", cfg.Store.Driver, paths.StorePath(cfg.Store))
			if f := paths.LogFile(cfg.Logging); f != "" {
				fmt.Fprintf(out, "Log:     %s\n", f)
			}
			fmt.Fprintf(out, "Channels: %s\n", strings.Join(configuredChannels(cfg), ", "))

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			if addr == "" {
				addr = fmt.Sprintf("127.0.0.1:%d", cfg.Gateway.Port)
			}
			fmt.Fprintln(out)
			health, err := fetchHealth(addr)
			if err != nil {
				fmt.Fprintf(out, "Server:  not reachable at %s (%v)\n", addr, err)
				return nil
			}
			fmt.Fprintf(out, "Server:  %s version=%s uptime=%s\n", health.Status, health.Version, health.Uptime)
			for _, ch := range health.Channels {
				fmt.Fprintf(out, "  %-8s running=%v connected=%v %s\n", ch.ChannelID, ch.Running, ch.Connected, ch.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server address (default 127.0.0.1:<gateway.port>)")
	return cmd
}

func configuredChannels(cfg config.Config) []string {
	var names []string
	if cfg.Channels.LINE != nil {
		names = append(names, "line")
	}
	if cfg.Channels.IRC != nil {
		names = append(names, "irc")
	}
	if cfg.Channels.Webchat != nil {
		names = append(names, "webchat")
	}
	if len(names) == 0 {
		names = []string{"(none)"}
	}
	return names
}

func fetchHealth(addr string) (gateway.HealthResponse, error) {
	var health gateway.HealthResponse
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return health, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("unexpected status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	return health, err
}
