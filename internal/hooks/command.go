package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHook returns a Handler that runs entry.Command through sh -c with
// the JSON payload on stdin and LINEBOT_EVENT set in the environment.
func CommandHook(entry config.HookEntry) Handler {
	timeout := defaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "LINEBOT_EVENT="+p.Event)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(out.String())
			if len(msg) > 200 {
				msg = msg[:200]
			}
			if msg != "" {
				return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterCommands installs the command hooks configured in cfg and
// returns how many were registered.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	byEvent := map[string][]config.HookEntry{
		EventMessageReceived:      cfg.MessageReceived,
		EventReplySent:            cfg.ReplySent,
		EventHistoryCleared:       cfg.HistoryCleared,
		EventCredentialRegistered: cfg.CredentialRegistered,
		EventGatewayStart:         cfg.GatewayStart,
		EventGatewayStop:          cfg.GatewayStop,
	}

	n := 0
	for _, event := range AllEvents {
		for i, entry := range byEvent[event] {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("command-%d", i), CommandHook(entry))
			n++
		}
	}
	return n
}
