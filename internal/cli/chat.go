package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Dispatch messages locally as a user and print the replies",
		Long: "With arguments, dispatches a single message. Without, reads one message per " +
			"line from stdin. Commands such as /register and /system behave as they do on LINE, " +
			"and registrations are saved to the configured credential store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newCore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				chatOnce(ctx, app, out, userID, strings.Join(args, " "))
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				chatOnce(ctx, app, out, userID, text)
				if ctx.Err() != nil {
					return nil
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "user ID to dispatch as")
	return cmd
}

func chatOnce(ctx context.Context, app *core, out io.Writer, userID, text string) {
	reply := app.dispatcher.Dispatch(ctx, domain.InboundEvent{
		ID:        uuid.New().String(),
		ChannelID: "cli",
		UserID:    userID,
		Kind:      domain.EventText,
		Text:      text,
		Timestamp: time.Now(),
	})
	fmt.Fprintln(out, reply.String())
}
