package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/store"
	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users with masked credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			creds, err := openCredentials(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer creds.Close()

			all, err := store.LoadAll(ctx, creds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, "no registered users")
				return nil
			}

			ids := make([]string, 0, len(all))
			for id := range all {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tCREDENTIAL")
			for _, id := range ids {
				fmt.Fprintf(tw, "%s\t%s\n", id, domain.MaskCredential(all[id]))
			}
			return tw.Flush()
		},
	}
}
