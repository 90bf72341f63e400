package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Goden-Gun/transport-core/pkg/auth"
)

var tokenScope string

var tokenCmd = &cobra.Command{
	Use:   "token <client-id>",
	Short: "Issue a channel token signed with auth.secret_key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		issued, err := auth.IssueChannelToken(args[0], tokenScope, auth.FromConfig(cfg.Auth))
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(issued)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenScope, "scope", "", "scope claim")
	rootCmd.AddCommand(tokenCmd)
}
