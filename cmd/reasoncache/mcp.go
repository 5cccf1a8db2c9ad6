package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/blueberrycongee/reasoncache"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var principal reasoncache.Principal
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the reasoning and cache tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := opts.bootstrap(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			rt.logger.Info("mcp server listening on stdio", "user_id", principal.UserID, "role", principal.Role)
			return rt.engine.MCPServer(principal).ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&principal.UserID, "user", "", "principal user id for access checks")
	cmd.Flags().StringVar(&principal.Role, "role", "", "principal role for access checks")
	return cmd
}
