package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.bootstrap(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			token, err := rt.engine.Authenticator().IssueToken(user, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject of the token")
	cmd.Flags().StringVar(&role, "role", "", "role claim of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
