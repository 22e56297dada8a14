package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"iwasp/internal/session"
)

var tokenOpts struct {
	session string
	order   string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a session token for local testing",
	Long: `Sign a session token with the configured secret. In production tokens
are issued by the order service; this command exists for development and
support.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := session.NewService(cfg.Session.Secret, cfg.Session.Issuer)
		if err != nil {
			return err
		}
		token, err := svc.Issue(tokenOpts.session, tokenOpts.order, tokenOpts.ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenOpts.session, "session", "", "session id")
	f.StringVar(&tokenOpts.order, "order", "", "order number")
	f.DurationVar(&tokenOpts.ttl, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("session")
	_ = tokenCmd.MarkFlagRequired("order")
}
