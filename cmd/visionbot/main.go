package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/visionbot/internal/auth"
	"github.com/memohai/visionbot/internal/config"
)

// version can be overridden at build time via -ldflags "-X main.version=1.2.3".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "visionbot",
		Short:         "Bot messaging webhook that greets new members and echoes image uploads",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newTokenCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the messaging endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject    string
		channel    bool
		serviceURL string
		expiresIn  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token, or with --channel a channel token signed with bot.hmac_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			var token string
			if channel {
				issuer := ""
				if len(cfg.Bot.Issuers) > 0 {
					issuer = cfg.Bot.Issuers[0]
				}
				token, _, err = auth.GenerateChannelToken(auth.ChannelToken{
					AppID:      cfg.Bot.AppID,
					Issuer:     issuer,
					ServiceURL: serviceURL,
				}, cfg.Bot.HMACSecret, orDefault(expiresIn, time.Hour))
			} else {
				token, _, err = auth.GenerateAdminToken(subject, cfg.Admin.JWTSecret, orDefault(expiresIn, cfg.Admin.Expiry()))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "subject of the admin token")
	cmd.Flags().BoolVar(&channel, "channel", false, "mint a channel token instead of an admin token")
	cmd.Flags().StringVar(&serviceURL, "service-url", "", "serviceurl claim of the channel token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime (defaults to admin.jwt_expires_in, or 1h for channel tokens)")
	return cmd
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
