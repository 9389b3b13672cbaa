package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go_niceurl/internal/auth"
	"go_niceurl/internal/config"
	"go_niceurl/internal/db"
	"go_niceurl/internal/urlrouter"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the url_rules table",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return db.Migrate(a.db, logrus.NewEntry(a.logger))
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <path>",
	Short: "Resolve a nice path to its internal url",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		target, err := a.router.Convert(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, urlrouter.ErrNotFound) {
				return fmt.Errorf("no route for %q: %w", args[0], err)
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), target)
		return nil
	},
}

var invertCmd = &cobra.Command{
	Use:   "invert <url>...",
	Short: "Rewrite internal urls to their nice form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		for _, u := range args {
			nice, err := a.router.Invert(cmd.Context(), u)
			if err != nil {
				fmt.Fprintf(out, "%s\t%s\n", u, u)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", u, nice)
		}
		return nil
	},
}

var (
	tokenSubject string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin JWT for the rule management API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, tokenTTL(cfg))
		token, err := tokens.Generate(tokenSubject, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func tokenTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.JWT.ExpireMinutes) * time.Minute
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "token role")
}
