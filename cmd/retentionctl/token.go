package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pennywise/observability/internal/service"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a session token",
	Long: `Sign a session token with JWT_SECRET, for operator access to the admin
and retention endpoints or for smoke tests.

Examples:
  retentionctl token --user ops-1 --admin --ttl 1h`,
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")
		admin, _ := cmd.Flags().GetBool("admin")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := service.NewTokenService(cfg.JWTSecret, cfg.AppName, nil).GenerateToken(userID, admin, ttl)
		if err != nil {
			fail("failed to issue token: %v", err)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "Expires %s\n", time.Now().Add(ttl).Format(time.RFC3339))
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "User id (required)")
	tokenCmd.Flags().Bool("admin", false, "Grant operator access")
	tokenCmd.Flags().Duration("ttl", service.DefaultTokenTTL, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
