package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rateshop-backend/internal/shared/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Sign an HS256 bearer token accepted by an API that verifies with JWT_SECRET.

Example:
  ratectl token --sub user-1 --ttl 8h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		sub, _ := flags.GetString("sub")
		email, _ := flags.GetString("email")
		ttl, _ := flags.GetDuration("ttl")

		verifier, err := auth.NewHMACVerifier(viper.GetString("jwt_secret"), "dev")
		if err != nil {
			return err
		}
		claims := auth.Claims{Sub: sub, Email: email}
		if ttl > 0 {
			claims.Exp = time.Now().Add(ttl).Unix()
		}
		token, err := verifier.Sign(claims)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	flags := tokenCmd.Flags()
	flags.String("sub", "dev-user", "subject (user id) of the token")
	flags.String("email", "", "email claim (optional)")
	flags.Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(tokenCmd)
}
