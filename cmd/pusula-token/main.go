package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pusulahq/pusula/backend/internal/auth"
	"github.com/pusulahq/pusula/backend/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	var (
		subject string
		ttl     time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "pusula-token",
		Short: "Issue an operator bearer token for the Pusula API",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.ApplyDefaults(viper.GetViper())
			secret := viper.GetString("auth.signing_secret")
			if secret == "" {
				return errors.New("auth signing secret is required (PUSULA_AUTH_SIGNING_SECRET)")
			}
			if subject == "" {
				return errors.New("subject is required")
			}

			issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(secret),
				Issuer:        viper.GetString("auth.issuer"),
				Audience:      viper.GetString("auth.audience"),
				TokenTTL:      ttl,
			})
			token, expiresIn, err := issuer.IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires in %d seconds\n", expiresIn)
			return nil
		},
	}

	rootCmd.Flags().StringVar(&subject, "subject", "", "Operator identifier embedded in the token")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "Token lifetime")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
