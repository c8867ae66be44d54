package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	serrors "github.com/x5uw/SyncRoom/internal/errors"
	"github.com/x5uw/SyncRoom/internal/server"
)

var (
	tokenPrincipal string
	tokenTTL       time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a principal",
	Long: `Sign an HS256 token with server.jwt_secret whose subject is the principal.
Useful for local testing against 'syncroom serve' without an auth provider.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenPrincipal, "principal", "p", "", "principal id (default: from 'credentials set')")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return serrors.WithSuggestion(
			fmt.Errorf("%w: server.jwt_secret is not set", serrors.ErrInvalidConfig),
			"Set server.jwt_secret or SYNCROOM_SERVER_JWT_SECRET")
	}
	principal, err := principalOrDefault(tokenPrincipal)
	if err != nil {
		return err
	}

	token, err := server.NewAuthenticator(cfg.Server.JWTSecret).Issue(principal, tokenTTL)
	if err != nil {
		return err
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"token":      token,
			"principal":  principal,
			"expires_at": time.Now().Add(tokenTTL),
		})
	}
	fmt.Println(token)
	return nil
}
