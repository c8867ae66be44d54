package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/x5uw/SyncRoom/internal/core"
	"github.com/x5uw/SyncRoom/internal/spotify/auth"
)

var (
	credsPrincipal    string
	credsRefreshToken string
	credsAccessToken  string
	credsSkipVerify   bool
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored Spotify credentials",
	Long: `Commands for storing a principal's Spotify refresh token.

Hosts and listeners both need stored credentials: the server exchanges them
for short-lived access tokens every time it reads or steers a device.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a refresh token for a principal",
	Long: `Verify a Spotify refresh token against the token endpoint, store it for the
principal and remember the principal as the default for later commands.`,
	RunE: runCredentialsSet,
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the default principal",
	RunE:  runCredentialsShow,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Forget the default principal",
	Long:  `Removes the local credentials file. Tokens already in the store are kept.`,
	RunE:  runCredentialsDelete,
}

func init() {
	credentialsSetCmd.Flags().StringVar(&credsPrincipal, "principal", "", "principal id (JWT subject)")
	credentialsSetCmd.Flags().StringVar(&credsRefreshToken, "refresh-token", "", "Spotify refresh token")
	credentialsSetCmd.Flags().StringVar(&credsAccessToken, "access-token", "", "current Spotify access token (optional)")
	credentialsSetCmd.Flags().BoolVar(&credsSkipVerify, "skip-verify", false, "store the token without exchanging it first")
	_ = credentialsSetCmd.MarkFlagRequired("principal")
	_ = credentialsSetCmd.MarkFlagRequired("refresh-token")

	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	deps, err := openDeps(ctx, nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	creds := core.Credentials{
		PrincipalID:  credsPrincipal,
		AccessToken:  credsAccessToken,
		RefreshToken: credsRefreshToken,
	}

	var account string
	if !credsSkipVerify {
		tok, err := deps.broker.RefreshToken(ctx, creds.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to verify refresh token: %w", err)
		}
		creds.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			creds.RefreshToken = tok.RefreshToken
		}

		user, err := deps.client.GetCurrentUser(ctx, tok.AccessToken)
		if err != nil {
			log.Debugw("could not read Spotify profile", "err", err)
		} else {
			account = user.DisplayName
			if account == "" {
				account = user.ID
			}
		}
	}

	if err := deps.manager.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	file, err := auth.NewCredentialsFile("")
	if err != nil {
		return fmt.Errorf("failed to initialize credentials file: %w", err)
	}
	creds.UpdatedAt = time.Now()
	if err := file.Save(&creds); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"status":    "saved",
			"principal": creds.PrincipalID,
			"account":   account,
			"verified":  !credsSkipVerify,
		})
	}

	if account != "" {
		fmt.Printf("Stored credentials for %s (Spotify: %s)\n", creds.PrincipalID, account)
	} else {
		fmt.Printf("Stored credentials for %s\n", creds.PrincipalID)
	}
	return nil
}

func runCredentialsShow(cmd *cobra.Command, args []string) error {
	file, err := auth.NewCredentialsFile("")
	if err != nil {
		return fmt.Errorf("failed to initialize credentials file: %w", err)
	}

	creds, err := file.Load()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if JSONOutput() {
		out := map[string]interface{}{
			"stored": creds != nil,
			"path":   file.Path(),
		}
		if creds != nil {
			out["principal"] = creds.PrincipalID
			out["updated_at"] = creds.UpdatedAt
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	if creds == nil {
		fmt.Println("No default principal. Run 'syncroom credentials set' to store one.")
		return nil
	}

	fmt.Printf("Principal: %s\n", creds.PrincipalID)
	fmt.Printf("Updated:   %s\n", humanize.Time(creds.UpdatedAt))
	if Verbose() {
		fmt.Printf("File:      %s\n", file.Path())
	}
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	file, err := auth.NewCredentialsFile("")
	if err != nil {
		return fmt.Errorf("failed to initialize credentials file: %w", err)
	}

	if err := file.Delete(); err != nil {
		return fmt.Errorf("failed to delete credentials file: %w", err)
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"status": "deleted"})
	}
	fmt.Println("Forgot the default principal.")
	return nil
}
