package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/postern-ai/postern/pkg/protocol"
)

func newTokenCmd() *cobra.Command {
	var sub string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a short-lived single-use bearer token",
		Long: `Exchanges the static API key for a bearer token bound to a subject. The
token expires after the daemon's configured TTL and is rejected on reuse.
The token is printed to stdout for piping into the agent's environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" {
				return fmt.Errorf("--sub is required")
			}
			if resolveAPIKey() == "" {
				return fmt.Errorf("no API key; pass --api-key or set POSTERN_API_KEY")
			}

			var resp protocol.TokenResponse
			if err := apiPost("/v1/auth/token", protocol.TokenRequest{Sub: sub}, &resp); err != nil {
				return err
			}

			fmt.Println(resp.Token)
			fmt.Fprintf(os.Stderr, "token for %q expires in %ds and is single-use\n", sub, resp.TTLSeconds)
			return nil
		},
	}

	cmd.Flags().StringVar(&sub, "sub", "", "subject to bind the token to")

	return cmd
}
