package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/postern-ai/postern/pkg/protocol"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show posternd health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp protocol.HealthResponse
			if err := apiGet("/healthz", &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("posternd at %s reports unhealthy", baseURL)
			}

			fmt.Printf("posternd at %s is healthy\n", baseURL)
			return nil
		},
	}
}
