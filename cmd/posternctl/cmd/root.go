package cmd

import "github.com/spf13/cobra"

var (
	baseURL string
	apiKey  string

	// Version is set by the main package via ldflags.
	Version = "dev"
)

// NewRootCmd creates the root posternctl command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "posternctl",
		Short:   "Postern CLI — operate the posternd secure wrapper",
		Version: Version,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8787", "posternd base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (default: POSTERN_API_KEY env var)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newSecretsCmd())

	return rootCmd
}
