package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

func newRootCommand() *cobra.Command {
	var serverFlag string
	var timeoutFlag time.Duration

	client := func() *apiClient {
		return newAPIClient(serverFlag, &http.Client{Timeout: timeoutFlag})
	}

	rootCmd := &cobra.Command{
		Use:           "providerctl",
		Short:         "Inspect and reset image providers of a running gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	server := os.Getenv("GATEWAY_URL")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", server, "Gateway base URL (env GATEWAY_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(newStatusCommand(client))
	rootCmd.AddCommand(newResetCommand(client))

	return rootCmd
}
