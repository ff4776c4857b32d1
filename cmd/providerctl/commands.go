package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/imagegen-gateway/services/dispatcher"
)

func newStatusCommand(client func() *apiClient) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show usage and availability of every provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().providers(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, resp)
			}

			if len(resp.Providers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No providers configured")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(resp.Providers))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON response")
	return cmd
}

func newResetCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <provider>",
		Short: "Reactivate a provider and zero today's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provider %s reset\n", resp.Name)
			return nil
		},
	}
}

func renderStatus(providers []dispatcher.ProviderStatus) string {
	headers := []string{"Provider", "Model", "State", "Usage", "Limit", "Key", "Per key", "Day"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft}

	rows := make([][]string, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, []string{
			p.Name,
			p.Model,
			providerState(p),
			strconv.FormatInt(p.UsageToday, 10),
			formatLimit(p.DailyLimit),
			fmt.Sprintf("%d/%d", p.CurrentCredentialIndex+1, p.CredentialCount),
			formatUsage(p.CredentialUsage),
			p.LastResetDate,
		})
	}
	return renderTable(headers, rows, aligns)
}

func providerState(p dispatcher.ProviderStatus) string {
	switch {
	case !p.Active:
		return "inactive"
	case !p.Available:
		return "exhausted"
	default:
		return "available"
	}
}

func formatLimit(limit int) string {
	if limit == 0 {
		return "unlimited"
	}
	return strconv.Itoa(limit)
}

func formatUsage(usage []int64) string {
	parts := make([]string, len(usage))
	for i, n := range usage {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, " ")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
