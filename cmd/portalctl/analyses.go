package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"intake-portal/internal/analyses"
)

func newAnalysesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyses",
		Short: "Inspect analysis jobs",
	}

	get := &cobra.Command{
		Use:   "get <analysis-id>",
		Short: "Show one analysis job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			job, err := (&analyses.SQLRepo{DB: sqlDB}).Get(ctx, args[0])
			if err != nil {
				return err
			}
			resp := analyses.NewJobResponse(job)
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:      %s\n", resp.ID)
			fmt.Fprintf(out, "client:  %d\n", resp.ClientID)
			fmt.Fprintf(out, "blob:    %s\n", resp.BlobName)
			fmt.Fprintf(out, "status:  %s\n", resp.Status)
			if resp.Error != nil {
				fmt.Fprintf(out, "error:   %s %s\n", resp.Error.Code, resp.Error.Message)
			}
			if resp.Summary != nil {
				fmt.Fprintf(out, "summary: %s\n", resp.Summary.Text)
				for k, v := range resp.Summary.KeyValues {
					fmt.Fprintf(out, "  %s: %s\n", k, v)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(get)
	return cmd
}
