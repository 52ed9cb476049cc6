package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"intake-portal/internal/clients"
	"intake-portal/internal/files"
)

func newFilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect uploaded files",
	}

	var clientID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List the files recorded for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if _, err := (&clients.SQLRepo{DB: sqlDB}).Get(ctx, clientID); err != nil {
				return err
			}
			records, err := (&files.SQLRepo{DB: sqlDB}).ListByClient(ctx, clientID)
			if err != nil {
				return err
			}
			if opts.json {
				if records == nil {
					records = []files.FileRecord{}
				}
				return writeJSON(cmd.OutOrStdout(), records)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBLOB\tSIZE\tTYPE\tUPLOADED")
			for _, f := range records {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", f.ID, f.BlobName, f.SizeBytes, f.ContentType, f.UploadedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	list.Flags().Int64Var(&clientID, "client", 0, "Client id (required)")
	_ = list.MarkFlagRequired("client")

	cmd.AddCommand(list)
	return cmd
}
