package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"intake-portal/internal/clients"
)

func newClientsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage the client roster",
	}

	var name, caseID, email string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			svc := &clients.Service{Repo: &clients.SQLRepo{DB: sqlDB}}
			c, err := svc.Add(ctx, name, caseID, email)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added client %d\n", c.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Client name")
	add.Flags().StringVar(&caseID, "case-id", "", "Case identifier")
	add.Flags().StringVar(&email, "email", "", "Contact email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sqlDB, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			svc := &clients.Service{Repo: &clients.SQLRepo{DB: sqlDB}}
			roster, err := svc.List(ctx)
			if err != nil {
				return err
			}
			if opts.json {
				if roster == nil {
					roster = []clients.Client{}
				}
				return writeJSON(cmd.OutOrStdout(), roster)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCASE\tEMAIL")
			for _, c := range roster {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.CaseID, c.Email)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
