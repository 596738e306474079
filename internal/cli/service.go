package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pkordes/homecare/internal/repo"
	"github.com/pkordes/homecare/internal/service"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the service catalog",
	}

	var (
		name string
		fee  int64
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a catalog service",
		Long:  "Add a service requesters can include in a visit. --fee is in cents.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalog := service.NewCatalogService(repo.NewServiceRepo(pool), repo.NewUserRepo(pool), repo.NewAgencyUserRepo(pool))
			s, err := catalog.AddService(ctx, name, fee)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) %s\n", s.Name, formatCents(s.Fee), s.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "service name")
	add.Flags().Int64Var(&fee, "fee", 0, "fee in cents")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("fee")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active catalog services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalog := service.NewCatalogService(repo.NewServiceRepo(pool), repo.NewUserRepo(pool), repo.NewAgencyUserRepo(pool))
			services, err := catalog.ListServices(ctx)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), services)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFEE")
			for _, s := range services {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, formatCents(s.Fee))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
