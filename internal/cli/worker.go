package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/homecare/internal/repo"
	"github.com/pkordes/homecare/internal/service"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage agency users",
	}

	var (
		userFlag     string
		serviceFlags []string
	)
	enroll := &cobra.Command{
		Use:   "enroll",
		Short: "Make a registered user an agency user",
		Long:  "Enrol an existing user as an agency user qualified for the given services. Repeat --service for each one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("invalid user ID: %s", userFlag)
			}
			serviceIDs, err := parseUUIDs(serviceFlags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalog := service.NewCatalogService(repo.NewServiceRepo(pool), repo.NewUserRepo(pool), repo.NewAgencyUserRepo(pool))
			w, err := catalog.EnrollWorker(ctx, userID, serviceIDs)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enrolled user %s as agency user %s (%d service(s))\n", w.UserID, w.ID, len(w.ServiceIDs))
			return nil
		},
	}
	enroll.Flags().StringVar(&userFlag, "user", "", "user ID")
	enroll.Flags().StringSliceVar(&serviceFlags, "service", nil, "qualifying service ID (repeatable)")
	_ = enroll.MarkFlagRequired("user")

	cmd.AddCommand(enroll)
	return cmd
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid service ID: %s", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
