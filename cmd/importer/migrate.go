package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			a, err := bootstrap(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.Migrate(cmd.Context(), direction); err != nil {
				return err
			}
			a.Log.WithField("direction", direction).Info("migrations applied")
			return nil
		},
	}
}
