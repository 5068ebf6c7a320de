package main

import "github.com/spf13/cobra"

func newServeCmd() *cobra.Command {
	var (
		migrate bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with in-process import workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), workers)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := a.Store.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
			}
			return a.Serve(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	cmd.Flags().IntVar(&workers, "workers", -1, "in-process workers, negative uses WORKER_COUNT")
	return cmd
}
