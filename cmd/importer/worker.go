package main

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume import and webhook tasks from the shared Redis queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), workers)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Config.RedisURL == "" {
				return errors.New("worker requires REDIS_URL")
			}
			return a.RunWorkers(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&workers, "workers", -1, "worker goroutines, negative uses WORKER_COUNT")
	return cmd
}
