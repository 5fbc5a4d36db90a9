package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"parking-booking-backend/internal/reconcile"
)

func reconcileCmd() *cobra.Command {
	var skipExpiry bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconcile pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			a.start(cmd.Context())

			rc := cfg.Reconciler
			if skipExpiry {
				rc.ExpireNoShows = false
			}
			res := reconcile.NewService(rc, a.bookings, a.store).ReconcileOnce(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "expired: %d\ncorrected: %d\nfailed: %d\n", res.Expired, res.Corrected, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d locations failed to reconcile", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipExpiry, "skip-expiry", false, "Do not cancel no-show bookings")
	return cmd
}
