package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parking-booking-backend/internal/mq"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume booking commands from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.start(ctx)

			consumer := mq.NewConsumer(cfg.MQ, mq.NewHandler(a.bookings))
			if err := consumer.Run(ctx); err != nil {
				return err
			}
			logger.Println("mq worker stopped")
			return nil
		},
	}
}
