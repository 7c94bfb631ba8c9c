package main

import (
	"context"
	"fmt"

	"bits-gateway/internal/kafka"
	"bits-gateway/internal/notification"
	"github.com/spf13/cobra"
)

func capturePaymentsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "capture-payments",
		Short: "Capture authorized payments past their capture deadline",
		Long: `Run one capture sweep. Intended to be scheduled hourly.

A payment is captured when it is active, attached to an order, not yet charged
and its capture deadline (stored, or creation time plus 6 days 20 hours) has passed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.captureSweeper().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("checked %d, eligible %d, captured %d, voided %d, failed %d\n",
				result.Checked, result.Eligible, result.Captured, result.Voided, result.Failed)
			return nil
		},
	}
}

func notifyPendingOrdersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-pending-orders",
		Short: "Notify customers of orders created 24 hours ago",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotificationSweep(cmd.Context(), *configPath, (*notification.Sweeper).NotifyPending)
		},
	}
}

func notifyFulfilledOrdersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-fulfilled-orders",
		Short: "Send fulfillment confirmations for orders created 48 hours ago",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotificationSweep(cmd.Context(), *configPath, (*notification.Sweeper).NotifyFulfilled)
		},
	}
}

func runNotificationSweep(ctx context.Context, configPath string, sweep func(*notification.Sweeper, context.Context) (notification.Result, error)) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	writer := kafka.NewWriter(a.cfg.Kafka, a.cfg.Kafka.Topic.OrderNotifications)
	defer writer.Close()

	result, err := sweep(notification.NewSweeper(a.store, writer, a.logger), ctx)
	if err != nil {
		return err
	}
	fmt.Printf("orders %d, published %d, failed %d\n", result.Orders, result.Published, result.Failed)
	return nil
}
