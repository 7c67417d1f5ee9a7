package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/myseetara-source/seetara-website-sub001/models"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
)

func relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Operate the server-side conversion relay",
	}
	cmd.AddCommand(replayCmd())
	cmd.AddCommand(enqueueCmd())
	return cmd
}

// replayCmd re-drives the relay for one stored order. Events already claimed
// in the ledger come back as skipped_duplicate.
func replayCmd() *cobra.Command {
	var orderID, to string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-send the server conversion for an order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := orderid.Parse(orderID); err != nil {
				return fmt.Errorf("--order-id: %w", err)
			}
			cfg, logger, err := bootstrap(cmd.Context(), "relay-replay")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, serr := a.orders.ReplayConversion(cmd.Context(), orderID, to)
			if serr != nil {
				return fmt.Errorf("replay failed (%d): %s", serr.StatusCode, serr.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", orderID, to, outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&orderID, "order-id", "", "order id to replay")
	cmd.Flags().StringVar(&to, "to", models.StatusConfirmed, "status whose conversion to replay (confirmed or cancelled)")
	_ = cmd.MarkFlagRequired("order-id")
	return cmd
}

// enqueueCmd puts a status change on the status queue, the same message a
// courier webhook sends.
func enqueueCmd() *cobra.Command {
	var msg models.StatusChangeMessage

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue an order status change for the running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := orderid.Parse(msg.OrderID); err != nil {
				return fmt.Errorf("--order-id: %w", err)
			}
			if !models.ValidStatus(msg.Status) {
				return fmt.Errorf("--status: unknown status %q", msg.Status)
			}
			cfg, logger, err := bootstrap(cmd.Context(), "relay-enqueue")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cfg.OrderStatusQueueURL == "" {
				return fmt.Errorf("ORDER_STATUS_QUEUE_URL is not set")
			}

			awsCfg, err := aws_pkg.LoadAWSConfig(cmd.Context(), cfg.AWSRegion, cfg.AWSEndpoint)
			if err != nil {
				return err
			}
			body, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := aws_pkg.SendMessage(cmd.Context(), aws_pkg.NewSQSClient(awsCfg), cfg.OrderStatusQueueURL, string(body)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s -> %s\n", msg.OrderID, msg.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&msg.OrderID, "order-id", "", "order id")
	cmd.Flags().StringVar(&msg.Status, "status", "", "new status")
	cmd.Flags().StringVar(&msg.Actor, "actor", "cli", "actor recorded on the change")
	_ = cmd.MarkFlagRequired("order-id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}
