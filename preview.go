package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/myseetara-source/seetara-website-sub001/ledger"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
	"github.com/myseetara-source/seetara-website-sub001/pixel"
	"github.com/myseetara-source/seetara-website-sub001/pkg/logger"
)

func pixelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pixel",
		Short: "Inspect the browser-side conversion emitter",
	}
	cmd.AddCommand(previewCmd())
	return cmd
}

// previewCmd plays a confirmation URL through the emitter and prints every
// track call as JSON. Views share one session, so a second view shows the
// dedup skip.
func previewCmd() *cobra.Command {
	var (
		rawURL  string
		views   int
		policy  string
		pending struct{ id, kind, total string }
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the pixel call a confirmation URL would make",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := url.Parse(rawURL)
			if err != nil {
				return fmt.Errorf("--url: %w", err)
			}
			if views < 1 {
				views = 1
			}
			_ = godotenv.Load()
			cfg := configFromEnv()
			if policy == "" {
				policy = cfg.InvalidValuePolicy
			}
			log, err := logger.Initialize(cfg.AppEnv, nil)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			session := ledger.NewSessionStorage()
			if pending.id != "" {
				id, err := orderid.Parse(pending.id)
				if err != nil {
					return fmt.Errorf("--pending-order-id: %w", err)
				}
				if err := pixel.SavePending(session, id, pending.kind, pending.total); err != nil {
					return err
				}
			}
			tracker := pixel.NewWriterTracker(cmd.OutOrStdout())
			for i := 1; i <= views; i++ {
				em := pixel.NewEmitter(tracker, ledger.NewStorageLedger(session), session, pixel.Config{
					Currency:           cfg.Currency,
					InvalidValuePolicy: pixel.ParsePolicy(policy),
				}, log)
				em.Hydrate()
				state := em.Run(cmd.Context(), u.Query())
				fmt.Fprintf(os.Stderr, "view %d: %s\n", i, state)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "confirmation URL, e.g. /order-success?order_id=...&type=buy&total=1800")
	cmd.Flags().IntVar(&views, "views", 1, "number of page views in the same browser session")
	cmd.Flags().StringVar(&policy, "invalid-value-policy", "", "suppress or fire_zero (defaults to INVALID_VALUE_POLICY)")
	cmd.Flags().StringVar(&pending.id, "pending-order-id", "", "order id saved at submission, used when the URL lost its query")
	cmd.Flags().StringVar(&pending.kind, "pending-type", "", "saved order type (buy or inquiry)")
	cmd.Flags().StringVar(&pending.total, "pending-total", "", "saved order total")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
