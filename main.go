package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
	"github.com/myseetara-source/seetara-website-sub001/pkg/logger"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "seetara",
		Short:         "Seetara storefront backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(relayCmd())
	root.AddCommand(pixelCmd())
	return root
}

// bootstrap loads config and builds the process logger, teeing to CloudWatch
// Logs when enabled.
func bootstrap(ctx context.Context, service string) (*Config, *zap.Logger, error) {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cw io.Writer
	if cfg.CloudWatchEnabled {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err == nil {
			client, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchGroup, service, true)
			if err == nil {
				cw = client
			} else {
				fmt.Fprintf(os.Stderr, "cloudwatch logs disabled: %v\n", err)
			}
		}
	}

	log, err := logger.Initialize(cfg.AppEnv, cw)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log.With(zap.String("service", service)), nil
}
