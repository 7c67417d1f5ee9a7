package main

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/myseetara-source/seetara-website-sub001/capi"
	"github.com/myseetara-source/seetara-website-sub001/database"
	"github.com/myseetara-source/seetara-website-sub001/ledger"
	"github.com/myseetara-source/seetara-website-sub001/models"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
	"github.com/myseetara-source/seetara-website-sub001/publisher"
	"github.com/myseetara-source/seetara-website-sub001/relay"
	"github.com/myseetara-source/seetara-website-sub001/repository"
	"github.com/myseetara-source/seetara-website-sub001/sender"
	"github.com/myseetara-source/seetara-website-sub001/services"
)

// app holds the components shared by serve and the ops commands.
type app struct {
	cfg     *Config
	logger  *zap.Logger
	db      *gorm.DB
	aws     *sdkaws.Config
	metrics aws_pkg.MetricsRecorder
	relay   *relay.Relay
	orders  services.OrderService
	closers []func() error
}

// migratedModels are the tables owned by this service.
var migratedModels = []interface{}{&models.Order{}, &ledger.Entry{}}

func newApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := database.Open(ctx, cfg.DB, logger, migratedModels...)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() error { return database.Close(db) })

	if awsCfg, err := aws_pkg.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpoint); err != nil {
		logger.Warn("AWS config unavailable, AWS integrations disabled", zap.Error(err))
	} else {
		a.aws = &awsCfg
	}
	if a.aws != nil && cfg.CloudWatchEnabled {
		a.metrics = aws_pkg.NewMetricsClient(*a.aws, "", true)
	}

	claimer, err := a.newLedger(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	relayOpts := []relay.Option{}
	if audit := a.snsPublisher(cfg.ConversionAuditTopicARN); audit != nil {
		relayOpts = append(relayOpts, relay.WithAudit(audit))
	}
	if a.metrics != nil {
		relayOpts = append(relayOpts, relay.WithCloudWatch(a.metrics))
	}
	a.relay = relay.New(a.conversionSender(), claimer, logger.Named("relay"), relayOpts...)

	a.orders = services.NewOrderService(
		repository.NewGormOrderRepository(db),
		orderid.NewIssuer(),
		a.relay,
		a.integrations(),
		services.OrderServiceConfig{Currency: cfg.Currency},
		logger.Named("orders"),
	)
	return a, nil
}

// newLedger builds the relay's ledger for LEDGER_BACKEND.
func (a *app) newLedger(ctx context.Context) (ledger.Claimer, error) {
	cfg := a.cfg
	switch cfg.LedgerBackend {
	case "memory":
		return ledger.NewMemoryLedger(ledger.ChannelServer, cfg.LedgerTTL), nil
	case "redis":
		client, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return ledger.NewRedisLedger(client, "", ledger.ChannelServer, cfg.LedgerTTL), nil
	case "postgres":
		return ledger.NewGormLedger(a.db, ledger.ChannelServer), nil
	case "dynamodb":
		if a.aws == nil {
			return nil, fmt.Errorf("LEDGER_BACKEND=dynamodb needs AWS config")
		}
		return ledger.NewDynamoLedger(aws_pkg.NewDynamoDBClient(*a.aws), cfg.LedgerDynamoTable, ledger.ChannelServer, cfg.LedgerTTL), nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
}

// conversionSender returns nil when the conversion API is not configured.
func (a *app) conversionSender() relay.Sender {
	client := capi.NewClient(capi.Config{
		PixelID:       a.cfg.CAPIPixelID,
		AccessToken:   a.cfg.CAPIAccessToken,
		APIVersion:    a.cfg.CAPIAPIVersion,
		TestEventCode: a.cfg.CAPITestEventCode,
		SourceURL:     a.cfg.FrontendURL + services.ConfirmationPath,
	})
	if !client.Enabled() {
		if a.cfg.CAPIPixelID != "" {
			a.logger.Warn("CAPI_PIXEL_ID set without an access token, server conversions disabled")
		} else {
			a.logger.Info("server conversions disabled")
		}
		return nil
	}
	return client
}

func (a *app) snsPublisher(topic string) publisher.EventPublisher {
	if topic == "" || a.aws == nil {
		return nil
	}
	return publisher.NewSNSPublisher(aws_pkg.NewSNSClient(*a.aws), topic)
}

func (a *app) integrations() services.Integrations {
	var fan publisher.Fanout
	if p := a.snsPublisher(a.cfg.OrderEventsTopicARN); p != nil {
		fan = append(fan, p)
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		kp := publisher.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.OrderStatusKafkaTopic)
		a.closers = append(a.closers, kp.Close)
		fan = append(fan, kp)
	}

	extra := services.Integrations{Metrics: a.metrics}
	if len(fan) > 0 {
		extra.Events = fan
	}
	if a.cfg.SMSAPIURL != "" {
		gw, err := sender.NewSMSGateway(a.cfg.SMSAPIURL, a.cfg.SMSAPIKey, a.cfg.SMSSenderID)
		if err != nil {
			a.logger.Warn("SMS gateway disabled", zap.Error(err))
		} else {
			extra.SMS = gw
		}
	}
	if a.cfg.SheetWebhookURL != "" {
		extra.Sheet = sender.NewSheetWebhook(a.cfg.SheetWebhookURL)
	}
	return extra
}

// Close waits for background work and releases connections.
func (a *app) Close() {
	if a.orders != nil {
		a.orders.Wait()
	}
	if a.relay != nil {
		a.relay.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}
