package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/common/auth"
	"github.com/yashrajoria/dining-backend/services/dining-service/database"
	"github.com/yashrajoria/dining-backend/services/dining-service/gateway"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/realtime"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "dining-service"

// app is the dependency graph shared by every command.
type app struct {
	cfg     *Config
	logger  *zap.Logger
	metrics *awspkg.MetricsClient

	db    *gorm.DB
	redis *redis.Client

	awsCfg *sdkaws.Config
	sns    awspkg.SNSPublisher

	hub     *realtime.Hub
	emitter services.EventEmitter
	relay   *realtime.Relay

	verifier      *auth.Verifier
	orders        services.OrderService
	bills         services.BillService
	payments      services.PaymentService
	notifications services.NotificationService
	tables        services.TableService
}

func newApp(ctx context.Context, cfg *Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, verifier: auth.NewVerifier(cfg.JWTSecret)}

	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		logger.Warn("AWS config unavailable, SNS and metrics disabled", zap.Error(err))
	} else {
		a.awsCfg = &awsCfg
		a.sns = awspkg.NewSNSClient(awsCfg)
		a.metrics = awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	if err := database.Connect(cfg.Postgres, logger); err != nil {
		return nil, err
	}
	a.db = database.DB

	var locker services.Locker = services.NewLocalLocker()
	var idem services.IdempotencyStore
	if cfg.RedisURL != "" {
		client, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		locker = services.NewRedisLocker(client)
		idem = services.NewRedisIdempotencyStore(client)
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set, using in-process locks and no idempotency replay")
	}

	a.hub = realtime.NewHub(a.metrics, logger)
	a.emitter = a.hub
	if cfg.RealtimeTopicARN != "" {
		if a.awsCfg == nil {
			return nil, errors.New("REALTIME_SNS_TOPIC_ARN set but AWS config is unavailable")
		}
		origin := uuid.NewString()
		a.emitter = realtime.NewClusterEmitter(a.hub, a.sns, cfg.RealtimeTopicARN, origin, logger)
		a.relay = realtime.NewRelay(a.hub, awspkg.NewSQSConsumer(*a.awsCfg, cfg.RealtimeQueueURL, logger), origin, a.metrics, logger)
		logger.Info("Cross-instance realtime enabled", zap.String("origin", origin))
	}

	var gw gateway.Gateway
	if cfg.GatewayEnabled() {
		gw = gateway.NewStripeGateway(cfg.StripeAPIKey, cfg.StripeWebhookSecret)
	} else {
		logger.Warn("Stripe keys not set, gateway payments disabled")
	}

	store := repository.NewGormStore(a.db)
	events := services.NewEventPublisher(a.sns, cfg.DiningTopicARN, logger)
	policy := services.BillingPolicy{
		ServiceChargeBps: services.RateToBps(cfg.ServiceChargeRate),
		TaxBps:           services.RateToBps(cfg.TaxRate),
		Currency:         cfg.Currency,
		BillNumberPrefix: cfg.BillNumberPrefix,
	}

	a.notifications = services.NewNotificationService(store, a.emitter, a.metrics, logger)
	a.orders = services.NewOrderService(store, a.emitter, idem, events, a.metrics, logger)
	a.bills = services.NewBillService(store, policy, a.emitter, events, a.metrics, logger)
	a.tables = services.NewTableService(store, a.emitter, events, logger)
	a.payments = services.NewPaymentService(
		store,
		a.bills,
		a.notifications,
		gw,
		locker,
		services.PaymentConfig{
			Currency:  cfg.Currency,
			LinkTTL:   cfg.PaymentLinkTTL,
			ReturnURL: cfg.ReturnURL(),
			CancelURL: cfg.CancelURL(),
		},
		a.emitter,
		events,
		a.metrics,
		logger,
	)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
}

// Inbound websocket events.
const eventSupport = "support"

type supportMessage struct {
	Message string `json:"message"`
}

// guestAdmission checks a guest's table admission token against the table
// registry.
func guestAdmission(tables services.TableService) realtime.AdmissionFunc {
	return func(ctx context.Context, tableNumber int, token string) (bool, error) {
		ok, svcErr := tables.Admit(ctx, tableNumber, token)
		if svcErr != nil {
			return false, svcErr
		}
		return ok, nil
	}
}

// guestInbound turns a guest "support" frame into a staff call.
func guestInbound(notifications services.NotificationService) realtime.InboundFunc {
	return func(ctx context.Context, actor models.Actor, msg realtime.InboundMessage) error {
		if msg.Event != eventSupport {
			return fmt.Errorf("unsupported event %q", msg.Event)
		}
		var body supportMessage
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &body); err != nil {
				return errors.New("malformed support message")
			}
		}
		if _, svcErr := notifications.CallStaff(ctx, actor.TableNumber, actor.GuestID, body.Message); svcErr != nil {
			return svcErr
		}
		return nil
	}
}
