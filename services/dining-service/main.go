package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/common/logger"
	commonmw "github.com/yashrajoria/dining-backend/services/common/middleware"
	"github.com/yashrajoria/dining-backend/services/dining-service/controllers"
	"github.com/yashrajoria/dining-backend/services/dining-service/middleware"
	"github.com/yashrajoria/dining-backend/services/dining-service/realtime"
	"github.com/yashrajoria/dining-backend/services/dining-service/routes"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Table service: orders, bills, payments and realtime updates",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub, realtime relay and expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, serve)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-payments",
		Short: "Expire stale gateway checkouts once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, a *app) error {
				n, err := a.payments.SweepExpired(ctx, time.Now())
				if err != nil {
					return err
				}
				a.logger.Info("Sweep finished", zap.Int("settled", n))
				return nil
			})
		},
	}
}

// run loads config, builds the logger and dependency graph, then hands them
// to fn.
func run(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(ctx, cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", zap.Error(err))
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newLogger(ctx context.Context, cfg *Config) (*zap.Logger, error) {
	var cw io.Writer
	if cfg.CloudWatchEnabled {
		if awsCfg, err := awspkg.LoadAWSConfig(ctx); err == nil {
			client, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, "/dining/"+serviceName, serviceName, true)
			if err == nil && client.IsEnabled() {
				cw = client
			}
		}
	}
	return logger.New(cfg.AppEnv, cw)
}

func serve(ctx context.Context, a *app) error {
	if err := controllers.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}
	if a.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	publicLimiter := commonmw.NewRateLimiter(rateFor(a.cfg.WebhookRatePerMinute), 20, 10*time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(a.logger))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORS(a.cfg.AllowedOrigins))
	r.Use(commonmw.MetricsMiddleware(a.metrics, serviceName))

	routes.RegisterHealthRoutes(r, serviceName)
	routes.RegisterRealtimeRoutes(r, realtime.NewHandler(a.hub, a.verifier, a.cfg.AllowedOrigins, guestInbound(a.notifications), guestAdmission(a.tables), a.logger))

	api := r.Group("", middleware.RequestTimeout(30*time.Second))
	authMw := middleware.AuthMiddleware(a.verifier)
	routes.RegisterOrderRoutes(api, controllers.NewOrderController(a.orders), authMw, publicLimiter.Middleware())
	routes.RegisterBillRoutes(api, controllers.NewBillController(a.bills), authMw)
	routes.RegisterPaymentRoutes(api, controllers.NewPaymentController(a.payments, a.cfg.FrontendURL), authMw, publicLimiter.Middleware())
	routes.RegisterTableRoutes(api, controllers.NewTableController(a.tables), authMw)
	routes.RegisterNotificationRoutes(api, controllers.NewNotificationController(a.notifications), authMw)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Dining service started", zap.String("port", a.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down dining service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return services.NewExpirySweeper(a.payments, a.cfg.SweepInterval, a.logger).Run(gctx)
	})
	g.Go(func() error {
		return sweepLimiter(gctx, publicLimiter)
	})
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Server exited cleanly")
	return nil
}

// sweepLimiter drops idle per-IP buckets until ctx ends.
func sweepLimiter(ctx context.Context, rl *commonmw.RateLimiter) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

func rateFor(perMinute int) rate.Limit {
	if perMinute <= 0 {
		perMinute = 120
	}
	return rate.Every(time.Minute / time.Duration(perMinute))
}
