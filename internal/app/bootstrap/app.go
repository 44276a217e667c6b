package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/api"
	"github.com/taoyao-code/zkpush-server/internal/app"
	"github.com/taoyao-code/zkpush-server/internal/command"
	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/health"
	"github.com/taoyao-code/zkpush-server/internal/metrics"
	"github.com/taoyao-code/zkpush-server/internal/push"
	"github.com/taoyao-code/zkpush-server/internal/querywait"
)

const shutdownTimeout = 10 * time.Second

// Run 统一启动流程：存储 -> 事件分发 -> 路由 -> HTTP 监听，收到信号后按相反顺序关闭
func Run(cfg *config.Config, log *zap.Logger) error {
	serverID := app.GenerateServerID()
	log.Info("starting zkpush server",
		zap.String("name", cfg.App.Name),
		zap.String("server_id", serverID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	ready := health.New()

	// ========== 阶段2: 设备存储（Redis 可选）==========
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := app.NewDeviceStore(redisClient, cfg.Redis, log)
	ready.SetStoreReady(true)

	// ========== 阶段3: 门禁事件分发 ==========
	codes := app.LoadEventCodes(cfg.Push.EventMapPath, log)
	sinks, closeSinks := app.NewNotifySinks(cfg.Notify, log)
	defer closeSinks()
	observer, dispatcher := app.NewObservers(cfg.Notify, codes, sinks, appm, log)
	if dispatcher != nil {
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
	}

	// ========== 阶段4: 命令与路由 ==========
	waits := querywait.NewTable(cfg.API.QueryWaitTimeout)
	builder := command.NewBuilder(command.NewIDSource(cfg.Push.CommandIDMode), time.Now)
	svc := command.NewService(builder, store, appm, log)

	pushHandler := push.NewHandler(store, cfg.Push, log,
		push.WithObserver(observer),
		push.WithWaitTable(waits),
		push.WithMetrics(appm),
		push.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes))
	apiHandler := api.NewHandler(store, svc, waits, cfg.API, cfg.Push.OnlineTimeout, appm, log)
	healthAgg := app.NewHealthAggregator(store, cfg.Push.OnlineTimeout, redisClient)

	httpSrv := app.NewHTTPServer(cfg.HTTP, cfg.Metrics.Path, metrics.Handler(reg), ready.Ready)
	httpSrv.Register(func(r *gin.Engine) {
		push.RegisterRoutes(r, pushHandler, log)
		api.RegisterRoutes(r, apiHandler, cfg.API, log)
		app.RegisterHealthRoutes(r, healthAgg)
	})

	go app.NewOnlineMonitor(store, appm, cfg.Push.OnlineTimeout, log).Start(ctx)

	// ========== 阶段5: HTTP 监听 ==========
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start()
	}()
	ready.SetHTTPReady(true)
	log.Info("http server started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("id_mode", cfg.Push.CommandIDMode),
		zap.Int("notify_sinks", len(sinks)),
		zap.Bool("swagger", cfg.HTTP.Swagger))

	// ========== 阶段6: 等待关闭信号 ==========
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			return err
		}
	}

	ready.SetHTTPReady(false)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
