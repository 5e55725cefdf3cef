// flake-server 以 HTTP 接口对外发放雪花 ID。
//
//	GET /api/id            生成一个 ID
//	GET /api/ids?count=N   批量生成，按个数限流
//	GET /api/ids/:id       拆解 ID
//	GET /api/health        健康检查，租约丢失时返回 503
//	GET /metrics           Prometheus 指标
//
// 配置从当前目录或 /etc 下的 snowflake.toml 读取，环境变量前缀 SNOWFLAKE_。
// [trace] 开启后请求链路经 OTLP gRPC 导出。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/config"
	"github.com/ceyewan/flake/connector"
	"github.com/ceyewan/flake/idgen"
	"github.com/ceyewan/flake/metrics"
	"github.com/ceyewan/flake/ratelimit"
	"github.com/ceyewan/flake/trace"
	"github.com/ceyewan/flake/xerrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flake-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	loader, err := config.Load(ctx, &config.Config{Name: "snowflake"})
	if err != nil {
		return err
	}
	defer loader.Close()

	app := defaultAppConfig()
	if err := loader.Unmarshal(&app); err != nil {
		return xerrors.Wrap(err, "decode app config")
	}

	logger, err := clog.New(&app.Log, clog.WithNamespace("flake-server"))
	if err != nil {
		return err
	}

	shutdownTrace, err := trace.Init(&app.Trace)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTrace(context.Background()); err != nil {
			logger.Warn("flush traces failed", clog.Error(err))
		}
	}()

	meter, err := metrics.New(&app.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return err
	}
	defer meter.Shutdown(context.Background())

	settings, err := idgen.LoadSettings(loader)
	if err != nil {
		return err
	}

	opts := []idgen.Option{idgen.WithLogger(logger), idgen.WithMeter(meter)}
	leaseCfg := idgen.LeaseConfig{KeyPrefix: app.Lease.KeyPrefix, TTL: app.Lease.TTL}

	var redisConn connector.RedisConnector
	if app.Redis != nil && app.Redis.Addr != "" {
		redisConn, err = connector.NewRedis(app.Redis, connector.WithLogger(logger), connector.WithMeter(meter))
		if err != nil {
			return err
		}
		defer redisConn.Close()
		if err := redisConn.Connect(ctx); err != nil {
			return err
		}
		opts = append(opts, idgen.WithLeaseStrategy(idgen.RedisLeaseStrategy(redisConn, leaseCfg, logger)))
	}

	if app.Etcd != nil && len(app.Etcd.Endpoints) > 0 {
		etcdConn, err := connector.NewEtcd(app.Etcd, connector.WithLogger(logger), connector.WithMeter(meter))
		if err != nil {
			return err
		}
		defer etcdConn.Close()
		if err := etcdConn.Connect(ctx); err != nil {
			return err
		}
		opts = append(opts, idgen.WithLeaseStrategy(idgen.EtcdLeaseStrategy(etcdConn, leaseCfg, logger)))
	}

	gen, res, err := idgen.New(ctx, settings, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Release(context.Background()); err != nil {
			logger.Warn("release worker id failed", clog.Error(err))
		}
	}()

	var limiter ratelimit.Limiter
	if redisConn != nil {
		limiter, err = ratelimit.NewDistributed(redisConn, nil, ratelimit.WithLogger(logger), ratelimit.WithMeter(meter))
	} else {
		limiter, err = ratelimit.NewStandalone(&app.Limiter, ratelimit.WithLogger(logger), ratelimit.WithMeter(meter))
	}
	if err != nil {
		return err
	}
	defer limiter.Close()

	httpMetrics, err := metrics.NewHTTPServerMetrics(meter, metrics.DefaultHTTPServerMetricsConfig("flake-server"))
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &server{
		gen:        gen,
		resolution: res,
		limiter:    limiter,
		meter:      meter,
		httpMetric: httpMetrics,
		batch:      app.Server.Batch,
		service:    app.Trace.ServiceName,
		logger:     logger,
	}
	httpServer := &http.Server{Addr: app.Server.Addr, Handler: srv.router()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("flake-server listening",
			clog.String("addr", app.Server.Addr),
			clog.Uint64("worker_id", res.WorkerID),
			clog.String("strategy", res.Strategy),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return idgen.Watch(gctx, loader, gen)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("flake-server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
