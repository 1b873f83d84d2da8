// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/pkg/nacos"
	"nexus-order/internal/pkg/tracing"
)

// Worker 是由服务生命周期托管的后台任务（例如事件总线的监听循环）
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 一个函数，允许每个服务注册自己独特的 HTTP 路由
	Workers          []Worker
	Closers          []func(ctx context.Context) error // 关停时按注册的逆序执行
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
// 它会阻塞直到收到 SIGINT/SIGTERM 或 ctx 被取消。
func StartService(ctx context.Context, info AppInfo) error {
	cfg := GetCurrentConfig()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "failed to initialize tracer provider")
	}

	// 2. 可选的 Nacos 服务注册
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return errors.Wrap(err, "failed to initialize nacos client")
		}
		if ip, err = GetOutboundIP(); err != nil {
			return errors.Wrap(err, "failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	// 3. HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deregister := func(ctx context.Context) {
		if namingClient == nil {
			return
		}
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}
	release := func(ctx context.Context, workers []Worker) {
		stopWorkers(ctx, workers)
		for i := len(info.Closers) - 1; i >= 0; i-- {
			if err := info.Closers[i](ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Error closing resource")
			}
		}
		if err := tp.Shutdown(ctx); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Error shutting down tracer provider")
		}
	}

	// 4. 后台任务
	started, err := startWorkers(runCtx, info.Workers)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		deregister(shutdownCtx)
		release(shutdownCtx, started)
		return err
	}

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Ctx(gCtx).Info().Msgf("✅ %s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "could not listen on %s", server.Addr)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Ctx(gCtx).Info().Msgf("Shutting down service %s...", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		// 按顺序执行清理操作：先停止接收新请求，再停止消费，最后释放客户端
		deregister(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error shutting down http server")
		}
		release(shutdownCtx, started)
		logger.Ctx(shutdownCtx).Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
		return nil
	})

	return g.Wait()
}

// startWorkers 依次启动后台任务，出错时仍返回已经启动的那些，由调用方回收
func startWorkers(ctx context.Context, workers []Worker) ([]Worker, error) {
	started := make([]Worker, 0, len(workers))
	for _, w := range workers {
		if err := w.Start(ctx); err != nil {
			return started, errors.Wrap(err, "failed to start worker")
		}
		started = append(started, w)
	}
	return started, nil
}

func stopWorkers(ctx context.Context, workers []Worker) {
	for i := len(workers) - 1; i >= 0; i-- {
		workers[i].Stop(ctx)
	}
}

// GetOutboundIP 通过一次 UDP "拨号" 获取本机对外的 IP，用于服务注册
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
