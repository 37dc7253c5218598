package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/config"
	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/service/admission"
	"github.com/kapu/youtube-quota-broker-go/internal/service/broker"
	"github.com/kapu/youtube-quota-broker-go/internal/service/cache"
	"github.com/kapu/youtube-quota-broker-go/internal/service/database"
	"github.com/kapu/youtube-quota-broker-go/internal/service/profiler"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
	"github.com/kapu/youtube-quota-broker-go/internal/service/rotation"
)

// Runtime: 조립이 끝난 브로커 프로세스의 전체 구성 요소
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Ledger    *quota.Ledger
	Admission *admission.Controller
	Advisor   *rotation.Advisor
	Profiler  *profiler.Profiler
	Broker    *broker.Broker
	Cache     *cache.Service
	Postgres  *database.PostgresService
	APIServer *http.Server
}

// Start: 관리 API 서버와 데모 루프(설정 시)를 기동한다.
func (r *Runtime) Start(ctx context.Context, errCh chan<- error) {
	go func() {
		if err := r.APIServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	r.Logger.Info("Admin API server started", slog.String("addr", r.APIServer.Addr))

	if r.Config.Broker.DemoLoop {
		go r.demoLoop(ctx)
	}
}

// demoLoop: 주기적으로 Acquire → 검증 → 보고를 수행하는 데모 폴링 루프
// 임베딩 없이 브로커 단독 실행을 확인하는 용도다.
func (r *Runtime) demoLoop(ctx context.Context) {
	ticker := time.NewTicker(r.Config.Broker.DemoLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client, err := r.Broker.Acquire(ctx, "list")
			if err != nil {
				r.Logger.Warn("Demo acquire failed", slog.Any("error", err))
				continue
			}
			r.Logger.Info("Demo acquire succeeded",
				slog.String("set", client.SetID),
				slog.Bool("degraded", client.Degraded),
			)
		}
	}
}

// Shutdown: API 서버를 내리고 상태를 영속화한 뒤 연결을 정리한다.
func (r *Runtime) Shutdown(ctx context.Context) {
	if err := r.APIServer.Shutdown(ctx); err != nil {
		r.Logger.Error("API server shutdown error", slog.Any("error", err))
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout.Persistence)
	if err := r.Ledger.Persist(persistCtx); err != nil {
		r.Logger.Error("Failed to persist ledger on shutdown", slog.Any("error", err))
	}
	cancel()

	if r.Cache != nil {
		_ = r.Cache.Close()
	}
	if r.Postgres != nil {
		if err := r.Postgres.Close(); err != nil {
			r.Logger.Error("Postgres close error", slog.Any("error", err))
		}
	}
}

// Run: 시그널을 받을 때까지 실행하고, 종료 시 정리한다.
func (r *Runtime) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	r.Start(ctx, errCh)
	r.Logger.Info("Quota broker started, waiting for signals...")

	select {
	case sig := <-sigCh:
		r.Logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		r.Logger.Error("Server error", slog.Any("error", err))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.AppTimeout.Shutdown)
	defer shutdownCancel()
	r.Shutdown(shutdownCtx)

	r.Logger.Info("Quota broker stopped")
}
