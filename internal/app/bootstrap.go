package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"github.com/kapu/youtube-quota-broker-go/internal/config"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/health"
	"github.com/kapu/youtube-quota-broker-go/internal/server"
	"github.com/kapu/youtube-quota-broker-go/internal/service/rotation"
)

// BuildRuntime: 설정으로부터 전체 런타임을 조립한다.
// 모든 상태는 여기서 만든 객체들이 소유하며, 패키지 전역은 없다.
func BuildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	health.Init(cfg.Version)

	cacheSvc, err := ProvideCacheService(cfg, logger)
	if err != nil {
		// 캐시는 보조 저장소다. 연결 실패로 브로커를 멈추지 않는다.
		logger.Warn("Cache unavailable, continuing without it", slog.Any("error", err))
		cacheSvc = nil
	}

	postgres, err := ProvidePostgresService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	store, err := ProvideCredentialStore(cfg, postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build credential store: %w", err)
	}

	policy, err := ProvideResetPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build reset policy: %w", err)
	}

	// 이벤트 버스: 로그로 흘리고, 임베딩 측에서 교체할 수 있다
	emit := domain.EmitFunc(func(e domain.Event) {
		logger.Info("Broker event", slog.String("kind", e.Kind()), slog.Any("event", e))
	})

	ledger := ProvideLedger(cfg, policy, postgres, cacheSvc, emit, logger)
	admissionCtrl := ProvideAdmissionController(cfg, ledger, logger)
	advisor := rotation.NewAdvisor(ledger, logger)
	profilerSvc := ProvideProfiler(postgres, logger)
	brokerSvc := ProvideBroker(cfg, ledger, admissionCtrl, advisor, profilerSvc, store, cacheSvc, emit, logger)

	// 영속 상태 복원은 세트 수에 비례하므로 병렬로 수행한다
	if postgres != nil {
		setIDs := make([]string, 0, len(cfg.Credentials.Sets))
		for _, set := range cfg.Credentials.Sets {
			setIDs = append(setIDs, set.ID)
		}

		warmup := pool.New().WithErrors().WithContext(ctx)
		warmup.Go(func(ctx context.Context) error {
			return ledger.Hydrate(ctx)
		})
		warmup.Go(func(ctx context.Context) error {
			return profilerSvc.Hydrate(ctx, setIDs)
		})
		if err := warmup.Wait(); err != nil {
			return nil, fmt.Errorf("failed to hydrate persisted state: %w", err)
		}
	}

	apiHandler := server.NewAPIHandler(ledger, admissionCtrl, brokerSvc, profilerSvc, cacheSvc, logger)
	router := server.NewRouter(apiHandler, logger)

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Ledger:    ledger,
		Admission: admissionCtrl,
		Advisor:   advisor,
		Profiler:  profilerSvc,
		Broker:    brokerSvc,
		Cache:     cacheSvc,
		Postgres:  postgres,
		APIServer: ProvideAPIServer(cfg, router),
	}, nil
}
