package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kapu/youtube-quota-broker-go/internal/config"
	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/admission"
	"github.com/kapu/youtube-quota-broker-go/internal/service/broker"
	"github.com/kapu/youtube-quota-broker-go/internal/service/cache"
	"github.com/kapu/youtube-quota-broker-go/internal/service/credstore"
	"github.com/kapu/youtube-quota-broker-go/internal/service/database"
	"github.com/kapu/youtube-quota-broker-go/internal/service/profiler"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
	"github.com/kapu/youtube-quota-broker-go/internal/service/rotation"
	"github.com/kapu/youtube-quota-broker-go/internal/service/youtube"
	"github.com/kapu/youtube-quota-broker-go/internal/util"
)

// ProvideLogger: 설정에 따라 콘솔 또는 파일 로깅이 활성화된 로거를 생성한다.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	return util.EnableFileLoggingWithLevel(util.LogConfig{
		Dir:        cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}, "broker.log", cfg.Logging.Level)
}

// ProvideCacheService: Valkey 캐시 서비스를 생성한다. 비활성화 시 nil을 반환한다.
func ProvideCacheService(cfg *config.Config, logger *slog.Logger) (*cache.Service, error) {
	if !cfg.Valkey.Enabled {
		logger.Info("Cache disabled, alerts will not be deduplicated across restarts")
		return nil, nil
	}

	return cache.NewCacheService(cache.Config{
		Host:     cfg.Valkey.Host,
		Port:     cfg.Valkey.Port,
		Password: cfg.Valkey.Password,
		DB:       cfg.Valkey.DB,
	}, logger)
}

// ProvidePostgresService: PostgreSQL 서비스를 생성한다. 비활성화 시 nil을 반환한다.
func ProvidePostgresService(cfg *config.Config, logger *slog.Logger) (*database.PostgresService, error) {
	if !cfg.Postgres.Enabled {
		logger.Info("PostgreSQL disabled, state will not survive restarts")
		return nil, nil
	}

	return database.NewPostgresService(database.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
	}, logger)
}

// ProvideCredentialStore: 토큰 저장소를 생성한다.
// PostgreSQL이 있으면 DB 기반, 없으면 토큰 파일 기반으로 동작한다.
func ProvideCredentialStore(cfg *config.Config, postgres *database.PostgresService, logger *slog.Logger) (credstore.Store, error) {
	if postgres != nil {
		return credstore.NewGormStore(postgres, logger)
	}

	refs := make(map[string]string, len(cfg.Credentials.Sets))
	for _, set := range cfg.Credentials.Sets {
		refs[set.ID] = set.TokenRef
	}
	return credstore.NewFileStore(refs, logger), nil
}

// ProvideResetPolicy 는 동작을 수행한다.
func ProvideResetPolicy(cfg *config.Config) (*quota.ResetPolicy, error) {
	return quota.NewResetPolicy(cfg.Quota.ResetMode, cfg.Quota.ResetHour, cfg.Quota.ResetTimezone)
}

// ProvideLedger: 쿼터 원장을 생성한다. 협력자(repo/cache/emit)는 있으면 연결한다.
func ProvideLedger(
	cfg *config.Config,
	policy *quota.ResetPolicy,
	postgres *database.PostgresService,
	cacheSvc *cache.Service,
	emit domain.EmitFunc,
	logger *slog.Logger,
) *quota.Ledger {
	opts := quota.Options{
		Cache: cacheSvc,
		Emit:  emit,
	}
	if postgres != nil {
		opts.Repository = quota.NewRepository(postgres, logger)
	}

	return quota.NewLedger(cfg.Credentials.Sets, policy, cfg.Quota.ReservePercent, logger, opts)
}

// ProvideAdmissionController 는 동작을 수행한다.
func ProvideAdmissionController(cfg *config.Config, ledger *quota.Ledger, logger *slog.Logger) *admission.Controller {
	return admission.NewController(ledger, cfg.Quota.CostTable, logger)
}

// ProvideProfiler 는 동작을 수행한다.
func ProvideProfiler(postgres *database.PostgresService, logger *slog.Logger) *profiler.Profiler {
	var repo *profiler.Repository
	if postgres != nil {
		repo = profiler.NewRepository(postgres, logger)
	}
	return profiler.NewProfiler(repo, logger)
}

// ProvideBroker 는 동작을 수행한다.
func ProvideBroker(
	cfg *config.Config,
	ledger *quota.Ledger,
	admissionCtrl *admission.Controller,
	advisor *rotation.Advisor,
	profilerSvc *profiler.Profiler,
	store credstore.Store,
	cacheSvc *cache.Service,
	emit domain.EmitFunc,
	logger *slog.Logger,
) *broker.Broker {
	return broker.NewBroker(cfg.Credentials.Sets, cfg.YouTube.APIKey, broker.Deps{
		Ledger:    ledger,
		Admission: admissionCtrl,
		Advisor:   advisor,
		Profiler:  profilerSvc,
		Store:     store,
		Factory:   youtube.NewFactory(logger),
		Cache:     cacheSvc,
		Emit:      emit,
		Logger:    logger,
	})
}

// ProvideAPIServer: 관리 API용 HTTP 서버 인스턴스를 생성한다.
func ProvideAPIServer(cfg *config.Config, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  constants.ServerDefaults.ReadTimeout,
		WriteTimeout: constants.ServerDefaults.WriteTimeout,
	}
}
