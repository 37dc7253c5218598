package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/util"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

// Service: Valkey(Redis) 클라이언트를 래핑하여 캐싱 기능을 제공하는 서비스
// 상태 스냅샷 미러링, 알림 중복 방지 마크, 최근 이벤트 목록을 담당한다.
// 캐시는 항상 보조 저장소이며, 인메모리 상태가 항상 우선한다.
type Service struct {
	client    valkey.Client
	logger    *slog.Logger
	closeOnce sync.Once
}

const (
	statusKeyPrefix = "broker:quota:status:"
	alertKeyPrefix  = "broker:quota:alert:"
	eventListKey    = "broker:events:recent"
)

// Config: Valkey 연결 설정을 담는 구조체
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewCacheService: 새로운 Valkey 캐시 서비스 인스턴스를 생성하고 연결을 수립한다.
func NewCacheService(cfg Config, logger *slog.Logger) (*Service, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		ConnWriteTimeout:  constants.ValkeyConfig.ConnWriteTimeout,
		BlockingPoolSize:  constants.ValkeyConfig.BlockingPoolSize,
		PipelineMultiplex: constants.ValkeyConfig.PipelineMultiplex,
		Dialer:            net.Dialer{Timeout: constants.ValkeyConfig.DialTimeout},
	})
	if err != nil {
		return nil, errors.NewCacheError("failed to create cache client", "init", "", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ValkeyConfig.ReadyTimeout)
	defer cancel()

	// Ping 테스트
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, errors.NewCacheError("failed to connect to cache store", "ping", "", err)
	}

	logger.Info("Cache store connected",
		slog.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		slog.Int("db", cfg.DB),
	)

	return &Service{
		client: client,
		logger: logger,
	}, nil
}

// Get: 키에 해당하는 값을 조회하고, 결과를 dest 인터페이스에 언마샬링한다.
func (c *Service) Get(ctx context.Context, key string, dest any) error {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if util.IsValkeyNil(resp.Error()) {
		return nil // Key doesn't exist - not an error
	}
	if resp.Error() != nil {
		c.logger.Error("Cache get operation failed", slog.String("key", key), slog.Any("error", resp.Error()))
		return errors.NewCacheError("get failed", "get", key, resp.Error())
	}

	value, err := resp.ToString()
	if err != nil {
		return errors.NewCacheError("conversion failed", "get", key, err)
	}

	if dest != nil {
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			return errors.NewCacheError("unmarshal failed", "get", key, err)
		}
	}

	return nil
}

// Set: 값을 JSON으로 마샬링하여 키에 저장한다. (TTL 지정 가능)
func (c *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	var cmd valkey.Completed
	if ttl > 0 {
		cmd = c.client.B().Set().Key(key).Value(string(jsonData)).ExSeconds(int64(ttl.Seconds())).Build()
	} else {
		cmd = c.client.B().Set().Key(key).Value(string(jsonData)).Build()
	}

	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Error("Cache set failed", slog.String("key", key), slog.Any("error", err))
		return errors.NewCacheError("set failed", "set", key, err)
	}

	return nil
}

// SetNX: 키가 없을 때만 값을 저장한다. 저장 성공 여부를 반환한다.
// 알림 중복 방지 마크(세트당 1시간)에 사용한다.
func (c *Service) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cmd := c.client.B().Set().Key(key).Value(value).Nx().ExSeconds(int64(ttl.Seconds())).Build()

	resp := c.client.Do(ctx, cmd)
	if util.IsValkeyNil(resp.Error()) {
		return false, nil // 이미 존재
	}
	if resp.Error() != nil {
		return false, errors.NewCacheError("setnx failed", "setnx", key, resp.Error())
	}

	return true, nil
}

// Del: 지정된 키를 삭제한다.
func (c *Service) Del(ctx context.Context, key string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error(); err != nil {
		c.logger.Error("Cache delete failed", slog.String("key", key), slog.Any("error", err))
		return errors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

// SetStatusSnapshot: 세트의 쿼터 상태 스냅샷을 캐시에 미러링한다.
// 실패해도 호출자에게 영향을 주지 않는다.
func (c *Service) SetStatusSnapshot(ctx context.Context, status *domain.QuotaStatus) {
	if c == nil || status == nil {
		return
	}
	if err := c.Set(ctx, statusKeyPrefix+status.SetID, status, constants.CacheTTL.StatusSnapshot); err != nil {
		c.logger.Warn("Failed to mirror status snapshot", slog.String("set", status.SetID), slog.Any("error", err))
	}
}

// GetStatusSnapshot: 캐시된 상태 스냅샷을 조회한다. 없으면 (nil, false)를 반환한다.
func (c *Service) GetStatusSnapshot(ctx context.Context, setID string) (*domain.QuotaStatus, bool) {
	if c == nil {
		return nil, false
	}

	var status domain.QuotaStatus
	if err := c.Get(ctx, statusKeyPrefix+setID, &status); err != nil || status.SetID == "" {
		return nil, false
	}
	return &status, true
}

// MarkWarningAlert: WARNING 알림 중복 방지 마크를 설정한다.
// 반환값이 true면 이번 1시간 창에서 처음 발행하는 알림이다.
func (c *Service) MarkWarningAlert(ctx context.Context, setID string) bool {
	if c == nil {
		return true
	}

	first, err := c.SetNX(ctx, alertKeyPrefix+setID, "1", constants.CacheTTL.AlertDedup)
	if err != nil {
		// 캐시 장애 시에는 알림을 막지 않는다
		c.logger.Warn("Alert dedup mark failed", slog.String("set", setID), slog.Any("error", err))
		return true
	}
	return first
}

// PushEvent: 최근 이벤트 목록에 이벤트를 추가한다. (상한 유지)
func (c *Service) PushEvent(ctx context.Context, event domain.Event) {
	if c == nil {
		return
	}

	jsonData, err := json.Marshal(map[string]any{"kind": event.Kind(), "event": event})
	if err != nil {
		return
	}

	cmds := []valkey.Completed{
		c.client.B().Lpush().Key(eventListKey).Element(string(jsonData)).Build(),
		c.client.B().Ltrim().Key(eventListKey).Start(0).Stop(constants.EventConfig.RecentEventCap - 1).Build(),
		c.client.B().Expire().Key(eventListKey).Seconds(int64(constants.CacheTTL.RecentEvents.Seconds())).Build(),
	}

	for _, resp := range c.client.DoMulti(ctx, cmds...) {
		if resp.Error() != nil {
			c.logger.Warn("Failed to push event to cache", slog.Any("error", resp.Error()))
			return
		}
	}
}

// RecentEvents: 최근 이벤트를 최신순으로 조회한다. (raw JSON 문자열)
func (c *Service) RecentEvents(ctx context.Context, limit int64) ([]json.RawMessage, error) {
	if limit <= 0 || limit > constants.EventConfig.RecentEventCap {
		limit = constants.EventConfig.RecentEventCap
	}

	resp := c.client.Do(ctx, c.client.B().Lrange().Key(eventListKey).Start(0).Stop(limit-1).Build())
	if resp.Error() != nil {
		return nil, errors.NewCacheError("lrange failed", "lrange", eventListKey, resp.Error())
	}

	values, err := resp.AsStrSlice()
	if err != nil {
		return nil, errors.NewCacheError("lrange conversion failed", "lrange", eventListKey, err)
	}

	events := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		events = append(events, json.RawMessage(v))
	}
	return events, nil
}

// IsConnected: 캐시 스토어와 연결되어 있는지(PING 응답 여부) 확인한다.
func (c *Service) IsConnected(ctx context.Context) bool {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error() == nil
}

// Close: 캐시 스토어 연결을 안전하게 종료한다.
func (c *Service) Close() error {
	c.closeOnce.Do(func() {
		if c.client == nil {
			return
		}

		c.client.Close()
		c.logger.Info("Cache store disconnected")
	})

	return nil
}
