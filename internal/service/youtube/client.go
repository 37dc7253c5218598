package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
)

// Client: 검증을 마친 사용 가능한 YouTube API 핸들
// SetID로 소비 보고 대상을 식별하며, Degraded면 읽기 전용 API 키 클라이언트다.
type Client struct {
	Service  *youtube.Service
	SetID    string
	Degraded bool
}

// Factory: YouTube 서비스 핸들 생성과 검증 호출을 담당하는 어댑터
// youtube/v3 패키지를 만지는 유일한 지점이다.
type Factory struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFactory 는 동작을 수행한다.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{
		limiter: rate.NewLimiter(
			rate.Every(constants.ValidationRateLimit.Interval),
			constants.ValidationRateLimit.Burst,
		),
		logger: logger,
	}
}

// LoadOAuthConfig: 클라이언트 시크릿 파일에서 OAuth 설정을 로드한다.
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, youtube.YoutubeScope, youtube.YoutubeForceSslScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return cfg, nil
}

// NewOAuthClient: 토큰 소스로 인증된 클라이언트를 만든다.
func (f *Factory) NewOAuthClient(ctx context.Context, setID string, source oauth2.TokenSource) (*Client, error) {
	service, err := youtube.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to build youtube service: %w", err)
	}

	return &Client{
		Service: service,
		SetID:   setID,
	}, nil
}

// NewAPIKeyClient: API 키 기반 읽기 전용(축소 모드) 클라이언트를 만든다.
func (f *Factory) NewAPIKeyClient(ctx context.Context, apiKey string) (*Client, error) {
	service, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to build degraded youtube service: %w", err)
	}

	return &Client{
		Service:  service,
		SetID:    "api_key",
		Degraded: true,
	}, nil
}

// Validate: 1 유닛짜리 최소 검증 호출을 수행한다.
// OAuth 클라이언트는 자기 채널 조회, 축소 모드는 공개 인기 동영상 조회를 쓴다.
func (f *Factory) Validate(ctx context.Context, client *Client) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("validation rate limit wait failed: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, constants.RequestTimeout.Validation)
	defer cancel()

	var err error
	if client.Degraded {
		_, err = client.Service.Videos.List([]string{"id"}).
			Chart("mostPopular").
			MaxResults(1).
			Context(callCtx).
			Do()
	} else {
		_, err = client.Service.Channels.List([]string{"id"}).
			Mine(true).
			MaxResults(1).
			Context(callCtx).
			Do()
	}

	if err != nil {
		f.logger.Debug("Validation call failed",
			slog.String("set", client.SetID),
			slog.Bool("degraded", client.Degraded),
			slog.Any("error", err),
		)
		return err
	}

	return nil
}
