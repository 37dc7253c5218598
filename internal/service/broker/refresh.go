package broker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/service/credstore"
	"github.com/kapu/youtube-quota-broker-go/internal/service/youtube"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

// ensureFreshToken: 세트의 토큰을 확보하고, 만료가 임박했으면 선제 리프레시한다.
// 같은 세트에 대한 동시 리프레시는 singleflight로 한 번만 수행된다.
func (b *Broker) ensureFreshToken(ctx context.Context, setID string) (*oauth2.Token, error) {
	token, err := b.loadToken(ctx, setID)
	if err != nil {
		return nil, err
	}

	// 만료 정보가 없거나 충분히 남았으면 그대로 사용한다
	if token.Expiry.IsZero() || b.now().Add(constants.RefreshConfig.ExpiryLookahead).Before(token.Expiry) {
		return token, nil
	}

	if token.RefreshToken == "" {
		return nil, &errors.CredentialExpiredError{
			SetID:     setID,
			ExpiredAt: token.Expiry,
		}
	}

	refreshed, err, _ := b.refreshGroup.Do(setID, func() (any, error) {
		return b.refreshToken(ctx, setID, token)
	})
	if err != nil {
		return nil, err
	}

	return refreshed.(*oauth2.Token), nil
}

// loadToken: 인메모리 캐시 → 저장소 순으로 토큰을 찾는다.
func (b *Broker) loadToken(ctx context.Context, setID string) (*oauth2.Token, error) {
	b.mu.Lock()
	if token, ok := b.tokens[setID]; ok {
		b.mu.Unlock()
		return token, nil
	}
	b.mu.Unlock()

	record, err := b.store.Load(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to load token for %s: %w", setID, err)
	}
	if record == nil || record.Token == nil {
		return nil, &errors.CredentialInvalidError{
			SetID: setID,
			Err:   fmt.Errorf("no stored token, authorize the set first"),
		}
	}

	b.mu.Lock()
	b.tokens[setID] = record.Token
	b.mu.Unlock()

	return record.Token, nil
}

// refreshToken: OAuth 리프레시 라운드트립을 수행하고 결과를 영속화한다.
// 호출이 버려져도 리프레시는 완료되어 다음 호출자가 캐시된 토큰을 쓴다.
func (b *Broker) refreshToken(parent context.Context, setID string, stale *oauth2.Token) (*oauth2.Token, error) {
	cfg, err := b.oauthConfig(setID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), constants.RefreshConfig.Timeout)
	defer cancel()

	fresh, err := cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		if youtube.Classify(err) == youtube.ClassTransient {
			return nil, &errors.TransientNetworkError{SetID: setID, Operation: "token_refresh", Err: err}
		}
		return nil, fmt.Errorf("token refresh failed for %s: %w", setID, err)
	}

	b.mu.Lock()
	b.tokens[setID] = fresh
	b.mu.Unlock()

	if saveErr := b.store.Save(ctx, &credstore.Record{SetID: setID, Token: fresh}); saveErr != nil {
		// 저장 실패는 다음 리프레시에서 복구된다
		b.logger.Warn("Failed to persist refreshed token",
			slog.String("set", setID),
			slog.Any("error", saveErr),
		)
	}

	b.logger.Info("Token refreshed",
		slog.String("set", setID),
		slog.Time("expiry", fresh.Expiry),
	)

	return fresh, nil
}

// oauthConfig: 세트의 OAuth 클라이언트 설정을 lazy 로드한다.
func (b *Broker) oauthConfig(setID string) (*oauth2.Config, error) {
	b.mu.Lock()
	if cfg, ok := b.oauthConfigs[setID]; ok {
		b.mu.Unlock()
		return cfg, nil
	}

	var credentialsFile string
	for _, set := range b.sets {
		if set.ID == setID {
			credentialsFile = set.CredentialsFile
			break
		}
	}
	b.mu.Unlock()

	if credentialsFile == "" {
		return nil, &errors.CredentialInvalidError{
			SetID: setID,
			Err:   fmt.Errorf("no credentials file configured"),
		}
	}

	cfg, err := youtube.LoadOAuthConfig(credentialsFile)
	if err != nil {
		return nil, &errors.CredentialInvalidError{SetID: setID, Err: err}
	}

	b.mu.Lock()
	b.oauthConfigs[setID] = cfg
	b.mu.Unlock()

	return cfg, nil
}

// InvalidateToken: 캐시된 토큰을 버린다. (재인증 후 강제 재로드용)
func (b *Broker) InvalidateToken(setID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, setID)
}
