package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/kapu/youtube-quota-broker-go/internal/service/database"
)

// Record: 하나의 세트에 대한 토큰 레코드
type Record struct {
	SetID     string
	Token     *oauth2.Token
	UpdatedAt time.Time
}

// Store: 세트별 토큰 레코드의 load/save 인터페이스
// 어떤 key-value 저장소든 이 인터페이스를 만족하면 된다.
type Store interface {
	Load(ctx context.Context, setID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
}

// GormStore: PostgreSQL(credential_sets 테이블) 기반 토큰 저장소
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormStore: PostgreSQL 기반 토큰 저장소를 생성하고 스키마를 마이그레이션한다.
func NewGormStore(postgres *database.PostgresService, logger *slog.Logger) (*GormStore, error) {
	db := postgres.GetGormDB()
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate broker schema: %w", err)
	}

	return &GormStore{
		db:     db,
		logger: logger,
	}, nil
}

// Load: 세트의 토큰 레코드를 조회한다. 없으면 (nil, nil)을 반환한다.
func (s *GormStore) Load(ctx context.Context, setID string) (*Record, error) {
	var row CredentialRecord
	err := s.db.WithContext(ctx).First(&row, "set_id = ?", setID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential record: %w", err)
	}

	return &Record{
		SetID: row.SetID,
		Token: &oauth2.Token{
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			TokenType:    row.TokenType,
			Expiry:       row.Expiry,
		},
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Save: 세트의 토큰 레코드를 저장(upsert)한다.
func (s *GormStore) Save(ctx context.Context, record *Record) error {
	if record == nil || record.Token == nil {
		return fmt.Errorf("record and token must not be nil")
	}

	row := CredentialRecord{
		SetID:        record.SetID,
		AccessToken:  record.Token.AccessToken,
		RefreshToken: record.Token.RefreshToken,
		TokenType:    record.Token.TokenType,
		Expiry:       record.Token.Expiry,
	}

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save credential record: %w", err)
	}

	s.logger.Debug("Credential record persisted",
		slog.String("set", record.SetID),
		slog.Time("expiry", record.Token.Expiry),
	)

	return nil
}
