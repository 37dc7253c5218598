package profiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/credstore"
	"github.com/kapu/youtube-quota-broker-go/internal/service/database"
)

// Repository: exhaustion_profiles 테이블에 대한 GORM 접근 계층
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRepository 는 동작을 수행한다.
func NewRepository(postgres *database.PostgresService, logger *slog.Logger) *Repository {
	return &Repository{
		db:     postgres.GetGormDB(),
		logger: logger,
	}
}

// Save: 프로파일을 JSONB 페이로드로 upsert한다.
func (r *Repository) Save(ctx context.Context, profile *domain.ExhaustionProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal exhaustion profile: %w", err)
	}

	row := credstore.ProfileRecord{
		SetID: profile.SetID,
		Data:  datatypes.JSON(payload),
	}

	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save exhaustion profile: %w", err)
	}
	return nil
}

// Load: 프로파일을 조회한다. 없으면 (nil, nil)을 반환한다.
func (r *Repository) Load(ctx context.Context, setID string) (*domain.ExhaustionProfile, error) {
	var row credstore.ProfileRecord
	err := r.db.WithContext(ctx).First(&row, "set_id = ?", setID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exhaustion profile: %w", err)
	}

	var profile domain.ExhaustionProfile
	if err := json.Unmarshal(row.Data, &profile); err != nil {
		// 페이로드가 깨졌으면 빈 프로파일로 다시 시작한다
		r.logger.Warn("Corrupt exhaustion profile payload, starting fresh",
			slog.String("set", setID),
			slog.Any("error", err),
		)
		return nil, nil
	}

	if profile.OperationFrequency == nil {
		profile.OperationFrequency = make(map[string]int64)
	}
	profile.SetID = setID

	return &profile, nil
}
