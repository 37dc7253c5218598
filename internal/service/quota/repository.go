package quota

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/database"
)

// Repository: usage_snapshots 테이블에 대한 raw SQL 접근 계층
// 테이블 스키마는 credstore.Migrate가 생성한다.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRepository 는 동작을 수행한다.
func NewRepository(postgres *database.PostgresService, logger *slog.Logger) *Repository {
	return &Repository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

// Save: 세트의 사용량 스냅샷을 upsert한다.
func (r *Repository) Save(ctx context.Context, status *domain.QuotaStatus) error {
	perOp, err := json.Marshal(status.PerOperation)
	if err != nil {
		return fmt.Errorf("failed to marshal per-operation usage: %w", err)
	}

	var lastCallAt *time.Time
	if !status.LastCallAt.IsZero() {
		lastCallAt = &status.LastCallAt
	}

	query := `
		INSERT INTO usage_snapshots (set_id, used, daily_limit, last_reset_at, last_call_at, per_op, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (set_id) DO UPDATE SET
			used = EXCLUDED.used,
			daily_limit = EXCLUDED.daily_limit,
			last_reset_at = EXCLUDED.last_reset_at,
			last_call_at = EXCLUDED.last_call_at,
			per_op = EXCLUDED.per_op,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query,
		status.SetID, status.Used, status.Limit, status.LastResetAt, lastCallAt, perOp,
	); err != nil {
		return fmt.Errorf("failed to upsert usage snapshot: %w", err)
	}

	return nil
}

// Load: 세트의 사용량 스냅샷을 조회한다. 없으면 (nil, nil)을 반환한다.
func (r *Repository) Load(ctx context.Context, setID string) (*domain.QuotaStatus, error) {
	query := `
		SELECT used, daily_limit, last_reset_at, last_call_at, per_op
		FROM usage_snapshots
		WHERE set_id = $1`

	var (
		status     domain.QuotaStatus
		lastCallAt sql.NullTime
		perOpRaw   []byte
	)

	err := r.db.QueryRowContext(ctx, query, setID).Scan(
		&status.Used, &status.Limit, &status.LastResetAt, &lastCallAt, &perOpRaw,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage snapshot: %w", err)
	}

	status.SetID = setID
	if lastCallAt.Valid {
		status.LastCallAt = lastCallAt.Time
	}
	if len(perOpRaw) > 0 {
		if err := json.Unmarshal(perOpRaw, &status.PerOperation); err != nil {
			// 집계가 깨졌어도 총량은 살린다
			r.logger.Warn("Failed to decode per-operation usage, dropping breakdown",
				slog.String("set", setID),
				slog.Any("error", err),
			)
			status.PerOperation = nil
		}
	}

	return &status, nil
}
