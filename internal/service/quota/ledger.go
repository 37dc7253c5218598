package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/cache"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

// setState: 세트 하나의 가변 원장 상태. 세트별 뮤텍스로 보호한다.
type setState struct {
	mu    sync.Mutex
	set   domain.CredentialSet
	perOp map[string]*domain.UsageRecord
}

// Ledger: 세트별 쿼터 소비의 단일 진실 공급원
// 모든 소비 기록은 반드시 이 원장을 거치며, used가 한도를 넘는 기록은 거부된다.
// 인메모리 상태가 항상 우선하고, PostgreSQL/Valkey는 보조 저장소다.
type Ledger struct {
	policy         *ResetPolicy
	reservePercent float64
	states         map[string]*setState
	repo           *Repository
	cache          *cache.Service
	emit           domain.EmitFunc
	logger         *slog.Logger

	onExhaustedMu sync.Mutex
	onExhausted   func(setID string, at time.Time)

	now func() time.Time // 테스트에서 주입하는 시계
}

// Options: 원장 생성 시 선택적으로 연결하는 협력자들
type Options struct {
	Repository *Repository
	Cache      *cache.Service
	Emit       domain.EmitFunc
	Clock      func() time.Time
}

// NewLedger: 자격 증명 세트 구성으로부터 원장을 생성한다.
func NewLedger(sets []domain.CredentialSetConfig, policy *ResetPolicy, reservePercent float64, logger *slog.Logger, opts Options) *Ledger {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	states := make(map[string]*setState, len(sets))
	for _, cfg := range sets {
		states[cfg.ID] = &setState{
			set: domain.CredentialSet{
				ID:              cfg.ID,
				CredentialsFile: cfg.CredentialsFile,
				TokenRef:        cfg.TokenRef,
				DailyLimit:      cfg.DailyLimit,
				LastResetAt:     policy.ResetAnchor(time.Time{}, now()),
			},
			perOp: make(map[string]*domain.UsageRecord),
		}
	}

	return &Ledger{
		policy:         policy,
		reservePercent: reservePercent,
		states:         states,
		repo:           opts.Repository,
		cache:          opts.Cache,
		emit:           opts.Emit,
		logger:         logger,
		now:            now,
	}
}

// ReservePercent 는 동작을 수행한다.
func (l *Ledger) ReservePercent() float64 {
	return l.reservePercent
}

// Policy 는 동작을 수행한다.
func (l *Ledger) Policy() *ResetPolicy {
	return l.policy
}

// SetOnExhausted: 세트 소진 시 호출되는 콜백을 등록한다. (프로파일러 연동용)
func (l *Ledger) SetOnExhausted(fn func(setID string, at time.Time)) {
	l.onExhaustedMu.Lock()
	defer l.onExhaustedMu.Unlock()
	l.onExhausted = fn
}

// Hydrate: 영속 저장소의 스냅샷으로 인메모리 상태를 복원한다.
// 현재 윈도우보다 오래된 스냅샷은 새 윈도우로 간주하여 무시한다.
func (l *Ledger) Hydrate(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}

	now := l.now()
	for setID, state := range l.states {
		snap, err := l.repo.Load(ctx, setID)
		if err != nil {
			return fmt.Errorf("failed to hydrate set %s: %w", setID, err)
		}
		if snap == nil {
			continue
		}

		state.mu.Lock()
		if l.policy.Due(snap.LastResetAt, now) {
			// 저장된 윈도우가 이미 끝났다
			state.mu.Unlock()
			l.logger.Info("Persisted usage window expired, starting fresh",
				slog.String("set", setID),
				slog.Time("persistedResetAt", snap.LastResetAt),
			)
			continue
		}

		state.set.Used = snap.Used
		state.set.LastResetAt = snap.LastResetAt
		state.set.LastCallAt = snap.LastCallAt
		state.perOp = make(map[string]*domain.UsageRecord, len(snap.PerOperation))
		for name, rec := range snap.PerOperation {
			r := rec
			state.perOp[name] = &r
		}
		state.mu.Unlock()

		l.logger.Info("Usage snapshot restored",
			slog.String("set", setID),
			slog.Int64("used", snap.Used),
		)
	}

	return nil
}

// Record: 세트에 작업 수행 비용(cost × count)을 기록한다.
// 한도를 넘게 되는 기록은 InsufficientQuotaError로 거부되며 상태는 변하지 않는다.
func (l *Ledger) Record(ctx context.Context, setID string, op domain.Operation, count int) (*domain.QuotaStatus, error) {
	state, ok := l.states[setID]
	if !ok {
		return nil, errors.NewValidationError("setID", fmt.Sprintf("unknown credential set: %s", setID))
	}
	if count <= 0 {
		return nil, errors.NewValidationError("count", "count must be positive")
	}

	cost := op.Cost * int64(count)
	now := l.now()

	state.mu.Lock()
	l.resetIfDueLocked(state, now)

	if state.set.Used+cost > state.set.DailyLimit {
		available := state.set.Available()
		state.mu.Unlock()
		return nil, &errors.InsufficientQuotaError{
			SetID:     setID,
			Operation: op.Name,
			Cost:      cost,
			Available: available,
		}
	}

	prevPercent := state.set.UsagePercent()
	state.set.Used += cost
	state.set.LastCallAt = now

	rec, ok := state.perOp[op.Name]
	if !ok {
		rec = &domain.UsageRecord{Operation: op.Name}
		state.perOp[op.Name] = rec
	}
	rec.Count += int64(count)
	rec.UnitsConsumed += cost

	status := l.statusLocked(state)
	exhausted := state.set.Available() == 0
	state.mu.Unlock()

	l.logger.Debug("Quota recorded",
		slog.String("set", setID),
		slog.String("operation", op.Name),
		slog.Int64("cost", cost),
		slog.Int64("used", status.Used),
		slog.Float64("usagePercent", status.UsagePercent),
	)

	l.raiseAlerts(ctx, setID, prevPercent, status.UsagePercent, now)
	l.mirror(ctx, status)

	if exhausted {
		l.notifyExhausted(setID, now)
	}

	return status, nil
}

// CheckDailyReset: 모든 세트에 대해 리셋 도래 여부를 확인하고 필요 시 리셋한다.
// 리셋된 세트 ID 목록을 반환한다.
func (l *Ledger) CheckDailyReset(ctx context.Context) []string {
	now := l.now()
	resetIDs := make([]string, 0)

	for setID, state := range l.states {
		state.mu.Lock()
		wasReset := l.resetIfDueLocked(state, now)
		var status *domain.QuotaStatus
		if wasReset {
			status = l.statusLocked(state)
		}
		state.mu.Unlock()

		if wasReset {
			resetIDs = append(resetIDs, setID)
			l.mirror(ctx, status)
		}
	}

	sort.Strings(resetIDs)
	return resetIDs
}

// Status: 세트의 현재 쿼터 상태 스냅샷을 반환한다.
func (l *Ledger) Status(setID string) (*domain.QuotaStatus, error) {
	state, ok := l.states[setID]
	if !ok {
		return nil, errors.NewValidationError("setID", fmt.Sprintf("unknown credential set: %s", setID))
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	l.resetIfDueLocked(state, l.now())
	return l.statusLocked(state), nil
}

// Snapshot: 모든 세트의 상태 스냅샷을 세트 ID 순으로 반환한다.
func (l *Ledger) Snapshot() []*domain.QuotaStatus {
	ids := make([]string, 0, len(l.states))
	for id := range l.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := l.now()
	result := make([]*domain.QuotaStatus, 0, len(ids))
	for _, id := range ids {
		state := l.states[id]
		state.mu.Lock()
		l.resetIfDueLocked(state, now)
		result = append(result, l.statusLocked(state))
		state.mu.Unlock()
	}
	return result
}

// View: 세트의 현재 값 복사본을 반환한다. (판정 로직용 읽기 전용 뷰)
func (l *Ledger) View(setID string) (domain.CredentialSet, bool) {
	state, ok := l.states[setID]
	if !ok {
		return domain.CredentialSet{}, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	l.resetIfDueLocked(state, l.now())
	return state.set, true
}

// Views: 모든 세트의 값 복사본을 세트 ID 순으로 반환한다.
func (l *Ledger) Views() []domain.CredentialSet {
	ids := make([]string, 0, len(l.states))
	for id := range l.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := l.now()
	sets := make([]domain.CredentialSet, 0, len(ids))
	for _, id := range ids {
		state := l.states[id]
		state.mu.Lock()
		l.resetIfDueLocked(state, now)
		sets = append(sets, state.set)
		state.mu.Unlock()
	}
	return sets
}

// NextReset: 세트의 다음 리셋 시각을 반환한다.
func (l *Ledger) NextReset(setID string) (time.Time, bool) {
	state, ok := l.states[setID]
	if !ok {
		return time.Time{}, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return l.policy.NextReset(state.set.LastResetAt, l.now()), true
}

// Persist: 모든 세트의 현재 상태를 영속 저장소에 저장한다. (종료 시 호출)
func (l *Ledger) Persist(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}

	for _, status := range l.Snapshot() {
		if err := l.repo.Save(ctx, status); err != nil {
			return fmt.Errorf("failed to persist set %s: %w", status.SetID, err)
		}
	}
	return nil
}

// resetIfDueLocked: 리셋이 도래했으면 소비 집계를 초기화한다. 호출자가 락을 보유해야 한다.
func (l *Ledger) resetIfDueLocked(state *setState, now time.Time) bool {
	if !l.policy.Due(state.set.LastResetAt, now) {
		return false
	}

	anchor := l.policy.ResetAnchor(state.set.LastResetAt, now)
	l.logger.Info("Quota window reset",
		slog.String("set", state.set.ID),
		slog.Int64("previousUsed", state.set.Used),
		slog.Time("resetAt", anchor),
	)

	state.set.Used = 0
	state.set.LastResetAt = anchor
	state.perOp = make(map[string]*domain.UsageRecord)
	return true
}

// statusLocked: 현재 상태의 스냅샷을 만든다. 호출자가 락을 보유해야 한다.
func (l *Ledger) statusLocked(state *setState) *domain.QuotaStatus {
	perOp := make(map[string]domain.UsageRecord, len(state.perOp))
	for name, rec := range state.perOp {
		perOp[name] = *rec
	}

	return &domain.QuotaStatus{
		SetID:        state.set.ID,
		Used:         state.set.Used,
		Limit:        state.set.DailyLimit,
		Available:    state.set.Available(),
		UsagePercent: state.set.UsagePercent(),
		Health:       state.set.Status(),
		LastResetAt:  state.set.LastResetAt,
		LastCallAt:   state.set.LastCallAt,
		PerOperation: perOp,
	}
}

// raiseAlerts: 임계값 도달 시 알림 이벤트를 발행한다.
// CRITICAL은 매번, WARNING은 세트당 1시간에 한 번만 발행한다.
func (l *Ledger) raiseAlerts(ctx context.Context, setID string, prevPercent, percent float64, now time.Time) {
	switch {
	case percent >= constants.AlertConfig.CriticalPercent:
		event := domain.AlertEvent{
			SetID:        setID,
			UsagePercent: percent,
			Severity:     "CRITICAL",
			Message:      fmt.Sprintf("set=%s usage=%.1f%% quota critically low", setID, percent),
			Timestamp:    now,
		}
		l.emit.Emit(event)
		if l.cache != nil {
			l.cache.PushEvent(ctx, event)
		}
		l.logger.Error("Quota critical", slog.String("set", setID), slog.Float64("usagePercent", percent))

	case percent >= constants.AlertConfig.WarningPercent:
		if l.cache != nil && !l.cache.MarkWarningAlert(ctx, setID) {
			return // 이번 시간 창에서는 이미 발행했다
		}
		if l.cache == nil && prevPercent >= constants.AlertConfig.WarningPercent {
			return // 캐시 없는 구성에서는 임계값 진입 시 한 번만
		}

		event := domain.AlertEvent{
			SetID:        setID,
			UsagePercent: percent,
			Severity:     "WARNING",
			Message:      fmt.Sprintf("set=%s usage=%.1f%% approaching quota limit", setID, percent),
			Timestamp:    now,
		}
		l.emit.Emit(event)
		if l.cache != nil {
			l.cache.PushEvent(ctx, event)
		}
		l.logger.Warn("Quota warning", slog.String("set", setID), slog.Float64("usagePercent", percent))
	}
}

// mirror: 상태 스냅샷을 보조 저장소에 비차단으로 반영한다.
func (l *Ledger) mirror(ctx context.Context, status *domain.QuotaStatus) {
	if l.cache != nil {
		l.cache.SetStatusSnapshot(ctx, status)
	}

	if l.repo != nil {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RequestTimeout.Persistence)
		defer cancel()
		if err := l.repo.Save(persistCtx, status); err != nil {
			l.logger.Warn("Failed to persist usage snapshot",
				slog.String("set", status.SetID),
				slog.Any("error", err),
			)
		}
	}
}

// notifyExhausted 는 동작을 수행한다.
func (l *Ledger) notifyExhausted(setID string, at time.Time) {
	l.onExhaustedMu.Lock()
	fn := l.onExhausted
	l.onExhaustedMu.Unlock()

	if fn != nil {
		fn(setID, at)
	}
}
