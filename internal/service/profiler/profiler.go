package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/util"
)

// Profiler: 세트별 소진 패턴을 학습하여 선제 로테이션을 돕는 휴리스틱
// 모든 판단은 결정적이며, 난수나 외부 모델을 쓰지 않는다.
type Profiler struct {
	mu       sync.Mutex
	profiles map[string]*domain.ExhaustionProfile
	repo     *Repository
	logger   *slog.Logger
	now      func() time.Time
}

// NewProfiler 는 동작을 수행한다. repo는 nil일 수 있다.
func NewProfiler(repo *Repository, logger *slog.Logger) *Profiler {
	return &Profiler{
		profiles: make(map[string]*domain.ExhaustionProfile),
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock: 테스트용 시계를 주입한다.
func (p *Profiler) SetClock(now func() time.Time) {
	p.now = now
}

// Hydrate: 영속 저장소의 프로파일을 복원한다.
func (p *Profiler) Hydrate(ctx context.Context, setIDs []string) error {
	if p.repo == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, setID := range setIDs {
		profile, err := p.repo.Load(ctx, setID)
		if err != nil {
			return fmt.Errorf("failed to hydrate profile for %s: %w", setID, err)
		}
		if profile != nil {
			p.profiles[setID] = profile
		}
	}
	return nil
}

// RecordOperation: 작업 빈도와 시간대별 호출 버킷을 갱신하고 피크 시간대를 재계산한다.
func (p *Profiler) RecordOperation(ctx context.Context, setID, operation string) {
	p.mu.Lock()
	profile := p.profileLocked(setID)
	profile.OperationFrequency[operation]++
	profile.HourlyCalls[p.now().Hour()]++
	profile.PeakHours = topHours(profile.HourlyCalls, constants.ProfilerDefaults.PeakHourCount)
	snapshot := *profile
	p.mu.Unlock()

	p.persist(ctx, &snapshot)
}

// RecordExhaustion: 소진 시각을 이력에 추가하고 최빈 소진 시각과 신뢰도를 재계산한다.
// 이력은 최근 30개까지만 보관한다.
func (p *Profiler) RecordExhaustion(ctx context.Context, setID string, at time.Time) {
	p.mu.Lock()
	profile := p.profileLocked(setID)

	profile.ExhaustionHistory = append(profile.ExhaustionHistory, at)
	if limit := constants.ProfilerDefaults.HistoryCap; len(profile.ExhaustionHistory) > limit {
		profile.ExhaustionHistory = profile.ExhaustionHistory[len(profile.ExhaustionHistory)-limit:]
	}

	profile.TypicalExhaustionHour = modalHour(profile.ExhaustionHistory)
	profile.Confidence = confidence(len(profile.ExhaustionHistory))
	snapshot := *profile
	p.mu.Unlock()

	p.logger.Info("Exhaustion recorded",
		slog.String("set", setID),
		slog.Int("observations", len(snapshot.ExhaustionHistory)),
		slog.Float64("confidence", snapshot.Confidence),
	)

	p.persist(ctx, &snapshot)
}

// WarnIfNear: 통상 소진 시각이 horizon 이내로 다가왔는지 알려준다.
// 신뢰도가 낮으면(informational=false 반환값의 두 번째) 참고용일 뿐이다.
func (p *Profiler) WarnIfNear(setID string) (near bool, confident bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.profiles[setID]
	if !ok || profile.TypicalExhaustionHour == nil {
		return false, false
	}

	horizonHours := int(constants.ProfilerDefaults.WarnHorizon.Hours())
	distance := util.HourDistance(p.now().Hour(), *profile.TypicalExhaustionHour)

	return distance <= horizonHours, profile.Confidence >= 0.5
}

// RecommendBestSet: 주어진 세트들 중 지금 쓰기 가장 좋은 세트를 고른다.
// 점수 = (100−사용률)×2 + (피크 시간대 밖이면 50) + (통상 소진 시각에서 4시간 이상이면 50)
// 동점이면 세트 ID 오름차순으로 결정한다.
func (p *Profiler) RecommendBestSet(sets []domain.CredentialSet) (string, bool) {
	if len(sets) == 0 {
		return "", false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hour := p.now().Hour()

	bestID := ""
	bestScore := -1.0
	for _, set := range sets {
		score := p.scoreLocked(&set, hour)
		if score > bestScore || (score == bestScore && set.ID < bestID) {
			bestID = set.ID
			bestScore = score
		}
	}

	return bestID, true
}

// Profile: 프로파일 복사본을 반환한다. (조회 API용)
func (p *Profiler) Profile(setID string) (*domain.ExhaustionProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.profiles[setID]
	if !ok {
		return nil, false
	}

	snapshot := *profile
	snapshot.OperationFrequency = make(map[string]int64, len(profile.OperationFrequency))
	for op, n := range profile.OperationFrequency {
		snapshot.OperationFrequency[op] = n
	}
	snapshot.PeakHours = append([]int(nil), profile.PeakHours...)
	snapshot.ExhaustionHistory = append([]time.Time(nil), profile.ExhaustionHistory...)
	return &snapshot, true
}

// scoreLocked 는 동작을 수행한다.
func (p *Profiler) scoreLocked(set *domain.CredentialSet, hour int) float64 {
	score := (100.0 - set.UsagePercent()) * 2.0

	profile, ok := p.profiles[set.ID]
	if !ok {
		// 관측이 없는 세트는 시간대 페널티가 없다
		return score + 100.0
	}

	if !profile.InPeakHours(hour) {
		score += 50.0
	}
	if profile.TypicalExhaustionHour == nil ||
		util.HourDistance(hour, *profile.TypicalExhaustionHour) >= constants.ProfilerDefaults.ExhaustionSafeHours {
		score += 50.0
	}

	return score
}

// profileLocked 는 동작을 수행한다.
func (p *Profiler) profileLocked(setID string) *domain.ExhaustionProfile {
	profile, ok := p.profiles[setID]
	if !ok {
		profile = domain.NewExhaustionProfile(setID)
		p.profiles[setID] = profile
	}
	return profile
}

// persist 는 동작을 수행한다.
func (p *Profiler) persist(ctx context.Context, profile *domain.ExhaustionProfile) {
	if p.repo == nil {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RequestTimeout.Persistence)
	defer cancel()

	if err := p.repo.Save(persistCtx, profile); err != nil {
		p.logger.Warn("Failed to persist exhaustion profile",
			slog.String("set", profile.SetID),
			slog.Any("error", err),
		)
	}
}

// topHours: 호출량 상위 n개 시간대를 반환한다. 동률은 이른 시간이 우선한다.
func topHours(buckets [24]int64, n int) []int {
	hours := make([]int, 0, 24)
	for hour, count := range buckets {
		if count > 0 {
			hours = append(hours, hour)
		}
	}

	sort.SliceStable(hours, func(i, j int) bool {
		if buckets[hours[i]] != buckets[hours[j]] {
			return buckets[hours[i]] > buckets[hours[j]]
		}
		return hours[i] < hours[j]
	})

	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

// modalHour: 소진 이력의 최빈 시간대를 반환한다. 이력이 없으면 nil.
func modalHour(history []time.Time) *int {
	if len(history) == 0 {
		return nil
	}

	var buckets [24]int
	for _, t := range history {
		buckets[t.Hour()]++
	}

	best := 0
	for hour := 1; hour < 24; hour++ {
		if buckets[hour] > buckets[best] {
			best = hour
		}
	}
	return &best
}

// confidence: 관측 횟수 기반 신뢰도 = min(1, n/10)
func confidence(n int) float64 {
	c := float64(n) / constants.ProfilerDefaults.ConfidenceDivisor
	if c > 1.0 {
		return 1.0
	}
	return c
}
