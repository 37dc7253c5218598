package broker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/admission"
	"github.com/kapu/youtube-quota-broker-go/internal/service/cache"
	"github.com/kapu/youtube-quota-broker-go/internal/service/credstore"
	"github.com/kapu/youtube-quota-broker-go/internal/service/profiler"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
	"github.com/kapu/youtube-quota-broker-go/internal/service/rotation"
	"github.com/kapu/youtube-quota-broker-go/internal/service/youtube"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

// Broker: 자격 증명 풀의 단일 진입점
// "사용 가능한 클라이언트 하나"를 요청받아 로테이션 순서대로 후보를 시도하고,
// 토큰을 선제 리프레시하며, 실패한 세트를 epoch 동안 제외한다.
// 프로세스 전역 상태는 전부 이 객체가 소유한다. 숨은 전역은 없다.
type Broker struct {
	sets      []domain.CredentialSetConfig
	apiKey    string
	ledger    *quota.Ledger
	admission *admission.Controller
	advisor   *rotation.Advisor
	profiler  *profiler.Profiler
	store     credstore.Store
	factory   *youtube.Factory
	cache     *cache.Service
	emit      domain.EmitFunc
	logger    *slog.Logger

	mu           sync.Mutex
	activeSetID  string
	exhausted    map[string]time.Time // 이번 epoch 동안 제외된 세트
	tokens       map[string]*oauth2.Token
	oauthConfigs map[string]*oauth2.Config

	refreshGroup singleflight.Group
	now          func() time.Time
}

// Deps: 브로커가 의존하는 협력자 묶음
type Deps struct {
	Ledger    *quota.Ledger
	Admission *admission.Controller
	Advisor   *rotation.Advisor
	Profiler  *profiler.Profiler
	Store     credstore.Store
	Factory   *youtube.Factory
	Cache     *cache.Service
	Emit      domain.EmitFunc
	Logger    *slog.Logger
	Clock     func() time.Time
}

// NewBroker 는 동작을 수행한다.
func NewBroker(sets []domain.CredentialSetConfig, apiKey string, deps Deps) *Broker {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	active := ""
	if len(sets) > 0 {
		active = sets[0].ID
	}

	b := &Broker{
		sets:         sets,
		apiKey:       apiKey,
		ledger:       deps.Ledger,
		admission:    deps.Admission,
		advisor:      deps.Advisor,
		profiler:     deps.Profiler,
		store:        deps.Store,
		factory:      deps.Factory,
		cache:        deps.Cache,
		emit:         deps.Emit,
		logger:       deps.Logger,
		activeSetID:  active,
		exhausted:    make(map[string]time.Time),
		tokens:       make(map[string]*oauth2.Token),
		oauthConfigs: make(map[string]*oauth2.Config),
		now:          now,
	}

	// 소진 콜백으로 프로파일러와 epoch 제외를 연결한다
	deps.Ledger.SetOnExhausted(func(setID string, at time.Time) {
		b.markExhausted(context.Background(), setID, "quota exhausted", at)
	})

	return b
}

// Acquire: 검증을 마친 사용 가능한 클라이언트를 반환한다.
// 모든 OAuth 세트가 실패하면 API 키 기반 축소 모드 클라이언트를 시도하고,
// 그것도 불가능하면 AllCredentialsExhaustedError를 반환한다.
func (b *Broker) Acquire(ctx context.Context, operation string) (*youtube.Client, error) {
	// 윈도우가 리셋된 세트는 epoch 제외에서 자동 복귀한다
	for _, setID := range b.ledger.CheckDailyReset(ctx) {
		b.clearExclusion(setID)
	}

	if near, confident := b.profiler.WarnIfNear(b.ActiveSet()); near && confident {
		b.logger.Warn("Active set is approaching its typical exhaustion hour",
			slog.String("set", b.ActiveSet()))
	}

	candidates, _ := b.candidateOrder(ctx)

	// 후보가 전부 제외 상태면 제외를 비우고 한 번 재구성한다 (쿼터가 리셋됐을 수 있다)
	if len(candidates) == 0 {
		b.clearAllExclusions()
		candidates, _ = b.candidateOrder(ctx)
	}

	reasons := make(map[string]string)
	attempted := 0

	for _, setID := range candidates {
		attempted++

		client, reason := b.tryCandidate(ctx, setID, operation)
		if client != nil {
			b.setActive(setID)
			return client, nil
		}
		reasons[setID] = reason
	}

	if b.apiKey != "" {
		client, err := b.factory.NewAPIKeyClient(ctx, b.apiKey)
		if err == nil {
			b.logger.Warn("All OAuth sets failed, degrading to read-only API key client",
				slog.Int("attempted", attempted))
			return client, nil
		}
		reasons["api_key"] = err.Error()
	}

	return nil, &errors.AllCredentialsExhaustedError{
		Attempted: attempted,
		Reasons:   reasons,
	}
}

// Report: 호출자가 실제 API 호출을 마친 뒤 소비를 보고한다.
// 성공 시 원장 기록과 프로파일 갱신을 수행하고, 실패 시 분류에 따라 세트를 제외한다.
func (b *Broker) Report(ctx context.Context, client *youtube.Client, operation string, count int, callErr error) error {
	if client == nil || client.Degraded {
		return nil
	}

	if callErr != nil {
		class := youtube.Classify(callErr)
		b.logger.Warn("Reported call failure",
			slog.String("set", client.SetID),
			slog.String("operation", operation),
			slog.String("class", string(class)),
		)
		if class == youtube.ClassQuotaExceeded {
			b.markExhausted(ctx, client.SetID, "quota exceeded on live call", b.now())
		}
		return nil
	}

	table := b.admission.Table()
	op, ok := table.Lookup(operation)
	if !ok {
		return errors.NewValidationError("operation", "unknown operation: "+operation)
	}

	if _, err := b.ledger.Record(ctx, client.SetID, op, count); err != nil {
		return err
	}

	b.profiler.RecordOperation(ctx, client.SetID, operation)
	return nil
}

// ActiveSet 는 동작을 수행한다.
func (b *Broker) ActiveSet() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeSetID
}

// Exclusions: 현재 epoch에서 제외된 세트 목록을 반환한다.
func (b *Broker) Exclusions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.exhausted))
	for id := range b.exhausted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Advise: 현재 활성 세트에 대한 로테이션 권고를 반환한다. (관리 API용)
func (b *Broker) Advise() *domain.RotationDecision {
	return b.advisor.Advise(b.ActiveSet())
}

// tryCandidate: 후보 세트 하나에 대해 판정 → 토큰 → 검증을 수행한다.
// 실패하면 (nil, 사유)를 반환하고 다음 후보로 넘어간다.
func (b *Broker) tryCandidate(ctx context.Context, setID, operation string) (*youtube.Client, string) {
	if b.isExcluded(setID) {
		return nil, "excluded this epoch"
	}

	admit := b.admission.CanAdmit(operation, setID, 1, false)
	if !admit.Allowed {
		return nil, admit.Reason
	}
	for _, warning := range admit.Warnings {
		b.logger.Warn("Admission warning", slog.String("set", setID), slog.String("warning", warning))
	}

	token, err := b.ensureFreshToken(ctx, setID)
	if err != nil {
		switch err.(type) {
		case *errors.CredentialInvalidError:
			b.markExhausted(ctx, setID, "credential unusable", b.now())
		case *errors.CredentialExpiredError:
			b.markExhausted(ctx, setID, "token expired without refresh token", b.now())
		default:
			if youtube.Classify(err) == youtube.ClassAuthRevoked {
				b.markExhausted(ctx, setID, "refresh token revoked", b.now())
			} else {
				// 일시적 리프레시 실패는 세트를 제외하지 않는다
				b.logger.Warn("Token refresh failed transiently",
					slog.String("set", setID), slog.Any("error", err))
			}
		}
		return nil, err.Error()
	}

	client, err := b.factory.NewOAuthClient(ctx, setID, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err.Error()
	}

	if err := b.factory.Validate(ctx, client); err != nil {
		class := youtube.Classify(err)
		if class == youtube.ClassQuotaExceeded {
			b.markExhausted(ctx, setID, "quota exceeded on validation", b.now())
		} else {
			b.logger.Warn("Validation failed, trying next candidate",
				slog.String("set", setID),
				slog.String("class", string(class)),
				slog.Any("error", err),
			)
		}
		return nil, err.Error()
	}

	// 검증 호출도 1 유닛을 소비한다
	validateOp := domain.Operation{Name: "validation", Cost: 1, Priority: domain.PriorityHigh}
	if _, err := b.ledger.Record(ctx, setID, validateOp, 1); err != nil {
		b.logger.Warn("Failed to record validation cost", slog.String("set", setID), slog.Any("error", err))
	}

	return client, ""
}

// candidateOrder: 어드바이저 순서에서 제외 세트를 걸러낸 후보 목록을 만든다.
// 매 Acquire마다 로테이션 판단 이벤트를 발행한다.
func (b *Broker) candidateOrder(ctx context.Context) ([]string, *domain.RotationDecision) {
	order, decision := b.advisor.Order(b.ActiveSet())

	event := domain.RotationEvent{
		ActiveSetID: b.ActiveSet(),
		TargetSetID: decision.TargetSetID,
		Urgency:     decision.Urgency,
		Reason:      decision.Reason,
		Timestamp:   b.now(),
	}
	b.emit.Emit(event)
	if b.cache != nil {
		b.cache.PushEvent(ctx, event)
	}

	candidates := make([]string, 0, len(order))
	for _, setID := range order {
		if !b.isExcluded(setID) {
			candidates = append(candidates, setID)
		}
	}
	return candidates, decision
}

// markExhausted: 세트를 이번 epoch에서 제외하고 소진 이력을 기록한다.
func (b *Broker) markExhausted(ctx context.Context, setID, reason string, at time.Time) {
	b.mu.Lock()
	_, already := b.exhausted[setID]
	b.exhausted[setID] = at
	b.mu.Unlock()

	if already {
		return
	}

	b.logger.Warn("Credential set excluded for this epoch",
		slog.String("set", setID),
		slog.String("reason", reason),
	)
	b.profiler.RecordExhaustion(ctx, setID, at)
}

// isExcluded 는 동작을 수행한다.
func (b *Broker) isExcluded(setID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.exhausted[setID]
	return ok
}

// clearExclusion 는 동작을 수행한다.
func (b *Broker) clearExclusion(setID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.exhausted, setID)
}

// clearAllExclusions 는 동작을 수행한다.
func (b *Broker) clearAllExclusions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.exhausted) > 0 {
		b.logger.Info("Clearing epoch exclusions for retry", slog.Int("count", len(b.exhausted)))
	}
	b.exhausted = make(map[string]time.Time)
}

// setActive 는 동작을 수행한다.
func (b *Broker) setActive(setID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeSetID = setID
}
