package broker

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/admission"
	"github.com/kapu/youtube-quota-broker-go/internal/service/credstore"
	"github.com/kapu/youtube-quota-broker-go/internal/service/profiler"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
	"github.com/kapu/youtube-quota-broker-go/internal/service/rotation"
	"github.com/kapu/youtube-quota-broker-go/internal/service/youtube"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore: 테스트용 인메모리 토큰 저장소
type memStore struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

func newMemStore() *memStore {
	return &memStore{tokens: make(map[string]*oauth2.Token)}
}

func (s *memStore) Load(_ context.Context, setID string) (*credstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[setID]
	if !ok {
		return nil, nil
	}
	return &credstore.Record{SetID: setID, Token: token}, nil
}

func (s *memStore) Save(_ context.Context, record *credstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[record.SetID] = record.Token
	return nil
}

type testHarness struct {
	broker *Broker
	ledger *quota.Ledger
	store  *memStore
	clock  *fakeClock
	events []domain.Event
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newHarness(t *testing.T, apiKey string) *testHarness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)}

	policy, err := quota.NewResetPolicy(quota.ResetModeRolling, 0, "")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	sets := []domain.CredentialSetConfig{
		{ID: "set_1", CredentialsFile: "client_secret_1.json", DailyLimit: 10000},
		{ID: "set_2", CredentialsFile: "client_secret_2.json", DailyLimit: 10000},
	}

	h := &testHarness{store: newMemStore(), clock: clock}

	ledger := quota.NewLedger(sets, policy, 0.05, testLogger(), quota.Options{
		Clock: clock.Now,
	})
	h.ledger = ledger

	ctrl := admission.NewController(ledger, domain.DefaultCostTable(), testLogger())
	ctrl.SetClock(clock.Now)

	prof := profiler.NewProfiler(nil, testLogger())
	prof.SetClock(clock.Now)

	h.broker = NewBroker(sets, apiKey, Deps{
		Ledger:    ledger,
		Admission: ctrl,
		Advisor:   rotation.NewAdvisor(ledger, testLogger()),
		Profiler:  prof,
		Store:     h.store,
		Factory:   youtube.NewFactory(testLogger()),
		Emit:      func(e domain.Event) { h.events = append(h.events, e) },
		Logger:    testLogger(),
		Clock:     clock.Now,
	})

	return h
}

func TestAcquireAllExhaustedWithoutTokens(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.broker.Acquire(context.Background(), "list")

	var exhaustedErr *errors.AllCredentialsExhaustedError
	if !stderrors.As(err, &exhaustedErr) {
		t.Fatalf("expected AllCredentialsExhaustedError, got %v", err)
	}
	if exhaustedErr.Attempted != 2 {
		t.Fatalf("attempted = %d, want 2", exhaustedErr.Attempted)
	}
	if len(exhaustedErr.Reasons) != 2 {
		t.Fatalf("reasons = %v, want entries for both sets", exhaustedErr.Reasons)
	}

	// 저장된 토큰이 없는 세트는 epoch에서 제외된다
	if got := h.broker.Exclusions(); len(got) != 2 {
		t.Fatalf("exclusions = %v, want both sets", got)
	}
}

func TestAcquireDegradedFallback(t *testing.T) {
	h := newHarness(t, "test-api-key")

	client, err := h.broker.Acquire(context.Background(), "list")
	if err != nil {
		t.Fatalf("expected degraded client, got error %v", err)
	}
	if !client.Degraded {
		t.Fatalf("expected degraded client")
	}
}

func TestExpiredTokenWithoutRefreshExcluded(t *testing.T) {
	h := newHarness(t, "")

	// 리프레시 토큰 없는 만료 토큰
	h.store.tokens["set_1"] = &oauth2.Token{
		AccessToken: "stale",
		Expiry:      h.clock.Now().Add(-time.Hour),
	}

	_, err := h.broker.Acquire(context.Background(), "list")

	var exhaustedErr *errors.AllCredentialsExhaustedError
	if !stderrors.As(err, &exhaustedErr) {
		t.Fatalf("expected AllCredentialsExhaustedError, got %v", err)
	}

	found := false
	for _, setID := range h.broker.Exclusions() {
		if setID == "set_1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("set_1 with expired token must be excluded, got %v", h.broker.Exclusions())
	}
}

func TestReportRecordsUsageAndProfile(t *testing.T) {
	h := newHarness(t, "")
	client := &youtube.Client{SetID: "set_1"}

	if err := h.broker.Report(context.Background(), client, "search", 2, nil); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	status, err := h.ledger.Status("set_1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Used != 200 {
		t.Fatalf("used = %d, want 200", status.Used)
	}
}

func TestReportQuotaErrorExcludesSet(t *testing.T) {
	h := newHarness(t, "")
	client := &youtube.Client{SetID: "set_1"}

	quotaErr := &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}
	if err := h.broker.Report(context.Background(), client, "search", 1, quotaErr); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if got := h.broker.Exclusions(); len(got) != 1 || got[0] != "set_1" {
		t.Fatalf("exclusions = %v, want [set_1]", got)
	}

	// 실패 보고는 쿼터를 소비하지 않는다
	status, _ := h.ledger.Status("set_1")
	if status.Used != 0 {
		t.Fatalf("failed call must not consume quota, used = %d", status.Used)
	}
}

func TestReportDegradedClientIgnored(t *testing.T) {
	h := newHarness(t, "")
	client := &youtube.Client{SetID: "api_key", Degraded: true}

	if err := h.broker.Report(context.Background(), client, "search", 1, nil); err != nil {
		t.Fatalf("degraded report must be a no-op, got %v", err)
	}

	for _, status := range h.ledger.Snapshot() {
		if status.Used != 0 {
			t.Fatalf("degraded calls must not touch the ledger")
		}
	}
}

func TestExclusionsClearOnWindowReset(t *testing.T) {
	h := newHarness(t, "")
	client := &youtube.Client{SetID: "set_1"}

	quotaErr := &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}
	_ = h.broker.Report(context.Background(), client, "search", 1, quotaErr)

	if got := h.broker.Exclusions(); len(got) != 1 {
		t.Fatalf("exclusions = %v, want [set_1]", got)
	}

	// 24시간 경과 후 Acquire는 리셋과 함께 제외를 복귀시키고 두 세트 모두 시도한다
	h.clock.Advance(25 * time.Hour)
	_, err := h.broker.Acquire(context.Background(), "list")

	var exhaustedErr *errors.AllCredentialsExhaustedError
	if !stderrors.As(err, &exhaustedErr) {
		t.Fatalf("expected AllCredentialsExhaustedError, got %v", err)
	}
	if exhaustedErr.Attempted != 2 {
		t.Fatalf("attempted = %d after window reset, want 2", exhaustedErr.Attempted)
	}
}

func TestRetryAfterClearingAllExclusions(t *testing.T) {
	h := newHarness(t, "")
	quotaErr := &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	}

	// 두 세트 모두 제외
	_ = h.broker.Report(context.Background(), &youtube.Client{SetID: "set_1"}, "search", 1, quotaErr)
	_ = h.broker.Report(context.Background(), &youtube.Client{SetID: "set_2"}, "search", 1, quotaErr)
	if got := h.broker.Exclusions(); len(got) != 2 {
		t.Fatalf("exclusions = %v, want both sets", got)
	}

	// 후보가 비면 제외를 비우고 한 번 더 시도한다
	_, err := h.broker.Acquire(context.Background(), "list")

	var exhaustedErr *errors.AllCredentialsExhaustedError
	if !stderrors.As(err, &exhaustedErr) {
		t.Fatalf("expected AllCredentialsExhaustedError, got %v", err)
	}
	if exhaustedErr.Attempted != 2 {
		t.Fatalf("attempted = %d after clearing exclusions, want 2", exhaustedErr.Attempted)
	}
}

func TestRotationEventEmittedPerAcquire(t *testing.T) {
	h := newHarness(t, "")

	_, _ = h.broker.Acquire(context.Background(), "list")

	found := false
	for _, event := range h.events {
		if event.Kind() == domain.EventKindRotation {
			found = true
		}
	}
	if !found {
		t.Fatalf("acquire must emit a rotation decision event")
	}
}

func TestReportUnknownOperation(t *testing.T) {
	h := newHarness(t, "")
	client := &youtube.Client{SetID: "set_1"}

	if err := h.broker.Report(context.Background(), client, "liveBroadcast", 1, nil); err == nil {
		t.Fatalf("expected error for unknown operation")
	}
}
