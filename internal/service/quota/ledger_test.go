package quota

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestLedger(t *testing.T, limit int64, opts Options) (*Ledger, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now

	policy, err := NewResetPolicy(ResetModeRolling, 0, "")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	sets := []domain.CredentialSetConfig{
		{ID: "set_1", DailyLimit: limit},
		{ID: "set_2", DailyLimit: limit},
	}

	return NewLedger(sets, policy, 0.05, testLogger(), opts), clock
}

func TestRecordConservation(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000, Options{})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	ops := []struct {
		name  string
		count int
	}{
		{"list", 20},
		{"search", 3},
		{"chatList", 7},
		{"list", 5},
		{"insert", 2},
	}

	for _, step := range ops {
		op, _ := table.Lookup(step.name)
		if _, err := ledger.Record(ctx, "set_1", op, step.count); err != nil {
			t.Fatalf("Record(%s) failed: %v", step.name, err)
		}
	}

	status, err := ledger.Status("set_1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	var sum int64
	for _, rec := range status.PerOperation {
		sum += rec.UnitsConsumed
	}
	if sum != status.Used {
		t.Fatalf("per-operation sum %d != used %d", sum, status.Used)
	}
	if want := int64(20 + 300 + 35 + 5 + 100); status.Used != want {
		t.Fatalf("used = %d, want %d", status.Used, want)
	}
}

func TestRecordRejectsOverLimit(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000, Options{})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	list, _ := table.Lookup("list")
	if _, err := ledger.Record(ctx, "set_1", list, 9990); err != nil {
		t.Fatalf("setup record failed: %v", err)
	}

	// 비용 100짜리 search는 잔여 10을 초과한다
	search, _ := table.Lookup("search")
	_, err := ledger.Record(ctx, "set_1", search, 1)

	var insufficientErr *errors.InsufficientQuotaError
	if !stderrors.As(err, &insufficientErr) {
		t.Fatalf("expected InsufficientQuotaError, got %v", err)
	}
	if insufficientErr.Available != 10 {
		t.Fatalf("Available = %d, want 10", insufficientErr.Available)
	}

	// 거부는 상태를 바꾸지 않는다
	status, _ := ledger.Status("set_1")
	if status.Used != 9990 {
		t.Fatalf("used = %d after rejection, want 9990", status.Used)
	}

	// 더 싼 작업은 여전히 기록 가능
	if _, err := ledger.Record(ctx, "set_1", list, 10); err != nil {
		t.Fatalf("record within remaining quota failed: %v", err)
	}
}

func TestRecordUnknownSet(t *testing.T) {
	ledger, _ := newTestLedger(t, 10000, Options{})
	table := domain.DefaultCostTable()

	list, _ := table.Lookup("list")
	if _, err := ledger.Record(context.Background(), "set_99", list, 1); err == nil {
		t.Fatalf("expected error for unknown set")
	}
}

func TestExhaustionCallback(t *testing.T) {
	ledger, _ := newTestLedger(t, 100, Options{})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	var exhaustedSet string
	ledger.SetOnExhausted(func(setID string, _ time.Time) {
		exhaustedSet = setID
	})

	search, _ := table.Lookup("search")
	if _, err := ledger.Record(ctx, "set_1", search, 1); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if exhaustedSet != "set_1" {
		t.Fatalf("exhaustion callback not fired, got %q", exhaustedSet)
	}
}

func TestRollingWindowReset(t *testing.T) {
	ledger, clock := newTestLedger(t, 10000, Options{})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	search, _ := table.Lookup("search")
	if _, err := ledger.Record(ctx, "set_1", search, 5); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	clock.Advance(24 * time.Hour)

	resetIDs := ledger.CheckDailyReset(ctx)
	if len(resetIDs) != 2 {
		t.Fatalf("expected both sets reset, got %v", resetIDs)
	}

	status, _ := ledger.Status("set_1")
	if status.Used != 0 {
		t.Fatalf("used = %d after reset, want 0", status.Used)
	}
	if len(status.PerOperation) != 0 {
		t.Fatalf("per-operation usage should be cleared on reset")
	}

	// 리셋은 멱등하다
	if again := ledger.CheckDailyReset(ctx); len(again) != 0 {
		t.Fatalf("second CheckDailyReset reset sets again: %v", again)
	}
}

func TestResetAppliedOnRecordPath(t *testing.T) {
	ledger, clock := newTestLedger(t, 100, Options{})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	search, _ := table.Lookup("search")
	if _, err := ledger.Record(ctx, "set_1", search, 1); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// 소진 후에도 새 윈도우에서는 다시 기록된다
	clock.Advance(25 * time.Hour)
	status, err := ledger.Record(ctx, "set_1", search, 1)
	if err != nil {
		t.Fatalf("Record after window rollover failed: %v", err)
	}
	if status.Used != 100 {
		t.Fatalf("used = %d in new window, want 100", status.Used)
	}
}

func TestAlertEvents(t *testing.T) {
	var events []domain.AlertEvent
	ledger, _ := newTestLedger(t, 100, Options{
		Emit: func(e domain.Event) {
			if alert, ok := e.(domain.AlertEvent); ok {
				events = append(events, alert)
			}
		},
	})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	list, _ := table.Lookup("list")
	if _, err := ledger.Record(ctx, "set_1", list, 85); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(events) != 1 || events[0].Severity != "WARNING" {
		t.Fatalf("expected one WARNING event, got %+v", events)
	}

	// 캐시 없는 구성에서 WARNING은 진입 시 한 번만
	if _, err := ledger.Record(ctx, "set_1", list, 5); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("WARNING should not repeat, got %d events", len(events))
	}

	if _, err := ledger.Record(ctx, "set_1", list, 8); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(events) != 2 || events[1].Severity != "CRITICAL" {
		t.Fatalf("expected CRITICAL event, got %+v", events)
	}
}

func TestStatusHealthLevels(t *testing.T) {
	ledger, _ := newTestLedger(t, 100, Options{})
	table := domain.DefaultCostTable()
	ctx := context.Background()

	list, _ := table.Lookup("list")

	steps := []struct {
		count int
		want  domain.SetStatus
	}{
		{40, domain.StatusHealthy},  // 40%
		{20, domain.StatusModerate}, // 60%
		{25, domain.StatusWarning},  // 85%
		{11, domain.StatusCritical}, // 96%
	}

	for _, step := range steps {
		if _, err := ledger.Record(ctx, "set_1", list, step.count); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		status, _ := ledger.Status("set_1")
		if status.Health != step.want {
			t.Fatalf("health = %s at %d%%, want %s", status.Health, status.Used, step.want)
		}
	}
}
