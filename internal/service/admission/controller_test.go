package admission

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestController: set_1(limit 10000), set_2(limit 10000)로 컨트롤러를 구성한다.
func newTestController(t *testing.T) (*Controller, *quota.Ledger) {
	t.Helper()

	policy, err := quota.NewResetPolicy(quota.ResetModeRolling, 0, "")
	if err != nil {
		t.Fatalf("NewResetPolicy failed: %v", err)
	}

	clock := time.Date(2025, 6, 14, 9, 0, 0, 0, time.UTC)
	ledger := quota.NewLedger([]domain.CredentialSetConfig{
		{ID: "set_1", DailyLimit: 10000},
		{ID: "set_2", DailyLimit: 10000},
	}, policy, 0.05, testLogger(), quota.Options{
		Clock: func() time.Time { return clock },
	})

	ctrl := NewController(ledger, domain.DefaultCostTable(), testLogger())
	ctrl.SetClock(func() time.Time { return clock })
	return ctrl, ledger
}

// consume: 세트의 used를 원하는 값까지 끌어올린다.
func consume(t *testing.T, ledger *quota.Ledger, setID string, units int64) {
	t.Helper()

	table := domain.DefaultCostTable()
	list, _ := table.Lookup("list")
	if units > 0 {
		if _, err := ledger.Record(context.Background(), setID, list, int(units)); err != nil {
			t.Fatalf("failed to consume %d units on %s: %v", units, setID, err)
		}
	}
}

func TestAdmitHealthySet(t *testing.T) {
	ctrl, _ := newTestController(t)

	decision := ctrl.CanAdmit("search", "set_1", 1, false)
	if !decision.Allowed {
		t.Fatalf("expected admit on fresh set, got %s", decision.Reason)
	}
	if decision.Cost != 100 {
		t.Fatalf("cost = %d, want 100", decision.Cost)
	}
	if decision.RemainingAfter != 9900 {
		t.Fatalf("remainingAfter = %d, want 9900", decision.RemainingAfter)
	}
	if len(decision.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", decision.Warnings)
	}
}

func TestReserveProtection(t *testing.T) {
	ctrl, ledger := newTestController(t)

	// available=150, reserve=500 → safeAvailable=-350
	consume(t, ledger, "set_1", 9850)

	decision := ctrl.CanAdmit("search", "set_1", 1, false)
	if decision.Allowed {
		t.Fatalf("non-critical operation must not dip into reserve")
	}
	if !strings.Contains(decision.Reason, "reserve protected") {
		t.Fatalf("denial reason = %q, want the reserve-protected error text", decision.Reason)
	}
	if decision.Alternatives == nil {
		t.Fatalf("denial must carry alternatives")
	}
	if decision.Alternatives.AlternativeSetID != "set_2" {
		t.Fatalf("alternative set = %q, want set_2", decision.Alternatives.AlternativeSetID)
	}
	if decision.Alternatives.WaitForReset <= 0 {
		t.Fatalf("expected wait-for-reset suggestion")
	}
}

func TestCriticalPriorityEntersReserve(t *testing.T) {
	ctrl, ledger := newTestController(t)

	consume(t, ledger, "set_1", 9850)

	// insert는 CRITICAL 우선순위라 예비 쿼터에 진입할 수 있다
	decision := ctrl.CanAdmit("insert", "set_1", 1, false)
	if !decision.Allowed {
		t.Fatalf("critical-priority operation should enter reserve, got %s", decision.Reason)
	}
	if len(decision.Warnings) == 0 {
		t.Fatalf("reserve admission must carry a warning")
	}
}

func TestForceBypassesReserveNotHardFloor(t *testing.T) {
	ctrl, ledger := newTestController(t)

	consume(t, ledger, "set_1", 9850)

	// force는 예비 보호를 우회한다
	if decision := ctrl.CanAdmit("search", "set_1", 1, true); !decision.Allowed {
		t.Fatalf("force should bypass reserve protection, got %s", decision.Reason)
	}

	// 절대 한도는 force로도 우회 불가
	consume(t, ledger, "set_2", 9950) // available=50 < 100
	decision := ctrl.CanAdmit("search", "set_2", 1, true)
	if decision.Allowed {
		t.Fatalf("force must never bypass the hard floor")
	}
	if !strings.Contains(decision.Reason, "insufficient quota") {
		t.Fatalf("denial reason = %q, want the insufficient-quota error text", decision.Reason)
	}
}

func TestReducedCountSuggestion(t *testing.T) {
	ctrl, ledger := newTestController(t)

	// available=1000, reserve=500 → safeAvailable=500 → search 7회는 거부, 5회 제안
	consume(t, ledger, "set_1", 9000)

	decision := ctrl.CanAdmit("search", "set_1", 7, false)
	if decision.Allowed {
		t.Fatalf("expected denial for batch dipping into reserve")
	}
	if decision.Alternatives == nil || decision.Alternatives.ReducedCount != 5 {
		t.Fatalf("reduced count = %+v, want 5", decision.Alternatives)
	}
}

func TestHighCostWarning(t *testing.T) {
	ctrl, ledger := newTestController(t)

	// 판정 후 잔여 1900 < 20% of 10000, 단위 비용 100 ≥ 50
	consume(t, ledger, "set_1", 8000)

	decision := ctrl.CanAdmit("search", "set_1", 1, false)
	if !decision.Allowed {
		t.Fatalf("expected admit with warning, got %s", decision.Reason)
	}
	if len(decision.Warnings) == 0 {
		t.Fatalf("expected high-cost warning")
	}
}

func TestUnknownOperationDenied(t *testing.T) {
	ctrl, _ := newTestController(t)

	if decision := ctrl.CanAdmit("liveBroadcast", "set_1", 1, false); decision.Allowed {
		t.Fatalf("unknown operation must be denied")
	}
}

func TestAdmissionIsReadOnly(t *testing.T) {
	ctrl, ledger := newTestController(t)

	for i := 0; i < 5; i++ {
		ctrl.CanAdmit("search", "set_1", 3, false)
	}

	status, err := ledger.Status("set_1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Used != 0 {
		t.Fatalf("admission must not consume quota, used = %d", status.Used)
	}
}

func TestAdmissionDeterminism(t *testing.T) {
	ctrl, ledger := newTestController(t)
	consume(t, ledger, "set_1", 9850)

	first := ctrl.CanAdmit("search", "set_1", 1, false)
	for i := 0; i < 10; i++ {
		again := ctrl.CanAdmit("search", "set_1", 1, false)
		if again.Allowed != first.Allowed || again.Reason != first.Reason {
			t.Fatalf("identical state must yield identical decisions")
		}
	}
}

func TestPlanBatchPriorityOrdering(t *testing.T) {
	ctrl, ledger := newTestController(t)

	// available=700, reserve=500 → safeAvailable=200
	consume(t, ledger, "set_1", 9300)

	requests := []domain.BatchRequest{
		{Operation: "search", Count: 1},   // LOW, cost 100
		{Operation: "insert", Count: 2},   // CRITICAL, cost 100
		{Operation: "chatList", Count: 4}, // HIGH, cost 20
		{Operation: "list", Count: 90},    // MEDIUM, cost 90
	}

	plan := ctrl.PlanBatch(requests, "set_1")

	// CRITICAL insert(100)와 HIGH chatList(20)가 running 잔여에서 먼저 admit되고,
	// MEDIUM list(90)와 LOW search(100)는 남은 safeAvailable 80에 막혀 연기된다
	if len(plan.Admitted) != 2 {
		t.Fatalf("admitted = %d, want 2 (%+v)", len(plan.Admitted), plan)
	}
	if plan.Admitted[0].Request.Operation != "insert" {
		t.Fatalf("first admitted = %s, want insert", plan.Admitted[0].Request.Operation)
	}
	if plan.Admitted[1].Request.Operation != "chatList" {
		t.Fatalf("second admitted = %s, want chatList", plan.Admitted[1].Request.Operation)
	}
	if plan.TotalCost != 120 {
		t.Fatalf("totalCost = %d, want 120", plan.TotalCost)
	}
	if len(plan.Deferred) != 2 || len(plan.Blocked) != 0 {
		t.Fatalf("expected 2 deferred operations, got %+v", plan)
	}
}

func TestPlanBatchUnknownOperationBlocked(t *testing.T) {
	ctrl, _ := newTestController(t)

	plan := ctrl.PlanBatch([]domain.BatchRequest{
		{Operation: "list", Count: 1},
		{Operation: "liveBroadcast", Count: 1},
	}, "set_1")

	if len(plan.Admitted) != 1 || len(plan.Blocked) != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}
