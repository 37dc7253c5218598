package admission

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/kapu/youtube-quota-broker-go/internal/domain"
)

// PlanBatch: 이종 작업 묶음을 우선순위 순으로 판정하여 배치 계획을 만든다.
// 각 항목은 앞선 admit이 차감된 running 잔여량에 대해 판정되므로,
// 높은 우선순위 작업이 낮은 우선순위보다 먼저 쿼터를 확보한다.
func (c *Controller) PlanBatch(requests []domain.BatchRequest, setID string) *domain.BatchPlan {
	plan := &domain.BatchPlan{SetID: setID}

	view, ok := c.ledger.View(setID)
	if !ok {
		for _, req := range requests {
			plan.Blocked = append(plan.Blocked, domain.PlannedOperation{
				Request: req,
				Decision: domain.AdmissionDecision{
					Allowed: false,
					Reason:  fmt.Sprintf("unknown credential set: %s", setID),
				},
			})
		}
		return plan
	}

	type entry struct {
		req   domain.BatchRequest
		op    domain.Operation
		known bool
		index int
	}

	entries := make([]entry, 0, len(requests))
	for i, req := range requests {
		op, known := c.table.Lookup(req.Operation)
		entries = append(entries, entry{req: req, op: op, known: known, index: i})
	}

	// 우선순위 정렬, 동순위는 입력 순서 유지
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].op.Priority < entries[j].op.Priority
	})

	available := view.Available()
	for _, e := range entries {
		if !e.known {
			plan.Blocked = append(plan.Blocked, domain.PlannedOperation{
				Request: e.req,
				Decision: domain.AdmissionDecision{
					Allowed: false,
					Reason:  fmt.Sprintf("unknown operation: %s", e.req.Operation),
				},
			})
			continue
		}

		count := e.req.Count
		if count <= 0 {
			count = 1
		}

		decision := c.decide(e.op, count, setID, available, view.DailyLimit, false)
		planned := domain.PlannedOperation{Request: e.req, Decision: *decision}

		switch {
		case decision.Allowed:
			plan.Admitted = append(plan.Admitted, planned)
			plan.TotalCost += decision.Cost
			available -= decision.Cost
		case decision.Alternatives != nil &&
			(decision.Alternatives.ReducedCount > 0 ||
				decision.Alternatives.AlternativeSetID != "" ||
				decision.Alternatives.WaitForReset > 0):
			plan.Deferred = append(plan.Deferred, planned)
		default:
			plan.Blocked = append(plan.Blocked, planned)
		}
	}

	c.logger.Debug("Batch planned",
		slog.String("set", setID),
		slog.Int("admitted", len(plan.Admitted)),
		slog.Int("deferred", len(plan.Deferred)),
		slog.Int("blocked", len(plan.Blocked)),
		slog.Int64("totalCost", plan.TotalCost),
	)

	return plan
}
