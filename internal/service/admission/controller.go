package admission

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

// Controller: 요청된 작업의 허용/거부를 판정하는 관문
// 모든 판정은 동기식 인메모리 계산이며, 부정 판정은 예외가 아니라
// 대안이 담긴 AdmissionDecision으로 반환된다.
type Controller struct {
	ledger *quota.Ledger
	table  domain.CostTable
	logger *slog.Logger
	now    func() time.Time
}

// NewController 는 동작을 수행한다.
func NewController(ledger *quota.Ledger, table domain.CostTable, logger *slog.Logger) *Controller {
	return &Controller{
		ledger: ledger,
		table:  table,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock: 테스트용 시계를 주입한다.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Table: 판정에 사용하는 비용 테이블을 반환한다.
func (c *Controller) Table() domain.CostTable {
	return c.table
}

// CanAdmit: 세트에 대해 작업 count회 수행을 허용할지 판정한다.
// force는 비상 예비 보호만 우회하며, 절대 한도(available < totalCost)는 우회하지 못한다.
func (c *Controller) CanAdmit(operation, setID string, count int, force bool) *domain.AdmissionDecision {
	if count <= 0 {
		count = 1
	}

	op, ok := c.table.Lookup(operation)
	if !ok {
		return &domain.AdmissionDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown operation: %s", operation),
		}
	}

	view, ok := c.ledger.View(setID)
	if !ok {
		return &domain.AdmissionDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown credential set: %s", setID),
			Cost:    op.Cost * int64(count),
		}
	}

	decision := c.decide(op, count, setID, view.Available(), view.DailyLimit, force)

	if !decision.Allowed {
		c.logger.Debug("Admission denied",
			slog.String("set", setID),
			slog.String("operation", operation),
			slog.Int64("cost", decision.Cost),
			slog.String("reason", decision.Reason),
		)
	}

	return decision
}

// decide: 판정 규칙을 순서대로 적용한다. available은 호출자가 제공한 잔여량으로,
// 배치 계획에서는 앞선 admit을 반영한 running 값이 들어온다.
func (c *Controller) decide(op domain.Operation, count int, setID string, available, limit int64, force bool) *domain.AdmissionDecision {
	totalCost := op.Cost * int64(count)
	reserve := domain.CredentialSet{DailyLimit: limit}.EmergencyReserve(c.ledger.ReservePercent())

	// 규칙 1: 절대 한도. force로도 우회할 수 없다.
	if available < totalCost {
		return &domain.AdmissionDecision{
			Allowed: false,
			Reason: errors.InsufficientQuotaError{
				SetID:     setID,
				Operation: op.Name,
				Cost:      totalCost,
				Available: available,
			}.Error(),
			Cost:           totalCost,
			RemainingAfter: available,
			Alternatives:   c.alternatives(setID, totalCost, 0),
		}
	}

	// 규칙 2: 비상 예비 보호. CRITICAL 우선순위와 force만 통과한다.
	if safeAvailable := available - reserve; safeAvailable < totalCost {
		if op.Priority == domain.PriorityCritical || force {
			return &domain.AdmissionDecision{
				Allowed:        true,
				Reason:         "admitted into emergency reserve",
				Cost:           totalCost,
				RemainingAfter: available - totalCost,
				Warnings: []string{
					fmt.Sprintf("consuming emergency reserve: %d units protected", reserve),
				},
			}
		}

		reducedCount := 0
		if op.Cost > 0 && safeAvailable > 0 {
			reducedCount = int(safeAvailable / op.Cost)
		}
		return &domain.AdmissionDecision{
			Allowed: false,
			Reason: errors.ReserveProtectedError{
				SetID:         setID,
				Operation:     op.Name,
				Cost:          totalCost,
				SafeAvailable: safeAvailable,
				Reserve:       reserve,
			}.Error(),
			Cost:           totalCost,
			RemainingAfter: available,
			Alternatives:   c.alternatives(setID, totalCost, reducedCount),
		}
	}

	decision := &domain.AdmissionDecision{
		Allowed:        true,
		Reason:         "admitted",
		Cost:           totalCost,
		RemainingAfter: available - totalCost,
	}

	// 규칙 3: 고비용 작업이 잔여를 임계 이하로 떨어뜨리면 경고를 첨부한다.
	if op.Cost >= constants.AdmissionDefaults.HighCostThreshold &&
		float64(decision.RemainingAfter) < float64(limit)*constants.AdmissionDefaults.LowRemainingRatio {
		decision.Warnings = append(decision.Warnings,
			fmt.Sprintf("high-cost operation leaves only %d units (%.0f%% of limit)",
				decision.RemainingAfter, float64(decision.RemainingAfter)/float64(limit)*100),
		)
	}

	return decision
}

// alternatives: 거부 판정에 첨부할 대안을 찾는다.
// 여유가 가장 큰 다른 세트, 축소 수량, 다음 리셋까지의 대기 시간 순으로 채운다.
func (c *Controller) alternatives(setID string, totalCost int64, reducedCount int) *domain.AdmissionAlternatives {
	alt := &domain.AdmissionAlternatives{ReducedCount: reducedCount}

	var bestAvailable int64
	for _, other := range c.ledger.Views() {
		if other.ID == setID {
			continue
		}
		if avail := other.Available(); avail >= totalCost && avail > bestAvailable {
			bestAvailable = avail
			alt.AlternativeSetID = other.ID
		}
	}

	if next, ok := c.ledger.NextReset(setID); ok {
		if wait := next.Sub(c.now()); wait > 0 {
			alt.WaitForReset = wait
		}
	}

	return alt
}
