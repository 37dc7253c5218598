package rotation

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
	"github.com/kapu/youtube-quota-broker-go/internal/service/quota"
)

// Advisor: 활성 세트 사용률과 최선 대안을 놓고 로테이션 여부를 권고하는 상태 기계
// 권고만 하며, 실제 전환은 Broker가 수행한다.
type Advisor struct {
	ledger *quota.Ledger
	logger *slog.Logger
}

// NewAdvisor 는 동작을 수행한다.
func NewAdvisor(ledger *quota.Ledger, logger *slog.Logger) *Advisor {
	return &Advisor{
		ledger: ledger,
		logger: logger,
	}
}

// Advise: 활성 세트를 유지할지, 전환할지, 위기를 선언할지 판단한다.
func (a *Advisor) Advise(activeSetID string) *domain.RotationDecision {
	active, ok := a.ledger.View(activeSetID)
	if !ok {
		return &domain.RotationDecision{
			ShouldRotate: false,
			Urgency:      domain.UrgencyLow,
			Reason:       fmt.Sprintf("unknown credential set: %s", activeSetID),
		}
	}

	p := active.UsagePercent()

	// HEALTHY: 로테이션 불필요
	if p < constants.RotationThresholds.Strategic {
		return &domain.RotationDecision{
			ShouldRotate:   false,
			Urgency:        domain.UrgencyLow,
			Reason:         fmt.Sprintf("active set healthy at %.1f%% usage", p),
			Recommendation: "continue on current set",
		}
	}

	alt, hasAlt := a.bestAlternative(activeSetID)

	// 대안이 없으면 p에 따라 위기 또는 전환 불가
	if !hasAlt {
		if p >= constants.RotationThresholds.Critical {
			return a.crisis(p)
		}
		return &domain.RotationDecision{
			ShouldRotate:   false,
			Urgency:        domain.UrgencyHigh,
			Reason:         fmt.Sprintf("cannot rotate: no alternative set configured (active at %.1f%%)", p),
			Recommendation: "configure additional credential sets",
		}
	}

	altAvailPercent := 100.0 - alt.UsagePercent()

	switch {
	// STRATEGIC: 대안이 2배 넘게 여유로울 때만 전환
	case p < constants.RotationThresholds.Proactive:
		if alt.Available() > int64(constants.RotationThresholds.StrategicMultiplier*float64(active.Available())) {
			return &domain.RotationDecision{
				ShouldRotate:   true,
				TargetSetID:    alt.ID,
				Urgency:        domain.UrgencyMedium,
				Reason:         fmt.Sprintf("strategic rotation: %s has %d units vs %d on active", alt.ID, alt.Available(), active.Available()),
				Recommendation: fmt.Sprintf("switch to %s", alt.ID),
			}
		}
		return &domain.RotationDecision{
			ShouldRotate:   false,
			Urgency:        domain.UrgencyLow,
			Reason:         fmt.Sprintf("active at %.1f%% but no alternative offers 2x headroom", p),
			Recommendation: "continue on current set",
		}

	// PROACTIVE: 대안 여유 50% 초과면 전환, 20% 초과면 방어적 전환, 아니면 STUCK
	case p < constants.RotationThresholds.Critical:
		if altAvailPercent > constants.RotationThresholds.ProactiveAltPercent {
			return &domain.RotationDecision{
				ShouldRotate:   true,
				TargetSetID:    alt.ID,
				Urgency:        domain.UrgencyHigh,
				Reason:         fmt.Sprintf("proactive rotation: active at %.1f%%, %s has %.1f%% available", p, alt.ID, altAvailPercent),
				Recommendation: fmt.Sprintf("switch to %s before exhaustion", alt.ID),
			}
		}
		if altAvailPercent > constants.RotationThresholds.DefensiveAltPercent {
			return &domain.RotationDecision{
				ShouldRotate:   true,
				TargetSetID:    alt.ID,
				Urgency:        domain.UrgencyMedium,
				Reason:         fmt.Sprintf("defensive rotation: active at %.1f%%, best alternative %s only has %.1f%% available", p, alt.ID, altAvailPercent),
				Recommendation: fmt.Sprintf("switch to %s and reduce call volume", alt.ID),
				Defensive:      true,
			}
		}
		return &domain.RotationDecision{
			ShouldRotate:   false,
			Urgency:        domain.UrgencyHigh,
			Reason:         fmt.Sprintf("stuck: active at %.1f%% and no alternative above %.0f%% available", p, constants.RotationThresholds.DefensiveAltPercent),
			Recommendation: "reduce call volume until quota reset",
		}

	// CRITICAL: 대안 여유 20% 초과면 즉시 전환, 아니면 CRISIS
	default:
		if altAvailPercent > constants.RotationThresholds.CriticalAltPercent {
			return &domain.RotationDecision{
				ShouldRotate:   true,
				TargetSetID:    alt.ID,
				Urgency:        domain.UrgencyCritical,
				Reason:         fmt.Sprintf("critical rotation: active at %.1f%%, switching to %s (%.1f%% available)", p, alt.ID, altAvailPercent),
				Recommendation: fmt.Sprintf("switch to %s immediately", alt.ID),
			}
		}
		return a.crisis(p)
	}
}

// Order: Broker가 순회할 후보 세트 순서를 만든다.
// 전환 권고가 있으면 대상 세트가 맨 앞에 오고, 나머지는 여유량 내림차순이다.
func (a *Advisor) Order(activeSetID string) ([]string, *domain.RotationDecision) {
	decision := a.Advise(activeSetID)

	sets := a.ledger.Views()
	sort.SliceStable(sets, func(i, j int) bool {
		if sets[i].Available() != sets[j].Available() {
			return sets[i].Available() > sets[j].Available()
		}
		return sets[i].ID < sets[j].ID
	})

	head := activeSetID
	if decision.ShouldRotate && decision.TargetSetID != "" {
		head = decision.TargetSetID
	}

	order := make([]string, 0, len(sets))
	order = append(order, head)
	for _, set := range sets {
		if set.ID != head {
			order = append(order, set.ID)
		}
	}

	return order, decision
}

// bestAlternative: 활성 세트를 제외하고 여유량이 가장 큰 세트를 찾는다.
func (a *Advisor) bestAlternative(activeSetID string) (domain.CredentialSet, bool) {
	var best domain.CredentialSet
	found := false

	for _, set := range a.ledger.Views() {
		if set.ID == activeSetID {
			continue
		}
		if !found || set.Available() > best.Available() {
			best = set
			found = true
		}
	}

	return best, found
}

// crisis 는 동작을 수행한다.
func (a *Advisor) crisis(p float64) *domain.RotationDecision {
	a.logger.Error("Quota crisis declared", slog.Float64("activeUsagePercent", p))

	return &domain.RotationDecision{
		ShouldRotate:   false,
		Urgency:        domain.UrgencyCritical,
		Reason:         fmt.Sprintf("CRISIS: active at %.1f%% and no viable alternative", p),
		Recommendation: "suspend non-critical operations until quota reset",
	}
}
