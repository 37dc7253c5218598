package domain

import "time"

// AdmissionAlternatives: 거부된 요청에 대해 제시하는 대안 (값 객체, 비영속)
type AdmissionAlternatives struct {
	ReducedCount     int           `json:"reducedCount,omitempty"`     // safeAvailable에 맞는 축소 수량
	AlternativeSetID string        `json:"alternativeSetId,omitempty"` // 여유가 있는 다른 세트
	WaitForReset     time.Duration `json:"waitForReset,omitempty"`     // 다음 리셋까지 대기 시간
}

// AdmissionDecision: 허용/거부 판정 결과 (값 객체, 비영속)
type AdmissionDecision struct {
	Allowed        bool                   `json:"allowed"`
	Reason         string                 `json:"reason"`
	Cost           int64                  `json:"cost"`
	RemainingAfter int64                  `json:"remainingAfter"`
	Warnings       []string               `json:"warnings,omitempty"`
	Alternatives   *AdmissionAlternatives `json:"alternatives,omitempty"`
}

// RotationUrgency: 로테이션 권고의 긴급도
type RotationUrgency string

// 긴급도 정의
const (
	UrgencyLow      RotationUrgency = "LOW"
	UrgencyMedium   RotationUrgency = "MEDIUM"
	UrgencyHigh     RotationUrgency = "HIGH"
	UrgencyCritical RotationUrgency = "CRITICAL"
)

// RotationDecision: 로테이션 권고 결과 (값 객체, 비영속)
// 권고일 뿐이며, 실제 전환은 Broker가 ShouldRotate를 보고 수행한다.
type RotationDecision struct {
	ShouldRotate   bool            `json:"shouldRotate"`
	TargetSetID    string          `json:"targetSetId,omitempty"`
	Urgency        RotationUrgency `json:"urgency"`
	Reason         string          `json:"reason"`
	Recommendation string          `json:"recommendation"`
	Defensive      bool            `json:"defensive,omitempty"` // 대안도 여유가 적은 방어적 전환
}

// BatchRequest: 배치 계획 요청의 한 항목
type BatchRequest struct {
	Operation string `json:"operation"`
	Count     int    `json:"count"`
}

// PlannedOperation: 배치 계획에서 판정이 끝난 한 항목
type PlannedOperation struct {
	Request  BatchRequest      `json:"request"`
	Decision AdmissionDecision `json:"decision"`
}

// BatchPlan: 우선순위 순으로 판정된 배치 계획
// Deferred는 대안이 있는 거부, Blocked는 대안이 없는 거부다.
type BatchPlan struct {
	SetID     string             `json:"setId"`
	Admitted  []PlannedOperation `json:"admitted"`
	Deferred  []PlannedOperation `json:"deferred"`
	Blocked   []PlannedOperation `json:"blocked"`
	TotalCost int64              `json:"totalCost"` // admit된 작업들의 총 비용
}
