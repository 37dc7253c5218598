package domain

import "time"

// 이벤트 종류
const (
	EventKindAlert    = "quota_alert"
	EventKindRotation = "rotation_decision"
)

// Event: emit 콜백으로 전달되는 관측 이벤트의 공통 인터페이스
type Event interface {
	Kind() string
}

// AlertEvent: 쿼터 임계값 도달 시 발행되는 구조화 이벤트 (관측 전용, 비차단)
type AlertEvent struct {
	SetID        string    `json:"setId"`
	UsagePercent float64   `json:"usagePercent"`
	Severity     string    `json:"severity"` // WARNING 또는 CRITICAL
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// Kind 는 동작을 수행한다.
func (AlertEvent) Kind() string { return EventKindAlert }

// RotationEvent: Acquire마다 발행되는 로테이션 판단 이벤트
type RotationEvent struct {
	ActiveSetID string          `json:"activeSetId"`
	TargetSetID string          `json:"targetSetId,omitempty"`
	Urgency     RotationUrgency `json:"urgency"`
	Reason      string          `json:"reason"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Kind 는 동작을 수행한다.
func (RotationEvent) Kind() string { return EventKindRotation }

// EmitFunc: 임베딩 애플리케이션이 연결하는 이벤트 콜백. nil이면 무시된다.
type EmitFunc func(Event)

// Emit: nil-safe 이벤트 발행 헬퍼
func (f EmitFunc) Emit(e Event) {
	if f != nil {
		f(e)
	}
}
