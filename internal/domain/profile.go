package domain

import "time"

// ExhaustionProfile: 세트별 소진 패턴 프로파일 (영속, 단조 증가, 이력은 상한 보유)
// 학습 모델이 아니라 결정적(deterministic) 휴리스틱의 입력 데이터다.
type ExhaustionProfile struct {
	SetID                 string           `json:"setId"`
	OperationFrequency    map[string]int64 `json:"operationFrequency"`
	HourlyCalls           [24]int64        `json:"hourlyCalls"`
	PeakHours             []int            `json:"peakHours"`                       // 호출량 상위 5개 시간대
	TypicalExhaustionHour *int             `json:"typicalExhaustionHour,omitempty"` // 최빈 소진 시각
	Confidence            float64          `json:"confidence"`                      // [0,1], 관측이 늘수록 비감소
	ExhaustionHistory     []time.Time      `json:"exhaustionHistory"`               // 최대 30개
}

// NewExhaustionProfile: 빈 프로파일을 생성한다.
func NewExhaustionProfile(setID string) *ExhaustionProfile {
	return &ExhaustionProfile{
		SetID:              setID,
		OperationFrequency: make(map[string]int64),
	}
}

// InPeakHours: 주어진 시각(hour-of-day)이 피크 시간대에 포함되는지 확인한다.
func (p *ExhaustionProfile) InPeakHours(hour int) bool {
	for _, peak := range p.PeakHours {
		if peak == hour {
			return true
		}
	}
	return false
}
