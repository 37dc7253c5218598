package domain

import (
	"time"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/util"
)

// SetStatus: 자격 증명 세트의 쿼터 소비 상태 레벨
type SetStatus string

// 세트 상태 레벨 정의 (사용률 기준)
const (
	StatusHealthy  SetStatus = "HEALTHY"  // < 50%
	StatusModerate SetStatus = "MODERATE" // < 80%
	StatusWarning  SetStatus = "WARNING"  // < 95%
	StatusCritical SetStatus = "CRITICAL" // >= 95%
)

// StatusForUsage: 사용률(%)에 해당하는 상태 레벨을 반환한다.
func StatusForUsage(percent float64) SetStatus {
	switch {
	case percent < constants.StatusThresholds.Moderate:
		return StatusHealthy
	case percent < constants.StatusThresholds.Warning:
		return StatusModerate
	case percent < constants.StatusThresholds.Critical:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// CredentialSetConfig: 설정에서 로드되는 자격 증명 세트 정의 (불변)
type CredentialSetConfig struct {
	ID              string
	CredentialsFile string // OAuth 클라이언트 시크릿 파일 경로
	TokenRef        string // 토큰 저장소 참조 (파일 경로 또는 저장소 키)
	DailyLimit      int64
}

// CredentialSet: 독립적으로 쿼터가 제한되는 하나의 인증 가능한 신원
// Used/LastResetAt의 변경은 QuotaLedger만 수행한다.
type CredentialSet struct {
	ID              string
	CredentialsFile string
	TokenRef        string
	DailyLimit      int64
	Used            int64
	LastResetAt     time.Time
	LastCallAt      time.Time
}

// Available: 남은 쿼터 단위를 반환한다.
func (s CredentialSet) Available() int64 {
	avail := s.DailyLimit - s.Used
	if avail < 0 {
		return 0
	}
	return avail
}

// UsagePercent: 현재 사용률(%)을 반환한다.
func (s CredentialSet) UsagePercent() float64 {
	return util.Percent(s.Used, s.DailyLimit)
}

// Status: 사용률에 따른 상태 레벨을 반환한다.
func (s CredentialSet) Status() SetStatus {
	return StatusForUsage(s.UsagePercent())
}

// EmergencyReserve: 비상 예비 쿼터 = ceil(dailyLimit × reservePercent)
func (s CredentialSet) EmergencyReserve(reservePercent float64) int64 {
	return util.CeilFraction(s.DailyLimit, reservePercent)
}

// UsageRecord: (세트, 작업) 단위의 소비 집계. 소유 세트 리셋 시 함께 초기화된다.
type UsageRecord struct {
	Operation     string
	Count         int64
	UnitsConsumed int64
}

// QuotaStatus: 세트의 쿼터 상태 스냅샷 (조회 전용)
type QuotaStatus struct {
	SetID        string                 `json:"setId"`
	Used         int64                  `json:"used"`
	Limit        int64                  `json:"limit"`
	Available    int64                  `json:"available"`
	UsagePercent float64                `json:"usagePercent"`
	Health       SetStatus              `json:"health"`
	LastResetAt  time.Time              `json:"lastResetAt"`
	LastCallAt   time.Time              `json:"lastCallAt,omitempty"`
	PerOperation map[string]UsageRecord `json:"perOperation,omitempty"`
}
