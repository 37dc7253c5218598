package constants

import "time"

// QuotaDefaults 는 패키지 변수다.
var QuotaDefaults = struct {
	DailyLimit     int64
	ReservePercent float64
	ResetMode      string
	ResetHour      int
	ResetTimezone  string
}{
	DailyLimit:     10000, // YouTube Data API 기본 일일 쿼터
	ReservePercent: 0.05,  // 비상 예비 쿼터 5%
	ResetMode:      "fixed",
	ResetHour:      0, // 자정 (Pacific Time) - 공급자 실제 리셋 시각
	ResetTimezone:  "America/Los_Angeles",
}

// StatusThresholds 는 패키지 변수다.
var StatusThresholds = struct {
	Moderate float64
	Warning  float64
	Critical float64
}{
	Moderate: 50.0,
	Warning:  80.0,
	Critical: 95.0,
}

// AlertConfig 는 패키지 변수다.
var AlertConfig = struct {
	WarningPercent  float64
	CriticalPercent float64
	WarningInterval time.Duration // WARNING 알림 최소 간격 (세트당)
}{
	WarningPercent:  80.0,
	CriticalPercent: 95.0,
	WarningInterval: time.Hour,
}

// AdmissionDefaults 는 패키지 변수다.
var AdmissionDefaults = struct {
	HighCostThreshold int64
	LowRemainingRatio float64
}{
	HighCostThreshold: 50,  // 단위 비용 50 이상이면 고비용 작업
	LowRemainingRatio: 0.2, // 호출 후 잔여가 20% 미만이면 경고
}

// RotationThresholds 는 패키지 변수다.
var RotationThresholds = struct {
	Strategic           float64
	Proactive           float64
	Critical            float64
	StrategicMultiplier float64
	ProactiveAltPercent float64
	DefensiveAltPercent float64
	CriticalAltPercent  float64
}{
	Strategic:           70.0,
	Proactive:           85.0,
	Critical:            95.0,
	StrategicMultiplier: 2.0,  // 전략적 로테이션: 대안 가용량이 2배 초과일 때만
	ProactiveAltPercent: 50.0, // 선제 로테이션: 대안 가용량 50% 초과
	DefensiveAltPercent: 20.0, // 방어적 로테이션: 대안 가용량 20% 초과
	CriticalAltPercent:  20.0,
}

// ProfilerDefaults 는 패키지 변수다.
var ProfilerDefaults = struct {
	HistoryCap          int
	PeakHourCount       int
	ConfidenceDivisor   float64
	WarnHorizon         time.Duration
	ExhaustionSafeHours int
}{
	HistoryCap:          30, // 소진 이력 최대 보관 개수
	PeakHourCount:       5,
	ConfidenceDivisor:   10.0,
	WarnHorizon:         2 * time.Hour,
	ExhaustionSafeHours: 4, // 통상 소진 시각에서 4시간 이상 떨어지면 가산점
}

// RefreshConfig 는 패키지 변수다.
var RefreshConfig = struct {
	ExpiryLookahead time.Duration
	Timeout         time.Duration
}{
	ExpiryLookahead: 10 * time.Minute, // 만료 10분 전 선제 리프레시
	Timeout:         30 * time.Second,
}

// RequestTimeout 는 패키지 변수다.
var RequestTimeout = struct {
	Validation   time.Duration
	DatabasePing time.Duration
	Persistence  time.Duration
}{
	Validation:   10 * time.Second,
	DatabasePing: 5 * time.Second,
	Persistence:  5 * time.Second,
}

// RetryConfig 는 패키지 변수다.
var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

// ValidationRateLimit 는 패키지 변수다.
var ValidationRateLimit = struct {
	Interval time.Duration
	Burst    int
}{
	Interval: 100 * time.Millisecond, // 초당 10 요청
	Burst:    1,
}

// DatabaseConfig 는 패키지 변수다.
var DatabaseConfig = struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}{
	MaxOpenConns:    10,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
}

// DatabaseDefaults 는 패키지 변수다.
var DatabaseDefaults = struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}{
	Host:     "localhost",
	Port:     5432,
	User:     "broker",
	Password: "broker",
	Database: "quota_broker",
}

// ValkeyConfig 는 패키지 변수다.
var ValkeyConfig = struct {
	ReadyTimeout      time.Duration
	DialTimeout       time.Duration
	ConnWriteTimeout  time.Duration
	BlockingPoolSize  int
	PipelineMultiplex int
}{
	ReadyTimeout:      5 * time.Second,
	DialTimeout:       3 * time.Second,
	ConnWriteTimeout:  5 * time.Second,
	BlockingPoolSize:  100,
	PipelineMultiplex: 4,
}

// CacheTTL 는 패키지 변수다.
var CacheTTL = struct {
	StatusSnapshot time.Duration
	AlertDedup     time.Duration
	RecentEvents   time.Duration
}{
	StatusSnapshot: 5 * time.Minute,
	AlertDedup:     time.Hour,
	RecentEvents:   24 * time.Hour,
}

// EventConfig 는 패키지 변수다.
var EventConfig = struct {
	RecentEventCap int64
}{
	RecentEventCap: 100, // 관리 API에 노출하는 최근 이벤트 개수
}

// ServerDefaults 는 패키지 변수다.
var ServerDefaults = struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}{
	Port:            30080,
	ReadTimeout:     10 * time.Second,
	WriteTimeout:    15 * time.Second,
	ShutdownTimeout: 10 * time.Second,
}

// AppTimeout 는 패키지 변수다.
var AppTimeout = struct {
	Build    time.Duration
	Shutdown time.Duration
}{
	Build:    30 * time.Second,
	Shutdown: 10 * time.Second,
}

// CredentialSlots: 환경 변수로 구성 가능한 자격 증명 세트 슬롯 수
const CredentialSlots = 5
