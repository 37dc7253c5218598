package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kapu/youtube-quota-broker-go/internal/constants"
	"github.com/kapu/youtube-quota-broker-go/internal/domain"
)

// Config: 쿼터 브로커 전체 동작에 필요한 설정을 담는 구조체
type Config struct {
	Credentials CredentialsConfig
	Quota       QuotaConfig
	YouTube     YouTubeConfig
	Valkey      ValkeyConfig
	Postgres    PostgresConfig
	Server      ServerConfig
	Logging     LoggingConfig
	Broker      BrokerConfig
	Version     string
}

// CredentialsConfig: 번호 슬롯으로 구성되는 자격 증명 세트 목록
type CredentialsConfig struct {
	Sets []domain.CredentialSetConfig
}

// QuotaConfig: 쿼터 한도, 비상 예비율, 리셋 정책 및 비용 테이블 설정
type QuotaConfig struct {
	ReservePercent float64
	ResetMode      string // "fixed" 또는 "rolling"
	ResetHour      int    // fixed 모드에서의 리셋 시각 (0-23)
	ResetTimezone  string // fixed 모드에서의 타임존 (예: America/Los_Angeles)
	CostTable      domain.CostTable
}

// YouTubeConfig: 래핑 대상 API 관련 설정 (축소 모드용 API 키 포함)
type YouTubeConfig struct {
	APIKey string // 모든 OAuth 세트 실패 시 사용하는 읽기 전용 API 키
}

// ValkeyConfig: 상태 스냅샷/이벤트 캐싱 용도의 Valkey 연결 설정
type ValkeyConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// PostgresConfig: 영속 저장소(PostgreSQL) 연결 설정
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Enabled  bool
}

// ServerConfig: 관리/상태 API 서버 설정
type ServerConfig struct {
	Port int
}

// LoggingConfig: 애플리케이션 로그 설정 (레벨, 디렉토리, 로테이션 정책)
type LoggingConfig struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// BrokerConfig: 브로커 런타임 동작 설정
type BrokerConfig struct {
	DemoLoop         bool          // 데모 폴링 루프 실행 여부
	DemoLoopInterval time.Duration // 데모 루프 주기
}

// Load: .env 파일 및 환경 변수로부터 설정을 로드하고, 기본값을 적용하여 Config 객체를 생성한다.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Credentials: CredentialsConfig{
			Sets: collectCredentialSets(),
		},
		Quota: QuotaConfig{
			ReservePercent: getEnvFloat("QUOTA_RESERVE_PERCENT", constants.QuotaDefaults.ReservePercent),
			ResetMode:      getEnv("QUOTA_RESET_MODE", constants.QuotaDefaults.ResetMode),
			ResetHour:      getEnvInt("QUOTA_RESET_HOUR", constants.QuotaDefaults.ResetHour),
			ResetTimezone:  getEnv("QUOTA_RESET_TZ", constants.QuotaDefaults.ResetTimezone),
			CostTable:      loadCostTable(getEnv("QUOTA_COST_TABLE", "")),
		},
		YouTube: YouTubeConfig{
			APIKey: getEnv("YOUTUBE_API_KEY", ""),
		},
		Valkey: ValkeyConfig{
			Host:     getEnv("CACHE_HOST", "localhost"),
			Port:     getEnvInt("CACHE_PORT", 6379),
			Password: getEnv("CACHE_PASSWORD", ""),
			DB:       getEnvInt("CACHE_DB", 0),
			Enabled:  getEnvBool("CACHE_ENABLED", true),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", constants.DatabaseDefaults.Host),
			Port:     getEnvInt("POSTGRES_PORT", constants.DatabaseDefaults.Port),
			User:     getEnv("POSTGRES_USER", constants.DatabaseDefaults.User),
			Password: getEnv("POSTGRES_PASSWORD", constants.DatabaseDefaults.Password),
			Database: getEnv("POSTGRES_DB", constants.DatabaseDefaults.Database),
			Enabled:  getEnvBool("POSTGRES_ENABLED", true),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", constants.ServerDefaults.Port),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Dir:        getEnv("LOG_DIR", "logs"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Broker: BrokerConfig{
			DemoLoop:         getEnvBool("BROKER_DEMO_LOOP", false),
			DemoLoopInterval: time.Duration(getEnvInt("BROKER_DEMO_LOOP_SECONDS", 60)) * time.Second,
		},
		Version: strings.TrimSpace(getEnv("APP_VERSION", "1.0.0")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate: 필수 설정값이 누락되지 않았는지 검증한다.
func (c *Config) Validate() error {
	if len(c.Credentials.Sets) == 0 && c.YouTube.APIKey == "" {
		return fmt.Errorf("at least one credential set (YT_CREDENTIALS_FILE_n) or YOUTUBE_API_KEY is required")
	}
	if c.Quota.ReservePercent < 0 || c.Quota.ReservePercent >= 1 {
		return fmt.Errorf("QUOTA_RESERVE_PERCENT must be in [0,1)")
	}
	if c.Quota.ResetMode != "fixed" && c.Quota.ResetMode != "rolling" {
		return fmt.Errorf("QUOTA_RESET_MODE must be 'fixed' or 'rolling'")
	}
	if c.Quota.ResetHour < 0 || c.Quota.ResetHour > 23 {
		return fmt.Errorf("QUOTA_RESET_HOUR must be in [0,23]")
	}
	if c.Quota.ResetMode == "fixed" {
		if _, err := time.LoadLocation(c.Quota.ResetTimezone); err != nil {
			return fmt.Errorf("QUOTA_RESET_TZ is invalid: %w", err)
		}
	}
	if c.Server.Port == 0 {
		return fmt.Errorf("SERVER_PORT is required")
	}
	for _, set := range c.Credentials.Sets {
		if set.DailyLimit <= 0 {
			return fmt.Errorf("daily limit for set %s must be positive", set.ID)
		}
	}
	return nil
}

// collectCredentialSets: 번호 슬롯(YT_CREDENTIALS_FILE_1..N)에서 자격 증명 세트를 수집한다.
// 토큰 참조와 일일 한도는 같은 번호의 슬롯에서 읽고, 한도 기본값은 10,000이다.
func collectCredentialSets() []domain.CredentialSetConfig {
	sets := make([]domain.CredentialSetConfig, 0, constants.CredentialSlots)

	for i := 1; i <= constants.CredentialSlots; i++ {
		credFile := strings.TrimSpace(os.Getenv(fmt.Sprintf("YT_CREDENTIALS_FILE_%d", i)))
		if credFile == "" {
			continue
		}

		tokenRef := strings.TrimSpace(os.Getenv(fmt.Sprintf("YT_TOKEN_FILE_%d", i)))
		if tokenRef == "" {
			tokenRef = fmt.Sprintf("token_set_%d.json", i)
		}

		sets = append(sets, domain.CredentialSetConfig{
			ID:              fmt.Sprintf("set_%d", i),
			CredentialsFile: credFile,
			TokenRef:        tokenRef,
			DailyLimit:      int64(getEnvInt(fmt.Sprintf("YT_DAILY_LIMIT_%d", i), int(constants.QuotaDefaults.DailyLimit))),
		})
	}

	return sets
}

// loadCostTable: 기본 비용 테이블에 환경 변수 오버라이드를 적용한다.
// 포맷: "name:cost:PRIORITY,name:cost:PRIORITY" (우선순위는 생략 가능)
func loadCostTable(override string) domain.CostTable {
	table := domain.DefaultCostTable()
	if override == "" {
		return table
	}

	for _, entry := range strings.Split(override, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}

		cost, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || cost <= 0 {
			continue
		}

		op := domain.Operation{Name: parts[0], Cost: cost, Priority: domain.PriorityMedium}
		if existing, ok := table[parts[0]]; ok {
			op.Priority = existing.Priority
		}
		if len(parts) >= 3 {
			op.Priority = domain.ParsePriority(strings.ToUpper(strings.TrimSpace(parts[2])))
		}

		table[op.Name] = op
	}

	return table
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
