package credstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CredentialRecord: credential_sets 테이블의 GORM 모델
// 세트당 하나의 토큰 레코드를 보관한다.
type CredentialRecord struct {
	SetID        string    `gorm:"primaryKey;type:varchar(64)"`
	AccessToken  string    `gorm:"type:text"`
	RefreshToken string    `gorm:"type:text"`
	TokenType    string    `gorm:"type:varchar(32)"`
	Expiry       time.Time `gorm:"index"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName 은 동작을 수행한다.
func (CredentialRecord) TableName() string {
	return "credential_sets"
}

// UsageSnapshot: usage_snapshots 테이블의 GORM 모델 (스키마 정의용)
// 조회/저장은 quota 패키지가 raw SQL로 수행한다.
type UsageSnapshot struct {
	SetID       string         `gorm:"primaryKey;type:varchar(64)"`
	Used        int64          `gorm:"not null;default:0"`
	DailyLimit  int64          `gorm:"not null"`
	LastResetAt time.Time      `gorm:"not null"`
	LastCallAt  *time.Time     ``
	PerOp       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // 작업별 소비 집계
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime"`
}

// TableName 은 동작을 수행한다.
func (UsageSnapshot) TableName() string {
	return "usage_snapshots"
}

// ProfileRecord: exhaustion_profiles 테이블의 GORM 모델
// 프로파일 본문은 JSONB 페이로드로 저장한다.
type ProfileRecord struct {
	SetID     string         `gorm:"primaryKey;type:varchar(64)"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime"`
}

// TableName 은 동작을 수행한다.
func (ProfileRecord) TableName() string {
	return "exhaustion_profiles"
}

// Migrate: 브로커가 사용하는 테이블 스키마를 생성/갱신한다.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialRecord{}, &UsageSnapshot{}, &ProfileRecord{})
}
