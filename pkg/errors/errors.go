// Package errors: 쿼터 브로커 전체에서 사용되는 에러 타입들을 정의한다.
// 표준 Go 에러 스타일(errors.As / Unwrap)을 따른다.
package errors

import (
	"fmt"
	"time"
)

// InsufficientQuotaError: 남은 쿼터가 요청 비용보다 적을 때 발생하는 에러
// 대기(리셋) 또는 다른 자격 증명 세트로 전환하여 복구할 수 있다.
type InsufficientQuotaError struct {
	SetID     string
	Operation string
	Cost      int64
	Available int64
}

func (e InsufficientQuotaError) Error() string {
	return fmt.Sprintf("insufficient quota set=%s operation=%s cost=%d available=%d",
		e.SetID, e.Operation, e.Cost, e.Available)
}

// ReserveProtectedError: 비상 예비 쿼터(Emergency Reserve)를 침범하는 요청을 거부할 때 발생하는 에러
// CRITICAL 우선순위 작업이 아니면 예비 쿼터는 사용할 수 없다.
type ReserveProtectedError struct {
	SetID         string
	Operation     string
	Cost          int64
	SafeAvailable int64
	Reserve       int64
}

func (e ReserveProtectedError) Error() string {
	return fmt.Sprintf("reserve protected set=%s operation=%s cost=%d safe_available=%d reserve=%d",
		e.SetID, e.Operation, e.Cost, e.SafeAvailable, e.Reserve)
}

// CredentialInvalidError: 자격 증명이 폐기(revoked)되었거나 더 이상 유효하지 않을 때 발생하는 에러
// 외부에서 재인증(re-authorization)을 수행해야만 복구할 수 있다.
type CredentialInvalidError struct {
	SetID string
	Err   error
}

func (e CredentialInvalidError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential invalid set=%s", e.SetID)
	}
	return fmt.Sprintf("credential invalid set=%s: %v", e.SetID, e.Err)
}

func (e CredentialInvalidError) Unwrap() error { return e.Err }

// CredentialExpiredError: 액세스 토큰이 만료되었고 리프레시 토큰도 없을 때 발생하는 에러
type CredentialExpiredError struct {
	SetID     string
	ExpiredAt time.Time
}

func (e CredentialExpiredError) Error() string {
	return fmt.Sprintf("credential expired without refresh token set=%s expired_at=%s",
		e.SetID, e.ExpiredAt.Format(time.RFC3339))
}

// TransientNetworkError: 일시적인 네트워크 오류 (타임아웃, 5xx 등)
// 세트를 소진(exhausted) 처리하지 않고 다음 후보로 재시도한다.
type TransientNetworkError struct {
	SetID     string
	Operation string
	Err       error
}

func (e TransientNetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient network error set=%s operation=%s", e.SetID, e.Operation)
	}
	return fmt.Sprintf("transient network error set=%s operation=%s: %v", e.SetID, e.Operation, e.Err)
}

func (e TransientNetworkError) Unwrap() error { return e.Err }

// AllCredentialsExhaustedError: 모든 자격 증명 세트가 사용 불가능할 때 발생하는 에러
// Acquire 호출자에게 전파되는 유일한 터미널 에러다.
type AllCredentialsExhaustedError struct {
	Attempted int
	Reasons   map[string]string // setID → 마지막 실패 사유
}

func (e AllCredentialsExhaustedError) Error() string {
	return fmt.Sprintf("all credentials exhausted attempted=%d", e.Attempted)
}

// CacheError: 캐시 작업 중 발생한 에러
type CacheError struct {
	Operation string // get, set, del 등
	Key       string // 캐시 키
	Err       error  // 원인 에러
}

func (e CacheError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cache error operation=%s key=%s", e.Operation, e.Key)
	}
	return fmt.Sprintf("cache error operation=%s key=%s: %v", e.Operation, e.Key, e.Err)
}

func (e CacheError) Unwrap() error { return e.Err }

// NewCacheError: 캐시 에러를 생성한다.
func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		Operation: operation,
		Key:       key,
		Err:       cause,
	}
}

// ServiceError: 내부 서비스 로직 에러
type ServiceError struct {
	Service   string // 서비스 이름
	Operation string // 작업 이름
	Err       error  // 원인 에러
}

func (e ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service error service=%s operation=%s", e.Service, e.Operation)
	}
	return fmt.Sprintf("service error service=%s operation=%s: %v", e.Service, e.Operation, e.Err)
}

func (e ServiceError) Unwrap() error { return e.Err }

// NewServiceError: 서비스 에러를 생성한다.
func NewServiceError(service, operation string, cause error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Err:       cause,
	}
}

// ValidationError: 입력 검증 실패 에러
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error field=%s: %s", e.Field, e.Message)
}

// NewValidationError: 검증 에러를 생성한다.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
