package youtube

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrorClass: API 경계에서의 실패 분류
// 문자열 매칭이 아니라 타입 기반 검사만 사용한다. 코어 로직은 이 분류만 본다.
type ErrorClass string

// 실패 분류 정의
const (
	ClassNone          ErrorClass = "NONE"
	ClassQuotaExceeded ErrorClass = "QUOTA_EXCEEDED" // 세트 소진으로 취급
	ClassAuthRevoked   ErrorClass = "AUTH_REVOKED"   // 재인증 전까지 세트 제외
	ClassAuthExpired   ErrorClass = "AUTH_EXPIRED"   // 리프레시 시도 대상
	ClassTransient     ErrorClass = "TRANSIENT"      // 다음 후보로 넘어가되 세트는 유지
	ClassOther         ErrorClass = "OTHER"
)

// 403에서 쿼터 소진으로 취급하는 reason 값들
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// Classify: 래핑 대상 API 호출 실패를 분류한다.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	// OAuth 토큰 엔드포인트 실패 (리프레시 경로)
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return classifyRetrieve(retrieveErr)
	}

	// API 호출 실패
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyAPI(apiErr)
	}

	// 타임아웃과 취소는 일시적 실패
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassTransient
	}

	return ClassOther
}

// classifyAPI 는 동작을 수행한다.
func classifyAPI(apiErr *googleapi.Error) ErrorClass {
	switch {
	case apiErr.Code == http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if quotaReasons[item.Reason] {
				return ClassQuotaExceeded
			}
		}
		return ClassOther

	case apiErr.Code == http.StatusTooManyRequests:
		return ClassQuotaExceeded

	case apiErr.Code == http.StatusUnauthorized:
		return ClassAuthExpired

	case apiErr.Code >= 500:
		return ClassTransient

	default:
		return ClassOther
	}
}

// classifyRetrieve: 토큰 리프레시 실패를 분류한다.
// invalid_grant는 사용자가 접근을 철회했거나 리프레시 토큰이 폐기된 경우다.
func classifyRetrieve(retrieveErr *oauth2.RetrieveError) ErrorClass {
	switch retrieveErr.ErrorCode {
	case "invalid_grant":
		return ClassAuthRevoked
	case "invalid_client", "unauthorized_client":
		return ClassAuthRevoked
	}

	if retrieveErr.Response != nil {
		switch {
		case retrieveErr.Response.StatusCode == http.StatusUnauthorized,
			retrieveErr.Response.StatusCode == http.StatusBadRequest:
			return ClassAuthExpired
		case retrieveErr.Response.StatusCode >= 500:
			return ClassTransient
		}
	}

	return ClassOther
}

// Terminal: 이번 epoch 동안 세트를 제외해야 하는 분류인지 판단한다.
func (c ErrorClass) Terminal() bool {
	return c == ClassQuotaExceeded || c == ClassAuthRevoked
}
