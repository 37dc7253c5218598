package youtube

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/kapu/youtube-quota-broker-go/pkg/errors"
)

func TestClassifyQuotaErrors(t *testing.T) {
	cases := []error{
		&googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
		},
		&googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "dailyLimitExceeded"}},
		},
		&googleapi.Error{Code: 429},
	}

	for _, err := range cases {
		if class := Classify(err); class != ClassQuotaExceeded {
			t.Fatalf("Classify(%v) = %s, want QUOTA_EXCEEDED", err, class)
		}
	}
}

func TestClassifyForbiddenWithoutQuotaReason(t *testing.T) {
	err := &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}},
	}
	if class := Classify(err); class != ClassOther {
		t.Fatalf("non-quota 403 classified as %s, want OTHER", class)
	}
}

func TestClassifyAuthErrors(t *testing.T) {
	if class := Classify(&googleapi.Error{Code: 401}); class != ClassAuthExpired {
		t.Fatalf("401 classified as %s, want AUTH_EXPIRED", class)
	}

	revoked := &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
	if class := Classify(revoked); class != ClassAuthRevoked {
		t.Fatalf("invalid_grant classified as %s, want AUTH_REVOKED", class)
	}
}

func TestClassifyTransientErrors(t *testing.T) {
	cases := []error{
		&googleapi.Error{Code: 500},
		&googleapi.Error{Code: 503},
		context.DeadlineExceeded,
		fmt.Errorf("call failed: %w", context.DeadlineExceeded),
		&oauth2.RetrieveError{Response: &http.Response{StatusCode: 502}},
	}

	for _, err := range cases {
		if class := Classify(err); class != ClassTransient {
			t.Fatalf("Classify(%v) = %s, want TRANSIENT", err, class)
		}
	}
}

func TestClassifyWrappedErrors(t *testing.T) {
	// 래핑된 에러도 타입 기반으로 풀어서 분류한다
	wrapped := fmt.Errorf("validation failed: %w", &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
	})
	if class := Classify(wrapped); class != ClassQuotaExceeded {
		t.Fatalf("wrapped quota error classified as %s", class)
	}
}

func TestClassifyTransientNetworkWrapper(t *testing.T) {
	// 리프레시 경로가 씌우는 래퍼를 통과해도 분류가 유지된다
	wrapped := &errors.TransientNetworkError{
		SetID:     "set_1",
		Operation: "token_refresh",
		Err:       context.DeadlineExceeded,
	}
	if class := Classify(wrapped); class != ClassTransient {
		t.Fatalf("wrapped transient error classified as %s, want TRANSIENT", class)
	}

	revoked := &errors.TransientNetworkError{
		SetID: "set_1",
		Err:   &oauth2.RetrieveError{ErrorCode: "invalid_grant"},
	}
	if class := Classify(revoked); class != ClassAuthRevoked {
		t.Fatalf("wrapped revocation classified as %s, want AUTH_REVOKED", class)
	}
}

func TestClassifyNil(t *testing.T) {
	if class := Classify(nil); class != ClassNone {
		t.Fatalf("Classify(nil) = %s, want NONE", class)
	}
}

func TestTerminalClasses(t *testing.T) {
	if !ClassQuotaExceeded.Terminal() || !ClassAuthRevoked.Terminal() {
		t.Fatalf("quota and revoked classes must be terminal")
	}
	if ClassTransient.Terminal() || ClassAuthExpired.Terminal() || ClassOther.Terminal() {
		t.Fatalf("transient classes must not be terminal")
	}
}
