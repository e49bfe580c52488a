package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorAndUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("connection refused")
	appErr := Wrap(base, CodeDeliveryFailure, "push gateway unreachable", http.StatusBadGateway)

	want := "DELIVERY_FAILURE: push gateway unreachable: connection refused"
	if got := appErr.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(appErr, base) {
		t.Fatal("errors.Is(appErr, base) = false, want true")
	}
}

func TestIsAppError(t *testing.T) {
	t.Parallel()

	appErr := ErrValidationf("clientId is required")
	wrapped := fmt.Errorf("handle request: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError() = false, want true")
	}
	if got.Code != CodeValidation {
		t.Fatalf("Code = %q, want %q", got.Code, CodeValidation)
	}
	if got.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("HTTPStatus = %d, want %d", got.HTTPStatus, http.StatusBadRequest)
	}

	if _, ok := IsAppError(errors.New("plain")); ok {
		t.Fatal("IsAppError(plain) = true, want false")
	}
}

func TestTaxonomyRetryability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       *AppError
		code      string
		retryable bool
	}{
		{"validation is terminal", ErrValidationf("bad input"), CodeValidation, false},
		{"resolution feeds fallback", ErrResolution(errors.New("query failed"), "primary lookup failed"), CodeRecipientResolution, true},
		{"token validation is terminal", ErrTokenValidation("bad token format"), CodeTokenValidation, false},
		{"delivery is retryable", ErrDelivery(errors.New("503"), "batch send failed"), CodeDeliveryFailure, true},
		{"timeout is retryable", ErrTimeout("primary"), CodeTimeout, true},
		{"api error is retryable", ErrAPI(errors.New("panic")), CodeAPIError, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Fatalf("Code = %q, want %q", tc.err.Code, tc.code)
			}
			if tc.err.Retryable != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", tc.err.Retryable, tc.retryable)
			}
		})
	}
}
