package github

import (
	"testing"
	"time"
)

func TestAPIError_Classification(t *testing.T) {
	tests := []struct {
		name          string
		err           APIError
		wantThrottled bool
		wantAuth      bool
		wantRetryable bool
	}{
		{
			name:          "429 is throttled",
			err:           APIError{Status: 429},
			wantThrottled: true,
			wantRetryable: true,
		},
		{
			name:          "403 with exhausted quota is throttled",
			err:           APIError{Status: 403, quotaExhausted: true},
			wantThrottled: true,
			wantRetryable: true,
		},
		{
			name:          "403 with Retry-After is throttled",
			err:           APIError{Status: 403, RetryAfter: 60 * time.Second},
			wantThrottled: true,
			wantRetryable: true,
		},
		{
			name:     "bare 403 is a permission failure",
			err:      APIError{Status: 403},
			wantAuth: true,
		},
		{
			name:     "401 is an auth failure",
			err:      APIError{Status: 401},
			wantAuth: true,
		},
		{
			name:          "500 is retryable but not throttled",
			err:           APIError{Status: 500},
			wantRetryable: true,
		},
		{
			name: "404 is terminal",
			err:  APIError{Status: 404},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Throttled(); got != tt.wantThrottled {
				t.Errorf("Throttled() = %v, want %v", got, tt.wantThrottled)
			}
			if got := tt.err.AuthFailure(); got != tt.wantAuth {
				t.Errorf("AuthFailure() = %v, want %v", got, tt.wantAuth)
			}
			if got := tt.err.Retryable(); got != tt.wantRetryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.wantRetryable)
			}
		})
	}
}
