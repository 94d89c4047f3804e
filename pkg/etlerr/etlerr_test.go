package etlerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"explicit kind", New(KindVerification, "verify", errors.New("missing")), KindVerification},
		{"wrapped explicit kind", fmt.Errorf("outer: %w", New(KindNotFound, "open", nil)), KindNotFound},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout},
		{"object missing", storage.ErrObjectNotExist, KindNotFound},
		{"google 404", &googleapi.Error{Code: http.StatusNotFound}, KindNotFound},
		{"google 400", &googleapi.Error{Code: http.StatusBadRequest}, KindMalformedRequest},
		{"google 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, KindService},
		{"google 403", &googleapi.Error{Code: http.StatusForbidden}, KindConfiguration},
		{"plain", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindTransport, "put", errors.New("reset"))))
	assert.True(t, Retryable(New(KindVerification, "verify", nil)))
	assert.True(t, Retryable(errors.New("unknown")))
	assert.False(t, Retryable(New(KindConfiguration, "bucket", nil)))
	assert.False(t, Retryable(New(KindMalformedRequest, "load", nil)))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}

func TestErrorMessage(t *testing.T) {
	err := New(KindService, "merge hist_events", errors.New("backend error"))
	assert.Equal(t, "merge hist_events: backend error", err.Error())
	assert.Equal(t, "service", err.Kind.String())
	assert.Equal(t, "verify: verification", New(KindVerification, "verify", nil).Error())
}
