package etlerr

import (
	"errors"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

func classifyGoogle(err error) Kind {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return KindNotFound
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return KindUnknown
	}
	return KindFromStatus(apiErr.Code)
}

// KindFromStatus maps an HTTP status code onto a Kind.
func KindFromStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusBadRequest, code == http.StatusConflict, code == http.StatusUnprocessableEntity:
		return KindMalformedRequest
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindConfiguration
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusTooManyRequests, code >= 500:
		return KindService
	case code >= 400:
		return KindMalformedRequest
	default:
		return KindUnknown
	}
}
