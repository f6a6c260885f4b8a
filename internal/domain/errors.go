package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a requested record does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrNoOfflineToken is returned when a shop has no stored offline access
// token. Non-retryable: the merchant has to go through the install flow
// again before background API calls can work.
var ErrNoOfflineToken = errors.New("no offline access token for shop")

// ErrRetryExhausted is returned by the Admin API client after the last
// retry attempt against a transient failure.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// ErrSignatureInvalid marks a webhook whose HMAC header did not match the
// request body. The transport layer maps it to HTTP 401.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// APIError is a non-retryable Admin API failure: any non-2xx status other
// than 429 and 5xx.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api returned %d: %s", e.Status, e.Body)
}

// StorageWriteError wraps a failure to produce or persist a data-export
// artifact. It always propagates: acking a data request without the export
// file existing would break the compliance contract.
type StorageWriteError struct {
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("write export artifact %s: %v", e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// PayloadValidationError rejects a webhook payload that does not have the
// shape its topic promises.
type PayloadValidationError struct {
	Topic  string
	Reason string
}

func (e *PayloadValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Topic, e.Reason)
}
