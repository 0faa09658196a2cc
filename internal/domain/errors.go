package domain

import "errors"

var (
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrTimestampStale       = errors.New("message timestamp outside tolerance window")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrDuplicateMessage     = errors.New("duplicate message")
	ErrUnsupportedEventType = errors.New("unsupported event type")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
