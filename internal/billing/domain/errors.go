package domain

import "errors"

var (
	// ErrInvalidSignature rejects the request before any processing. The
	// only engine error that surfaces as a non-200 response.
	ErrInvalidSignature = errors.New("invalid_signature")

	ErrInvalidPayload = errors.New("invalid_payload")

	// ErrUnresolvedTenant means no tenant identity could be derived from
	// the event or the store. Unrecoverable: the event is logged and
	// dropped.
	ErrUnresolvedTenant = errors.New("unresolved_tenant")

	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrUsageRecordNotFound  = errors.New("usage_record_not_found")

	// ErrSubscriptionExists is returned by the provider client when a
	// create call reports the subscription already exists. Callers adopt
	// the existing one instead of failing.
	ErrSubscriptionExists = errors.New("subscription_exists")
)
