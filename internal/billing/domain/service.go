package domain

import (
	"context"
	"time"
)

// Service reconciles a parsed provider event into subscription state.
type Service interface {
	ProcessEvent(ctx context.Context, event *Event) error
}

// Ingestor is the outer webhook boundary: signature check, parse, route.
// Only ErrInvalidSignature may surface to the transport; every other
// failure is logged and the delivery acknowledged so the provider does not
// retry into the same failure.
type Ingestor interface {
	IngestWebhook(ctx context.Context, payload []byte, signature string) error
}

// ProviderSubscription is the provider-side view returned by the fallback
// API client.
type ProviderSubscription struct {
	SubscriptionCode string
	Status           string
	Amount           int64
	Interval         string
	CreatedAt        *time.Time
	NextPaymentDate  *time.Time
}

// ProviderClient is the fallback billing API used only when an event lacks
// information the store needs. Lookups that find nothing after bounded
// retries return nil, nil: "not yet available", resolved by a later event.
type ProviderClient interface {
	FindSubscription(ctx context.Context, customerCode, planCode string) (*ProviderSubscription, error)

	// CreateSubscription asks the provider to start the subscription using
	// a reusable authorization. Returns ErrSubscriptionExists when the
	// provider already has one for this customer and plan.
	CreateSubscription(ctx context.Context, customerCode, planCode, authorizationCode string) error
}
