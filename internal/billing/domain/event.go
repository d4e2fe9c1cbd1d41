package domain

import (
	"encoding/json"
	"time"
)

// Event is the webhook envelope: a type string plus a payload whose shape
// depends on the type.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

const (
	EventSubscriptionCreate   = "subscription.create"
	EventSubscriptionDisable  = "subscription.disable"
	EventSubscriptionNotRenew = "subscription.not_renew"
	EventInvoiceCreate        = "invoice.create"
	EventInvoiceFailed        = "invoice.payment_failed"
	EventInvoiceUpdate        = "invoice.update"
	EventChargeSuccess        = "charge.success"
	EventExpiringCards        = "subscription.expiring_cards"
)

// EventMetadata is the metadata block set on the provider object when the
// dashboard initiates a payment. TenantID here is authoritative for
// tenant resolution.
type EventMetadata struct {
	TenantID string `json:"tenant_id"`
}

// PlanData describes the provider plan referenced by an event.
type PlanData struct {
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
	Interval string `json:"interval"`
	Amount   int64  `json:"amount"`
}

// CustomerData is the nested customer object on subscription, charge and
// invoice events.
type CustomerData struct {
	CustomerCode string        `json:"customer_code"`
	Email        string        `json:"email"`
	Metadata     EventMetadata `json:"metadata"`
}

// AuthorizationData is the payment-method authorization attached to a
// successful charge. Reusable authorizations allow the engine to create
// the provider-side subscription itself instead of waiting for the
// provider's own confirmation webhook.
type AuthorizationData struct {
	AuthorizationCode string `json:"authorization_code"`
	Reusable          bool   `json:"reusable"`
	ExpMonth          string `json:"exp_month"`
	ExpYear           string `json:"exp_year"`
}

// SubscriptionEventData is the payload of subscription.create,
// subscription.disable and subscription.not_renew.
type SubscriptionEventData struct {
	SubscriptionCode string             `json:"subscription_code"`
	Status           string             `json:"status"`
	Amount           int64              `json:"amount"`
	CreatedAt        *time.Time         `json:"createdAt"`
	NextPaymentDate  *time.Time         `json:"next_payment_date"`
	Plan             PlanData           `json:"plan"`
	Customer         CustomerData       `json:"customer"`
	Metadata         EventMetadata      `json:"metadata"`
	Authorization    *AuthorizationData `json:"authorization"`
}

// ChargeEventData is the payload of charge.success. Plan is nil for
// one-off charges, which the engine ignores.
type ChargeEventData struct {
	Reference     string             `json:"reference"`
	Status        string             `json:"status"`
	Amount        int64              `json:"amount"`
	PaidAt        *time.Time         `json:"paid_at"`
	Plan          *PlanData          `json:"plan"`
	Customer      CustomerData       `json:"customer"`
	Metadata      EventMetadata      `json:"metadata"`
	Authorization *AuthorizationData `json:"authorization"`
}

// InvoiceSubscriptionRef is the nested subscription reference on invoice
// events.
type InvoiceSubscriptionRef struct {
	SubscriptionCode string `json:"subscription_code"`
	Status           string `json:"status"`
}

// InvoiceTransactionRef carries the transaction reference an invoice
// settles against.
type InvoiceTransactionRef struct {
	Reference string `json:"reference"`
}

// InvoiceEventData is the payload of invoice.create, invoice.update and
// invoice.payment_failed. Invoice events are the only ones carrying
// explicit period bounds.
type InvoiceEventData struct {
	InvoiceCode  string                 `json:"invoice_code"`
	Subscription InvoiceSubscriptionRef `json:"subscription"`
	Transaction  *InvoiceTransactionRef `json:"transaction"`
	Customer     CustomerData           `json:"customer"`
	Metadata     EventMetadata          `json:"metadata"`
	Amount       int64                  `json:"amount"`
	Paid         bool                   `json:"paid"`
	PaidAt       *time.Time             `json:"paid_at"`
	Status       string                 `json:"status"`
	PeriodStart  *time.Time             `json:"period_start"`
	PeriodEnd    *time.Time             `json:"period_end"`
}

// ExpiringCardEntry is one element of the subscription.expiring_cards
// maintenance payload. Entries are processed independently.
type ExpiringCardEntry struct {
	Subscription InvoiceSubscriptionRef `json:"subscription"`
	ExpiryDate   string                 `json:"expiry_date"`
}
