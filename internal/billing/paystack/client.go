// Package paystack is the fallback billing API client, consulted only when
// a webhook payload lacks information the store needs.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/config"
	"go.uber.org/zap"
)

// extraAttempts bounds how long a lookup absorbs provider-side indexing
// lag right after a subscription is created.
const (
	extraAttempts = 2
	retryDelay    = 500 * time.Millisecond
)

type Client struct {
	log     *zap.Logger
	httpc   *retryablehttp.Client
	baseURL string
	secret  string
}

func NewClient(log *zap.Logger, cfg config.Config) domain.ProviderClient {
	httpc := retryablehttp.NewClient()
	httpc.RetryMax = 2
	httpc.RetryWaitMin = 250 * time.Millisecond
	httpc.RetryWaitMax = 2 * time.Second
	httpc.HTTPClient.Timeout = 15 * time.Second
	httpc.Logger = nil

	return &Client{
		log:     log.Named("billing.paystack"),
		httpc:   httpc,
		baseURL: cfg.PaystackBaseURL,
		secret:  cfg.PaystackSecretKey,
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type customerData struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
}

type subscriptionData struct {
	SubscriptionCode string     `json:"subscription_code"`
	Status           string     `json:"status"`
	Amount           int64      `json:"amount"`
	CreatedAt        *time.Time `json:"createdAt"`
	NextPaymentDate  *time.Time `json:"next_payment_date"`
	Plan             struct {
		PlanCode string `json:"plan_code"`
		Interval string `json:"interval"`
	} `json:"plan"`
}

// FindSubscription resolves the customer to its provider-side numeric id,
// lists that customer's subscriptions and picks the one on the given plan.
// An empty list is retried a bounded number of times; nil, nil after
// exhaustion means "not yet available" and a later confirmation event will
// complete the record.
func (c *Client) FindSubscription(ctx context.Context, customerCode, planCode string) (*domain.ProviderSubscription, error) {
	customerID, err := c.resolveCustomerID(ctx, customerCode)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= extraAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		match, err := c.listSubscription(ctx, customerID, planCode)
		if err != nil {
			return nil, err
		}
		if match != nil {
			return match, nil
		}

		c.log.Debug("no provider subscription yet",
			zap.String("customer_code", customerCode),
			zap.String("plan_code", planCode),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, nil
}

// CreateSubscription starts the subscription provider-side from a reusable
// authorization. A duplicate is reported as ErrSubscriptionExists so the
// caller can adopt the existing subscription instead.
func (c *Client) CreateSubscription(ctx context.Context, customerCode, planCode, authorizationCode string) error {
	body := map[string]string{
		"customer":      customerCode,
		"plan":          planCode,
		"authorization": authorizationCode,
	}

	env, statusCode, err := c.do(ctx, http.MethodPost, "/subscription", body)
	if err != nil {
		return err
	}
	if env.Status {
		return nil
	}
	if isDuplicateMessage(env.Message) {
		return domain.ErrSubscriptionExists
	}
	return fmt.Errorf("paystack create subscription: %s (http %d)", env.Message, statusCode)
}

func (c *Client) resolveCustomerID(ctx context.Context, customerCode string) (int64, error) {
	env, statusCode, err := c.do(ctx, http.MethodGet, "/customer/"+customerCode, nil)
	if err != nil {
		return 0, err
	}
	if !env.Status {
		return 0, fmt.Errorf("paystack fetch customer %s: %s (http %d)", customerCode, env.Message, statusCode)
	}

	var customer customerData
	if err := json.Unmarshal(env.Data, &customer); err != nil {
		return 0, err
	}
	if customer.ID == 0 {
		return 0, fmt.Errorf("paystack customer %s has no id", customerCode)
	}
	return customer.ID, nil
}

func (c *Client) listSubscription(ctx context.Context, customerID int64, planCode string) (*domain.ProviderSubscription, error) {
	path := fmt.Sprintf("/subscription?customer=%d", customerID)
	env, statusCode, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack list subscriptions: %s (http %d)", env.Message, statusCode)
	}

	var subscriptions []subscriptionData
	if err := json.Unmarshal(env.Data, &subscriptions); err != nil {
		return nil, err
	}

	for _, sub := range subscriptions {
		if sub.Plan.PlanCode != planCode {
			continue
		}
		return &domain.ProviderSubscription{
			SubscriptionCode: sub.SubscriptionCode,
			Status:           sub.Status,
			Amount:           sub.Amount,
			Interval:         sub.Plan.Interval,
			CreatedAt:        sub.CreatedAt,
			NextPaymentDate:  sub.NextPaymentDate,
		}, nil
	}

	return nil, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("paystack %s %s: unexpected response (http %d)", method, path, resp.StatusCode)
	}
	return &env, resp.StatusCode, nil
}

func isDuplicateMessage(message string) bool {
	return strings.Contains(strings.ToLower(message), "already")
}
