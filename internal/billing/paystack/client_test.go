package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/config"
	"go.uber.org/zap"
)

type fakeProvider struct {
	mu        sync.Mutex
	listCalls int
	// listResponses is consumed one element per list call; the last
	// element repeats once exhausted.
	listResponses [][]map[string]any
	createStatus  bool
	createMessage string
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/customer/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		writeJSON(w, map[string]any{
			"status": true,
			"data":   map[string]any{"id": 42, "customer_code": "CUS_1"},
		})
	})

	mux.HandleFunc("/subscription", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, map[string]any{
				"status":  f.createStatus,
				"message": f.createMessage,
			})
			return
		}

		f.mu.Lock()
		idx := f.listCalls
		f.listCalls++
		if idx >= len(f.listResponses) {
			idx = len(f.listResponses) - 1
		}
		response := f.listResponses[idx]
		f.mu.Unlock()

		writeJSON(w, map[string]any{"status": true, "data": response})
	})

	return mux
}

func (f *fakeProvider) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func writeJSON(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, baseURL string) domain.ProviderClient {
	t.Helper()
	return NewClient(zap.NewNop(), config.Config{
		PaystackBaseURL:   baseURL,
		PaystackSecretKey: "sk_test_secret",
	})
}

func subscriptionJSON(code string) map[string]any {
	return map[string]any{
		"subscription_code": code,
		"status":            "active",
		"amount":            50000,
		"next_payment_date": time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"plan": map[string]any{
			"plan_code": "PLN_growth",
			"interval":  "monthly",
		},
	}
}

func TestFindSubscriptionMatchesPlan(t *testing.T) {
	provider := &fakeProvider{
		listResponses: [][]map[string]any{{
			subscriptionJSON("SUB_other_plan"),
			subscriptionJSON("SUB_1"),
		}},
	}
	provider.listResponses[0][0]["plan"] = map[string]any{"plan_code": "PLN_scale", "interval": "monthly"}

	srv := httptest.NewServer(provider.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	sub, err := client.FindSubscription(context.Background(), "CUS_1", "PLN_growth")
	if err != nil {
		t.Fatalf("find subscription: %v", err)
	}
	if sub == nil || sub.SubscriptionCode != "SUB_1" {
		t.Fatalf("expected SUB_1, got %+v", sub)
	}
	if sub.Interval != "monthly" {
		t.Fatalf("expected monthly interval, got %s", sub.Interval)
	}
}

func TestFindSubscriptionRetriesEmptyList(t *testing.T) {
	provider := &fakeProvider{
		listResponses: [][]map[string]any{
			{},
			{subscriptionJSON("SUB_1")},
		},
	}

	srv := httptest.NewServer(provider.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	sub, err := client.FindSubscription(context.Background(), "CUS_1", "PLN_growth")
	if err != nil {
		t.Fatalf("find subscription: %v", err)
	}
	if sub == nil || sub.SubscriptionCode != "SUB_1" {
		t.Fatalf("expected SUB_1 after retry, got %+v", sub)
	}
	if provider.ListCalls() != 2 {
		t.Fatalf("expected 2 list calls, got %d", provider.ListCalls())
	}
}

func TestFindSubscriptionGivesUpAfterBoundedRetries(t *testing.T) {
	provider := &fakeProvider{listResponses: [][]map[string]any{{}}}

	srv := httptest.NewServer(provider.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	sub, err := client.FindSubscription(context.Background(), "CUS_1", "PLN_growth")
	if err != nil {
		t.Fatalf("find subscription: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil after exhaustion, got %+v", sub)
	}
	if provider.ListCalls() != 1+extraAttempts {
		t.Fatalf("expected %d list calls, got %d", 1+extraAttempts, provider.ListCalls())
	}
}

func TestCreateSubscription(t *testing.T) {
	provider := &fakeProvider{createStatus: true}

	srv := httptest.NewServer(provider.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.CreateSubscription(context.Background(), "CUS_1", "PLN_growth", "AUTH_1"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
}

func TestCreateSubscriptionDuplicate(t *testing.T) {
	provider := &fakeProvider{
		createStatus:  false,
		createMessage: "This subscription is already in place",
	}

	srv := httptest.NewServer(provider.handler(t))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.CreateSubscription(context.Background(), "CUS_1", "PLN_growth", "AUTH_1")
	if !errors.Is(err, domain.ErrSubscriptionExists) {
		t.Fatalf("expected ErrSubscriptionExists, got %v", err)
	}
}
