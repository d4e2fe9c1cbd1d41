package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kolohq/kolo/internal/billing/domain"
	"github.com/kolohq/kolo/internal/billing/webhook"
	"github.com/kolohq/kolo/internal/config"
	"go.uber.org/zap"
)

type ingestorStub struct {
	err       error
	payload   []byte
	signature string
}

func (i *ingestorStub) IngestWebhook(ctx context.Context, payload []byte, signature string) error {
	i.payload = payload
	i.signature = signature
	return i.err
}

func newTestServer(t *testing.T, ingestor domain.Ingestor) *Server {
	t.Helper()
	return NewServer(ServerParams{
		Gin:      NewEngine(config.Config{Environment: "test"}),
		Cfg:      config.Config{Environment: "test"},
		Log:      zap.NewNop(),
		Ingestor: ingestor,
	})
}

func postWebhook(t *testing.T, s *Server, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcknowledged(t *testing.T) {
	stub := &ingestorStub{}
	s := newTestServer(t, stub)

	rec := postWebhook(t, s, `{"event":"charge.success","data":{}}`, "sig")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body["received"] {
		t.Fatalf("expected received true, got %v", body)
	}
	if stub.signature != "sig" {
		t.Fatalf("expected signature forwarded, got %q", stub.signature)
	}
	if string(stub.payload) != `{"event":"charge.success","data":{}}` {
		t.Fatalf("expected raw body forwarded, got %q", stub.payload)
	}
}

func TestWebhookInvalidSignatureRejected(t *testing.T) {
	stub := &ingestorStub{err: domain.ErrInvalidSignature}
	s := newTestServer(t, stub)

	rec := postWebhook(t, s, `{"event":"charge.success","data":{}}`, "bad")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookHandlerFailureStillAcknowledged(t *testing.T) {
	stub := &ingestorStub{err: domain.ErrUnresolvedTenant}
	s := newTestServer(t, stub)

	rec := postWebhook(t, s, `{"event":"subscription.create","data":{}}`, "sig")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite handler failure, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != domain.ErrUnresolvedTenant.Error() {
		t.Fatalf("expected error body %q, got %v", domain.ErrUnresolvedTenant.Error(), body)
	}
}
