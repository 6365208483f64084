package evidence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSealSendsIdempotencyKeyAndPrincipal(t *testing.T) {
	var gotPath, gotKey, gotSubject, gotRoles string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotSubject = r.Header.Get("X-Principal-Subject")
		gotRoles = r.Header.Get("X-Principal-Roles")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"evidence_id": "ev-1", "draft_id": "d 1", "ledger_state": "SEALED"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithPrincipal(Principal{Subject: "user-1", TenantID: "t1", Roles: []string{"submitter", "auditor"}}))
	receipt, err := client.Seal(context.Background(), "d 1", "req-1")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if receipt.EvidenceID != "ev-1" || receipt.LedgerState != "SEALED" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if gotPath != "/v1/drafts/d 1/seal" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "req-1" || gotSubject != "user-1" || gotRoles != "submitter,auditor" {
		t.Fatalf("unexpected headers key=%q subject=%q roles=%q", gotKey, gotSubject, gotRoles)
	}
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":"VALIDATION_FAILED","message":"invalid","correlation_id":"c-1","field_errors":[{"field":"purpose","error":"required"}],"retryable":false,"user_fault":true}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateDraft(context.Background(), json.RawMessage(`{}`))
	if !IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected validation error, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.CorrelationID != "c-1" || len(apiErr.FieldErrors) != 1 {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestNonJSONErrorFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Correlation-ID", "c-9")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetReceipt(context.Background(), "ev-1")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.CorrelationID != "c-9" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestMissingBaseURL(t *testing.T) {
	if _, err := NewClient("").GetDraft(context.Background(), "d1"); err == nil {
		t.Fatalf("expected error without base url")
	}
}
