package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider/telnyx"
)

type fakeStats struct {
	counts map[catalog.Type]catalog.Counts
}

func (f *fakeStats) StatusCounts(ctx context.Context) (map[catalog.Type]catalog.Counts, error) {
	return f.counts, nil
}

type fakeCounter int

func (f fakeCounter) MessageCount(ctx context.Context) (int, error) {
	return int(f), nil
}

func TestHealthEndpoint(t *testing.T) {
	hs := NewHTTPServer(":0", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got HTTP %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %q", resp.Status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	stats := &fakeStats{counts: map[catalog.Type]catalog.Counts{
		catalog.TypeLift:  {Open: 3, Total: 5},
		catalog.TypeTrail: {Open: 12, Total: 20},
	}}
	hs := NewHTTPServer(":0", stats, fakeCounter(42))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got HTTP %d, want 200", rec.Code)
	}
	var resp struct {
		Status     string                    `json:"status"`
		Facilities map[string]map[string]int `json:"facilities"`
		Messages   int                       `json:"messages_processed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %q", resp.Status)
	}
	lifts := resp.Facilities["lift"]
	if lifts["open"] != 3 || lifts["total"] != 5 {
		t.Errorf("lift counts: got %v", lifts)
	}
	if _, ok := resp.Facilities["gate"]; ok {
		t.Error("facilities: got counts for a type with no rows")
	}
	if resp.Messages != 42 {
		t.Errorf("messages_processed: got %d", resp.Messages)
	}
}

func TestProviderIndex(t *testing.T) {
	reg := provider.NewRegistry(telnyx.New(telnyx.Config{FromNumber: "+15305550000"}))
	h := providerIndex(reg)

	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp []struct {
		Name   string                 `json:"name"`
		Slug   string                 `json:"slug"`
		Fields []provider.ConfigField `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Slug != "telnyx" {
		t.Fatalf("providers: got %+v", resp)
	}
	var sawFrom, sawSecretValue bool
	for _, f := range resp[0].Fields {
		if f.Key == "from_number" && f.Value == "+15305550000" {
			sawFrom = true
		}
		if f.Type == "secret" && f.Value != "" {
			sawSecretValue = true
		}
	}
	if !sawFrom {
		t.Error("fields: from_number value not surfaced")
	}
	if sawSecretValue {
		t.Error("fields: a secret field carried a value")
	}
}

func TestExtraRouteRegistration(t *testing.T) {
	hs := NewHTTPServer(":0", nil, nil)
	hs.Handle("/sms/webhook", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sms/webhook", nil)
	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Errorf("got HTTP %d, want the registered handler's code", rec.Code)
	}
}
