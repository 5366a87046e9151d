package twilio_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/sierra-tahoe/smsops/internal/smsops/provider/twilio"
)

const (
	testAuthToken  = "test-auth-token"
	testWebhookURL = "https://sms.example.com/sms/webhook"
)

func testConfig() twilio.Config {
	return twilio.Config{
		AccountSID: "AC0123456789",
		AuthToken:  testAuthToken,
		FromNumber: "+15305550000",
		WebhookURL: testWebhookURL,
	}
}

// sign replicates Twilio's request signing for test requests.
func sign(webhookURL string, params url.Values, authToken string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func inboundRequest(t *testing.T, params url.Values, signature string) (*http.Request, []byte) {
	t.Helper()
	body := params.Encode()
	req := httptest.NewRequest(http.MethodPost, testWebhookURL, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	return req, []byte(body)
}

func TestValidateInbound(t *testing.T) {
	p := twilio.New(testConfig())
	params := url.Values{
		"MessageSid": {"SM123"},
		"From":       {"+15305551234"},
		"To":         {"+15305550000"},
		"Body":       {"open lift grandview"},
	}

	req, body := inboundRequest(t, params, sign(testWebhookURL, params, testAuthToken))
	if err := p.ValidateInbound(req, body); err != nil {
		t.Errorf("ValidateInbound with valid signature: %v", err)
	}

	req, body = inboundRequest(t, params, sign(testWebhookURL, params, "wrong-token"))
	if err := p.ValidateInbound(req, body); err == nil {
		t.Error("ValidateInbound accepted a forged signature")
	}

	req, body = inboundRequest(t, params, "")
	if err := p.ValidateInbound(req, body); err == nil {
		t.Error("ValidateInbound accepted a request without a signature header")
	}
}

func TestParseInbound(t *testing.T) {
	p := twilio.New(testConfig())
	params := url.Values{
		"MessageSid": {"SM123"},
		"From":       {"+15305551234"},
		"To":         {"+15305550000"},
		"Body":       {"status"},
	}
	req, body := inboundRequest(t, params, "")

	msg, err := p.ParseInbound(req, body)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if msg.MessageID != "SM123" || msg.From != "+15305551234" || msg.To != "+15305550000" || msg.Text != "status" {
		t.Errorf("ParseInbound: got %+v", msg)
	}
}

func TestSend(t *testing.T) {
	var gotForm url.Values
	var gotAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = r.PostForm
		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "AC0123456789" && pass == testAuthToken

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid": "SM456"}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Endpoint = srv.URL
	p := twilio.New(cfg)

	if err := p.Send(context.Background(), "+15305551234", "Lift Grandview opened successfully"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !gotAuth {
		t.Error("Send: basic auth credentials not presented")
	}
	if gotForm.Get("From") != "+15305550000" || gotForm.Get("To") != "+15305551234" {
		t.Errorf("Send form numbers: got %v", gotForm)
	}
	if gotForm.Get("Body") != "Lift Grandview opened successfully" {
		t.Errorf("Send form body: got %q", gotForm.Get("Body"))
	}
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Authenticate"}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Endpoint = srv.URL
	p := twilio.New(cfg)

	err := p.Send(context.Background(), "+15305551234", "hi")
	if err == nil {
		t.Fatal("Send: expected error on HTTP 401")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("Send error: got %q", err)
	}
}

func TestSendUnconfigured(t *testing.T) {
	p := twilio.New(twilio.Config{})
	if err := p.Send(context.Background(), "+15305551234", "hi"); err == nil {
		t.Fatal("Send: expected error when unconfigured")
	}
}

func TestWriteAckIsEmptyTwiML(t *testing.T) {
	p := twilio.New(testConfig())
	rec := httptest.NewRecorder()
	p.WriteAck(rec, http.StatusOK, "success")

	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type: got %q", ct)
	}
	want := `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	if rec.Body.String() != want {
		t.Errorf("body: got %q", rec.Body.String())
	}
}
