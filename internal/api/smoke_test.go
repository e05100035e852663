// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - Ownership middleware (403 on another user's resources)
//   - Webhook gating (disabled endpoint, signature check)
//   - CORS behavior in demo mode
package api_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/skumar2006/kalshiparlay/internal/api"
	"github.com/skumar2006/kalshiparlay/internal/config"
)

const testJWTSecret = "test-idp-secret-abcdefghijklmnop"

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg(webhookSecret string) *config.Config {
	return &config.Config{
		Environment: config.EnvDemo,
		Server: config.ServerConfig{
			Port: "8080",
		},
		Identity: config.IdentityConfig{
			URL:       "https://idp.example.com",
			AnonKey:   "anon-key",
			JWTSecret: testJWTSecret,
		},
		Payment: config.PaymentConfig{
			WebhookSecret: webhookSecret,
		},
	}
}

// buildTestRouter wires the router with nil services: routing, auth and
// webhook gating never reach them.
func buildTestRouter(t *testing.T, webhookSecret string) http.Handler {
	t.Helper()
	return api.SetupRouter(api.RouterDeps{
		ParlaySvc: nil,
		LedgerSvc: nil,
		Venue:     nil,
		Cfg:       testCfg(webhookSecret),
	})
}

func mintToken(t *testing.T, subject uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject.String(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// ── Public endpoints ──────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t, "")
	rr := do(t, h, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/health = %d, want 200", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("health body not JSON: %v", err)
	}
	if body["status"] != "ok" || body["environment"] != "demo" {
		t.Errorf("health body = %v", body)
	}
}

func TestClientConfigEndpoint(t *testing.T) {
	h := buildTestRouter(t, "")
	rr := do(t, h, http.MethodGet, "/api/config", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/config = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "idp.example.com") {
		t.Errorf("config should expose the identity provider URL, got %s", rr.Body.String())
	}
}

// ── JWT auth middleware ───────────────────────────────────────────────────────

func TestAuthedRoutes_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t, "")
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/quote"},
		{http.MethodGet, "/api/parlay-draft"},
		{http.MethodDelete, "/api/parlay-draft"},
		{http.MethodPost, "/api/place-parlay"},
		{http.MethodGet, "/api/parlay-status/ps-x"},
		{http.MethodGet, "/api/kalshi/market/BTC-50K"},
		{http.MethodGet, "/api/wallet/11111111-1111-1111-1111-111111111111"},
		{http.MethodPost, "/api/purchase-intent"},
	}
	for _, r := range routes {
		rr := do(t, h, r.method, r.path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", r.method, r.path, rr.Code)
		}
	}
}

func TestAuthedRoutes_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t, "")
	rr := do(t, h, http.MethodGet, "/api/parlay-draft", "", map[string]string{
		"Authorization": "Bearer not.a.valid.jwt",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad JWT = %d, want 401", rr.Code)
	}
}

func TestAuthedRoutes_NonUUIDSubject_Returns401(t *testing.T) {
	h := buildTestRouter(t, "")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "not-a-uuid"})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rr := do(t, h, http.MethodGet, "/api/parlay-draft", "", map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("non-uuid subject = %d, want 401", rr.Code)
	}
}

// ── Ownership middleware ──────────────────────────────────────────────────────

func TestOwnerRoutes_OtherUser_Returns403(t *testing.T) {
	h := buildTestRouter(t, "")
	me := uuid.New()
	other := uuid.New()
	auth := map[string]string{"Authorization": "Bearer " + mintToken(t, me)}

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/wallet/" + other.String()},
		{http.MethodGet, "/api/wallet/" + other.String() + "/transactions"},
		{http.MethodGet, "/api/parlay-history/" + other.String()},
		{http.MethodGet, "/api/purchase-history/" + other.String()},
		{http.MethodPost, "/api/withdraw/" + other.String()},
	}
	for _, r := range routes {
		rr := do(t, h, r.method, r.path, "", auth)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s as another user = %d, want 403", r.method, r.path, rr.Code)
		}
	}
}

func TestOwnerRoutes_MalformedUserID_Returns400(t *testing.T) {
	h := buildTestRouter(t, "")
	auth := map[string]string{"Authorization": "Bearer " + mintToken(t, uuid.New())}
	rr := do(t, h, http.MethodGet, "/api/wallet/not-a-uuid", "", auth)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed user id = %d, want 400", rr.Code)
	}
}

// ── Placement validation ──────────────────────────────────────────────────────

// Quote legs may omit ticker and side, but placement needs both; the handler
// must reject early with 400 rather than letting the database do it.
func TestPlaceParlay_LegMissingTickerOrSide_Returns400(t *testing.T) {
	h := buildTestRouter(t, "")
	auth := map[string]string{"Authorization": "Bearer " + mintToken(t, uuid.New())}

	bodies := []struct{ name, body string }{
		{
			"missing ticker",
			`{"environment":"demo","stake":"10.00","legs":[{"market_title":"BTC above 50k","option_label":"Yes","side":"yes","prob":"62.5"}]}`,
		},
		{
			"invalid side",
			`{"environment":"demo","stake":"10.00","legs":[{"market_title":"BTC above 50k","option_label":"Yes","ticker":"BTC-50K","side":"maybe","prob":"62.5"}]}`,
		},
	}
	for _, tt := range bodies {
		rr := do(t, h, http.MethodPost, "/api/place-parlay", tt.body, auth)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("place-parlay with %s = %d, want 400", tt.name, rr.Code)
		}
	}
}

// ── Webhooks ──────────────────────────────────────────────────────────────────

func TestPaymentWebhook_DisabledWithoutSecret(t *testing.T) {
	h := buildTestRouter(t, "")
	rr := do(t, h, http.MethodPost, "/webhooks/payments", `{"session_id":"cs_1","status":"completed"}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("webhook without configured secret = %d, want 404", rr.Code)
	}
}

func TestPaymentWebhook_BadSignature_Returns401(t *testing.T) {
	h := buildTestRouter(t, "whsec-test")
	rr := do(t, h, http.MethodPost, "/webhooks/payments", `{"session_id":"cs_1","status":"completed"}`,
		map[string]string{"X-Webhook-Signature": "deadbeef"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad webhook signature = %d, want 401", rr.Code)
	}
}

func TestPaymentWebhook_ValidSignatureMissingSession_Returns400(t *testing.T) {
	secret := "whsec-test"
	h := buildTestRouter(t, secret)
	body := `{"status":"completed"}`

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	sig := hex.EncodeToString(mac.Sum(nil))

	rr := do(t, h, http.MethodPost, "/webhooks/payments", body,
		map[string]string{"X-Webhook-Signature": sig})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("signed body without session_id = %d, want 400", rr.Code)
	}
}

func TestSignupCallback_InvalidBody_Returns400(t *testing.T) {
	h := buildTestRouter(t, "")
	rr := do(t, h, http.MethodPost, "/auth/callback", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("signup callback with empty body = %d, want 400", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/auth/callback", `{"id":"nope","email":"a@b.c"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("signup callback with non-uuid id = %d, want 400", rr.Code)
	}
}

// ── CORS ──────────────────────────────────────────────────────────────────────

func TestCORSPreflight(t *testing.T) {
	h := buildTestRouter(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/api/quote", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("OPTIONS preflight = %d, want 204", rr.Code)
	}
	if allow := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSWildcardInDemo(t *testing.T) {
	h := buildTestRouter(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("demo CORS origin = %q, want *", origin)
	}
}
