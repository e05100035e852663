package ai_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/ai"
	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func buildAdviser(t *testing.T, baseURL, apiKey string) *ai.Adviser {
	t.Helper()
	cfg := &config.Config{
		AI: config.AIConfig{
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   "test-model",
			Timeout: 3 * time.Second,
		},
	}
	return ai.NewAdviser(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// mockCompletions returns a chat-completions server whose single choice has
// the given message content.
func mockCompletions(content string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func testLegs() []domain.QuoteLeg {
	return []domain.QuoteLeg{
		{MarketTitle: "Fed cuts rates in March", OptionLabel: "Yes", Prob: decimal.NewFromInt(50)},
		{MarketTitle: "S&P closes green this week", OptionLabel: "Yes", Prob: decimal.NewFromInt(40)},
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestAdviserDisabledWithoutKey(t *testing.T) {
	adviser := buildAdviser(t, "http://invalid.invalid", "")
	if adviser.Enabled() {
		t.Error("adviser without API key should report disabled")
	}
	_, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2))
	if err == nil {
		t.Fatal("disabled adviser must return an error so callers fall back to naive")
	}
}

func TestAdviserAnalyze(t *testing.T) {
	srv := httptest.NewServer(mockCompletions(
		`{"adjusted_probability_percent": 28.0, "correlation_factor": 1.4,
		  "reasoning": "macro legs move together", "risk_assessment": "medium"}`))
	defer srv.Close()

	adviser := buildAdviser(t, srv.URL, "test-key")
	analysis, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !analysis.AdjustedProb.Equal(decimal.NewFromFloat(0.28)) {
		t.Errorf("adjusted prob = %s, want 0.28", analysis.AdjustedProb)
	}
	if !analysis.CorrelationFactor.Equal(decimal.NewFromFloat(1.4)) {
		t.Errorf("factor = %s, want 1.4", analysis.CorrelationFactor)
	}
	if analysis.RiskAssessment != domain.RiskMedium {
		t.Errorf("risk = %s, want medium", analysis.RiskAssessment)
	}
	if analysis.Reasoning == "" {
		t.Error("reasoning should carry the model's explanation")
	}
}

func TestAdviserNormalizesUnknownRisk(t *testing.T) {
	srv := httptest.NewServer(mockCompletions(
		`{"adjusted_probability_percent": 25, "correlation_factor": 1.25,
		  "reasoning": "", "risk_assessment": "catastrophic"}`))
	defer srv.Close()

	adviser := buildAdviser(t, srv.URL, "test-key")
	analysis, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.RiskAssessment != domain.RiskUnknown {
		t.Errorf("unrecognized risk label should normalize to unknown, got %s", analysis.RiskAssessment)
	}
}

func TestAdviserRejectsGarbageOutput(t *testing.T) {
	srv := httptest.NewServer(mockCompletions(`sure! the probability is about 25%`))
	defer srv.Close()

	adviser := buildAdviser(t, srv.URL, "test-key")
	if _, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2)); err == nil {
		t.Fatal("non-JSON model output must error, not guess")
	}
}

func TestAdviserRejectsOutOfRangeProbability(t *testing.T) {
	for _, content := range []string{
		`{"adjusted_probability_percent": 150, "correlation_factor": 7.5}`,
		`{"adjusted_probability_percent": 0, "correlation_factor": 0}`,
		`{"adjusted_probability_percent": -3, "correlation_factor": 1}`,
	} {
		srv := httptest.NewServer(mockCompletions(content))
		adviser := buildAdviser(t, srv.URL, "test-key")
		if _, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2)); err == nil {
			t.Errorf("out-of-range output %s must error", content)
		}
		srv.Close()
	}
}

func TestAdviserEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	adviser := buildAdviser(t, srv.URL, "test-key")
	if _, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2)); err == nil {
		t.Fatal("empty choices must error")
	}
}

func TestAdviserUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adviser := buildAdviser(t, srv.URL, "test-key")
	if _, err := adviser.Analyze(context.Background(), testLegs(), decimal.NewFromFloat(0.2)); err == nil {
		t.Fatal("non-200 upstream must error")
	}
}
