// Package ai implements the correlation adviser: a language-model service that
// estimates how far a parlay's joint probability deviates from the naive
// independence product.
//
// The adviser is a capability, not a dependency: when it is unconfigured or
// unreachable, callers fall back to naive pricing.  Its numeric output is
// never trusted blindly — the quote engine clamps the response so the offered
// odds can never beat independence.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/skumar2006/kalshiparlay/internal/config"
	"github.com/skumar2006/kalshiparlay/internal/domain"
)

// Adviser calls a chat-completions compatible endpoint and parses the model's
// strict-JSON answer into a CorrelationAnalysis.
type Adviser struct {
	http    *resty.Client
	model   string
	enabled bool
	logger  *slog.Logger
}

// NewAdviser builds an Adviser from config.  An empty API key yields a
// disabled adviser whose Analyze always reports unavailability.
func NewAdviser(cfg *config.Config, logger *slog.Logger) *Adviser {
	httpClient := resty.New().
		SetBaseURL(cfg.AI.BaseURL).
		SetTimeout(cfg.AI.Timeout).
		SetAuthToken(cfg.AI.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Adviser{
		http:    httpClient,
		model:   cfg.AI.Model,
		enabled: cfg.AI.APIKey != "",
		logger:  logger,
	}
}

// Enabled reports whether an API key is configured.
func (a *Adviser) Enabled() bool { return a.enabled }

// ──────────────────────────────────────────────────────────────────────────────
// Wire types (chat-completions)
// ──────────────────────────────────────────────────────────────────────────────

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat respFormat    `json:"response_format"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"` // "json_object"
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// analysisJSON is the contract the model is instructed to return.
type analysisJSON struct {
	AdjustedProbability float64 `json:"adjusted_probability_percent"`
	CorrelationFactor   float64 `json:"correlation_factor"`
	Reasoning           string  `json:"reasoning"`
	RiskAssessment      string  `json:"risk_assessment"`
}

const systemPrompt = `You are a risk analyst for a parlay-betting desk over binary prediction markets.
Given parlay legs (title, option, independent probability percent) and their naive joint probability,
estimate the true joint probability accounting for correlation between legs.
The adjusted probability must never be below the naive product, and the correlation factor
(adjusted divided by naive) must never be below 1.0.
Respond with JSON only: {"adjusted_probability_percent": <float>, "correlation_factor": <float>,
"reasoning": "<one or two sentences>", "risk_assessment": "low"|"medium"|"high"}`

// ──────────────────────────────────────────────────────────────────────────────
// Analyze
// ──────────────────────────────────────────────────────────────────────────────

// Analyze asks the model for a correlation-adjusted joint probability.
// Returns an error on any transport, parse, or availability failure; callers
// treat every error as "fall back to naive".
func (a *Adviser) Analyze(ctx context.Context, legs []domain.QuoteLeg, naive decimal.Decimal) (domain.CorrelationAnalysis, error) {
	var zero domain.CorrelationAnalysis
	if !a.enabled {
		return zero, fmt.Errorf("ai.Analyze: adviser disabled (no API key)")
	}

	var sb strings.Builder
	for i, leg := range legs {
		fmt.Fprintf(&sb, "%d. %s — %s (%s%%)\n", i+1, leg.MarketTitle, leg.OptionLabel, leg.Prob.StringFixed(2))
	}
	fmt.Fprintf(&sb, "Naive joint probability: %s%%", naive.Mul(decimal.NewFromInt(100)).StringFixed(4))

	body := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: sb.String()},
		},
		ResponseFormat: respFormat{Type: "json_object"},
		Temperature:    0.2,
	}

	var result chatResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return zero, fmt.Errorf("ai.Analyze: request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return zero, fmt.Errorf("ai.Analyze: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Choices) == 0 {
		return zero, fmt.Errorf("ai.Analyze: empty choices")
	}

	var parsed analysisJSON
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &parsed); err != nil {
		return zero, fmt.Errorf("ai.Analyze: parse model output: %w", err)
	}
	if parsed.AdjustedProbability <= 0 || parsed.AdjustedProbability > 100 {
		return zero, fmt.Errorf("ai.Analyze: adjusted probability %.4f out of range", parsed.AdjustedProbability)
	}

	risk := domain.RiskLevel(parsed.RiskAssessment)
	switch risk {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
	default:
		risk = domain.RiskUnknown
	}

	return domain.CorrelationAnalysis{
		AdjustedProb:      decimal.NewFromFloat(parsed.AdjustedProbability).Div(decimal.NewFromInt(100)),
		CorrelationFactor: decimal.NewFromFloat(parsed.CorrelationFactor),
		Reasoning:         parsed.Reasoning,
		RiskAssessment:    risk,
	}, nil
}
